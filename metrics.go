package airkv

import (
	"github.com/HdrHistogram/hdrhistogram-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// storeMetrics collects the operational counters and gauges for a single
// Store instance: a handful of counters registered eagerly via promauto,
// plus one latency histogram that is recorded in memory only; it is not
// registered with the prometheus registry and nothing exports it.
type storeMetrics struct {
	appends            prometheus.Counter
	appendFailures     *prometheus.CounterVec
	bytesWritten       prometheus.Counter
	entriesWritten     prometheus.Counter
	entriesRead        prometheus.Counter
	tailRotations      prometheus.Counter
	lockAcquisitions   *prometheus.CounterVec
	optimisticResults  *prometheus.CounterVec
	compactionRuns     prometheus.Counter
	lastCompactionSegs prometheus.Gauge

	criticalSectionLatency *hdrhistogram.Histogram
}

func newStoreMetrics(reg prometheus.Registerer) *storeMetrics {
	return &storeMetrics{
		appends: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "airkv_appends_total",
			Help: "Number of tail append attempts.",
		}),
		appendFailures: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "airkv_append_failures_total",
			Help: "Tail append attempts that did not succeed, by outcome.",
		}, []string{"outcome"}),
		bytesWritten: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "airkv_bytes_written_total",
			Help: "Bytes appended to data segments.",
		}),
		entriesWritten: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "airkv_entries_written_total",
			Help: "Entries successfully written.",
		}),
		entriesRead: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "airkv_entries_read_total",
			Help: "Entries returned by Get.",
		}),
		tailRotations: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "airkv_tail_rotations_total",
			Help: "Number of times this client installed a new tail.",
		}),
		lockAcquisitions: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "airkv_lock_acquisitions_total",
			Help: "Pessimistic lock acquisition attempts, by result.",
		}, []string{"result"}),
		optimisticResults: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "airkv_optimistic_commit_total",
			Help: "Optimistic compaction commit attempts, by result.",
		}, []string{"result"}),
		compactionRuns: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "airkv_compaction_runs_total",
			Help: "Number of compaction tasks executed by this client.",
		}),
		lastCompactionSegs: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "airkv_last_compaction_source_segments",
			Help: "Number of source segments folded by the most recent compaction.",
		}),
		criticalSectionLatency: hdrhistogram.New(1, 60_000_000, 3),
	}
}

func (m *storeMetrics) recordCriticalSection(micros int64) {
	_ = m.criticalSectionLatency.RecordValue(micros)
}
