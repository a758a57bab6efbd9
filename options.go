package airkv

import (
	"fmt"

	"github.com/airkv-project/airkv/compaction"
	units "github.com/docker/go-units"
	"github.com/go-kit/log"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"
	"gopkg.in/yaml.v3"
)

// Backend names which storage.Adaptor implementation a Store should open.
type Backend string

const (
	BackendLocal Backend = "local"
	BackendFake  Backend = "fake"
	BackendS3    Backend = "s3"
)

// Options configures a Store. The zero value is not directly usable; use
// DefaultOptions and override fields, or Open with a populated Options.
type Options struct {
	HomeDir      string
	Backend      Backend
	BackendProps map[string]string

	// SegBlockNumLimit is the committed-block count at which a tail is
	// rotated even though it has not hit a hard storage error.
	SegBlockNumLimit uint16
	CompressLn       bool
	CompactionConfig compaction.Config

	Logger         log.Logger
	Registerer     prometheus.Registerer
	TracerProvider trace.TracerProvider
}

// DefaultOptions returns an Options with sensible, non-nil defaults for
// every field a caller doesn't set explicitly.
func DefaultOptions(homeDir string) Options {
	return Options{
		HomeDir:          homeDir,
		Backend:          BackendLocal,
		SegBlockNumLimit: 50000,
		CompactionConfig: compaction.DefaultConfig(),
		Logger:           log.NewNopLogger(),
		Registerer:       prometheus.NewRegistry(),
	}
}

// rawOptions mirrors the subset of Options that can be loaded from a
// config file, using human-friendly value encodings (byte-size suffixes
// for limits expressed as sizes).
type rawOptions struct {
	HomeDir          string            `yaml:"home_dir"`
	Backend          string            `yaml:"backend"`
	BackendProps     map[string]string `yaml:"backend_props"`
	SegBlockNumLimit string            `yaml:"seg_block_num_limit"`
	CompressLn       bool              `yaml:"compress_ln"`
}

// LoadOptionsYAML parses a YAML configuration document into an Options,
// layered on top of DefaultOptions so any field the document omits keeps
// its default.
func LoadOptionsYAML(data []byte) (Options, error) {
	var raw rawOptions
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return Options{}, fmt.Errorf("airkv: parsing config: %w", err)
	}
	opts := DefaultOptions(raw.HomeDir)
	if raw.Backend != "" {
		opts.Backend = Backend(raw.Backend)
	}
	if raw.BackendProps != nil {
		opts.BackendProps = raw.BackendProps
	}
	opts.CompressLn = raw.CompressLn
	if raw.SegBlockNumLimit != "" {
		n, err := units.RAMInBytes(raw.SegBlockNumLimit)
		if err != nil {
			return Options{}, fmt.Errorf("airkv: parsing seg_block_num_limit: %w", err)
		}
		if n <= 0 || n > 0xFFFF {
			return Options{}, configErrorf("seg_block_num_limit %d out of range", n)
		}
		opts.SegBlockNumLimit = uint16(n)
	}
	return opts, nil
}

func (o Options) validate() error {
	if o.HomeDir == "" {
		return configErrorf("home directory must be set")
	}
	switch o.Backend {
	case BackendLocal, BackendFake, BackendS3:
	default:
		return configErrorf("unknown backend %q", o.Backend)
	}
	if o.Backend == BackendS3 && (o.BackendProps == nil || o.BackendProps["bucket"] == "") {
		return configErrorf("s3 backend requires a \"bucket\" property")
	}
	return nil
}
