// Package httpapi exposes a small read-only HTTP surface for observing a
// running store: its current tail and tree shape, and a standard
// Prometheus metrics endpoint. It is not a control surface — nothing here
// can mutate the store.
package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// StatusSource is the read-only slice of Store state the /status handler
// needs; the root package implements it without httpapi needing to import
// the root package back.
type StatusSource interface {
	Status() Status
}

// Status summarizes a store's current shape for the /status endpoint.
type Status struct {
	ClientID   uint32 `json:"client_id"`
	TailID     string `json:"tail_id"`
	LevelCount int    `json:"level_count"`
	LevelSizes []int  `json:"level_sizes"`
}

// NewRouter builds the debug HTTP surface. gatherer is typically the same
// prometheus.Registerer passed to airkv.Options, upcast to a Gatherer.
func NewRouter(source StatusSource, gatherer prometheus.Gatherer) *mux.Router {
	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	r.HandleFunc("/status", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(source.Status())
	}).Methods(http.MethodGet)
	return r
}
