// Package metrics provides process-wide meters behind a pluggable service.
// It defaults to a no-op implementation; InitializePrometheusMetrics switches
// the process to Prometheus-backed meters.
package metrics

import (
	"net/http"
)

var service Metrics = noopMetrics{}

// Metrics is the meter factory implemented by the backends.
type Metrics interface {
	GetOrCreateCountMeter(name string) CountMeter
	GetOrCreateGaugeMeter(name string) GaugeMeter
	GetOrCreateHistogramMeter(name string, buckets []float64) HistogramMeter
	GetOrCreateHandler() http.Handler
}

// CountMeter is a monotonically increasing counter.
type CountMeter interface {
	Add(int64)
}

// GaugeMeter is a value that can move both ways.
type GaugeMeter interface {
	Add(int64)
	Set(int64)
}

// HistogramMeter aggregates observations into buckets.
type HistogramMeter interface {
	Observe(float64)
}

func Counter(name string) CountMeter { return service.GetOrCreateCountMeter(name) }

func Gauge(name string) GaugeMeter { return service.GetOrCreateGaugeMeter(name) }

func Histogram(name string, buckets []float64) HistogramMeter {
	return service.GetOrCreateHistogramMeter(name, buckets)
}

// HTTPHandler returns the handler serving the metrics endpoint.
func HTTPHandler() http.Handler { return service.GetOrCreateHandler() }

type noopMetrics struct{}

type noopMeter struct{}

func (noopMeter) Add(int64)       {}
func (noopMeter) Set(int64)       {}
func (noopMeter) Observe(float64) {}

func (noopMetrics) GetOrCreateCountMeter(string) CountMeter { return noopMeter{} }

func (noopMetrics) GetOrCreateGaugeMeter(string) GaugeMeter { return noopMeter{} }

func (noopMetrics) GetOrCreateHistogramMeter(string, []float64) HistogramMeter { return noopMeter{} }

func (noopMetrics) GetOrCreateHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotImplemented)
	})
}
