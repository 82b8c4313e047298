package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "ledger"

// InitializePrometheusMetrics switches the process to Prometheus meters.
// Calling it twice is a no-op.
func InitializePrometheusMetrics() {
	if _, ok := service.(*prometheusMetrics); !ok {
		service = &prometheusMetrics{}
	}
}

type prometheusMetrics struct {
	counters   sync.Map
	gauges     sync.Map
	histograms sync.Map
}

func (p *prometheusMetrics) GetOrCreateCountMeter(name string) CountMeter {
	if m, ok := p.counters.Load(name); ok {
		return m.(CountMeter)
	}
	c := prometheus.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: name})
	if err := prometheus.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			c = are.ExistingCollector.(prometheus.Counter)
		}
	}
	meter := &promCounter{c}
	p.counters.Store(name, meter)
	return meter
}

func (p *prometheusMetrics) GetOrCreateGaugeMeter(name string) GaugeMeter {
	if m, ok := p.gauges.Load(name); ok {
		return m.(GaugeMeter)
	}
	g := prometheus.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: name})
	if err := prometheus.Register(g); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			g = are.ExistingCollector.(prometheus.Gauge)
		}
	}
	meter := &promGauge{g}
	p.gauges.Store(name, meter)
	return meter
}

func (p *prometheusMetrics) GetOrCreateHistogramMeter(name string, buckets []float64) HistogramMeter {
	if m, ok := p.histograms.Load(name); ok {
		return m.(HistogramMeter)
	}
	h := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      name,
		Buckets:   buckets,
	})
	if err := prometheus.Register(h); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			h = are.ExistingCollector.(prometheus.Histogram)
		}
	}
	meter := &promHistogram{h}
	p.histograms.Store(name, meter)
	return meter
}

func (p *prometheusMetrics) GetOrCreateHandler() http.Handler {
	return promhttp.Handler()
}

type promCounter struct {
	c prometheus.Counter
}

func (m *promCounter) Add(v int64) { m.c.Add(float64(v)) }

type promGauge struct {
	g prometheus.Gauge
}

func (m *promGauge) Add(v int64) { m.g.Add(float64(v)) }
func (m *promGauge) Set(v int64) { m.g.Set(float64(v)) }

type promHistogram struct {
	h prometheus.Histogram
}

func (m *promHistogram) Observe(v float64) { m.h.Observe(v) }
