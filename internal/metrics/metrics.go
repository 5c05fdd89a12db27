// Package metrics exposes download counters in the Prometheus format.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/NamanBalaji/wsdl/internal/common"
)

const namespace = "wsdl"

type Metrics struct {
	started  prometheus.Counter
	finished *prometheus.CounterVec
	bytes    prometheus.Counter
	active   prometheus.Gauge
	gatherer prometheus.Gatherer
}

// New registers the collectors on reg. A nil reg gets a private registry.
func New(reg *prometheus.Registry) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	m := &Metrics{
		started: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "downloads_started_total",
			Help:      "Download requests accepted.",
		}),
		finished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "downloads_finished_total",
			Help:      "Downloads that reached a terminal status.",
		}, []string{"status"}),
		bytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "downloaded_bytes_total",
			Help:      "Bytes written to disk.",
		}),
		active: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "downloads_active",
			Help:      "Downloads currently streaming.",
		}),
		gatherer: reg,
	}

	for _, c := range []prometheus.Collector{m.started, m.finished, m.bytes, m.active} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}

	// pre-create both label values so they export as zero
	m.finished.WithLabelValues(string(common.StatusCompleted))
	m.finished.WithLabelValues(string(common.StatusFailed))

	return m, nil
}

func (m *Metrics) Started() { m.started.Inc() }

func (m *Metrics) Running(delta int) { m.active.Add(float64(delta)) }

func (m *Metrics) Finished(status common.Status) {
	m.finished.WithLabelValues(string(status)).Inc()
}

func (m *Metrics) AddBytes(n int) { m.bytes.Add(float64(n)) }

// Handler serves the registry in the exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
