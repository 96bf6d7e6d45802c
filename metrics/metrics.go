// Package metrics exposes process-wide Prometheus instrumentation for
// the Data Server (SPEC_FULL.md §5.1). It is additive: nothing here is
// part of the wire protocol, and none of it is persisted.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// squashSource is satisfied by *dataset.Registry. Declared locally to
// avoid metrics importing dataset just for a single method signature;
// dataset does not (and must not) import metrics back.
type squashSource interface {
	TotalSquashed() float64
}

// Metrics bundles the server's counters/gauges on a private registry so
// more than one Server can run in the same test binary without
// colliding on prometheus.DefaultRegisterer.
type Metrics struct {
	Registry *prometheus.Registry

	SourcesActive  *prometheus.GaugeVec
	SinksActive    *prometheus.GaugeVec
	SquashTotal    prometheus.CounterFunc
	DiffFallback   prometheus.Counter
	FramesSent     prometheus.Counter
	FramesReceived prometheus.Counter
}

// New wires a Metrics bundle against reg, whose TotalSquashed method
// backs the datasrv_squash_total counter (squash counts live on each
// sink's queue, not centrally, so that metric is computed on scrape
// rather than incremented inline on the hot fan-out path).
func New(reg squashSource) *Metrics {
	preg := prometheus.NewRegistry()
	m := &Metrics{
		Registry: preg,
		SourcesActive: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "datasrv_sources_active",
			Help: "Number of datasets currently holding an active source (0 or 1 per dataset).",
		}, []string{"dataset"}),
		SinksActive: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "datasrv_sinks_active",
			Help: "Number of currently connected sinks, per dataset.",
		}, []string{"dataset"}),
		SquashTotal: prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "datasrv_squash_total",
			Help: "Cumulative number of pending items dropped when a sink queue overflowed and was squashed.",
		}, reg.TotalSquashed),
		DiffFallback: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "datasrv_diff_fallback_total",
			Help: "Cumulative number of times a sink send fell back to PICKLE after a failed or unprofitable diff.",
		}),
		FramesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "datasrv_frames_sent_total",
			Help: "Cumulative number of frames sent to sinks (excluding keepalives).",
		}),
		FramesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "datasrv_frames_received_total",
			Help: "Cumulative number of non-keepalive frames received from sources.",
		}),
	}
	preg.MustRegister(m.SourcesActive, m.SinksActive, m.SquashTotal, m.DiffFallback, m.FramesSent, m.FramesReceived)
	return m
}
