// Package metrics exposes Prometheus collectors for loopbox.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "loopbox"

// Status label values.
const (
	StatusOK    = "ok"
	StatusError = "error"
	StatusMiss  = "miss"
	StatusHit   = "hit"
)

// Metrics holds the collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	LoopLoads       *prometheus.CounterVec
	LoopSaves       *prometheus.CounterVec
	CacheLookups    *prometheus.CounterVec
	RecentTrackAdds *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	LoopFires       prometheus.Counter
}

// New creates the collectors on a private registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		LoopLoads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "loop_loads_total",
				Help:      "Total number of loop record loads",
			},
			[]string{"status"},
		),
		LoopSaves: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "loop_saves_total",
				Help:      "Total number of loop record saves",
			},
			[]string{"status"},
		),
		CacheLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "loop_cache_lookups_total",
				Help:      "Loop cache lookups by result",
			},
			[]string{"result"},
		),
		RecentTrackAdds: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "recent_track_adds_total",
				Help:      "Total number of recent track updates",
			},
			[]string{"status"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "request_duration_seconds",
				Help:      "API request duration",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"transport", "route", "code"},
		),
		LoopFires: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "loop_repetitions_total",
				Help:      "Number of times playback was sent back to a loop start",
			},
		),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.LoopLoads,
		m.LoopSaves,
		m.CacheLookups,
		m.RecentTrackAdds,
		m.RequestDuration,
		m.LoopFires,
	)
	return m
}

// Registry returns the registry the collectors are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveLoad counts a loop load.
func (m *Metrics) ObserveLoad(err error) {
	if m == nil {
		return
	}
	m.LoopLoads.WithLabelValues(status(err)).Inc()
}

// ObserveSave counts a loop save.
func (m *Metrics) ObserveSave(err error) {
	if m == nil {
		return
	}
	m.LoopSaves.WithLabelValues(status(err)).Inc()
}

// ObserveCache counts a cache lookup.
func (m *Metrics) ObserveCache(hit bool) {
	if m == nil {
		return
	}
	result := StatusMiss
	if hit {
		result = StatusHit
	}
	m.CacheLookups.WithLabelValues(result).Inc()
}

// ObserveRecentAdd counts a recent track update.
func (m *Metrics) ObserveRecentAdd(err error) {
	if m == nil {
		return
	}
	m.RecentTrackAdds.WithLabelValues(status(err)).Inc()
}

// ObserveRequest records the duration of an API request.
func (m *Metrics) ObserveRequest(transport, route, code string, d time.Duration) {
	if m == nil {
		return
	}
	m.RequestDuration.WithLabelValues(transport, route, code).Observe(d.Seconds())
}

// ObserveFire counts one loop repetition.
func (m *Metrics) ObserveFire() {
	if m == nil {
		return
	}
	m.LoopFires.Inc()
}

func status(err error) string {
	if err != nil {
		return StatusError
	}
	return StatusOK
}
