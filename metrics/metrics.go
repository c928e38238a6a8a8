// Package metrics holds the Prometheus collectors of the engine.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "padel"

type Metrics struct {
	AgendaDecisions  *prometheus.CounterVec
	ScheduledMatches prometheus.Counter
	SkippedMatches   *prometheus.CounterVec
	VersionConflicts *prometheus.CounterVec
	ScheduleDuration prometheus.Histogram
	PairingsExpired  prometheus.Counter
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		AgendaDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "agenda_decisions_total",
			Help:      "Conflict engine decisions by reason.",
		}, []string{"reason"}),
		ScheduledMatches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "autoschedule_placed_total",
			Help:      "Matches placed by committed auto-schedule runs.",
		}),
		SkippedMatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "autoschedule_skipped_total",
			Help:      "Matches the auto-scheduler could not place, by reason.",
		}, []string{"reason"}),
		VersionConflicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "version_conflicts_total",
			Help:      "Optimistic concurrency failures by entity.",
		}, []string{"entity"}),
		ScheduleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "autoschedule_duration_seconds",
			Help:      "Wall time of an auto-schedule run, snapshot load included.",
			Buckets:   prometheus.DefBuckets,
		}),
		PairingsExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pairings_expired_total",
			Help:      "Pairings cancelled by the sweeper.",
		}),
	}
	reg.MustRegister(
		m.AgendaDecisions,
		m.ScheduledMatches,
		m.SkippedMatches,
		m.VersionConflicts,
		m.ScheduleDuration,
		m.PairingsExpired,
	)
	return m
}

// NewRegistry returns a registry preloaded with the Go runtime and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}
