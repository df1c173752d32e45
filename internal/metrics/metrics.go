// ABOUTME: Prometheus collectors for turns, stream events and dropped events
// ABOUTME: Nil-safe observation helpers so components can run without metrics

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "turnstream"

// Collectors groups the metrics recorded by the turn processor.
type Collectors struct {
	Turns        *prometheus.CounterVec
	TurnDuration *prometheus.HistogramVec
	Events       *prometheus.CounterVec
	Dropped      *prometheus.CounterVec
	Snapshots    prometheus.Counter
}

// New creates the collectors and registers them on reg. A nil reg leaves
// them unregistered.
func New(reg prometheus.Registerer) *Collectors {
	c := &Collectors{
		Turns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "turns_total",
				Help:      "Turns settled, by outcome",
			},
			[]string{"outcome"},
		),
		TurnDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "turn_duration_seconds",
				Help:      "Wall time from turn start to settlement",
				Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
			},
			[]string{"outcome"},
		),
		Events: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_total",
				Help:      "Stream events pulled, by type",
			},
			[]string{"type"},
		),
		Dropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_dropped_total",
				Help:      "Stream events ignored by the processor, by reason",
			},
			[]string{"reason"},
		),
		Snapshots: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "workflow_snapshots_total",
				Help:      "Workflow snapshots applied to the store",
			},
		),
	}
	if reg != nil {
		reg.MustRegister(c.Turns, c.TurnDuration, c.Events, c.Dropped, c.Snapshots)
	}
	return c
}

// ObserveTurn records a settled turn.
func (c *Collectors) ObserveTurn(outcome string, d time.Duration) {
	if c == nil {
		return
	}
	c.Turns.WithLabelValues(outcome).Inc()
	c.TurnDuration.WithLabelValues(outcome).Observe(d.Seconds())
}

// ObserveEvent records one pulled event.
func (c *Collectors) ObserveEvent(eventType string) {
	if c == nil {
		return
	}
	c.Events.WithLabelValues(eventType).Inc()
}

// ObserveDrop records an ignored event.
func (c *Collectors) ObserveDrop(reason string) {
	if c == nil {
		return
	}
	c.Dropped.WithLabelValues(reason).Inc()
}

// ObserveSnapshot records one workflow snapshot.
func (c *Collectors) ObserveSnapshot() {
	if c == nil {
		return
	}
	c.Snapshots.Inc()
}
