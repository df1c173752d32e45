// ABOUTME: Tests for the metrics collectors
// ABOUTME: Gathers from a private registry and checks recorded values

package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// counterValue finds a counter sample by metric name and label value.
func counterValue(t *testing.T, reg *prometheus.Registry, name, label string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if lp.GetValue() == label {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func TestCollectors_Observe(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := New(reg)

	c.ObserveTurn("completed", 150*time.Millisecond)
	c.ObserveTurn("completed", 10*time.Millisecond)
	c.ObserveTurn("cancelled", time.Second)
	c.ObserveEvent("message")
	c.ObserveDrop("no_active_message")
	c.ObserveSnapshot()

	assert.Equal(t, 2.0, counterValue(t, reg, "turnstream_turns_total", "completed"))
	assert.Equal(t, 1.0, counterValue(t, reg, "turnstream_turns_total", "cancelled"))
	assert.Equal(t, 1.0, counterValue(t, reg, "turnstream_events_total", "message"))
	assert.Equal(t, 1.0, counterValue(t, reg, "turnstream_events_dropped_total", "no_active_message"))
}

func TestCollectors_NilIsNoop(t *testing.T) {
	var c *Collectors
	assert.NotPanics(t, func() {
		c.ObserveTurn("failed", time.Second)
		c.ObserveEvent("message")
		c.ObserveDrop("x")
		c.ObserveSnapshot()
	})
}

func TestNew_NilRegistererSkipsRegistration(t *testing.T) {
	assert.NotPanics(t, func() {
		New(nil)
		New(nil)
	})
}
