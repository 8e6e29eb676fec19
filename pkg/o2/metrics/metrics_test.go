package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_CounterAccumulatesIncrements(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := New(reg, "@00000000:0100007f:1000")

	r.MessagesDispatched.Inc()
	r.MessagesDispatched.Inc()

	var m dto.Metric
	require.NoError(t, r.MessagesDispatched.Write(&m))
	assert.Equal(t, 2.0, m.GetCounter().GetValue())
}

func TestRegistry_GaugesAreSettable(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := New(reg, "@00000000:0100007f:1000")
	r.ClockSynced.Set(1)

	var m dto.Metric
	require.NoError(t, r.ClockSynced.Write(&m))
	assert.Equal(t, 1.0, m.GetGauge().GetValue())
}
