package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.TransitionsStored(5, 2)
	c.BatchSampled(4, 3*time.Millisecond)
	c.PrioritiesUpdated(4)
	c.RequestFailed("Sample")
	c.RequestFailed("Sample")
	c.BufferState(3, 2.5, 0.41)

	assert.Equal(t, 5.0, testutil.ToFloat64(c.stored))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.evicted))
	assert.Equal(t, 4.0, testutil.ToFloat64(c.sampled))
	assert.Equal(t, 4.0, testutil.ToFloat64(c.updated))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.requestErrors.WithLabelValues("Sample")))
	assert.Equal(t, 3.0, testutil.ToFloat64(c.size))
	assert.Equal(t, 2.5, testutil.ToFloat64(c.totalPriority))
	assert.Equal(t, 0.41, testutil.ToFloat64(c.beta))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.Len(t, families, 9)
}

func TestCollector_DuplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewCollector(reg)
	assert.Panics(t, func() { NewCollector(reg) })
}
