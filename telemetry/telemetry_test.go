package telemetry

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withRegistry(t *testing.T, r *prometheus.Registry) {
	t.Helper()
	saved := registry
	registry = r
	t.Cleanup(func() { registry = saved })
}

func TestHistogramVec_NoopWithoutRegistry(t *testing.T) {
	withRegistry(t, nil)

	vec := NewHistogramVec("stage_seconds", "stage timing", []string{"stage"}, StartupBuckets)
	assert.IsType(t, noopHistogramVec{}, vec)
	assert.NotPanics(t, func() { vec.With("SYNCING_UP").Observe(1) })
}

func TestHistogramVec_ObservesPerLabel(t *testing.T) {
	withRegistry(t, prometheus.NewRegistry())

	vec := NewHistogramVec("stage_seconds", "stage timing", []string{"stage"}, StartupBuckets)
	vec.With("SYNCING_UP").Observe(0.2)
	vec.With("SYNCING_UP").Observe(0.3)
	vec.With("OPEN_FOR_TRAFFIC").Observe(0.01)

	families, err := registry.Gather()
	require.NoError(t, err)
	require.Len(t, families, 1)
	assert.Equal(t, "regnode_v1_stage_seconds", families[0].GetName())

	counts := map[string]uint64{}
	for _, m := range families[0].GetMetric() {
		for _, l := range m.GetLabel() {
			if l.GetName() == "stage" {
				counts[l.GetValue()] = m.GetHistogram().GetSampleCount()
			}
		}
	}
	assert.Equal(t, map[string]uint64{"SYNCING_UP": 2, "OPEN_FOR_TRAFFIC": 1}, counts)
}
