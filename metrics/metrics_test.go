package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.FragmentLoaded("local", 10)
		m.FragmentSkipped("remote")
		m.ResolutionFailed("include", "not_found")
		m.ObserveResolution(time.Second)
		m.RemoteRequest("ok")
		m.InterpolationUser()
	})
}

func TestRecording(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.FragmentLoaded("local", 512)
	m.FragmentLoaded("local", 128)
	m.FragmentLoaded("remote", 64)
	m.FragmentSkipped("template")
	m.ResolutionFailed("include", "not_found")
	m.RemoteRequest("timeout")
	m.InterpolationUser()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.FragmentsLoaded.WithLabelValues("local")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FragmentsLoaded.WithLabelValues("remote")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FragmentsSkipped.WithLabelValues("template")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ResolutionErrors.WithLabelValues("include", "not_found")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RemoteRequests.WithLabelValues("timeout")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.InterpolationUsers))

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "ciconf_fragments_loaded_total")
	assert.Contains(t, names, "ciconf_fragment_size_bytes")
}

func TestNewWithoutRegistry(t *testing.T) {
	m := New(nil)
	m.ObserveResolution(10 * time.Millisecond)
	assert.Equal(t, 1, testutil.CollectAndCount(m.ResolutionDuration))
}
