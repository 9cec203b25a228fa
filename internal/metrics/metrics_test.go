package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// gathered returns the value of the counter or gauge series matching labels.
func gathered(t *testing.T, m *Metrics, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := m.Registry().Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
	series:
		for _, s := range mf.GetMetric() {
			for _, lp := range s.GetLabel() {
				if labels[lp.GetName()] != lp.GetValue() {
					continue series
				}
			}
			if c := s.GetCounter(); c != nil {
				return c.GetValue()
			}
			return s.GetGauge().GetValue()
		}
	}
	t.Fatalf("no series %s%v", name, labels)
	return 0
}

func TestCounters(t *testing.T) {
	m := New()
	m.AnalysesReduced(20)
	m.AnalysesReduced(4)
	m.Diagnostic("r46_deviation")
	m.Diagnostic("r46_deviation")
	m.Diagnostic("single_replicate")
	m.Run("joint", StatusOK)

	assert.Equal(t, 24.0, gathered(t, m, "d47crunch_analyses_reduced_total", nil))
	assert.Equal(t, 2.0, gathered(t, m, "d47crunch_diagnostics_total", map[string]string{"kind": "r46_deviation"}))
	assert.Equal(t, 1.0, gathered(t, m, "d47crunch_diagnostics_total", map[string]string{"kind": "single_replicate"}))
	assert.Equal(t, 1.0, gathered(t, m, "d47crunch_runs_total", map[string]string{"method": "joint", "status": StatusOK}))
}

func TestFitGauges(t *testing.T) {
	m := New()
	m.Fit(7, 1.5)
	m.Fit(3, 0.9)
	assert.Equal(t, 3.0, gathered(t, m, "d47crunch_fit_iterations", nil))
	assert.Equal(t, 0.9, gathered(t, m, "d47crunch_fit_reduced_chisq", nil))
}

func TestWriteTextfile(t *testing.T) {
	m := New()
	m.AnalysesReduced(3)
	m.ObserveStep("Crunch", 25*time.Millisecond)

	path := filepath.Join(t.TempDir(), "d47crunch.prom")
	require.NoError(t, m.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(data)
	assert.True(t, strings.Contains(text, "d47crunch_analyses_reduced_total 3"))
	assert.True(t, strings.Contains(text, `d47crunch_step_duration_seconds_count{step="Crunch"} 1`))
}

func TestWriteTextfileBadPath(t *testing.T) {
	m := New()
	err := m.WriteTextfile(filepath.Join(t.TempDir(), "missing", "x.prom"))
	require.Error(t, err)
}
