package jobmetrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func gathered(t *testing.T, reg *prometheus.Registry) map[string]float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	out := map[string]float64{}
	for _, mf := range families {
		for _, metric := range mf.GetMetric() {
			key := mf.GetName()
			for _, label := range metric.GetLabel() {
				key += "|" + label.GetValue()
			}
			if c := metric.GetCounter(); c != nil {
				out[key] = c.GetValue()
			}
		}
	}
	return out
}

func TestTrackerRecordsOutcome(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	require.NoError(t, m.Track("report_export").End(nil))
	boom := errors.New("boom")
	require.ErrorIs(t, m.Track("report_export").End(boom), boom)
	m.AddPurged(3)
	m.AddPurged(-1)

	values := gathered(t, reg)
	require.Equal(t, 1.0, values["falco_jobs_total|report_export|success"])
	require.Equal(t, 1.0, values["falco_jobs_total|report_export|failure"])
	require.Equal(t, 1.0, values["falco_jobs_failures_total|report_export"])
	require.Equal(t, 3.0, values["falco_report_exports_purged_total"])
}

func TestNilMetricsTracker(t *testing.T) {
	var m *Metrics
	boom := errors.New("boom")
	require.ErrorIs(t, m.Track("x").End(boom), boom)
	m.AddPurged(1)
}
