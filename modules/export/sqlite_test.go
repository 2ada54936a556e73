package export

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kathiravelulab/atlastrace/modules/metrics"
)

func f64(v float64) *float64 { return &v }
func i(v int) *int           { return &v }

func newExporter(t *testing.T) *SQLiteExporter {
	t.Helper()
	exporter := NewSQLiteExporter(filepath.Join(t.TempDir(), "metrics.db"))
	require.NoError(t, exporter.Init())
	t.Cleanup(func() { exporter.Close() })
	return exporter
}

func TestSQLiteExporterWriteProbeMetrics(t *testing.T) {
	exporter := newExporter(t)

	record := metrics.ProbeMetrics{
		ProbeID:        101,
		Country:        "Germany",
		Continent:      "Europe",
		Rounds:         3,
		MeanFinalHop:   f64(17.0 / 3.0),
		MedianFinalHop: f64(5),
		Reachability:   f64(1),
		DistinctPaths:  i(2),
		PathChanges:    i(2),
		HopRTT: []metrics.HopStats{
			{HopIndex: 1, Samples: 3, Min: 3.9, Median: 4.1, Max: 4.3},
			{HopIndex: 2, Samples: 2, Min: 21.5, Median: 21.75, Max: 22.0},
		},
	}
	require.NoError(t, exporter.WriteProbeMetrics(record))

	var fetched ProbeMetricRecord
	require.NoError(t, exporter.db.First(&fetched, "probe_id = ?", 101).Error)
	assert.Equal(t, "Germany", fetched.Country)
	require.NotNil(t, fetched.Reachability)
	assert.Equal(t, 1.0, *fetched.Reachability)
	require.NotNil(t, fetched.MedianFinalHop)
	assert.Equal(t, 5.0, *fetched.MedianFinalHop)

	var hops []HopStatRecord
	require.NoError(t, exporter.db.Where("probe_id = ?", 101).Order("hop_index").Find(&hops).Error)
	require.Len(t, hops, 2)
	assert.Equal(t, 21.75, hops[1].MedianRTT)
}

func TestSQLiteExporterNullMetrics(t *testing.T) {
	exporter := newExporter(t)

	// Zero-round probe: every derived metric is null.
	require.NoError(t, exporter.WriteProbeMetrics(metrics.ProbeMetrics{
		ProbeID:   303,
		Country:   "Chile",
		Continent: "South America",
	}))

	var fetched ProbeMetricRecord
	require.NoError(t, exporter.db.First(&fetched, "probe_id = ?", 303).Error)
	assert.Equal(t, 0, fetched.Rounds)
	assert.Nil(t, fetched.Reachability)
	assert.Nil(t, fetched.MeanFinalHop)
	assert.Nil(t, fetched.PathChanges)
}

func TestSQLiteExporterWriteSummary(t *testing.T) {
	exporter := newExporter(t)

	require.NoError(t, exporter.WriteSummary(metrics.Summary{
		Probes:           20,
		ProbesWithRounds: 18,
		TotalRounds:      540,
		MeanReachability: f64(0.93),
		MeanPathChanges:  f64(1.4),
	}))

	var fetched SummaryRecord
	require.NoError(t, exporter.db.First(&fetched).Error)
	assert.Equal(t, 540, fetched.TotalRounds)
	require.NotNil(t, fetched.MeanReachability)
	assert.InDelta(t, 0.93, *fetched.MeanReachability, 1e-9)
}
