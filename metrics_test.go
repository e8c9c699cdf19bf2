package distributor_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	distributor "github.com/l0rem1psum/fanfactor"
)

func collectMetrics(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Aggregation {
	t.Helper()

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	byName := map[string]metricdata.Aggregation{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			byName[m.Name] = m.Data
		}
	}
	return byName
}

func sumOf(t *testing.T, data metricdata.Aggregation) int64 {
	t.Helper()

	sum, ok := data.(metricdata.Sum[int64])
	require.True(t, ok, "aggregation is %T", data)

	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	return total
}

func TestDistributor_Metrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	d := distributor.New(
		distributor.WithMeterProvider(mp),
		distributor.WithLabel("metrics-test"),
		distributor.WithChunkSize(1),
	)

	// 30 has the prime table [2 3 5 7 11 13].
	_, err := d.Factor(30, nil)
	require.NoError(t, err)

	metrics := collectMetrics(t, reader)
	require.Contains(t, metrics, "fanfactor_workers_launched_total")
	assert.Equal(t, int64(6), sumOf(t, metrics["fanfactor_workers_launched_total"]))
	assert.Equal(t, int64(6), sumOf(t, metrics["fanfactor_workers_retired_total"]))
	assert.Equal(t, int64(3), sumOf(t, metrics["fanfactor_factors_found_total"]))

	hist, ok := metrics["fanfactor_run_duration_microseconds"].(metricdata.Histogram[int64])
	require.True(t, ok)
	require.Len(t, hist.DataPoints, 1)
	assert.Equal(t, uint64(1), hist.DataPoints[0].Count)
	result, ok := hist.DataPoints[0].Attributes.Value("result")
	require.True(t, ok)
	assert.Equal(t, "success", result.AsString())
}

func TestDistributor_MetricsRecordFailure(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	launcher := newScriptedLauncher(map[int][]string{0: {"x\n"}})
	d := distributor.New(
		distributor.WithMeterProvider(mp),
		distributor.WithLauncher(launcher),
	)

	_, err := d.Factor(12, nil)
	require.ErrorIs(t, err, distributor.ErrMalformedMessage)

	metrics := collectMetrics(t, reader)
	hist, ok := metrics["fanfactor_run_duration_microseconds"].(metricdata.Histogram[int64])
	require.True(t, ok)
	require.Len(t, hist.DataPoints, 1)
	result, ok := hist.DataPoints[0].Attributes.Value("result")
	require.True(t, ok)
	assert.Equal(t, "failure", result.AsString())
}
