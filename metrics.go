package distributor

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	metricsWorkersLaunched = "fanfactor_workers_launched_total"
	metricsWorkersRetired  = "fanfactor_workers_retired_total"
	metricsFactorsFound    = "fanfactor_factors_found_total"
	metricsWaitTimeouts    = "fanfactor_wait_timeouts_total"
	metricsRunDuration     = "fanfactor_run_duration_microseconds"
)

type metricsRecorder struct {
	workersLaunched metric.Int64Counter
	workersRetired  metric.Int64Counter
	factorsFound    metric.Int64Counter
	waitTimeouts    metric.Int64Counter
	runDuration     metric.Int64Histogram
}

func newMetricsRecorder(mp metric.MeterProvider, label string) (*metricsRecorder, error) {
	meter := mp.Meter("fanfactor", metric.WithInstrumentationAttributes(
		attribute.String("label", label),
	))

	workersLaunched, err := meter.Int64Counter(
		metricsWorkersLaunched,
		metric.WithDescription("Total number of workers launched"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	workersRetired, err := meter.Int64Counter(
		metricsWorkersRetired,
		metric.WithDescription("Total number of workers that reported completion and were joined"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	factorsFound, err := meter.Int64Counter(
		metricsFactorsFound,
		metric.WithDescription("Total number of prime factors reported by workers"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	waitTimeouts, err := meter.Int64Counter(
		metricsWaitTimeouts,
		metric.WithDescription("Total number of readiness waits that timed out"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	runDuration, err := meter.Int64Histogram(
		metricsRunDuration,
		metric.WithDescription("Time taken to distribute and collect a candidate"),
		metric.WithUnit("μs"),
	)
	if err != nil {
		return nil, err
	}

	return &metricsRecorder{
		workersLaunched: workersLaunched,
		workersRetired:  workersRetired,
		factorsFound:    factorsFound,
		waitTimeouts:    waitTimeouts,
		runDuration:     runDuration,
	}, nil
}

func (m *metricsRecorder) recordWorkerLaunched(ctx context.Context, chunkIdx int) {
	if m == nil {
		return
	}

	m.workersLaunched.Add(
		ctx,
		1,
		metric.WithAttributes(
			attribute.String("chunk_idx", fmt.Sprintf("%d", chunkIdx)),
		),
	)
}

func (m *metricsRecorder) recordWorkerRetired(ctx context.Context, chunkIdx int) {
	if m == nil {
		return
	}

	m.workersRetired.Add(
		ctx,
		1,
		metric.WithAttributes(
			attribute.String("chunk_idx", fmt.Sprintf("%d", chunkIdx)),
		),
	)
}

func (m *metricsRecorder) recordFactorFound(ctx context.Context, chunkIdx int) {
	if m == nil {
		return
	}

	m.factorsFound.Add(
		ctx,
		1,
		metric.WithAttributes(
			attribute.String("chunk_idx", fmt.Sprintf("%d", chunkIdx)),
		),
	)
}

func (m *metricsRecorder) recordWaitTimeout(ctx context.Context) {
	if m == nil {
		return
	}

	m.waitTimeouts.Add(ctx, 1)
}

func (m *metricsRecorder) recordRunDuration(ctx context.Context, result string, duration time.Duration) {
	if m == nil {
		return
	}

	m.runDuration.Record(
		ctx,
		duration.Microseconds(),
		metric.WithAttributes(
			attribute.String("result", result),
		),
	)
}
