package distributor

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/hashicorp/go-multierror"
)

// collector is the single coordinator loop. Everything it holds is owned by the goroutine
// running collect, so none of it is synchronised.
type collector struct {
	workers      []*Worker
	buffers      []lineBuffer
	retired      []bool
	active       int
	factors      []int
	waitCycles   int
	pollInterval time.Duration

	mux      multiplexer
	reporter Reporter
	logger   *slog.Logger
	metrics  *metricsRecorder
}

func newCollector(
	workers []*Worker,
	config config,
	reporter Reporter,
	logger *slog.Logger,
	metrics *metricsRecorder,
) *collector {
	outputs := make([]<-chan []byte, len(workers))
	for i, w := range workers {
		outputs[i] = w.Output()
	}

	var mux multiplexer
	if config.useFanIn {
		mux = newFanInMultiplexer(outputs...)
	} else {
		mux = newSelectMultiplexer(outputs...)
	}

	return &collector{
		workers:      workers,
		buffers:      make([]lineBuffer, len(workers)),
		retired:      make([]bool, len(workers)),
		active:       len(workers),
		factors:      []int{},
		pollInterval: config.pollInterval,
		mux:          mux,
		reporter:     reporter,
		logger:       logger,
		metrics:      metrics,
	}
}

// collect runs until every worker has sent its end marker and been joined, or until the
// first fatal error. On error the remaining workers are reaped.
func (c *collector) collect() error {
	defer c.mux.close()

	for c.active > 0 {
		r, ready := c.mux.next(c.pollInterval)
		if !ready {
			c.waitCycles++
			c.metrics.recordWaitTimeout(context.Background())
			c.logger.Debug(logNothingReady, "active", c.active)
			continue
		}

		if err := c.handleOutput(r); err != nil {
			c.logger.With("error", err).Error(logFatalCollect)
			var result *multierror.Error
			result = multierror.Append(result, err)
			if reapErr := reapWorkers(c.workers, c.retired, c.logger); reapErr != nil {
				result = multierror.Append(result, reapErr)
			}
			return result.ErrorOrNil()
		}
	}
	return nil
}

func (c *collector) handleOutput(r fannedInResult[[]byte]) error {
	if c.retired[r.index] {
		if len(r.t) > 0 {
			c.logger.Debug(logLateOutputIgnored, "worker", r.index)
		}
		return nil
	}

	var lines []string
	if r.closed {
		lines = c.buffers[r.index].flush()
	} else {
		lines = c.buffers[r.index].feed(r.t)
	}

	for _, line := range lines {
		if c.retired[r.index] {
			c.logger.Debug(logLateOutputIgnored, "worker", r.index)
			break
		}
		if err := c.handleLine(r.index, line); err != nil {
			return err
		}
	}

	if r.closed && !c.retired[r.index] {
		return fmt.Errorf("worker %d: %w", r.index, ErrWorkerVanished)
	}
	return nil
}

func (c *collector) handleLine(index int, line string) error {
	if line == Sentinel {
		return c.retire(index)
	}

	p, err := strconv.Atoi(line)
	if err != nil {
		return fmt.Errorf("worker %d: %w: %q", index, ErrMalformedMessage, line)
	}

	c.factors = append(c.factors, p)
	c.metrics.recordFactorFound(context.Background(), index)
	c.logger.Debug(logFactorFound, "worker", index, "factor", p)

	if err := c.reporter.Factor(p); err != nil {
		return fmt.Errorf("report factor %d: %w", p, err)
	}
	return nil
}

func (c *collector) retire(index int) error {
	c.retired[index] = true
	c.mux.retire(index)
	c.active--

	if err := c.workers[index].Join(); err != nil {
		return fmt.Errorf("join worker %d: %w", index, err)
	}

	c.metrics.recordWorkerRetired(context.Background(), index)
	c.logger.Debug(logWorkerRetired, "worker", index, "active", c.active)
	return nil
}

// reapWorkers kills, drains and joins every worker not marked retired.
func reapWorkers(workers []*Worker, retired []bool, logger *slog.Logger) error {
	var result *multierror.Error
	for i, w := range workers {
		if retired != nil && retired[i] {
			continue
		}

		if err := w.Kill(); err != nil {
			logger.With("error", err).Warn(logWorkerReapFailed, "worker", i)
			result = multierror.Append(result, fmt.Errorf("kill worker %d: %w", i, err))
		}
		if err := w.Join(); err != nil {
			logger.With("error", err).Warn(logWorkerReapFailed, "worker", i)
			result = multierror.Append(result, fmt.Errorf("join worker %d: %w", i, err))
		}
	}
	return result.ErrorOrNil()
}
