package distributor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/samber/lo"

	"github.com/l0rem1psum/fanfactor/sieve"
)

// Distributor fans the divisibility checks for a candidate out over one worker per chunk of
// the prime table and collects the factors they find. A Distributor holds no per-run state
// and can be reused.
type Distributor struct {
	config  config
	logger  *slog.Logger
	metrics *metricsRecorder
}

// Plan is a validated candidate together with the prime table its workers will share.
type Plan struct {
	Candidate int
	Primes    []int
}

// Result describes a completed run. Factors are in the order they were received.
type Result struct {
	RunID      string
	Candidate  int
	NumPrimes  int
	NumWorkers int
	Factors    []int
	WaitCycles int
	Elapsed    time.Duration
}

// IsPrime reports whether no worker found a factor.
func (r *Result) IsPrime() bool {
	return len(r.Factors) == 0
}

func New(opts ...Option) *Distributor {
	var config config
	for _, opt := range opts {
		opt(&config)
	}

	logger := slog.Default()
	if config.logger != nil {
		logger = config.logger
	}

	if config.label != nil {
		logger = logger.With("label", *config.label)
	}

	if config.chunkSize <= 0 {
		config.chunkSize = DefaultChunkSize
	}
	if config.pollInterval <= 0 {
		config.pollInterval = DefaultPollInterval
	}
	if config.launcher == nil {
		config.launcher = NewGoroutineLauncher(config.outputChannelSize)
	}

	d := &Distributor{
		config: config,
		logger: logger,
	}

	if config.meterProvider != nil {
		label := "distributor"
		if config.label != nil {
			label = *config.label
		}
		if metrics, err := newMetricsRecorder(config.meterProvider, label); err != nil {
			logger.With("error", err).Warn(logMetricsInitFailed)
		} else {
			d.metrics = metrics
		}
	}

	return d
}

// ValidateCandidate checks that candidate lies in [MinCandidate, MaxCandidate].
func ValidateCandidate(candidate int) error {
	if candidate < MinCandidate || candidate > MaxCandidate {
		return fmt.Errorf("%w: %d not in [%d, %d]", ErrCandidateOutOfRange, candidate, MinCandidate, MaxCandidate)
	}
	return nil
}

// Factor plans and distributes candidate in one go.
func (d *Distributor) Factor(candidate int, reporter Reporter) (*Result, error) {
	plan, err := d.Plan(candidate, reporter)
	if err != nil {
		return nil, err
	}
	return d.Distribute(plan, reporter)
}

// Plan validates candidate and sieves the primes up to candidate/2, the largest value that
// can be a proper factor.
func (d *Distributor) Plan(candidate int, reporter Reporter) (*Plan, error) {
	if reporter == nil {
		reporter = nopReporter{}
	}

	if err := ValidateCandidate(candidate); err != nil {
		return nil, err
	}

	primes := sieve.Eratosthenes(candidate / 2)
	d.logger.Debug(logTableReady, "candidate", candidate, "primes", len(primes))

	if err := reporter.Generated(len(primes)); err != nil {
		return nil, fmt.Errorf("report generated primes: %w", err)
	}

	return &Plan{
		Candidate: candidate,
		Primes:    primes,
	}, nil
}

// Distribute launches one worker per chunk of plan.Primes and collects until every worker
// has finished. Any launch, channel or reporting failure ends the run with an error after
// the remaining workers have been reaped.
func (d *Distributor) Distribute(plan *Plan, reporter Reporter) (*Result, error) {
	if reporter == nil {
		reporter = nopReporter{}
	}

	start := time.Now()
	runID := uuid.NewString()
	logger := d.logger.With("run_id", runID)
	state := &fsm{logger: logger}

	fail := func(err error) (*Result, error) {
		failedIn := state.getState()
		state.transitionTo(StateFailed)
		d.metrics.recordRunDuration(context.Background(), "failure", time.Since(start))
		logger.With("error", err).Error(logRunFailed, "state", failedIn.String())
		return nil, err
	}

	logger.Info(logRunStarted, "candidate", plan.Candidate, "primes", len(plan.Primes))
	state.transitionTo(StatePartitioning)

	chunks := Partition(len(plan.Primes), d.config.chunkSize)
	if err := reporter.Dividing(len(chunks)); err != nil {
		return fail(fmt.Errorf("report work division: %w", err))
	}

	state.transitionTo(StateLaunching)

	tasks := lo.Map(chunks, func(c Chunk, i int) Task {
		task := Task{
			Chunk:     c,
			Candidate: plan.Candidate,
			Primes:    c.Slice(plan.Primes),
		}
		if i == 0 {
			task.Delay = d.config.firstWorkerDelay
		}
		return task
	})

	workers := make([]*Worker, 0, len(tasks))
	for _, task := range tasks {
		w, err := d.config.launcher.Launch(task)
		if err != nil {
			logger.With("error", err).Error(logWorkerLaunchFailed, "worker", task.Chunk.Index)
			err = fmt.Errorf("%w %d: %w", ErrLaunchFailed, task.Chunk.Index, err)
			if reapErr := reapWorkers(workers, nil, logger); reapErr != nil {
				err = multierror.Append(err, reapErr)
			}
			return fail(err)
		}

		workers = append(workers, w)
		d.metrics.recordWorkerLaunched(context.Background(), task.Chunk.Index)
		logger.Debug(logWorkerLaunched, "worker", task.Chunk.Index, "primes", len(task.Primes))
	}

	if err := reporter.Collecting(); err != nil {
		err = fmt.Errorf("report collection: %w", err)
		if reapErr := reapWorkers(workers, nil, logger); reapErr != nil {
			err = multierror.Append(err, reapErr)
		}
		return fail(err)
	}

	state.transitionTo(StateCollecting)

	c := newCollector(workers, d.config, reporter, logger, d.metrics)
	if err := c.collect(); err != nil {
		return fail(err)
	}

	if len(c.factors) == 0 {
		if err := reporter.Prime(plan.Candidate); err != nil {
			return fail(fmt.Errorf("report prime verdict: %w", err))
		}
	}

	state.transitionTo(StateCompleted)
	elapsed := time.Since(start)
	d.metrics.recordRunDuration(context.Background(), "success", elapsed)
	logger.Info(logRunCompleted, "candidate", plan.Candidate, "factors", len(c.factors), "wait_cycles", c.waitCycles)

	return &Result{
		RunID:      runID,
		Candidate:  plan.Candidate,
		NumPrimes:  len(plan.Primes),
		NumWorkers: len(workers),
		Factors:    c.factors,
		WaitCycles: c.waitCycles,
		Elapsed:    elapsed,
	}, nil
}
