package distributor

import (
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/metric"
)

const (
	// MinCandidate and MaxCandidate bound the numbers that can be factored.
	MinCandidate = 2
	MaxCandidate = 10000

	// DefaultChunkSize is the maximum number of primes a single worker tests.
	DefaultChunkSize = 1000

	// DefaultPollInterval bounds how long the collector waits for any worker output.
	DefaultPollInterval = time.Second

	// Sentinel marks the end of a worker's output stream.
	Sentinel = "end"
)

var (
	ErrCandidateOutOfRange = errors.New("candidate out of range")
	ErrLaunchFailed        = errors.New("unable to launch worker")
	ErrWorkerVanished      = errors.New("worker output closed before end marker")
	ErrMalformedMessage    = errors.New("malformed worker message")
	ErrInvalidTask         = errors.New("invalid worker task")
)

type config struct {
	label             *string
	logger            *slog.Logger
	meterProvider     metric.MeterProvider
	launcher          Launcher
	chunkSize         int
	pollInterval      time.Duration
	outputChannelSize int
	useFanIn          bool
	firstWorkerDelay  time.Duration
}

type Option func(*config)

func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

func WithLabel(label string) Option {
	return func(c *config) {
		c.label = &label
	}
}

func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(c *config) {
		c.meterProvider = mp
	}
}

// WithLauncher replaces the default GoroutineLauncher.
func WithLauncher(launcher Launcher) Option {
	return func(c *config) {
		c.launcher = launcher
	}
}

// WithChunkSize sets the maximum number of primes handed to each worker.
// Non-positive sizes fall back to DefaultChunkSize.
func WithChunkSize(size int) Option {
	return func(c *config) {
		c.chunkSize = size
	}
}

// WithPollInterval sets the timeout of a single readiness wait.
// Non-positive intervals fall back to DefaultPollInterval.
func WithPollInterval(interval time.Duration) Option {
	return func(c *config) {
		c.pollInterval = interval
	}
}

func WithOutputChannelSize(size int) Option {
	return func(c *config) {
		c.outputChannelSize = max(0, size)
	}
}

// WithFirstWorkerDelay makes the worker of the first chunk wait before scanning, so the
// collector has to sit through empty polls before the run can finish.
func WithFirstWorkerDelay(delay time.Duration) Option {
	return func(c *config) {
		c.firstWorkerDelay = max(0, delay)
	}
}

// UseFanInMultiplexing makes the collector forward every worker channel through its own
// goroutine into a single channel instead of selecting over all of them directly.
func UseFanInMultiplexing() Option {
	return func(c *config) {
		c.useFanIn = true
	}
}
