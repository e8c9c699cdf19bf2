// Package config loads the fanfactor command configuration from flags and the environment.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable the command reads, e.g. FANFACTOR_CHUNK_SIZE.
const EnvPrefix = "FANFACTOR"

// ErrInvalidFlags wraps every error from parsing the command line, pflag.ErrHelp included.
var ErrInvalidFlags = errors.New("invalid flags")

// WorkerMode selects how workers are isolated.
type WorkerMode string

const (
	WorkerModeGoroutine WorkerMode = "goroutine"
	WorkerModeProcess   WorkerMode = "process"
)

// Config holds everything the command needs besides the candidate itself.
type Config struct {
	ChunkSize    int           `mapstructure:"chunk-size"`
	PollInterval time.Duration `mapstructure:"poll-interval"`
	WorkerMode   WorkerMode    `mapstructure:"worker-mode"`
	SpawnRate    float64       `mapstructure:"spawn-rate"`
	ReadSize     int           `mapstructure:"read-size"`
	FanIn        bool          `mapstructure:"fan-in"`
	LogLevel     string        `mapstructure:"log-level"`
	PlanDot      string        `mapstructure:"plan-dot"`

	FirstWorkerDelay time.Duration `mapstructure:"first-worker-delay"`
}

// NewFlagSet declares the command's flags with their defaults.
func NewFlagSet(name string) *pflag.FlagSet {
	flags := pflag.NewFlagSet(name, pflag.ContinueOnError)
	flags.Int("chunk-size", 1000, "maximum number of primes tested by one worker")
	flags.Duration("poll-interval", time.Second, "how long to wait for worker output before polling again")
	flags.String("worker-mode", string(WorkerModeGoroutine), "worker isolation: goroutine or process")
	flags.Float64("spawn-rate", 0, "maximum worker processes started per second (0 = unlimited)")
	flags.Int("read-size", 50, "bytes read from a worker process pipe at a time")
	flags.Bool("fan-in", false, "forward worker output through per-worker goroutines instead of one select")
	flags.String("log-level", "warn", "log level: debug, info, warn or error")
	flags.String("plan-dot", "", "write the stage graph in DOT format to this file")
	flags.Duration("first-worker-delay", 0, "make the first worker wait this long before scanning")
	return flags
}

// Load parses args, overlays FANFACTOR_* environment variables on the flag defaults and
// returns the validated configuration together with the remaining positional arguments.
// Explicitly set flags win over the environment.
func Load(flags *pflag.FlagSet, args []string) (*Config, []string, error) {
	if err := flags.Parse(args); err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrInvalidFlags, err)
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(flags); err != nil {
		return nil, nil, fmt.Errorf("bind flags: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	return &cfg, flags.Args(), nil
}

// Validate rejects values the command cannot run with.
func (c *Config) Validate() error {
	if c.ChunkSize < 1 {
		return fmt.Errorf("chunk-size must be positive, got %d", c.ChunkSize)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll-interval must be positive, got %s", c.PollInterval)
	}
	switch c.WorkerMode {
	case WorkerModeGoroutine, WorkerModeProcess:
	default:
		return fmt.Errorf("worker-mode must be %q or %q, got %q", WorkerModeGoroutine, WorkerModeProcess, c.WorkerMode)
	}
	if c.SpawnRate < 0 {
		return fmt.Errorf("spawn-rate must not be negative, got %g", c.SpawnRate)
	}
	if c.ReadSize < 1 {
		return fmt.Errorf("read-size must be positive, got %d", c.ReadSize)
	}
	if c.FirstWorkerDelay < 0 {
		return fmt.Errorf("first-worker-delay must not be negative, got %s", c.FirstWorkerDelay)
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	return nil
}

// Level returns the configured slog level.
func (c *Config) Level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return level, fmt.Errorf("log-level: %w", err)
	}
	return level, nil
}
