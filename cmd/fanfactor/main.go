package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"sync"

	"github.com/samber/lo"
	"github.com/spf13/pflag"
	"go.uber.org/automaxprocs/maxprocs"

	distributor "github.com/l0rem1psum/fanfactor"
	"github.com/l0rem1psum/fanfactor/internal/config"
	"github.com/l0rem1psum/fanfactor/pipeline"
)

const (
	workerCommand = "worker"

	usage = "Usage: fanfactor candidate\n\tcandidate must be between 2 and 10000\n"
)

// The program is a fixed three stage pipeline: plan sieves the prime table, distribute fans
// it out over the workers and summary logs the outcome.
var stages = []pipeline.StageVertex{
	{Label: "plan", Outputs: []string{"plan"}},
	{Label: "distribute", Inputs: []string{"plan"}, Outputs: []string{"result"}},
	{Label: "summary", Inputs: []string{"result"}},
}

func main() {
	// Set the correct number of threads for the process
	_, _ = maxprocs.Set()

	if len(os.Args) > 1 && os.Args[1] == workerCommand {
		os.Exit(serveWorker(os.Stdin, os.Stdout, os.Stderr))
	}
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// serveWorker is the entry point of a worker process started in process mode.
func serveWorker(stdin io.Reader, stdout, stderr io.Writer) int {
	if err := distributor.ServeWorker(stdin, stdout); err != nil {
		fmt.Fprintf(stderr, "fanfactor worker: %v\n", err)
		return 1
	}
	return 0
}

func run(args []string, stdout, stderr io.Writer) int {
	// The logger and every worker process share stderr.
	stderr = &lockedWriter{w: stderr}

	flags := config.NewFlagSet("fanfactor")
	flags.SetOutput(io.Discard)

	cfg, positional, err := config.Load(flags, args)
	if errors.Is(err, pflag.ErrHelp) {
		fmt.Fprint(stderr, usage)
		fmt.Fprint(stderr, flags.FlagUsages())
		return 0
	}
	// A negative candidate looks like a shorthand flag to the parser.
	if errors.Is(err, config.ErrInvalidFlags) && lo.ContainsBy(args, isNegativeInteger) {
		fmt.Fprint(stderr, usage)
		return 1
	}
	if err != nil {
		fmt.Fprintf(stderr, "fanfactor: %v\n", err)
		return 1
	}

	candidate, ok := parseCandidate(positional)
	if !ok {
		fmt.Fprint(stderr, usage)
		return 1
	}

	level, _ := cfg.Level()
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	launcher, err := newLauncher(cfg, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "fanfactor: %v\n", err)
		return 1
	}

	opts := []distributor.Option{
		distributor.WithLogger(logger),
		distributor.WithLabel("fanfactor"),
		distributor.WithLauncher(launcher),
		distributor.WithChunkSize(cfg.ChunkSize),
		distributor.WithPollInterval(cfg.PollInterval),
		distributor.WithFirstWorkerDelay(cfg.FirstWorkerDelay),
	}
	if cfg.FanIn {
		opts = append(opts, distributor.UseFanInMultiplexing())
	}
	d := distributor.New(opts...)

	ppl, err := buildPipeline(d, candidate, distributor.NewTextReporter(stdout), logger)
	if err != nil {
		fmt.Fprintf(stderr, "fanfactor: %v\n", err)
		return 1
	}

	if cfg.PlanDot != "" {
		if err := writeDot(ppl, cfg.PlanDot); err != nil {
			fmt.Fprintf(stderr, "fanfactor: %v\n", err)
			return 1
		}
	}

	if err := ppl.Run(); err != nil {
		fmt.Fprintf(stderr, "fanfactor: %v\n", err)
		return 1
	}
	return 0
}

func isNegativeInteger(arg string) bool {
	n, err := strconv.Atoi(arg)
	return err == nil && n < 0
}

func parseCandidate(args []string) (int, bool) {
	if len(args) != 1 {
		return 0, false
	}
	candidate, err := strconv.Atoi(args[0])
	if err != nil {
		return 0, false
	}
	if err := distributor.ValidateCandidate(candidate); err != nil {
		return 0, false
	}
	return candidate, true
}

func newLauncher(cfg *config.Config, stderr io.Writer) (distributor.Launcher, error) {
	switch cfg.WorkerMode {
	case config.WorkerModeProcess:
		self, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("locate executable for worker processes: %w", err)
		}
		command := func() *exec.Cmd {
			cmd := exec.Command(self, workerCommand)
			cmd.Stderr = stderr
			return cmd
		}
		return distributor.NewProcessLauncher(
			command,
			distributor.WithReadSize(cfg.ReadSize),
			distributor.WithSpawnRate(cfg.SpawnRate),
		), nil
	default:
		return distributor.NewGoroutineLauncher(0), nil
	}
}

func buildPipeline(
	d *distributor.Distributor,
	candidate int,
	reporter distributor.Reporter,
	logger *slog.Logger,
) (*pipeline.Pipeline, error) {
	ppl, err := pipeline.NewPipeline(stages, logger)
	if err != nil {
		return nil, err
	}

	if err := pipeline.AddSource(ppl, "plan", func() (*distributor.Plan, error) {
		return d.Plan(candidate, reporter)
	}); err != nil {
		return nil, err
	}

	if err := pipeline.AddStage(ppl, "distribute", func(plan *distributor.Plan) (*distributor.Result, error) {
		return d.Distribute(plan, reporter)
	}); err != nil {
		return nil, err
	}

	if err := pipeline.AddSink(ppl, "summary", func(result *distributor.Result) error {
		logger.Info("Factorisation finished",
			"run_id", result.RunID,
			"candidate", result.Candidate,
			"prime", result.IsPrime(),
			"workers", result.NumWorkers,
			"wait_cycles", result.WaitCycles,
			"elapsed", result.Elapsed,
		)
		return nil
	}); err != nil {
		return nil, err
	}

	return ppl, nil
}

func writeDot(ppl *pipeline.Pipeline, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := ppl.DumpDot(f); err != nil {
		_ = f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}

// lockedWriter serialises concurrent writes to w.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (lw *lockedWriter) Write(p []byte) (int, error) {
	lw.mu.Lock()
	defer lw.mu.Unlock()
	return lw.w.Write(p)
}
