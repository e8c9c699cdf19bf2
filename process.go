package distributor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// DefaultReadSize is the largest number of bytes taken from a worker pipe in one read.
const DefaultReadSize = 50

var _ Launcher = &ProcessLauncher{}

// ProcessLauncher runs each worker as a child process. The child is expected to run
// ServeWorker on its stdin and stdout.
type ProcessLauncher struct {
	command  func() *exec.Cmd
	readSize int
	limiter  *rate.Limiter
}

type ProcessLauncherOption func(*ProcessLauncher)

// WithReadSize bounds the size of a single read from a worker's stdout.
func WithReadSize(size int) ProcessLauncherOption {
	return func(l *ProcessLauncher) {
		if size > 0 {
			l.readSize = size
		}
	}
}

// WithSpawnRate limits how many child processes are started per second. Zero or less means
// no limit.
func WithSpawnRate(perSecond float64) ProcessLauncherOption {
	return func(l *ProcessLauncher) {
		if perSecond > 0 {
			l.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
		} else {
			l.limiter = rate.NewLimiter(rate.Inf, 0)
		}
	}
}

// NewProcessLauncher creates a launcher that builds a fresh child command for every worker.
func NewProcessLauncher(command func() *exec.Cmd, opts ...ProcessLauncherOption) *ProcessLauncher {
	l := &ProcessLauncher{
		command:  command,
		readSize: DefaultReadSize,
		limiter:  rate.NewLimiter(rate.Inf, 0),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *ProcessLauncher) Launch(task Task) (*Worker, error) {
	if err := l.limiter.Wait(context.Background()); err != nil {
		return nil, fmt.Errorf("spawn rate: %w", err)
	}

	cmd := l.command()
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start worker process: %w", err)
	}

	output := make(chan []byte)

	var g errgroup.Group
	g.Go(func() error {
		defer stdin.Close()
		if err := writeTask(stdin, task); err != nil {
			return fmt.Errorf("write task: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		defer close(output)
		return pump(stdout, output, l.readSize)
	})

	join := func() error {
		var result *multierror.Error
		// All reads from stdout must be done before cmd.Wait closes it.
		if err := g.Wait(); err != nil {
			result = multierror.Append(result, err)
		}
		if err := cmd.Wait(); err != nil {
			result = multierror.Append(result, fmt.Errorf("worker process: %w", err))
		}
		return result.ErrorOrNil()
	}
	kill := func() error {
		if err := cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
			return err
		}
		return nil
	}

	return NewWorker(task.Chunk, output, join, kill), nil
}

// pump forwards r to out in reads of at most readSize bytes until EOF.
func pump(r io.Reader, out chan<- []byte, readSize int) error {
	buf := make([]byte, readSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			msg := make([]byte, n)
			copy(msg, buf[:n])
			out <- msg
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read worker output: %w", err)
		}
	}
}
