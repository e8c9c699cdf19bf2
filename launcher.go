package distributor

import "time"

// Task is everything a worker needs: its chunk, the candidate, and the chunk's read-only
// view of the prime table. A worker waits for Delay before it starts scanning.
type Task struct {
	Chunk     Chunk
	Candidate int
	Primes    []int
	Delay     time.Duration
}

// Launcher starts one isolated worker per task. Launch must not block until the worker
// finishes; the worker reports only through the returned Worker's output channel.
type Launcher interface {
	Launch(Task) (*Worker, error)
}

var _ Launcher = &GoroutineLauncher{}

// GoroutineLauncher runs each worker in its own goroutine.
type GoroutineLauncher struct {
	outputChannelSize int
}

func NewGoroutineLauncher(outputChannelSize int) *GoroutineLauncher {
	return &GoroutineLauncher{outputChannelSize: max(0, outputChannelSize)}
}

func (l *GoroutineLauncher) Launch(task Task) (*Worker, error) {
	output := make(chan []byte, l.outputChannelSize)
	errCh := make(chan error, 1)

	go func() {
		defer close(output)
		time.Sleep(task.Delay)
		errCh <- ScanChunk(chanWriter(output), task.Candidate, task.Primes)
	}()

	return NewWorker(task.Chunk, output, func() error { return <-errCh }, nil), nil
}
