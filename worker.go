package distributor

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Worker is the coordinator's handle on a launched worker: the reading end of its
// one-way output channel plus the means to join it and, when supported, kill it.
type Worker struct {
	chunk  Chunk
	output <-chan []byte
	joiner *joiner
	kill   func() error
}

// NewWorker wraps a running worker. output must be closed by the worker once it has written
// everything; join waits for the worker to finish and kill, which may be nil, terminates it.
func NewWorker(chunk Chunk, output <-chan []byte, join func() error, kill func() error) *Worker {
	return &Worker{
		chunk:  chunk,
		output: output,
		joiner: &joiner{
			f: func() error {
				// Keep the producer from blocking on output nobody reads anymore.
				go drain(output)
				if join == nil {
					return nil
				}
				return join()
			},
		},
		kill: kill,
	}
}

func (w *Worker) Chunk() Chunk {
	return w.chunk
}

func (w *Worker) Output() <-chan []byte {
	return w.output
}

// Join waits for the worker to finish. Calling it more than once returns the first result.
func (w *Worker) Join() error {
	return w.joiner.join()
}

// Kill terminates the worker if its launcher supports it.
func (w *Worker) Kill() error {
	if w.kill == nil {
		return nil
	}
	return w.kill()
}

type joiner struct {
	once sync.Once
	err  error
	f    func() error
}

func (j *joiner) join() error {
	j.once.Do(func() {
		j.err = j.f()
	})
	return j.err
}

func drain[T any](ch <-chan T) {
	for range ch {
	}
}

// ScanChunk writes one line per prime in primes that evenly divides candidate, followed by
// the Sentinel line.
func ScanChunk(w io.Writer, candidate int, primes []int) error {
	for _, p := range primes {
		if candidate%p != 0 {
			continue
		}
		if _, err := fmt.Fprintf(w, "%d\n", p); err != nil {
			return fmt.Errorf("write factor %d: %w", p, err)
		}
	}

	if _, err := io.WriteString(w, Sentinel+"\n"); err != nil {
		return fmt.Errorf("write end marker: %w", err)
	}
	return nil
}

// ServeWorker runs the worker side of the process protocol: r carries the candidate, and
// optionally a start delay such as "5s", on its first line followed by one prime per line.
// The ScanChunk stream is written to w.
func ServeWorker(r io.Reader, w io.Writer) error {
	task, err := readTask(r)
	if err != nil {
		return err
	}
	time.Sleep(task.Delay)

	bw := bufio.NewWriter(w)
	if err := ScanChunk(bw, task.Candidate, task.Primes); err != nil {
		return err
	}
	return bw.Flush()
}

func writeTask(w io.Writer, task Task) error {
	bw := bufio.NewWriter(w)
	header := strconv.Itoa(task.Candidate)
	if task.Delay > 0 {
		header += " " + task.Delay.String()
	}
	if _, err := fmt.Fprintln(bw, header); err != nil {
		return err
	}
	for _, p := range task.Primes {
		if _, err := fmt.Fprintf(bw, "%d\n", p); err != nil {
			return err
		}
	}
	return bw.Flush()
}

func readTask(r io.Reader) (Task, error) {
	scanner := bufio.NewScanner(r)

	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return Task{}, fmt.Errorf("read candidate: %w", err)
		}
		return Task{}, fmt.Errorf("%w: missing candidate", ErrInvalidTask)
	}
	header := strings.Fields(scanner.Text())
	if len(header) < 1 || len(header) > 2 {
		return Task{}, fmt.Errorf("%w: header %q", ErrInvalidTask, scanner.Text())
	}
	candidate, err := strconv.Atoi(header[0])
	if err != nil {
		return Task{}, fmt.Errorf("%w: candidate %q", ErrInvalidTask, header[0])
	}

	task := Task{Candidate: candidate, Primes: []int{}}
	if len(header) == 2 {
		task.Delay, err = time.ParseDuration(header[1])
		if err != nil || task.Delay < 0 {
			return Task{}, fmt.Errorf("%w: delay %q", ErrInvalidTask, header[1])
		}
	}
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		p, err := strconv.Atoi(line)
		if err != nil || p < 2 {
			return Task{}, fmt.Errorf("%w: prime %q", ErrInvalidTask, line)
		}
		task.Primes = append(task.Primes, p)
	}
	if err := scanner.Err(); err != nil {
		return Task{}, fmt.Errorf("read primes: %w", err)
	}

	task.Chunk = Chunk{End: len(task.Primes)}
	return task, nil
}

// chanWriter delivers every Write as one message on the channel.
type chanWriter chan<- []byte

func (cw chanWriter) Write(p []byte) (int, error) {
	cw <- bytes.Clone(p)
	return len(p), nil
}
