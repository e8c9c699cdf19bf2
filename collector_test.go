package distributor_test

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	distributor "github.com/l0rem1psum/fanfactor"
)

// scriptedLauncher launches workers that emit pre-recorded raw messages instead of scanning
// their chunk.
type scriptedLauncher struct {
	scripts map[int][]string
	// Workers listed here wait for gate to close before writing anything.
	gated  map[int]bool
	gate   chan struct{}
	failAt int

	mu     sync.Mutex
	killed []int
}

func newScriptedLauncher(scripts map[int][]string) *scriptedLauncher {
	return &scriptedLauncher{
		scripts: scripts,
		gated:   map[int]bool{},
		gate:    make(chan struct{}),
		failAt:  -1,
	}
}

func (l *scriptedLauncher) Launch(task distributor.Task) (*distributor.Worker, error) {
	idx := task.Chunk.Index
	if idx == l.failAt {
		return nil, errors.New("fork: resource temporarily unavailable")
	}

	output := make(chan []byte)
	done := make(chan struct{})
	terminate := make(chan struct{})
	var terminateOnce sync.Once

	go func() {
		defer close(done)
		defer close(output)
		if l.gated[idx] {
			select {
			case <-l.gate:
			case <-terminate:
				return
			}
		}
		for _, msg := range l.scripts[idx] {
			select {
			case output <- []byte(msg):
			case <-terminate:
				return
			}
		}
	}()

	join := func() error {
		<-done
		return nil
	}
	kill := func() error {
		terminateOnce.Do(func() { close(terminate) })
		l.mu.Lock()
		defer l.mu.Unlock()
		l.killed = append(l.killed, idx)
		return nil
	}
	return distributor.NewWorker(task.Chunk, output, join, kill), nil
}

func (l *scriptedLauncher) killedWorkers() []int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]int(nil), l.killed...)
}

var multiplexingModes = map[string][]distributor.Option{
	"select": nil,
	"fan-in": {distributor.UseFanInMultiplexing()},
}

func runScripted(t *testing.T, launcher distributor.Launcher, candidate int, extra ...distributor.Option) (*distributor.Result, error) {
	t.Helper()

	opts := append([]distributor.Option{
		distributor.WithLauncher(launcher),
		distributor.WithChunkSize(1),
		distributor.WithPollInterval(10 * time.Millisecond),
	}, extra...)
	return distributor.New(opts...).Factor(candidate, nil)
}

// 12 has the prime table [2 3 5]; with one prime per chunk that is three workers.

func TestCollector_ReassemblesSplitMessages(t *testing.T) {
	for mode, opts := range multiplexingModes {
		t.Run(mode, func(t *testing.T) {
			launcher := newScriptedLauncher(map[int][]string{
				0: {"2", "\nen", "d\n"},
				1: {"3\ne", "nd\n"},
				2: {"end\n"},
			})

			result, err := runScripted(t, launcher, 12, opts...)
			require.NoError(t, err)
			assert.ElementsMatch(t, []int{2, 3}, result.Factors)
			assert.Equal(t, 3, result.NumWorkers)
			assert.Equal(t, 3, result.NumPrimes)
			assert.False(t, result.IsPrime())
			assert.Empty(t, launcher.killedWorkers())
		})
	}
}

func TestCollector_IgnoresOutputAfterEndMarker(t *testing.T) {
	for mode, opts := range multiplexingModes {
		t.Run(mode, func(t *testing.T) {
			launcher := newScriptedLauncher(map[int][]string{
				0: {"end\n7\n"},
				1: {"end\n", "11\n"},
				2: {"end"},
			})

			result, err := runScripted(t, launcher, 12, opts...)
			require.NoError(t, err)
			assert.Empty(t, result.Factors)
			assert.True(t, result.IsPrime())
		})
	}
}

func TestCollector_WorkerVanished(t *testing.T) {
	for mode, opts := range multiplexingModes {
		t.Run(mode, func(t *testing.T) {
			launcher := newScriptedLauncher(map[int][]string{
				0: {"2\n"},
				1: {"3\n", "end\n"},
				2: {"end\n"},
			})
			launcher.gated[1] = true
			launcher.gated[2] = true

			result, err := runScripted(t, launcher, 12, opts...)
			close(launcher.gate)

			require.ErrorIs(t, err, distributor.ErrWorkerVanished)
			assert.Nil(t, result)
			// The vanished worker was never retired, so it is reaped along with the others.
			assert.ElementsMatch(t, []int{0, 1, 2}, launcher.killedWorkers())
		})
	}
}

func TestCollector_MalformedMessage(t *testing.T) {
	for mode, opts := range multiplexingModes {
		t.Run(mode, func(t *testing.T) {
			launcher := newScriptedLauncher(map[int][]string{
				0: {"two\n"},
				1: {"end\n"},
				2: {"end\n"},
			})
			launcher.gated[1] = true
			launcher.gated[2] = true

			_, err := runScripted(t, launcher, 12, opts...)
			close(launcher.gate)

			require.ErrorIs(t, err, distributor.ErrMalformedMessage)
			assert.ErrorContains(t, err, `"two"`)
		})
	}
}

func TestCollector_CountsWaitCycles(t *testing.T) {
	for mode, opts := range multiplexingModes {
		t.Run(mode, func(t *testing.T) {
			launcher := newScriptedLauncher(map[int][]string{
				0: {"2\n", "end\n"},
				1: {"3\n", "end\n"},
				2: {"end\n"},
			})
			launcher.gated[0] = true
			launcher.gated[1] = true
			launcher.gated[2] = true

			go func() {
				time.Sleep(60 * time.Millisecond)
				close(launcher.gate)
			}()

			result, err := runScripted(t, launcher, 12, opts...)
			require.NoError(t, err)
			assert.ElementsMatch(t, []int{2, 3}, result.Factors)
			assert.Positive(t, result.WaitCycles)
		})
	}
}

func TestDistribute_LaunchFailureReapsLaunchedWorkers(t *testing.T) {
	launcher := newScriptedLauncher(map[int][]string{
		0: {"end\n"},
		1: {"end\n"},
	})
	launcher.gated[0] = true
	launcher.gated[1] = true
	launcher.failAt = 2

	result, err := runScripted(t, launcher, 12)
	close(launcher.gate)

	require.ErrorIs(t, err, distributor.ErrLaunchFailed)
	assert.ErrorContains(t, err, "resource temporarily unavailable")
	assert.Nil(t, result)
	assert.ElementsMatch(t, []int{0, 1}, launcher.killedWorkers())
}
