package distributor

import (
	"bytes"
	"reflect"
	"sync"
	"time"
)

type fannedInResult[T any] struct {
	t      T
	index  int
	closed bool
}

// parallelFanIn forwards every upstream through its own goroutine. Each upstream's values
// keep their order and are followed by exactly one closed result for that upstream.
func parallelFanIn[T any](channelBufferCap int, upstreams ...<-chan T) <-chan fannedInResult[T] {
	out := make(chan fannedInResult[T], channelBufferCap)
	var wg sync.WaitGroup

	wg.Add(len(upstreams))
	for i := range upstreams {
		go func(index int) {
			defer wg.Done()
			for t := range upstreams[index] {
				out <- fannedInResult[T]{t: t, index: index}
			}
			out <- fannedInResult[T]{index: index, closed: true}
		}(i)
	}

	go func() {
		wg.Wait()
		close(out)
	}()
	return out
}

// multiplexer waits, for at most a timeout, until any live worker channel is readable.
type multiplexer interface {
	// next returns false if nothing became ready before the timeout.
	next(timeout time.Duration) (fannedInResult[[]byte], bool)
	// retire stops waiting on the given worker.
	retire(index int)
	close()
}

// selectMultiplexer selects over all live channels at once, the last case being the timer.
type selectMultiplexer struct {
	cases []reflect.SelectCase
}

func newSelectMultiplexer(upstreams ...<-chan []byte) *selectMultiplexer {
	cases := make([]reflect.SelectCase, len(upstreams)+1)
	for i, upstream := range upstreams {
		cases[i] = reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(upstream)}
	}
	cases[len(upstreams)] = reflect.SelectCase{Dir: reflect.SelectRecv}
	return &selectMultiplexer{cases: cases}
}

func (m *selectMultiplexer) next(timeout time.Duration) (fannedInResult[[]byte], bool) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	timerIdx := len(m.cases) - 1
	m.cases[timerIdx].Chan = reflect.ValueOf(timer.C)

	chosen, recv, ok := reflect.Select(m.cases)
	if chosen == timerIdx {
		return fannedInResult[[]byte]{}, false
	}
	if !ok {
		// A closed channel is always ready; stop selecting on it.
		m.cases[chosen].Chan = reflect.Value{}
		return fannedInResult[[]byte]{index: chosen, closed: true}, true
	}
	return fannedInResult[[]byte]{t: recv.Interface().([]byte), index: chosen}, true
}

func (m *selectMultiplexer) retire(index int) {
	m.cases[index].Chan = reflect.Value{}
}

func (m *selectMultiplexer) close() {}

type fanInMultiplexer struct {
	fanned <-chan fannedInResult[[]byte]
}

func newFanInMultiplexer(upstreams ...<-chan []byte) *fanInMultiplexer {
	return &fanInMultiplexer{fanned: parallelFanIn(0, upstreams...)}
}

func (m *fanInMultiplexer) next(timeout time.Duration) (fannedInResult[[]byte], bool) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case r, ok := <-m.fanned:
		if !ok {
			// Every upstream has reported its closure already; only the timer remains.
			m.fanned = nil
			<-timer.C
			return fannedInResult[[]byte]{}, false
		}
		return r, true
	case <-timer.C:
		return fannedInResult[[]byte]{}, false
	}
}

// Retired workers still flow through the fan-in until they close; the collector ignores them.
func (m *fanInMultiplexer) retire(int) {}

func (m *fanInMultiplexer) close() {
	if m.fanned != nil {
		go drain(m.fanned)
	}
}

// lineBuffer reassembles newline-delimited messages that may arrive split across reads.
type lineBuffer struct {
	pending []byte
}

// feed appends data and returns every line it completed. Empty lines are skipped.
func (b *lineBuffer) feed(data []byte) []string {
	b.pending = append(b.pending, data...)

	var lines []string
	for {
		i := bytes.IndexByte(b.pending, '\n')
		if i < 0 {
			break
		}
		if i > 0 {
			lines = append(lines, string(b.pending[:i]))
		}
		b.pending = b.pending[i+1:]
	}
	return lines
}

// flush returns the unterminated remainder, if any, as a final line.
func (b *lineBuffer) flush() []string {
	if len(b.pending) == 0 {
		return nil
	}
	line := string(b.pending)
	b.pending = nil
	return []string{line}
}
