package distributor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLineBuffer(t *testing.T) {
	t.Run("split messages are reassembled", func(t *testing.T) {
		var b lineBuffer
		assert.Empty(t, b.feed([]byte("1")))
		assert.Equal(t, []string{"17", "2"}, b.feed([]byte("7\n2\ne")))
		assert.Equal(t, []string{"end"}, b.feed([]byte("nd\n")))
		assert.Empty(t, b.flush())
	})

	t.Run("empty lines are skipped", func(t *testing.T) {
		var b lineBuffer
		assert.Equal(t, []string{"3", "end"}, b.feed([]byte("\n3\n\n\nend\n")))
	})

	t.Run("flush returns unterminated remainder", func(t *testing.T) {
		var b lineBuffer
		assert.Equal(t, []string{"5"}, b.feed([]byte("5\nen")))
		assert.Equal(t, []string{"en"}, b.flush())
		assert.Empty(t, b.flush())
	})
}

func TestParallelFanIn(t *testing.T) {
	a := make(chan int)
	b := make(chan int)
	fanned := parallelFanIn(0, a, b)

	go func() {
		a <- 1
		a <- 2
		close(a)
	}()
	go func() {
		b <- 10
		close(b)
	}()

	values := map[int][]int{}
	closed := map[int]int{}
	for r := range fanned {
		if r.closed {
			closed[r.index]++
			continue
		}
		values[r.index] = append(values[r.index], r.t)
	}

	assert.Equal(t, []int{1, 2}, values[0])
	assert.Equal(t, []int{10}, values[1])
	assert.Equal(t, map[int]int{0: 1, 1: 1}, closed)
}

func testMultiplexers(t *testing.T, f func(t *testing.T, newMux func(...<-chan []byte) multiplexer)) {
	t.Run("select", func(t *testing.T) {
		f(t, func(upstreams ...<-chan []byte) multiplexer { return newSelectMultiplexer(upstreams...) })
	})
	t.Run("fan-in", func(t *testing.T) {
		f(t, func(upstreams ...<-chan []byte) multiplexer { return newFanInMultiplexer(upstreams...) })
	})
}

func TestMultiplexer_TimesOut(t *testing.T) {
	testMultiplexers(t, func(t *testing.T, newMux func(...<-chan []byte) multiplexer) {
		idle := make(chan []byte)
		mux := newMux(idle)
		defer mux.close()

		start := time.Now()
		_, ready := mux.next(20 * time.Millisecond)
		assert.False(t, ready)
		assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)

		close(idle)
	})
}

func TestMultiplexer_DeliversAndReportsClosure(t *testing.T) {
	testMultiplexers(t, func(t *testing.T, newMux func(...<-chan []byte) multiplexer) {
		quiet := make(chan []byte)
		busy := make(chan []byte, 1)
		mux := newMux(quiet, busy)
		defer mux.close()

		busy <- []byte("7\n")
		close(busy)

		r, ready := mux.next(time.Second)
		require.True(t, ready)
		assert.Equal(t, 1, r.index)
		assert.False(t, r.closed)
		assert.Equal(t, []byte("7\n"), r.t)

		r, ready = mux.next(time.Second)
		require.True(t, ready)
		assert.Equal(t, 1, r.index)
		assert.True(t, r.closed)

		// Closure is reported once; afterwards only the quiet worker remains.
		_, ready = mux.next(20 * time.Millisecond)
		assert.False(t, ready)

		close(quiet)
	})
}

func TestSelectMultiplexer_Retire(t *testing.T) {
	retiring := make(chan []byte, 1)
	mux := newSelectMultiplexer(retiring)

	mux.retire(0)
	retiring <- []byte("late\n")

	_, ready := mux.next(20 * time.Millisecond)
	assert.False(t, ready)
}
