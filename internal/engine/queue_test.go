package engine

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ledgerbox/internal/auth"
	"github.com/roach88/ledgerbox/internal/ir"
)

func sub(action string) submission {
	return submission{
		tx:     auth.SignedTx{Tx: ir.Tx{Action: action}},
		result: make(chan submitResult, 1),
	}
}

func TestSubmitQueue_FIFO(t *testing.T) {
	q := newSubmitQueue()
	for _, a := range []string{"A", "B", "C"} {
		require.True(t, q.Enqueue(sub(a)))
	}
	assert.Equal(t, 3, q.Len())

	for _, want := range []string{"A", "B", "C"} {
		got, ok := q.TryDequeue()
		require.True(t, ok)
		assert.Equal(t, want, got.tx.Tx.Action)
	}
	_, ok := q.TryDequeue()
	assert.False(t, ok, "dequeue from empty queue should return false")
}

func TestSubmitQueue_SignalCoalesces(t *testing.T) {
	q := newSubmitQueue()
	q.Enqueue(sub("A"))
	q.Enqueue(sub("B"))

	<-q.Wait()
	select {
	case <-q.Wait():
		t.Fatal("second signal should have been coalesced")
	default:
	}
}

func TestSubmitQueue_CloseReturnsPending(t *testing.T) {
	q := newSubmitQueue()
	q.Enqueue(sub("A"))
	q.Enqueue(sub("B"))

	pending := q.Close()
	assert.Len(t, pending, 2)
	assert.True(t, q.Closed())
	assert.Equal(t, 0, q.Len())
	assert.False(t, q.Enqueue(sub("C")), "enqueue after close should fail")
	assert.Nil(t, q.Close(), "second close is a no-op")

	_, open := <-q.Wait()
	assert.False(t, open, "signal channel closes with the queue")
}

func TestSubmitQueue_ConcurrentEnqueue(t *testing.T) {
	q := newSubmitQueue()
	const n = 100

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			q.Enqueue(sub("x"))
		}()
	}
	wg.Wait()
	assert.Equal(t, n, q.Len())
}

func TestDrainFailsPending(t *testing.T) {
	s := sub("A")
	drain([]submission{s})
	r := <-s.result
	assert.ErrorIs(t, r.err, ErrStopped)
}

func TestClock(t *testing.T) {
	c := NewClock()
	assert.Equal(t, int64(0), c.Current())
	assert.Equal(t, int64(1), c.Next())
	assert.Equal(t, int64(2), c.Next())

	resumed := NewClockAt(41)
	assert.Equal(t, int64(42), resumed.Next())
}

func TestFixedGenerator(t *testing.T) {
	g := NewFixedGenerator("a", "b")
	assert.Equal(t, "a", g.Generate())
	assert.Equal(t, "b", g.Generate())
	assert.Panics(t, func() { g.Generate() })

	assert.Len(t, UUIDv7Generator{}.Generate(), 36)
}
