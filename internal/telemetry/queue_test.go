package telemetry

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drain[T any](q *Queue[T]) []T {
	var out []T
	for {
		v, ok := q.Recv()
		if !ok {
			return out
		}
		out = append(out, v)
	}
}

func TestQueue_PreservesOrder(t *testing.T) {
	q := NewQueue[int](4)
	for i := 1; i <= 3; i++ {
		assert.False(t, q.Send(i))
	}
	q.Close()

	assert.Equal(t, []int{1, 2, 3}, drain(q))
}

func TestQueue_OverwritesOldest(t *testing.T) {
	q := NewQueue[int](3)
	drops := 0
	for i := 1; i <= 5; i++ {
		if q.Send(i) {
			drops++
		}
	}
	q.Close()

	assert.Equal(t, 2, drops)
	assert.Equal(t, []int{3, 4, 5}, drain(q), "only the newest values MUST remain")
}

func TestQueue_SendAfterCloseIsIgnored(t *testing.T) {
	q := NewQueue[string](1)
	q.Close()
	q.Close()

	assert.NotPanics(t, func() { q.Send("late") })
	assert.Empty(t, drain(q))
}

func TestQueue_ConcurrentProducers(t *testing.T) {
	q := NewQueue[int](8)

	var received []int
	done := make(chan struct{})
	go func() {
		received = drain(q)
		close(done)
	}()

	var wg sync.WaitGroup
	for p := 0; p < 4; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				q.Send(i)
			}
		}()
	}
	wg.Wait()
	q.Close()
	<-done

	require.NotEmpty(t, received)
	assert.LessOrEqual(t, len(received), 400)
}

func TestQueue_DropsOnlyWhenFull(t *testing.T) {
	// a reader freeing a slot means the next send fits without a drop
	q := NewQueue[int](2)
	assert.False(t, q.Send(1))
	assert.False(t, q.Send(2))

	v, ok := q.Recv()
	require.True(t, ok)
	assert.Equal(t, 1, v)

	assert.False(t, q.Send(3), "send after a receive MUST NOT drop")
	assert.True(t, q.Send(4), "send into a full queue MUST drop")
	assert.Equal(t, 2, q.Len())

	q.Close()
	assert.Equal(t, []int{3, 4}, drain(q))
}

func TestQueue_AccountsForEveryElement(t *testing.T) {
	// every sent element is either received or reported as dropped, never both
	q := NewQueue[int](4)

	var received []int
	done := make(chan struct{})
	go func() {
		received = drain(q)
		close(done)
	}()

	const sent = 1000
	drops := 0
	for i := 0; i < sent; i++ {
		if q.Send(i) {
			drops++
		}
	}
	q.Close()
	<-done

	assert.Equal(t, sent, len(received)+drops)
	for i := 1; i < len(received); i++ {
		assert.Less(t, received[i-1], received[i], "order MUST be preserved")
	}
}

func TestQueue_RecvBlocksUntilSend(t *testing.T) {
	q := NewQueue[string](1)
	got := make(chan string, 1)
	go func() {
		v, _ := q.Recv()
		got <- v
	}()

	select {
	case <-got:
		t.Fatal("Recv MUST block on an empty queue")
	case <-time.After(50 * time.Millisecond):
	}

	q.Send("row")
	select {
	case v := <-got:
		assert.Equal(t, "row", v)
	case <-time.After(time.Second):
		t.Fatal("Recv MUST wake after Send")
	}
	q.Close()
}

func TestNewQueue_PanicsOnZeroCapacity(t *testing.T) {
	assert.Panics(t, func() { NewQueue[int](0) })
}
