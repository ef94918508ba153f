package session

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestEventQueue_DispatchZeroRunsQueued(t *testing.T) {
	q := NewEventQueue()
	var got []int
	q.Schedule(func() { got = append(got, 1) })
	q.Schedule(func() { got = append(got, 2) })

	q.Dispatch(0)

	require.Equal(t, []int{1, 2}, got)
	require.Zero(t, q.Len())
}

func TestEventQueue_DispatchEmptyReturnsImmediately(t *testing.T) {
	q := NewEventQueue()
	start := time.Now()
	q.Dispatch(0)
	require.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestEventQueue_DispatchWaitsForLateActions(t *testing.T) {
	q := NewEventQueue()
	done := make(chan struct{})
	ran := false

	go func() {
		time.Sleep(20 * time.Millisecond)
		q.Schedule(func() { ran = true })
		close(done)
	}()

	q.Dispatch(time.Second)
	<-done
	q.Dispatch(0)
	require.True(t, ran)
}

func TestEventQueue_ActionMaySchedule(t *testing.T) {
	q := NewEventQueue()
	var got []string
	q.Schedule(func() {
		got = append(got, "outer")
		q.Schedule(func() { got = append(got, "inner") })
	})

	q.Dispatch(0)

	require.Equal(t, []string{"outer", "inner"}, got)
}

func TestEventQueue_FlushRunsNestedActions(t *testing.T) {
	q := NewEventQueue()
	var got []int
	var push func(n int)
	push = func(n int) {
		q.Schedule(func() {
			got = append(got, n)
			if n < 3 {
				push(n + 1)
			}
		})
	}
	push(0)

	q.Flush()

	require.Equal(t, []int{0, 1, 2, 3}, got)
	require.Zero(t, q.Len())
}

func TestEventQueue_ConcurrentScheduleKeepsPerProducerOrder(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		producers := rapid.IntRange(1, 4).Draw(t, "producers")
		perProducer := rapid.IntRange(0, 50).Draw(t, "perProducer")

		q := NewEventQueue()
		seen := make([][]int, producers)

		var wg sync.WaitGroup
		for p := 0; p < producers; p++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := 0; i < perProducer; i++ {
					q.Schedule(func() { seen[p] = append(seen[p], i) })
				}
			}()
		}
		wg.Wait()
		q.Dispatch(0)

		for p := 0; p < producers; p++ {
			require.Len(t, seen[p], perProducer)
			for i, v := range seen[p] {
				require.Equal(t, i, v)
			}
		}
	})
}
