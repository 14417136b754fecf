package workqueue

import (
	"bytes"
	"log/slog"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFanInMergesAndClosesWhenSealed(t *testing.T) {
	q := New[int]()
	fanin := NewFanIn(q, true)

	in1, in2 := make(chan int), make(chan int)
	fanin.Add(in1, in2)
	fanin.Seal()

	go func() {
		for i := 0; i < 50; i++ {
			in1 <- i
		}
		close(in1)
	}()
	go func() {
		for i := 50; i < 100; i++ {
			in2 <- i
		}
		close(in2)
	}()

	got := drain(t, q)
	slices.Sort(got)
	want := make([]int, 100)
	for i := range want {
		want[i] = i
	}
	assert.Equal(t, want, got)

	assert.NoError(t, withTimeout(t, fanin.ClosedChan()))
	assert.False(t, fanin.IsRunning())
}

func TestFanInStopClosesQueue(t *testing.T) {
	q := New[int]()
	fanin := NewFanIn(q, true)

	in1 := make(chan int, 1)
	fanin.Add(in1)
	in1 <- 100

	require.Eventually(t, func() bool { return q.Len() == 1 }, time.Second, time.Millisecond)
	require.NoError(t, fanin.Stop())

	assert.True(t, q.IsClosed())
	assert.Equal(t, []int{100}, drain(t, q))
}

func TestFanInWithoutCloseLeavesQueueOpen(t *testing.T) {
	q := New[int]()
	fanin := NewFanIn(q, false)
	fanin.Add(make(chan int))
	require.NoError(t, fanin.Stop())

	assert.False(t, q.IsClosed())
}

func TestFanInRemove(t *testing.T) {
	q := New[int]()
	fanin := NewFanIn(q, false)
	defer fanin.Stop()

	removed := make(chan (<-chan int), 1)
	fanin.OnChannelRemoved = func(fi *FanIn[int], inchan <-chan int) {
		removed <- inchan
	}

	in1 := make(chan int)
	var ro <-chan int = in1
	fanin.Add(ro)
	fanin.Remove(ro)

	assert.Equal(t, ro, withTimeout(t, removed))
}

func TestFanInAddNilPanics(t *testing.T) {
	q := New[int]()
	fanin := NewFanIn(q, false)
	defer fanin.Stop()

	assert.Panics(t, func() { fanin.Add(nil) })
}

func TestFanInCommandsAfterStopAreReported(t *testing.T) {
	var logs bytes.Buffer
	q := New[int](WithLogger(slog.New(slog.NewTextHandler(&logs, nil))))
	fanin := NewFanIn(q, false)
	require.NoError(t, fanin.Stop())

	in := make(chan int, 1)
	in <- 1
	assert.False(t, fanin.Add(in))
	assert.False(t, fanin.Remove(in))
	assert.False(t, fanin.Seal())

	assert.Equal(t, 0, q.Len(), "late input must not be drained")
	assert.Contains(t, logs.String(), "fanin command dropped")
	assert.Contains(t, logs.String(), "command=add")
}

func TestFanInCommandsWhileRunning(t *testing.T) {
	q := New[int]()
	fanin := NewFanIn(q, true)
	defer fanin.Stop()

	in := make(chan int)
	assert.True(t, fanin.Add(in))
	assert.True(t, fanin.Seal())
	close(in)
	assert.NoError(t, withTimeout(t, fanin.ClosedChan()))
}
