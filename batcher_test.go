package workqueue

import (
	"fmt"
	"log"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ExampleBatcher() {
	q := New[int]()

	// Collect queued integers into slices of at most 3
	batcher := NewIDBatcher(q, 3, WithFlushPeriod[int, []int, []int](time.Minute))

	for i := range 5 {
		q.Put(i)
	}
	q.Close()

	for batch := range batcher.OutputChan() {
		fmt.Println(batch)
	}

	// Output:
	// [0 1 2]
	// [3 4]
}

func TestIDBatcherFlushesOnPeriod(t *testing.T) {
	log.Println("============== TestIDBatcherFlushesOnPeriod ================")
	q := New[int]()
	batcher := NewIDBatcher(q, 0, WithFlushPeriod[int, []int, []int](50*time.Millisecond))
	defer batcher.Stop()

	for i := range 5 {
		require.NoError(t, q.Put(i))
	}

	batch := withTimeout(t, batcher.OutputChan())
	assert.Equal(t, []int{0, 1, 2, 3, 4}, batch)
}

func TestIDBatcherFlushesOnSize(t *testing.T) {
	log.Println("============== TestIDBatcherFlushesOnSize ================")
	q := New[int]()
	batcher := NewIDBatcher(q, 2, WithFlushPeriod[int, []int, []int](10*time.Second))
	defer batcher.Stop()

	for i := range 4 {
		require.NoError(t, q.Put(i))
	}

	assert.Equal(t, []int{0, 1}, withTimeout(t, batcher.OutputChan()))
	assert.Equal(t, []int{2, 3}, withTimeout(t, batcher.OutputChan()))
}

func TestBatcherManualFlush(t *testing.T) {
	log.Println("============== TestBatcherManualFlush ================")
	q := New[int]()
	// Set a very long flush period so auto-flush doesn't trigger
	batcher := NewIDBatcher(q, 0, WithFlushPeriod[int, []int, []int](10*time.Second))
	defer batcher.Stop()

	for i := range 3 {
		require.NoError(t, q.Put(i))
	}
	require.Eventually(t, func() bool { return q.Len() == 0 }, time.Second, time.Millisecond)
	batcher.Flush()

	batch := withTimeout(t, batcher.OutputChan())
	assert.Equal(t, []int{0, 1, 2}, batch)
}

func TestBatcherMultipleBatches(t *testing.T) {
	log.Println("============== TestBatcherMultipleBatches ================")
	q := New[int]()
	outputChan := make(chan []int, 10)
	batcher := NewIDBatcher(q, 0,
		WithFlushPeriod[int, []int, []int](30*time.Millisecond),
		WithOutputChan[int, []int](outputChan))
	defer batcher.Stop()

	for i := range 3 {
		require.NoError(t, q.Put(i))
	}
	batch1 := withTimeout(t, outputChan)
	assert.Equal(t, []int{0, 1, 2}, batch1, "First batch should contain 0,1,2")

	for i := 10; i < 13; i++ {
		require.NoError(t, q.Put(i))
	}
	batch2 := withTimeout(t, outputChan)
	assert.Equal(t, []int{10, 11, 12}, batch2, "Second batch should contain 10,11,12")
}

func TestBatcherFinalFlushOnClose(t *testing.T) {
	log.Println("============== TestBatcherFinalFlushOnClose ================")
	q := New[int]()
	for i := range 7 {
		require.NoError(t, q.Put(i))
	}
	q.Close()

	batcher := NewIDBatcher(q, 0, WithFlushPeriod[int, []int, []int](10*time.Second))

	var all []int
	for batch := range batcher.OutputChan() {
		all = append(all, batch...)
	}
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6}, all)
	assert.NoError(t, withTimeout(t, batcher.ClosedChan()))
	assert.False(t, batcher.IsRunning())
}

func TestBatcherNoEmptyBatches(t *testing.T) {
	log.Println("============== TestBatcherNoEmptyBatches ================")
	q := New[int]()
	batcher := NewIDBatcher(q, 0, WithFlushPeriod[int, []int, []int](10*time.Millisecond))
	defer batcher.Stop()

	select {
	case batch := <-batcher.OutputChan():
		t.Fatalf("unexpected batch %v from an empty queue", batch)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestBatcherCustomCollectFunc(t *testing.T) {
	log.Println("============== TestBatcherCustomCollectFunc ================")
	q := New[int]()

	// Custom batcher that sums integers
	batcher := NewBatcher(q,
		WithFlushPeriod[int, int, int](50*time.Millisecond),
		WithCollectFunc[int, int, int](func(input int, sum int) (int, bool) {
			return sum + input, false
		}),
		WithReduceFunc[int](func(sum int) int { return sum }))
	defer batcher.Stop()

	// Send values 1+2+3+4+5 = 15
	for i := 1; i <= 5; i++ {
		require.NoError(t, q.Put(i))
	}
	q.Close()

	result := withTimeout(t, batcher.OutputChan())
	assert.Equal(t, 15, result, "Sum should be 15")
}

func TestBatcherWithMapCollection(t *testing.T) {
	log.Println("============== TestBatcherWithMapCollection ================")
	type WordCount map[string]int

	q := New[string]()
	batcher := NewBatcher(q,
		WithCollectFunc[string, WordCount, int](func(word string, counts WordCount) (WordCount, bool) {
			if counts == nil {
				counts = make(WordCount)
			}
			counts[word]++
			return counts, false
		}),
		WithReduceFunc[string](func(counts WordCount) int {
			return len(counts) // Return unique word count
		}))
	defer batcher.Stop()

	for _, w := range []string{"hello", "world", "hello", "go", "world", "hello"} {
		require.NoError(t, q.Put(w))
	}
	q.Close()

	uniqueCount := withTimeout(t, batcher.OutputChan())
	assert.Equal(t, 3, uniqueCount, "Should have 3 unique words")
}

func TestBatcherWithStructCollection(t *testing.T) {
	log.Println("============== TestBatcherWithStructCollection ================")

	type Stats struct {
		Sum   int
		Count int
	}

	q := New[int]()
	batcher := NewBatcher(q,
		WithFlushPeriod[int, Stats, float64](50*time.Millisecond),
		WithCollectFunc[int, Stats, float64](func(input int, stats Stats) (Stats, bool) {
			stats.Sum += input
			stats.Count++
			return stats, false
		}),
		WithReduceFunc[int](func(stats Stats) float64 {
			return float64(stats.Sum) / float64(stats.Count)
		}))
	defer batcher.Stop()

	// average of 2,4,6,8,10 = 6
	for i := 2; i <= 10; i += 2 {
		require.NoError(t, q.Put(i))
	}

	avg := withTimeout(t, batcher.OutputChan())
	assert.Equal(t, 6.0, avg, "Average should be 6.0")
}

func TestBatcherStop(t *testing.T) {
	log.Println("============== TestBatcherStop ================")
	q := New[int]()
	batcher := NewIDBatcher(q, 0, WithFlushPeriod[int, []int, []int](time.Second))

	require.NoError(t, q.Put(1))
	require.NoError(t, q.Put(2))
	time.Sleep(50 * time.Millisecond)

	// Stop should complete without blocking, even with nobody reading
	done := make(chan bool)
	go func() {
		batcher.Stop()
		done <- true
	}()
	withTimeout(t, done)

	assert.False(t, batcher.IsRunning())
	_, open := <-batcher.OutputChan()
	assert.False(t, open, "owned output channel is closed after stop")
}

// drainBatches reads batches until want items were seen, checking that they
// arrive in queue order.
func drainBatches(t *testing.T, out <-chan []int, want int) [][]int {
	t.Helper()
	var batches [][]int
	next := 0
	for next < want {
		batch := withTimeout(t, out)
		for _, v := range batch {
			require.Equal(t, next, v, "items out of order")
			next++
		}
		batches = append(batches, batch)
	}
	return batches
}

func TestIDBatcherPeriodFlushesWithBacklog(t *testing.T) {
	log.Println("============== TestIDBatcherPeriodFlushesWithBacklog ================")
	const n = 500_000
	q := New[int]()
	for i := range n {
		require.NoError(t, q.Put(i))
	}

	batcher := NewIDBatcher(q, 0, WithFlushPeriod[int, []int, []int](time.Millisecond))
	defer batcher.Stop()

	batches := drainBatches(t, batcher.OutputChan(), n)
	assert.Less(t, len(batches[0]), n, "first window must close while items are still queued")
	assert.Greater(t, len(batches), 1)
}

func TestIDBatcherPeriodFlushesWhileProducing(t *testing.T) {
	log.Println("============== TestIDBatcherPeriodFlushesWhileProducing ================")
	q := New[int]()
	batcher := NewIDBatcher(q, 0, WithFlushPeriod[int, []int, []int](5*time.Millisecond))

	produced := make(chan int, 1)
	go func() {
		deadline := time.Now().Add(200 * time.Millisecond)
		i := 0
		for time.Now().Before(deadline) {
			_ = q.Put(i)
			i++
		}
		q.Close()
		produced <- i
	}()

	var batches, total int
	for batch := range batcher.OutputChan() {
		batches++
		total += len(batch)
	}
	assert.Equal(t, withTimeout(t, produced), total)
	assert.GreaterOrEqual(t, batches, 5, "expected a flush roughly every period")
}

func TestBatcherManualFlushWithBacklog(t *testing.T) {
	log.Println("============== TestBatcherManualFlushWithBacklog ================")
	const n = 200_000
	q := New[int]()
	for i := range n {
		require.NoError(t, q.Put(i))
	}

	entered := make(chan struct{})
	gate := make(chan struct{})
	gated := false
	batcher := NewBatcher(q,
		WithFlushPeriod[int, []int, []int](10*time.Second),
		WithCollectFunc[int, []int, []int](func(input int, collection []int) ([]int, bool) {
			if !gated {
				gated = true
				close(entered)
				<-gate
			}
			return append(collection, input), false
		}),
		WithReduceFunc[int](IDFunc[[]int]))
	defer batcher.Stop()

	withTimeout(t, entered)
	batcher.Flush()
	close(gate)

	first := withTimeout(t, batcher.OutputChan())
	assert.Less(t, len(first), n, "Flush must not wait for the queue to drain")

	q.Close()
	rest := 0
	for batch := range batcher.OutputChan() {
		rest += len(batch)
	}
	assert.Equal(t, n, len(first)+rest)
}
