package pool

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-kit/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubmitRunsEveryTask(t *testing.T) {
	p := New(Config{Workers: 4, QueueCapacity: 16}, log.NewNopLogger())

	var count int64
	var wg sync.WaitGroup
	wg.Add(50)
	for i := 0; i < 50; i++ {
		p.Submit(func() {
			atomic.AddInt64(&count, 1)
			wg.Done()
		})
	}
	wg.Wait()
	assert.EqualValues(t, 50, atomic.LoadInt64(&count))
	p.Shutdown()
}

func TestFIFOOrderAmongEnqueuedTasks(t *testing.T) {
	p := New(Config{Workers: 1, QueueCapacity: 16}, log.NewNopLogger())
	defer p.Shutdown()

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup
	wg.Add(10)
	for i := 0; i < 10; i++ {
		i := i
		p.Submit(func() {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			wg.Done()
		})
	}
	wg.Wait()

	for i, v := range order {
		assert.Equal(t, i, v)
	}
}

func TestShutdownDrainsEnqueuedTasksBeforeReturning(t *testing.T) {
	// P5: every task enqueued before shutdown began has run to
	// completion by the time Shutdown returns.
	p := New(Config{Workers: 2, QueueCapacity: 32}, log.NewNopLogger())

	var count int64
	for i := 0; i < 20; i++ {
		p.Submit(func() {
			time.Sleep(time.Millisecond)
			atomic.AddInt64(&count, 1)
		})
	}
	p.Shutdown()
	assert.EqualValues(t, 20, atomic.LoadInt64(&count))
}

func TestSubmitAfterShutdownIsSilentlyDropped(t *testing.T) {
	p := New(Config{Workers: 1, QueueCapacity: 4}, log.NewNopLogger())
	p.Shutdown()

	var ran bool
	p.Submit(func() { ran = true })
	assert.False(t, ran)
}

func TestQueueLengthReflectsPendingTasks(t *testing.T) {
	p := New(Config{Workers: 1, QueueCapacity: 8}, log.NewNopLogger())
	defer p.Shutdown()

	release := make(chan struct{})
	p.Submit(func() { <-release })

	for i := 0; i < 3; i++ {
		p.Submit(func() {})
	}

	require.Eventually(t, func() bool {
		return p.QueueLength() >= 3
	}, time.Second, 5*time.Millisecond)
	close(release)
}
