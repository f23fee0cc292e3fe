// Package pool implements the bounded worker pool that executes
// connection-handler tasks. A ring-buffer-plus-two-condvars queue is
// rendered here as a buffered channel: the channel's buffer is the
// ring, and channel send/receive blocking is the not_full/not_empty
// condition variables. Grounded on friggdb/pool.Pool, restructured from
// its request/response RunJobs shape into fire-and-forget task
// execution, since a connection handler has no result to collect.
package pool

import (
	"sync"
	"sync/atomic"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricQueueLength = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "cache_proxy",
		Name:      "task_queue_length",
		Help:      "Current number of tasks waiting in the worker pool queue.",
	})
	metricQueueCapacity = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "cache_proxy",
		Name:      "task_queue_capacity",
		Help:      "Configured capacity of the worker pool queue.",
	})
	metricTasksExecuted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "cache_proxy",
		Name:      "tasks_executed_total",
		Help:      "Total number of tasks that ran to completion.",
	})
)

// Config sizes the pool.
type Config struct {
	Workers       int
	QueueCapacity int
}

// Pool is a fixed set of workers draining a bounded FIFO of tasks.
//
// closeMu guards the shutdown transition: Submit holds it for read
// while sending so a concurrent Shutdown cannot close the tasks
// channel out from under an in-flight send, which would otherwise
// panic.
type Pool struct {
	logger log.Logger

	tasks    chan func()
	size     atomic.Int64
	shutdown atomic.Bool
	closeMu  sync.RWMutex

	wg sync.WaitGroup
}

// New spawns cfg.Workers goroutines, each pulling from a channel of
// capacity cfg.QueueCapacity.
func New(cfg Config, logger log.Logger) *Pool {
	p := &Pool{
		logger: logger,
		tasks:  make(chan func(), cfg.QueueCapacity),
	}
	metricQueueCapacity.Set(float64(cfg.QueueCapacity))

	p.wg.Add(cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		go p.worker(i)
	}
	return p
}

func (p *Pool) worker(i int) {
	defer p.wg.Done()
	wlog := level.Debug(log.With(p.logger, "thread", threadName(i)))
	for task := range p.tasks {
		p.size.Add(-1)
		metricQueueLength.Set(float64(p.size.Load()))
		taskID := uuid.New().String()
		task()
		metricTasksExecuted.Inc()
		wlog.Log("msg", "task completed", "task", taskID)
	}
}

func threadName(i int) string {
	return "thread-pool-" + itoa(i)
}

func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	neg := i < 0
	if neg {
		i = -i
	}
	var buf [20]byte
	pos := len(buf)
	for i > 0 {
		pos--
		buf[pos] = byte('0' + i%10)
		i /= 10
	}
	if neg {
		pos--
		buf[pos] = '-'
	}
	return string(buf[pos:])
}

// Submit enqueues fn for execution by some worker, blocking while the
// queue is full and shutdown has not begun. If shutdown is already
// observed, Submit returns immediately without enqueuing fn: no task
// is enqueued once shutdown begins.
func (p *Pool) Submit(fn func()) {
	p.closeMu.RLock()
	defer p.closeMu.RUnlock()

	if p.shutdown.Load() {
		return
	}
	p.tasks <- fn
	p.size.Add(1)
	metricQueueLength.Set(float64(p.size.Load()))
}

// Shutdown marks the pool as shutting down, closes the task channel so
// every worker drains the remaining queue and exits, and blocks until
// every worker has returned. Every task enqueued before Shutdown was
// called has run to completion by the time Shutdown returns.
func (p *Pool) Shutdown() {
	if !p.shutdown.CompareAndSwap(false, true) {
		return
	}
	p.closeMu.Lock()
	close(p.tasks)
	p.closeMu.Unlock()
	p.wg.Wait()
}

// QueueLength returns the current number of tasks waiting to run.
func (p *Pool) QueueLength() int {
	return int(p.size.Load())
}
