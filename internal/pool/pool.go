// Package pool implements the QoS-aware worker pool the task scheduler's
// core dispatches onto: a container/heap priority queue of pending work,
// atomic worker bookkeeping, health monitoring, and metrics, feeding
// fire-and-forget closures dispatched under a task.QoS hint.
package pool

import (
	"container/heap"
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ByteMirror/taskqueue/internal/xlog"
	"github.com/ByteMirror/taskqueue/task"
)

// Dispatcher is the abstraction the task queue core depends on: schedule a
// closure to run under a QoS hint, and shut down gracefully. Consumers may
// substitute their own implementation; WorkerPool below is the one this
// module ships.
type Dispatcher interface {
	Dispatch(ctx context.Context, qos task.QoS, fn func(context.Context)) error
	Shutdown(ctx context.Context) error
}

// WorkerStatus is the health state of a single worker goroutine.
type WorkerStatus int

const (
	WorkerIdle WorkerStatus = iota
	WorkerBusy
	WorkerStopped
)

func (s WorkerStatus) String() string {
	switch s {
	case WorkerIdle:
		return "idle"
	case WorkerBusy:
		return "busy"
	case WorkerStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// worker tracks one pool goroutine's health.
type worker struct {
	id            int
	status        atomic.Int32
	lastHeartbeat atomic.Int64
	jobsDone      atomic.Uint64
}

func newWorker(id int) *worker {
	w := &worker{id: id}
	w.status.Store(int32(WorkerIdle))
	w.touch()
	return w
}

func (w *worker) touch()                   { w.lastHeartbeat.Store(time.Now().Unix()) }
func (w *worker) setStatus(s WorkerStatus) { w.status.Store(int32(s)) }
func (w *worker) Status() WorkerStatus     { return WorkerStatus(w.status.Load()) }
func (w *worker) LastHeartbeat() time.Time { return time.Unix(w.lastHeartbeat.Load(), 0) }
func (w *worker) JobsDone() uint64         { return w.jobsDone.Load() }
func (w *worker) incJobsDone()             { w.jobsDone.Add(1) }

// Metrics tracks pool-wide counters.
type Metrics struct {
	Submitted atomic.Uint64
	Completed atomic.Uint64
	Active    atomic.Int32
	Idle      atomic.Int32
}

func (m *Metrics) String() string {
	return fmt.Sprintf("submitted=%d completed=%d active=%d idle=%d",
		m.Submitted.Load(), m.Completed.Load(), m.Active.Load(), m.Idle.Load())
}

// job is one dispatched unit of work.
type job struct {
	qos task.QoS
	fn  func(context.Context)
}

// heapItem wraps a job for container/heap, ordered by QoS (higher first).
type heapItem struct {
	j     job
	index int
}

type jobHeap struct {
	items []*heapItem
	mu    sync.Mutex
}

func (h *jobHeap) Len() int { return len(h.items) }
func (h *jobHeap) Less(i, j int) bool {
	return h.items[i].j.qos > h.items[j].j.qos
}
func (h *jobHeap) Swap(i, j int) {
	h.items[i], h.items[j] = h.items[j], h.items[i]
	h.items[i].index = i
	h.items[j].index = j
}
func (h *jobHeap) Push(x interface{}) {
	item := x.(*heapItem)
	item.index = len(h.items)
	h.items = append(h.items, item)
}
func (h *jobHeap) Pop() interface{} {
	old := h.items
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	h.items = old[:n-1]
	return item
}

// Config configures a WorkerPool.
type Config struct {
	// MaxWorkers is the maximum number of concurrent worker goroutines.
	MaxWorkers int
	// QueueSize is the buffer size of the submission channel. Jobs moved
	// from it into the priority heap no longer count against it; the heap
	// itself is unbounded.
	QueueSize int
	// HealthCheckInterval controls how often stalled workers are flagged.
	HealthCheckInterval time.Duration
}

// DefaultConfig returns sane defaults. New substitutes the same values for
// any zero field of the Config it is given.
func DefaultConfig() Config {
	return Config{
		MaxWorkers:          10,
		QueueSize:           1000,
		HealthCheckInterval: 30 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	if c.MaxWorkers <= 0 {
		c.MaxWorkers = 10
	}
	if c.MaxWorkers > 1000 {
		c.MaxWorkers = 1000
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 1000
	}
	if c.HealthCheckInterval <= 0 {
		c.HealthCheckInterval = 30 * time.Second
	}
	return c
}

// WorkerPool is a fixed-size pool of goroutines draining a QoS-ordered
// priority queue of dispatched closures.
type WorkerPool struct {
	config     Config
	workers    []*worker
	queue      *jobHeap
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	metrics    Metrics
	started    atomic.Bool
	submitChan chan job
	workChan   chan job
}

// New creates a WorkerPool with the given configuration.
func New(config Config) *WorkerPool {
	config = config.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())

	wp := &WorkerPool{
		config:     config,
		queue:      &jobHeap{items: make([]*heapItem, 0)},
		ctx:        ctx,
		cancel:     cancel,
		submitChan: make(chan job, config.QueueSize),
		// workChan is deliberately unbuffered: a job only leaves the
		// priority heap once a worker is actually ready to receive it,
		// so QoS ordering isn't defeated by a job sitting in a channel
		// buffer ahead of a higher-priority one still in the heap.
		workChan: make(chan job),
	}
	wp.workers = make([]*worker, config.MaxWorkers)
	for i := range wp.workers {
		wp.workers[i] = newWorker(i)
	}
	return wp
}

// Start launches the dispatcher, worker, and health-monitor goroutines.
func (wp *WorkerPool) Start() error {
	if !wp.started.CompareAndSwap(false, true) {
		return fmt.Errorf("pool: already started")
	}
	wp.wg.Add(1)
	go wp.dispatchLoop()
	for _, w := range wp.workers {
		wp.wg.Add(1)
		go wp.workerLoop(w)
	}
	wp.wg.Add(1)
	go wp.healthMonitor()
	return nil
}

// Dispatch implements Dispatcher: it schedules fn to run under qos.
func (wp *WorkerPool) Dispatch(ctx context.Context, qos task.QoS, fn func(context.Context)) error {
	if !wp.started.Load() {
		return fmt.Errorf("pool: not started")
	}
	select {
	case <-wp.ctx.Done():
		return fmt.Errorf("pool: shutting down")
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	wp.metrics.Submitted.Add(1)
	select {
	case wp.submitChan <- job{qos: qos, fn: fn}:
		return nil
	case <-wp.ctx.Done():
		return fmt.Errorf("pool: shutting down")
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown cancels outstanding work and waits for workers to drain, up to
// ctx's deadline.
func (wp *WorkerPool) Shutdown(ctx context.Context) error {
	if !wp.started.Load() {
		return nil
	}
	wp.cancel()

	done := make(chan struct{})
	go func() {
		wp.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("pool: shutdown cancelled: %w", ctx.Err())
	}
}

// Metrics returns a snapshot-capable pointer to the pool's counters.
func (wp *WorkerPool) Metrics() *Metrics { return &wp.metrics }

func (wp *WorkerPool) dispatchLoop() {
	defer wp.wg.Done()
	defer close(wp.workChan)

	throttle := xlog.NewEvery(time.Second)

	for {
		select {
		case <-wp.ctx.Done():
			return
		case j, ok := <-wp.submitChan:
			if !ok {
				return
			}
			wp.queue.mu.Lock()
			heap.Push(wp.queue, &heapItem{j: j})
			wp.queue.mu.Unlock()
			wp.tryDispatch()
		default:
			if !wp.tryDispatch() {
				if throttle.ShouldLog() {
					xlog.Debug.Printf("pool: idle, %d workers", len(wp.workers))
				}
				time.Sleep(time.Millisecond)
			}
		}
	}
}

func (wp *WorkerPool) tryDispatch() bool {
	wp.queue.mu.Lock()
	if wp.queue.Len() == 0 {
		wp.queue.mu.Unlock()
		return false
	}
	item := heap.Pop(wp.queue).(*heapItem)
	wp.queue.mu.Unlock()

	select {
	case wp.workChan <- item.j:
		return true
	case <-wp.ctx.Done():
		return false
	default:
		wp.queue.mu.Lock()
		heap.Push(wp.queue, item)
		wp.queue.mu.Unlock()
		return false
	}
}

func (wp *WorkerPool) workerLoop(w *worker) {
	defer wp.wg.Done()

	for {
		w.setStatus(WorkerIdle)
		w.touch()
		wp.metrics.Idle.Add(1)

		select {
		case <-wp.ctx.Done():
			w.setStatus(WorkerStopped)
			wp.metrics.Idle.Add(-1)
			return
		case j, ok := <-wp.workChan:
			wp.metrics.Idle.Add(-1)
			if !ok {
				w.setStatus(WorkerStopped)
				return
			}
			wp.run(w, j)
		}
	}
}

func (wp *WorkerPool) run(w *worker, j job) {
	w.setStatus(WorkerBusy)
	w.touch()
	wp.metrics.Active.Add(1)
	defer wp.metrics.Active.Add(-1)

	j.fn(wp.ctx)

	w.incJobsDone()
	wp.metrics.Completed.Add(1)
}

func (wp *WorkerPool) healthMonitor() {
	defer wp.wg.Done()

	ticker := time.NewTicker(wp.config.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-wp.ctx.Done():
			return
		case <-ticker.C:
			now := time.Now()
			for _, w := range wp.workers {
				if w.Status() == WorkerBusy && now.Sub(w.LastHeartbeat()) > wp.config.HealthCheckInterval*2 {
					xlog.Warn.Printf("pool: worker %d stalled, no heartbeat for %v", w.id, now.Sub(w.LastHeartbeat()))
				}
			}
		}
	}
}
