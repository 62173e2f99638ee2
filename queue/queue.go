// Package queue implements TaskQueue, the scheduler's core runtime: a
// priority-ordered waiting list, a bounded-concurrency scheduling loop, and
// the prepare/configure/execute lifecycle every added task is driven
// through.
package queue

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/ByteMirror/taskqueue/internal/pool"
	"github.com/ByteMirror/taskqueue/internal/xlog"
	"github.com/ByteMirror/taskqueue/task"
	"github.com/ByteMirror/taskqueue/taskstate"

	"golang.org/x/sync/semaphore"
)

// TaskQueue is the scheduler's core runtime. The zero value is not usable;
// construct one with New or NewCustom.
type TaskQueue struct {
	name            string
	maxSimultaneous int64
	sem             *semaphore.Weighted
	dispatcher      pool.Dispatcher
	resolver        Resolver

	mu        sync.RWMutex
	waiting   []task.Task
	tasksByID map[task.ID]task.Task

	handlesMu sync.RWMutex
	handles   map[task.ID]*CompletionHandle

	execLocks sync.Map // task.ID -> *sync.Mutex
	abandoned sync.Map // task.ID -> struct{}, set by Cancel for non-Cancellable tasks

	activeFlag atomic.Bool
	triggerCh  chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New constructs a TaskQueue backed by dispatcher, using the local
// dependency-resolution strategy (dependencies are started on this same
// queue rather than a remote federation).
func New(cfg Config, dispatcher pool.Dispatcher) *TaskQueue {
	return NewCustom(cfg, dispatcher, localResolver{})
}

// NewCustom constructs a TaskQueue with a caller-supplied Resolver. Used by
// package linked to install its federated resolver.
func NewCustom(cfg Config, dispatcher pool.Dispatcher, resolver Resolver) *TaskQueue {
	cfg = cfg.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	q := &TaskQueue{
		name:            cfg.Name,
		maxSimultaneous: int64(cfg.MaxSimultaneous),
		sem:             semaphore.NewWeighted(int64(cfg.MaxSimultaneous)),
		dispatcher:      dispatcher,
		resolver:        resolver,
		tasksByID:       make(map[task.ID]task.Task),
		handles:         make(map[task.ID]*CompletionHandle),
		triggerCh:       make(chan struct{}, 1),
		ctx:             ctx,
		cancel:          cancel,
	}
	q.wg.Add(1)
	go q.loop()
	return q
}

// Name returns the queue's configured name (may be empty).
func (q *TaskQueue) Name() string { return q.name }

// Close stops the scheduling loop. In-flight lifecycle goroutines already
// dispatched to the worker pool are not interrupted; their queue-side
// bookkeeping simply stops reacting to new triggers.
func (q *TaskQueue) Close() {
	q.cancel()
	q.wg.Wait()
}

// Add enqueues t. Re-adding a task id already known to the queue is a no-op.
func (q *TaskQueue) Add(t task.Task) {
	_ = q.addLocked(t)
}

// AddStrict enqueues t like Add, but returns ErrTaskExists instead of
// silently no-opping when t's id is already known to the queue.
func (q *TaskQueue) AddStrict(t task.Task) error {
	if !q.addLocked(t) {
		return ErrTaskExists
	}
	return nil
}

// addLocked enqueues t and reports whether it was newly added.
func (q *TaskQueue) addLocked(t task.Task) bool {
	q.mu.Lock()
	if _, exists := q.tasksByID[t.ID()]; exists {
		q.mu.Unlock()
		return false
	}
	q.tasksByID[t.ID()] = t
	q.waiting = append(q.waiting, t)
	q.resort()
	q.mu.Unlock()

	q.handleFor(t.ID())
	q.triggerNext()
	return true
}

// AddAll enqueues every task in ts, in order.
func (q *TaskQueue) AddAll(ts []task.Task) {
	for _, t := range ts {
		q.Add(t)
	}
}

// Start marks the queue active, letting the scheduling loop begin drawing
// from the waiting list. Starting an already-active queue is a no-op.
func (q *TaskQueue) Start() {
	if q.activeFlag.CompareAndSwap(false, true) {
		q.triggerNext()
	}
}

// IsActive reports whether Start has been called without a subsequent
// Pause.
func (q *TaskQueue) IsActive() bool { return q.activeFlag.Load() }

// triggerNext wakes the scheduling loop, non-blocking: if a wake is already
// pending, this is a no-op.
func (q *TaskQueue) triggerNext() {
	select {
	case q.triggerCh <- struct{}{}:
	default:
	}
}

func (q *TaskQueue) loop() {
	defer q.wg.Done()
	for {
		select {
		case <-q.ctx.Done():
			return
		case <-q.triggerCh:
			if q.activeFlag.Load() {
				q.drain()
			}
		}
	}
}

// drain dispatches as many waiting-list entries as current capacity allows.
func (q *TaskQueue) drain() {
	for {
		if !q.sem.TryAcquire(1) {
			return
		}
		t := q.popNext()
		if t == nil {
			q.sem.Release(1)
			return
		}
		q.wg.Add(1)
		t := t
		err := q.dispatcher.Dispatch(q.ctx, t.QoS(), func(ctx context.Context) {
			q.runLifecycle(t, true)
		})
		if err != nil {
			xlog.Error.Printf("queue %s: dispatch of task %s failed: %v", q.name, t.ID(), err)
			q.sem.Release(1)
			q.wg.Done()
			return
		}
	}
}

// popNext removes and returns the highest-precedence waiting task, or nil
// if the waiting list is empty. The waiting list is kept sorted on every
// mutation, so the front entry is always the next pick.
func (q *TaskQueue) popNext() task.Task {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.waiting) == 0 {
		return nil
	}
	t := q.waiting[0]
	q.waiting = q.waiting[1:]
	return t
}

// readmit re-inserts t into the waiting list (used by federated dependency
// resolution once a parked task's dependencies have all signalled) and
// wakes the scheduling loop.
func (q *TaskQueue) readmit(t task.Task) {
	q.mu.Lock()
	q.waiting = append(q.waiting, t)
	q.resort()
	q.mu.Unlock()
	q.triggerNext()
}

// pickCategory orders waiting-list entries within a priority tier: a
// done(waiting) re-admitted task sorts first, then plain (non-Dependent)
// tasks, then Dependent tasks (broken by fewest incomplete dependencies).
func pickCategory(t task.Task) (category int, incomplete int) {
	if t.State().IsWaited() {
		return 0, 0
	}
	dep, ok := t.(task.Dependent)
	if !ok {
		return 1, 0
	}
	return 2, len(dep.Incomplete())
}

// resort re-applies the waiting-list sort order: priority descending, then
// pickCategory (and fewer incomplete dependencies first), remaining ties
// broken by insertion order. Callers must hold q.mu.
func (q *TaskQueue) resort() {
	sort.SliceStable(q.waiting, func(i, j int) bool {
		a, b := q.waiting[i], q.waiting[j]
		if cmp := b.Priority().Compare(*a.Priority()); cmp != 0 {
			return cmp < 0 // higher priority first
		}
		ca, ia := pickCategory(a)
		cb, ib := pickCategory(b)
		if ca != cb {
			return ca < cb
		}
		return ia < ib
	})
}

// handleFor returns (creating if necessary) the CompletionHandle for id.
func (q *TaskQueue) handleFor(id task.ID) *CompletionHandle {
	q.handlesMu.Lock()
	defer q.handlesMu.Unlock()
	h, ok := q.handles[id]
	if !ok {
		h = newCompletionHandle()
		q.handles[id] = h
	}
	return h
}

func (q *TaskQueue) execLock(id task.ID) *sync.Mutex {
	v, _ := q.execLocks.LoadOrStore(id, &sync.Mutex{})
	return v.(*sync.Mutex)
}

// ensureStarted is the hook localResolver uses to bring an incomplete
// dependency to life: if it is still ready and sitting in the waiting list,
// it is claimed (removed from the list, marked beginning) and driven
// through its own lifecycle on a fresh goroutine, but without consuming a
// semaphore permit or triggering a further pick once it finishes: the
// dependent already holds the capacity slot that authorizes this work, so
// accounting must not double-count it. If the dependency is already
// running or terminal, its existing handle is returned as-is.
func (q *TaskQueue) ensureStarted(d task.Task) *CompletionHandle {
	q.mu.Lock()
	if _, known := q.tasksByID[d.ID()]; !known {
		q.tasksByID[d.ID()] = d
	}
	h, ok := q.handles[d.ID()]
	if !ok {
		q.handlesMu.Lock()
		h = newCompletionHandle()
		q.handles[d.ID()] = h
		q.handlesMu.Unlock()
	}
	claim := d.State().IsReady()
	if claim {
		for i, w := range q.waiting {
			if w.ID() == d.ID() {
				q.waiting = append(q.waiting[:i], q.waiting[i+1:]...)
				break
			}
		}
		d.SetState(d.State().StartTo(taskstate.PhaseBeginning))
	}
	q.mu.Unlock()

	if claim {
		q.wg.Add(1)
		go q.runLifecycle(d, false)
	}
	return h
}

// runLifecycle drives t through begin/prepare/configure/execute to a
// terminal state. releaseOnTerminal controls whether this goroutine owns a
// semaphore permit to release (and whether it should re-trigger the
// scheduling loop) once t finishes: false for dependencies started inline
// by ensureStarted, true for everything dispatched from drain.
func (q *TaskQueue) runLifecycle(t task.Task, releaseOnTerminal bool) {
	defer q.wg.Done()
	handle := q.handleFor(t.ID())

	// A task enters here in one of three states: ready (a fresh pick off
	// the waiting list), currently(beginning) (claimed inline by
	// ensureStarted, which already called StartTo(Beginning) under lock),
	// or done(waiting) (re-admitted by a federated resolver once every
	// dependency it was parked on has signalled). Only the re-admitted
	// case skips the begin phase entirely, per taskstate's done(waiting)
	// re-admission path straight into preparing.
	cur := t.State()
	switch {
	case cur.IsReady():
		cur = cur.StartTo(taskstate.PhaseBeginning)
		t.SetState(cur)
		xlog.Debug.Printf("queue %s: task %s beginning", q.name, xlog.TaskField(t.ID()))
		cur = t.State().Finish()
		t.SetState(cur)
	case cur.IsWaited():
		// Dependencies resolved elsewhere; re-enter directly at preparing.
	default:
		cur = t.State().Finish()
		t.SetState(cur)
	}

	cur = t.State().StartTo(taskstate.PhasePreparing)
	t.SetState(cur)

	if dep, ok := t.(task.Dependent); ok {
		suspended, err := q.resolver.Resolve(q.ctx, q, t, dep)
		if suspended {
			if releaseOnTerminal {
				q.sem.Release(1)
			}
			return
		}
		if err != nil {
			if errors.Is(err, ErrDependencyNotFound) {
				q.failFatal(t, err)
			}
			q.fail(t, handle, reasonFromError(err))
			if releaseOnTerminal {
				q.sem.Release(1)
				q.triggerNext()
			}
			return
		}
	}
	cur = t.State().Finish()
	t.SetState(cur)

	if cfg, ok := t.(task.Configurable); ok {
		cur = t.State().StartTo(taskstate.PhaseConfiguring)
		t.SetState(cur)
		if !cfg.Configure() {
			q.fail(t, handle, taskstate.PhaseReason(taskstate.PhaseConfiguring))
			if releaseOnTerminal {
				q.sem.Release(1)
				q.triggerNext()
			}
			return
		}
		cur = t.State().Finish()
		t.SetState(cur)
	}

	lock := q.execLock(t.ID())
	lock.Lock()
	cur = t.State().StartTo(taskstate.PhaseExecuting)
	t.SetState(cur)
	lock.Unlock()

	ok := t.Execute()

	lock.Lock()
	cur = t.State()
	switch {
	case cur.IsDone():
		// Already finalized by a concurrent Pause/Cancel failure.
	default:
		if _, abandoned := q.abandoned.LoadAndDelete(t.ID()); abandoned {
			cur = t.State().Cancel().Finish()
			t.SetState(cur)
			q.finalize(t, handle)
		} else if cur.Phase() == taskstate.PhaseCancelling {
			cur = cur.Finish()
			t.SetState(cur)
			q.finalize(t, handle)
		} else if !ok {
			q.fail(t, handle, taskstate.PhaseReason(taskstate.PhaseExecuting))
		} else {
			cur = cur.Finish()
			t.SetState(cur)
			q.finalize(t, handle)
		}
	}
	lock.Unlock()
	q.execLocks.Delete(t.ID())

	if releaseOnTerminal {
		q.sem.Release(1)
		q.triggerNext()
	}
}

func (q *TaskQueue) fail(t task.Task, handle *CompletionHandle, reason taskstate.FailReason) {
	t.SetState(t.State().Fail(reason))
	xlog.Warn.Printf("queue %s: task %s failed: %s", q.name, xlog.TaskField(t.ID()), reason)
	q.finalize(t, handle)
}

// failFatal handles ErrDependencyNotFound: the dependent can never make
// progress, since the dependency it named does not exist anywhere this
// queue can see. This is not an ordinary task failure, so it is logged at
// error level naming both ids and then panics the task's lifecycle goroutine
// rather than routing through fail(), per the fatal-condition contract
// ErrDependencyNotFound documents.
func (q *TaskQueue) failFatal(t task.Task, err error) {
	depID := "<unknown>"
	var nf *DependencyNotFoundError
	if errors.As(err, &nf) {
		depID = nf.DependencyID
	}
	xlog.Error.Printf("queue %s: task %s depends on %s, which was not found in the queue or its federation; this dependent can never make progress", q.name, xlog.TaskField(t.ID()), depID)
	panic(fmt.Errorf("queue %s: task %s: %w", q.name, t.ID(), err))
}

func (q *TaskQueue) finalize(t task.Task, handle *CompletionHandle) {
	t.Finish()
	handle.signal(t.State())
}

// Pause suspends the queue (no further waiting-list entries are drawn) and
// asks every currently(executing) Pausable task to pause. Non-Pausable
// running tasks continue to completion.
func (q *TaskQueue) Pause() {
	q.activeFlag.Store(false)
	for _, t := range q.tasksMatching(func(s taskstate.State) bool { return s.IsExecuting() }) {
		lock := q.execLock(t.ID())
		lock.Lock()
		if !t.State().IsExecuting() {
			lock.Unlock()
			continue
		}
		if p, ok := t.(task.Pausable); ok {
			if p.Pause() {
				t.SetState(t.State().Pause().Finish())
			} else {
				q.fail(t, q.handleFor(t.ID()), taskstate.PhaseReason(taskstate.PhasePausing))
			}
		}
		lock.Unlock()
	}
}

// Resume reactivates the queue and asks every done(pausing) Pausable task
// to resume.
func (q *TaskQueue) Resume() {
	for _, t := range q.tasksMatching(func(s taskstate.State) bool { return s.IsPaused() }) {
		lock := q.execLock(t.ID())
		lock.Lock()
		if !t.State().IsPaused() {
			lock.Unlock()
			continue
		}
		if p, ok := t.(task.Pausable); ok {
			if p.Resume() {
				t.SetState(t.State().Resume().Finish())
				t.SetState(t.State().StartTo(taskstate.PhaseExecuting))
			} else {
				q.fail(t, q.handleFor(t.ID()), taskstate.PhaseReason(taskstate.PhaseResuming))
			}
		}
		lock.Unlock()
	}
	q.activeFlag.Store(true)
	q.triggerNext()
}

// Cancel asks every currently(executing) Cancellable task to cancel.
// Non-Cancellable running tasks are abandoned: they remain in the running
// view until their natural exit, at which point they are finalized as
// cancelled regardless of Execute's return value. If pauseQueue is true the
// queue is also suspended, as Pause would do.
func (q *TaskQueue) Cancel(pauseQueue bool) []task.Task {
	var cancelled []task.Task
	for _, t := range q.tasksMatching(func(s taskstate.State) bool { return s.IsExecuting() }) {
		lock := q.execLock(t.ID())
		lock.Lock()
		if !t.State().IsExecuting() {
			lock.Unlock()
			continue
		}
		if c, ok := t.(task.Cancellable); ok {
			if c.Cancel() {
				t.SetState(t.State().Cancel())
				cancelled = append(cancelled, t)
			} else {
				q.fail(t, q.handleFor(t.ID()), taskstate.PhaseReason(taskstate.PhaseCancelling))
			}
		} else {
			q.abandoned.Store(t.ID(), struct{}{})
		}
		lock.Unlock()
	}
	if pauseQueue {
		q.activeFlag.Store(false)
	}
	return cancelled
}

// Readmit re-inserts t into the waiting list and wakes the scheduling
// loop. Exported for a linked queue's federated resolver, which parks a
// dependent outside the normal dispatch path while its cross-queue
// dependencies complete and must re-admit it once they have.
func (q *TaskQueue) Readmit(t task.Task) { q.readmit(t) }

// FailTask transitions t to failed(reason) and signals its completion
// handle. Exported for a linked queue's federated resolver, invoked from
// the detached goroutine that observes a cross-queue dependency's failure
// after the dependent's own dispatch has already returned.
func (q *TaskQueue) FailTask(t task.Task, reason taskstate.FailReason) {
	q.fail(t, q.handleFor(t.ID()), reason)
}

// Resort re-applies the waiting-list sort order. Exported for a linked
// queue's federated resolver, which may bump a dependency's priority while
// it is sitting in a peer queue's waiting list.
func (q *TaskQueue) Resort() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.resort()
}

func reasonFromError(err error) taskstate.FailReason {
	var depErr *DependencyError
	if errors.As(err, &depErr) {
		return taskstate.DependencyReason(depErr.DependencyID)
	}
	return taskstate.DependencyReason(err.Error())
}
