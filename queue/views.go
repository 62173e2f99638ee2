package queue

import (
	"context"
	"time"

	"github.com/ByteMirror/taskqueue/task"
	"github.com/ByteMirror/taskqueue/taskstate"
)

// tasksMatching returns every tracked task whose current state satisfies
// pred, in no particular order.
func (q *TaskQueue) tasksMatching(pred func(taskstate.State) bool) []task.Task {
	q.mu.RLock()
	defer q.mu.RUnlock()
	out := make([]task.Task, 0, len(q.tasksByID))
	for _, t := range q.tasksByID {
		if pred(t.State()) {
			out = append(out, t)
		}
	}
	return out
}

// TaskByID returns the tracked task with the given id, if any.
func (q *TaskQueue) TaskByID(id task.ID) (task.Task, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	t, ok := q.tasksByID[id]
	return t, ok
}

// HandleByID returns the CompletionHandle tracked for id, if any.
func (q *TaskQueue) HandleByID(id task.ID) (*CompletionHandle, bool) {
	q.handlesMu.RLock()
	defer q.handlesMu.RUnlock()
	h, ok := q.handles[id]
	return h, ok
}

// Waiting returns every task sitting in the waiting list (ready or, for a
// linked queue, re-admitted done(waiting)), in pick order.
func (q *TaskQueue) Waiting() []task.Task {
	q.mu.RLock()
	defer q.mu.RUnlock()
	out := make([]task.Task, len(q.waiting))
	copy(out, q.waiting)
	return out
}

// Running returns every currently(executing) task.
func (q *TaskQueue) Running() []task.Task {
	return q.tasksMatching(func(s taskstate.State) bool { return s.IsExecuting() })
}

// Paused returns every done(pausing) task.
func (q *TaskQueue) Paused() []task.Task {
	return q.tasksMatching(func(s taskstate.State) bool { return s.IsPaused() })
}

// Failed returns every failed(...) task.
func (q *TaskQueue) Failed() []task.Task {
	return q.tasksMatching(func(s taskstate.State) bool { return s.DidFail() })
}

// Succeeded returns every done(executing) task.
func (q *TaskQueue) Succeeded() []task.Task {
	return q.tasksMatching(func(s taskstate.State) bool { return s.DidSucceed() })
}

// Cancelled returns every done(cancelling) task.
func (q *TaskQueue) Cancelled() []task.Task {
	return q.tasksMatching(func(s taskstate.State) bool { return s.WasCancelled() })
}

// Remaining reports how many tracked tasks have not yet reached a terminal
// state.
func (q *TaskQueue) Remaining() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	n := 0
	for _, t := range q.tasksByID {
		if !t.State().IsDone() {
			n++
		}
	}
	return n
}

// IsQueueDone reports whether every tracked task has reached a terminal
// state.
func (q *TaskQueue) IsQueueDone() bool { return q.Remaining() == 0 }

// Stats summarizes the queue's tracked tasks by terminal/non-terminal
// category.
func (q *TaskQueue) Stats() map[string]int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	stats := map[string]int{
		"waiting":   len(q.waiting),
		"running":   0,
		"paused":    0,
		"succeeded": 0,
		"failed":    0,
		"cancelled": 0,
		"total":     len(q.tasksByID),
	}
	for _, t := range q.tasksByID {
		s := t.State()
		switch {
		case s.IsExecuting():
			stats["running"]++
		case s.IsPaused():
			stats["paused"]++
		case s.DidSucceed():
			stats["succeeded"]++
		case s.DidFail():
			stats["failed"]++
		case s.WasCancelled():
			stats["cancelled"]++
		}
	}
	return stats
}

// ClearTerminal drops every task that has reached a terminal state from the
// queue's bookkeeping (tasksByID and handles), returning how many were
// removed.
func (q *TaskQueue) ClearTerminal() int {
	q.mu.Lock()
	removed := 0
	for id, t := range q.tasksByID {
		if t.State().IsDone() {
			delete(q.tasksByID, id)
			removed++
		}
	}
	q.mu.Unlock()

	q.handlesMu.Lock()
	for id, h := range q.handles {
		select {
		case <-h.Done():
			delete(q.handles, id)
		default:
		}
	}
	q.handlesMu.Unlock()
	return removed
}

// snapshotHandles returns every handle tracked at the moment of the call.
func (q *TaskQueue) snapshotHandles() []*CompletionHandle {
	q.handlesMu.RLock()
	defer q.handlesMu.RUnlock()
	out := make([]*CompletionHandle, 0, len(q.handles))
	for _, h := range q.handles {
		out = append(out, h)
	}
	return out
}

// Wait blocks until every currently tracked completion handle has
// signalled, or ctx is done.
func (q *TaskQueue) Wait(ctx context.Context) error {
	for _, h := range q.snapshotHandles() {
		if err := h.Wait(ctx); err != nil {
			return err
		}
	}
	return nil
}

// WaitTimeout is a convenience wrapper over Wait with a fixed deadline. It
// reports whether every tracked task completed before the timeout elapsed.
func (q *TaskQueue) WaitTimeout(timeout time.Duration) bool {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return q.Wait(ctx) == nil
}

// Notify dispatches fn, under qos, once every currently tracked task has
// reached a terminal state.
func (q *TaskQueue) Notify(qos task.QoS, fn func()) {
	handles := q.snapshotHandles()
	go func() {
		for _, h := range handles {
			<-h.Done()
		}
		_ = q.dispatcher.Dispatch(q.ctx, qos, func(context.Context) { fn() })
	}()
}
