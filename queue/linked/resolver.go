package linked

import (
	"context"

	"github.com/ByteMirror/taskqueue/queue"
	"github.com/ByteMirror/taskqueue/task"
	"github.com/ByteMirror/taskqueue/taskstate"
)

// federatedResolver implements queue.Resolver for a LinkedTaskQueue. Unlike
// the base package's local resolver, it never starts a dependency itself;
// a federated dependency is assumed to already be enqueued somewhere in the
// federation. It never blocks the dispatching goroutine either: it parks the
// dependent at currently(waiting) and reports it suspended, so the queue
// releases its capacity slot, and resumes it asynchronously once every
// dependency handle it is waiting on has signalled.
type federatedResolver struct {
	owner *LinkedTaskQueue
}

func (r *federatedResolver) Resolve(ctx context.Context, q *queue.TaskQueue, t task.Task, dep task.Dependent) (bool, error) {
	incomplete := dep.Incomplete()
	if len(incomplete) == 0 {
		return false, nil
	}

	if r.owner.federation == nil {
		return false, &queue.DependencyNotFoundError{DependencyID: incomplete[0].ID().String()}
	}

	opts := r.owner.options
	handles := make([]*queue.CompletionHandle, 0, len(incomplete))

	for _, d := range incomplete {
		t.SetState(t.State().SetDependency(d.ID().String()))

		if d.State().DidFail() || d.State().WasCancelled() {
			return false, &queue.DependencyError{DependencyID: d.ID().String()}
		}

		ownerQueue, h, found := r.owner.federation.findOwner(d.ID())
		if !found {
			return false, &queue.DependencyNotFoundError{DependencyID: d.ID().String()}
		}

		if opts.Has(IncreaseDependencyPriority) {
			if d.Priority().Increase() {
				ownerQueue.Resort()
			}
		}
		if opts.Has(DecreaseDependentPriority) {
			if t.Priority().Decrease() {
				q.Resort()
			}
		}

		handles = append(handles, h)
	}

	t.SetState(t.State().WaitTo(taskstate.PhaseWaiting))
	r.waitAndReadmit(q, t, incomplete, handles, dep)
	return true, nil
}

// waitAndReadmit spawns a detached goroutine that fans in every dependency
// handle, invoking DependencyFinished in the order each actually signals,
// and either fails t (inheriting the first failed/cancelled dependency it
// observes) or re-admits it to its home queue's waiting list as
// done(waiting), ranked ahead of plain ready tasks of equal priority.
func (r *federatedResolver) waitAndReadmit(q *queue.TaskQueue, t task.Task, deps []task.Task, handles []*queue.CompletionHandle, dep task.Dependent) {
	type outcome struct{ d task.Task }
	results := make(chan outcome, len(deps))
	for i, d := range deps {
		d := d
		h := handles[i]
		go func() {
			<-h.Done()
			results <- outcome{d: d}
		}()
	}

	go func() {
		for range deps {
			o := <-results
			if o.d.State().DidFail() || o.d.State().WasCancelled() {
				q.FailTask(t, taskstate.DependencyReason(o.d.ID().String()))
				return
			}
			dep.DependencyFinished(o.d)
		}
		t.SetState(t.State().Finish())
		q.Readmit(t)
	}()
}
