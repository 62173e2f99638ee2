package queue

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/ByteMirror/taskqueue/task"
)

// Resolver performs dependency resolution during a Dependent task's prepare
// stage. TaskQueue ships with localResolver, which resolves dependencies
// against this same queue; LinkedTaskQueue installs its own federated
// resolver via NewCustom.
//
// Resolve returns (suspended=true) when it has parked t at currently(waiting);
// the caller then releases t's capacity slot and must not touch t's state
// further; some other goroutine will re-admit it. It returns a non-nil err
// when t should fail, wrapping either ErrDependencyFailed or
// ErrDependencyNotFound, or ctx's error if ctx is done first.
type Resolver interface {
	Resolve(ctx context.Context, q *TaskQueue, t task.Task, dep task.Dependent) (suspended bool, err error)
}

// localResolver starts each incomplete dependency directly on this queue
// (claiming it out of the waiting list if it hasn't been dispatched yet)
// and blocks the current goroutine until every one of them signals,
// invoking DependencyFinished in the order each actually completes.
type localResolver struct{}

type dependencyOutcome struct {
	dep task.Task
}

func (localResolver) Resolve(ctx context.Context, q *TaskQueue, t task.Task, dep task.Dependent) (bool, error) {
	incomplete := dep.Incomplete()
	if len(incomplete) == 0 {
		return false, nil
	}

	// Claim and start every incomplete dependency concurrently rather than
	// one at a time, since claiming is independent per dependency.
	handles := make(map[task.ID]*CompletionHandle, len(incomplete))
	var handlesMu sync.Mutex
	g, _ := errgroup.WithContext(ctx)
	for _, d := range incomplete {
		d := d
		g.Go(func() error {
			h := q.ensureStarted(d)
			handlesMu.Lock()
			handles[d.ID()] = h
			handlesMu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	results := make(chan dependencyOutcome, len(incomplete))
	for _, d := range incomplete {
		d := d
		h := handles[d.ID()]
		go func() {
			select {
			case <-h.Done():
			case <-ctx.Done():
			}
			results <- dependencyOutcome{dep: d}
		}()
	}

	for range incomplete {
		select {
		case outcome := <-results:
			d := outcome.dep
			if d.State().DidFail() || d.State().WasCancelled() {
				return false, &DependencyError{DependencyID: d.ID().String()}
			}
			dep.DependencyFinished(d)
		case <-ctx.Done():
			return false, ctx.Err()
		}
	}
	return false, nil
}
