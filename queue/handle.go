package queue

import (
	"context"
	"sync"

	"github.com/ByteMirror/taskqueue/taskstate"
)

// CompletionHandle is the one-shot synchronization point a caller (or a
// dependent task) can block on to learn that a task has reached a terminal
// state. It is closed exactly once, from whichever goroutine drives that
// task to succeeded, failed, or cancelled.
type CompletionHandle struct {
	done  chan struct{}
	once  sync.Once
	mu    sync.RWMutex
	state taskstate.State
}

func newCompletionHandle() *CompletionHandle {
	return &CompletionHandle{done: make(chan struct{})}
}

// signal records the task's terminal state and closes Done(), waking every
// waiter. Safe to call more than once; only the first call has any effect.
func (h *CompletionHandle) signal(s taskstate.State) {
	h.once.Do(func() {
		h.mu.Lock()
		h.state = s
		h.mu.Unlock()
		close(h.done)
	})
}

// Done returns a channel closed once the task this handle tracks reaches a
// terminal state.
func (h *CompletionHandle) Done() <-chan struct{} {
	return h.done
}

// State returns the task's terminal state. The zero State is returned if
// the task has not yet finished.
func (h *CompletionHandle) State() taskstate.State {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.state
}

// Wait blocks until the handle signals or ctx is done, whichever comes
// first.
func (h *CompletionHandle) Wait(ctx context.Context) error {
	select {
	case <-h.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
