package linked

import (
	"sync"

	"github.com/ByteMirror/taskqueue/queue"
	"github.com/ByteMirror/taskqueue/task"
)

// QueueFederation is a symmetric membership group: every LinkedTaskQueue
// that joins it is a peer of every other member, for the purpose of
// resolving dependencies that were added to a different queue than the
// dependent. Membership is the only shape a federation has; there is no
// notion of a "root" queue.
type QueueFederation struct {
	mu      sync.RWMutex
	members map[*LinkedTaskQueue]struct{}
}

// NewQueueFederation constructs an empty federation.
func NewQueueFederation() *QueueFederation {
	return &QueueFederation{members: make(map[*LinkedTaskQueue]struct{})}
}

// Link adds q to the federation. Linking an already-linked queue is a
// no-op. Because membership (not a pairwise edge) is what makes two queues
// peers, linking q makes it a peer of every queue already linked, and
// every one of them a peer of q, symmetrically, in one call.
func (f *QueueFederation) Link(q *LinkedTaskQueue) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.members[q]; ok {
		return
	}
	f.members[q] = struct{}{}
	q.federation = f
}

// Unlink removes q from the federation.
func (f *QueueFederation) Unlink(q *LinkedTaskQueue) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.members, q)
	if q.federation == f {
		q.federation = nil
	}
}

// Peers returns every member of the federation other than q.
func (f *QueueFederation) Peers(q *LinkedTaskQueue) []*LinkedTaskQueue {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]*LinkedTaskQueue, 0, len(f.members))
	for m := range f.members {
		if m != q {
			out = append(out, m)
		}
	}
	return out
}

// all returns every member of the federation.
func (f *QueueFederation) all() []*LinkedTaskQueue {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]*LinkedTaskQueue, 0, len(f.members))
	for m := range f.members {
		out = append(out, m)
	}
	return out
}

// findOwner scans every member for one that is tracking id, returning the
// owning queue and its completion handle. Reports false if no member of
// the federation has ever added a task with that id.
func (f *QueueFederation) findOwner(id task.ID) (*LinkedTaskQueue, *queue.CompletionHandle, bool) {
	for _, m := range f.all() {
		if _, known := m.TaskByID(id); !known {
			continue
		}
		if h, ok := m.HandleByID(id); ok {
			return m, h, true
		}
	}
	return nil, nil, false
}
