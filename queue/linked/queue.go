// Package linked implements LinkedTaskQueue and QueueFederation: the
// federated extension of the core scheduler (package queue) that lets a
// Dependent task added to one queue wait on a dependency enqueued on a
// different, federated queue.
package linked

import (
	"github.com/ByteMirror/taskqueue/internal/pool"
	"github.com/ByteMirror/taskqueue/queue"
)

// LinkedTaskQueue is a queue.TaskQueue whose Dependent tasks may reference
// dependencies living on other queues in the same QueueFederation. options
// controls how federated dependency resolution adjusts priority while a
// dependent is parked on a cross-queue dependency.
type LinkedTaskQueue struct {
	*queue.TaskQueue
	federation *QueueFederation
	options    DependencyOptions
}

// New constructs a LinkedTaskQueue backed by dispatcher, not yet joined to
// any federation. Call fed.Link(q) (or NewJoined, or NewLinked) before
// adding Dependent tasks that reference cross-queue dependencies.
func New(cfg queue.Config, dispatcher pool.Dispatcher, opts DependencyOptions) *LinkedTaskQueue {
	q := &LinkedTaskQueue{options: opts}
	q.TaskQueue = queue.NewCustom(cfg, dispatcher, &federatedResolver{owner: q})
	return q
}

// NewJoined constructs a LinkedTaskQueue and immediately links it into fed.
func NewJoined(cfg queue.Config, dispatcher pool.Dispatcher, fed *QueueFederation, opts DependencyOptions) *LinkedTaskQueue {
	q := New(cfg, dispatcher, opts)
	fed.Link(q)
	return q
}

// NewLinked constructs a LinkedTaskQueue backed by dispatcher and linked to
// one or more existing peers, with opts controlling cross-queue dependency
// priority adjustments. If any of peers has already joined a federation, q
// joins that same one; otherwise a new federation is created covering q
// and every peer passed in.
func NewLinked(cfg queue.Config, dispatcher pool.Dispatcher, opts DependencyOptions, peers ...*LinkedTaskQueue) *LinkedTaskQueue {
	q := New(cfg, dispatcher, opts)

	var fed *QueueFederation
	for _, p := range peers {
		if p.federation != nil {
			fed = p.federation
			break
		}
	}
	if fed == nil {
		fed = NewQueueFederation()
	}
	fed.Link(q)
	for _, p := range peers {
		fed.Link(p)
	}
	return q
}

// Options returns the dependency-priority options this queue resolves
// cross-queue dependencies with.
func (q *LinkedTaskQueue) Options() DependencyOptions { return q.options }

// Federation returns the federation this queue is linked into, or nil if
// it hasn't joined one.
func (q *LinkedTaskQueue) Federation() *QueueFederation { return q.federation }

// Peers returns every other queue in this queue's federation, or nil if it
// hasn't joined one.
func (q *LinkedTaskQueue) Peers() []*LinkedTaskQueue {
	if q.federation == nil {
		return nil
	}
	return q.federation.Peers(q)
}
