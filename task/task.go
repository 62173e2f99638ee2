// Package task declares the contracts a scheduler consumer's work item must
// (or may) satisfy: the required Task capability plus the optional
// Configurable, Pausable, Cancellable, and Dependent capabilities.
package task

import (
	"github.com/google/uuid"

	"github.com/ByteMirror/taskqueue/priority"
	"github.com/ByteMirror/taskqueue/taskstate"
)

// ID is a task's stable opaque identity: a 128-bit v4 UUID (122 random
// bits) assigned at construction. Two tasks compare equal iff their ids match.
type ID uuid.UUID

// NewID generates a fresh random ID.
func NewID() ID {
	return ID(uuid.New())
}

// String renders the id in canonical UUID form.
func (id ID) String() string {
	return uuid.UUID(id).String()
}

// IsZero reports whether id is the zero value (never assigned).
func (id ID) IsZero() bool {
	return id == ID{}
}

// QoS is the quality-of-service hint a task carries, mapped by the worker
// pool to its own scheduling-class hints. Ordered low to high so that
// comparison (q1 < q2) reflects relative urgency.
type QoS int

const (
	QoSBackground QoS = iota
	QoSUtility
	QoSDefault
	QoSUserInitiated
	QoSUserInteractive
)

func (q QoS) String() string {
	switch q {
	case QoSBackground:
		return "background"
	case QoSUtility:
		return "utility"
	case QoSDefault:
		return "default"
	case QoSUserInitiated:
		return "userInitiated"
	case QoSUserInteractive:
		return "userInteractive"
	default:
		return "unknown"
	}
}

// Task is the capability every unit of work in the scheduler must satisfy.
type Task interface {
	// ID returns the task's stable opaque identity.
	ID() ID
	// Priority returns a pointer to the task's mutable priority rank. The
	// queue reads it to sort the waiting list and mutates it in place
	// when dependency options (IncreaseDependencyPriority /
	// DecreaseDependentPriority) apply.
	Priority() *priority.Priority
	// QoS returns the task's quality-of-service hint.
	QoS() QoS
	// State returns the task's current lifecycle state.
	State() taskstate.State
	// SetState is invoked by the owning queue to publish a new state. A
	// task implementation must not call this itself.
	SetState(taskstate.State)
	// Execute performs the task's work. Returning false fails the task
	// with failed(executing).
	Execute() bool
	// Finish is invoked exactly once after the task reaches a terminal
	// state.
	Finish()
}

// Configurable tasks run an additional configure stage after prepare and
// before execute.
type Configurable interface {
	Configure() bool
}

// Pausable tasks can be asked to suspend and resume cooperatively while
// currently(executing) / done(pausing) respectively.
type Pausable interface {
	Pause() bool
	Resume() bool
}

// Cancellable tasks can be asked to cancel cooperatively while
// currently(executing).
type Cancellable interface {
	Cancel() bool
}

// Dependent tasks declare other tasks they must wait on before executing.
type Dependent interface {
	// Dependencies returns every dependency this task references.
	Dependencies() []Task
	// Incomplete returns the dependencies not yet in done(executing).
	Incomplete() []Task
	// UpNext returns the first incomplete, non-failed dependency, or nil
	// if none remain.
	UpNext() Task
	// DependencyFinished is invoked once per completed dependency, in
	// dependency completion order, after that dependency's own Finish().
	DependencyFinished(dep Task)
}
