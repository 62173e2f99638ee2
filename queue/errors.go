package queue

import "errors"

// Sentinel errors, named errors.New values rather than ad hoc fmt.Errorf
// strings at every call site.
var (
	// ErrTaskExists is returned by AddStrict when a task with the same id
	// was already added. Add itself never returns it (it is idempotent and
	// silently no-ops).
	ErrTaskExists = errors.New("taskqueue: task already exists")

	// ErrTaskNotFound names an unknown task id. No TaskQueue method returns
	// it: TaskByID and HandleByID report a missing id with a false result.
	ErrTaskNotFound = errors.New("taskqueue: task not found")

	// ErrQueueNotActive names a queue that has not been started. No
	// TaskQueue method returns it: Add and the views accept calls on an
	// inactive queue.
	ErrQueueNotActive = errors.New("taskqueue: queue not active")

	// ErrDependencyFailed wraps a dependency's id when it terminated in
	// failed or cancelled state, causing its dependent to fail.
	ErrDependencyFailed = errors.New("taskqueue: dependency failed")

	// ErrDependencyNotFound is a fatal condition: a dependency referenced
	// by a Dependent task could not be located in the queue (or, for a
	// linked queue, anywhere in its federation). The caller can never make
	// progress and should treat this as fatal.
	ErrDependencyNotFound = errors.New("taskqueue: dependency not found in queue or federation")
)

// DependencyError wraps ErrDependencyFailed with the id of the dependency
// that failed or was cancelled, for use building a failed(dependency(x))
// FailReason.
type DependencyError struct {
	DependencyID string
}

func (e *DependencyError) Error() string {
	return ErrDependencyFailed.Error() + ": " + e.DependencyID
}

func (e *DependencyError) Unwrap() error { return ErrDependencyFailed }

// DependencyNotFoundError wraps ErrDependencyNotFound with the id of the
// dependency that could not be located anywhere in the queue or
// federation. Carries enough information for the fatal-path handler to
// name the missing dependency in its log line and panic message.
type DependencyNotFoundError struct {
	DependencyID string
}

func (e *DependencyNotFoundError) Error() string {
	return ErrDependencyNotFound.Error() + ": " + e.DependencyID
}

func (e *DependencyNotFoundError) Unwrap() error { return ErrDependencyNotFound }
