package linked

// DependencyOptions is a bitset a LinkedTaskQueue is constructed with (see
// New, NewJoined, NewLinked) to influence how its federated resolver treats
// every cross-queue dependency it waits on. Each option is applied once per
// dependency, re-sorting the affected waiting list after each change.
type DependencyOptions uint8

const (
	// IncreaseDependencyPriority bumps each incomplete dependency's
	// priority to the next band, so a federation under contention doesn't
	// starve a chain of cross-queue dependencies.
	IncreaseDependencyPriority DependencyOptions = 1 << iota
	// DecreaseDependentPriority lowers the dependent's own priority once
	// per dependency it ends up waiting on, so a heavily-blocked task
	// doesn't keep occupying a high-priority slot in its own queue once
	// re-admitted.
	DecreaseDependentPriority
)

// Has reports whether opt is set.
func (o DependencyOptions) Has(opt DependencyOptions) bool { return o&opt != 0 }
