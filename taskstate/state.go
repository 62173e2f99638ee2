// Package taskstate implements the task state machine: a base phase plus
// the currently/done/failed/dependency decorators described by the
// scheduler's task lifecycle, flattened into one comparable value with a
// small set of precondition-checked transitions.
package taskstate

import "fmt"

// Phase is one of the base lifecycle phases a task moves through.
type Phase int

const (
	// PhaseReady is the phase a task is in before the runtime has touched it.
	PhaseReady Phase = iota
	PhaseBeginning
	PhasePreparing
	PhaseConfiguring
	PhaseExecuting
	PhasePausing
	PhaseResuming
	PhaseCancelling
	PhaseWaiting
)

func (p Phase) String() string {
	switch p {
	case PhaseReady:
		return "ready"
	case PhaseBeginning:
		return "beginning"
	case PhasePreparing:
		return "preparing"
	case PhaseConfiguring:
		return "configuring"
	case PhaseExecuting:
		return "executing"
	case PhasePausing:
		return "pausing"
	case PhaseResuming:
		return "resuming"
	case PhaseCancelling:
		return "cancelling"
	case PhaseWaiting:
		return "waiting"
	default:
		return "unknown"
	}
}

// ViolationError reports an attempted transition that the state machine's
// preconditions forbid. Raising it (rather than asserting silently) is a
// programmer error, per the scheduler's error taxonomy.
type ViolationError struct {
	Op    string
	State State
}

func (e *ViolationError) Error() string {
	return fmt.Sprintf("taskstate: illegal %s from %s", e.Op, e.State)
}

// FailReason records why a task failed: either a phase it failed during,
// or a dependency id whose failure/cancellation it inherited.
type FailReason struct {
	Phase        Phase
	DependencyID string
	isDependency bool
}

// PhaseReason builds a FailReason naming the phase that failed.
func PhaseReason(p Phase) FailReason { return FailReason{Phase: p} }

// DependencyReason builds a FailReason naming the dependency that caused
// the failure (failed(dependency(id))).
func DependencyReason(depID string) FailReason {
	return FailReason{DependencyID: depID, isDependency: true}
}

func (r FailReason) String() string {
	if r.isDependency {
		return fmt.Sprintf("dependency(%s)", r.DependencyID)
	}
	return r.Phase.String()
}

// State is a flattened representation of the task state machine: a base
// phase, whether it has been entered (started) and completed (done), a
// failed flag with its reason, and an optional dependency marker that may
// wrap any non-terminal state.
type State struct {
	phase   Phase
	started bool
	done    bool
	failed  bool
	reason  FailReason
	depID   string
	hasDep  bool
}

// Ready constructs the initial state every task enters the queue in.
func Ready() State {
	return State{phase: PhaseReady}
}

// Phase returns the current base phase.
func (s State) Phase() Phase { return s.phase }

// IsReady reports whether the task has not yet been touched by the runtime.
func (s State) IsReady() bool { return !s.started && !s.failed }

// IsStarted reports whether the task has begun its lifecycle (entered any
// phase past ready), regardless of whether it has since failed.
func (s State) IsStarted() bool { return s.started }

// IsExecuting reports currently(executing).
func (s State) IsExecuting() bool {
	return s.started && !s.done && !s.failed && s.phase == PhaseExecuting
}

// IsPaused reports done(pausing), the "paused" alias.
func (s State) IsPaused() bool {
	return s.started && s.done && !s.failed && s.phase == PhasePausing
}

// IsWaiting reports currently(waiting): the task is parked on one or more
// dependency completion handles.
func (s State) IsWaiting() bool {
	return s.started && !s.done && !s.failed && s.phase == PhaseWaiting
}

// IsWaited reports done(waiting), the "waited" alias: the task's
// dependencies have all signalled and it is eligible for re-pick.
func (s State) IsWaited() bool {
	return s.started && s.done && !s.failed && s.phase == PhaseWaiting
}

// WasCancelled reports done(cancelling), the "cancelled" alias.
func (s State) WasCancelled() bool {
	return s.started && s.done && !s.failed && s.phase == PhaseCancelling
}

// DidFail reports whether the task is in any failed(...) state.
func (s State) DidFail() bool { return s.failed }

// DidSucceed reports done(executing), the "succeeded" alias.
func (s State) DidSucceed() bool {
	return s.started && s.done && !s.failed && s.phase == PhaseExecuting
}

// IsDone reports whether the state is terminal: succeeded, failed, or
// cancelled. Paused is explicitly not terminal.
func (s State) IsDone() bool {
	return s.DidSucceed() || s.DidFail() || s.WasCancelled()
}

// HasDependency reports whether the dependency(x) decorator is set, and
// returns the dependency id it names.
func (s State) HasDependency() (string, bool) {
	return s.depID, s.hasDep
}

// FailReason returns the reason a failed state recorded. The second
// result is false if the state did not fail.
func (s State) FailReason() (FailReason, bool) {
	if !s.failed {
		return FailReason{}, false
	}
	return s.reason, true
}

// canEnter reports whether `phase` may be entered (via StartTo) from the
// receiver's current state. Entering phase P is legal from Ready (only for
// the very first phase, Beginning) or from done(Q) for the phase Q that
// immediately precedes P in the normal lifecycle (executing may follow
// done(preparing) directly, since configuring is optional), or from
// done(waiting)/done(resuming) re-admission points.
func (s State) canEnter(phase Phase) bool {
	if s.failed || s.WasCancelled() {
		return false
	}
	if phase == PhaseBeginning {
		return s.IsReady()
	}
	if !s.done {
		return false
	}
	switch phase {
	case PhasePreparing:
		return s.phase == PhaseBeginning || s.phase == PhaseWaiting
	case PhaseConfiguring:
		return s.phase == PhasePreparing
	case PhaseExecuting:
		return s.phase == PhasePreparing || s.phase == PhaseConfiguring || s.phase == PhaseResuming
	default:
		return false
	}
}

// StartTo transitions the task into currently(phase). It panics with a
// *ViolationError if the transition is not legal from the receiver's
// current state (start() requires ready, for the first such call; later
// calls require the previous phase to have finished).
func (s State) StartTo(phase Phase) State {
	if !s.canEnter(phase) {
		panic(&ViolationError{Op: fmt.Sprintf("start_to(%s)", phase), State: s})
	}
	return State{phase: phase, started: true}
}

// Finish marks the current phase as done: currently(phase) -> done(phase).
// Requires the task to be started, in-progress, and not failed or terminal.
func (s State) Finish() State {
	if !s.started || s.done || s.failed {
		panic(&ViolationError{Op: "finish()", State: s})
	}
	next := s
	next.done = true
	next.hasDep = false
	next.depID = ""
	return next
}

// Fail transitions the task to failed(reason). Requires the task to be
// started or dependency-flagged; terminal states cannot fail again.
func (s State) Fail(reason FailReason) State {
	if s.IsDone() {
		panic(&ViolationError{Op: "fail()", State: s})
	}
	if !s.started && !s.hasDep {
		panic(&ViolationError{Op: "fail()", State: s})
	}
	next := s
	next.started = true
	next.failed = true
	next.done = false
	next.reason = reason
	return next
}

// WaitTo parks the task at currently(phase), used specifically to move a
// dependent into currently(waiting) (or back out of it) without requiring
// the normal StartTo predecessor chain, since a dependent can be stalled
// mid-prepare regardless of which phase it was in. Not legal from a
// terminal state.
func (s State) WaitTo(phase Phase) State {
	if s.IsDone() {
		panic(&ViolationError{Op: fmt.Sprintf("wait_to(%s)", phase), State: s})
	}
	next := State{phase: phase, started: true, hasDep: s.hasDep, depID: s.depID}
	return next
}

// SetDependency sets the dependency(x) decorator on the current state
// without changing its phase, e.g. currently(preparing) + dependency(x).
func (s State) SetDependency(depID string) State {
	if s.IsDone() {
		panic(&ViolationError{Op: "set_dependency()", State: s})
	}
	next := s
	next.hasDep = true
	next.depID = depID
	return next
}

// ClearDependency removes the dependency(x) decorator, leaving the phase
// and done/failed flags untouched.
func (s State) ClearDependency() State {
	next := s
	next.hasDep = false
	next.depID = ""
	return next
}

// Pause transitions currently(executing) -> currently(pausing). Requires
// IsExecuting().
func (s State) Pause() State {
	if !s.IsExecuting() {
		panic(&ViolationError{Op: "pause()", State: s})
	}
	return State{phase: PhasePausing, started: true}
}

// Cancel transitions currently(executing) -> currently(cancelling).
// Requires IsExecuting().
func (s State) Cancel() State {
	if !s.IsExecuting() {
		panic(&ViolationError{Op: "cancel()", State: s})
	}
	return State{phase: PhaseCancelling, started: true}
}

// Resume transitions done(pausing) -> currently(resuming). Requires
// IsPaused().
func (s State) Resume() State {
	if !s.IsPaused() {
		panic(&ViolationError{Op: "resume()", State: s})
	}
	return State{phase: PhaseResuming, started: true}
}

// String renders the state as e.g. "currently(executing)", "done(executing)",
// "failed(executing)", "failed(dependency(x))", or "ready".
func (s State) String() string {
	if s.IsReady() {
		return "ready"
	}
	if s.failed {
		return fmt.Sprintf("failed(%s)", s.reason)
	}
	dep := ""
	if s.hasDep {
		dep = fmt.Sprintf(" dependency(%s)", s.depID)
	}
	if s.done {
		return fmt.Sprintf("done(%s)%s", s.phase, dep)
	}
	return fmt.Sprintf("currently(%s)%s", s.phase, dep)
}
