package queue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ByteMirror/taskqueue/internal/pool"
	"github.com/ByteMirror/taskqueue/priority"
	"github.com/ByteMirror/taskqueue/task"
)

// recordingTask appends its name to a shared, mutex-guarded log when
// executed, optionally gating on a channel first.
type recordingTask struct {
	*task.Base
	name string
	log  *execLog
	gate <-chan struct{}
}

type execLog struct {
	mu    sync.Mutex
	order []string
}

func (l *execLog) record(name string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.order = append(l.order, name)
}

func (l *execLog) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.order))
	copy(out, l.order)
	return out
}

func newRecordingTask(name string, p priority.Priority, log *execLog) *recordingTask {
	return &recordingTask{Base: task.NewBase(p, task.QoSDefault), name: name, log: log}
}

func (t *recordingTask) Execute() bool {
	if t.gate != nil {
		<-t.gate
	}
	t.log.record(t.name)
	return true
}

func (t *recordingTask) Finish() {}

func newTestQueue(t *testing.T, maxSimultaneous int) (*TaskQueue, func()) {
	t.Helper()
	wp := pool.New(pool.DefaultConfig())
	require.NoError(t, wp.Start())
	q := New(Config{Name: t.Name(), MaxSimultaneous: maxSimultaneous}, wp)
	cleanup := func() {
		q.Close()
		_ = wp.Shutdown(context.Background())
	}
	return q, cleanup
}

func TestFIFOWithinBand(t *testing.T) {
	q, cleanup := newTestQueue(t, 1)
	defer cleanup()

	log := &execLog{}
	a := newRecordingTask("a", priority.FromBand(priority.BandMedium), log)
	b := newRecordingTask("b", priority.FromBand(priority.BandMedium), log)
	c := newRecordingTask("c", priority.FromBand(priority.BandMedium), log)

	q.Add(a)
	q.Add(b)
	q.Add(c)
	q.Start()

	require.True(t, q.WaitTimeout(2*time.Second))
	assert.Equal(t, []string{"a", "b", "c"}, log.snapshot())
}

func TestPriorityPreemption(t *testing.T) {
	q, cleanup := newTestQueue(t, 1)
	defer cleanup()

	log := &execLog{}
	gate := make(chan struct{})
	blocker := &recordingTask{Base: task.NewBase(priority.FromBand(priority.BandLow), task.QoSDefault), name: "blocker", log: log, gate: gate}
	low := newRecordingTask("low", priority.FromBand(priority.BandLow), log)
	high := newRecordingTask("high", priority.FromBand(priority.BandCritical), log)

	q.Add(blocker)
	q.Start()
	// Give the blocker time to actually occupy the single capacity slot
	// before the other two are added to the waiting list.
	time.Sleep(20 * time.Millisecond)

	q.Add(low)
	q.Add(high)
	close(gate)

	require.True(t, q.WaitTimeout(2*time.Second))
	order := log.snapshot()
	require.Len(t, order, 3)
	assert.Equal(t, "blocker", order[0])
	assert.Equal(t, "high", order[1])
	assert.Equal(t, "low", order[2])
}

// dependentTask depends on a fixed list of other tasks before it executes.
type dependentTask struct {
	*recordingTask
	deps      []task.Task
	mu        sync.Mutex
	finishedN int
}

func newDependentTask(name string, p priority.Priority, log *execLog, deps []task.Task) *dependentTask {
	return &dependentTask{recordingTask: newRecordingTask(name, p, log), deps: deps}
}

func (d *dependentTask) Dependencies() []task.Task { return d.deps }

func (d *dependentTask) Incomplete() []task.Task {
	var out []task.Task
	for _, dep := range d.deps {
		if !dep.State().DidSucceed() {
			out = append(out, dep)
		}
	}
	return out
}

func (d *dependentTask) UpNext() task.Task {
	for _, dep := range d.Incomplete() {
		if !dep.State().DidFail() && !dep.State().WasCancelled() {
			return dep
		}
	}
	return nil
}

func (d *dependentTask) DependencyFinished(dep task.Task) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.finishedN++
}

func TestLocalDependencyChain(t *testing.T) {
	q, cleanup := newTestQueue(t, 2)
	defer cleanup()

	log := &execLog{}
	x := newRecordingTask("x", priority.FromBand(priority.BandMedium), log)
	y := newDependentTask("y", priority.FromBand(priority.BandMedium), log, []task.Task{x})

	q.Add(y)
	q.Start()

	require.True(t, q.WaitTimeout(2*time.Second))
	order := log.snapshot()
	require.Len(t, order, 2)
	assert.Equal(t, "x", order[0])
	assert.Equal(t, "y", order[1])
	assert.True(t, x.State().DidSucceed())
	assert.True(t, y.State().DidSucceed())
	assert.Equal(t, 1, y.finishedN)
}

// failingTask always fails its Execute call.
type failingTask struct {
	*task.Base
}

func (f *failingTask) Execute() bool { return false }
func (f *failingTask) Finish()       {}

func TestDependencyFailurePropagates(t *testing.T) {
	q, cleanup := newTestQueue(t, 2)
	defer cleanup()

	log := &execLog{}
	bad := &failingTask{Base: task.NewBase(priority.FromBand(priority.BandMedium), task.QoSDefault)}
	dependent := newDependentTask("dependent", priority.FromBand(priority.BandMedium), log, []task.Task{bad})

	q.Add(dependent)
	q.Start()

	require.True(t, q.WaitTimeout(2*time.Second))
	assert.True(t, bad.State().DidFail())
	assert.True(t, dependent.State().DidFail())
	reason, ok := dependent.State().FailReason()
	require.True(t, ok)
	assert.Contains(t, reason.String(), "dependency")
	assert.Empty(t, log.snapshot())
}

// pausableTask blocks in Execute until its Resume hook has been called.
type pausableTask struct {
	*task.Base
	name    string
	log     *execLog
	paused  chan struct{}
	resumed chan struct{}
	done    chan struct{}
}

func newPausableTask(name string, p priority.Priority, log *execLog) *pausableTask {
	return &pausableTask{
		Base:    task.NewBase(p, task.QoSDefault),
		name:    name,
		log:     log,
		paused:  make(chan struct{}),
		resumed: make(chan struct{}),
		done:    make(chan struct{}),
	}
}

func (p *pausableTask) Execute() bool {
	<-p.resumed // scenario drives pause then resume before letting this proceed
	p.log.record(p.name)
	close(p.done)
	return true
}

func (p *pausableTask) Finish() {}

func (p *pausableTask) Pause() bool {
	close(p.paused)
	return true
}

func (p *pausableTask) Resume() bool {
	close(p.resumed)
	return true
}

func TestPauseResumeCycle(t *testing.T) {
	q, cleanup := newTestQueue(t, 1)
	defer cleanup()

	log := &execLog{}
	pt := newPausableTask("p", priority.FromBand(priority.BandMedium), log)
	q.Add(pt)
	q.Start()

	require.Eventually(t, func() bool { return pt.State().IsExecuting() }, time.Second, time.Millisecond)

	q.Pause()
	<-pt.paused
	require.Eventually(t, func() bool { return pt.State().IsPaused() }, time.Second, time.Millisecond)

	q.Resume()
	require.True(t, q.WaitTimeout(2*time.Second))
	assert.True(t, pt.State().DidSucceed())
	assert.Equal(t, []string{"p"}, log.snapshot())
}
