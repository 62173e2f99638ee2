package linked

import (
	"context"
	"os"
	"os/exec"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ByteMirror/taskqueue/internal/pool"
	"github.com/ByteMirror/taskqueue/priority"
	"github.com/ByteMirror/taskqueue/queue"
	"github.com/ByteMirror/taskqueue/task"
)

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

type recordingTask struct {
	*task.Base
	name string
	log  *execLog
	gate <-chan struct{}
}

func newRecordingTask(name string, log *execLog) *recordingTask {
	return &recordingTask{Base: task.NewBase(priority.FromBand(priority.BandMedium), task.QoSDefault), name: name, log: log}
}

func (t *recordingTask) Execute() bool {
	if t.gate != nil {
		<-t.gate
	}
	t.log.record(t.name)
	return true
}
func (t *recordingTask) Finish() {}

type dependentTask struct {
	*recordingTask
	deps      []task.Task
	mu        sync.Mutex
	finishedN int
}

func newDependentTask(name string, log *execLog, deps []task.Task) *dependentTask {
	return &dependentTask{recordingTask: newRecordingTask(name, log), deps: deps}
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
	inc := d.Incomplete()
	if len(inc) == 0 {
		return nil
	}
	return inc[0]
}

func (d *dependentTask) DependencyFinished(dep task.Task) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.finishedN++
}

func newTestQueue(t *testing.T, name string, fed *QueueFederation) (*LinkedTaskQueue, func()) {
	t.Helper()
	return newTestQueueWithOptions(t, name, fed, 0)
}

func newTestQueueWithOptions(t *testing.T, name string, fed *QueueFederation, opts DependencyOptions) (*LinkedTaskQueue, func()) {
	t.Helper()
	wp := pool.New(pool.DefaultConfig())
	require.NoError(t, wp.Start())
	q := NewJoined(queue.Config{Name: name, MaxSimultaneous: 2}, wp, fed, opts)
	cleanup := func() {
		q.Close()
		_ = wp.Shutdown(context.Background())
	}
	return q, cleanup
}

func TestCrossQueueLinkedDependency(t *testing.T) {
	fed := NewQueueFederation()
	producerQueue, cleanupA := newTestQueue(t, "producers", fed)
	defer cleanupA()
	consumerQueue, cleanupB := newTestQueue(t, "consumers", fed)
	defer cleanupB()

	log := &execLog{}
	gate := make(chan struct{})
	producer := newRecordingTask("producer", log)
	producer.gate = gate
	consumer := newDependentTask("consumer", log, []task.Task{producer})

	// producer is added to its own queue first, per the federated model's
	// assumption that a cross-queue dependency is already enqueued
	// somewhere in the federation before a dependent references it. Its
	// gate keeps it incomplete until consumer has had time to park on it.
	producerQueue.Add(producer)
	consumerQueue.Add(consumer)

	producerQueue.Start()
	consumerQueue.Start()

	require.Eventually(t, func() bool { return consumer.State().IsWaiting() }, time.Second, time.Millisecond)
	close(gate)

	require.True(t, producerQueue.WaitTimeout(2*time.Second))
	require.True(t, consumerQueue.WaitTimeout(2*time.Second))

	order := log.snapshot()
	require.Len(t, order, 2)
	assert.Equal(t, "producer", order[0])
	assert.Equal(t, "consumer", order[1])
	assert.True(t, producer.State().DidSucceed())
	assert.True(t, consumer.State().DidSucceed())
	assert.Equal(t, 1, consumer.finishedN)
}

func TestFederationSymmetry(t *testing.T) {
	fed := NewQueueFederation()
	a, cleanupA := newTestQueue(t, "a", fed)
	defer cleanupA()
	b, cleanupB := newTestQueue(t, "b", fed)
	defer cleanupB()
	c, cleanupC := newTestQueue(t, "c", fed)
	defer cleanupC()

	assert.ElementsMatch(t, []*LinkedTaskQueue{b, c}, a.Peers())
	assert.ElementsMatch(t, []*LinkedTaskQueue{a, c}, b.Peers())
	assert.ElementsMatch(t, []*LinkedTaskQueue{a, b}, c.Peers())

	fed.Unlink(b)
	assert.ElementsMatch(t, []*LinkedTaskQueue{c}, a.Peers())
	assert.Nil(t, b.Federation())
}

// TestDependencyNotFoundIsFatal verifies that a dependency which cannot be
// located anywhere in the federation crashes the process rather than
// failing the dependent task like an ordinary dependency failure, per
// ErrDependencyNotFound's documented fatal contract. Since that means the
// task's lifecycle goroutine panics with no recover above it, terminating the
// whole binary, this is driven from a subprocess rather than asserted on
// in-process.
func TestDependencyNotFoundIsFatal(t *testing.T) {
	const subprocessEnv = "TASKQUEUE_LINKED_TEST_DEPENDENCY_NOT_FOUND"

	if os.Getenv(subprocessEnv) == "1" {
		fed := NewQueueFederation()
		q, cleanup := newTestQueue(t, "solo", fed)
		defer cleanup()

		log := &execLog{}
		ghost := newRecordingTask("ghost", log) // never added anywhere in the federation
		dependent := newDependentTask("dependent", log, []task.Task{ghost})

		q.Add(dependent)
		q.Start()

		time.Sleep(2 * time.Second)
		t.Fatal("queue should have crashed the process before this point")
		return
	}

	cmd := exec.Command(os.Args[0], "-test.run=^TestDependencyNotFoundIsFatal$")
	cmd.Env = append(os.Environ(), subprocessEnv+"=1")
	out, err := cmd.CombinedOutput()

	require.Error(t, err, "subprocess should have exited non-zero on an unresolvable dependency, output:\n%s", out)
	assert.Contains(t, string(out), "dependency not found in queue or federation")
}

func TestIncreaseDependencyPriorityReordersPeerWaitingList(t *testing.T) {
	fed := NewQueueFederation()

	producerWP := pool.New(pool.DefaultConfig())
	require.NoError(t, producerWP.Start())
	producerQueue := NewJoined(queue.Config{Name: "producers", MaxSimultaneous: 1}, producerWP, fed, 0)
	defer func() {
		producerQueue.Close()
		_ = producerWP.Shutdown(context.Background())
	}()

	consumerQueue, cleanupConsumer := newTestQueueWithOptions(t, "consumers", fed, IncreaseDependencyPriority)
	defer cleanupConsumer()

	log := &execLog{}

	blockerGate := make(chan struct{})
	blocker := newRecordingTask("blocker", log)
	blocker.gate = blockerGate

	lowDep := newRecordingTask("low-dep", log)
	other := newRecordingTask("other", log)

	producerQueue.Add(blocker)
	producerQueue.Start()
	require.Eventually(t, func() bool { return blocker.State().IsExecuting() }, time.Second, time.Millisecond)

	// other is added first, so at the same (medium) priority it sorts
	// ahead of lowDep by insertion order alone.
	producerQueue.Add(other)
	producerQueue.Add(lowDep)
	require.Eventually(t, func() bool { return len(producerQueue.Waiting()) == 2 }, time.Second, time.Millisecond)
	waiting := producerQueue.Waiting()
	require.Len(t, waiting, 2)
	assert.Equal(t, other.ID(), waiting[0].ID())

	consumer := newDependentTask("consumer", log, []task.Task{lowDep})
	consumerQueue.Add(consumer)
	consumerQueue.Start()
	require.Eventually(t, func() bool { return consumer.State().IsWaiting() }, time.Second, time.Millisecond)

	waiting = producerQueue.Waiting()
	require.Len(t, waiting, 2)
	assert.Equal(t, lowDep.ID(), waiting[0].ID(),
		"lowDep should have been bumped ahead of other once IncreaseDependencyPriority fired")
	assert.Equal(t, priority.BandHigh, lowDep.Priority().Band())

	close(blockerGate)
	require.True(t, producerQueue.WaitTimeout(2*time.Second))
	require.True(t, consumerQueue.WaitTimeout(2*time.Second))
	assert.True(t, consumer.State().DidSucceed())
}

func TestDecreaseDependentPriorityLowersDependent(t *testing.T) {
	fed := NewQueueFederation()
	producerQueue, cleanupProducer := newTestQueue(t, "producers", fed)
	defer cleanupProducer()
	consumerQueue, cleanupConsumer := newTestQueueWithOptions(t, "consumers", fed, DecreaseDependentPriority)
	defer cleanupConsumer()

	log := &execLog{}
	gate := make(chan struct{})
	producer := newRecordingTask("producer", log)
	producer.gate = gate
	consumer := newDependentTask("consumer", log, []task.Task{producer})
	require.Equal(t, priority.BandMedium, consumer.Priority().Band())

	producerQueue.Add(producer)
	consumerQueue.Add(consumer)
	producerQueue.Start()
	consumerQueue.Start()

	require.Eventually(t, func() bool { return consumer.State().IsWaiting() }, time.Second, time.Millisecond)
	assert.Equal(t, priority.BandLow, consumer.Priority().Band(),
		"DecreaseDependentPriority should have lowered consumer's own priority once it parked on producer")

	close(gate)
	require.True(t, producerQueue.WaitTimeout(2*time.Second))
	require.True(t, consumerQueue.WaitTimeout(2*time.Second))
}
