package task

import (
	"sync"

	"github.com/ByteMirror/taskqueue/priority"
	"github.com/ByteMirror/taskqueue/taskstate"
)

// Base is an embeddable implementation of the required Task capability's
// bookkeeping (id, priority, QoS, state), so a consumer only has to supply
// Execute (and whichever optional capabilities it wants) on top of it.
// State mutation is guarded by a mutex since the runtime may read/write it
// from a different goroutine than the one that constructed the task.
type Base struct {
	mu    sync.Mutex
	id    ID
	prio  priority.Priority
	qos   QoS
	state taskstate.State
}

// NewBase constructs a Base with a fresh random ID, ready state, and the
// given priority/QoS.
func NewBase(p priority.Priority, qos QoS) *Base {
	return &Base{
		id:    NewID(),
		prio:  p,
		qos:   qos,
		state: taskstate.Ready(),
	}
}

func (b *Base) ID() ID { return b.id }

func (b *Base) Priority() *priority.Priority { return &b.prio }

func (b *Base) QoS() QoS { return b.qos }

func (b *Base) State() taskstate.State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Base) SetState(s taskstate.State) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = s
}
