package livegraph

import (
	"sync"

	"github.com/randalmurphal/livegraph/pkg/livegraph/connection"
)

type controlKind int

const (
	controlConnect controlKind = iota
	controlDisconnect
)

// control is a wiring change sent from the executor to a node loop.
type control struct {
	kind   controlKind
	input  InputID
	from   OutputRef
	handle *connection.Handle
}

// mailbox is an unbounded FIFO of control messages with a single consumer.
// Push never blocks, so Update never waits on a busy node.
type mailbox struct {
	mu     sync.Mutex
	queue  []control
	signal chan struct{}
	closed bool
}

func newMailbox() *mailbox {
	return &mailbox{signal: make(chan struct{}, 1)}
}

// push appends msg. It reports false once the mailbox is closed.
func (m *mailbox) push(msg control) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return false
	}
	m.queue = append(m.queue, msg)
	select {
	case m.signal <- struct{}{}:
	default:
	}
	return true
}

// drain removes and returns all queued messages. open is false once the
// mailbox is closed; queued messages are discarded in that case.
func (m *mailbox) drain() (msgs []control, open bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, false
	}
	msgs, m.queue = m.queue, nil
	select {
	case <-m.signal:
	default:
	}
	return msgs, true
}

// ready is readable when messages are queued or the mailbox is closed.
func (m *mailbox) ready() <-chan struct{} {
	return m.signal
}

func (m *mailbox) close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}
	m.closed = true
	m.queue = nil
	close(m.signal)
}
