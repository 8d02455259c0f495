package livegraph

import (
	"slices"
	"sync"

	"github.com/randalmurphal/livegraph/pkg/livegraph/connection"
	"github.com/randalmurphal/livegraph/pkg/livegraph/observability"
	"github.com/randalmurphal/livegraph/pkg/livegraph/watch"
)

// runner is the executor's record of one running node task.
type runner struct {
	id   NodeID
	kind string

	// Read-only after spawn.
	outputs  map[OutputID]*connection.Handle
	closers  []func()
	progress *watch.Sender[Progress]

	// Owned by Update.
	wiring  map[InputID]OutputRef
	handles map[InputID]*connection.Handle
	sync    *watch.Sender[Node]

	mailbox *mailbox
	done    chan struct{}
	health  health
}

// health is written by the runner's loop and read by Executor.Status.
type health struct {
	mu       sync.Mutex
	runs     int64
	failures int64
	failing  bool
	lastErr  string
}

func (h *health) record(outcome observability.Outcome, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.runs++
	switch outcome {
	case observability.OutcomeError, observability.OutcomePanic:
		h.failures++
		h.failing = true
		if err != nil {
			h.lastErr = err.Error()
		}
	case observability.OutcomeOK:
		h.failing = false
	}
}

func (h *health) fill(s *RunnerStatus) {
	h.mu.Lock()
	defer h.mu.Unlock()

	s.Runs = h.runs
	s.Failures = h.failures
	s.Failing = h.failing
	s.LastError = h.lastErr
}

func (r *runner) output(id OutputID) (*connection.Handle, bool) {
	h, ok := r.outputs[id]
	if !ok {
		return nil, false
	}
	return h.Clone(), true
}

// linkClosed reports whether the producer wired to input closed its output.
func (r *runner) linkClosed(input InputID) bool {
	h, ok := r.handles[input]
	return ok && h.Closed()
}

// retire stops the runner's loop and closes its outputs. Consumers see the
// closed connections immediately, without waiting for the loop to exit.
func (r *runner) retire() {
	r.mailbox.close()
	for _, c := range r.closers {
		c()
	}
}

// runnerTable indexes runners by node. Lookups may run concurrently with
// each other (a views executor resolves outputs while the pipeline runs);
// inserts and deletes happen only inside Update.
type runnerTable struct {
	mu      sync.RWMutex
	runners map[NodeID]*runner
}

func newRunnerTable() *runnerTable {
	return &runnerTable{runners: make(map[NodeID]*runner)}
}

func (t *runnerTable) get(id NodeID) (*runner, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	r, ok := t.runners[id]
	return r, ok
}

func (t *runnerTable) put(r *runner) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.runners[r.id] = r
}

func (t *runnerTable) remove(id NodeID) (*runner, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	r, ok := t.runners[id]
	delete(t.runners, id)
	return r, ok
}

// ids returns the node ids in ascending order.
func (t *runnerTable) ids() []NodeID {
	t.mu.RLock()
	ids := make([]NodeID, 0, len(t.runners))
	for id := range t.runners {
		ids = append(ids, id)
	}
	t.mu.RUnlock()

	slices.Sort(ids)
	return ids
}

func (t *runnerTable) count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.runners)
}
