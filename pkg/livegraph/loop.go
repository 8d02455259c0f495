package livegraph

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/randalmurphal/livegraph/pkg/livegraph/connection"
	"github.com/randalmurphal/livegraph/pkg/livegraph/event"
	"github.com/randalmurphal/livegraph/pkg/livegraph/observability"
	"github.com/randalmurphal/livegraph/pkg/livegraph/watch"
)

// nodeLoop drives one task. Events are handled in priority order: control
// messages, then parameter sync, then input invalidations. When none is
// pending the task's Run is invoked; any event arriving meanwhile cancels
// the run and is handled once Run has returned.
type nodeLoop struct {
	exec   *Executor
	r      *runner
	task   Task
	logger *slog.Logger
	base   context.Context

	sync         *watch.Receiver[Node]
	invalidators []connection.Invalidator

	watchers    map[InputID]*inputWatch
	invalidated chan invalidation
	gen         uint64

	// stalled is set when the last run failed. Run is not invoked again
	// until the next invalidation.
	stalled bool
	// failed remembers a failure until a run succeeds.
	failed bool
}

// inputWatch waits for invalidations of one connected input.
type inputWatch struct {
	gen    uint64
	cancel context.CancelFunc
}

type invalidation struct {
	input InputID
	gen   uint64
	// open is false when the producer closed the connection.
	open bool
}

type runResult struct {
	err      error
	panicked *PanicError
	duration time.Duration
}

func newNodeLoop(e *Executor, r *runner, task Task, sync *watch.Receiver[Node], invalidators []connection.Invalidator, logger *slog.Logger) *nodeLoop {
	base := withNodeID(ContextWithLogger(context.Background(), logger), r.id)
	return &nodeLoop{
		exec:         e,
		r:            r,
		task:         task,
		logger:       logger,
		base:         base,
		sync:         sync,
		invalidators: invalidators,
		watchers:     make(map[InputID]*inputWatch),
		invalidated:  make(chan invalidation),
	}
}

func (l *nodeLoop) run() {
	defer l.shutdown()

	for {
		msgs, open := l.r.mailbox.drain()
		if !open {
			return
		}
		if len(msgs) > 0 {
			for _, msg := range msgs {
				l.apply(msg)
			}
			continue
		}

		if l.sync.HasChanged() {
			l.applySync()
			continue
		}

		select {
		case inv := <-l.invalidated:
			l.onInvalidation(inv)
			continue
		default:
		}

		l.runUntilEvent()
	}
}

// runUntilEvent invokes Run until it returns or an event arrives. Events
// that cancel a run are left for the main loop, except invalidations which
// have already been received and are handled here.
func (l *nodeLoop) runUntilEvent() {
	if l.stalled {
		select {
		case <-l.r.mailbox.ready():
		case <-l.sync.Ready():
		case inv := <-l.invalidated:
			l.onInvalidation(inv)
		}
		return
	}

	ctx, cancel := context.WithCancel(l.base)
	defer cancel()

	results := make(chan runResult, 1)
	go l.runTask(ctx, results)

	select {
	case res := <-results:
		l.finish(res, false)
	case <-l.r.mailbox.ready():
		cancel()
		l.finish(<-results, true)
	case <-l.sync.Ready():
		cancel()
		l.finish(<-results, true)
	case inv := <-l.invalidated:
		cancel()
		l.finish(<-results, true)
		l.onInvalidation(inv)
	}
}

// runTask calls Run under a failure barrier and sends exactly one result.
func (l *nodeLoop) runTask(ctx context.Context, results chan<- runResult) {
	ctx, span := l.exec.cfg.spans.StartRunSpan(ctx, uint32(l.r.id), l.r.kind)
	start := time.Now()

	var res runResult
	defer func() {
		if v := recover(); v != nil {
			res.panicked = &PanicError{NodeID: l.r.id, Value: v, Stack: string(debug.Stack())}
		}
		res.duration = time.Since(start)

		var spanErr error
		switch {
		case res.panicked != nil:
			spanErr = res.panicked
		case res.err != nil:
			spanErr = res.err
		}
		l.exec.cfg.spans.EndSpanWithError(span, spanErr)
		results <- res
	}()

	res.err = l.task.Run(ctx)
}

// finish records the outcome of one run. Errors from a run that was
// cancelled are expected and not reported.
func (l *nodeLoop) finish(res runResult, cancelled bool) {
	id := uint32(l.r.id)
	outcome := observability.OutcomeOK

	switch {
	case res.panicked != nil:
		outcome = observability.OutcomePanic
		observability.LogTaskPanicked(l.logger, id, res.panicked.Value, res.panicked.Stack)
		l.exec.publish(event.TypeTaskPanicked, event.NodeStatus{NodeID: id, Kind: l.r.kind, Error: res.panicked.Error()})
		l.stalled = true
		l.failed = true
	case cancelled:
		outcome = observability.OutcomeCancelled
	case res.err != nil:
		outcome = observability.OutcomeError
		err := &NodeError{NodeID: l.r.id, Op: "run", Err: res.err}
		observability.LogTaskFailed(l.logger, id, err, float64(res.duration.Microseconds())/1000)
		l.exec.publish(event.TypeTaskFailed, event.NodeStatus{NodeID: id, Kind: l.r.kind, Error: err.Error()})
		l.stalled = true
		l.failed = true
	case l.failed:
		l.failed = false
		l.exec.publish(event.TypeTaskRecovered, event.NodeStatus{NodeID: id, Kind: l.r.kind})
	}

	var failure error
	if res.panicked != nil {
		failure = res.panicked
	} else if !cancelled {
		failure = res.err
	}
	l.r.health.record(outcome, failure)
	l.exec.cfg.metrics.RecordRun(l.base, l.r.kind, res.duration, outcome)
}

func (l *nodeLoop) apply(msg control) {
	id := uint32(l.r.id)
	input := uint32(msg.input)

	switch msg.kind {
	case controlConnect:
		l.task.Connect(msg.input, msg.handle)
		if msg.handle.Connected() {
			l.watch(msg.input, msg.handle.Notifier())
			l.exec.publish(event.TypeInputConnected, event.NodeStatus{NodeID: id, Kind: l.r.kind, InputID: &input})
		} else {
			err := fmt.Errorf("%w: input refused %s from %s", ErrTypeMismatch, msg.handle, msg.from)
			observability.LogConnectDropped(l.logger, id, input, err)
			l.exec.publish(event.TypeInputDropped, event.NodeStatus{NodeID: id, Kind: l.r.kind, InputID: &input, Error: err.Error()})
		}
		l.invalidate(InvalidationCause{Kind: CauseConnected, Input: msg.input})

	case controlDisconnect:
		l.task.Disconnect(msg.input)
		l.unwatch(msg.input)
		l.exec.publish(event.TypeInputRemoved, event.NodeStatus{NodeID: id, Kind: l.r.kind, InputID: &input})
		l.invalidate(InvalidationCause{Kind: CauseDisconnected, Input: msg.input})
	}
}

func (l *nodeLoop) applySync() {
	l.task.Sync(l.sync.BorrowAndUpdate())
	l.invalidate(InvalidationCause{Kind: CauseSynced})
}

// watch starts waiting for invalidations on input, replacing any earlier
// watcher for it.
func (l *nodeLoop) watch(input InputID, n *connection.InvalidationNotifier) {
	l.unwatch(input)

	l.gen++
	ctx, cancel := context.WithCancel(context.Background())
	w := &inputWatch{gen: l.gen, cancel: cancel}
	l.watchers[input] = w

	go func() {
		for {
			open, err := n.Wait(ctx)
			if err != nil {
				return
			}
			select {
			case l.invalidated <- invalidation{input: input, gen: w.gen, open: open}:
			case <-ctx.Done():
				return
			}
			if !open {
				return
			}
		}
	}()
}

func (l *nodeLoop) unwatch(input InputID) {
	if w, ok := l.watchers[input]; ok {
		w.cancel()
		delete(l.watchers, input)
	}
}

func (l *nodeLoop) onInvalidation(inv invalidation) {
	w, ok := l.watchers[inv.input]
	if !ok || w.gen != inv.gen {
		return
	}
	if !inv.open {
		l.unwatch(inv.input)
	}
	l.invalidate(InvalidationCause{Kind: CauseInputInvalidated, Input: inv.input})
}

// invalidate clears every published output, notifies the task and lifts a
// stall left by a failed run.
func (l *nodeLoop) invalidate(cause InvalidationCause) {
	for _, inv := range l.invalidators {
		inv.Invalidate()
	}
	l.task.Invalidate(cause)
	l.stalled = false
	l.exec.cfg.metrics.RecordInvalidation(l.base, l.r.kind, cause.Kind.String())
}

func (l *nodeLoop) shutdown() {
	for input := range l.watchers {
		l.unwatch(input)
	}
	for _, c := range l.r.closers {
		c()
	}
	if l.r.progress != nil {
		l.r.progress.Close()
	}
	close(l.r.done)

	e := l.exec
	e.cfg.metrics.RecordRunners(context.Background(), e.cfg.name, -1)
	observability.LogRunnerRetired(e.logger, e.id, uint32(l.r.id))
	e.publish(event.TypeRunnerRetired, event.NodeStatus{NodeID: uint32(l.r.id), Kind: l.r.kind})
}
