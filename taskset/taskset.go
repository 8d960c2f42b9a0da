// Package taskset implements TaskSet: the per-call registry mapping a
// key-tuple's canonical identity to its Task. TaskSet owns the outbound
// response channel and the shared error channel for a call, validates
// inbound records, and drives end-of-window closure.
package taskset

import (
	"context"
	"sync"

	"github.com/benbjohnson/immutable"

	"github.com/yhl25/numaflow-go/apis/reduce"
	"github.com/yhl25/numaflow-go/apis/reduceerrors"
	"github.com/yhl25/numaflow-go/internal/wire"
	"github.com/yhl25/numaflow-go/pb"
	"github.com/yhl25/numaflow-go/task"
)

// TaskSet is the per-call task registry. It is not safe to Route from
// multiple goroutines concurrently — the inbound dispatch loop is its
// sole writer — but LiveKeys may be read concurrently with Route for
// diagnostics.
type TaskSet struct {
	mu    sync.Mutex
	tasks map[string]*task.Task
	// liveKeys mirrors tasks' key set as an immutable snapshot so that a
	// concurrent diagnostic reader (LiveKeys) never observes a torn read
	// of the registry while Route or Close mutate it.
	liveKeys *immutable.Map[string, reduce.Keys]

	factory reduce.ReducerFactory
	out     chan<- pb.Envelope
	errs    chan<- *reduceerrors.Error

	window       reduce.Window
	windowPinned bool
}

// New creates a TaskSet bound to the given ReducerFactory, outbound
// sender, and error sender. The active Window is unset until the first
// record successfully validates.
func New(factory reduce.ReducerFactory, out chan<- pb.Envelope, errs chan<- *reduceerrors.Error) *TaskSet {
	return &TaskSet{
		tasks:    make(map[string]*task.Task),
		liveKeys: immutable.NewMap[string, reduce.Keys](nil),
		factory:  factory,
		out:      out,
		errs:     errs,
	}
}

// Route validates req and delivers it to the Task for its key-tuple,
// creating the Task via the ReducerFactory on first sight of that
// key-tuple.
func (ts *TaskSet) Route(ctx context.Context, req *pb.ReduceRequest) {
	rec, window, ok := ts.validateAndExtract(req)
	if !ok {
		return
	}

	canon := rec.Keys.Canonical()

	ts.mu.Lock()
	t, exists := ts.tasks[canon]
	if !exists {
		md := &reduce.Metadata{Window: window}
		t = task.New(ctx, rec.Keys, ts.factory.Create(), md, ts.out, ts.errs)
		ts.tasks[canon] = t
		ts.liveKeys = ts.liveKeys.Set(canon, rec.Keys)
	}
	ts.mu.Unlock()

	t.Send(rec, ts.errs)
}

// validateAndExtract requires req to carry both a payload and an
// operation, and the operation to carry exactly one Window. On
// violation, it reports an InternalError and returns ok=false. On the
// first successful validation for this TaskSet, it pins the active
// Window to the one observed; later records are not checked against it
// (see DESIGN.md for the rationale behind this choice).
func (ts *TaskSet) validateAndExtract(req *pb.ReduceRequest) (reduce.InRecord, reduce.Window, bool) {
	if req.Payload == nil || req.Operation == nil {
		reportError(ts.errs, reduceerrors.Internal("Invalid ReduceRequest"))

		return reduce.InRecord{}, reduce.Window{}, false
	}

	w, ok := wire.ExtractSingleWindow(req.Operation)
	if !ok {
		reportError(ts.errs, reduceerrors.Internal("Exactly one window is required"))

		return reduce.InRecord{}, reduce.Window{}, false
	}

	window := wire.WindowFromPB(w)

	ts.mu.Lock()
	if !ts.windowPinned {
		ts.window = window
		ts.windowPinned = true
	}
	pinned := ts.window
	ts.mu.Unlock()

	return wire.RecordFromPayload(req.Payload), pinned, true
}

// Close drains the registry, closing every Task in turn, then emits a
// single end-of-window marker carrying the pinned Window. If ctx is
// cancelled before the marker can be delivered, an InternalError is
// reported instead.
func (ts *TaskSet) Close(ctx context.Context) {
	tasks, window := ts.drain()

	for _, t := range tasks {
		t.Close()
	}

	env := pb.Envelope{Response: &pb.ReduceResponse{
		Window: wire.WindowToPB(window),
		EOF:    true,
	}}

	select {
	case ts.out <- env:
	case <-ctx.Done():
		reportError(ts.errs, reduceerrors.Internal("failed to send EOF message: %v", ctx.Err()))
	}
}

// Abort drains the registry, aborting every Task. No end-of-window
// marker is emitted; used only on shutdown-induced teardown.
func (ts *TaskSet) Abort() {
	tasks, _ := ts.drain()
	for _, t := range tasks {
		t.Abort()
	}
}

// drain empties the registry and returns its prior contents along with
// the pinned Window, under lock.
func (ts *TaskSet) drain() ([]*task.Task, reduce.Window) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	tasks := make([]*task.Task, 0, len(ts.tasks))
	for _, t := range ts.tasks {
		tasks = append(tasks, t)
	}
	ts.tasks = make(map[string]*task.Task)
	ts.liveKeys = immutable.NewMap[string, reduce.Keys](nil)

	return tasks, ts.window
}

// LiveKeys returns a point-in-time, immutable snapshot of the key-tuples
// with a live Task in this TaskSet, safe to read concurrently with Route.
func (ts *TaskSet) LiveKeys() *immutable.Map[string, reduce.Keys] {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	return ts.liveKeys
}

func reportError(errs chan<- *reduceerrors.Error, err *reduceerrors.Error) {
	select {
	case errs <- err:
	default:
	}
}
