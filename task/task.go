// Package task implements Task: a single running Reducer instance bound
// to one key-tuple within one call. Construction spawns a Driver, which
// invokes the Reducer and forwards its emitted messages, and a Watcher,
// which observes the Driver's completion and converts an abnormal
// termination (panic) into a UserDefinedError — the portable technique
// for platforms where a goroutine's panic does not naturally propagate to
// its caller, grounded on the recover()-in-goroutine idiom used by the
// worker pool in the ygrebnov-workers example pack.
package task

import (
	"context"
	"fmt"
	"sync"

	"github.com/yhl25/numaflow-go/apis/reduce"
	"github.com/yhl25/numaflow-go/apis/reduceerrors"
	"github.com/yhl25/numaflow-go/internal/wire"
	"github.com/yhl25/numaflow-go/pb"
)

// Task wraps one running Reducer. It is created on first sight of a
// key-tuple within a call and destroyed at end-of-window or abort.
type Task struct {
	keys reduce.Keys

	// input has capacity 1: the per-key backpressure boundary between the
	// inbound dispatch loop and this Task's Reducer.
	input chan reduce.InRecord

	// driverDone is closed when the Driver goroutine returns, whether or
	// not the Reducer panicked. Send uses it to detect that nobody will
	// ever read from input again.
	driverDone chan struct{}
	// finished is closed by the Watcher after the Driver has terminated
	// and any abnormal-termination error has been reported.
	finished chan struct{}

	cancel    context.CancelFunc
	closeOnce sync.Once
}

// New creates a Task, immediately starting its Driver and Watcher.
// reducer is the Reducer instance created by the ReducerFactory for keys;
// md is valid for the lifetime of the call. out is the shared outbound
// channel (capacity 1, multi-producer); errs is the shared per-call error
// channel.
func New(
	ctx context.Context,
	keys reduce.Keys,
	reducer reduce.Reducer,
	md *reduce.Metadata,
	out chan<- pb.Envelope,
	errs chan<- *reduceerrors.Error,
) *Task {
	ctx, cancel := context.WithCancel(ctx)

	t := &Task{
		keys:       keys,
		input:      make(chan reduce.InRecord, 1),
		driverDone: make(chan struct{}),
		finished:   make(chan struct{}),
		cancel:     cancel,
	}

	t.start(ctx, reducer, md, out, errs)

	return t
}

// start launches the Driver and Watcher goroutines.
func (t *Task) start(
	ctx context.Context,
	reducer reduce.Reducer,
	md *reduce.Metadata,
	out chan<- pb.Envelope,
	errs chan<- *reduceerrors.Error,
) {
	var panicMsg string
	var panicked bool

	go func() {
		defer close(t.driverDone)
		defer func() {
			if r := recover(); r != nil {
				panicked = true
				panicMsg = fmt.Sprintf("%v", r)
			}
		}()

		messages := reducer.Reduce(ctx, t.keys, t.input, md)
		for _, m := range messages {
			if ctx.Err() != nil {
				reportError(errs, reduceerrors.Internal("failed to send response back: %v", ctx.Err()))

				return
			}

			env := pb.Envelope{Response: &pb.ReduceResponse{
				Result: wire.ResultFromOutMessage(m, t.keys),
				Window: wire.WindowToPB(md.Window),
				EOF:    false,
			}}

			select {
			case out <- env:
			case <-ctx.Done():
				reportError(errs, reduceerrors.Internal("failed to send response back: %v", ctx.Err()))

				return
			}
		}
	}()

	go func() {
		<-t.driverDone
		if panicked {
			reportError(errs, reduceerrors.UserDefined("%s", panicMsg))
		}
		close(t.finished)
	}()
}

// Send forwards a record to the Reducer's input channel. It never blocks
// indefinitely beyond the channel's own backpressure: if the Driver has
// already terminated (so nothing will ever drain input again), Send
// reports an InternalError instead of blocking forever.
func (t *Task) Send(rec reduce.InRecord, errs chan<- *reduceerrors.Error) {
	select {
	case t.input <- rec:
	case <-t.driverDone:
		reportError(errs, reduceerrors.Internal("failed to send message to task: reducer already finished"))
	}
}

// Close drops the sender handle, terminating the Reducer's input
// sequence, and awaits completion. It is idempotent and safe to call on a
// Task that has already completed.
func (t *Task) Close() {
	t.closeOnce.Do(func() { close(t.input) })
	<-t.finished
}

// Abort cancels the Driver immediately: no further outbound emission will
// occur, even if the Reducer has buffered messages still to send. Used
// only during shutdown-induced teardown.
func (t *Task) Abort() {
	t.cancel()
	t.closeOnce.Do(func() { close(t.input) })
	<-t.finished
}

// reportError performs a non-blocking send of err onto errs: the error
// channel is drained by exactly one reader for the lifetime of a call, so
// once the first error has been claimed, every later report here is
// correctly discarded rather than leaking a goroutine.
func reportError(errs chan<- *reduceerrors.Error, err *reduceerrors.Error) {
	select {
	case errs <- err:
	default:
	}
}
