package server

import (
	"context"
	"io"
	"sync"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/sirupsen/logrus"

	"github.com/yhl25/numaflow-go/apis/reduce"
	"github.com/yhl25/numaflow-go/apis/reduceerrors"
	"github.com/yhl25/numaflow-go/pb"
	"github.com/yhl25/numaflow-go/taskset"
)

// CallHandler implements pb.ReduceServiceServer. One CallHandler is shared
// across every call; ReduceFn constructs fresh per-call state (a TaskSet,
// an outbound channel, and an error channel) for each invocation.
type CallHandler struct {
	factory reduce.ReducerFactory
	log     logrus.FieldLogger
	// shutdown is closed by the error-drain loop of any call on its first
	// reported error, signalling the enclosing Server to begin graceful
	// termination.
	shutdown     chan struct{}
	shutdownOnce sync.Once

	mu     sync.Mutex
	active map[*taskset.TaskSet]struct{}
}

// NewCallHandler builds a CallHandler that creates a fresh Reducer via
// factory for every key-tuple it sees.
func NewCallHandler(factory reduce.ReducerFactory, log logrus.FieldLogger) *CallHandler {
	return &CallHandler{
		factory:  factory,
		log:      log,
		shutdown: make(chan struct{}),
		active:   make(map[*taskset.TaskSet]struct{}),
	}
}

// Shutdown is closed the first time any call reports an error.
func (h *CallHandler) Shutdown() <-chan struct{} {
	return h.shutdown
}

// IsReady implements the liveness probe: it reports ready unconditionally
// once the server is accepting calls at all, while logging a diagnostic
// snapshot of how many calls are in flight and how many key-tuples they
// have live Tasks for.
func (h *CallHandler) IsReady(context.Context, *struct{}) (*pb.ReadyResponse, error) {
	h.mu.Lock()
	activeCalls := len(h.active)
	var liveKeys int
	for ts := range h.active {
		liveKeys += ts.LiveKeys().Len()
	}
	h.mu.Unlock()

	h.log.WithFields(logrus.Fields{"active_calls": activeCalls, "live_keys": liveKeys}).Debug("liveness probe")

	return &pb.ReadyResponse{Ready: true}, nil
}

// ReduceFn implements the bidirectional-stream RPC: an inbound loop
// demultiplexes the stream by key-tuple into a TaskSet, a concurrent
// outbound loop forwards emitted items to the client, and a third,
// concurrent, race between the call's error channel and inbound
// completion lets a reported failure end the RPC the instant it occurs,
// rather than only once the client stops sending.
func (h *CallHandler) ReduceFn(stream pb.ReduceService_ReduceFnServer) error {
	ctx := stream.Context()

	out := make(chan pb.Envelope, 1)
	errs := make(chan *reduceerrors.Error, 1)
	ts := taskset.New(h.factory, out, errs)

	h.trackTaskSet(ts)
	defer h.untrackTaskSet(ts)

	outboundDone := make(chan struct{})
	go h.runOutbound(stream, out, outboundDone)

	inboundDone := make(chan struct{})
	go func() {
		defer close(inboundDone)
		h.runInbound(ctx, stream, ts, errs)
	}()

	select {
	case err := <-errs:
		// Abort immediately rather than waiting for the client to finish
		// sending: a stuck or still-sending client must not delay error
		// reporting. runInbound may still be mid-Recv and may route a
		// record into a new Task after this Abort drains the registry, so
		// a second Abort runs once runInbound has actually stopped, before
		// out is closed.
		ts.Abort()
		go func() {
			<-inboundDone
			ts.Abort()
			close(out)
			<-outboundDone
		}()
		h.reportFailure(err)

		return status.Error(codes.Unknown, err.Error())
	case <-inboundDone:
	}

	select {
	case err := <-errs:
		ts.Abort()
		close(out)
		<-outboundDone
		h.reportFailure(err)

		return status.Error(codes.Unknown, err.Error())
	default:
	}

	ts.Close(ctx)
	close(out)
	<-outboundDone

	return nil
}

// trackTaskSet registers ts so IsReady can report on it while the call is
// in flight.
func (h *CallHandler) trackTaskSet(ts *taskset.TaskSet) {
	h.mu.Lock()
	h.active[ts] = struct{}{}
	h.mu.Unlock()
}

// untrackTaskSet removes ts once its call has finished.
func (h *CallHandler) untrackTaskSet(ts *taskset.TaskSet) {
	h.mu.Lock()
	delete(h.active, ts)
	h.mu.Unlock()
}

// runInbound reads the client stream to completion, routing every record
// through ts. It returns when the client closes its send side (io.EOF) or
// the stream errs; a recv error other than io.EOF is reported on errs as an
// InternalError before returning, leaving TaskSet.Close/Abort to the caller.
func (h *CallHandler) runInbound(
	ctx context.Context, stream pb.ReduceService_ReduceFnServer, ts *taskset.TaskSet, errs chan<- *reduceerrors.Error,
) {
	for {
		req, err := stream.Recv()
		if err != nil {
			if err != io.EOF {
				select {
				case errs <- reduceerrors.Internal("failed to receive request: %v", err):
				default:
				}
			}

			return
		}

		ts.Route(ctx, req)
	}
}

// runOutbound drains out, forwarding every item to the client, until out is
// closed. It signals done when it returns so ReduceFn can safely proceed
// past Close/Abort.
func (h *CallHandler) runOutbound(stream pb.ReduceService_ReduceFnServer, out <-chan pb.Envelope, done chan<- struct{}) {
	defer close(done)

	for env := range out {
		if err := stream.Send(env.Response); err != nil {
			h.log.WithError(err).Warn("failed to send response to client")

			return
		}
	}
}

// reportFailure logs err and, on its first invocation across the
// CallHandler's lifetime, closes Shutdown.
func (h *CallHandler) reportFailure(err *reduceerrors.Error) {
	h.log.WithFields(logrus.Fields{"kind": err.Kind, "message": err.Message}).Error("reduce call failed")
	h.shutdownOnce.Do(func() { close(h.shutdown) })
}
