package taskset

import (
	"context"
	"testing"
	"time"

	"github.com/yhl25/numaflow-go/apis/reduce"
	"github.com/yhl25/numaflow-go/apis/reduceerrors"
	"github.com/yhl25/numaflow-go/internal/wire"
	"github.com/yhl25/numaflow-go/pb"
)

const waitTimeout = time.Second

func sumFactory() reduce.ReducerFactory {
	return reduce.ReducerFactoryFunc(func() reduce.Reducer {
		return reduce.ReducerFunc(func(_ context.Context, _ reduce.Keys, input <-chan reduce.InRecord, _ *reduce.Metadata) []reduce.OutMessage {
			var total int
			for rec := range input {
				total += len(rec.Value)
			}

			return []reduce.OutMessage{{Value: []byte{byte(total)}}}
		})
	})
}

func windowOp() *pb.WindowOperation {
	return &pb.WindowOperation{Windows: []*pb.Window{
		{Start: wire.TimeToPB(time.Unix(0, 0)), End: wire.TimeToPB(time.Unix(60, 0)), Slot: "slot-0"},
	}}
}

func TestRouteCreatesOneTaskPerKeyTuple(t *testing.T) {
	out := make(chan pb.Envelope, 4)
	errs := make(chan *reduceerrors.Error, 1)
	ts := New(sumFactory(), out, errs)
	ctx := context.Background()

	ts.Route(ctx, &pb.ReduceRequest{
		Payload:   &pb.Payload{Keys: []string{"a"}, Value: []byte("x")},
		Operation: windowOp(),
	})
	ts.Route(ctx, &pb.ReduceRequest{
		Payload:   &pb.Payload{Keys: []string{"b"}, Value: []byte("yy")},
		Operation: windowOp(),
	})

	if got := ts.LiveKeys().Len(); got != 2 {
		t.Fatalf("expected 2 live keys, got %d", got)
	}

	ts.Close(ctx)

	results := map[string]int{}
	eofs := 0
	for i := 0; i < 3; i++ {
		select {
		case env := <-out:
			if env.Response.EOF {
				eofs++

				continue
			}
			results[string(env.Response.Result.Keys[0])] = len(env.Response.Result.Value)
		case <-time.After(waitTimeout):
			t.Fatal("timed out waiting for outbound items")
		}
	}

	if eofs != 1 {
		t.Errorf("expected exactly one EOF marker, got %d", eofs)
	}
	if ts.LiveKeys().Len() != 0 {
		t.Error("expected the registry to be empty after Close")
	}
}

func TestRouteRejectsMultipleWindows(t *testing.T) {
	out := make(chan pb.Envelope, 1)
	errs := make(chan *reduceerrors.Error, 1)
	ts := New(sumFactory(), out, errs)

	req := &pb.ReduceRequest{
		Payload: &pb.Payload{Keys: []string{"a"}, Value: []byte("x")},
		Operation: &pb.WindowOperation{Windows: []*pb.Window{
			{Start: wire.TimeToPB(time.Unix(0, 0)), End: wire.TimeToPB(time.Unix(60, 0))},
			{Start: wire.TimeToPB(time.Unix(60, 0)), End: wire.TimeToPB(time.Unix(120, 0))},
		}},
	}
	ts.Route(context.Background(), req)

	select {
	case err := <-errs:
		if err.Kind != reduceerrors.KindInternal {
			t.Errorf("expected KindInternal, got %v", err.Kind)
		}
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for validation error")
	}

	if ts.LiveKeys().Len() != 0 {
		t.Error("expected no task to be created for an invalid request")
	}
}

func TestCloseOnEmptyTaskSetStillEmitsEOF(t *testing.T) {
	out := make(chan pb.Envelope, 1)
	errs := make(chan *reduceerrors.Error, 1)
	ts := New(sumFactory(), out, errs)

	ts.Close(context.Background())

	select {
	case env := <-out:
		if !env.Response.EOF {
			t.Errorf("expected an EOF marker, got %+v", env.Response)
		}
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for EOF marker")
	}
}
