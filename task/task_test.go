package task

import (
	"context"
	"testing"
	"time"

	"github.com/yhl25/numaflow-go/apis/reduce"
	"github.com/yhl25/numaflow-go/apis/reduceerrors"
	"github.com/yhl25/numaflow-go/pb"
)

const waitTimeout = time.Second

func TestTaskForwardsEmittedMessages(t *testing.T) {
	sum := reduce.ReducerFunc(func(_ context.Context, _ reduce.Keys, input <-chan reduce.InRecord, _ *reduce.Metadata) []reduce.OutMessage {
		var total int
		for rec := range input {
			total += len(rec.Value)
		}

		return []reduce.OutMessage{{Value: []byte{byte(total)}}}
	})

	out := make(chan pb.Envelope, 1)
	errs := make(chan *reduceerrors.Error, 1)
	md := &reduce.Metadata{Window: reduce.Window{Start: time.Unix(0, 0), End: time.Unix(60, 0)}}

	tk := New(context.Background(), reduce.Keys{"a"}, sum, md, out, errs)
	tk.Send(reduce.InRecord{Value: []byte("x")}, errs)
	tk.Send(reduce.InRecord{Value: []byte("y")}, errs)
	tk.Close()

	select {
	case env := <-out:
		if env.Response == nil || env.Response.Result == nil {
			t.Fatalf("expected a response with a result, got %+v", env)
		}
		if got, want := env.Response.Result.Value, []byte{2}; string(got) != string(want) {
			t.Errorf("Result.Value = %v, want %v", got, want)
		}
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for forwarded message")
	}

	select {
	case err := <-errs:
		t.Fatalf("expected no error, got %v", err)
	default:
	}
}

func TestTaskReportsPanicAsUserDefinedError(t *testing.T) {
	boom := reduce.ReducerFunc(func(context.Context, reduce.Keys, <-chan reduce.InRecord, *reduce.Metadata) []reduce.OutMessage {
		panic("kaboom")
	})

	out := make(chan pb.Envelope, 1)
	errs := make(chan *reduceerrors.Error, 1)
	md := &reduce.Metadata{}

	tk := New(context.Background(), reduce.Keys{"a"}, boom, md, out, errs)
	tk.Close()

	select {
	case err := <-errs:
		if err.Kind != reduceerrors.KindUserDefined {
			t.Errorf("expected KindUserDefined, got %v", err.Kind)
		}
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for panic to be reported")
	}
}

func TestTaskCloseIsIdempotent(t *testing.T) {
	noop := reduce.ReducerFunc(func(_ context.Context, _ reduce.Keys, input <-chan reduce.InRecord, _ *reduce.Metadata) []reduce.OutMessage {
		for range input {
		}

		return nil
	})

	out := make(chan pb.Envelope, 1)
	errs := make(chan *reduceerrors.Error, 1)

	tk := New(context.Background(), reduce.Keys{"a"}, noop, &reduce.Metadata{}, out, errs)
	tk.Close()
	tk.Close()
}

func TestTaskAbortStopsWithoutEmitting(t *testing.T) {
	blocked := reduce.ReducerFunc(func(ctx context.Context, _ reduce.Keys, input <-chan reduce.InRecord, _ *reduce.Metadata) []reduce.OutMessage {
		<-ctx.Done()

		return []reduce.OutMessage{{Value: []byte("late")}}
	})

	out := make(chan pb.Envelope)
	errs := make(chan *reduceerrors.Error, 1)

	tk := New(context.Background(), reduce.Keys{"a"}, blocked, &reduce.Metadata{}, out, errs)

	done := make(chan struct{})
	go func() {
		tk.Abort()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for Abort to return")
	}

	select {
	case env := <-out:
		t.Fatalf("expected no emission after abort, got %+v", env)
	default:
	}
}
