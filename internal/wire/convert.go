// Package wire converts between the hand-written pb wire types and the
// apis/reduce domain types: timestamp conversion and the "exactly one
// window" extraction rule.
package wire

import (
	"time"

	"github.com/yhl25/numaflow-go/apis/reduce"
	"github.com/yhl25/numaflow-go/pb"
	"google.golang.org/protobuf/types/known/timestamppb"
)

// ReduceSlot is the slot value the core always propagates on outbound
// items, regardless of what was present on the inbound operation.
const ReduceSlot = "slot-0"

// TimeFromPB converts a possibly-nil wire timestamp to a time.Time,
// returning the zero value for nil.
func TimeFromPB(ts *timestamppb.Timestamp) time.Time {
	if ts == nil {
		return time.Time{}
	}

	return ts.AsTime()
}

// TimeToPB converts a time.Time to a wire timestamp.
func TimeToPB(t time.Time) *timestamppb.Timestamp {
	return timestamppb.New(t)
}

// WindowFromPB converts a single wire Window to the domain Window.
func WindowFromPB(w *pb.Window) reduce.Window {
	return reduce.Window{
		Start: TimeFromPB(w.Start),
		End:   TimeFromPB(w.End),
		Slot:  w.Slot,
	}
}

// WindowToPB converts the call's domain Window to the wire shape used on
// every outbound item. Slot is always emitted as ReduceSlot.
func WindowToPB(w reduce.Window) *pb.Window {
	return &pb.Window{
		Start: TimeToPB(w.Start),
		End:   TimeToPB(w.End),
		Slot:  ReduceSlot,
	}
}

// ExtractSingleWindow validates that op carries exactly one window and
// returns it. It is the wire-level half of TaskSet.validateAndExtract: it
// reports a violation only through ok=false, and the caller builds and
// reports the error.
func ExtractSingleWindow(op *pb.WindowOperation) (*pb.Window, bool) {
	if op == nil || len(op.Windows) != 1 {
		return nil, false
	}

	return op.Windows[0], true
}

// RecordFromPayload converts a validated wire Payload into a domain
// InRecord, taking its keys from the payload.
func RecordFromPayload(p *pb.Payload) reduce.InRecord {
	return reduce.InRecord{
		Keys:      reduce.Keys(p.Keys),
		Value:     p.Value,
		Watermark: TimeFromPB(p.Watermark),
		EventTime: TimeFromPB(p.EventTime),
	}
}

// ResultFromOutMessage converts an OutMessage emitted by a Reducer into
// the wire Result, falling back to the Task's own keys when the message
// does not override them.
func ResultFromOutMessage(m reduce.OutMessage, keys reduce.Keys) *pb.Result {
	outKeys := []string(keys)
	if m.Keys != nil {
		outKeys = []string(*m.Keys)
	}

	var tags []string
	if m.Tags != nil {
		tags = *m.Tags
	}

	return &pb.Result{
		Keys:  outKeys,
		Value: m.Value,
		Tags:  tags,
	}
}
