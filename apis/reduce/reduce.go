// Package reduce defines the embedder contract for a keyed windowed reduce
// UDF: the Reducer and ReducerFactory interfaces, and the types exchanged
// between the core dispatch engine and the embedder's reducer.
package reduce

import (
	"context"
	"time"
)

// KeyJoinDelimiter is the reserved delimiter used to build a Keys tuple's
// canonical identity string.
const KeyJoinDelimiter = ":"

// DropTag is a reserved tag value an OutMessage may carry to request
// downstream suppression. The core forwards it verbatim; it does not
// interpret it.
const DropTag = "U+005C__DROP__"

// Keys is an ordered key-tuple identifying a reduction group within a
// Window.
type Keys []string

// Canonical returns the single string identity used by a TaskSet's
// registry: the members joined with KeyJoinDelimiter.
func (k Keys) Canonical() string {
	switch len(k) {
	case 0:
		return ""
	case 1:
		return k[0]
	}

	n := len(KeyJoinDelimiter) * (len(k) - 1)
	for _, s := range k {
		n += len(s)
	}

	buf := make([]byte, 0, n)
	for i, s := range k {
		if i > 0 {
			buf = append(buf, KeyJoinDelimiter...)
		}
		buf = append(buf, s...)
	}

	return string(buf)
}

// Window is the half-open time interval [Start, End) assigned to records
// by the host; it identifies the reduction horizon for a call.
type Window struct {
	Start time.Time
	End   time.Time
	// Slot is propagated verbatim from the inbound operation. The core
	// always emits "slot-0" on outbound items, matching the wire contract.
	Slot string
}

// Metadata is passed by shared reference to a Reducer for the duration of
// its Reduce call. Implementations must not retain it past return.
type Metadata struct {
	Window Window
}

// InRecord is one inbound record, already validated and extracted from the
// wire payload, destined for exactly one Task.
type InRecord struct {
	Keys      Keys
	Value     []byte
	Watermark time.Time
	EventTime time.Time
}

// OutMessage is produced by a Reducer and consumed once by the core, which
// attaches the call's Window before forwarding it to the transport.
type OutMessage struct {
	// Keys overrides the outbound item's key-tuple. If nil, the Task's own
	// keys are used.
	Keys *Keys
	Value []byte
	// Tags, if non-nil, are propagated verbatim. DropTag is one reserved
	// member an embedder may include.
	Tags *[]string
}

// MessageToDrop builds an OutMessage carrying the DROP sentinel tag, a
// convenience for embedders that want to suppress a result downstream
// without special-casing it in the core.
func MessageToDrop() OutMessage {
	tags := []string{DropTag}

	return OutMessage{Value: []byte{}, Tags: &tags}
}

// Reducer is a single cooperative operation over the stream of records
// sharing one key-tuple within one Window. Reduce must consume input to
// completion — the sequence terminates when the core closes the channel at
// end-of-window — and then return its emitted messages.
//
// A Reducer may fail by panicking; the core converts such a failure into a
// UserDefinedError carrying the panic's stringified description. It does
// not re-raise, and does not use the Reducer's (partial) return value in
// that case.
type Reducer interface {
	Reduce(ctx context.Context, keys Keys, input <-chan InRecord, md *Metadata) []OutMessage
}

// ReducerFunc adapts a plain function to a Reducer.
type ReducerFunc func(ctx context.Context, keys Keys, input <-chan InRecord, md *Metadata) []OutMessage

// Reduce implements Reducer.
func (f ReducerFunc) Reduce(
	ctx context.Context, keys Keys, input <-chan InRecord, md *Metadata,
) []OutMessage {
	return f(ctx, keys, input, md)
}

// ReducerFactory creates a Reducer instance on demand. Create is invoked
// once per distinct key-tuple per call; it must be non-blocking in spirit
// and must not fail. Configuration errors are the embedder's
// responsibility at factory construction, not at Create time.
//
// Implementations must not share a single Reducer instance across keys:
// Reducer instances may carry per-key scratch state.
type ReducerFactory interface {
	Create() Reducer
}

// ReducerFactoryFunc adapts a plain function to a ReducerFactory.
type ReducerFactoryFunc func() Reducer

// Create implements ReducerFactory.
func (f ReducerFactoryFunc) Create() Reducer {
	return f()
}
