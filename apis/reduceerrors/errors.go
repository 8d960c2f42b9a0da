// Package reduceerrors defines the two-kind error taxonomy propagated on a
// call's error channel: InternalError for host/protocol violations, and
// UserDefinedError for abnormal Reducer termination.
package reduceerrors

import "fmt"

// Kind distinguishes an InternalError from a UserDefinedError.
type Kind int

const (
	// KindInternal marks a protocol violation by the host, an
	// outbound/inbound transport failure, or any invariant breach inside
	// the core.
	KindInternal Kind = iota
	// KindUserDefined marks abnormal termination of a Reducer's
	// execution (panic or equivalent).
	KindUserDefined
)

// String implements fmt.Stringer.
func (k Kind) String() string {
	switch k {
	case KindInternal:
		return "InternalError"
	case KindUserDefined:
		return "UserDefinedError"
	default:
		return "UnknownError"
	}
}

// Error is a reduce-call error carrying its Kind and a message. Both kinds
// abort the call: there is no local recovery.
type Error struct {
	Kind    Kind
	Message string
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Internal builds a KindInternal error with a formatted message.
func Internal(format string, args ...any) *Error {
	return &Error{Kind: KindInternal, Message: fmt.Sprintf(format, args...)}
}

// UserDefined builds a KindUserDefined error with a formatted message.
func UserDefined(format string, args ...any) *Error {
	return &Error{Kind: KindUserDefined, Message: fmt.Sprintf(format, args...)}
}

// Is reports whether target is an *Error of the same Kind, allowing
// errors.Is(err, reduceerrors.Internal("")) style Kind checks where the
// message is irrelevant.
func (e *Error) Is(target error) bool {
	other, ok := target.(*Error)
	if !ok {
		return false
	}

	return other.Kind == e.Kind
}
