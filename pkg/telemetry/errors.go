package telemetry

import "fmt"

// DecodeErrorKind classifies decode failures. A bad packet is reported and
// dropped; it never affects the connection or subsequent framing.
type DecodeErrorKind int

const (
	// MalformedPacket means the payload could not be parsed at all.
	MalformedPacket DecodeErrorKind = iota
	// TruncatedPacket means a binary payload is shorter than the fixed layout.
	TruncatedPacket
	// InvalidField means a parsed field is missing, uncoercible, or out of
	// its allowed range.
	InvalidField
)

func (k DecodeErrorKind) String() string {
	switch k {
	case MalformedPacket:
		return "malformed packet"
	case TruncatedPacket:
		return "truncated packet"
	case InvalidField:
		return "invalid field"
	default:
		return fmt.Sprintf("decode error %d", int(k))
	}
}

// DecodeError is the failure result of a decode attempt.
type DecodeError struct {
	Kind  DecodeErrorKind
	Field string
	cause error
}

func (e *DecodeError) Error() string {
	switch {
	case e.Field != "" && e.cause != nil:
		return fmt.Sprintf("%s: field %q: %v", e.Kind, e.Field, e.cause)
	case e.Field != "":
		return fmt.Sprintf("%s: field %q", e.Kind, e.Field)
	case e.cause != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.cause)
	default:
		return e.Kind.String()
	}
}

func (e *DecodeError) Unwrap() error {
	return e.cause
}

func malformed(cause error) *DecodeError {
	return &DecodeError{Kind: MalformedPacket, cause: cause}
}

func truncated(cause error) *DecodeError {
	return &DecodeError{Kind: TruncatedPacket, cause: cause}
}

func invalidField(field string, cause error) *DecodeError {
	return &DecodeError{Kind: InvalidField, Field: field, cause: cause}
}
