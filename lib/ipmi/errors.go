package ipmi

import (
	"errors"
	"fmt"
)

// DecodeErrorKind classifies why a SEL record could not be decoded
type DecodeErrorKind int

const (
	TruncatedInput DecodeErrorKind = iota
	UnsupportedRecordType
	UnsupportedEventFormat
)

// Argument and lookup errors, shared with lib/mapping and lib/sel
var (
	ErrNotFound        = errors.New("not found")
	ErrInvalidArgument = errors.New("invalid argument")
)

var (
	ErrTruncatedInput         = errors.New("truncated SEL record")
	ErrUnsupportedRecordType  = errors.New("unsupported SEL record type")
	ErrUnsupportedEventFormat = errors.New("unsupported event message format")
)

func (k DecodeErrorKind) sentinel() error {
	switch k {
	case UnsupportedRecordType:
		return ErrUnsupportedRecordType
	case UnsupportedEventFormat:
		return ErrUnsupportedEventFormat
	default:
		return ErrTruncatedInput
	}
}

func (k DecodeErrorKind) String() string { return k.sentinel().Error() }

// DecodeError reports a SEL record that failed validation. No partial
// record is ever produced alongside a DecodeError.
type DecodeError struct {
	Kind DecodeErrorKind
	// Value is the offending length, record type or EvM revision
	Value int
	Err   error
}

func (e *DecodeError) Error() string {
	var s string
	switch e.Kind {
	case UnsupportedRecordType:
		s = fmt.Sprintf("%v 0x%02x: only system event records (0x02) are supported", e.Kind, e.Value)
	case UnsupportedEventFormat:
		s = fmt.Sprintf("%v 0x%02x: only IPMI v1.5 event messages (0x04) are supported", e.Kind, e.Value)
	default:
		s = fmt.Sprintf("%v: got %d bytes, want %d", e.Kind, e.Value, SELRecordLength)
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

// Is lets errors.Is match the kind sentinels
func (e *DecodeError) Is(target error) bool { return target == e.Kind.sentinel() }

func (e *DecodeError) Unwrap() error { return e.Err }
