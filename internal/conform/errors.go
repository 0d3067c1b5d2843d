package conform

import (
	"errors"
	"fmt"

	"rorsk/internal/spirv"
)

// Kind classifies a failure. Every kind is fatal to the run.
type Kind uint8

const (
	KindUnknown Kind = iota
	// KindMalformed: the input does not have the structure the transform relies on.
	KindMalformed
	// KindUnsupported: well-formed input the transform does not handle.
	KindUnsupported
	// KindResource: a collaborator failed (compiler, engine, filesystem).
	KindResource
)

func (k Kind) String() string {
	switch k {
	case KindMalformed:
		return "malformed module"
	case KindUnsupported:
		return "unsupported operation"
	case KindResource:
		return "resource error"
	default:
		return "error"
	}
}

// Error is the error value produced across the conformance toolkit.
type Error struct {
	Kind   Kind
	Offset int      // word offset in the module, -1 when not tied to a location
	Op     spirv.Op // offending opcode, when there is one
	Msg    string
	Err    error
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Offset >= 0 {
		msg += fmt.Sprintf(" at word %d", e.Offset)
	}
	if e.Op != 0 {
		msg += " (" + e.Op.String() + ")"
	}
	if e.Msg != "" {
		msg += ": " + e.Msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Malformedf reports a structural violation at offset.
func Malformedf(offset int, format string, args ...any) error {
	return &Error{Kind: KindMalformed, Offset: offset, Msg: fmt.Sprintf(format, args...)}
}

// Unsupportedf reports an instruction the transform refuses to rewrite.
func Unsupportedf(offset int, op spirv.Op, format string, args ...any) error {
	return &Error{Kind: KindUnsupported, Offset: offset, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// Resource wraps a collaborator failure. A nil err yields nil.
func Resource(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: KindResource, Offset: -1, Msg: fmt.Sprintf(format, args...), Err: err}
}

// KindOf classifies err through any wrapping. Structural decode errors from
// the spirv package count as malformed.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	if errors.Is(err, spirv.ErrMalformed) || errors.Is(err, spirv.ErrFinalized) {
		return KindMalformed
	}
	return KindUnknown
}

// wrapMalformed lifts a spirv structural error into the taxonomy.
func wrapMalformed(err error) error {
	if err == nil {
		return nil
	}
	var ce *Error
	if errors.As(err, &ce) {
		return err
	}
	offset := -1
	var de *spirv.DecodeError
	if errors.As(err, &de) {
		offset = de.Offset
	}
	return &Error{Kind: KindMalformed, Offset: offset, Err: err}
}
