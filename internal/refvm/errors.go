package refvm

import (
	"fmt"
	"strings"

	"rorsk/internal/spirv"
)

// Code identifies the kind of interpreter failure.
type Code int

// Stable codes - do not change values.
const (
	CodeUnsupported   Code = 1001 // RVM1001: opcode or operand shape not interpreted
	CodeTypeMismatch  Code = 1002 // RVM1002: operand of the wrong type
	CodeUndefinedID   Code = 1003 // RVM1003: id with no definition
	CodeOutOfBounds   Code = 1004 // RVM1004: memory access outside its object
	CodeDivideByZero  Code = 1005 // RVM1005: integer division by zero
	CodeStepLimit     Code = 1006 // RVM1006: step budget exhausted
	CodeUnreachable   Code = 1007 // RVM1007: OpUnreachable or fall-through
	CodeMissingTarget Code = 1008 // RVM1008: entry point, function or binding not found
	CodeMalformed     Code = 1009 // RVM1009: structural problem found while loading
)

// String returns the code as "RVM1001" format.
func (c Code) String() string {
	return fmt.Sprintf("RVM%d", c)
}

// BacktraceFrame is one function activation at the time of the failure.
type BacktraceFrame struct {
	Function uint32
	Offset   int // word offset of the executing instruction
}

// VMError is a failure of the reference interpreter.
type VMError struct {
	Code      Code
	Message   string
	Op        spirv.Op
	Backtrace []BacktraceFrame // innermost first
}

// Error implements the error interface.
func (e *VMError) Error() string {
	if e.Op != 0 {
		return fmt.Sprintf("refvm %s: %s: %s", e.Code, e.Op, e.Message)
	}
	return fmt.Sprintf("refvm %s: %s", e.Code, e.Message)
}

// Format renders the error with its backtrace.
func (e *VMError) Format() string {
	var sb strings.Builder
	sb.WriteString(e.Error())
	sb.WriteString("\n")
	if len(e.Backtrace) > 0 {
		sb.WriteString("backtrace:\n")
		for i, f := range e.Backtrace {
			fmt.Fprintf(&sb, "  %d: function %%%d at word %d\n", i, f.Function, f.Offset)
		}
	}
	return sb.String()
}

func vmErrorf(code Code, op spirv.Op, format string, args ...any) *VMError {
	return &VMError{Code: code, Op: op, Message: fmt.Sprintf(format, args...)}
}

func (e *VMError) push(fn uint32, offset int) *VMError {
	e.Backtrace = append(e.Backtrace, BacktraceFrame{Function: fn, Offset: offset})
	return e
}
