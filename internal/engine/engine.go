// Package engine dispatches compiled kernels. The reference engine runs them
// on the CPU interpreter; the runner engine hands them to an external program
// that owns a real device.
package engine

import (
	"context"
	"fmt"
)

// Output is the result of one dispatch: the first half of the data buffer
// after execution, plus the identity of the device that produced it.
type Output struct {
	Data       []byte
	DeviceName string
	VendorID   uint32
	DeviceID   uint32
}

// Engine runs a single-buffer compute kernel over groups workgroups.
// input is not modified.
type Engine interface {
	Dispatch(ctx context.Context, module, input []byte, groups int) (Output, error)
	Name() string
}

// Kinds accepted by New.
const (
	KindReference = "reference"
	KindRunner    = "runner"
)

// New returns the engine named kind. runner is the executable for the runner
// engine.
func New(kind, runner string) (Engine, error) {
	switch kind {
	case "", KindReference:
		return &Reference{}, nil
	case KindRunner:
		if runner == "" {
			return nil, fmt.Errorf("engine %q needs a runner executable ([engine] runner or --runner)", kind)
		}
		return &Runner{Path: runner}, nil
	}
	return nil, fmt.Errorf("unknown engine %q (want reference or runner)", kind)
}

func firstHalf(buf []byte) []byte {
	return buf[:len(buf)/2]
}
