package main

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"strconv"

	"github.com/spf13/cobra"

	"rorsk/internal/conform"
	"rorsk/internal/engine"
	"rorsk/internal/kernel"
	"rorsk/internal/softfloat"
)

var divideCmd = &cobra.Command{
	Use:   "divide A B",
	Short: "Divide two floats natively, by the reference model and by a patched kernel",
	Args:  cobra.ExactArgs(2),
	RunE:  divideExecution,
}

func init() {
	divideCmd.Flags().String("compiler", "builtin", "kernel compiler (builtin|glslang)")
	divideCmd.Flags().String("glslang", "glslangValidator", "glslangValidator executable")
}

func parseFloat32(s string) (float32, error) {
	v, err := strconv.ParseFloat(s, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid float %q: %w", s, err)
	}
	return float32(v), nil
}

func divideExecution(cmd *cobra.Command, args []string) error {
	a, err := parseFloat32(args[0])
	if err != nil {
		return err
	}
	b, err := parseFloat32(args[1])
	if err != nil {
		return err
	}
	s, err := loadSettings(cmd)
	if err != nil {
		return err
	}
	compiler, err := s.newCompiler()
	if err != nil {
		return err
	}

	native := a / b
	model := softfloat.ConformantDiv(a, b)
	patched, err := patchedDivide(cmd.Context(), compiler, a, b)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	mustFprintf(out, "%-9s %s\n", "native", floatBits(native))
	mustFprintf(out, "%-9s %s\n", "model", floatBits(model))
	mustFprintf(out, "%-9s %s\n", "patched", floatBits(patched))
	if math.Float32bits(patched) != math.Float32bits(model) {
		return conform.Resource(errPatchedMismatch, "%g / %g", a, b)
	}
	return nil
}

// patchedDivide runs one workgroup of the patched f32 division kernel on
// the reference engine with every lane computing a / b.
func patchedDivide(ctx context.Context, compiler kernel.Compiler, a, b float32) (float32, error) {
	const half = kernel.LocalSize
	module, err := compiler.Compile(ctx, kernel.Template{Elem: kernel.Float32, Expression: "r = a / b;", Offset: half})
	if err != nil {
		return 0, err
	}
	res, err := conform.Transform(ctx, module)
	if err != nil {
		return 0, err
	}
	input := make([]byte, 2*half*4)
	for i := range half {
		binary.LittleEndian.PutUint32(input[4*i:], math.Float32bits(a))
		binary.LittleEndian.PutUint32(input[4*(half+i):], math.Float32bits(b))
	}
	out, err := (&engine.Reference{}).Dispatch(ctx, res.Output, input, 1)
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(binary.LittleEndian.Uint32(out.Data)), nil
}
