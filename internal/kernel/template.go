// Package kernel renders the element-wise compute kernels a conformance run
// dispatches and compiles them to SPIR-V.
package kernel

import (
	"context"
	"fmt"
	"strings"
)

// LocalSize is the workgroup width of every kernel.
const LocalSize = 64

// EntryPoint is the name of the kernel entry point.
const EntryPoint = "main"

// ElemType is the element type of the data buffer.
type ElemType uint8

const (
	Float32 ElemType = iota
	Int32
)

// ParseElemType accepts the manifest spellings "float" and "int".
func ParseElemType(s string) (ElemType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "float", "f32":
		return Float32, nil
	case "int", "i32":
		return Int32, nil
	}
	return 0, fmt.Errorf("unknown element type %q (want float or int)", s)
}

// GLSL is the type name used in shader source.
func (t ElemType) GLSL() string {
	if t == Int32 {
		return "int"
	}
	return "float"
}

// Prefix is the short tag used in problem and file names.
func (t ElemType) Prefix() string {
	if t == Int32 {
		return "i32"
	}
	return "f32"
}

func (t ElemType) String() string { return t.Prefix() }

// Template describes one kernel: each invocation reads a = data[id] and
// b = data[id + Offset], evaluates Expression into r and writes r to data[id].
type Template struct {
	Elem       ElemType
	Expression string
	Offset     uint32 // elements between the two operand halves
}

// GLSL renders the kernel as GLSL 450 compute shader source.
func (t Template) GLSL() string {
	ty := t.Elem.GLSL()
	var sb strings.Builder
	sb.WriteString("#version 450\n\n")
	fmt.Fprintf(&sb, "layout(local_size_x = %d, local_size_y = 1, local_size_z = 1) in;\n\n", LocalSize)
	fmt.Fprintf(&sb, "layout(std430, set = 0, binding = 0) buffer Data {\n    %s data[];\n};\n\n", ty)
	sb.WriteString("void main() {\n")
	sb.WriteString("    uint id = gl_GlobalInvocationID.x;\n")
	fmt.Fprintf(&sb, "    %s a = data[id];\n", ty)
	fmt.Fprintf(&sb, "    %s b = data[id + %du];\n", ty, t.Offset)
	fmt.Fprintf(&sb, "    %s r;\n", ty)
	fmt.Fprintf(&sb, "    %s\n", strings.TrimSpace(t.Expression))
	sb.WriteString("    data[id] = r;\n")
	sb.WriteString("}\n")
	return sb.String()
}

// Compiler turns a template into a SPIR-V module.
type Compiler interface {
	Compile(ctx context.Context, t Template) ([]byte, error)
	Name() string
}
