package kernel

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"rorsk/internal/conform"
	"rorsk/internal/spirv"
)

func TestParseElemType(t *testing.T) {
	cases := []struct {
		in   string
		want ElemType
		ok   bool
	}{
		{"float", Float32, true},
		{" F32 ", Float32, true},
		{"int", Int32, true},
		{"i32", Int32, true},
		{"double", 0, false},
		{"", 0, false},
	}
	for _, tc := range cases {
		got, err := ParseElemType(tc.in)
		if (err == nil) != tc.ok {
			t.Fatalf("ParseElemType(%q) err = %v", tc.in, err)
		}
		if tc.ok && got != tc.want {
			t.Fatalf("ParseElemType(%q) = %s, want %s", tc.in, got, tc.want)
		}
	}
}

func TestTemplateGLSL(t *testing.T) {
	src := Template{Elem: Int32, Expression: "  r = a * b;  ", Offset: 1024}.GLSL()
	for _, want := range []string{
		"#version 450",
		"local_size_x = 64",
		"set = 0, binding = 0",
		"int data[];",
		"int b = data[id + 1024u];",
		"    r = a * b;\n",
		"data[id] = r;",
	} {
		if !strings.Contains(src, want) {
			t.Fatalf("GLSL lacks %q:\n%s", want, src)
		}
	}
	if strings.Contains(src, "float") {
		t.Fatalf("int kernel mentions float:\n%s", src)
	}
}

func TestAssemblerModuleShape(t *testing.T) {
	data, err := Assembler{}.Compile(context.Background(), Template{Elem: Float32, Expression: "r = a / b;", Offset: 64})
	if err != nil {
		t.Fatal(err)
	}
	words, err := spirv.Decode(data)
	if err != nil {
		t.Fatal(err)
	}
	ops := map[spirv.Op]int{}
	var entryName string
	var localSize []uint32
	if err := spirv.Walk(words, func(inst spirv.Inst) bool {
		ops[inst.Op]++
		switch inst.Op {
		case spirv.OpEntryPoint:
			entryName, _, _ = spirv.DecodeString(inst.Operands[2:])
		case spirv.OpExecutionMode:
			localSize = inst.Operands[2:]
		}
		return true
	}); err != nil {
		t.Fatal(err)
	}
	if entryName != EntryPoint {
		t.Fatalf("entry point %q", entryName)
	}
	if len(localSize) != 3 || localSize[0] != LocalSize {
		t.Fatalf("local size %v", localSize)
	}
	if ops[spirv.OpFDiv] != 1 || ops[spirv.OpSDiv] != 0 {
		t.Fatalf("division ops: %d FDiv, %d SDiv", ops[spirv.OpFDiv], ops[spirv.OpSDiv])
	}
	maxID, err := spirv.MaxResultID(words)
	if err != nil {
		t.Fatal(err)
	}
	if words[spirv.HeaderBound] != maxID+1 {
		t.Fatalf("bound %d, max id %d", words[spirv.HeaderBound], maxID)
	}
}

func TestAssemblerIntOps(t *testing.T) {
	cases := map[string]spirv.Op{
		"r = a + b;": spirv.OpIAdd,
		"r=a-b":      spirv.OpISub,
		"r = a * b;": spirv.OpIMul,
		"r = a / b;": spirv.OpSDiv,
	}
	for expr, want := range cases {
		data, err := Assembler{}.Compile(context.Background(), Template{Elem: Int32, Expression: expr, Offset: 64})
		if err != nil {
			t.Fatalf("%q: %v", expr, err)
		}
		words, _ := spirv.Decode(data)
		found := false
		_ = spirv.Walk(words, func(inst spirv.Inst) bool {
			found = found || inst.Op == want
			return true
		})
		if !found {
			t.Fatalf("%q: no %s in module", expr, want)
		}
	}
}

func TestAssemblerRejectsOtherExpressions(t *testing.T) {
	for _, expr := range []string{"r = b / a;", "r = a % b;", "r = sqrt(a);", ""} {
		_, err := Assembler{}.Compile(context.Background(), Template{Elem: Float32, Expression: expr})
		if conform.KindOf(err) != conform.KindUnsupported {
			t.Fatalf("%q: err = %v, want unsupported", expr, err)
		}
	}
}

func TestNewCompiler(t *testing.T) {
	for kind, want := range map[string]string{"": "builtin", "builtin": "builtin", "glslang": "glslang"} {
		c, err := New(kind, "")
		if err != nil {
			t.Fatalf("New(%q): %v", kind, err)
		}
		if c.Name() != want {
			t.Fatalf("New(%q).Name() = %q", kind, c.Name())
		}
	}
	if _, err := New("dxc", ""); err == nil {
		t.Fatalf("unknown compiler accepted")
	}
}

func TestGlslangMissingExecutable(t *testing.T) {
	g := Glslang{Path: filepath.Join(t.TempDir(), "no-such-glslang")}
	_, err := g.Compile(context.Background(), Template{Elem: Float32, Expression: "r = a / b;"})
	if conform.KindOf(err) != conform.KindResource {
		t.Fatalf("err = %v, want resource error", err)
	}
}
