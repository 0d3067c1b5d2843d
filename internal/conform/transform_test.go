package conform

import (
	"bytes"
	"context"
	"errors"
	"slices"
	"testing"

	"rorsk/internal/spirv"
	"rorsk/internal/testkit"
)

type divModule struct {
	b      *spirv.Builder
	void   uint32
	float  uint32
	fnType uint32
	one    uint32
	three  uint32
}

func newDivModule() *divModule {
	b := spirv.NewBuilder()
	b.Capability(spirv.CapabilityShader)
	b.MemoryModel(spirv.AddressingLogical, spirv.MemoryModelGLSL450)
	m := &divModule{b: b}
	m.void = b.TypeVoid()
	m.float = b.TypeFloat(32)
	m.fnType = b.TypeFunction(m.void)
	m.one = b.ConstantFloat32(m.float, 1)
	m.three = b.ConstantFloat32(m.float, 3)
	return m
}

// divFunction appends void f() { x = one / three; ... } with n divisions,
// the first one in the entry block and the rest in a second block.
func (m *divModule) divFunction(n int) (fn uint32, results []uint32) {
	b := m.b
	fn = b.Result(spirv.OpFunction, m.void, spirv.FunctionControlNone, m.fnType)
	b.Label()
	for i := range n {
		if i == 1 {
			next := b.ID()
			b.Op(spirv.OpBranch, next)
			b.LabelID(next)
		}
		results = append(results, b.Result(spirv.OpFDiv, m.float, m.one, m.three))
	}
	b.Op(spirv.OpReturn)
	b.Op(spirv.OpFunctionEnd)
	return fn, results
}

func mustTransform(t *testing.T, module []byte) *Result {
	t.Helper()
	res, err := Transform(context.Background(), module)
	if err != nil {
		t.Fatalf("transform: %v", err)
	}
	return res
}

func decode(t *testing.T, data []byte) []uint32 {
	t.Helper()
	words, err := spirv.Decode(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	return words
}

func countOps(t *testing.T, words []uint32, op spirv.Op) int {
	t.Helper()
	n := 0
	if err := spirv.Walk(words, func(inst spirv.Inst) bool {
		if inst.Op == op {
			n++
		}
		return true
	}); err != nil {
		t.Fatal(err)
	}
	return n
}

// checkStructure asserts the invariants every output must keep.
func checkStructure(t *testing.T, words []uint32) {
	t.Helper()
	if err := testkit.CheckModule(words); err != nil {
		t.Fatal(err)
	}
	if err := testkit.CheckTightBound(words); err != nil {
		t.Fatal(err)
	}
}

func TestTransform_NoDivisionIsIdentity(t *testing.T) {
	m := newDivModule()
	b := m.b
	b.Result(spirv.OpFunction, m.void, spirv.FunctionControlNone, m.fnType)
	b.Label()
	b.Result(spirv.OpFMul, m.float, m.one, m.three)
	b.Op(spirv.OpReturn)
	b.Op(spirv.OpFunctionEnd)
	in := b.Bytes()

	res := mustTransform(t, in)
	if !bytes.Equal(res.Output, in) {
		t.Fatalf("module without OpFDiv changed")
	}
	if len(res.Sites) != 0 || len(res.Helpers) != 0 || res.Declared != 0 {
		t.Fatalf("unexpected work: %d sites, helpers %v, %d declared", len(res.Sites), res.Helpers, res.Declared)
	}
}

func TestTransform_SingleDivision(t *testing.T) {
	m := newDivModule()
	fn, results := m.divFunction(1)
	in := m.b.Bytes()
	res := mustTransform(t, in)

	if len(res.Sites) != 1 {
		t.Fatalf("got %d sites", len(res.Sites))
	}
	site := res.Sites[0]
	if site.Function != fn || site.Result != results[0] {
		t.Fatalf("site = %+v, want function %%%d result %%%d", site, fn, results[0])
	}
	words := decode(t, res.Output)
	checkStructure(t, words)
	if n := countOps(t, words, spirv.OpFDiv); n != 0 {
		t.Fatalf("%d OpFDiv left", n)
	}
	if res.Bound != words[spirv.HeaderBound] {
		t.Fatalf("Result.Bound %d, header %d", res.Bound, words[spirv.HeaderBound])
	}

	// The call keeps the division's result id and type.
	var call spirv.Inst
	_ = spirv.Walk(words, func(inst spirv.Inst) bool {
		if inst.Op == spirv.OpFunctionCall && inst.Operand(1) == results[0] {
			call = inst
			return false
		}
		return true
	})
	if call.Op != spirv.OpFunctionCall {
		t.Fatalf("no call defines %%%d", results[0])
	}
	if call.Operand(0) != m.float || call.Operand(2) != res.Funcs[HelperConformantDivide] {
		t.Fatalf("call = %v, want float result through conformant_divide", call.Operands)
	}
	if len(call.Operands) != 5 {
		t.Fatalf("call has %d operands", len(call.Operands))
	}
}

func TestTransform_HelpersBuiltOnce(t *testing.T) {
	m := newDivModule()
	m.divFunction(3)
	m.divFunction(2)
	res := mustTransform(t, m.b.Bytes())

	if len(res.Sites) != 5 {
		t.Fatalf("got %d sites, want 5", len(res.Sites))
	}
	want := []string{
		HelperPack, HelperGetFraction, HelperGetExponent, HelperDecodeFromFloat,
		HelperMSB64, HelperNormalize64, HelperDivide, HelperEncodeToFloat, HelperConformantDivide,
	}
	got := slices.Clone(res.Helpers)
	slices.Sort(got)
	slices.Sort(want)
	if !slices.Equal(got, want) {
		t.Fatalf("helpers = %v", res.Helpers)
	}
	if res.Helpers[len(res.Helpers)-1] != HelperConformantDivide {
		t.Fatalf("conformant_divide must be built after its dependencies: %v", res.Helpers)
	}
	words := decode(t, res.Output)
	checkStructure(t, words)
	if n := countOps(t, words, spirv.OpFunction); n != 2+len(want) {
		t.Fatalf("%d functions, want %d", n, 2+len(want))
	}
	if n := countOps(t, words, spirv.OpExtInstImport); n != 1 {
		t.Fatalf("%d GLSL imports", n)
	}
	// два локала на каждое деление
	ptr, ok := findPointer(words, spirv.StorageFunction, m.float)
	if !ok {
		t.Fatal("no Function pointer to float")
	}
	vars := 0
	_ = spirv.Walk(words, func(inst spirv.Inst) bool {
		if inst.Op == spirv.OpVariable && inst.Operand(0) == ptr {
			vars++
		}
		return true
	})
	if vars < 2*len(res.Sites) {
		t.Fatalf("%d float locals for %d sites", vars, len(res.Sites))
	}
}

func findPointer(words []uint32, class spirv.StorageClass, pointee uint32) (uint32, bool) {
	var id uint32
	_ = spirv.Walk(words, func(inst spirv.Inst) bool {
		if inst.Op == spirv.OpTypePointer && inst.Operand(1) == uint32(class) && inst.Operand(2) == pointee {
			id = inst.Operand(0)
			return false
		}
		return true
	})
	return id, id != 0
}

func TestTransform_Idempotent(t *testing.T) {
	m := newDivModule()
	m.divFunction(2)
	first := mustTransform(t, m.b.Bytes())
	second := mustTransform(t, first.Output)
	if len(second.Sites) != 0 {
		t.Fatalf("second run found %d sites", len(second.Sites))
	}
	if !bytes.Equal(first.Output, second.Output) {
		t.Fatalf("patched module changed on a second run")
	}
}

func TestTransform_ReusesExistingDeclarations(t *testing.T) {
	m := newDivModule()
	i32 := m.b.TypeInt(32, true)
	m.divFunction(1)
	res := mustTransform(t, m.b.Bytes())
	words := decode(t, res.Output)
	ints := 0
	_ = spirv.Walk(words, func(inst spirv.Inst) bool {
		if inst.Op == spirv.OpTypeInt && inst.Operand(1) == 32 {
			ints++
			if inst.Operand(0) != i32 {
				t.Fatalf("int:32 redeclared as %%%d", inst.Operand(0))
			}
		}
		return true
	})
	if ints != 1 {
		t.Fatalf("%d int:32 declarations", ints)
	}
	if countOps(t, words, spirv.OpTypeFloat) != 1 {
		t.Fatalf("float:32 redeclared")
	}
}

func TestTransform_Unsupported(t *testing.T) {
	cases := []struct {
		name  string
		build func(m *divModule)
	}{
		{"float64", func(m *divModule) {
			b := m.b
			b.Capability(spirv.CapabilityFloat64)
			f64 := b.TypeFloat(64)
			c := b.Constant(f64, 0, 0x3FF00000)
			b.Result(spirv.OpFunction, m.void, spirv.FunctionControlNone, m.fnType)
			b.Label()
			b.Result(spirv.OpFDiv, f64, c, c)
			b.Op(spirv.OpReturn)
			b.Op(spirv.OpFunctionEnd)
		}},
		{"vector", func(m *divModule) {
			b := m.b
			vec := b.TypeVector(m.float, 2)
			b.Result(spirv.OpFunction, m.void, spirv.FunctionControlNone, m.fnType)
			b.Label()
			u := b.Result(spirv.OpUndef, vec)
			b.Result(spirv.OpFDiv, vec, u, u)
			b.Op(spirv.OpReturn)
			b.Op(spirv.OpFunctionEnd)
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m := newDivModule()
			tc.build(m)
			res, err := Transform(context.Background(), m.b.Bytes())
			if KindOf(err) != KindUnsupported {
				t.Fatalf("err = %v, want unsupported", err)
			}
			if res != nil {
				t.Fatalf("partial result returned")
			}
			var ce *Error
			if !errors.As(err, &ce) || ce.Op != spirv.OpFDiv {
				t.Fatalf("error does not name OpFDiv: %v", err)
			}
		})
	}
}

func TestTransform_Malformed(t *testing.T) {
	valid := func() []uint32 {
		m := newDivModule()
		m.divFunction(1)
		return m.b.Words()
	}
	cases := []struct {
		name  string
		words func() []uint32
	}{
		{"truncated instruction", func() []uint32 {
			w := valid()
			op, _ := spirv.MakeOpWord(spirv.OpNop, 4)
			return append(w, op)
		}},
		{"declaration after function", func() []uint32 {
			w := valid()
			w = append(w, spirv.Instr(spirv.OpTypeInt, w[spirv.HeaderBound], 16, 1)...)
			w[spirv.HeaderBound]++
			return w
		}},
		{"fdiv outside function", func() []uint32 {
			w := valid()
			w = append(w, spirv.Instr(spirv.OpFDiv, 2, w[spirv.HeaderBound], 4, 4)...)
			w[spirv.HeaderBound]++
			return w
		}},
		{"function before memory model", func() []uint32 {
			b := spirv.NewBuilder()
			b.Capability(spirv.CapabilityShader)
			void := b.TypeVoid()
			fnT := b.TypeFunction(void)
			b.Result(spirv.OpFunction, void, spirv.FunctionControlNone, fnT)
			b.Label()
			b.Op(spirv.OpReturn)
			b.Op(spirv.OpFunctionEnd)
			return b.Words()
		}},
		{"duplicate memory model", func() []uint32 {
			// Builder keeps one memory model, so the copy goes into the raw words
			w := valid()
			var at int
			spirv.Walk(w, func(inst spirv.Inst) bool {
				if inst.Op == spirv.OpMemoryModel {
					at = inst.Offset + inst.Words
					return false
				}
				return true
			})
			return slices.Insert(w, at, spirv.Instr(spirv.OpMemoryModel, spirv.AddressingLogical, spirv.MemoryModelGLSL450)...)
		}},
		{"fdiv word count", func() []uint32 {
			m := newDivModule()
			b := m.b
			b.Result(spirv.OpFunction, m.void, spirv.FunctionControlNone, m.fnType)
			b.Label()
			b.Result(spirv.OpFDiv, m.float, m.one, m.three, m.three)
			b.Op(spirv.OpReturn)
			b.Op(spirv.OpFunctionEnd)
			return b.Words()
		}},
		{"nested function", func() []uint32 {
			m := newDivModule()
			b := m.b
			b.Result(spirv.OpFunction, m.void, spirv.FunctionControlNone, m.fnType)
			b.Result(spirv.OpFunction, m.void, spirv.FunctionControlNone, m.fnType)
			b.Op(spirv.OpFunctionEnd)
			return b.Words()
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res, err := Transform(context.Background(), spirv.Encode(tc.words()))
			if KindOf(err) != KindMalformed {
				t.Fatalf("err = %v, want malformed", err)
			}
			if res != nil {
				t.Fatalf("partial result returned")
			}
		})
	}
}

// Helpers are appended after the last input word; a truncated final
// instruction must not decode them as its own operands.
func TestTransform_TruncatedTail(t *testing.T) {
	m := newDivModule()
	m.divFunction(1)
	w := m.b.Words()
	tail := len(w)
	op, _ := spirv.MakeOpWord(spirv.OpNop, 4)
	w = append(w, op)

	res, err := Transform(context.Background(), spirv.Encode(w))
	if res != nil {
		t.Fatalf("truncated module patched: %d sites", len(res.Sites))
	}
	var ce *Error
	if !errors.As(err, &ce) || ce.Kind != KindMalformed || ce.Offset != tail {
		t.Fatalf("err = %v, want malformed at word %d", err, tail)
	}

	// без деления тот же хвост отвергает декодер
	if _, err := Transform(context.Background(), spirv.Encode(append(newDivModule().b.Words(), op))); KindOf(err) != KindMalformed {
		t.Fatalf("no division: err = %v, want malformed", err)
	}
}

func TestTransform_BadHeader(t *testing.T) {
	for _, data := range [][]byte{nil, {1, 2, 3}, make([]byte, 20)} {
		if _, err := Transform(context.Background(), data); KindOf(err) != KindMalformed {
			t.Fatalf("%d bytes: err = %v, want malformed", len(data), err)
		}
	}
}

func TestTransform_InputUntouched(t *testing.T) {
	m := newDivModule()
	m.divFunction(2)
	in := m.b.Bytes()
	keep := bytes.Clone(in)
	mustTransform(t, in)
	if !bytes.Equal(in, keep) {
		t.Fatalf("input buffer was modified")
	}
}
