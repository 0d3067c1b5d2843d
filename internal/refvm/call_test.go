package refvm_test

import (
	"context"
	"errors"
	"math"
	"testing"

	"rorsk/internal/refvm"
	"rorsk/internal/spirv"
)

type funcModule struct {
	b      *spirv.Builder
	intT   uint32
	floatT uint32
	boolT  uint32
	glsl   uint32
}

func newFuncModule() *funcModule {
	b := spirv.NewBuilder()
	b.Capability(spirv.CapabilityShader)
	glsl := b.ExtInstImport(spirv.GLSLStd450)
	b.MemoryModel(spirv.AddressingLogical, spirv.MemoryModelGLSL450)
	return &funcModule{b: b, intT: b.TypeInt(32, true), floatT: b.TypeFloat(32), boolT: b.TypeBool(), glsl: glsl}
}

func (f *funcModule) load(t *testing.T) *refvm.Module {
	t.Helper()
	m, err := refvm.Load(f.b.Bytes())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	return m
}

// sumBelow builds
//
//	int sum(int n) { int acc = 0; for (int i = 0; i < n; i++) acc += i; return acc; }
//
// as a structured loop with phis.
func sumBelow(f *funcModule) uint32 {
	b, intT := f.b, f.intT
	fnT := b.TypeFunction(intT, intT)
	c0 := b.Constant(intT, 0)
	c1 := b.Constant(intT, 1)

	fn := b.Result(spirv.OpFunction, intT, spirv.FunctionControlNone, fnT)
	n := b.Result(spirv.OpFunctionParameter, intT)
	header, body, cont, merge := b.ID(), b.ID(), b.ID(), b.ID()
	i, acc, iNext, accNext := b.ID(), b.ID(), b.ID(), b.ID()

	entry := b.Label()
	b.Op(spirv.OpBranch, header)

	b.LabelID(header)
	b.Op(spirv.OpPhi, intT, i, c0, entry, iNext, cont)
	b.Op(spirv.OpPhi, intT, acc, c0, entry, accNext, cont)
	b.Op(spirv.OpLoopMerge, merge, cont, spirv.LoopControlNone)
	cond := b.Result(spirv.OpSLessThan, f.boolT, i, n)
	b.Op(spirv.OpBranchConditional, cond, body, merge)

	b.LabelID(body)
	b.Op(spirv.OpBranch, cont)

	b.LabelID(cont)
	b.Op(spirv.OpIAdd, intT, accNext, acc, i)
	b.Op(spirv.OpIAdd, intT, iNext, i, c1)
	b.Op(spirv.OpBranch, header)

	b.LabelID(merge)
	b.Op(spirv.OpReturnValue, acc)
	b.Op(spirv.OpFunctionEnd)
	return fn
}

func TestCallLoopWithPhis(t *testing.T) {
	f := newFuncModule()
	fn := sumBelow(f)
	m := f.load(t)
	for _, n := range []int32{0, 1, 10, 100} {
		got, err := m.Call(context.Background(), fn, []refvm.Value{refvm.Int(n)})
		if err != nil {
			t.Fatalf("sum(%d): %v", n, err)
		}
		if want := n * (n - 1) / 2; got.Int32() != want {
			t.Fatalf("sum(%d) = %d, want %d", n, got.Int32(), want)
		}
	}
}

func TestCallStepLimit(t *testing.T) {
	f := newFuncModule()
	fn := sumBelow(f)
	m := f.load(t)
	_, err := m.Call(context.Background(), fn, []refvm.Value{refvm.Int(1 << 30)}, refvm.WithStepLimit(1000))
	var vmErr *refvm.VMError
	if !errors.As(err, &vmErr) {
		t.Fatalf("expected VMError, got %v", err)
	}
	if vmErr.Code != refvm.CodeStepLimit {
		t.Fatalf("code = %s, want RVM1006", vmErr.Code)
	}
	if vmErr.Backtrace[0].Function != fn {
		t.Fatalf("innermost frame is %%%d, want %%%d", vmErr.Backtrace[0].Function, fn)
	}
}

func TestCallPointerParameters(t *testing.T) {
	f := newFuncModule()
	b := f.b
	ptr := b.TypePointer(spirv.StorageFunction, f.intT)
	fnT := b.TypeFunction(f.intT, ptr, ptr)
	fn := b.Result(spirv.OpFunction, f.intT, spirv.FunctionControlNone, fnT)
	pa := b.Result(spirv.OpFunctionParameter, ptr)
	pb := b.Result(spirv.OpFunctionParameter, ptr)
	b.Label()
	local := b.Result(spirv.OpVariable, ptr, uint32(spirv.StorageFunction))
	a := b.Result(spirv.OpLoad, f.intT, pa)
	bv := b.Result(spirv.OpLoad, f.intT, pb)
	b.Op(spirv.OpStore, local, b.Result(spirv.OpISub, f.intT, a, bv))
	b.Op(spirv.OpStore, pa, bv) // запись через параметр-указатель
	b.Op(spirv.OpReturnValue, b.Result(spirv.OpLoad, f.intT, local))
	b.Op(spirv.OpFunctionEnd)

	m := f.load(t)
	ra, rb := refvm.Ref(refvm.Int(50)), refvm.Int(8)
	got, err := m.Call(context.Background(), fn, []refvm.Value{ra, refvm.Ref(rb)})
	if err != nil {
		t.Fatal(err)
	}
	if got.Int32() != 42 {
		t.Fatalf("got %d, want 42", got.Int32())
	}
	if ra.Ptr.Cell.Int32() != 8 {
		t.Fatalf("store through pointer parameter not visible: %d", ra.Ptr.Cell.Int32())
	}
}

func TestCallExtInst(t *testing.T) {
	cases := []struct {
		name string
		inst uint32
		ty   string
		args []refvm.Value
		want uint32
	}{
		{"SAbs", spirv.GLSLSAbs, "int", []refvm.Value{refvm.Int(-7)}, 7},
		{"SAbsMin", spirv.GLSLSAbs, "int", []refvm.Value{refvm.Int(math.MinInt32)}, 0x80000000},
		{"FAbs", spirv.GLSLFAbs, "float", []refvm.Value{refvm.Float(-2.5)}, math.Float32bits(2.5)},
		{"SMin", spirv.GLSLSMin, "int", []refvm.Value{refvm.Int(-3), refvm.Int(2)}, uint32(0xFFFFFFFD)},
		{"FMin", spirv.GLSLFMin, "float", []refvm.Value{refvm.Float(1.5), refvm.Float(-0.5)}, math.Float32bits(-0.5)},
		{"Pow", spirv.GLSLPow, "float", []refvm.Value{refvm.Float(2), refvm.Float(-3)}, math.Float32bits(0.125)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFuncModule()
			b := f.b
			ty := f.intT
			if tc.ty == "float" {
				ty = f.floatT
			}
			params := make([]uint32, len(tc.args))
			for i := range params {
				params[i] = ty
			}
			fnT := b.TypeFunction(ty, params...)
			fn := b.Result(spirv.OpFunction, ty, spirv.FunctionControlNone, fnT)
			ids := make([]uint32, len(tc.args))
			for i := range ids {
				ids[i] = b.Result(spirv.OpFunctionParameter, ty)
			}
			b.Label()
			r := b.Result(spirv.OpExtInst, ty, append([]uint32{f.glsl, tc.inst}, ids...)...)
			b.Op(spirv.OpReturnValue, r)
			b.Op(spirv.OpFunctionEnd)

			got, err := f.load(t).Call(context.Background(), fn, tc.args)
			if err != nil {
				t.Fatal(err)
			}
			if uint32(got.Bits) != tc.want {
				t.Fatalf("got %#08x, want %#08x", got.Bits, tc.want)
			}
		})
	}
}

func TestCallVectorArithmetic(t *testing.T) {
	f := newFuncModule()
	b := f.b
	vec := b.TypeVector(f.intT, 3)
	fnT := b.TypeFunction(f.intT, f.intT)
	c10 := b.Constant(f.intT, 10)
	fn := b.Result(spirv.OpFunction, f.intT, spirv.FunctionControlNone, fnT)
	x := b.Result(spirv.OpFunctionParameter, f.intT)
	b.Label()
	v := b.Result(spirv.OpCompositeConstruct, vec, x, c10, x)
	w := b.Result(spirv.OpIMul, vec, v, v)
	e1 := b.Result(spirv.OpCompositeExtract, f.intT, w, 1)
	e2 := b.Result(spirv.OpCompositeExtract, f.intT, w, 2)
	b.Op(spirv.OpReturnValue, b.Result(spirv.OpIAdd, f.intT, e1, e2))
	b.Op(spirv.OpFunctionEnd)

	got, err := f.load(t).Call(context.Background(), fn, []refvm.Value{refvm.Int(-4)})
	if err != nil {
		t.Fatal(err)
	}
	if got.Int32() != 116 {
		t.Fatalf("got %d, want 116", got.Int32())
	}
}

func TestCallUnknownFunction(t *testing.T) {
	f := newFuncModule()
	sumBelow(f)
	_, err := f.load(t).Call(context.Background(), 9999, nil)
	var vmErr *refvm.VMError
	if !errors.As(err, &vmErr) || vmErr.Code != refvm.CodeMissingTarget {
		t.Fatalf("expected %s, got %v", refvm.CodeMissingTarget, err)
	}
}
