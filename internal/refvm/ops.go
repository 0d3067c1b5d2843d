package refvm

import (
	"math"

	"rorsk/internal/spirv"
)

// binFn computes one scalar component. t is the operand type.
type binFn func(t *Type, a, b uint64) (uint64, error)

// unFn converts one scalar component from src to dst.
type unFn func(src, dst *Type, a uint64) (uint64, error)

func (x *machine) eval(in *instr, vals []Value) (Value, error) {
	switch in.op {
	case spirv.OpUndef:
		return zero(in.typ), nil

	case spirv.OpLoad:
		p, err := x.getPtr(vals, in.args[0])
		if err != nil {
			return Value{}, err
		}
		return p.load()

	case spirv.OpAccessChain, spirv.OpInBoundsAccessChain:
		return x.accessChain(in, vals)

	case spirv.OpCompositeConstruct:
		return x.construct(in, vals)

	case spirv.OpCompositeExtract:
		v, err := x.get(vals, in.args[0])
		if err != nil {
			return Value{}, err
		}
		for _, idx := range in.args[1:] {
			if int(idx) >= len(v.Elems) {
				return Value{}, vmErrorf(CodeOutOfBounds, 0, "index %d outside %s", idx, v.T)
			}
			v = v.Elems[idx]
		}
		return v, nil

	case spirv.OpSelect:
		c, err := x.get(vals, in.args[0])
		if err != nil {
			return Value{}, err
		}
		pick := in.args[2]
		if c.Bool() {
			pick = in.args[1]
		}
		return x.get(vals, pick)

	case spirv.OpExtInst:
		return x.extInst(in, vals)
	}

	if in.un != nil {
		a, err := x.get(vals, in.args[0])
		if err != nil {
			return Value{}, err
		}
		return lift1(in.typ, a, in.un)
	}
	if in.bin != nil {
		if len(in.args) < 2 {
			return Value{}, vmErrorf(CodeMalformed, 0, "binary operation with %d operands", len(in.args))
		}
		a, err := x.get(vals, in.args[0])
		if err != nil {
			return Value{}, err
		}
		b, err := x.get(vals, in.args[1])
		if err != nil {
			return Value{}, err
		}
		return lift2(in.typ, a, b, in.bin)
	}
	return Value{}, vmErrorf(CodeUnsupported, 0, "opcode is not interpreted")
}

func (x *machine) accessChain(in *instr, vals []Value) (Value, error) {
	p, err := x.getPtr(vals, in.args[0])
	if err != nil {
		return Value{}, err
	}
	for _, id := range in.args[1:] {
		iv, err := x.get(vals, id)
		if err != nil {
			return Value{}, err
		}
		if iv.T == nil || iv.T.Kind != KindInt {
			return Value{}, vmErrorf(CodeTypeMismatch, 0, "index %%%d is %s, not an integer", id, iv.T)
		}
		idx := int(sext(iv.Bits, iv.T.Width))
		if !iv.T.Signed {
			idx = int(iv.Bits)
		}
		if p, err = p.index(idx); err != nil {
			return Value{}, err
		}
	}
	return Value{T: in.typ, Ptr: p}, nil
}

func (x *machine) construct(in *instr, vals []Value) (Value, error) {
	out := Value{T: in.typ, Elems: make([]Value, 0, len(in.args))}
	for _, id := range in.args {
		v, err := x.get(vals, id)
		if err != nil {
			return Value{}, err
		}
		// A vector may be built from smaller vectors; their components are
		// spliced in.
		if in.typ.Kind == KindVector && v.T != nil && v.T.Kind == KindVector {
			out.Elems = append(out.Elems, v.Elems...)
			continue
		}
		out.Elems = append(out.Elems, v)
	}
	if in.typ.Kind == KindVector && len(out.Elems) != in.typ.Count {
		return Value{}, vmErrorf(CodeTypeMismatch, 0, "%d components for %s", len(out.Elems), in.typ)
	}
	return out, nil
}

func lift1(rt *Type, a Value, f unFn) (Value, error) {
	if a.T == nil {
		return Value{}, vmErrorf(CodeTypeMismatch, 0, "operand has no type")
	}
	if a.T.Kind == KindVector {
		out := Value{T: rt, Elems: make([]Value, len(a.Elems))}
		dst := rt.component()
		for i, e := range a.Elems {
			bits, err := f(a.T.Elem, dst, e.Bits)
			if err != nil {
				return Value{}, err
			}
			out.Elems[i] = Value{T: dst, Bits: bits}
		}
		return out, nil
	}
	if !a.T.scalar() {
		return Value{}, vmErrorf(CodeTypeMismatch, 0, "operand is %s", a.T)
	}
	bits, err := f(a.T, rt, a.Bits)
	return Value{T: rt, Bits: bits}, err
}

func lift2(rt *Type, a, b Value, f binFn) (Value, error) {
	if a.T == nil || b.T == nil {
		return Value{}, vmErrorf(CodeTypeMismatch, 0, "operand has no type")
	}
	if a.T.Kind == KindVector {
		if len(a.Elems) != len(b.Elems) {
			return Value{}, vmErrorf(CodeTypeMismatch, 0, "%s and %s", a.T, b.T)
		}
		out := Value{T: rt, Elems: make([]Value, len(a.Elems))}
		dst := rt.component()
		for i := range a.Elems {
			bits, err := f(a.T.Elem, a.Elems[i].Bits, b.Elems[i].Bits)
			if err != nil {
				return Value{}, err
			}
			out.Elems[i] = Value{T: dst, Bits: bits}
		}
		return out, nil
	}
	if !a.T.scalar() || !b.T.scalar() {
		return Value{}, vmErrorf(CodeTypeMismatch, 0, "operands are %s and %s", a.T, b.T)
	}
	bits, err := f(a.T, a.Bits, b.Bits)
	return Value{T: rt, Bits: bits}, err
}

func mask(bits uint64, width uint32) uint64 {
	if width >= 64 {
		return bits
	}
	return bits & (1<<width - 1)
}

func sext(bits uint64, width uint32) int64 {
	if width >= 64 {
		return int64(bits)
	}
	s := 64 - width
	return int64(bits<<s) >> s
}

func boolBits(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}

func f32(b uint64) float32 { return math.Float32frombits(uint32(b)) }
func f64(b uint64) float64 { return math.Float64frombits(b) }

// toFloat reads a float component of width w as float64. Widening float32 is
// exact, so comparisons on the result match comparisons in float32.
func toFloat(b uint64, w uint32) float64 {
	if w == 64 {
		return f64(b)
	}
	return float64(f32(b))
}

func fromFloat(f float64, w uint32) uint64 {
	if w == 64 {
		return math.Float64bits(f)
	}
	return float32Bits(float32(f))
}

// farith evaluates in the operand width. float32 operations round once, so
// the result is the IEEE single-precision result.
func farith(op32 func(a, b float32) float32, op64 func(a, b float64) float64) binFn {
	return func(t *Type, a, b uint64) (uint64, error) {
		if t.Width == 64 {
			return math.Float64bits(op64(f64(a), f64(b))), nil
		}
		return float32Bits(op32(f32(a), f32(b))), nil
	}
}

func fcompare(cmp func(a, b float64) bool) binFn {
	return func(t *Type, a, b uint64) (uint64, error) {
		return boolBits(cmp(toFloat(a, t.Width), toFloat(b, t.Width))), nil
	}
}

func icompare(signed bool, cmp func(a, b int64) bool, ucmp func(a, b uint64) bool) binFn {
	return func(t *Type, a, b uint64) (uint64, error) {
		if signed {
			return boolBits(cmp(sext(a, t.Width), sext(b, t.Width))), nil
		}
		return boolBits(ucmp(a, b)), nil
	}
}

func iarith(f func(a, b uint64) uint64) binFn {
	return func(t *Type, a, b uint64) (uint64, error) { return mask(f(a, b), t.Width), nil }
}

func sdivide(f func(a, b int64) int64) binFn {
	return func(t *Type, a, b uint64) (uint64, error) {
		if b == 0 {
			return 0, vmErrorf(CodeDivideByZero, 0, "integer division by zero")
		}
		return mask(uint64(f(sext(a, t.Width), sext(b, t.Width))), t.Width), nil
	}
}

func udivide(f func(a, b uint64) uint64) binFn {
	return func(t *Type, a, b uint64) (uint64, error) {
		if b == 0 {
			return 0, vmErrorf(CodeDivideByZero, 0, "integer division by zero")
		}
		return mask(f(a, b), t.Width), nil
	}
}

func binaryOp(op spirv.Op) binFn {
	switch op {
	case spirv.OpIAdd:
		return iarith(func(a, b uint64) uint64 { return a + b })
	case spirv.OpISub:
		return iarith(func(a, b uint64) uint64 { return a - b })
	case spirv.OpIMul:
		return iarith(func(a, b uint64) uint64 { return a * b })
	case spirv.OpUDiv:
		return udivide(func(a, b uint64) uint64 { return a / b })
	case spirv.OpUMod:
		return udivide(func(a, b uint64) uint64 { return a % b })
	case spirv.OpSDiv:
		return sdivide(func(a, b int64) int64 { return a / b })
	case spirv.OpSRem:
		return sdivide(func(a, b int64) int64 { return a % b })
	case spirv.OpSMod:
		return sdivide(func(a, b int64) int64 {
			r := a % b
			if r != 0 && (r < 0) != (b < 0) {
				r += b
			}
			return r
		})

	case spirv.OpFAdd:
		return farith(func(a, b float32) float32 { return a + b }, func(a, b float64) float64 { return a + b })
	case spirv.OpFSub:
		return farith(func(a, b float32) float32 { return a - b }, func(a, b float64) float64 { return a - b })
	case spirv.OpFMul:
		return farith(func(a, b float32) float32 { return a * b }, func(a, b float64) float64 { return a * b })
	case spirv.OpFDiv:
		return farith(func(a, b float32) float32 { return a / b }, func(a, b float64) float64 { return a / b })

	case spirv.OpBitwiseAnd:
		return iarith(func(a, b uint64) uint64 { return a & b })
	case spirv.OpBitwiseOr:
		return iarith(func(a, b uint64) uint64 { return a | b })
	case spirv.OpBitwiseXor:
		return iarith(func(a, b uint64) uint64 { return a ^ b })
	case spirv.OpShiftLeftLogical:
		return iarith(func(a, b uint64) uint64 { return a << b })
	case spirv.OpShiftRightLogical:
		return iarith(func(a, b uint64) uint64 { return a >> b })
	case spirv.OpShiftRightArithmetic:
		return func(t *Type, a, b uint64) (uint64, error) {
			return mask(uint64(sext(a, t.Width)>>b), t.Width), nil
		}

	case spirv.OpLogicalAnd:
		return func(_ *Type, a, b uint64) (uint64, error) { return a & b, nil }
	case spirv.OpLogicalOr:
		return func(_ *Type, a, b uint64) (uint64, error) { return a | b, nil }

	case spirv.OpIEqual:
		return func(_ *Type, a, b uint64) (uint64, error) { return boolBits(a == b), nil }
	case spirv.OpINotEqual:
		return func(_ *Type, a, b uint64) (uint64, error) { return boolBits(a != b), nil }
	case spirv.OpSGreaterThan:
		return icompare(true, func(a, b int64) bool { return a > b }, nil)
	case spirv.OpSGreaterThanEqual:
		return icompare(true, func(a, b int64) bool { return a >= b }, nil)
	case spirv.OpSLessThan:
		return icompare(true, func(a, b int64) bool { return a < b }, nil)
	case spirv.OpSLessThanEqual:
		return icompare(true, func(a, b int64) bool { return a <= b }, nil)
	case spirv.OpUGreaterThan:
		return icompare(false, nil, func(a, b uint64) bool { return a > b })
	case spirv.OpUGreaterThanEqual:
		return icompare(false, nil, func(a, b uint64) bool { return a >= b })
	case spirv.OpULessThan:
		return icompare(false, nil, func(a, b uint64) bool { return a < b })
	case spirv.OpULessThanEqual:
		return icompare(false, nil, func(a, b uint64) bool { return a <= b })

	case spirv.OpFOrdEqual:
		return fcompare(func(a, b float64) bool { return a == b })
	case spirv.OpFOrdNotEqual:
		return fcompare(func(a, b float64) bool { return !math.IsNaN(a) && !math.IsNaN(b) && a != b })
	case spirv.OpFOrdLessThan:
		return fcompare(func(a, b float64) bool { return a < b })
	case spirv.OpFOrdGreaterThan:
		return fcompare(func(a, b float64) bool { return a > b })
	}
	return nil
}

func unaryOp(op spirv.Op) unFn {
	switch op {
	case spirv.OpSNegate:
		return func(src, _ *Type, a uint64) (uint64, error) { return mask(-a, src.Width), nil }
	case spirv.OpFNegate:
		return func(src, _ *Type, a uint64) (uint64, error) { return a ^ 1<<(src.Width-1), nil }
	case spirv.OpNot:
		return func(src, _ *Type, a uint64) (uint64, error) { return mask(^a, src.Width), nil }
	case spirv.OpLogicalNot:
		return func(_, _ *Type, a uint64) (uint64, error) { return a ^ 1, nil }

	case spirv.OpConvertFToS:
		return func(src, dst *Type, a uint64) (uint64, error) {
			return mask(uint64(int64(toFloat(a, src.Width))), dst.Width), nil
		}
	case spirv.OpConvertSToF:
		return func(src, dst *Type, a uint64) (uint64, error) {
			v := sext(a, src.Width)
			if dst.Width == 64 {
				return math.Float64bits(float64(v)), nil
			}
			return float32Bits(float32(v)), nil
		}
	case spirv.OpConvertUToF:
		return func(_, dst *Type, a uint64) (uint64, error) {
			if dst.Width == 64 {
				return math.Float64bits(float64(a)), nil
			}
			return float32Bits(float32(a)), nil
		}
	case spirv.OpUConvert, spirv.OpBitcast:
		return func(src, dst *Type, a uint64) (uint64, error) {
			if op == spirv.OpBitcast && src.Width != dst.Width {
				return 0, vmErrorf(CodeTypeMismatch, 0, "bitcast from %s to %s", src, dst)
			}
			return mask(a, dst.Width), nil
		}
	case spirv.OpSConvert:
		return func(src, dst *Type, a uint64) (uint64, error) {
			return mask(uint64(sext(a, src.Width)), dst.Width), nil
		}
	case spirv.OpFConvert:
		return func(src, dst *Type, a uint64) (uint64, error) {
			return fromFloat(toFloat(a, src.Width), dst.Width), nil
		}
	}
	return nil
}

func (x *machine) extInst(in *instr, vals []Value) (Value, error) {
	set, inst := in.args[0], in.args[1]
	if name := x.m.ext[set]; name != spirv.GLSLStd450 {
		return Value{}, vmErrorf(CodeUnsupported, 0, "extended instruction set %q", name)
	}
	operands := in.args[2:]
	arg := func(i int) (Value, error) {
		if i >= len(operands) {
			return Value{}, vmErrorf(CodeMalformed, 0, "GLSL instruction %d is missing operand %d", inst, i)
		}
		return x.get(vals, operands[i])
	}
	var (
		un  unFn
		bin binFn
	)
	switch inst {
	case spirv.GLSLFAbs:
		un = func(src, _ *Type, a uint64) (uint64, error) { return a &^ (1 << (src.Width - 1)), nil }
	case spirv.GLSLSAbs:
		un = func(src, _ *Type, a uint64) (uint64, error) {
			v := sext(a, src.Width)
			if v < 0 {
				v = -v
			}
			return mask(uint64(v), src.Width), nil
		}
	case spirv.GLSLSMin:
		bin = func(t *Type, a, b uint64) (uint64, error) {
			if sext(b, t.Width) < sext(a, t.Width) {
				return b, nil
			}
			return a, nil
		}
	case spirv.GLSLUMin:
		bin = func(_ *Type, a, b uint64) (uint64, error) { return min(a, b), nil }
	case spirv.GLSLFMin:
		bin = func(t *Type, a, b uint64) (uint64, error) {
			if toFloat(b, t.Width) < toFloat(a, t.Width) {
				return b, nil
			}
			return a, nil
		}
	case spirv.GLSLPow:
		bin = func(t *Type, a, b uint64) (uint64, error) {
			return fromFloat(math.Pow(toFloat(a, t.Width), toFloat(b, t.Width)), t.Width), nil
		}
	default:
		return Value{}, vmErrorf(CodeUnsupported, 0, "GLSL.std.450 instruction %d", inst)
	}

	a, err := arg(0)
	if err != nil {
		return Value{}, err
	}
	if un != nil {
		return lift1(in.typ, a, un)
	}
	b, err := arg(1)
	if err != nil {
		return Value{}, err
	}
	return lift2(in.typ, a, b, bin)
}
