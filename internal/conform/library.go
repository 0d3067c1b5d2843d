package conform

import (
	"fmt"
	"maps"

	"rorsk/internal/spirv"
)

// Helper function names. Every helper exists at most once per module.
const (
	HelperPack             = "pack"
	HelperGetFraction      = "get_fraction"
	HelperGetExponent      = "get_exponent"
	HelperDecodeFromFloat  = "decode_from_float"
	HelperMSB64            = "most_significant_bit_64"
	HelperNormalize64      = "normalize_64"
	HelperDivide           = "divide"
	HelperEncodeToFloat    = "encode_to_float"
	HelperConformantDivide = "conformant_divide"
)

type scalar uint8

const (
	scalarI32 scalar = iota
	scalarI64
	scalarF32
)

type helper struct {
	ret    scalar
	params []scalar
	deps   []string
	body   func(f *fnBuilder)
}

func helperTable() map[string]helper {
	return map[string]helper{
		HelperPack: {
			ret: scalarI32, params: []scalar{scalarI32, scalarI32},
			body: (*fnBuilder).pack,
		},
		HelperGetFraction: {
			ret: scalarI32, params: []scalar{scalarI32},
			body: (*fnBuilder).getFraction,
		},
		HelperGetExponent: {
			ret: scalarI32, params: []scalar{scalarI32},
			body: (*fnBuilder).getExponent,
		},
		HelperDecodeFromFloat: {
			ret: scalarI32, params: []scalar{scalarF32},
			deps: []string{HelperPack},
			body: (*fnBuilder).decodeFromFloat,
		},
		HelperMSB64: {
			ret: scalarI32, params: []scalar{scalarI64},
			body: (*fnBuilder).msb64,
		},
		HelperNormalize64: {
			ret: scalarI32, params: []scalar{scalarI64, scalarI32},
			deps: []string{HelperMSB64, HelperPack},
			body: (*fnBuilder).normalize64,
		},
		HelperDivide: {
			ret: scalarI32, params: []scalar{scalarI32, scalarI32},
			deps: []string{HelperGetFraction, HelperGetExponent, HelperNormalize64},
			body: (*fnBuilder).divide,
		},
		HelperEncodeToFloat: {
			ret: scalarF32, params: []scalar{scalarI32},
			deps: []string{HelperGetFraction, HelperGetExponent},
			body: (*fnBuilder).encodeToFloat,
		},
		HelperConformantDivide: {
			ret: scalarF32, params: []scalar{scalarF32, scalarF32},
			deps: []string{HelperDecodeFromFloat, HelperDivide, HelperEncodeToFloat},
			body: (*fnBuilder).conformantDivide,
		},
	}
}

// Library synthesizes the software division helpers as real functions at
// the end of the module. Each helper is built once; its dependencies are
// finished before it starts, so function bodies never interleave.
type Library struct {
	buf   *spirv.Buffer
	in    *Interner
	em    *Emitter
	defs  map[string]helper
	fns   map[string]uint32
	names map[uint32]string
	order []string
}

// NewLibrary returns an empty library for one transform run.
func NewLibrary(buf *spirv.Buffer, in *Interner, em *Emitter) *Library {
	return &Library{
		buf:   buf,
		in:    in,
		em:    em,
		defs:  helperTable(),
		fns:   make(map[string]uint32),
		names: make(map[uint32]string),
	}
}

// Get returns the function id of helper name, building it on first use.
func (l *Library) Get(name string) (uint32, error) {
	if id, ok := l.fns[name]; ok {
		return id, nil
	}
	def, ok := l.defs[name]
	if !ok {
		return 0, fmt.Errorf("conform: unknown helper %q", name)
	}
	for _, dep := range def.deps {
		if _, err := l.Get(dep); err != nil {
			return 0, err
		}
	}
	return l.build(name, def)
}

// Built lists the helpers materialized so far, in build order.
func (l *Library) Built() []string {
	return append([]string(nil), l.order...)
}

// IDs returns a copy of the helper name to function id map.
func (l *Library) IDs() map[string]uint32 { return maps.Clone(l.fns) }

// Name returns the helper name of a function id built by this library.
func (l *Library) Name(fn uint32) (string, bool) {
	name, ok := l.names[fn]
	return name, ok
}

func (l *Library) typeOf(s scalar) uint32 {
	switch s {
	case scalarI64:
		return l.in.IntType(64, true)
	case scalarF32:
		return l.in.FloatType(32)
	default:
		return l.in.IntType(32, true)
	}
}

func (l *Library) ptrOf(s scalar) uint32 {
	return l.in.PointerType(l.typeOf(s), spirv.StorageFunction)
}

func (l *Library) build(name string, def helper) (uint32, error) {
	ret := l.typeOf(def.ret)
	ptrs := make([]uint32, len(def.params))
	for i, p := range def.params {
		ptrs[i] = l.ptrOf(p)
	}
	fnType := l.in.FunctionType(ret, ptrs...)
	if err := l.em.Err(); err != nil {
		return 0, err
	}

	if err := l.buf.SetCursor(spirv.CursorBody, l.buf.Len()); err != nil {
		return 0, wrapMalformed(err)
	}
	defer l.buf.ClearCursor(spirv.CursorBody)
	defer l.buf.ClearCursor(spirv.CursorLocals)

	fn := l.em.Function(ret, fnType)
	params := make([]uint32, len(ptrs))
	for i, p := range ptrs {
		params[i] = l.em.FunctionParameter(p)
	}
	l.em.Label()
	l.em.PinLocals()

	f := &fnBuilder{l: l, e: l.em, def: def, params: params}
	def.body(f)
	l.em.FunctionEnd()
	if err := l.em.Err(); err != nil {
		return 0, err
	}

	l.fns[name] = fn
	l.names[fn] = name
	l.order = append(l.order, name)
	return fn, nil
}

// fnBuilder writes the body of one helper.
type fnBuilder struct {
	l      *Library
	e      *Emitter
	def    helper
	params []uint32
}

func (f *fnBuilder) i32() uint32 { return f.l.typeOf(scalarI32) }
func (f *fnBuilder) i64() uint32 { return f.l.typeOf(scalarI64) }
func (f *fnBuilder) f32() uint32 { return f.l.typeOf(scalarF32) }

func (f *fnBuilder) c32(v int64) uint32    { return f.l.in.ConstInt(32, true, v) }
func (f *fnBuilder) c64(v int64) uint32    { return f.l.in.ConstInt(64, true, v) }
func (f *fnBuilder) cf32(v float64) uint32 { return f.l.in.ConstFloat(32, v) }

// arg loads parameter i.
func (f *fnBuilder) arg(i int) uint32 {
	return f.e.Load(f.l.typeOf(f.def.params[i]), f.params[i])
}

// call passes values to another helper through fresh locals, the way
// parameters are passed by pointer.
func (f *fnBuilder) call(name string, args ...uint32) uint32 {
	fn, ok := f.l.fns[name]
	def := f.l.defs[name]
	if !ok {
		if f.e.err == nil {
			f.e.err = fmt.Errorf("conform: helper %q used before it was built", name)
		}
		return 0
	}
	ptrs := make([]uint32, len(args))
	for i, a := range args {
		v := f.e.Variable(f.l.ptrOf(def.params[i]))
		f.e.Store(v, a)
		ptrs[i] = v
	}
	return f.e.FunctionCall(f.l.typeOf(def.ret), fn, ptrs...)
}

// guard emits `if cond { return value }` and continues in the else block.
// The returned merge label is closed with closeMerge once the rest of the
// function has returned on every path.
func (f *fnBuilder) guard(cond, value uint32) uint32 {
	e := f.e
	then, rest, merge := e.NewLabel(), e.NewLabel(), e.NewLabel()
	e.SelectionMerge(merge)
	e.BranchConditional(cond, then, rest)
	e.LabelID(then)
	e.ReturnValue(value)
	e.LabelID(rest)
	return merge
}

// closeMerge emits the merge block of a selection whose branches all return.
func (f *fnBuilder) closeMerge(merge uint32) {
	f.e.LabelID(merge)
	f.e.ReturnValue(f.e.Undef(f.l.typeOf(f.def.ret)))
}

// pack(fraction, exponent): zero on underflow, exponent clamped to 255.
func (f *fnBuilder) pack() {
	e, t := f.e, f.i32()
	fraction, exponent := f.arg(0), f.arg(1)
	under := e.SLessThan(exponent, f.c32(0))
	merge := f.guard(under, f.c32(0))
	clamped := e.SMin(t, exponent, f.c32(255))
	hi := e.ShiftLeftLogical(t, fraction, f.c32(8))
	lo := e.BitwiseAnd(t, clamped, f.c32(0xFF))
	e.ReturnValue(e.BitwiseOr(t, hi, lo))
	f.closeMerge(merge)
}

func (f *fnBuilder) getFraction() {
	f.e.ReturnValue(f.e.ShiftRightArithmetic(f.i32(), f.arg(0), f.c32(8)))
}

func (f *fnBuilder) getExponent() {
	f.e.ReturnValue(f.e.BitwiseAnd(f.i32(), f.arg(0), f.c32(0xFF)))
}

func (f *fnBuilder) decodeFromFloat() {
	e, t := f.e, f.i32()
	v := f.arg(0)
	zero := e.FOrdEqual(v, f.cf32(0))
	merge := f.guard(zero, f.c32(0))

	bits := e.Bitcast(t, v)
	mant := e.BitwiseAnd(t, bits, f.c32(0x7FFFFF))
	fraction := e.IAdd(t, mant, f.c32(0x800000))
	magnitude := e.BitwiseAnd(t, bits, f.c32(0x7FFFFFFF))
	exponent := e.ShiftRightArithmetic(t, magnitude, f.c32(23))
	fv := e.Variable(f.l.ptrOf(scalarI32))
	e.Store(fv, fraction)

	neg := e.SLessThan(bits, f.c32(0))
	negate, join := e.NewLabel(), e.NewLabel()
	e.SelectionMerge(join)
	e.BranchConditional(neg, negate, join)
	e.LabelID(negate)
	cur := e.Load(t, fv)
	e.Store(fv, e.ISub(t, f.c32(0), cur))
	e.Branch(join)

	e.LabelID(join)
	half := e.ShiftRightArithmetic(t, e.Load(t, fv), f.c32(1))
	biased := e.ISub(t, exponent, f.c32(22))
	e.ReturnValue(f.call(HelperPack, half, biased))
	f.closeMerge(merge)
}

// msb64 scans from bit 63 down; the structured loop keeps the same shape
// on every backend instead of relying on a find-MSB instruction.
func (f *fnBuilder) msb64() {
	e, t, t64 := f.e, f.i32(), f.i64()
	x := f.arg(0)
	iv := e.Variable(f.l.ptrOf(scalarI32))
	e.Store(iv, f.c32(63))

	header, cond, body, cont, merge := e.NewLabel(), e.NewLabel(), e.NewLabel(), e.NewLabel(), e.NewLabel()
	e.Branch(header)

	e.LabelID(header)
	e.LoopMerge(merge, cont)
	e.Branch(cond)

	e.LabelID(cond)
	i := e.Load(t, iv)
	more := e.SGreaterThanEqual(i, f.c32(0))
	e.BranchConditional(more, body, merge)

	e.LabelID(body)
	bit := e.ShiftLeftLogical(t64, f.c64(1), e.SConvert(t64, i))
	hit := e.INotEqual(e.BitwiseAnd(t64, x, bit), f.c64(0))
	found, next := e.NewLabel(), e.NewLabel()
	e.SelectionMerge(next)
	e.BranchConditional(hit, found, next)
	e.LabelID(found)
	e.ReturnValue(i)
	e.LabelID(next)
	e.Branch(cont)

	e.LabelID(cont)
	dec := e.ISub(t, e.Load(t, iv), f.c32(1))
	e.Store(iv, dec)
	e.Branch(header)

	e.LabelID(merge)
	e.ReturnValue(f.c32(0))
}

func (f *fnBuilder) normalize64() {
	e, t, t64 := f.e, f.i32(), f.i64()
	raw, exponent := f.arg(0), f.arg(1)
	zero := e.IEqual(raw, f.c64(0))
	merge := f.guard(zero, f.c32(0))

	idx := f.call(HelperMSB64, e.SAbs(t64, raw))
	small := e.SLessThanEqual(idx, f.c32(22))
	left, right, join := e.NewLabel(), e.NewLabel(), e.NewLabel()
	e.SelectionMerge(join)
	e.BranchConditional(small, left, right)

	e.LabelID(left)
	up := e.ISub(t, f.c32(22), idx)
	shifted := e.SConvert(t, e.ShiftLeftLogical(t64, raw, e.SConvert(t64, up)))
	e.ReturnValue(f.call(HelperPack, shifted, e.ISub(t, exponent, up)))

	e.LabelID(right)
	down := e.ISub(t, idx, f.c32(22))
	shifted = e.SConvert(t, e.ShiftRightArithmetic(t64, raw, e.SConvert(t64, down)))
	e.ReturnValue(f.call(HelperPack, shifted, e.IAdd(t, exponent, down)))

	f.closeMerge(join)
	f.closeMerge(merge)
}

func (f *fnBuilder) divide() {
	e, t, t64 := f.e, f.i32(), f.i64()
	r := f.arg(1)
	rf := f.call(HelperGetFraction, r)
	byZero := e.IEqual(rf, f.c32(0))
	merge := f.guard(byZero, f.c32(0))

	l := f.arg(0)
	lf := f.call(HelperGetFraction, l)
	num := e.ShiftLeftLogical(t64, e.SConvert(t64, lf), f.c64(32))
	q := e.SDiv(t64, num, e.SConvert(t64, rf))
	le := f.call(HelperGetExponent, l)
	re := f.call(HelperGetExponent, r)
	exponent := e.IAdd(t, e.ISub(t, le, re), f.c32(95))
	e.ReturnValue(f.call(HelperNormalize64, q, exponent))
	f.closeMerge(merge)
}

func (f *fnBuilder) encodeToFloat() {
	e, t, ft := f.e, f.i32(), f.f32()
	v := f.arg(0)
	fraction := f.call(HelperGetFraction, v)
	exponent := f.call(HelperGetExponent, v)
	power := e.ConvertSToF(ft, e.ISub(t, exponent, f.c32(127)))
	scale := e.Pow(ft, f.cf32(2), power)
	e.ReturnValue(e.FMul(ft, e.ConvertSToF(ft, fraction), scale))
}

func (f *fnBuilder) conformantDivide() {
	a, b := f.arg(0), f.arg(1)
	da := f.call(HelperDecodeFromFloat, a)
	db := f.call(HelperDecodeFromFloat, b)
	q := f.call(HelperDivide, da, db)
	f.e.ReturnValue(f.call(HelperEncodeToFloat, q))
}
