package conform

import "rorsk/internal/spirv"

// Emitter appends instructions at a cursor of the buffer and advances it.
// Function bodies are written at CursorBody; OpVariable goes to CursorLocals
// (the entry block of the function under construction) unless another cursor
// is named. Errors stick the same way they do in Interner.
type Emitter struct {
	buf  *spirv.Buffer
	in   *Interner
	at   spirv.Cursor
	glsl uint32
	err  error

	// pin is set between OpLabel of an entry block and its first body
	// instruction; that instruction becomes the locals boundary.
	pin bool
}

// NewEmitter returns an emitter writing at CursorBody.
func NewEmitter(buf *spirv.Buffer, in *Interner) *Emitter {
	return &Emitter{buf: buf, in: in, at: spirv.CursorBody}
}

// Err returns the first failure seen by the emitter or its interner.
func (e *Emitter) Err() error {
	if e.err != nil {
		return e.err
	}
	return e.in.Err()
}

func (e *Emitter) emitAt(c spirv.Cursor, op spirv.Op, operands ...uint32) {
	if e.Err() != nil {
		return
	}
	at, err := e.buf.MustCursor(c)
	if err != nil {
		e.err = wrapMalformed(err)
		return
	}
	if err := e.buf.InsertWords(at, spirv.Instr(op, operands...)...); err != nil {
		e.err = wrapMalformed(err)
		return
	}
	if e.pin && c == e.at {
		// Locals shifted past this instruction along with the body cursor;
		// put them back in front of it.
		e.pin = false
		if err := e.buf.SetCursor(spirv.CursorLocals, at); err != nil {
			e.err = wrapMalformed(err)
		}
	}
}

// PinLocals starts the entry block's variable area at the current body
// cursor. Call it right after the entry OpLabel.
func (e *Emitter) PinLocals() {
	if e.Err() != nil {
		return
	}
	at, err := e.buf.MustCursor(e.at)
	if err != nil {
		e.err = wrapMalformed(err)
		return
	}
	if err := e.buf.SetCursor(spirv.CursorLocals, at); err != nil {
		e.err = wrapMalformed(err)
		return
	}
	e.pin = true
}

func (e *Emitter) emit(op spirv.Op, operands ...uint32) {
	e.emitAt(e.at, op, operands...)
}

// result emits <op> %typ %id operands... and returns %id.
func (e *Emitter) result(op spirv.Op, typ uint32, operands ...uint32) uint32 {
	if e.Err() != nil {
		return 0
	}
	id := e.buf.NewID()
	e.emit(op, append([]uint32{typ, id}, operands...)...)
	return id
}

func (e *Emitter) Load(typ, ptr uint32) uint32 { return e.result(spirv.OpLoad, typ, ptr) }
func (e *Emitter) Store(ptr, value uint32)     { e.emit(spirv.OpStore, ptr, value) }

func (e *Emitter) IAdd(typ, a, b uint32) uint32 { return e.result(spirv.OpIAdd, typ, a, b) }
func (e *Emitter) ISub(typ, a, b uint32) uint32 { return e.result(spirv.OpISub, typ, a, b) }
func (e *Emitter) IMul(typ, a, b uint32) uint32 { return e.result(spirv.OpIMul, typ, a, b) }
func (e *Emitter) SDiv(typ, a, b uint32) uint32 { return e.result(spirv.OpSDiv, typ, a, b) }
func (e *Emitter) FMul(typ, a, b uint32) uint32 { return e.result(spirv.OpFMul, typ, a, b) }

func (e *Emitter) BitwiseAnd(typ, a, b uint32) uint32 {
	return e.result(spirv.OpBitwiseAnd, typ, a, b)
}

func (e *Emitter) BitwiseOr(typ, a, b uint32) uint32 {
	return e.result(spirv.OpBitwiseOr, typ, a, b)
}

func (e *Emitter) ShiftLeftLogical(typ, base, shift uint32) uint32 {
	return e.result(spirv.OpShiftLeftLogical, typ, base, shift)
}

func (e *Emitter) ShiftRightArithmetic(typ, base, shift uint32) uint32 {
	return e.result(spirv.OpShiftRightArithmetic, typ, base, shift)
}

func (e *Emitter) compare(op spirv.Op, a, b uint32) uint32 {
	return e.result(op, e.in.BoolType(), a, b)
}

func (e *Emitter) SLessThan(a, b uint32) uint32      { return e.compare(spirv.OpSLessThan, a, b) }
func (e *Emitter) SLessThanEqual(a, b uint32) uint32 { return e.compare(spirv.OpSLessThanEqual, a, b) }
func (e *Emitter) SGreaterThanEqual(a, b uint32) uint32 {
	return e.compare(spirv.OpSGreaterThanEqual, a, b)
}
func (e *Emitter) IEqual(a, b uint32) uint32    { return e.compare(spirv.OpIEqual, a, b) }
func (e *Emitter) INotEqual(a, b uint32) uint32 { return e.compare(spirv.OpINotEqual, a, b) }
func (e *Emitter) FOrdEqual(a, b uint32) uint32 { return e.compare(spirv.OpFOrdEqual, a, b) }

func (e *Emitter) Bitcast(typ, x uint32) uint32     { return e.result(spirv.OpBitcast, typ, x) }
func (e *Emitter) SConvert(typ, x uint32) uint32    { return e.result(spirv.OpSConvert, typ, x) }
func (e *Emitter) ConvertSToF(typ, x uint32) uint32 { return e.result(spirv.OpConvertSToF, typ, x) }

// Label opens a block with a fresh id.
func (e *Emitter) Label() uint32 {
	if e.Err() != nil {
		return 0
	}
	id := e.buf.NewID()
	e.LabelID(id)
	return id
}

// LabelID opens a block whose id was reserved earlier with NewLabel.
func (e *Emitter) LabelID(id uint32) { e.emit(spirv.OpLabel, id) }

// NewLabel reserves a label id for a forward branch target.
func (e *Emitter) NewLabel() uint32 { return e.buf.NewID() }

func (e *Emitter) Branch(target uint32) { e.emit(spirv.OpBranch, target) }

func (e *Emitter) BranchConditional(cond, ifTrue, ifFalse uint32) {
	e.emit(spirv.OpBranchConditional, cond, ifTrue, ifFalse)
}

func (e *Emitter) SelectionMerge(merge uint32) {
	e.emit(spirv.OpSelectionMerge, merge, spirv.SelectionControlNone)
}

func (e *Emitter) LoopMerge(merge, cont uint32) {
	e.emit(spirv.OpLoopMerge, merge, cont, spirv.LoopControlNone)
}

func (e *Emitter) Function(ret, fnType uint32) uint32 {
	return e.result(spirv.OpFunction, ret, spirv.FunctionControlNone, fnType)
}

func (e *Emitter) FunctionParameter(typ uint32) uint32 {
	return e.result(spirv.OpFunctionParameter, typ)
}

func (e *Emitter) ReturnValue(v uint32) { e.emit(spirv.OpReturnValue, v) }
func (e *Emitter) FunctionEnd()         { e.emit(spirv.OpFunctionEnd) }

func (e *Emitter) FunctionCall(ret, fn uint32, args ...uint32) uint32 {
	return e.result(spirv.OpFunctionCall, ret, append([]uint32{fn}, args...)...)
}

// Variable declares a Function-class local in the entry block of the
// function under construction.
func (e *Emitter) Variable(ptrType uint32) uint32 {
	return e.VariableAt(spirv.CursorLocals, ptrType)
}

// VariableAt declares a Function-class local at cursor c.
func (e *Emitter) VariableAt(c spirv.Cursor, ptrType uint32) uint32 {
	if e.Err() != nil {
		return 0
	}
	id := e.buf.NewID()
	e.emitAt(c, spirv.OpVariable, ptrType, id, uint32(spirv.StorageFunction))
	return id
}

// Undef emits an undefined value of typ at the current cursor.
func (e *Emitter) Undef(typ uint32) uint32 { return e.result(spirv.OpUndef, typ) }

// ExtInst calls a GLSL.std.450 instruction, importing the set on first use.
func (e *Emitter) ExtInst(typ, inst uint32, operands ...uint32) uint32 {
	if e.glsl == 0 {
		e.glsl = e.in.ExtInstImport(spirv.GLSLStd450)
	}
	return e.result(spirv.OpExtInst, typ, append([]uint32{e.glsl, inst}, operands...)...)
}

func (e *Emitter) SAbs(typ, x uint32) uint32    { return e.ExtInst(typ, spirv.GLSLSAbs, x) }
func (e *Emitter) SMin(typ, a, b uint32) uint32 { return e.ExtInst(typ, spirv.GLSLSMin, a, b) }
func (e *Emitter) Pow(typ, x, y uint32) uint32  { return e.ExtInst(typ, spirv.GLSLPow, x, y) }
