// Package refvm is a reference interpreter for the subset of SPIR-V that
// compute kernels and the division helpers use. It executes modules on the
// CPU with IEEE float32 arithmetic and serves as the oracle the patched
// output is checked against.
package refvm

import (
	"math"

	"rorsk/internal/spirv"
)

type slotKind uint8

const (
	slotNone slotKind = iota
	slotConst
	slotGlobal
	slotLocal
)

// instr is a decoded instruction of a function body.
type instr struct {
	op     spirv.Op
	typ    *Type  // result type, nil when absent
	id     uint32 // result id, 0 when absent
	args   []uint32
	offset int

	// Resolved once at load time for arithmetic, logic and conversions.
	bin binFn
	un  unFn
}

type block struct {
	label  uint32
	instrs []instr
}

type function struct {
	id     uint32
	ret    *Type
	params []uint32
	types  []*Type
	blocks map[uint32]*block
	entry  uint32
}

type global struct {
	id         uint32
	ptr        *Type
	class      spirv.StorageClass
	builtin    uint32
	isBuiltin  bool
	set        uint32
	binding    uint32
	hasBinding bool
	init       uint32
}

// EntryPoint describes an OpEntryPoint and its execution modes.
type EntryPoint struct {
	Name      string
	Model     uint32
	Function  uint32
	LocalSize [3]uint32
}

// Module is a loaded, immutable program. It is safe to run from several
// goroutines at once.
type Module struct {
	bound   uint32
	kinds   []slotKind
	types   []*Type
	consts  []Value
	globals []global
	funcs   map[uint32]*function
	entries map[string]*EntryPoint
	ext     map[uint32]string
	names   map[uint32]string
}

type decoration struct {
	member int // -1 for OpDecorate
	kind   spirv.Decoration
	args   []uint32
}

type loader struct {
	m     *Module
	decos map[uint32][]decoration
	fn    *function
	blk   *block
	modes map[uint32][3]uint32
}

// Load decodes and indexes a module.
func Load(data []byte) (*Module, error) {
	words, err := spirv.Decode(data)
	if err != nil {
		return nil, err
	}
	bound := words[spirv.HeaderBound]
	if bound > 1<<22 {
		return nil, vmErrorf(CodeMalformed, 0, "id bound %d is too large", bound)
	}
	l := &loader{
		m: &Module{
			bound:   bound,
			kinds:   make([]slotKind, bound),
			types:   make([]*Type, bound),
			consts:  make([]Value, bound),
			funcs:   make(map[uint32]*function),
			entries: make(map[string]*EntryPoint),
			ext:     make(map[uint32]string),
			names:   make(map[uint32]string),
		},
		decos: make(map[uint32][]decoration),
		modes: make(map[uint32][3]uint32),
	}
	var loadErr error
	walkErr := spirv.Walk(words, func(inst spirv.Inst) bool {
		loadErr = l.visit(inst)
		return loadErr == nil
	})
	if walkErr != nil {
		return nil, walkErr
	}
	if loadErr != nil {
		return nil, loadErr
	}
	if l.fn != nil {
		return nil, vmErrorf(CodeMalformed, 0, "function %%%d has no OpFunctionEnd", l.fn.id)
	}
	for _, ep := range l.m.entries {
		ep.LocalSize = [3]uint32{1, 1, 1}
		if size, ok := l.modes[ep.Function]; ok {
			ep.LocalSize = size
		}
	}
	return l.m, nil
}

// Bound returns the id bound of the module.
func (m *Module) Bound() uint32 { return m.bound }

// Entry returns the entry point with the given name.
func (m *Module) Entry(name string) (*EntryPoint, bool) {
	ep, ok := m.entries[name]
	return ep, ok
}

// FunctionByName finds a function through its OpName debug name.
func (m *Module) FunctionByName(name string) (uint32, bool) {
	for id, n := range m.names {
		if n != name {
			continue
		}
		if _, ok := m.funcs[id]; ok {
			return id, true
		}
	}
	return 0, false
}

func (l *loader) checkID(id uint32, offset int) error {
	if id == 0 || id >= l.m.bound {
		return vmErrorf(CodeMalformed, 0, "id %%%d at word %d outside bound %d", id, offset, l.m.bound)
	}
	return nil
}

func (l *loader) typeOf(id uint32, offset int) (*Type, error) {
	if err := l.checkID(id, offset); err != nil {
		return nil, err
	}
	t := l.m.types[id]
	if t == nil {
		return nil, vmErrorf(CodeUndefinedID, 0, "type %%%d used at word %d is not declared", id, offset)
	}
	return t, nil
}

func (l *loader) visit(inst spirv.Inst) error {
	ops := inst.Operands
	need := func(n int) error {
		if len(ops) < n {
			return vmErrorf(CodeMalformed, inst.Op, "%d operands at word %d, need %d", len(ops), inst.Offset, n)
		}
		return nil
	}
	if err := need(minOperands(inst.Op)); err != nil {
		return err
	}

	if l.fn != nil {
		return l.visitBody(inst)
	}

	switch inst.Op {
	case spirv.OpName:
		name, _, err := spirv.DecodeString(ops[1:])
		if err != nil {
			return err
		}
		l.m.names[ops[0]] = name
	case spirv.OpExtInstImport:
		name, _, err := spirv.DecodeString(ops[1:])
		if err != nil {
			return err
		}
		l.m.ext[ops[0]] = name
	case spirv.OpEntryPoint:
		name, _, err := spirv.DecodeString(ops[2:])
		if err != nil {
			return err
		}
		l.m.entries[name] = &EntryPoint{Name: name, Model: ops[0], Function: ops[1]}
	case spirv.OpExecutionMode:
		if ops[1] == spirv.ExecutionModeLocalSize {
			if err := need(5); err != nil {
				return err
			}
			l.modes[ops[0]] = [3]uint32{ops[2], ops[3], ops[4]}
		}
	case spirv.OpDecorate:
		l.decos[ops[0]] = append(l.decos[ops[0]], decoration{member: -1, kind: spirv.Decoration(ops[1]), args: ops[2:]})
	case spirv.OpMemberDecorate:
		l.decos[ops[0]] = append(l.decos[ops[0]], decoration{member: int(ops[1]), kind: spirv.Decoration(ops[2]), args: ops[3:]})

	case spirv.OpTypeVoid, spirv.OpTypeBool, spirv.OpTypeInt, spirv.OpTypeFloat, spirv.OpTypeVector,
		spirv.OpTypeArray, spirv.OpTypeRuntimeArray, spirv.OpTypeStruct, spirv.OpTypePointer, spirv.OpTypeFunction:
		return l.declareType(inst)

	case spirv.OpConstantTrue, spirv.OpConstantFalse, spirv.OpConstant, spirv.OpConstantComposite,
		spirv.OpConstantNull, spirv.OpUndef:
		return l.declareConst(inst)

	case spirv.OpVariable:
		return l.declareGlobal(inst)

	case spirv.OpFunction:
		if err := l.checkID(ops[1], inst.Offset); err != nil {
			return err
		}
		ft, err := l.typeOf(ops[3], inst.Offset)
		if err != nil {
			return err
		}
		if ft.Kind != KindFunction {
			return vmErrorf(CodeMalformed, inst.Op, "%%%d is not a function type", ops[3])
		}
		l.fn = &function{id: ops[1], ret: ft.Ret, types: ft.Params, blocks: make(map[uint32]*block)}
		l.m.kinds[ops[1]] = slotGlobal

	case spirv.OpTypeMatrix:
		return vmErrorf(CodeUnsupported, inst.Op, "matrices are not interpreted")
	}
	return nil
}

func minOperands(op spirv.Op) int {
	switch op {
	case spirv.OpName, spirv.OpExtInstImport, spirv.OpDecorate, spirv.OpExecutionMode,
		spirv.OpTypeFloat, spirv.OpTypeRuntimeArray, spirv.OpTypeFunction, spirv.OpUndef,
		spirv.OpConstantTrue, spirv.OpConstantFalse, spirv.OpConstantNull, spirv.OpStore:
		return 2
	case spirv.OpEntryPoint, spirv.OpMemberDecorate, spirv.OpTypeInt, spirv.OpTypeVector,
		spirv.OpTypeArray, spirv.OpTypePointer, spirv.OpVariable, spirv.OpConstant, spirv.OpLoad,
		spirv.OpBranchConditional, spirv.OpFunctionCall, spirv.OpAccessChain, spirv.OpInBoundsAccessChain,
		spirv.OpCompositeExtract, spirv.OpConvertFToS, spirv.OpConvertSToF, spirv.OpConvertUToF,
		spirv.OpUConvert, spirv.OpSConvert, spirv.OpFConvert, spirv.OpBitcast, spirv.OpSNegate,
		spirv.OpFNegate, spirv.OpNot, spirv.OpLogicalNot:
		return 3
	case spirv.OpFunction, spirv.OpExtInst:
		return 4
	case spirv.OpSelect:
		return 5
	case spirv.OpTypeVoid, spirv.OpTypeBool, spirv.OpTypeStruct, spirv.OpLabel, spirv.OpBranch,
		spirv.OpReturnValue:
		return 1
	}
	return 0
}

func (l *loader) declareType(inst spirv.Inst) error {
	ops := inst.Operands
	id := ops[0]
	if err := l.checkID(id, inst.Offset); err != nil {
		return err
	}
	t := &Type{ID: id}
	switch inst.Op {
	case spirv.OpTypeVoid:
		t.Kind = KindVoid
	case spirv.OpTypeBool:
		t.Kind = KindBool
	case spirv.OpTypeInt:
		t.Kind, t.Width, t.Signed = KindInt, ops[1], ops[2] != 0
		if t.Width != 32 && t.Width != 64 {
			return vmErrorf(CodeUnsupported, inst.Op, "%d-bit integers", t.Width)
		}
	case spirv.OpTypeFloat:
		t.Kind, t.Width = KindFloat, ops[1]
		if t.Width != 32 && t.Width != 64 {
			return vmErrorf(CodeUnsupported, inst.Op, "%d-bit floats", t.Width)
		}
	case spirv.OpTypeVector, spirv.OpTypeArray, spirv.OpTypeRuntimeArray:
		elem, err := l.typeOf(ops[1], inst.Offset)
		if err != nil {
			return err
		}
		t.Elem = elem
		switch inst.Op {
		case spirv.OpTypeVector:
			t.Kind, t.Count = KindVector, int(ops[2])
		case spirv.OpTypeArray:
			n, ok := l.m.consts[ops[2]], l.m.kinds[ops[2]] == slotConst
			if !ok || n.T.Kind != KindInt {
				return vmErrorf(CodeMalformed, inst.Op, "array length %%%d is not an integer constant", ops[2])
			}
			t.Kind, t.Count = KindArray, int(n.Bits)
		default:
			t.Kind = KindRuntimeArray
		}
		for _, d := range l.decos[id] {
			if d.kind == spirv.DecorationArrayStride && len(d.args) > 0 {
				t.Stride = int(d.args[0])
			}
		}
	case spirv.OpTypeStruct:
		t.Kind = KindStruct
		offset := 0
		for _, mid := range ops[1:] {
			mt, err := l.typeOf(mid, inst.Offset)
			if err != nil {
				return err
			}
			t.Members = append(t.Members, mt)
			t.Offsets = append(t.Offsets, offset)
			offset += mt.Size()
		}
		for _, d := range l.decos[id] {
			if d.kind == spirv.DecorationOffset && d.member >= 0 && d.member < len(t.Offsets) && len(d.args) > 0 {
				t.Offsets[d.member] = int(d.args[0])
			}
		}
	case spirv.OpTypePointer:
		elem, err := l.typeOf(ops[2], inst.Offset)
		if err != nil {
			return err
		}
		t.Kind, t.Class, t.Elem = KindPointer, spirv.StorageClass(ops[1]), elem
	case spirv.OpTypeFunction:
		ret, err := l.typeOf(ops[1], inst.Offset)
		if err != nil {
			return err
		}
		t.Kind, t.Ret = KindFunction, ret
		for _, p := range ops[2:] {
			pt, err := l.typeOf(p, inst.Offset)
			if err != nil {
				return err
			}
			t.Params = append(t.Params, pt)
		}
	}
	l.m.types[id] = t
	return nil
}

func (l *loader) declareConst(inst spirv.Inst) error {
	ops := inst.Operands
	t, err := l.typeOf(ops[0], inst.Offset)
	if err != nil {
		return err
	}
	id := ops[1]
	if err := l.checkID(id, inst.Offset); err != nil {
		return err
	}
	var v Value
	switch inst.Op {
	case spirv.OpConstantTrue:
		v = Value{T: t, Bits: 1}
	case spirv.OpConstantFalse, spirv.OpConstantNull, spirv.OpUndef:
		v = zero(t)
	case spirv.OpConstant:
		if !t.scalar() {
			return vmErrorf(CodeMalformed, inst.Op, "constant of non-scalar %s", t)
		}
		v = Value{T: t, Bits: uint64(ops[2])}
		if t.Width == 64 {
			if len(ops) < 4 {
				return vmErrorf(CodeMalformed, inst.Op, "64-bit constant %%%d needs two words", id)
			}
			v.Bits |= uint64(ops[3]) << 32
		}
	case spirv.OpConstantComposite:
		v = Value{T: t, Elems: make([]Value, 0, len(ops)-2)}
		for _, c := range ops[2:] {
			if c >= l.m.bound || l.m.kinds[c] != slotConst {
				return vmErrorf(CodeUndefinedID, inst.Op, "constituent %%%d is not a constant", c)
			}
			v.Elems = append(v.Elems, l.m.consts[c])
		}
	}
	l.m.consts[id] = v
	l.m.kinds[id] = slotConst
	return nil
}

func (l *loader) declareGlobal(inst spirv.Inst) error {
	ops := inst.Operands
	pt, err := l.typeOf(ops[0], inst.Offset)
	if err != nil {
		return err
	}
	if pt.Kind != KindPointer {
		return vmErrorf(CodeMalformed, inst.Op, "variable type %s is not a pointer", pt)
	}
	id := ops[1]
	if err := l.checkID(id, inst.Offset); err != nil {
		return err
	}
	g := global{id: id, ptr: pt, class: spirv.StorageClass(ops[2])}
	if len(ops) > 3 {
		g.init = ops[3]
	}
	for _, d := range l.decos[id] {
		if len(d.args) == 0 {
			continue
		}
		switch d.kind {
		case spirv.DecorationBuiltIn:
			g.builtin, g.isBuiltin = d.args[0], true
		case spirv.DecorationBinding:
			g.binding, g.hasBinding = d.args[0], true
		case spirv.DecorationDescriptorSet:
			g.set = d.args[0]
		}
	}
	l.m.globals = append(l.m.globals, g)
	l.m.kinds[id] = slotGlobal
	return nil
}

func (l *loader) visitBody(inst spirv.Inst) error {
	ops := inst.Operands
	fn := l.fn
	switch inst.Op {
	case spirv.OpFunctionParameter:
		if l.blk != nil || len(fn.params) >= len(fn.types) {
			return vmErrorf(CodeMalformed, inst.Op, "unexpected parameter at word %d", inst.Offset)
		}
		if err := need2(inst); err != nil {
			return err
		}
		if err := l.checkID(ops[1], inst.Offset); err != nil {
			return err
		}
		fn.params = append(fn.params, ops[1])
		l.m.kinds[ops[1]] = slotLocal
		return nil
	case spirv.OpFunctionEnd:
		if len(fn.params) != len(fn.types) {
			return vmErrorf(CodeMalformed, inst.Op, "function %%%d declares %d parameters, type has %d", fn.id, len(fn.params), len(fn.types))
		}
		if fn.entry == 0 {
			return vmErrorf(CodeMalformed, inst.Op, "function %%%d has no body", fn.id)
		}
		l.m.funcs[fn.id] = fn
		l.fn, l.blk = nil, nil
		return nil
	case spirv.OpLabel:
		if err := l.checkID(ops[0], inst.Offset); err != nil {
			return err
		}
		l.blk = &block{label: ops[0]}
		fn.blocks[ops[0]] = l.blk
		if fn.entry == 0 {
			fn.entry = ops[0]
		}
		return nil
	case spirv.OpLine, spirv.OpNoLine, spirv.OpNop, spirv.OpSelectionMerge, spirv.OpLoopMerge:
		return nil
	case spirv.OpFunction:
		return vmErrorf(CodeMalformed, inst.Op, "nested function at word %d", inst.Offset)
	}
	if l.blk == nil {
		return vmErrorf(CodeMalformed, inst.Op, "instruction outside a block at word %d", inst.Offset)
	}
	in := instr{op: inst.Op, offset: inst.Offset, bin: binaryOp(inst.Op), un: unaryOp(inst.Op)}
	args := ops
	if tid, ok := spirv.ResultType(inst); ok {
		t, err := l.typeOf(tid, inst.Offset)
		if err != nil {
			return err
		}
		in.typ = t
		args = args[1:]
	}
	if id, ok := spirv.ResultID(inst); ok {
		if err := l.checkID(id, inst.Offset); err != nil {
			return err
		}
		in.id = id
		l.m.kinds[id] = slotLocal
		args = args[1:]
	}
	in.args = append([]uint32(nil), args...)
	l.blk.instrs = append(l.blk.instrs, in)
	return nil
}

func need2(inst spirv.Inst) error {
	if len(inst.Operands) < 2 {
		return vmErrorf(CodeMalformed, inst.Op, "missing result at word %d", inst.Offset)
	}
	return nil
}

func float32Bits(f float32) uint64 { return uint64(math.Float32bits(f)) }
