package spirv

import "math"

type section uint8

const (
	secCapabilities section = iota
	secExtensions
	secExtInstImports
	secMemoryModel
	secEntryPoints
	secExecutionModes
	secDebug
	secAnnotations
	secGlobals // types, constants and module-scope variables, in dependency order
	secFunctions
	sectionCount
)

// Builder assembles a module section by section, so callers may add
// declarations in any order and still get the layout the format requires.
type Builder struct {
	sections [sectionCount][]uint32
	nextID   uint32
}

// NewBuilder returns an empty builder; ids start at 1.
func NewBuilder() *Builder {
	return &Builder{nextID: 1}
}

// ID allocates a fresh identifier.
func (b *Builder) ID() uint32 {
	id := b.nextID
	b.nextID++
	return id
}

func (b *Builder) add(s section, op Op, operands ...uint32) {
	b.sections[s] = append(b.sections[s], Instr(op, operands...)...)
}

func (b *Builder) Capability(c Capability) {
	b.add(secCapabilities, OpCapability, uint32(c))
}

func (b *Builder) Extension(name string) {
	b.add(secExtensions, OpExtension, EncodeString(name)...)
}

func (b *Builder) ExtInstImport(name string) uint32 {
	id := b.ID()
	b.add(secExtInstImports, OpExtInstImport, append([]uint32{id}, EncodeString(name)...)...)
	return id
}

// MemoryModel replaces any previously set memory model.
func (b *Builder) MemoryModel(addressing, memory uint32) {
	b.sections[secMemoryModel] = Instr(OpMemoryModel, addressing, memory)
}

func (b *Builder) EntryPoint(model, fn uint32, name string, interfaces ...uint32) {
	ops := []uint32{model, fn}
	ops = append(ops, EncodeString(name)...)
	ops = append(ops, interfaces...)
	b.add(secEntryPoints, OpEntryPoint, ops...)
}

func (b *Builder) ExecutionMode(fn, mode uint32, params ...uint32) {
	b.add(secExecutionModes, OpExecutionMode, append([]uint32{fn, mode}, params...)...)
}

func (b *Builder) Name(id uint32, name string) {
	b.add(secDebug, OpName, append([]uint32{id}, EncodeString(name)...)...)
}

func (b *Builder) Decorate(id uint32, d Decoration, params ...uint32) {
	b.add(secAnnotations, OpDecorate, append([]uint32{id, uint32(d)}, params...)...)
}

func (b *Builder) MemberDecorate(structID, member uint32, d Decoration, params ...uint32) {
	b.add(secAnnotations, OpMemberDecorate, append([]uint32{structID, member, uint32(d)}, params...)...)
}

func (b *Builder) global(op Op, operands ...uint32) uint32 {
	id := b.ID()
	b.add(secGlobals, op, append([]uint32{id}, operands...)...)
	return id
}

func (b *Builder) TypeVoid() uint32 { return b.global(OpTypeVoid) }
func (b *Builder) TypeBool() uint32 { return b.global(OpTypeBool) }
func (b *Builder) TypeFloat(width uint32) uint32 {
	return b.global(OpTypeFloat, width)
}

func (b *Builder) TypeInt(width uint32, signed bool) uint32 {
	var s uint32
	if signed {
		s = 1
	}
	return b.global(OpTypeInt, width, s)
}

func (b *Builder) TypeVector(component, count uint32) uint32 {
	return b.global(OpTypeVector, component, count)
}

func (b *Builder) TypeRuntimeArray(elem uint32) uint32 {
	return b.global(OpTypeRuntimeArray, elem)
}

func (b *Builder) TypeStruct(members ...uint32) uint32 {
	return b.global(OpTypeStruct, members...)
}

func (b *Builder) TypePointer(class StorageClass, pointee uint32) uint32 {
	return b.global(OpTypePointer, uint32(class), pointee)
}

func (b *Builder) TypeFunction(ret uint32, params ...uint32) uint32 {
	return b.global(OpTypeFunction, append([]uint32{ret}, params...)...)
}

// Constant declares a scalar constant from its literal words.
func (b *Builder) Constant(typ uint32, literal ...uint32) uint32 {
	id := b.ID()
	b.add(secGlobals, OpConstant, append([]uint32{typ, id}, literal...)...)
	return id
}

func (b *Builder) ConstantFloat32(typ uint32, v float32) uint32 {
	return b.Constant(typ, math.Float32bits(v))
}

func (b *Builder) Variable(ptrType uint32, class StorageClass) uint32 {
	id := b.ID()
	b.add(secGlobals, OpVariable, ptrType, id, uint32(class))
	return id
}

// Op appends an instruction without a result to the function section.
func (b *Builder) Op(op Op, operands ...uint32) {
	b.add(secFunctions, op, operands...)
}

// Result appends an instruction with a result type and returns its new id.
func (b *Builder) Result(op Op, typ uint32, operands ...uint32) uint32 {
	id := b.ID()
	b.add(secFunctions, op, append([]uint32{typ, id}, operands...)...)
	return id
}

// Label opens a block with a fresh id.
func (b *Builder) Label() uint32 {
	id := b.ID()
	b.LabelID(id)
	return id
}

// LabelID opens a block whose id was allocated earlier (forward branch targets).
func (b *Builder) LabelID(id uint32) {
	b.add(secFunctions, OpLabel, id)
}

// Words lays the sections out behind a header with a tight bound.
func (b *Builder) Words() []uint32 {
	out := []uint32{Magic, Version10, GeneratorID, b.nextID, 0}
	for _, s := range b.sections {
		out = append(out, s...)
	}
	return out
}

func (b *Builder) Bytes() []byte {
	return Encode(b.Words())
}
