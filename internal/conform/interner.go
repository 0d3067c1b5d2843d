package conform

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"rorsk/internal/spirv"
)

// Interner hands out one id per canonical declaration key. New declarations
// go to the type-section cursor; capabilities go right after the header and
// extended instruction imports right before OpMemoryModel.
//
// Like bufio.Writer, the first insertion failure sticks: later calls return 0
// and Err reports the failure.
type Interner struct {
	buf      *spirv.Buffer
	ids      map[string]uint32
	keys     map[uint32]string // reverse index, for type checks on existing ids
	inserted int               // declarations this run added
	err      error
}

// NewInterner returns an interner bound to buf for one transform run.
func NewInterner(buf *spirv.Buffer) *Interner {
	return &Interner{
		buf:  buf,
		ids:  make(map[string]uint32),
		keys: make(map[uint32]string),
	}
}

// Err returns the first insertion failure.
func (in *Interner) Err() error { return in.err }

// Inserted is the number of declarations added by this interner.
func (in *Interner) Inserted() int { return in.inserted }

// Lookup returns the id already bound to key.
func (in *Interner) Lookup(key string) (uint32, bool) {
	id, ok := in.ids[key]
	return id, ok
}

// KeyOf returns the canonical key of a declared id, or "" when unknown.
func (in *Interner) KeyOf(id uint32) string { return in.keys[id] }

func (in *Interner) bind(key string, id uint32) {
	if _, exists := in.ids[key]; exists {
		return
	}
	in.ids[key] = id
	if id != 0 {
		in.keys[id] = key
	}
}

// declare inserts the words built by mk(id) at the offset reported by at,
// unless key is already bound.
func (in *Interner) declare(key string, at func() (int, error), mk func(id uint32) []uint32) uint32 {
	if id, ok := in.ids[key]; ok {
		return id
	}
	if in.err != nil {
		return 0
	}
	pos, err := at()
	if err != nil {
		in.err = wrapMalformed(err)
		return 0
	}
	id := in.buf.NewID()
	if err := in.buf.InsertWords(pos, mk(id)...); err != nil {
		in.err = wrapMalformed(err)
		return 0
	}
	in.inserted++
	in.bind(key, id)
	return id
}

func (in *Interner) typeCursor() (int, error) {
	return in.buf.MustCursor(spirv.CursorTypes)
}

func (in *Interner) declareType(key string, op spirv.Op, operands ...uint32) uint32 {
	return in.declare(key, in.typeCursor, func(id uint32) []uint32 {
		return spirv.Instr(op, append([]uint32{id}, operands...)...)
	})
}

// Capability declares c once, directly after the header.
func (in *Interner) Capability(c spirv.Capability) {
	key := capKey(uint32(c))
	if _, ok := in.ids[key]; ok || in.err != nil {
		return
	}
	if err := in.buf.InsertWords(spirv.HeaderWords, spirv.Instr(spirv.OpCapability, uint32(c))...); err != nil {
		in.err = wrapMalformed(err)
		return
	}
	in.inserted++
	in.bind(key, 0)
}

// ExtInstImport imports an extended instruction set, before OpMemoryModel.
func (in *Interner) ExtInstImport(name string) uint32 {
	at := func() (int, error) {
		pos, ok := in.buf.Cursor(spirv.CursorMemoryModel)
		if !ok {
			return 0, Malformedf(-1, "module has no OpMemoryModel to import %s before", name)
		}
		return pos, nil
	}
	return in.declare("ext:"+name, at, func(id uint32) []uint32 {
		return spirv.Instr(spirv.OpExtInstImport, append([]uint32{id}, spirv.EncodeString(name)...)...)
	})
}

func (in *Interner) VoidType() uint32 { return in.declareType("void", spirv.OpTypeVoid) }
func (in *Interner) BoolType() uint32 { return in.declareType("bool", spirv.OpTypeBool) }

// IntType declares an integer type. 64-bit integers need the Int64 capability.
func (in *Interner) IntType(width uint32, signed bool) uint32 {
	key := intKey(width, signed)
	if _, ok := in.ids[key]; !ok && width == 64 {
		in.Capability(spirv.CapabilityInt64)
	}
	return in.declareType(key, spirv.OpTypeInt, width, boolWord(signed))
}

// FloatType declares a float type. 64-bit floats need the Float64 capability.
func (in *Interner) FloatType(width uint32) uint32 {
	key := floatKey(width)
	if _, ok := in.ids[key]; !ok && width == 64 {
		in.Capability(spirv.CapabilityFloat64)
	}
	return in.declareType(key, spirv.OpTypeFloat, width)
}

func (in *Interner) PointerType(pointee uint32, class spirv.StorageClass) uint32 {
	return in.declareType(ptrKey(uint32(class), pointee), spirv.OpTypePointer, uint32(class), pointee)
}

func (in *Interner) FunctionType(ret uint32, params ...uint32) uint32 {
	return in.declareType(fnKey(ret, params), spirv.OpTypeFunction, append([]uint32{ret}, params...)...)
}

// ConstInt declares an integer constant; 64-bit values take two literal words.
func (in *Interner) ConstInt(width uint32, signed bool, value int64) uint32 {
	typ := in.IntType(width, signed)
	return in.constant(typ, literalWords(width, uint64(value)))
}

// ConstFloat declares a float constant of the given width.
func (in *Interner) ConstFloat(width uint32, value float64) uint32 {
	typ := in.FloatType(width)
	var bits uint64
	if width == 64 {
		bits = math.Float64bits(value)
	} else {
		bits = uint64(math.Float32bits(float32(value)))
	}
	return in.constant(typ, literalWords(width, bits))
}

func (in *Interner) constant(typ uint32, literal []uint32) uint32 {
	if in.err != nil {
		return 0
	}
	key := constKey(typ, literal)
	return in.declare(key, in.typeCursor, func(id uint32) []uint32 {
		return spirv.Instr(spirv.OpConstant, append([]uint32{typ, id}, literal...)...)
	})
}

// Register records a declaration already present in the input module, so
// later requests for the same key reuse it instead of duplicating it.
func (in *Interner) Register(inst spirv.Inst) error {
	ops := inst.Operands
	need := func(n int) error {
		if len(ops) < n {
			return Malformedf(inst.Offset, "%s has %d operands, need %d", inst.Op, len(ops), n)
		}
		return nil
	}
	switch inst.Op {
	case spirv.OpCapability:
		if err := need(1); err != nil {
			return err
		}
		in.bind(capKey(ops[0]), 0)
	case spirv.OpExtInstImport:
		if err := need(2); err != nil {
			return err
		}
		name, _, err := spirv.DecodeString(ops[1:])
		if err != nil {
			return wrapMalformed(err)
		}
		in.bind("ext:"+name, ops[0])
	case spirv.OpTypeVoid:
		if err := need(1); err != nil {
			return err
		}
		in.bind("void", ops[0])
	case spirv.OpTypeBool:
		if err := need(1); err != nil {
			return err
		}
		in.bind("bool", ops[0])
	case spirv.OpTypeInt:
		if err := need(3); err != nil {
			return err
		}
		in.bind(intKey(ops[1], ops[2] != 0), ops[0])
	case spirv.OpTypeFloat:
		if err := need(2); err != nil {
			return err
		}
		in.bind(floatKey(ops[1]), ops[0])
	case spirv.OpTypePointer:
		if err := need(3); err != nil {
			return err
		}
		in.bind(ptrKey(ops[1], ops[2]), ops[0])
	case spirv.OpTypeFunction:
		if err := need(2); err != nil {
			return err
		}
		in.bind(fnKey(ops[1], ops[2:]), ops[0])
	case spirv.OpConstant:
		if err := need(3); err != nil {
			return err
		}
		in.bind(constKey(ops[0], ops[2:]), ops[1])
	}
	return nil
}

func boolWord(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}

func literalWords(width uint32, bits uint64) []uint32 {
	if width == 64 {
		return []uint32{uint32(bits), uint32(bits >> 32)}
	}
	return []uint32{uint32(bits)}
}

func capKey(c uint32) string { return "cap:" + strconv.FormatUint(uint64(c), 10) }

func intKey(width uint32, signed bool) string {
	return fmt.Sprintf("int:%d:%d", width, boolWord(signed))
}

func floatKey(width uint32) string { return fmt.Sprintf("float:%d", width) }

func ptrKey(class, pointee uint32) string { return fmt.Sprintf("ptr:%d:%d", class, pointee) }

func fnKey(ret uint32, params []uint32) string {
	return fmt.Sprintf("fn:%d:%s", ret, joinWords(params))
}

func constKey(typ uint32, literal []uint32) string {
	return fmt.Sprintf("const:%d:%s", typ, joinWords(literal))
}

func joinWords(ws []uint32) string {
	parts := make([]string, len(ws))
	for i, w := range ws {
		parts[i] = strconv.FormatUint(uint64(w), 16)
	}
	return strings.Join(parts, ",")
}
