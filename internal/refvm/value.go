package refvm

import (
	"encoding/binary"
	"math"
)

// Value is a runtime value. Scalars keep their bits zero-extended in Bits
// (floats as IEEE bits, bools as 0 or 1); composites keep their components in
// Elems; pointers set Ptr.
type Value struct {
	T     *Type
	Bits  uint64
	Elems []Value
	Ptr   *Pointer
}

// Pointer addresses either a logical cell (function locals, private and input
// variables) or a byte range of a bound buffer.
type Pointer struct {
	Type *Type // pointee

	Cell *Value
	Path []int

	Mem    []byte
	Offset int
}

// Int returns a signed 32-bit integer value.
func Int(v int32) Value {
	return Value{T: &Type{Kind: KindInt, Width: 32, Signed: true}, Bits: uint64(uint32(v))}
}

// Int64 returns a signed 64-bit integer value.
func Int64(v int64) Value {
	return Value{T: &Type{Kind: KindInt, Width: 64, Signed: true}, Bits: uint64(v)}
}

// Float returns a 32-bit float value.
func Float(f float32) Value {
	return Value{T: &Type{Kind: KindFloat, Width: 32}, Bits: uint64(math.Float32bits(f))}
}

// Ref returns a pointer to a fresh cell holding v, as passed to a function
// parameter of pointer type.
func Ref(v Value) Value {
	cell := v
	pt := &Type{Kind: KindPointer, Elem: v.T}
	return Value{T: pt, Ptr: &Pointer{Type: v.T, Cell: &cell}}
}

// Int32 interprets a scalar integer as signed 32-bit.
func (v Value) Int32() int32 { return int32(uint32(v.Bits)) }

// Float32 interprets a scalar as float32.
func (v Value) Float32() float32 { return math.Float32frombits(uint32(v.Bits)) }

// Bool reports a bool scalar.
func (v Value) Bool() bool { return v.Bits != 0 }

// zero builds the zero value of t, allocating composite components.
func zero(t *Type) Value {
	v := Value{T: t}
	switch t.Kind {
	case KindVector, KindArray:
		v.Elems = make([]Value, t.Count)
		for i := range v.Elems {
			v.Elems[i] = zero(t.Elem)
		}
	case KindStruct:
		v.Elems = make([]Value, len(t.Members))
		for i, m := range t.Members {
			v.Elems[i] = zero(m)
		}
	}
	return v
}

// clone deep-copies composite storage so stores through one copy never show
// through another.
func (v Value) clone() Value {
	if v.Elems == nil {
		return v
	}
	out := v
	out.Elems = make([]Value, len(v.Elems))
	for i, e := range v.Elems {
		out.Elems[i] = e.clone()
	}
	return out
}

func (p *Pointer) cell() (*Value, error) {
	v := p.Cell
	for _, idx := range p.Path {
		if idx < 0 || idx >= len(v.Elems) {
			return nil, vmErrorf(CodeOutOfBounds, 0, "index %d outside %s", idx, v.T)
		}
		v = &v.Elems[idx]
	}
	return v, nil
}

func (p *Pointer) load() (Value, error) {
	if p.Mem != nil {
		return loadMem(p.Mem, p.Offset, p.Type)
	}
	c, err := p.cell()
	if err != nil {
		return Value{}, err
	}
	return c.clone(), nil
}

func (p *Pointer) store(v Value) error {
	if p.Mem != nil {
		return storeMem(p.Mem, p.Offset, p.Type, v)
	}
	c, err := p.cell()
	if err != nil {
		return err
	}
	*c = v.clone()
	return nil
}

// index returns a pointer to component idx of the pointee.
func (p *Pointer) index(idx int) (*Pointer, error) {
	t := p.Type
	var elem *Type
	off := 0
	switch t.Kind {
	case KindStruct:
		if idx < 0 || idx >= len(t.Members) {
			return nil, vmErrorf(CodeOutOfBounds, 0, "member %d outside %s", idx, t)
		}
		elem, off = t.Members[idx], t.Offsets[idx]
	case KindVector, KindArray:
		if idx < 0 || idx >= t.Count {
			return nil, vmErrorf(CodeOutOfBounds, 0, "index %d outside %s", idx, t)
		}
		elem = t.Elem
		if t.Kind == KindArray {
			off = idx * t.stride()
		} else {
			off = idx * t.Elem.Size()
		}
	case KindRuntimeArray:
		if idx < 0 {
			return nil, vmErrorf(CodeOutOfBounds, 0, "index %d outside %s", idx, t)
		}
		elem, off = t.Elem, idx*t.stride()
	default:
		return nil, vmErrorf(CodeTypeMismatch, 0, "cannot index into %s", t)
	}
	if p.Mem != nil {
		return &Pointer{Type: elem, Mem: p.Mem, Offset: p.Offset + off}, nil
	}
	path := make([]int, len(p.Path), len(p.Path)+1)
	copy(path, p.Path)
	return &Pointer{Type: elem, Cell: p.Cell, Path: append(path, idx)}, nil
}

func checkRange(mem []byte, off, n int, t *Type) error {
	if off < 0 || off+n > len(mem) {
		return vmErrorf(CodeOutOfBounds, 0, "%s at byte %d outside buffer of %d bytes", t, off, len(mem))
	}
	return nil
}

func loadMem(mem []byte, off int, t *Type) (Value, error) {
	switch t.Kind {
	case KindBool, KindInt, KindFloat:
		n := t.Size()
		if err := checkRange(mem, off, n, t); err != nil {
			return Value{}, err
		}
		v := Value{T: t}
		if n == 8 {
			v.Bits = binary.LittleEndian.Uint64(mem[off:])
		} else {
			v.Bits = uint64(binary.LittleEndian.Uint32(mem[off:]))
		}
		if t.Kind == KindBool && v.Bits != 0 {
			v.Bits = 1
		}
		return v, nil
	case KindVector, KindArray, KindStruct:
		v := Value{T: t}
		n := t.Count
		if t.Kind == KindStruct {
			n = len(t.Members)
		}
		v.Elems = make([]Value, n)
		p := &Pointer{Type: t, Mem: mem, Offset: off}
		for i := range n {
			q, err := p.index(i)
			if err != nil {
				return Value{}, err
			}
			if v.Elems[i], err = loadMem(mem, q.Offset, q.Type); err != nil {
				return Value{}, err
			}
		}
		return v, nil
	}
	return Value{}, vmErrorf(CodeUnsupported, 0, "load of %s from buffer memory", t)
}

func storeMem(mem []byte, off int, t *Type, v Value) error {
	switch t.Kind {
	case KindBool, KindInt, KindFloat:
		n := t.Size()
		if err := checkRange(mem, off, n, t); err != nil {
			return err
		}
		if n == 8 {
			binary.LittleEndian.PutUint64(mem[off:], v.Bits)
		} else {
			binary.LittleEndian.PutUint32(mem[off:], uint32(v.Bits))
		}
		return nil
	case KindVector, KindArray, KindStruct:
		p := &Pointer{Type: t, Mem: mem, Offset: off}
		for i := range v.Elems {
			q, err := p.index(i)
			if err != nil {
				return err
			}
			if err := storeMem(mem, q.Offset, q.Type, v.Elems[i]); err != nil {
				return err
			}
		}
		return nil
	}
	return vmErrorf(CodeUnsupported, 0, "store of %s to buffer memory", t)
}
