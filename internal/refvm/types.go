package refvm

import (
	"fmt"

	"rorsk/internal/spirv"
)

// TypeKind classifies a SPIR-V type.
type TypeKind uint8

const (
	KindVoid TypeKind = iota
	KindBool
	KindInt
	KindFloat
	KindVector
	KindArray
	KindRuntimeArray
	KindStruct
	KindPointer
	KindFunction
)

// Type is a resolved SPIR-V type. Layout fields (Offsets, Stride) come from
// Offset and ArrayStride decorations and only matter for buffer memory.
type Type struct {
	ID      uint32
	Kind    TypeKind
	Width   uint32 // bits, for Int and Float
	Signed  bool
	Elem    *Type // Vector, Array, RuntimeArray, Pointer pointee
	Count   int   // Vector and Array length
	Members []*Type
	Offsets []int
	Stride  int
	Class   spirv.StorageClass // Pointer
	Ret     *Type              // Function
	Params  []*Type
}

func (t *Type) String() string {
	if t == nil {
		return "<nil>"
	}
	switch t.Kind {
	case KindVoid:
		return "void"
	case KindBool:
		return "bool"
	case KindInt:
		if t.Signed {
			return fmt.Sprintf("i%d", t.Width)
		}
		return fmt.Sprintf("u%d", t.Width)
	case KindFloat:
		return fmt.Sprintf("f%d", t.Width)
	case KindVector:
		return fmt.Sprintf("vec%d<%s>", t.Count, t.Elem)
	case KindArray:
		return fmt.Sprintf("[%d]%s", t.Count, t.Elem)
	case KindRuntimeArray:
		return fmt.Sprintf("[]%s", t.Elem)
	case KindStruct:
		return fmt.Sprintf("struct%%%d", t.ID)
	case KindPointer:
		return fmt.Sprintf("*%s", t.Elem)
	case KindFunction:
		return fmt.Sprintf("fn%%%d", t.ID)
	}
	return "?"
}

// Size is the number of bytes the type occupies in buffer memory. Runtime
// arrays have no static size and report 0.
func (t *Type) Size() int {
	switch t.Kind {
	case KindBool:
		return 4
	case KindInt, KindFloat:
		return int(t.Width / 8)
	case KindVector:
		return t.Count * t.Elem.Size()
	case KindArray:
		return t.Count * t.stride()
	case KindStruct:
		size := 0
		for i, m := range t.Members {
			if end := t.Offsets[i] + m.Size(); end > size {
				size = end
			}
		}
		return size
	}
	return 0
}

func (t *Type) stride() int {
	if t.Stride > 0 {
		return t.Stride
	}
	return t.Elem.Size()
}

func (t *Type) scalar() bool {
	return t.Kind == KindBool || t.Kind == KindInt || t.Kind == KindFloat
}

// component returns the scalar type of a scalar or vector.
func (t *Type) component() *Type {
	if t.Kind == KindVector {
		return t.Elem
	}
	return t
}
