package kernel

import (
	"context"
	"regexp"

	"rorsk/internal/conform"
	"rorsk/internal/spirv"
)

var binaryExpr = regexp.MustCompile(`^\s*r\s*=\s*a\s*([-+*/])\s*b\s*;?\s*$`)

// Assembler builds kernels directly with spirv.Builder. It understands only
// expressions of the form "r = a <op> b;" with op one of + - * /.
type Assembler struct{}

func (Assembler) Name() string { return "builtin" }

// Compile assembles t. The module has the shape glslangValidator emits for
// the same source: a Uniform BufferBlock runtime array at set 0 binding 0 and
// gl_GlobalInvocationID as an Input builtin.
func (Assembler) Compile(ctx context.Context, t Template) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m := binaryExpr.FindStringSubmatch(t.Expression)
	if m == nil {
		return nil, conform.Unsupportedf(-1, 0, "builtin compiler cannot assemble %q; use the glslang compiler", t.Expression)
	}
	op := arithOp(t.Elem, m[1])
	return assemble(t, op), nil
}

func arithOp(elem ElemType, sym string) spirv.Op {
	float := elem == Float32
	switch sym {
	case "+":
		if float {
			return spirv.OpFAdd
		}
		return spirv.OpIAdd
	case "-":
		if float {
			return spirv.OpFSub
		}
		return spirv.OpISub
	case "*":
		if float {
			return spirv.OpFMul
		}
		return spirv.OpIMul
	default:
		if float {
			return spirv.OpFDiv
		}
		return spirv.OpSDiv
	}
}

func assemble(t Template, op spirv.Op) []byte {
	b := spirv.NewBuilder()
	b.Capability(spirv.CapabilityShader)
	b.MemoryModel(spirv.AddressingLogical, spirv.MemoryModelGLSL450)

	void := b.TypeVoid()
	fnType := b.TypeFunction(void)
	uintT := b.TypeInt(32, false)
	uvec3 := b.TypeVector(uintT, 3)
	inputPtr := b.TypePointer(spirv.StorageInput, uvec3)

	var elem uint32
	if t.Elem == Int32 {
		elem = b.TypeInt(32, true)
	} else {
		elem = b.TypeFloat(32)
	}
	rta := b.TypeRuntimeArray(elem)
	block := b.TypeStruct(rta)
	blockPtr := b.TypePointer(spirv.StorageUniform, block)
	elemPtr := b.TypePointer(spirv.StorageUniform, elem)
	zero := b.Constant(uintT, 0)
	offset := b.Constant(uintT, t.Offset)

	gid := b.Variable(inputPtr, spirv.StorageInput)
	data := b.Variable(blockPtr, spirv.StorageUniform)

	b.Decorate(gid, spirv.DecorationBuiltIn, spirv.BuiltInGlobalInvocationID)
	b.Decorate(rta, spirv.DecorationArrayStride, 4)
	b.MemberDecorate(block, 0, spirv.DecorationOffset, 0)
	b.Decorate(block, spirv.DecorationBufferBlock)
	b.Decorate(data, spirv.DecorationDescriptorSet, 0)
	b.Decorate(data, spirv.DecorationBinding, 0)

	main := b.Result(spirv.OpFunction, void, spirv.FunctionControlNone, fnType)
	b.EntryPoint(spirv.ExecutionModelGLCompute, main, EntryPoint, gid)
	b.ExecutionMode(main, spirv.ExecutionModeLocalSize, LocalSize, 1, 1)
	b.Name(main, EntryPoint)

	b.Label()
	g := b.Result(spirv.OpLoad, uvec3, gid)
	id := b.Result(spirv.OpCompositeExtract, uintT, g, 0)
	pa := b.Result(spirv.OpAccessChain, elemPtr, data, zero, id)
	a := b.Result(spirv.OpLoad, elem, pa)
	idb := b.Result(spirv.OpIAdd, uintT, id, offset)
	pb := b.Result(spirv.OpAccessChain, elemPtr, data, zero, idb)
	bv := b.Result(spirv.OpLoad, elem, pb)
	r := b.Result(op, elem, a, bv)
	b.Op(spirv.OpStore, pa, r)
	b.Op(spirv.OpReturn)
	b.Op(spirv.OpFunctionEnd)
	return b.Bytes()
}
