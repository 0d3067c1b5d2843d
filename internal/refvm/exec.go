package refvm

import (
	"errors"

	"rorsk/internal/spirv"
)

// DefaultStepLimit bounds the instructions one call or one invocation may
// execute.
const DefaultStepLimit = 1 << 24

// maxDepth bounds the call stack; SPIR-V forbids recursion, so only a broken
// module gets near it.
const maxDepth = 256

// machine runs one invocation at a time. Frames are reused across calls at
// the same depth: every SSA id is defined before it is read, so stale values
// left from an earlier call are never observed.
type machine struct {
	m       *Module
	globals []Value
	frames  [][]Value
	steps   int
	limit   int
}

func newMachine(m *Module, limit int) *machine {
	if limit <= 0 {
		limit = DefaultStepLimit
	}
	return &machine{m: m, globals: make([]Value, m.bound), limit: limit}
}

func (x *machine) get(vals []Value, id uint32) (Value, error) {
	if id < x.m.bound {
		switch x.m.kinds[id] {
		case slotConst:
			return x.m.consts[id], nil
		case slotGlobal:
			return x.globals[id], nil
		case slotLocal:
			return vals[id], nil
		}
	}
	return Value{}, vmErrorf(CodeUndefinedID, 0, "%%%d is not defined", id)
}

func (x *machine) getPtr(vals []Value, id uint32) (*Pointer, error) {
	v, err := x.get(vals, id)
	if err != nil {
		return nil, err
	}
	if v.Ptr == nil {
		return nil, vmErrorf(CodeTypeMismatch, 0, "%%%d is not a pointer", id)
	}
	return v.Ptr, nil
}

// fail decorates err with the instruction and frame it came from.
func fail(err error, fn *function, in *instr) error {
	var vmErr *VMError
	if !errors.As(err, &vmErr) {
		return err
	}
	if vmErr.Op == 0 {
		vmErr.Op = in.op
	}
	return vmErr.push(fn.id, in.offset)
}

func (x *machine) call(fn *function, args []Value, depth int) (Value, error) {
	if depth >= maxDepth {
		return Value{}, vmErrorf(CodeUnsupported, spirv.OpFunctionCall, "call depth exceeds %d", maxDepth)
	}
	if len(args) != len(fn.params) {
		return Value{}, vmErrorf(CodeTypeMismatch, spirv.OpFunctionCall, "function %%%d takes %d arguments, got %d", fn.id, len(fn.params), len(args))
	}
	for len(x.frames) <= depth {
		x.frames = append(x.frames, make([]Value, x.m.bound))
	}
	vals := x.frames[depth]
	for i, p := range fn.params {
		vals[p] = args[i]
	}

	blk := fn.blocks[fn.entry]
	var prev uint32
blocks:
	for {
		start, err := x.phis(blk, prev, vals)
		if err != nil {
			return Value{}, fail(err, fn, &blk.instrs[0])
		}
		for i := start; i < len(blk.instrs); i++ {
			in := &blk.instrs[i]
			x.steps++
			if x.steps > x.limit {
				return Value{}, fail(vmErrorf(CodeStepLimit, 0, "step limit %d exceeded", x.limit), fn, in)
			}
			switch in.op {
			case spirv.OpBranch, spirv.OpBranchConditional:
				target, err := x.branchTarget(in, vals)
				if err != nil {
					return Value{}, fail(err, fn, in)
				}
				next := fn.blocks[target]
				if next == nil {
					return Value{}, fail(vmErrorf(CodeUndefinedID, 0, "branch to unknown block %%%d", target), fn, in)
				}
				prev, blk = blk.label, next
				continue blocks

			case spirv.OpReturn:
				return Value{}, nil

			case spirv.OpReturnValue:
				v, err := x.get(vals, in.args[0])
				if err != nil {
					return Value{}, fail(err, fn, in)
				}
				return v, nil

			case spirv.OpUnreachable:
				return Value{}, fail(vmErrorf(CodeUnreachable, 0, "executed"), fn, in)

			case spirv.OpPhi:
				return Value{}, fail(vmErrorf(CodeMalformed, 0, "OpPhi after the start of block %%%d", blk.label), fn, in)

			case spirv.OpStore:
				if err := x.store(in, vals); err != nil {
					return Value{}, fail(err, fn, in)
				}

			case spirv.OpFunctionCall:
				v, err := x.callInstr(in, vals, depth)
				if err != nil {
					return Value{}, fail(err, fn, in)
				}
				vals[in.id] = v

			case spirv.OpVariable:
				v, err := x.local(in, vals)
				if err != nil {
					return Value{}, fail(err, fn, in)
				}
				vals[in.id] = v

			default:
				v, err := x.eval(in, vals)
				if err != nil {
					return Value{}, fail(err, fn, in)
				}
				vals[in.id] = v
			}
		}
		return Value{}, vmErrorf(CodeUnreachable, 0, "block %%%d has no terminator", blk.label).push(fn.id, -1)
	}
}

// phis evaluates the OpPhi run at the start of blk against the block control
// came from. All phis read their inputs before any of them is written.
func (x *machine) phis(blk *block, prev uint32, vals []Value) (int, error) {
	n := 0
	for n < len(blk.instrs) && blk.instrs[n].op == spirv.OpPhi {
		n++
	}
	if n == 0 {
		return 0, nil
	}
	out := make([]Value, n)
	for i := range n {
		in := &blk.instrs[i]
		found := false
		for j := 0; j+1 < len(in.args); j += 2 {
			if in.args[j+1] != prev {
				continue
			}
			v, err := x.get(vals, in.args[j])
			if err != nil {
				return 0, err
			}
			out[i], found = v, true
			break
		}
		if !found {
			return 0, vmErrorf(CodeMalformed, spirv.OpPhi, "no incoming value from block %%%d", prev)
		}
	}
	for i := range n {
		vals[blk.instrs[i].id] = out[i]
	}
	x.steps += n
	return n, nil
}

func (x *machine) branchTarget(in *instr, vals []Value) (uint32, error) {
	if in.op == spirv.OpBranch {
		return in.args[0], nil
	}
	c, err := x.get(vals, in.args[0])
	if err != nil {
		return 0, err
	}
	if c.T == nil || c.T.Kind != KindBool {
		return 0, vmErrorf(CodeTypeMismatch, 0, "condition is %s, not bool", c.T)
	}
	if c.Bool() {
		return in.args[1], nil
	}
	return in.args[2], nil
}

func (x *machine) store(in *instr, vals []Value) error {
	p, err := x.getPtr(vals, in.args[0])
	if err != nil {
		return err
	}
	v, err := x.get(vals, in.args[1])
	if err != nil {
		return err
	}
	return p.store(v)
}

func (x *machine) callInstr(in *instr, vals []Value, depth int) (Value, error) {
	callee := x.m.funcs[in.args[0]]
	if callee == nil {
		return Value{}, vmErrorf(CodeMissingTarget, 0, "function %%%d is not defined", in.args[0])
	}
	args := make([]Value, len(in.args)-1)
	for i, id := range in.args[1:] {
		v, err := x.get(vals, id)
		if err != nil {
			return Value{}, err
		}
		args[i] = v
	}
	return x.call(callee, args, depth+1)
}

func (x *machine) local(in *instr, vals []Value) (Value, error) {
	if in.typ.Kind != KindPointer {
		return Value{}, vmErrorf(CodeTypeMismatch, 0, "variable of non-pointer type %s", in.typ)
	}
	cell := zero(in.typ.Elem)
	if len(in.args) > 1 {
		init, err := x.get(vals, in.args[1])
		if err != nil {
			return Value{}, err
		}
		cell = init.clone()
	}
	return Value{T: in.typ, Ptr: &Pointer{Type: in.typ.Elem, Cell: &cell}}, nil
}
