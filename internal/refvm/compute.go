package refvm

import (
	"context"
	"runtime"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"rorsk/internal/spirv"
)

// Binding is a buffer bound to a descriptor slot. Data is read and written
// in place.
type Binding struct {
	Set     uint32
	Binding uint32
	Data    []byte
}

type config struct {
	stepLimit int
	workers   int
}

// Option adjusts a Call or RunCompute.
type Option func(*config)

// WithStepLimit sets the per-invocation instruction budget.
func WithStepLimit(n int) Option { return func(c *config) { c.stepLimit = n } }

// WithWorkers sets how many workgroups run concurrently.
func WithWorkers(n int) Option { return func(c *config) { c.workers = n } }

func newConfig(opts []Option) config {
	c := config{stepLimit: DefaultStepLimit, workers: runtime.GOMAXPROCS(0)}
	for _, o := range opts {
		o(&c)
	}
	if c.workers < 1 {
		c.workers = 1
	}
	return c
}

// Call runs function fn with args. Pointer parameters take values built with
// Ref. Module-scope variables start zeroed.
func (m *Module) Call(ctx context.Context, fn uint32, args []Value, opts ...Option) (Value, error) {
	if err := ctx.Err(); err != nil {
		return Value{}, err
	}
	f := m.funcs[fn]
	if f == nil {
		return Value{}, vmErrorf(CodeMissingTarget, 0, "function %%%d is not defined", fn)
	}
	cfg := newConfig(opts)
	x := newMachine(m, cfg.stepLimit)
	if err := x.bindGlobals(nil, invocation{}); err != nil {
		return Value{}, err
	}
	return x.call(f, args, 0)
}

// invocation carries the builtin inputs of one compute invocation.
type invocation struct {
	global [3]uint32
	local  [3]uint32
	group  [3]uint32
	groups [3]uint32
	size   [3]uint32
	index  uint32
}

// RunCompute executes the GLCompute entry point over a grid of groups
// workgroups. Workgroups run concurrently; invocations inside a workgroup run
// in order. Buffers are shared, so kernels must not race on them.
func (m *Module) RunCompute(ctx context.Context, entry string, groups [3]uint32, buffers []Binding, opts ...Option) error {
	ep, ok := m.entries[entry]
	if !ok {
		return vmErrorf(CodeMissingTarget, 0, "no entry point %q", entry)
	}
	if ep.Model != spirv.ExecutionModelGLCompute {
		return vmErrorf(CodeUnsupported, spirv.OpEntryPoint, "execution model %d of %q", ep.Model, entry)
	}
	fn := m.funcs[ep.Function]
	if fn == nil {
		return vmErrorf(CodeMissingTarget, 0, "entry point %q names undefined function %%%d", entry, ep.Function)
	}
	bound := make(map[[2]uint32][]byte, len(buffers))
	for _, b := range buffers {
		bound[[2]uint32{b.Set, b.Binding}] = b.Data
	}
	for _, g := range m.globals {
		if needsBinding(g.class) {
			if _, ok := bound[[2]uint32{g.set, g.binding}]; !ok || !g.hasBinding {
				return vmErrorf(CodeMissingTarget, 0, "variable %%%d needs buffer at set %d binding %d", g.id, g.set, g.binding)
			}
		}
	}

	total := uint64(groups[0]) * uint64(groups[1]) * uint64(groups[2])
	if total == 0 {
		return nil
	}
	cfg := newConfig(opts)
	workers := min(uint64(cfg.workers), total)

	var next atomic.Uint64
	g, gctx := errgroup.WithContext(ctx)
	for range workers {
		g.Go(func() error {
			x := newMachine(m, cfg.stepLimit)
			for {
				n := next.Add(1) - 1
				if n >= total {
					return nil
				}
				if err := gctx.Err(); err != nil {
					return err
				}
				wg := [3]uint32{
					uint32(n % uint64(groups[0])),
					uint32(n / uint64(groups[0]) % uint64(groups[1])),
					uint32(n / (uint64(groups[0]) * uint64(groups[1]))),
				}
				if err := x.runGroup(fn, ep.LocalSize, wg, groups, bound); err != nil {
					return err
				}
			}
		})
	}
	return g.Wait()
}

func needsBinding(class spirv.StorageClass) bool {
	return class == spirv.StorageStorageBuffer || class == spirv.StorageUniform || class == spirv.StorageUniformConstant
}

func (x *machine) runGroup(fn *function, size, wg, groups [3]uint32, bound map[[2]uint32][]byte) error {
	inv := invocation{group: wg, groups: groups, size: size}
	for lz := range size[2] {
		for ly := range size[1] {
			for lx := range size[0] {
				inv.local = [3]uint32{lx, ly, lz}
				for i := range 3 {
					inv.global[i] = wg[i]*size[i] + inv.local[i]
				}
				inv.index = lz*size[0]*size[1] + ly*size[0] + lx
				if err := x.bindGlobals(bound, inv); err != nil {
					return err
				}
				x.steps = 0
				if _, err := x.call(fn, nil, 0); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// bindGlobals gives every module-scope variable its storage for one
// invocation: bound buffers for buffer classes, fresh cells otherwise.
func (x *machine) bindGlobals(bound map[[2]uint32][]byte, inv invocation) error {
	for _, g := range x.m.globals {
		pointee := g.ptr.Elem
		if needsBinding(g.class) {
			mem := bound[[2]uint32{g.set, g.binding}]
			if mem == nil {
				// Call has no buffers; a zeroed cell stands in.
				cell := zero(pointee)
				x.globals[g.id] = Value{T: g.ptr, Ptr: &Pointer{Type: pointee, Cell: &cell}}
				continue
			}
			x.globals[g.id] = Value{T: g.ptr, Ptr: &Pointer{Type: pointee, Mem: mem}}
			continue
		}
		cell := zero(pointee)
		switch {
		case g.isBuiltin:
			v, err := builtinValue(pointee, g.builtin, inv)
			if err != nil {
				return err
			}
			cell = v
		case g.init != 0:
			if g.init >= x.m.bound || x.m.kinds[g.init] != slotConst {
				return vmErrorf(CodeUndefinedID, spirv.OpVariable, "initializer %%%d of %%%d is not a constant", g.init, g.id)
			}
			cell = x.m.consts[g.init].clone()
		}
		x.globals[g.id] = Value{T: g.ptr, Ptr: &Pointer{Type: pointee, Cell: &cell}}
	}
	return nil
}

func builtinValue(t *Type, builtin uint32, inv invocation) (Value, error) {
	var src [3]uint32
	switch builtin {
	case spirv.BuiltInGlobalInvocationID:
		src = inv.global
	case spirv.BuiltInLocalInvocationID:
		src = inv.local
	case spirv.BuiltInWorkgroupID:
		src = inv.group
	case spirv.BuiltInNumWorkgroups:
		src = inv.groups
	case spirv.BuiltInWorkgroupSize:
		src = inv.size
	case spirv.BuiltInLocalInvocationIndex:
		if t.Kind != KindInt {
			return Value{}, vmErrorf(CodeTypeMismatch, spirv.OpVariable, "LocalInvocationIndex of type %s", t)
		}
		return Value{T: t, Bits: uint64(inv.index)}, nil
	default:
		return Value{}, vmErrorf(CodeUnsupported, spirv.OpVariable, "builtin %d", builtin)
	}
	if t.Kind != KindVector || t.Count != 3 || t.Elem.Kind != KindInt {
		return Value{}, vmErrorf(CodeTypeMismatch, spirv.OpVariable, "builtin %d of type %s", builtin, t)
	}
	v := Value{T: t, Elems: make([]Value, 3)}
	for i := range 3 {
		v.Elems[i] = Value{T: t.Elem, Bits: uint64(src[i])}
	}
	return v, nil
}
