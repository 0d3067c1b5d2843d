// Package conform rewrites compiled compute kernels so that float division
// goes through a software routine with vendor-independent rounding.
//
// Transform makes one forward pass over the module. Declarations it meets are
// registered with the Interner; every 32-bit OpFDiv is replaced in place by
// two stores and a call to conformant_divide, a helper the Library
// synthesizes at the end of the module on first use.
package conform

import (
	"context"
	"fmt"
	"strconv"

	"rorsk/internal/spirv"
	"rorsk/internal/trace"
)

// Site describes one rewritten division.
type Site struct {
	Offset   int    // word offset of the OpFDiv in the input module
	Function uint32 // id of the enclosing function
	Block    uint32 // label of the enclosing block
	Result   uint32 // result id, preserved by the rewrite
}

// Result is the outcome of a transform run.
type Result struct {
	Output   []byte
	Sites    []Site
	Helpers  []string          // helper functions added, in build order
	Funcs    map[string]uint32 // helper name -> function id
	Declared int               // types, constants and capabilities added
	Bound    uint32
}

// patchWords is the size of the replacement: OpStore, OpStore, OpFunctionCall.
const patchWords = 3 + 3 + 6

const fdivWords = 5

// Transform patches every 32-bit float division in module. The input is not
// modified. On error no output is produced.
func Transform(ctx context.Context, module []byte) (*Result, error) {
	tracer := trace.FromContext(ctx)
	span := trace.Begin(tracer, trace.ScopeModule, "transform", trace.CurrentSpan(ctx).SpanID)
	res, err := transform(tracer, span.ID(), module)
	if err != nil {
		span.WithExtra("kind", KindOf(err).String()).End(err.Error())
		return nil, err
	}
	span.WithExtra("sites", strconv.Itoa(len(res.Sites))).
		WithExtra("bound", strconv.FormatUint(uint64(res.Bound), 10)).
		End("")
	return res, nil
}

func transform(tracer trace.Tracer, spanID uint64, module []byte) (*Result, error) {
	buf, err := spirv.FromBytes(module)
	if err != nil {
		return nil, wrapMalformed(err)
	}
	d := &driver{
		buf:    buf,
		tracer: tracer,
		span:   spanID,
	}
	d.in = NewInterner(buf)
	d.em = NewEmitter(buf, d.in)
	d.lib = NewLibrary(buf, d.in, d.em)

	if err := d.scan(len(module) / 4); err != nil {
		return nil, err
	}
	if err := buf.Finalize(); err != nil {
		return nil, wrapMalformed(err)
	}
	out, err := buf.Bytes()
	if err != nil {
		return nil, wrapMalformed(err)
	}
	return &Result{
		Output:   out,
		Sites:    d.sites,
		Helpers:  d.lib.Built(),
		Funcs:    d.lib.IDs(),
		Declared: d.in.Inserted(),
		Bound:    buf.Bound(),
	}, nil
}

// driver holds the state of one scan. Nothing in it outlives Transform.
type driver struct {
	buf *spirv.Buffer
	in  *Interner
	em  *Emitter
	lib *Library

	tracer trace.Tracer
	span   uint64

	seenFunction bool
	inFunction   bool
	function     uint32
	block        uint32
	sites        []Site
}

// scan walks the instructions of the input module. inputLen is the input
// length in words; orig tracks the input offset of the current instruction,
// so words this run inserts are never visited.
func (d *driver) scan(inputLen int) error {
	buf := d.buf
	if err := buf.SetCursor(spirv.CursorScan, spirv.HeaderWords); err != nil {
		return wrapMalformed(err)
	}
	for orig := spirv.HeaderWords; orig < inputLen; {
		i, err := buf.MustCursor(spirv.CursorScan)
		if err != nil {
			return wrapMalformed(err)
		}
		inst, err := buf.Inst(i)
		if err != nil {
			return wrapMalformed(err)
		}
		// Past inputLen lie the helpers this run appended, not input words.
		if orig+inst.Words > inputLen {
			return Malformedf(orig, "%s runs past end of module (%d words, %d left)", inst.Op, inst.Words, inputLen-orig)
		}
		next := i + inst.Words
		if err := d.visit(inst, orig); err != nil {
			return err
		}
		if inst.Op == spirv.OpFDiv {
			// The scan cursor survived every insertion the patch made.
			i, _ = buf.Cursor(spirv.CursorScan)
			next = i + patchWords
		}
		orig += inst.Words
		if err := buf.SetCursor(spirv.CursorScan, next); err != nil {
			return wrapMalformed(err)
		}
	}
	return nil
}

func isDeclaration(op spirv.Op) bool {
	switch {
	case op >= spirv.OpTypeVoid && op <= 39: // OpTypeVoid .. OpTypeForwardPointer
		return true
	case op >= spirv.OpConstantTrue && op <= 52: // constants and specialization constants
		return true
	}
	return false
}

func (d *driver) visit(inst spirv.Inst, orig int) error {
	buf := d.buf
	switch op := inst.Op; {
	case op == spirv.OpCapability || op == spirv.OpExtInstImport:
		return d.in.Register(inst)

	case op == spirv.OpMemoryModel:
		if _, ok := buf.Cursor(spirv.CursorMemoryModel); ok {
			return Malformedf(orig, "duplicate OpMemoryModel")
		}
		return wrapMalformed(buf.SetCursor(spirv.CursorMemoryModel, inst.Offset))

	case isDeclaration(op), op == spirv.OpUndef && !d.inFunction, op == spirv.OpVariable && !d.inFunction:
		if d.seenFunction {
			return Malformedf(orig, "%s after the first function", op)
		}
		if err := d.in.Register(inst); err != nil {
			return err
		}
		return wrapMalformed(buf.SetCursor(spirv.CursorTypes, inst.Offset+inst.Words))

	case op == spirv.OpFunction:
		if d.inFunction {
			return Malformedf(orig, "OpFunction inside a function")
		}
		if _, ok := buf.Cursor(spirv.CursorMemoryModel); !ok {
			return Malformedf(orig, "function before OpMemoryModel")
		}
		if !d.seenFunction {
			d.seenFunction = true
			if err := buf.SetCursor(spirv.CursorTypes, inst.Offset); err != nil {
				return wrapMalformed(err)
			}
		}
		d.inFunction = true
		d.function = inst.Operand(1)
		d.block = 0
		buf.ClearCursor(spirv.CursorEntry)
		buf.ClearCursor(spirv.CursorLastLabel)

	case op == spirv.OpFunctionEnd:
		if !d.inFunction {
			return Malformedf(orig, "OpFunctionEnd outside a function")
		}
		d.inFunction = false
		buf.ClearCursor(spirv.CursorEntry)
		buf.ClearCursor(spirv.CursorLastLabel)

	case op == spirv.OpLabel:
		if !d.inFunction {
			return Malformedf(orig, "OpLabel outside a function")
		}
		after := inst.Offset + inst.Words
		if d.block == 0 {
			if err := buf.SetCursor(spirv.CursorEntry, after); err != nil {
				return wrapMalformed(err)
			}
		}
		d.block = inst.Operand(0)
		return wrapMalformed(buf.SetCursor(spirv.CursorLastLabel, after))

	case op == spirv.OpFDiv:
		return d.patch(inst, orig)
	}
	return nil
}

// patch rewrites
//
//	%r = OpFDiv %float %a %b
//
// into
//
//	OpStore %va %a
//	OpStore %vb %b
//	%r = OpFunctionCall %float %conformant_divide %va %vb
//
// with %va and %vb declared at the top of the function's entry block.
func (d *driver) patch(inst spirv.Inst, orig int) error {
	if inst.Words != fdivWords {
		return Malformedf(orig, "OpFDiv with %d words", inst.Words)
	}
	if _, ok := d.buf.Cursor(spirv.CursorLastLabel); !ok {
		return Malformedf(orig, "OpFDiv outside a function block")
	}
	// Copy operands out: the slice aliases words that are about to move.
	rtype, result, a, b := inst.Operands[0], inst.Operands[1], inst.Operands[2], inst.Operands[3]
	if key := d.in.KeyOf(rtype); key != floatKey(32) {
		return Unsupportedf(orig, spirv.OpFDiv, "result type %%%d is %s, only 32-bit scalar float is rewritten", rtype, describeKey(key))
	}

	fn, err := d.lib.Get(HelperConformantDivide)
	if err != nil {
		return err
	}
	ptr := d.in.PointerType(rtype, spirv.StorageFunction)
	va := d.em.VariableAt(spirv.CursorEntry, ptr)
	vb := d.em.VariableAt(spirv.CursorEntry, ptr)
	if err := d.em.Err(); err != nil {
		return err
	}

	i, err := d.buf.MustCursor(spirv.CursorScan)
	if err != nil {
		return wrapMalformed(err)
	}
	words := make([]uint32, 0, patchWords)
	words = append(words, spirv.Instr(spirv.OpStore, va, a)...)
	words = append(words, spirv.Instr(spirv.OpStore, vb, b)...)
	words = append(words, spirv.Instr(spirv.OpFunctionCall, rtype, result, fn, va, vb)...)
	for k := 0; k < fdivWords; k++ {
		if err := d.buf.SetWord(i+k, words[k]); err != nil {
			return wrapMalformed(err)
		}
	}
	if err := d.buf.InsertWords(i+fdivWords, words[fdivWords:]...); err != nil {
		return wrapMalformed(err)
	}

	site := Site{Offset: orig, Function: d.function, Block: d.block, Result: result}
	d.sites = append(d.sites, site)
	trace.Point(d.tracer, trace.ScopeSite, "fdiv", d.span, fmt.Sprintf("%%%d", result), map[string]string{
		"offset":   strconv.Itoa(orig),
		"function": strconv.FormatUint(uint64(d.function), 10),
		"block":    strconv.FormatUint(uint64(d.block), 10),
	})
	return nil
}

func describeKey(key string) string {
	if key == "" {
		return "not a scalar type"
	}
	return key
}
