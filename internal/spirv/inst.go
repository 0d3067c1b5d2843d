package spirv

// Inst is a view over one instruction inside a word slice.
// Operands aliases the module words and must not be retained across mutations.
type Inst struct {
	Offset   int
	Op       Op
	Words    int
	Operands []uint32
}

// Walk calls fn for every instruction after the header. Returning false from
// fn stops the walk early.
func Walk(words []uint32, fn func(Inst) bool) error {
	i := HeaderWords
	for i < len(words) {
		inst, err := At(words, i)
		if err != nil {
			return err
		}
		if !fn(inst) {
			return nil
		}
		i += inst.Words
	}
	return nil
}

// At decodes the instruction starting at word offset i.
func At(words []uint32, i int) (Inst, error) {
	if i < HeaderWords || i >= len(words) {
		return Inst{}, malformed(i, "offset outside of instruction stream")
	}
	op, wc := SplitOpWord(words[i])
	if wc == 0 {
		return Inst{}, malformed(i, "%s has zero word count", op)
	}
	if i+wc > len(words) {
		return Inst{}, malformed(i, "%s runs past end of module (%d words, %d left)", op, wc, len(words)-i)
	}
	return Inst{Offset: i, Op: op, Words: wc, Operands: words[i+1 : i+wc]}, nil
}

// Operand returns operand n or 0 when the instruction is too short.
func (in Inst) Operand(n int) uint32 {
	if n < 0 || n >= len(in.Operands) {
		return 0
	}
	return in.Operands[n]
}

// resultLayout records where an opcode keeps its result type and result id.
// -1 means absent.
type resultLayout struct {
	typ, id int
}

var layouts = map[Op]resultLayout{
	OpUndef:               {0, 1},
	OpString:              {-1, 0},
	OpExtInstImport:       {-1, 0},
	OpExtInst:             {0, 1},
	OpTypeVoid:            {-1, 0},
	OpTypeBool:            {-1, 0},
	OpTypeInt:             {-1, 0},
	OpTypeFloat:           {-1, 0},
	OpTypeVector:          {-1, 0},
	OpTypeMatrix:          {-1, 0},
	OpTypeArray:           {-1, 0},
	OpTypeRuntimeArray:    {-1, 0},
	OpTypeStruct:          {-1, 0},
	OpTypePointer:         {-1, 0},
	OpTypeFunction:        {-1, 0},
	OpConstantTrue:        {0, 1},
	OpConstantFalse:       {0, 1},
	OpConstant:            {0, 1},
	OpConstantComposite:   {0, 1},
	OpConstantNull:        {0, 1},
	OpFunction:            {0, 1},
	OpFunctionParameter:   {0, 1},
	OpFunctionCall:        {0, 1},
	OpVariable:            {0, 1},
	OpLoad:                {0, 1},
	OpAccessChain:         {0, 1},
	OpInBoundsAccessChain: {0, 1},
	OpCompositeConstruct:  {0, 1},
	OpCompositeExtract:    {0, 1},
	OpLabel:               {-1, 0},
	OpPhi:                 {0, 1},
}

func layoutOf(op Op) (resultLayout, bool) {
	if l, ok := layouts[op]; ok {
		return l, true
	}
	// Conversions, arithmetic, bitwise, relational and OpSelect all follow
	// the <result type> <result id> <operands...> shape.
	if (op >= OpConvertFToS && op <= OpBitcast) || (op >= OpSNegate && op <= OpNot) {
		return resultLayout{0, 1}, true
	}
	return resultLayout{}, false
}

// ResultID returns the result id of inst when the opcode defines one.
func ResultID(inst Inst) (uint32, bool) {
	l, ok := layoutOf(inst.Op)
	if !ok || l.id < 0 || l.id >= len(inst.Operands) {
		return 0, false
	}
	return inst.Operands[l.id], true
}

// ResultType returns the result type id of inst when the opcode has one.
func ResultType(inst Inst) (uint32, bool) {
	l, ok := layoutOf(inst.Op)
	if !ok || l.typ < 0 || l.typ >= len(inst.Operands) {
		return 0, false
	}
	return inst.Operands[l.typ], true
}

// MaxResultID scans the module for the largest defined result id.
func MaxResultID(words []uint32) (uint32, error) {
	var maxID uint32
	err := Walk(words, func(in Inst) bool {
		if id, ok := ResultID(in); ok && id > maxID {
			maxID = id
		}
		return true
	})
	return maxID, err
}
