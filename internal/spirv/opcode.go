package spirv

import "fmt"

// Op is a SPIR-V opcode (low 16 bits of an instruction's first word).
type Op uint16

// Opcodes used by the patcher, the kernel assembler and the reference interpreter.
const (
	OpNop                  Op = 0
	OpUndef                Op = 1
	OpSource               Op = 3
	OpSourceExtension      Op = 4
	OpName                 Op = 5
	OpMemberName           Op = 6
	OpString               Op = 7
	OpLine                 Op = 8
	OpExtension            Op = 10
	OpExtInstImport        Op = 11
	OpExtInst              Op = 12
	OpMemoryModel          Op = 14
	OpEntryPoint           Op = 15
	OpExecutionMode        Op = 16
	OpCapability           Op = 17
	OpTypeVoid             Op = 19
	OpTypeBool             Op = 20
	OpTypeInt              Op = 21
	OpTypeFloat            Op = 22
	OpTypeVector           Op = 23
	OpTypeMatrix           Op = 24
	OpTypeArray            Op = 28
	OpTypeRuntimeArray     Op = 29
	OpTypeStruct           Op = 30
	OpTypePointer          Op = 32
	OpTypeFunction         Op = 33
	OpConstantTrue         Op = 41
	OpConstantFalse        Op = 42
	OpConstant             Op = 43
	OpConstantComposite    Op = 44
	OpConstantNull         Op = 46
	OpFunction             Op = 54
	OpFunctionParameter    Op = 55
	OpFunctionEnd          Op = 56
	OpFunctionCall         Op = 57
	OpVariable             Op = 59
	OpLoad                 Op = 61
	OpStore                Op = 62
	OpAccessChain          Op = 65
	OpInBoundsAccessChain  Op = 66
	OpDecorate             Op = 71
	OpMemberDecorate       Op = 72
	OpCompositeConstruct   Op = 80
	OpCompositeExtract     Op = 81
	OpConvertFToS          Op = 110
	OpConvertSToF          Op = 111
	OpConvertUToF          Op = 112
	OpUConvert             Op = 113
	OpSConvert             Op = 114
	OpFConvert             Op = 115
	OpBitcast              Op = 124
	OpSNegate              Op = 126
	OpFNegate              Op = 127
	OpIAdd                 Op = 128
	OpFAdd                 Op = 129
	OpISub                 Op = 130
	OpFSub                 Op = 131
	OpIMul                 Op = 132
	OpFMul                 Op = 133
	OpUDiv                 Op = 134
	OpSDiv                 Op = 135
	OpFDiv                 Op = 136
	OpUMod                 Op = 137
	OpSRem                 Op = 138
	OpSMod                 Op = 139
	OpLogicalOr            Op = 166
	OpLogicalAnd           Op = 167
	OpLogicalNot           Op = 168
	OpSelect               Op = 169
	OpIEqual               Op = 170
	OpINotEqual            Op = 171
	OpUGreaterThan         Op = 172
	OpSGreaterThan         Op = 173
	OpUGreaterThanEqual    Op = 174
	OpSGreaterThanEqual    Op = 175
	OpULessThan            Op = 176
	OpSLessThan            Op = 177
	OpULessThanEqual       Op = 178
	OpSLessThanEqual       Op = 179
	OpFOrdEqual            Op = 180
	OpFOrdNotEqual         Op = 182
	OpFOrdLessThan         Op = 184
	OpFOrdGreaterThan      Op = 186
	OpShiftRightLogical    Op = 194
	OpShiftRightArithmetic Op = 195
	OpShiftLeftLogical     Op = 196
	OpBitwiseOr            Op = 197
	OpBitwiseXor           Op = 198
	OpBitwiseAnd           Op = 199
	OpNot                  Op = 200
	OpPhi                  Op = 245
	OpLoopMerge            Op = 246
	OpSelectionMerge       Op = 247
	OpLabel                Op = 248
	OpBranch               Op = 249
	OpBranchConditional    Op = 250
	OpReturn               Op = 253
	OpReturnValue          Op = 254
	OpUnreachable          Op = 255
	OpNoLine               Op = 317
	OpModuleProcessed      Op = 330
)

var opNames = map[Op]string{
	OpNop: "OpNop", OpUndef: "OpUndef", OpSource: "OpSource", OpSourceExtension: "OpSourceExtension",
	OpName: "OpName", OpMemberName: "OpMemberName", OpString: "OpString", OpLine: "OpLine",
	OpExtension: "OpExtension", OpExtInstImport: "OpExtInstImport", OpExtInst: "OpExtInst",
	OpMemoryModel: "OpMemoryModel", OpEntryPoint: "OpEntryPoint", OpExecutionMode: "OpExecutionMode",
	OpCapability: "OpCapability", OpTypeVoid: "OpTypeVoid", OpTypeBool: "OpTypeBool",
	OpTypeInt: "OpTypeInt", OpTypeFloat: "OpTypeFloat", OpTypeVector: "OpTypeVector",
	OpTypeMatrix: "OpTypeMatrix", OpTypeArray: "OpTypeArray", OpTypeRuntimeArray: "OpTypeRuntimeArray",
	OpTypeStruct: "OpTypeStruct", OpTypePointer: "OpTypePointer", OpTypeFunction: "OpTypeFunction",
	OpConstantTrue: "OpConstantTrue", OpConstantFalse: "OpConstantFalse", OpConstant: "OpConstant",
	OpConstantComposite: "OpConstantComposite", OpConstantNull: "OpConstantNull",
	OpFunction: "OpFunction", OpFunctionParameter: "OpFunctionParameter", OpFunctionEnd: "OpFunctionEnd",
	OpFunctionCall: "OpFunctionCall", OpVariable: "OpVariable", OpLoad: "OpLoad", OpStore: "OpStore",
	OpAccessChain: "OpAccessChain", OpInBoundsAccessChain: "OpInBoundsAccessChain",
	OpDecorate: "OpDecorate", OpMemberDecorate: "OpMemberDecorate",
	OpCompositeConstruct: "OpCompositeConstruct", OpCompositeExtract: "OpCompositeExtract",
	OpConvertFToS: "OpConvertFToS", OpConvertSToF: "OpConvertSToF", OpConvertUToF: "OpConvertUToF",
	OpUConvert: "OpUConvert", OpSConvert: "OpSConvert", OpFConvert: "OpFConvert", OpBitcast: "OpBitcast",
	OpSNegate: "OpSNegate", OpFNegate: "OpFNegate", OpIAdd: "OpIAdd", OpFAdd: "OpFAdd",
	OpISub: "OpISub", OpFSub: "OpFSub", OpIMul: "OpIMul", OpFMul: "OpFMul", OpUDiv: "OpUDiv",
	OpSDiv: "OpSDiv", OpFDiv: "OpFDiv", OpUMod: "OpUMod", OpSRem: "OpSRem", OpSMod: "OpSMod",
	OpLogicalOr: "OpLogicalOr", OpLogicalAnd: "OpLogicalAnd", OpLogicalNot: "OpLogicalNot",
	OpSelect: "OpSelect", OpIEqual: "OpIEqual", OpINotEqual: "OpINotEqual",
	OpUGreaterThan: "OpUGreaterThan", OpSGreaterThan: "OpSGreaterThan",
	OpUGreaterThanEqual: "OpUGreaterThanEqual", OpSGreaterThanEqual: "OpSGreaterThanEqual",
	OpULessThan: "OpULessThan", OpSLessThan: "OpSLessThan", OpULessThanEqual: "OpULessThanEqual",
	OpSLessThanEqual: "OpSLessThanEqual", OpFOrdEqual: "OpFOrdEqual", OpFOrdNotEqual: "OpFOrdNotEqual",
	OpFOrdLessThan: "OpFOrdLessThan", OpFOrdGreaterThan: "OpFOrdGreaterThan",
	OpShiftRightLogical: "OpShiftRightLogical", OpShiftRightArithmetic: "OpShiftRightArithmetic",
	OpShiftLeftLogical: "OpShiftLeftLogical", OpBitwiseOr: "OpBitwiseOr", OpBitwiseXor: "OpBitwiseXor",
	OpBitwiseAnd: "OpBitwiseAnd", OpNot: "OpNot", OpPhi: "OpPhi", OpLoopMerge: "OpLoopMerge",
	OpSelectionMerge: "OpSelectionMerge", OpLabel: "OpLabel", OpBranch: "OpBranch",
	OpBranchConditional: "OpBranchConditional", OpReturn: "OpReturn", OpReturnValue: "OpReturnValue",
	OpUnreachable: "OpUnreachable", OpNoLine: "OpNoLine", OpModuleProcessed: "OpModuleProcessed",
}

// String returns the SPIR-V mnemonic, or "Op(<n>)" for opcodes outside the table.
func (op Op) String() string {
	if name, ok := opNames[op]; ok {
		return name
	}
	return fmt.Sprintf("Op(%d)", uint16(op))
}

// Capability operand of OpCapability.
type Capability uint32

const (
	CapabilityMatrix  Capability = 0
	CapabilityShader  Capability = 1
	CapabilityFloat64 Capability = 10
	CapabilityInt64   Capability = 11
)

// StorageClass operand of OpTypePointer / OpVariable.
type StorageClass uint32

const (
	StorageUniformConstant StorageClass = 0
	StorageInput           StorageClass = 1
	StorageUniform         StorageClass = 2
	StorageOutput          StorageClass = 3
	StorageWorkgroup       StorageClass = 4
	StoragePrivate         StorageClass = 6
	StorageFunction        StorageClass = 7
	StoragePushConstant    StorageClass = 9
	StorageStorageBuffer   StorageClass = 12
)

// Decoration operand of OpDecorate / OpMemberDecorate.
type Decoration uint32

const (
	DecorationBlock         Decoration = 2
	DecorationBufferBlock   Decoration = 3
	DecorationArrayStride   Decoration = 6
	DecorationBuiltIn       Decoration = 11
	DecorationNonWritable   Decoration = 24
	DecorationBinding       Decoration = 33
	DecorationDescriptorSet Decoration = 34
	DecorationOffset        Decoration = 35
)

// BuiltIn values used with DecorationBuiltIn.
const (
	BuiltInWorkgroupSize        uint32 = 25
	BuiltInNumWorkgroups        uint32 = 24
	BuiltInWorkgroupID          uint32 = 26
	BuiltInLocalInvocationID    uint32 = 27
	BuiltInGlobalInvocationID   uint32 = 28
	BuiltInLocalInvocationIndex uint32 = 29
)

// Execution models and modes used by compute kernels.
const (
	ExecutionModelGLCompute uint32 = 5
	ExecutionModeLocalSize  uint32 = 17

	AddressingLogical  uint32 = 0
	MemoryModelGLSL450 uint32 = 1
)

// Control masks; the patcher always emits None.
const (
	FunctionControlNone  uint32 = 0
	SelectionControlNone uint32 = 0
	LoopControlNone      uint32 = 0
)

// GLSLStd450 is the name of the extended instruction set the helpers use.
const GLSLStd450 = "GLSL.std.450"

// GLSL.std.450 instruction numbers.
const (
	GLSLFAbs uint32 = 4
	GLSLSAbs uint32 = 5
	GLSLPow  uint32 = 26
	GLSLFMin uint32 = 37
	GLSLUMin uint32 = 38
	GLSLSMin uint32 = 39
)
