package spirv

import "strconv"

// OpCode identifies a SPIR-V instruction.
type OpCode uint16

// Instructions handled by the parser and lowerer.
const (
	OpNop                    OpCode = 0
	OpUndef                  OpCode = 1
	OpSourceContinued        OpCode = 2
	OpSource                 OpCode = 3
	OpSourceExtension        OpCode = 4
	OpName                   OpCode = 5
	OpMemberName             OpCode = 6
	OpString                 OpCode = 7
	OpLine                   OpCode = 8
	OpExtension              OpCode = 10
	OpExtInstImport          OpCode = 11
	OpExtInst                OpCode = 12
	OpMemoryModel            OpCode = 14
	OpEntryPoint             OpCode = 15
	OpExecutionMode          OpCode = 16
	OpCapability             OpCode = 17
	OpTypeVoid               OpCode = 19
	OpTypeBool               OpCode = 20
	OpTypeInt                OpCode = 21
	OpTypeFloat              OpCode = 22
	OpTypeVector             OpCode = 23
	OpTypeMatrix             OpCode = 24
	OpTypeImage              OpCode = 25
	OpTypeSampler            OpCode = 26
	OpTypeSampledImage       OpCode = 27
	OpTypeArray              OpCode = 28
	OpTypeRuntimeArray       OpCode = 29
	OpTypeStruct             OpCode = 30
	OpTypePointer            OpCode = 32
	OpTypeFunction           OpCode = 33
	OpConstantTrue           OpCode = 41
	OpConstantFalse          OpCode = 42
	OpConstant               OpCode = 43
	OpConstantComposite      OpCode = 44
	OpConstantNull           OpCode = 46
	OpSpecConstantTrue       OpCode = 48
	OpSpecConstantFalse      OpCode = 49
	OpSpecConstant           OpCode = 50
	OpSpecConstantComposite  OpCode = 51
	OpFunction               OpCode = 54
	OpFunctionParameter      OpCode = 55
	OpFunctionEnd            OpCode = 56
	OpFunctionCall           OpCode = 57
	OpVariable               OpCode = 59
	OpLoad                   OpCode = 61
	OpStore                  OpCode = 62
	OpAccessChain            OpCode = 65
	OpInBoundsAccessChain    OpCode = 66
	OpDecorate               OpCode = 71
	OpMemberDecorate         OpCode = 72
	OpVectorShuffle          OpCode = 79
	OpCompositeConstruct     OpCode = 80
	OpCompositeExtract       OpCode = 81
	OpSampledImage           OpCode = 86
	OpImageSampleImplicitLod OpCode = 87
	OpImageSampleExplicitLod OpCode = 88
	OpImageFetch             OpCode = 95
	OpImageQuerySizeLod      OpCode = 103
	OpImageQuerySize         OpCode = 104
	OpImageQueryLevels       OpCode = 106
	OpImageQuerySamples      OpCode = 107
	OpConvertFToU            OpCode = 109
	OpConvertFToS            OpCode = 110
	OpConvertSToF            OpCode = 111
	OpConvertUToF            OpCode = 112
	OpUConvert               OpCode = 113
	OpSConvert               OpCode = 114
	OpFConvert               OpCode = 115
	OpBitcast                OpCode = 124
	OpSNegate                OpCode = 126
	OpFNegate                OpCode = 127
	OpIAdd                   OpCode = 128
	OpFAdd                   OpCode = 129
	OpISub                   OpCode = 130
	OpFSub                   OpCode = 131
	OpIMul                   OpCode = 132
	OpFMul                   OpCode = 133
	OpUDiv                   OpCode = 134
	OpSDiv                   OpCode = 135
	OpFDiv                   OpCode = 136
	OpUMod                   OpCode = 137
	OpSMod                   OpCode = 139
	OpFMod                   OpCode = 141
	OpDot                    OpCode = 148
	OpLogicalOr              OpCode = 166
	OpLogicalAnd             OpCode = 167
	OpLogicalNot             OpCode = 168
	OpSelect                 OpCode = 169
	OpIEqual                 OpCode = 170
	OpINotEqual              OpCode = 171
	OpUGreaterThan           OpCode = 172
	OpSGreaterThan           OpCode = 173
	OpUGreaterThanEqual      OpCode = 174
	OpSGreaterThanEqual      OpCode = 175
	OpULessThan              OpCode = 176
	OpSLessThan              OpCode = 177
	OpULessThanEqual         OpCode = 178
	OpSLessThanEqual         OpCode = 179
	OpFOrdEqual              OpCode = 180
	OpFOrdNotEqual           OpCode = 182
	OpFOrdLessThan           OpCode = 184
	OpFOrdGreaterThan        OpCode = 186
	OpFOrdLessThanEqual      OpCode = 188
	OpFOrdGreaterThanEqual   OpCode = 190
	OpShiftRightLogical      OpCode = 194
	OpShiftRightArithmetic   OpCode = 195
	OpShiftLeftLogical       OpCode = 196
	OpBitwiseOr              OpCode = 197
	OpBitwiseXor             OpCode = 198
	OpBitwiseAnd             OpCode = 199
	OpNot                    OpCode = 200
	OpDPdx                   OpCode = 207
	OpDPdy                   OpCode = 208
	OpFwidth                 OpCode = 209
	OpDPdxFine               OpCode = 210
	OpDPdyFine               OpCode = 211
	OpFwidthFine             OpCode = 212
	OpDPdxCoarse             OpCode = 213
	OpDPdyCoarse             OpCode = 214
	OpFwidthCoarse           OpCode = 215
	OpLabel                  OpCode = 248
	OpBranch                 OpCode = 249
	OpBranchConditional      OpCode = 250
	OpSwitch                 OpCode = 251
	OpKill                   OpCode = 252
	OpReturn                 OpCode = 253
	OpReturnValue            OpCode = 254
	OpUnreachable            OpCode = 255
	OpSelectionMerge         OpCode = 247
	OpLoopMerge              OpCode = 246
	OpPhi                    OpCode = 245
)

// opcodeNames maps opcodes to their assembly names for diagnostics.
var opcodeNames = map[OpCode]string{
	OpNop: "OpNop", OpUndef: "OpUndef", OpSource: "OpSource",
	OpName: "OpName", OpMemberName: "OpMemberName", OpString: "OpString",
	OpExtension: "OpExtension", OpExtInstImport: "OpExtInstImport",
	OpExtInst: "OpExtInst", OpMemoryModel: "OpMemoryModel",
	OpEntryPoint: "OpEntryPoint", OpExecutionMode: "OpExecutionMode",
	OpCapability: "OpCapability", OpTypeVoid: "OpTypeVoid",
	OpTypeBool: "OpTypeBool", OpTypeInt: "OpTypeInt", OpTypeFloat: "OpTypeFloat",
	OpTypeVector: "OpTypeVector", OpTypeMatrix: "OpTypeMatrix",
	OpTypeImage: "OpTypeImage", OpTypeSampler: "OpTypeSampler",
	OpTypeSampledImage: "OpTypeSampledImage", OpTypeArray: "OpTypeArray",
	OpTypeRuntimeArray: "OpTypeRuntimeArray", OpTypeStruct: "OpTypeStruct",
	OpTypePointer: "OpTypePointer", OpTypeFunction: "OpTypeFunction",
	OpConstantTrue: "OpConstantTrue", OpConstantFalse: "OpConstantFalse",
	OpConstant: "OpConstant", OpConstantComposite: "OpConstantComposite",
	OpConstantNull: "OpConstantNull", OpSpecConstantTrue: "OpSpecConstantTrue",
	OpSpecConstantFalse: "OpSpecConstantFalse", OpSpecConstant: "OpSpecConstant",
	OpSpecConstantComposite: "OpSpecConstantComposite",
	OpFunction:              "OpFunction", OpFunctionParameter: "OpFunctionParameter",
	OpFunctionEnd: "OpFunctionEnd", OpFunctionCall: "OpFunctionCall",
	OpVariable: "OpVariable", OpLoad: "OpLoad", OpStore: "OpStore",
	OpAccessChain: "OpAccessChain", OpInBoundsAccessChain: "OpInBoundsAccessChain",
	OpDecorate: "OpDecorate", OpMemberDecorate: "OpMemberDecorate",
	OpVectorShuffle: "OpVectorShuffle", OpCompositeConstruct: "OpCompositeConstruct",
	OpCompositeExtract: "OpCompositeExtract", OpSampledImage: "OpSampledImage",
	OpImageSampleImplicitLod: "OpImageSampleImplicitLod",
	OpImageSampleExplicitLod: "OpImageSampleExplicitLod",
	OpImageFetch:             "OpImageFetch", OpImageQuerySize: "OpImageQuerySize",
	OpImageQuerySizeLod: "OpImageQuerySizeLod",
	OpImageQueryLevels:  "OpImageQueryLevels", OpImageQuerySamples: "OpImageQuerySamples",
	OpBitcast: "OpBitcast", OpSelect: "OpSelect", OpDot: "OpDot",
	OpLabel: "OpLabel", OpBranch: "OpBranch",
	OpBranchConditional: "OpBranchConditional", OpSwitch: "OpSwitch",
	OpKill: "OpKill", OpReturn: "OpReturn", OpReturnValue: "OpReturnValue",
	OpUnreachable: "OpUnreachable", OpSelectionMerge: "OpSelectionMerge",
	OpLoopMerge: "OpLoopMerge", OpPhi: "OpPhi",
}

// String returns the assembly name of the opcode, or a numeric form for
// opcodes outside the handled set.
func (op OpCode) String() string {
	if name, ok := opcodeNames[op]; ok {
		return name
	}
	return "Op#" + strconv.FormatUint(uint64(op), 10)
}

// Decoration identifies a SPIR-V decoration.
type Decoration uint32

const (
	DecorationSpecID        Decoration = 1
	DecorationBlock         Decoration = 2
	DecorationBufferBlock   Decoration = 3
	DecorationArrayStride   Decoration = 6
	DecorationBuiltIn       Decoration = 11
	DecorationLocation      Decoration = 30
	DecorationBinding       Decoration = 33
	DecorationDescriptorSet Decoration = 34
	DecorationOffset        Decoration = 35
)

// StorageClass identifies the storage class of a pointer or variable.
type StorageClass uint32

const (
	StorageClassUniformConstant StorageClass = 0
	StorageClassInput           StorageClass = 1
	StorageClassUniform         StorageClass = 2
	StorageClassOutput          StorageClass = 3
	StorageClassWorkgroup       StorageClass = 4
	StorageClassPrivate         StorageClass = 6
	StorageClassFunction        StorageClass = 7
	StorageClassPushConstant    StorageClass = 9
	StorageClassStorageBuffer   StorageClass = 12
)

// ExecutionModel identifies the pipeline stage of an entry point.
type ExecutionModel uint32

const (
	ExecutionModelVertex    ExecutionModel = 0
	ExecutionModelFragment  ExecutionModel = 4
	ExecutionModelGLCompute ExecutionModel = 5
)

// ExecutionMode identifies entry point execution modes.
type ExecutionMode uint32

const (
	ExecutionModeOriginUpperLeft ExecutionMode = 7
	ExecutionModeLocalSize       ExecutionMode = 17
)

// Dim identifies an image dimensionality.
type Dim uint32

const (
	Dim1D   Dim = 0
	Dim2D   Dim = 1
	Dim3D   Dim = 2
	DimCube Dim = 3
)

// GLSL.std.450 extended instruction numbers, as assigned by the
// extended instruction set specification.
const (
	glslRound         = 1
	glslTrunc         = 3
	glslFAbs          = 4
	glslSAbs          = 5
	glslFSign         = 6
	glslSSign         = 7
	glslFloor         = 8
	glslCeil          = 9
	glslFract         = 10
	glslRadians       = 11
	glslDegrees       = 12
	glslSin           = 13
	glslCos           = 14
	glslTan           = 15
	glslAsin          = 16
	glslAcos          = 17
	glslAtan          = 18
	glslSinh          = 19
	glslCosh          = 20
	glslTanh          = 21
	glslAsinh         = 22
	glslAcosh         = 23
	glslAtanh         = 24
	glslAtan2         = 25
	glslPow           = 26
	glslExp           = 27
	glslLog           = 28
	glslExp2          = 29
	glslLog2          = 30
	glslSqrt          = 31
	glslInverseSqrt   = 32
	glslDeterminant   = 33
	glslMatrixInverse = 34
	glslModf          = 35
	glslFMin          = 37
	glslUMin          = 38
	glslSMin          = 39
	glslFMax          = 40
	glslUMax          = 41
	glslSMax          = 42
	glslFClamp        = 43
	glslUClamp        = 44
	glslSClamp        = 45
	glslFMix          = 46
	glslStep          = 48
	glslSmoothStep    = 49
	glslFma           = 50
	glslFrexp         = 51
	glslLdexp         = 53
	glslLength        = 66
	glslDistance      = 67
	glslCross         = 68
	glslNormalize     = 69
	glslFaceForward   = 70
	glslReflect       = 71
	glslRefract       = 72
)
