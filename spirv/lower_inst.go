package spirv

import (
	"fmt"

	"github.com/gogpu/naga/ir"
)

var binaryOps = map[OpCode]ir.BinaryOperator{
	OpIAdd: ir.BinaryAdd, OpFAdd: ir.BinaryAdd,
	OpISub: ir.BinarySubtract, OpFSub: ir.BinarySubtract,
	OpIMul: ir.BinaryMultiply, OpFMul: ir.BinaryMultiply,
	OpUDiv: ir.BinaryDivide, OpSDiv: ir.BinaryDivide, OpFDiv: ir.BinaryDivide,
	OpUMod: ir.BinaryModulo, OpSMod: ir.BinaryModulo, OpFMod: ir.BinaryModulo,
	OpIEqual: ir.BinaryEqual, OpFOrdEqual: ir.BinaryEqual,
	OpINotEqual: ir.BinaryNotEqual, OpFOrdNotEqual: ir.BinaryNotEqual,
	OpULessThan: ir.BinaryLess, OpSLessThan: ir.BinaryLess, OpFOrdLessThan: ir.BinaryLess,
	OpULessThanEqual: ir.BinaryLessEqual, OpSLessThanEqual: ir.BinaryLessEqual,
	OpFOrdLessThanEqual: ir.BinaryLessEqual,
	OpUGreaterThan:      ir.BinaryGreater, OpSGreaterThan: ir.BinaryGreater,
	OpFOrdGreaterThan:   ir.BinaryGreater,
	OpUGreaterThanEqual: ir.BinaryGreaterEqual, OpSGreaterThanEqual: ir.BinaryGreaterEqual,
	OpFOrdGreaterThanEqual: ir.BinaryGreaterEqual,
	OpBitwiseAnd:           ir.BinaryAnd,
	OpBitwiseXor:           ir.BinaryExclusiveOr,
	OpBitwiseOr:            ir.BinaryInclusiveOr,
	OpLogicalAnd:           ir.BinaryLogicalAnd,
	OpLogicalOr:            ir.BinaryLogicalOr,
	OpShiftLeftLogical:     ir.BinaryShiftLeft,
	OpShiftRightLogical:    ir.BinaryShiftRight,
	OpShiftRightArithmetic: ir.BinaryShiftRight,
}

var unaryOps = map[OpCode]ir.UnaryOperator{
	OpSNegate:    ir.UnaryNegate,
	OpFNegate:    ir.UnaryNegate,
	OpLogicalNot: ir.UnaryLogicalNot,
	OpNot:        ir.UnaryBitwiseNot,
}

var derivativeOps = map[OpCode]ir.ExprDerivative{
	OpDPdx:         {Axis: ir.DerivativeX, Control: ir.DerivativeNone},
	OpDPdy:         {Axis: ir.DerivativeY, Control: ir.DerivativeNone},
	OpFwidth:       {Axis: ir.DerivativeWidth, Control: ir.DerivativeNone},
	OpDPdxCoarse:   {Axis: ir.DerivativeX, Control: ir.DerivativeCoarse},
	OpDPdyCoarse:   {Axis: ir.DerivativeY, Control: ir.DerivativeCoarse},
	OpFwidthCoarse: {Axis: ir.DerivativeWidth, Control: ir.DerivativeCoarse},
	OpDPdxFine:     {Axis: ir.DerivativeX, Control: ir.DerivativeFine},
	OpDPdyFine:     {Axis: ir.DerivativeY, Control: ir.DerivativeFine},
	OpFwidthFine:   {Axis: ir.DerivativeWidth, Control: ir.DerivativeFine},
}

var glslMath = map[uint32]ir.MathFunction{
	glslRound: ir.MathRound, glslTrunc: ir.MathTrunc,
	glslFAbs: ir.MathAbs, glslSAbs: ir.MathAbs,
	glslFSign: ir.MathSign, glslSSign: ir.MathSign,
	glslFloor: ir.MathFloor, glslCeil: ir.MathCeil, glslFract: ir.MathFract,
	glslRadians: ir.MathRadians, glslDegrees: ir.MathDegrees,
	glslSin: ir.MathSin, glslCos: ir.MathCos, glslTan: ir.MathTan,
	glslAsin: ir.MathAsin, glslAcos: ir.MathAcos, glslAtan: ir.MathAtan,
	glslSinh: ir.MathSinh, glslCosh: ir.MathCosh, glslTanh: ir.MathTanh,
	glslAsinh: ir.MathAsinh, glslAcosh: ir.MathAcosh, glslAtanh: ir.MathAtanh,
	glslAtan2: ir.MathAtan2, glslPow: ir.MathPow,
	glslExp: ir.MathExp, glslLog: ir.MathLog, glslExp2: ir.MathExp2, glslLog2: ir.MathLog2,
	glslSqrt: ir.MathSqrt, glslInverseSqrt: ir.MathInverseSqrt,
	glslDeterminant: ir.MathDeterminant, glslMatrixInverse: ir.MathInverse,
	glslModf: ir.MathModf, glslFrexp: ir.MathFrexp, glslLdexp: ir.MathLdexp,
	glslFMin: ir.MathMin, glslUMin: ir.MathMin, glslSMin: ir.MathMin,
	glslFMax: ir.MathMax, glslUMax: ir.MathMax, glslSMax: ir.MathMax,
	glslFClamp: ir.MathClamp, glslUClamp: ir.MathClamp, glslSClamp: ir.MathClamp,
	glslFMix: ir.MathMix, glslStep: ir.MathStep, glslSmoothStep: ir.MathSmoothStep,
	glslFma: ir.MathFma, glslLength: ir.MathLength, glslDistance: ir.MathDistance,
	glslCross: ir.MathCross, glslNormalize: ir.MathNormalize,
	glslFaceForward: ir.MathFaceForward, glslReflect: ir.MathReflect,
	glslRefract: ir.MathRefract,
}

// lowerBodyInst lowers one non-terminator instruction of a basic block.
//
//nolint:gocyclo,cyclop,funlen // one arm per instruction form
func (f *funcLowerer) lowerBodyInst(inst *Instruction) error {
	ops := inst.Operands
	if inst.Opcode != OpStore && len(ops) >= 2 {
		f.typeOf[ops[1]] = ops[0]
	}

	switch inst.Opcode {
	case OpVariable:
		return f.lowerLocal(inst)

	case OpLoad:
		// Variable and access-chain expressions resolve to value types in
		// this IR, so the load result aliases the pointer expression.
		h, err := f.expr(ops[2])
		if err != nil {
			return err
		}
		f.exprMap[ops[1]] = h

	case OpStore:
		ptr, err := f.expr(ops[0])
		if err != nil {
			return err
		}
		value, err := f.expr(ops[1])
		if err != nil {
			return err
		}
		f.flush()
		f.stmt(ir.StmtStore{Pointer: ptr, Value: value})

	case OpAccessChain, OpInBoundsAccessChain:
		base, err := f.expr(ops[2])
		if err != nil {
			return err
		}
		for _, indexID := range ops[3:] {
			if value, ok := f.l.m.constUint(indexID); ok {
				base = f.emit(ir.ExprAccessIndex{Base: base, Index: value})
				continue
			}
			index, err := f.expr(indexID)
			if err != nil {
				return err
			}
			base = f.emit(ir.ExprAccess{Base: base, Index: index})
		}
		f.exprMap[ops[1]] = base

	case OpCompositeConstruct:
		components, err := f.exprs(ops[2:])
		if err != nil {
			return err
		}
		f.exprMap[ops[1]] = f.emit(ir.ExprCompose{Type: f.l.typeMap[ops[0]], Components: components})

	case OpCompositeExtract:
		base, err := f.expr(ops[2])
		if err != nil {
			return err
		}
		for _, index := range ops[3:] {
			base = f.emit(ir.ExprAccessIndex{Base: base, Index: index})
		}
		f.exprMap[ops[1]] = base

	case OpVectorShuffle:
		return f.lowerShuffle(inst)

	case OpSampledImage:
		f.sampled[ops[1]] = [2]uint32{ops[2], ops[3]}

	case OpImageSampleImplicitLod, OpImageSampleExplicitLod:
		return f.lowerSample(inst)

	case OpImageFetch:
		return f.lowerFetch(inst)

	case OpImageQuerySize, OpImageQuerySizeLod, OpImageQueryLevels, OpImageQuerySamples:
		return f.lowerImageQuery(inst)

	case OpExtInst:
		return f.lowerExtInst(inst)

	case OpDot:
		left, err := f.expr(ops[2])
		if err != nil {
			return err
		}
		right, err := f.expr(ops[3])
		if err != nil {
			return err
		}
		f.exprMap[ops[1]] = f.emit(ir.ExprMath{Fun: ir.MathDot, Arg: left, Arg1: &right})

	case OpSelect:
		cond, err := f.expr(ops[2])
		if err != nil {
			return err
		}
		accept, err := f.expr(ops[3])
		if err != nil {
			return err
		}
		reject, err := f.expr(ops[4])
		if err != nil {
			return err
		}
		f.exprMap[ops[1]] = f.emit(ir.ExprSelect{Condition: cond, Accept: accept, Reject: reject})

	case OpBitcast:
		return f.lowerCast(inst, nil)

	case OpConvertFToU, OpConvertFToS, OpConvertSToF, OpConvertUToF,
		OpUConvert, OpSConvert, OpFConvert:
		scalar, ok := f.l.scalarInner(ops[0])
		if !ok {
			if vec := f.l.m.defs[ops[0]]; vec != nil && vec.Opcode == OpTypeVector {
				scalar, ok = f.l.scalarInner(vec.Operands[1])
			}
			if !ok {
				return fmt.Errorf("spirv: conversion %%%d has non-numeric result type", ops[1])
			}
		}
		width := scalar.Width
		return f.lowerCast(inst, &width)

	case OpFunctionCall:
		return f.lowerCall(inst)

	case OpUndef:
		f.exprMap[ops[1]] = f.leaf(ir.ExprZeroValue{Type: f.l.typeMap[ops[0]]})

	case OpPhi:
		return fmt.Errorf("spirv: OpPhi is unsupported, producers must use function-local variables")

	default:
		if op, ok := binaryOps[inst.Opcode]; ok {
			left, err := f.expr(ops[2])
			if err != nil {
				return err
			}
			right, err := f.expr(ops[3])
			if err != nil {
				return err
			}
			f.exprMap[ops[1]] = f.emit(ir.ExprBinary{Op: op, Left: left, Right: right})
			return nil
		}
		if op, ok := unaryOps[inst.Opcode]; ok {
			operand, err := f.expr(ops[2])
			if err != nil {
				return err
			}
			f.exprMap[ops[1]] = f.emit(ir.ExprUnary{Op: op, Expr: operand})
			return nil
		}
		if deriv, ok := derivativeOps[inst.Opcode]; ok {
			operand, err := f.expr(ops[2])
			if err != nil {
				return err
			}
			deriv.Expr = operand
			f.exprMap[ops[1]] = f.emit(deriv)
			return nil
		}
		return fmt.Errorf("spirv: unsupported instruction %v in function body", inst.Opcode)
	}
	return nil
}

func (f *funcLowerer) lowerLocal(inst *Instruction) error {
	ops := inst.Operands
	if StorageClass(ops[2]) != StorageClassFunction {
		return fmt.Errorf("spirv: variable %%%d in function body must have Function storage", ops[1])
	}
	pointeeID := f.l.m.pointeeType(ops[0])
	pointee, ok := f.l.typeMap[pointeeID]
	if !ok {
		return fmt.Errorf("spirv: local variable %%%d has unknown type", ops[1])
	}
	local := ir.LocalVariable{Name: f.l.m.names[ops[1]], Type: pointee}
	if len(ops) >= 4 {
		constant, ok := f.l.constMap[ops[3]]
		if !ok {
			return fmt.Errorf("spirv: local variable %%%d has non-constant initializer", ops[1])
		}
		init := f.leaf(ir.ExprConstant{Constant: constant})
		local.Init = &init
	}
	index := uint32(len(f.fn.LocalVars))
	f.fn.LocalVars = append(f.fn.LocalVars, local)
	f.exprMap[ops[1]] = f.leaf(ir.ExprLocalVariable{Variable: index})
	return nil
}

func (f *funcLowerer) lowerCast(inst *Instruction, convert *uint8) error {
	ops := inst.Operands
	scalar, ok := f.l.scalarInner(ops[0])
	if !ok {
		if vec := f.l.m.defs[ops[0]]; vec != nil && vec.Opcode == OpTypeVector {
			scalar, ok = f.l.scalarInner(vec.Operands[1])
		}
		if !ok {
			return fmt.Errorf("spirv: cast %%%d has non-numeric result type", ops[1])
		}
	}
	operand, err := f.expr(ops[2])
	if err != nil {
		return err
	}
	f.exprMap[ops[1]] = f.emit(ir.ExprAs{Expr: operand, Kind: scalar.Kind, Convert: convert})
	return nil
}

// lowerShuffle converts OpVectorShuffle into a swizzle when every selected
// component comes from the first operand, or a component-wise compose when
// the shuffle mixes both vectors.
func (f *funcLowerer) lowerShuffle(inst *Instruction) error {
	ops := inst.Operands
	firstID, secondID := ops[2], ops[3]
	selectors := ops[4:]
	firstSize, err := f.vectorSize(firstID)
	if err != nil {
		return err
	}
	first, err := f.expr(firstID)
	if err != nil {
		return err
	}

	fromFirst := true
	for _, sel := range selectors {
		if sel >= firstSize {
			fromFirst = false
			break
		}
	}
	if fromFirst && len(selectors) >= 2 && len(selectors) <= 4 {
		var pattern [4]ir.SwizzleComponent
		for i, sel := range selectors {
			pattern[i] = ir.SwizzleComponent(sel)
		}
		f.exprMap[ops[1]] = f.emit(ir.ExprSwizzle{
			Size:    ir.VectorSize(len(selectors)),
			Vector:  first,
			Pattern: pattern,
		})
		return nil
	}
	if fromFirst && len(selectors) == 1 {
		f.exprMap[ops[1]] = f.emit(ir.ExprAccessIndex{Base: first, Index: selectors[0]})
		return nil
	}

	second, err := f.expr(secondID)
	if err != nil {
		return err
	}
	components := make([]ir.ExpressionHandle, len(selectors))
	for i, sel := range selectors {
		if sel < firstSize {
			components[i] = f.emit(ir.ExprAccessIndex{Base: first, Index: sel})
		} else {
			components[i] = f.emit(ir.ExprAccessIndex{Base: second, Index: sel - firstSize})
		}
	}
	f.exprMap[ops[1]] = f.emit(ir.ExprCompose{Type: f.l.typeMap[ops[0]], Components: components})
	return nil
}

func (f *funcLowerer) vectorSize(id uint32) (uint32, error) {
	typeID, ok := f.typeOf[id]
	if !ok {
		if def := f.l.m.defs[id]; def != nil && len(def.Operands) >= 1 {
			typeID = def.Operands[0]
		}
	}
	def := f.l.m.defs[typeID]
	if def == nil || def.Opcode != OpTypeVector {
		return 0, fmt.Errorf("spirv: shuffle operand %%%d is not a vector", id)
	}
	return def.Operands[2], nil
}

// Image operand masks used by the sample and fetch forms.
const (
	imageOperandBias = 0x1
	imageOperandLod  = 0x2
	imageOperandGrad = 0x4
)

func (f *funcLowerer) lowerSample(inst *Instruction) error {
	ops := inst.Operands
	pair, ok := f.sampled[ops[2]]
	if !ok {
		return fmt.Errorf("spirv: sample %%%d does not use an OpSampledImage operand", ops[1])
	}
	image, err := f.expr(pair[0])
	if err != nil {
		return err
	}
	sampler, err := f.expr(pair[1])
	if err != nil {
		return err
	}
	coordinate, err := f.expr(ops[3])
	if err != nil {
		return err
	}

	var level ir.SampleLevel = ir.SampleLevelAuto{}
	if len(ops) >= 5 {
		mask := ops[4]
		operand := 5
		switch {
		case mask&imageOperandBias != 0:
			bias, err := f.expr(ops[operand])
			if err != nil {
				return err
			}
			level = ir.SampleLevelBias{Bias: bias}
		case mask&imageOperandLod != 0:
			if f.isZeroFloat(ops[operand]) {
				level = ir.SampleLevelZero{}
				break
			}
			lod, err := f.expr(ops[operand])
			if err != nil {
				return err
			}
			level = ir.SampleLevelExact{Level: lod}
		case mask&imageOperandGrad != 0:
			gradX, err := f.expr(ops[operand])
			if err != nil {
				return err
			}
			gradY, err := f.expr(ops[operand+1])
			if err != nil {
				return err
			}
			level = ir.SampleLevelGradient{X: gradX, Y: gradY}
		}
	}
	f.exprMap[ops[1]] = f.emit(ir.ExprImageSample{
		Image:      image,
		Sampler:    sampler,
		Coordinate: coordinate,
		Level:      level,
	})
	return nil
}

func (f *funcLowerer) isZeroFloat(id uint32) bool {
	def := f.l.m.defs[id]
	return def != nil && def.Opcode == OpConstant && len(def.Operands) == 3 && def.Operands[2] == 0
}

func (f *funcLowerer) lowerFetch(inst *Instruction) error {
	ops := inst.Operands
	image, err := f.expr(ops[2])
	if err != nil {
		return err
	}
	coordinate, err := f.expr(ops[3])
	if err != nil {
		return err
	}
	load := ir.ExprImageLoad{Image: image, Coordinate: coordinate}
	if len(ops) >= 6 && ops[4]&imageOperandLod != 0 {
		level, err := f.expr(ops[5])
		if err != nil {
			return err
		}
		load.Level = &level
	}
	f.exprMap[ops[1]] = f.emit(load)
	return nil
}

func (f *funcLowerer) lowerImageQuery(inst *Instruction) error {
	ops := inst.Operands
	image, err := f.expr(ops[2])
	if err != nil {
		return err
	}
	var query ir.ImageQuery
	switch inst.Opcode {
	case OpImageQuerySize:
		query = ir.ImageQuerySize{}
	case OpImageQuerySizeLod:
		level, err := f.expr(ops[3])
		if err != nil {
			return err
		}
		query = ir.ImageQuerySize{Level: &level}
	case OpImageQueryLevels:
		query = ir.ImageQueryNumLevels{}
	case OpImageQuerySamples:
		query = ir.ImageQueryNumSamples{}
	}
	f.exprMap[ops[1]] = f.emit(ir.ExprImageQuery{Image: image, Query: query})
	return nil
}

func (f *funcLowerer) lowerExtInst(inst *Instruction) error {
	ops := inst.Operands
	if set := f.l.m.extImports[ops[2]]; set != "GLSL.std.450" {
		return fmt.Errorf("spirv: unsupported extended instruction set %q", set)
	}
	fun, ok := glslMath[ops[3]]
	if !ok {
		return fmt.Errorf("spirv: unsupported GLSL.std.450 instruction %d", ops[3])
	}
	args, err := f.exprs(ops[4:])
	if err != nil {
		return err
	}
	if len(args) == 0 || len(args) > 4 {
		return fmt.Errorf("spirv: GLSL.std.450 instruction %d has %d operands", ops[3], len(args))
	}
	math := ir.ExprMath{Fun: fun, Arg: args[0]}
	if len(args) > 1 {
		math.Arg1 = &args[1]
	}
	if len(args) > 2 {
		math.Arg2 = &args[2]
	}
	if len(args) > 3 {
		math.Arg3 = &args[3]
	}
	f.exprMap[ops[1]] = f.emit(math)
	return nil
}

func (f *funcLowerer) lowerCall(inst *Instruction) error {
	ops := inst.Operands
	callee, ok := f.l.funcMap[ops[2]]
	if !ok {
		return fmt.Errorf("spirv: call to undefined function %%%d", ops[2])
	}
	args, err := f.exprs(ops[3:])
	if err != nil {
		return err
	}
	f.flush()
	call := ir.StmtCall{Function: callee, Arguments: args}
	if !f.l.voidIDs[ops[0]] {
		result := f.leaf(ir.ExprCallResult{Function: callee})
		f.exprMap[ops[1]] = result
		call.Result = &result
	}
	f.stmt(call)
	return nil
}
