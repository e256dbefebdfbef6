package spirv

import (
	"fmt"

	"github.com/gogpu/naga/ir"
)

// LowerOptions controls SPIR-V to IR lowering.
type LowerOptions struct {
	// InvertY negates the Y component of the position output of vertex
	// entry points, converting between the Vulkan and D3D clip-space
	// conventions.
	InvertY bool
}

// Lower converts the module to naga IR. The module must follow the
// structured control-flow conventions SPIR-V producers emit (selection and
// loop merge instructions on every divergent branch); unstructured control
// flow is rejected.
//
// Lower reads the current instruction stream, so specialization overrides
// and descriptor-set remaps applied beforehand are reflected in the result.
func (m *Module) Lower(opts *LowerOptions) (*ir.Module, error) {
	if opts == nil {
		opts = &LowerOptions{}
	}
	l := &lowerer{
		m:         m,
		opts:      opts,
		out:       &ir.Module{},
		reg:       ir.NewTypeRegistry(),
		typeMap:   make(map[uint32]ir.TypeHandle),
		voidIDs:   make(map[uint32]bool),
		constMap:  make(map[uint32]ir.ConstantHandle),
		globalMap: make(map[uint32]ir.GlobalVariableHandle),
		funcMap:   make(map[uint32]ir.FunctionHandle),
	}
	if err := l.lowerTypes(); err != nil {
		return nil, err
	}
	if err := l.lowerConstants(); err != nil {
		return nil, err
	}
	if err := l.lowerGlobals(); err != nil {
		return nil, err
	}
	if err := l.lowerFunctions(); err != nil {
		return nil, err
	}
	l.out.Types = l.reg.GetTypes()
	if err := l.resolveExpressionTypes(); err != nil {
		return nil, err
	}
	if err := l.lowerEntryPoints(); err != nil {
		return nil, err
	}
	return l.out, nil
}

type lowerer struct {
	m    *Module
	opts *LowerOptions
	out  *ir.Module
	reg  *ir.TypeRegistry

	typeMap   map[uint32]ir.TypeHandle
	voidIDs   map[uint32]bool
	constMap  map[uint32]ir.ConstantHandle
	globalMap map[uint32]ir.GlobalVariableHandle
	funcMap   map[uint32]ir.FunctionHandle
}

// lowerTypes converts every OpType* in declaration order. SPIR-V requires
// types to be declared before use, so a single forward pass suffices.
func (l *lowerer) lowerTypes() error {
	for _, inst := range l.m.Instructions {
		switch inst.Opcode {
		case OpTypeVoid:
			l.voidIDs[inst.Operands[0]] = true
		case OpTypeBool, OpTypeInt, OpTypeFloat, OpTypeVector, OpTypeMatrix,
			OpTypeArray, OpTypeRuntimeArray, OpTypeStruct, OpTypePointer,
			OpTypeSampler, OpTypeImage, OpTypeSampledImage:
			inner, err := l.typeInner(inst)
			if err != nil {
				return err
			}
			if inner == nil {
				continue
			}
			id := inst.Operands[0]
			l.typeMap[id] = l.reg.GetOrCreate(l.m.names[id], inner)
		}
	}
	return nil
}

func (l *lowerer) typeInner(inst *Instruction) (ir.TypeInner, error) {
	ops := inst.Operands
	switch inst.Opcode {
	case OpTypeBool:
		return ir.ScalarType{Kind: ir.ScalarBool, Width: 1}, nil
	case OpTypeInt:
		kind := ir.ScalarUint
		if ops[2] != 0 {
			kind = ir.ScalarSint
		}
		return ir.ScalarType{Kind: kind, Width: uint8(ops[1] / 8)}, nil
	case OpTypeFloat:
		return ir.ScalarType{Kind: ir.ScalarFloat, Width: uint8(ops[1] / 8)}, nil
	case OpTypeVector:
		scalar, ok := l.scalarInner(ops[1])
		if !ok {
			return nil, fmt.Errorf("spirv: vector %%%d has non-scalar component", ops[0])
		}
		return ir.VectorType{Size: ir.VectorSize(ops[2]), Scalar: scalar}, nil
	case OpTypeMatrix:
		col := l.m.defs[ops[1]]
		if col == nil || col.Opcode != OpTypeVector {
			return nil, fmt.Errorf("spirv: matrix %%%d has non-vector column", ops[0])
		}
		scalar, _ := l.scalarInner(col.Operands[1])
		return ir.MatrixType{
			Columns: ir.VectorSize(ops[2]),
			Rows:    ir.VectorSize(col.Operands[2]),
			Scalar:  scalar,
		}, nil
	case OpTypeArray:
		base, ok := l.typeMap[ops[1]]
		if !ok {
			return nil, fmt.Errorf("spirv: array %%%d has unknown base type", ops[0])
		}
		size, ok := l.m.constUint(ops[2])
		if !ok {
			return nil, fmt.Errorf("spirv: array %%%d has non-constant length", ops[0])
		}
		stride, _ := l.m.Decoration(ops[0], DecorationArrayStride)
		return ir.ArrayType{Base: base, Size: ir.ArraySize{Constant: &size}, Stride: stride}, nil
	case OpTypeRuntimeArray:
		base, ok := l.typeMap[ops[1]]
		if !ok {
			return nil, fmt.Errorf("spirv: runtime array %%%d has unknown base type", ops[0])
		}
		stride, _ := l.m.Decoration(ops[0], DecorationArrayStride)
		return ir.ArrayType{Base: base, Size: ir.ArraySize{}, Stride: stride}, nil
	case OpTypeStruct:
		id := ops[0]
		members := make([]ir.StructMember, 0, len(ops)-1)
		var span uint32
		for i, memberType := range ops[1:] {
			handle, ok := l.typeMap[memberType]
			if !ok {
				return nil, fmt.Errorf("spirv: struct %%%d member %d has unknown type", id, i)
			}
			offset, _ := l.m.MemberDecoration(id, uint32(i), DecorationOffset)
			members = append(members, ir.StructMember{
				Name:   l.m.MemberName(id, uint32(i)),
				Type:   handle,
				Offset: offset,
			})
			if end := offset + l.typeSize(handle); end > span {
				span = end
			}
		}
		// cbuffer rules pad struct sizes to 16-byte boundaries.
		span = (span + 15) &^ 15
		return ir.StructType{Members: members, Span: span}, nil
	case OpTypePointer:
		class := StorageClass(ops[1])
		if class == StorageClassInput || class == StorageClassOutput {
			// Interface pointer types surface through their variables,
			// which lowerGlobal rejects with a specific error.
			return nil, nil
		}
		base, ok := l.typeMap[ops[2]]
		if !ok {
			return nil, fmt.Errorf("spirv: pointer %%%d has unknown base type", ops[0])
		}
		space, err := addressSpace(class)
		if err != nil {
			return nil, err
		}
		return ir.PointerType{Base: base, Space: space}, nil
	case OpTypeSampler:
		return ir.SamplerType{}, nil
	case OpTypeImage:
		// Operands: result, sampledType, dim, depth, arrayed, ms, sampled, format
		var dim ir.ImageDimension
		switch Dim(ops[2]) {
		case Dim1D:
			dim = ir.Dim1D
		case Dim2D:
			dim = ir.Dim2D
		case Dim3D:
			dim = ir.Dim3D
		case DimCube:
			dim = ir.DimCube
		default:
			return nil, fmt.Errorf("spirv: image %%%d has unsupported dimensionality %d", ops[0], ops[2])
		}
		class := ir.ImageClassSampled
		switch {
		case ops[3] == 1:
			class = ir.ImageClassDepth
		case ops[6] == 2:
			class = ir.ImageClassStorage
		}
		return ir.ImageType{
			Dim:          dim,
			Arrayed:      ops[4] != 0,
			Class:        class,
			Multisampled: ops[5] != 0,
		}, nil
	case OpTypeSampledImage:
		// A combined image-sampler type. It only becomes a problem when a
		// variable of this type exists; the type itself maps to its image.
		if base, ok := l.typeMap[ops[1]]; ok {
			l.typeMap[ops[0]] = base
		}
		return nil, nil
	}
	return nil, fmt.Errorf("spirv: unhandled type instruction %v", inst.Opcode)
}

func (l *lowerer) scalarInner(typeID uint32) (ir.ScalarType, bool) {
	def := l.m.defs[typeID]
	if def == nil {
		return ir.ScalarType{}, false
	}
	switch def.Opcode {
	case OpTypeBool:
		return ir.ScalarType{Kind: ir.ScalarBool, Width: 1}, true
	case OpTypeInt:
		kind := ir.ScalarUint
		if def.Operands[2] != 0 {
			kind = ir.ScalarSint
		}
		return ir.ScalarType{Kind: kind, Width: uint8(def.Operands[1] / 8)}, true
	case OpTypeFloat:
		return ir.ScalarType{Kind: ir.ScalarFloat, Width: uint8(def.Operands[1] / 8)}, true
	}
	return ir.ScalarType{}, false
}

// typeSize approximates the byte size of a registered type, for struct
// span computation.
func (l *lowerer) typeSize(handle ir.TypeHandle) uint32 {
	t, ok := l.reg.Lookup(handle)
	if !ok {
		return 0
	}
	switch inner := t.Inner.(type) {
	case ir.ScalarType:
		return uint32(inner.Width)
	case ir.VectorType:
		return uint32(inner.Size) * uint32(inner.Scalar.Width)
	case ir.MatrixType:
		return uint32(inner.Columns) * 4 * uint32(inner.Scalar.Width)
	case ir.ArrayType:
		if inner.Size.Constant != nil {
			return *inner.Size.Constant * inner.Stride
		}
		return 0
	case ir.StructType:
		return inner.Span
	}
	return 0
}

func addressSpace(class StorageClass) (ir.AddressSpace, error) {
	switch class {
	case StorageClassFunction:
		return ir.SpaceFunction, nil
	case StorageClassPrivate:
		return ir.SpacePrivate, nil
	case StorageClassWorkgroup:
		return ir.SpaceWorkGroup, nil
	case StorageClassUniform:
		return ir.SpaceUniform, nil
	case StorageClassStorageBuffer:
		return ir.SpaceStorage, nil
	case StorageClassPushConstant:
		return ir.SpacePushConstant, nil
	case StorageClassUniformConstant:
		return ir.SpaceHandle, nil
	}
	return 0, fmt.Errorf("spirv: unsupported storage class %d", class)
}

// lowerConstants converts the scalar and composite constants. Spec
// constants are baked with their current literal values: overrides applied
// through SetSpecValue before lowering become plain constants here.
func (l *lowerer) lowerConstants() error {
	for _, inst := range l.m.Instructions {
		ops := inst.Operands
		switch inst.Opcode {
		case OpConstantTrue, OpSpecConstantTrue:
			l.addConstant(ops[1], ops[0], ir.ScalarValue{Bits: 1, Kind: ir.ScalarBool})
		case OpConstantFalse, OpSpecConstantFalse:
			l.addConstant(ops[1], ops[0], ir.ScalarValue{Bits: 0, Kind: ir.ScalarBool})
		case OpConstant, OpSpecConstant:
			scalar, ok := l.scalarInner(ops[0])
			if !ok {
				return fmt.Errorf("spirv: constant %%%d has non-scalar type", ops[1])
			}
			bits := uint64(ops[2])
			if len(ops) >= 4 {
				bits |= uint64(ops[3]) << 32
			}
			l.addConstant(ops[1], ops[0], ir.ScalarValue{Bits: bits, Kind: scalar.Kind})
		case OpConstantComposite, OpSpecConstantComposite:
			components := make([]ir.ConstantHandle, 0, len(ops)-2)
			for _, id := range ops[2:] {
				handle, ok := l.constMap[id]
				if !ok {
					return fmt.Errorf("spirv: composite constant %%%d references unknown constant %%%d", ops[1], id)
				}
				components = append(components, handle)
			}
			l.addConstant(ops[1], ops[0], ir.CompositeValue{Components: components})
		case OpConstantNull:
			scalar, ok := l.scalarInner(ops[0])
			if !ok {
				return fmt.Errorf("spirv: null constant %%%d of non-scalar type is unsupported", ops[1])
			}
			l.addConstant(ops[1], ops[0], ir.ScalarValue{Bits: 0, Kind: scalar.Kind})
		}
	}
	return nil
}

func (l *lowerer) addConstant(id, typeID uint32, value ir.ConstantValue) {
	handle := ir.ConstantHandle(len(l.out.Constants))
	l.out.Constants = append(l.out.Constants, ir.Constant{
		Name:  l.m.names[id],
		Type:  l.typeMap[typeID],
		Value: value,
	})
	l.constMap[id] = handle
}

// lowerGlobals converts module-scope variables. Function-scope variables
// are handled during function lowering.
func (l *lowerer) lowerGlobals() error {
	inFunction := false
	for _, inst := range l.m.Instructions {
		switch inst.Opcode {
		case OpFunction:
			inFunction = true
		case OpFunctionEnd:
			inFunction = false
		case OpVariable:
			if inFunction {
				continue
			}
			if err := l.lowerGlobal(inst); err != nil {
				return err
			}
		}
	}
	return nil
}

func (l *lowerer) lowerGlobal(inst *Instruction) error {
	ops := inst.Operands
	id := ops[1]
	class := StorageClass(ops[2])
	switch class {
	case StorageClassInput, StorageClassOutput:
		// Interface globals carry entry point IO in older producers; the
		// parameter-passing form handled during function lowering is the
		// only one supported here.
		return fmt.Errorf("spirv: interface variable %%%d: input/output globals are unsupported, pass IO as entry point parameters", id)
	}
	space, err := addressSpace(class)
	if err != nil {
		return err
	}
	pointeeID := l.m.pointeeType(ops[0])
	if l.m.defOpcode(pointeeID) == OpTypeSampledImage {
		return fmt.Errorf("spirv: variable %%%d: combined image-samplers cannot be lowered, use separate images and samplers", id)
	}
	pointee, ok := l.typeMap[pointeeID]
	if !ok {
		return fmt.Errorf("spirv: variable %%%d has unknown type", id)
	}
	var binding *ir.ResourceBinding
	if l.m.HasDecoration(id, DecorationDescriptorSet) || l.m.HasDecoration(id, DecorationBinding) {
		group, _ := l.m.Decoration(id, DecorationDescriptorSet)
		slot, _ := l.m.Decoration(id, DecorationBinding)
		binding = &ir.ResourceBinding{Group: group, Binding: slot}
	}
	var init *ir.ConstantHandle
	if len(ops) >= 4 {
		handle, ok := l.constMap[ops[3]]
		if !ok {
			return fmt.Errorf("spirv: variable %%%d has non-constant initializer", id)
		}
		init = &handle
	}
	l.globalMap[id] = ir.GlobalVariableHandle(len(l.out.GlobalVariables))
	l.out.GlobalVariables = append(l.out.GlobalVariables, ir.GlobalVariable{
		Name:    l.m.names[id],
		Space:   space,
		Binding: binding,
		Type:    pointee,
		Init:    init,
	})
	return nil
}

// lowerFunctions converts every function body. Handles are assigned in a
// first pass so calls can reference functions defined later in the binary.
func (l *lowerer) lowerFunctions() error {
	var funcs []*funcBody
	for i := 0; i < len(l.m.Instructions); i++ {
		inst := l.m.Instructions[i]
		if inst.Opcode != OpFunction {
			continue
		}
		body := &funcBody{start: i, inst: inst}
		for ; i < len(l.m.Instructions); i++ {
			if l.m.Instructions[i].Opcode == OpFunctionEnd {
				break
			}
		}
		body.end = i
		l.funcMap[inst.Operands[1]] = ir.FunctionHandle(len(funcs))
		funcs = append(funcs, body)
	}
	for _, body := range funcs {
		fn, err := l.lowerFunction(body)
		if err != nil {
			return err
		}
		l.out.Functions = append(l.out.Functions, fn)
	}
	return nil
}

type funcBody struct {
	inst       *Instruction
	start, end int // instruction indexes, end exclusive of OpFunctionEnd
}

func (l *lowerer) resolveExpressionTypes() error {
	for i := range l.out.Functions {
		fn := &l.out.Functions[i]
		fn.ExpressionTypes = make([]ir.TypeResolution, len(fn.Expressions))
		for h := range fn.Expressions {
			res, err := ir.ResolveExpressionType(l.out, fn, ir.ExpressionHandle(h))
			if err != nil {
				return fmt.Errorf("spirv: %s: %w", fn.Name, err)
			}
			fn.ExpressionTypes[h] = res
		}
	}
	return nil
}

// lowerEntryPoints converts OpEntryPoint declarations and recovers IO
// bindings on their functions. The binary form this package handles passes
// entry point IO as function parameters and result; the bindings are
// recovered from types: the vertex result is the position, other results
// and all arguments are sequential user locations, and the sole vec3<u32>
// argument of a compute entry is the global invocation id.
func (l *lowerer) lowerEntryPoints() error {
	for _, ep := range l.m.entryPoints {
		handle, ok := l.funcMap[ep.function]
		if !ok {
			return fmt.Errorf("spirv: entry point %q references unknown function %%%d", ep.name, ep.function)
		}
		var stage ir.ShaderStage
		switch ep.model {
		case ExecutionModelVertex:
			stage = ir.StageVertex
		case ExecutionModelFragment:
			stage = ir.StageFragment
		case ExecutionModelGLCompute:
			stage = ir.StageCompute
		default:
			return fmt.Errorf("spirv: entry point %q has unsupported execution model %d", ep.name, ep.model)
		}
		out := ir.EntryPoint{Name: ep.name, Stage: stage, Function: handle}
		for _, mode := range l.m.execModes[ep.function] {
			if ExecutionMode(mode.Operands[1]) == ExecutionModeLocalSize && len(mode.Operands) >= 5 {
				out.Workgroup = [3]uint32{mode.Operands[2], mode.Operands[3], mode.Operands[4]}
			}
		}
		l.recoverIOBindings(&l.out.Functions[handle], stage)
		l.out.EntryPoints = append(l.out.EntryPoints, out)
	}
	return nil
}

func (l *lowerer) recoverIOBindings(fn *ir.Function, stage ir.ShaderStage) {
	if fn.Result != nil && fn.Result.Binding == nil {
		var binding ir.Binding = ir.LocationBinding{Location: 0}
		if stage == ir.StageVertex {
			binding = ir.BuiltinBinding{Builtin: ir.BuiltinPosition}
		}
		fn.Result.Binding = &binding
	}
	location := uint32(0)
	for i := range fn.Arguments {
		arg := &fn.Arguments[i]
		if arg.Binding != nil {
			continue
		}
		if stage == ir.StageCompute && l.isInvocationID(arg.Type) {
			var binding ir.Binding = ir.BuiltinBinding{Builtin: ir.BuiltinGlobalInvocationID}
			arg.Binding = &binding
			continue
		}
		var binding ir.Binding = ir.LocationBinding{Location: location}
		arg.Binding = &binding
		location++
	}
}

func (l *lowerer) isInvocationID(handle ir.TypeHandle) bool {
	t, ok := l.reg.Lookup(handle)
	if !ok {
		return false
	}
	vec, ok := t.Inner.(ir.VectorType)
	return ok && vec.Size == ir.Vec3 && vec.Scalar.Kind == ir.ScalarUint
}
