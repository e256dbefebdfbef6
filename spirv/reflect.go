package spirv

// Resource is a module-scope variable that binds to a descriptor.
type Resource struct {
	ID     uint32
	Name   string
	TypeID uint32 // pointee type, not the pointer type
}

// Resources groups the module's bindable variables by the register class
// they occupy after translation to HLSL.
type Resources struct {
	SeparateImages   []Resource
	UniformBuffers   []Resource
	StorageBuffers   []Resource
	StorageImages    []Resource
	SeparateSamplers []Resource
	SampledImages    []Resource
}

// Resources classifies every global OpVariable by storage class and pointee
// type. Uniform-class variables are uniform buffers unless the legacy
// BufferBlock decoration marks the block as a storage buffer.
func (m *Module) Resources() Resources {
	var res Resources
	for _, inst := range m.Instructions {
		if inst.Opcode != OpVariable || len(inst.Operands) < 3 {
			continue
		}
		id := inst.Operands[1]
		class := StorageClass(inst.Operands[2])
		pointee := m.pointeeType(inst.Operands[0])
		r := Resource{ID: id, Name: m.names[id], TypeID: pointee}
		switch class {
		case StorageClassUniformConstant:
			switch m.defOpcode(pointee) {
			case OpTypeSampler:
				res.SeparateSamplers = append(res.SeparateSamplers, r)
			case OpTypeSampledImage:
				res.SampledImages = append(res.SampledImages, r)
			case OpTypeImage:
				if m.imageIsStorage(pointee) {
					res.StorageImages = append(res.StorageImages, r)
				} else {
					res.SeparateImages = append(res.SeparateImages, r)
				}
			}
		case StorageClassUniform:
			if m.HasDecoration(pointee, DecorationBufferBlock) {
				res.StorageBuffers = append(res.StorageBuffers, r)
			} else {
				res.UniformBuffers = append(res.UniformBuffers, r)
			}
		case StorageClassStorageBuffer:
			res.StorageBuffers = append(res.StorageBuffers, r)
		}
	}
	return res
}

// pointeeType resolves an OpTypePointer result to its base type id.
func (m *Module) pointeeType(ptrType uint32) uint32 {
	def := m.defs[ptrType]
	if def == nil || def.Opcode != OpTypePointer || len(def.Operands) < 3 {
		return 0
	}
	return def.Operands[2]
}

func (m *Module) defOpcode(id uint32) OpCode {
	def := m.defs[id]
	if def == nil {
		return OpNop
	}
	return def.Opcode
}

// imageIsStorage reports whether an OpTypeImage has Sampled=2, meaning it
// is read/written without a sampler.
func (m *Module) imageIsStorage(imageType uint32) bool {
	def := m.defs[imageType]
	// OpTypeImage operands: result, sampledType, dim, depth, arrayed, ms, sampled, format
	return def != nil && len(def.Operands) >= 7 && def.Operands[6] == 2
}

// constUint reads the value of a 32-bit integer constant result id.
func (m *Module) constUint(id uint32) (uint32, bool) {
	def := m.defs[id]
	if def == nil || len(def.Operands) < 3 {
		return 0, false
	}
	if def.Opcode != OpConstant && def.Opcode != OpSpecConstant {
		return 0, false
	}
	return def.Operands[2], true
}

// SpecConstant describes one specialization constant in the module.
type SpecConstant struct {
	// ID is the SPIR-V result id of the constant instruction.
	ID uint32
	// ConstantID is the SpecId decoration value overrides match against.
	ConstantID uint32
}

// SpecConstants lists the module's specialization constants in instruction
// order. Constants without a SpecId decoration are skipped: nothing can
// address them.
func (m *Module) SpecConstants() []SpecConstant {
	var out []SpecConstant
	for _, inst := range m.Instructions {
		switch inst.Opcode {
		case OpSpecConstant, OpSpecConstantTrue, OpSpecConstantFalse:
			if len(inst.Operands) < 2 {
				continue
			}
			id := inst.Operands[1]
			cid, err := m.Decoration(id, DecorationSpecID)
			if err != nil {
				continue
			}
			out = append(out, SpecConstant{ID: id, ConstantID: cid})
		}
	}
	return out
}
