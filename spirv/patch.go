package spirv

import "fmt"

// SetSpecValue overrides the default of the specialization constant with
// result id. The value is a 64-bit reinterpretation of the override: the
// low 32 bits are written for 32-bit constants, both halves for 64-bit
// ones, and boolean constants flip between the true and false opcodes.
func (m *Module) SetSpecValue(id uint32, bits uint64) error {
	inst := m.defs[id]
	if inst == nil {
		return &QueryError{Msg: fmt.Sprintf("no specialization constant with id %%%d", id)}
	}
	switch inst.Opcode {
	case OpSpecConstantTrue, OpSpecConstantFalse:
		if bits != 0 {
			inst.Opcode = OpSpecConstantTrue
		} else {
			inst.Opcode = OpSpecConstantFalse
		}
	case OpSpecConstant:
		// Operands: [type, result, literal...] — literal width follows the
		// constant's declared width, already reflected in the operand count.
		switch len(inst.Operands) {
		case 3:
			inst.Operands[2] = uint32(bits)
		case 4:
			inst.Operands[2] = uint32(bits)
			inst.Operands[3] = uint32(bits >> 32)
		default:
			return &WriteError{Msg: fmt.Sprintf("spec constant %%%d has unsupported literal width", id)}
		}
	default:
		return &QueryError{Msg: fmt.Sprintf("id %%%d is not a specialization constant", id)}
	}
	return nil
}

// RemapResourceSpaces shifts the descriptor set of every bindable resource
// by offset, so that set N lands in HLSL register space N+offset. The shift
// is additive: calling it twice shifts twice. A variable without a
// DescriptorSet decoration yields a QueryError; a failed rewrite of an
// existing decoration yields a WriteError.
func (m *Module) RemapResourceSpaces(offset uint32) error {
	res := m.Resources()
	for _, group := range [][]Resource{
		res.SeparateImages,
		res.UniformBuffers,
		res.StorageBuffers,
		res.StorageImages,
		res.SeparateSamplers,
		res.SampledImages,
	} {
		for _, r := range group {
			set, err := m.Decoration(r.ID, DecorationDescriptorSet)
			if err != nil {
				return err
			}
			if err := m.SetDecoration(r.ID, DecorationDescriptorSet, set+offset); err != nil {
				return err
			}
		}
	}
	return nil
}
