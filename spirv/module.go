// Package spirv reads SPIR-V binaries: parsing, reflection, in-place
// patching of decorations and specialization constants, and lowering to
// naga IR for further translation.
package spirv

import (
	"encoding/binary"
	"fmt"
)

// MagicNumber is the first word of every SPIR-V binary.
const MagicNumber uint32 = 0x07230203

// Instruction is a single decoded SPIR-V instruction. Operands hold every
// word after the opcode word, still in wire form; patching mutates them in
// place and Words re-serializes them unchanged.
type Instruction struct {
	Opcode   OpCode
	Operands []uint32
}

// entryPoint is a decoded OpEntryPoint.
type entryPoint struct {
	model      ExecutionModel
	function   uint32
	name       string
	interfaces []uint32
}

// Module is a parsed SPIR-V binary. The instruction stream is retained so
// the module can be mutated and re-serialized without loss; the index maps
// reference the same Instruction values, so patching through the accessors
// is reflected in Words output.
type Module struct {
	// Header words after the magic number.
	Version   uint32
	Generator uint32
	Bound     uint32
	Schema    uint32

	Instructions []*Instruction

	names       map[uint32]string
	memberNames map[uint32]map[uint32]string
	// decorations[id][dec] points at the OpDecorate instruction so operand
	// rewrites land in the serialized stream.
	decorations map[uint32]map[Decoration]*Instruction
	memberDecos map[uint32]map[uint32]map[Decoration]uint32
	// defs maps a result id to its defining instruction.
	defs        map[uint32]*Instruction
	entryPoints []entryPoint
	extImports  map[uint32]string
	execModes   map[uint32][]*Instruction
}

// Parse decodes a SPIR-V binary. The byte length must be a multiple of the
// 4-byte word size; violating that is a caller bug and panics. Malformed
// content (bad magic, truncated instructions) returns an error.
func Parse(data []byte) (*Module, error) {
	if len(data)%4 != 0 {
		panic("spirv: binary length must be a multiple of 4 bytes")
	}
	words := make([]uint32, len(data)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(data[i*4:])
	}
	return parseWords(words)
}

func parseWords(words []uint32) (*Module, error) {
	if len(words) < 5 {
		return nil, fmt.Errorf("spirv: binary too short for header: %d words", len(words))
	}
	if words[0] != MagicNumber {
		return nil, fmt.Errorf("spirv: bad magic number 0x%08x", words[0])
	}
	m := &Module{
		Version:     words[1],
		Generator:   words[2],
		Bound:       words[3],
		Schema:      words[4],
		names:       make(map[uint32]string),
		memberNames: make(map[uint32]map[uint32]string),
		decorations: make(map[uint32]map[Decoration]*Instruction),
		memberDecos: make(map[uint32]map[uint32]map[Decoration]uint32),
		defs:        make(map[uint32]*Instruction),
		extImports:  make(map[uint32]string),
		execModes:   make(map[uint32][]*Instruction),
	}
	for i := 5; i < len(words); {
		first := words[i]
		count := int(first >> 16)
		op := OpCode(first & 0xffff)
		if count == 0 {
			return nil, fmt.Errorf("spirv: zero-length instruction at word %d", i)
		}
		if i+count > len(words) {
			return nil, fmt.Errorf("spirv: truncated %v at word %d: needs %d words, %d remain",
				op, i, count, len(words)-i)
		}
		inst := &Instruction{Opcode: op, Operands: words[i+1 : i+count]}
		m.Instructions = append(m.Instructions, inst)
		if err := m.index(inst); err != nil {
			return nil, err
		}
		i += count
	}
	return m, nil
}

// index records the instruction in the lookup maps.
func (m *Module) index(inst *Instruction) error {
	ops := inst.Operands
	switch inst.Opcode {
	case OpName:
		if len(ops) < 1 {
			return fmt.Errorf("spirv: OpName missing target")
		}
		m.names[ops[0]] = decodeString(ops[1:])
	case OpMemberName:
		if len(ops) < 2 {
			return fmt.Errorf("spirv: OpMemberName missing operands")
		}
		if m.memberNames[ops[0]] == nil {
			m.memberNames[ops[0]] = make(map[uint32]string)
		}
		m.memberNames[ops[0]][ops[1]] = decodeString(ops[2:])
	case OpDecorate:
		if len(ops) < 2 {
			return fmt.Errorf("spirv: OpDecorate missing operands")
		}
		if m.decorations[ops[0]] == nil {
			m.decorations[ops[0]] = make(map[Decoration]*Instruction)
		}
		m.decorations[ops[0]][Decoration(ops[1])] = inst
	case OpMemberDecorate:
		if len(ops) < 3 {
			return fmt.Errorf("spirv: OpMemberDecorate missing operands")
		}
		if m.memberDecos[ops[0]] == nil {
			m.memberDecos[ops[0]] = make(map[uint32]map[Decoration]uint32)
		}
		member := ops[1]
		if m.memberDecos[ops[0]][member] == nil {
			m.memberDecos[ops[0]][member] = make(map[Decoration]uint32)
		}
		var value uint32
		if len(ops) > 3 {
			value = ops[3]
		}
		m.memberDecos[ops[0]][member][Decoration(ops[2])] = value
	case OpEntryPoint:
		if len(ops) < 3 {
			return fmt.Errorf("spirv: OpEntryPoint missing operands")
		}
		name, rest := decodeStringRest(ops[2:])
		m.entryPoints = append(m.entryPoints, entryPoint{
			model:      ExecutionModel(ops[0]),
			function:   ops[1],
			name:       name,
			interfaces: rest,
		})
	case OpExecutionMode:
		if len(ops) < 2 {
			return fmt.Errorf("spirv: OpExecutionMode missing operands")
		}
		m.execModes[ops[0]] = append(m.execModes[ops[0]], inst)
	case OpExtInstImport:
		if len(ops) < 1 {
			return fmt.Errorf("spirv: OpExtInstImport missing result id")
		}
		m.extImports[ops[0]] = decodeString(ops[1:])
	default:
		if id, ok := resultID(inst); ok {
			m.defs[id] = inst
		}
	}
	return nil
}

// resultID reports the result id of an instruction, for the instruction
// forms this package indexes.
func resultID(inst *Instruction) (uint32, bool) {
	ops := inst.Operands
	switch inst.Opcode {
	case OpTypeVoid, OpTypeBool, OpTypeInt, OpTypeFloat, OpTypeVector,
		OpTypeMatrix, OpTypeImage, OpTypeSampler, OpTypeSampledImage,
		OpTypeArray, OpTypeRuntimeArray, OpTypeStruct, OpTypePointer,
		OpTypeFunction, OpLabel, OpString:
		if len(ops) >= 1 {
			return ops[0], true
		}
	case OpConstantTrue, OpConstantFalse, OpConstant, OpConstantComposite,
		OpConstantNull, OpSpecConstantTrue, OpSpecConstantFalse,
		OpSpecConstant, OpSpecConstantComposite, OpVariable, OpFunction,
		OpFunctionParameter, OpUndef:
		if len(ops) >= 2 {
			return ops[1], true
		}
	default:
		// Result-bearing body instructions (loads, arithmetic, ext inst)
		// follow the [type, result, ...] form. The lowerer walks function
		// bodies positionally, so only the globally referenced ones above
		// need indexing; still record the common form when present.
		if len(ops) >= 2 && bodyHasResult(inst.Opcode) {
			return ops[1], true
		}
	}
	return 0, false
}

func bodyHasResult(op OpCode) bool {
	switch op {
	case OpLoad, OpAccessChain, OpInBoundsAccessChain, OpCompositeConstruct,
		OpCompositeExtract, OpVectorShuffle, OpSampledImage, OpExtInst,
		OpFunctionCall, OpSelect, OpBitcast, OpDot,
		OpImageSampleImplicitLod, OpImageSampleExplicitLod, OpImageFetch:
		return true
	}
	return false
}

// decodeString decodes a nul-terminated SPIR-V literal string.
func decodeString(words []uint32) string {
	s, _ := decodeStringRest(words)
	return s
}

// decodeStringRest decodes a literal string and returns the words after it.
func decodeStringRest(words []uint32) (string, []uint32) {
	var buf []byte
	for i, w := range words {
		for shift := 0; shift < 32; shift += 8 {
			b := byte(w >> shift)
			if b == 0 {
				return string(buf), words[i+1:]
			}
			buf = append(buf, b)
		}
	}
	return string(buf), nil
}

// Name returns the debug name recorded for id, if any.
func (m *Module) Name(id uint32) string { return m.names[id] }

// MemberName returns the debug name of a struct member, if any.
func (m *Module) MemberName(structID, member uint32) string {
	return m.memberNames[structID][member]
}

// Def returns the defining instruction for a result id.
func (m *Module) Def(id uint32) *Instruction { return m.defs[id] }

// Decoration returns the single-word argument of a decoration on id. A
// missing decoration is a QueryError: the id exists in the binary but does
// not carry the requested decoration.
func (m *Module) Decoration(id uint32, dec Decoration) (uint32, error) {
	inst, ok := m.decorations[id][dec]
	if !ok {
		return 0, &QueryError{Msg: fmt.Sprintf("id %%%d has no decoration %d", id, dec)}
	}
	if len(inst.Operands) < 3 {
		return 0, nil
	}
	return inst.Operands[2], nil
}

// HasDecoration reports whether id carries dec.
func (m *Module) HasDecoration(id uint32, dec Decoration) bool {
	_, ok := m.decorations[id][dec]
	return ok
}

// MemberDecoration returns the argument of a decoration on a struct member.
func (m *Module) MemberDecoration(structID, member uint32, dec Decoration) (uint32, bool) {
	v, ok := m.memberDecos[structID][member][dec]
	return v, ok
}

// SetDecoration rewrites the argument of an existing decoration on id in
// place. The decoration must already be present: remapping never invents
// decorations, so a miss here means the module was mutated out from under
// us and is a WriteError, not a QueryError.
func (m *Module) SetDecoration(id uint32, dec Decoration, value uint32) error {
	inst, ok := m.decorations[id][dec]
	if !ok || len(inst.Operands) < 3 {
		return &WriteError{Msg: fmt.Sprintf("cannot rewrite decoration %d on id %%%d", dec, id)}
	}
	inst.Operands[2] = value
	return nil
}

// Words re-serializes the module to its word stream.
func (m *Module) Words() []uint32 {
	n := 5
	for _, inst := range m.Instructions {
		n += 1 + len(inst.Operands)
	}
	words := make([]uint32, 0, n)
	words = append(words, MagicNumber, m.Version, m.Generator, m.Bound, m.Schema)
	for _, inst := range m.Instructions {
		words = append(words, uint32(1+len(inst.Operands))<<16|uint32(inst.Opcode))
		words = append(words, inst.Operands...)
	}
	return words
}

// Bytes re-serializes the module to a little-endian binary.
func (m *Module) Bytes() []byte {
	words := m.Words()
	data := make([]byte, len(words)*4)
	for i, w := range words {
		binary.LittleEndian.PutUint32(data[i*4:], w)
	}
	return data
}

// QueryError reports that a lookup into the binary found the subject but
// not the requested attribute.
type QueryError struct{ Msg string }

func (e *QueryError) Error() string { return "spirv: " + e.Msg }

// WriteError reports that an in-place rewrite of the binary failed. This
// indicates internal inconsistency rather than bad input.
type WriteError struct{ Msg string }

func (e *WriteError) Error() string { return "spirv: " + e.Msg }
