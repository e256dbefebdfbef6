// Package spvasm assembles small SPIR-V binaries instruction by
// instruction, with full control over ids, operands, and label layout.
// It exists for tests and tooling that need binaries the higher-level
// builders cannot express, such as hand-laid control flow.
package spvasm

import (
	"encoding/binary"

	"github.com/gogpu/spirvcross/spirv"
)

// Assembler accumulates instructions and serializes them behind a
// standard module header.
type Assembler struct {
	insts []uint32
	next  uint32
}

// New returns an empty assembler. Ids start at 1, per the SPIR-V rule
// that 0 is never a valid id.
func New() *Assembler {
	return &Assembler{next: 1}
}

// ID allocates the next result id. The module header's bound is derived
// from the highest allocation.
func (a *Assembler) ID() uint32 {
	id := a.next
	a.next++
	return id
}

// Op appends one instruction with the given operand words.
func (a *Assembler) Op(op spirv.OpCode, operands ...uint32) {
	a.insts = append(a.insts, uint32(len(operands)+1)<<16|uint32(op))
	a.insts = append(a.insts, operands...)
}

// Words serializes the module to its word stream.
func (a *Assembler) Words() []uint32 {
	words := make([]uint32, 0, 5+len(a.insts))
	words = append(words, spirv.MagicNumber, 0x00010000, 0, a.next, 0)
	return append(words, a.insts...)
}

// Bytes serializes the module to a little-endian binary.
func (a *Assembler) Bytes() []byte {
	words := a.Words()
	data := make([]byte, len(words)*4)
	for i, w := range words {
		binary.LittleEndian.PutUint32(data[i*4:], w)
	}
	return data
}

// Str encodes a literal string as nul-terminated words, little-endian
// packed, for splicing into instruction operands.
func Str(s string) []uint32 {
	words := make([]uint32, 0, len(s)/4+1)
	var w uint32
	shift := 0
	for i := 0; i < len(s); i++ {
		w |= uint32(s[i]) << shift
		shift += 8
		if shift == 32 {
			words = append(words, w)
			w, shift = 0, 0
		}
	}
	// The terminator always fits: either in the partial word or in a
	// fresh all-zero one.
	return append(words, w)
}

// Cat splices operand groups into a single operand list.
func Cat(groups ...[]uint32) []uint32 {
	var out []uint32
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}

// U is shorthand for building an operand group from scalar words.
func U(words ...uint32) []uint32 { return words }
