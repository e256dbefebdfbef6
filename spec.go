package spirvcross

import "math"

// SpecValue is a specialization constant override value. Every value
// flattens to the 64-bit pattern written into the shader binary: booleans
// and unsigned integers zero-extend, signed integers keep their
// two's-complement bit pattern, and floats are reinterpreted bitwise.
type SpecValue interface {
	// Bits returns the 64-bit reinterpretation of the value.
	Bits() uint64
}

// BoolValue overrides a boolean specialization constant.
type BoolValue bool

func (v BoolValue) Bits() uint64 {
	if v {
		return 1
	}
	return 0
}

// U32Value overrides a 32-bit unsigned integer specialization constant.
type U32Value uint32

func (v U32Value) Bits() uint64 { return uint64(v) }

// U64Value overrides a 64-bit unsigned integer specialization constant.
type U64Value uint64

func (v U64Value) Bits() uint64 { return uint64(v) }

// I32Value overrides a 32-bit signed integer specialization constant.
type I32Value int32

func (v I32Value) Bits() uint64 { return uint64(uint32(v)) }

// I64Value overrides a 64-bit signed integer specialization constant.
type I64Value int64

func (v I64Value) Bits() uint64 { return uint64(v) }

// F32Value overrides a 32-bit float specialization constant.
type F32Value float32

func (v F32Value) Bits() uint64 { return uint64(math.Float32bits(float32(v))) }

// F64Value overrides a 64-bit float specialization constant.
type F64Value float64

func (v F64Value) Bits() uint64 { return math.Float64bits(float64(v)) }

// SpecConstant pairs a specialization constant id with its override value.
// The ID matches the constant_id declared in the shader source, not the
// SPIR-V result id.
type SpecConstant struct {
	ID    uint32
	Value SpecValue
}
