package spirvcross

import "github.com/gogpu/gputypes"

// BindGroup is the layout of one descriptor set, in binding order.
type BindGroup []gputypes.BindGroupLayoutEntry

// RootConstants describes a push-constant range exposed as D3D root
// constants. The range is in units of 4-byte constants.
//
// Root constant layouts are carried through the pipeline for callers that
// build them, but the generated HLSL does not consume them yet: register
// space 0 stays reserved for the emulation buffer regardless.
type RootConstants struct {
	Stages gputypes.ShaderStage
	Start  uint32
	End    uint32
}

// PipelineLayout describes the resource interface a shader is compiled
// against: one BindGroup per descriptor set plus any root constant ranges.
type PipelineLayout struct {
	Groups        []BindGroup
	RootConstants []RootConstants
}

// SpaceOffset returns the shift from SPIR-V descriptor sets to HLSL
// register spaces. Space 0 is reserved for root constant emulation, so
// set N lands in space N+1.
func (l *PipelineLayout) SpaceOffset() uint32 {
	return 1
}
