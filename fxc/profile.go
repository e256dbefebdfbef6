package fxc

import (
	"github.com/gogpu/naga/hlsl"
	"github.com/gogpu/naga/ir"
)

// Profile builds the target profile string for a stage and shader model,
// e.g. "ps_5_0". Only the stage and model combinations the legacy fxc
// toolchain accepts are implemented; anything else is a programmer error
// and panics.
func Profile(stage ir.ShaderStage, model hlsl.ShaderModel) string {
	var prefix string
	switch stage {
	case ir.StageVertex:
		prefix = "vs"
	case ir.StageFragment:
		prefix = "ps"
	case ir.StageCompute:
		prefix = "cs"
	default:
		panic("fxc: unsupported shader stage")
	}
	switch model {
	case hlsl.ShaderModel5_0:
		return prefix + "_5_0"
	case hlsl.ShaderModel5_1:
		return prefix + "_5_1"
	case hlsl.ShaderModel6_0:
		return prefix + "_6_0"
	default:
		panic("fxc: unimplemented shader model " + model.ProfileSuffix())
	}
}
