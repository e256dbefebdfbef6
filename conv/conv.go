// Package conv converts between gputypes pipeline descriptions and the
// shader compiler's own vocabulary: stage masks, IR stages, and DXGI
// formats.
package conv

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/naga/ir"
)

// ToIRStage converts a single-stage visibility mask to an IR shader stage.
// The mask must name exactly one of the three compilable stages.
func ToIRStage(stage gputypes.ShaderStage) (ir.ShaderStage, error) {
	switch stage {
	case gputypes.ShaderStageVertex:
		return ir.StageVertex, nil
	case gputypes.ShaderStageFragment:
		return ir.StageFragment, nil
	case gputypes.ShaderStageCompute:
		return ir.StageCompute, nil
	}
	return 0, fmt.Errorf("conv: stage mask %#x does not name exactly one compilable stage", uint32(stage))
}

// StageMask converts an IR shader stage back to its visibility mask bit.
func StageMask(stage ir.ShaderStage) gputypes.ShaderStage {
	switch stage {
	case ir.StageVertex:
		return gputypes.ShaderStageVertex
	case ir.StageFragment:
		return gputypes.ShaderStageFragment
	case ir.StageCompute:
		return gputypes.ShaderStageCompute
	}
	return 0
}

// StageName returns the short stage tag used in diagnostics and profile
// strings.
func StageName(stage ir.ShaderStage) string {
	switch stage {
	case ir.StageVertex:
		return "vertex"
	case ir.StageFragment:
		return "fragment"
	case ir.StageCompute:
		return "compute"
	}
	return "unknown"
}

// ParseStage parses a stage tag ("vertex", "fragment", "compute") as
// written on a command line.
func ParseStage(name string) (ir.ShaderStage, error) {
	switch name {
	case "vertex", "vs":
		return ir.StageVertex, nil
	case "fragment", "fs", "ps":
		return ir.StageFragment, nil
	case "compute", "cs":
		return ir.StageCompute, nil
	}
	return 0, fmt.Errorf("conv: unknown shader stage %q", name)
}
