package spirvcross

import (
	"github.com/gogpu/naga/hlsl"

	"github.com/gogpu/spirvcross/fxc"
)

// Options configures a compilation.
type Options struct {
	// ShaderModel selects the target profile version. The zero value is
	// Shader Model 5.0, the D3D11 feature-level baseline.
	ShaderModel hlsl.ShaderModel

	// Compiler compiles the generated HLSL to bytecode. When nil, the
	// default compiler from the fxc registry is used.
	Compiler fxc.Compiler
}

// DefaultOptions returns the options a D3D11-style backend uses.
func DefaultOptions() *Options {
	return &Options{ShaderModel: hlsl.ShaderModel5_0}
}
