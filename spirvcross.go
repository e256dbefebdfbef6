// Package spirvcross cross-compiles SPIR-V shader binaries to D3D
// bytecode. It parses the binary, bakes in specialization constant
// overrides, remaps descriptor sets to HLSL register spaces, lowers to
// naga IR for HLSL generation, and hands the result to a native compiler.
package spirvcross

import (
	"errors"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/naga/hlsl"
	"github.com/gogpu/naga/ir"

	"github.com/gogpu/spirvcross/conv"
	"github.com/gogpu/spirvcross/fxc"
	"github.com/gogpu/spirvcross/spirv"
)

// EntryPoint identifies the shader entry point to compile, along with the
// specialization constant overrides to bake into it.
type EntryPoint struct {
	Name          string
	Stage         gputypes.ShaderStage
	SpecConstants []SpecConstant
}

// CompiledShader holds the native bytecode produced for one entry point.
type CompiledShader struct {
	Data []byte
}

// CompileEntryPoint compiles one entry point of a SPIR-V binary against a
// pipeline layout and returns the native bytecode.
//
// A (nil, nil) return is a legitimate success: the module exists but has
// nothing to compile for the requested stage, so the caller gets no
// shader and no error. Calls on independent inputs are safe to run
// concurrently.
func CompileEntryPoint(source []byte, entry EntryPoint, layout *PipelineLayout, opts *Options) (*CompiledShader, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	tr, err := Translate(source, entry, layout, opts)
	if err != nil || tr == nil {
		return nil, err
	}

	compiler := opts.Compiler
	if compiler == nil {
		compiler = fxc.Default()
	}
	if compiler == nil {
		return nil, compilationFailed(fxc.ErrCompilerNotAvailable, "unknown compile error")
	}
	profile := fxc.Profile(tr.Stage, opts.ShaderModel)
	Logger().Debug("invoking native compiler",
		"entry", tr.EntryName, "profile", profile, "source_bytes", len(tr.Source))
	code, err := compiler.Compile([]byte(tr.Source), tr.EntryName, profile)
	if err != nil {
		return nil, compilationFailed(err, "unknown compile error")
	}
	return &CompiledShader{Data: code}, nil
}

// Translation is the result of the pipeline up to HLSL generation.
type Translation struct {
	// Source is the generated HLSL.
	Source string
	// Stage is the entry point's resolved pipeline stage.
	Stage ir.ShaderStage
	// EntryName is the entry point's name in the generated source, after
	// reserved-word cleansing.
	EntryName string
	// Info carries the HLSL backend's translation metadata.
	Info *hlsl.TranslationInfo
}

// Translate runs the pipeline up to HLSL generation. A (nil, nil) return
// means the module has nothing to compile for the requested stage.
func Translate(source []byte, entry EntryPoint, layout *PipelineLayout, opts *Options) (*Translation, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	if layout == nil {
		layout = &PipelineLayout{}
	}
	log := Logger()

	stage, err := conv.ToIRStage(entry.Stage)
	if err != nil {
		return nil, compilationFailed(err, "unknown parsing error")
	}

	module, err := spirv.Parse(source)
	if err != nil {
		return nil, compilationFailed(err, "unknown parsing error")
	}

	if err := applySpecConstants(module, entry.SpecConstants); err != nil {
		return nil, compilationFailed(err, "unknown parsing error")
	}

	if err := module.RemapResourceSpaces(layout.SpaceOffset()); err != nil {
		var writeErr *spirv.WriteError
		if errors.As(err, &writeErr) {
			return nil, internalError(err, "unexpected error")
		}
		return nil, compilationFailed(err, "unknown query error")
	}

	irmod, err := module.Lower(&spirv.LowerOptions{InvertY: true})
	if err != nil {
		return nil, compilationFailed(err, "unknown compile error")
	}

	var found *ir.EntryPoint
	for i := range irmod.EntryPoints {
		if irmod.EntryPoints[i].Name == entry.Name {
			found = &irmod.EntryPoints[i]
			break
		}
	}
	if found == nil {
		return nil, missingEntryPoint(entry.Name)
	}
	if found.Stage != stage {
		log.Debug("entry point stage does not match request, compiling nothing",
			"entry", entry.Name, "want", conv.StageName(stage), "have", conv.StageName(found.Stage))
		return nil, nil
	}

	hlslSource, info, err := hlsl.Compile(irmod, &hlsl.Options{
		ShaderModel:         opts.ShaderModel,
		BindingMap:          bindingMap(irmod),
		FakeMissingBindings: true,
		EntryPoint:          entry.Name,
	})
	if err != nil {
		return nil, compilationFailed(err, "unknown compile error")
	}

	nativeName := entry.Name
	if cleansed, ok := info.EntryPointNames[entry.Name]; ok && cleansed != "" {
		nativeName = cleansed
	}
	log.Debug("generated hlsl",
		"entry", entry.Name, "native_entry", nativeName,
		"bindings", len(info.RegisterBindings), "bytes", len(hlslSource))
	return &Translation{Source: hlslSource, Stage: stage, EntryName: nativeName, Info: info}, nil
}

// applySpecConstants writes overrides into the binary. Overrides match
// declared constants by constant_id; the rest keep their defaults, and
// overrides that match nothing are ignored.
func applySpecConstants(module *spirv.Module, overrides []SpecConstant) error {
	if len(overrides) == 0 {
		return nil
	}
	byConstantID := make(map[uint32]uint32)
	for _, sc := range module.SpecConstants() {
		byConstantID[sc.ConstantID] = sc.ID
	}
	for _, override := range overrides {
		id, ok := byConstantID[override.ID]
		if !ok {
			Logger().Warn("specialization override matches no constant", "constant_id", override.ID)
			continue
		}
		if err := module.SetSpecValue(id, override.Value.Bits()); err != nil {
			return err
		}
	}
	return nil
}

// bindingMap builds the identity register mapping for a lowered module:
// descriptor sets were already shifted in the binary, so group N binds to
// register space N as-is.
func bindingMap(m *ir.Module) map[hlsl.ResourceBinding]hlsl.BindTarget {
	out := make(map[hlsl.ResourceBinding]hlsl.BindTarget)
	for _, global := range m.GlobalVariables {
		if global.Binding == nil {
			continue
		}
		key := hlsl.ResourceBinding{Group: global.Binding.Group, Binding: global.Binding.Binding}
		out[key] = hlsl.BindTarget{Space: uint8(global.Binding.Group), Register: global.Binding.Binding}
	}
	return out
}
