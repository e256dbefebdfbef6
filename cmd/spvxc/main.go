// Command spvxc cross-compiles SPIR-V binaries to HLSL or D3D bytecode.
//
// Usage:
//
//	spvxc [options] <input.spv>
//
// Examples:
//
//	spvxc -entry main -stage fragment shader.spv      # Print HLSL
//	spvxc -entry main -stage vertex -o vs.dxbc shader.spv
//	spvxc -stage compute -model 5_1 shader.spv
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/gogpu/naga/hlsl"

	"github.com/gogpu/spirvcross"
	"github.com/gogpu/spirvcross/conv"
	"github.com/gogpu/spirvcross/fxc"
)

var (
	output  = flag.String("o", "", "output file for native bytecode (default: print HLSL to stdout)")
	entry   = flag.String("entry", "main", "entry point name")
	stage   = flag.String("stage", "vertex", "shader stage: vertex, fragment, or compute")
	model   = flag.String("model", "5_0", "target shader model: 5_0, 5_1, or 6_0")
	version = flag.Bool("version", false, "print version")
)

const spvxcVersion = "0.1.0-dev"

func main() {
	flag.Usage = usage
	flag.Parse()

	if *version {
		fmt.Printf("spvxc version %s\n", spvxcVersion)
		return
	}

	args := flag.Args()
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "Error: no input file specified")
		usage()
		os.Exit(1)
	}
	inputPath := args[0]

	source, err := os.ReadFile(inputPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading file: %v\n", err)
		os.Exit(1)
	}

	irStage, err := conv.ParseStage(*stage)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	shaderModel, err := parseModel(*model)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	ep := spirvcross.EntryPoint{Name: *entry, Stage: conv.StageMask(irStage)}
	opts := &spirvcross.Options{ShaderModel: shaderModel}

	if *output == "" {
		tr, err := spirvcross.Translate(source, ep, nil, opts)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Compilation error: %v\n", err)
			os.Exit(1)
		}
		if tr == nil {
			fmt.Fprintf(os.Stderr, "Nothing to compile: entry %q is not a %s shader\n", *entry, *stage)
			os.Exit(1)
		}
		fmt.Print(tr.Source)
		return
	}

	if fxc.Default() == nil {
		fmt.Fprintln(os.Stderr, "Error: no native compiler available on this platform")
		os.Exit(1)
	}
	shader, err := spirvcross.CompileEntryPoint(source, ep, nil, opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Compilation error: %v\n", err)
		os.Exit(1)
	}
	if shader == nil {
		fmt.Fprintf(os.Stderr, "Nothing to compile: entry %q is not a %s shader\n", *entry, *stage)
		os.Exit(1)
	}
	if err := os.WriteFile(*output, shader.Data, 0644); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing output: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Successfully compiled %s to %s (%d bytes)\n", inputPath, *output, len(shader.Data))
}

func parseModel(s string) (hlsl.ShaderModel, error) {
	switch s {
	case "5_0":
		return hlsl.ShaderModel5_0, nil
	case "5_1":
		return hlsl.ShaderModel5_1, nil
	case "6_0":
		return hlsl.ShaderModel6_0, nil
	}
	return 0, fmt.Errorf("unknown shader model %q", s)
}

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: spvxc [options] <input.spv>\n\n")
	fmt.Fprintf(os.Stderr, "Options:\n")
	flag.PrintDefaults()
	fmt.Fprintf(os.Stderr, "\nExamples:\n")
	fmt.Fprintf(os.Stderr, "  spvxc -entry main -stage fragment shader.spv   Print HLSL\n")
	fmt.Fprintf(os.Stderr, "  spvxc -stage vertex -o vs.dxbc shader.spv      Compile to bytecode\n")
}
