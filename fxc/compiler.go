// Package fxc invokes a native HLSL compiler to turn generated source
// into driver-consumable bytecode. Compilers are pluggable: the windows
// build registers the d3dcompiler_47 binding, and tests or cross-platform
// tooling can register their own.
package fxc

import (
	"errors"
	"sync"
)

// Compiler compiles HLSL source to target bytecode. Implementations must
// be safe for concurrent use: the pipeline invokes a single instance from
// multiple goroutines.
type Compiler interface {
	// Compile compiles the given entry point of source for the target
	// profile (e.g. "ps_5_0") and returns the bytecode.
	Compile(source []byte, entry, profile string) ([]byte, error)
}

// CompilerFactory creates a new compiler instance.
type CompilerFactory func() Compiler

// Well-known compiler names.
const (
	CompilerD3D = "d3dcompiler"
)

// ErrCompilerNotAvailable is returned when no native compiler is registered.
var ErrCompilerNotAvailable = errors.New("fxc: no compiler available")

var (
	registryMu sync.RWMutex
	compilers  = make(map[string]CompilerFactory)
	// Priority order for compiler selection (first available wins).
	compilerPriority = []string{CompilerD3D}
)

// Register registers a compiler factory with the given name.
// This is typically called from init() functions in compiler packages.
// If a compiler with the same name is already registered, it will be replaced.
func Register(name string, factory CompilerFactory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	compilers[name] = factory
}

// Unregister removes a compiler from the registry.
// This is useful for testing.
func Unregister(name string) {
	registryMu.Lock()
	defer registryMu.Unlock()
	delete(compilers, name)
}

// Available returns a list of registered compiler names.
func Available() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(compilers))
	for name := range compilers {
		names = append(names, name)
	}
	return names
}

// IsRegistered checks if a compiler with the given name is registered.
func IsRegistered(name string) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := compilers[name]
	return ok
}

// Get returns a compiler instance by name.
// Returns nil if the compiler is not registered.
func Get(name string) Compiler {
	registryMu.RLock()
	defer registryMu.RUnlock()

	factory, ok := compilers[name]
	if !ok {
		return nil
	}
	return factory()
}

// Default returns the best available compiler based on priority.
// Returns nil if no compilers are registered.
func Default() Compiler {
	registryMu.RLock()
	defer registryMu.RUnlock()

	for _, name := range compilerPriority {
		if factory, ok := compilers[name]; ok {
			if c := factory(); c != nil {
				return c
			}
		}
	}

	// Fallback: return first available
	for _, factory := range compilers {
		if c := factory(); c != nil {
			return c
		}
	}

	return nil
}

// MustDefault returns the default compiler or panics.
func MustDefault() Compiler {
	c := Default()
	if c == nil {
		panic(ErrCompilerNotAvailable.Error())
	}
	return c
}
