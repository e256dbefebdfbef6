//go:build windows

package fxc

import (
	"errors"
	"fmt"
	"syscall"
	"unsafe"

	"golang.org/x/sys/windows"
)

var (
	modD3DCompiler = windows.NewLazySystemDLL("d3dcompiler_47.dll")
	procD3DCompile = modD3DCompiler.NewProc("D3DCompile")
)

func init() {
	Register(CompilerD3D, func() Compiler {
		if procD3DCompile.Find() != nil {
			return nil
		}
		return &d3dCompiler{}
	})
}

// d3dCompiler compiles through d3dcompiler_47.dll. It is stateless: every
// call goes straight to D3DCompile, which is itself thread-safe.
type d3dCompiler struct{}

// blob is an ID3DBlob COM object.
type blob struct {
	vtbl *blobVtbl
}

type blobVtbl struct {
	queryInterface   uintptr
	addRef           uintptr
	release          uintptr
	getBufferPointer uintptr
	getBufferSize    uintptr
}

func (b *blob) release() {
	syscall.SyscallN(b.vtbl.release, uintptr(unsafe.Pointer(b)))
}

func (b *blob) bytes() []byte {
	ptr, _, _ := syscall.SyscallN(b.vtbl.getBufferPointer, uintptr(unsafe.Pointer(b)))
	size, _, _ := syscall.SyscallN(b.vtbl.getBufferSize, uintptr(unsafe.Pointer(b)))
	if ptr == 0 || size == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(ptr)), size)
}

func (c *d3dCompiler) Compile(source []byte, entry, profile string) ([]byte, error) {
	if len(source) == 0 {
		return nil, errors.New("fxc: empty shader source")
	}
	entryPtr, err := windows.BytePtrFromString(entry)
	if err != nil {
		return nil, fmt.Errorf("fxc: bad entry point name: %w", err)
	}
	targetPtr, err := windows.BytePtrFromString(profile)
	if err != nil {
		return nil, fmt.Errorf("fxc: bad target profile: %w", err)
	}

	var code, diag *blob
	hr, _, _ := procD3DCompile.Call(
		uintptr(unsafe.Pointer(&source[0])),
		uintptr(len(source)),
		0, // source name
		0, // defines
		0, // include handler
		uintptr(unsafe.Pointer(entryPtr)),
		uintptr(unsafe.Pointer(targetPtr)),
		1, // Flags1: D3DCOMPILE_DEBUG
		0, // Flags2: effect compilation flags, unused
		uintptr(unsafe.Pointer(&code)),
		uintptr(unsafe.Pointer(&diag)),
	)
	if diag != nil {
		defer diag.release()
	}
	if code != nil {
		defer code.release()
	}

	if int32(hr) < 0 {
		if diag != nil {
			if msg := DecodeDiagnostics(diag.bytes()); msg != "" {
				return nil, errors.New(msg)
			}
		}
		return nil, fmt.Errorf("D3DCompile failed with HRESULT 0x%08x", uint32(hr))
	}
	if code == nil {
		return nil, errors.New("D3DCompile returned no bytecode")
	}
	out := make([]byte, len(code.bytes()))
	copy(out, code.bytes())
	return out, nil
}
