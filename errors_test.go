package spirvcross_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/gogpu/spirvcross"
)

func TestErrorFormat(t *testing.T) {
	tests := []struct {
		name string
		err  *spirvcross.Error
		want string
	}{
		{
			name: "compilation failed",
			err:  &spirvcross.Error{Kind: spirvcross.ErrCompilationFailed, Message: "unknown parsing error"},
			want: "spirvcross: compilation failed: unknown parsing error",
		},
		{
			name: "missing entry point",
			err:  &spirvcross.Error{Kind: spirvcross.ErrMissingEntryPoint, Message: "vs_main"},
			want: "spirvcross: missing entry point: vs_main",
		},
		{
			name: "internal",
			err:  &spirvcross.Error{Kind: spirvcross.ErrInternal, Message: "unexpected error"},
			want: "spirvcross: internal error: unexpected error",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestErrorKindString(t *testing.T) {
	if got := spirvcross.ErrorKind(200).String(); got != "unknown error" {
		t.Errorf("unknown kind String() = %q", got)
	}
}

func TestErrorIs(t *testing.T) {
	err := &spirvcross.Error{Kind: spirvcross.ErrMissingEntryPoint, Message: "main"}
	wrapped := fmt.Errorf("compile: %w", err)

	if !errors.Is(wrapped, &spirvcross.Error{Kind: spirvcross.ErrMissingEntryPoint}) {
		t.Error("kind-only target did not match")
	}
	if !errors.Is(wrapped, &spirvcross.Error{Kind: spirvcross.ErrMissingEntryPoint, Message: "main"}) {
		t.Error("kind and message target did not match")
	}
	if errors.Is(wrapped, &spirvcross.Error{Kind: spirvcross.ErrMissingEntryPoint, Message: "other"}) {
		t.Error("mismatched message matched")
	}
	if errors.Is(wrapped, &spirvcross.Error{Kind: spirvcross.ErrInternal}) {
		t.Error("mismatched kind matched")
	}
}

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("bad magic number")
	err := &spirvcross.Error{Kind: spirvcross.ErrCompilationFailed, Message: cause.Error(), Err: cause}
	if !errors.Is(err, cause) {
		t.Error("cause is not in the chain")
	}
	var target *spirvcross.Error
	if !errors.As(err, &target) || target.Kind != spirvcross.ErrCompilationFailed {
		t.Errorf("As = %+v", target)
	}
}
