package spirvcross

import "fmt"

// ErrorKind classifies a pipeline failure.
type ErrorKind uint8

const (
	// ErrCompilationFailed covers parsing, translation, and native
	// compilation failures caused by the shader input.
	ErrCompilationFailed ErrorKind = iota
	// ErrMissingEntryPoint means the requested entry point does not exist
	// in the module.
	ErrMissingEntryPoint
	// ErrInternal covers inconsistencies inside the pipeline itself, such
	// as a patched binary losing a decoration between read and write.
	ErrInternal
)

func (k ErrorKind) String() string {
	switch k {
	case ErrCompilationFailed:
		return "compilation failed"
	case ErrMissingEntryPoint:
		return "missing entry point"
	case ErrInternal:
		return "internal error"
	}
	return "unknown error"
}

// Error is the error type returned by the compilation pipeline.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error // underlying cause, if any
}

func (e *Error) Error() string {
	return fmt.Sprintf("spirvcross: %s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches errors by kind, so callers can test
// errors.Is(err, &Error{Kind: ErrMissingEntryPoint}).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind && (t.Message == "" || t.Message == e.Message)
}

// compilationFailed wraps err as a compilation failure, substituting the
// fallback message when the underlying error carries no text.
func compilationFailed(err error, fallback string) *Error {
	msg := fallback
	if err != nil && err.Error() != "" {
		msg = err.Error()
	}
	return &Error{Kind: ErrCompilationFailed, Message: msg, Err: err}
}

func internalError(err error, fallback string) *Error {
	msg := fallback
	if err != nil && err.Error() != "" {
		msg = err.Error()
	}
	return &Error{Kind: ErrInternal, Message: msg, Err: err}
}

// missingEntryPoint reports that the named entry point is absent.
func missingEntryPoint(name string) *Error {
	return &Error{Kind: ErrMissingEntryPoint, Message: name}
}
