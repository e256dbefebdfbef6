package fxc

import (
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// DecodeDiagnostics converts a raw compiler message blob to a string.
// Native compilers give no encoding guarantee, so the decode is lossy:
// invalid byte sequences become U+FFFD instead of failing, keeping as much
// of the message readable as possible.
func DecodeDiagnostics(blob []byte) string {
	decoded, _, err := transform.Bytes(unicode.UTF8.NewDecoder(), blob)
	if err != nil {
		// The lossy decoder does not fail on bad input; an error here means
		// the transform itself broke, so fall back to the raw bytes.
		decoded = blob
	}
	return strings.TrimRight(string(decoded), "\x00\r\n ")
}
