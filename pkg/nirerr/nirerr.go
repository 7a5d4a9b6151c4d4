// Package nirerr defines the two error shapes spec §7 names at the
// public API boundary: textual-loader parse errors, and internal
// invariant-violation / allocator / code-emit failures. The shape is
// grounded on sentra-language-sentra's internal/errors package
// (SentraError: Type + Message + SourceLocation + Error() string
// builder), narrowed to the taxonomy spec §7 actually describes.
package nirerr

import "fmt"

// ParseError reports a textual IR loader failure: a line/column
// message, never a panic (spec §7: "The core never sees malformed
// input").
type ParseError struct {
	File    string
	Line    int
	Column  int
	Message string
}

func (e *ParseError) Error() string {
	if e.File == "" {
		return fmt.Sprintf("%d:%d: %s", e.Line, e.Column, e.Message)
	}
	return fmt.Sprintf("%s:%d:%d: %s", e.File, e.Line, e.Column, e.Message)
}

// InternalError reports a bug, not a user error: an unsolvable
// register-allocation conflict, a code-emit failure, or an internal
// invariant violation caught by an assertion (spec §7: "This is
// considered a bug, not a user error").
type InternalError struct {
	Pass    string
	Message string
}

func (e *InternalError) Error() string {
	return fmt.Sprintf("%s: %s", e.Pass, e.Message)
}

// New constructs an InternalError, the panic payload every pkg/ir
// assertion raises on a malformed construction-API call (spec §7:
// "Construction errors ... assertions in debug; undefined in release" —
// nir always asserts, there being no separate release build mode).
func New(pass, message string) *InternalError {
	return &InternalError{Pass: pass, Message: message}
}
