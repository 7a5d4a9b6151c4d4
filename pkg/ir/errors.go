package ir

import "github.com/nir-project/nir/pkg/nirerr"

// internalBug builds the panic payload for a construction-API misuse
// or an internal invariant violation (spec §7: construction errors are
// assertions, undefined in release — nir always asserts).
func internalBug(fn, message string) *nirerr.InternalError {
	return nirerr.New("ir."+fn, message)
}
