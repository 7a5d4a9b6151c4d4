// Package buildinfo holds version metadata overridable at link time,
// the same ldflags-settable-var pattern sentra's cmd/sentra uses for
// its BuildDate/GitCommit, narrowed to what `nir --version` prints.
package buildinfo

import "fmt"

// Version, Date, and Commit default to development values and are
// expected to be overridden with -ldflags "-X ...=..." by release
// builds.
var (
	Version = "dev"
	Date    = "unknown"
	Commit  = "unknown"
)

// String renders the one-line version banner `nir --version` prints.
func String() string {
	return fmt.Sprintf("nir %s (commit %s, built %s)", Version, Commit, Date)
}
