package buildinfo

import (
	"strings"
	"testing"
)

func TestStringIncludesAllFields(t *testing.T) {
	oldV, oldD, oldC := Version, Date, Commit
	defer func() { Version, Date, Commit = oldV, oldD, oldC }()

	Version = "1.2.3"
	Date = "2026-01-02"
	Commit = "deadbeef"

	s := String()
	for _, want := range []string{"1.2.3", "2026-01-02", "deadbeef"} {
		if !strings.Contains(s, want) {
			t.Errorf("String() = %q, missing %q", s, want)
		}
	}
}
