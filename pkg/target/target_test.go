package target

import "testing"

func TestRegistryHasAmd64AndArm64(t *testing.T) {
	names := Names()
	want := map[string]bool{"amd64": false, "arm64": false}
	for _, n := range names {
		if _, ok := want[n]; ok {
			want[n] = true
		}
	}
	for n, found := range want {
		if !found {
			t.Errorf("target registry missing %q (have %v)", n, names)
		}
	}
}

func TestLookupUnknownTarget(t *testing.T) {
	if _, ok := Lookup("not-a-real-target"); ok {
		t.Error("Lookup of a nonexistent target name returned ok=true")
	}
}

func TestAmd64ScratchNotCalleeSaved(t *testing.T) {
	m, ok := Lookup("amd64")
	if !ok {
		t.Fatal("amd64 not registered")
	}
	scratch := m.ScratchReg()
	if m.CalleeSaved(scratch) {
		t.Errorf("amd64 scratch register %s is marked callee-saved; it must be freely clobberable", m.RegName(scratch))
	}
}

func TestArm64ParamRegsDistinct(t *testing.T) {
	m, ok := Lookup("arm64")
	if !ok {
		t.Fatal("arm64 not registered")
	}
	seen := map[Reg]bool{}
	for i := 0; i < 4; i++ {
		r := m.ParamReg(i)
		if seen[r] {
			t.Errorf("arm64 ParamReg(%d) repeats register %s already used by an earlier param", i, m.RegName(r))
		}
		seen[r] = true
	}
}
