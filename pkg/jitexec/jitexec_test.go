package jitexec

import "testing"

// A RET-only x86-64 body (0xC3), just enough machine code to exercise
// the mmap/mprotect/copy/close round trip without depending on a real
// assembler.
var retOnly = []byte{0xC3}

func TestLoadRejectsEmptyCode(t *testing.T) {
	if _, err := Load(nil); err == nil {
		t.Error("Load(nil) should reject an empty code buffer")
	}
}

func TestLoadCopiesBytesAndCloses(t *testing.T) {
	exe, err := Load(retOnly)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	defer func() {
		if err := exe.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	}()

	got := exe.Bytes()
	if len(got) == 0 || got[0] != 0xC3 {
		t.Errorf("Bytes()[0] = %#x, want 0xC3", got[0])
	}
	if exe.Addr() == 0 {
		t.Error("Addr() returned a zero address for a mapped page")
	}
}

func TestReopenPatchesBytes(t *testing.T) {
	exe, err := Load(retOnly)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	defer exe.Close()

	err = exe.Reopen(func(code []byte) {
		code[0] = 0x90 // NOP
	})
	if err != nil {
		t.Fatalf("Reopen: %v", err)
	}
	if got := exe.Bytes()[0]; got != 0x90 {
		t.Errorf("after Reopen patch, byte 0 = %#x, want 0x90", got)
	}
}

func TestPageAlignRoundsUp(t *testing.T) {
	if pageAlign(1) < 1 {
		t.Fatal("pageAlign(1) should be at least 1")
	}
	if pageAlign(1)%pageAlign(1) != 0 {
		t.Fatal("pageAlign result should be self-aligned")
	}
	// A page-aligned size must stay unchanged.
	one := pageAlign(1)
	if pageAlign(one) != one {
		t.Errorf("pageAlign(%d) = %d, want %d (already page-sized)", one, pageAlign(one), one)
	}
}
