package types

import "testing"

func TestStringParseRoundTrip(t *testing.T) {
	for k := Kind(0); k < KindCount; k++ {
		name := k.String()
		got, ok := Parse(name)
		if !ok {
			t.Errorf("Parse(%q) failed for kind %d", name, k)
			continue
		}
		if got != k {
			t.Errorf("Parse(%q) = %d, want %d", name, got, k)
		}
	}
}

func TestSizeMatchesWidth(t *testing.T) {
	cases := []struct {
		k    Kind
		size uint8
	}{
		{VOID, 0}, {BOOL, 1}, {U8, 1}, {U16, 2}, {U32, 4}, {U64, 8},
		{I8, 1}, {I16, 2}, {I32, 4}, {I64, 8}, {ADDR, 8}, {CHAR, 1},
		{FLOAT, 4}, {DOUBLE, 8},
	}
	for _, tc := range cases {
		if got := Size(tc.k); got != tc.size {
			t.Errorf("Size(%s) = %d, want %d", tc.k, got, tc.size)
		}
	}
}

func TestIsSignedIsFloatIsInteger(t *testing.T) {
	if !IsSigned(I32) || IsSigned(U32) {
		t.Error("I32 must be signed, U32 must not")
	}
	if !IsFloat(DOUBLE) || IsFloat(I64) {
		t.Error("DOUBLE must be float, I64 must not")
	}
	if !IsInteger(ADDR) || IsInteger(FLOAT) {
		t.Error("ADDR must be integer, FLOAT must not")
	}
}

func TestParseUnknownName(t *testing.T) {
	if _, ok := Parse("not-a-type"); ok {
		t.Error("Parse of an unknown type name returned ok=true")
	}
}
