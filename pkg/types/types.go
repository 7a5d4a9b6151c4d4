// Package types describes the closed set of value types an IR context
// can operate on: a VOID/BOOL/integer/ADDR/CHAR/float family. The table
// is a program-lifetime, read-only static resource, laid out as an enum
// of compact identifiers plus a parallel array of metadata built once in
// an init() function.
package types

// Kind is a compact identifier for one of the fixed value types.
type Kind uint8

const (
	VOID Kind = iota
	BOOL
	U8
	U16
	U32
	U64
	I8
	I16
	I32
	I64
	ADDR
	CHAR
	FLOAT
	DOUBLE

	KindCount
)

// Info holds static metadata for one Kind.
type Info struct {
	Name    string
	Size    uint8 // bytes; 0 for VOID
	Signed  bool
	Float   bool
	Integer bool
}

// Table maps each Kind to its Info. Populated once at init time.
var Table [KindCount]Info

func init() {
	entries := []struct {
		k       Kind
		name    string
		size    uint8
		signed  bool
		float   bool
		integer bool
	}{
		{VOID, "void", 0, false, false, false},
		{BOOL, "bool", 1, false, false, true},
		{U8, "u8", 1, false, false, true},
		{U16, "u16", 2, false, false, true},
		{U32, "u32", 4, false, false, true},
		{U64, "u64", 8, false, false, true},
		{I8, "i8", 1, true, false, true},
		{I16, "i16", 2, true, false, true},
		{I32, "i32", 4, true, false, true},
		{I64, "i64", 8, true, false, true},
		{ADDR, "addr", 8, false, false, true},
		{CHAR, "char", 1, false, false, true},
		{FLOAT, "float", 4, true, true, false},
		{DOUBLE, "double", 8, true, true, false},
	}
	for _, e := range entries {
		Table[e.k] = Info{Name: e.name, Size: e.size, Signed: e.signed, Float: e.float, Integer: e.integer}
	}
}

// Size returns the size in bytes of k.
func Size(k Kind) uint8 { return Table[k].Size }

// IsSigned reports whether k is a signed integer type.
func IsSigned(k Kind) bool { return Table[k].Signed }

// IsFloat reports whether k is FLOAT or DOUBLE.
func IsFloat(k Kind) bool { return Table[k].Float }

// IsInteger reports whether k is an integer or BOOL/ADDR/CHAR type.
func IsInteger(k Kind) bool { return Table[k].Integer }

// String returns the type's textual name, used by the text IR format.
func (k Kind) String() string {
	if k < KindCount {
		return Table[k].Name
	}
	return "invalid"
}

// Parse resolves a textual type name back to a Kind, for the loader.
func Parse(name string) (Kind, bool) {
	for k := Kind(0); k < KindCount; k++ {
		if Table[k].Name == name {
			return k, true
		}
	}
	return VOID, false
}
