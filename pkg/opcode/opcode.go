// Package opcode describes the closed set of IR opcodes and their
// static per-opcode descriptors (spec §3 "Per-opcode descriptor"): an
// enum of compact identifiers plus a parallel array of metadata built
// once in an init() function.
package opcode

// Op is a compact identifier for one IR opcode.
type Op uint8

const (
	None Op = iota

	// --- constants: one per value type (spec §3) ---
	ConstBool
	ConstU8
	ConstU16
	ConstU32
	ConstU64
	ConstI8
	ConstI16
	ConstI32
	ConstI64
	ConstAddr
	ConstChar
	ConstFloat
	ConstDouble

	// --- foldable pure data operations ---
	Add
	Sub
	Mul
	Div
	Mod
	Neg
	Not
	And
	Or
	Xor
	Shl
	Shr
	Sar
	Min
	Max

	// comparisons, including unsigned variants
	EQ
	NE
	LT
	LE
	GT
	GE
	ULT
	ULE
	UGT
	UGE

	Cond // select(cond, ifTrue, ifFalse)
	Phi
	Copy

	// casts
	SExt
	ZExt
	Trunc
	Bitcast
	Int2Fp
	Fp2Int
	Fp2Fp

	// overflow-checked arithmetic
	AddOvf
	SubOvf
	MulOvf

	// --- memory operations ---
	Load
	Store
	VLoad
	VStore
	RLoad
	RStore
	Alloca
	TLS

	// --- control nodes ---
	Start
	End
	Return
	Unreachable
	Begin
	If
	IfTrue
	IfFalse
	Switch
	CaseVal
	CaseDefault
	Merge
	LoopBegin
	LoopEnd
	LoopExit
	GuardTrue
	GuardFalse
	IJmp
	Trap
	Snapshot

	// --- calls ---
	Call
	Tailcall

	// --- leaves ---
	Param
	Var
	Func
	Str

	Count
)

// Class classifies an opcode's role in the graph.
type Class uint8

const (
	ClassData Class = iota
	ClassControl
	ClassMemory
	ClassCall
)

// MemKind further classifies ClassMemory/ClassCall opcodes.
type MemKind uint8

const (
	MemNone MemKind = iota
	MemLoadKind
	MemStoreKind
	MemCallKind
	MemAllocKind
)

// OperandKind describes the meaning of one operand slot.
type OperandKind uint8

const (
	OperandUnused OperandKind = iota
	OperandData
	OperandControl
	OperandControlDep
	OperandControlRef
	OperandVar
	OperandStr
	OperandNum
	OperandProb
)

// Edges encodes the operand-count/shape of an opcode. Non-negative
// values are exact counts; the two sentinels mark variable shapes.
const (
	EdgesVariadic = -1 // CALL/TAILCALL: count carried in Insn.Aux
	EdgesPhi      = -2 // PHI/MERGE/LOOP_BEGIN: count = predecessors+1
)

// Descriptor is the static per-opcode metadata table entry.
type Descriptor struct {
	Name         string
	Class        Class
	Mem          MemKind
	Edges        int8 // 0..3, or EdgesVariadic/EdgesPhi
	OperandCount int8
	Operands     [3]OperandKind
	Commutative  bool
	BBStart      bool
	BBEnd        bool
	Terminator   bool
	Foldable     bool
}

// Table is the static, program-lifetime opcode descriptor table.
var Table [Count]Descriptor

func reg(op Op, d Descriptor) { Table[op] = d }

func init() {
	constTypes := []struct {
		op   Op
		name string
	}{
		{ConstBool, "CONST_BOOL"}, {ConstU8, "CONST_U8"}, {ConstU16, "CONST_U16"},
		{ConstU32, "CONST_U32"}, {ConstU64, "CONST_U64"}, {ConstI8, "CONST_I8"},
		{ConstI16, "CONST_I16"}, {ConstI32, "CONST_I32"}, {ConstI64, "CONST_I64"},
		{ConstAddr, "CONST_ADDR"}, {ConstChar, "CONST_CHAR"}, {ConstFloat, "CONST_FLOAT"},
		{ConstDouble, "CONST_DOUBLE"},
	}
	for _, c := range constTypes {
		reg(c.op, Descriptor{Name: c.name, Class: ClassData, Edges: 0, Foldable: true})
	}

	binArith := []struct {
		op          Op
		name        string
		commutative bool
	}{
		{Add, "ADD", true}, {Sub, "SUB", false}, {Mul, "MUL", true},
		{Div, "DIV", false}, {Mod, "MOD", false},
		{And, "AND", true}, {Or, "OR", true}, {Xor, "XOR", true},
		{Shl, "SHL", false}, {Shr, "SHR", false}, {Sar, "SAR", false},
		{Min, "MIN", true}, {Max, "MAX", true},
		{EQ, "EQ", true}, {NE, "NE", true},
		{LT, "LT", false}, {LE, "LE", false}, {GT, "GT", false}, {GE, "GE", false},
		{ULT, "ULT", false}, {ULE, "ULE", false}, {UGT, "UGT", false}, {UGE, "UGE", false},
		{AddOvf, "ADD_OVF", true}, {SubOvf, "SUB_OVF", false}, {MulOvf, "MUL_OVF", true},
	}
	for _, b := range binArith {
		reg(b.op, Descriptor{
			Name: b.name, Class: ClassData, Edges: 2, OperandCount: 2,
			Operands:    [3]OperandKind{OperandData, OperandData},
			Commutative: b.commutative, Foldable: true,
		})
	}

	unary := []struct {
		op   Op
		name string
	}{
		{Neg, "NEG"}, {Not, "NOT"}, {SExt, "SEXT"}, {ZExt, "ZEXT"}, {Trunc, "TRUNC"},
		{Bitcast, "BITCAST"}, {Int2Fp, "INT2FP"}, {Fp2Int, "FP2INT"}, {Fp2Fp, "FP2FP"},
	}
	for _, u := range unary {
		reg(u.op, Descriptor{
			Name: u.name, Class: ClassData, Edges: 1, OperandCount: 1,
			Operands: [3]OperandKind{OperandData}, Foldable: true,
		})
	}

	reg(Cond, Descriptor{
		Name: "COND", Class: ClassData, Edges: 3, OperandCount: 3,
		Operands: [3]OperandKind{OperandData, OperandData, OperandData}, Foldable: true,
	})
	reg(Copy, Descriptor{
		Name: "COPY", Class: ClassData, Edges: 1, OperandCount: 1,
		Operands: [3]OperandKind{OperandData}, Foldable: true,
	})
	reg(Phi, Descriptor{
		Name: "PHI", Class: ClassData, Edges: EdgesPhi, OperandCount: 1,
		Operands: [3]OperandKind{OperandControl},
	})

	memOps := []struct {
		op   Op
		name string
		kind MemKind
		n    int8
	}{
		{Load, "LOAD", MemLoadKind, 1}, {Store, "STORE", MemStoreKind, 2},
		{VLoad, "VLOAD", MemLoadKind, 1}, {VStore, "VSTORE", MemStoreKind, 2},
		{RLoad, "RLOAD", MemLoadKind, 1}, {RStore, "RSTORE", MemStoreKind, 2},
		{Alloca, "ALLOCA", MemAllocKind, 1}, {TLS, "TLS", MemLoadKind, 0},
	}
	for _, m := range memOps {
		ops := [3]OperandKind{}
		for i := int8(0); i < m.n; i++ {
			ops[i] = OperandData
		}
		reg(m.op, Descriptor{Name: m.name, Class: ClassMemory, Mem: m.kind, Edges: m.n, OperandCount: m.n, Operands: ops})
	}

	reg(Start, Descriptor{Name: "START", Class: ClassControl, BBStart: true})
	reg(End, Descriptor{Name: "END", Class: ClassControl, Edges: 1, OperandCount: 1, Operands: [3]OperandKind{OperandControl}, BBEnd: true})
	reg(Return, Descriptor{Name: "RETURN", Class: ClassControl, Edges: 2, OperandCount: 3,
		Operands: [3]OperandKind{OperandControl, OperandData, OperandControlRef}, BBEnd: true, Terminator: true})
	reg(Unreachable, Descriptor{Name: "UNREACHABLE", Class: ClassControl, Edges: 1, OperandCount: 2,
		Operands: [3]OperandKind{OperandControl, OperandControlRef}, BBEnd: true, Terminator: true})
	reg(Begin, Descriptor{Name: "BEGIN", Class: ClassControl, Edges: 1, OperandCount: 1, Operands: [3]OperandKind{OperandControl}, BBStart: true})
	reg(If, Descriptor{Name: "IF", Class: ClassControl, Edges: 2, OperandCount: 2,
		Operands: [3]OperandKind{OperandControl, OperandData}, BBEnd: true, Terminator: false})
	reg(IfTrue, Descriptor{Name: "IF_TRUE", Class: ClassControl, Edges: 1, OperandCount: 1, Operands: [3]OperandKind{OperandControl}, BBStart: true})
	reg(IfFalse, Descriptor{Name: "IF_FALSE", Class: ClassControl, Edges: 1, OperandCount: 1, Operands: [3]OperandKind{OperandControl}, BBStart: true})
	reg(Switch, Descriptor{Name: "SWITCH", Class: ClassControl, Edges: 2, OperandCount: 2,
		Operands: [3]OperandKind{OperandControl, OperandData}, BBEnd: true})
	reg(CaseVal, Descriptor{Name: "CASE_VAL", Class: ClassControl, Edges: 2, OperandCount: 2,
		Operands: [3]OperandKind{OperandControl, OperandNum}, BBStart: true})
	reg(CaseDefault, Descriptor{Name: "CASE_DEFAULT", Class: ClassControl, Edges: 1, OperandCount: 1, Operands: [3]OperandKind{OperandControl}, BBStart: true})
	reg(Merge, Descriptor{Name: "MERGE", Class: ClassControl, Edges: EdgesVariadic, BBStart: true})
	reg(LoopBegin, Descriptor{Name: "LOOP_BEGIN", Class: ClassControl, Edges: EdgesVariadic, BBStart: true})
	reg(LoopEnd, Descriptor{Name: "LOOP_END", Class: ClassControl, Edges: 1, OperandCount: 1, Operands: [3]OperandKind{OperandControl}, BBEnd: true})
	reg(LoopExit, Descriptor{Name: "LOOP_EXIT", Class: ClassControl, Edges: 1, OperandCount: 1, Operands: [3]OperandKind{OperandControl}})
	reg(GuardTrue, Descriptor{Name: "GUARD_TRUE", Class: ClassControl, Edges: 2, OperandCount: 2, Operands: [3]OperandKind{OperandControl, OperandData}})
	reg(GuardFalse, Descriptor{Name: "GUARD_FALSE", Class: ClassControl, Edges: 2, OperandCount: 2, Operands: [3]OperandKind{OperandControl, OperandData}})
	reg(IJmp, Descriptor{Name: "IJMP", Class: ClassControl, Edges: 2, OperandCount: 3,
		Operands: [3]OperandKind{OperandControl, OperandData, OperandControlRef}, BBEnd: true, Terminator: true})
	reg(Trap, Descriptor{Name: "TRAP", Class: ClassControl, Edges: 1, OperandCount: 1, Operands: [3]OperandKind{OperandControl}, BBEnd: true})
	reg(Snapshot, Descriptor{Name: "SNAPSHOT", Class: ClassControl, Edges: 1, OperandCount: 1, Operands: [3]OperandKind{OperandControl}})

	reg(Call, Descriptor{Name: "CALL", Class: ClassCall, Mem: MemCallKind, Edges: EdgesVariadic})
	reg(Tailcall, Descriptor{Name: "TAILCALL", Class: ClassCall, Mem: MemCallKind, Edges: EdgesVariadic, BBEnd: true, Terminator: true})

	reg(Param, Descriptor{Name: "PARAM", Class: ClassData, OperandCount: 1, Operands: [3]OperandKind{OperandNum}})
	reg(Var, Descriptor{Name: "VAR", Class: ClassData})
	reg(Func, Descriptor{Name: "FUNC", Class: ClassData, OperandCount: 1, Operands: [3]OperandKind{OperandStr}})
	reg(Str, Descriptor{Name: "STR", Class: ClassData, OperandCount: 1, Operands: [3]OperandKind{OperandStr}})
}

// IsConst reports whether op is one of the per-type CONST_* opcodes.
func IsConst(op Op) bool { return op >= ConstBool && op <= ConstDouble }

// IsTerminator reports whether op ends a function (spec §3 invariant).
func IsTerminator(op Op) bool { return Table[op].Terminator }

// IsFoldable reports whether op may be handled by the constant folder.
func IsFoldable(op Op) bool { return Table[op].Foldable }

func (op Op) String() string {
	if op < Count && Table[op].Name != "" {
		return Table[op].Name
	}
	return "INVALID"
}

// Parse resolves a textual mnemonic (as found in the text IR format)
// back to an Op, for the loader.
func Parse(name string) (Op, bool) {
	for op := Op(1); op < Count; op++ {
		if Table[op].Name == name {
			return op, true
		}
	}
	return None, false
}
