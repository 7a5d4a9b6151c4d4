// Package ir implements the sea-of-nodes instruction graph: the arena,
// the constructor/folder, and the compilation pipeline passes (CFG,
// dominators, loops, SCCP, GCM, scheduling, liveness, linear-scan
// register allocation, SSA deconstruction, block layout).
//
// The Context type owns every array a compilation touches: a small
// struct that owns its own working set and carries no hidden global
// state (spec §5: a context is a plain value with no internal
// synchronization).
package ir

import (
	"log/slog"

	"github.com/nir-project/nir/pkg/opcode"
	"github.com/nir-project/nir/pkg/types"
)

// Ref is a signed index into the arena: 0 is unused, positive values
// index instructions, negative values index constants (spec §3).
type Ref int32

// Reserved negative constants, pre-allocated by every Context.
const (
	RefNone  Ref = 0
	RefNull  Ref = -1
	RefFalse Ref = -2
	RefTrue  Ref = -3
)

// Flags are the recognized context options from spec §6.
type Flags uint32

const (
	FlagFunction Flags = 1 << iota
	FlagUseFramePointer
	FlagIrreducibleCFG // computed by the loop finder, not user-settable
	FlagOptFolding
	FlagOptInSCCP // set internally while SCCP borrows the folder
	FlagOptCFG
	FlagOptCodegen
	FlagLinear // set by the scheduler once the arena reflects block order
	FlagGenNative
	FlagGenC
	FlagAVX
)

// Insn is one arena entry: either a constant or an instruction,
// distinguished by which array it lives in (spec §3's packed record,
// re-expressed here as two plain slices rather than a signed-pointer
// union — see DESIGN.md / spec §9 design notes).
type Insn struct {
	Op  opcode.Op
	Typ types.Kind

	// Aux carries whichever of {inputs_count, emit_const flag} applies
	// to Op; the CSE backward-offset role is handled by prevSameOp.
	Aux uint16

	Op1, Op2, Op3 Ref
	Extra         []Ref // operand slots beyond the first three (MERGE/PHI/CALL)

	// Populated by later passes; zero until then.
	Block Int32Slot // basic block index, set by BuildCFG
	VReg  Int32Slot // virtual register, set by AssignVirtualRegisters

	prevSameOp Ref // local value-numbering chain head (spec §4.1)
}

// Int32Slot is a small optional-int wrapper so a just-constructed Insn
// can be told apart from one a later pass has annotated (zero value
// means "not yet assigned", matching the arena's "0 means unused" ref
// convention rather than overloading -1).
type Int32Slot struct {
	Valid bool
	Value int32
}

func setSlot(s *Int32Slot, v int32) { s.Valid = true; s.Value = v }

// constEntry holds a constant's type and raw bit pattern. Floats are
// stored via their IEEE-754 bit pattern (math.Float32/64bits).
type constEntry struct {
	Typ  types.Kind
	Bits uint64
}

type constKey struct {
	Typ  types.Kind
	Bits uint64
}

// Context owns one function body's entire arena and every auxiliary
// array the pipeline passes build on top of it (spec §3 "Lifecycle",
// spec §5: all arrays are owned uniquely by the context).
type Context struct {
	Flags Flags
	Log   *slog.Logger

	consts     []constEntry
	constDedup map[constKey]Ref
	code       []Insn
	lastOfOp   [opcode.Count]Ref

	cseFloor Ref // fold_cse_limit: refs at or before this are not CSE'd

	// Control-flow chains rooted at START, maintained incrementally by
	// the constructor (spec §3 invariant: terminators chained via op3).
	startRef   Ref
	entryHead  Ref // chain of ENTRY-like nodes via op2 of START (unused: single-entry functions only)
	termHead   Ref // chain of terminators via op3, rooted at START.Op1

	// Built by BuildDefUse.
	useHeads []useHead
	useEdges []Ref

	// Built by BuildCFG / BuildDominators / FindLoops.
	Blocks         []Block
	blockEdges     []int32 // shared successor/predecessor edge array
	IrreducibleCFG bool
	loopBodies     map[int32]map[int32]bool // header block -> member blocks, built by FindLoops

	// Built by AssignVirtualRegisters / ComputeLiveRanges / RegAlloc.
	NumVRegs   int32
	vregOf     []int32 // indexed by code index (ref - 1); filled by AssignVirtualRegisters
	Intervals  []*Interval
	SpillSlots []SpillSlot
	posOf      map[Ref]int32 // each scheduled ref's DEF sub-position, set by ComputeLiveRanges

	// Set true once Schedule has linearized the arena into block order.
	Linear bool

	// Built by RunSCCP; consumed by ApplyConstants/GCM/combine.go.
	sccpConst  map[Ref]Ref
	DeadBlocks map[int32]bool

	// Built by CoalescePhis; consumed by InsertParallelCopies.
	phiCoalesce *vregUnionFind

	// Set by InsertParallelCopies before it runs; the target's reserved
	// scratch register used to break a cyclic parallel-copy without
	// reopening linear scan for one extra temporary.
	scratchReg int32

	// Built by LayoutBlocks; physical block order.
	Layout []int32
}

// New creates an IR context. constsHint/insnsHint are capacity hints
// for the arena's two growth directions (spec §6 init()).
func New(flags Flags, constsHint, insnsHint int) *Context {
	if constsHint < 8 {
		constsHint = 8
	}
	if insnsHint < 16 {
		insnsHint = 16
	}
	c := &Context{
		Flags:      flags,
		Log:        slog.New(slog.DiscardHandler),
		consts:     make([]constEntry, 0, constsHint),
		constDedup: make(map[constKey]Ref, constsHint),
		code:       make([]Insn, 0, insnsHint),
	}
	// Pre-reserve NULL, FALSE, TRUE (spec §3).
	c.consts = append(c.consts,
		constEntry{Typ: types.ADDR, Bits: 0}, // RefNull
		constEntry{Typ: types.BOOL, Bits: 0}, // RefFalse
		constEntry{Typ: types.BOOL, Bits: 1}, // RefTrue
	)
	return c
}

// Free releases the context's arrays. Go's GC reclaims them once
// unreferenced; Free exists so call sites mirror spec §3's explicit
// lifecycle ("free releases all memory") and so a caller can reuse the
// variable name without the arena silently surviving via some other
// live reference.
func (c *Context) Free() {
	*c = Context{}
}

// FinalizeGraph rebuilds the bookkeeping the construction API
// maintains incrementally (c.startRef, the terminator chain) after an
// arena has been populated out-of-band (the textual loader builds
// instructions directly via EmitN/SetOp rather than through Start/
// Return/Unreachable, since it is reconstructing an already-complete
// graph rather than growing one). Safe to call on a context built
// normally too, as a no-op refresh.
func (c *Context) FinalizeGraph() {
	c.startRef = RefNone
	c.termHead = RefNone
	for i := range c.code {
		ref := Ref(i + 1)
		if c.code[i].Op == opcode.Start {
			c.startRef = ref
		}
	}
	for i := len(c.code) - 1; i >= 0; i-- {
		ref := Ref(i + 1)
		if opcode.IsTerminator(c.code[i].Op) {
			c.code[i].Op3 = c.termHead
			c.termHead = ref
		}
	}
	if c.startRef != RefNone {
		c.at(c.startRef).Op1 = c.termHead
	}
}

func (c *Context) isConstRef(ref Ref) bool { return ref < 0 }
func (c *Context) isInsnRef(ref Ref) bool  { return ref > 0 }

func (c *Context) constIndex(ref Ref) int { return int(-ref - 1) }
func (c *Context) insnIndex(ref Ref) int  { return int(ref - 1) }

// at returns the mutable Insn record for a positive (instruction) ref.
func (c *Context) at(ref Ref) *Insn {
	if !c.isInsnRef(ref) {
		panic(internalBug("at", "ref is not an instruction ref"))
	}
	return &c.code[c.insnIndex(ref)]
}

// constAt returns the constant record for a negative ref.
func (c *Context) constAt(ref Ref) *constEntry {
	if !c.isConstRef(ref) {
		panic(internalBug("constAt", "ref is not a constant ref"))
	}
	return &c.consts[c.constIndex(ref)]
}

// NumInsns returns the number of instruction-side arena entries.
func (c *Context) NumInsns() int { return len(c.code) }

// NumConsts returns the number of constant-side arena entries.
func (c *Context) NumConsts() int { return len(c.consts) }

// FirstInsnRef / LastInsnRef bound the valid positive-ref range.
func (c *Context) FirstInsnRef() Ref { return 1 }
func (c *Context) LastInsnRef() Ref  { return Ref(len(c.code)) }

// OpOf returns the opcode a ref denotes, synthesizing the per-type
// CONST_* opcode for constant refs.
func (c *Context) OpOf(ref Ref) opcode.Op {
	switch {
	case ref == RefNone:
		return opcode.None
	case c.isConstRef(ref):
		return constOpForKind(c.constAt(ref).Typ)
	default:
		return c.at(ref).Op
	}
}

// TypeOf returns the value type a ref produces.
func (c *Context) TypeOf(ref Ref) types.Kind {
	switch {
	case ref == RefNone:
		return types.VOID
	case c.isConstRef(ref):
		return c.constAt(ref).Typ
	default:
		return c.at(ref).Typ
	}
}

// Insn exposes a read-only view of an instruction-side arena entry,
// for passes and tests that need to inspect one directly.
func (c *Context) Insn(ref Ref) Insn { return *c.at(ref) }

// ConstValue returns the raw bit pattern a constant ref holds.
func (c *Context) ConstValue(ref Ref) uint64 { return c.constAt(ref).Bits }

var kindToConstOp = [types.KindCount]opcode.Op{
	types.BOOL:   opcode.ConstBool,
	types.U8:     opcode.ConstU8,
	types.U16:    opcode.ConstU16,
	types.U32:    opcode.ConstU32,
	types.U64:    opcode.ConstU64,
	types.I8:     opcode.ConstI8,
	types.I16:    opcode.ConstI16,
	types.I32:    opcode.ConstI32,
	types.I64:    opcode.ConstI64,
	types.ADDR:   opcode.ConstAddr,
	types.CHAR:   opcode.ConstChar,
	types.FLOAT:  opcode.ConstFloat,
	types.DOUBLE: opcode.ConstDouble,
}

func constOpForKind(k types.Kind) opcode.Op {
	if k < types.KindCount {
		if op := kindToConstOp[k]; op != opcode.None {
			return op
		}
	}
	return opcode.ConstAddr
}

// PosOf returns ref's DEF sub-position in the linear-scan program
// order ComputeLiveRanges established, or -1 before that pass has run
// (or for a constant/void ref, which never carries one).
func (c *Context) PosOf(ref Ref) int32 {
	if pos, ok := c.posOf[ref]; ok {
		return pos
	}
	return -1
}

// IntervalCovering returns whichever of vreg's (possibly split)
// Intervals is live at pos, or nil if none is — the lookup codegen
// needs once RegAlloc may have produced more than one Interval per
// virtual register.
func (c *Context) IntervalCovering(vreg int32, pos int32) *Interval {
	for _, iv := range c.Intervals {
		if iv.VReg == vreg && iv.covers(pos) {
			return iv
		}
	}
	return nil
}

// Truncate compacts the arena to its actual used size (spec §3's
// lifecycle step after a function has been fully constructed and
// every out-of-band pass that might still grow c.code/c.consts has
// run): it copies both slices down to exactly their current length,
// dropping whatever spare append capacity New's constsHint/insnsHint
// over-allocated, then resets the CSE value-numbering chains since
// Truncate is always the last construction-time step before a context
// is handed to RunPipeline or serialized.
func (c *Context) Truncate() {
	if cap(c.code) > len(c.code) {
		trimmed := make([]Insn, len(c.code))
		copy(trimmed, c.code)
		c.code = trimmed
	}
	if cap(c.consts) > len(c.consts) {
		trimmed := make([]constEntry, len(c.consts))
		copy(trimmed, c.consts)
		c.consts = trimmed
	}
	c.ResetCSE()
}
