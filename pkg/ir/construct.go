package ir

import (
	"math"

	"github.com/nir-project/nir/pkg/opcode"
	"github.com/nir-project/nir/pkg/types"
)

// append adds insn to the instruction side of the arena and returns its
// new ref. This is the only place the code slice grows, so every other
// ref returned by the package is stable until the next append (slices
// may reallocate the backing array, but refs are indices, not
// pointers, so they remain valid — spec §3 "growth reallocates and
// reanchors").
func (c *Context) append(insn Insn) Ref {
	c.code = append(c.code, insn)
	return Ref(len(c.code))
}

// Emit appends op unconditionally: no CSE, no folding. Used by passes
// that must not observe construction-time deduplication (e.g. deSSA
// move insertion, which intentionally creates multiple COPYs).
func (c *Context) Emit(op opcode.Op, typ types.Kind, op1, op2, op3 Ref) Ref {
	return c.append(Insn{Op: op, Typ: typ, Op1: op1, Op2: op2, Op3: op3})
}

// EmitN appends a variadic/extra-operand instruction (MERGE, PHI,
// CALL) with count operand slots, to be filled in with SetOp. Slots
// beyond the first three live in Insn.Extra (spec §3: "4 refs per
// extra slot" in the packed layout, re-expressed here as a plain
// slice per spec §9's design note).
func (c *Context) EmitN(op opcode.Op, typ types.Kind, count int) Ref {
	insn := Insn{Op: op, Typ: typ, Aux: uint16(count)}
	if count > 3 {
		insn.Extra = make([]Ref, count-3)
	}
	return c.append(insn)
}

// SetOp sets operand n (0-based) of a previously-EmitN'd instruction.
func (c *Context) SetOp(ref Ref, n int, v Ref) {
	insn := c.at(ref)
	switch n {
	case 0:
		insn.Op1 = v
	case 1:
		insn.Op2 = v
	case 2:
		insn.Op3 = v
	default:
		if n-3 >= len(insn.Extra) {
			panic(internalBug("SetOp", "operand index out of range"))
		}
		insn.Extra[n-3] = v
	}
}

// SetAux overwrites an instruction's Aux field, for collaborators
// (the textual loader) that reconstruct an instruction whose Aux
// carries something other than an operand count (e.g. PARAM's
// argument index).
func (c *Context) SetAux(ref Ref, aux uint16) {
	c.at(ref).Aux = aux
}

// GetOp reads operand n (0-based) of an instruction ref.
func (c *Context) GetOp(ref Ref, n int) Ref {
	insn := c.at(ref)
	switch n {
	case 0:
		return insn.Op1
	case 1:
		return insn.Op2
	case 2:
		return insn.Op3
	default:
		if n-3 >= len(insn.Extra) {
			return RefNone
		}
		return insn.Extra[n-3]
	}
}

// OperandCount returns how many operand slots ref has, resolving the
// variadic Aux-carried count for MERGE/LOOP_BEGIN/PHI/CALL.
func (c *Context) OperandCount(ref Ref) int {
	insn := c.at(ref)
	d := opcode.Table[insn.Op]
	switch d.Edges {
	case opcode.EdgesVariadic, opcode.EdgesPhi:
		return int(insn.Aux)
	default:
		return int(d.Edges)
	}
}

// ---- Constant construction (spec §4.1) ----

func (c *Context) constOf(k types.Kind, bits uint64) Ref {
	if k == types.BOOL {
		if bits == 0 {
			return RefFalse
		}
		return RefTrue
	}
	if k == types.ADDR && bits == 0 {
		return RefNull
	}
	key := constKey{Typ: k, Bits: bits}
	if ref, ok := c.constDedup[key]; ok {
		return ref
	}
	idx := len(c.consts)
	ref := Ref(-(idx + 1))
	c.consts = append(c.consts, constEntry{Typ: k, Bits: bits})
	c.constDedup[key] = ref
	return ref
}

// ConstBool, ConstU8 ... ConstDouble construct (or find) the unique
// constant of each value type (spec §3 invariant: constants are
// unique per (type, bit-pattern)).
func (c *Context) ConstBool(v bool) Ref {
	if v {
		return RefTrue
	}
	return RefFalse
}
func (c *Context) ConstNull() Ref          { return RefNull }
func (c *Context) ConstU8(v uint8) Ref     { return c.constOf(types.U8, uint64(v)) }
func (c *Context) ConstU16(v uint16) Ref   { return c.constOf(types.U16, uint64(v)) }
func (c *Context) ConstU32(v uint32) Ref   { return c.constOf(types.U32, uint64(v)) }
func (c *Context) ConstU64(v uint64) Ref   { return c.constOf(types.U64, v) }
func (c *Context) ConstI8(v int8) Ref      { return c.constOf(types.I8, uint64(uint8(v))) }
func (c *Context) ConstI16(v int16) Ref    { return c.constOf(types.I16, uint64(uint16(v))) }
func (c *Context) ConstI32(v int32) Ref    { return c.constOf(types.I32, uint64(uint32(v))) }
func (c *Context) ConstI64(v int64) Ref    { return c.constOf(types.I64, uint64(v)) }
func (c *Context) ConstAddr(v uint64) Ref  { return c.constOf(types.ADDR, v) }
func (c *Context) ConstChar(v byte) Ref    { return c.constOf(types.CHAR, uint64(v)) }
func (c *Context) ConstFloat(v float32) Ref {
	return c.constOf(types.FLOAT, uint64(math.Float32bits(v)))
}
func (c *Context) ConstDouble(v float64) Ref {
	return c.constOf(types.DOUBLE, math.Float64bits(v))
}

// ConstInt constructs a constant of the given integer Kind from a
// signed 64-bit value, truncating to the type's width. Used by
// generic pipeline code that doesn't know the static type up front
// (e.g. the loader).
func (c *Context) ConstInt(k types.Kind, v int64) Ref {
	bits := uint64(v)
	if sz := types.Size(k); sz > 0 && sz < 8 {
		mask := uint64(1)<<(sz*8) - 1
		bits &= mask
	}
	return c.constOf(k, bits)
}

// ---- Macro-level construction helpers (spec §6) ----
// These mirror the ADD_I32/IF/PHI_2/RETURN family spec §6 names, built
// on top of Fold so folding/CSE applies automatically whenever
// FlagOptFolding is set (spec §4.1: "fold is invoked when FOLDING is
// set"). Direct ir.Emit remains available for callers that need raw,
// unfolded construction.

// BinOp emits (or folds) a two-operand data instruction.
func (c *Context) BinOp(op opcode.Op, typ types.Kind, lhs, rhs Ref) Ref {
	return c.Fold(op, typ, lhs, rhs, RefNone)
}

// UnOp emits (or folds) a one-operand data instruction.
func (c *Context) UnOp(op opcode.Op, typ types.Kind, v Ref) Ref {
	return c.Fold(op, typ, v, RefNone, RefNone)
}

// Start creates the function's single START node (spec §3 invariant:
// exactly one START).
func (c *Context) Start() Ref {
	if c.startRef != RefNone {
		panic(internalBug("Start", "START already created"))
	}
	ref := c.Emit(opcode.Start, types.VOID, RefNone, RefNone, RefNone)
	c.startRef = ref
	return ref
}

// Param creates a PARAM leaf bound to argument index n.
func (c *Context) Param(typ types.Kind, n int) Ref {
	ref := c.Emit(opcode.Param, typ, RefNone, RefNone, RefNone)
	c.at(ref).Aux = uint16(n)
	return ref
}

// Return creates a RETURN terminator chained into START's terminator
// list (spec §3: "terminators are linked in a chain via their third
// operand rooted at START's op1").
func (c *Context) Return(ctrl, value Ref) Ref {
	ref := c.Emit(opcode.Return, c.TypeOf(value), ctrl, value, RefNone)
	c.linkTerminator(ref)
	return ref
}

// Unreachable creates an UNREACHABLE terminator.
func (c *Context) Unreachable(ctrl Ref) Ref {
	ref := c.Emit(opcode.Unreachable, types.VOID, ctrl, RefNone, RefNone)
	c.linkTerminator(ref)
	return ref
}

func (c *Context) linkTerminator(ref Ref) {
	insn := c.at(ref)
	insn.Op3 = c.termHead
	c.termHead = ref
	if start := c.startRef; start != RefNone {
		c.at(start).Op1 = c.termHead
	}
}

// If creates an IF control split; use IfTrue/IfFalse to build its two
// successors (spec §3 invariant: "IF has exactly two successors").
func (c *Context) If(ctrl, cond Ref) Ref {
	return c.Emit(opcode.If, types.VOID, ctrl, cond, RefNone)
}

// IfTrue / IfFalse create the two projections of an IF.
func (c *Context) IfTrue(ifRef Ref) Ref {
	return c.Emit(opcode.IfTrue, types.VOID, ifRef, RefNone, RefNone)
}
func (c *Context) IfFalse(ifRef Ref) Ref {
	return c.Emit(opcode.IfFalse, types.VOID, ifRef, RefNone, RefNone)
}

// Merge creates a MERGE joining n control predecessors.
func (c *Context) Merge(preds ...Ref) Ref {
	ref := c.EmitN(opcode.Merge, types.VOID, len(preds))
	for i, p := range preds {
		c.SetOp(ref, i, p)
	}
	return ref
}

// LoopBegin creates a LOOP_BEGIN with n control predecessors (spec
// §3: for MERGE/LOOP_BEGIN with n predecessors, associated PHIs have
// n+1 operands).
func (c *Context) LoopBegin(preds ...Ref) Ref {
	ref := c.EmitN(opcode.LoopBegin, types.VOID, len(preds))
	for i, p := range preds {
		c.SetOp(ref, i, p)
	}
	return ref
}

// LoopEnd closes a loop body, feeding back to its LOOP_BEGIN.
func (c *Context) LoopEnd(ctrl Ref) Ref {
	return c.Emit(opcode.LoopEnd, types.VOID, ctrl, RefNone, RefNone)
}

// Phi creates a PHI selecting among values for each control
// predecessor of merge (spec §3: op1 references the controlling
// MERGE/LOOP_BEGIN; operand count = predecessors+1).
func (c *Context) Phi(typ types.Kind, merge Ref, values ...Ref) Ref {
	ref := c.EmitN(opcode.Phi, typ, len(values)+1)
	c.SetOp(ref, 0, merge)
	for i, v := range values {
		c.SetOp(ref, i+1, v)
	}
	return ref
}

// Begin/End wrap a single-entry, single-exit straight-line region.
func (c *Context) Begin(ctrl Ref) Ref { return c.Emit(opcode.Begin, types.VOID, ctrl, RefNone, RefNone) }
func (c *Context) End(ctrl Ref) Ref   { return c.Emit(opcode.End, types.VOID, ctrl, RefNone, RefNone) }

// Alloca reserves a stack slot of the given type.
func (c *Context) Alloca(typ types.Kind) Ref {
	return c.Emit(opcode.Alloca, types.ADDR, RefNone, RefNone, RefNone)
}

// Load / Store are the plain (non-vector, non-tls) memory operations.
func (c *Context) Load(typ types.Kind, addr Ref) Ref {
	return c.Emit(opcode.Load, typ, addr, RefNone, RefNone)
}
func (c *Context) Store(addr, value Ref) Ref {
	return c.Emit(opcode.Store, types.VOID, addr, value, RefNone)
}

// CallN creates a CALL with a function ref plus argCount arguments, to
// be filled with SetOp(ref, 1+i, arg).
func (c *Context) CallN(typ types.Kind, fn Ref, argCount int) Ref {
	ref := c.EmitN(opcode.Call, typ, argCount+1)
	c.SetOp(ref, 0, fn)
	return ref
}
