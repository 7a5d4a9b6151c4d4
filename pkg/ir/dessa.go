package ir

import (
	"github.com/nir-project/nir/pkg/opcode"
	"github.com/nir-project/nir/pkg/types"
)

// pcopy is one entry of a parallel-copy set: "destVR := src", to be
// executed as if every entry in the set fires simultaneously.
type pcopy struct {
	destVR int32
	src    Ref
}

// InsertParallelCopies lowers every remaining (uncoalesced) PHI edge
// into an explicit COPY in the corresponding predecessor block (spec
// §4.9: SSA deconstruction), run after RegAlloc so every ordinary
// operand already has a physical location. CoalescePhis must run
// first so only the edges that genuinely interfere reach here; those
// are sequenced with the standard cycle-breaking parallel-copy
// algorithm (Boissinot et al.) since two PHIs can reference each
// other's incoming values across a loop back edge, producing a swap a
// naive one-at-a-time copy would corrupt. Breaking a cycle needs one
// extra storage location to stash a value in; rather than reopen
// linear scan for a single new temporary, scratchReg names the
// target's reserved scratch register (spec §4.9 / DESIGN.md) and the
// temp gets a synthetic Interval pinned to it directly.
func (c *Context) InsertParallelCopies(scratchReg int32) {
	c.scratchReg = scratchReg
	for bi := range c.Blocks {
		for _, succ := range c.Succs(int32(bi)) {
			moves := c.phiMovesFor(succ, int32(bi))
			if len(moves) == 0 {
				continue
			}
			c.emitSequencedCopies(int32(bi), moves)
		}
	}
}

// phiMovesFor collects the (destVReg, sourceRef) pair for every PHI in
// block succ whose operand from predecessor pred still needs a copy
// (i.e. CoalescePhis did not already give it the PHI's own vreg).
func (c *Context) phiMovesFor(succ, pred int32) []pcopy {
	var moves []pcopy
	start := c.Blocks[succ].Start
	for _, cur := range c.Uses(start) {
		insn := c.at(cur)
		if insn.Op != opcode.Phi || insn.Op1 != start {
			continue
		}
		if insn.VReg.Valid {
			preds := c.predsOfControlNode(insn.Op1)
			cnt := c.OperandCount(cur)
			for i := 1; i < cnt; i++ {
				if i-1 >= len(preds) {
					continue
				}
				predCtrl := preds[i-1]
				pb := c.at(predCtrl).Block
				if !pb.Valid || pb.Value != pred {
					continue
				}
				src := c.GetOp(cur, i)
				srcVR := int32(-1)
				if c.isInsnRef(src) {
					if vr := c.at(src).VReg; vr.Valid {
						srcVR = vr.Value
					}
				}
				if srcVR == insn.VReg.Value {
					continue // already coalesced to the same storage
				}
				moves = append(moves, pcopy{destVR: insn.VReg.Value, src: src})
			}
		}
	}
	return moves
}

// emitSequencedCopies runs the classic parallel-copy sequentializer:
// a move whose destination is no longer read by another pending move
// is safe to execute immediately; once all such "leaf" moves drain, any
// remainder is a pure cycle broken by stashing one value in a fresh
// temporary vreg before overwriting it.
func (c *Context) emitSequencedCopies(block int32, moves []pcopy) {
	isDest := make(map[int32]bool, len(moves))
	for _, m := range moves {
		isDest[m.destVR] = true
	}

	srcVRForMove := func(m pcopy) (int32, bool) {
		if !c.isInsnRef(m.src) {
			return -1, false
		}
		vr := c.at(m.src)
		if !vr.VReg.Valid {
			return -1, false
		}
		return vr.VReg.Value, true
	}

	var emit []Ref // refs to append, in final order, to block's schedule
	pending := make(map[int32]pcopy, len(moves))
	for _, m := range moves {
		pending[m.destVR] = m
	}

	// Determine, for any vreg appearing as a source, how many pending
	// moves still need to read it — once that hits zero the move that
	// defines it (if any) becomes safe to fire.
	readers := make(map[int32]int)
	for _, m := range moves {
		if svr, ok := srcVRForMove(m); ok {
			readers[svr]++
		}
	}

	var ready []int32
	for destVR := range pending {
		if readers[destVR] == 0 {
			ready = append(ready, destVR)
		}
	}

	fire := func(destVR int32) {
		m := pending[destVR]
		ref := c.emitCopyInto(block, destVR, m.src)
		emit = append(emit, ref)
		delete(pending, destVR)
		if svr, ok := srcVRForMove(m); ok {
			readers[svr]--
			if readers[svr] == 0 {
				if _, stillPending := pending[svr]; stillPending {
					ready = append(ready, svr)
				}
			}
		}
	}

	for len(pending) > 0 {
		for len(ready) > 0 {
			destVR := ready[len(ready)-1]
			ready = ready[:len(ready)-1]
			if _, ok := pending[destVR]; !ok {
				continue
			}
			fire(destVR)
		}
		if len(pending) == 0 {
			break
		}
		// A cycle remains: pick one, stash its current value in a fresh
		// temporary vreg, then treat that temp as the new source for
		// whichever move was waiting to read the stashed vreg.
		var victim int32
		for vr := range pending {
			victim = vr
			break
		}
		tempVR := c.NumVRegs
		c.NumVRegs++
		var victimValue Ref // a pending move's source that still holds victim
		for _, m := range pending {
			if svr, ok := srcVRForMove(m); ok && svr == victim {
				victimValue = m.src
				break
			}
		}
		tempRef := c.Emit(opcode.Copy, c.vregType(victim), victimValue, RefNone, RefNone)
		c.at(tempRef).Block = Int32Slot{Valid: true, Value: block}
		c.at(tempRef).VReg = Int32Slot{Valid: true, Value: tempVR}
		emit = append(emit, tempRef)
		// This temp is born after RegAlloc has already run, so it never
		// goes through linear scan; pin it directly to the reserved
		// scratch register instead. It carries no Ranges/Uses of its
		// own (codegen never looks a post-RegAlloc COPY's operand up by
		// Interval, only by the scratch register itself), matching
		// Fixed's contract of never being evicted without needing to
		// participate in linear scan's active/inactive bookkeeping.
		c.Intervals = append(c.Intervals, &Interval{VReg: tempVR, Reg: c.scratchReg, SpillSlot: -1, HintVReg: -1, Fixed: true})

		// Retarget every pending move that sourced `victim` to source the
		// temp instead, then victim's own move can fire safely.
		for vr, m := range pending {
			if svr, ok := srcVRForMove(m); ok && svr == victim {
				pending[vr] = pcopy{destVR: m.destVR, src: tempRef}
			}
		}
		ready = append(ready, victim)
	}

	c.appendCopiesBeforeTerminator(block, emit)
}

func (c *Context) vregType(vr int32) types.Kind {
	for i := range c.code {
		if c.code[i].VReg.Valid && c.code[i].VReg.Value == vr {
			return c.code[i].Typ
		}
	}
	return types.VOID
}

func victimRefOf(pending map[int32]pcopy, vr int32) Ref {
	if m, ok := pending[vr]; ok {
		return m.src
	}
	return RefNone
}

// emitCopyInto appends a COPY producing destVR from src, pinned to
// block. When src already carries destVR (the trivial self-move that
// can arise once a cycle has been broken via a temp) this still emits
// a COPY; no later pass removes such `copy(v, v)` no-ops.
func (c *Context) emitCopyInto(block int32, destVR int32, src Ref) Ref {
	typ := c.TypeOf(src)
	ref := c.Emit(opcode.Copy, typ, src, RefNone, RefNone)
	c.at(ref).Block = Int32Slot{Valid: true, Value: block}
	c.at(ref).VReg = Int32Slot{Valid: true, Value: destVR}
	return ref
}

// appendCopiesBeforeTerminator splices newly emitted copies into a
// block's scheduled order immediately before its terminator, so the
// control transfer they precede still executes last.
func (c *Context) appendCopiesBeforeTerminator(block int32, copies []Ref) {
	if len(copies) == 0 {
		return
	}
	b := &c.Blocks[block]
	if len(b.Order) == 0 {
		b.Order = copies
		return
	}
	last := b.Order[len(b.Order)-1]
	b.Order = append(b.Order[:len(b.Order)-1], append(copies, last)...)
}
