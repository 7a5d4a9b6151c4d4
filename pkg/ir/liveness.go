package ir

import (
	"github.com/nir-project/nir/pkg/opcode"
	"github.com/nir-project/nir/pkg/types"
)

// linearOrder returns every scheduled instruction ref in program
// order (blocks visited in ID order, which Schedule always keeps
// consistent with reverse-postorder for the entry-reachable graph),
// alongside the block each position falls in. Each instruction spans
// subRefsCount program points (LOAD/USE/DEF/SAVE, spec §4.7), not one,
// so a use and its instruction's def never alias the same point.
func (c *Context) linearOrder() (order []Ref, posOfBlock []int32) {
	posOfBlock = make([]int32, len(c.Blocks)+1)
	pos := int32(0)
	for i := range c.Blocks {
		posOfBlock[i] = pos
		for _, ref := range c.Blocks[i].Order {
			order = append(order, ref)
			pos += subRefsCount
		}
	}
	posOfBlock[len(c.Blocks)] = pos
	return order, posOfBlock
}

// AssignVirtualRegisters gives every data-producing instruction a
// virtual register number (spec §4.7 precondition for liveness/RA).
// Memory/control/call nodes with a VOID result never need one.
func (c *Context) AssignVirtualRegisters() {
	next := int32(0)
	for i := range c.code {
		insn := &c.code[i]
		if insn.Typ == types.VOID {
			continue
		}
		d := opcode.Table[insn.Op]
		if d.Class != opcode.ClassData && d.Class != opcode.ClassCall {
			continue
		}
		insn.VReg = Int32Slot{Valid: true, Value: next}
		next++
	}
	c.NumVRegs = next
	c.vregOf = make([]int32, len(c.code))
	for i := range c.code {
		if c.code[i].VReg.Valid {
			c.vregOf[i] = c.code[i].VReg.Value
		} else {
			c.vregOf[i] = -1
		}
	}
}

// reusesOp1 reports whether ref's defining instruction is a
// two-address ALU op whose result overwrites operand 0's register on
// the targets codegen emits for (x86/ARM BinOp both take dst,src and
// assume dst already holds operand 0 — see pkg/codegen.Matcher.Select).
func reusesOp1(op opcode.Op) bool {
	switch op {
	case opcode.Add, opcode.Sub, opcode.Mul, opcode.Div, opcode.Mod,
		opcode.And, opcode.Or, opcode.Xor, opcode.Shl, opcode.Shr, opcode.Sar,
		opcode.Min, opcode.Max:
		return true
	}
	return false
}

// ComputeLiveRanges runs the Wimmer & Franz BUILD_INTERVALS backward
// per-block liveness walk and builds one Interval per virtual register
// (spec §4.7, §4.8): live-out of a block is the union of live-in of
// its successors (plus phi inputs corresponding to that predecessor
// edge); live-in is upward-exposed uses plus live-out minus local
// defs. A loop header additionally extends every value live at its
// entry across the whole loop body, so a linear-scan allocator never
// has to special-case back edges (Wimmer & Franz §3.2). Each
// instruction records a 4-sub-position use (LOAD/USE/DEF/SAVE) rather
// than one flat point, and every operand read records a UsePosition
// carrying the must-be-in-reg / reuses-op1-reg / phi-use flags spec
// §4.7 names, so RegAlloc's splitting and hint logic has real data to
// act on instead of a single [Start,End) span per vreg.
func (c *Context) ComputeLiveRanges() {
	_, posOfBlock := c.linearOrder()
	c.posOf = make(map[Ref]int32, len(c.code))

	n := int(c.NumVRegs)
	intervals := make([]*Interval, n)
	for i := range intervals {
		intervals[i] = &Interval{VReg: int32(i), Reg: -1, SpillSlot: -1, HintVReg: -1}
	}

	liveIn := make([]map[int32]bool, len(c.Blocks))
	changed := true
	for changed {
		changed = false
		for i := range intervals {
			intervals[i].Ranges = nil
			intervals[i].Uses = nil
		}

		for bi := len(c.Blocks) - 1; bi >= 0; bi-- {
			live := map[int32]bool{}
			for _, s := range c.Succs(int32(bi)) {
				if liveIn[s] != nil {
					for v := range liveIn[s] {
						live[v] = true
					}
				}
				// PHI inputs corresponding to this predecessor edge are
				// live-out of bi even though the PHI's own vreg wouldn't
				// otherwise show up in succ's live-in upward-exposed set.
				c.addPhiInputsLiveOut(s, int32(bi), live)
			}

			blockFrom, blockEnd := posOfBlock[bi], posOfBlock[bi+1]
			localFrom := make(map[int32]int32, len(live))
			localTo := make(map[int32]int32, len(live))
			for vr := range live {
				localFrom[vr] = blockFrom
				localTo[vr] = blockEnd
			}

			pos := blockEnd
			for i := len(c.Blocks[bi].Order) - 1; i >= 0; i-- {
				ref := c.Blocks[bi].Order[i]
				pos -= subRefsCount
				defPos, usePos := pos+subDef, pos+subUse
				c.posOf[ref] = defPos
				insn := c.at(ref)

				if insn.VReg.Valid && insn.Op != opcode.Phi {
					localFrom[insn.VReg.Value] = defPos
					if _, ok := localTo[insn.VReg.Value]; !ok {
						localTo[insn.VReg.Value] = defPos + 1
					}
					delete(live, insn.VReg.Value)
				}
				if insn.Op == opcode.Phi {
					continue // phi inputs are accounted for per predecessor above
				}

				cnt := c.OperandCount(ref)
				for k := 0; k < cnt; k++ {
					op := c.GetOp(ref, k)
					if !c.isInsnRef(op) {
						continue
					}
					opInsn := c.at(op)
					if !opInsn.VReg.Valid {
						continue
					}
					vr := opInsn.VReg.Value
					if _, ok := localFrom[vr]; !ok {
						localTo[vr] = usePos + 1
					}
					localFrom[vr] = blockFrom
					live[vr] = true

					u := UsePosition{Pos: usePos, MustBeInReg: true, ReusesOp1Reg: k == 0 && reusesOp1(insn.Op)}
					intervals[vr].Uses = append(intervals[vr].Uses, u)
					if u.ReusesOp1Reg && insn.VReg.Valid {
						intervals[insn.VReg.Value].HintVReg = vr
					}
				}
			}

			// A PHI's own vreg is defined at block entry, not mid-block.
			start := c.Blocks[bi].Start
			for _, cur := range c.Uses(start) {
				insn := c.at(cur)
				if insn.Op == opcode.Phi && insn.Op1 == start && insn.VReg.Valid {
					vr := insn.VReg.Value
					localFrom[vr] = blockFrom
					if _, ok := localTo[vr]; !ok {
						localTo[vr] = blockFrom + 1
					}
					delete(live, vr)
					if cnt := c.OperandCount(cur); cnt > 1 {
						if first := c.GetOp(cur, 1); c.isInsnRef(first) {
							if fvr := c.at(first).VReg; fvr.Valid {
								intervals[vr].HintVReg = fvr.Value
							}
						}
					}
				}
			}

			for vr, from := range localFrom {
				to := localTo[vr]
				if from < to {
					intervals[vr].Ranges = append(intervals[vr].Ranges, LiveRange{From: from, To: to})
				}
			}

			if c.Blocks[bi].LoopHeader == int32(bi) {
				loopEndPos := c.loopExtent(int32(bi), posOfBlock)
				for vr := range live {
					intervals[vr].Ranges = append(intervals[vr].Ranges, LiveRange{From: blockFrom, To: loopEndPos})
				}
			}

			if !mapsEqual(liveIn[bi], live) {
				liveIn[bi] = live
				changed = true
			}
		}
	}

	for _, iv := range intervals {
		iv.Ranges = normalizeRanges(iv.Ranges)
		sortUses(iv.Uses)
	}
	// addPhiInputsLiveOut above records which vregs cross a predecessor
	// edge into a PHI; tag the matching use (the last one recorded in
	// that predecessor, if any) as a phi-use for coalescing diagnostics.
	c.markPhiUses(intervals, posOfBlock)

	c.Intervals = intervals
}

// markPhiUses walks every PHI operand a second time purely to flag the
// UsePosition nearest the predecessor block's end as a phi-use (spec
// §4.7's phi-use flag): informational for coalescing/debugging, not
// consulted by RegAlloc's core allocation decision.
func (c *Context) markPhiUses(intervals []*Interval, posOfBlock []int32) {
	for bi := range c.Blocks {
		start := c.Blocks[bi].Start
		for _, cur := range c.Uses(start) {
			insn := c.at(cur)
			if insn.Op != opcode.Phi || insn.Op1 != start {
				continue
			}
			preds := c.predsOfControlNode(insn.Op1)
			cnt := c.OperandCount(cur)
			for i := 1; i < cnt; i++ {
				if i-1 >= len(preds) {
					continue
				}
				predBlock := c.at(preds[i-1]).Block
				if !predBlock.Valid {
					continue
				}
				in := c.GetOp(cur, i)
				if !c.isInsnRef(in) {
					continue
				}
				vr := c.at(in).VReg
				if !vr.Valid {
					continue
				}
				predEnd := posOfBlock[predBlock.Value+1]
				iv := intervals[vr.Value]
				for k := range iv.Uses {
					if iv.Uses[k].Pos < predEnd {
						iv.Uses[k].PhiUse = true
					}
				}
			}
		}
	}
}

// addPhiInputsLiveOut adds the vreg each PHI in block succ receives
// from predecessor pred to the live set, modeling the value as live
// out of pred along that specific edge.
func (c *Context) addPhiInputsLiveOut(succ, pred int32, live map[int32]bool) {
	start := c.Blocks[succ].Start
	for _, cur := range c.Uses(start) {
		insn := c.at(cur)
		if insn.Op != opcode.Phi || insn.Op1 != start {
			continue
		}
		preds := c.predsOfControlNode(insn.Op1)
		cnt := c.OperandCount(cur)
		for i := 1; i < cnt; i++ {
			if i-1 < len(preds) {
				if predBlock := c.at(preds[i-1]).Block; predBlock.Valid && predBlock.Value == pred {
					in := c.GetOp(cur, i)
					if c.isInsnRef(in) {
						if vr := c.at(in).VReg; vr.Valid {
							live[vr.Value] = true
						}
					}
				}
			}
		}
	}
}

// loopExtent returns the program-point end of the last block
// belonging to header's natural loop, so live ranges can be extended
// across the entire loop body in one step.
func (c *Context) loopExtent(header int32, posOfBlock []int32) int32 {
	body := c.loopBodies[header]
	end := posOfBlock[header+1]
	for b := range body {
		if posOfBlock[b+1] > end {
			end = posOfBlock[b+1]
		}
	}
	return end
}

func mapsEqual(a, b map[int32]bool) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if !b[k] {
			return false
		}
	}
	return true
}
