package ir

import (
	"math"

	"github.com/nir-project/nir/pkg/opcode"
)

// union-find over virtual registers, used to merge a PHI with its
// operands whenever it is safe to give them the same physical
// location and so skip a copy at SSA deconstruction time.
type vregUnionFind struct {
	parent []int32
}

func newVregUnionFind(n int32) *vregUnionFind {
	u := &vregUnionFind{parent: make([]int32, n)}
	for i := range u.parent {
		u.parent[i] = int32(i)
	}
	return u
}

func (u *vregUnionFind) find(x int32) int32 {
	for u.parent[x] != x {
		u.parent[x] = u.parent[u.parent[x]]
		x = u.parent[x]
	}
	return x
}

func (u *vregUnionFind) union(a, b int32) {
	ra, rb := u.find(a), u.find(b)
	if ra != rb {
		u.parent[ra] = rb
	}
}

// CoalescePhis merges a PHI's virtual register with each operand's
// virtual register whenever their live ranges do not overlap (spec
// §4.9's prerequisite for cheap SSA deconstruction: "a PHI coalesced
// with every one of its operands needs no move in any predecessor").
// Operands left un-coalesced (interference, or a constant operand)
// are exactly the cases DeSSA must still insert a copy for.
func (c *Context) CoalescePhis() {
	uf := newVregUnionFind(c.NumVRegs)

	for i := range c.code {
		insn := &c.code[i]
		if insn.Op != opcode.Phi || !insn.VReg.Valid {
			continue
		}
		phiVR := insn.VReg.Value
		cnt := c.OperandCount(Ref(i + 1))
		for k := 1; k < cnt; k++ {
			op := c.GetOp(Ref(i+1), k)
			if !c.isInsnRef(op) {
				continue
			}
			opVR := c.at(op).VReg
			if !opVR.Valid {
				continue
			}
			if !c.intervalsOverlap(uf.find(phiVR), uf.find(opVR.Value)) {
				uf.union(phiVR, opVR.Value)
			}
		}
	}

	// Rewrite every instruction's VReg to its union-find representative
	// and rebuild a merged interval per representative. CoalescePhis
	// runs before RegAlloc ever splits anything, so every vreg still
	// has exactly one Interval here — merging is just a range/use union.
	merged := make(map[int32]*Interval)
	for i := range c.code {
		insn := &c.code[i]
		if !insn.VReg.Valid {
			continue
		}
		rep := uf.find(insn.VReg.Value)
		insn.VReg.Value = rep
	}
	for _, iv := range c.Intervals {
		rep := uf.find(iv.VReg)
		if existing, ok := merged[rep]; ok {
			existing.Ranges = normalizeRanges(append(existing.Ranges, iv.Ranges...))
			existing.Uses = append(existing.Uses, iv.Uses...)
		} else {
			merged[rep] = &Interval{VReg: rep, Ranges: iv.Ranges, Uses: iv.Uses, Reg: -1, SpillSlot: -1, HintVReg: iv.HintVReg}
		}
	}
	out := make([]*Interval, 0, len(merged))
	for _, iv := range merged {
		sortUses(iv.Uses)
		out = append(out, iv)
	}
	c.Intervals = out
	c.phiCoalesce = uf
}

// intervalsOverlap reports whether the (pre-split, exactly-one-Interval-
// per-vreg) live ranges for representatives a and b overlap, checked
// range-by-range so a genuine lifetime hole in either one is honored
// rather than approximated by a single flattened span.
func (c *Context) intervalsOverlap(a, b int32) bool {
	if a == b {
		return false
	}
	var ia, ib *Interval
	for _, iv := range c.Intervals {
		if iv.VReg == a {
			ia = iv
		}
		if iv.VReg == b {
			ib = iv
		}
	}
	if ia == nil || ib == nil {
		return false
	}
	return ia.firstIntersection(ib) != math.MaxInt32
}
