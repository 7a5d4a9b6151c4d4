package ir

import "github.com/nir-project/nir/pkg/opcode"

// useHead is one instruction's entry into the flattened use-list: the
// CSR-style layout mirrors c.blockEdges (cfg.go) rather than the
// original's per-node intrusive linked list (spec §9 design note
// suggests exactly this substitution for array-of-struct side tables).
type useHead struct {
	Offset int32
	Count  int32
}

// BuildDefUse walks every instruction's operands and builds the
// reverse (use) edges: for each ref, the set of instructions that
// consume it. Passes (SCCP, GCM, DCE, coalescing) all need "who uses
// this value" and none of them can afford to rescan the whole arena
// per query, so this runs once up front (spec §4.2's precondition for
// the CFG/GCM/SCCP family: "operates over the def-use graph").
func (c *Context) BuildDefUse() {
	n := len(c.code)
	counts := make([]int32, n+1)

	// Pass 1: count uses per def so we can size a single flat array
	// (classic two-pass CSR construction, same shape as BuildCFG's
	// successor/predecessor edge arrays below).
	for i := 0; i < n; i++ {
		ref := Ref(i + 1)
		cnt := c.OperandCount(ref)
		for k := 0; k < cnt; k++ {
			op := c.GetOp(ref, k)
			if c.isInsnRef(op) {
				counts[c.insnIndex(op)+1]++
			}
		}
	}

	heads := make([]useHead, n+1)
	total := int32(0)
	for i := 1; i <= n; i++ {
		heads[i].Offset = total
		total += counts[i]
		heads[i].Count = 0 // filled by the fill pass below
	}
	edges := make([]Ref, total)

	// Pass 2: fill, using heads[i].Count as a per-bucket cursor.
	for i := 0; i < n; i++ {
		ref := Ref(i + 1)
		cnt := c.OperandCount(ref)
		for k := 0; k < cnt; k++ {
			op := c.GetOp(ref, k)
			if c.isInsnRef(op) {
				idx := c.insnIndex(op) + 1
				slot := heads[idx].Offset + heads[idx].Count
				edges[slot] = ref
				heads[idx].Count++
			}
		}
	}

	c.useHeads = heads
	c.useEdges = edges
}

// Uses returns every instruction ref that consumes def as an operand.
// Valid only after BuildDefUse; callers that mutate the graph after
// building def-use must rebuild before calling Uses again.
func (c *Context) Uses(def Ref) []Ref {
	if !c.isInsnRef(def) {
		return nil
	}
	idx := c.insnIndex(def) + 1
	if idx >= len(c.useHeads) {
		return nil
	}
	h := c.useHeads[idx]
	return c.useEdges[h.Offset : h.Offset+h.Count]
}

// NumUses reports how many instructions consume def, without
// allocating a slice header for callers that only need the count.
func (c *Context) NumUses(def Ref) int {
	if !c.isInsnRef(def) {
		return 0
	}
	idx := c.insnIndex(def) + 1
	if idx >= len(c.useHeads) {
		return 0
	}
	return int(c.useHeads[idx].Count)
}

// IsUnused reports whether def has zero uses and is not itself a
// control, memory, or terminator instruction (pure dead data node) —
// the DCE predicate GCM and combine.go both rely on.
func (c *Context) IsUnused(def Ref) bool {
	if !c.isInsnRef(def) {
		return false
	}
	insn := c.at(def)
	d := opcode.Table[insn.Op]
	if d.Class != opcode.ClassData {
		return false
	}
	return c.NumUses(def) == 0
}
