package ir

import "github.com/nir-project/nir/pkg/opcode"

// RunGCM assigns every floating data instruction to a basic block
// using Click's global code motion: schedule-early places each data
// node in the shallowest block dominance allows (as close to its
// operands as the dominator tree permits), then schedule-late sinks
// it back down to the shallowest-loop-depth block common to all of
// its uses, choosing the later of the two only when it does not
// increase loop nesting depth (spec §4.6). Control, memory, and call
// nodes already carry a Block from BuildCFG and are left alone.
func (c *Context) RunGCM() {
	if len(c.Blocks) == 0 {
		c.BuildCFG()
		c.BuildDominators()
		c.FindLoops()
	}
	n := len(c.code)
	visited := make([]bool, n+1)
	early := make([]int32, n+1)
	for i := range early {
		early[i] = -1
	}

	for i := 0; i < n; i++ {
		ref := Ref(i + 1)
		if c.floats(ref) {
			c.scheduleEarly(ref, visited, early)
		}
	}

	visited2 := make([]bool, n+1)
	for i := 0; i < n; i++ {
		ref := Ref(i + 1)
		if c.floats(ref) {
			c.scheduleLate(ref, visited2, early)
		}
	}
}

// floats reports whether ref is a pure data node with no fixed block
// assignment yet (control/memory/call nodes pin themselves during CFG
// construction and never float).
func (c *Context) floats(ref Ref) bool {
	insn := c.at(ref)
	if insn.Block.Valid {
		return false
	}
	d := opcode.Table[insn.Op]
	return d.Class == opcode.ClassData
}

// scheduleEarly recursively places ref as early (as close to the
// entry) as its operands' dominance allows: the deepest block that
// dominates all of ref's pinned/early-scheduled operands.
func (c *Context) scheduleEarly(ref Ref, visited []bool, early []int32) int32 {
	idx := c.insnIndex(ref)
	if visited[idx+1] {
		return early[idx+1]
	}
	visited[idx+1] = true

	best := int32(0) // the entry block dominates everything
	cnt := c.OperandCount(ref)
	for k := 0; k < cnt; k++ {
		op := c.GetOp(ref, k)
		if !c.isInsnRef(op) {
			continue
		}
		var opBlock int32
		if c.floats(op) {
			opBlock = c.scheduleEarly(op, visited, early)
		} else if b := c.at(op).Block; b.Valid {
			opBlock = b.Value
		} else {
			continue
		}
		if c.Blocks[opBlock].RPONumber > c.Blocks[best].RPONumber {
			best = opBlock
		}
	}
	early[idx+1] = best
	return best
}

// scheduleLate recursively places ref as late as every use permits —
// the LCA (in the dominator tree) of all of ref's uses' blocks — then
// walks from that LCA back up toward ref's early placement, stopping
// at the shallowest loop nest along the way (spec §4.6: "never sinks
// a computation deeper into loop nesting than its early placement").
func (c *Context) scheduleLate(ref Ref, visited []bool, early []int32) int32 {
	idx := c.insnIndex(ref)
	if visited[idx+1] {
		return c.at(ref).Block.Value
	}
	visited[idx+1] = true

	lca := int32(-1)
	for _, use := range c.Uses(ref) {
		useInsn := c.at(use)
		var useBlock int32
		if useInsn.Op == opcode.Phi {
			// A PHI "uses" ref in the predecessor block corresponding to
			// the operand slot, not in the PHI's own block.
			useBlock = c.phiOperandBlock(use, ref)
		} else if c.floats(use) {
			useBlock = c.scheduleLate(use, visited, early)
		} else if b := useInsn.Block; b.Valid {
			useBlock = b.Value
		} else {
			continue
		}
		if lca == -1 {
			lca = useBlock
		} else {
			lca = c.lcaBlock(lca, useBlock)
		}
	}

	target := lca
	if target == -1 {
		target = early[idx+1]
	}

	// Walk up from target toward early[ref], preferring the shallowest
	// loop depth seen along that dominator-tree path.
	best := target
	cur := target
	for cur != -1 {
		if c.Blocks[cur].LoopDepth < c.Blocks[best].LoopDepth {
			best = cur
		}
		if cur == early[idx+1] {
			break
		}
		cur = c.Blocks[cur].Idom
	}

	c.at(ref).Block = Int32Slot{Valid: true, Value: best}
	return best
}

// phiOperandBlock returns the predecessor block feeding phiRef's
// operand slot that holds ref, so scheduleLate can treat a PHI's use
// of a floating value as living in that predecessor, not in the PHI's
// own (merge) block.
func (c *Context) phiOperandBlock(phiRef, ref Ref) int32 {
	insn := c.at(phiRef)
	merge := insn.Op1
	preds := c.predsOfControlNode(merge)
	cnt := c.OperandCount(phiRef)
	for i := 1; i < cnt; i++ {
		if c.GetOp(phiRef, i) == ref && i-1 < len(preds) {
			predCtrl := preds[i-1]
			if b := c.at(predCtrl).Block; b.Valid {
				return b.Value
			}
		}
	}
	return insn.Block.Value
}

// lcaBlock returns the lowest common ancestor of a and b in the
// dominator tree, found by walking the deeper block up until both
// sides meet (same technique as dom.go's intersect, reusing
// RPONumber as the depth proxy since dominator-tree depth and RPO
// order agree along any root-to-node path).
func (c *Context) lcaBlock(a, b int32) int32 {
	for a != b {
		for c.Blocks[a].RPONumber > c.Blocks[b].RPONumber {
			a = c.Blocks[a].Idom
		}
		for c.Blocks[b].RPONumber > c.Blocks[a].RPONumber {
			b = c.Blocks[b].Idom
		}
	}
	return a
}
