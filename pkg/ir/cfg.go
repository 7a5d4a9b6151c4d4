package ir

import "github.com/nir-project/nir/pkg/opcode"

// Block is one basic block: a maximal straight-line run of control
// nodes from a BBStart node (START/BEGIN/IF_TRUE/IF_FALSE/MERGE/...)
// to the single BBEnd node that closes it. Predecessor/successor lists
// live in the shared c.blockEdges CSR array, the same pattern useHead
// uses for def-use edges (spec §4.2).
type Block struct {
	ID    int32
	Start Ref // the BBStart instruction
	End   Ref // the BBEnd instruction (terminator or branch/switch/merge-closer), or the last node before the next BBStart

	PredOffset, PredCount int32
	SuccOffset, SuccCount int32

	// Filled in by dom.go / loops.go; Idom and LoopHeader are -1 until
	// then, RPONumber and LoopDepth 0.
	Idom       int32
	RPONumber  int32
	LoopHeader int32
	LoopDepth  int32

	// Order is the block's final instruction order, filled in by
	// Schedule once RunGCM has pinned every floating data node.
	Order []Ref
}

// BuildCFG discovers basic blocks by walking the control sub-graph
// from START and assigns every control instruction's Block slot (spec
// §4.2: "Builds the basic-block graph from the control-flow edges
// implicit in the sea-of-nodes graph"). BuildDefUse must have already
// run, since block discovery walks forward via Uses.
func (c *Context) BuildCFG() {
	if len(c.useHeads) == 0 {
		c.BuildDefUse()
	}
	c.Blocks = c.Blocks[:0]
	c.blockEdges = c.blockEdges[:0]

	blockOf := make(map[Ref]int32)
	var worklist []Ref
	visited := make(map[Ref]bool)

	start := c.startRef
	if start == RefNone {
		panic(internalBug("BuildCFG", "no START node"))
	}
	worklist = append(worklist, start)
	visited[start] = true

	type rawEdges struct {
		preds, succs []int32
	}
	var raw []rawEdges

	for len(worklist) > 0 {
		blockStart := worklist[0]
		worklist = worklist[1:]

		id := int32(len(c.Blocks))
		blockOf[blockStart] = id
		raw = append(raw, rawEdges{})

		end := c.scanBlock(blockStart)
		c.Blocks = append(c.Blocks, Block{ID: id, Start: blockStart, End: end, Idom: -1, LoopHeader: -1})

		for _, succ := range c.controlSuccessors(end) {
			if !visited[succ] {
				visited[succ] = true
				worklist = append(worklist, succ)
			}
		}
	}

	// Second pass: now that every block start has an ID, link preds/succs.
	for i := range c.Blocks {
		end := c.Blocks[i].End
		for _, succ := range c.controlSuccessors(end) {
			sid, ok := blockOf[succ]
			if !ok {
				continue
			}
			raw[i].succs = append(raw[i].succs, sid)
			raw[sid].preds = append(raw[sid].preds, int32(i))
		}
	}

	for i := range c.Blocks {
		c.Blocks[i].PredOffset = int32(len(c.blockEdges))
		c.Blocks[i].PredCount = int32(len(raw[i].preds))
		c.blockEdges = append(c.blockEdges, raw[i].preds...)
	}
	for i := range c.Blocks {
		c.Blocks[i].SuccOffset = int32(len(c.blockEdges))
		c.Blocks[i].SuccCount = int32(len(raw[i].succs))
		c.blockEdges = append(c.blockEdges, raw[i].succs...)
	}

	// Tag every instruction between Start/End (inclusive) with its block.
	for i := range c.Blocks {
		b := &c.Blocks[i]
		cur := b.Start
		for {
			c.at(cur).Block = Int32Slot{Valid: true, Value: b.ID}
			if cur == b.End {
				break
			}
			cur = c.nextInBlock(cur)
		}
		// A PHI belongs to the block its MERGE/LOOP_BEGIN starts.
		for _, use := range c.Uses(b.Start) {
			if u := c.at(use); u.Op == opcode.Phi && u.Op1 == b.Start {
				u.Block = Int32Slot{Valid: true, Value: b.ID}
			}
		}
	}
}

// scanBlock walks forward from a BBStart node along the unique
// control chain until it reaches the BBEnd node closing the block, or
// the last node before the next BBStart node, returning that node's ref.
func (c *Context) scanBlock(blockStart Ref) Ref {
	cur := blockStart
	for {
		if opcode.Table[c.at(cur).Op].BBEnd {
			return cur
		}
		next := c.nextInBlock(cur)
		if opcode.Table[c.at(next).Op].BBStart {
			return cur
		}
		cur = next
	}
}

// nextInBlock returns the unique control-class use of cur that
// continues the current block (spec invariant: every non-BBEnd
// control node has exactly one control-class successor).
func (c *Context) nextInBlock(cur Ref) Ref {
	for _, use := range c.Uses(cur) {
		insn := c.at(use)
		d := opcode.Table[insn.Op]
		if d.Class != opcode.ClassControl {
			continue
		}
		if insn.Op1 == cur || insn.Op2 == cur {
			return use
		}
	}
	panic(internalBug("nextInBlock", "control node has no successor in block"))
}

// controlSuccessors returns the list of control-flow successor refs
// (BBStart nodes) a block's closing node transfers control to,
// independent of block discovery (used while scanning).
func (c *Context) controlSuccessors(end Ref) []Ref {
	var out []Ref
	for _, use := range c.Uses(end) {
		d := opcode.Table[c.at(use).Op]
		if d.Class == opcode.ClassControl && d.BBStart {
			out = append(out, use)
		}
	}
	return out
}

// Preds / Succs return a block's predecessor/successor block indices.
func (c *Context) Preds(b int32) []int32 {
	blk := c.Blocks[b]
	return c.blockEdges[blk.PredOffset : blk.PredOffset+blk.PredCount]
}
func (c *Context) Succs(b int32) []int32 {
	blk := c.Blocks[b]
	return c.blockEdges[blk.SuccOffset : blk.SuccOffset+blk.SuccCount]
}

// TrivialEdges reports every block ID whose single predecessor has
// that block as its single successor (spec §4.2, OPT_CFG: "Merges a
// block with a single predecessor into that predecessor when it is
// the predecessor's only successor"). Actually splicing the two
// blocks' instructions together would renumber every Block index and
// every ref's Block slot mid-pipeline, so instead of mutating the CFG
// here, the result feeds block layout (layout.go), which lays such a
// pair back-to-back and omits the now-unconditional branch (spec
// §4.10's "fallthrough" edge), giving the same code-quality effect
// without a second block-renumbering pass.
func (c *Context) TrivialEdges() map[int32]bool {
	trivial := make(map[int32]bool)
	if c.Flags&FlagOptCFG == 0 {
		return trivial
	}
	for i := range c.Blocks {
		b := &c.Blocks[i]
		if b.PredCount != 1 {
			continue
		}
		predID := c.blockEdges[b.PredOffset]
		if c.Blocks[predID].SuccCount == 1 {
			trivial[int32(i)] = true
		}
	}
	return trivial
}
