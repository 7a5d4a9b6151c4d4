package ir

import "github.com/nir-project/nir/pkg/opcode"

// Schedule produces each block's final, topologically valid
// instruction order once RunGCM has pinned every floating data node
// to a block (spec §4.6's final step: "a per-block list scheduler
// orders the nodes now pinned to each block"). The control/memory
// skeleton chain BuildCFG discovered anchors the order; floating data
// nodes are list-scheduled into the gaps, ready as soon as every
// same-block operand has been placed, breaking ties toward the node
// whose result is needed soonest by preferring the lowest ref among
// ready nodes (a simple, deterministic stand-in for latency-aware
// scheduling).
func (c *Context) Schedule() {
	membership := make(map[int32][]Ref, len(c.Blocks))
	for i := 0; i < len(c.code); i++ {
		ref := Ref(i + 1)
		if b := c.at(ref).Block; b.Valid {
			membership[b.Value] = append(membership[b.Value], ref)
		}
	}

	for bi := range c.Blocks {
		b := &c.Blocks[bi]
		refs := membership[int32(bi)]
		b.Order = c.scheduleBlock(int32(bi), refs)
	}
	c.Linear = true
}

// scheduleBlock topologically sorts refs (every instruction pinned to
// block b) subject to two kinds of precedence: same-block data
// dependencies (an operand must precede its consumer), and the fixed
// relative order of the control/memory skeleton chain, which must
// never be reordered since it encodes side-effect and control order.
func (c *Context) scheduleBlock(b int32, refs []Ref) []Ref {
	inSet := make(map[Ref]bool, len(refs))
	for _, r := range refs {
		inSet[r] = true
	}

	// skeletonIndex gives every control/memory/call node its position
	// in the fixed chain; data nodes are not present in this map and
	// are free to interleave anywhere their dependencies allow.
	skeletonIndex := make(map[Ref]int)
	blk := c.Blocks[b]
	idx := 0
	cur := blk.Start
	for {
		skeletonIndex[cur] = idx
		idx++
		if cur == blk.End {
			break
		}
		cur = c.nextInBlock(cur)
	}

	indegree := make(map[Ref]int, len(refs))
	dependents := make(map[Ref][]Ref, len(refs))
	for _, r := range refs {
		cnt := c.OperandCount(r)
		if c.at(r).Op == opcode.Phi {
			cnt = 1 // PHI inputs arrive from predecessor blocks
		}
		for k := 0; k < cnt; k++ {
			op := c.GetOp(r, k)
			if inSet[op] {
				indegree[r]++
				dependents[op] = append(dependents[op], r)
			}
		}
	}
	// The block's closing node goes after every other node in the block.
	for _, r := range refs {
		if r != blk.End {
			indegree[blk.End]++
			dependents[r] = append(dependents[r], blk.End)
		}
	}
	// Chain edges between consecutive skeleton nodes.
	cur = blk.Start
	for cur != blk.End {
		next := c.nextInBlock(cur)
		indegree[next]++
		dependents[cur] = append(dependents[cur], next)
		cur = next
	}

	var ready []Ref
	for _, r := range refs {
		if indegree[r] == 0 {
			ready = append(ready, r)
		}
	}

	order := make([]Ref, 0, len(refs))
	for len(ready) > 0 {
		pick := pickReady(ready, skeletonIndex)
		order = append(order, pick)
		ready = removeRef(ready, pick)
		for _, dep := range dependents[pick] {
			indegree[dep]--
			if indegree[dep] == 0 {
				ready = append(ready, dep)
			}
		}
	}
	return order
}

// pickReady prefers a skeleton (control/memory/call) node in its
// fixed chain position over any ready data node, and otherwise picks
// the lowest ref for determinism.
func pickReady(ready []Ref, skeletonIndex map[Ref]int) Ref {
	best := ready[0]
	bestSkelIdx, bestHasSkel := skeletonIndex[best]
	for _, r := range ready[1:] {
		idx, hasSkel := skeletonIndex[r]
		switch {
		case hasSkel && !bestHasSkel:
			best, bestHasSkel, bestSkelIdx = r, true, idx
		case hasSkel && bestHasSkel && idx < bestSkelIdx:
			best, bestSkelIdx = r, idx
		case !hasSkel && !bestHasSkel && r < best:
			best = r
		}
	}
	return best
}

func removeRef(s []Ref, r Ref) []Ref {
	for i, v := range s {
		if v == r {
			return append(s[:i], s[i+1:]...)
		}
	}
	return s
}

// BlockInstructions returns a read-only view of op classes present in
// a scheduled block's order, a small convenience for verify.go and
// the textual dumper.
func (c *Context) BlockInstructions(b int32) []opcode.Op {
	order := c.Blocks[b].Order
	ops := make([]opcode.Op, len(order))
	for i, ref := range order {
		ops[i] = c.at(ref).Op
	}
	return ops
}
