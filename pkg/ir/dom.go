package ir

// BuildDominators computes each block's immediate dominator using the
// Cooper-Harvey-Kennedy iterative algorithm (spec §4.3: "A Simple, Fast
// Dominance Algorithm"), which converges in a handful of passes over a
// reverse-postorder numbering without building a full dominator tree
// data structure up front.
func (c *Context) BuildDominators() {
	n := len(c.Blocks)
	if n == 0 {
		return
	}
	rpo := c.reversePostorder()
	rpoNumber := make([]int32, n)
	for i, b := range rpo {
		rpoNumber[b] = int32(i)
		c.Blocks[b].RPONumber = int32(i)
	}

	const undefined = int32(-1)
	idom := make([]int32, n)
	for i := range idom {
		idom[i] = undefined
	}
	entry := rpo[0]
	idom[entry] = entry

	changed := true
	for changed {
		changed = false
		for _, b := range rpo {
			if b == entry {
				continue
			}
			var newIdom int32 = undefined
			for _, p := range c.Preds(b) {
				if idom[p] == undefined {
					continue
				}
				if newIdom == undefined {
					newIdom = p
					continue
				}
				newIdom = intersect(idom, rpoNumber, newIdom, p)
			}
			if newIdom != undefined && idom[b] != newIdom {
				idom[b] = newIdom
				changed = true
			}
		}
	}
	idom[entry] = -1 // entry has no immediate dominator

	for i := range c.Blocks {
		c.Blocks[i].Idom = idom[i]
	}
}

func intersect(idom, rpoNumber []int32, a, b int32) int32 {
	for a != b {
		for rpoNumber[a] > rpoNumber[b] {
			a = idom[a]
		}
		for rpoNumber[b] > rpoNumber[a] {
			b = idom[b]
		}
	}
	return a
}

// Dominates reports whether a dominates b (every path from the entry
// block to b passes through a), including the reflexive a == b case.
func (c *Context) Dominates(a, b int32) bool {
	for b != -1 {
		if b == a {
			return true
		}
		if b == c.Blocks[b].Idom {
			return false
		}
		b = c.Blocks[b].Idom
	}
	return false
}

// reversePostorder runs a DFS from block 0 (the block containing
// START) and returns block IDs in reverse postorder, the numbering
// both the dominator solver and the loop finder's DJ-graph need.
func (c *Context) reversePostorder() []int32 {
	n := len(c.Blocks)
	visited := make([]bool, n)
	order := make([]int32, 0, n)

	var stack []struct {
		block   int32
		succIdx int
	}
	stack = append(stack, struct {
		block   int32
		succIdx int
	}{0, 0})
	visited[0] = true

	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		succs := c.Succs(top.block)
		if top.succIdx < len(succs) {
			next := succs[top.succIdx]
			top.succIdx++
			if !visited[next] {
				visited[next] = true
				stack = append(stack, struct {
					block   int32
					succIdx int
				}{next, 0})
			}
			continue
		}
		order = append(order, top.block)
		stack = stack[:len(stack)-1]
	}

	// order is postorder; reverse it in place.
	for i, j := 0, len(order)-1; i < j; i, j = i+1, j-1 {
		order[i], order[j] = order[j], order[i]
	}
	return order
}
