package ir

// LayoutBlocks computes a final physical block order using a
// Pettis-Hansen-style greedy trace construction (spec §4.10): without
// profile data to weight edges, each trace is grown by always
// extending through an unplaced successor, preferring the trivial
// (single-pred/single-succ) edge TrivialEdges identified so that pair
// lands adjacent and needs no branch instruction, and otherwise
// falling back to the first remaining successor in CFG order. Traces
// are chained together in the order their seed block was discovered,
// entry block first.
func (c *Context) LayoutBlocks() []int32 {
	n := len(c.Blocks)
	trivial := c.TrivialEdges()
	placed := make([]bool, n)
	var layout []int32

	extend := func(seed int32) {
		cur := seed
		for !placed[cur] {
			placed[cur] = true
			layout = append(layout, cur)

			var next int32 = -1
			for _, s := range c.Succs(cur) {
				if placed[s] {
					continue
				}
				if trivial[s] {
					next = s
					break
				}
				if next == -1 {
					next = s
				}
			}
			if next == -1 {
				break
			}
			cur = next
		}
	}

	extend(0)
	for b := int32(0); int(b) < n; b++ {
		if !placed[b] {
			extend(b)
		}
	}

	c.Layout = layout
	return layout
}

// FallsThrough reports whether block a's physical successor in the
// computed layout is block b, meaning codegen can omit an
// unconditional jump from a straight into b.
func (c *Context) FallsThrough(a, b int32) bool {
	for i, id := range c.Layout {
		if id == a {
			return i+1 < len(c.Layout) && c.Layout[i+1] == b
		}
	}
	return false
}
