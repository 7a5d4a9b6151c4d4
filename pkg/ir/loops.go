package ir

// FindLoops classifies every retreating CFG edge (spec §4.4, following
// Sreedhar, Gao & Lee's DJ-graph formulation): an edge u->v where v's
// reverse-postorder number is <= u's is retreating. When v dominates u
// it is a proper back edge and {v} plus every block that can reach u
// without passing through v again forms v's natural loop; a retreating
// edge whose target does not dominate its source marks the whole
// function's control flow irreducible (spec: "IRREDUCIBLE_CFG" — named
// FlagIrreducibleCFG here).
func (c *Context) FindLoops() {
	n := len(c.Blocks)
	for i := range c.Blocks {
		c.Blocks[i].LoopHeader = -1
		c.Blocks[i].LoopDepth = 0
	}

	headers := make(map[int32]bool)
	irreducible := false

	for u := 0; u < n; u++ {
		for _, v := range c.Succs(int32(u)) {
			if c.Blocks[v].RPONumber > c.Blocks[u].RPONumber {
				continue // forward edge
			}
			if c.Dominates(v, int32(u)) {
				headers[v] = true
				c.naturalLoop(v, int32(u))
			} else {
				irreducible = true
			}
		}
	}

	c.IrreducibleCFG = irreducible
	if irreducible {
		c.Flags |= FlagIrreducibleCFG
	}

	// Loop depth: count how many enclosing headers dominate each block,
	// cheap to compute once headers are all known since nesting in a
	// reducible CFG is exactly dominance nesting of headers.
	if len(headers) > 0 {
		var headerList []int32
		for h := range headers {
			headerList = append(headerList, h)
		}
		for b := 0; b < n; b++ {
			depth := int32(0)
			var innermost int32 = -1
			for _, h := range headerList {
				if h == int32(b) || c.Dominates(h, int32(b)) {
					if c.blockInLoopOf(h, int32(b)) {
						depth++
						if innermost == -1 || c.Dominates(innermost, h) {
							innermost = h
						}
					}
				}
			}
			c.Blocks[b].LoopDepth = depth
			if innermost != -1 {
				c.Blocks[b].LoopHeader = innermost
			}
		}
	}
}

// naturalLoop walks predecessors backward from the latch (the back
// edge's source) collecting every block that reaches it without
// passing back through the header, marking loop membership via a
// per-call visited set (spec §4.4's worklist construction of the
// natural loop body).
func (c *Context) naturalLoop(header, latch int32) map[int32]bool {
	body := map[int32]bool{header: true, latch: true}
	var worklist []int32
	if latch != header {
		worklist = append(worklist, latch)
	}
	for len(worklist) > 0 {
		b := worklist[len(worklist)-1]
		worklist = worklist[:len(worklist)-1]
		for _, p := range c.Preds(b) {
			if !body[p] {
				body[p] = true
				worklist = append(worklist, p)
			}
		}
	}
	if c.loopBodies == nil {
		c.loopBodies = make(map[int32]map[int32]bool)
	}
	if existing, ok := c.loopBodies[header]; ok {
		for b := range body {
			existing[b] = true
		}
	} else {
		c.loopBodies[header] = body
	}
	return body
}

func (c *Context) blockInLoopOf(header, b int32) bool {
	body, ok := c.loopBodies[header]
	if !ok {
		return false
	}
	return body[b]
}
