package ir

import "github.com/nir-project/nir/pkg/opcode"

// latticeKind is Wegman & Zadeck's three-point lattice per data ref:
// every def starts optimistic (top), sinks to a const once its
// operands settle on one, and sinks the rest of the way to bottom the
// moment any operand is provably non-constant (spec §4.5).
type latticeKind uint8

const (
	latticeTop latticeKind = iota
	latticeConst
	latticeBottom
)

type latticeValue struct {
	kind latticeKind
	bits uint64
}

// cfgEdge is a pending block-to-block executability fact on the CFG
// worklist; from == -1 marks the synthetic edge into the entry block.
type cfgEdge struct{ from, to int32 }

// RunSCCP runs sparse conditional constant propagation over the
// already-built CFG/def-use graph (spec §4.5): a value and a
// control-flow lattice are propagated together so a branch on an
// as-yet-unproven-constant condition does not prematurely mark both
// of its successors executable. It records its findings in
// c.sccpConst and c.DeadBlocks; call ApplyConstants to fold them back
// into the graph.
func (c *Context) RunSCCP() {
	if len(c.Blocks) == 0 {
		c.BuildCFG()
	}
	n := len(c.code)
	values := make([]latticeValue, n+1) // values[i] for ref i (1-based)
	blockExec := make([]bool, len(c.Blocks))

	var cfgWork []cfgEdge
	var ssaWork []Ref

	entry := int32(0)
	blockExec[entry] = true
	cfgWork = append(cfgWork, cfgEdge{-1, entry})

	c.Flags |= FlagOptInSCCP
	defer func() { c.Flags &^= FlagOptInSCCP }()

	markRef := func(ref Ref, v latticeValue) {
		if !c.isInsnRef(ref) {
			return
		}
		idx := c.insnIndex(ref) + 1
		old := values[idx]
		if old.kind == latticeBottom || old == v {
			return
		}
		values[idx] = v
		ssaWork = append(ssaWork, ref)
	}

	for len(cfgWork) > 0 || len(ssaWork) > 0 {
		for len(cfgWork) > 0 {
			e := cfgWork[len(cfgWork)-1]
			cfgWork = cfgWork[:len(cfgWork)-1]
			if blockExec[e.to] && e.from != -1 {
				continue
			}
			blockExec[e.to] = true
			blk := c.Blocks[e.to]
			cur := blk.Start
			for {
				if c.at(cur).Op == opcode.Phi {
					ssaWork = append(ssaWork, cur)
				} else {
					c.sccpEvalDataUsersOf(cur, values, markRef)
				}
				if cur == blk.End {
					break
				}
				cur = c.nextInBlock(cur)
			}
			c.sccpPropagateControl(e.to, blockExec, values, &cfgWork)
		}

		for len(ssaWork) > 0 {
			ref := ssaWork[len(ssaWork)-1]
			ssaWork = ssaWork[:len(ssaWork)-1]
			insn := c.at(ref)
			blkID := insn.Block.Value
			if !insn.Block.Valid || !blockExec[blkID] {
				continue
			}
			if insn.Op == opcode.Phi {
				markRef(ref, c.sccpEvalPhi(ref, blockExec, values))
			} else {
				markRef(ref, c.sccpEvalData(ref, values))
			}
			for _, use := range c.Uses(ref) {
				ssaWork = append(ssaWork, use)
			}
			if b := insn.Block; b.Valid {
				blk := c.Blocks[b.Value]
				if ref == blk.End {
					c.sccpPropagateControl(b.Value, blockExec, values, &cfgWork)
				}
			}
		}
	}

	c.sccpConst = make(map[Ref]Ref)
	for i := 0; i < n; i++ {
		if values[i+1].kind == latticeConst {
			ref := Ref(i + 1)
			c.sccpConst[ref] = c.constOf(c.at(ref).Typ, values[i+1].bits)
		}
	}
	c.DeadBlocks = make(map[int32]bool)
	for i, ex := range blockExec {
		if !ex {
			c.DeadBlocks[int32(i)] = true
		}
	}
}

// sccpEvalDataUsersOf schedules every data-class direct operand-free
// leaf in a just-activated block (constants feed through immediately;
// PHIs are queued separately since their value depends on predecessor
// executability, handled in the main loop above).
func (c *Context) sccpEvalDataUsersOf(ref Ref, values []latticeValue, markRef func(Ref, latticeValue)) {
	insn := c.at(ref)
	if opcode.Table[insn.Op].Class != opcode.ClassData {
		return
	}
	markRef(ref, c.sccpEvalData(ref, values))
}

func (c *Context) sccpLatticeOf(ref Ref, values []latticeValue) latticeValue {
	if c.isConstRef(ref) {
		return latticeValue{kind: latticeConst, bits: c.constAt(ref).Bits}
	}
	if ref == RefNone || !c.isInsnRef(ref) {
		return latticeValue{kind: latticeBottom}
	}
	return values[c.insnIndex(ref)+1]
}

// sccpEvalData computes ref's lattice value from its operands' current
// lattice values, reusing fold.go's scalar evaluators so the same
// arithmetic semantics back both constant folding and SCCP (spec
// §4.5: "reuses the folding engine in a non-mutating mode").
func (c *Context) sccpEvalData(ref Ref, values []latticeValue) latticeValue {
	insn := c.at(ref)
	d := opcode.Table[insn.Op]
	if opcode.IsConst(insn.Op) {
		return latticeValue{kind: latticeConst, bits: c.constAt(ref).Bits}
	}
	if !d.Foldable {
		return latticeValue{kind: latticeBottom}
	}
	switch d.Edges {
	case 1:
		a := c.sccpLatticeOf(insn.Op1, values)
		if a.kind == latticeBottom {
			return latticeValue{kind: latticeBottom}
		}
		if a.kind == latticeTop {
			return latticeValue{kind: latticeTop}
		}
		if v, ok := evalUnary(insn.Op, insn.Typ, a.bits, c.TypeOf(insn.Op1)); ok {
			return latticeValue{kind: latticeConst, bits: v}
		}
		return latticeValue{kind: latticeBottom}
	case 2:
		a := c.sccpLatticeOf(insn.Op1, values)
		b := c.sccpLatticeOf(insn.Op2, values)
		if a.kind == latticeBottom || b.kind == latticeBottom {
			return latticeValue{kind: latticeBottom}
		}
		if a.kind == latticeTop || b.kind == latticeTop {
			return latticeValue{kind: latticeTop}
		}
		if v, ok := evalBinary(insn.Op, insn.Typ, a.bits, b.bits, c.TypeOf(insn.Op1)); ok {
			return latticeValue{kind: latticeConst, bits: v}
		}
		return latticeValue{kind: latticeBottom}
	case 3:
		if insn.Op == opcode.Cond {
			cond := c.sccpLatticeOf(insn.Op1, values)
			if cond.kind == latticeTop {
				return latticeValue{kind: latticeTop}
			}
			if cond.kind == latticeConst {
				if cond.bits != 0 {
					return c.sccpLatticeOf(insn.Op2, values)
				}
				return c.sccpLatticeOf(insn.Op3, values)
			}
		}
		return latticeValue{kind: latticeBottom}
	}
	return latticeValue{kind: latticeBottom}
}

// sccpEvalPhi merges the lattice values flowing in from every
// currently-executable predecessor edge only (the heart of SCCP's
// advantage over plain constant propagation: an edge from an
// unreachable predecessor never drags a PHI's result down to bottom).
func (c *Context) sccpEvalPhi(ref Ref, blockExec []bool, values []latticeValue) latticeValue {
	insn := c.at(ref)
	merge := insn.Op1
	preds := c.predsOfControlNode(merge)
	result := latticeValue{kind: latticeTop}
	count := c.OperandCount(ref)
	for i := 1; i < count; i++ {
		if i-1 >= len(preds) {
			break
		}
		predBlock := c.at(preds[i-1]).Block
		if !predBlock.Valid || !blockExec[predBlock.Value] {
			continue
		}
		v := c.sccpLatticeOf(c.GetOp(ref, i), values)
		result = meetLattice(result, v)
		if result.kind == latticeBottom {
			return result
		}
	}
	return result
}

func meetLattice(a, b latticeValue) latticeValue {
	if a.kind == latticeTop {
		return b
	}
	if b.kind == latticeTop {
		return a
	}
	if a.kind == latticeBottom || b.kind == latticeBottom {
		return latticeValue{kind: latticeBottom}
	}
	if a.bits != b.bits {
		return latticeValue{kind: latticeBottom}
	}
	return a
}

// predsOfControlNode returns a MERGE/LOOP_BEGIN's predecessor control
// refs in operand order, the same order PHI operands 1..n follow.
func (c *Context) predsOfControlNode(merge Ref) []Ref {
	cnt := c.OperandCount(merge)
	out := make([]Ref, cnt)
	for i := 0; i < cnt; i++ {
		out[i] = c.GetOp(merge, i)
	}
	return out
}

// sccpPropagateControl marks outgoing CFG edges executable once a
// block's terminator has a known lattice value: an IF with a constant
// condition activates only the taken edge (spec §8 S5: "the branch on
// a provably-constant condition becomes unreachable on one side").
func (c *Context) sccpPropagateControl(b int32, blockExec []bool, values []latticeValue, cfgWork *[]cfgEdge) {
	blk := c.Blocks[b]
	end := c.at(blk.End)
	succs := c.Succs(b)

	switch end.Op {
	case opcode.If:
		cond := c.sccpLatticeOf(end.Op2, values)
		if cond.kind == latticeConst {
			taken := cond.bits != 0
			for _, s := range succs {
				sBegin := c.at(c.Blocks[s].Start).Op
				if (taken && sBegin == opcode.IfTrue) || (!taken && sBegin == opcode.IfFalse) {
					*cfgWork = append(*cfgWork, cfgEdge{b, s})
				}
			}
			return
		}
		for _, s := range succs {
			*cfgWork = append(*cfgWork, cfgEdge{b, s})
		}
	default:
		for _, s := range succs {
			*cfgWork = append(*cfgWork, cfgEdge{b, s})
		}
	}
}

// PruneDeadTerminators drops every terminator whose block RunSCCP
// proved unreachable from the chain rooted at START.Op1 (spec §8 S5:
// "the final terminator list must contain exactly one RETURN"). Call
// after ApplyConstants, while the terminators' Block annotations from
// the CFG RunSCCP analyzed are still valid.
func (c *Context) PruneDeadTerminators() {
	if len(c.DeadBlocks) == 0 {
		return
	}
	var kept []Ref
	for cur := c.termHead; cur != RefNone; cur = c.at(cur).Op3 {
		insn := c.at(cur)
		if insn.Block.Valid && c.DeadBlocks[insn.Block.Value] {
			continue
		}
		kept = append(kept, cur)
	}
	c.termHead = RefNone
	for i := len(kept) - 1; i >= 0; i-- {
		c.at(kept[i]).Op3 = c.termHead
		c.termHead = kept[i]
	}
	if c.startRef != RefNone {
		c.at(c.startRef).Op1 = c.termHead
	}
}

// Terminators walks the terminator chain rooted at START.Op1 in
// construction order, for callers (tests, dumping) that want the
// final set without re-deriving the chain themselves.
func (c *Context) Terminators() []Ref {
	var out []Ref
	for cur := c.termHead; cur != RefNone; cur = c.at(cur).Op3 {
		out = append(out, cur)
	}
	return out
}

// ApplyConstants rewrites every operand referencing a ref SCCP proved
// constant to point at the canonical constant instead (spec §4.5:
// folding results are applied back to the graph after the analysis
// reaches a fixed point, never mid-analysis). It does not delete the
// now-potentially-dead original instructions; combine.go's dead-code
// sweep (driven by IsUnused) removes anything left with no uses.
func (c *Context) ApplyConstants() int {
	if c.sccpConst == nil {
		return 0
	}
	rewritten := 0
	for i := range c.code {
		ref := Ref(i + 1)
		cnt := c.OperandCount(ref)
		for k := 0; k < cnt; k++ {
			op := c.GetOp(ref, k)
			if replacement, ok := c.sccpConst[op]; ok && replacement != op {
				c.SetOp(ref, k, replacement)
				rewritten++
			}
		}
	}
	return rewritten
}
