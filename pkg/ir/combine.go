package ir

import "github.com/nir-project/nir/pkg/opcode"

// Combine is the post-scheduling peephole pass (supplementing the
// constructor's single-node folding with multi-node patterns that
// only become visible once operands have settled, and with dead-code
// elimination once SCCP and coalescing may have left nodes unused):
// double negation/not, self-XOR/self-SUB to zero, self-AND/self-OR to
// identity, and COPY-of-COPY chain collapsing. It runs to a fixed
// point since collapsing one pattern can expose another right behind
// it (e.g. NEG(NEG(NEG(NEG(x)))) needs two passes to bottom out).
func (c *Context) Combine() int {
	total := 0
	for {
		c.BuildDefUse()
		rewrites := c.combinePass()
		total += rewrites
		if rewrites == 0 {
			break
		}
	}
	c.BuildDefUse()
	c.pruneDead()
	return total
}

func (c *Context) combinePass() int {
	n := len(c.code)
	replace := make(map[Ref]Ref)

	for i := 0; i < n; i++ {
		ref := Ref(i + 1)
		insn := &c.code[i]
		switch insn.Op {
		case opcode.Neg:
			if c.isInsnRef(insn.Op1) {
				if inner := c.at(insn.Op1); inner.Op == opcode.Neg {
					replace[ref] = inner.Op1
				}
			}
		case opcode.Not:
			if c.isInsnRef(insn.Op1) {
				if inner := c.at(insn.Op1); inner.Op == opcode.Not {
					replace[ref] = inner.Op1
				}
			}
		case opcode.Copy:
			if c.isInsnRef(insn.Op1) && c.at(insn.Op1).Op == opcode.Copy && !insn.VReg.Valid {
				replace[ref] = insn.Op1
			}
		case opcode.Sub, opcode.Xor:
			if insn.Op1 == insn.Op2 && insn.Op1 != RefNone {
				replace[ref] = c.constOf(insn.Typ, 0)
			}
		case opcode.And, opcode.Or, opcode.Min, opcode.Max:
			if insn.Op1 == insn.Op2 && insn.Op1 != RefNone {
				replace[ref] = insn.Op1
			}
		}
	}

	if len(replace) == 0 {
		return 0
	}

	// Resolve chains (A replaced by B, B replaced by C -> A replaced by C).
	resolve := func(r Ref) Ref {
		for {
			next, ok := replace[r]
			if !ok {
				return r
			}
			r = next
		}
	}

	rewritten := 0
	for i := 0; i < n; i++ {
		ref := Ref(i + 1)
		cnt := c.OperandCount(ref)
		for k := 0; k < cnt; k++ {
			op := c.GetOp(ref, k)
			if _, ok := replace[op]; ok {
				c.SetOp(ref, k, resolve(op))
				rewritten++
			}
		}
	}
	return rewritten
}

// pruneDead drops every dead pure-data instruction from its block's
// scheduled Order (the instruction itself stays in the arena —
// renumbering refs mid-pipeline would invalidate every other
// structure already built on top of them — but it no longer appears
// in codegen's input).
func (c *Context) pruneDead() {
	for bi := range c.Blocks {
		order := c.Blocks[bi].Order
		kept := order[:0]
		for _, ref := range order {
			if c.IsUnused(ref) {
				continue
			}
			kept = append(kept, ref)
		}
		c.Blocks[bi].Order = kept
	}
}
