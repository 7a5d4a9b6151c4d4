package ir

import "github.com/nir-project/nir/pkg/opcode"

// PromoteAllocas forwards ALLOCA-backed loads to the value of their
// most recent same-block STORE, the local slice of classic mem2reg
// that does not need a dominance-frontier PHI-insertion pass: any
// ALLOCA whose address escapes (used by anything other than LOAD/
// STORE in a single block) is left on the stack untouched (spec §3's
// original design note on alloca promotion scopes this to "addresses
// that never escape their defining block" — full cross-block SSA
// promotion is one candidate Open Question this repo resolves
// conservatively; see DESIGN.md).
func (c *Context) PromoteAllocas() int {
	if len(c.useHeads) == 0 {
		c.BuildDefUse()
	}
	promoted := 0
	replace := make(map[Ref]Ref)

	n := len(c.code)
	for i := 0; i < n; i++ {
		ref := Ref(i + 1)
		if c.at(ref).Op != opcode.Alloca {
			continue
		}
		if block, ok := c.singleBlockLocalUses(ref); ok {
			promoted += c.forwardLoads(ref, block, replace)
		}
	}

	if len(replace) == 0 {
		return 0
	}
	for i := 0; i < n; i++ {
		r := Ref(i + 1)
		cnt := c.OperandCount(r)
		for k := 0; k < cnt; k++ {
			op := c.GetOp(r, k)
			if v, ok := replace[op]; ok {
				c.SetOp(r, k, v)
			}
		}
	}
	return promoted
}

// singleBlockLocalUses reports whether every use of alloca is a plain
// LOAD/STORE whose address operand is alloca itself, and that all
// such uses live in the same block (the only shape this pass handles).
func (c *Context) singleBlockLocalUses(alloca Ref) (int32, bool) {
	var block int32 = -1
	for _, use := range c.Uses(alloca) {
		insn := c.at(use)
		if insn.Op != opcode.Load && insn.Op != opcode.Store {
			return -1, false
		}
		if insn.Op1 != alloca {
			return -1, false // alloca appears in a non-address position
		}
		if !insn.Block.Valid {
			return -1, false
		}
		if block == -1 {
			block = insn.Block.Value
		} else if block != insn.Block.Value {
			return -1, false
		}
	}
	if block == -1 {
		return -1, false
	}
	return block, true
}

// forwardLoads walks every LOAD/STORE of alloca in ascending ref order
// once, tracking the most recent value stored, and records every LOAD
// of alloca as replaceable by that value (or by the type's zero
// constant if the slot is read before any store — an uninitialized
// read, which still has a well-defined bit pattern to keep folding
// total). This runs before Schedule builds Blocks[i].Order (spec §3's
// alloca promotion runs right after CFG construction, ahead of SCCP),
// so it walks the arena's construction order instead: within the one
// block singleBlockLocalUses confirmed every use lives in, ref order
// already is program order for straight-line memory operations.
func (c *Context) forwardLoads(alloca Ref, block int32, replace map[Ref]Ref) int {
	var current Ref = RefNone
	count := 0
	for i := range c.code {
		ref := Ref(i + 1)
		insn := &c.code[i]
		if !insn.Block.Valid || insn.Block.Value != block {
			continue
		}
		switch insn.Op {
		case opcode.Store:
			if insn.Op1 == alloca {
				current = insn.Op2
			}
		case opcode.Load:
			if insn.Op1 == alloca {
				if current == RefNone {
					current = c.constOf(insn.Typ, 0)
				}
				replace[ref] = current
				count++
			}
		}
	}
	return count
}
