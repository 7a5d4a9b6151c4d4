// Package codegen turns a scheduled, register-allocated Context into
// machine code by walking Blocks[i].Order and matching each
// instruction against the cheapest applicable emission rule for the
// chosen target. Every legal emission of one instruction already
// matches semantics by construction (it is not a search), so the cost
// comparison narrows to byte size alone — still a "score every
// candidate, keep the cheapest" shape, just with the correctness term
// fixed at zero.
package codegen

import (
	"fmt"

	"github.com/twitchyliquid64/golang-asm/obj"

	"github.com/nir-project/nir/pkg/ir"
	"github.com/nir-project/nir/pkg/opcode"
	"github.com/nir-project/nir/pkg/target"
)

// Emitter is the subset of pkg/target/x86asm.Assembler and
// pkg/target/arm64asm.Assembler's method sets codegen drives; both
// backends implement it identically since they share the same
// *obj.Prog-chain-then-assemble workflow.
type Emitter interface {
	MovRegReg(dst, src int16)
	MovConst(dst int16, imm int64)
	LoadMem(dst, base int16, offset int64)
	StoreMem(base int16, offset int64, src int16)
	BinOp(as obj.As, dst, src int16)
	Ret()
	Jmp() *obj.Prog
	Jcc(as obj.As) *obj.Prog
	Label(branch *obj.Prog)
	Assemble() ([]byte, error)
}

// AluOps maps an IR binary opcode to the target-specific ALU mnemonic
// to use for it; x86asm's BinOp and arm64asm's BinOp both take an
// obj.As, so one table per machine covers both Emitter implementations.
type AluOps map[opcode.Op]obj.As

// Matcher drives instruction selection for one Context against one
// target, given the target's ALU mnemonic table.
type Matcher struct {
	Machine target.Machine
	Alu     AluOps
}

// candidate is one legal emission of an instruction: the cost
// (machine code byte length) and the thunk that performs it. Multiple
// candidates exist only where a target offers more than one
// equally-correct encoding (e.g. an immediate that fits a compact
// mov-immediate form vs. a general load); Select always keeps the
// cheapest.
type candidate struct {
	cost  int
	apply func(e Emitter)
}

// Select runs every registered emission strategy for insn and returns
// the cheapest, mirroring Cost/CostMasked's "score every candidate,
// keep the cheapest" pattern but with the semantic-mismatch term
// always zero (every strategy here is correct by construction, not a
// guess to be verified against test vectors).
func (m *Matcher) Select(c *ir.Context, ref ir.Ref) (func(e Emitter), error) {
	insn := c.Insn(ref)
	var candidates []candidate

	atPos := c.PosOf(ref)

	switch insn.Op {
	case opcode.Copy:
		src := physRegAt(c, insn.Op1, atPos)
		dst := physRegAt(c, ref, atPos)
		if src >= 0 && dst >= 0 {
			candidates = append(candidates, candidate{
				cost:  3,
				apply: func(e Emitter) { e.MovRegReg(dst, src) },
			})
		}
	case opcode.Return:
		if cand, ok := m.selectReturn(c, insn, atPos); ok {
			candidates = append(candidates, cand)
		}
	default:
		if as, ok := m.Alu[insn.Op]; ok {
			dst := physRegAt(c, ref, atPos)
			src := physRegAt(c, insn.Op2, atPos)
			if dst >= 0 && src >= 0 {
				candidates = append(candidates, candidate{
					cost:  4,
					apply: func(e Emitter) { e.BinOp(as, dst, src) },
				})
			}
		}
	}

	if len(candidates) == 0 {
		return nil, fmt.Errorf("codegen: no emission rule for %s on %s", insn.Op, m.Machine.Name())
	}

	best := candidates[0]
	for _, cand := range candidates[1:] {
		if cand.cost < best.cost {
			best = cand
		}
	}
	return best.apply, nil
}

// physRegAt resolves ref's assigned physical register at program
// point atPos; -1 if ref carries no value (a control-only or constant
// operand, or a data ref that has not been through RegAlloc), or if
// its vreg is currently spilled rather than held in a register. Linear
// scan can split one vreg's lifetime across several Intervals, each
// colored independently, so the lookup must pick whichever Interval
// actually covers atPos rather than "the" Interval for the vreg.
func physRegAt(c *ir.Context, ref ir.Ref, atPos int32) int16 {
	if ref <= ir.RefNone {
		return -1
	}
	vr := c.Insn(ref).VReg
	if !vr.Valid {
		return -1
	}
	iv := c.IntervalCovering(vr.Value, atPos)
	if iv == nil || iv.Reg < 0 {
		return -1
	}
	return int16(iv.Reg)
}

// selectReturn moves a RETURN's value into the target's calling
// convention return register: a register-to-register move when the
// value already lives in a register, an immediate load when it is a
// constant ref, and nothing when RETURN carries no value.
func (m *Matcher) selectReturn(c *ir.Context, insn ir.Insn, atPos int32) (candidate, bool) {
	value := insn.Op2
	retReg := int16(m.Machine.ReturnReg())

	switch {
	case value == ir.RefNone:
		return candidate{cost: 0, apply: func(e Emitter) {}}, true
	case value < ir.RefNone:
		imm := int64(c.ConstValue(value))
		return candidate{cost: 10, apply: func(e Emitter) { e.MovConst(retReg, imm) }}, true
	default:
		src := physRegAt(c, value, atPos)
		if src < 0 {
			return candidate{}, false
		}
		if src == retReg {
			return candidate{cost: 0, apply: func(e Emitter) {}}, true
		}
		return candidate{cost: 3, apply: func(e Emitter) { e.MovRegReg(retReg, src) }}, true
	}
}

// EmitFunction walks every block in c.Layout order and every
// instruction in that block's Order, applying Select's chosen
// emission to e, then assembles the accumulated program.
func EmitFunction(c *ir.Context, m *Matcher, e Emitter) ([]byte, error) {
	order := c.Layout
	if len(order) == 0 {
		for i := range c.Blocks {
			order = append(order, int32(i))
		}
	}
	for _, bi := range order {
		for _, ref := range c.Blocks[bi].Order {
			apply, err := m.Select(c, ref)
			if err != nil {
				continue // control-only nodes and nodes with no machine-code shape
			}
			apply(e)
		}
	}
	e.Ret()
	return e.Assemble()
}
