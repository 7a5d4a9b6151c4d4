// Package text implements the textual IR format spec §6 names as an
// external interface: a human-readable dump a context can be Saved to
// and Loaded back from, grounded on original_source/ir_save.c and
// ir_load.c's `{ type d_N, l_N = OP(operands); }` notation, narrowed
// to the opcode subset pkg/ir's construction API actually builds.
package text

import (
	"bufio"
	"fmt"
	"io"
	"math"

	"github.com/nir-project/nir/pkg/ir"
	"github.com/nir-project/nir/pkg/opcode"
	"github.com/nir-project/nir/pkg/types"
)

func float32FromBits(b uint32) float32 { return math.Float32frombits(b) }
func float64FromBits(b uint64) float64 { return math.Float64frombits(b) }

// Save writes c's entire arena to w in the textual format, constants
// first (c_N) and then instructions in arena order, each either a
// control-labeled line (l_N = OP(...)) or a data-producing line
// (type d_N = OP(...)), matching the upstream saver's two-shape split.
func Save(c *ir.Context, w io.Writer) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintln(bw, "{")

	for i := 0; i < c.NumConsts(); i++ {
		ref := ir.Ref(-(i + 1))
		typ := c.TypeOf(ref)
		fmt.Fprintf(bw, "\t%s c_%d = %s;\n", typeName(typ), i+1, constLiteral(c, ref))
	}

	for i := 1; i <= c.NumInsns(); i++ {
		ref := ir.Ref(i)
		if err := saveInsn(c, bw, ref); err != nil {
			return err
		}
	}

	fmt.Fprintln(bw, "}")
	return bw.Flush()
}

func saveInsn(c *ir.Context, bw *bufio.Writer, ref ir.Ref) error {
	insn := c.Insn(ref)
	d := opcode.Table[insn.Op]

	switch d.Class {
	case opcode.ClassControl:
		fmt.Fprintf(bw, "\tl_%d = %s", ref, d.Name)
	default:
		if insn.Typ != types.VOID {
			fmt.Fprintf(bw, "\t%s d_%d = %s", typeName(insn.Typ), ref, d.Name)
		} else {
			fmt.Fprintf(bw, "\t%s", d.Name)
		}
	}

	args, ok := operandText(c, ref, insn)
	if !ok {
		return fmt.Errorf("text.Save: opcode %s has no known operand shape", d.Name)
	}
	if len(args) > 0 {
		fmt.Fprintf(bw, "(%s)", joinComma(args))
	}
	fmt.Fprintln(bw, ";")
	return nil
}

// operandText renders one instruction's operand list as textual
// tokens. A handful of opcodes (the ones pkg/ir's constructors
// actually emit) get exact treatment; anything else falls back to
// classifying each operand ref by what it points to.
func operandText(c *ir.Context, ref ir.Ref, insn ir.Insn) ([]string, bool) {
	switch insn.Op {
	case opcode.Start, opcode.End, opcode.Begin:
		return refArgs(c, insn.Op1), true
	case opcode.Param:
		return []string{fmt.Sprintf("%d", insn.Aux)}, true
	case opcode.Return:
		return refArgs(c, insn.Op1, insn.Op2), true
	case opcode.Unreachable:
		return refArgs(c, insn.Op1), true
	case opcode.If:
		return refArgs(c, insn.Op1, insn.Op2), true
	case opcode.IfTrue, opcode.IfFalse, opcode.LoopEnd:
		return refArgs(c, insn.Op1), true
	case opcode.Merge, opcode.LoopBegin:
		n := c.OperandCount(ref)
		out := make([]string, n)
		for i := 0; i < n; i++ {
			out[i] = refToken(c, c.GetOp(ref, i))
		}
		return out, true
	case opcode.Phi:
		n := c.OperandCount(ref)
		out := make([]string, n)
		for i := 0; i < n; i++ {
			out[i] = refToken(c, c.GetOp(ref, i))
		}
		return out, true
	case opcode.Alloca:
		return nil, true
	case opcode.Load:
		return refArgs(c, insn.Op1), true
	case opcode.Store:
		return refArgs(c, insn.Op1, insn.Op2), true
	case opcode.Call, opcode.Tailcall:
		n := c.OperandCount(ref)
		out := make([]string, n)
		for i := 0; i < n; i++ {
			out[i] = refToken(c, c.GetOp(ref, i))
		}
		return out, true
	case opcode.Cond:
		return refArgs(c, insn.Op1, insn.Op2, insn.Op3), true
	case opcode.Copy, opcode.Neg, opcode.Not, opcode.SExt, opcode.ZExt,
		opcode.Trunc, opcode.Bitcast, opcode.Int2Fp, opcode.Fp2Int, opcode.Fp2Fp:
		return refArgs(c, insn.Op1), true
	default:
		n := c.OperandCount(ref)
		if n == 0 {
			return nil, true
		}
		out := make([]string, 0, n)
		for i := 0; i < n; i++ {
			op := c.GetOp(ref, i)
			if op == ir.RefNone {
				continue
			}
			out = append(out, refToken(c, op))
		}
		return out, true
	}
}

func refArgs(c *ir.Context, refs ...ir.Ref) []string {
	out := make([]string, 0, len(refs))
	for _, r := range refs {
		if r == ir.RefNone {
			continue
		}
		out = append(out, refToken(c, r))
	}
	return out
}

// refToken renders one operand ref as a label (control target),
// constant, or data reference, classified by what it actually points
// to rather than by the containing opcode's static descriptor.
func refToken(c *ir.Context, ref ir.Ref) string {
	if ref == ir.RefNone {
		return "null"
	}
	if ref < 0 {
		return fmt.Sprintf("c_%d", -ref)
	}
	if opcode.Table[c.OpOf(ref)].Class == opcode.ClassControl {
		return fmt.Sprintf("l_%d", ref)
	}
	return fmt.Sprintf("d_%d", ref)
}

func typeName(k types.Kind) string {
	if s := k.String(); s != "" {
		return s
	}
	return "void"
}

func constLiteral(c *ir.Context, ref ir.Ref) string {
	bits := c.ConstValue(ref)
	typ := c.TypeOf(ref)
	switch {
	case typ == types.FLOAT:
		return fmt.Sprintf("%g", float32FromBits(uint32(bits)))
	case typ == types.DOUBLE:
		return fmt.Sprintf("%g", float64FromBits(bits))
	case typ == types.BOOL:
		if bits != 0 {
			return "true"
		}
		return "false"
	default:
		return fmt.Sprintf("%d", int64(bits))
	}
}

func joinComma(args []string) string {
	out := ""
	for i, a := range args {
		if i > 0 {
			out += ", "
		}
		out += a
	}
	return out
}
