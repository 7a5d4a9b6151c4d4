// Package emitc is the thin `--emit-c` textual C backend spec §1 lists
// as an out-of-scope collaborator: one function per opcode class
// emitting a C statement or expression, grounded on
// original_source/ir_emit_c.c's `d_N`-per-value, `bb%d`-per-block
// naming scheme, narrowed to the subset of opcodes pkg/ir's
// construction API actually produces. It exists only because spec §6
// already names `--emit-c` as a CLI flag the driver must accept, not
// to reopen the code-generation-quality scope spec.md excludes.
package emitc

import (
	"bufio"
	"fmt"
	"io"

	"github.com/nir-project/nir/pkg/ir"
	"github.com/nir-project/nir/pkg/opcode"
	"github.com/nir-project/nir/pkg/types"
)

// Write emits a C function body for c, one `bb%d:` label per block and
// one `d_%d` local per value-producing instruction, using Blocks[i].Order
// if Schedule has already run (preferred: a fixed, verified instruction
// order) or arena order otherwise.
func Write(c *ir.Context, name string, w io.Writer) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "void %s(void) {\n", name)

	for i := 1; i <= c.NumInsns(); i++ {
		ref := ir.Ref(i)
		if c.Insn(ref).Typ != types.VOID {
			fmt.Fprintf(bw, "\t%s d_%d;\n", cType(c.Insn(ref).Typ), i)
		}
	}

	haveOrder := len(c.Blocks) > 0 && len(c.Blocks[0].Order) > 0
	if haveOrder {
		for bi := range c.Blocks {
			fmt.Fprintf(bw, "bb%d:\n", bi)
			for _, ref := range c.Blocks[bi].Order {
				emitOne(bw, c, ref)
			}
		}
	} else {
		for i := 1; i <= c.NumInsns(); i++ {
			emitOne(bw, c, ir.Ref(i))
		}
	}

	fmt.Fprintln(bw, "}")
	return bw.Flush()
}

func emitOne(bw *bufio.Writer, c *ir.Context, ref ir.Ref) {
	insn := c.Insn(ref)
	d := opcode.Table[insn.Op]

	if d.Class == opcode.ClassControl {
		if insn.Typ == types.VOID && d.Name != "" {
			// control-only node: no C statement, just documents the label
			// boundary the bb%d: above already encodes.
			return
		}
	}

	switch insn.Op {
	case opcode.Return:
		if insn.Op2 != ir.RefNone {
			fmt.Fprintf(bw, "\treturn %s;\n", ref1(c, insn.Op2))
		} else {
			fmt.Fprintf(bw, "\treturn;\n")
		}
	case opcode.Store:
		fmt.Fprintf(bw, "\t*(%s*)%s = %s;\n", "void", ref1(c, insn.Op1), ref1(c, insn.Op2))
	case opcode.Load:
		fmt.Fprintf(bw, "\td_%d = *(%s*)%s;\n", ref, cType(insn.Typ), ref1(c, insn.Op1))
	case opcode.Alloca:
		fmt.Fprintf(bw, "\td_%d = (%s)alloca(sizeof(%s));\n", ref, cType(insn.Typ), cType(insn.Typ))
	case opcode.Param:
		fmt.Fprintf(bw, "\td_%d = arg%d;\n", ref, insn.Aux)
	case opcode.Phi:
		fmt.Fprintf(bw, "\t/* d_%d = PHI(...) resolved by predecessor-block copies */\n", ref)
	case opcode.Copy:
		fmt.Fprintf(bw, "\td_%d = %s;\n", ref, ref1(c, insn.Op1))
	default:
		if insn.Typ == types.VOID {
			return
		}
		args := []string{}
		for i := 0; i < c.OperandCount(ref); i++ {
			op := c.GetOp(ref, i)
			if op == ir.RefNone {
				continue
			}
			args = append(args, ref1(c, op))
		}
		fmt.Fprintf(bw, "\td_%d = %s(%s);\n", ref, d.Name, joinArgs(args))
	}
}

func ref1(c *ir.Context, ref ir.Ref) string {
	if ref < 0 {
		return fmt.Sprintf("%d", c.ConstValue(ref))
	}
	return fmt.Sprintf("d_%d", ref)
}

func joinArgs(args []string) string {
	out := ""
	for i, a := range args {
		if i > 0 {
			out += ", "
		}
		out += a
	}
	return out
}

func cType(k types.Kind) string {
	switch k {
	case types.VOID:
		return "void"
	case types.BOOL:
		return "_Bool"
	case types.FLOAT:
		return "float"
	case types.DOUBLE:
		return "double"
	case types.ADDR:
		return "void*"
	case types.CHAR:
		return "char"
	default:
		sign := "u"
		if types.IsSigned(k) {
			sign = ""
		}
		return fmt.Sprintf("%sint%d_t", sign, types.Size(k)*8)
	}
}
