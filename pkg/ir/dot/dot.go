// Package dot renders a Context's sea-of-nodes graph as Graphviz DOT,
// grounded on original_source/ir_dump.c's `ir_dump_dot` (constant
// nodes filled yellow, control nodes boxed and colored by role, data
// edges blue, control edges bold red, the START/terminal nodes pinned
// to rank=min/rank=max), narrowed to one Write entry point per spec
// §1's "DOT exporter" out-of-scope collaborator.
package dot

import (
	"bufio"
	"fmt"
	"io"

	"github.com/nir-project/nir/pkg/ir"
	"github.com/nir-project/nir/pkg/opcode"
)

type flusher = *bufio.Writer

// Write renders c as a `digraph ir { ... }` graph to w.
func Write(c *ir.Context, w io.Writer) error {
	bw := bufio.NewWriter(w)

	fmt.Fprintln(bw, "digraph ir {")
	fmt.Fprintln(bw, "\trankdir=TB;")

	for i := 0; i < c.NumConsts(); i++ {
		ref := ir.Ref(-(i + 1))
		fmt.Fprintf(bw, "\tc%d [label=\"C%d: %s\",style=filled,fillcolor=yellow];\n", i+1, i+1, c.TypeOf(ref))
	}

	for i := 1; i <= c.NumInsns(); i++ {
		ref := ir.Ref(i)
		insn := c.Insn(ref)
		d := opcode.Table[insn.Op]
		label := fmt.Sprintf("%d: %s", i, d.Name)

		switch {
		case insn.Op == opcode.Start:
			fmt.Fprintf(bw, "\t{rank=min; n%d [label=\"%s\",shape=box,style=\"rounded,filled\",fillcolor=red];}\n", i, label)
		case d.Terminator:
			fmt.Fprintf(bw, "\t{rank=max; n%d [label=\"%s\",shape=box,style=\"rounded,filled\",fillcolor=red];}\n", i, label)
		case d.Class == opcode.ClassControl && d.BBEnd:
			fmt.Fprintf(bw, "\tn%d [label=\"%s\",shape=box,style=filled,fillcolor=pink];\n", i, label)
		case d.Class == opcode.ClassControl:
			fmt.Fprintf(bw, "\tn%d [label=\"%s\",shape=box,style=filled,fillcolor=lightcoral];\n", i, label)
		case insn.Op == opcode.If || insn.Op == opcode.Switch:
			fmt.Fprintf(bw, "\tn%d [label=\"%s %s\",shape=diamond,style=filled,fillcolor=deepskyblue];\n", i, label, insn.Typ)
		default:
			fmt.Fprintf(bw, "\tn%d [label=\"%s %s\",style=filled,fillcolor=deepskyblue];\n", i, label, insn.Typ)
		}

		n := c.OperandCount(ref)
		for j := 0; j < n; j++ {
			op := c.GetOp(ref, j)
			if op == ir.RefNone {
				continue
			}
			kind := opcode.OperandData
			if j < 3 {
				kind = d.Operands[j]
			}
			writeEdge(bw, c, op, i, kind)
		}
	}

	fmt.Fprintln(bw, "}")
	return bw.Flush()
}

func writeEdge(bw flusher, c *ir.Context, from ir.Ref, to int, kind opcode.OperandKind) {
	switch kind {
	case opcode.OperandControl, opcode.OperandControlDep, opcode.OperandControlRef:
		fmt.Fprintf(bw, "\tn%d -> n%d [style=bold,color=red,weight=10];\n", from, to)
	default:
		if from < 0 {
			fmt.Fprintf(bw, "\tc%d -> n%d [color=blue,weight=2];\n", -from, to)
		} else {
			fmt.Fprintf(bw, "\tn%d -> n%d [color=blue,weight=2];\n", from, to)
		}
	}
}
