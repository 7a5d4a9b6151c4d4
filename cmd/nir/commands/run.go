package commands

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/nir-project/nir/pkg/ir"
	"github.com/nir-project/nir/pkg/opcode"
)

// NewRunCmd builds the `ir run` subcommand: compile the function, then
// execute it with a small scalar interpreter instead of handing the
// result to a native target. A big-switch dispatch over opcodes, narrowed
// to integer arithmetic and the control-flow shapes a block-by-block walk
// using Preds/Succs can follow (no loops: the interpreter is a
// correctness smoke test for the pipeline, not a production VM).
func NewRunCmd() *cobra.Command {
	var opt optFlags
	var argStrs []string

	cmd := &cobra.Command{
		Use:   "run <input-file>",
		Short: "Compile and interpret a function, printing its return value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := loadFile(args[0])
			if err != nil {
				return err
			}
			c.Log = opt.debugLogger()

			pipeOpts, flags, err := opt.pipelineOptions()
			if err != nil {
				return err
			}
			c.Flags |= flags

			if _, err := ir.RunPipeline(c, pipeOpts); err != nil {
				return err
			}

			params, err := parseArgs(argStrs)
			if err != nil {
				return err
			}

			result, err := interpret(c, params)
			if err != nil {
				return err
			}
			fmt.Println(result)
			return nil
		},
	}

	opt.bind(cmd.Flags())
	cmd.Flags().StringArrayVar(&argStrs, "arg", nil, "integer argument for each PARAM, in order (repeatable)")
	return cmd
}

func parseArgs(argStrs []string) ([]int64, error) {
	out := make([]int64, len(argStrs))
	for i, s := range argStrs {
		v, err := strconv.ParseInt(s, 0, 64)
		if err != nil {
			return nil, fmt.Errorf("--arg %q: %w", s, err)
		}
		out[i] = v
	}
	return out, nil
}

// interpret walks c's blocks starting from block 0, evaluating each
// instruction in its scheduled Order, and follows If branches via
// Succs the way a real dispatch loop would follow a taken jump. It
// stops at the first Return and has no notion of call/loop re-entry,
// matching the scope spec.md's Non-goals (no multi-function linking,
// no runtime calls) already exclude.
func interpret(c *ir.Context, params []int64) (int64, error) {
	values := map[ir.Ref]int64{}

	var get func(ref ir.Ref) int64
	get = func(ref ir.Ref) int64 {
		if ref < 0 {
			return int64(c.ConstValue(ref))
		}
		return values[ref]
	}

	block := int32(0)
	visited := map[int32]bool{}
	for {
		if visited[block] {
			return 0, fmt.Errorf("interpret: cyclic control flow (block %d revisited); the scalar interpreter does not support loops", block)
		}
		visited[block] = true

		if block < 0 || int(block) >= len(c.Blocks) {
			return 0, fmt.Errorf("interpret: ran off the end of the block list")
		}
		bb := c.Blocks[block]

		var branchCond *int64
		for _, ref := range bb.Order {
			insn := c.Insn(ref)
			switch insn.Op {
			case opcode.Param:
				idx := int(insn.Aux)
				if idx >= len(params) {
					return 0, fmt.Errorf("interpret: PARAM %d has no --arg value supplied", idx)
				}
				values[ref] = params[idx]
			case opcode.Copy:
				values[ref] = get(insn.Op1)
			case opcode.Add:
				values[ref] = get(insn.Op1) + get(insn.Op2)
			case opcode.Sub:
				values[ref] = get(insn.Op1) - get(insn.Op2)
			case opcode.Mul:
				values[ref] = get(insn.Op1) * get(insn.Op2)
			case opcode.And:
				values[ref] = get(insn.Op1) & get(insn.Op2)
			case opcode.Or:
				values[ref] = get(insn.Op1) | get(insn.Op2)
			case opcode.Xor:
				values[ref] = get(insn.Op1) ^ get(insn.Op2)
			case opcode.If:
				cond := get(insn.Op2)
				branchCond = &cond
			case opcode.Return:
				if insn.Op2 == ir.RefNone {
					return 0, nil
				}
				return get(insn.Op2), nil
			case opcode.Start, opcode.Begin, opcode.Merge, opcode.IfTrue, opcode.IfFalse, opcode.End:
				// control-only: no value to compute.
			default:
				return 0, fmt.Errorf("interpret: opcode %s is not supported by the scalar interpreter", insn.Op)
			}
		}

		succs := c.Succs(block)
		switch {
		case branchCond != nil && len(succs) == 2:
			if *branchCond != 0 {
				block = succs[0]
			} else {
				block = succs[1]
			}
		case len(succs) == 1:
			block = succs[0]
		case len(succs) == 0:
			return 0, fmt.Errorf("interpret: block %d has no successor and no Return", block)
		default:
			return 0, fmt.Errorf("interpret: block %d has an unsupported branch shape", block)
		}
	}
}
