package commands

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/twitchyliquid64/golang-asm/obj/arm64"
	"github.com/twitchyliquid64/golang-asm/obj/x86"

	"github.com/nir-project/nir/pkg/codegen"
	"github.com/nir-project/nir/pkg/ir"
	"github.com/nir-project/nir/pkg/ir/dot"
	"github.com/nir-project/nir/pkg/ir/emitc"
	"github.com/nir-project/nir/pkg/ir/text"
	"github.com/nir-project/nir/pkg/opcode"
	"github.com/nir-project/nir/pkg/target"
	"github.com/nir-project/nir/pkg/target/arm64asm"
	"github.com/nir-project/nir/pkg/target/disasm"
	"github.com/nir-project/nir/pkg/target/x86asm"
)

// dumpAfterStages is the enum spec §6's --dump-after-{...} flag
// accepts; "all" dumps after every listed stage in order, "final"
// dumps once after the whole pipeline.
var dumpAfterStages = []string{"load", "sccp", "gcm", "schedule", "live-ranges", "coalescing", "all", "final"}

// NewCompileCmd builds the `ir compile` subcommand: load one textual
// IR function, run the pass pipeline, and write whichever of
// --save/--dump/--dot/--emit-c/-S the caller asked for.
func NewCompileCmd() *cobra.Command {
	var opt optFlags
	var save string
	var dumpFile string
	var dotFile string
	var emitCFile string
	var emitLLVMFile string
	var asmOut bool
	var dumpAfter string
	var dumpUseLists bool
	var dumpCFG bool
	var dumpCFGMap bool
	var dumpLiveRanges bool
	var dumpSize bool

	cmd := &cobra.Command{
		Use:   "compile <input-file>",
		Short: "Run a textual IR function through the compilation pipeline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateDumpAfter(dumpAfter); err != nil {
				return err
			}

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

			report, runErr := runPipelineWithDumps(c, pipeOpts, dumpAfter)

			if report != nil {
				for _, f := range report.Findings() {
					fmt.Fprintln(os.Stderr, f.String())
				}
			}
			if runErr != nil {
				return runErr
			}

			if dumpUseLists {
				printUseLists(c)
			}
			if dumpCFG || dumpCFGMap {
				printCFG(c, dumpCFGMap)
			}
			if dumpLiveRanges {
				printLiveRanges(c)
			}
			if dumpSize {
				fmt.Printf("insns=%d consts=%d blocks=%d\n", c.NumInsns(), c.NumConsts(), len(c.Blocks))
			}

			if save != "" {
				if err := writeTo(save, func(w *os.File) error { return text.Save(c, w) }); err != nil {
					return err
				}
			}
			if dumpFile != "" {
				if err := writeTo(dumpFile, func(w *os.File) error { return text.Save(c, w) }); err != nil {
					return err
				}
			}
			if dotFile != "" {
				if err := writeTo(dotFile, func(w *os.File) error { return dot.Write(c, w) }); err != nil {
					return err
				}
			}
			if emitCFile != "" {
				name := "nir_generated"
				if err := writeTo(emitCFile, func(w *os.File) error { return emitc.Write(c, name, w) }); err != nil {
					return err
				}
			}
			if emitLLVMFile != "" {
				return fmt.Errorf("--emit-llvm is not implemented: no LLVM binding is wired into this module (see DESIGN.md)")
			}

			if asmOut {
				machine, err := opt.resolveMachine()
				if err != nil {
					return err
				}
				code, err := assemble(c, machine, opt.targetName)
				if err != nil {
					return err
				}
				asmText, err := disassemble(code, opt.targetName)
				if err != nil {
					return err
				}
				fmt.Print(asmText)
			}

			return nil
		},
	}

	opt.bind(cmd.Flags())
	cmd.Flags().StringVar(&save, "save", "", "write textual IR to this file")
	cmd.Flags().StringVar(&dumpFile, "dump", "", "write textual IR to this file (alias of --save)")
	cmd.Flags().StringVar(&dotFile, "dot", "", "write a Graphviz DOT graph to this file")
	cmd.Flags().StringVar(&emitCFile, "emit-c", "", "write a C translation to this file")
	cmd.Flags().StringVar(&emitLLVMFile, "emit-llvm", "", "write an LLVM IR translation to this file (unimplemented)")
	cmd.Flags().BoolVarP(&asmOut, "S", "S", false, "print the assembled, disassembled machine code")
	cmd.Flags().StringVar(&dumpAfter, "dump-after", "", "dump textual IR after a stage: "+joinEnum(dumpAfterStages))
	cmd.Flags().BoolVar(&dumpUseLists, "dump-use-lists", false, "print def-use edges")
	cmd.Flags().BoolVar(&dumpCFG, "dump-cfg", false, "print basic blocks and edges")
	cmd.Flags().BoolVar(&dumpCFGMap, "dump-cfg-map", false, "print the block successor/predecessor index arrays")
	cmd.Flags().BoolVar(&dumpLiveRanges, "dump-live-ranges", false, "print computed live intervals")
	cmd.Flags().BoolVar(&dumpSize, "dump-size", false, "print arena/block size counters")
	return cmd
}

// runPipelineWithDumps re-implements ir.RunPipeline's stage order
// locally so --dump-after can drop a textual-IR snapshot between
// stages; kept in lockstep with pkg/ir/pipeline.go's RunPipeline by
// hand since the dump points themselves aren't useful for a Context
// library caller that doesn't also want the dumping.
func runPipelineWithDumps(c *ir.Context, opts ir.PipelineOptions, after string) (*ir.Report, error) {
	maybeDump := func(stage string) {
		if after == stage || after == "all" {
			dumpStage(c, stage)
		}
	}

	maybeDump("load")

	c.BuildDefUse()
	c.BuildCFG()
	c.BuildDominators()
	c.FindLoops()

	if opts.Optimize {
		c.PromoteAllocas()
		c.BuildDefUse()
	}

	if opts.Optimize && c.Flags&ir.FlagOptFolding != 0 {
		c.RunSCCP()
		c.ApplyConstants()
		c.PruneDeadTerminators()
		c.BuildDefUse()
	}
	maybeDump("sccp")

	c.RunGCM()
	maybeDump("gcm")
	c.Schedule()
	maybeDump("schedule")

	c.AssignVirtualRegisters()
	c.ComputeLiveRanges()
	maybeDump("live-ranges")
	c.CoalescePhis()
	maybeDump("coalescing")

	if err := c.RegAlloc(opts.NumRegs); err != nil {
		return nil, err
	}
	c.InsertParallelCopies(opts.ScratchReg)

	if opts.Optimize {
		c.Combine()
	}
	c.LayoutBlocks()

	report := c.Verify()
	maybeDump("final")
	if !report.OK() {
		return report, fmt.Errorf("verification failed after pipeline run")
	}
	return report, nil
}

func validateDumpAfter(stage string) error {
	if stage == "" {
		return nil
	}
	for _, s := range dumpAfterStages {
		if s == stage {
			return nil
		}
	}
	return fmt.Errorf("--dump-after: unknown stage %q (want one of %s)", stage, joinEnum(dumpAfterStages))
}

func joinEnum(vals []string) string {
	out := "{"
	for i, v := range vals {
		if i > 0 {
			out += ","
		}
		out += v
	}
	return out + "}"
}

func loadFile(path string) (*ir.Context, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return text.Load(f)
}

func writeTo(path string, write func(*os.File) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return write(f)
}

func dumpStage(c *ir.Context, stage string) {
	var buf bytes.Buffer
	if err := text.Save(c, &buf); err != nil {
		fmt.Fprintf(os.Stderr, "dump-after %s: %v\n", stage, err)
		return
	}
	fmt.Printf("; --dump-after=%s\n%s", stage, buf.String())
}

func printUseLists(c *ir.Context) {
	for i := 1; i <= c.NumInsns(); i++ {
		uses := c.Uses(ir.Ref(i))
		if len(uses) == 0 {
			continue
		}
		fmt.Printf("d_%d used by:", i)
		for _, u := range uses {
			fmt.Printf(" d_%d", u)
		}
		fmt.Println()
	}
}

func printCFG(c *ir.Context, withMap bool) {
	for i, b := range c.Blocks {
		fmt.Printf("bb%d: start=%d end=%d idom=%d loop_depth=%d\n", i, b.Start, b.End, b.Idom, b.LoopDepth)
		if withMap {
			fmt.Printf("  pred_offset=%d pred_count=%d succ_offset=%d succ_count=%d\n",
				b.PredOffset, b.PredCount, b.SuccOffset, b.SuccCount)
		}
	}
}

func printLiveRanges(c *ir.Context) {
	for _, iv := range c.Intervals {
		ranges := make([]string, len(iv.Ranges))
		for i, r := range iv.Ranges {
			ranges[i] = fmt.Sprintf("[%d,%d)", r.From, r.To)
		}
		fmt.Printf("v%d: %s reg=%d spill=%d fixed=%v\n", iv.VReg, strings.Join(ranges, ","), iv.Reg, iv.SpillSlot, iv.Fixed)
	}
}

func assemble(c *ir.Context, machine target.Machine, targetName string) ([]byte, error) {
	switch targetName {
	case "amd64":
		matcher := &codegen.Matcher{Machine: machine, Alu: amd64Alu}
		asm := x86asm.New("nir_generated")
		return codegen.EmitFunction(c, matcher, asm)
	case "arm64":
		matcher := &codegen.Matcher{Machine: machine, Alu: arm64Alu}
		asm := arm64asm.New("nir_generated")
		return codegen.EmitFunction(c, matcher, asm)
	default:
		return nil, fmt.Errorf("assemble: unknown target %q", targetName)
	}
}

var amd64Alu = codegen.AluOps{
	opcode.Add: x86.AADDQ,
	opcode.Sub: x86.ASUBQ,
	opcode.Mul: x86.AIMULQ,
	opcode.And: x86.AANDQ,
	opcode.Or:  x86.AORQ,
	opcode.Xor: x86.AXORQ,
}

var arm64Alu = codegen.AluOps{
	opcode.Add: arm64.AADD,
	opcode.Sub: arm64.ASUB,
	opcode.Mul: arm64.AMUL,
	opcode.And: arm64.AAND,
	opcode.Or:  arm64.AORR,
	opcode.Xor: arm64.AEOR,
}

func disassemble(code []byte, targetName string) (string, error) {
	switch targetName {
	case "amd64":
		lines, err := disasm.AMD64(code, 0)
		if err != nil {
			return "", err
		}
		return disasm.Format(lines, code), nil
	case "arm64":
		lines, err := disasm.ARM64(code, 0)
		if err != nil {
			return "", err
		}
		return disasm.Format(lines, code), nil
	default:
		return "", fmt.Errorf("disassemble: unknown target %q", targetName)
	}
}
