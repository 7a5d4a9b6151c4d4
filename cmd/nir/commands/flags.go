// Package commands implements the `ir` driver's subcommands: compile,
// check, run. Flag-var-then-RunE wiring throughout follows a consistent
// cobra style: bind flags into a struct, resolve them once in RunE.
package commands

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/pflag"

	"github.com/nir-project/nir/pkg/ir"
	"github.com/nir-project/nir/pkg/target"
)

// optFlags are the optimization/target flags shared by compile, check,
// and run (spec §6's -O0/-O1/-O2, --target, -mavx, -muse-fp, --debug-*).
type optFlags struct {
	optLevel    int
	targetName  string
	useAVX      bool
	useFP       bool
	debugSCCP   bool
	debugGCM    bool
	debugSched  bool
	debugRA     bool
	debugRegset uint32
}

func (f *optFlags) bind(flags *pflag.FlagSet) {
	flags.IntVar(&f.optLevel, "O", 1, "optimization level: 0, 1, or 2")
	flags.StringVar(&f.targetName, "target", "amd64", "code generation target (amd64, arm64)")
	flags.BoolVar(&f.useAVX, "mavx", false, "permit AVX-width vector operations")
	flags.BoolVar(&f.useFP, "muse-fp", false, "keep a dedicated frame-pointer register")
	flags.BoolVar(&f.debugSCCP, "debug-sccp", false, "log SCCP lattice transitions")
	flags.BoolVar(&f.debugGCM, "debug-gcm", false, "log GCM scheduling decisions")
	flags.BoolVar(&f.debugSched, "debug-schedule", false, "log per-block list scheduling")
	flags.BoolVar(&f.debugRA, "debug-ra", false, "log linear-scan register allocation")
	flags.Uint32Var(&f.debugRegset, "debug-regset", 0, "register-set bitmask to trace in --debug-ra output")
}

// resolveMachine looks up the --target name in the target registry,
// returning an error listing the registered names on a miss.
func (f *optFlags) resolveMachine() (target.Machine, error) {
	m, ok := target.Lookup(f.targetName)
	if !ok {
		return nil, fmt.Errorf("unknown --target %q (available: %v)", f.targetName, target.Names())
	}
	return m, nil
}

// pipelineOptions builds ir.PipelineOptions and the flags the loaded
// Context should carry, from the shared optFlags.
func (f *optFlags) pipelineOptions() (ir.PipelineOptions, ir.Flags, error) {
	m, err := f.resolveMachine()
	if err != nil {
		return ir.PipelineOptions{}, 0, err
	}

	var flags ir.Flags
	if f.optLevel >= 1 {
		flags |= ir.FlagOptFolding
	}
	if f.optLevel >= 1 {
		flags |= ir.FlagOptCFG
	}
	if f.optLevel >= 2 {
		flags |= ir.FlagOptCodegen
	}
	if f.useAVX {
		flags |= ir.FlagAVX
	}
	if f.useFP {
		flags |= ir.FlagUseFramePointer
	}

	opts := ir.PipelineOptions{
		NumRegs:    m.NumRegs(),
		ScratchReg: int32(m.ScratchReg()),
		Optimize:   f.optLevel >= 1,
	}
	return opts, flags, nil
}

// debugLogger builds the *slog.Logger a Context should carry: a
// no-op handler unless at least one --debug-* flag asked for
// stderr tracing, matching SPEC_FULL.md §1.1's "defaults to a no-op
// handler unless a --debug-* flag enables a text handler at debug
// level" contract.
func (f *optFlags) debugLogger() *slog.Logger {
	if !(f.debugSCCP || f.debugGCM || f.debugSched || f.debugRA) {
		return slog.New(slog.DiscardHandler)
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
}
