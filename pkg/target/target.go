// Package target describes the fixed facts a code-generation backend
// needs about one machine: its general-purpose register file, which
// registers the calling convention reserves, and how many registers
// codegen/regalloc may hand out. A small, value-copyable struct of named
// constants per machine, behind an interface so x86-64 and AArch64 can
// share the matcher and the linear-scan allocator.
package target

// Reg identifies one physical general-purpose register by its
// allocator-facing index, not by any particular encoding; a Machine
// maps indices to mnemonic names and to its own encoder's register
// constants.
type Reg int32

// Machine is everything pkg/codegen and pkg/ir/regalloc need to know
// about a concrete target to turn allocated virtual registers into
// real machine code.
type Machine interface {
	// Name identifies the target for --target and diagnostics ("amd64", "arm64").
	Name() string

	// NumRegs is the number of general-purpose registers codegen may
	// hand out to virtual registers (spec §6's per-target register
	// count, fed straight into RunPipeline's PipelineOptions.NumRegs).
	NumRegs() int

	// ScratchReg is the one register InsertParallelCopies reserves for
	// breaking a cyclic parallel copy; never handed to RegAlloc.
	ScratchReg() Reg

	// RegName returns the assembly mnemonic for a register index, for
	// -S textual output and diagnostics.
	RegName(r Reg) string

	// CalleeSaved reports whether r must be preserved across a call,
	// so the prologue/epilogue emitter knows what to spill.
	CalleeSaved(r Reg) bool

	// ParamReg returns the register the calling convention assigns to
	// the nth integer/pointer argument, or -1 if it is passed on the
	// stack.
	ParamReg(n int) Reg

	// ReturnReg is the register the calling convention uses to return
	// an integer/pointer result.
	ReturnReg() Reg
}

// Registry looks up a Machine by its --target name. Backends register
// themselves from their own package's init(), the way opcode.Table's
// reg() calls populate a package-level table at load time.
var registry = map[string]Machine{}

// Register adds m to the set --target can select, keyed by m.Name().
func Register(m Machine) {
	registry[m.Name()] = m
}

// Lookup resolves a --target name to its Machine, and reports whether
// one was registered under that name.
func Lookup(name string) (Machine, bool) {
	m, ok := registry[name]
	return m, ok
}

// Names lists every registered target name, for --help's --target
// enum and error messages.
func Names() []string {
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	return names
}
