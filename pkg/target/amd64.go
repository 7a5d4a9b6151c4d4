package target

// amd64 is the System V AMD64 calling-convention register file:
// integer arguments in RDI, RSI, RDX, RCX, R8, R9; return value in
// RAX; RBX/RBP/R12-R15 callee-saved. R11 is reserved as the
// parallel-copy scratch register, mirroring golang-asm/obj/x86's own
// reservation of a scratch register for its own instruction
// rewriting.
type amd64 struct{}

func init() { Register(amd64{}) }

const (
	amd64RAX Reg = iota
	amd64RBX
	amd64RCX
	amd64RDX
	amd64RSI
	amd64RDI
	amd64R8
	amd64R9
	amd64R10
	amd64R12
	amd64R13
	amd64R14
	amd64R15
	amd64R11 // scratch, excluded from NumRegs
)

var amd64Names = map[Reg]string{
	amd64RAX: "AX", amd64RBX: "BX", amd64RCX: "CX", amd64RDX: "DX",
	amd64RSI: "SI", amd64RDI: "DI", amd64R8: "R8", amd64R9: "R9",
	amd64R10: "R10", amd64R11: "R11", amd64R12: "R12", amd64R13: "R13",
	amd64R14: "R14", amd64R15: "R15",
}

var amd64CalleeSaved = map[Reg]bool{
	amd64RBX: true, amd64R12: true, amd64R13: true, amd64R14: true, amd64R15: true,
}

var amd64ParamRegs = []Reg{amd64RDI, amd64RSI, amd64RDX, amd64RCX, amd64R8, amd64R9}

func (amd64) Name() string    { return "amd64" }
func (amd64) NumRegs() int    { return 13 } // every register above but R11
func (amd64) ScratchReg() Reg { return amd64R11 }

func (amd64) RegName(r Reg) string {
	if name, ok := amd64Names[r]; ok {
		return name
	}
	return "?"
}

func (amd64) CalleeSaved(r Reg) bool { return amd64CalleeSaved[r] }

func (amd64) ParamReg(n int) Reg {
	if n < 0 || n >= len(amd64ParamRegs) {
		return -1
	}
	return amd64ParamRegs[n]
}

func (amd64) ReturnReg() Reg { return amd64RAX }
