package target

// arm64 is the AAPCS64 register file: integer arguments in X0-X7,
// return value in X0, X19-X28 callee-saved. X16 ("IP0") is the
// platform's own intra-procedure-call scratch register, reused here
// as the parallel-copy scratch so it matches what a linker/veneer
// would already assume is clobberable.
type arm64 struct{}

func init() { Register(arm64{}) }

const (
	arm64X0 Reg = iota
	arm64X1
	arm64X2
	arm64X3
	arm64X4
	arm64X5
	arm64X6
	arm64X7
	arm64X19
	arm64X20
	arm64X21
	arm64X22
	arm64X23
	arm64X24
	arm64X25
	arm64X26
	arm64X27
	arm64X28
	arm64X16 // scratch (IP0), excluded from NumRegs
)

var arm64Names = map[Reg]string{
	arm64X0: "X0", arm64X1: "X1", arm64X2: "X2", arm64X3: "X3",
	arm64X4: "X4", arm64X5: "X5", arm64X6: "X6", arm64X7: "X7",
	arm64X16: "X16", arm64X19: "X19", arm64X20: "X20", arm64X21: "X21",
	arm64X22: "X22", arm64X23: "X23", arm64X24: "X24", arm64X25: "X25",
	arm64X26: "X26", arm64X27: "X27", arm64X28: "X28",
}

var arm64CalleeSaved = map[Reg]bool{
	arm64X19: true, arm64X20: true, arm64X21: true, arm64X22: true,
	arm64X23: true, arm64X24: true, arm64X25: true, arm64X26: true,
	arm64X27: true, arm64X28: true,
}

var arm64ParamRegs = []Reg{arm64X0, arm64X1, arm64X2, arm64X3, arm64X4, arm64X5, arm64X6, arm64X7}

func (arm64) Name() string    { return "arm64" }
func (arm64) NumRegs() int    { return 18 }
func (arm64) ScratchReg() Reg { return arm64X16 }

func (arm64) RegName(r Reg) string {
	if name, ok := arm64Names[r]; ok {
		return name
	}
	return "?"
}

func (arm64) CalleeSaved(r Reg) bool { return arm64CalleeSaved[r] }

func (arm64) ParamReg(n int) Reg {
	if n < 0 || n >= len(arm64ParamRegs) {
		return -1
	}
	return arm64ParamRegs[n]
}

func (arm64) ReturnReg() Reg { return arm64X0 }
