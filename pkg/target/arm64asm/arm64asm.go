// Package arm64asm assembles the AArch64 side of pkg/codegen's rule
// set using golang-asm's obj/arm64 package, the same *obj.Prog
// linked-list-then-assemble workflow pkg/target/x86asm uses for
// amd64 — the two backends share one encoding idiom, differing only
// in which obj/<arch> package and instruction mnemonics they use.
package arm64asm

import (
	"github.com/twitchyliquid64/golang-asm/obj"
	"github.com/twitchyliquid64/golang-asm/obj/arm64"
)

// Assembler accumulates a *obj.Prog chain for one function body and
// turns it into AArch64 machine code.
type Assembler struct {
	ctxt  *obj.Link
	sym   *obj.LSym
	first *obj.Prog
	last  *obj.Prog
}

// New creates an assembler for a function named name.
func New(name string) *Assembler {
	ctxt := obj.Linknew(&arm64.Linkarm64)
	ctxt.Diag = func(format string, args ...interface{}) {}
	sym := ctxt.Lookup(name)
	sym.Func = &obj.FuncInfo{}
	return &Assembler{ctxt: ctxt, sym: sym}
}

func (a *Assembler) append(p *obj.Prog) *obj.Prog {
	p.Ctxt = a.ctxt
	if a.first == nil {
		a.first = p
	} else {
		a.last.Link = p
	}
	a.last = p
	return p
}

func reg(r int16) obj.Addr { return obj.Addr{Type: obj.TYPE_REG, Reg: r} }
func cst(v int64) obj.Addr { return obj.Addr{Type: obj.TYPE_CONST, Offset: v} }
func mem(base int16, off int64) obj.Addr {
	return obj.Addr{Type: obj.TYPE_MEM, Reg: base, Offset: off}
}

// MovRegReg emits MOVD src, dst.
func (a *Assembler) MovRegReg(dst, src int16) {
	p := a.ctxt.NewProg()
	p.As = arm64.AMOVD
	p.From = reg(src)
	p.To = reg(dst)
	a.append(p)
}

// MovConst emits MOVD $imm, dst.
func (a *Assembler) MovConst(dst int16, imm int64) {
	p := a.ctxt.NewProg()
	p.As = arm64.AMOVD
	p.From = cst(imm)
	p.To = reg(dst)
	a.append(p)
}

// LoadMem emits MOVD offset(base), dst.
func (a *Assembler) LoadMem(dst, base int16, offset int64) {
	p := a.ctxt.NewProg()
	p.As = arm64.AMOVD
	p.From = mem(base, offset)
	p.To = reg(dst)
	a.append(p)
}

// StoreMem emits MOVD src, offset(base).
func (a *Assembler) StoreMem(base int16, offset int64, src int16) {
	p := a.ctxt.NewProg()
	p.As = arm64.AMOVD
	p.From = reg(src)
	p.To = mem(base, offset)
	a.append(p)
}

// BinOp emits `op src, dst` for a two-operand ALU instruction (AADD, ASUB, AMUL, AAND, AORR, AEOR, ACMP).
func (a *Assembler) BinOp(as obj.As, dst, src int16) {
	p := a.ctxt.NewProg()
	p.As = as
	p.From = reg(src)
	p.To = reg(dst)
	a.append(p)
}

// Ret emits RET.
func (a *Assembler) Ret() {
	p := a.ctxt.NewProg()
	p.As = obj.ARET
	a.append(p)
}

// Jmp emits an unconditional branch to a not-yet-placed target.
func (a *Assembler) Jmp() *obj.Prog {
	p := a.ctxt.NewProg()
	p.As = obj.AJMP
	p.To = obj.Addr{Type: obj.TYPE_BRANCH}
	return a.append(p)
}

// Jcc emits a conditional branch (ABEQ, ABNE, ABLT, ...) to a not-yet-placed target.
func (a *Assembler) Jcc(as obj.As) *obj.Prog {
	p := a.ctxt.NewProg()
	p.As = as
	p.To = obj.Addr{Type: obj.TYPE_BRANCH}
	return a.append(p)
}

// Label marks the next emitted instruction as the target of a
// previously emitted branch.
func (a *Assembler) Label(branch *obj.Prog) {
	branch.To.Val = a.last
}

// Assemble runs the context's assembler over the accumulated program
// and returns the resulting machine code.
func (a *Assembler) Assemble() ([]byte, error) {
	a.sym.Func.Text = a.first
	pl := &obj.Plist{Firstpc: a.first, Curfn: a.sym}
	obj.Flushplist(a.ctxt, pl, nil, "")
	if a.ctxt.Errors > 0 {
		return nil, errAssembly
	}
	return a.sym.P, nil
}

type errString string

func (e errString) Error() string { return string(e) }

const errAssembly = errString("arm64asm: assembly failed")
