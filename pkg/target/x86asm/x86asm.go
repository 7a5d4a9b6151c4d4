// Package x86asm assembles the small instruction set pkg/codegen's
// amd64 rules emit into machine code, using golang-asm's obj/x86
// package the same way the Go toolchain's own amd64 backend builds a
// *obj.Prog linked list and asks the context to assemble it — the
// ecosystem's standard way to get an x86-64 encoder without
// hand-rolling opcode tables.
package x86asm

import (
	"github.com/twitchyliquid64/golang-asm/obj"
	"github.com/twitchyliquid64/golang-asm/obj/x86"
)

// Assembler accumulates a *obj.Prog chain for one function body and
// turns it into machine code bytes.
type Assembler struct {
	ctxt  *obj.Link
	sym   *obj.LSym
	first *obj.Prog
	last  *obj.Prog
}

// New creates an assembler for a function named name.
func New(name string) *Assembler {
	ctxt := obj.Linknew(&x86.Linkamd64)
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

// MovRegReg emits MOVQ src, dst.
func (a *Assembler) MovRegReg(dst, src int16) {
	p := a.ctxt.NewProg()
	p.As = x86.AMOVQ
	p.From = reg(src)
	p.To = reg(dst)
	a.append(p)
}

// MovConst emits MOVQ $imm, dst.
func (a *Assembler) MovConst(dst int16, imm int64) {
	p := a.ctxt.NewProg()
	p.As = x86.AMOVQ
	p.From = cst(imm)
	p.To = reg(dst)
	a.append(p)
}

// LoadMem emits MOVQ offset(base), dst.
func (a *Assembler) LoadMem(dst, base int16, offset int64) {
	p := a.ctxt.NewProg()
	p.As = x86.AMOVQ
	p.From = mem(base, offset)
	p.To = reg(dst)
	a.append(p)
}

// StoreMem emits MOVQ src, offset(base).
func (a *Assembler) StoreMem(base int16, offset int64, src int16) {
	p := a.ctxt.NewProg()
	p.As = x86.AMOVQ
	p.From = reg(src)
	p.To = mem(base, offset)
	a.append(p)
}

// BinOp emits `op src, dst` for a two-operand ALU instruction (ADDQ,
// SUBQ, IMULQ, ANDQ, ORQ, XORQ, CMPQ).
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

// Jmp emits an unconditional JMP to a not-yet-placed target; callers
// patch p.To.Val with the target *obj.Prog once it is appended.
func (a *Assembler) Jmp() *obj.Prog {
	p := a.ctxt.NewProg()
	p.As = obj.AJMP
	p.To = obj.Addr{Type: obj.TYPE_BRANCH}
	return a.append(p)
}

// Jcc emits a conditional jump (JEQ, JNE, JLT, ...) to a not-yet-placed target.
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

const errAssembly = errString("x86asm: assembly failed")
