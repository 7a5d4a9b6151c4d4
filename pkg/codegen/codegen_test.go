package codegen

import (
	"testing"

	"github.com/twitchyliquid64/golang-asm/obj"

	"github.com/nir-project/nir/pkg/ir"
	"github.com/nir-project/nir/pkg/opcode"
	"github.com/nir-project/nir/pkg/target"
	"github.com/nir-project/nir/pkg/types"
)

// fakeEmitter records the sequence of calls Select/EmitFunction make,
// without depending on golang-asm actually assembling anything — a
// stand-in for pkg/target/x86asm.Assembler that lets this package's
// tests stay clear of real machine-code encoding.
type fakeEmitter struct {
	ops []string
}

func (f *fakeEmitter) MovRegReg(dst, src int16)            { f.ops = append(f.ops, "mov_reg") }
func (f *fakeEmitter) MovConst(dst int16, imm int64)       { f.ops = append(f.ops, "mov_const") }
func (f *fakeEmitter) LoadMem(dst, base int16, off int64)  { f.ops = append(f.ops, "load") }
func (f *fakeEmitter) StoreMem(base int16, off int64, src int16) { f.ops = append(f.ops, "store") }
func (f *fakeEmitter) BinOp(as obj.As, dst, src int16)     { f.ops = append(f.ops, "binop") }
func (f *fakeEmitter) Ret()                                { f.ops = append(f.ops, "ret") }
func (f *fakeEmitter) Jmp() *obj.Prog                      { return &obj.Prog{} }
func (f *fakeEmitter) Jcc(as obj.As) *obj.Prog             { return &obj.Prog{} }
func (f *fakeEmitter) Label(branch *obj.Prog)              {}
func (f *fakeEmitter) Assemble() ([]byte, error)           { return []byte{0x90}, nil }

func buildSubtractContext(t *testing.T) *ir.Context {
	t.Helper()
	c := ir.New(ir.FlagFunction, 8, 16)
	ctrl := c.Start()
	x := c.Param(types.I32, 0)
	y := c.Param(types.I32, 1)
	diff := c.Emit(opcode.Sub, types.I32, x, y, ir.RefNone)
	c.Return(ctrl, diff)
	c.FinalizeGraph()

	m, ok := target.Lookup("amd64")
	if !ok {
		t.Fatal("amd64 target not registered")
	}
	opts := ir.PipelineOptions{NumRegs: m.NumRegs(), ScratchReg: int32(m.ScratchReg()), Optimize: false}
	if _, err := ir.RunPipeline(c, opts); err != nil {
		t.Fatalf("RunPipeline: %v", err)
	}
	return c
}

func TestEmitFunctionSubtract(t *testing.T) {
	c := buildSubtractContext(t)
	m, _ := target.Lookup("amd64")
	matcher := &Matcher{Machine: m, Alu: AluOps{opcode.Sub: 0}}
	e := &fakeEmitter{}

	code, err := EmitFunction(c, matcher, e)
	if err != nil {
		t.Fatalf("EmitFunction: %v", err)
	}
	if len(code) == 0 {
		t.Error("EmitFunction returned no code")
	}
	if len(e.ops) == 0 || e.ops[len(e.ops)-1] != "ret" {
		t.Errorf("EmitFunction did not end with a ret, got %v", e.ops)
	}

	var sawBinop bool
	for _, op := range e.ops {
		if op == "binop" {
			sawBinop = true
		}
	}
	if !sawBinop {
		t.Errorf("EmitFunction never emitted the SUB as a binop, got %v", e.ops)
	}
}

func TestSelectRejectsUnknownOpcode(t *testing.T) {
	c := ir.New(ir.FlagFunction, 8, 16)
	c.Start()
	ref := c.Emit(opcode.Alloca, types.ADDR, ir.RefNone, ir.RefNone, ir.RefNone)

	m, _ := target.Lookup("amd64")
	matcher := &Matcher{Machine: m, Alu: AluOps{}}
	if _, err := matcher.Select(c, ref); err == nil {
		t.Error("Select on an ALLOCA with no ALU entry and no dedicated case should error")
	}
}

func TestSelectReturnWithConstant(t *testing.T) {
	c := ir.New(ir.FlagFunction, 8, 16)
	ctrl := c.Start()
	five := c.ConstI32(5)
	ref := c.Return(ctrl, five)

	m, _ := target.Lookup("amd64")
	matcher := &Matcher{Machine: m, Alu: AluOps{}}
	apply, err := matcher.Select(c, ref)
	if err != nil {
		t.Fatalf("Select on RETURN of a constant: %v", err)
	}
	e := &fakeEmitter{}
	apply(e)
	if len(e.ops) != 1 || e.ops[0] != "mov_const" {
		t.Errorf("RETURN of a constant should emit exactly one mov_const, got %v", e.ops)
	}
}
