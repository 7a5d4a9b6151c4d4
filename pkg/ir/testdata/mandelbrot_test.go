package ir

import (
	"math"
	"strings"
	"testing"

	"github.com/nir-project/nir/pkg/opcode"
	"github.com/nir-project/nir/pkg/types"
)

// S3: the upstream bench/mandelbrot.c escape-time kernel, built with
// the construction API (LOOP_BEGIN/PHI/IF/LOOP_END over float64
// operands, two early-exit RETURNs) instead of loaded from text, then
// driven through the full optimizing pipeline and invoked once per
// pixel of a 78x78 render to check both the exact ASCII-art character
// count and per-pixel escape-time value against an independent Go
// reimplementation of the same kernel.
const (
	mandelBailout = 16.0
	mandelMaxIter = 1000
)

// buildMandelbrotIterate constructs iterate(x, y float64) int32: the
// three loop-carried values are zr, zi (the orbit) and i (the
// iteration count); the loop body computes one escape-time step and
// exits via whichever of two RETURNs fires first, mirroring the
// upstream function's "return i" / "return 0" pair rather than
// funneling both through an extra MERGE/PHI no caller needs.
func buildMandelbrotIterate() *Context {
	c := New(FlagFunction|FlagOptFolding, 32, 64)
	entry := c.Start()
	x := c.Param(types.DOUBLE, 0)
	y := c.Param(types.DOUBLE, 1)

	cr := c.BinOp(opcode.Sub, types.DOUBLE, y, c.ConstDouble(0.5))
	ci := x

	loopBegin := c.LoopBegin(entry, RefNone)
	zrPhi := c.Phi(types.DOUBLE, loopBegin, c.ConstDouble(0), RefNone)
	ziPhi := c.Phi(types.DOUBLE, loopBegin, c.ConstDouble(0), RefNone)
	iPhi := c.Phi(types.I32, loopBegin, c.ConstI32(0), RefNone)

	iNext := c.BinOp(opcode.Add, types.I32, iPhi, c.ConstI32(1))
	temp := c.BinOp(opcode.Mul, types.DOUBLE, zrPhi, ziPhi)
	zr2 := c.BinOp(opcode.Mul, types.DOUBLE, zrPhi, zrPhi)
	zi2 := c.BinOp(opcode.Mul, types.DOUBLE, ziPhi, ziPhi)
	zrNext := c.BinOp(opcode.Add, types.DOUBLE, c.BinOp(opcode.Sub, types.DOUBLE, zr2, zi2), cr)
	ziNext := c.BinOp(opcode.Add, types.DOUBLE, c.BinOp(opcode.Add, types.DOUBLE, temp, temp), ci)
	sum := c.BinOp(opcode.Add, types.DOUBLE, zi2, zr2)

	bailCond := c.BinOp(opcode.GT, types.BOOL, sum, c.ConstDouble(mandelBailout))
	ifBail := c.If(loopBegin, bailCond)
	bailTrue := c.IfTrue(ifBail)
	bailFalse := c.IfFalse(ifBail)
	c.Return(bailTrue, iNext)

	maxCond := c.BinOp(opcode.GT, types.BOOL, iNext, c.ConstI32(mandelMaxIter))
	ifMax := c.If(bailFalse, maxCond)
	maxTrue := c.IfTrue(ifMax)
	maxFalse := c.IfFalse(ifMax)
	c.Return(maxTrue, c.ConstI32(0))

	loopEnd := c.LoopEnd(maxFalse)
	c.SetOp(loopBegin, 1, loopEnd)
	c.SetOp(zrPhi, 2, zrNext)
	c.SetOp(ziPhi, 2, ziNext)
	c.SetOp(iPhi, 2, iNext)

	c.FinalizeGraph()
	return c
}

// iterateRef is an independent Go reimplementation of the same
// escape-time step, used as the correctness oracle; its operand order
// mirrors buildMandelbrotIterate's exactly so float64 rounding lines
// up bit for bit.
func iterateRef(x, y float64) int32 {
	cr := y - 0.5
	ci := x
	var zr, zi float64
	var i int32
	for {
		i++
		temp := zr * zi
		zr2 := zr * zr
		zi2 := zi * zi
		zr = (zr2 - zi2) + cr
		zi = (temp + temp) + ci
		if zi2+zr2 > mandelBailout {
			return i
		}
		if i > mandelMaxIter {
			return 0
		}
	}
}

func float64Bits(v float64) int64 { return int64(math.Float64bits(v)) }

func TestScenarioS3Mandelbrot(t *testing.T) {
	c := buildMandelbrotIterate()

	// Only 3 registers for a kernel carrying 2 floats + 1 int plus
	// several temporaries live across the loop body forces real
	// spilling and live-range splitting, not just free-register
	// allocation.
	opts := PipelineOptions{NumRegs: 3, ScratchReg: 2, Optimize: true}
	report, err := RunPipeline(c, opts)
	if err != nil {
		t.Fatalf("RunPipeline: %v (findings: %v)", err, report.Findings())
	}
	if !report.OK() {
		t.Fatalf("verification failed: %v", report.Findings())
	}

	iterate := func(x, y float64) int32 {
		return int32(execCFG(t, c, []int64{float64Bits(x), float64Bits(y)}))
	}

	var out strings.Builder
	mismatches := 0
	for py := -39; py < 39; py++ {
		out.WriteByte('\n')
		for px := -39; px < 39; px++ {
			x, y := float64(px)/40.0, float64(py)/40.0
			got := iterate(x, y)
			want := iterateRef(x, y)
			if got != want && mismatches < 10 {
				t.Errorf("iterate(%g, %g) = %d, want %d", x, y, got, want)
				mismatches++
			}
			if want == 0 {
				out.WriteByte('*')
			} else {
				out.WriteByte(' ')
			}
		}
	}
	out.WriteByte('\n')

	const wantLen = 78*79 + 1
	if got := out.Len(); got != wantLen {
		t.Errorf("rendered Mandelbrot ASCII art is %d characters, want %d (78 rows, 78 columns, one newline per row plus a trailing newline)", got, wantLen)
	}
}
