package text

import (
	"bytes"
	"testing"

	"github.com/nir-project/nir/pkg/ir"
	"github.com/nir-project/nir/pkg/opcode"
	"github.com/nir-project/nir/pkg/types"
)

// Property 9 (spec §8): save -> load -> save yields the same text.
func TestRoundTripSaveLoadSave(t *testing.T) {
	c := ir.New(ir.FlagFunction, 8, 16)
	ctrl := c.Start()
	x := c.Param(types.I32, 0)
	y := c.Param(types.I32, 1)
	diff := c.Emit(opcode.Sub, types.I32, x, y, ir.RefNone)
	c.Return(ctrl, diff)
	c.FinalizeGraph()

	var first bytes.Buffer
	if err := Save(c, &first); err != nil {
		t.Fatalf("first Save: %v", err)
	}

	loaded, err := Load(bytes.NewReader(first.Bytes()))
	if err != nil {
		t.Fatalf("Load: %v\ninput:\n%s", err, first.String())
	}

	var second bytes.Buffer
	if err := Save(loaded, &second); err != nil {
		t.Fatalf("second Save: %v", err)
	}

	if first.String() != second.String() {
		t.Errorf("round-trip text differs:\nfirst:\n%s\nsecond:\n%s", first.String(), second.String())
	}
}

// A branching function (IF/IF_TRUE/IF_FALSE/MERGE/PHI) round-trips
// too, since Merge/Phi's variadic operand encoding is the one load.go
// has to resolve forward references for.
func TestRoundTripWithPhi(t *testing.T) {
	c := ir.New(ir.FlagFunction, 8, 16)
	start := c.Start()
	cond := c.Param(types.BOOL, 0)
	ifRef := c.If(start, cond)
	tCtrl := c.IfTrue(ifRef)
	fCtrl := c.IfFalse(ifRef)
	merge := c.Merge(tCtrl, fCtrl)
	phi := c.Phi(types.I32, merge, c.ConstI32(1), c.ConstI32(2))
	c.Return(merge, phi)
	c.FinalizeGraph()

	var first bytes.Buffer
	if err := Save(c, &first); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := Load(bytes.NewReader(first.Bytes()))
	if err != nil {
		t.Fatalf("Load: %v\ninput:\n%s", err, first.String())
	}

	var second bytes.Buffer
	if err := Save(loaded, &second); err != nil {
		t.Fatalf("second Save: %v", err)
	}
	if first.String() != second.String() {
		t.Errorf("round-trip text differs:\nfirst:\n%s\nsecond:\n%s", first.String(), second.String())
	}
}
