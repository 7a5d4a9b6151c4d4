package opcode

import "testing"

func TestStringParseRoundTrip(t *testing.T) {
	for op := Op(1); op < Count; op++ {
		name := op.String()
		if name == "INVALID" {
			t.Errorf("opcode %d has no registered descriptor name", op)
			continue
		}
		got, ok := Parse(name)
		if !ok {
			t.Errorf("Parse(%q) failed for opcode %d", name, op)
			continue
		}
		if got != op {
			t.Errorf("Parse(%q) = %d, want %d", name, got, op)
		}
	}
}

func TestIsConstCoversEveryConstOpcode(t *testing.T) {
	for op := ConstBool; op <= ConstDouble; op++ {
		if !IsConst(op) {
			t.Errorf("IsConst(%s) = false, want true", op)
		}
	}
	if IsConst(Add) {
		t.Error("IsConst(ADD) = true, want false")
	}
}

func TestIsTerminatorMatchesControlFlowEnders(t *testing.T) {
	for _, op := range []Op{Return, Unreachable} {
		if !IsTerminator(op) {
			t.Errorf("IsTerminator(%s) = false, want true", op)
		}
	}
	if IsTerminator(Add) {
		t.Error("IsTerminator(ADD) = true, want false")
	}
}
