package ir

import (
	"fmt"
	"math"
	"sort"

	"github.com/nir-project/nir/pkg/opcode"
)

// Severity classifies a Finding's urgency (spec §7: every invariant
// violation found here is a bug in the pipeline itself, never a user
// error, so Verify reports findings rather than returning an error
// from this call — a caller that wants verification failures to be
// fatal turns a non-empty Report into an *nirerr.InternalError).
type Severity uint8

const (
	SeverityError Severity = iota
	SeverityWarning
)

// Finding is one invariant violation Verify discovered.
type Finding struct {
	Severity Severity
	Check    string
	Ref      Ref
	Block    int32
	Message  string
}

func (f Finding) String() string {
	loc := ""
	if f.Ref != RefNone {
		loc = fmt.Sprintf(" ref=%d", f.Ref)
	}
	if f.Block >= 0 {
		loc += fmt.Sprintf(" block=%d", f.Block)
	}
	return fmt.Sprintf("[%s]%s %s", f.Check, loc, f.Message)
}

// Report collects every Finding a Verify pass produced: an
// accumulator-plus-sorted-accessor shape that carries verification
// findings instead of requiring callers to walk a raw slice themselves.
type Report struct {
	findings []Finding
}

func (r *Report) add(f Finding) { r.findings = append(r.findings, f) }

// Findings returns every recorded finding, errors first.
func (r *Report) Findings() []Finding {
	out := make([]Finding, len(r.findings))
	copy(out, r.findings)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Severity < out[j].Severity })
	return out
}

// OK reports whether no error-severity finding was recorded (warnings
// do not fail verification).
func (r *Report) OK() bool {
	for _, f := range r.findings {
		if f.Severity == SeverityError {
			return false
		}
	}
	return true
}

// Verify checks every structural invariant spec §8 names: the single
// START node, the START node's terminator chain, PHI/MERGE arity
// agreement, constant uniqueness, CFG reachability, def-before-use
// scheduling, and (once RegAlloc has run) that no two overlapping
// intervals share a physical register. This supplements the upstream
// design's originally-empty graph checker with the real thing.
func (c *Context) Verify() *Report {
	r := &Report{}
	c.verifyStartAndTerminators(r)
	c.verifyArity(r)
	c.verifyConstUniqueness(r)
	if len(c.Blocks) > 0 {
		c.verifyCFGReachability(r)
		if c.Linear {
			c.verifyScheduleOrder(r)
		}
	}
	if len(c.Intervals) > 0 {
		c.verifyNoRegisterOverlap(r)
	}
	return r
}

func (c *Context) verifyStartAndTerminators(r *Report) {
	starts := 0
	for i := range c.code {
		if c.code[i].Op == opcode.Start {
			starts++
		}
	}
	if starts != 1 {
		r.add(Finding{Severity: SeverityError, Check: "single-start", Ref: RefNone, Block: -1,
			Message: fmt.Sprintf("expected exactly one START node, found %d", starts)})
	}
	if c.startRef == RefNone {
		return
	}
	seen := make(map[Ref]bool)
	for t := c.termHead; t != RefNone; {
		if seen[t] {
			r.add(Finding{Severity: SeverityError, Check: "terminator-chain", Ref: t, Block: -1,
				Message: "terminator chain contains a cycle"})
			break
		}
		seen[t] = true
		insn := c.at(t)
		if !opcode.IsTerminator(insn.Op) {
			r.add(Finding{Severity: SeverityError, Check: "terminator-chain", Ref: t, Block: -1,
				Message: fmt.Sprintf("non-terminator opcode %s in terminator chain", insn.Op)})
		}
		t = insn.Op3
	}
}

func (c *Context) verifyArity(r *Report) {
	for i := range c.code {
		ref := Ref(i + 1)
		insn := &c.code[i]
		d := opcode.Table[insn.Op]
		if d.Edges != opcode.EdgesPhi {
			continue
		}
		if insn.Op != opcode.Phi {
			continue
		}
		mergeCount := c.OperandCount(insn.Op1)
		want := mergeCount + 1
		got := c.OperandCount(ref)
		if got != want {
			r.add(Finding{Severity: SeverityError, Check: "phi-arity", Ref: ref, Block: -1,
				Message: fmt.Sprintf("PHI has %d operands, want %d (merge has %d predecessors)", got, want, mergeCount)})
		}
	}
}

func (c *Context) verifyConstUniqueness(r *Report) {
	seen := make(map[constKey]int)
	for _, entry := range c.consts {
		seen[constKey{Typ: entry.Typ, Bits: entry.Bits}]++
	}
	for k, count := range seen {
		if count > 1 {
			r.add(Finding{Severity: SeverityError, Check: "const-uniqueness", Ref: RefNone, Block: -1,
				Message: fmt.Sprintf("constant (type=%s bits=%#x) duplicated %d times", k.Typ, k.Bits, count)})
		}
	}
}

func (c *Context) verifyCFGReachability(r *Report) {
	for i := range c.Blocks {
		if i == 0 {
			continue
		}
		if c.Blocks[i].PredCount == 0 {
			r.add(Finding{Severity: SeverityWarning, Check: "cfg-reachability", Ref: RefNone, Block: int32(i),
				Message: "block has no predecessors and is unreachable from entry"})
		}
	}
}

// verifyScheduleOrder checks that, within each block's final Order,
// every data operand produced in the same block precedes its use
// (spec §4.6's scheduling postcondition — a GCM bug would otherwise
// silently miscompile rather than fail loudly).
func (c *Context) verifyScheduleOrder(r *Report) {
	for bi := range c.Blocks {
		position := make(map[Ref]int, len(c.Blocks[bi].Order))
		for i, ref := range c.Blocks[bi].Order {
			position[ref] = i
		}
		for i, ref := range c.Blocks[bi].Order {
			cnt := c.OperandCount(ref)
			if c.at(ref).Op == opcode.Phi {
				cnt = 1 // PHI inputs arrive from predecessor blocks
			}
			for k := 0; k < cnt; k++ {
				op := c.GetOp(ref, k)
				if !c.isInsnRef(op) {
					continue
				}
				if opPos, ok := position[op]; ok && opPos > i {
					r.add(Finding{Severity: SeverityError, Check: "schedule-order", Ref: ref, Block: int32(bi),
						Message: fmt.Sprintf("operand ref=%d scheduled after its use", op)})
				}
			}
		}
	}
}

func (c *Context) verifyNoRegisterOverlap(r *Report) {
	byReg := make(map[int32][]*Interval)
	for _, iv := range c.Intervals {
		if iv.Reg < 0 || len(iv.Ranges) == 0 {
			continue
		}
		byReg[iv.Reg] = append(byReg[iv.Reg], iv)
	}
	for reg, ivs := range byReg {
		for i := 0; i < len(ivs); i++ {
			for j := i + 1; j < len(ivs); j++ {
				if ivs[i].VReg == ivs[j].VReg {
					continue // split pieces of the same vreg sharing a register never conflict
				}
				if at := ivs[i].firstIntersection(ivs[j]); at != math.MaxInt32 {
					r.add(Finding{Severity: SeverityError, Check: "register-overlap", Ref: RefNone, Block: -1,
						Message: fmt.Sprintf("register %d: vreg %d and vreg %d both live at position %d",
							reg, ivs[i].VReg, ivs[j].VReg, at)})
				}
			}
		}
	}
}
