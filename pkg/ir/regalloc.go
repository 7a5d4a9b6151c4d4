package ir

import (
	"math"
	"sort"

	"github.com/nir-project/nir/pkg/types"
)

const unallocated int32 = -1

// allocator carries the four working sets Wimmer & Franz's linear
// scan moves intervals between as the scan position advances:
// unhandled (not yet reached), active (live and assigned a register
// right now), inactive (assigned a register but currently inside a
// lifetime hole), and handled (fully processed, dropped once its
// range has ended). handled needs no slice since nothing is done with
// an interval once it leaves active/inactive other than forgetting it.
type allocator struct {
	numRegs  int
	active   []*Interval
	inactive []*Interval
	spilled  []*Interval // intervals RegAlloc decided to spill; slots assigned in a second pass
}

// RegAlloc runs linear-scan register allocation (Wimmer & Franz 2010)
// over c.Intervals, which ComputeLiveRanges/CoalescePhis must have
// already built. numRegs is the target's allocatable physical register
// count (spec §4.8: "parameterized by the target's register file
// size"). The allocator tracks unhandled/active/inactive/handled sets,
// honors lifetime holes via Interval.Ranges, and splits an interval at
// the point a register stops being available rather than spilling it
// outright — splitting is what lets a value spend part of its life in
// a register and the rest on the stack instead of an all-or-nothing
// choice. Spilled intervals receive a SpillSlot instead of a Reg,
// assigned by a second linear-scan pass (assignSpillSlots) that reuses
// same-size slots across non-overlapping lifetimes; RegAlloc does not
// itself insert spill/reload code — that is codegen's job once it sees
// SpillSlot >= 0 on an operand's interval.
//
// Any Interval already marked Fixed when RegAlloc starts (a caller
// pre-coloring an ABI/call-clobber register before allocation runs)
// is honored as pinned: it enters active/inactive by its own Ranges
// like any other interval, but is never considered for eviction by
// allocateBlockedReg, and tryAllocateFreeReg/allocateBlockedReg both
// see its register as unavailable for the interval's whole span.
//
// An irreducible CFG makes the single-pass linear scan's "active
// until End" invariant unsound across the unstructured merge (spec §9
// open question), so RegAlloc refuses to run on one; callers see this
// as an *nirerr.InternalError, matching spec §7's "this is considered
// a bug" framing for allocator-level invariant violations.
func (c *Context) RegAlloc(numRegs int) error {
	if c.IrreducibleCFG {
		return internalBug("RegAlloc", "cannot linear-scan an irreducible control-flow graph")
	}

	var unhandled []*Interval
	for _, iv := range c.Intervals {
		if len(iv.Ranges) == 0 {
			continue // dead vreg (never actually live); leave unassigned
		}
		if !iv.Fixed {
			iv.Reg = unallocated
			iv.SpillSlot = -1
		}
		unhandled = append(unhandled, iv)
	}
	sort.Slice(unhandled, func(i, j int) bool { return unhandled[i].From() < unhandled[j].From() })

	a := &allocator{numRegs: numRegs}

	for len(unhandled) > 0 {
		current := unhandled[0]
		unhandled = unhandled[1:]
		pos := current.From()

		var stillActive []*Interval
		for _, it := range a.active {
			switch {
			case it.To() <= pos:
				// expired: drops into the implicit "handled" set
			case !it.covers(pos):
				a.inactive = append(a.inactive, it)
			default:
				stillActive = append(stillActive, it)
			}
		}
		a.active = stillActive

		var stillInactive []*Interval
		for _, it := range a.inactive {
			switch {
			case it.To() <= pos:
			case it.covers(pos):
				a.active = append(a.active, it)
			default:
				stillInactive = append(stillInactive, it)
			}
		}
		a.inactive = stillInactive

		if current.Fixed {
			a.active = append(a.active, current)
			continue
		}

		ok, split := a.tryAllocateFreeReg(current)
		if !ok {
			split = a.allocateBlockedReg(current)
		}
		if split != nil {
			unhandled = insertByStart(unhandled, split)
		}
		if current.Reg != unallocated {
			a.active = append(a.active, current)
		} else {
			a.spilled = append(a.spilled, current)
		}
	}

	assignSpillSlots(c, a.spilled)
	c.Linear = true
	return nil
}

// tryAllocateFreeReg implements Wimmer & Franz fig. 2: compute, for
// every physical register, the position at which it next stops being
// free (0 if some active interval already holds it for all of
// current's range, current.To() if nothing ever claims it). Picking
// the register with the furthest freeUntilPos either covers current
// whole (no split needed, ok=true, split=nil) or covers a prefix of it
// (ok=true, split holds the remainder for reinsertion into unhandled).
// ok=false means no register is free even briefly; the caller falls
// through to allocateBlockedReg.
func (a *allocator) tryAllocateFreeReg(current *Interval) (ok bool, split *Interval) {
	freeUntil := make([]int32, a.numRegs)
	for i := range freeUntil {
		freeUntil[i] = math.MaxInt32
	}
	for _, it := range a.active {
		if it.Reg >= 0 && int(it.Reg) < a.numRegs {
			freeUntil[it.Reg] = 0
		}
	}
	for _, it := range a.inactive {
		if it.Reg < 0 || int(it.Reg) >= a.numRegs {
			continue
		}
		if at := current.firstIntersection(it); at < freeUntil[it.Reg] {
			freeUntil[it.Reg] = at
		}
	}

	reg := bestReg(freeUntil, current.HintVReg, a)
	if freeUntil[reg] == 0 {
		return false, nil
	}
	current.Reg = int32(reg)
	if freeUntil[reg] >= current.To() {
		return true, nil
	}
	return true, current.splitAt(freeUntil[reg])
}

// allocateBlockedReg implements Wimmer & Franz fig. 3: when no
// register is free even briefly, spill either current (if every
// register's occupant is needed sooner than current's own first
// must-be-in-reg use) or whichever occupant is needed furthest in the
// future, freeing its register for current. A Fixed interval's
// register is excluded from eviction entirely by forcing its
// nextUsePos to 0 (permanently "blocked" from this register's point
// of view), matching the "never evict a pinned interval" contract.
func (a *allocator) allocateBlockedReg(current *Interval) *Interval {
	nextUse := make([]int32, a.numRegs)
	occupant := make([]*Interval, a.numRegs)
	for i := range nextUse {
		nextUse[i] = math.MaxInt32
	}
	consider := func(it *Interval) {
		if it.Reg < 0 || int(it.Reg) >= a.numRegs {
			return
		}
		u := it.nextUseAfter(current.From())
		if it.Fixed {
			u = 0
		}
		if u < nextUse[it.Reg] {
			nextUse[it.Reg] = u
			occupant[it.Reg] = it
		}
	}
	for _, it := range a.active {
		consider(it)
	}
	for _, it := range a.inactive {
		if current.firstIntersection(it) != math.MaxInt32 {
			consider(it)
		}
	}

	reg := 0
	for r := 1; r < a.numRegs; r++ {
		if nextUse[r] > nextUse[reg] {
			reg = r
		}
	}

	if nextUse[reg] < current.firstUseRequiringReg() {
		// Every register is needed sooner than current's own next
		// must-be-in-reg use: current spends its early life in memory,
		// and (if it has a later use that does need a register) the
		// portion from that use onward goes back into unhandled.
		splitPos := current.firstUseRequiringReg()
		current.Reg = unallocated
		if splitPos == math.MaxInt32 || splitPos <= current.From() {
			return nil
		}
		return current.splitAt(splitPos)
	}

	current.Reg = int32(reg)
	occ := occupant[reg]
	if occ == nil {
		return nil
	}
	// Evict occ from current.From() onward so current can take reg;
	// occ keeps whatever portion of its range already passed. The
	// evicted remainder goes back into unhandled rather than straight
	// to a spill slot, the same as any other freshly split interval —
	// it may still find a free register later in the scan.
	rest := occ.splitAt(current.From())
	removeFrom(&a.active, occ)
	removeFrom(&a.inactive, occ)
	if len(occ.Ranges) > 0 {
		if occ.covers(current.From() - 1) {
			a.active = append(a.active, occ)
		} else {
			a.inactive = append(a.inactive, occ)
		}
	}
	return rest
}

// bestReg picks the register with the largest freeUntilPos, breaking
// ties toward hintVReg's already-assigned register when that register
// is among the tied best (spec §4.8 step 2's hint-register reuse:
// honoring a COPY/reused-op1/PHI-coalescing hint needs no extra pass
// since intervals are processed in increasing start order, so a hint
// interval starting no later than current has already been colored).
func bestReg(freeUntil []int32, hintVReg int32, a *allocator) int {
	best := 0
	for r := 1; r < len(freeUntil); r++ {
		if freeUntil[r] > freeUntil[best] {
			best = r
		}
	}
	if hintVReg < 0 {
		return best
	}
	if hintReg, ok := a.resolveHint(hintVReg); ok && int(hintReg) < len(freeUntil) && freeUntil[hintReg] == freeUntil[best] {
		return int(hintReg)
	}
	return best
}

// resolveHint looks for hintVReg's currently assigned register among
// already-processed intervals (active or inactive — both carry a
// valid Reg once colored).
func (a *allocator) resolveHint(hintVReg int32) (int32, bool) {
	for _, it := range a.active {
		if it.VReg == hintVReg && it.Reg >= 0 {
			return it.Reg, true
		}
	}
	for _, it := range a.inactive {
		if it.VReg == hintVReg && it.Reg >= 0 {
			return it.Reg, true
		}
	}
	return 0, false
}

func removeFrom(set *[]*Interval, target *Interval) {
	s := *set
	for i, v := range s {
		if v == target {
			*set = append(s[:i], s[i+1:]...)
			return
		}
	}
}

func insertByStart(unhandled []*Interval, iv *Interval) []*Interval {
	i := sort.Search(len(unhandled), func(i int) bool { return unhandled[i].From() >= iv.From() })
	unhandled = append(unhandled, nil)
	copy(unhandled[i+1:], unhandled[i:])
	unhandled[i] = iv
	return unhandled
}

// assignSpillSlots is the "second linear-scan pass over spilled
// intervals" spec §4.8 calls for: processed in start order, each
// spilled interval is given the smallest free same-size-class slot
// whose previous occupant's range has already ended, or a freshly
// grown slot if none is free yet. Size classes are 1/2/4/8 bytes
// (every scalar type this IR supports rounds up to one of those), so
// e.g. a spilled I8 and a spilled I64 never fight over the same slot
// pool even if their lifetimes do not overlap.
func assignSpillSlots(c *Context, spilled []*Interval) {
	sort.Slice(spilled, func(i, j int) bool { return spilled[i].From() < spilled[j].From() })

	free := map[uint8][]int32{1: nil, 2: nil, 4: nil, 8: nil}
	var nextIndex int32
	var entries []SpillSlot
	var active []*Interval

	for _, iv := range spilled {
		size := spillSizeClass(types.Size(c.vregType(iv.VReg)))

		var stillActive []*Interval
		for _, occ := range active {
			if occ.To() <= iv.From() {
				free[occ.SpillSize] = append(free[occ.SpillSize], occ.SpillSlot)
			} else {
				stillActive = append(stillActive, occ)
			}
		}
		active = stillActive

		if slots := free[size]; len(slots) > 0 {
			iv.SpillSlot = slots[len(slots)-1]
			free[size] = slots[:len(slots)-1]
		} else {
			iv.SpillSlot = nextIndex
			nextIndex++
			entries = append(entries, SpillSlot{Index: iv.SpillSlot, Size: size})
		}
		iv.SpillSize = size
		active = append(active, iv)
	}

	c.SpillSlots = entries
}

func spillSizeClass(n uint8) uint8 {
	switch {
	case n <= 1:
		return 1
	case n <= 2:
		return 2
	case n <= 4:
		return 4
	default:
		return 8
	}
}
