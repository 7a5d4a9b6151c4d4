package ir

import (
	"math"

	"github.com/nir-project/nir/pkg/opcode"
	"github.com/nir-project/nir/pkg/types"
)

// cseMaxSteps bounds the backward walk along a local value-numbering
// chain (spec §4.1: "stopping when the offset exceeds 16 bits").
const cseMaxSteps = 1 << 16

// Fold is the folding construction surface (spec §4.1): when
// FlagOptFolding is set and op is foldable, constant folding and
// algebraic simplification run before falling back to local value
// numbering; otherwise Fold behaves like Emit plus CSE.
func (c *Context) Fold(op opcode.Op, typ types.Kind, op1, op2, op3 Ref) Ref {
	if c.Flags&FlagOptFolding != 0 && opcode.IsFoldable(op) {
		if ref, ok := c.tryFoldRules(op, typ, op1, op2, op3); ok {
			return ref
		}
	}
	return c.emitCSE(op, typ, op1, op2, op3)
}

// emitCSE appends op after checking the per-opcode local
// value-numbering chain (spec §4.1 "Local value numbering").
func (c *Context) emitCSE(op opcode.Op, typ types.Kind, op1, op2, op3 Ref) Ref {
	cur := c.lastOfOp[op]
	steps := 0
	for cur != RefNone && cur > c.cseFloor && steps < cseMaxSteps {
		insn := c.at(cur)
		if insn.Op1 == op1 && insn.Op2 == op2 && insn.Op3 == op3 {
			return cur
		}
		cur = insn.prevSameOp
		steps++
	}
	ref := c.append(Insn{Op: op, Typ: typ, Op1: op1, Op2: op2, Op3: op3})
	c.at(ref).prevSameOp = c.lastOfOp[op]
	c.lastOfOp[op] = ref
	return ref
}

// ResetCSE clears the local value-numbering search floor so CSE will
// not walk past the current arena tail. Context.Truncate calls this:
// once construction is done and the backing slices are compacted to
// their final capacity, there is no more growing tail for lastOfOp's
// chains to extend into, so the floor is reset to the (now frozen)
// end of the arena.
func (c *Context) ResetCSE() {
	c.cseFloor = Ref(len(c.code))
	for i := range c.lastOfOp {
		c.lastOfOp[i] = RefNone
	}
}

// tryFoldRules applies constant folding and algebraic simplification.
// It returns (ref, true) when it has a replacement; (0, false) tells
// Fold to fall back to plain CSE'd emission of the original operands.
func (c *Context) tryFoldRules(op opcode.Op, typ types.Kind, op1, op2, op3 Ref) (Ref, bool) {
	if c.Flags&FlagOptInSCCP != 0 {
		// SCCP borrows the folder but must not mutate the graph
		// (spec §4.1/§4.5): let the caller (sccp.go) interpret the
		// constant-ness of operands itself via evalConstBinary et al.
		return 0, false
	}

	d := opcode.Table[op]
	a1Const := c.isConstRef(op1)
	a2Const := op2 != RefNone && c.isConstRef(op2)

	switch d.Edges {
	case 1:
		if a1Const && opcode.IsFoldable(op) {
			if v, ok := evalUnary(op, typ, c.constBits(op1), c.TypeOf(op1)); ok {
				return c.constOf(typ, v), true
			}
		}
		return 0, false

	case 2:
		// Canonicalize commutative ops so a constant sits in op2.
		if d.Commutative && a1Const && !a2Const {
			op1, op2 = op2, op1
			a1Const, a2Const = a2Const, a1Const
		}
		if a1Const && a2Const {
			if v, ok := evalBinary(op, typ, c.constBits(op1), c.constBits(op2), c.TypeOf(op1)); ok {
				return c.constOf(typ, v), true
			}
		}
		if ref, ok := identitySimplify(c, op, typ, op1, op2); ok {
			return ref, true
		}
		return 0, false

	case 3:
		if op == opcode.Cond && a1Const {
			if c.constBits(op1) != 0 {
				return op2, true
			}
			return op3, true
		}
		return 0, false

	default:
		return 0, false
	}
}

func (c *Context) constBits(ref Ref) uint64 {
	if c.isConstRef(ref) {
		return c.constAt(ref).Bits
	}
	return 0
}

// identitySimplify covers the cheap algebraic identities spec §4.1
// names: "algebraic simplification, canonicalization ... identity
// elimination". op2 is assumed to have already been canonicalized to
// hold the constant side for commutative ops.
func identitySimplify(c *Context, op opcode.Op, typ types.Kind, op1, op2 Ref) (Ref, bool) {
	if op2 == RefNone || !c.isConstRef(op2) {
		return 0, false
	}
	k := c.constAt(op2)
	switch op {
	case opcode.Add, opcode.Sub, opcode.Or, opcode.Xor, opcode.Shl, opcode.Shr, opcode.Sar:
		if k.Bits == 0 {
			if op == opcode.Sub || op == opcode.Or || op == opcode.Xor || op == opcode.Shl || op == opcode.Shr || op == opcode.Sar || op == opcode.Add {
				return op1, true
			}
		}
	case opcode.Mul:
		if k.Bits == 0 {
			return c.constOf(typ, 0), true
		}
		if k.Bits == 1 {
			return op1, true
		}
	case opcode.Div:
		if k.Bits == 1 {
			return op1, true
		}
	case opcode.And:
		if k.Bits == 0 {
			return c.constOf(typ, 0), true
		}
		mask := fullMask(typ)
		if k.Bits&mask == mask {
			return op1, true
		}
	}
	return 0, false
}

func fullMask(k types.Kind) uint64 {
	sz := types.Size(k)
	if sz == 0 || sz >= 8 {
		return ^uint64(0)
	}
	return uint64(1)<<(sz*8) - 1
}

func signExtend(bits uint64, k types.Kind) int64 {
	sz := types.Size(k)
	if sz == 0 || sz >= 8 {
		return int64(bits)
	}
	shift := 64 - sz*8
	return int64(bits<<shift) >> shift
}

func toFloat(bits uint64, k types.Kind) float64 {
	if k == types.FLOAT {
		return float64(math.Float32frombits(uint32(bits)))
	}
	return math.Float64frombits(bits)
}

func fromFloat(v float64, k types.Kind) uint64 {
	if k == types.FLOAT {
		return uint64(math.Float32bits(float32(v)))
	}
	return math.Float64bits(v)
}

// evalBinary computes the constant result of a foldable two-operand
// opcode over raw bit patterns, interpreted according to srcKind.
func evalBinary(op opcode.Op, typ types.Kind, a, b uint64, srcKind types.Kind) (uint64, bool) {
	if types.IsFloat(srcKind) {
		fa, fb := toFloat(a, srcKind), toFloat(b, srcKind)
		switch op {
		case opcode.Add:
			return fromFloat(fa+fb, typ), true
		case opcode.Sub:
			return fromFloat(fa-fb, typ), true
		case opcode.Mul:
			return fromFloat(fa*fb, typ), true
		case opcode.Div:
			return fromFloat(fa/fb, typ), true
		case opcode.Min:
			return fromFloat(math.Min(fa, fb), typ), true
		case opcode.Max:
			return fromFloat(math.Max(fa, fb), typ), true
		case opcode.EQ:
			return boolBits(fa == fb), true
		case opcode.NE:
			return boolBits(fa != fb), true
		case opcode.LT:
			return boolBits(fa < fb), true
		case opcode.LE:
			return boolBits(fa <= fb), true
		case opcode.GT:
			return boolBits(fa > fb), true
		case opcode.GE:
			return boolBits(fa >= fb), true
		}
		return 0, false
	}

	mask := fullMask(typ)
	ua, ub := a&fullMask(srcKind), b&fullMask(srcKind)
	sa, sb := signExtend(a, srcKind), signExtend(b, srcKind)

	switch op {
	case opcode.Add:
		return (ua + ub) & mask, true
	case opcode.Sub:
		return (ua - ub) & mask, true
	case opcode.Mul:
		return (ua * ub) & mask, true
	case opcode.Div:
		if types.IsSigned(srcKind) {
			if sb == 0 {
				return 0, false
			}
			return uint64(sa/sb) & mask, true
		}
		if ub == 0 {
			return 0, false
		}
		return (ua / ub) & mask, true
	case opcode.Mod:
		if types.IsSigned(srcKind) {
			if sb == 0 {
				return 0, false
			}
			return uint64(sa%sb) & mask, true
		}
		if ub == 0 {
			return 0, false
		}
		return (ua % ub) & mask, true
	case opcode.And:
		return ua & ub & mask, true
	case opcode.Or:
		return (ua | ub) & mask, true
	case opcode.Xor:
		return (ua ^ ub) & mask, true
	case opcode.Shl:
		return (ua << (ub & 63)) & mask, true
	case opcode.Shr:
		return (ua >> (ub & 63)) & mask, true
	case opcode.Sar:
		return uint64(sa>>(ub&63)) & mask, true
	case opcode.Min:
		if types.IsSigned(srcKind) {
			if sa < sb {
				return ua, true
			}
			return ub, true
		}
		if ua < ub {
			return ua, true
		}
		return ub, true
	case opcode.Max:
		if types.IsSigned(srcKind) {
			if sa > sb {
				return ua, true
			}
			return ub, true
		}
		if ua > ub {
			return ua, true
		}
		return ub, true
	case opcode.EQ:
		return boolBits(ua == ub), true
	case opcode.NE:
		return boolBits(ua != ub), true
	case opcode.LT:
		return boolBits(sa < sb), true
	case opcode.LE:
		return boolBits(sa <= sb), true
	case opcode.GT:
		return boolBits(sa > sb), true
	case opcode.GE:
		return boolBits(sa >= sb), true
	case opcode.ULT:
		return boolBits(ua < ub), true
	case opcode.ULE:
		return boolBits(ua <= ub), true
	case opcode.UGT:
		return boolBits(ua > ub), true
	case opcode.UGE:
		return boolBits(ua >= ub), true
	}
	return 0, false
}

func evalUnary(op opcode.Op, typ types.Kind, a uint64, srcKind types.Kind) (uint64, bool) {
	mask := fullMask(typ)
	switch op {
	case opcode.Neg:
		if types.IsFloat(srcKind) {
			return fromFloat(-toFloat(a, srcKind), typ), true
		}
		return (^a + 1) & mask, true
	case opcode.Not:
		return (^a) & mask, true
	case opcode.SExt:
		return uint64(signExtend(a, srcKind)) & mask, true
	case opcode.ZExt:
		return a & fullMask(srcKind) & mask, true
	case opcode.Trunc, opcode.Bitcast:
		return a & mask, true
	case opcode.Int2Fp:
		if types.IsSigned(srcKind) {
			return fromFloat(float64(signExtend(a, srcKind)), typ), true
		}
		return fromFloat(float64(a&fullMask(srcKind)), typ), true
	case opcode.Fp2Int:
		v := toFloat(a, srcKind)
		if types.IsSigned(typ) {
			return uint64(int64(v)) & mask, true
		}
		return uint64(v) & mask, true
	case opcode.Fp2Fp:
		return fromFloat(toFloat(a, srcKind), typ), true
	}
	return 0, false
}

func boolBits(v bool) uint64 {
	if v {
		return 1
	}
	return 0
}
