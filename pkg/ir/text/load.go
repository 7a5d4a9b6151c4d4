package text

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/nir-project/nir/pkg/ir"
	"github.com/nir-project/nir/pkg/nirerr"
	"github.com/nir-project/nir/pkg/opcode"
	"github.com/nir-project/nir/pkg/types"
)

// Load parses the textual format Save produces back into a fresh
// Context. It is deliberately a single forward pass: every operand
// token already names its target's final ref number (c_N/d_N/l_N), so
// no relocation pass is needed even for a loop PHI whose operand is
// defined later in the file than the PHI itself (spec §3's loop-carried
// forward reference) — Load only assigns Refs in file order, and Save
// always writes the arena in ref order, so replaying the file in order
// reproduces the same numbering.
func Load(r io.Reader) (*ir.Context, error) {
	c := ir.New(ir.FlagOptFolding, 8, 16)
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)

	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || text == "{" || text == "}" {
			continue
		}
		text = strings.TrimSuffix(text, ";")
		if err := loadLine(c, text, line); err != nil {
			return nil, err
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	c.FinalizeGraph()
	return c, nil
}

// loadLine parses one statement: a constant declaration
// ("type c_N = literal"), a control-labeled instruction ("l_N = OP(..)"),
// a data-producing instruction ("type d_N = OP(..)"), or a bare
// void-typed instruction statement ("OP(..)"), distinguishing them by
// the left-hand side of the first " = " (if any), never by scanning
// the whole line for "c_"/"d_" substrings that could also appear among
// an instruction's own operands.
func loadLine(c *ir.Context, text string, line int) error {
	eq := strings.Index(text, " = ")
	if eq < 0 {
		return loadInsn(c, text, line, "")
	}
	lhs := strings.Fields(text[:eq])
	switch len(lhs) {
	case 1:
		if strings.HasPrefix(lhs[0], "l_") {
			return loadInsn(c, text, line, "")
		}
	case 2:
		if strings.HasPrefix(lhs[1], "c_") {
			return loadConst(c, text, line)
		}
		if strings.HasPrefix(lhs[1], "d_") {
			return loadInsn(c, text, line, lhs[0])
		}
	}
	return parseErr(line, "malformed statement: %q", text)
}

func loadConst(c *ir.Context, text string, line int) error {
	eq := strings.Index(text, " = ")
	if eq < 0 {
		return parseErr(line, "malformed constant declaration: %q", text)
	}
	head := strings.Fields(text[:eq])
	if len(head) != 2 {
		return parseErr(line, "malformed constant header: %q", text)
	}
	typeWord, _ := head[0], head[1]
	k, ok := types.Parse(typeWord)
	if !ok {
		return parseErr(line, "unknown type %q", typeWord)
	}
	val := strings.TrimSpace(text[eq+3:])

	switch k {
	case types.BOOL:
		c.ConstBool(val == "true")
	case types.FLOAT:
		f, err := strconv.ParseFloat(val, 32)
		if err != nil {
			return parseErr(line, "bad float constant %q: %v", val, err)
		}
		c.ConstFloat(float32(f))
	case types.DOUBLE:
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return parseErr(line, "bad double constant %q: %v", val, err)
		}
		c.ConstDouble(f)
	case types.ADDR:
		n, err := strconv.ParseUint(val, 10, 64)
		if err != nil {
			return parseErr(line, "bad addr constant %q: %v", val, err)
		}
		c.ConstAddr(n)
	default:
		n, err := strconv.ParseInt(val, 10, 64)
		if err != nil {
			return parseErr(line, "bad integer constant %q: %v", val, err)
		}
		c.ConstInt(k, n)
	}
	return nil
}

// loadInsn parses "[l_N =] OPNAME[(args)]" or "type d_N = OPNAME(args)",
// emits the instruction, and fixes up Aux/operands that the opcode
// needs specific handling for (PARAM's index, PHI/MERGE/CALL's
// variadic operand count).
func loadInsn(c *ir.Context, text string, line int, typeWord string) error {
	rest := text
	if eq := strings.Index(rest, " = "); eq >= 0 {
		rest = rest[eq+3:]
	}
	name, argsText := splitCall(rest)
	op, ok := opcode.Parse(name)
	if !ok {
		return parseErr(line, "unknown opcode %q", name)
	}
	args := splitArgs(argsText)

	typ := types.VOID
	if typeWord != "" {
		k, ok := types.Parse(typeWord)
		if !ok {
			return parseErr(line, "unknown type %q", typeWord)
		}
		typ = k
	}

	d := opcode.Table[op]
	count := len(args)
	var ref ir.Ref
	if d.Edges == opcode.EdgesVariadic || d.Edges == opcode.EdgesPhi {
		ref = c.EmitN(op, typ, count)
	} else {
		ref = c.EmitN(op, typ, 3)
	}

	if op == opcode.Param {
		if count != 1 {
			return parseErr(line, "PARAM expects exactly one argument")
		}
		n, err := strconv.Atoi(args[0])
		if err != nil {
			return parseErr(line, "bad PARAM index %q: %v", args[0], err)
		}
		c.SetAux(ref, uint16(n))
		return nil
	}

	for i, tok := range args {
		opRef, err := resolveToken(c, tok, line)
		if err != nil {
			return err
		}
		c.SetOp(ref, i, opRef)
	}
	return nil
}

// splitCall separates "NAME" from an optional "(args)" suffix.
func splitCall(s string) (name, args string) {
	i := strings.IndexByte(s, '(')
	if i < 0 {
		return strings.TrimSpace(s), ""
	}
	name = strings.TrimSpace(s[:i])
	j := strings.LastIndexByte(s, ')')
	if j < i {
		j = len(s)
	}
	return name, s[i+1 : j]
}

func splitArgs(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		out = append(out, strings.TrimSpace(p))
	}
	return out
}

// resolveToken turns one operand token into a Ref: "c_N" (constant),
// "d_N"/"l_N" (a previously-created instruction, by construction the
// same ref number Load is about to assign the Nth line to), "null", or
// a bare integer (CASE_VAL/NUM-kind operand, passed through as a Ref
// so generic opcodes round-trip numeric operands too).
func resolveToken(c *ir.Context, tok string, line int) (ir.Ref, error) {
	switch {
	case tok == "null" || tok == "":
		return ir.RefNone, nil
	case strings.HasPrefix(tok, "c_"):
		n, err := strconv.Atoi(tok[2:])
		if err != nil {
			return 0, parseErr(line, "bad constant ref %q: %v", tok, err)
		}
		return ir.Ref(-n), nil
	case strings.HasPrefix(tok, "d_"), strings.HasPrefix(tok, "l_"):
		n, err := strconv.Atoi(tok[2:])
		if err != nil {
			return 0, parseErr(line, "bad ref %q: %v", tok, err)
		}
		return ir.Ref(n), nil
	default:
		n, err := strconv.Atoi(tok)
		if err != nil {
			return 0, parseErr(line, "unrecognized operand token %q: %v", tok, err)
		}
		return ir.Ref(n), nil
	}
}

func parseErr(line int, format string, args ...any) error {
	return &nirerr.ParseError{Line: line, Message: fmt.Sprintf(format, args...)}
}
