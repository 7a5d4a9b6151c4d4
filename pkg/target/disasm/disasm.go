// Package disasm turns the machine code pkg/target/x86asm or
// pkg/target/arm64asm produced back into a mnemonic listing, so
// `--dump-asm` has something to show without depending on an external
// objdump binary. Uses golang.org/x/arch's decoder packages, the
// Go-team-maintained peer of golang.org/x/sys already used by
// pkg/jitexec.
package disasm

import (
	"fmt"
	"strings"

	"golang.org/x/arch/arm64/arm64asm"
	"golang.org/x/arch/x86/x86asm"
)

// Line is one decoded instruction: its address, byte length, and text.
type Line struct {
	Addr uint64
	Len  int
	Text string
}

// AMD64 decodes code (starting at addr) as x86-64 instructions until
// the buffer is exhausted or a decode error stops it short.
func AMD64(code []byte, addr uint64) ([]Line, error) {
	var lines []Line
	for off := 0; off < len(code); {
		inst, err := x86asm.Decode(code[off:], 64)
		if err != nil {
			return lines, fmt.Errorf("disasm: amd64 decode at +%#x: %w", off, err)
		}
		lines = append(lines, Line{
			Addr: addr + uint64(off),
			Len:  inst.Len,
			Text: x86asm.GNUSyntax(inst, addr+uint64(off), nil),
		})
		off += inst.Len
	}
	return lines, nil
}

// ARM64 decodes code as little-endian AArch64 instructions, fixed
// 4-byte width per instruction.
func ARM64(code []byte, addr uint64) ([]Line, error) {
	var lines []Line
	for off := 0; off+4 <= len(code); off += 4 {
		inst, err := arm64asm.Decode(code[off : off+4])
		if err != nil {
			return lines, fmt.Errorf("disasm: arm64 decode at +%#x: %w", off, err)
		}
		lines = append(lines, Line{
			Addr: addr + uint64(off),
			Len:  4,
			Text: inst.String(),
		})
	}
	return lines, nil
}

// Format joins decoded lines into the `addr: bytes  text` listing
// -S/--dump-asm prints.
func Format(lines []Line, code []byte) string {
	var b strings.Builder
	off := 0
	for _, l := range lines {
		fmt.Fprintf(&b, "%08x: % x\t%s\n", l.Addr, code[off:off+l.Len], l.Text)
		off += l.Len
	}
	return b.String()
}
