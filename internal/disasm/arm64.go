package disasm

import (
	"fmt"
	"strings"

	"golang.org/x/arch/arm64/arm64asm"
)

var arm64Branches = map[arm64asm.Op]bool{
	arm64asm.B:    true,
	arm64asm.BL:   true,
	arm64asm.BR:   true,
	arm64asm.BLR:  true,
	arm64asm.RET:  true,
	arm64asm.CBZ:  true,
	arm64asm.CBNZ: true,
	arm64asm.TBZ:  true,
	arm64asm.TBNZ: true,
}

func decodeARM64(code []byte, va uint64, opts Options) Stream {
	const insnLen = 4
	var out Stream

	off := 0
	for ; off+insnLen <= len(code); off += insnLen {
		addr := va + uint64(off)
		raw := code[off : off+insnLen]

		inst, err := arm64asm.Decode(raw)
		if err != nil {
			out = append(out, badInst(raw, addr))
			continue
		}

		in := Inst{
			VA:   addr,
			Text: strings.ToLower(inst.String()),
			Op:   strings.ToLower(inst.Op.String()),
			Raw:  raw,
		}
		in.Fallthrough = !arm64Branches[inst.Op]

		if target, ok := pcRelTarget(inst, addr); ok {
			in.Text += fmt.Sprintf(" ; 0x%x", target)
			if opts.Symbols != nil {
				if name, base := opts.Symbols(target); name != "" {
					in.Text += " <" + symOffset(name, target-base) + ">"
				}
			}
			// B, BL, CBZ... are already branches; ADR, ADRP and literal loads are
			// the position dependent rest.
			if opts.Strict {
				in.Fallthrough = false
			}
			if inst.Op == arm64asm.BL {
				in.Call = true
				in.Target = target
			}
		}

		out = append(out, in)
	}

	// A trailing partial word cannot be an instruction.
	if off < len(code) {
		out = append(out, badInst(code[off:], va+uint64(off)))
	}
	return out
}

func pcRelTarget(inst arm64asm.Inst, addr uint64) (uint64, bool) {
	for _, arg := range inst.Args {
		if arg == nil {
			break
		}
		if rel, ok := arg.(arm64asm.PCRel); ok {
			if inst.Op == arm64asm.ADRP {
				return uint64(int64(addr)+int64(rel)) &^ 0xfff, true
			}
			return addr + uint64(int64(rel)), true
		}
	}
	return 0, false
}

func symOffset(name string, off uint64) string {
	if off == 0 {
		return name
	}
	return fmt.Sprintf("%s+0x%x", name, off)
}
