package disasm

import (
	"strings"

	"golang.org/x/arch/x86/x86asm"
)

// amd64Branches never fall through to the next instruction alone.
var amd64Branches = map[x86asm.Op]bool{
	x86asm.CALL: true, x86asm.LCALL: true,
	x86asm.JMP: true, x86asm.LJMP: true,
	x86asm.RET: true, x86asm.LRET: true,
	x86asm.IRET: true, x86asm.IRETD: true, x86asm.IRETQ: true,
	x86asm.JA: true, x86asm.JAE: true, x86asm.JB: true, x86asm.JBE: true,
	x86asm.JCXZ: true, x86asm.JECXZ: true, x86asm.JRCXZ: true,
	x86asm.JE: true, x86asm.JNE: true,
	x86asm.JG: true, x86asm.JGE: true, x86asm.JL: true, x86asm.JLE: true,
	x86asm.JO: true, x86asm.JNO: true, x86asm.JP: true, x86asm.JNP: true,
	x86asm.JS: true, x86asm.JNS: true,
	x86asm.LOOP: true, x86asm.LOOPE: true, x86asm.LOOPNE: true,
	x86asm.HLT: true, x86asm.UD2: true, x86asm.INT: true,
}

// endbr reports an ENDBR64/ENDBR32 at the start of code; x86asm does not know them.
func endbr(code []byte) (string, bool) {
	if len(code) < 4 || code[0] != 0xf3 || code[1] != 0x0f || code[2] != 0x1e {
		return "", false
	}
	switch code[3] {
	case 0xfa:
		return "endbr64", true
	case 0xfb:
		return "endbr32", true
	}
	return "", false
}

func decodeAMD64(code []byte, va uint64, opts Options) Stream {
	var out Stream
	lookup := x86asm.SymLookup(func(uint64) (string, uint64) { return "", 0 })
	if opts.Symbols != nil {
		lookup = x86asm.SymLookup(opts.Symbols)
	}

	for off := 0; off < len(code); {
		addr := va + uint64(off)

		if name, ok := endbr(code[off:]); ok {
			out = append(out, Inst{VA: addr, Text: name, Op: name, Raw: code[off : off+4], Fallthrough: true})
			off += 4
			continue
		}

		inst, err := x86asm.Decode(code[off:], 64)
		if err != nil || inst.Len == 0 {
			out = append(out, badInst(code[off:off+1], addr))
			off++
			continue
		}

		in := Inst{
			VA:   addr,
			Text: x86asm.IntelSyntax(inst, addr, lookup),
			Op:   strings.ToLower(inst.Op.String()),
			Raw:  code[off : off+inst.Len],
		}
		in.Fallthrough = !amd64Branches[inst.Op]
		if opts.Strict && in.Fallthrough && amd64References(inst) {
			in.Fallthrough = false
		}
		if inst.Op == x86asm.CALL {
			if rel, ok := inst.Args[0].(x86asm.Rel); ok {
				in.Call = true
				in.Target = addr + uint64(inst.Len) + uint64(int64(rel))
			}
		}

		out = append(out, in)
		off += inst.Len
	}
	return out
}

// amd64References reports RIP-relative or absolute memory operands.
func amd64References(inst x86asm.Inst) bool {
	for _, arg := range inst.Args {
		if arg == nil {
			break
		}
		if m, ok := arg.(x86asm.Mem); ok {
			if m.Base == x86asm.RIP || (m.Base == 0 && m.Index == 0 && m.Disp != 0) {
				return true
			}
		}
	}
	return false
}
