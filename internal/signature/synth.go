package signature

import (
	"fmt"
	"iter"
	"strings"
)

// Tokens yields one token per instruction byte: the byte in hex when the
// instruction is a plain fallthrough, a wildcard otherwise. The number of tokens
// always equals the number of encoded bytes, so the signature spans exactly the
// instructions it was built from.
func Tokens(insns iter.Seq[Instruction]) iter.Seq[string] {
	return func(yield func(string) bool) {
		for insn := range insns {
			for _, b := range insn.Bytes {
				tok := Wildcard
				if insn.Fallthrough {
					tok = fmt.Sprintf("%02X", b)
				}
				if !yield(tok) {
					return
				}
			}
		}
	}
}

// Synthesize builds signature text for an instruction stream. Every token is
// followed by a single space, including the last one; Minimize and Compile both
// ignore it.
func Synthesize(insns iter.Seq[Instruction]) string {
	var sb strings.Builder
	for tok := range Tokens(insns) {
		sb.WriteString(tok)
		sb.WriteByte(' ')
	}
	return sb.String()
}
