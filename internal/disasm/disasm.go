// Package disasm defines a common instruction representation used
// across architecture-specific disassemblers.
package disasm

import (
	"debug/elf"
	"fmt"
	"strings"
)

// Arch selects the instruction set to decode.
type Arch int

const (
	ArchUnknown Arch = iota
	ArchAMD64
	ArchARM64
)

func (a Arch) String() string {
	switch a {
	case ArchAMD64:
		return "amd64"
	case ArchARM64:
		return "arm64"
	default:
		return "unknown"
	}
}

// ParseArch accepts the names used on the command line and in config files.
// An empty string returns ArchUnknown so callers can fall back to the ELF header.
func ParseArch(s string) (Arch, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return ArchUnknown, nil
	case "amd64", "x86_64", "x86-64", "x64":
		return ArchAMD64, nil
	case "arm64", "aarch64":
		return ArchARM64, nil
	default:
		return ArchUnknown, fmt.Errorf("unsupported architecture %q", s)
	}
}

// ArchForMachine maps an ELF machine to a decoder.
func ArchForMachine(m elf.Machine) (Arch, error) {
	switch m {
	case elf.EM_X86_64:
		return ArchAMD64, nil
	case elf.EM_AARCH64:
		return ArchARM64, nil
	default:
		return ArchUnknown, fmt.Errorf("unsupported ELF machine: %s", m)
	}
}

// Inst is a simplified decoded instruction.
type Inst struct {
	VA   uint64 // virtual address of instruction
	Text string // formatted disassembly string
	Op   string // mnemonic in lowercase
	Raw  []byte // raw encoding, len(Raw) is the instruction length

	// Fallthrough is set when control only continues to the next instruction
	// and, in strict mode, no position dependent operand is encoded.
	Fallthrough bool

	// Call and Target describe direct calls; Target is valid when Call is set.
	Call   bool
	Target uint64

	// Bad marks bytes the decoder could not make sense of.
	Bad bool
}

// Len returns the encoded length.
func (in Inst) Len() int {
	return len(in.Raw)
}

// Stream is a linear sequence of instructions.
type Stream []Inst

// SymLookup resolves an address to a symbol name and its base, for operand text.
type SymLookup func(addr uint64) (name string, base uint64)

// Options tunes decoding.
type Options struct {
	// Strict also clears Fallthrough on instructions that encode PC-relative or
	// absolute data references.
	Strict bool

	// Symbols, if set, is used to name branch targets in Text.
	Symbols SymLookup
}

// Decode linearly disassembles code mapped at va. Undecodable bytes are emitted
// as Bad, non-fallthrough records so the stream always covers code exactly.
func Decode(arch Arch, code []byte, va uint64, opts Options) (Stream, error) {
	switch arch {
	case ArchAMD64:
		return decodeAMD64(code, va, opts), nil
	case ArchARM64:
		return decodeARM64(code, va, opts), nil
	default:
		return nil, fmt.Errorf("decode: unsupported architecture %s", arch)
	}
}

func badInst(code []byte, va uint64) Inst {
	return Inst{VA: va, Text: "(bad)", Op: "(bad)", Raw: code, Bad: true}
}
