// Package analysis ties an ELF image to an instruction decoder and a function
// table. Program is the instruction source and function resolver used by the
// signature engine.
package analysis

import (
	"fmt"

	"github.com/charmbracelet/log"

	"sigga/internal/disasm"
	"sigga/internal/elfx"
	"sigga/internal/signature"
)

// Options configures a Program.
type Options struct {
	// Arch overrides the architecture from the ELF header.
	Arch disasm.Arch
	// Strict wildcards PC-relative data references as well as branches.
	Strict bool
	Logger *log.Logger
}

// Program is a decoded view of an image.
type Program struct {
	Image *elfx.Image
	Arch  disasm.Arch
	Funcs *FunctionTable

	strict bool
	logger *log.Logger
}

var (
	_ signature.InstructionSource = (*Program)(nil)
	_ signature.FunctionResolver  = (*Program)(nil)
)

// NewProgram picks a decoder for im and builds its function table.
func NewProgram(im *elfx.Image, opts Options) (*Program, error) {
	arch := opts.Arch
	if arch == disasm.ArchUnknown {
		a, err := disasm.ArchForMachine(im.Machine)
		if err != nil {
			return nil, err
		}
		arch = a
	}

	funcs, err := BuildFunctionTable(im, arch, opts.Logger)
	if err != nil {
		return nil, fmt.Errorf("build function table: %w", err)
	}
	if opts.Logger != nil {
		opts.Logger.Debug("loaded program",
			"path", im.Path,
			"arch", arch,
			"functions", funcs.Len(),
			"text", im.Text.Range().String())
	}

	return &Program{
		Image:  im,
		Arch:   arch,
		Funcs:  funcs,
		strict: opts.Strict,
		logger: opts.Logger,
	}, nil
}

// Decode disassembles r with the program's settings.
func (p *Program) Decode(r signature.AddressRange) (disasm.Stream, error) {
	if r.Empty() {
		return nil, nil
	}
	code, err := p.Image.ReadBytes(r.Start, int(r.Len()))
	if err != nil {
		return nil, err
	}
	return disasm.Decode(p.Arch, code, r.Start, disasm.Options{
		Strict:  p.strict,
		Symbols: p.Funcs.Symbol,
	})
}

// Instructions implements signature.InstructionSource. The last instruction
// is cut at r.End, so the result covers r exactly.
func (p *Program) Instructions(r signature.AddressRange) ([]signature.Instruction, error) {
	stream, err := p.Decode(r)
	if err != nil {
		return nil, err
	}
	out := make([]signature.Instruction, 0, len(stream))
	for _, in := range stream {
		out = append(out, signature.Instruction{
			Address:     in.VA,
			Bytes:       in.Raw,
			Fallthrough: in.Fallthrough,
			Text:        in.Text,
		})
	}
	return out, nil
}

// FunctionContaining implements signature.FunctionResolver.
func (p *Program) FunctionContaining(addr uint64) (signature.Function, bool) {
	f, ok := p.Funcs.Containing(addr)
	return f.Function, ok
}
