package analysis

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"github.com/charmbracelet/log"

	"sigga/internal/disasm"
	"sigga/internal/elfx"
	"sigga/internal/signature"
)

// FuncSource records where a function boundary came from.
type FuncSource string

const (
	SourceSymtab     FuncSource = "symtab"
	SourceDynsym     FuncSource = "dynsym"
	SourceDiscovered FuncSource = "call-target"
	SourceEntry      FuncSource = "entry"
)

// Func is one entry of the function table.
type Func struct {
	signature.Function
	Mangled string
	Source  FuncSource
}

// FunctionTable is an address-sorted list of functions.
type FunctionTable struct {
	funcs []Func
}

// Funcs returns the table in address order.
func (t *FunctionTable) Funcs() []Func {
	return t.funcs
}

// Len returns the number of functions.
func (t *FunctionTable) Len() int {
	return len(t.funcs)
}

// Containing returns the innermost function whose range holds addr.
func (t *FunctionTable) Containing(addr uint64) (Func, bool) {
	i, _ := slices.BinarySearchFunc(t.funcs, addr, func(f Func, a uint64) int {
		return cmp.Compare(f.Range.Start, a)
	})
	// i is the first start > addr, or the first start == addr.
	if i < len(t.funcs) && t.funcs[i].Range.Start == addr {
		return t.funcs[i], true
	}
	for j := i - 1; j >= 0; j-- {
		if t.funcs[j].Range.Contains(addr) {
			return t.funcs[j], true
		}
	}
	return Func{}, false
}

// ByName finds a function by its raw or demangled name.
func (t *FunctionTable) ByName(name string) (Func, bool) {
	for _, f := range t.funcs {
		if f.Mangled == name || f.Name == name {
			return f, true
		}
	}
	return Func{}, false
}

// Filter returns the functions whose name contains substr, case-insensitively.
func (t *FunctionTable) Filter(substr string) []Func {
	if substr == "" {
		return t.funcs
	}
	substr = strings.ToLower(substr)
	var out []Func
	for _, f := range t.funcs {
		if strings.Contains(strings.ToLower(f.Name), substr) || strings.Contains(strings.ToLower(f.Mangled), substr) {
			out = append(out, f)
		}
	}
	return out
}

// Symbol implements disasm.SymLookup.
func (t *FunctionTable) Symbol(addr uint64) (string, uint64) {
	if f, ok := t.Containing(addr); ok {
		return f.Name, f.Range.Start
	}
	return "", 0
}

type start struct {
	addr   uint64
	size   uint64
	name   string
	source FuncSource
}

// BuildFunctionTable collects function boundaries from the symbol tables.
// Sized function symbols keep their size; unsized ones and, when the image has
// no function symbols at all, the direct call targets found in .text extend
// to the next known start.
func BuildFunctionTable(im *elfx.Image, arch disasm.Arch, logger *log.Logger) (*FunctionTable, error) {
	var starts []start
	for _, s := range im.Syms {
		if !s.Func || !im.IsExec(s.Addr) {
			continue
		}
		src := SourceSymtab
		if s.Dynamic {
			src = SourceDynsym
		}
		starts = append(starts, start{addr: s.Addr, size: s.Size, name: s.Name, source: src})
	}

	if len(starts) == 0 {
		found, err := discoverCallTargets(im, arch)
		if err != nil {
			return nil, err
		}
		starts = append(starts, found...)
		if logger != nil {
			logger.Debug("no function symbols, using call targets", "functions", len(found))
		}
	}

	return buildTable(starts, im), nil
}

func buildTable(starts []start, im *elfx.Image) *FunctionTable {
	// Sort by address; at equal addresses sized, then named entries win.
	slices.SortStableFunc(starts, func(a, b start) int {
		if c := cmp.Compare(a.addr, b.addr); c != 0 {
			return c
		}
		if c := cmp.Compare(b.size, a.size); c != 0 {
			return c
		}
		return cmp.Compare(named(b), named(a))
	})
	starts = slices.CompactFunc(starts, func(a, b start) bool {
		return a.addr == b.addr
	})

	t := &FunctionTable{funcs: make([]Func, 0, len(starts))}
	for i, s := range starts {
		end := s.addr + s.size
		if s.size == 0 {
			end = segmentEnd(im, s.addr)
			if i+1 < len(starts) && starts[i+1].addr < end {
				end = starts[i+1].addr
			}
		}
		if end <= s.addr {
			continue
		}
		name := s.name
		if name == "" {
			name = fmt.Sprintf("sub_%x", s.addr)
		}
		t.funcs = append(t.funcs, Func{
			Function: signature.Function{
				Name:  CachedDemangle(name),
				Range: signature.AddressRange{Start: s.addr, End: end},
			},
			Mangled: name,
			Source:  s.source,
		})
	}
	return t
}

func named(s start) int {
	if s.name != "" {
		return 1
	}
	return 0
}

func segmentEnd(im *elfx.Image, addr uint64) uint64 {
	if im.Text.Size != 0 && im.Text.Range().Contains(addr) {
		return im.Text.VA + im.Text.Size
	}
	for _, l := range im.Loads {
		if l.Range().Contains(addr) {
			return l.Vaddr + l.Filesz
		}
	}
	return addr
}

// discoverCallTargets sweeps .text for direct calls and returns their targets
// plus the entry point and the start of .text.
func discoverCallTargets(im *elfx.Image, arch disasm.Arch) ([]start, error) {
	text := im.Text.Range()
	if text.Empty() {
		return nil, fmt.Errorf("no executable code in %s", im.Path)
	}
	code, err := im.ReadBytes(text.Start, int(text.Len()))
	if err != nil {
		return nil, fmt.Errorf("read .text: %w", err)
	}
	insns, err := disasm.Decode(arch, code, text.Start, disasm.Options{})
	if err != nil {
		return nil, err
	}

	starts := []start{{addr: text.Start, source: SourceEntry}}
	if im.File != nil && text.Contains(im.File.Entry) {
		starts = append(starts, start{addr: im.File.Entry, name: "entry", source: SourceEntry})
	}
	for _, in := range insns {
		if in.Call && text.Contains(in.Target) && !im.IsPLTEntry(in.Target) {
			starts = append(starts, start{addr: in.Target, source: SourceDiscovered})
		}
	}
	return starts, nil
}
