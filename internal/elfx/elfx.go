// Package elfx provides helpers for opening ELF binaries, locating sections, and mapping virtual addresses to file offsets.
package elfx

import (
	"bytes"
	"debug/elf"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strings"
	"syscall"

	"github.com/zeebo/blake3"

	"sigga/internal/signature"
)

type Image struct {
	Path        string
	File        *elf.File
	All         []byte
	Machine     elf.Machine
	Loads       []Seg
	Text        Section
	PLT         Section
	Syms        []Sym
	Compression string // "", "gzip", "zstd" or "zip"

	regions []signature.AddressRange
	mapped  bool
	f       *os.File
}

type Seg struct {
	Vaddr, Off, Filesz uint64
	Flags              elf.ProgFlag
}

// Range returns the file-backed part of the segment.
func (s Seg) Range() signature.AddressRange {
	return signature.AddressRange{Start: s.Vaddr, End: s.Vaddr + s.Filesz}
}

type Section struct {
	Name          string
	VA, Off, Size uint64
}

// Range returns the section's address range.
func (s Section) Range() signature.AddressRange {
	return signature.AddressRange{Start: s.VA, End: s.VA + s.Size}
}

// Sym is a defined symbol from .dynsym or .symtab.
type Sym struct {
	Name    string
	Addr    uint64
	Size    uint64
	Func    bool
	Dynamic bool
}

// Open maps path and parses it as ELF. gzip, zstd and zip wrapped images are
// decompressed into memory first.
func Open(path string) (*Image, error) {
	of, err := os.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}

	fi, err := of.Stat()
	if err != nil {
		of.Close()
		return nil, fmt.Errorf("stat file: %w", err)
	}
	if fi.Size() == 0 {
		of.Close()
		return nil, fmt.Errorf("open elf: %s is empty", path)
	}

	all, err := syscall.Mmap(int(of.Fd()), 0, int(fi.Size()), syscall.PROT_READ, syscall.MAP_SHARED)
	if err != nil {
		of.Close()
		return nil, fmt.Errorf("mmap file: %w", err)
	}

	im := &Image{Path: path, All: all, mapped: true, f: of}

	data, kind, err := detectAndDecompress(all)
	if err != nil {
		im.Close()
		return nil, fmt.Errorf("decompress %s: %w", path, err)
	}
	if kind != "" {
		slog.Debug("Decompressed image", "file", path, "format", kind,
			"original_size", len(all), "decompressed_size", len(data))
		// The mapping is no longer needed once the image lives in memory.
		syscall.Munmap(all)
		of.Close()
		im.All, im.mapped, im.f = data, false, nil
		im.Compression = kind
	}

	if err := im.parse(); err != nil {
		im.Close()
		return nil, err
	}
	return im, nil
}

// OpenBytes parses an in-memory image, compressed or not.
func OpenBytes(name string, raw []byte) (*Image, error) {
	data, kind, err := detectAndDecompress(raw)
	if err != nil {
		return nil, fmt.Errorf("decompress %s: %w", name, err)
	}
	im := &Image{Path: name, All: data, Compression: kind}
	if err := im.parse(); err != nil {
		return nil, err
	}
	return im, nil
}

func (im *Image) parse() error {
	f, err := elf.NewFile(bytes.NewReader(im.All))
	if err != nil {
		return fmt.Errorf("open elf: %w", err)
	}
	im.File = f
	im.Machine = f.Machine

	for _, p := range f.Progs {
		if p.Type != elf.PT_LOAD {
			continue
		}
		// Segments claiming bytes past the end of a truncated file are clipped.
		filesz := p.Filesz
		if p.Off >= uint64(len(im.All)) {
			filesz = 0
		} else if p.Off+filesz > uint64(len(im.All)) {
			filesz = uint64(len(im.All)) - p.Off
		}
		im.Loads = append(im.Loads, Seg{
			Vaddr:  p.Vaddr,
			Off:    p.Off,
			Filesz: filesz,
			Flags:  p.Flags,
		})
	}
	slices.SortFunc(im.Loads, func(a, b Seg) int {
		switch {
		case a.Vaddr < b.Vaddr:
			return -1
		case a.Vaddr > b.Vaddr:
			return 1
		}
		return 0
	})
	im.regions = mergeRegions(im.Loads)

	// Use true sections if present.
	for _, s := range f.Sections {
		switch s.Name {
		case ".text":
			im.Text = Section{s.Name, s.Addr, s.Offset, s.Size}
		case ".plt", ".plt.sec":
			if im.PLT.Size == 0 {
				im.PLT = Section{s.Name, s.Addr, s.Offset, s.Size}
			}
		}
	}

	im.loadDynamicSymbols()
	im.loadStaticSymbols()
	im.dedupSymbols()

	// Fallback if stripped of section headers.
	if im.Text.Size == 0 {
		for _, l := range im.Loads {
			if l.Flags&elf.PF_X != 0 && l.Filesz > 0 {
				im.Text = Section{"LOAD(exec)", l.Vaddr, l.Off, l.Filesz}
				break
			}
		}
	}
	return nil
}

// Close unmaps the memory and closes the underlying files.
func (im *Image) Close() error {
	var err1, err2 error
	if im.All != nil && im.mapped {
		err1 = syscall.Munmap(im.All)
	}
	im.All = nil
	if im.f != nil {
		err2 = im.f.Close()
		im.f = nil
	}
	if im.File != nil {
		err3 := im.File.Close()
		if err3 != nil && err2 == nil {
			err2 = err3
		}
		im.File = nil
	}
	if err1 != nil {
		return err1
	}
	return err2
}

// Digest returns the hex BLAKE3-256 of the (decompressed) image bytes.
func (im *Image) Digest() string {
	sum := blake3.Sum256(im.All)
	return hex.EncodeToString(sum[:])
}

// SliceVA returns a subslice of the mapped file corresponding to the virtual address range [va, va+size).
// It returns (nil, false) if the VA is unmapped or the range leaves its segment.
func (im *Image) SliceVA(va uint64, size uint64) ([]byte, bool) {
	for _, l := range im.Loads {
		if va < l.Vaddr || va >= l.Vaddr+l.Filesz {
			continue
		}
		if size == 0 {
			return []byte{}, true
		}
		if size > l.Vaddr+l.Filesz-va {
			return nil, false
		}
		off := l.Off + (va - l.Vaddr)
		return im.All[off : off+size], true
	}
	return nil, false
}

// ReadBytes reads exactly n bytes at addr. Reads may cross between segments
// that are contiguous in memory; anything else not backed by the file fails
// with signature.ErrMemoryUnavailable.
func (im *Image) ReadBytes(addr uint64, n int) ([]byte, error) {
	if n < 0 {
		return nil, fmt.Errorf("read 0x%x+%d: %w", addr, n, signature.ErrMemoryUnavailable)
	}
	if b, ok := im.SliceVA(addr, uint64(n)); ok {
		return b, nil
	}

	out := make([]byte, 0, n)
	for cur := addr; len(out) < n; {
		l, ok := im.segmentAt(cur)
		if !ok {
			return nil, fmt.Errorf("read 0x%x+%d: 0x%x unmapped: %w", addr, n, cur, signature.ErrMemoryUnavailable)
		}
		take := min(uint64(n-len(out)), l.Vaddr+l.Filesz-cur)
		off := l.Off + (cur - l.Vaddr)
		out = append(out, im.All[off:off+take]...)
		cur += take
	}
	return out, nil
}

func (im *Image) segmentAt(va uint64) (Seg, bool) {
	for _, l := range im.Loads {
		if va >= l.Vaddr && va < l.Vaddr+l.Filesz {
			return l, true
		}
	}
	return Seg{}, false
}

// Bounds returns the span from the lowest to one past the highest file-backed
// loaded address.
func (im *Image) Bounds() signature.AddressRange {
	if len(im.regions) == 0 {
		return signature.AddressRange{}
	}
	return signature.AddressRange{Start: im.regions[0].Start, End: im.regions[len(im.regions)-1].End}
}

// Regions returns the file-backed loaded ranges, sorted and merged.
func (im *Image) Regions() []signature.AddressRange {
	return im.regions
}

func mergeRegions(loads []Seg) []signature.AddressRange {
	var out []signature.AddressRange
	for _, l := range loads {
		if l.Filesz == 0 {
			continue
		}
		r := l.Range()
		if n := len(out); n > 0 && r.Start <= out[n-1].End {
			out[n-1].End = max(out[n-1].End, r.End)
			continue
		}
		out = append(out, r)
	}
	return out
}

// IsPLTEntry returns true if the given virtual address lies within
// the PLT section, indicating it's a dynamically linked function stub.
func (im *Image) IsPLTEntry(va uint64) bool {
	return im.PLT.Size != 0 && im.PLT.Range().Contains(va)
}

// IsExec reports whether va is in an executable, file-backed segment.
func (im *Image) IsExec(va uint64) bool {
	l, ok := im.segmentAt(va)
	return ok && l.Flags&elf.PF_X != 0
}

// loadDynamicSymbols loads defined symbols from .dynsym.
func (im *Image) loadDynamicSymbols() {
	if im.File.Section(".dynsym") == nil {
		return
	}
	dynsyms, err := im.File.DynamicSymbols()
	if err != nil {
		return
	}
	for _, sym := range dynsyms {
		if s, ok := convertSym(sym); ok {
			s.Dynamic = true
			im.Syms = append(im.Syms, s)
		}
	}
}

// loadStaticSymbols loads symbols from .symtab, absent on stripped binaries.
func (im *Image) loadStaticSymbols() {
	syms, err := im.File.Symbols()
	if err != nil {
		return
	}
	for _, sym := range syms {
		if s, ok := convertSym(sym); ok {
			im.Syms = append(im.Syms, s)
		}
	}
}

func convertSym(sym elf.Symbol) (Sym, bool) {
	// Skip undefined symbols
	if sym.Value == 0 || sym.Section == elf.SHN_UNDEF || sym.Name == "" {
		return Sym{}, false
	}
	typ := elf.ST_TYPE(sym.Info)
	if typ == elf.STT_SECTION || typ == elf.STT_FILE {
		return Sym{}, false
	}
	return Sym{
		Name: sym.Name,
		Addr: sym.Value,
		Size: sym.Size,
		Func: typ == elf.STT_FUNC || typ == elf.STT_LOOS, // STT_GNU_IFUNC
	}, true
}

// dedupSymbols sorts symbols by address and drops repeated name/address pairs,
// which appear when both tables carry the same export.
func (im *Image) dedupSymbols() {
	slices.SortStableFunc(im.Syms, func(a, b Sym) int {
		switch {
		case a.Addr < b.Addr:
			return -1
		case a.Addr > b.Addr:
			return 1
		}
		return strings.Compare(a.Name, b.Name)
	})
	im.Syms = slices.CompactFunc(im.Syms, func(a, b Sym) bool {
		return a.Addr == b.Addr && a.Name == b.Name
	})
}

// FindFunctionByName searches for a function by name in the symbol tables.
func (im *Image) FindFunctionByName(name string) (Sym, bool) {
	for _, sym := range im.Syms {
		if sym.Func && sym.Name == name {
			return sym, true
		}
	}
	return Sym{}, false
}
