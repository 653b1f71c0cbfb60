package analysis

import (
	"context"
	"debug/elf"
	"os"
	"runtime"
	"testing"

	"sigga/internal/elfx"
	"sigga/internal/signature"
)

func fakeImage() *elfx.Image {
	return &elfx.Image{
		All:   make([]byte, 0x100),
		Loads: []elfx.Seg{{Vaddr: 0x1000, Off: 0, Filesz: 0x100, Flags: elf.PF_R | elf.PF_X}},
		Text:  elfx.Section{Name: ".text", VA: 0x1000, Off: 0, Size: 0x100},
	}
}

func TestBuildTable(t *testing.T) {
	im := fakeImage()
	table := buildTable([]start{
		{addr: 0x1040, size: 0x10, name: "sized", source: SourceSymtab},
		{addr: 0x1000, source: SourceEntry},
		{addr: 0x1000, name: "entry", source: SourceEntry},
		{addr: 0x1080, source: SourceDiscovered},
		{addr: 0x1044, size: 0x4, name: "_ZN3foo3barEv", source: SourceSymtab},
		{addr: 0x1040, name: "alias", source: SourceDynsym},
	}, im)

	want := []struct {
		name  string
		start uint64
		end   uint64
	}{
		{"entry", 0x1000, 0x1040},
		{"sized", 0x1040, 0x1050},
		{"foo::bar()", 0x1044, 0x1048},
		{"sub_1080", 0x1080, 0x1100},
	}
	got := table.Funcs()
	if len(got) != len(want) {
		t.Fatalf("table has %d functions, want %d: %+v", len(got), len(want), got)
	}
	for i, w := range want {
		if got[i].Name != w.name || got[i].Range.Start != w.start || got[i].Range.End != w.end {
			t.Errorf("[%d] = %s %s, want %s [0x%x, 0x%x)", i, got[i].Name, got[i].Range, w.name, w.start, w.end)
		}
	}

	containing := []struct {
		addr uint64
		want string
		ok   bool
	}{
		{0x1000, "entry", true},
		{0x103f, "entry", true},
		{0x1045, "foo::bar()", true},
		{0x104c, "sized", true},
		{0x1050, "", false},
		{0x10ff, "sub_1080", true},
		{0x1100, "", false},
		{0x0fff, "", false},
	}
	for _, c := range containing {
		f, ok := table.Containing(c.addr)
		if ok != c.ok || f.Name != c.want {
			t.Errorf("Containing(0x%x) = %q, %v, want %q, %v", c.addr, f.Name, ok, c.want, c.ok)
		}
	}

	if f, ok := table.ByName("_ZN3foo3barEv"); !ok || f.Range.Start != 0x1044 {
		t.Errorf("ByName(mangled) = %+v, %v", f, ok)
	}
	if f, ok := table.ByName("foo::bar()"); !ok || f.Mangled != "_ZN3foo3barEv" {
		t.Errorf("ByName(demangled) = %+v, %v", f, ok)
	}
	if got := table.Filter("SUB_"); len(got) != 1 || got[0].Range.Start != 0x1080 {
		t.Errorf("Filter(SUB_) = %+v", got)
	}
	if name, base := table.Symbol(0x1046); name != "foo::bar()" || base != 0x1044 {
		t.Errorf("Symbol(0x1046) = %q, 0x%x", name, base)
	}
}

func TestCachedDemangle(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"_ZN3foo3barEv", "foo::bar()"},
		{"main", "main"},
		{"runtime.main", "runtime.main"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			for range 2 {
				if got := CachedDemangle(tt.in); got != tt.want {
					t.Errorf("CachedDemangle(%q) = %q, want %q", tt.in, got, tt.want)
				}
			}
		})
	}
	total, hits, _ := GetDemangleCacheStats()
	if total < len(tests) || hits < len(tests) {
		t.Errorf("cache stats total=%d hits=%d, want at least %d each", total, hits, len(tests))
	}

	SetDemangleCache(false)
	defer SetDemangleCache(true)
	if got := CachedDemangle("_ZN3baz3quxEv"); got != "baz::qux()" {
		t.Errorf("uncached CachedDemangle = %q", got)
	}
	if after, _, _ := GetDemangleCacheStats(); after != total {
		t.Errorf("disabled cache grew from %d to %d entries", total, after)
	}
}

func openSelfProgram(t *testing.T, opts Options) *Program {
	t.Helper()
	if runtime.GOOS != "linux" || (runtime.GOARCH != "amd64" && runtime.GOARCH != "arm64") {
		t.Skipf("no decoder for %s/%s test binaries", runtime.GOOS, runtime.GOARCH)
	}
	exe, err := os.Executable()
	if err != nil {
		t.Fatal(err)
	}
	im, err := elfx.Open(exe)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { im.Close() })
	p, err := NewProgram(im, opts)
	if err != nil {
		t.Fatalf("NewProgram error = %v", err)
	}
	return p
}

func TestProgramInstructions(t *testing.T) {
	p := openSelfProgram(t, Options{})
	fn, ok := p.Funcs.ByName("runtime.main")
	if !ok {
		t.Skip("runtime.main not found, binary stripped")
	}

	insns, err := p.Instructions(fn.Range)
	if err != nil {
		t.Fatalf("Instructions error = %v", err)
	}
	next := fn.Range.Start
	fallthroughs := 0
	for _, in := range insns {
		if in.Address != next {
			t.Fatalf("gap before 0x%x, want instruction at 0x%x", in.Address, next)
		}
		next += uint64(len(in.Bytes))
		if in.Fallthrough {
			fallthroughs++
		}
	}
	if next != fn.Range.End {
		t.Errorf("instructions end at 0x%x, want 0x%x", next, fn.Range.End)
	}
	if fallthroughs == 0 || fallthroughs == len(insns) {
		t.Errorf("%d of %d instructions fall through, want a mix", fallthroughs, len(insns))
	}

	got, ok := p.FunctionContaining(fn.Range.Start + 1)
	if !ok || got.Range != fn.Range {
		t.Errorf("FunctionContaining = %+v, %v, want %s", got, ok, fn.Range)
	}
}

func TestEngineOnSelf(t *testing.T) {
	p := openSelfProgram(t, Options{})
	fn, ok := p.Funcs.ByName("runtime.main")
	if !ok {
		t.Skip("runtime.main not found, binary stripped")
	}

	e := signature.NewEngine(p.Image, p, p, signature.Options{})
	created, err := e.CreateAt(context.Background(), fn.Range.Start+4)
	if err != nil {
		t.Fatalf("CreateAt error = %v", err)
	}
	if created.Function.Range != fn.Range {
		t.Errorf("created for %s, want %s", created.Function.Range, fn.Range)
	}

	found, err := e.Find(created.Signature)
	if err != nil {
		t.Fatalf("Find error = %v", err)
	}
	if !found.OK || found.Address != fn.Range.Start || !found.InFunction || found.Function.Name != "runtime.main" {
		t.Errorf("Find(%q) = %+v, want runtime.main at 0x%x", created.Signature, found, fn.Range.Start)
	}
}
