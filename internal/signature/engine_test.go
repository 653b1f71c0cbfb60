package signature

import (
	"context"
	"errors"
	"testing"
)

// sliceSource serves a fixed instruction list.
type sliceSource []Instruction

func (s sliceSource) Instructions(r AddressRange) ([]Instruction, error) {
	var out []Instruction
	for _, insn := range s {
		if r.Contains(insn.Address) {
			out = append(out, insn)
		}
	}
	return out, nil
}

type funcTable []Function

func (f funcTable) FunctionContaining(addr uint64) (Function, bool) {
	for _, fn := range f {
		if fn.Range.Contains(addr) {
			return fn, true
		}
	}
	return Function{}, false
}

// testProgram lays out three functions at 0x1000:
//
//	dup1  0x1000  push rbp; mov rbp, rsp; ret
//	dup2  0x1008  push rbp; mov rbp, rsp; ret
//	work  0x1010  push rbp; mov rbp, rsp; call rel32; mov eax, 1; ret
func testProgram() (*Buffer, sliceSource, funcTable) {
	data := make([]byte, 0x30)
	prologue := []byte{0x55, 0x48, 0x89, 0xE5, 0xC3}
	copy(data[0x00:], prologue)
	copy(data[0x08:], prologue)
	copy(data[0x10:], []byte{
		0x55,
		0x48, 0x89, 0xE5,
		0xE8, 0x10, 0x20, 0x30, 0x40,
		0xB8, 0x01, 0x00, 0x00, 0x00,
		0xC3,
	})
	mem := &Buffer{Base: 0x1000, Data: data}

	insns := sliceSource{
		{Address: 0x1000, Bytes: data[0x00:0x01], Fallthrough: true},
		{Address: 0x1001, Bytes: data[0x01:0x04], Fallthrough: true},
		{Address: 0x1004, Bytes: data[0x04:0x05]},
		{Address: 0x1008, Bytes: data[0x08:0x09], Fallthrough: true},
		{Address: 0x1009, Bytes: data[0x09:0x0C], Fallthrough: true},
		{Address: 0x100C, Bytes: data[0x0C:0x0D]},
		{Address: 0x1010, Bytes: data[0x10:0x11], Fallthrough: true},
		{Address: 0x1011, Bytes: data[0x11:0x14], Fallthrough: true},
		{Address: 0x1014, Bytes: data[0x14:0x19]},
		{Address: 0x1019, Bytes: data[0x19:0x1E], Fallthrough: true},
		{Address: 0x101E, Bytes: data[0x1E:0x1F]},
	}
	funcs := funcTable{
		{Name: "dup1", Range: AddressRange{Start: 0x1000, End: 0x1005}},
		{Name: "dup2", Range: AddressRange{Start: 0x1008, End: 0x100D}},
		{Name: "work", Range: AddressRange{Start: 0x1010, End: 0x101F}},
	}
	return mem, insns, funcs
}

func TestEngineCreateAt(t *testing.T) {
	mem, insns, funcs := testProgram()
	e := NewEngine(mem, insns, funcs, Options{})

	got, err := e.CreateAt(context.Background(), 0x1015)
	if err != nil {
		t.Fatalf("CreateAt error = %v", err)
	}
	if got.Function.Name != "work" {
		t.Errorf("function = %q, want work", got.Function.Name)
	}
	if want := "55 48 89 E5 ? ? ? ? ? B8 01 00 00 00 ? "; got.Full != want {
		t.Errorf("full signature = %q, want %q", got.Full, want)
	}
	// "55 48 89 E5 ? ? ? ? ? B8" is the first prefix that no longer matches the
	// duplicated prologues.
	if want := "55 48 89 E5 ? ? ? ? ? B8"; got.Signature != want {
		t.Errorf("signature = %q, want %q", got.Signature, want)
	}
	if got.Steps == 0 {
		t.Error("steps = 0, want at least one verification scan")
	}

	addr, ok, err := e.FindFirst(got.Signature)
	if err != nil || !ok || addr != 0x1010 {
		t.Errorf("FindFirst(created) = (0x%x, %v, %v), want (0x1010, true, nil)", addr, ok, err)
	}
}

func TestEngineCreateErrors(t *testing.T) {
	mem, insns, funcs := testProgram()
	e := NewEngine(mem, insns, funcs, Options{})

	tests := []struct {
		name string
		addr uint64
		want error
	}{
		{name: "outside functions", addr: 0x1006, want: ErrNoEnclosingFunction},
		{name: "duplicate of earlier function", addr: 0x1008, want: ErrInsufficientUniqueness},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.CreateAt(context.Background(), tt.addr)
			if !errors.Is(err, tt.want) {
				t.Errorf("CreateAt(0x%x) error = %v, want %v", tt.addr, err, tt.want)
			}
		})
	}

	t.Run("no resolver", func(t *testing.T) {
		_, err := NewEngine(mem, insns, nil, Options{}).CreateAt(context.Background(), 0x1010)
		if !errors.Is(err, ErrNoEnclosingFunction) {
			t.Errorf("CreateAt error = %v, want ErrNoEnclosingFunction", err)
		}
	})

	t.Run("empty range", func(t *testing.T) {
		_, err := e.SynthesizeAndMinimize(context.Background(), AddressRange{Start: 0x1020, End: 0x1020})
		if !errors.Is(err, ErrInsufficientUniqueness) {
			t.Errorf("SynthesizeAndMinimize error = %v, want ErrInsufficientUniqueness", err)
		}
	})
}

func TestEngineSynthesizeAndMinimizeFirstFunction(t *testing.T) {
	mem, insns, _ := testProgram()
	e := NewEngine(mem, insns, nil, Options{})

	// dup1 comes first, so its prologue alone first-matches it.
	got, err := e.SynthesizeAndMinimize(context.Background(), AddressRange{Start: 0x1000, End: 0x1005})
	if err != nil {
		t.Fatalf("SynthesizeAndMinimize error = %v", err)
	}
	if got != "55" {
		t.Errorf("signature = %q, want %q", got, "55")
	}
}

func TestEngineFind(t *testing.T) {
	mem, insns, funcs := testProgram()
	e := NewEngine(mem, insns, funcs, Options{})

	tests := []struct {
		name           string
		text           string
		wantOK         bool
		wantAddr       uint64
		wantInFunction bool
		wantFunction   string
	}{
		{name: "inside function", text: "E8 ? ? ? ? B8", wantOK: true, wantAddr: 0x1014, wantInFunction: true, wantFunction: "work"},
		{name: "function tail", text: "C3 00 00 00", wantOK: true, wantAddr: 0x1004, wantInFunction: true, wantFunction: "dup1"},
		{name: "gap", text: "00 00 00 55", wantOK: true, wantAddr: 0x1005, wantInFunction: false},
		{name: "missing", text: "DE AD BE EF", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := e.Find(tt.text)
			if err != nil {
				t.Fatalf("Find error = %v", err)
			}
			if got.OK != tt.wantOK {
				t.Fatalf("Find OK = %v, want %v", got.OK, tt.wantOK)
			}
			if !got.OK {
				return
			}
			if got.Address != tt.wantAddr {
				t.Errorf("address = 0x%x, want 0x%x", got.Address, tt.wantAddr)
			}
			if got.InFunction != tt.wantInFunction {
				t.Errorf("InFunction = %v, want %v", got.InFunction, tt.wantInFunction)
			}
			if got.InFunction && got.Function.Name != tt.wantFunction {
				t.Errorf("function = %q, want %q", got.Function.Name, tt.wantFunction)
			}
		})
	}

	if _, err := e.Find("GG"); !errors.Is(err, ErrMalformedByteToken) {
		t.Errorf("Find(GG) error = %v, want ErrMalformedByteToken", err)
	}
}
