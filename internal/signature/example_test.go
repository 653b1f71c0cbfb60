package signature_test

import (
	"fmt"
	"slices"

	"sigga/internal/signature"
)

func ExampleCompile() {
	p, err := signature.Compile("de ad ? ef")
	if err != nil {
		fmt.Println(err)
		return
	}
	fmt.Println(p.String(), p.Len(), p.Significant())
	// Output: DE AD ? EF 4 3
}

func ExampleSynthesize() {
	insns := []signature.Instruction{
		{Address: 0x1000, Bytes: []byte{0x90}, Fallthrough: true},
		{Address: 0x1001, Bytes: []byte{0xE8, 0x01, 0x02, 0x03, 0x04}},
	}
	fmt.Printf("%q\n", signature.Synthesize(slices.Values(insns)))
	// Output: "90 ? ? ? ? "
}

func ExampleScanner_FindFirst() {
	mem := &signature.Buffer{Base: 0x400000, Data: []byte{0x01, 0xDE, 0xAD, 0xFF, 0xEF, 0x00}}
	s := signature.NewScanner(mem, 0)
	addr, found, err := s.FindFirst(mem.Bounds(), signature.MustCompile("DE AD ? EF"))
	fmt.Printf("0x%x %v %v\n", addr, found, err)
	// Output: 0x400001 true <nil>
}
