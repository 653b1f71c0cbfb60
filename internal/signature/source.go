package signature

// MemoryReader gives read access to a flat binary image.
type MemoryReader interface {
	// ReadBytes returns exactly n bytes at addr. Unreadable memory is reported
	// with an error wrapping ErrMemoryUnavailable.
	ReadBytes(addr uint64, n int) ([]byte, error)

	// Bounds returns the lowest and one past the highest addressable address.
	Bounds() AddressRange
}

// RegionLister is implemented by readers whose address space has holes. Regions
// returns the readable regions sorted by start address; scans only look inside them.
type RegionLister interface {
	Regions() []AddressRange
}

// Instruction is a single decoded instruction as supplied by an InstructionSource.
type Instruction struct {
	Address uint64
	Bytes   []byte

	// Fallthrough reports whether the encoding is safe to match verbatim, i.e.
	// control continues to the next instruction and no rebuild-sensitive value is
	// encoded.
	Fallthrough bool

	// Text is an optional disassembly used for listings.
	Text string
}

// InstructionSource yields the instructions covering a range, in address order,
// with no gaps or overlaps.
type InstructionSource interface {
	Instructions(r AddressRange) ([]Instruction, error)
}

// Function is a named address range.
type Function struct {
	Name  string
	Range AddressRange
}

// FunctionResolver maps an address to its enclosing function.
type FunctionResolver interface {
	FunctionContaining(addr uint64) (Function, bool)
}
