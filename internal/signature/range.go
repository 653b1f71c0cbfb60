package signature

import "fmt"

// AddressRange is the half-open interval [Start, End) of a flat address space.
type AddressRange struct {
	Start uint64
	End   uint64
}

// Len returns the number of addresses in the range.
func (r AddressRange) Len() uint64 {
	if r.End <= r.Start {
		return 0
	}
	return r.End - r.Start
}

// Empty reports whether the range holds no addresses.
func (r AddressRange) Empty() bool {
	return r.End <= r.Start
}

// Contains reports whether addr lies inside the range.
func (r AddressRange) Contains(addr uint64) bool {
	return addr >= r.Start && addr < r.End
}

// Intersect returns the overlap of r and o, which may be empty.
func (r AddressRange) Intersect(o AddressRange) AddressRange {
	out := AddressRange{Start: max(r.Start, o.Start), End: min(r.End, o.End)}
	if out.End < out.Start {
		out.End = out.Start
	}
	return out
}

func (r AddressRange) String() string {
	return fmt.Sprintf("[0x%x, 0x%x)", r.Start, r.End)
}
