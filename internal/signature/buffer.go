package signature

import "fmt"

// Buffer is a MemoryReader over an in-memory byte slice mapped at Base.
// It serves raw (non-ELF) images and tests.
type Buffer struct {
	Base uint64
	Data []byte
}

// ReadBytes implements MemoryReader.
func (b *Buffer) ReadBytes(addr uint64, n int) ([]byte, error) {
	if n < 0 || addr < b.Base {
		return nil, fmt.Errorf("read 0x%x+%d: %w", addr, n, ErrMemoryUnavailable)
	}
	off := addr - b.Base
	if off > uint64(len(b.Data)) || uint64(n) > uint64(len(b.Data))-off {
		return nil, fmt.Errorf("read 0x%x+%d: %w", addr, n, ErrMemoryUnavailable)
	}
	return b.Data[off : off+uint64(n)], nil
}

// Bounds implements MemoryReader.
func (b *Buffer) Bounds() AddressRange {
	return AddressRange{Start: b.Base, End: b.Base + uint64(len(b.Data))}
}
