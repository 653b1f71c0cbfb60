package signature

import (
	"bytes"
	"errors"
	"fmt"
	"sync/atomic"
	"time"
)

// DefaultChunkSize is the number of candidate offsets read per memory request.
const DefaultChunkSize = 1 << 20

// ScanStats holds cumulative scanner telemetry.
type ScanStats struct {
	Scans        int64
	ScannedBytes int64
	Duration     time.Duration
}

// Scanner performs masked first-match searches over a MemoryReader.
// It is safe for concurrent use as long as the reader is.
type Scanner struct {
	mem       MemoryReader
	chunkSize int

	scans   atomic.Int64
	scanned atomic.Int64
	nanos   atomic.Int64
}

// NewScanner creates a scanner over mem. A chunkSize <= 0 selects DefaultChunkSize.
func NewScanner(mem MemoryReader, chunkSize int) *Scanner {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &Scanner{mem: mem, chunkSize: chunkSize}
}

// Bounds returns the address bounds of the underlying image.
func (s *Scanner) Bounds() AddressRange {
	return s.mem.Bounds()
}

// Stats returns a snapshot of the cumulative scan statistics.
func (s *Scanner) Stats() ScanStats {
	return ScanStats{
		Scans:        s.scans.Load(),
		ScannedBytes: s.scanned.Load(),
		Duration:     time.Duration(s.nanos.Load()),
	}
}

// FindFirst returns the lowest address in r at which p matches. The whole pattern
// must fit inside r. found is false when there is no match.
func (s *Scanner) FindFirst(r AddressRange, p Pattern) (addr uint64, found bool, err error) {
	start := time.Now()
	s.scans.Add(1)
	defer func() { s.nanos.Add(int64(time.Since(start))) }()

	if p.Len() == 0 {
		return 0, false, ErrEmptyPattern
	}

	for _, region := range s.regions(r) {
		addr, found, err = s.scanRegion(region, p)
		if err != nil || found {
			return addr, found, err
		}
	}
	return 0, false, nil
}

// regions returns the parts of r that can be scanned, in ascending order.
func (s *Scanner) regions(r AddressRange) []AddressRange {
	lister, ok := s.mem.(RegionLister)
	if !ok {
		if r.Empty() {
			return nil
		}
		return []AddressRange{r}
	}
	var out []AddressRange
	for _, region := range lister.Regions() {
		if in := region.Intersect(r); !in.Empty() {
			out = append(out, in)
		}
	}
	return out
}

// scanRegion searches one contiguous region chunk by chunk. Consecutive chunks
// overlap by len(p)-1 bytes so matches straddling a boundary are seen.
func (s *Scanner) scanRegion(r AddressRange, p Pattern) (uint64, bool, error) {
	n := uint64(p.Len())
	if r.Len() < n {
		return 0, false, nil
	}
	last := r.End - n // last candidate offset, inclusive

	for base := r.Start; base <= last; {
		candidates := min(uint64(s.chunkSize), last-base+1)
		want := int(candidates + n - 1)
		buf, err := s.mem.ReadBytes(base, want)
		if err == nil && len(buf) != want {
			err = fmt.Errorf("short read at 0x%x: got %d of %d bytes: %w", base, len(buf), want, ErrMemoryUnavailable)
		}
		if err != nil {
			if !errors.Is(err, ErrMemoryUnavailable) {
				return 0, false, err
			}
			addr, found, err := s.scanSparse(base, candidates, p)
			if err != nil || found {
				return addr, found, err
			}
		} else {
			s.scanned.Add(int64(len(buf)))
			if off := indexMasked(buf, int(candidates), p); off >= 0 {
				return base + uint64(off), true, nil
			}
		}
		base += candidates
	}
	return 0, false, nil
}

// scanSparse checks candidates one by one, reading only significant bytes, so that
// unreadable bytes under wildcards never fault.
func (s *Scanner) scanSparse(base, candidates uint64, p Pattern) (uint64, bool, error) {
	for c := uint64(0); c < candidates; c++ {
		o := base + c
		match := true
		for i, b := range p.Bytes {
			if !p.Mask[i] {
				continue
			}
			got, err := s.mem.ReadBytes(o+uint64(i), 1)
			if err == nil && len(got) != 1 {
				err = ErrMemoryUnavailable
			}
			if err != nil {
				return 0, false, fmt.Errorf("scan at 0x%x: %w", o+uint64(i), err)
			}
			s.scanned.Add(1)
			if got[0] != b {
				match = false
				break
			}
		}
		if match {
			return o, true, nil
		}
	}
	return 0, false, nil
}

// indexMasked returns the first offset below candidates at which p matches buf,
// or -1. The first significant byte anchors the search.
func indexMasked(buf []byte, candidates int, p Pattern) int {
	anchor := p.firstSignificant()
	if anchor < 0 {
		// All wildcards: the first candidate that fits matches.
		if candidates > 0 {
			return 0
		}
		return -1
	}
	want := p.Bytes[anchor]

	for off := 0; off < candidates; {
		i := bytes.IndexByte(buf[off+anchor:candidates+anchor], want)
		if i < 0 {
			return -1
		}
		off += i
		if p.MatchAt(buf, off) {
			return off
		}
		off++
	}
	return -1
}
