package signature

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// Wildcard is the token that matches any byte.
const Wildcard = "?"

// Pattern is a compiled signature. Mask[i] reports whether Bytes[i] must match;
// wildcard positions hold a zero byte and a false mask.
type Pattern struct {
	Bytes []byte
	Mask  []bool
}

// Len returns the number of bytes the pattern spans.
func (p Pattern) Len() int {
	return len(p.Bytes)
}

// Significant returns the number of positions that must match exactly.
func (p Pattern) Significant() int {
	n := 0
	for _, m := range p.Mask {
		if m {
			n++
		}
	}
	return n
}

// firstSignificant returns the index of the first significant position, or -1.
func (p Pattern) firstSignificant() int {
	for i, m := range p.Mask {
		if m {
			return i
		}
	}
	return -1
}

// MatchAt reports whether the pattern matches buf starting at off.
func (p Pattern) MatchAt(buf []byte, off int) bool {
	if off < 0 || off+len(p.Bytes) > len(buf) {
		return false
	}
	for i, b := range p.Bytes {
		if p.Mask[i] && buf[off+i] != b {
			return false
		}
	}
	return true
}

// String renders the pattern as canonical signature text, e.g. "DE AD ? EF".
func (p Pattern) String() string {
	var sb strings.Builder
	sb.Grow(len(p.Bytes) * 3)
	for i, b := range p.Bytes {
		if i > 0 {
			sb.WriteByte(' ')
		}
		if p.Mask[i] {
			fmt.Fprintf(&sb, "%02X", b)
		} else {
			sb.WriteString(Wildcard)
		}
	}
	return sb.String()
}

// Compile parses signature text into a Pattern.
//
// All whitespace is removed first, so spacing is cosmetic. A "?" is always a single
// wildcard ("??" is two of them); anything else must be a two digit hex byte.
func Compile(text string) (Pattern, error) {
	stripped := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, text)
	if stripped == "" {
		return Pattern{}, ErrEmptyPattern
	}

	// The stripped length is an upper bound on the pattern length.
	p := Pattern{
		Bytes: make([]byte, 0, len(stripped)),
		Mask:  make([]bool, 0, len(stripped)),
	}
	for i := 0; i < len(stripped); {
		if stripped[i] == '?' {
			p.Bytes = append(p.Bytes, 0)
			p.Mask = append(p.Mask, false)
			i++
			continue
		}

		if i+2 > len(stripped) {
			return Pattern{}, fmt.Errorf("%w: %q at offset %d", ErrMalformedByteToken, stripped[i:], i)
		}
		tok := stripped[i : i+2]
		v, err := strconv.ParseUint(tok, 16, 8)
		if err != nil {
			return Pattern{}, fmt.Errorf("%w: %q at offset %d", ErrMalformedByteToken, tok, i)
		}
		p.Bytes = append(p.Bytes, byte(v))
		p.Mask = append(p.Mask, true)
		i += 2
	}
	return p, nil
}

// MustCompile is like Compile but panics on error. It is meant for signatures
// embedded in source code.
func MustCompile(text string) Pattern {
	p, err := Compile(text)
	if err != nil {
		panic(fmt.Sprintf("signature: Compile(%q): %v", text, err))
	}
	return p
}
