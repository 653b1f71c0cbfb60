package signature

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"
)

// Minimizer shortens unique signatures using a Scanner as the uniqueness oracle.
type Minimizer struct {
	scanner *Scanner

	// MaxSteps bounds the number of oracle scans per call. Zero means unlimited.
	MaxSteps int

	// Logger receives one debug line per trimming step. Nil disables tracing.
	Logger *log.Logger
}

// NewMinimizer returns a minimizer that verifies candidates with s.
func NewMinimizer(s *Scanner) *Minimizer {
	return &Minimizer{scanner: s}
}

// MinimizeResult describes a finished minimization.
type MinimizeResult struct {
	Signature string
	Steps     int // oracle scans performed
}

// Minimize returns the shortest prefix of sig, with trailing wildcards removed,
// whose first match in r is still target.
//
// sig must already first-match target in r; this is not re-checked. Only whole
// concrete bytes are removed, and only from the end: the result anchors on the
// same leading bytes as the input.
func (m *Minimizer) Minimize(ctx context.Context, sig string, target uint64, r AddressRange) (string, error) {
	res, err := m.MinimizeWithStats(ctx, sig, target, r)
	return res.Signature, err
}

// MinimizeWithStats is Minimize that also reports the number of scans performed.
func (m *Minimizer) MinimizeWithStats(ctx context.Context, sig string, target uint64, r AddressRange) (MinimizeResult, error) {
	var res MinimizeResult
	p, err := Compile(sig)
	if err != nil {
		return res, err
	}
	tokens := strings.Fields(p.String())

	for {
		tokens = trimWildcards(tokens)
		if len(tokens) == 0 {
			return res, ErrMinimizeEmpty
		}
		res.Signature = strings.Join(tokens, " ")

		if err := ctx.Err(); err != nil {
			return res, err
		}
		if m.MaxSteps > 0 && res.Steps >= m.MaxSteps {
			return res, fmt.Errorf("%w after %d steps", ErrStepLimit, res.Steps)
		}

		candidate := tokens[:len(tokens)-1]
		if !hasConcrete(candidate) {
			// Nothing left to tell locations apart.
			return res, nil
		}

		p, err := Compile(strings.Join(candidate, " "))
		if err != nil {
			return res, fmt.Errorf("compile candidate: %w", err)
		}
		addr, found, err := m.scanner.FindFirst(r, p)
		res.Steps++
		if err != nil {
			return res, fmt.Errorf("verify candidate: %w", err)
		}

		if m.Logger != nil {
			m.Logger.Debug("minimize step",
				"step", res.Steps,
				"bytes", len(candidate),
				"found", found,
				"addr", fmt.Sprintf("0x%x", addr))
		}

		if !found || addr != target {
			return res, nil
		}
		tokens = candidate
	}
}

// trimWildcards drops trailing wildcard tokens.
func trimWildcards(tokens []string) []string {
	for len(tokens) > 0 && tokens[len(tokens)-1] == Wildcard {
		tokens = tokens[:len(tokens)-1]
	}
	return tokens
}

func hasConcrete(tokens []string) bool {
	for _, t := range tokens {
		if t != Wildcard {
			return true
		}
	}
	return false
}
