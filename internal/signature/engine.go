package signature

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/charmbracelet/log"
)

// Options configures an Engine.
type Options struct {
	// ChunkSize is passed to the Scanner; zero selects DefaultChunkSize.
	ChunkSize int
	// MaxSteps bounds minimization scans; zero means unlimited.
	MaxSteps int
	// Logger traces engine activity at debug level. Nil disables tracing.
	Logger *log.Logger
}

// Engine is the entry point used by the CLI: it creates signatures for address
// ranges or selections and resolves signatures back to addresses. The search
// universe is always the full image as reported by the memory reader.
type Engine struct {
	mem       MemoryReader
	insns     InstructionSource
	funcs     FunctionResolver
	scanner   *Scanner
	minimizer *Minimizer
	logger    *log.Logger
}

// NewEngine wires the collaborators together. funcs may be nil, in which case
// CreateAt always fails and Find never reports an enclosing function.
func NewEngine(mem MemoryReader, insns InstructionSource, funcs FunctionResolver, opts Options) *Engine {
	scanner := NewScanner(mem, opts.ChunkSize)
	minimizer := NewMinimizer(scanner)
	minimizer.MaxSteps = opts.MaxSteps
	minimizer.Logger = opts.Logger
	return &Engine{
		mem:       mem,
		insns:     insns,
		funcs:     funcs,
		scanner:   scanner,
		minimizer: minimizer,
		logger:    opts.Logger,
	}
}

// Scanner exposes the engine's scanner, mainly for statistics.
func (e *Engine) Scanner() *Scanner {
	return e.scanner
}

// Created is the outcome of a successful signature creation.
type Created struct {
	Function  Function
	Full      string // synthesized signature, before minimization
	Signature string // minimized signature
	Steps     int
}

// SynthesizeAndMinimize builds a signature for the instructions in r, checks that
// it first-matches r.Start and returns its minimized form.
func (e *Engine) SynthesizeAndMinimize(ctx context.Context, r AddressRange) (string, error) {
	c, err := e.create(ctx, Function{Range: r})
	return c.Signature, err
}

// CreateAt creates a signature for the function enclosing addr.
func (e *Engine) CreateAt(ctx context.Context, addr uint64) (Created, error) {
	if e.funcs == nil {
		return Created{}, ErrNoEnclosingFunction
	}
	fn, ok := e.funcs.FunctionContaining(addr)
	if !ok {
		return Created{}, fmt.Errorf("%w: 0x%x", ErrNoEnclosingFunction, addr)
	}
	return e.create(ctx, fn)
}

// CreateFor creates a signature for an already resolved function.
func (e *Engine) CreateFor(ctx context.Context, fn Function) (Created, error) {
	return e.create(ctx, fn)
}

func (e *Engine) create(ctx context.Context, fn Function) (Created, error) {
	out := Created{Function: fn}
	if fn.Range.Empty() {
		return out, fmt.Errorf("%w: empty range %s", ErrInsufficientUniqueness, fn.Range)
	}

	insns, err := e.insns.Instructions(fn.Range)
	if err != nil {
		return out, fmt.Errorf("read instructions in %s: %w", fn.Range, err)
	}
	out.Full = Synthesize(slices.Values(insns))
	if strings.TrimSpace(out.Full) == "" {
		return out, fmt.Errorf("%w: no instructions in %s", ErrInsufficientUniqueness, fn.Range)
	}

	universe := e.mem.Bounds()
	p, err := Compile(out.Full)
	if err != nil {
		return out, fmt.Errorf("compile synthesized signature: %w", err)
	}
	addr, found, err := e.scanner.FindFirst(universe, p)
	if err != nil {
		return out, fmt.Errorf("verify synthesized signature: %w", err)
	}
	if !found || addr != fn.Range.Start {
		return out, ErrInsufficientUniqueness
	}

	if e.logger != nil {
		e.logger.Debug("synthesized signature",
			"function", fn.Name,
			"range", fn.Range.String(),
			"instructions", len(insns),
			"bytes", p.Len())
	}

	res, err := e.minimizer.MinimizeWithStats(ctx, out.Full, fn.Range.Start, universe)
	out.Signature = res.Signature
	out.Steps = res.Steps
	if err != nil {
		return out, err
	}

	if e.logger != nil {
		e.logger.Debug("minimized signature",
			"function", fn.Name,
			"steps", res.Steps,
			"signature", res.Signature)
	}
	return out, nil
}

// FindFirst compiles text and returns the first address in the image it matches.
func (e *Engine) FindFirst(text string) (uint64, bool, error) {
	p, err := Compile(text)
	if err != nil {
		return 0, false, err
	}
	return e.scanner.FindFirst(e.mem.Bounds(), p)
}

// Found is the outcome of a find query.
type Found struct {
	Address uint64
	OK      bool

	// InFunction is false when the match lies outside every known function; the
	// match is still reported, callers should warn.
	InFunction bool
	Function   Function
}

// Find resolves text to its first match and the function containing it, if any.
func (e *Engine) Find(text string) (Found, error) {
	addr, ok, err := e.FindFirst(text)
	if err != nil || !ok {
		return Found{}, err
	}
	res := Found{Address: addr, OK: true}
	if e.funcs != nil {
		res.Function, res.InFunction = e.funcs.FunctionContaining(addr)
	}
	return res, nil
}
