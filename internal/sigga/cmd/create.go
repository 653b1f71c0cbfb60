package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"sigga/internal/sigga/styles"
	"sigga/internal/signature"
)

var errUnknownFunction = errors.New("unknown function")

// target is one selection to create a signature for: a function name or an
// address inside a function.
type target struct {
	label  string
	name   string
	addr   uint64
	byAddr bool
}

// CreateResult is the JSON form of one creation.
type CreateResult struct {
	Target    string `json:"target"`
	Function  string `json:"function,omitempty"`
	Start     string `json:"start,omitempty"`
	End       string `json:"end,omitempty"`
	Signature string `json:"signature,omitempty"`
	Full      string `json:"full,omitempty"`
	Steps     int    `json:"steps,omitempty"`
	Error     string `json:"error,omitempty"`

	err error
}

// CreateOutput is the document printed by create --json.
type CreateOutput struct {
	File    string         `json:"file"`
	Digest  string         `json:"digest"`
	Arch    string         `json:"arch"`
	Results []CreateResult `json:"results"`
}

type createOptions struct {
	full   bool
	report bool
	json   bool
}

var createCmd = &cobra.Command{
	Use:   "create <file>",
	Short: "Create minimal unique signatures for functions",
	Long: `Create builds a byte signature for each selected function, checks that the
image's first match is the function start and trims it to the shortest prefix
that is still unique.`,
	Example: `
# Signature for a function by name
sigga create ./libgame.so --function Player::update

# Signature for the function enclosing an address
sigga create ./a.out --addr 0x401136

# Several functions in parallel, as JSON
sigga create ./a.out -F main -F init --jobs 4 --json
  `,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := configFrom(cmd)
		if err != nil {
			return err
		}

		names, _ := cmd.Flags().GetStringArray("function")
		addrs, _ := cmd.Flags().GetStringArray("addr")
		targets, err := parseTargets(names, addrs)
		if err != nil {
			return err
		}

		var opts createOptions
		opts.full, _ = cmd.Flags().GetBool("full")
		opts.report, _ = cmd.Flags().GetBool("report")
		opts.json, _ = cmd.Flags().GetBool("json")

		s, err := openSession(args[0], cfg)
		if err != nil {
			return err
		}
		defer s.Close()

		ctx, cancel := s.context(cmd.Context())
		defer cancel()

		return runCreate(ctx, cmd.OutOrStdout(), s, targets, opts)
	},
}

func init() {
	createCmd.Flags().StringArrayP("function", "F", nil, "Function name, mangled or demangled (repeatable)")
	createCmd.Flags().StringArrayP("addr", "a", nil, "Address inside the function, hex (repeatable)")
	createCmd.Flags().BoolP("full", "f", false, "Also print the signature before minimization")
	createCmd.Flags().BoolP("report", "r", false, "Render a markdown report")
	createCmd.Flags().BoolP("json", "j", false, "Output results as JSON")

	rootCmd.AddCommand(createCmd)
}

// parseAddress accepts a hexadecimal address with or without a 0x prefix.
func parseAddress(s string) (uint64, error) {
	t := strings.TrimSpace(strings.ToLower(s))
	t = strings.TrimPrefix(t, "0x")
	if t == "" {
		return 0, fmt.Errorf("invalid address %q", s)
	}
	v, err := strconv.ParseUint(t, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid address %q: %w", s, err)
	}
	return v, nil
}

func parseTargets(names, addrs []string) ([]target, error) {
	var targets []target
	for _, n := range names {
		targets = append(targets, target{label: n, name: n})
	}
	for _, a := range addrs {
		v, err := parseAddress(a)
		if err != nil {
			return nil, err
		}
		targets = append(targets, target{label: fmt.Sprintf("0x%x", v), addr: v, byAddr: true})
	}
	if len(targets) == 0 {
		return nil, fmt.Errorf("failed to create signature: %w (use --function or --addr)", signature.ErrNoEnclosingFunction)
	}
	return targets, nil
}

func (s *session) create(ctx context.Context, t target) (signature.Created, error) {
	if t.byAddr {
		return s.engine.CreateAt(ctx, t.addr)
	}
	fn, ok := s.program.Funcs.ByName(t.name)
	if !ok {
		return signature.Created{}, fmt.Errorf("%w: %s", errUnknownFunction, t.name)
	}
	return s.engine.CreateFor(ctx, fn.Function)
}

// createAll runs one creation per target, at most cfg.Jobs at a time. A failed
// target does not stop the others; its error is kept in the result.
func (s *session) createAll(ctx context.Context, targets []target) []CreateResult {
	results := make([]CreateResult, len(targets))

	g, ctx := errgroup.WithContext(ctx)
	jobs := s.cfg.Jobs
	if jobs < 1 {
		jobs = 1
	}
	g.SetLimit(jobs)

	for i, t := range targets {
		g.Go(func() error {
			created, err := s.create(ctx, t)
			results[i] = newCreateResult(t, created, err)
			if err != nil {
				slog.Debug("Signature creation failed", "target", t.label, "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func newCreateResult(t target, c signature.Created, err error) CreateResult {
	r := CreateResult{
		Target:    t.label,
		Function:  c.Function.Name,
		Signature: c.Signature,
		Full:      c.Full,
		Steps:     c.Steps,
		err:       err,
	}
	if !c.Function.Range.Empty() {
		r.Start = fmt.Sprintf("0x%x", c.Function.Range.Start)
		r.End = fmt.Sprintf("0x%x", c.Function.Range.End)
	}
	if err != nil {
		r.Error = err.Error()
	}
	return r
}

// usable reports whether the result carries a signature worth printing. A step
// limit leaves a unique but possibly longer signature.
func (r CreateResult) usable() bool {
	return r.err == nil || (errors.Is(r.err, signature.ErrStepLimit) && r.Signature != "")
}

func runCreate(ctx context.Context, w io.Writer, s *session, targets []target, opts createOptions) error {
	results := s.createAll(ctx, targets)

	switch {
	case opts.json:
		out := CreateOutput{
			File:    s.image.Path,
			Digest:  s.image.Digest(),
			Arch:    s.program.Arch.String(),
			Results: results,
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(out); err != nil {
			return fmt.Errorf("failed to encode JSON: %w", err)
		}
	case opts.report:
		rendered, err := styles.GetMarkdownRenderer(100).Render(createReport(s, results))
		if err != nil {
			return fmt.Errorf("failed to render report: %w", err)
		}
		fmt.Fprint(w, rendered)
	default:
		printCreatePlain(w, results, opts.full, len(targets) > 1)
	}

	var errs []error
	for _, r := range results {
		if !r.usable() {
			errs = append(errs, fmt.Errorf("%s: %w", r.Target, r.err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("failed to create signature: %w", errors.Join(errs...))
	}
	return nil
}

func printCreatePlain(w io.Writer, results []CreateResult, full, labeled bool) {
	for _, r := range results {
		if !r.usable() {
			fmt.Fprintln(w, styles.Render(styles.Error, fmt.Sprintf("Failed to create signature for %s: %v", r.Target, r.err)))
			continue
		}
		if labeled {
			fmt.Fprintln(w, styles.Render(styles.Title, r.Function))
		}
		if full {
			fmt.Fprintf(w, "%s %s\n", styles.Render(styles.Muted, "full:"), r.Full)
		}
		if r.err != nil {
			fmt.Fprintln(w, styles.Render(styles.Warning, fmt.Sprintf("Warning: %v", r.err)))
		}
		fmt.Fprintln(w, styles.Render(styles.Signature, r.Signature))
	}
}

func createReport(s *session, results []CreateResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Sigga\n\n")
	fmt.Fprintf(&b, "```\n; %s\n; %s\n; blake3 %s\n```\n", s.image.Path, s.program.Arch, s.image.Digest())
	for _, r := range results {
		title := r.Function
		if title == "" {
			title = r.Target
		}
		fmt.Fprintf(&b, "\n## %s\n\n", title)
		if r.Start != "" {
			fmt.Fprintf(&b, "- **Range**: `%s-%s`\n", r.Start, r.End)
		}
		if !r.usable() {
			fmt.Fprintf(&b, "\n> Failed to create signature: %v\n", r.err)
			continue
		}
		fmt.Fprintf(&b, "- **Minimization steps**: %d\n", r.Steps)
		if r.err != nil {
			fmt.Fprintf(&b, "\n> %v\n", r.err)
		}
		fmt.Fprintf(&b, "\n```\n%s\n```\n", r.Signature)
	}
	return b.String()
}
