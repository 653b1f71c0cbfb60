package cmd

import (
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"sigga/internal/analysis"
	"sigga/internal/sigga/styles"
	"sigga/internal/signature"
	"sigga/internal/ui/colorize"
)

var showCmd = &cobra.Command{
	Use:   "show <file>",
	Short: "Show a function listing with its signature bytes",
	Long: `Show disassembles a function and prints, next to every instruction, the
signature tokens it contributes. Wildcarded instructions show as ?.`,
	Example: `
# Listing of main
sigga show ./a.out --function main

# Listing of the function enclosing an address, strict wildcarding
sigga show ./a.out --addr 401136 --strict
  `,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := configFrom(cmd)
		if err != nil {
			return err
		}
		name, _ := cmd.Flags().GetString("function")
		addr, _ := cmd.Flags().GetString("addr")

		s, err := openSession(args[0], cfg)
		if err != nil {
			return err
		}
		defer s.Close()

		fn, err := s.resolveFunction(name, addr)
		if err != nil {
			return err
		}
		return runShow(cmd.OutOrStdout(), s, fn)
	},
}

func init() {
	showCmd.Flags().StringP("function", "F", "", "Function name, mangled or demangled")
	showCmd.Flags().StringP("addr", "a", "", "Address inside the function, hex")
	showCmd.MarkFlagsOneRequired("function", "addr")
	showCmd.MarkFlagsMutuallyExclusive("function", "addr")

	rootCmd.AddCommand(showCmd)
}

func (s *session) resolveFunction(name, addr string) (analysis.Func, error) {
	if name != "" {
		fn, ok := s.program.Funcs.ByName(name)
		if !ok {
			return analysis.Func{}, fmt.Errorf("%w: %s", errUnknownFunction, name)
		}
		return fn, nil
	}
	va, err := parseAddress(addr)
	if err != nil {
		return analysis.Func{}, err
	}
	fn, ok := s.program.Funcs.Containing(va)
	if !ok {
		return analysis.Func{}, fmt.Errorf("%w: 0x%x", signature.ErrNoEnclosingFunction, va)
	}
	return fn, nil
}

// maxListingTokens caps the token column so long encodings don't push the
// disassembly off screen.
const maxListingTokens = 12

func runShow(w io.Writer, s *session, fn analysis.Func) error {
	insns, err := s.program.Instructions(fn.Range)
	if err != nil {
		return fmt.Errorf("failed to disassemble %s: %w", fn.Name, err)
	}

	rows := make([][]string, len(insns))
	width := 0
	for i, in := range insns {
		toks := slices.Collect(signature.Tokens(slices.Values([]signature.Instruction{in})))
		if len(toks) > maxListingTokens {
			toks = append(toks[:maxListingTokens-1], "..")
		}
		rows[i] = toks
		width = max(width, len(strings.Join(toks, " ")))
	}

	fmt.Fprintf(w, "%s  %s  %s\n",
		styles.Render(styles.Title, fn.Name),
		styles.Render(styles.Muted, fn.Range.String()),
		styles.Render(styles.Muted, string(fn.Source)))

	arch := s.program.Arch.String()
	wild := 0
	for i, in := range insns {
		if !in.Fallthrough {
			wild += len(in.Bytes)
		}
		fmt.Fprintln(w, colorize.ListingLine(in.Address, rows[i], in.Text, arch, width))
	}

	fmt.Fprintf(w, "%s\n", styles.Render(styles.Muted,
		fmt.Sprintf("%d instructions, %d bytes, %d wildcarded", len(insns), fn.Range.Len(), wild)))
	return nil
}
