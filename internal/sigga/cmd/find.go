package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"sigga/internal/sigga/styles"
)

// FindOutput is the document printed by find --json.
type FindOutput struct {
	Signature  string `json:"signature"`
	Found      bool   `json:"found"`
	Address    string `json:"address,omitempty"`
	InFunction bool   `json:"inFunction"`
	Function   string `json:"function,omitempty"`
}

var findCmd = &cobra.Command{
	Use:   "find <file> <signature>",
	Short: "Find the first address matching a signature",
	Long: `Find scans the whole image for the lowest address matching the signature.
Signatures are space separated hex bytes, with ? as a single byte wildcard.`,
	Example: `
# Look up a signature
sigga find ./a.out "55 48 89 E5 ? ? ? ? ? B8"
  `,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := configFrom(cmd)
		if err != nil {
			return err
		}
		asJSON, _ := cmd.Flags().GetBool("json")

		s, err := openSession(args[0], cfg)
		if err != nil {
			return err
		}
		defer s.Close()

		return runFind(cmd.OutOrStdout(), s, args[1], asJSON)
	},
}

func init() {
	findCmd.Flags().BoolP("json", "j", false, "Output the result as JSON")

	rootCmd.AddCommand(findCmd)
}

func runFind(w io.Writer, s *session, text string, asJSON bool) error {
	found, err := s.engine.Find(text)
	if err != nil {
		return fmt.Errorf("Failed to find signature: %w", err)
	}

	if asJSON {
		out := FindOutput{Signature: text, Found: found.OK, InFunction: found.InFunction}
		if found.OK {
			out.Address = fmt.Sprintf("0x%x", found.Address)
			out.Function = found.Function.Name
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	if !found.OK {
		fmt.Fprintln(w, "Signature not found")
		return nil
	}
	if !found.InFunction {
		fmt.Fprintln(w, styles.Render(styles.Warning, "Warning: The address found is not inside a function"))
	}
	fmt.Fprintf(w, "Found signature at: %s", styles.Render(styles.Address, fmt.Sprintf("0x%x", found.Address)))
	if found.InFunction {
		offset := found.Address - found.Function.Range.Start
		if offset == 0 {
			fmt.Fprintf(w, " (%s)", found.Function.Name)
		} else {
			fmt.Fprintf(w, " (%s+0x%x)", found.Function.Name, offset)
		}
	}
	fmt.Fprintln(w)
	return nil
}
