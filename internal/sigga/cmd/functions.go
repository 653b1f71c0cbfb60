package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"sigga/internal/analysis"
	"sigga/internal/sigga/styles"
)

var functionsCmd = &cobra.Command{
	Use:     "functions <file>",
	Aliases: []string{"funcs"},
	Short:   "List the functions signatures can be created for",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := configFrom(cmd)
		if err != nil {
			return err
		}
		filter, _ := cmd.Flags().GetString("filter")

		s, err := openSession(args[0], cfg)
		if err != nil {
			return err
		}
		defer s.Close()

		printFunctions(cmd.OutOrStdout(), s.program.Funcs.Filter(filter))
		return nil
	},
}

func init() {
	functionsCmd.Flags().StringP("filter", "f", "", "Only list functions whose name contains this text")

	rootCmd.AddCommand(functionsCmd)
}

func printFunctions(w io.Writer, funcs []analysis.Func) {
	for _, f := range funcs {
		fmt.Fprintf(w, "%s  %8d  %s\n",
			styles.Render(styles.Address, fmt.Sprintf("%016x", f.Range.Start)),
			f.Range.Len(),
			f.Name)
	}
}
