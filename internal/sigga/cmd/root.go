package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	pathpkg "path/filepath"
	"runtime"
	"runtime/pprof"

	tea "github.com/charmbracelet/bubbletea/v2"
	"github.com/charmbracelet/fang"
	"github.com/charmbracelet/x/term"
	"github.com/spf13/cobra"

	"sigga/internal/logging"
	"sigga/internal/sigga/log"
	"sigga/internal/sigga/styles"
)

type configKey struct{}

func init() {
	addConfigFlags(rootCmd)

	rootCmd.Flags().BoolP("help", "h", false, "Help")
	rootCmd.Flags().BoolP("no-tui", "n", false, "Show summary without TUI")
	rootCmd.Flags().String("cpuprofile", "", "Write CPU profile to file")
	rootCmd.Flags().String("memprofile", "", "Write memory profile to file")
}

// addConfigFlags registers the persistent flags read by ResolveConfig.
func addConfigFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().StringP("cwd", "c", "", "Current working directory")
	cmd.PersistentFlags().BoolP("debug", "d", false, "Debug")
	cmd.PersistentFlags().String("config", "", "Config file (JSON), defaults to $SIGGA_CONFIG")
	cmd.PersistentFlags().String("log-file", "", "Write logs to a file instead of stderr")
	cmd.PersistentFlags().String("arch", "", "Override the ELF architecture (amd64, arm64)")
	cmd.PersistentFlags().Bool("strict", false, "Also wildcard PC-relative and absolute memory references")
	cmd.PersistentFlags().Int("max-steps", 0, "Upper bound on minimization scans (0 = unlimited)")
	cmd.PersistentFlags().Int("chunk-size", 0, "Bytes read per scanner chunk (0 = default)")
	cmd.PersistentFlags().Duration("timeout", 0, "Abort signature creation after this long")
	cmd.PersistentFlags().IntP("jobs", "J", runtime.NumCPU(), "Parallel creations in batch mode")
}

var rootCmd = &cobra.Command{
	Use:   "sigga [file]",
	Short: "Byte signature creation and lookup for ELF binaries",
	Long: `Sigga creates and finds byte signatures for functions in ELF binaries.
A signature is the shortest prefix of a function's bytes, with position
dependent instructions wildcarded, whose first match in the image is the
function itself.`,
	Example: `
# Browse functions and create signatures interactively
sigga /path/to/binary

# Create a signature without the TUI
sigga create /path/to/binary --function main

# Find a signature
sigga find /path/to/binary "55 48 89 E5 ? ? ? ? ? B8"
  `,
	Args:         cobra.ExactArgs(1),
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if _, err := ResolveCwd(cmd); err != nil {
			return err
		}
		cfg, err := ResolveConfig(cmd)
		if err != nil {
			return err
		}
		log.Setup(cfg.LogFile, cfg.Debug || logging.IsDebug())

		if !term.IsTerminal(os.Stdout.Fd()) {
			os.Setenv("SIGGA_NO_COLOR", "1")
		}

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		cmd.SetContext(context.WithValue(ctx, configKey{}, cfg))
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		cpuprofile, _ := cmd.Flags().GetString("cpuprofile")
		if cpuprofile != "" {
			f, err := os.Create(cpuprofile)
			if err != nil {
				return fmt.Errorf("could not create CPU profile: %v", err)
			}
			defer f.Close()
			if err := pprof.StartCPUProfile(f); err != nil {
				return fmt.Errorf("could not start CPU profile: %v", err)
			}
			defer pprof.StopCPUProfile()
		}

		memprofile, _ := cmd.Flags().GetString("memprofile")
		if memprofile != "" {
			defer func() {
				f, err := os.Create(memprofile)
				if err != nil {
					fmt.Fprintf(os.Stderr, "could not create memory profile: %v\n", err)
					return
				}
				defer f.Close()
				if err := pprof.WriteHeapProfile(f); err != nil {
					fmt.Fprintf(os.Stderr, "could not write memory profile: %v\n", err)
				}
			}()
		}

		absPath, err := pathpkg.Abs(args[0])
		if err != nil {
			return fmt.Errorf("failed to resolve path: %v", err)
		}
		if _, err := os.Stat(absPath); err != nil {
			if os.IsNotExist(err) {
				return fmt.Errorf("file not found: %s", args[0])
			}
			return fmt.Errorf("cannot access file: %v", err)
		}

		cfg, err := configFrom(cmd)
		if err != nil {
			return err
		}
		s, err := openSession(absPath, cfg)
		if err != nil {
			return err
		}
		defer s.Close()

		noTUI, _ := cmd.Flags().GetBool("no-tui")
		if noTUI || !term.IsTerminal(os.Stdout.Fd()) {
			printSummary(cmd.OutOrStdout(), s)
			return nil
		}

		program := tea.NewProgram(
			NewModel(cmd.Context(), s),
			tea.WithAltScreen(),
			tea.WithContext(cmd.Context()),
		)
		if _, err := program.Run(); err != nil {
			slog.Error("TUI run error", "error", err)
			return fmt.Errorf("TUI error: %v", err)
		}
		return nil
	},
}

// configFrom returns the config resolved by the root pre-run hook, resolving
// it again when the hook did not run.
func configFrom(cmd *cobra.Command) (Config, error) {
	if ctx := cmd.Context(); ctx != nil {
		if cfg, ok := ctx.Value(configKey{}).(Config); ok {
			return cfg, nil
		}
	}
	return ResolveConfig(cmd)
}

func printSummary(w io.Writer, s *session) {
	fmt.Fprintf(w, "; %s\n", s.image.Path)
	fmt.Fprintf(w, "; blake3 %s\n", s.image.Digest())
	if s.image.Compression != "" {
		fmt.Fprintf(w, "; compression %s\n", s.image.Compression)
	}
	fmt.Fprintf(w, "; arch %s\n", s.program.Arch)
	fmt.Fprintf(w, "; text %s\n", s.image.Text.Range())
	fmt.Fprintf(w, "; %d functions\n", s.program.Funcs.Len())
	for _, r := range s.image.Regions() {
		fmt.Fprintf(w, ";   region %s\n", styles.Render(styles.Address, r.String()))
	}
}

func Execute() {
	noTUI := false
	for _, arg := range os.Args[1:] {
		if arg == "--no-tui" || arg == "-n" || arg == "--json" || arg == "-j" {
			noTUI = true
			break
		}
	}

	// fang renders help and errors as styled markdown, which only makes
	// sense on a terminal.
	if !noTUI && !term.IsTerminal(os.Stdout.Fd()) {
		noTUI = true
	}

	if noTUI {
		if err := rootCmd.Execute(); err != nil {
			os.Exit(1)
		}
	} else {
		if err := fang.Execute(
			context.Background(),
			rootCmd,
			fang.WithNotifySignal(os.Interrupt),
		); err != nil {
			os.Exit(1)
		}
	}
}

func ResolveCwd(cmd *cobra.Command) (string, error) {
	cwd, _ := cmd.Flags().GetString("cwd")
	if cwd != "" {
		err := os.Chdir(cwd)
		if err != nil {
			return "", fmt.Errorf("failed to change directory: %v", err)
		}
		return cwd, nil
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get current working directory: %v", err)
	}
	return cwd, nil
}
