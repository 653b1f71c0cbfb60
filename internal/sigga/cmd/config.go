package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/spf13/cobra"
)

// Config holds the settings that may come from a JSON file. Flags given on the
// command line take precedence.
type Config struct {
	Debug     bool   `json:"debug,omitempty" jsonschema:"title=Debug,description=Enable debug logging"`
	LogFile   string `json:"logFile,omitempty" jsonschema:"title=Log File,description=Write CLI logs to this file instead of stderr"`
	Arch      string `json:"arch,omitempty" jsonschema:"title=Architecture,description=Override the architecture from the ELF header,enum=amd64,enum=arm64"`
	Strict    bool   `json:"strict,omitempty" jsonschema:"title=Strict,description=Also wildcard instructions with PC-relative or absolute memory operands"`
	MaxSteps  int    `json:"maxSteps,omitempty" jsonschema:"title=Max Steps,description=Upper bound on minimization scans (0 means unlimited),minimum=0"`
	ChunkSize int    `json:"chunkSize,omitempty" jsonschema:"title=Chunk Size,description=Bytes read per scanner chunk (0 selects the default),minimum=0"`
	Timeout   string `json:"timeout,omitempty" jsonschema:"title=Timeout,description=Per-command deadline as a Go duration such as 30s or 5m"`
	Jobs      int    `json:"jobs,omitempty" jsonschema:"title=Jobs,description=Parallel signature creations in batch mode,minimum=1"`
}

// DefaultConfig returns the built-in settings.
func DefaultConfig() Config {
	return Config{Jobs: runtime.NumCPU()}
}

// LoadConfig reads path, or $SIGGA_CONFIG when path is empty, over the defaults.
// No file at all is not an error.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		path = os.Getenv("SIGGA_CONFIG")
	}
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config: %w", err)
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return cfg, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.MaxSteps < 0 {
		return fmt.Errorf("maxSteps must not be negative")
	}
	if c.ChunkSize < 0 {
		return fmt.Errorf("chunkSize must not be negative")
	}
	if c.Jobs < 1 {
		return fmt.Errorf("jobs must be at least 1")
	}
	if _, err := c.TimeoutDuration(); err != nil {
		return err
	}
	return nil
}

// TimeoutDuration parses Timeout; empty means no deadline.
func (c Config) TimeoutDuration() (time.Duration, error) {
	if c.Timeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return 0, fmt.Errorf("invalid timeout %q: %w", c.Timeout, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("invalid timeout %q: negative duration", c.Timeout)
	}
	return d, nil
}

// ResolveConfig loads the config file named by --config and applies every flag
// the user set explicitly.
func ResolveConfig(cmd *cobra.Command) (Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := LoadConfig(path)
	if err != nil {
		return cfg, err
	}

	flags := cmd.Flags()
	if flags.Changed("debug") {
		cfg.Debug, _ = flags.GetBool("debug")
	}
	if flags.Changed("log-file") {
		cfg.LogFile, _ = flags.GetString("log-file")
	}
	if flags.Changed("arch") {
		cfg.Arch, _ = flags.GetString("arch")
	}
	if flags.Changed("strict") {
		cfg.Strict, _ = flags.GetBool("strict")
	}
	if flags.Changed("max-steps") {
		cfg.MaxSteps, _ = flags.GetInt("max-steps")
	}
	if flags.Changed("chunk-size") {
		cfg.ChunkSize, _ = flags.GetInt("chunk-size")
	}
	if flags.Changed("timeout") {
		d, _ := flags.GetDuration("timeout")
		cfg.Timeout = d.String()
	}
	if flags.Changed("jobs") {
		cfg.Jobs, _ = flags.GetInt("jobs")
	}

	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}
