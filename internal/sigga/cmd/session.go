package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/charmbracelet/log"

	"sigga/internal/analysis"
	"sigga/internal/disasm"
	"sigga/internal/elfx"
	"sigga/internal/logging"
	"sigga/internal/signature"
)

// session is one loaded image with its decoder, function table and engine.
type session struct {
	cfg     Config
	image   *elfx.Image
	program *analysis.Program
	engine  *signature.Engine
	logger  *logging.LoggerCloser
}

func openSession(path string, cfg Config) (*session, error) {
	arch := disasm.ArchUnknown
	if cfg.Arch != "" {
		a, err := disasm.ParseArch(cfg.Arch)
		if err != nil {
			return nil, err
		}
		arch = a
	}

	logger := logging.NewLogger()
	if cfg.Debug {
		logger.SetLevel(log.DebugLevel)
	}

	img, err := elfx.Open(path)
	if err != nil {
		logger.Close()
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}

	prog, err := analysis.NewProgram(img, analysis.Options{
		Arch:   arch,
		Strict: cfg.Strict,
		Logger: logger.Logger,
	})
	if err != nil {
		img.Close()
		logger.Close()
		return nil, fmt.Errorf("failed to analyze %s: %w", path, err)
	}

	engine := signature.NewEngine(img, prog, prog, signature.Options{
		ChunkSize: cfg.ChunkSize,
		MaxSteps:  cfg.MaxSteps,
		Logger:    logger.Logger,
	})

	slog.Debug("Loaded image",
		"path", path,
		"arch", prog.Arch,
		"functions", prog.Funcs.Len(),
		"compression", img.Compression)

	return &session{
		cfg:     cfg,
		image:   img,
		program: prog,
		engine:  engine,
		logger:  logger,
	}, nil
}

// context derives the per-command context, applying the configured timeout.
func (s *session) context(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	if d, err := s.cfg.TimeoutDuration(); err == nil && d > 0 {
		return context.WithTimeout(parent, d)
	}
	return context.WithCancel(parent)
}

func (s *session) Close() error {
	if s.logger != nil {
		st := s.engine.Scanner().Stats()
		s.logger.Debug("scanner statistics",
			"scans", st.Scans,
			"bytes", st.ScannedBytes,
			"elapsed", st.Duration)
		total, hits, _ := analysis.GetDemangleCacheStats()
		s.logger.Debug("demangle cache", "symbols", total, "hits", hits)
		s.logger.Close()
	}
	return s.image.Close()
}
