package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/charmbracelet/log"
)

func TestNewLoggerWithWriterLevels(t *testing.T) {
	tests := []struct {
		env  string
		want log.Level
	}{
		{env: "", want: log.InfoLevel},
		{env: "debug", want: log.DebugLevel},
		{env: "warn", want: log.WarnLevel},
		{env: "error", want: log.ErrorLevel},
		{env: "loud", want: log.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.env, func(t *testing.T) {
			t.Setenv("SIGGA_LOG_LEVEL", tt.env)
			lc := NewLoggerWithWriter(&bytes.Buffer{})
			if got := lc.GetLevel(); got != tt.want {
				t.Errorf("level = %v, want %v", got, tt.want)
			}
			if IsDebug() != (tt.env == "debug") {
				t.Errorf("IsDebug() = %v with %q", IsDebug(), tt.env)
			}
		})
	}
}

func TestNewLoggerWithWriterPrefix(t *testing.T) {
	t.Setenv("SIGGA_LOG_LEVEL", "debug")

	var buf bytes.Buffer
	NewLoggerWithWriter(&buf).Debug("minimize step", "step", 3)
	if out := buf.String(); !strings.Contains(out, "sigga") || !strings.Contains(out, "step=3") {
		t.Errorf("default prefix output = %q", out)
	}

	t.Setenv("SIGGA_LOG_PREFIX", "scan ")
	buf.Reset()
	lc := NewLoggerWithWriter(&buf)
	lc.Info("done")
	if out := buf.String(); !strings.Contains(out, "scan") {
		t.Errorf("custom prefix output = %q", out)
	}
	if err := lc.Close(); err != nil {
		t.Errorf("Close() = %v", err)
	}
	if lc.Path() != "" {
		t.Errorf("Path() = %q, want empty for a buffer", lc.Path())
	}
}
