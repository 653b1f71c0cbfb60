package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"sigga/internal/analysis"
	"sigga/internal/signature"
)

func TestParseAddress(t *testing.T) {
	tests := []struct {
		in      string
		want    uint64
		wantErr bool
	}{
		{in: "401136", want: 0x401136},
		{in: "0x401136", want: 0x401136},
		{in: "0X1F", want: 0x1f},
		{in: " dead ", want: 0xdead},
		{in: "", wantErr: true},
		{in: "0x", wantErr: true},
		{in: "main", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseAddress(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseAddress(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("parseAddress(%q) = 0x%x, want 0x%x", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseTargets(t *testing.T) {
	targets, err := parseTargets([]string{"main"}, []string{"0x10"})
	if err != nil {
		t.Fatal(err)
	}
	if len(targets) != 2 {
		t.Fatalf("got %d targets, want 2", len(targets))
	}
	if targets[0].byAddr || targets[0].name != "main" {
		t.Errorf("targets[0] = %+v", targets[0])
	}
	if !targets[1].byAddr || targets[1].addr != 0x10 || targets[1].label != "0x10" {
		t.Errorf("targets[1] = %+v", targets[1])
	}

	if _, err := parseTargets(nil, nil); !errors.Is(err, signature.ErrNoEnclosingFunction) {
		t.Errorf("empty selection error = %v, want ErrNoEnclosingFunction", err)
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sigga.json")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	t.Setenv("SIGGA_CONFIG", "")

	tests := []struct {
		name    string
		body    string
		want    Config
		wantErr bool
	}{
		{
			name: "full",
			body: `{"debug": true, "arch": "arm64", "strict": true, "maxSteps": 50, "chunkSize": 4096, "timeout": "1m", "jobs": 2}`,
			want: Config{Debug: true, Arch: "arm64", Strict: true, MaxSteps: 50, ChunkSize: 4096, Timeout: "1m", Jobs: 2},
		},
		{
			name: "partial keeps defaults",
			body: `{"strict": true}`,
			want: Config{Strict: true, Jobs: runtime.NumCPU()},
		},
		{name: "bad json", body: `{"jobs":`, wantErr: true},
		{name: "negative steps", body: `{"maxSteps": -1}`, wantErr: true},
		{name: "zero jobs", body: `{"jobs": 0}`, wantErr: true},
		{name: "bad timeout", body: `{"timeout": "soon"}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := LoadConfig(writeConfig(t, tt.body))
			if (err != nil) != tt.wantErr {
				t.Fatalf("LoadConfig error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("LoadConfig = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("SIGGA_CONFIG", writeConfig(t, `{"maxSteps": 7}`))

	got, err := LoadConfig("")
	if err != nil {
		t.Fatal(err)
	}
	if got.MaxSteps != 7 {
		t.Errorf("MaxSteps = %d, want 7", got.MaxSteps)
	}

	t.Setenv("SIGGA_CONFIG", "")
	got, err = LoadConfig("")
	if err != nil {
		t.Fatal(err)
	}
	if got != DefaultConfig() {
		t.Errorf("LoadConfig without a file = %+v, want defaults", got)
	}

	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("LoadConfig on a missing file succeeded")
	}
}

func TestResolveConfigFlagsOverride(t *testing.T) {
	t.Setenv("SIGGA_CONFIG", "")
	path := writeConfig(t, `{"maxSteps": 50, "jobs": 8, "arch": "arm64"}`)

	c := &cobra.Command{Use: "test"}
	addConfigFlags(c)
	if err := c.ParseFlags([]string{"--config", path, "--jobs", "2", "--strict", "--timeout", "30s"}); err != nil {
		t.Fatal(err)
	}

	got, err := ResolveConfig(c)
	if err != nil {
		t.Fatal(err)
	}
	want := Config{Arch: "arm64", Strict: true, MaxSteps: 50, Timeout: "30s", Jobs: 2}
	if got != want {
		t.Errorf("ResolveConfig = %+v, want %+v", got, want)
	}
}

func TestConfigSchema(t *testing.T) {
	bts, err := configSchema()
	if err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"maxSteps", "chunkSize", "timeout", "jobs", "strict", "arch"} {
		if !bytes.Contains(bts, []byte(`"`+key+`"`)) {
			t.Errorf("schema has no property %q", key)
		}
	}
}

func openSelfSession(t *testing.T, cfg Config) *session {
	t.Helper()
	if runtime.GOOS != "linux" || (runtime.GOARCH != "amd64" && runtime.GOARCH != "arm64") {
		t.Skipf("no decoder for %s/%s test binaries", runtime.GOOS, runtime.GOARCH)
	}
	t.Setenv("SIGGA_NO_COLOR", "1")
	t.Setenv("SIGGA_LOG_TO_FILE", "")

	exe, err := os.Executable()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Jobs == 0 {
		cfg.Jobs = 2
	}
	s, err := openSession(exe, cfg)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	if _, ok := s.program.Funcs.ByName("runtime.main"); !ok {
		t.Skip("runtime.main not found, binary stripped")
	}
	return s
}

func TestCreateAndFindOnSelf(t *testing.T) {
	s := openSelfSession(t, Config{})
	fn, _ := s.program.Funcs.ByName("runtime.main")

	var out bytes.Buffer
	targets := []target{
		{label: "runtime.main", name: "runtime.main"},
		{label: "inside", addr: fn.Range.Start + 1, byAddr: true},
	}
	if err := runCreate(context.Background(), &out, s, targets, createOptions{json: true}); err != nil {
		t.Fatalf("runCreate error = %v", err)
	}

	var doc CreateOutput
	if err := json.Unmarshal(out.Bytes(), &doc); err != nil {
		t.Fatalf("invalid JSON %q: %v", out.String(), err)
	}
	if len(doc.Digest) != 64 {
		t.Errorf("digest = %q, want 64 hex characters", doc.Digest)
	}
	if len(doc.Results) != 2 {
		t.Fatalf("got %d results, want 2", len(doc.Results))
	}
	for _, r := range doc.Results {
		if r.Error != "" || r.Function != "runtime.main" || r.Signature == "" {
			t.Errorf("result %+v, want a signature for runtime.main", r)
		}
	}
	if doc.Results[0].Signature != doc.Results[1].Signature {
		t.Errorf("name and address selections disagree: %q vs %q", doc.Results[0].Signature, doc.Results[1].Signature)
	}
	if !strings.HasPrefix(doc.Results[0].Full, doc.Results[0].Signature) {
		t.Errorf("minimized %q is not a prefix of %q", doc.Results[0].Signature, doc.Results[0].Full)
	}

	out.Reset()
	if err := runFind(&out, s, doc.Results[0].Signature, false); err != nil {
		t.Fatalf("runFind error = %v", err)
	}
	got := out.String()
	if !strings.Contains(got, "Found signature at: 0x") || !strings.Contains(got, "(runtime.main)") {
		t.Errorf("find output = %q", got)
	}
	if strings.Contains(got, "Warning") {
		t.Errorf("unexpected warning in %q", got)
	}
}

func TestCreateErrors(t *testing.T) {
	s := openSelfSession(t, Config{})

	var out bytes.Buffer
	err := runCreate(context.Background(), &out, s, []target{{label: "nope", name: "no.such.function"}}, createOptions{})
	if !errors.Is(err, errUnknownFunction) {
		t.Errorf("unknown function error = %v", err)
	}
	if !strings.Contains(out.String(), "Failed to create signature for nope") {
		t.Errorf("output = %q", out.String())
	}

	out.Reset()
	err = runCreate(context.Background(), &out, s, []target{{label: "0x1", addr: 1, byAddr: true}}, createOptions{})
	if !errors.Is(err, signature.ErrNoEnclosingFunction) {
		t.Errorf("address outside functions error = %v", err)
	}
}

func TestCreateStepLimit(t *testing.T) {
	s := openSelfSession(t, Config{MaxSteps: 3})

	var out bytes.Buffer
	err := runCreate(context.Background(), &out, s, []target{{label: "runtime.main", name: "runtime.main"}}, createOptions{full: true})
	if err != nil {
		t.Fatalf("a step limited signature should still be printed, got %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 3 || !strings.HasPrefix(lines[0], "full: ") || !strings.HasPrefix(lines[1], "Warning: ") {
		t.Fatalf("output = %q, want full line, warning and signature", out.String())
	}

	found, err := s.engine.Find(lines[2])
	if err != nil {
		t.Fatal(err)
	}
	fn, _ := s.program.Funcs.ByName("runtime.main")
	if !found.OK || found.Address != fn.Range.Start {
		t.Errorf("step limited signature %q finds %+v, want 0x%x", lines[2], found, fn.Range.Start)
	}
}

func TestFindMessages(t *testing.T) {
	s := openSelfSession(t, Config{})

	tests := []struct {
		name    string
		sig     string
		want    string
		wantErr error
	}{
		{name: "elf header", sig: "7F 45 4C 46", want: "Warning: The address found is not inside a function"},
		{name: "malformed", sig: "7F 4", wantErr: signature.ErrMalformedByteToken},
		{name: "empty", sig: "   ", wantErr: signature.ErrEmptyPattern},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			err := runFind(&out, s, tt.sig, false)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) || !strings.HasPrefix(err.Error(), "Failed to find signature: ") {
					t.Fatalf("runFind error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if !strings.Contains(out.String(), tt.want) || !strings.Contains(out.String(), "Found signature at: 0x") {
				t.Errorf("output = %q, want %q", out.String(), tt.want)
			}
		})
	}
}

func TestShowListing(t *testing.T) {
	s := openSelfSession(t, Config{})
	fn, _ := s.program.Funcs.ByName("runtime.main")

	var out bytes.Buffer
	if err := runShow(&out, s, fn); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) < 3 || !strings.HasPrefix(lines[0], "runtime.main") {
		t.Fatalf("listing = %q", out.String())
	}
	if !strings.Contains(out.String(), " ? ") {
		t.Error("listing has no wildcarded instruction")
	}
	if !strings.Contains(lines[len(lines)-1], "wildcarded") {
		t.Errorf("summary line = %q", lines[len(lines)-1])
	}
}

func TestPrintFunctions(t *testing.T) {
	t.Setenv("SIGGA_NO_COLOR", "1")

	funcs := []analysis.Func{
		{Function: signature.Function{Name: "foo::bar()", Range: signature.AddressRange{Start: 0x401000, End: 0x401020}}},
		{Function: signature.Function{Name: "sub_401020", Range: signature.AddressRange{Start: 0x401020, End: 0x401021}}},
	}
	var out bytes.Buffer
	printFunctions(&out, funcs)

	want := "0000000000401000        32  foo::bar()\n" +
		"0000000000401020         1  sub_401020\n"
	if out.String() != want {
		t.Errorf("printFunctions =\n%s\nwant\n%s", out.String(), want)
	}
}
