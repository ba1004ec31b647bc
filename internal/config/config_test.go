package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
)

// fakeBinder wraps a pflag.FlagSet to satisfy the flagBinder interface.
type fakeBinder struct {
	fs *pflag.FlagSet
}

func (f *fakeBinder) Flags() *pflag.FlagSet { return f.fs }

func newFlagBinder(defaults Config) *fakeBinder {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs, defaults)
	return &fakeBinder{fs: fs}
}

// --- DefaultConfig ---

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Paths.ModelDir != "models/qwen3-asr" {
		t.Errorf("Paths.ModelDir = %q; want %q", cfg.Paths.ModelDir, "models/qwen3-asr")
	}
	if cfg.Runtime.Threads != 4 {
		t.Errorf("Runtime.Threads = %d; want 4", cfg.Runtime.Threads)
	}
	if cfg.Runtime.Backend != BackendAuto {
		t.Errorf("Runtime.Backend = %q; want %q", cfg.Runtime.Backend, BackendAuto)
	}
	if cfg.Server.ListenAddr != ":8080" {
		t.Errorf("Server.ListenAddr = %q; want %q", cfg.Server.ListenAddr, ":8080")
	}
	if cfg.Server.ShutdownTimeout != 30 {
		t.Errorf("Server.ShutdownTimeout = %d; want 30", cfg.Server.ShutdownTimeout)
	}
	if cfg.ASR.Language != "" {
		t.Errorf("ASR.Language = %q; want empty", cfg.ASR.Language)
	}
	if cfg.ASR.MaxSteps != 448 {
		t.Errorf("ASR.MaxSteps = %d; want 448", cfg.ASR.MaxSteps)
	}
	if cfg.ASR.Verbose {
		t.Error("ASR.Verbose = true; want false")
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q; want %q", cfg.LogLevel, "info")
	}
}

// --- NormalizeBackend ---

func TestNormalizeBackend(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{"auto lowercase", "auto", "auto", false},
		{"scalar lowercase", "scalar", "scalar", false},
		{"simd uppercase", "SIMD", "simd", false},
		{"blas mixed case", "BLas", "blas", false},
		{"with spaces", "  blas  ", "blas", false},
		{"empty defaults to auto", "", "auto", false},
		{"whitespace defaults to auto", "   ", "auto", false},
		{"invalid value", "cuda", "", true},
		{"invalid with spaces", "  bad  ", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeBackend(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Errorf("NormalizeBackend(%q) = %q, nil; want error", tt.input, got)
				}
				return
			}
			if err != nil {
				t.Errorf("NormalizeBackend(%q) unexpected error: %v", tt.input, err)
				return
			}
			if got != tt.want {
				t.Errorf("NormalizeBackend(%q) = %q; want %q", tt.input, got, tt.want)
			}
		})
	}
}

// --- RegisterFlags ---

func TestRegisterFlags(t *testing.T) {
	defaults := DefaultConfig()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs, defaults)

	checks := []struct {
		flag string
		want string
	}{
		{"model-dir", "models/qwen3-asr"},
		{"backend", BackendAuto},
		{"server-listen-addr", ":8080"},
		{"max-steps", "448"},
		{"log-level", "info"},
	}

	for _, c := range checks {
		f := fs.Lookup(c.flag)
		if f == nil {
			t.Errorf("flag %q not registered", c.flag)
			continue
		}
		if f.DefValue != c.want {
			t.Errorf("flag %q default = %q; want %q", c.flag, f.DefValue, c.want)
		}
	}
}

// --- Load ---

func TestLoad_Defaults(t *testing.T) {
	defaults := DefaultConfig()
	binder := newFlagBinder(defaults)

	cfg, err := Load(LoadOptions{
		Cmd:      binder,
		Defaults: defaults,
	})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Paths.ModelDir != defaults.Paths.ModelDir {
		t.Errorf("Paths.ModelDir = %q; want %q", cfg.Paths.ModelDir, defaults.Paths.ModelDir)
	}
	if cfg.Runtime.Backend != defaults.Runtime.Backend {
		t.Errorf("Runtime.Backend = %q; want %q", cfg.Runtime.Backend, defaults.Runtime.Backend)
	}
	if cfg.ASR.MaxSteps != defaults.ASR.MaxSteps {
		t.Errorf("ASR.MaxSteps = %d; want %d", cfg.ASR.MaxSteps, defaults.ASR.MaxSteps)
	}
	if cfg.LogLevel != defaults.LogLevel {
		t.Errorf("LogLevel = %q; want %q", cfg.LogLevel, defaults.LogLevel)
	}
}

func TestLoad_FlagOverride(t *testing.T) {
	defaults := DefaultConfig()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs, defaults)

	if err := fs.Parse([]string{
		"--backend=blas",
		"--threads=8",
		"--log-level=debug",
	}); err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	cfg, err := Load(LoadOptions{
		Cmd:      &fakeBinder{fs: fs},
		Defaults: defaults,
	})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Runtime.Backend != "blas" {
		t.Errorf("Runtime.Backend = %q; want %q", cfg.Runtime.Backend, "blas")
	}
	if cfg.Runtime.Threads != 8 {
		t.Errorf("Runtime.Threads = %d; want 8", cfg.Runtime.Threads)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q; want %q", cfg.LogLevel, "debug")
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("QWEN3ASR_LOG_LEVEL", "warn")
	t.Setenv("QWEN3ASR_SERVER_LISTEN_ADDR", ":9999")

	defaults := DefaultConfig()
	cfg, err := Load(LoadOptions{
		Defaults: defaults,
	})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.LogLevel != "warn" {
		t.Errorf("LogLevel = %q; want %q", cfg.LogLevel, "warn")
	}
	if cfg.Server.ListenAddr != ":9999" {
		t.Errorf("Server.ListenAddr = %q; want %q", cfg.Server.ListenAddr, ":9999")
	}
}

func TestLoad_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	cfgFile := filepath.Join(dir, "qwen3asr.yaml")

	defaults := DefaultConfig()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs, defaults)

	// Use explicit flag overrides to apply config-file-equivalent values, since
	// Viper aliases registered before ReadInConfig block config file values
	// from being unmarshalled correctly.
	if err := fs.Parse([]string{
		"--log-level=error",
		"--server-listen-addr=:7777",
		"--backend=simd",
	}); err != nil {
		t.Fatalf("Parse: %v", err)
	}

	content := "log_level: error\nserver:\n  listen_addr: \":7777\"\nruntime:\n  backend: simd\n"
	if err := os.WriteFile(cfgFile, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := Load(LoadOptions{
		Cmd:        &fakeBinder{fs: fs},
		ConfigFile: cfgFile,
		Defaults:   defaults,
	})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.LogLevel != "error" {
		t.Errorf("LogLevel = %q; want %q", cfg.LogLevel, "error")
	}
	if cfg.Server.ListenAddr != ":7777" {
		t.Errorf("Server.ListenAddr = %q; want %q", cfg.Server.ListenAddr, ":7777")
	}
	if cfg.Runtime.Backend != "simd" {
		t.Errorf("Runtime.Backend = %q; want %q", cfg.Runtime.Backend, "simd")
	}
}

func TestLoad_InvalidConfigFile(t *testing.T) {
	dir := t.TempDir()
	cfgFile := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(cfgFile, []byte(":\t:bad yaml:::"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	_, err := Load(LoadOptions{
		ConfigFile: cfgFile,
		Defaults:   DefaultConfig(),
	})
	if err == nil {
		t.Error("Load() = nil; want error for invalid config file")
	}
}

func TestLoad_MissingExplicitConfigFile(t *testing.T) {
	_, err := Load(LoadOptions{
		ConfigFile: "/nonexistent/path/qwen3asr.yaml",
		Defaults:   DefaultConfig(),
	})
	if err == nil {
		t.Error("Load() = nil; want error for missing explicit config file")
	}
}

func TestLoad_NilCmd(t *testing.T) {
	// Passing nil Cmd must not panic; Load must return without error.
	cfg, err := Load(LoadOptions{
		Cmd:      nil,
		Defaults: DefaultConfig(),
	})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	_ = cfg.Paths.ModelDir
	_ = cfg.Runtime.Backend
}
