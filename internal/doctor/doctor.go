// Package doctor provides environment and model preflight checks for
// qwen3asr.
package doctor

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// PassMark and FailMark are the prefix symbols printed for each check result.
const (
	PassMark = "✓"
	FailMark = "✗"
)

// LanguagesFunc returns the comma-separated supported-language list, or an
// error if the tokenizer could not be loaded.
type LanguagesFunc func() (string, error)

// Config holds injectable dependencies for each doctor check.
type Config struct {
	// ModelDir is the directory expected to hold model.safetensors,
	// config.json, and vocab.json.
	ModelDir string
	// Backend is the normalized runtime backend name (auto|scalar|simd|blas).
	Backend string
	// Languages returns the tokenizer's supported-language list; nil skips
	// the check.
	Languages LanguagesFunc
}

// Result collects the outcome of all checks.
type Result struct {
	failures []string
}

// Failed reports whether any check failed.
func (r *Result) Failed() bool { return len(r.failures) > 0 }

// Failures returns the list of failure messages.
func (r *Result) Failures() []string { return append([]string(nil), r.failures...) }

// AddFailure appends an external failure message to the result.
func (r *Result) AddFailure(msg string) { r.failures = append(r.failures, msg) }

func (r *Result) fail(msg string) { r.failures = append(r.failures, msg) }

// Run executes all configured checks and writes human-readable output to w.
// Each check line is prefixed with PassMark or FailMark.
func Run(cfg Config, w io.Writer) Result {
	var res Result

	fmt.Fprintf(w, "%s backend: %s\n", PassMark, cfg.Backend)

	requiredFiles := []string{"model.safetensors", "vocab.json"}

	for _, name := range requiredFiles {
		path := filepath.Join(cfg.ModelDir, name)
		if _, err := os.Stat(path); err != nil {
			res.fail(fmt.Sprintf("model file %q: %v", path, err))
			fmt.Fprintf(w, "%s model file: %s: not found\n", FailMark, path)
		} else {
			fmt.Fprintf(w, "%s model file: %s\n", PassMark, path)
		}
	}

	configPath := filepath.Join(cfg.ModelDir, "config.json")
	if _, err := os.Stat(configPath); err != nil {
		fmt.Fprintf(w, "%s model config: %s: not found, using defaults\n", PassMark, configPath)
	} else {
		fmt.Fprintf(w, "%s model config: %s\n", PassMark, configPath)
	}

	if cfg.Languages != nil {
		langs, err := cfg.Languages()
		if err != nil {
			res.fail(fmt.Sprintf("tokenizer: %v", err))
			fmt.Fprintf(w, "%s tokenizer: %v\n", FailMark, err)
		} else if langs == "" {
			res.fail("tokenizer: no supported languages discovered in vocab.json")
			fmt.Fprintf(w, "%s tokenizer: no supported languages discovered\n", FailMark)
		} else {
			fmt.Fprintf(w, "%s tokenizer: languages=%s\n", PassMark, langs)
		}
	}

	return res
}
