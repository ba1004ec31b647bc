package doctor

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeModelFiles(t *testing.T, dir string, withConfig bool) {
	t.Helper()

	if err := os.WriteFile(filepath.Join(dir, "model.safetensors"), []byte("stub"), 0o644); err != nil {
		t.Fatalf("write model.safetensors: %v", err)
	}

	if err := os.WriteFile(filepath.Join(dir, "vocab.json"), []byte("{}"), 0o644); err != nil {
		t.Fatalf("write vocab.json: %v", err)
	}

	if withConfig {
		if err := os.WriteFile(filepath.Join(dir, "config.json"), []byte("{}"), 0o644); err != nil {
			t.Fatalf("write config.json: %v", err)
		}
	}
}

func TestRunPassesWithAllFilesAndLanguages(t *testing.T) {
	dir := t.TempDir()
	writeModelFiles(t, dir, true)

	cfg := Config{
		ModelDir: dir,
		Backend:  "auto",
		Languages: func() (string, error) {
			return "en,de", nil
		},
	}

	var buf bytes.Buffer

	res := Run(cfg, &buf)

	if res.Failed() {
		t.Fatalf("expected success, got failures: %v", res.Failures())
	}

	if buf.Len() == 0 {
		t.Fatal("expected doctor output to be written")
	}
}

func TestRunFailsOnMissingModelFile(t *testing.T) {
	dir := t.TempDir()
	// Only write vocab.json, not model.safetensors.
	if err := os.WriteFile(filepath.Join(dir, "vocab.json"), []byte("{}"), 0o644); err != nil {
		t.Fatalf("write vocab.json: %v", err)
	}

	var buf bytes.Buffer

	res := Run(Config{ModelDir: dir, Backend: "auto"}, &buf)

	if !res.Failed() {
		t.Fatal("expected failure for missing model.safetensors")
	}
}

func TestRunFailsOnTokenizerError(t *testing.T) {
	dir := t.TempDir()
	writeModelFiles(t, dir, false)

	cfg := Config{
		ModelDir: dir,
		Backend:  "blas",
		Languages: func() (string, error) {
			return "", errors.New("vocab.json not found")
		},
	}

	var buf bytes.Buffer

	res := Run(cfg, &buf)

	if !res.Failed() {
		t.Fatal("expected failure when the tokenizer check errors")
	}
}

func TestRunFailsOnEmptyLanguages(t *testing.T) {
	dir := t.TempDir()
	writeModelFiles(t, dir, true)

	cfg := Config{
		ModelDir: dir,
		Backend:  "auto",
		Languages: func() (string, error) {
			return "", nil
		},
	}

	var buf bytes.Buffer

	res := Run(cfg, &buf)

	if !res.Failed() {
		t.Fatal("expected failure when no languages are discovered")
	}
}

func TestRunSkipsLanguageCheckWhenNil(t *testing.T) {
	dir := t.TempDir()
	writeModelFiles(t, dir, true)

	var buf bytes.Buffer

	res := Run(Config{ModelDir: dir, Backend: "auto"}, &buf)

	if res.Failed() {
		t.Fatalf("expected success without a Languages check, got: %v", res.Failures())
	}
}

func TestResultAddFailure(t *testing.T) {
	var res Result

	if res.Failed() {
		t.Fatal("expected a fresh Result to report no failures")
	}

	res.AddFailure("something broke")

	if !res.Failed() {
		t.Fatal("expected Failed() to report true after AddFailure")
	}

	if got := res.Failures(); len(got) != 1 || got[0] != "something broke" {
		t.Fatalf("Failures() = %v; want [\"something broke\"]", got)
	}
}
