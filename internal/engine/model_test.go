package engine

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/example/qwen3-asr-go/internal/testutil"
)

func TestLoadModelFromDirectory(t *testing.T) {
	cfg := tinyConfig()

	dir := t.TempDir()

	blob := testutil.BuildSafetensors(tinyTensors(cfg))
	if err := os.WriteFile(filepath.Join(dir, "model.safetensors"), blob, 0o644); err != nil {
		t.Fatalf("write model.safetensors: %v", err)
	}

	cfgJSON, err := json.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}

	if err := os.WriteFile(filepath.Join(dir, "config.json"), cfgJSON, 0o644); err != nil {
		t.Fatalf("write config.json: %v", err)
	}

	model, err := LoadModel(dir)
	if err != nil {
		t.Fatalf("LoadModel: %v", err)
	}
	defer model.Close()

	if model.Config != cfg {
		t.Fatalf("loaded config mismatch: got %+v want %+v", model.Config, cfg)
	}

	if model.Encoder == nil || model.Decoder == nil {
		t.Fatal("expected both encoder and decoder to be populated")
	}
}

func TestLoadModelMissingSafetensorsErrors(t *testing.T) {
	dir := t.TempDir()

	if _, err := LoadModel(dir); err == nil {
		t.Fatal("expected error when model.safetensors is absent")
	}
}
