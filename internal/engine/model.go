package engine

import (
	"fmt"
	"path/filepath"

	"github.com/example/qwen3-asr-go/internal/safetensors"
)

// Model owns every weight tensor for one Qwen3-ASR checkpoint and the
// encoder/decoder graphs built over them.
type Model struct {
	Config  Config
	store   *safetensors.Store
	Encoder *Encoder
	Decoder *Decoder
}

// LoadModel opens model.safetensors and config.json under dir and builds the
// full encoder/decoder weight graph.
func LoadModel(dir string) (*Model, error) {
	store, err := safetensors.Open(filepath.Join(dir, "model.safetensors"))
	if err != nil {
		return nil, err
	}

	cfg, err := LoadConfig(filepath.Join(dir, "config.json"))
	if err != nil {
		store.Close()
		return nil, err
	}

	vb := NewVarBuilder(store)

	enc, err := LoadEncoder(vb, cfg)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("engine: load encoder: %w", err)
	}

	dec, err := LoadDecoder(vb, cfg)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("engine: load decoder: %w", err)
	}

	return &Model{Config: cfg, store: store, Encoder: enc, Decoder: dec}, nil
}

// Close releases the underlying safetensors store.
func (m *Model) Close() {
	if m.store != nil {
		m.store.Close()
	}
}
