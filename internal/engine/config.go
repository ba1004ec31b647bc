// Package engine builds the Qwen3-ASR encoder and decoder on top of the
// tensor/ops kernels: weight loading via a hierarchical VarBuilder, the
// transformer stacks, the KV cache, and the top-level Model that orchestrates
// both.
package engine

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/example/qwen3-asr-go/internal/asrerr"
)

// Config is the immutable model configuration read from config.json in the
// model directory, matching spec.md §3's Model configuration data.
type Config struct {
	SampleRate   int     `json:"sample_rate"`
	HopLength    int     `json:"hop_length"`
	WindowLength int     `json:"window_length"`
	MelBins      int     `json:"mel_bins"`

	EncDim       int     `json:"encoder_dim"`
	EncHeads     int     `json:"encoder_heads"`
	EncLayers    int     `json:"encoder_layers"`
	EncFFNMult   int     `json:"encoder_ffn_mult"`
	EncStemStride int    `json:"encoder_stem_stride"`
	EncPositional string `json:"encoder_positional"` // "rotary" | "sinusoidal"

	DecDim      int `json:"decoder_dim"`
	DecQHeads   int `json:"decoder_query_heads"`
	DecKVGroups int `json:"decoder_kv_groups"`
	DecLayers   int `json:"decoder_layers"`
	DecFFNMult  int `json:"decoder_ffn_mult"`

	VocabSize  int     `json:"vocab_size"`
	MaxContext int     `json:"max_context"`
	RopeTheta  float64 `json:"rope_theta"`
	RMSNormEps float32 `json:"rms_norm_eps"`
}

// DefaultConfig returns the 0.6B-variant defaults used when a model
// directory carries no config.json of its own, grounded in the Open
// Question decisions recorded in SPEC_FULL.md (rotary base 10000, rotary
// applied in the encoder).
func DefaultConfig() Config {
	return Config{
		SampleRate:    16000,
		HopLength:     160,
		WindowLength:  400,
		MelBins:       128,
		EncDim:        1024,
		EncHeads:      16,
		EncLayers:     24,
		EncFFNMult:    4,
		EncStemStride: 2,
		EncPositional: "rotary",
		DecDim:        1024,
		DecQHeads:     16,
		DecKVGroups:   4,
		DecLayers:     28,
		DecFFNMult:    4,
		VocabSize:     151936,
		MaxContext:    4096,
		RopeTheta:     10000.0,
		RMSNormEps:    1e-6,
	}
}

// LoadConfig reads config.json from the model directory, falling back to
// DefaultConfig's values for any field left zero.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}

		return Config{}, fmt.Errorf("engine: read %s: %w", path, err)
	}

	var raw Config
	if err := json.Unmarshal(data, &raw); err != nil {
		return Config{}, fmt.Errorf("engine: parse %s: %w", path, err)
	}

	merged := mergeConfig(cfg, raw)

	if err := merged.Validate(); err != nil {
		return Config{}, err
	}

	return merged, nil
}

func mergeConfig(base, override Config) Config {
	b := &base
	o := override

	setIfNonZero(&b.SampleRate, o.SampleRate)
	setIfNonZero(&b.HopLength, o.HopLength)
	setIfNonZero(&b.WindowLength, o.WindowLength)
	setIfNonZero(&b.MelBins, o.MelBins)
	setIfNonZero(&b.EncDim, o.EncDim)
	setIfNonZero(&b.EncHeads, o.EncHeads)
	setIfNonZero(&b.EncLayers, o.EncLayers)
	setIfNonZero(&b.EncFFNMult, o.EncFFNMult)
	setIfNonZero(&b.EncStemStride, o.EncStemStride)

	if o.EncPositional != "" {
		b.EncPositional = o.EncPositional
	}

	setIfNonZero(&b.DecDim, o.DecDim)
	setIfNonZero(&b.DecQHeads, o.DecQHeads)
	setIfNonZero(&b.DecKVGroups, o.DecKVGroups)
	setIfNonZero(&b.DecLayers, o.DecLayers)
	setIfNonZero(&b.DecFFNMult, o.DecFFNMult)
	setIfNonZero(&b.VocabSize, o.VocabSize)
	setIfNonZero(&b.MaxContext, o.MaxContext)

	if o.RopeTheta != 0 {
		b.RopeTheta = o.RopeTheta
	}

	if o.RMSNormEps != 0 {
		b.RMSNormEps = o.RMSNormEps
	}

	return *b
}

func setIfNonZero(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

// Validate checks internal consistency (head counts dividing evenly, etc.).
func (c Config) Validate() error {
	if c.DecQHeads <= 0 || c.DecKVGroups <= 0 || c.DecQHeads%c.DecKVGroups != 0 {
		return &asrerr.InvalidArgumentError{Reason: fmt.Sprintf("decoder query heads (%d) must be a positive multiple of kv groups (%d)", c.DecQHeads, c.DecKVGroups)}
	}

	if c.DecDim%c.DecQHeads != 0 {
		return &asrerr.InvalidArgumentError{Reason: fmt.Sprintf("decoder dim (%d) must divide evenly by query heads (%d)", c.DecDim, c.DecQHeads)}
	}

	if c.EncDim%c.EncHeads != 0 {
		return &asrerr.InvalidArgumentError{Reason: fmt.Sprintf("encoder dim (%d) must divide evenly by heads (%d)", c.EncDim, c.EncHeads)}
	}

	if c.EncPositional != "rotary" && c.EncPositional != "sinusoidal" {
		return &asrerr.InvalidArgumentError{Reason: fmt.Sprintf("encoder_positional must be rotary or sinusoidal, got %q", c.EncPositional)}
	}

	return nil
}

// DecHeadDim returns the per-head dimension for the decoder's GQA.
func (c Config) DecHeadDim() int64 { return int64(c.DecDim / c.DecQHeads) }

// EncHeadDim returns the per-head dimension for the encoder's MHA.
func (c Config) EncHeadDim() int64 { return int64(c.EncDim / c.EncHeads) }
