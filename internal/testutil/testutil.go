// Package testutil provides shared fixtures for package tests: synthetic
// PCM audio, a minimal in-memory safetensors builder, and a minimal
// vocab.json builder, so encoder/decoder/tokenizer/safetensors tests don't
// need a real checkpoint on disk.
package testutil

import (
	"encoding/binary"
	"encoding/json"
	"math"
)

// SineWave generates a mono float32 PCM sine wave at the given frequency,
// duration, and sample rate, in approximately [-1, 1].
func SineWave(freqHz, durationSec float64, sampleRate int) []float32 {
	n := int(durationSec * float64(sampleRate))
	out := make([]float32, n)

	for i := range out {
		t := float64(i) / float64(sampleRate)
		out[i] = float32(0.5 * math.Sin(2*math.Pi*freqHz*t))
	}

	return out
}

// TensorSpec describes one tensor to embed in a built safetensors payload.
type TensorSpec struct {
	Shape []int64
	Data  []float32
}

// BuildSafetensors encodes tensors as an in-memory F32 safetensors payload
// (8-byte header length + JSON header + raw little-endian float32 data),
// matching the format internal/safetensors.OpenFromBytes parses.
func BuildSafetensors(tensors map[string]TensorSpec) []byte {
	type meta struct {
		DType   string  `json:"dtype"`
		Shape   []int64 `json:"shape"`
		Offsets [2]int  `json:"data_offsets"`
	}

	header := make(map[string]meta, len(tensors))
	var payload []byte

	for name, spec := range tensors {
		start := len(payload)

		buf := make([]byte, 4*len(spec.Data))
		for i, v := range spec.Data {
			binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
		}

		payload = append(payload, buf...)

		header[name] = meta{
			DType:   "F32",
			Shape:   spec.Shape,
			Offsets: [2]int{start, len(payload)},
		}
	}

	headerJSON, _ := json.Marshal(header)

	out := make([]byte, 8+len(headerJSON)+len(payload))
	binary.LittleEndian.PutUint64(out[:8], uint64(len(headerJSON)))
	copy(out[8:], headerJSON)
	copy(out[8+len(headerJSON):], payload)

	return out
}

// VocabSpec describes the contents of a vocab.json fixture.
type VocabSpec struct {
	Vocab         map[string]int64
	Merges        []string
	SpecialTokens map[string]int64
}

// BuildVocabJSON encodes a VocabSpec as vocab.json bytes, matching the
// format internal/tokenizer.Load parses.
func BuildVocabJSON(spec VocabSpec) []byte {
	type vocabFile struct {
		Vocab         map[string]int64 `json:"vocab"`
		Merges        []string         `json:"merges"`
		SpecialTokens map[string]int64 `json:"special_tokens"`
	}

	data, _ := json.Marshal(vocabFile{
		Vocab:         spec.Vocab,
		Merges:        spec.Merges,
		SpecialTokens: spec.SpecialTokens,
	})

	return data
}
