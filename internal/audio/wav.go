// Package audio provides the WAV decode collaborator and the mel
// spectrogram front-end the core consumes.
package audio

import (
	"bytes"
	"fmt"

	"github.com/cwbudde/wav"
	"github.com/example/qwen3-asr-go/internal/asrerr"
)

// ExpectedSampleRate is the only sample rate the core accepts, per the
// spec's caller contract.
const ExpectedSampleRate = 16000

// DecodeWAV decodes mono 16 kHz PCM WAV bytes into normalized float32
// samples in approximately [-1, 1]. It is a thin shell: the core never
// parses audio containers itself.
func DecodeWAV(data []byte) ([]float32, error) {
	if len(data) == 0 {
		return nil, &asrerr.InvalidArgumentError{Reason: "empty WAV input"}
	}

	dec := wav.NewDecoder(bytes.NewReader(data))
	if !dec.IsValidFile() {
		return nil, &asrerr.InvalidArgumentError{Reason: "invalid WAV file"}
	}

	if dec.SampleRate != ExpectedSampleRate {
		return nil, &asrerr.InvalidArgumentError{
			Reason: fmt.Sprintf("sample rate %d, want %d", dec.SampleRate, ExpectedSampleRate),
		}
	}

	if dec.NumChans != 1 {
		return nil, &asrerr.InvalidArgumentError{Reason: fmt.Sprintf("channels %d, want 1 (mono)", dec.NumChans)}
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("audio: read PCM data: %w", err)
	}

	bitDepth := buf.SourceBitDepth
	if bitDepth == 0 {
		bitDepth = int(dec.BitDepth)
	}

	fullScale := float32(int64(1) << (bitDepth - 1))
	samples := make([]float32, len(buf.Data))

	for i, v := range buf.Data {
		samples[i] = float32(v) / fullScale
	}

	return samples, nil
}
