package audio

import (
	"testing"

	"github.com/example/qwen3-asr-go/internal/testutil"
)

func TestMelSpectrogramShape(t *testing.T) {
	samples := testutil.SineWave(440, 0.5, ExpectedSampleRate)

	mel, nFrames, err := MelSpectrogram(samples)
	if err != nil {
		t.Fatalf("MelSpectrogram: %v", err)
	}

	wantFrames := (len(samples) + HopLength - 1) / HopLength
	if nFrames != wantFrames {
		t.Fatalf("unexpected frame count: got %d want %d", nFrames, wantFrames)
	}

	if len(mel) != MelBins*nFrames {
		t.Fatalf("unexpected mel buffer length: got %d want %d", len(mel), MelBins*nFrames)
	}
}

func TestMelSpectrogramClampedRange(t *testing.T) {
	samples := testutil.SineWave(1000, 0.2, ExpectedSampleRate)

	mel, _, err := MelSpectrogram(samples)
	if err != nil {
		t.Fatalf("MelSpectrogram: %v", err)
	}

	for i, v := range mel {
		if v < -12.0 || v > 4.0 {
			t.Fatalf("mel value at %d out of clamped range: %f", i, v)
		}
	}
}

func TestMelSpectrogramEmptyInput(t *testing.T) {
	mel, nFrames, err := MelSpectrogram(nil)
	if err != nil {
		t.Fatalf("MelSpectrogram: %v", err)
	}

	if nFrames != 0 || len(mel) != 0 {
		t.Fatalf("expected empty output for empty input, got nFrames=%d len=%d", nFrames, len(mel))
	}
}
