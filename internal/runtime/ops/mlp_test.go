package ops

import (
	"testing"

	"github.com/example/qwen3-asr-go/internal/runtime/tensor"
)

func TestSwiGLUMatchesManualComputation(t *testing.T) {
	gate, err := tensor.New([]float32{0, 1, -1}, []int64{3})
	if err != nil {
		t.Fatalf("New gate: %v", err)
	}

	up, err := tensor.New([]float32{2, 3, 4}, []int64{3})
	if err != nil {
		t.Fatalf("New up: %v", err)
	}

	out, err := SwiGLU(gate, up)
	if err != nil {
		t.Fatalf("SwiGLU: %v", err)
	}

	silu, err := tensor.SiLU(gate)
	if err != nil {
		t.Fatalf("SiLU: %v", err)
	}

	want := make([]float32, 3)
	for i := range want {
		want[i] = silu.RawData()[i] * up.RawData()[i]
	}

	assertCloseSlice(t, out.RawData(), want, 1e-6)
}
