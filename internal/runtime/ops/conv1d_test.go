package ops

import (
	"testing"

	"github.com/example/qwen3-asr-go/internal/runtime/tensor"
)

func TestConv1DOutputLength(t *testing.T) {
	input, err := tensor.New([]float32{1, 2, 3, 4, 5, 6}, []int64{1, 6})
	if err != nil {
		t.Fatalf("New input: %v", err)
	}

	kernel, err := tensor.New([]float32{1, 1, 1}, []int64{1, 1, 3})
	if err != nil {
		t.Fatalf("New kernel: %v", err)
	}

	out, err := Conv1D(input, kernel, nil, 2, 1)
	if err != nil {
		t.Fatalf("Conv1D: %v", err)
	}

	// length=6, padding=1, kernel=3, stride=2 -> floor((6+2-3)/2)+1 = 3
	if out.Dim(1) != 3 {
		t.Fatalf("expected output length 3, got %d", out.Dim(1))
	}
}

func TestConv1DSumKernelMatchesWindowSum(t *testing.T) {
	input, err := tensor.New([]float32{1, 2, 3, 4}, []int64{1, 4})
	if err != nil {
		t.Fatalf("New input: %v", err)
	}

	kernel, err := tensor.New([]float32{1, 1}, []int64{1, 1, 2})
	if err != nil {
		t.Fatalf("New kernel: %v", err)
	}

	out, err := Conv1D(input, kernel, nil, 1, 0)
	if err != nil {
		t.Fatalf("Conv1D: %v", err)
	}

	assertCloseSlice(t, out.RawData(), []float32{3, 5, 7}, 1e-6)
}

func TestConv1DRejectsChannelMismatch(t *testing.T) {
	input, _ := tensor.New([]float32{1, 2, 3, 4}, []int64{2, 2})
	kernel, _ := tensor.New([]float32{1, 1}, []int64{1, 1, 2})

	if _, err := Conv1D(input, kernel, nil, 1, 0); err == nil {
		t.Fatal("expected error for channel mismatch")
	}
}
