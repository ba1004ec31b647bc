package ops

import (
	"testing"

	"github.com/example/qwen3-asr-go/internal/runtime/tensor"
)

func TestSplitHeadsMergeHeadsRoundTrip(t *testing.T) {
	data := make([]float32, 4*8)
	for i := range data {
		data[i] = float32(i)
	}

	x, err := tensor.New(data, []int64{4, 8})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	split, err := SplitHeads(x, 2)
	if err != nil {
		t.Fatalf("SplitHeads: %v", err)
	}

	if !tensor.EqualShape(split.Shape(), []int64{2, 4, 4}) {
		t.Fatalf("unexpected split shape: %v", split.Shape())
	}

	merged, err := MergeHeads(split)
	if err != nil {
		t.Fatalf("MergeHeads: %v", err)
	}

	assertCloseSlice(t, merged.RawData(), x.RawData(), 0)
}

func TestApplyRoPEPerHeadMatchesPerHeadRoPEApply(t *testing.T) {
	cos, sin, err := tensor.BuildRoPETable(8, 4, 10000.0)
	if err != nil {
		t.Fatalf("BuildRoPETable: %v", err)
	}

	x, err := tensor.New([]float32{
		1, 2, 3, 4,
		5, 6, 7, 8,
	}, []int64{2, 1, 4})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	got, err := ApplyRoPEPerHead(x, cos, sin, 2)
	if err != nil {
		t.Fatalf("ApplyRoPEPerHead: %v", err)
	}

	for h := int64(0); h < 2; h++ {
		headSlice, err := x.Narrow(0, h, 1)
		if err != nil {
			t.Fatalf("Narrow: %v", err)
		}

		headSlice, err = headSlice.Reshape([]int64{1, 4})
		if err != nil {
			t.Fatalf("Reshape: %v", err)
		}

		want, err := tensor.RoPEApply(headSlice, cos, sin, 2)
		if err != nil {
			t.Fatalf("RoPEApply: %v", err)
		}

		gotSlice := got.RawData()[h*4 : (h+1)*4]
		assertCloseSlice(t, gotSlice, want.RawData(), 1e-6)
	}
}

func TestSplitHeadsRejectsIndivisibleDim(t *testing.T) {
	x, err := tensor.New([]float32{1, 2, 3}, []int64{1, 3})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if _, err := SplitHeads(x, 2); err == nil {
		t.Fatal("expected error for dim not divisible by heads")
	}
}
