package ops

import (
	"fmt"

	"github.com/example/qwen3-asr-go/internal/runtime/tensor"
)

// SplitHeads reshapes a [seq, dim] hidden-state tensor into the
// [heads, seq, dim/heads] layout GroupedQueryAttention and RoPEApply expect.
func SplitHeads(x *tensor.Tensor, heads int) (*tensor.Tensor, error) {
	if x.Rank() != 2 {
		return nil, fmt.Errorf("ops: split_heads expects rank-2 [seq, dim], got rank %d", x.Rank())
	}

	seq := x.Dim(0)
	dim := x.Dim(1)

	if heads <= 0 || dim%int64(heads) != 0 {
		return nil, fmt.Errorf("ops: split_heads dim %d not divisible by heads %d", dim, heads)
	}

	headDim := dim / int64(heads)

	reshaped, err := x.Reshape([]int64{seq, int64(heads), headDim})
	if err != nil {
		return nil, err
	}

	return reshaped.Transpose(0, 1)
}

// MergeHeads is the inverse of SplitHeads: [heads, seq, headDim] -> [seq, dim].
func MergeHeads(x *tensor.Tensor) (*tensor.Tensor, error) {
	if x.Rank() != 3 {
		return nil, fmt.Errorf("ops: merge_heads expects rank-3 [heads, seq, headDim], got rank %d", x.Rank())
	}

	transposed, err := x.Transpose(0, 1)
	if err != nil {
		return nil, err
	}

	seq := transposed.Dim(0)
	heads := transposed.Dim(1)
	headDim := transposed.Dim(2)

	return transposed.Reshape([]int64{seq, heads * headDim})
}

// ApplyRoPEPerHead rotates every head of a [heads, seq, headDim] tensor using
// the same cos/sin table and base position, since RoPE is head-independent.
func ApplyRoPEPerHead(x, cos, sin *tensor.Tensor, pos int64) (*tensor.Tensor, error) {
	if x.Rank() != 3 {
		return nil, fmt.Errorf("ops: apply_rope_per_head expects rank-3 input, got rank %d", x.Rank())
	}

	heads := x.Dim(0)
	seq := x.Dim(1)
	headDim := x.Dim(2)

	out, err := tensor.Zeros([]int64{heads, seq, headDim})
	if err != nil {
		return nil, err
	}

	for h := int64(0); h < heads; h++ {
		slice, err := x.Narrow(0, h, 1)
		if err != nil {
			return nil, err
		}

		slice, err = slice.Reshape([]int64{seq, headDim})
		if err != nil {
			return nil, err
		}

		rotated, err := tensor.RoPEApply(slice, cos, sin, pos)
		if err != nil {
			return nil, err
		}

		copy(out.RawData()[h*seq*headDim:(h+1)*seq*headDim], rotated.RawData())
	}

	return out, nil
}
