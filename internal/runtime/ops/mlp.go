package ops

import (
	"errors"

	"github.com/example/qwen3-asr-go/internal/runtime/tensor"
)

// SwiGLU computes out = silu(gate) ⊙ up, the gated elementwise product used
// by both the encoder and decoder feed-forward sublayers before the output
// projection.
func SwiGLU(gate, up *tensor.Tensor) (*tensor.Tensor, error) {
	if gate == nil || up == nil {
		return nil, errors.New("ops: swiglu requires non-nil gate and up")
	}

	activated, err := tensor.SiLU(gate)
	if err != nil {
		return nil, err
	}

	return tensor.Mul(activated, up)
}
