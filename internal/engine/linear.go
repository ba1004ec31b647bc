package engine

import (
	"github.com/example/qwen3-asr-go/internal/asrerr"
	"github.com/example/qwen3-asr-go/internal/runtime/tensor"
)

// Linear wraps a weight/bias pair loaded from the checkpoint. Forward
// validates input shape; ForwardTrusted skips that check for hot decode-step
// callers that already know their shapes are correct, mirroring the
// validate-then-trust split the teacher's native Linear layer uses.
type Linear struct {
	weight *tensor.Tensor // [out, in]
	bias   *tensor.Tensor // [out] or nil
	in     int64
	out    int64
}

// NewLinear loads name.weight and an optional name.bias under vb.
func NewLinear(vb *VarBuilder, name string, in, out int64) (*Linear, error) {
	w, err := vb.RequireTensor(name+".weight", out, in)
	if err != nil {
		return nil, err
	}

	b, _, err := vb.TensorMaybe(name+".bias", out)
	if err != nil {
		return nil, err
	}

	return &Linear{weight: w, bias: b, in: in, out: out}, nil
}

// Forward computes x @ W^T + b, validating x's trailing dimension.
func (l *Linear) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	if x.Dim(x.Rank()-1) != l.in {
		return nil, &asrerr.ShapeMismatchError{Name: "linear.input", Expected: []int64{-1, l.in}, Actual: x.Shape()}
	}

	return l.ForwardTrusted(x)
}

// ForwardTrusted skips shape validation for hot per-step decode paths.
func (l *Linear) ForwardTrusted(x *tensor.Tensor) (*tensor.Tensor, error) {
	return tensor.Linear(x, l.weight, l.bias)
}

// OutDim reports the layer's output width.
func (l *Linear) OutDim() int64 { return l.out }

// RMSNorm wraps a single learned gain vector for pre-norm transformer blocks.
type RMSNorm struct {
	gain *tensor.Tensor
	eps  float32
}

// NewRMSNorm loads name+".weight" under vb.
func NewRMSNorm(vb *VarBuilder, name string, dim int64, eps float32) (*RMSNorm, error) {
	g, err := vb.RequireTensor(name+".weight", dim)
	if err != nil {
		return nil, err
	}

	return &RMSNorm{gain: g, eps: eps}, nil
}

// Forward normalizes the last dimension of x in place on a clone and returns it.
func (n *RMSNorm) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	return tensor.RMSNorm(x, n.gain, n.eps)
}
