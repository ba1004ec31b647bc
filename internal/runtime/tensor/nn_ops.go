package tensor

import (
	"errors"
	"fmt"
	"math"
)

// Softmax applies a numerically stable softmax along dim: the per-row
// maximum is subtracted before exponentiation so rows sum to 1.0 within
// 1e-5 even when shifted by large constants.
func Softmax(x *Tensor, dim int) (*Tensor, error) {
	if x == nil {
		return nil, errors.New("tensor: softmax on nil tensor")
	}

	if len(x.shape) == 0 {
		return nil, errors.New("tensor: softmax requires rank >= 1")
	}

	dim, err := normalizeDim(dim, len(x.shape))
	if err != nil {
		return nil, fmt.Errorf("tensor: softmax: %w", err)
	}

	axis := x.shape[dim]
	if axis <= 0 {
		return nil, fmt.Errorf("tensor: softmax axis dimension must be > 0, got %d", axis)
	}

	inner := int64(1)
	for i := dim + 1; i < len(x.shape); i++ {
		inner *= x.shape[i]
	}

	outer := int64(1)
	for i := 0; i < dim; i++ {
		outer *= x.shape[i]
	}

	out := x.Clone()

	for o := int64(0); o < outer; o++ {
		for in := int64(0); in < inner; in++ {
			base := o*axis*inner + in
			softmaxRow(out.data, base, axis, inner)
		}
	}

	return out, nil
}

func softmaxRow(data []float32, base, axis, inner int64) {
	maxV := float32(math.Inf(-1))

	for k := int64(0); k < axis; k++ {
		v := data[base+k*inner]
		if v > maxV {
			maxV = v
		}
	}

	var sum float64

	for k := int64(0); k < axis; k++ {
		i := base + k*inner
		e := math.Exp(float64(data[i] - maxV))
		data[i] = float32(e)
		sum += e
	}

	if sum == 0 {
		sum = 1
	}

	inv := float32(1.0 / sum)

	for k := int64(0); k < axis; k++ {
		data[base+k*inner] *= inv
	}
}

// RMSNorm normalizes the last dimension by root-mean-square and applies a
// learned gain: x / sqrt(mean(x^2) + eps) * gain.
func RMSNorm(x, gain *Tensor, eps float32) (*Tensor, error) {
	if x == nil {
		return nil, errors.New("tensor: rmsnorm input is nil")
	}

	if x.Rank() < 1 {
		return nil, errors.New("tensor: rmsnorm requires rank >= 1")
	}

	if eps <= 0 {
		return nil, errors.New("tensor: rmsnorm eps must be > 0")
	}

	d := x.shape[len(x.shape)-1]
	if d <= 0 {
		return nil, errors.New("tensor: rmsnorm last dimension must be > 0")
	}

	if gain != nil && (gain.Rank() != 1 || gain.shape[0] != d) {
		return nil, fmt.Errorf("tensor: rmsnorm gain shape %v does not match last dimension %d", gain.shape, d)
	}

	out := x.Clone()
	dd := int(d)
	outer := len(x.data) / dd

	runRows := func(lo, hi int) {
		for o := lo; o < hi; o++ {
			start := o * dd
			slice := out.data[start : start+dd]

			var ss float64
			for _, v := range slice {
				ss += float64(v) * float64(v)
			}

			invRMS := float32(1.0 / math.Sqrt(ss/float64(dd)+float64(eps)))

			for i := range dd {
				n := slice[i] * invRMS
				if gain != nil {
					n *= gain.data[i]
				}

				slice[i] = n
			}
		}
	}

	const rmsNormParallelMinOps = int64(1 << 17)
	if Workers() > 1 && outer > 1 && int64(len(x.data)) >= rmsNormParallelMinOps {
		ParallelFor(outer, runRows)
	} else {
		runRows(0, outer)
	}

	return out, nil
}

// LayerNorm normalizes the last dimension (mean and variance) and applies
// optional weight/bias.
func LayerNorm(x, weight, bias *Tensor, eps float32) (*Tensor, error) {
	if x == nil {
		return nil, errors.New("tensor: layernorm input is nil")
	}

	if x.Rank() < 1 {
		return nil, errors.New("tensor: layernorm requires rank >= 1")
	}

	if eps <= 0 {
		return nil, errors.New("tensor: layernorm eps must be > 0")
	}

	d := x.shape[len(x.shape)-1]
	if d <= 0 {
		return nil, errors.New("tensor: layernorm last dimension must be > 0")
	}

	out := x.Clone()
	dd := int(d)
	outer := len(x.data) / dd

	for o := 0; o < outer; o++ {
		start := o * dd
		slice := out.data[start : start+dd]

		var mean float64
		for _, v := range slice {
			mean += float64(v)
		}

		mean /= float64(dd)

		var variance float64

		for _, v := range slice {
			delta := float64(v) - mean
			variance += delta * delta
		}

		variance /= float64(dd)

		invStd := float32(1.0 / math.Sqrt(variance+float64(eps)))

		for i := range dd {
			n := (slice[i] - float32(mean)) * invStd
			if weight != nil {
				n *= weight.data[i]
			}

			if bias != nil {
				n += bias.data[i]
			}

			slice[i] = n
		}
	}

	return out, nil
}

// SiLU applies x * sigmoid(x) element-wise, returning a new tensor.
func SiLU(x *Tensor) (*Tensor, error) {
	if x == nil {
		return nil, errors.New("tensor: silu on nil tensor")
	}

	out := x.Clone()
	for i, v := range out.data {
		out.data[i] = v / (1 + float32(math.Exp(float64(-v))))
	}

	return out, nil
}

// GELU applies the exact (erf-based) Gaussian error linear unit.
func GELU(x *Tensor) (*Tensor, error) {
	if x == nil {
		return nil, errors.New("tensor: gelu on nil tensor")
	}

	const invSqrt2 = 0.7071067811865476

	out := x.Clone()
	for i, v := range out.data {
		out.data[i] = v * float32(0.5*(1+math.Erf(float64(v)*invSqrt2)))
	}

	return out, nil
}

// Argmax returns the index of the maximum value in x (flat).
func Argmax(x *Tensor) (int, error) {
	if x == nil || len(x.data) == 0 {
		return 0, errors.New("tensor: argmax on empty tensor")
	}

	return ArgmaxSlice(x.data), nil
}

// ArgmaxSlice returns the index of the maximum value in a raw slice.
func ArgmaxSlice(x []float32) int {
	best := 0
	bestV := x[0]

	for i, v := range x[1:] {
		if v > bestV {
			bestV = v
			best = i + 1
		}
	}

	return best
}

// EmbedLookup gathers rows of table (shape [vocab, dim]) at ids into out
// (shape [len(ids), dim]).
func EmbedLookup(table *Tensor, ids []int64) (*Tensor, error) {
	if table == nil || table.Rank() != 2 {
		return nil, errors.New("tensor: embed_lookup requires a rank-2 table")
	}

	vocab := table.shape[0]
	dim := int(table.shape[1])

	out, err := Zeros([]int64{int64(len(ids)), int64(dim)})
	if err != nil {
		return nil, err
	}

	for i, id := range ids {
		if id < 0 || id >= vocab {
			return nil, fmt.Errorf("tensor: embed_lookup id %d out of range [0,%d)", id, vocab)
		}

		copy(out.data[i*dim:(i+1)*dim], table.data[int(id)*dim:int(id)*dim+dim])
	}

	return out, nil
}

// AddInPlace computes a += b element-wise; a and b must have equal length.
func AddInPlace(a, b *Tensor) error {
	if a == nil || b == nil {
		return errors.New("tensor: add requires non-nil inputs")
	}

	if len(a.data) != len(b.data) {
		return fmt.Errorf("tensor: add length mismatch %d vs %d", len(a.data), len(b.data))
	}

	for i := range a.data {
		a.data[i] += b.data[i]
	}

	return nil
}

// Mul returns the element-wise (Hadamard) product of a and b.
func Mul(a, b *Tensor) (*Tensor, error) {
	if a == nil || b == nil {
		return nil, errors.New("tensor: mul requires non-nil inputs")
	}

	if len(a.data) != len(b.data) {
		return nil, fmt.Errorf("tensor: mul length mismatch %d vs %d", len(a.data), len(b.data))
	}

	out := a.Clone()
	for i := range out.data {
		out.data[i] *= b.data[i]
	}

	return out, nil
}
