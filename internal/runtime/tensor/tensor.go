// Package tensor implements a dense row-major float32 tensor and the
// numerical kernels (matmul, norms, activations, rotary embedding) the
// encoder and decoder are built from. The SIMD dot-product kernel is chosen
// once at process init; GEMM takes the BLAS path per call when the matrices
// are large enough.
package tensor

import (
	"errors"
	"fmt"
)

// Tensor is a dense, row-major float32 tensor.
type Tensor struct {
	shape []int64
	data  []float32
}

// New creates a tensor from data and shape, copying both.
func New(data []float32, shape []int64) (*Tensor, error) {
	total, err := shapeElemCount(shape)
	if err != nil {
		return nil, err
	}

	if len(data) != total {
		return nil, fmt.Errorf("tensor: data length %d does not match shape %v (%d elements)", len(data), shape, total)
	}

	return &Tensor{
		shape: append([]int64(nil), shape...),
		data:  append([]float32(nil), data...),
	}, nil
}

// newOwned creates a Tensor taking ownership of data/shape without copying.
// Callers must not retain or mutate the slices afterward.
func newOwned(data []float32, shape []int64) *Tensor {
	return &Tensor{shape: shape, data: data}
}

// Zeros creates a zero-initialized tensor.
func Zeros(shape []int64) (*Tensor, error) {
	total, err := shapeElemCount(shape)
	if err != nil {
		return nil, err
	}

	return &Tensor{shape: append([]int64(nil), shape...), data: make([]float32, total)}, nil
}

// Shape returns a copy of the tensor's shape.
func (t *Tensor) Shape() []int64 {
	if t == nil {
		return nil
	}

	return append([]int64(nil), t.shape...)
}

// RawData returns the underlying data slice. Callers must treat the weight
// tensors returned by the engine as read-only; scratch tensors may be
// written through this slice by kernels.
func (t *Tensor) RawData() []float32 {
	if t == nil {
		return nil
	}

	return t.data
}

// ElemCount returns the total number of elements.
func (t *Tensor) ElemCount() int {
	if t == nil {
		return 0
	}

	return len(t.data)
}

// Rank returns the number of dimensions.
func (t *Tensor) Rank() int {
	if t == nil {
		return 0
	}

	return len(t.shape)
}

// Dim returns the size of dimension i, supporting negative indices.
func (t *Tensor) Dim(i int) int64 {
	d, err := normalizeDim(i, t.Rank())
	if err != nil {
		return 0
	}

	return t.shape[d]
}

// Clone returns a deep copy.
func (t *Tensor) Clone() *Tensor {
	if t == nil {
		return nil
	}

	dup, _ := New(t.data, t.shape)

	return dup
}

// Reshape returns a tensor with a new shape over a copy of the same values.
func (t *Tensor) Reshape(shape []int64) (*Tensor, error) {
	if t == nil {
		return nil, errors.New("tensor: reshape on nil tensor")
	}

	total, err := shapeElemCount(shape)
	if err != nil {
		return nil, err
	}

	if total != len(t.data) {
		return nil, fmt.Errorf("tensor: cannot reshape %v (%d elements) to %v (%d elements)", t.shape, len(t.data), shape, total)
	}

	return &Tensor{shape: append([]int64(nil), shape...), data: append([]float32(nil), t.data...)}, nil
}

// Narrow slices the tensor along a single dimension.
func (t *Tensor) Narrow(dim int, start, length int64) (*Tensor, error) {
	if t == nil {
		return nil, errors.New("tensor: narrow on nil tensor")
	}

	dim, err := normalizeDim(dim, len(t.shape))
	if err != nil {
		return nil, fmt.Errorf("tensor: narrow: %w", err)
	}

	if start < 0 || length < 0 || start+length > t.shape[dim] {
		return nil, fmt.Errorf("tensor: narrow: range [%d:%d] out of bounds for dim %d size %d", start, start+length, dim, t.shape[dim])
	}

	outShape := append([]int64(nil), t.shape...)
	outShape[dim] = length

	out, err := Zeros(outShape)
	if err != nil {
		return nil, err
	}

	srcStrides := computeStrides(t.shape)
	outStrides := computeStrides(outShape)
	coord := make([]int64, len(outShape))
	srcCoord := make([]int64, len(t.shape))

	for i := range out.data {
		linearToCoord(int64(i), outShape, outStrides, coord)
		copy(srcCoord, coord)
		srcCoord[dim] += start
		out.data[i] = t.data[coordToLinear(srcCoord, srcStrides)]
	}

	return out, nil
}

// Transpose swaps dim1 and dim2.
func (t *Tensor) Transpose(dim1, dim2 int) (*Tensor, error) {
	if t == nil {
		return nil, errors.New("tensor: transpose on nil tensor")
	}

	rank := len(t.shape)

	d1, err := normalizeDim(dim1, rank)
	if err != nil {
		return nil, fmt.Errorf("tensor: transpose dim1: %w", err)
	}

	d2, err := normalizeDim(dim2, rank)
	if err != nil {
		return nil, fmt.Errorf("tensor: transpose dim2: %w", err)
	}

	if d1 == d2 {
		return t.Clone(), nil
	}

	outShape := append([]int64(nil), t.shape...)
	outShape[d1], outShape[d2] = outShape[d2], outShape[d1]

	out, err := Zeros(outShape)
	if err != nil {
		return nil, err
	}

	srcStrides := computeStrides(t.shape)
	outStrides := computeStrides(outShape)
	outCoord := make([]int64, rank)
	srcCoord := make([]int64, rank)

	for i := range out.data {
		linearToCoord(int64(i), outShape, outStrides, outCoord)
		copy(srcCoord, outCoord)
		srcCoord[d1], srcCoord[d2] = outCoord[d2], outCoord[d1]
		out.data[i] = t.data[coordToLinear(srcCoord, srcStrides)]
	}

	return out, nil
}

// Concat concatenates tensors along dim. All tensors must share rank and all
// dimensions except dim.
func Concat(tensors []*Tensor, dim int) (*Tensor, error) {
	if len(tensors) == 0 {
		return nil, errors.New("tensor: concat requires at least one tensor")
	}

	rank := tensors[0].Rank()

	d, err := normalizeDim(dim, rank)
	if err != nil {
		return nil, fmt.Errorf("tensor: concat: %w", err)
	}

	outShape := append([]int64(nil), tensors[0].shape...)
	outShape[d] = 0

	for _, t := range tensors {
		if t.Rank() != rank {
			return nil, fmt.Errorf("tensor: concat rank mismatch: %d vs %d", t.Rank(), rank)
		}

		for i := range rank {
			if i == d {
				continue
			}

			if t.shape[i] != outShape[i] {
				return nil, fmt.Errorf("tensor: concat shape mismatch on dim %d: %v vs %v", i, t.shape, outShape)
			}
		}

		outShape[d] += t.shape[d]
	}

	out, err := Zeros(outShape)
	if err != nil {
		return nil, err
	}

	outStrides := computeStrides(outShape)
	offset := int64(0)

	for _, t := range tensors {
		srcStrides := computeStrides(t.shape)
		coord := make([]int64, rank)

		for i := range t.data {
			linearToCoord(int64(i), t.shape, srcStrides, coord)
			dstCoord := append([]int64(nil), coord...)
			dstCoord[d] += offset
			out.data[coordToLinear(dstCoord, outStrides)] = t.data[i]
		}

		offset += t.shape[d]
	}

	return out, nil
}

// EqualShape reports whether a and b name the same dimensions.
func EqualShape(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}

	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}

	return true
}
