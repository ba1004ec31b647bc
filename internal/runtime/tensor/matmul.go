package tensor

import (
	"errors"
	"fmt"
)

// MatMul performs batched matrix multiplication with broadcasting over any
// leading batch dimensions: a is [..., m, k], b is [..., k, n].
func MatMul(a, b *Tensor) (*Tensor, error) {
	if a == nil || b == nil {
		return nil, errors.New("tensor: matmul requires non-nil inputs")
	}

	if a.Rank() < 2 || b.Rank() < 2 {
		return nil, fmt.Errorf("tensor: matmul requires rank >= 2, got %d and %d", a.Rank(), b.Rank())
	}

	aShape := a.shape
	bShape := b.shape
	aRank := len(aShape)
	bRank := len(bShape)

	m := aShape[aRank-2]
	k := aShape[aRank-1]
	k2 := bShape[bRank-2]
	n := bShape[bRank-1]

	if k != k2 {
		return nil, fmt.Errorf("tensor: matmul mismatch: A shape %v and B shape %v (K dims %d vs %d)", aShape, bShape, k, k2)
	}

	aBatch := aShape[:aRank-2]
	bBatch := bShape[:bRank-2]

	batchShape, err := broadcastShape(aBatch, bBatch)
	if err != nil {
		return nil, fmt.Errorf("tensor: matmul batch broadcast: %w", err)
	}

	outShape := make([]int64, 0, len(batchShape)+2)
	outShape = append(outShape, batchShape...)
	outShape = append(outShape, m, n)

	out, err := Zeros(outShape)
	if err != nil {
		return nil, err
	}

	batchCount, err := shapeElemCount(batchShape)
	if err != nil {
		return nil, err
	}

	aStrides := computeStrides(aShape)
	bStrides := computeStrides(bShape)
	batchStrides := computeStrides(batchShape)
	batchCoords := make([]int64, len(batchShape))

	mI, nI, kI := int(m), int(n), int(k)
	aBatchStride := mI * kI
	bBatchStride := kI * nI
	outBatchStride := mI * nI

	runBatch := func(lo, hi int) {
		for batchIdx := lo; batchIdx < hi; batchIdx++ {
			linearToCoord(int64(batchIdx), batchShape, batchStrides, batchCoords)
			aOff := int(broadcastBatchOffset(batchCoords, aShape[:aRank-2], aStrides[:aRank-2]))
			bOff := int(broadcastBatchOffset(batchCoords, bShape[:bRank-2], bStrides[:bRank-2]))
			outOff := batchIdx * outBatchStride

			gemmDispatch(
				a.data[aOff:aOff+aBatchStride],
				b.data[bOff:bOff+bBatchStride],
				out.data[outOff:outOff+outBatchStride],
				mI, nI, kI,
			)
		}
	}

	if Workers() > 1 && batchCount > 1 {
		ParallelFor(batchCount, runBatch)
	} else {
		runBatch(0, batchCount)
	}

	return out, nil
}

// gemmDispatch computes C = A*B for row-major A[m,k], B[k,n], C[m,n],
// choosing the BLAS backend when compiled in and large enough to amortize
// its call overhead, falling back to the generic kernel otherwise.
func gemmDispatch(a, b, c []float32, m, n, k int) {
	if blasAvailable && int64(m)*int64(n)*int64(k) >= blasMinFMAs {
		gemmBLAS(a, b, c, m, n, k)
		return
	}

	gemmGeneric(a, b, c, m, n, k)
}

// gemmGeneric is the portable reference GEMM: row-major, no-transpose,
// C = A*B. It is also the implementation the GEMM-equivalence property
// compares the BLAS backend against.
func gemmGeneric(a, b, c []float32, m, n, k int) {
	runRows := func(lo, hi int) {
		for row := lo; row < hi; row++ {
			aRow := a[row*k : row*k+k]
			cRow := c[row*n : row*n+n]

			for j := 0; j < n; j++ {
				var sum float32
				for kk := 0; kk < k; kk++ {
					sum += aRow[kk] * b[kk*n+j]
				}

				cRow[j] = sum
			}
		}
	}

	const gemmParallelMinFMAs = int64(1 << 19)
	if Workers() > 1 && m > 1 && int64(m)*int64(n)*int64(k) >= gemmParallelMinFMAs {
		ParallelFor(m, runRows)
	} else {
		runRows(0, m)
	}
}

// GEMM exposes the dispatched kernel directly for callers (and tests) that
// work with raw row-major buffers instead of *Tensor, matching the spec's
// gemm(A,B,C,m,n,k,alpha,beta) surface for the alpha=1,beta=0 case used
// throughout this engine.
func GEMM(a, b, c []float32, m, n, k int) {
	gemmDispatch(a, b, c, m, n, k)
}

// GEMMGeneric exposes the generic kernel directly, for backend-equivalence
// tests.
func GEMMGeneric(a, b, c []float32, m, n, k int) {
	gemmGeneric(a, b, c, m, n, k)
}

// Linear applies y = x * W^T + b where weight has shape [out, in] and x has
// shape [..., in].
func Linear(x, weight, bias *Tensor) (*Tensor, error) {
	if x == nil || weight == nil {
		return nil, errors.New("tensor: linear requires non-nil x and weight")
	}

	if x.Rank() < 1 {
		return nil, errors.New("tensor: linear requires x rank >= 1")
	}

	if weight.Rank() != 2 {
		return nil, fmt.Errorf("tensor: linear weight must be rank 2, got %d", weight.Rank())
	}

	in := x.shape[x.Rank()-1]
	out := weight.shape[0]

	if weight.shape[1] != in {
		return nil, fmt.Errorf("tensor: linear mismatch: x last dim %d, weight in dim %d", in, weight.shape[1])
	}

	if bias != nil && (bias.Rank() != 1 || bias.shape[0] != out) {
		return nil, fmt.Errorf("tensor: linear bias shape %v does not match out dim %d", bias.shape, out)
	}

	inI, outI := int(in), int(out)
	batch := len(x.data) / inI
	outData := make([]float32, batch*outI)
	wData := weight.data

	runBatchRange := func(lo, hi int) {
		for bIdx := lo; bIdx < hi; bIdx++ {
			xSlice := x.data[bIdx*inI : bIdx*inI+inI]
			yBase := bIdx * outI

			for o := 0; o < outI; o++ {
				sum := DotProduct(xSlice, wData[o*inI:(o+1)*inI])
				if bias != nil {
					sum += bias.data[o]
				}

				outData[yBase+o] = sum
			}
		}
	}

	const linearParallelMinFMAs = int64(1 << 18)
	totalFMAs := int64(batch) * int64(outI) * int64(inI)

	if Workers() > 1 && totalFMAs >= linearParallelMinFMAs && batch > 1 {
		ParallelFor(batch, runBatchRange)
	} else {
		runBatchRange(0, batch)
	}

	outShape := make([]int64, x.Rank())
	copy(outShape, x.shape[:x.Rank()-1])
	outShape[x.Rank()-1] = out

	return newOwned(outData, outShape), nil
}

func broadcastShape(a, b []int64) ([]int64, error) {
	rank := len(a)
	if len(b) > rank {
		rank = len(b)
	}

	out := make([]int64, rank)

	for i := range rank {
		var av, bv int64 = 1, 1

		if idx := len(a) - rank + i; idx >= 0 {
			av = a[idx]
		}

		if idx := len(b) - rank + i; idx >= 0 {
			bv = b[idx]
		}

		switch {
		case av == bv:
			out[i] = av
		case av == 1:
			out[i] = bv
		case bv == 1:
			out[i] = av
		default:
			return nil, fmt.Errorf("tensor: cannot broadcast %v with %v", a, b)
		}
	}

	return out, nil
}

func broadcastBatchOffset(coord, shape, strides []int64) int64 {
	rank := len(shape)
	off := int64(0)
	skip := len(coord) - rank

	for i := 0; i < rank; i++ {
		c := coord[skip+i]
		if shape[i] == 1 {
			c = 0
		}

		off += c * strides[i]
	}

	return off
}
