package tensor

import "gonum.org/v1/gonum/blas/blas32"

// blasAvailable is always true here: gonum's blas32 package is a pure-Go
// reference BLAS, so unlike the Accelerate/OpenBLAS cgo bindings the
// original engine links against, this backend needs no build tag and is
// always compiled in. blasMinFMAs still gates its use so small matmuls
// (attention score rows, single-token decode steps) take the lower-overhead
// generic path instead.
const blasAvailable = true

// blasMinFMAs is the total multiply-add count (m*n*k) above which the BLAS
// backend's call overhead is worth paying.
const blasMinFMAs = int64(1 << 16)

// gemmBLAS computes C = A*B for row-major A[m,k], B[k,n], C[m,n] via
// gonum's blas32.Sgemm, the BLAS-accelerated GEMM path the spec requires
// alongside the generic kernel.
func gemmBLAS(a, b, c []float32, m, n, k int) {
	av := blas32.General{Rows: m, Cols: k, Stride: k, Data: a}
	bv := blas32.General{Rows: k, Cols: n, Stride: n, Data: b}
	cv := blas32.General{Rows: m, Cols: n, Stride: n, Data: c}

	blas32.Implementation().Sgemm(
		blas32.NoTrans, blas32.NoTrans,
		m, n, k,
		1, av.Data, av.Stride,
		bv.Data, bv.Stride,
		0, cv.Data, cv.Stride,
	)
}
