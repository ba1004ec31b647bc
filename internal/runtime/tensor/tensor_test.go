package tensor

import (
	"math"
	"testing"
)

func assertCloseSlice(t *testing.T, got, want []float32, tol float64) {
	t.Helper()

	if len(got) != len(want) {
		t.Fatalf("length mismatch got=%d want=%d", len(got), len(want))
	}

	for i := range got {
		if math.Abs(float64(got[i]-want[i])) > tol {
			t.Fatalf("value mismatch at %d: got=%f want=%f (tol=%g)", i, got[i], want[i], tol)
		}
	}
}

func TestReshapeRoundTrip(t *testing.T) {
	x, err := New([]float32{1, 2, 3, 4, 5, 6}, []int64{2, 3})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	y, err := x.Reshape([]int64{3, 2})
	if err != nil {
		t.Fatalf("Reshape: %v", err)
	}

	assertCloseSlice(t, y.RawData(), x.RawData(), 0)
}

func TestNarrow(t *testing.T) {
	x, err := New([]float32{1, 2, 3, 4, 5, 6}, []int64{3, 2})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	y, err := x.Narrow(0, 1, 2)
	if err != nil {
		t.Fatalf("Narrow: %v", err)
	}

	assertCloseSlice(t, y.RawData(), []float32{3, 4, 5, 6}, 0)
}

func TestTransposeMatchesManualSwap(t *testing.T) {
	x, err := New([]float32{1, 2, 3, 4, 5, 6}, []int64{2, 3})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	y, err := x.Transpose(0, 1)
	if err != nil {
		t.Fatalf("Transpose: %v", err)
	}

	if !EqualShape(y.Shape(), []int64{3, 2}) {
		t.Fatalf("unexpected shape: %v", y.Shape())
	}

	want := []float32{1, 4, 2, 5, 3, 6}
	assertCloseSlice(t, y.RawData(), want, 0)
}

func TestGEMMMatchesGEMMGeneric(t *testing.T) {
	// 64*64*64 FMAs reaches blasMinFMAs, so GEMM takes the BLAS path here.
	m, n, k := 64, 64, 64

	a := make([]float32, m*k)
	b := make([]float32, k*n)

	for i := range a {
		a[i] = float32(i%7) - 3
	}

	for i := range b {
		b[i] = float32(i%5) - 2
	}

	gotBLAS := make([]float32, m*n)
	gotGeneric := make([]float32, m*n)

	GEMM(a, b, gotBLAS, m, n, k)
	GEMMGeneric(a, b, gotGeneric, m, n, k)

	assertCloseSlice(t, gotBLAS, gotGeneric, 1e-4)
}

func TestMatMulShapeMismatch(t *testing.T) {
	a, err := New([]float32{1, 2, 3, 4}, []int64{2, 2})
	if err != nil {
		t.Fatalf("New a: %v", err)
	}

	b, err := New([]float32{1, 2, 3}, []int64{3})
	if err != nil {
		t.Fatalf("New b: %v", err)
	}

	if _, err := MatMul(a, b); err == nil {
		t.Fatal("expected shape mismatch error, got nil")
	}
}
