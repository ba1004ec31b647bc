package tensor

import (
	"math"
	"testing"
)

func TestSoftmaxSumsToOne(t *testing.T) {
	x, err := New([]float32{1000, 1000.5, 999, -5, 0}, []int64{5})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	out, err := Softmax(x, 0)
	if err != nil {
		t.Fatalf("Softmax: %v", err)
	}

	var sum float64
	for _, v := range out.RawData() {
		if v < 0 {
			t.Fatalf("softmax produced a negative probability: %f", v)
		}

		sum += float64(v)
	}

	if math.Abs(sum-1.0) > 1e-5 {
		t.Fatalf("softmax row does not sum to 1: got %f", sum)
	}
}

func TestSoftmaxRowsIndependent(t *testing.T) {
	x, err := New([]float32{1, 2, 3, 10, 20, 30}, []int64{2, 3})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	out, err := Softmax(x, 1)
	if err != nil {
		t.Fatalf("Softmax: %v", err)
	}

	data := out.RawData()

	row0 := float64(data[0] + data[1] + data[2])
	row1 := float64(data[3] + data[4] + data[5])

	if math.Abs(row0-1.0) > 1e-5 || math.Abs(row1-1.0) > 1e-5 {
		t.Fatalf("expected each row to sum to 1, got row0=%f row1=%f", row0, row1)
	}
}

func TestRMSNormUnitGain(t *testing.T) {
	x, err := New([]float32{3, 4}, []int64{1, 2})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	gain, err := New([]float32{1, 1}, []int64{2})
	if err != nil {
		t.Fatalf("New gain: %v", err)
	}

	out, err := RMSNorm(x, gain, 1e-6)
	if err != nil {
		t.Fatalf("RMSNorm: %v", err)
	}

	ms := (3.0*3.0 + 4.0*4.0) / 2.0
	wantScale := 1.0 / math.Sqrt(ms+1e-6)

	assertCloseSlice(t, out.RawData(), []float32{float32(3 * wantScale), float32(4 * wantScale)}, 1e-5)
}

func TestArgmaxSlice(t *testing.T) {
	got := ArgmaxSlice([]float32{0.1, 5.0, -2.0, 4.99})
	if got != 1 {
		t.Fatalf("expected index 1, got %d", got)
	}
}

func TestRoPEApplyInvolution(t *testing.T) {
	cos, sin, err := BuildRoPETable(16, 4, 10000.0)
	if err != nil {
		t.Fatalf("BuildRoPETable: %v", err)
	}

	x, err := New([]float32{1, 2, 3, 4}, []int64{1, 4})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	rotated, err := RoPEApply(x, cos, sin, 5)
	if err != nil {
		t.Fatalf("RoPEApply forward: %v", err)
	}

	restored, err := RoPEApply(rotated, cos, sin, -5)
	if err != nil {
		t.Fatalf("RoPEApply inverse: %v", err)
	}

	assertCloseSlice(t, restored.RawData(), x.RawData(), 1e-4)
}
