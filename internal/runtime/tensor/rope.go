package tensor

import (
	"errors"
	"fmt"
	"math"
)

// BuildRoPETable precomputes cos/sin tables of shape [maxPositions, dim/2]
// for rotary position embedding with frequencies theta_i = base^(-2i/dim).
func BuildRoPETable(maxPositions, dim int, base float64) (cos, sin *Tensor, err error) {
	if dim%2 != 0 {
		return nil, nil, fmt.Errorf("tensor: rope dim must be even, got %d", dim)
	}

	half := dim / 2

	cos, err = Zeros([]int64{int64(maxPositions), int64(half)})
	if err != nil {
		return nil, nil, err
	}

	sin, err = Zeros([]int64{int64(maxPositions), int64(half)})
	if err != nil {
		return nil, nil, err
	}

	freqs := make([]float64, half)
	for i := range half {
		freqs[i] = math.Pow(base, -2*float64(i)/float64(dim))
	}

	for p := range maxPositions {
		base := p * half
		for i, f := range freqs {
			angle := float64(p) * f
			cos.data[base+i] = float32(math.Cos(angle))
			sin.data[base+i] = float32(math.Sin(angle))
		}
	}

	return cos, sin, nil
}

// RoPEApply rotates even/odd feature pairs of x (shape [..., seq, dim]) by
// the per-position angles in cos/sin (shape [maxPositions, dim/2]), reading
// row `pos+t` of the table for sequence offset t. A negative pos reads row
// |pos+t| with sin negated, which realizes the inverse rotation for a
// single-row input (seq == 1): apply at p, then at -p, restores it. For
// seq > 1 the rows at -p use positions -p+t, so the round trip does not
// restore the input.
func RoPEApply(x, cos, sin *Tensor, pos int64) (*Tensor, error) {
	if x == nil || cos == nil || sin == nil {
		return nil, errors.New("tensor: rope requires non-nil x/cos/sin")
	}

	xShape := x.Shape()
	if len(xShape) < 2 {
		return nil, fmt.Errorf("tensor: rope requires rank >= 2 input, got %d", len(xShape))
	}

	seq := xShape[len(xShape)-2]
	dim := xShape[len(xShape)-1]

	if dim%2 != 0 {
		return nil, fmt.Errorf("tensor: rope last dimension must be even, got %d", dim)
	}

	half := dim / 2

	cosShape := cos.Shape()
	if len(cosShape) != 2 || cosShape[1] != half {
		return nil, fmt.Errorf("tensor: rope cos table shape %v incompatible with half-dim %d", cosShape, half)
	}

	out := x.Clone()
	outData := out.data
	cosData := cos.data
	sinData := sin.data

	prefix := int64(len(outData)) / (seq * dim)
	tableLen := cosShape[0]

	for pre := int64(0); pre < prefix; pre++ {
		prefixBase := pre * seq * dim

		for t := int64(0); t < seq; t++ {
			rowPos := pos + t
			// Negative positions realize the inverse rotation by indexing the
			// table with the absolute angle and negating sin below.
			tableRow := rowPos
			negate := false

			if tableRow < 0 {
				tableRow = -tableRow
				negate = true
			}

			if tableRow >= tableLen {
				return nil, fmt.Errorf("tensor: rope position %d out of range for table length %d", rowPos, tableLen)
			}

			trigBase := tableRow * half
			xBase := prefixBase + t*dim

			for j := int64(0); j < half; j++ {
				i0 := xBase + 2*j
				i1 := i0 + 1
				a := outData[i0]
				b := outData[i1]
				c := cosData[trigBase+j]
				s := sinData[trigBase+j]

				if negate {
					s = -s
				}

				outData[i0] = a*c - b*s
				outData[i1] = a*s + b*c
			}
		}
	}

	return out, nil
}
