// Package ops builds attention, rotary embedding, gated feed-forward and
// convolutional stem primitives on top of the tensor package's kernels.
package ops

import (
	"errors"
	"fmt"
	"math"

	"github.com/example/qwen3-asr-go/internal/runtime/tensor"
)

// GroupedQueryAttention computes scaled dot-product attention where q has
// numQHeads heads and k/v have numKVGroups head-groups, numQHeads must be a
// multiple of numKVGroups; each group of numQHeads/numKVGroups query heads
// attends to the same key/value head. Shapes: q [numQHeads, tq, d],
// k [numKVGroups, tk, d], v [numKVGroups, tk, dv]. causal applies an
// implicit causal mask over the key axis when the query/key sequence
// lengths match (self-attention prefill); it is ignored for single-step
// decode (tq == 1) since the cache already holds only positions <= current.
func GroupedQueryAttention(q, k, v *tensor.Tensor, numQHeads, numKVGroups int, causal bool) (*tensor.Tensor, error) {
	if q == nil || k == nil || v == nil {
		return nil, errors.New("ops: attention requires non-nil q/k/v")
	}

	if numQHeads <= 0 || numKVGroups <= 0 || numQHeads%numKVGroups != 0 {
		return nil, fmt.Errorf("ops: attention requires numQHeads (%d) to be a positive multiple of numKVGroups (%d)", numQHeads, numKVGroups)
	}

	qShape := q.Shape()
	kShape := k.Shape()
	vShape := v.Shape()

	if len(qShape) != 3 || len(kShape) != 3 || len(vShape) != 3 {
		return nil, errors.New("ops: attention expects rank-3 [heads, seq, dim] inputs")
	}

	if qShape[0] != int64(numQHeads) || kShape[0] != int64(numKVGroups) || vShape[0] != int64(numKVGroups) {
		return nil, fmt.Errorf("ops: attention head count mismatch: q=%v k=%v v=%v want heads=%d groups=%d", qShape, kShape, vShape, numQHeads, numKVGroups)
	}

	d := qShape[2]
	if d != kShape[2] {
		return nil, fmt.Errorf("ops: attention q/k head-dim mismatch %d vs %d", d, kShape[2])
	}

	tq := qShape[1]
	tk := kShape[1]
	dv := vShape[2]

	groupSize := numQHeads / numKVGroups
	scale := float32(1.0 / math.Sqrt(float64(d)))

	out, err := tensor.Zeros([]int64{int64(numQHeads), tq, dv})
	if err != nil {
		return nil, err
	}

	qData := q.RawData()
	kData := k.RawData()
	vData := v.RawData()
	outData := out.RawData()

	tqI, tkI, dI, dvI := int(tq), int(tk), int(d), int(dv)

	runHead := func(lo, hi int) {
		scores := make([]float32, tkI)

		for h := lo; h < hi; h++ {
			group := h / groupSize
			qHead := qData[h*tqI*dI : (h+1)*tqI*dI]
			kHead := kData[group*tkI*dI : (group+1)*tkI*dI]
			vHead := vData[group*tkI*dvI : (group+1)*tkI*dvI]
			outHead := outData[h*tqI*dvI : (h+1)*tqI*dvI]

			for qi := 0; qi < tqI; qi++ {
				qRow := qHead[qi*dI : (qi+1)*dI]

				limit := tkI
				if causal && tqI == tkI {
					limit = qi + 1
				}

				for ki := 0; ki < limit; ki++ {
					scores[ki] = tensor.DotProduct(qRow, kHead[ki*dI:(ki+1)*dI]) * scale
				}

				softmaxInPlace(scores[:limit])

				outRow := outHead[qi*dvI : (qi+1)*dvI]
				for j := range outRow {
					outRow[j] = 0
				}

				for ki := 0; ki < limit; ki++ {
					w := scores[ki]
					vRow := vHead[ki*dvI : (ki+1)*dvI]

					for j := 0; j < dvI; j++ {
						outRow[j] += w * vRow[j]
					}
				}
			}
		}
	}

	if tensor.Workers() > 1 && numQHeads > 1 {
		tensor.ParallelFor(numQHeads, runHead)
	} else {
		runHead(0, numQHeads)
	}

	return out, nil
}

// CrossAttention computes attention from decoder queries over fixed encoder
// keys/values with no causal mask and no rotary embedding, per the spec's
// cross-attention sublayer. q, k, v are the same rank-3 shape convention as
// GroupedQueryAttention.
func CrossAttention(q, k, v *tensor.Tensor, numQHeads, numKVGroups int) (*tensor.Tensor, error) {
	return GroupedQueryAttention(q, k, v, numQHeads, numKVGroups, false)
}

func softmaxInPlace(x []float32) {
	maxV := float32(math.Inf(-1))

	for _, v := range x {
		if v > maxV {
			maxV = v
		}
	}

	var sum float64

	for i, v := range x {
		e := math.Exp(float64(v - maxV))
		x[i] = float32(e)
		sum += e
	}

	if sum == 0 {
		sum = 1
	}

	inv := float32(1.0 / sum)
	for i := range x {
		x[i] *= inv
	}
}
