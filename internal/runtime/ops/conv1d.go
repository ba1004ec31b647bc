package ops

import (
	"errors"
	"fmt"

	"github.com/example/qwen3-asr-go/internal/runtime/tensor"
)

// Conv1D performs a strided 1-D convolution with groups=1, the shape the
// encoder's convolutional stem needs.
// input:  [inChannels, length]
// kernel: [outChannels, inChannels, kernelSize]
// bias:   [outChannels] or nil
// output: [outChannels, outLength] where
//
//	outLength = floor((length + 2*padding - kernelSize)/stride) + 1
func Conv1D(input, kernel, bias *tensor.Tensor, stride, padding int64) (*tensor.Tensor, error) {
	if input == nil || kernel == nil {
		return nil, errors.New("ops: conv1d requires non-nil input and kernel")
	}

	if input.Rank() != 2 || kernel.Rank() != 3 {
		return nil, fmt.Errorf("ops: conv1d expects input rank 2 and kernel rank 3, got %d and %d", input.Rank(), kernel.Rank())
	}

	inCh := input.Dim(0)
	length := input.Dim(1)
	outCh := kernel.Dim(0)
	kIn := kernel.Dim(1)
	kSize := kernel.Dim(2)

	if kIn != inCh {
		return nil, fmt.Errorf("ops: conv1d kernel in-channels %d does not match input channels %d", kIn, inCh)
	}

	if stride <= 0 {
		return nil, fmt.Errorf("ops: conv1d stride must be > 0, got %d", stride)
	}

	if bias != nil && (bias.Rank() != 1 || bias.Dim(0) != outCh) {
		return nil, fmt.Errorf("ops: conv1d bias shape %v does not match out channels %d", bias.Shape(), outCh)
	}

	outLen := (length+2*padding-kSize)/stride + 1
	if outLen <= 0 {
		return nil, fmt.Errorf("ops: conv1d produces non-positive output length %d", outLen)
	}

	out, err := tensor.Zeros([]int64{outCh, outLen})
	if err != nil {
		return nil, err
	}

	inData := input.RawData()
	kData := kernel.RawData()
	outData := out.RawData()

	inChI, lenI := int(inCh), int(length)
	outChI, kSizeI, outLenI := int(outCh), int(kSize), int(outLen)
	strideI, paddingI := int(stride), int(padding)
	patchLen := inChI * kSizeI

	imcol := make([]float32, outLenI*patchLen)

	for ic := 0; ic < inChI; ic++ {
		inBase := ic * lenI

		for kx := 0; kx < kSizeI; kx++ {
			for ox := 0; ox < outLenI; ox++ {
				inPos := ox*strideI - paddingI + kx
				if inPos >= 0 && inPos < lenI {
					imcol[ox*patchLen+ic*kSizeI+kx] = inData[inBase+inPos]
				}
			}
		}
	}

	runOC := func(lo, hi int) {
		for oc := lo; oc < hi; oc++ {
			kernelRow := kData[oc*patchLen : (oc+1)*patchLen]

			biasVal := float32(0)
			if bias != nil {
				biasVal = bias.RawData()[oc]
			}

			outRow := outData[oc*outLenI : (oc+1)*outLenI]

			for ox := 0; ox < outLenI; ox++ {
				outRow[ox] = tensor.DotProduct(kernelRow, imcol[ox*patchLen:(ox+1)*patchLen]) + biasVal
			}
		}
	}

	if tensor.Workers() > 1 && outChI > 1 {
		tensor.ParallelFor(outChI, runOC)
	} else {
		runOC(0, outChI)
	}

	return out, nil
}
