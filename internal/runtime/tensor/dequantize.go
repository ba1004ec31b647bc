package tensor

import "fmt"

// DequantizeBlockwiseInt8 materializes a block-wise affine int8-quantized
// buffer to float32: out[i] = (int8(q[i]) - zero[block]) * scale[block],
// where block = i / blockSize. zeros may be nil, in which case zero-point
// is treated as 0 for every block (pure symmetric quantization).
func DequantizeBlockwiseInt8(q []int8, scales []float32, zeros []int8, blockSize int, out []float32) error {
	if blockSize <= 0 {
		return fmt.Errorf("tensor: dequantize block size must be > 0, got %d", blockSize)
	}

	nBlocks := (len(q) + blockSize - 1) / blockSize
	if len(scales) < nBlocks {
		return fmt.Errorf("tensor: dequantize needs %d scales, got %d", nBlocks, len(scales))
	}

	if zeros != nil && len(zeros) < nBlocks {
		return fmt.Errorf("tensor: dequantize needs %d zero points, got %d", nBlocks, len(zeros))
	}

	if len(out) != len(q) {
		return fmt.Errorf("tensor: dequantize output length %d does not match input length %d", len(out), len(q))
	}

	for i, v := range q {
		block := i / blockSize

		zp := int8(0)
		if zeros != nil {
			zp = zeros[block]
		}

		out[i] = float32(int32(v)-int32(zp)) * scales[block]
	}

	return nil
}
