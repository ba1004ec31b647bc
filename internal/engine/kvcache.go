package engine

import (
	"fmt"

	"github.com/example/qwen3-asr-go/internal/asrerr"
	"github.com/example/qwen3-asr-go/internal/runtime/tensor"
)

// KVCache holds the decoder's per-layer key/value buffers. All layers share
// a single length counter: every decode step writes one new key/value row
// per layer, then the caller advances the shared counter once, matching the
// spec's "kv_cache_len shared across layers" invariant.
type KVCache struct {
	numLayers   int
	numKVGroups int
	headDim     int64
	maxLen      int64
	length      int64

	keys  []*tensor.Tensor // per layer, shape [numKVGroups, maxLen, headDim]
	values []*tensor.Tensor
}

// NewKVCache preallocates buffers for numLayers layers up to maxLen positions.
func NewKVCache(numLayers, numKVGroups int, headDim, maxLen int64) (*KVCache, error) {
	if numLayers <= 0 || numKVGroups <= 0 || headDim <= 0 || maxLen <= 0 {
		return nil, &asrerr.InvalidArgumentError{Reason: "kv cache requires positive numLayers, numKVGroups, headDim, maxLen"}
	}

	c := &KVCache{
		numLayers:   numLayers,
		numKVGroups: numKVGroups,
		headDim:     headDim,
		maxLen:      maxLen,
		keys:        make([]*tensor.Tensor, numLayers),
		values:      make([]*tensor.Tensor, numLayers),
	}

	for l := 0; l < numLayers; l++ {
		k, err := tensor.Zeros([]int64{int64(numKVGroups), maxLen, headDim})
		if err != nil {
			return nil, err
		}

		v, err := tensor.Zeros([]int64{int64(numKVGroups), maxLen, headDim})
		if err != nil {
			return nil, err
		}

		c.keys[l] = k
		c.values[l] = v
	}

	return c, nil
}

// Reset zeroes the shared length counter; buffer contents are left as-is
// since Get only ever reads up to Len().
func (c *KVCache) Reset() {
	c.length = 0
}

// Len returns the shared kv_cache_len.
func (c *KVCache) Len() int64 { return c.length }

// WriteStep writes k/v (shape [numKVGroups, steps, headDim]) for one layer
// starting at the current shared length. It does not advance the counter;
// call Advance once all layers have written for the step.
func (c *KVCache) WriteStep(layer int, k, v *tensor.Tensor) error {
	if layer < 0 || layer >= c.numLayers {
		return fmt.Errorf("engine: kv cache layer %d out of range [0,%d)", layer, c.numLayers)
	}

	steps := k.Dim(1)
	if c.length+steps > c.maxLen {
		return &asrerr.AudioTooLongError{Frames: int(c.length + steps), Max: int(c.maxLen)}
	}

	dst := c.keys[layer]
	if err := writeSteps(dst, k, c.length); err != nil {
		return fmt.Errorf("engine: kv cache write key: %w", err)
	}

	dstV := c.values[layer]
	if err := writeSteps(dstV, v, c.length); err != nil {
		return fmt.Errorf("engine: kv cache write value: %w", err)
	}

	return nil
}

func writeSteps(dst, src *tensor.Tensor, offset int64) error {
	groups := dst.Dim(0)
	headDim := dst.Dim(2)
	maxLen := dst.Dim(1)
	steps := src.Dim(1)

	if src.Dim(0) != groups || src.Dim(2) != headDim {
		return fmt.Errorf("shape mismatch: dst %v src %v", dst.Shape(), src.Shape())
	}

	dstData := dst.RawData()
	srcData := src.RawData()

	for g := int64(0); g < groups; g++ {
		dstBase := g*maxLen*headDim + offset*headDim
		srcBase := g * steps * headDim
		copy(dstData[dstBase:dstBase+steps*headDim], srcData[srcBase:srcBase+steps*headDim])
	}

	return nil
}

// Advance increments the shared length counter by steps, after all layers
// have called WriteStep for this decode step.
func (c *KVCache) Advance(steps int64) error {
	if c.length+steps > c.maxLen {
		return &asrerr.AudioTooLongError{Frames: int(c.length + steps), Max: int(c.maxLen)}
	}

	c.length += steps

	return nil
}

// Get returns the valid (length-bounded) key/value tensors for layer.
func (c *KVCache) Get(layer int) (k, v *tensor.Tensor, err error) {
	return c.GetUpTo(layer, c.length)
}

// GetUpTo returns key/value tensors for layer narrowed to the first upto
// positions. Callers use this right after WriteStep, before Advance has
// folded the new step into the shared counter, so the step just written is
// visible to that layer's own attention computation.
func (c *KVCache) GetUpTo(layer int, upto int64) (k, v *tensor.Tensor, err error) {
	if layer < 0 || layer >= c.numLayers {
		return nil, nil, fmt.Errorf("engine: kv cache layer %d out of range [0,%d)", layer, c.numLayers)
	}

	k, err = c.keys[layer].Narrow(1, 0, upto)
	if err != nil {
		return nil, nil, err
	}

	v, err = c.values[layer].Narrow(1, 0, upto)
	if err != nil {
		return nil, nil, err
	}

	return k, v, nil
}
