package engine

import (
	"github.com/example/qwen3-asr-go/internal/testutil"
)

// tinyConfig returns a minimally-sized but internally consistent Config,
// small enough that its weight tensors can be hand-built in tests.
func tinyConfig() Config {
	cfg := DefaultConfig()
	cfg.MelBins = 2
	cfg.EncDim = 4
	cfg.EncHeads = 2
	cfg.EncLayers = 1
	cfg.EncFFNMult = 1
	cfg.EncStemStride = 1
	cfg.EncPositional = "rotary"
	cfg.DecDim = 4
	cfg.DecQHeads = 2
	cfg.DecKVGroups = 1
	cfg.DecLayers = 1
	cfg.DecFFNMult = 1
	cfg.VocabSize = 5
	cfg.MaxContext = 16
	cfg.RopeTheta = 10000
	cfg.RMSNormEps = 1e-6
	return cfg
}

// fillSeq returns n small, deterministic values to keep forward passes in a
// numerically tame range.
func fillSeq(n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(i%7-3) * 0.05
	}
	return out
}

func tinyTensors(cfg Config) map[string]testutil.TensorSpec {
	dim := int64(cfg.EncDim)
	ffn := dim * int64(cfg.EncFFNMult)
	kvDim := cfg.DecHeadDim() * int64(cfg.DecKVGroups)
	decDim := int64(cfg.DecDim)
	decFFN := decDim * int64(cfg.DecFFNMult)

	spec := func(shape ...int64) testutil.TensorSpec {
		n := int64(1)
		for _, s := range shape {
			n *= s
		}
		return testutil.TensorSpec{Shape: shape, Data: fillSeq(int(n))}
	}

	tensors := map[string]testutil.TensorSpec{
		"encoder.conv1.weight": spec(dim, int64(cfg.MelBins), 3),
		"encoder.conv1.bias":   spec(dim),
		"encoder.conv2.weight": spec(dim, dim, 3),
		"encoder.conv2.bias":   spec(dim),

		"encoder.block.0.attn_norm.weight": spec(dim),
		"encoder.block.0.q_proj.weight":    spec(dim, dim),
		"encoder.block.0.k_proj.weight":    spec(dim, dim),
		"encoder.block.0.v_proj.weight":    spec(dim, dim),
		"encoder.block.0.o_proj.weight":    spec(dim, dim),
		"encoder.block.0.ffn_norm.weight":  spec(dim),
		"encoder.block.0.gate_proj.weight": spec(ffn, dim),
		"encoder.block.0.up_proj.weight":   spec(ffn, dim),
		"encoder.block.0.down_proj.weight": spec(dim, ffn),

		"encoder.final_norm.weight": spec(dim),

		"decoder.token_embedding.weight": spec(int64(cfg.VocabSize), decDim),

		"decoder.block.0.attn_norm.weight":    spec(decDim),
		"decoder.block.0.q_proj.weight":       spec(decDim, decDim),
		"decoder.block.0.k_proj.weight":       spec(kvDim, decDim),
		"decoder.block.0.v_proj.weight":       spec(kvDim, decDim),
		"decoder.block.0.o_proj.weight":       spec(decDim, decDim),
		"decoder.block.0.cross_norm.weight":   spec(decDim),
		"decoder.block.0.cross_q_proj.weight": spec(decDim, decDim),
		"decoder.block.0.cross_k_proj.weight": spec(kvDim, dim),
		"decoder.block.0.cross_v_proj.weight": spec(kvDim, dim),
		"decoder.block.0.cross_o_proj.weight": spec(decDim, decDim),
		"decoder.block.0.ffn_norm.weight":     spec(decDim),
		"decoder.block.0.gate_proj.weight":    spec(decFFN, decDim),
		"decoder.block.0.up_proj.weight":      spec(decFFN, decDim),
		"decoder.block.0.down_proj.weight":    spec(decDim, decFFN),

		"decoder.final_norm.weight": spec(decDim),
	}

	return tensors
}
