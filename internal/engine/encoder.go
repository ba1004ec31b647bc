package engine

import (
	"fmt"
	"math"

	"github.com/example/qwen3-asr-go/internal/runtime/ops"
	"github.com/example/qwen3-asr-go/internal/runtime/tensor"
)

// encoderBlock is one pre-norm transformer encoder layer: full (non-causal)
// multi-head self-attention followed by a SwiGLU feed-forward, each behind a
// residual connection.
type encoderBlock struct {
	attnNorm *RMSNorm
	qProj    *Linear
	kProj    *Linear
	vProj    *Linear
	oProj    *Linear

	ffnNorm  *RMSNorm
	gateProj *Linear
	upProj   *Linear
	downProj *Linear
}

// Encoder is the Qwen3-ASR audio encoder: a strided convolutional stem that
// downsamples the mel spectrogram to the model's frame rate, followed by N
// transformer blocks.
type Encoder struct {
	cfg Config

	conv1Kernel, conv1Bias *tensor.Tensor
	conv2Kernel, conv2Bias *tensor.Tensor

	ropeCos, ropeSin *tensor.Tensor
	sinTable         *tensor.Tensor // used when cfg.EncPositional == "sinusoidal"

	blocks    []*encoderBlock
	finalNorm *RMSNorm
}

// LoadEncoder builds the encoder's weight graph from vb rooted at "encoder".
func LoadEncoder(vb *VarBuilder, cfg Config) (*Encoder, error) {
	evb := vb.Path("encoder")

	conv1K, err := evb.RequireTensor("conv1.weight", int64(cfg.EncDim), int64(cfg.MelBins), 3)
	if err != nil {
		return nil, err
	}

	conv1B, _, err := evb.TensorMaybe("conv1.bias", int64(cfg.EncDim))
	if err != nil {
		return nil, err
	}

	conv2K, err := evb.RequireTensor("conv2.weight", int64(cfg.EncDim), int64(cfg.EncDim), 3)
	if err != nil {
		return nil, err
	}

	conv2B, _, err := evb.TensorMaybe("conv2.bias", int64(cfg.EncDim))
	if err != nil {
		return nil, err
	}

	e := &Encoder{cfg: cfg, conv1Kernel: conv1K, conv1Bias: conv1B, conv2Kernel: conv2K, conv2Bias: conv2B}

	headDim := cfg.EncHeadDim()

	switch cfg.EncPositional {
	case "rotary":
		cos, sin, err := tensor.BuildRoPETable(cfg.MaxContext, int(headDim), cfg.RopeTheta)
		if err != nil {
			return nil, err
		}

		e.ropeCos, e.ropeSin = cos, sin
	case "sinusoidal":
		e.sinTable = buildSinusoidalTable(cfg.MaxContext, cfg.EncDim)
	}

	e.blocks = make([]*encoderBlock, 0, cfg.EncLayers)

	for i := 0; ; i++ {
		lvb := evb.Path("block", i)
		if !lvb.Has("attn_norm.weight") {
			break
		}

		blk, err := loadEncoderBlock(lvb, cfg)
		if err != nil {
			return nil, fmt.Errorf("engine: encoder block %d: %w", i, err)
		}

		e.blocks = append(e.blocks, blk)
	}

	if len(e.blocks) == 0 {
		return nil, fmt.Errorf("engine: encoder has no transformer blocks under %q", evb.resolve("block.N"))
	}

	finalNorm, err := NewRMSNorm(evb, "final_norm", int64(cfg.EncDim), cfg.RMSNormEps)
	if err != nil {
		return nil, err
	}

	e.finalNorm = finalNorm

	return e, nil
}

func loadEncoderBlock(vb *VarBuilder, cfg Config) (*encoderBlock, error) {
	dim := int64(cfg.EncDim)
	ffnDim := dim * int64(cfg.EncFFNMult)

	attnNorm, err := NewRMSNorm(vb, "attn_norm", dim, cfg.RMSNormEps)
	if err != nil {
		return nil, err
	}

	qProj, err := NewLinear(vb, "q_proj", dim, dim)
	if err != nil {
		return nil, err
	}

	kProj, err := NewLinear(vb, "k_proj", dim, dim)
	if err != nil {
		return nil, err
	}

	vProj, err := NewLinear(vb, "v_proj", dim, dim)
	if err != nil {
		return nil, err
	}

	oProj, err := NewLinear(vb, "o_proj", dim, dim)
	if err != nil {
		return nil, err
	}

	ffnNorm, err := NewRMSNorm(vb, "ffn_norm", dim, cfg.RMSNormEps)
	if err != nil {
		return nil, err
	}

	gateProj, err := NewLinear(vb, "gate_proj", dim, ffnDim)
	if err != nil {
		return nil, err
	}

	upProj, err := NewLinear(vb, "up_proj", dim, ffnDim)
	if err != nil {
		return nil, err
	}

	downProj, err := NewLinear(vb, "down_proj", ffnDim, dim)
	if err != nil {
		return nil, err
	}

	return &encoderBlock{
		attnNorm: attnNorm,
		qProj:    qProj,
		kProj:    kProj,
		vProj:    vProj,
		oProj:    oProj,
		ffnNorm:  ffnNorm,
		gateProj: gateProj,
		upProj:   upProj,
		downProj: downProj,
	}, nil
}

// Forward runs the conv stem and transformer stack over a [MelBins, nFrames]
// log-mel spectrogram, returning [outLen, EncDim] hidden states.
func (e *Encoder) Forward(mel *tensor.Tensor) (*tensor.Tensor, error) {
	stemOut, err := e.convStem(mel)
	if err != nil {
		return nil, fmt.Errorf("engine: encoder conv stem: %w", err)
	}

	hidden, err := stemOut.Transpose(0, 1) // [outLen, dim]
	if err != nil {
		return nil, err
	}

	if e.sinTable != nil {
		seq := hidden.Dim(0)
		posSlice, err := e.sinTable.Narrow(0, 0, seq)
		if err != nil {
			return nil, err
		}

		if err := tensor.AddInPlace(hidden, posSlice); err != nil {
			return nil, err
		}
	}

	for i, blk := range e.blocks {
		hidden, err = e.forwardBlock(blk, hidden)
		if err != nil {
			return nil, fmt.Errorf("engine: encoder block %d: %w", i, err)
		}
	}

	return e.finalNorm.Forward(hidden)
}

func (e *Encoder) convStem(mel *tensor.Tensor) (*tensor.Tensor, error) {
	h1, err := ops.Conv1D(mel, e.conv1Kernel, e.conv1Bias, 1, 1)
	if err != nil {
		return nil, err
	}

	h1, err = tensor.GELU(h1)
	if err != nil {
		return nil, err
	}

	h2, err := ops.Conv1D(h1, e.conv2Kernel, e.conv2Bias, int64(e.cfg.EncStemStride), 1)
	if err != nil {
		return nil, err
	}

	return tensor.GELU(h2)
}

func (e *Encoder) forwardBlock(blk *encoderBlock, hidden *tensor.Tensor) (*tensor.Tensor, error) {
	residual := hidden.Clone()

	normed, err := blk.attnNorm.Forward(hidden)
	if err != nil {
		return nil, err
	}

	q, err := blk.qProj.Forward(normed)
	if err != nil {
		return nil, err
	}

	k, err := blk.kProj.Forward(normed)
	if err != nil {
		return nil, err
	}

	v, err := blk.vProj.Forward(normed)
	if err != nil {
		return nil, err
	}

	qh, err := ops.SplitHeads(q, e.cfg.EncHeads)
	if err != nil {
		return nil, err
	}

	kh, err := ops.SplitHeads(k, e.cfg.EncHeads)
	if err != nil {
		return nil, err
	}

	vh, err := ops.SplitHeads(v, e.cfg.EncHeads)
	if err != nil {
		return nil, err
	}

	if e.ropeCos != nil {
		qh, err = ops.ApplyRoPEPerHead(qh, e.ropeCos, e.ropeSin, 0)
		if err != nil {
			return nil, err
		}

		kh, err = ops.ApplyRoPEPerHead(kh, e.ropeCos, e.ropeSin, 0)
		if err != nil {
			return nil, err
		}
	}

	attnOut, err := ops.GroupedQueryAttention(qh, kh, vh, e.cfg.EncHeads, e.cfg.EncHeads, false)
	if err != nil {
		return nil, err
	}

	merged, err := ops.MergeHeads(attnOut)
	if err != nil {
		return nil, err
	}

	proj, err := blk.oProj.Forward(merged)
	if err != nil {
		return nil, err
	}

	if err := tensor.AddInPlace(residual, proj); err != nil {
		return nil, err
	}

	residual2 := residual.Clone()

	normed2, err := blk.ffnNorm.Forward(residual)
	if err != nil {
		return nil, err
	}

	gate, err := blk.gateProj.Forward(normed2)
	if err != nil {
		return nil, err
	}

	up, err := blk.upProj.Forward(normed2)
	if err != nil {
		return nil, err
	}

	ffn, err := ops.SwiGLU(gate, up)
	if err != nil {
		return nil, err
	}

	down, err := blk.downProj.Forward(ffn)
	if err != nil {
		return nil, err
	}

	if err := tensor.AddInPlace(residual2, down); err != nil {
		return nil, err
	}

	return residual2, nil
}

// buildSinusoidalTable constructs the classic Transformer sinusoidal
// position table as the fallback when the checkpoint's encoder_positional
// configuration selects "sinusoidal" instead of rotary embedding.
func buildSinusoidalTable(maxPositions, dim int) *tensor.Tensor {
	t, _ := tensor.Zeros([]int64{int64(maxPositions), int64(dim)})
	data := t.RawData()

	for p := 0; p < maxPositions; p++ {
		for i := 0; i < dim; i += 2 {
			angle := float64(p) / math.Pow(10000, float64(i)/float64(dim))
			data[p*dim+i] = float32(math.Sin(angle))

			if i+1 < dim {
				data[p*dim+i+1] = float32(math.Cos(angle))
			}
		}
	}

	return t
}
