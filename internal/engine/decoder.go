package engine

import (
	"fmt"

	"github.com/example/qwen3-asr-go/internal/runtime/ops"
	"github.com/example/qwen3-asr-go/internal/runtime/tensor"
)

// decoderBlock is one causal transformer decoder layer: grouped-query
// self-attention over the KV cache, cross-attention over the fixed encoder
// output, then a SwiGLU feed-forward — each behind a residual connection.
type decoderBlock struct {
	attnNorm *RMSNorm
	qProj    *Linear
	kProj    *Linear
	vProj    *Linear
	oProj    *Linear

	crossNorm  *RMSNorm
	crossQProj *Linear
	crossKProj *Linear
	crossVProj *Linear
	crossOProj *Linear

	ffnNorm  *RMSNorm
	gateProj *Linear
	upProj   *Linear
	downProj *Linear
}

// Decoder is the Qwen3-ASR causal decoder: token embedding, N transformer
// blocks with grouped-query self-attention and cross-attention over the
// encoder output, and a final projection to vocabulary logits.
type Decoder struct {
	cfg Config

	tokEmbed *tensor.Tensor // [vocab, dim]
	lmHead   *Linear        // nil when weights are tied to tokEmbed

	ropeCos, ropeSin *tensor.Tensor

	blocks    []*decoderBlock
	finalNorm *RMSNorm
}

// crossCache holds the fixed (per-transcription) projected encoder
// keys/values, computed once after the encoder runs and reused across every
// decode step.
type crossCache struct {
	k, v []*tensor.Tensor // per layer, [numKVGroups, encSeq, headDim]
}

// LoadDecoder builds the decoder's weight graph from vb rooted at "decoder".
func LoadDecoder(vb *VarBuilder, cfg Config) (*Decoder, error) {
	dvb := vb.Path("decoder")

	tokEmbed, err := dvb.RequireTensor("token_embedding.weight", int64(cfg.VocabSize), int64(cfg.DecDim))
	if err != nil {
		return nil, err
	}

	d := &Decoder{cfg: cfg, tokEmbed: tokEmbed}

	headDim := cfg.DecHeadDim()

	cos, sin, err := tensor.BuildRoPETable(cfg.MaxContext, int(headDim), cfg.RopeTheta)
	if err != nil {
		return nil, err
	}

	d.ropeCos, d.ropeSin = cos, sin

	d.blocks = make([]*decoderBlock, 0, cfg.DecLayers)

	for i := 0; ; i++ {
		lvb := dvb.Path("block", i)
		if !lvb.Has("attn_norm.weight") {
			break
		}

		blk, err := loadDecoderBlock(lvb, cfg)
		if err != nil {
			return nil, fmt.Errorf("engine: decoder block %d: %w", i, err)
		}

		d.blocks = append(d.blocks, blk)
	}

	if len(d.blocks) == 0 {
		return nil, fmt.Errorf("engine: decoder has no transformer blocks under %q", dvb.resolve("block.N"))
	}

	finalNorm, err := NewRMSNorm(dvb, "final_norm", int64(cfg.DecDim), cfg.RMSNormEps)
	if err != nil {
		return nil, err
	}

	d.finalNorm = finalNorm

	if dvb.Has("lm_head.weight") {
		lmHead, err := NewLinear(dvb, "lm_head", int64(cfg.DecDim), int64(cfg.VocabSize))
		if err != nil {
			return nil, err
		}

		d.lmHead = lmHead
	}

	return d, nil
}

func loadDecoderBlock(vb *VarBuilder, cfg Config) (*decoderBlock, error) {
	dim := int64(cfg.DecDim)
	kvDim := cfg.DecHeadDim() * int64(cfg.DecKVGroups)
	ffnDim := dim * int64(cfg.DecFFNMult)

	attnNorm, err := NewRMSNorm(vb, "attn_norm", dim, cfg.RMSNormEps)
	if err != nil {
		return nil, err
	}

	qProj, err := NewLinear(vb, "q_proj", dim, dim)
	if err != nil {
		return nil, err
	}

	kProj, err := NewLinear(vb, "k_proj", dim, kvDim)
	if err != nil {
		return nil, err
	}

	vProj, err := NewLinear(vb, "v_proj", dim, kvDim)
	if err != nil {
		return nil, err
	}

	oProj, err := NewLinear(vb, "o_proj", dim, dim)
	if err != nil {
		return nil, err
	}

	crossNorm, err := NewRMSNorm(vb, "cross_norm", dim, cfg.RMSNormEps)
	if err != nil {
		return nil, err
	}

	crossQProj, err := NewLinear(vb, "cross_q_proj", dim, dim)
	if err != nil {
		return nil, err
	}

	crossKProj, err := NewLinear(vb, "cross_k_proj", int64(cfg.EncDim), kvDim)
	if err != nil {
		return nil, err
	}

	crossVProj, err := NewLinear(vb, "cross_v_proj", int64(cfg.EncDim), kvDim)
	if err != nil {
		return nil, err
	}

	crossOProj, err := NewLinear(vb, "cross_o_proj", dim, dim)
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

	return &decoderBlock{
		attnNorm:   attnNorm,
		qProj:      qProj,
		kProj:      kProj,
		vProj:      vProj,
		oProj:      oProj,
		crossNorm:  crossNorm,
		crossQProj: crossQProj,
		crossKProj: crossKProj,
		crossVProj: crossVProj,
		crossOProj: crossOProj,
		ffnNorm:    ffnNorm,
		gateProj:   gateProj,
		upProj:     upProj,
		downProj:   downProj,
	}, nil
}

// NewKVCache allocates a KV cache sized for this decoder's self-attention.
func (d *Decoder) NewKVCache() (*KVCache, error) {
	return NewKVCache(len(d.blocks), d.cfg.DecKVGroups, d.cfg.DecHeadDim(), int64(d.cfg.MaxContext))
}

// PrepareCrossAttention projects the encoder's hidden states into per-layer
// key/value tensors, computed once per transcription and reused by every
// decode step.
func (d *Decoder) PrepareCrossAttention(encHidden *tensor.Tensor) (*crossCache, error) {
	cc := &crossCache{
		k: make([]*tensor.Tensor, len(d.blocks)),
		v: make([]*tensor.Tensor, len(d.blocks)),
	}

	for i, blk := range d.blocks {
		k, err := blk.crossKProj.Forward(encHidden)
		if err != nil {
			return nil, err
		}

		v, err := blk.crossVProj.Forward(encHidden)
		if err != nil {
			return nil, err
		}

		kh, err := ops.SplitHeads(k, d.cfg.DecKVGroups)
		if err != nil {
			return nil, err
		}

		vh, err := ops.SplitHeads(v, d.cfg.DecKVGroups)
		if err != nil {
			return nil, err
		}

		cc.k[i] = kh
		cc.v[i] = vh
	}

	return cc, nil
}

// Step runs one causal decode step for a single new token id, appending its
// key/value to cache and returning vocabulary logits of shape [vocab].
func (d *Decoder) Step(tokenID int64, cache *KVCache, cc *crossCache) (*tensor.Tensor, error) {
	embedded, err := tensor.EmbedLookup(d.tokEmbed, []int64{tokenID})
	if err != nil {
		return nil, err
	}

	hidden := embedded // [1, dim]
	pos := cache.Len()

	for i, blk := range d.blocks {
		hidden, err = d.forwardBlock(i, blk, hidden, cache, cc, pos)
		if err != nil {
			return nil, fmt.Errorf("engine: decoder block %d: %w", i, err)
		}
	}

	if err := cache.Advance(1); err != nil {
		return nil, err
	}

	hidden, err = d.finalNorm.Forward(hidden)
	if err != nil {
		return nil, err
	}

	if d.lmHead != nil {
		logits, err := d.lmHead.Forward(hidden)
		if err != nil {
			return nil, err
		}

		return logits.Reshape([]int64{int64(d.cfg.VocabSize)})
	}

	logits, err := tensor.Linear(hidden, d.tokEmbed, nil)
	if err != nil {
		return nil, err
	}

	return logits.Reshape([]int64{int64(d.cfg.VocabSize)})
}

func (d *Decoder) forwardBlock(layer int, blk *decoderBlock, hidden *tensor.Tensor, cache *KVCache, cc *crossCache, pos int64) (*tensor.Tensor, error) {
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

	qh, err := ops.SplitHeads(q, d.cfg.DecQHeads)
	if err != nil {
		return nil, err
	}

	kh, err := ops.SplitHeads(k, d.cfg.DecKVGroups)
	if err != nil {
		return nil, err
	}

	vh, err := ops.SplitHeads(v, d.cfg.DecKVGroups)
	if err != nil {
		return nil, err
	}

	qh, err = ops.ApplyRoPEPerHead(qh, d.ropeCos, d.ropeSin, pos)
	if err != nil {
		return nil, err
	}

	kh, err = ops.ApplyRoPEPerHead(kh, d.ropeCos, d.ropeSin, pos)
	if err != nil {
		return nil, err
	}

	if err := cache.WriteStep(layer, kh, vh); err != nil {
		return nil, err
	}

	fullK, fullV, err := cache.GetUpTo(layer, pos+1)
	if err != nil {
		return nil, err
	}

	attnOut, err := ops.GroupedQueryAttention(qh, fullK, fullV, d.cfg.DecQHeads, d.cfg.DecKVGroups, true)
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

	crossNormed, err := blk.crossNorm.Forward(residual)
	if err != nil {
		return nil, err
	}

	cq, err := blk.crossQProj.Forward(crossNormed)
	if err != nil {
		return nil, err
	}

	cqh, err := ops.SplitHeads(cq, d.cfg.DecQHeads)
	if err != nil {
		return nil, err
	}

	crossOut, err := ops.CrossAttention(cqh, cc.k[layer], cc.v[layer], d.cfg.DecQHeads, d.cfg.DecKVGroups)
	if err != nil {
		return nil, err
	}

	crossMerged, err := ops.MergeHeads(crossOut)
	if err != nil {
		return nil, err
	}

	crossProj, err := blk.crossOProj.Forward(crossMerged)
	if err != nil {
		return nil, err
	}

	if err := tensor.AddInPlace(residual2, crossProj); err != nil {
		return nil, err
	}

	residual3 := residual2.Clone()

	normed2, err := blk.ffnNorm.Forward(residual2)
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

	if err := tensor.AddInPlace(residual3, down); err != nil {
		return nil, err
	}

	return residual3, nil
}
