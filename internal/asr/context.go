// Package asr wires the mel front-end, tokenizer, and engine together into
// the public load/transcribe pipeline, matching spec.md §3/§4.7/§6's
// external Context API.
package asr

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/example/qwen3-asr-go/internal/asrerr"
	"github.com/example/qwen3-asr-go/internal/audio"
	"github.com/example/qwen3-asr-go/internal/engine"
	"github.com/example/qwen3-asr-go/internal/runtime/tensor"
	"github.com/example/qwen3-asr-go/internal/tokenizer"
)

const (
	defaultMaxSteps    = 448
	bosTokenName       = "<|bos|>"
	eosTokenName       = "<|eos|>"
	systemTokenName    = "<|system|>"
	assistantTokenName = "<|assistant|>"
)

// PerfCounters captures per-call timing populated after Transcribe returns,
// per the spec's performance-introspection surface.
type PerfCounters struct {
	MelMillis     float64
	EncoderMillis float64
	DecoderMillis float64
	TotalMillis   float64
	TokensOut     int
}

// Context owns one loaded model, its tokenizer, and the decode settings and
// perf counters for the calls made against it. A Context is not safe for
// concurrent Transcribe calls; internal/server serializes access with a
// single-slot semaphore.
type Context struct {
	model *engine.Model
	tok   *tokenizer.BPE

	threads int
	verbose bool

	forceLanguage string
	prompt        string
	maxSteps      int

	Perf PerfCounters
}

// Load opens model.safetensors, config.json, and vocab.json from dir and
// builds the full encoder/decoder weight graph.
func Load(dir string) (*Context, error) {
	model, err := engine.LoadModel(dir)
	if err != nil {
		return nil, err
	}

	tok, err := tokenizer.Load(filepath.Join(dir, "vocab.json"))
	if err != nil {
		model.Close()
		return nil, err
	}

	return &Context{
		model:    model,
		tok:      tok,
		threads:  1,
		maxSteps: defaultMaxSteps,
	}, nil
}

// Free releases the underlying model weights.
func (c *Context) Free() {
	if c.model != nil {
		c.model.Close()
	}
}

// SetThreads sets the process-wide kernel worker thread count.
func (c *Context) SetThreads(n int) {
	if n < 1 {
		n = 1
	}

	c.threads = n
	tensor.SetWorkers(n)
}

// SetVerbose toggles per-call timing diagnostics: when on, each successful
// Transcribe writes one timing line to standard error.
func (c *Context) SetVerbose(v bool) { c.verbose = v }

// SetMaxSteps caps the number of tokens greedily generated per call.
func (c *Context) SetMaxSteps(n int) {
	if n < 1 {
		n = defaultMaxSteps
	}

	c.maxSteps = n
}

// SetForceLanguage forces decoding to begin with the given language's
// special token; pass "" to let the model choose. Returns
// asrerr.UnsupportedLanguageError if lang has no corresponding
// "<|lang_XX|>" special token in the vocabulary.
func (c *Context) SetForceLanguage(lang string) error {
	lang = strings.TrimSpace(lang)
	if lang == "" {
		c.forceLanguage = ""
		return nil
	}

	if _, ok := c.tok.TokenID(fmt.Sprintf("<|lang_%s|>", lang)); !ok {
		return &asrerr.UnsupportedLanguageError{Language: lang}
	}

	c.forceLanguage = lang

	return nil
}

// SetPrompt sets optional decoder prompt-biasing text, teacher-forced ahead
// of greedy generation; pass "" to clear it.
func (c *Context) SetPrompt(prompt string) {
	c.prompt = prompt
}

// SupportedLanguagesCSV returns the comma-separated list of language tags
// discovered from the tokenizer's special tokens.
func (c *Context) SupportedLanguagesCSV() string {
	return strings.Join(c.tok.SupportedLanguages(), ",")
}

// Transcribe runs the full pipeline over a mono 16 kHz float32 waveform:
// mel front-end, encoder, and greedy autoregressive decoding. It resets the
// decoder's KV cache on every call, so two calls without an intervening
// state change produce identical output to one fresh call.
func (c *Context) Transcribe(samples []float32) (string, error) {
	callStart := time.Now()

	maxFrames := (c.model.Config.MaxContext - 8) * c.model.Config.EncStemStride
	if len(samples)/c.model.Config.HopLength > maxFrames {
		return "", &asrerr.AudioTooLongError{Frames: len(samples) / c.model.Config.HopLength, Max: maxFrames}
	}

	melStart := time.Now()

	mel, nFrames, err := audio.MelSpectrogram(samples)
	if err != nil {
		return "", err
	}

	c.Perf.MelMillis = millisSince(melStart)

	if nFrames == 0 {
		return "", &asrerr.InvalidArgumentError{Reason: "empty audio produced zero mel frames"}
	}

	melTensor, err := tensor.New(mel, []int64{int64(c.model.Config.MelBins), int64(nFrames)})
	if err != nil {
		return "", err
	}

	encStart := time.Now()

	encHidden, err := c.model.Encoder.Forward(melTensor)
	if err != nil {
		return "", fmt.Errorf("asr: encoder forward: %w", err)
	}

	c.Perf.EncoderMillis = millisSince(encStart)

	decStart := time.Now()

	text, tokensOut, err := c.decodeGreedy(encHidden)
	if err != nil {
		return "", err
	}

	c.Perf.DecoderMillis = millisSince(decStart)
	c.Perf.TokensOut = tokensOut
	c.Perf.TotalMillis = millisSince(callStart)

	if c.verbose {
		fmt.Fprintf(os.Stderr, "asr: mel=%.1fms encoder=%.1fms decoder=%.1fms total=%.1fms tokens=%d\n",
			c.Perf.MelMillis, c.Perf.EncoderMillis, c.Perf.DecoderMillis, c.Perf.TotalMillis, c.Perf.TokensOut)
	}

	return text, nil
}

func (c *Context) decodeGreedy(encHidden *tensor.Tensor) (string, int, error) {
	cache, err := c.model.Decoder.NewKVCache()
	if err != nil {
		return "", 0, err
	}

	cc, err := c.model.Decoder.PrepareCrossAttention(encHidden)
	if err != nil {
		return "", 0, err
	}

	forced := c.buildForcedPrefix()

	bos, hasBOS := c.tok.TokenID(bosTokenName)
	if !hasBOS {
		bos = 0
	}

	eos, hasEOS := c.tok.TokenID(eosTokenName)

	current := bos
	var generated []int64
	tokensOut := 0

	for step := 0; step < c.maxSteps; step++ {
		logits, err := c.model.Decoder.Step(current, cache, cc)
		if err != nil {
			return "", 0, fmt.Errorf("asr: decode step %d: %w", step, err)
		}

		var next int64

		if step < len(forced) {
			next = forced[step]
		} else {
			next = int64(tensor.ArgmaxSlice(logits.RawData()))

			if hasEOS && next == eos {
				break
			}

			generated = append(generated, next)

			if !c.tok.IsSpecial(next) {
				tokensOut++
			}
		}

		current = next
	}

	text, err := c.tok.Decode(generated)
	if err != nil {
		return "", 0, fmt.Errorf("asr: decode tokens: %w", err)
	}

	return text, tokensOut, nil
}

// buildForcedPrefix returns the sequence of token ids teacher-forced after
// BOS before free-running greedy generation begins:
// <|system|>, the tokenized prompt (if set), <|assistant|>, then the forced
// language tag (if set). When force_language is unset, the model emits its
// own language token as the first free-running generated token.
func (c *Context) buildForcedPrefix() []int64 {
	var forced []int64

	if id, ok := c.tok.TokenID(systemTokenName); ok {
		forced = append(forced, id)
	}

	if c.prompt != "" {
		if ids, err := c.tok.Encode(c.prompt); err == nil {
			forced = append(forced, ids...)
		}
	}

	if id, ok := c.tok.TokenID(assistantTokenName); ok {
		forced = append(forced, id)
	}

	if c.forceLanguage != "" {
		if id, ok := c.tok.TokenID(fmt.Sprintf("<|lang_%s|>", c.forceLanguage)); ok {
			forced = append(forced, id)
		}
	}

	return forced
}

func millisSince(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000.0
}
