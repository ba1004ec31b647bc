// Package bench provides benchmarking primitives for the qwen3asr bench
// command: real-time-factor measurement across repeated transcribe calls.
package bench

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"
)

// RunResult holds the timing for a single transcribe call.
type RunResult struct {
	Index     int
	Cold      bool // true for the first run (cold cache, cold kernels)
	Duration  time.Duration
	AudioDur  time.Duration
	RTF       float64
	TokensOut int
}

// Stats holds aggregate timing statistics across all runs.
type Stats struct {
	Min  time.Duration
	Max  time.Duration
	Mean time.Duration
}

// ComputeStats calculates min, max and mean over a slice of durations. An
// empty slice yields the zero Stats.
func ComputeStats(durations []time.Duration) Stats {
	if len(durations) == 0 {
		return Stats{}
	}

	mn, mx := durations[0], durations[0]

	var sum time.Duration

	for _, d := range durations {
		if d < mn {
			mn = d
		}

		if d > mx {
			mx = d
		}

		sum += d
	}

	return Stats{Min: mn, Max: mx, Mean: sum / time.Duration(len(durations))}
}

// CalcRTF returns processing_duration / audio_duration (real-time factor;
// below 1.0 means faster than real time). Returns 0 if audioDur is zero to
// avoid division by zero.
func CalcRTF(processingDur, audioDur time.Duration) float64 {
	if audioDur <= 0 {
		return 0
	}

	return float64(processingDur) / float64(audioDur)
}

// CheckRTFThreshold returns an error if meanRTF exceeds threshold. A
// threshold of 0 disables the gate.
func CheckRTFThreshold(meanRTF, threshold float64) error {
	if threshold <= 0 {
		return nil
	}

	if meanRTF > threshold {
		return fmt.Errorf("mean RTF %.3f exceeds threshold %.3f", meanRTF, threshold)
	}

	return nil
}

// AudioDuration returns the playback duration of n mono samples at the
// given sample rate.
func AudioDuration(numSamples, sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}

	return time.Duration(numSamples) * time.Second / time.Duration(sampleRate)
}

// FormatTable writes a human-readable ASCII table of bench results to w.
func FormatTable(runs []RunResult, stats Stats, w io.Writer) {
	sb := &strings.Builder{}

	fmt.Fprintf(sb, "%-5s  %-5s  %10s  %12s  %8s  %8s\n", "Run", "Cold", "MS", "Audio(ms)", "RTF", "Tokens")
	fmt.Fprintln(sb, strings.Repeat("-", 58))

	for _, r := range runs {
		cold := ""
		if r.Cold {
			cold = "yes"
		}

		fmt.Fprintf(sb, "%-5d  %-5s  %10.1f  %12.1f  %8.3f  %8d\n",
			r.Index+1, cold,
			float64(r.Duration.Milliseconds()),
			float64(r.AudioDur.Milliseconds()),
			r.RTF, r.TokensOut,
		)
	}

	fmt.Fprintln(sb, strings.Repeat("-", 58))
	fmt.Fprintf(sb, "min=%.1fms mean=%.1fms max=%.1fms\n",
		float64(stats.Min.Milliseconds()), float64(stats.Mean.Milliseconds()), float64(stats.Max.Milliseconds()))

	fmt.Fprint(w, sb.String())
}

type jsonReport struct {
	Runs  []jsonRun `json:"runs"`
	Stats jsonStats `json:"stats"`
}

type jsonRun struct {
	Index      int     `json:"index"`
	Cold       bool    `json:"cold"`
	DurationMS float64 `json:"duration_ms"`
	AudioMS    float64 `json:"audio_ms"`
	RTF        float64 `json:"rtf"`
	TokensOut  int     `json:"tokens_out"`
}

type jsonStats struct {
	MinMS  float64 `json:"min_ms"`
	MeanMS float64 `json:"mean_ms"`
	MaxMS  float64 `json:"max_ms"`
}

// FormatJSON writes a JSON report of bench results to w.
func FormatJSON(runs []RunResult, stats Stats, w io.Writer) {
	jr := jsonReport{
		Runs: make([]jsonRun, len(runs)),
		Stats: jsonStats{
			MinMS:  float64(stats.Min.Milliseconds()),
			MeanMS: float64(stats.Mean.Milliseconds()),
			MaxMS:  float64(stats.Max.Milliseconds()),
		},
	}

	for i, r := range runs {
		jr.Runs[i] = jsonRun{
			Index:      r.Index,
			Cold:       r.Cold,
			DurationMS: float64(r.Duration.Milliseconds()),
			AudioMS:    float64(r.AudioDur.Milliseconds()),
			RTF:        r.RTF,
			TokensOut:  r.TokensOut,
		}
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(jr)
}
