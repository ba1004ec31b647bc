package main

import (
	"fmt"
	"os"
	"time"

	"github.com/example/qwen3-asr-go/internal/asr"
	"github.com/example/qwen3-asr-go/internal/audio"
	"github.com/example/qwen3-asr-go/internal/bench"
	"github.com/spf13/cobra"
)

func newBenchCmd() *cobra.Command {
	var (
		in           string
		runs         int
		format       string
		rtfThreshold float64
	)

	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Benchmark transcription latency and real-time factor",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			if in == "" {
				return fmt.Errorf("--in is required for bench")
			}

			if runs < 1 {
				return fmt.Errorf("--runs must be at least 1")
			}

			if format != "table" && format != "json" {
				return fmt.Errorf("--format must be 'table' or 'json'")
			}

			wavData, err := os.ReadFile(in)
			if err != nil {
				return fmt.Errorf("read %s: %w", in, err)
			}

			samples, err := audio.DecodeWAV(wavData)
			if err != nil {
				return fmt.Errorf("decode %s: %w", in, err)
			}

			ctx, err := asr.Load(cfg.Paths.ModelDir)
			if err != nil {
				return fmt.Errorf("load model: %w", err)
			}
			defer ctx.Free()

			ctx.SetThreads(cfg.Runtime.Threads)
			ctx.SetMaxSteps(cfg.ASR.MaxSteps)

			audioDur := bench.AudioDuration(len(samples), audio.ExpectedSampleRate)

			results := make([]bench.RunResult, 0, runs)

			for i := range runs {
				start := time.Now()

				_, err := ctx.Transcribe(samples)
				if err != nil {
					return fmt.Errorf("run %d failed: %w", i+1, err)
				}

				dur := time.Since(start)

				results = append(results, bench.RunResult{
					Index:     i,
					Cold:      i == 0,
					Duration:  dur,
					AudioDur:  audioDur,
					RTF:       bench.CalcRTF(dur, audioDur),
					TokensOut: ctx.Perf.TokensOut,
				})
			}

			durations := make([]time.Duration, len(results))
			for i, r := range results {
				durations[i] = r.Duration
			}

			stats := bench.ComputeStats(durations)

			switch format {
			case "json":
				bench.FormatJSON(results, stats, os.Stdout)
			default:
				bench.FormatTable(results, stats, os.Stdout)
			}

			var totalRTF float64
			for _, r := range results {
				totalRTF += r.RTF
			}

			meanRTF := totalRTF / float64(len(results))

			return bench.CheckRTFThreshold(meanRTF, rtfThreshold)
		},
	}

	cmd.Flags().StringVar(&in, "in", "", "Input WAV file to transcribe repeatedly (required)")
	cmd.Flags().IntVar(&runs, "runs", 5, "Number of transcription runs")
	cmd.Flags().StringVar(&format, "format", "table", "Output format: table|json")
	cmd.Flags().Float64Var(&rtfThreshold, "rtf-threshold", 0, "Exit non-zero if mean RTF exceeds this value (0 = disabled)")

	return cmd
}
