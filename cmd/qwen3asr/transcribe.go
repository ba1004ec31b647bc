package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/example/qwen3-asr-go/internal/asr"
	"github.com/example/qwen3-asr-go/internal/audio"
	"github.com/spf13/cobra"
)

func newTranscribeCmd() *cobra.Command {
	var (
		in       string
		out      string
		language string
		prompt   string
	)

	cmd := &cobra.Command{
		Use:   "transcribe",
		Short: "Transcribe a WAV file to text",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			if strings.TrimSpace(in) == "" {
				return fmt.Errorf("--in is required")
			}

			ctx, err := asr.Load(cfg.Paths.ModelDir)
			if err != nil {
				return fmt.Errorf("load model: %w", err)
			}
			defer ctx.Free()

			ctx.SetThreads(cfg.Runtime.Threads)
			ctx.SetVerbose(cfg.ASR.Verbose)
			ctx.SetMaxSteps(cfg.ASR.MaxSteps)

			selectedLanguage := cfg.ASR.Language
			if language != "" {
				selectedLanguage = language
			}

			if selectedLanguage != "" {
				if err := ctx.SetForceLanguage(selectedLanguage); err != nil {
					return err
				}
			}

			selectedPrompt := cfg.ASR.Prompt
			if prompt != "" {
				selectedPrompt = prompt
			}

			ctx.SetPrompt(selectedPrompt)

			wavData, err := os.ReadFile(in)
			if err != nil {
				return fmt.Errorf("read %s: %w", in, err)
			}

			samples, err := audio.DecodeWAV(wavData)
			if err != nil {
				return fmt.Errorf("decode %s: %w", in, err)
			}

			text, err := ctx.Transcribe(samples)
			if err != nil {
				return fmt.Errorf("transcribe: %w", err)
			}

			return writeTranscribeOutput(out, text, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&in, "in", "", "Input WAV file path (required)")
	cmd.Flags().StringVar(&out, "out", "-", "Output text path ('-' for stdout)")
	cmd.Flags().StringVar(&language, "language", "", "Force a decoding language (overrides config)")
	cmd.Flags().StringVar(&prompt, "prompt", "", "Decoder prompt-biasing text (overrides config)")

	return cmd
}

func writeTranscribeOutput(outPath, text string, stdout io.Writer) error {
	if outPath == "" || outPath == "-" {
		_, err := fmt.Fprintln(stdout, text)
		return err
	}

	return os.WriteFile(outPath, []byte(text+"\n"), 0o644)
}
