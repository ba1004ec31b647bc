package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/example/qwen3-asr-go/internal/config"
	"github.com/example/qwen3-asr-go/internal/doctor"
	"github.com/example/qwen3-asr-go/internal/tokenizer"
	"github.com/spf13/cobra"
)

func newDoctorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Run local model and tokenizer checks",
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			backend, err := config.NormalizeBackend(cfg.Runtime.Backend)
			if err != nil {
				return err
			}

			modelDir := cfg.Paths.ModelDir

			dcfg := doctor.Config{
				ModelDir: modelDir,
				Backend:  backend,
				Languages: func() (string, error) {
					tok, err := tokenizer.Load(modelDir + "/vocab.json")
					if err != nil {
						return "", err
					}

					langs := tok.SupportedLanguages()
					if len(langs) == 0 {
						return "", nil
					}

					out := langs[0]
					for _, l := range langs[1:] {
						out += "," + l
					}

					return out, nil
				},
			}

			result := doctor.Run(dcfg, os.Stdout)

			if result.Failed() {
				for _, f := range result.Failures() {
					fmt.Fprintf(os.Stderr, "FAIL: %s\n", f)
				}

				return errors.New("doctor checks failed")
			}

			_, err = fmt.Fprintln(os.Stdout, "doctor checks passed")

			return err
		},
	}

	return cmd
}
