package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/example/qwen3-asr-go/internal/asr"
	"github.com/example/qwen3-asr-go/internal/audio"
	"github.com/example/qwen3-asr-go/internal/server"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the qwen3-asr HTTP server",
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			ctx, err := asr.Load(cfg.Paths.ModelDir)
			if err != nil {
				return err
			}
			defer ctx.Free()

			ctx.SetThreads(cfg.Runtime.Threads)
			ctx.SetMaxSteps(cfg.ASR.MaxSteps)

			h := server.NewHandler(ctx, audio.DecodeWAV)

			srv := server.New(cfg.Server.ListenAddr, h, time.Duration(cfg.Server.ShutdownTimeout)*time.Second)

			signalCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return srv.Start(signalCtx)
		},
	}

	return cmd
}
