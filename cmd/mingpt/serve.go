package main

import (
	"context"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/mingpt/internal/logger"
	"github.com/samcharles93/mingpt/internal/server"
)

func serveCmd() *cli.Command {
	var (
		modelType   string
		modelDir    string
		addr        string
		rate        float64
		burst       int64
		maxTokens   int64
		noReference bool
		readTimeout time.Duration
	)
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve completions and parity checks over HTTP",
		Flags: append(modelFlags(&modelType, &modelDir),
			&cli.StringFlag{
				Name:        "addr",
				Usage:       "listen address",
				Value:       "127.0.0.1:8080",
				Destination: &addr,
			},
			&cli.Float64Flag{
				Name:        "rate",
				Usage:       "model requests per second (0 = unlimited)",
				Value:       5,
				Destination: &rate,
			},
			&cli.Int64Flag{
				Name:        "burst",
				Usage:       "rate limiter burst",
				Value:       10,
				Destination: &burst,
			},
			&cli.Int64Flag{
				Name:        "max-tokens",
				Usage:       "upper bound on max_tokens per request",
				Value:       256,
				Destination: &maxTokens,
			},
			&cli.BoolFlag{
				Name:        "no-reference",
				Usage:       "do not load the reference model (disables /v1/parity)",
				Destination: &noReference,
			},
			&cli.DurationFlag{
				Name:        "read-timeout",
				Usage:       "read header timeout",
				Value:       30 * time.Second,
				Destination: &readTimeout,
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			applyModelConfig(cmd, cfg, &modelType)
			applyServeConfig(cmd, cfg, &addr, &rate, &burst)
			log := logger.FromContext(ctx)

			dir, err := resolveModelDir(modelType, modelDir, modelsDir)
			if err != nil {
				return err
			}
			m, err := loadModels(ctx, dir, modelType, modelDir != "", !noReference)
			if err != nil {
				return err
			}
			srv := server.New(server.Options{
				ModelType:   modelType,
				Candidate:   m.candidate,
				Reference:   m.reference,
				Tokenizer:   m.tokenizer,
				Fingerprint: m.fingerprint,
				Rate:        rate,
				Burst:       int(burst),
				MaxTokens:   int(maxTokens),
				Log:         log,
			})
			return srv.ListenAndServe(ctx, addr, readTimeout)
		},
	}
}
