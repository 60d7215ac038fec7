package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v3"
	"golang.org/x/term"

	"github.com/samcharles93/mingpt/internal/hub"
	"github.com/samcharles93/mingpt/internal/logger"
)

func fetchCmd() *cli.Command {
	var (
		modelType string
		token     string
		baseURL   string
		revision  string
		quiet     bool
	)
	return &cli.Command{
		Name:  "fetch",
		Usage: "Download a pretrained GPT-2 checkpoint into the models dir",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "model-type",
				Aliases:     []string{"m"},
				Usage:       "gpt2, gpt2-medium, gpt2-large or gpt2-xl",
				Value:       "gpt2",
				Destination: &modelType,
			},
			&cli.StringFlag{
				Name:        "token",
				Usage:       "HuggingFace access token",
				Sources:     cli.EnvVars("HF_TOKEN"),
				Destination: &token,
			},
			&cli.StringFlag{
				Name:        "endpoint",
				Usage:       "hub base URL",
				Value:       hub.DefaultBaseURL,
				Sources:     cli.EnvVars("HF_ENDPOINT"),
				Destination: &baseURL,
			},
			&cli.StringFlag{
				Name:        "revision",
				Usage:       "repository revision",
				Value:       "main",
				Destination: &revision,
			},
			&cli.BoolFlag{
				Name:        "quiet",
				Aliases:     []string{"q"},
				Usage:       "no progress bars",
				Destination: &quiet,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			applyModelConfig(cmd, cfg, &modelType)
			if token == "" {
				token = cfg.HFToken
			}
			root, err := resolveModelsDir(modelsDir)
			if err != nil {
				return err
			}
			var progress io.Writer
			if !quiet && term.IsTerminal(int(os.Stderr.Fd())) {
				progress = os.Stderr
			}
			dir, err := hub.Fetch(ctx, modelType, root, hub.Options{
				BaseURL:  baseURL,
				Revision: revision,
				Token:    token,
				Progress: progress,
				Log:      logger.FromContext(ctx),
			})
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.Root().Writer, dir)
			return nil
		},
	}
}
