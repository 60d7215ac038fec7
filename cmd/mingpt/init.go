package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/mingpt/internal/gpt"
	"github.com/samcharles93/mingpt/internal/logger"
)

func initCmd() *cli.Command {
	var (
		modelType string
		out       string
		seed      int64
		vocabSize int64
		blockSize int64
		tied      bool
	)
	return &cli.Command{
		Name:  "init",
		Usage: "Write a randomly initialised model in HuggingFace layout",
		Description: "The default vocabulary of 257 ids pairs with the built-in byte-level tokenizer, " +
			"so the result can be used with --model-dir by every other command.",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "model-type",
				Aliases:     []string{"m"},
				Usage:       fmt.Sprintf("architecture preset %v", gpt.ModelTypes()),
				Value:       "gpt-nano",
				Destination: &modelType,
			},
			&cli.StringFlag{
				Name:        "out",
				Aliases:     []string{"o"},
				Usage:       "output directory",
				Required:    true,
				Destination: &out,
			},
			&cli.Int64Flag{
				Name:        "seed",
				Usage:       "initialisation seed",
				Value:       3407,
				Destination: &seed,
			},
			&cli.Int64Flag{
				Name:        "vocab-size",
				Usage:       "vocabulary size",
				Value:       byteLevelVocab,
				Destination: &vocabSize,
			},
			&cli.Int64Flag{
				Name:        "block-size",
				Usage:       "context length",
				Value:       128,
				Destination: &blockSize,
			},
			&cli.BoolFlag{
				Name:        "tie-weights",
				Usage:       "share the token embedding with the output head",
				Destination: &tied,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			m, err := gpt.New(gpt.Config{
				ModelType: modelType,
				VocabSize: int(vocabSize),
				BlockSize: int(blockSize),
			}, seed)
			if err != nil {
				return err
			}
			if tied {
				m.TieHead()
			}
			if err := m.SaveHF(out); err != nil {
				return err
			}
			logger.FromContext(ctx).Info("initialised model",
				"type", modelType, "params", m.NumParams(), "dir", out)
			return nil
		},
	}
}
