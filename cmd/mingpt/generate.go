package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/mingpt/internal/gpt"
	"github.com/samcharles93/mingpt/internal/hfgpt2"
	"github.com/samcharles93/mingpt/internal/logger"
	"github.com/samcharles93/mingpt/internal/tokenizer"
)

func generateCmd() *cli.Command {
	var (
		modelType  string
		modelDir   string
		prompt     string
		steps      int64
		temp       float64
		topK       int64
		seed       int64
		sample     bool
		numSamples int64
		reference  bool
		stopOnEOS  bool
	)
	return &cli.Command{
		Name:  "generate",
		Usage: "Continue a prompt with the minGPT model (or the reference)",
		Flags: append(modelFlags(&modelType, &modelDir),
			&cli.StringFlag{
				Name:        "prompt",
				Aliases:     []string{"p"},
				Usage:       "text to continue; empty means <|endoftext|>",
				Value:       defaultPrompt,
				Destination: &prompt,
			},
			&cli.Int64Flag{
				Name:        "steps",
				Aliases:     []string{"n"},
				Usage:       "new tokens per sample",
				Value:       20,
				Destination: &steps,
			},
			&cli.Float64Flag{
				Name:        "temperature",
				Aliases:     []string{"t"},
				Usage:       "softmax temperature when sampling",
				Value:       1.0,
				Destination: &temp,
			},
			&cli.Int64Flag{
				Name:        "top-k",
				Usage:       "sample from the k most likely tokens (0 = all)",
				Destination: &topK,
			},
			&cli.Int64Flag{
				Name:        "seed",
				Usage:       "sampling seed",
				Value:       3407,
				Destination: &seed,
			},
			&cli.BoolFlag{
				Name:        "sample",
				Usage:       "sample instead of greedy decoding",
				Destination: &sample,
			},
			&cli.Int64Flag{
				Name:        "num-samples",
				Usage:       "independent continuations of the prompt",
				Value:       1,
				Destination: &numSamples,
			},
			&cli.BoolFlag{
				Name:        "reference",
				Usage:       "use the reference GPT-2 implementation",
				Destination: &reference,
			},
			&cli.BoolFlag{
				Name:        "stop-on-eos",
				Usage:       "end a reference sample at <|endoftext|>",
				Destination: &stopOnEOS,
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			applyModelConfig(cmd, cfg, &modelType)
			applyGenerateConfig(cmd, cfg, &steps, &temp, &topK, &seed)
			log := logger.FromContext(ctx)
			if numSamples < 1 {
				return fmt.Errorf("--num-samples must be at least 1")
			}

			dir, err := resolveModelDir(modelType, modelDir, modelsDir)
			if err != nil {
				return err
			}
			m, err := loadModels(ctx, dir, modelType, modelDir != "", reference)
			if err != nil {
				return err
			}

			text := prompt
			if text == "" {
				text = tokenizer.EndOfText
			}
			ids, err := m.tokenizer.Encode(text)
			if err != nil {
				return err
			}
			batch := make([][]int, numSamples)
			for i := range batch {
				batch[i] = ids
			}

			start := time.Now()
			var out [][]int
			if reference {
				out, err = m.reference.Generate(ctx, batch, hfgpt2.GenerationConfig{
					MaxNewTokens: int(steps),
					DoSample:     sample,
					Temperature:  float32(temp),
					TopK:         int(topK),
					Seed:         seed,
					StopOnEOS:    stopOnEOS,
				})
			} else {
				out, err = m.candidate.Generate(ctx, batch, gpt.GenerateOptions{
					MaxNewTokens: int(steps),
					Temperature:  float32(temp),
					DoSample:     sample,
					TopK:         int(topK),
					Seed:         seed,
				})
			}
			if err != nil {
				return err
			}
			elapsed := time.Since(start)

			w := cmd.Root().Writer
			for i, row := range out {
				decoded, err := m.tokenizer.Decode(row)
				if err != nil {
					return err
				}
				if i > 0 {
					_, _ = fmt.Fprintln(w, strings.Repeat("-", 80))
				}
				_, _ = fmt.Fprintln(w, decoded)
			}
			generated := len(out[0]) - len(ids)
			log.Info("generated",
				"samples", len(out),
				"tokens", generated,
				"elapsed", elapsed.Round(time.Millisecond),
				"tok_per_s", fmt.Sprintf("%.1f", float64(generated*len(out))/elapsed.Seconds()),
			)
			return nil
		},
	}
}
