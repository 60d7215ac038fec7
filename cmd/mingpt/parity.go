package main

import (
	"context"
	"fmt"
	"io"
	"os"

	json "github.com/goccy/go-json"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/mingpt/internal/logger"
	"github.com/samcharles93/mingpt/internal/parity"
)

// defaultPrompt is the prompt the parity check has always used.
const defaultPrompt = "Hello, my dog is a little"

func parityCmd() *cli.Command {
	var (
		modelType string
		modelDir  string
		prompts   []string
		steps     int64
		rtol      float64
		atol      float64
		asJSON    bool
	)
	return &cli.Command{
		Name:  "parity",
		Usage: "Check that minGPT and the reference GPT-2 agree on logits, greedy tokens and text",
		Flags: append(modelFlags(&modelType, &modelDir),
			&cli.StringSliceFlag{
				Name:        "prompt",
				Aliases:     []string{"p"},
				Usage:       "prompt to compare on (repeatable); empty means <|endoftext|>",
				Value:       []string{defaultPrompt},
				Destination: &prompts,
			},
			&cli.Int64Flag{
				Name:        "steps",
				Usage:       "greedy tokens to decode",
				Value:       parity.DefaultSteps,
				Destination: &steps,
			},
			&cli.Float64Flag{
				Name:        "rtol",
				Usage:       "relative logit tolerance",
				Value:       parity.DefaultTolerance.RTol,
				Destination: &rtol,
			},
			&cli.Float64Flag{
				Name:        "atol",
				Usage:       "absolute logit tolerance",
				Value:       parity.DefaultTolerance.ATol,
				Destination: &atol,
			},
			&cli.BoolFlag{
				Name:        "json",
				Usage:       "print reports as JSON",
				Destination: &asJSON,
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			applyModelConfig(cmd, cfg, &modelType)
			applyParityConfig(cmd, cfg, &steps, &rtol, &atol)
			log := logger.FromContext(ctx)

			dir, err := resolveModelDir(modelType, modelDir, modelsDir)
			if err != nil {
				return err
			}
			m, err := loadModels(ctx, dir, modelType, modelDir != "", true)
			if err != nil {
				return err
			}
			h := &parity.Harness{
				Candidate:   parity.FromGPT(m.candidate),
				Reference:   parity.FromHF(m.reference),
				Tokenizer:   m.tokenizer,
				Tolerance:   &parity.Tolerance{RTol: rtol, ATol: atol},
				Steps:       int(steps),
				Fingerprint: m.fingerprint,
				Log:         log,
			}

			var failed error
			for _, prompt := range prompts {
				rep, err := h.Run(ctx, prompt)
				if rep == nil {
					return err
				}
				if asJSON {
					if err := writeJSON(cmd.Root().Writer, rep); err != nil {
						return err
					}
				} else {
					printReport(cmd.Root().Writer, rep)
				}
				if err != nil && failed == nil {
					failed = err
				}
			}
			if failed != nil {
				return fmt.Errorf("parity: %w", failed)
			}
			return nil
		},
	}
}

func printReport(w io.Writer, rep *parity.Report) {
	if w == nil {
		w = os.Stdout
	}
	status := "OK"
	if !rep.OK {
		status = "FAIL"
	}
	_, _ = fmt.Fprintf(w, "%s %s\n", status, rep.ID)
	_, _ = fmt.Fprintf(w, "  prompt:    %q (%d tokens)\n", rep.Prompt, len(rep.InputIDs))
	_, _ = fmt.Fprintf(w, "  logits:    %s\n", rep.Logits)
	if rep.Divergence != nil {
		_, _ = fmt.Fprintf(w, "             %s\n", rep.Divergence)
	}
	_, _ = fmt.Fprintf(w, "  minGPT:    %q\n", rep.CandidateText)
	_, _ = fmt.Fprintf(w, "  reference: %q\n", rep.ReferenceText)
	if rep.Failure != "" {
		_, _ = fmt.Fprintf(w, "  failure:   %s\n", rep.Failure)
	}
}

func writeJSON(w io.Writer, v any) error {
	if w == nil {
		w = os.Stdout
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
