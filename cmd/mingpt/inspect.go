package main

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/mingpt/internal/hfgpt2"
	"github.com/samcharles93/mingpt/internal/safetensors"
	"github.com/samcharles93/mingpt/internal/tensor"
)

type tensorSummary struct {
	Name  string `json:"name"`
	DType string `json:"dtype"`
	Shape []int  `json:"shape"`
}

type inspectReport struct {
	Dir         string            `json:"dir"`
	Config      hfgpt2.Config     `json:"config"`
	Fingerprint string            `json:"fingerprint"`
	Params      int               `json:"params"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	Tensors     []tensorSummary   `json:"tensors,omitempty"`
}

func inspectCmd() *cli.Command {
	var (
		modelType   string
		modelDir    string
		showTensors bool
		asJSON      bool
	)
	return &cli.Command{
		Name:  "inspect",
		Usage: "Describe a checkpoint: architecture, parameter count, fingerprint and tensors",
		Flags: append(modelFlags(&modelType, &modelDir),
			&cli.BoolFlag{
				Name:        "tensors",
				Usage:       "list every tensor",
				Destination: &showTensors,
			},
			&cli.BoolFlag{
				Name:        "json",
				Usage:       "print as JSON",
				Destination: &asJSON,
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			applyModelConfig(cmd, cfg, &modelType)
			dir, err := resolveModelDir(modelType, modelDir, modelsDir)
			if err != nil {
				return err
			}
			rep, err := inspectDir(dir, showTensors)
			if err != nil {
				return err
			}
			w := cmd.Root().Writer
			if asJSON {
				return writeJSON(w, rep)
			}

			c := rep.Config
			_, _ = fmt.Fprintf(w, "dir:         %s\n", rep.Dir)
			_, _ = fmt.Fprintf(w, "layers:      %d\n", c.NLayer)
			_, _ = fmt.Fprintf(w, "heads:       %d\n", c.NHead)
			_, _ = fmt.Fprintf(w, "embd:        %d\n", c.NEmbd)
			_, _ = fmt.Fprintf(w, "vocab:       %d\n", c.VocabSize)
			_, _ = fmt.Fprintf(w, "positions:   %d\n", c.NPositions)
			_, _ = fmt.Fprintf(w, "params:      %d (%.1fM)\n", rep.Params, float64(rep.Params)/1e6)
			_, _ = fmt.Fprintf(w, "fingerprint: %s\n", rep.Fingerprint)
			if len(rep.Tensors) > 0 {
				width := 0
				for _, t := range rep.Tensors {
					width = max(width, len(t.Name))
				}
				_, _ = fmt.Fprintln(w)
				for _, t := range rep.Tensors {
					_, _ = fmt.Fprintf(w, "%-*s %-5s %v\n", width, t.Name, t.DType, t.Shape)
				}
			}
			return nil
		},
	}
}

// inspectDir counts parameters without the causal-mask buffers, which are
// not weights.
func inspectDir(dir string, withTensors bool) (*inspectReport, error) {
	hc, err := hfgpt2.LoadConfig(dir)
	if err != nil {
		return nil, err
	}
	sf, err := safetensors.Open(filepath.Join(dir, hfgpt2.WeightsFile))
	if err != nil {
		return nil, err
	}
	defer func() { _ = sf.Close() }()

	fp, err := sf.Fingerprint()
	if err != nil {
		return nil, err
	}
	rep := &inspectReport{
		Dir:         dir,
		Config:      hc,
		Fingerprint: fmt.Sprintf("%016x", fp),
		Metadata:    sf.Metadata,
	}
	for _, name := range sf.Names() {
		info, _ := sf.Tensor(name)
		if strings.HasSuffix(name, ".attn.bias") || strings.HasSuffix(name, ".attn.masked_bias") {
			continue
		}
		n, err := tensor.Numel(info.Shape)
		if err != nil {
			n = 1
		}
		rep.Params += n
		if withTensors {
			rep.Tensors = append(rep.Tensors, tensorSummary{Name: name, DType: info.DType, Shape: info.Shape})
		}
	}
	return rep, nil
}
