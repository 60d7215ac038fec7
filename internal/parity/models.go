package parity

import (
	"context"

	"github.com/samcharles93/mingpt/internal/gpt"
	"github.com/samcharles93/mingpt/internal/hfgpt2"
	"github.com/samcharles93/mingpt/internal/tensor"
)

// Model is a causal language model under comparison.
type Model interface {
	Name() string
	// Logits returns [batch, time, vocab] logits for ids.
	Logits(ctx context.Context, ids [][]int) (*tensor.Tensor, error)
	// Greedy appends steps argmax tokens to every row of ids.
	Greedy(ctx context.Context, ids [][]int, steps int) ([][]int, error)
}

// FromGPT adapts the from-scratch model.
func FromGPT(m *gpt.GPT) Model { return gptModel{m} }

// FromHF adapts the reference model. Decoding runs for a fixed number of
// steps and does not stop at EOS, matching FromGPT.
func FromHF(m *hfgpt2.Model) Model { return hfModel{m} }

type gptModel struct{ m *gpt.GPT }

func (g gptModel) Name() string { return "mingpt" }

func (g gptModel) Logits(ctx context.Context, ids [][]int) (*tensor.Tensor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	logits, _, err := g.m.Forward(ids, nil)
	return logits, err
}

func (g gptModel) Greedy(ctx context.Context, ids [][]int, steps int) ([][]int, error) {
	return g.m.Generate(ctx, ids, gpt.GenerateOptions{MaxNewTokens: steps})
}

type hfModel struct{ m *hfgpt2.Model }

func (h hfModel) Name() string { return "hf-gpt2" }

func (h hfModel) Logits(ctx context.Context, ids [][]int) (*tensor.Tensor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out, err := h.m.Forward(ids, nil)
	return out.Logits, err
}

func (h hfModel) Greedy(ctx context.Context, ids [][]int, steps int) ([][]int, error) {
	return h.m.Generate(ctx, ids, hfgpt2.GenerationConfig{MaxNewTokens: steps})
}
