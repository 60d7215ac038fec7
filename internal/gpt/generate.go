package gpt

import (
	"context"

	"github.com/samcharles93/mingpt/internal/logits"
)

// GenerateOptions controls autoregressive decoding.
type GenerateOptions struct {
	MaxNewTokens int
	Temperature  float32 // 0 means 1
	DoSample     bool    // false selects the most likely token
	TopK         int     // 0 disables top-k filtering
	Seed         int64
}

// Generate extends every row of idx by MaxNewTokens tokens, feeding each
// prediction back in. The model conditions on at most the last BlockSize
// tokens, so prompts longer than the block size are accepted. The returned
// rows hold the whole prompt followed by the new tokens; idx is not modified.
func (m *GPT) Generate(ctx context.Context, idx [][]int, opts GenerateOptions) ([][]int, error) {
	for _, seq := range idx {
		if len(seq) != len(idx[0]) {
			return nil, ErrRaggedBatch
		}
		if err := m.checkIDs(seq); err != nil {
			return nil, err
		}
	}
	cond := make([][]int, len(idx))
	for i, seq := range idx {
		cond[i] = seq[max(0, len(seq)-m.cfg.BlockSize):]
	}
	if _, _, err := m.checkBatch(cond); err != nil {
		return nil, err
	}
	out := make([][]int, len(idx))
	for i, seq := range idx {
		out[i] = append(make([]int, 0, len(seq)+opts.MaxNewTokens), seq...)
	}
	sampler := logits.NewSampler(logits.SamplerConfig{
		Seed:        opts.Seed,
		Temperature: opts.Temperature,
		TopK:        opts.TopK,
		DoSample:    opts.DoSample,
	})

	for step := 0; step < opts.MaxNewTokens; step++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for i, seq := range out {
			cond[i] = seq[max(0, len(seq)-m.cfg.BlockSize):]
		}
		last, err := m.lastLogits(cond)
		if err != nil {
			return nil, err
		}
		for i := range out {
			out[i] = append(out[i], sampler.Sample(last.Row(i)))
		}
	}
	return out, nil
}
