package hfgpt2

import (
	"context"
	"fmt"

	"github.com/samcharles93/mingpt/internal/logits"
)

// GenerationConfig controls Generate.
type GenerationConfig struct {
	MaxNewTokens int
	DoSample     bool
	Temperature  float32
	TopK         int
	Seed         int64
	// StopOnEOS marks a row finished once it emits the EOS token; later
	// positions in that row are filled with PadTokenID and decoding ends
	// when every row has finished.
	StopOnEOS bool
}

// Generate decodes up to MaxNewTokens tokens after each row of ids. The
// prompt is processed once and every later step feeds only the newest token
// against the cache. The returned rows start with the prompt.
func (m *Model) Generate(ctx context.Context, ids [][]int, cfg GenerationConfig) ([][]int, error) {
	if len(ids) == 0 || len(ids[0]) == 0 {
		return nil, fmt.Errorf("%w: empty input", ErrBatchShapeMismatch)
	}
	if n := len(ids[0]) + cfg.MaxNewTokens - 1; cfg.MaxNewTokens > 0 && n > m.cfg.NPositions {
		return nil, fmt.Errorf("%w: %d > %d", ErrSequenceTooLong, n, m.cfg.NPositions)
	}
	out := make([][]int, len(ids))
	for i, row := range ids {
		out[i] = append(make([]int, 0, len(row)+cfg.MaxNewTokens), row...)
	}
	if cfg.MaxNewTokens <= 0 {
		return out, nil
	}

	sampler := logits.NewSampler(logits.SamplerConfig{
		Seed:        cfg.Seed,
		Temperature: cfg.Temperature,
		TopK:        cfg.TopK,
		DoSample:    cfg.DoSample,
	})
	finished := make([]bool, len(ids))
	next := make([][]int, len(ids))

	input := ids
	var cache *Cache
	for step := 0; step < cfg.MaxNewTokens; step++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		res, err := m.Forward(input, cache)
		if err != nil {
			return nil, err
		}
		cache = res.Cache
		t := res.Logits.Shape[1]

		done := true
		for b := range out {
			tok := sampler.Sample(res.Logits.Row(b*t + t - 1))
			if finished[b] {
				tok = m.cfg.PadTokenID
			} else if cfg.StopOnEOS && tok == m.cfg.EOSTokenID {
				finished[b] = true
			}
			out[b] = append(out[b], tok)
			next[b] = []int{tok}
			done = done && finished[b]
		}
		if cfg.StopOnEOS && done {
			break
		}
		input = next
	}
	return out, nil
}
