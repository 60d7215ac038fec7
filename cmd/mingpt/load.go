package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/samcharles93/mingpt/internal/gpt"
	"github.com/samcharles93/mingpt/internal/hfgpt2"
	"github.com/samcharles93/mingpt/internal/logger"
	"github.com/samcharles93/mingpt/internal/safetensors"
	"github.com/samcharles93/mingpt/internal/tokenizer"
)

// byteLevelVocab is the vocabulary size of models built by `mingpt init`.
const byteLevelVocab = 257

type models struct {
	dir         string
	candidate   *gpt.GPT
	reference   *hfgpt2.Model
	tokenizer   *tokenizer.GPT2
	fingerprint uint64
}

// loadModels reads the checkpoint in dir into the minGPT model and, when
// withReference is set, into the reference model too. A published model
// type is loaded with its preset architecture; a custom directory uses the
// sizes in its config.json.
func loadModels(ctx context.Context, dir, modelType string, custom, withReference bool) (*models, error) {
	log := logger.FromContext(ctx)
	start := time.Now()
	hc, err := hfgpt2.LoadConfig(dir)
	if err != nil {
		return nil, err
	}
	m := &models{dir: dir}

	if custom || !gpt.IsPretrained(modelType) {
		switch hc.ActivationFunction {
		case "gelu_new", "gelu_pytorch_tanh":
		default:
			return nil, fmt.Errorf("activation %q is not supported by the minGPT model", hc.ActivationFunction)
		}
		m.candidate, err = gpt.Load(filepath.Join(dir, gpt.WeightsFile), gpt.Config{
			NLayer:            hc.NLayer,
			NHead:             hc.NHead,
			NEmbd:             hc.NEmbd,
			VocabSize:         hc.VocabSize,
			BlockSize:         hc.NPositions,
			LayerNormEps:      hc.LayerNormEpsilon,
			TieWordEmbeddings: hc.TieWordEmbeddings,
		})
	} else {
		// Both sides follow config.json on whether the head is tied.
		var cfg gpt.Config
		if cfg, err = gpt.ConfigFor(modelType); err == nil {
			cfg.TieWordEmbeddings = hc.TieWordEmbeddings
			m.candidate, err = gpt.Load(filepath.Join(dir, gpt.WeightsFile), cfg)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("load minGPT: %w", err)
	}
	if withReference {
		if m.reference, err = hfgpt2.FromPretrained(dir); err != nil {
			return nil, fmt.Errorf("load reference: %w", err)
		}
	}

	m.tokenizer, err = tokenizer.Load(dir)
	if errors.Is(err, tokenizer.ErrNoTokenizer) && hc.VocabSize == byteLevelVocab {
		m.tokenizer, err = tokenizer.NewByteLevel(), nil
	}
	if err != nil {
		return nil, err
	}

	sf, err := safetensors.Open(filepath.Join(dir, gpt.WeightsFile))
	if err != nil {
		return nil, err
	}
	defer func() { _ = sf.Close() }()
	if m.fingerprint, err = sf.Fingerprint(); err != nil {
		return nil, err
	}

	cfg := m.candidate.Config()
	log.Info("loaded model",
		"dir", dir,
		"layers", cfg.NLayer,
		"heads", cfg.NHead,
		"embd", cfg.NEmbd,
		"params", m.candidate.NumParams(),
		"reference", withReference,
		"fingerprint", fmt.Sprintf("%016x", m.fingerprint),
		"elapsed", time.Since(start).Round(time.Millisecond),
	)
	return m, nil
}
