package gpt

import (
	"errors"
	"fmt"
	"slices"
	"sort"
)

// Config describes a GPT architecture. Either ModelType or all of
// NLayer/NHead/NEmbd must be set; Resolve fills in the rest.
type Config struct {
	ModelType    string
	NLayer       int
	NHead        int
	NEmbd        int
	VocabSize    int
	BlockSize    int
	LayerNormEps float32
	// TieWordEmbeddings shares the token embedding with the output head.
	// Load then ignores any lm_head.weight in the checkpoint.
	TieWordEmbeddings bool
}

var (
	ErrUnknownModelType = errors.New("unknown model type")
	ErrInvalidConfig    = errors.New("invalid model config")
)

type shape struct{ nLayer, nHead, nEmbd int }

var presets = map[string]shape{
	// names follow the HuggingFace naming conventions
	"openai-gpt":  {12, 12, 768},  // 117M params
	"gpt2":        {12, 12, 768},  // 124M params
	"gpt2-medium": {24, 16, 1024}, // 350M params
	"gpt2-large":  {36, 20, 1280}, // 774M params
	"gpt2-xl":     {48, 25, 1600}, // 1558M params
	// Gophers
	"gopher-44m": {8, 16, 512},
	// tiny models for experiments
	"gpt-mini":  {6, 6, 192},
	"gpt-micro": {4, 4, 128},
	"gpt-nano":  {3, 3, 48},
}

// pretrainedTypes are the checkpoints FromPretrained accepts.
var pretrainedTypes = []string{"gpt2", "gpt2-medium", "gpt2-large", "gpt2-xl"}

// ModelTypes lists every known preset name in sorted order.
func ModelTypes() []string {
	out := make([]string, 0, len(presets))
	for name := range presets {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// IsPretrained reports whether modelType names a published GPT-2 checkpoint.
func IsPretrained(modelType string) bool {
	return slices.Contains(pretrainedTypes, modelType)
}

// ConfigFor returns the preset architecture for modelType with GPT-2's
// vocabulary and context length.
func ConfigFor(modelType string) (Config, error) {
	return Config{ModelType: modelType, VocabSize: 50257, BlockSize: 1024}.Resolve()
}

// Resolve expands ModelType into layer sizes and applies defaults. A config
// that names a type and already carries that type's sizes is left as is, so
// Resolve can be applied more than once.
func (c Config) Resolve() (Config, error) {
	typeGiven := c.ModelType != ""
	paramsGiven := c.NLayer != 0 && c.NHead != 0 && c.NEmbd != 0
	if !typeGiven && !paramsGiven {
		return Config{}, fmt.Errorf("%w: set a model type or (n_layer, n_head, n_embd)", ErrInvalidConfig)
	}
	if typeGiven {
		p, ok := presets[c.ModelType]
		if !ok {
			return Config{}, fmt.Errorf("%w: %q", ErrUnknownModelType, c.ModelType)
		}
		if paramsGiven && (p != shape{c.NLayer, c.NHead, c.NEmbd}) {
			return Config{}, fmt.Errorf("%w: sizes conflict with model type %q", ErrInvalidConfig, c.ModelType)
		}
		c.NLayer, c.NHead, c.NEmbd = p.nLayer, p.nHead, p.nEmbd
	}
	if c.LayerNormEps == 0 {
		c.LayerNormEps = 1e-5
	}
	return c, c.Validate()
}

func (c Config) Validate() error {
	switch {
	case c.NLayer <= 0 || c.NHead <= 0 || c.NEmbd <= 0:
		return fmt.Errorf("%w: layer sizes must be positive", ErrInvalidConfig)
	case c.NEmbd%c.NHead != 0:
		return fmt.Errorf("%w: n_embd %d not divisible by n_head %d", ErrInvalidConfig, c.NEmbd, c.NHead)
	case c.VocabSize <= 0:
		return fmt.Errorf("%w: vocab_size must be positive", ErrInvalidConfig)
	case c.BlockSize <= 0:
		return fmt.Errorf("%w: block_size must be positive", ErrInvalidConfig)
	}
	return nil
}

// HeadSize is the per-head channel count.
func (c Config) HeadSize() int { return c.NEmbd / c.NHead }
