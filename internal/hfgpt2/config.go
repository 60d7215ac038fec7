// Package hfgpt2 implements the HuggingFace GPT2LMHeadModel: Conv1D
// projections, a tied language-model head and key/value caching for
// incremental decoding. It reads the same checkpoints as package gpt but
// shares none of its forward code.
package hfgpt2

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	json "github.com/goccy/go-json"
)

// ConfigFile is the name of the model configuration inside a model directory.
const ConfigFile = "config.json"

// Config mirrors the fields of GPT2Config used for inference.
type Config struct {
	VocabSize          int     `json:"vocab_size"`
	NPositions         int     `json:"n_positions"`
	NEmbd              int     `json:"n_embd"`
	NLayer             int     `json:"n_layer"`
	NHead              int     `json:"n_head"`
	LayerNormEpsilon   float32 `json:"layer_norm_epsilon"`
	ActivationFunction string  `json:"activation_function"`
	BOSTokenID         int     `json:"bos_token_id"`
	EOSTokenID         int     `json:"eos_token_id"`
	PadTokenID         int     `json:"pad_token_id"`
	TieWordEmbeddings  bool    `json:"tie_word_embeddings"`
}

// DefaultConfig is the 124M-parameter "gpt2" checkpoint.
func DefaultConfig() Config {
	return Config{
		VocabSize:          50257,
		NPositions:         1024,
		NEmbd:              768,
		NLayer:             12,
		NHead:              12,
		LayerNormEpsilon:   1e-5,
		ActivationFunction: "gelu_new",
		BOSTokenID:         50256,
		EOSTokenID:         50256,
		PadTokenID:         50256,
		TieWordEmbeddings:  true,
	}
}

var (
	ErrInvalidConfig      = errors.New("invalid gpt2 config")
	ErrUnknownActivation  = errors.New("unknown activation function")
	ErrSequenceTooLong    = errors.New("sequence exceeds n_positions")
	ErrTokenOutOfRange    = errors.New("token id out of range")
	ErrBatchShapeMismatch = errors.New("batch rows differ in length")
)

// rawConfig tracks which optional fields were present.
type rawConfig struct {
	Config
	PadTokenID *int  `json:"pad_token_id"`
	Tie        *bool `json:"tie_word_embeddings"`
}

// LoadConfig reads dir/config.json. A missing file yields DefaultConfig.
// Fields absent from the file keep their GPT-2 defaults, and a missing
// pad_token_id falls back to the EOS token.
func LoadConfig(dir string) (Config, error) {
	data, err := os.ReadFile(filepath.Join(dir, ConfigFile))
	if errors.Is(err, os.ErrNotExist) {
		return DefaultConfig(), nil
	}
	if err != nil {
		return Config{}, err
	}
	return ParseConfig(data)
}

// ParseConfig decodes a config.json payload.
func ParseConfig(data []byte) (Config, error) {
	raw := rawConfig{Config: DefaultConfig()}
	if err := json.Unmarshal(data, &raw); err != nil {
		return Config{}, fmt.Errorf("parse %s: %w", ConfigFile, err)
	}
	cfg := raw.Config
	cfg.PadTokenID = cfg.EOSTokenID
	if raw.PadTokenID != nil {
		cfg.PadTokenID = *raw.PadTokenID
	}
	cfg.TieWordEmbeddings = raw.Tie == nil || *raw.Tie
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	switch {
	case c.NLayer <= 0 || c.NHead <= 0 || c.NEmbd <= 0:
		return fmt.Errorf("%w: layer sizes must be positive", ErrInvalidConfig)
	case c.NEmbd%c.NHead != 0:
		return fmt.Errorf("%w: n_embd %d not divisible by n_head %d", ErrInvalidConfig, c.NEmbd, c.NHead)
	case c.VocabSize <= 0 || c.NPositions <= 0:
		return fmt.Errorf("%w: vocab_size and n_positions must be positive", ErrInvalidConfig)
	case c.LayerNormEpsilon <= 0:
		return fmt.Errorf("%w: layer_norm_epsilon must be positive", ErrInvalidConfig)
	case c.EOSTokenID < 0 || c.EOSTokenID >= c.VocabSize || c.PadTokenID < 0 || c.PadTokenID >= c.VocabSize:
		return fmt.Errorf("%w: eos/pad token outside the vocabulary", ErrInvalidConfig)
	}
	if _, err := activation(c.ActivationFunction); err != nil {
		return err
	}
	return nil
}
