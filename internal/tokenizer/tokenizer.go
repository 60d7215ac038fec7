// Package tokenizer implements the GPT-2 byte-level BPE tokenizer.
package tokenizer

import "errors"

// Tokenizer defines the minimal interface used by the model harnesses.
type Tokenizer interface {
	Encode(text string) ([]int, error)
	Decode(ids []int) (string, error)
}

// EndOfText is the GPT-2 document separator, also used to seed unconditional samples.
const EndOfText = "<|endoftext|>"

var (
	ErrTokenOutOfRange = errors.New("token id out of range")
	ErrUnknownToken    = errors.New("unknown token")
	ErrNoTokenizer     = errors.New("no GPT-2 tokenizer files")
)
