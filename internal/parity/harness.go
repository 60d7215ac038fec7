// Package parity checks that two GPT-2 implementations agree: the same
// prompt must yield element-wise close logits, identical greedy
// continuations and identical decoded text.
package parity

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/samcharles93/mingpt/internal/logger"
	"github.com/samcharles93/mingpt/internal/tokenizer"
)

var (
	ErrLogitsMismatch = errors.New("logits differ")
	ErrTokensMismatch = errors.New("generated tokens differ")
	ErrTextMismatch   = errors.New("decoded text differs")
)

// DefaultSteps is the number of greedy tokens decoded per run.
const DefaultSteps = 20

// Harness runs Candidate and Reference side by side.
type Harness struct {
	Candidate Model
	Reference Model
	Tokenizer tokenizer.Tokenizer
	Tolerance *Tolerance // nil means DefaultTolerance
	Steps     int        // zero means DefaultSteps
	// Fingerprint identifies the shared weights; it is copied into reports.
	Fingerprint uint64
	Log         logger.Logger
}

// Timings records wall time per stage.
type Timings struct {
	CandidateLogits   time.Duration `json:"candidate_logits"`
	ReferenceLogits   time.Duration `json:"reference_logits"`
	CandidateGenerate time.Duration `json:"candidate_generate"`
	ReferenceGenerate time.Duration `json:"reference_generate"`
}

// Report is the outcome of one run.
type Report struct {
	ID              string      `json:"id"`
	Prompt          string      `json:"prompt"`
	InputIDs        []int       `json:"input_ids"`
	Steps           int         `json:"steps"`
	Tolerance       Tolerance   `json:"tolerance"`
	Logits          Diff        `json:"logits"`
	LogitsClose     bool        `json:"logits_close"`
	Divergence      *Divergence `json:"divergence,omitempty"`
	CandidateTokens []int       `json:"candidate_tokens"`
	ReferenceTokens []int       `json:"reference_tokens"`
	TokensEqual     bool        `json:"tokens_equal"`
	CandidateText   string      `json:"candidate_text"`
	ReferenceText   string      `json:"reference_text"`
	TextEqual       bool        `json:"text_equal"`
	OK              bool        `json:"ok"`
	Failure         string      `json:"failure,omitempty"`
	Fingerprint     string      `json:"fingerprint,omitempty"`
	Timings         Timings     `json:"timings"`
}

// Run compares both models on prompt. An empty prompt is replaced by the
// end-of-text token. Every stage runs even after a mismatch so the report is
// complete; the returned error wraps the first failing stage's sentinel.
// Errors from the models or the tokenizer are returned without a report.
func (h *Harness) Run(ctx context.Context, prompt string) (*Report, error) {
	tol := DefaultTolerance
	if h.Tolerance != nil {
		tol = *h.Tolerance
	}
	steps := h.Steps
	if steps <= 0 {
		steps = DefaultSteps
	}
	log := h.Log
	if log == nil {
		log = logger.FromContext(ctx)
	}

	rep := &Report{
		ID:        uuid.NewString(),
		Prompt:    prompt,
		Steps:     steps,
		Tolerance: tol,
	}
	if h.Fingerprint != 0 {
		rep.Fingerprint = fmt.Sprintf("%016x", h.Fingerprint)
	}
	log = log.With("run", rep.ID)

	text := prompt
	if text == "" {
		text = tokenizer.EndOfText
	}
	ids, err := h.Tokenizer.Encode(text)
	if err != nil {
		return nil, fmt.Errorf("encode prompt: %w", err)
	}
	rep.InputIDs = ids
	batch := [][]int{ids}
	log.Debug("encoded prompt", "tokens", len(ids))

	start := time.Now()
	cand, err := h.Candidate.Logits(ctx, batch)
	if err != nil {
		return nil, fmt.Errorf("%s logits: %w", h.Candidate.Name(), err)
	}
	rep.Timings.CandidateLogits = time.Since(start)
	start = time.Now()
	ref, err := h.Reference.Logits(ctx, batch)
	if err != nil {
		return nil, fmt.Errorf("%s logits: %w", h.Reference.Name(), err)
	}
	rep.Timings.ReferenceLogits = time.Since(start)
	rep.Logits, rep.LogitsClose = AllClose(cand, ref, tol)
	if div, ok := Diverge(cand, ref); ok {
		rep.Divergence = &div
	}
	log.Debug("compared logits", "close", rep.LogitsClose, "max_abs", rep.Logits.MaxAbs)

	start = time.Now()
	candOut, err := h.Candidate.Greedy(ctx, batch, steps)
	if err != nil {
		return nil, fmt.Errorf("%s generate: %w", h.Candidate.Name(), err)
	}
	rep.Timings.CandidateGenerate = time.Since(start)
	start = time.Now()
	refOut, err := h.Reference.Greedy(ctx, batch, steps)
	if err != nil {
		return nil, fmt.Errorf("%s generate: %w", h.Reference.Name(), err)
	}
	rep.Timings.ReferenceGenerate = time.Since(start)
	rep.CandidateTokens = slices.Clone(candOut[0])
	rep.ReferenceTokens = slices.Clone(refOut[0])
	pos, equal := EqualTokens(candOut, refOut)
	rep.TokensEqual = equal

	if rep.CandidateText, err = h.Tokenizer.Decode(rep.CandidateTokens); err != nil {
		return nil, fmt.Errorf("decode %s output: %w", h.Candidate.Name(), err)
	}
	if rep.ReferenceText, err = h.Tokenizer.Decode(rep.ReferenceTokens); err != nil {
		return nil, fmt.Errorf("decode %s output: %w", h.Reference.Name(), err)
	}
	rep.TextEqual = rep.CandidateText == rep.ReferenceText

	var failure error
	switch {
	case !rep.LogitsClose:
		failure = fmt.Errorf("%w: %s", ErrLogitsMismatch, rep.Logits)
	case !rep.TokensEqual:
		failure = fmt.Errorf("%w at position %d", ErrTokensMismatch, pos)
	case !rep.TextEqual:
		failure = fmt.Errorf("%w: %q vs %q", ErrTextMismatch, rep.CandidateText, rep.ReferenceText)
	}
	rep.OK = failure == nil
	if failure != nil {
		rep.Failure = failure.Error()
		log.Warn("parity failed", "reason", rep.Failure)
		return rep, failure
	}
	log.Info("parity ok", "tokens", len(rep.CandidateTokens), "max_abs_diff", rep.Logits.MaxAbs)
	return rep, nil
}

// Outcome names the stage a Run error came from: "ok", "logits", "tokens",
// "text", or "error" for anything that is not a mismatch.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrLogitsMismatch):
		return "logits"
	case errors.Is(err, ErrTokensMismatch):
		return "tokens"
	case errors.Is(err, ErrTextMismatch):
		return "text"
	}
	return "error"
}
