package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v5"

	"github.com/samcharles93/mingpt/internal/gpt"
	"github.com/samcharles93/mingpt/internal/hfgpt2"
	"github.com/samcharles93/mingpt/internal/tokenizer"
)

// CompletionRequest selects the minGPT model unless Model is "reference".
type CompletionRequest struct {
	Prompt      string  `json:"prompt"`
	MaxTokens   *int    `json:"max_tokens,omitempty"`
	Temperature float32 `json:"temperature,omitempty"`
	TopK        int     `json:"top_k,omitempty"`
	DoSample    bool    `json:"do_sample,omitempty"`
	Seed        int64   `json:"seed,omitempty"`
	Model       string  `json:"model,omitempty"`
	StopOnEOS   bool    `json:"stop_on_eos,omitempty"`
}

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type CompletionResponse struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	Model   string `json:"model"`
	Text    string `json:"text"`
	Tokens  []int  `json:"tokens"`
	Usage   Usage  `json:"usage"`
}

const modelReference = "reference"

func (s *Server) handleCompletions(c *echo.Context) error {
	req, err := decodeJSON[CompletionRequest](c.Request().Body)
	if err != nil {
		return writeError(c, http.StatusBadRequest, "invalid_request_error", err.Error())
	}
	maxTokens := defaultSteps
	if req.MaxTokens != nil {
		maxTokens = *req.MaxTokens
	}
	if maxTokens < 0 || maxTokens > s.opts.MaxTokens {
		return writeError(c, http.StatusBadRequest, "invalid_request_error",
			fmt.Sprintf("max_tokens must be between 0 and %d", s.opts.MaxTokens))
	}
	if req.Temperature < 0 || req.TopK < 0 {
		return writeError(c, http.StatusBadRequest, "invalid_request_error", "temperature and top_k must not be negative")
	}

	text := req.Prompt
	if text == "" {
		text = tokenizer.EndOfText
	}
	ids, err := s.opts.Tokenizer.Encode(text)
	if err != nil {
		return writeError(c, http.StatusBadRequest, "invalid_request_error", err.Error())
	}

	model := s.opts.ModelType
	start := s.clock()
	var out [][]int
	switch req.Model {
	case "", s.opts.ModelType, "mingpt":
		out, err = s.opts.Candidate.Generate(c.Request().Context(), [][]int{ids}, gpt.GenerateOptions{
			MaxNewTokens: maxTokens,
			Temperature:  req.Temperature,
			DoSample:     req.DoSample,
			TopK:         req.TopK,
			Seed:         req.Seed,
		})
	case modelReference:
		if s.opts.Reference == nil {
			return writeError(c, http.StatusServiceUnavailable, "server_error", "reference model not loaded")
		}
		model = modelReference
		out, err = s.opts.Reference.Generate(c.Request().Context(), [][]int{ids}, hfgpt2.GenerationConfig{
			MaxNewTokens: maxTokens,
			DoSample:     req.DoSample,
			Temperature:  req.Temperature,
			TopK:         req.TopK,
			Seed:         req.Seed,
			StopOnEOS:    req.StopOnEOS,
		})
	default:
		return writeError(c, http.StatusNotFound, "not_found_error", fmt.Sprintf("unknown model %q", req.Model))
	}
	if err != nil {
		return s.modelError(c, err)
	}

	completion := out[0][len(ids):]
	decoded, err := s.opts.Tokenizer.Decode(completion)
	if err != nil {
		return writeError(c, http.StatusInternalServerError, "server_error", err.Error())
	}
	s.metrics.ObserveGenerate(model, len(completion), s.clock().Sub(start))
	return c.JSON(http.StatusOK, CompletionResponse{
		ID:      "cmpl-" + uuid.NewString(),
		Object:  "text_completion",
		Created: start.Unix(),
		Model:   model,
		Text:    decoded,
		Tokens:  completion,
		Usage: Usage{
			PromptTokens:     len(ids),
			CompletionTokens: len(completion),
			TotalTokens:      len(ids) + len(completion),
		},
	})
}

// modelError maps input errors from either model to 400.
func (s *Server) modelError(c *echo.Context, err error) error {
	switch {
	case errors.Is(err, gpt.ErrTokenOutOfRange), errors.Is(err, hfgpt2.ErrTokenOutOfRange),
		errors.Is(err, gpt.ErrSequenceTooLong), errors.Is(err, hfgpt2.ErrSequenceTooLong):
		return writeError(c, http.StatusBadRequest, "invalid_request_error", err.Error())
	}
	s.log.Error("generation failed", "error", err)
	return writeError(c, http.StatusInternalServerError, "server_error", err.Error())
}
