package server

import (
	"net/http"

	"github.com/labstack/echo/v5"

	"github.com/samcharles93/mingpt/internal/parity"
)

type ParityRequest struct {
	Prompt string   `json:"prompt"`
	Steps  int      `json:"steps,omitempty"`
	RTol   *float64 `json:"rtol,omitempty"`
	ATol   *float64 `json:"atol,omitempty"`
}

// handleParity answers 200 with the report whether or not the models agree;
// the report's ok field carries the verdict.
func (s *Server) handleParity(c *echo.Context) error {
	if s.opts.Reference == nil {
		return writeError(c, http.StatusServiceUnavailable, "server_error", "reference model not loaded")
	}
	req, err := decodeJSON[ParityRequest](c.Request().Body)
	if err != nil {
		return writeError(c, http.StatusBadRequest, "invalid_request_error", err.Error())
	}
	if req.Steps < 0 || req.Steps > s.opts.MaxTokens {
		return writeError(c, http.StatusBadRequest, "invalid_request_error", "steps out of range")
	}
	tol := parity.DefaultTolerance
	if req.RTol != nil {
		tol.RTol = *req.RTol
	}
	if req.ATol != nil {
		tol.ATol = *req.ATol
	}

	h := &parity.Harness{
		Candidate:   parity.FromGPT(s.opts.Candidate),
		Reference:   parity.FromHF(s.opts.Reference),
		Tokenizer:   s.opts.Tokenizer,
		Tolerance:   &tol,
		Steps:       req.Steps,
		Fingerprint: s.opts.Fingerprint,
		Log:         s.log,
	}
	rep, err := h.Run(c.Request().Context(), req.Prompt)
	if rep == nil {
		s.metrics.ObserveParity("error", 0)
		return s.modelError(c, err)
	}
	s.metrics.ObserveParity(parity.Outcome(err), rep.Logits.MaxAbs)
	return c.JSON(http.StatusOK, rep)
}
