package http

import (
	"errors"
	"net/http"

	"bilancio/internal/core"
	"bilancio/internal/log"
)

// summaryResponse is the envelope for the summary endpoint. A month with no
// budget is a legitimate state, signalled by Configured=false rather than an
// error status.
type summaryResponse struct {
	Configured bool                `json:"configured"`
	Month      string              `json:"month"`
	Summary    *core.BudgetSummary `json:"summary,omitempty"`
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	month, err := parseMonth(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := s.deps.Loader.Load(r.Context(), month)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, summaryResponse{
			Configured: true,
			Month:      month.String(),
			Summary:    &result,
		})
	case errors.Is(err, core.ErrNoBudgetConfigured):
		writeJSON(w, http.StatusOK, summaryResponse{
			Configured: false,
			Month:      month.String(),
		})
	case errors.Is(err, core.ErrInvalidMonth):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, core.ErrStaleResult):
		// A newer request superseded this one; the client should retry
		// with its current month.
		writeError(w, http.StatusConflict, "superseded by a newer request")
	case errors.Is(err, core.ErrUpstreamUnavailable):
		s.logger.Error("summary load failed", log.FieldMonth, month.String(), log.FieldError, err)
		writeError(w, http.StatusBadGateway, "upstream unavailable")
	default:
		s.logger.Error("summary load failed", log.FieldMonth, month.String(), log.FieldError, err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
