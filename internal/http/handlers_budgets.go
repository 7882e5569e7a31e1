package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"bilancio/internal/core"
	"bilancio/internal/log"
)

// handleSetDefaultBudget marks one budget as the default. The backend clears
// sibling defaults atomically, so at most one default ever exists.
func (s *Server) handleSetDefaultBudget(w http.ResponseWriter, r *http.Request) {
	budgetID := strings.TrimSpace(r.PathValue("id"))
	if budgetID == "" {
		writeError(w, http.StatusBadRequest, "missing budget id")
		return
	}

	if err := s.deps.Backend.SetDefaultBudget(r.Context(), budgetID); err != nil {
		if errors.Is(err, core.ErrBudgetNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		s.logger.Error("set default budget failed", log.FieldBudgetID, budgetID, log.FieldError, err)
		writeError(w, http.StatusBadGateway, "backend write failed")
		return
	}

	s.invalidate(r.Context(), "", "default budget changed")
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListBudgetMonths(w http.ResponseWriter, r *http.Request) {
	months, err := s.deps.Backend.FetchBudgetMonths(r.Context())
	if err != nil {
		s.logger.Error("list budget months failed", log.FieldError, err)
		writeError(w, http.StatusBadGateway, "upstream unavailable")
		return
	}
	if months == nil {
		months = []core.BudgetMonth{}
	}
	writeJSON(w, http.StatusOK, months)
}

type assignMonthRequest struct {
	BudgetID string `json:"budget_id"`
	Month    string `json:"month"`
}

// handleAssignBudgetMonth pins a budget to a specific month. A month can
// carry at most one override.
func (s *Server) handleAssignBudgetMonth(w http.ResponseWriter, r *http.Request) {
	var req assignMonthRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.BudgetID) == "" {
		writeError(w, http.StatusBadRequest, "missing budget id")
		return
	}
	month, err := core.ParseMonth(req.Month)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	created, err := s.deps.Backend.AssignBudgetMonth(r.Context(), req.BudgetID, month)
	switch {
	case err == nil:
		s.invalidate(r.Context(), month.String(), "month override assigned")
		writeJSON(w, http.StatusCreated, created)
	case errors.Is(err, core.ErrBudgetNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, core.ErrOverrideConflict):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, core.ErrInvalidMonth):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.logger.Error("assign budget month failed",
			log.FieldBudgetID, req.BudgetID, log.FieldMonth, month.String(), log.FieldError, err)
		writeError(w, http.StatusBadGateway, "backend write failed")
	}
}

func (s *Server) handleRemoveBudgetMonth(w http.ResponseWriter, r *http.Request) {
	overrideID := strings.TrimSpace(r.PathValue("id"))
	if overrideID == "" {
		writeError(w, http.StatusBadRequest, "missing override id")
		return
	}

	if err := s.deps.Backend.RemoveBudgetMonth(r.Context(), overrideID); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	s.invalidate(r.Context(), "", "month override removed")
	w.WriteHeader(http.StatusNoContent)
}

// handleExport recomputes the requested month and appends it to the
// configured report sheet.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	if s.deps.Exporter == nil {
		writeError(w, http.StatusNotImplemented, "export is not configured")
		return
	}

	month, err := parseMonth(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := s.deps.Loader.Load(r.Context(), month)
	switch {
	case err == nil:
	case errors.Is(err, core.ErrNoBudgetConfigured):
		writeError(w, http.StatusConflict, "no budget configured for this month")
		return
	case errors.Is(err, core.ErrInvalidMonth):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	default:
		s.logger.Error("export load failed", log.FieldMonth, month.String(), log.FieldError, err)
		writeError(w, http.StatusBadGateway, "upstream unavailable")
		return
	}

	ref, err := s.deps.Exporter.AppendSummary(r.Context(), result)
	if err != nil {
		s.logger.Error("export append failed", log.FieldMonth, month.String(), log.FieldError, err)
		writeError(w, http.StatusBadGateway, "export failed")
		return
	}

	s.logger.Info("summary exported",
		log.FieldOperation, log.OpExport, log.FieldMonth, month.String(), "range", ref)
	writeJSON(w, http.StatusOK, map[string]string{
		"month":    month.String(),
		"exported": ref,
	})
}
