package http

import (
	"encoding/json"
	"net/http"
)

type startJobRequest struct {
	TransactionIDs []string `json:"transaction_ids"`
	Force          bool     `json:"force"`
}

// handleJobStart submits a categorization batch. An empty batch or a batch
// submitted while a job is already in flight is accepted and ignored, so the
// response snapshot tells the caller what actually happened.
func (s *Server) handleJobStart(w http.ResponseWriter, r *http.Request) {
	var req startJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	s.deps.Orchestrator.Submit(r.Context(), req.TransactionIDs, req.Force)
	writeJSON(w, http.StatusAccepted, s.deps.Orchestrator.Snapshot())
}

func (s *Server) handleJobStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Orchestrator.Snapshot())
}

// handleJobCancel stops observing the current job. The remote job keeps
// running; cancelling only abandons local tracking.
func (s *Server) handleJobCancel(w http.ResponseWriter, _ *http.Request) {
	s.deps.Orchestrator.Cancel()
	writeJSON(w, http.StatusOK, s.deps.Orchestrator.Snapshot())
}

// handleJobRetry resubmits the last failed batch. Outside the failed state
// this is a no-op, mirrored back via the snapshot.
func (s *Server) handleJobRetry(w http.ResponseWriter, r *http.Request) {
	s.deps.Orchestrator.Retry(r.Context())
	writeJSON(w, http.StatusAccepted, s.deps.Orchestrator.Snapshot())
}
