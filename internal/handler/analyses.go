package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/capitalize-ai/renovation-planner/internal/middleware"
	"github.com/capitalize-ai/renovation-planner/internal/service"
	"github.com/capitalize-ai/renovation-planner/pkg/logger"
)

// AnalysisHandler serves analysis history and diffs.
type AnalysisHandler struct {
	analyses *service.AnalysisService
	logger   *logger.Logger
}

// NewAnalysisHandler creates a new analysis handler.
func NewAnalysisHandler(analyses *service.AnalysisService, log *logger.Logger) *AnalysisHandler {
	return &AnalysisHandler{analyses: analyses, logger: log}
}

// History handles GET /api/v1/offers/{id}/analyses
func (h *AnalysisHandler) History(w http.ResponseWriter, r *http.Request) {
	offerID := chi.URLParam(r, "id")
	if err := middleware.ValidateID("offer", offerID); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	resp, err := h.analyses.History(r.Context(), offerID)
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// Diff handles GET /api/v1/analyses/{id}/diff?against={otherID}
func (h *AnalysisHandler) Diff(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	against := r.URL.Query().Get("against")
	if err := middleware.ValidateID("analysis", id); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	if against != "" {
		if err := middleware.ValidateID("analysis", against); err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", err.Error())
			return
		}
	}

	resp, err := h.analyses.Diff(r.Context(), id, against)
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
