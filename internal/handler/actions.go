package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/capitalize-ai/renovation-planner/internal/middleware"
	"github.com/capitalize-ai/renovation-planner/internal/model"
	"github.com/capitalize-ai/renovation-planner/internal/service"
	"github.com/capitalize-ai/renovation-planner/pkg/logger"
)

// ActionHandler handles decisions on proposed actions.
type ActionHandler struct {
	engine *service.Engine
	logger *logger.Logger
}

// NewActionHandler creates a new action handler.
func NewActionHandler(engine *service.Engine, log *logger.Logger) *ActionHandler {
	return &ActionHandler{engine: engine, logger: log}
}

// Decide handles POST /api/v1/actions/{id}/decision
func (h *ActionHandler) Decide(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actionID := chi.URLParam(r, "id")
	if err := middleware.ValidateID("action", actionID); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	var d model.Decision
	if !decodeJSON(w, r, &d) {
		return
	}

	resp, err := h.engine.DecideAction(ctx, actionID, &d)
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}

	h.logger.Info("action decided",
		zap.String("action_id", actionID),
		zap.String("decision", string(d.Kind)),
		zap.String("status", string(resp.Action.Status)),
		zap.String("user_id", middleware.GetUserID(ctx)))
	writeJSON(w, http.StatusOK, resp)
}
