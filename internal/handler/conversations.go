// Package handler provides HTTP handlers for the API.
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

// ConversationHandler handles conversation endpoints.
type ConversationHandler struct {
	conversations *service.ConversationService
	engine        *service.Engine
	logger        *logger.Logger
}

// NewConversationHandler creates a new conversation handler.
func NewConversationHandler(convs *service.ConversationService, engine *service.Engine, log *logger.Logger) *ConversationHandler {
	return &ConversationHandler{
		conversations: convs,
		engine:        engine,
		logger:        log,
	}
}

// Ensure handles POST /api/v1/conversations
func (h *ConversationHandler) Ensure(w http.ResponseWriter, r *http.Request) {
	var req model.EnsureConversationRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	conv, created, err := h.conversations.Ensure(r.Context(), req.ProjectID, req.ContractorID)
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, conv)
}

// List handles GET /api/v1/projects/{projectID}/conversations
func (h *ConversationHandler) List(w http.ResponseWriter, r *http.Request) {
	resp, err := h.conversations.ListByProject(r.Context(), chi.URLParam(r, "projectID"))
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// Get handles GET /api/v1/conversations/{id}
func (h *ConversationHandler) Get(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "id")
	if err := middleware.ValidateID("conversation", conversationID); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	view, err := h.engine.GetConversation(r.Context(), conversationID)
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// Turn handles POST /api/v1/conversations/{id}/turns
func (h *ConversationHandler) Turn(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	conversationID := chi.URLParam(r, "id")
	if err := middleware.ValidateID("conversation", conversationID); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	var req model.SendTurnRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := middleware.ValidateTurn(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	resp, err := h.engine.HandleIncomingTurn(ctx, conversationID, &req)
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	if resp.Failure != nil {
		h.logger.ForConversation(conversationID).Warn("turn recorded with failure",
			zap.String("kind", resp.Failure.Kind),
			zap.String("user_id", middleware.GetUserID(ctx)))
	}
	writeJSON(w, http.StatusCreated, resp)
}
