package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/capitalize-ai/renovation-planner/internal/middleware"
	"github.com/capitalize-ai/renovation-planner/internal/service"
	"github.com/capitalize-ai/renovation-planner/pkg/logger"
)

const (
	defaultEventPage = 100
	maxEventPage     = 1000
)

// EventHandler serves the conversation event journal, as a JSON page or as
// a server-sent event stream.
type EventHandler struct {
	conversations *service.ConversationService
	logger        *logger.Logger
	pollInterval  time.Duration
	heartbeat     time.Duration
}

// NewEventHandler creates a new event handler.
func NewEventHandler(convs *service.ConversationService, log *logger.Logger) *EventHandler {
	return &EventHandler{
		conversations: convs,
		logger:        log,
		pollInterval:  2 * time.Second,
		heartbeat:     30 * time.Second,
	}
}

// ReplayCompleteEvent marks the end of the initial replay on a stream.
type ReplayCompleteEvent struct {
	LastSequence uint64 `json:"last_sequence"`
	EventCount   int    `json:"event_count"`
}

// List handles GET /api/v1/conversations/{id}/events
// Supports ?after_sequence=N&limit=M. Clients sending Accept: text/event-stream
// receive the replay followed by live events.
func (h *EventHandler) List(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "id")
	if err := middleware.ValidateID("conversation", conversationID); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	var after uint64
	if v := r.URL.Query().Get("after_sequence"); v != "" {
		parsed, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", "invalid after_sequence")
			return
		}
		after = parsed
	}
	limit := defaultEventPage
	if v := r.URL.Query().Get("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 && parsed <= maxEventPage {
			limit = parsed
		}
	}

	if r.Header.Get("Accept") == "text/event-stream" {
		h.stream(w, r, conversationID, after)
		return
	}

	resp, err := h.conversations.Events(r.Context(), conversationID, after, limit)
	if err != nil {
		h.writeEventsError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *EventHandler) stream(w http.ResponseWriter, r *http.Request, conversationID string, after uint64) {
	ctx := r.Context()

	// Fail before committing to a stream when the journal is unavailable.
	first, err := h.conversations.Events(ctx, conversationID, after, maxEventPage)
	if err != nil {
		h.writeEventsError(w, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "internal", "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	sendSSEEvent(w, flusher, "connected", map[string]string{"conversation_id": conversationID})

	replayed := 0
	page := first
	for {
		for i := range page.Events {
			sendSSEEvent(w, flusher, "event", &page.Events[i])
			replayed++
		}
		if page.LastSequence > after {
			after = page.LastSequence
		}
		if !page.HasMore {
			break
		}
		if page, err = h.conversations.Events(ctx, conversationID, after, maxEventPage); err != nil {
			h.logger.Error("event replay failed", zap.String("conversation_id", conversationID), zap.Error(err))
			sendSSEEvent(w, flusher, "error", &ErrorResponse{Error: "failed to replay events", Code: "replay_error", Retryable: true})
			return
		}
	}
	sendSSEEvent(w, flusher, "replay_complete", &ReplayCompleteEvent{LastSequence: after, EventCount: replayed})

	poll := time.NewTicker(h.pollInterval)
	defer poll.Stop()
	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			fmt.Fprint(w, ": heartbeat\n\n")
			flusher.Flush()
		case <-poll.C:
			page, err := h.conversations.Events(ctx, conversationID, after, maxEventPage)
			if err != nil {
				if ctx.Err() == nil {
					h.logger.Warn("event poll failed", zap.String("conversation_id", conversationID), zap.Error(err))
				}
				continue
			}
			for i := range page.Events {
				sendSSEEvent(w, flusher, "event", &page.Events[i])
			}
			if page.LastSequence > after {
				after = page.LastSequence
			}
		}
	}
}

func (h *EventHandler) writeEventsError(w http.ResponseWriter, err error) {
	if errors.Is(err, service.ErrJournalDisabled) {
		writeError(w, http.StatusServiceUnavailable, "journal_disabled", err.Error())
		return
	}
	writeAppError(w, h.logger, err)
}

// sendSSEEvent writes one server-sent event.
func sendSSEEvent(w http.ResponseWriter, flusher http.Flusher, event string, data any) {
	payload, err := json.Marshal(data)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, payload)
	flusher.Flush()
}

