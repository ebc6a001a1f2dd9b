package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/capitalize-ai/renovation-planner/internal/apperr"
	"github.com/capitalize-ai/renovation-planner/pkg/logger"
)

const maxBodyBytes = 1 << 20

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	Retryable bool   `json:"retryable"`
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, &ErrorResponse{Error: message, Code: code})
}

// writeAppError maps a classified error to its HTTP status. Internal errors
// are logged and their detail is withheld from the client.
func writeAppError(w http.ResponseWriter, log *logger.Logger, err error) {
	kind := apperr.KindOf(err)
	status := statusFor(kind)
	message := err.Error()
	if status == http.StatusInternalServerError {
		log.Error("request failed", zap.Error(err))
		message = "internal error"
	}
	writeJSON(w, status, &ErrorResponse{
		Error:     message,
		Code:      string(kind),
		Retryable: apperr.IsRetryable(err),
	})
}

func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindValidation:
		return http.StatusUnprocessableEntity
	case apperr.KindInvalidState, apperr.KindConflict:
		return http.StatusConflict
	case apperr.KindTimeout:
		return http.StatusGatewayTimeout
	case apperr.KindTransport, apperr.KindCredential, apperr.KindModel:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// decodeJSON reads a bounded JSON body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, "bad_request", "request body is required")
		} else {
			writeError(w, http.StatusBadRequest, "bad_request", "invalid request body")
		}
		return false
	}
	return true
}
