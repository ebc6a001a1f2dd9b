package middleware

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/capitalize-ai/renovation-planner/internal/model"
)

const (
	maxTurnLength   = 20000
	maxAttachments  = 10
	maxFileNameSize = 255
)

// ValidateID validates an entity ID taken from a URL.
func ValidateID(kind, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("invalid %s ID format", kind)
	}
	return nil
}

// ValidateTurn validates a homeowner turn before it reaches the engine.
func ValidateTurn(req *model.SendTurnRequest) error {
	if len(req.Text) > maxTurnLength {
		return errors.New("text exceeds maximum length")
	}
	if !utf8.ValidString(req.Text) {
		return errors.New("text must be valid UTF-8")
	}
	if len(req.Attachments) > maxAttachments {
		return fmt.Errorf("at most %d attachments are allowed", maxAttachments)
	}
	for _, a := range req.Attachments {
		name := strings.TrimSpace(a.Name)
		if name == "" {
			return errors.New("attachment name is required")
		}
		if len(name) > maxFileNameSize || !utf8.ValidString(name) {
			return fmt.Errorf("invalid attachment name %q", name)
		}
	}
	return nil
}
