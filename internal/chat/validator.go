package chat

import (
	"strings"
	"unicode/utf8"

	"github.com/flicker/match-app/internal/apperr"
)

const (
	MaxMessageBytes = 4096 // 4KB max stored size
	MaxTextChars    = 2000 // max character count
)

// ValidateMessage checks that a message meets content requirements.
func ValidateMessage(text string) error {
	if strings.TrimSpace(text) == "" {
		return apperr.InvalidAction("message text is empty")
	}
	if len(text) > MaxMessageBytes {
		return apperr.InvalidAction("message exceeds 4096 byte limit")
	}
	if !utf8.ValidString(text) {
		return apperr.InvalidAction("message contains invalid UTF-8")
	}
	if utf8.RuneCountInString(text) > MaxTextChars {
		return apperr.InvalidAction("message exceeds 2000 character limit")
	}
	if check, ok := detectSpam(text); ok {
		return apperr.InvalidAction(check.reason)
	}
	return nil
}
