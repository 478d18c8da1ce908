package api

import (
	"strings"

	"github.com/google/uuid"
)

const completionIDPrefix = "chatcmpl-"

// NewCompletionID generates an ID for an answer the upstream did not
// identify itself: "chatcmpl-" followed by 32 hex characters.
func NewCompletionID() string {
	return completionIDPrefix + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// NewRequestID generates a request correlation ID.
func NewRequestID() string {
	return uuid.NewString()
}

// ValidateCompletionID checks whether id was produced by NewCompletionID.
func ValidateCompletionID(id string) bool {
	hex, ok := strings.CutPrefix(id, completionIDPrefix)
	if !ok || len(hex) != 32 {
		return false
	}
	for _, r := range hex {
		if !strings.ContainsRune("0123456789abcdef", r) {
			return false
		}
	}
	return true
}
