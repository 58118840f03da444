package api

import (
	"strings"

	"github.com/google/uuid"
)

const (
	threadIDPrefix  = "thread_"
	messageIDPrefix = "msg_"
)

// NewThreadID generates a thread ID: "thread_" followed by a random UUID.
func NewThreadID() string {
	return threadIDPrefix + uuid.NewString()
}

// NewMessageID generates a message ID: "msg_" followed by a random UUID.
func NewMessageID() string {
	return messageIDPrefix + uuid.NewString()
}

// ValidateThreadID reports whether id was produced by NewThreadID.
func ValidateThreadID(id string) bool {
	return validatePrefixed(id, threadIDPrefix)
}

// ValidateMessageID reports whether id was produced by NewMessageID.
func ValidateMessageID(id string) bool {
	return validatePrefixed(id, messageIDPrefix)
}

func validatePrefixed(id, prefix string) bool {
	rest, ok := strings.CutPrefix(id, prefix)
	if !ok {
		return false
	}
	_, err := uuid.Parse(rest)
	return err == nil && len(rest) == 36
}
