package api

import "fmt"

// messageTransitions lists the allowed outgoing states per status.
// streaming -> streaming covers the per-chunk content updates.
var messageTransitions = map[MessageStatus][]MessageStatus{
	MessageStatusPending:   {MessageStatusStreaming, MessageStatusComplete, MessageStatusError},
	MessageStatusStreaming: {MessageStatusStreaming, MessageStatusComplete, MessageStatusError},
	MessageStatusComplete:  {},
	MessageStatusError:     {},
}

// ValidateMessageTransition checks whether a message status transition is
// valid. Complete and error are terminal.
func ValidateMessageTransition(from, to MessageStatus) *APIError {
	allowed, exists := messageTransitions[from]
	if !exists {
		return NewInvalidRequestError("status",
			fmt.Sprintf("invalid transition from %s to %s", from, to))
	}

	for _, s := range allowed {
		if s == to {
			return nil
		}
	}

	return NewInvalidRequestError("status",
		fmt.Sprintf("invalid transition from %s to %s", from, to))
}

// ValidInitialStatus reports whether a new message may be created in status s.
func ValidInitialStatus(s MessageStatus) bool {
	_, known := messageTransitions[s]
	return known
}
