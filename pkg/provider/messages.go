package provider

import (
	"log/slog"

	"github.com/rhuss/byok/pkg/api"
)

// RequireMessages returns invalid_request when msgs is empty.
func RequireMessages(msgs []Message) error {
	if len(msgs) == 0 {
		return api.NewInvalidRequestError("messages", "at least one message is required")
	}
	return nil
}

// SplitSystem separates the first system message from the conversation
// turns. Later system messages and messages with unknown roles are dropped.
func SplitSystem(msgs []Message) (system string, turns []Message) {
	seenSystem := false
	turns = make([]Message, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case api.RoleSystem:
			if seenSystem {
				slog.Debug("dropping additional system message")
				continue
			}
			seenSystem = true
			system = m.Content
		case api.RoleUser, api.RoleAssistant:
			turns = append(turns, m)
		default:
			slog.Debug("dropping message with unsupported role", "role", string(m.Role))
		}
	}
	return system, turns
}
