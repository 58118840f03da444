package engine

import (
	"github.com/rhuss/byok/pkg/api"
	"github.com/rhuss/byok/pkg/debug"
	"github.com/rhuss/byok/pkg/provider"
)

// buildContext converts the stored thread into the vendor message list and
// appends the new user turn. Only complete messages are sent, and
// assistant messages must have content: interrupted or failed placeholders
// never reach the vendor.
func buildContext(history []api.Message, prompt string) []provider.Message {
	msgs := make([]provider.Message, 0, len(history)+1)
	skipped := 0
	for _, m := range history {
		if !includeInContext(m) {
			skipped++
			continue
		}
		msgs = append(msgs, provider.Message{Role: m.Role, Content: m.Content})
	}
	if skipped > 0 {
		debug.Log("engine", "messages excluded from context", "skipped", skipped, "kept", len(msgs))
	}
	return append(msgs, provider.Message{Role: api.RoleUser, Content: prompt})
}

func includeInContext(m api.Message) bool {
	if m.Status != api.MessageStatusComplete {
		return false
	}
	if m.Role == api.RoleAssistant && m.Content == "" {
		return false
	}
	return true
}
