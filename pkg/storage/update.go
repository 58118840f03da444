package storage

import (
	"fmt"
	"time"

	"github.com/rhuss/byok/pkg/api"
)

// ValidateNewMessage checks the fields of a message before insertion.
func ValidateNewMessage(m NewMessage) error {
	switch m.Role {
	case api.RoleUser, api.RoleAssistant, api.RoleSystem:
	default:
		return fmt.Errorf("unsupported message role %q", m.Role)
	}
	if !api.ValidInitialStatus(m.Status) {
		return fmt.Errorf("unsupported message status %q", m.Status)
	}
	return nil
}

// ApplyUpdate applies u to msg in place. An update without a status is a
// content or metadata change and is only allowed while msg is not terminal.
func ApplyUpdate(msg *api.Message, u MessageUpdate) error {
	if u.Status != nil {
		if err := api.ValidateMessageTransition(msg.Status, *u.Status); err != nil {
			return fmt.Errorf("%w: %s", ErrInvalidTransition, err.Message)
		}
	} else if msg.Status.Terminal() {
		return fmt.Errorf("%w: message %s is %s", ErrInvalidTransition, msg.ID, msg.Status)
	}

	if u.Content != nil {
		msg.Content = *u.Content
	}
	if u.Status != nil {
		msg.Status = *u.Status
	}
	if u.Metadata != nil {
		msg.Metadata = api.MergeMetadata(msg.Metadata, *u.Metadata)
	}
	return nil
}

// Touch returns the new updated-at of a thread. It never moves backwards.
func Touch(prev, now time.Time) time.Time {
	if now.Before(prev) {
		return prev
	}
	return now
}

// EffectiveLimit resolves the list limit, applying the default.
func (o ListOptions) EffectiveLimit() int {
	if o.Limit <= 0 {
		return DefaultListLimit
	}
	return o.Limit
}
