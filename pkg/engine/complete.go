package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/rhuss/byok/pkg/api"
	"github.com/rhuss/byok/pkg/debug"
	"github.com/rhuss/byok/pkg/observability"
	"github.com/rhuss/byok/pkg/storage"
)

// CompleteChatPrompt runs a synchronous completion on the request's
// thread. The user turn is stored before the vendor call; the assistant
// reply is stored directly as complete. A vendor failure is returned
// without persisting an assistant message.
func (e *Engine) CompleteChatPrompt(ctx context.Context, userID string, req *api.CompletionRequest) (*api.CompletionSummary, error) {
	ctx = withOwner(ctx, userID)

	c, err := e.prepare(ctx, userID, req)
	if err != nil {
		return nil, err
	}
	if err := e.persistUserTurn(ctx, c); err != nil {
		return nil, err
	}

	debug.Log("engine", "sending prompt",
		"thread_id", req.ThreadID, "provider", req.Provider, "model", c.model, "messages", len(c.messages))

	start := time.Now()
	res, err := c.adapter.SendPrompt(ctx, c.messages, c.opts)
	observability.ObserveProviderCall(req.Provider, c.model, "send", time.Since(start), err)
	if err != nil {
		return nil, err
	}

	model := res.Model
	if model == "" {
		model = c.model
	}
	finish := res.FinishReason
	if finish == "" {
		finish = api.FinishReasonUnknown
	}
	observability.ObserveUsage(req.Provider, model, res.Usage)

	msg, err := e.threads.AddMessage(ctx, req.ThreadID, storage.NewMessage{
		Role:    api.RoleAssistant,
		Content: res.Content,
		Status:  api.MessageStatusComplete,
		Metadata: api.MessageMetadata{
			ModelID:      model,
			Provider:     req.Provider,
			Usage:        res.Usage,
			FinishReason: finish,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("persisting assistant message: %w", err)
	}
	observability.MessagesFinalizedTotal.WithLabelValues(string(req.Provider), string(api.MessageStatusComplete)).Inc()

	return &api.CompletionSummary{
		ThreadID:     req.ThreadID,
		MessageID:    msg.ID,
		Content:      res.Content,
		Model:        model,
		Provider:     req.Provider,
		FinishReason: finish,
		Usage:        res.Usage,
	}, nil
}
