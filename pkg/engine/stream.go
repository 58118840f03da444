package engine

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/rhuss/byok/pkg/api"
	"github.com/rhuss/byok/pkg/debug"
	"github.com/rhuss/byok/pkg/observability"
	"github.com/rhuss/byok/pkg/provider"
	"github.com/rhuss/byok/pkg/storage"
)

// ChunkHandler receives caller-facing chunks in vendor order. Returning an
// error aborts the stream; the assistant message is then finalized as
// cancelled.
type ChunkHandler func(api.StreamChunk) error

// StreamChatCompletion runs a streamed completion on the request's thread.
//
// The user turn is stored as complete and an assistant placeholder is
// stored as pending, then moved to streaming once the vendor stream is
// open. Every chunk is persisted (accumulated content, usage and finish
// reason merged into the metadata) before it is handed to onChunk. The
// chunk carrying the finish reason completes the message and is the last
// one delivered, with Done set.
//
// A vendor failure finalizes the message as error with the accumulated
// content kept and the canonical error recorded in its metadata. The same
// happens with code cancelled when ctx is cancelled or onChunk fails; that
// write runs detached from ctx, bounded by Config.FinalizeTimeout.
func (e *Engine) StreamChatCompletion(ctx context.Context, userID string, req *api.CompletionRequest, onChunk ChunkHandler) error {
	ctx = withOwner(ctx, userID)

	c, err := e.prepare(ctx, userID, req)
	if err != nil {
		return err
	}
	if err := e.persistUserTurn(ctx, c); err != nil {
		return err
	}

	placeholder, err := e.threads.AddMessage(ctx, req.ThreadID, storage.NewMessage{
		Role:   api.RoleAssistant,
		Status: api.MessageStatusPending,
		Metadata: api.MessageMetadata{
			ModelID:  c.model,
			Provider: req.Provider,
		},
	})
	if err != nil {
		return err
	}

	s := &streamRun{
		engine:  e,
		call:    c,
		msgID:   placeholder.ID,
		model:   c.model,
		onChunk: onChunk,
		start:   time.Now(),
	}
	return s.run(ctx)
}

// streamRun is the state of one streamed completion.
type streamRun struct {
	engine  *Engine
	call    *call
	msgID   string
	model   string
	onChunk ChunkHandler
	start   time.Time

	acc    strings.Builder
	chunks int
}

func (s *streamRun) run(ctx context.Context) error {
	req := s.call.req

	// The adapter goroutine stops as soon as this call returns.
	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	debug.Log("engine", "opening stream",
		"thread_id", req.ThreadID, "message_id", s.msgID, "provider", req.Provider, "model", s.model)

	ch, err := s.call.adapter.StreamPrompt(streamCtx, s.call.messages, s.call.opts)
	if err != nil {
		return s.fail(ctx, err)
	}

	if err := s.update(ctx, storage.MessageUpdate{Status: statusPtr(api.MessageStatusStreaming)}); err != nil {
		return s.fail(ctx, err)
	}

	for {
		select {
		case <-ctx.Done():
			return s.fail(ctx, api.NewCancelledError("the completion was cancelled"))

		case chunk, ok := <-ch:
			if !ok {
				return s.fail(ctx, api.NewServerError("the provider stream ended without a finish reason"))
			}
			if chunk.Err != nil {
				return s.fail(ctx, chunk.Err)
			}

			done, err := s.handle(ctx, chunk)
			if err != nil || done {
				return err
			}
		}
	}
}

// handle persists one chunk and forwards it. It reports whether the
// stream is finished.
func (s *streamRun) handle(ctx context.Context, chunk provider.Chunk) (bool, error) {
	req := s.call.req

	s.acc.WriteString(chunk.Content)
	s.chunks++
	if chunk.Model != "" {
		s.model = chunk.Model
	}

	final := chunk.Done || chunk.FinishReason != ""
	finish := chunk.FinishReason
	if final && finish == "" {
		finish = api.FinishReasonUnknown
	}

	content := s.acc.String()
	update := storage.MessageUpdate{Content: &content}
	if final {
		update.Status = statusPtr(api.MessageStatusComplete)
		update.Metadata = &api.MessageMetadata{
			ModelID:      s.model,
			Usage:        chunk.Usage,
			FinishReason: finish,
		}
	} else if chunk.Usage != nil {
		update.Metadata = &api.MessageMetadata{Usage: chunk.Usage}
	}

	if err := s.update(ctx, update); err != nil {
		return true, s.fail(ctx, err)
	}

	debug.Trace("streaming", "chunk persisted",
		"message_id", s.msgID, "index", s.chunks, "bytes", len(chunk.Content), "final", final)
	observability.StreamChunksTotal.WithLabelValues(string(req.Provider)).Inc()

	out := api.StreamChunk{
		ThreadID:     req.ThreadID,
		MessageID:    s.msgID,
		Content:      chunk.Content,
		Model:        s.model,
		Provider:     req.Provider,
		FinishReason: finish,
		Usage:        chunk.Usage,
		Done:         final,
	}
	if !final {
		out.FinishReason = ""
		out.Usage = nil
	}

	if final {
		observability.ObserveProviderCall(req.Provider, s.model, "stream", time.Since(s.start), nil)
		observability.ObserveUsage(req.Provider, s.model, chunk.Usage)
		observability.MessagesFinalizedTotal.WithLabelValues(string(req.Provider), string(api.MessageStatusComplete)).Inc()
		debug.Log("engine", "stream complete",
			"message_id", s.msgID, "chunks", s.chunks, "finish_reason", finish)
	}

	if err := s.onChunk(out); err != nil {
		if final {
			// The message is already complete; only the delivery failed.
			return true, err
		}
		s.fail(ctx, api.NewCancelledError("the caller stopped receiving the stream"))
		return true, err
	}
	return final, nil
}

// update writes a partial update of the assistant message.
func (s *streamRun) update(ctx context.Context, u storage.MessageUpdate) error {
	_, err := s.engine.threads.UpdateMessage(ctx, s.call.req.ThreadID, s.msgID, u)
	return err
}

// fail finalizes the assistant message as error, keeping the accumulated
// content, and returns cause as a canonical error. The write is detached
// from ctx so it also lands after the caller went away. Once ctx is done
// every failure is reported as cancelled.
func (s *streamRun) fail(ctx context.Context, cause error) error {
	req := s.call.req
	apiErr := api.AsAPIError(cause)
	if ctx.Err() != nil && apiErr.Code != api.ErrorCodeCancelled {
		apiErr = api.NewCancelledError("the completion was cancelled")
	}

	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.engine.cfg.finalizeTimeout())
	defer cancel()

	content := s.acc.String()
	_, err := s.engine.threads.UpdateMessage(fctx, req.ThreadID, s.msgID, storage.MessageUpdate{
		Content:  &content,
		Status:   statusPtr(api.MessageStatusError),
		Metadata: &api.MessageMetadata{Error: apiErr.Info()},
	})
	if err != nil {
		slog.Warn("failed to finalize assistant message",
			"thread_id", req.ThreadID, "message_id", s.msgID, "cause", apiErr.Code, "error", err)
	}

	observability.ObserveProviderCall(req.Provider, s.model, "stream", time.Since(s.start), apiErr)
	observability.MessagesFinalizedTotal.WithLabelValues(string(req.Provider), string(api.MessageStatusError)).Inc()
	debug.Log("engine", "stream failed",
		"message_id", s.msgID, "code", apiErr.Code, "chunks", s.chunks, "kept_bytes", len(content))

	return apiErr
}

func statusPtr(s api.MessageStatus) *api.MessageStatus { return &s }
