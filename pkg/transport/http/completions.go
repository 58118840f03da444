package http

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/rhuss/byok/pkg/api"
	"github.com/rhuss/byok/pkg/auth"
	"github.com/rhuss/byok/pkg/debug"
	"github.com/rhuss/byok/pkg/observability"
	"github.com/rhuss/byok/pkg/transport"
)

// completionRequest is the body of POST /v1/threads/{threadID}/completions.
type completionRequest struct {
	Prompt   string                 `json:"prompt"`
	Provider api.ProviderID         `json:"provider"`
	ModelID  string                 `json:"model_id,omitempty"`
	Options  *api.CompletionOptions `json:"options,omitempty"`
	Stream   bool                   `json:"stream,omitempty"`
}

// handleCompletion handles POST /v1/threads/{threadID}/completions. The
// result is a JSON summary, or server-sent events when the body sets
// stream or the client only accepts text/event-stream.
func (a *Adapter) handleCompletion(w http.ResponseWriter, r *http.Request) {
	threadID, ok := pathThreadID(w, r)
	if !ok {
		return
	}
	var body completionRequest
	if !a.decodeJSON(w, r, &body) {
		return
	}

	req := &api.CompletionRequest{
		Prompt:   body.Prompt,
		Provider: body.Provider,
		ModelID:  body.ModelID,
		ThreadID: threadID,
		Options:  body.Options,
	}

	if body.Stream || wantsEventStream(r) {
		a.streamCompletion(w, r, req)
		return
	}

	summary, err := a.svc.Completions.CompleteChatPrompt(r.Context(), auth.UserID(r.Context()), req)
	if err != nil {
		transport.WriteError(w, err)
		return
	}
	transport.WriteJSON(w, http.StatusOK, summary)
}

// streamCompletion relays chunks as SSE. The stream is registered for
// cancellation under its assistant message id once the first chunk names it.
func (a *Adapter) streamCompletion(w http.ResponseWriter, r *http.Request, req *api.CompletionRequest) {
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	userID := auth.UserID(ctx)
	sse := newSSEWriter(w)
	defer observability.TrackStream()()

	var registeredID string
	err := a.svc.Completions.StreamChatCompletion(ctx, userID, req, func(chunk api.StreamChunk) error {
		if registeredID == "" && chunk.MessageID != "" {
			registeredID = chunk.MessageID
			a.inflight.Register(registeredID, userID, cancel)
		}
		return sse.WriteChunk(chunk)
	})

	if registeredID != "" {
		a.inflight.Remove(registeredID)
	}

	if err == nil {
		return
	}
	apiErr := transport.ToAPIError(err)
	if !sse.Started() {
		transport.WriteAPIError(w, apiErr)
		return
	}
	if sse.Completed() {
		return
	}
	if werr := sse.WriteError(apiErr); werr != nil {
		debug.Log("streaming", "writing error event failed",
			slog.String("request_id", transport.RequestIDFromContext(r.Context())),
			slog.String("error", werr.Error()),
		)
	}
}

// handleCancelCompletion handles DELETE /v1/threads/{threadID}/completions/{messageID}.
// Only the caller that started the stream can cancel it.
func (a *Adapter) handleCancelCompletion(w http.ResponseWriter, r *http.Request) {
	if _, ok := pathThreadID(w, r); !ok {
		return
	}
	msgID := chi.URLParam(r, "messageID")
	if !api.ValidateMessageID(msgID) {
		transport.WriteAPIError(w, api.NewInvalidRequestError("message_id", "malformed message ID"))
		return
	}

	if !a.inflight.Cancel(msgID, auth.UserID(r.Context())) {
		transport.WriteAPIError(w, api.NewNotFoundError("no running completion for message "+msgID))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func wantsEventStream(r *http.Request) bool {
	accept := r.Header.Get("Accept")
	return strings.Contains(accept, "text/event-stream") && !strings.Contains(accept, "application/json")
}
