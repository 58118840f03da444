package http

import (
	"net/http"

	"github.com/rhuss/byok/pkg/api"
	"github.com/rhuss/byok/pkg/auth"
	"github.com/rhuss/byok/pkg/storage"
	"github.com/rhuss/byok/pkg/transport"
)

type createThreadRequest struct {
	Title    string         `json:"title,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

type threadList struct {
	Data []api.Thread `json:"data"`
}

// handleCreateThread handles POST /v1/threads. The thread is owned by the
// authenticated caller. An empty body is allowed.
func (a *Adapter) handleCreateThread(w http.ResponseWriter, r *http.Request) {
	var req createThreadRequest
	if r.ContentLength != 0 {
		if !a.decodeJSON(w, r, &req) {
			return
		}
	}

	t, err := a.svc.Threads.CreateThread(r.Context(), storage.NewThread{
		OwnerID:  auth.UserID(r.Context()),
		Title:    req.Title,
		Metadata: req.Metadata,
	})
	if err != nil {
		transport.WriteError(w, err)
		return
	}
	transport.WriteJSON(w, http.StatusCreated, t)
}

// handleListThreads handles GET /v1/threads.
func (a *Adapter) handleListThreads(w http.ResponseWriter, r *http.Request) {
	limit, apiErr := parseLimit(r)
	if apiErr != nil {
		transport.WriteAPIError(w, apiErr)
		return
	}

	threads, err := a.svc.Threads.ListThreads(r.Context(), auth.UserID(r.Context()), storage.ListOptions{Limit: limit})
	if err != nil {
		transport.WriteError(w, err)
		return
	}
	if threads == nil {
		threads = []api.Thread{}
	}
	transport.WriteJSON(w, http.StatusOK, threadList{Data: threads})
}

// handleGetThread handles GET /v1/threads/{threadID}.
func (a *Adapter) handleGetThread(w http.ResponseWriter, r *http.Request) {
	id, ok := pathThreadID(w, r)
	if !ok {
		return
	}
	t, err := a.svc.Threads.GetThread(r.Context(), id)
	if err != nil {
		transport.WriteError(w, err)
		return
	}
	transport.WriteJSON(w, http.StatusOK, t)
}

// handleDeleteThread handles DELETE /v1/threads/{threadID}.
func (a *Adapter) handleDeleteThread(w http.ResponseWriter, r *http.Request) {
	id, ok := pathThreadID(w, r)
	if !ok {
		return
	}
	if err := a.svc.Threads.DeleteThread(r.Context(), id); err != nil {
		transport.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
