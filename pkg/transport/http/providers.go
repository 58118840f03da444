package http

import (
	"net/http"

	"github.com/rhuss/byok/pkg/api"
	"github.com/rhuss/byok/pkg/auth"
	"github.com/rhuss/byok/pkg/transport"
)

type providerEntry struct {
	ID           api.ProviderID `json:"id"`
	DefaultModel string         `json:"default_model"`
	HasKey       bool           `json:"has_key"`
}

type providerList struct {
	Data []providerEntry `json:"data"`
}

type modelList struct {
	Provider api.ProviderID  `json:"provider"`
	Data     []api.ModelInfo `json:"data"`
}

// handleListProviders handles GET /v1/providers.
func (a *Adapter) handleListProviders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := auth.UserID(ctx)

	out := providerList{Data: []providerEntry{}}
	for _, p := range a.svc.Providers.SupportedProviders() {
		model, err := a.svc.Providers.DefaultModel(p)
		if err != nil {
			transport.WriteError(w, err)
			return
		}
		has, err := a.svc.Credentials.HasAPIKey(ctx, userID, p)
		if err != nil {
			transport.WriteError(w, err)
			return
		}
		out.Data = append(out.Data, providerEntry{ID: p, DefaultModel: model, HasKey: has})
	}
	transport.WriteJSON(w, http.StatusOK, out)
}

// handleListModels handles GET /v1/providers/{provider}/models. The
// caller must have stored a key for the provider.
func (a *Adapter) handleListModels(w http.ResponseWriter, r *http.Request) {
	p, ok := a.pathProvider(w, r)
	if !ok {
		return
	}
	models, err := a.svc.Completions.GetAvailableModels(r.Context(), auth.UserID(r.Context()), p)
	if err != nil {
		transport.WriteError(w, err)
		return
	}
	if models == nil {
		models = []api.ModelInfo{}
	}
	transport.WriteJSON(w, http.StatusOK, modelList{Provider: p, Data: models})
}
