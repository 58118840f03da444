package http

import (
	"net/http"
	"strings"

	"github.com/rhuss/byok/pkg/api"
	"github.com/rhuss/byok/pkg/auth"
	"github.com/rhuss/byok/pkg/credentials"
	"github.com/rhuss/byok/pkg/transport"
)

type setCredentialRequest struct {
	APIKey string `json:"api_key"`
	// Validate overrides Config.ValidateOnSet when present.
	Validate *bool `json:"validate,omitempty"`
}

type validateCredentialRequest struct {
	APIKey string `json:"api_key"`
}

type validateCredentialResponse struct {
	Provider api.ProviderID `json:"provider"`
	Valid    bool           `json:"valid"`
}

type credentialList struct {
	Data []credentials.Summary `json:"data"`
}

// handleListCredentials handles GET /v1/credentials. Keys are never
// returned, only their hints.
func (a *Adapter) handleListCredentials(w http.ResponseWriter, r *http.Request) {
	list, err := a.svc.Credentials.ListProviders(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		transport.WriteError(w, err)
		return
	}
	if list == nil {
		list = []credentials.Summary{}
	}
	transport.WriteJSON(w, http.StatusOK, credentialList{Data: list})
}

// handleSetCredential handles PUT /v1/credentials/{provider}.
func (a *Adapter) handleSetCredential(w http.ResponseWriter, r *http.Request) {
	p, ok := a.pathProvider(w, r)
	if !ok {
		return
	}
	var req setCredentialRequest
	if !a.decodeJSON(w, r, &req) {
		return
	}

	validate := a.cfg.ValidateOnSet
	if req.Validate != nil {
		validate = *req.Validate
	}
	var v credentials.Validator
	if validate {
		v = a.svc.Providers
	}

	if err := a.svc.Credentials.SetAPIKey(r.Context(), auth.UserID(r.Context()), p, req.APIKey, v); err != nil {
		transport.WriteError(w, err)
		return
	}
	transport.WriteJSON(w, http.StatusOK, credentials.Summary{Provider: p, Hint: credentials.Hint(strings.TrimSpace(req.APIKey))})
}

// handleDeleteCredential handles DELETE /v1/credentials/{provider}.
func (a *Adapter) handleDeleteCredential(w http.ResponseWriter, r *http.Request) {
	p, ok := a.pathProvider(w, r)
	if !ok {
		return
	}
	if err := a.svc.Credentials.DeleteAPIKey(r.Context(), auth.UserID(r.Context()), p); err != nil {
		transport.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleValidateCredential handles POST /v1/credentials/{provider}/validate.
// The key is checked against the vendor and not stored.
func (a *Adapter) handleValidateCredential(w http.ResponseWriter, r *http.Request) {
	p, ok := a.pathProvider(w, r)
	if !ok {
		return
	}
	var req validateCredentialRequest
	if !a.decodeJSON(w, r, &req) {
		return
	}
	if req.APIKey == "" {
		transport.WriteAPIError(w, api.NewInvalidRequestError("api_key", "api_key must not be empty"))
		return
	}

	valid, err := a.svc.Providers.ValidateAPIKey(r.Context(), p, req.APIKey)
	if err != nil {
		transport.WriteError(w, err)
		return
	}
	transport.WriteJSON(w, http.StatusOK, validateCredentialResponse{Provider: p, Valid: valid})
}
