package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rhuss/byok/pkg/api"
	"github.com/rhuss/byok/pkg/debug"
	"github.com/rhuss/byok/pkg/observability"
	"github.com/rhuss/byok/pkg/provider"
	"github.com/rhuss/byok/pkg/storage"
)

// CredentialSource resolves a user's vendor key. GetAPIKey fails with an
// error wrapping storage.ErrNotFound when no key is stored.
type CredentialSource interface {
	HasAPIKey(ctx context.Context, userID string, p api.ProviderID) (bool, error)
	GetAPIKey(ctx context.Context, userID string, p api.ProviderID) (string, error)
}

// ThreadStore is the subset of storage.ThreadStore the engine writes through.
type ThreadStore interface {
	GetThread(ctx context.Context, id string) (*api.Thread, error)
	AddMessage(ctx context.Context, threadID string, m storage.NewMessage) (*api.Message, error)
	UpdateMessage(ctx context.Context, threadID, messageID string, u storage.MessageUpdate) (*api.Thread, error)
}

// AdapterFactory builds credential-bound adapters.
type AdapterFactory interface {
	CreateAdapter(id api.ProviderID, credential string) (provider.Adapter, error)
	DefaultModel(id api.ProviderID) (string, error)
}

// Engine is the completion orchestrator. It holds no per-thread state;
// every call re-reads the thread from the store.
type Engine struct {
	factory AdapterFactory
	creds   CredentialSource
	threads ThreadStore
	cfg     Config
}

// New creates an Engine. All collaborators are required.
func New(factory AdapterFactory, creds CredentialSource, threads ThreadStore, cfg Config) (*Engine, error) {
	if factory == nil {
		return nil, fmt.Errorf("engine: adapter factory must not be nil")
	}
	if creds == nil {
		return nil, fmt.Errorf("engine: credential source must not be nil")
	}
	if threads == nil {
		return nil, fmt.Errorf("engine: thread store must not be nil")
	}
	return &Engine{factory: factory, creds: creds, threads: threads, cfg: cfg}, nil
}

// GetAvailableModels lists the models the user's key can use. A missing
// key fails with invalid_api_key before any vendor call.
func (e *Engine) GetAvailableModels(ctx context.Context, userID string, p api.ProviderID) ([]api.ModelInfo, error) {
	if _, err := e.factory.DefaultModel(p); err != nil {
		return nil, err
	}
	adapter, err := e.adapterFor(ctx, userID, p)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	models, err := adapter.ListModels(ctx)
	observability.ObserveProviderCall(p, "", "models", time.Since(start), err)
	if err != nil {
		return nil, err
	}
	return models, nil
}

// call is the state shared by both completion modes once the request has
// been validated and its collaborators resolved.
type call struct {
	req      *api.CompletionRequest
	opts     api.CompletionOptions
	model    string
	adapter  provider.Adapter
	messages []provider.Message
}

// prepare runs the common steps of both modes: validation, model and
// credential resolution, thread load and context construction. Nothing is
// persisted here, so every failure leaves the thread untouched.
func (e *Engine) prepare(ctx context.Context, userID string, req *api.CompletionRequest) (*call, error) {
	if req == nil {
		return nil, api.NewInvalidRequestError("", "request is required")
	}
	if apiErr := api.ValidateCompletionRequest(req, e.cfg.Validation); apiErr != nil {
		return nil, apiErr
	}

	opts := req.EffectiveOptions()
	model := opts.ModelID
	if model == "" {
		m, err := e.factory.DefaultModel(req.Provider)
		if err != nil {
			return nil, err
		}
		model = m
	}
	opts.ModelID = model

	adapter, err := e.adapterFor(ctx, userID, req.Provider)
	if err != nil {
		return nil, err
	}

	thread, err := e.threads.GetThread(ctx, req.ThreadID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, api.NewNotFoundError(fmt.Sprintf("thread %q not found", req.ThreadID))
	}
	if err != nil {
		return nil, fmt.Errorf("loading thread: %w", err)
	}

	return &call{
		req:      req,
		opts:     opts,
		model:    model,
		adapter:  adapter,
		messages: buildContext(thread.Messages, req.Prompt),
	}, nil
}

// adapterFor resolves the user's key and builds an adapter bound to it.
func (e *Engine) adapterFor(ctx context.Context, userID string, p api.ProviderID) (provider.Adapter, error) {
	has, err := e.creds.HasAPIKey(ctx, userID, p)
	if err != nil {
		return nil, fmt.Errorf("checking %s credential: %w", p, err)
	}
	if !has {
		return nil, missingKey(p)
	}

	key, err := e.creds.GetAPIKey(ctx, userID, p)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, missingKey(p)
	}
	if err != nil {
		return nil, fmt.Errorf("resolving %s credential: %w", p, err)
	}

	debug.Log("engine", "credential resolved", "user", userID, "provider", p, "key", debug.MaskKey(key))
	return e.factory.CreateAdapter(p, key)
}

// persistUserTurn stores the prompt as a complete user message.
func (e *Engine) persistUserTurn(ctx context.Context, c *call) error {
	_, err := e.threads.AddMessage(ctx, c.req.ThreadID, storage.NewMessage{
		Role:    api.RoleUser,
		Content: c.req.Prompt,
		Status:  api.MessageStatusComplete,
	})
	if err != nil {
		return fmt.Errorf("persisting user message: %w", err)
	}
	return nil
}

func missingKey(p api.ProviderID) *api.APIError {
	return api.NewInvalidAPIKeyError(fmt.Sprintf("no API key configured for provider %s", p))
}

// withOwner scopes store access to the caller's threads.
func withOwner(ctx context.Context, userID string) context.Context {
	if userID == "" {
		return ctx
	}
	return storage.SetOwner(ctx, userID)
}
