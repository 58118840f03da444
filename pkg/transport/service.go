package transport

import (
	"context"

	"github.com/rhuss/byok/pkg/api"
	"github.com/rhuss/byok/pkg/credentials"
	"github.com/rhuss/byok/pkg/engine"
	"github.com/rhuss/byok/pkg/storage"
)

// CompletionService runs completions on behalf of a user. Implemented by
// *engine.Engine.
type CompletionService interface {
	CompleteChatPrompt(ctx context.Context, userID string, req *api.CompletionRequest) (*api.CompletionSummary, error)
	StreamChatCompletion(ctx context.Context, userID string, req *api.CompletionRequest, onChunk engine.ChunkHandler) error
	GetAvailableModels(ctx context.Context, userID string, p api.ProviderID) ([]api.ModelInfo, error)
}

// ThreadService manages conversation threads. Implemented by every
// storage backend.
type ThreadService interface {
	CreateThread(ctx context.Context, t storage.NewThread) (*api.Thread, error)
	GetThread(ctx context.Context, id string) (*api.Thread, error)
	ListThreads(ctx context.Context, ownerID string, opts storage.ListOptions) ([]api.Thread, error)
	DeleteThread(ctx context.Context, id string) error
}

// CredentialService stores per-user vendor keys. Implemented by
// *credentials.Manager.
type CredentialService interface {
	SetAPIKey(ctx context.Context, userID string, p api.ProviderID, key string, v credentials.Validator) error
	HasAPIKey(ctx context.Context, userID string, p api.ProviderID) (bool, error)
	DeleteAPIKey(ctx context.Context, userID string, p api.ProviderID) error
	ListProviders(ctx context.Context, userID string) ([]credentials.Summary, error)
}

// ProviderCatalog describes the configured vendors. Implemented by
// *factory.Factory.
type ProviderCatalog interface {
	SupportedProviders() []api.ProviderID
	Supports(id api.ProviderID) bool
	DefaultModel(id api.ProviderID) (string, error)
	ValidateAPIKey(ctx context.Context, id api.ProviderID, key string) (bool, error)
}

// HealthChecker reports whether a dependency is usable.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}
