// Package factory resolves a provider id plus a credential into a live
// adapter. Vendors are registered as constructors, so adding one never
// touches the engine.
package factory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/rhuss/byok/pkg/api"
	"github.com/rhuss/byok/pkg/provider"
	"github.com/rhuss/byok/pkg/provider/anthropic"
	"github.com/rhuss/byok/pkg/provider/openai"
)

// Constructor builds an adapter bound to one credential.
type Constructor func(credential string) (provider.Adapter, error)

type registration struct {
	construct    Constructor
	defaultModel string
}

// Factory holds the registered vendors. It is safe for concurrent use.
type Factory struct {
	mu      sync.RWMutex
	vendors map[api.ProviderID]registration
}

// New returns an empty Factory.
func New() *Factory {
	return &Factory{vendors: make(map[api.ProviderID]registration)}
}

// NewDefault returns a Factory with the Anthropic and OpenAI adapters
// registered from the given configurations. Each config's APIKey is
// replaced by the per-call credential.
func NewDefault(anthropicCfg anthropic.Config, openaiCfg openai.Config) *Factory {
	f := New()
	f.Register(api.ProviderAnthropic, modelOr(anthropicCfg.DefaultModel, anthropic.DefaultModel),
		func(credential string) (provider.Adapter, error) {
			cfg := anthropicCfg
			cfg.APIKey = credential
			return anthropic.New(cfg)
		})
	f.Register(api.ProviderOpenAI, modelOr(openaiCfg.DefaultModel, openai.DefaultModel),
		func(credential string) (provider.Adapter, error) {
			cfg := openaiCfg
			cfg.APIKey = credential
			return openai.New(cfg)
		})
	return f
}

// Register adds or replaces a vendor.
func (f *Factory) Register(id api.ProviderID, defaultModel string, c Constructor) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.vendors[id] = registration{construct: c, defaultModel: defaultModel}
}

// CreateAdapter builds the adapter for id. A blank credential fails with
// invalid_api_key, an unknown id with unsupported_provider.
func (f *Factory) CreateAdapter(id api.ProviderID, credential string) (provider.Adapter, error) {
	reg, err := f.lookup(id)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(credential) == "" {
		return nil, api.NewInvalidAPIKeyError("no API key available for provider " + string(id))
	}
	return reg.construct(credential)
}

// DefaultModel returns the fixed default model of id.
func (f *Factory) DefaultModel(id api.ProviderID) (string, error) {
	reg, err := f.lookup(id)
	if err != nil {
		return "", err
	}
	return reg.defaultModel, nil
}

// SupportedProviders returns the registered ids, sorted.
func (f *Factory) SupportedProviders() []api.ProviderID {
	f.mu.RLock()
	defer f.mu.RUnlock()
	ids := make([]api.ProviderID, 0, len(f.vendors))
	for id := range f.vendors {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Supports reports whether id is registered.
func (f *Factory) Supports(id api.ProviderID) bool {
	_, err := f.lookup(id)
	return err == nil
}

// ValidateAPIKey builds an adapter for credential and asks the vendor
// whether it accepts it. A blank credential is simply invalid.
func (f *Factory) ValidateAPIKey(ctx context.Context, id api.ProviderID, credential string) (bool, error) {
	adapter, err := f.CreateAdapter(id, credential)
	if err != nil {
		if api.CodeOf(err) == api.ErrorCodeInvalidAPIKey {
			return false, nil
		}
		return false, err
	}
	return adapter.ValidateAPIKey(ctx, credential)
}

func (f *Factory) lookup(id api.ProviderID) (registration, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	reg, ok := f.vendors[id]
	if !ok {
		return registration{}, api.NewUnsupportedProviderError(id)
	}
	return reg, nil
}

func modelOr(model, fallback string) string {
	if model != "" {
		return model
	}
	return fallback
}
