package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rhuss/byok/pkg/api"
	"github.com/rhuss/byok/pkg/debug"
	"github.com/rhuss/byok/pkg/provider"
)

// Provider implements provider.Adapter for the Chat Completions API.
type Provider struct {
	cfg          Config
	client       *http.Client
	streamClient *http.Client
}

var _ provider.Adapter = (*Provider)(nil)

// New creates an adapter bound to cfg.APIKey.
func New(cfg Config) (*Provider, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, api.NewInvalidAPIKeyError("openai: API key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimSuffix(strings.TrimRight(cfg.BaseURL, "/"), "/v1")

	if cfg.DefaultModel == "" {
		cfg.DefaultModel = DefaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}

	return &Provider{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		// Streams are bounded by the request context, not a fixed timeout.
		streamClient: &http.Client{},
	}, nil
}

// Name returns the provider identifier.
func (p *Provider) Name() api.ProviderID {
	return api.ProviderOpenAI
}

// SendPrompt performs one non-streaming chat completion.
func (p *Provider) SendPrompt(ctx context.Context, msgs []provider.Message, opts api.CompletionOptions) (*provider.Result, error) {
	if err := provider.RequireMessages(msgs); err != nil {
		return nil, err
	}

	model := p.model(opts)
	httpResp, err := p.post(ctx, p.client, toChatRequest(msgs, opts, model, false), p.cfg.APIKey)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	var chatResp chatCompletionResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&chatResp); err != nil {
		return nil, api.NewVendorError(api.ErrorCodeServerError, "failed to parse provider response", err.Error())
	}

	return toResult(&chatResp, msgs, model), nil
}

// StreamPrompt starts a streaming chat completion.
func (p *Provider) StreamPrompt(ctx context.Context, msgs []provider.Message, opts api.CompletionOptions) (<-chan provider.Chunk, error) {
	if err := provider.RequireMessages(msgs); err != nil {
		return nil, err
	}

	model := p.model(opts)
	httpResp, err := p.post(ctx, p.streamClient, toChatRequest(msgs, opts, model, true), p.cfg.APIKey)
	if err != nil {
		return nil, err
	}

	ch := make(chan provider.Chunk, provider.StreamBufferSize)
	go func() {
		defer close(ch)
		defer httpResp.Body.Close()
		parseStream(ctx, httpResp.Body, msgs, model, ch)
	}()

	return ch, nil
}

// ListModels queries /v1/models and keeps chat-capable models.
func (p *Provider) ListModels(ctx context.Context) ([]api.ModelInfo, error) {
	httpResp, err := p.get(ctx, "/v1/models", p.cfg.APIKey)
	if err != nil {
		return nil, provider.ClassifyNetworkError(err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return nil, provider.ClassifyHTTPError(httpResp)
	}

	var modelsResp modelsResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&modelsResp); err != nil {
		return nil, api.NewVendorError(api.ErrorCodeServerError, "failed to parse models response", err.Error())
	}

	return toModelInfos(modelsResp.Data), nil
}

// ValidateAPIKey lists models with key. 401 and 403 mean the key is
// rejected; a 429 still proves the key authenticated.
func (p *Provider) ValidateAPIKey(ctx context.Context, key string) (bool, error) {
	if strings.TrimSpace(key) == "" {
		return false, nil
	}

	httpResp, err := p.get(ctx, "/v1/models", key)
	if err != nil {
		return false, provider.ClassifyNetworkError(err)
	}
	defer httpResp.Body.Close()

	switch {
	case httpResp.StatusCode >= 200 && httpResp.StatusCode < 300,
		httpResp.StatusCode == http.StatusTooManyRequests:
		return true, nil
	case httpResp.StatusCode >= http.StatusInternalServerError:
		return false, provider.ClassifyHTTPError(httpResp)
	default:
		return false, nil
	}
}

func (p *Provider) model(opts api.CompletionOptions) string {
	if opts.ModelID != "" {
		return opts.ModelID
	}
	return p.cfg.DefaultModel
}

// post sends a chat completion request and returns the response when its
// status is 2xx. Failures are already classified.
func (p *Provider) post(ctx context.Context, client *http.Client, body *chatCompletionRequest, key string) (*http.Response, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, api.NewServerError(fmt.Sprintf("failed to marshal request: %s", err.Error()))
	}

	url := p.cfg.BaseURL + "/v1/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return nil, api.NewServerError(fmt.Sprintf("failed to create HTTP request: %s", err.Error()))
	}
	p.setHeaders(httpReq, key)
	httpReq.Header.Set("Content-Type", "application/json")
	if body.Stream {
		httpReq.Header.Set("Accept", "text/event-stream")
	}

	debug.Log("providers", "openai request",
		"url", url, "model", body.Model, "stream", body.Stream, "messages", len(body.Messages))
	debug.Trace("providers", "openai request body", "body", provider.Truncate(string(data), 4096))

	httpResp, err := client.Do(httpReq)
	if err != nil {
		return nil, provider.ClassifyNetworkError(err)
	}

	debug.Log("providers", "openai response", "status", httpResp.StatusCode)

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		defer httpResp.Body.Close()
		return nil, provider.ClassifyHTTPError(httpResp)
	}
	return httpResp, nil
}

func (p *Provider) get(ctx context.Context, path, key string) (*http.Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, p.cfg.BaseURL+path, nil)
	if err != nil {
		return nil, err
	}
	p.setHeaders(httpReq, key)
	return p.client.Do(httpReq)
}

func (p *Provider) setHeaders(req *http.Request, key string) {
	req.Header.Set("Authorization", "Bearer "+key)
	if p.cfg.Organization != "" {
		req.Header.Set("OpenAI-Organization", p.cfg.Organization)
	}
}
