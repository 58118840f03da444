package anthropic

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

// Provider implements provider.Adapter for the Messages API.
type Provider struct {
	cfg          Config
	client       *http.Client
	streamClient *http.Client
}

var _ provider.Adapter = (*Provider)(nil)

// New creates an adapter bound to cfg.APIKey.
func New(cfg Config) (*Provider, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, api.NewInvalidAPIKeyError("anthropic: API key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimSuffix(strings.TrimRight(cfg.BaseURL, "/"), "/v1")

	if cfg.Version == "" {
		cfg.Version = DefaultVersion
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = DefaultModel
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}

	return &Provider{
		cfg:          cfg,
		client:       &http.Client{Timeout: cfg.Timeout},
		streamClient: &http.Client{},
	}, nil
}

// Name returns the provider identifier.
func (p *Provider) Name() api.ProviderID {
	return api.ProviderAnthropic
}

// SendPrompt performs one non-streaming Messages call.
func (p *Provider) SendPrompt(ctx context.Context, msgs []provider.Message, opts api.CompletionOptions) (*provider.Result, error) {
	if err := provider.RequireMessages(msgs); err != nil {
		return nil, err
	}

	model := p.model(opts)
	httpResp, err := p.post(ctx, p.client, toMessagesRequest(msgs, opts, model, p.cfg.MaxTokens, false))
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	var resp messagesResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return nil, api.NewVendorError(api.ErrorCodeServerError, "failed to parse provider response", err.Error())
	}

	return toResult(&resp, msgs, model), nil
}

// StreamPrompt starts a streaming Messages call.
func (p *Provider) StreamPrompt(ctx context.Context, msgs []provider.Message, opts api.CompletionOptions) (<-chan provider.Chunk, error) {
	if err := provider.RequireMessages(msgs); err != nil {
		return nil, err
	}

	model := p.model(opts)
	httpResp, err := p.post(ctx, p.streamClient, toMessagesRequest(msgs, opts, model, p.cfg.MaxTokens, true))
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

// ListModels queries /v1/models.
func (p *Provider) ListModels(ctx context.Context) ([]api.ModelInfo, error) {
	httpResp, err := p.get(ctx, "/v1/models?limit=100", p.cfg.APIKey)
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

// ValidateAPIKey fetches one model with key. 401 and 403 mean the key is
// rejected.
func (p *Provider) ValidateAPIKey(ctx context.Context, key string) (bool, error) {
	if strings.TrimSpace(key) == "" {
		return false, nil
	}

	httpResp, err := p.get(ctx, "/v1/models?limit=1", key)
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

func (p *Provider) post(ctx context.Context, client *http.Client, body *messagesRequest) (*http.Response, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, api.NewServerError(fmt.Sprintf("failed to marshal request: %s", err.Error()))
	}

	url := p.cfg.BaseURL + "/v1/messages"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return nil, api.NewServerError(fmt.Sprintf("failed to create HTTP request: %s", err.Error()))
	}
	p.setHeaders(httpReq, p.cfg.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")
	if body.Stream {
		httpReq.Header.Set("Accept", "text/event-stream")
	}

	debug.Log("providers", "anthropic request",
		"url", url, "model", body.Model, "stream", body.Stream, "messages", len(body.Messages))
	debug.Trace("providers", "anthropic request body", "body", provider.Truncate(string(data), 4096))

	httpResp, err := client.Do(httpReq)
	if err != nil {
		return nil, provider.ClassifyNetworkError(err)
	}

	debug.Log("providers", "anthropic response", "status", httpResp.StatusCode)

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
	req.Header.Set("x-api-key", key)
	req.Header.Set("anthropic-version", p.cfg.Version)
}
