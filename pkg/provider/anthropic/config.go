package anthropic

import "time"

const (
	// DefaultBaseURL is the public Anthropic API endpoint.
	DefaultBaseURL = "https://api.anthropic.com"

	// DefaultModel is used when a request does not name a model.
	DefaultModel = "claude-3-7-sonnet-20250219"

	// DefaultVersion is sent as the anthropic-version header.
	DefaultVersion = "2023-06-01"

	// DefaultMaxTokens fills the mandatory max_tokens field when the
	// caller does not set one.
	DefaultMaxTokens = 4096
)

// Config holds configuration for the Anthropic adapter.
type Config struct {
	// BaseURL is the API root without the /v1 suffix.
	BaseURL string

	// APIKey is the caller's own Anthropic key.
	APIKey string

	// Version is the anthropic-version header value.
	Version string

	// DefaultModel replaces an empty model id.
	DefaultModel string

	// MaxTokens is used when the request options leave it unset.
	MaxTokens int

	// Timeout for non-streaming requests. Defaults to 120s.
	Timeout time.Duration
}

// DefaultConfig returns a Config for the public API with the given key.
func DefaultConfig(apiKey string) Config {
	return Config{
		BaseURL:      DefaultBaseURL,
		APIKey:       apiKey,
		Version:      DefaultVersion,
		DefaultModel: DefaultModel,
		MaxTokens:    DefaultMaxTokens,
		Timeout:      120 * time.Second,
	}
}
