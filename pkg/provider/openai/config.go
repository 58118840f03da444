package openai

import "time"

const (
	// DefaultBaseURL is the public OpenAI API endpoint.
	DefaultBaseURL = "https://api.openai.com"

	// DefaultModel is used when a request does not name a model.
	DefaultModel = "gpt-4o"
)

// Config holds configuration for the OpenAI adapter.
type Config struct {
	// BaseURL is the API root without the /v1 suffix.
	BaseURL string

	// APIKey is the caller's own OpenAI key.
	APIKey string

	// Organization is sent as OpenAI-Organization when set.
	Organization string

	// DefaultModel replaces an empty model id. Defaults to DefaultModel.
	DefaultModel string

	// Timeout for non-streaming requests. Defaults to 120s.
	Timeout time.Duration
}

// DefaultConfig returns a Config for the public API with the given key.
func DefaultConfig(apiKey string) Config {
	return Config{
		BaseURL:      DefaultBaseURL,
		APIKey:       apiKey,
		DefaultModel: DefaultModel,
		Timeout:      120 * time.Second,
	}
}
