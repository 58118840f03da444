package api

import (
	"fmt"
	"strings"
)

// ValidationConfig holds configurable limits for request validation.
type ValidationConfig struct {
	MaxPromptSize    int
	MaxStopSequences int
}

// DefaultValidationConfig returns a ValidationConfig with sensible defaults.
func DefaultValidationConfig() ValidationConfig {
	return ValidationConfig{
		MaxPromptSize:    1024 * 1024, // 1MB
		MaxStopSequences: 4,
	}
}

// ValidateCompletionRequest checks a CompletionRequest. It returns an
// *APIError describing the first failure, or nil if the request is valid.
func ValidateCompletionRequest(req *CompletionRequest, cfg ValidationConfig) *APIError {
	if strings.TrimSpace(req.Prompt) == "" {
		return NewInvalidRequestError("prompt", "prompt is required")
	}

	if cfg.MaxPromptSize > 0 && len(req.Prompt) > cfg.MaxPromptSize {
		return NewInvalidRequestError("prompt",
			fmt.Sprintf("prompt exceeds maximum of %d bytes", cfg.MaxPromptSize))
	}

	if req.ThreadID == "" {
		return NewInvalidRequestError("thread_id", "thread_id is required")
	}

	if req.Provider == "" {
		return NewInvalidRequestError("provider", "provider is required")
	}

	if req.Options == nil {
		return nil
	}
	opts := req.Options

	if opts.Temperature != nil {
		if *opts.Temperature < 0.0 || *opts.Temperature > 2.0 {
			return NewInvalidRequestError("temperature", "temperature must be between 0.0 and 2.0")
		}
	}

	if opts.TopP != nil {
		if *opts.TopP < 0.0 || *opts.TopP > 1.0 {
			return NewInvalidRequestError("top_p", "top_p must be between 0.0 and 1.0")
		}
	}

	if opts.MaxTokens != nil && *opts.MaxTokens <= 0 {
		return NewInvalidRequestError("max_tokens", "max_tokens must be positive")
	}

	if cfg.MaxStopSequences > 0 && len(opts.StopSequences) > cfg.MaxStopSequences {
		return NewInvalidRequestError("stop_sequences",
			fmt.Sprintf("stop_sequences exceeds maximum of %d", cfg.MaxStopSequences))
	}

	return nil
}
