package engine

import (
	"time"

	"github.com/rhuss/byok/pkg/api"
)

// DefaultFinalizeTimeout bounds the write that finalizes an assistant
// message after the caller went away.
const DefaultFinalizeTimeout = 5 * time.Second

// Config holds configuration for the engine.
type Config struct {
	// FinalizeTimeout bounds the detached write that marks an interrupted
	// stream as failed. Zero means DefaultFinalizeTimeout.
	FinalizeTimeout time.Duration

	// Validation holds the request limits.
	Validation api.ValidationConfig
}

// DefaultConfig returns a Config with default limits.
func DefaultConfig() Config {
	return Config{
		FinalizeTimeout: DefaultFinalizeTimeout,
		Validation:      api.DefaultValidationConfig(),
	}
}

func (c Config) finalizeTimeout() time.Duration {
	if c.FinalizeTimeout <= 0 {
		return DefaultFinalizeTimeout
	}
	return c.FinalizeTimeout
}
