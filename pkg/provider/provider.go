package provider

import (
	"context"

	"github.com/rhuss/byok/pkg/api"
)

// StreamBufferSize is the capacity of the channel returned by StreamPrompt.
const StreamBufferSize = 16

// Adapter is the uniform capability set every vendor integration
// implements. An adapter is bound to one credential.
//
// Implementations must be safe for concurrent use by multiple goroutines.
type Adapter interface {
	// Name returns the provider identifier.
	Name() api.ProviderID

	// ListModels returns the models this credential can use.
	ListModels(ctx context.Context) ([]api.ModelInfo, error)

	// SendPrompt performs one non-streaming completion and returns the
	// fully assembled result. Empty msgs fail with invalid_request before
	// any vendor call.
	SendPrompt(ctx context.Context, msgs []Message, opts api.CompletionOptions) (*Result, error)

	// StreamPrompt starts a streaming completion. Chunks arrive on the
	// returned channel in vendor order and the channel is closed when the
	// stream ends. The last chunk either has Done set with a finish reason
	// or carries Err. Errors detected before the stream opens are returned
	// directly.
	StreamPrompt(ctx context.Context, msgs []Message, opts api.CompletionOptions) (<-chan Chunk, error)

	// ValidateAPIKey reports whether the vendor accepts key. A rejected
	// key is (false, nil); only transport or vendor outages return an error.
	ValidateAPIKey(ctx context.Context, key string) (bool, error)
}

// Message is one conversation turn in vendor-neutral form.
type Message struct {
	Role    api.MessageRole
	Content string
}

// Result is a completed non-streaming response.
type Result struct {
	Content      string
	Model        string
	Usage        *api.Usage
	FinishReason api.FinishReason
}

// Chunk is one incremental unit of a streamed response. Content is the
// delta only. Usage is guaranteed on the Done chunk.
type Chunk struct {
	Content      string
	Model        string
	Usage        *api.Usage
	FinishReason api.FinishReason
	Done         bool
	Err          error
}

// Send delivers c on ch unless ctx is done first. It reports whether the
// chunk was delivered.
func Send(ctx context.Context, ch chan<- Chunk, c Chunk) bool {
	select {
	case ch <- c:
		return true
	case <-ctx.Done():
		return false
	}
}
