package api

import "time"

// ProviderID identifies a vendor backend.
type ProviderID string

const (
	ProviderAnthropic ProviderID = "anthropic"
	ProviderOpenAI    ProviderID = "openai"
)

// MessageRole identifies the author of a message.
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleSystem    MessageRole = "system"
)

// MessageStatus is the lifecycle state of a message.
type MessageStatus string

const (
	MessageStatusPending   MessageStatus = "pending"
	MessageStatusStreaming MessageStatus = "streaming"
	MessageStatusComplete  MessageStatus = "complete"
	MessageStatusError     MessageStatus = "error"
)

// Terminal reports whether no further transition is allowed from s.
func (s MessageStatus) Terminal() bool {
	return s == MessageStatusComplete || s == MessageStatusError
}

// FinishReason is the normalized reason a completion ended.
type FinishReason string

const (
	FinishReasonStop          FinishReason = "stop"
	FinishReasonLength        FinishReason = "length"
	FinishReasonContentFilter FinishReason = "content_filter"
	FinishReasonUnknown       FinishReason = "unknown"
)

// Usage reports token consumption of one completion.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// NewUsage builds a Usage with the total filled in.
func NewUsage(prompt, completion int) *Usage {
	return &Usage{
		PromptTokens:     prompt,
		CompletionTokens: completion,
		TotalTokens:      prompt + completion,
	}
}

// ErrorInfo is the error record persisted on a failed message.
type ErrorInfo struct {
	Message string    `json:"message"`
	Code    ErrorCode `json:"code"`
	Details string    `json:"details,omitempty"`
}

// MessageMetadata carries completion facts about a message.
type MessageMetadata struct {
	ModelID      string         `json:"model_id,omitempty"`
	Provider     ProviderID     `json:"provider,omitempty"`
	Usage        *Usage         `json:"usage,omitempty"`
	FinishReason FinishReason   `json:"finish_reason,omitempty"`
	Error        *ErrorInfo     `json:"error,omitempty"`
	Extra        map[string]any `json:"extra,omitempty"`
}

// MergeMetadata overlays the non-zero fields of patch onto base. Extra
// keys are merged individually. Neither argument is modified.
func MergeMetadata(base, patch MessageMetadata) MessageMetadata {
	out := base
	if patch.ModelID != "" {
		out.ModelID = patch.ModelID
	}
	if patch.Provider != "" {
		out.Provider = patch.Provider
	}
	if patch.Usage != nil {
		u := *patch.Usage
		out.Usage = &u
	}
	if patch.FinishReason != "" {
		out.FinishReason = patch.FinishReason
	}
	if patch.Error != nil {
		e := *patch.Error
		out.Error = &e
	}
	if len(patch.Extra) > 0 {
		extra := make(map[string]any, len(base.Extra)+len(patch.Extra))
		for k, v := range base.Extra {
			extra[k] = v
		}
		for k, v := range patch.Extra {
			extra[k] = v
		}
		out.Extra = extra
	}
	return out
}

// Message is one entry of a thread.
type Message struct {
	ID        string          `json:"id"`
	ThreadID  string          `json:"thread_id"`
	Role      MessageRole     `json:"role"`
	Content   string          `json:"content"`
	Status    MessageStatus   `json:"status"`
	Metadata  MessageMetadata `json:"metadata"`
	CreatedAt time.Time       `json:"created_at"`
}

// Thread is a persisted conversation. Messages are kept in creation order.
type Thread struct {
	ID        string         `json:"id"`
	OwnerID   string         `json:"owner_id,omitempty"`
	Title     string         `json:"title,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Messages  []Message      `json:"messages"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Message returns the message with the given id, or nil.
func (t *Thread) Message(id string) *Message {
	for i := range t.Messages {
		if t.Messages[i].ID == id {
			return &t.Messages[i]
		}
	}
	return nil
}

// ModelInfo describes one model a provider can serve.
type ModelInfo struct {
	ID                string     `json:"id"`
	Provider          ProviderID `json:"provider"`
	Name              string     `json:"name"`
	MaxTokens         int        `json:"max_tokens"`
	SupportsStreaming bool       `json:"supports_streaming"`
	ContextWindow     int        `json:"context_window"`
}

// CompletionOptions tunes a completion. An empty StopSequences is the
// same as no stop sequences.
type CompletionOptions struct {
	ModelID       string   `json:"model_id,omitempty"`
	Temperature   *float64 `json:"temperature,omitempty"`
	TopP          *float64 `json:"top_p,omitempty"`
	StopSequences []string `json:"stop_sequences,omitempty"`
	MaxTokens     *int     `json:"max_tokens,omitempty"`
}

// CompletionRequest is a caller's request to complete a prompt on a thread.
type CompletionRequest struct {
	Prompt   string             `json:"prompt"`
	Provider ProviderID         `json:"provider"`
	ModelID  string             `json:"model_id,omitempty"`
	ThreadID string             `json:"thread_id"`
	Options  *CompletionOptions `json:"options,omitempty"`
}

// EffectiveOptions returns the request options with the request level
// model id applied. The request's ModelID wins over Options.ModelID.
func (r *CompletionRequest) EffectiveOptions() CompletionOptions {
	var opts CompletionOptions
	if r.Options != nil {
		opts = *r.Options
	}
	if r.ModelID != "" {
		opts.ModelID = r.ModelID
	}
	return opts
}

// CompletionSummary is the result of a synchronous completion.
type CompletionSummary struct {
	ThreadID     string       `json:"thread_id"`
	MessageID    string       `json:"message_id"`
	Content      string       `json:"content"`
	Model        string       `json:"model"`
	Provider     ProviderID   `json:"provider"`
	FinishReason FinishReason `json:"finish_reason,omitempty"`
	Usage        *Usage       `json:"usage,omitempty"`
}

// StreamChunk is one unit of a streamed completion as seen by the caller.
// Content is the delta of this chunk only.
type StreamChunk struct {
	ThreadID     string       `json:"thread_id"`
	MessageID    string       `json:"message_id"`
	Content      string       `json:"content"`
	Model        string       `json:"model"`
	Provider     ProviderID   `json:"provider"`
	FinishReason FinishReason `json:"finish_reason,omitempty"`
	Usage        *Usage       `json:"usage,omitempty"`
	Done         bool         `json:"done"`
}
