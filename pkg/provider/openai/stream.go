package openai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"

	"github.com/rhuss/byok/pkg/api"
	"github.com/rhuss/byok/pkg/debug"
	"github.com/rhuss/byok/pkg/provider"
)

// streamState accumulates what the terminal chunk needs.
type streamState struct {
	model        string
	finishReason string
	usage        *api.Usage
	content      strings.Builder
}

// parseStream reads Chat Completions SSE chunks and forwards text deltas on
// ch. Once the stream ends, with [DONE] or EOF, a single terminal chunk is
// sent carrying the finish reason and usage. Usage is estimated when the
// server did not report it. The channel is not closed here.
func parseStream(ctx context.Context, body io.Reader, msgs []provider.Message, model string, ch chan<- provider.Chunk) {
	st := &streamState{model: model}

	err := provider.ReadSSE(ctx, body, func(ev provider.SSEEvent) error {
		if ev.Data == "[DONE]" {
			return io.EOF
		}

		var chunk chatCompletionChunk
		if err := json.Unmarshal([]byte(ev.Data), &chunk); err != nil {
			slog.Warn("skipping malformed SSE chunk",
				"provider", string(api.ProviderOpenAI),
				"error", err.Error(),
				"data", provider.Truncate(ev.Data, 200),
			)
			return nil
		}

		if chunk.Error != nil {
			return provider.ClassifyStreamError(chunk.Error.Type, chunk.Error.Message)
		}
		if chunk.Model != "" {
			st.model = chunk.Model
		}
		if chunk.Usage != nil {
			st.usage = &api.Usage{
				PromptTokens:     chunk.Usage.PromptTokens,
				CompletionTokens: chunk.Usage.CompletionTokens,
				TotalTokens:      chunk.Usage.TotalTokens,
			}
		}

		// A usage-only chunk has no choices.
		if len(chunk.Choices) == 0 {
			return nil
		}

		choice := chunk.Choices[0]
		if choice.FinishReason != nil {
			st.finishReason = *choice.FinishReason
		}
		if choice.Delta.Content == nil || *choice.Delta.Content == "" {
			return nil
		}

		delta := *choice.Delta.Content
		st.content.WriteString(delta)
		debug.Log("streaming", "openai delta", "bytes", len(delta))
		if !provider.Send(ctx, ch, provider.Chunk{Content: delta, Model: st.model}) {
			return ctx.Err()
		}
		return nil
	})

	if err != nil {
		if ctx.Err() != nil {
			return
		}
		var apiErr *api.APIError
		if !errors.As(err, &apiErr) {
			apiErr = api.NewVendorError(api.ErrorCodeServerError, "provider stream read failed", err.Error())
		}
		provider.Send(ctx, ch, provider.Chunk{Err: apiErr})
		return
	}

	usage := st.usage
	if usage == nil {
		usage = provider.EstimateUsage(msgs, st.content.String())
	}
	provider.Send(ctx, ch, provider.Chunk{
		Model:        st.model,
		Usage:        usage,
		FinishReason: finishReasons.Map(st.finishReason),
		Done:         true,
	})
}
