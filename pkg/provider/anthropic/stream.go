package anthropic

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

// streamState tracks what the terminal chunk needs. The start and usage
// events are optional on the wire, so each has a seen flag.
type streamState struct {
	model        string
	stopReason   string
	inputTokens  int
	outputTokens int
	sawStart     bool
	sawUsage     bool
	content      strings.Builder
}

// parseStream folds Messages API stream events into chunks on ch. After
// message_stop, or EOF, one terminal chunk carries the finish reason and
// usage. The channel is not closed here.
func parseStream(ctx context.Context, body io.Reader, msgs []provider.Message, model string, ch chan<- provider.Chunk) {
	st := &streamState{model: model}

	emit := func(text string) error {
		if text == "" {
			return nil
		}
		st.content.WriteString(text)
		debug.Log("streaming", "anthropic delta", "bytes", len(text))
		if !provider.Send(ctx, ch, provider.Chunk{Content: text, Model: st.model}) {
			return ctx.Err()
		}
		return nil
	}

	err := provider.ReadSSE(ctx, body, func(ev provider.SSEEvent) error {
		var se streamEvent
		if err := json.Unmarshal([]byte(ev.Data), &se); err != nil {
			slog.Warn("skipping malformed SSE event",
				"provider", string(api.ProviderAnthropic),
				"event", ev.Name,
				"error", err.Error(),
				"data", provider.Truncate(ev.Data, 200),
			)
			return nil
		}
		if se.Type == "" {
			se.Type = ev.Name
		}

		switch se.Type {
		case "message_start":
			st.sawStart = true
			if se.Message != nil {
				if se.Message.Model != "" {
					st.model = se.Message.Model
				}
				if se.Message.Usage != nil {
					st.inputTokens = se.Message.Usage.InputTokens
				}
			}

		case "content_block_start":
			if se.ContentBlock != nil && se.ContentBlock.Type == "text" {
				return emit(se.ContentBlock.Text)
			}

		case "content_block_delta":
			if se.Delta != nil && se.Delta.Type == "text_delta" {
				return emit(se.Delta.Text)
			}

		case "message_delta":
			if se.Delta != nil && se.Delta.StopReason != "" {
				st.stopReason = se.Delta.StopReason
			}
			if se.Usage != nil {
				st.sawUsage = true
				st.outputTokens = se.Usage.OutputTokens
			}

		case "message_stop":
			return io.EOF

		case "error":
			if se.Error == nil {
				return provider.ClassifyStreamError("", "stream error without details")
			}
			return provider.ClassifyStreamError(se.Error.Type, se.Error.Message)

		case "ping", "content_block_stop":
		default:
			debug.Log("streaming", "ignoring unknown anthropic event", "type", se.Type)
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

	provider.Send(ctx, ch, provider.Chunk{
		Model:        st.model,
		Usage:        st.usage(msgs),
		FinishReason: finishReasons.Map(st.stopReason),
		Done:         true,
	})
}

// usage fills in whichever side the stream did not report.
func (st *streamState) usage(msgs []provider.Message) *api.Usage {
	estimate := provider.EstimateUsage(msgs, st.content.String())
	in, out := st.inputTokens, st.outputTokens
	if !st.sawStart {
		in = estimate.PromptTokens
	}
	if !st.sawUsage {
		out = estimate.CompletionTokens
	}
	return api.NewUsage(in, out)
}
