package anthropic

import (
	"strings"

	"github.com/rhuss/byok/pkg/api"
	"github.com/rhuss/byok/pkg/provider"
)

// finishReasons maps Messages API stop_reason values. tool_use and
// pause_turn have no canonical equivalent and fall through to unknown.
var finishReasons = provider.FinishReasonTable{
	"end_turn":      api.FinishReasonStop,
	"stop_sequence": api.FinishReasonStop,
	"max_tokens":    api.FinishReasonLength,
	"refusal":       api.FinishReasonContentFilter,
}

// toMessagesRequest builds the request body. The first system message
// moves to the top-level system field.
func toMessagesRequest(msgs []provider.Message, opts api.CompletionOptions, model string, maxTokens int, stream bool) *messagesRequest {
	system, turns := provider.SplitSystem(msgs)

	out := make([]message, 0, len(turns))
	for _, m := range turns {
		out = append(out, message{Role: string(m.Role), Content: m.Content})
	}

	if opts.MaxTokens != nil {
		maxTokens = *opts.MaxTokens
	}

	req := &messagesRequest{
		Model:       model,
		Messages:    out,
		System:      system,
		MaxTokens:   maxTokens,
		Temperature: opts.Temperature,
		TopP:        opts.TopP,
		Stream:      stream,
	}
	if len(opts.StopSequences) > 0 {
		req.StopSequences = opts.StopSequences
	}
	return req
}

// textOf concatenates the text blocks. Other block types contribute
// nothing.
func textOf(blocks []contentBlock) string {
	var b strings.Builder
	for _, blk := range blocks {
		if blk.Type == "text" {
			b.WriteString(blk.Text)
		}
	}
	return b.String()
}

func toResult(resp *messagesResponse, msgs []provider.Message, model string) *provider.Result {
	res := &provider.Result{
		Content:      textOf(resp.Content),
		Model:        model,
		FinishReason: finishReasons.Map(resp.StopReason),
	}
	if resp.Model != "" {
		res.Model = resp.Model
	}
	if resp.Usage != nil {
		res.Usage = api.NewUsage(resp.Usage.InputTokens, resp.Usage.OutputTokens)
	} else {
		res.Usage = provider.EstimateUsage(msgs, res.Content)
	}
	return res
}
