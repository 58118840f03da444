package openai

import (
	"github.com/rhuss/byok/pkg/api"
	"github.com/rhuss/byok/pkg/provider"
)

// finishReasons maps Chat Completions finish_reason values.
var finishReasons = provider.FinishReasonTable{
	"stop":           api.FinishReasonStop,
	"length":         api.FinishReasonLength,
	"content_filter": api.FinishReasonContentFilter,
}

// toChatRequest builds the request body. The first system message leads the
// list; extra system messages and unsupported roles are dropped.
func toChatRequest(msgs []provider.Message, opts api.CompletionOptions, model string, stream bool) *chatCompletionRequest {
	system, turns := provider.SplitSystem(msgs)

	out := make([]chatMessage, 0, len(turns)+1)
	if system != "" {
		out = append(out, chatMessage{Role: string(api.RoleSystem), Content: system})
	}
	for _, m := range turns {
		out = append(out, chatMessage{Role: string(m.Role), Content: m.Content})
	}

	req := &chatCompletionRequest{
		Model:       model,
		Messages:    out,
		Temperature: opts.Temperature,
		TopP:        opts.TopP,
		MaxTokens:   opts.MaxTokens,
		Stream:      stream,
	}
	if len(opts.StopSequences) > 0 {
		req.Stop = opts.StopSequences
	}
	if stream {
		req.StreamOptions = &chatStreamOptions{IncludeUsage: true}
	}
	return req
}

// toResult converts a non-streaming response. A missing or null content
// becomes the empty string.
func toResult(resp *chatCompletionResponse, msgs []provider.Message, model string) *provider.Result {
	res := &provider.Result{
		Model:        model,
		FinishReason: api.FinishReasonUnknown,
	}
	if resp.Model != "" {
		res.Model = resp.Model
	}

	if len(resp.Choices) > 0 {
		choice := resp.Choices[0]
		if choice.Message.Content != nil {
			res.Content = *choice.Message.Content
		}
		if choice.FinishReason != nil {
			res.FinishReason = finishReasons.Map(*choice.FinishReason)
		}
	}

	if resp.Usage != nil {
		res.Usage = &api.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		}
	} else {
		res.Usage = provider.EstimateUsage(msgs, res.Content)
	}
	return res
}
