package provider

import (
	"unicode/utf8"

	"github.com/rhuss/byok/pkg/api"
)

// EstimateTokens approximates the token count of text at four characters
// per token. Used only when a vendor omits usage.
func EstimateTokens(text string) int {
	n := utf8.RuneCountInString(text)
	if n == 0 {
		return 0
	}
	return (n + 3) / 4
}

// EstimateUsage approximates usage for a prompt and completion.
func EstimateUsage(msgs []Message, completion string) *api.Usage {
	prompt := 0
	for _, m := range msgs {
		prompt += EstimateTokens(m.Content)
	}
	return api.NewUsage(prompt, EstimateTokens(completion))
}

// Truncate limits a string to maxLen bytes for log output.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
