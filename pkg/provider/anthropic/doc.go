// Package anthropic implements the provider adapter for the Anthropic
// Messages API.
//
// The Messages API takes the system instruction outside the turn list and
// requires max_tokens on every request. Streaming uses named SSE events
// (message_start, content_block_delta, message_delta, message_stop), which
// this package folds into provider.Chunk values.
package anthropic
