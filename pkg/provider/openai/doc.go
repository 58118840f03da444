// Package openai implements the provider adapter for the OpenAI Chat
// Completions API. It also works against any server exposing the same
// /v1/chat/completions and /v1/models endpoints.
package openai
