package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

type messagesRequest struct {
	Model    string         `json:"model"`
	System   string         `json:"system,omitempty"`
	Messages []messagesTurn `json:"messages"`
	Stream   bool           `json:"stream,omitempty"`
}

type messagesTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func anthropicError(w http.ResponseWriter, status int, typ, msg string) {
	writeJSON(w, status, map[string]any{
		"type":  "error",
		"error": map[string]any{"type": typ, "message": msg},
	})
}

// anthropicKey checks the x-api-key header and writes the rejection.
func anthropicKey(w http.ResponseWriter, r *http.Request) bool {
	key := r.Header.Get("x-api-key")
	if key == "" || strings.Contains(key, "invalid") {
		anthropicError(w, http.StatusUnauthorized, "authentication_error", "invalid x-api-key")
		return false
	}
	return true
}

func handleMessages(w http.ResponseWriter, r *http.Request) {
	if !anthropicKey(w, r) {
		return
	}

	var req messagesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		anthropicError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body")
		return
	}
	if req.Model == "" {
		anthropicError(w, http.StatusBadRequest, "invalid_request_error", "model: field required")
		return
	}

	texts := []string{req.System}
	last := ""
	for _, m := range req.Messages {
		texts = append(texts, m.Content)
		if m.Role == "user" {
			last = m.Content
		}
	}
	sc := pickScenario(last)
	if sc.status != 0 {
		anthropicError(w, sc.status, "rate_limit_error", "Number of requests has exceeded your rate limit.")
		return
	}
	input := promptTokens(texts...)

	if req.Stream {
		streamMessages(w, req.Model, sc, input)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"id":          "msg_mock",
		"type":        "message",
		"role":        "assistant",
		"model":       req.Model,
		"content":     []any{map[string]any{"type": "text", "text": sc.text()}},
		"stop_reason": "end_turn",
		"usage":       map[string]any{"input_tokens": input, "output_tokens": len(sc.tokens)},
	})
}

func streamMessages(w http.ResponseWriter, model string, sc scenario, input int) {
	flusher, ok := startSSE(w)
	if !ok {
		return
	}

	write := func(event string, v any) {
		data, _ := json.Marshal(v)
		fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
		flusher.Flush()
	}

	write("message_start", map[string]any{
		"type": "message_start",
		"message": map[string]any{
			"id": "msg_mock_stream", "type": "message", "role": "assistant", "model": model,
			"content": []any{}, "usage": map[string]any{"input_tokens": input, "output_tokens": 1},
		},
	})
	write("content_block_start", map[string]any{
		"type": "content_block_start", "index": 0,
		"content_block": map[string]any{"type": "text", "text": ""},
	})
	write("ping", map[string]any{"type": "ping"})

	for i, tok := range sc.tokens {
		if sc.failMidway && i == 1 {
			write("error", map[string]any{
				"type":  "error",
				"error": map[string]any{"type": "overloaded_error", "message": "Overloaded"},
			})
			return
		}
		write("content_block_delta", map[string]any{
			"type": "content_block_delta", "index": 0,
			"delta": map[string]any{"type": "text_delta", "text": tok},
		})
	}

	write("content_block_stop", map[string]any{"type": "content_block_stop", "index": 0})
	write("message_delta", map[string]any{
		"type":  "message_delta",
		"delta": map[string]any{"stop_reason": "end_turn"},
		"usage": map[string]any{"output_tokens": len(sc.tokens)},
	})
	write("message_stop", map[string]any{"type": "message_stop"})
}

func handleAnthropicModels(w http.ResponseWriter, r *http.Request) {
	if !anthropicKey(w, r) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"data": []map[string]any{
			{"type": "model", "id": "claude-3-7-sonnet-20250219", "display_name": "Claude 3.7 Sonnet", "created_at": "2025-02-19T00:00:00Z"},
			{"type": "model", "id": "claude-3-5-haiku-20241022", "display_name": "Claude 3.5 Haiku", "created_at": "2024-10-22T00:00:00Z"},
		},
		"has_more": false,
	})
}
