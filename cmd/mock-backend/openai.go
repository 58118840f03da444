package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func openAIError(w http.ResponseWriter, status int, typ, msg string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]any{"message": msg, "type": typ, "code": nil},
	})
}

// openAIKey checks the bearer key and writes the rejection.
func openAIKey(w http.ResponseWriter, r *http.Request) bool {
	key, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok || key == "" || strings.Contains(key, "invalid") {
		openAIError(w, http.StatusUnauthorized, "invalid_request_error", "Incorrect API key provided.")
		return false
	}
	return true
}

func handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	if !openAIKey(w, r) {
		return
	}

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		openAIError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body")
		return
	}
	if req.Model == "" {
		req.Model = "gpt-4o"
	}

	var texts []string
	last := ""
	for _, m := range req.Messages {
		texts = append(texts, m.Content)
		if m.Role == "user" {
			last = m.Content
		}
	}
	sc := pickScenario(last)
	if sc.status != 0 {
		openAIError(w, sc.status, "rate_limit_exceeded", "Rate limit reached for requests.")
		return
	}
	prompt := promptTokens(texts...)

	if req.Stream {
		streamChat(w, req.Model, sc, prompt)
		return
	}

	text := sc.text()
	writeJSON(w, http.StatusOK, map[string]any{
		"id":     "chatcmpl-mock",
		"object": "chat.completion",
		"model":  req.Model,
		"choices": []any{map[string]any{
			"index":         0,
			"message":       map[string]any{"role": "assistant", "content": text},
			"finish_reason": "stop",
		}},
		"usage": map[string]any{
			"prompt_tokens":     prompt,
			"completion_tokens": len(sc.tokens),
			"total_tokens":      prompt + len(sc.tokens),
		},
	})
}

func streamChat(w http.ResponseWriter, model string, sc scenario, prompt int) {
	flusher, ok := startSSE(w)
	if !ok {
		return
	}

	write := func(v any) {
		data, _ := json.Marshal(v)
		fmt.Fprintf(w, "data: %s\n\n", data)
		flusher.Flush()
	}
	chunk := func(delta map[string]any, finish any) map[string]any {
		return map[string]any{
			"id":      "chatcmpl-mock-stream",
			"object":  "chat.completion.chunk",
			"model":   model,
			"choices": []any{map[string]any{"index": 0, "delta": delta, "finish_reason": finish}},
		}
	}

	write(chunk(map[string]any{"role": "assistant"}, nil))
	for i, tok := range sc.tokens {
		if sc.failMidway && i == 1 {
			write(map[string]any{"error": map[string]any{"type": "server_error", "message": "The server had an error while processing your request."}})
			return
		}
		write(chunk(map[string]any{"content": tok}, nil))
	}
	write(chunk(map[string]any{}, "stop"))
	write(map[string]any{
		"id":      "chatcmpl-mock-stream",
		"object":  "chat.completion.chunk",
		"model":   model,
		"choices": []any{},
		"usage": map[string]any{
			"prompt_tokens":     prompt,
			"completion_tokens": len(sc.tokens),
			"total_tokens":      prompt + len(sc.tokens),
		},
	})
	fmt.Fprint(w, "data: [DONE]\n\n")
	flusher.Flush()
}

func handleOpenAIModels(w http.ResponseWriter, r *http.Request) {
	if !openAIKey(w, r) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"object": "list",
		"data": []map[string]any{
			{"id": "gpt-4o", "object": "model", "owned_by": "byok-mock"},
			{"id": "gpt-4o-mini", "object": "model", "owned_by": "byok-mock"},
			{"id": "text-embedding-3-small", "object": "model", "owned_by": "byok-mock"},
		},
	})
}
