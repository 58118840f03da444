// Command mock-backend runs a deterministic fake of the OpenAI Chat
// Completions and Anthropic Messages APIs for local runs and demos.
// Point the byok providers at it with BYOK_OPENAI_BASE_URL and
// BYOK_ANTHROPIC_BASE_URL.
//
// Replies depend only on the last user message:
//
//	"count from 1 to 5"  -> "1, 2, 3, 4, 5"
//	"rate limit"         -> HTTP 429
//	"fail mid-stream"    -> a stream that breaks after the first token
//	anything else        -> "Hello, nice day!"
//
// Any key containing "invalid" is rejected with 401.
//
// Configuration:
//
//	MOCK_PORT - Listen port (default: 9090)
package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"
)

func main() {
	port := os.Getenv("MOCK_PORT")
	if port == "" {
		port = "9090"
	}

	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           newMux(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		slog.Info("mock backend starting", "port", port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("mock backend failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("mock backend shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("shutdown error", "error", err)
	}
}

func newMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/chat/completions", handleChatCompletions)
	mux.HandleFunc("POST /v1/messages", handleMessages)
	mux.HandleFunc("GET /v1/models", handleModels)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok\n"))
	})
	return mux
}

// handleModels serves both vendors. Anthropic clients send x-api-key.
func handleModels(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("x-api-key") != "" {
		handleAnthropicModels(w, r)
		return
	}
	handleOpenAIModels(w, r)
}

// scenario is the canned behavior selected by a prompt.
type scenario struct {
	tokens     []string
	status     int
	failMidway bool
}

func pickScenario(prompt string) scenario {
	p := strings.ToLower(prompt)
	switch {
	case strings.Contains(p, "rate limit"):
		return scenario{status: http.StatusTooManyRequests}
	case strings.Contains(p, "fail mid-stream"):
		return scenario{tokens: []string{"Hel", "lo"}, failMidway: true}
	case strings.Contains(p, "count from 1 to 5"):
		return scenario{tokens: []string{"1", ", ", "2", ", ", "3", ", ", "4", ", ", "5"}}
	}
	return scenario{tokens: []string{"Hello", ", ", "nice", " ", "day", "!"}}
}

func (s scenario) text() string {
	return strings.Join(s.tokens, "")
}

// promptTokens is a rough deterministic token count.
func promptTokens(texts ...string) int {
	n := 0
	for _, t := range texts {
		n += len(strings.Fields(t))
	}
	return n + 3
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("writing response failed", "error", err)
	}
}

func startSSE(w http.ResponseWriter) (http.Flusher, bool) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return nil, false
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	return flusher, true
}
