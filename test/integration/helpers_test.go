// Package integration provides end-to-end tests for the byok API.
//
// Tests run against the real HTTP stack (auth, engine, credential manager,
// memory store) wired to a fake vendor that speaks both the OpenAI and the
// Anthropic wire formats, all started in-process with net/http/httptest.
package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/rhuss/byok/pkg/api"
	"github.com/rhuss/byok/pkg/auth"
	"github.com/rhuss/byok/pkg/auth/apikey"
	"github.com/rhuss/byok/pkg/credentials"
	"github.com/rhuss/byok/pkg/engine"
	"github.com/rhuss/byok/pkg/provider/anthropic"
	"github.com/rhuss/byok/pkg/provider/factory"
	"github.com/rhuss/byok/pkg/provider/openai"
	"github.com/rhuss/byok/pkg/storage/memory"
	"github.com/rhuss/byok/pkg/transport"
	transporthttp "github.com/rhuss/byok/pkg/transport/http"
)

// Service keys of the two test users.
const (
	aliceKey = "svc-alice-0001"
	bobKey   = "svc-bob-0002"
)

// testEnv holds the shared servers for all integration tests.
var testEnv *TestEnvironment

// TestEnvironment holds the byok server and the fake vendor.
type TestEnvironment struct {
	Server *httptest.Server
	Vendor *httptest.Server
	Store  *memory.Store

	vendorHits atomic.Int64
}

// TestMain starts the fake vendor and the byok server before running tests.
func TestMain(m *testing.M) {
	testEnv = setupTestEnvironment()
	code := m.Run()
	testEnv.Teardown()
	os.Exit(code)
}

func setupTestEnvironment() *TestEnvironment {
	env := &TestEnvironment{Store: memory.New(1000)}
	env.Vendor = httptest.NewServer(env.vendorMux())

	cipher, err := credentials.NewCipher("integration-master-key", "integration-salt")
	if err != nil {
		panic(fmt.Sprintf("creating cipher: %v", err))
	}
	creds := credentials.NewManager(env.Store, cipher)

	acfg := anthropic.DefaultConfig("")
	acfg.BaseURL = env.Vendor.URL
	ocfg := openai.DefaultConfig("")
	ocfg.BaseURL = env.Vendor.URL
	f := factory.NewDefault(acfg, ocfg)

	eng, err := engine.New(f, creds, env.Store, engine.DefaultConfig())
	if err != nil {
		panic(fmt.Sprintf("creating engine: %v", err))
	}

	chain := &auth.AuthChain{
		Authenticators: []auth.Authenticator{apikey.New([]apikey.RawKeyEntry{
			{Key: aliceKey, Identity: auth.Identity{Subject: "alice"}},
			{Key: bobKey, Identity: auth.Identity{Subject: "bob"}},
		})},
		DefaultDecision: auth.No,
	}

	adapter := transporthttp.NewAdapter(transporthttp.Services{
		Completions: eng,
		Threads:     env.Store,
		Credentials: creds,
		Providers:   f,
		Health:      []transport.HealthChecker{env.Store},
	}, transporthttp.DefaultConfig(), auth.Middleware(chain, nil, auth.DefaultBypassEndpoints))

	env.Server = httptest.NewServer(adapter.Handler())
	return env
}

// Teardown stops both servers.
func (env *TestEnvironment) Teardown() {
	if env.Server != nil {
		env.Server.Close()
	}
	if env.Vendor != nil {
		env.Vendor.Close()
	}
}

// BaseURL returns the byok server base URL.
func (env *TestEnvironment) BaseURL() string {
	return env.Server.URL
}

// VendorHits returns the number of requests the fake vendor served.
func (env *TestEnvironment) VendorHits() int64 {
	return env.vendorHits.Load()
}

// --- HTTP helpers ---

func do(t *testing.T, key, method, path string, body any) *http.Response {
	t.Helper()
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshaling request: %v", err)
		}
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, testEnv.BaseURL()+path, rd)
	if err != nil {
		t.Fatalf("creating request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	return resp
}

// readBody reads and returns the response body as a string.
func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("reading response body: %v", err)
	}
	return string(body)
}

// decodeJSON reads the response body and decodes it into the target.
func decodeJSON(t *testing.T, resp *http.Response, target any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		t.Fatalf("decoding JSON: %v", err)
	}
}

func expectStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		t.Fatalf("status = %d, want %d: %s", resp.StatusCode, want, readBody(t, resp))
	}
}

func expectError(t *testing.T, resp *http.Response, status int, code api.ErrorCode) {
	t.Helper()
	if resp.StatusCode != status {
		t.Fatalf("status = %d, want %d: %s", resp.StatusCode, status, readBody(t, resp))
	}
	var errResp api.ErrorResponse
	decodeJSON(t, resp, &errResp)
	if errResp.Error == nil {
		t.Fatal("error object is nil")
	}
	if errResp.Error.Code != code {
		t.Errorf("error.code = %q, want %q", errResp.Error.Code, code)
	}
}

// storeKey saves a vendor key for the user behind svcKey.
func storeKey(t *testing.T, svcKey string, p api.ProviderID, vendorKey string) {
	t.Helper()
	resp := do(t, svcKey, http.MethodPut, "/v1/credentials/"+string(p), map[string]any{"api_key": vendorKey})
	expectStatus(t, resp, http.StatusOK)
	resp.Body.Close()
}

// createThread creates a thread for the user behind svcKey.
func createThread(t *testing.T, svcKey string) string {
	t.Helper()
	resp := do(t, svcKey, http.MethodPost, "/v1/threads", map[string]any{"title": t.Name()})
	expectStatus(t, resp, http.StatusCreated)
	var th api.Thread
	decodeJSON(t, resp, &th)
	return th.ID
}

func getThread(t *testing.T, svcKey, id string) api.Thread {
	t.Helper()
	resp := do(t, svcKey, http.MethodGet, "/v1/threads/"+id, nil)
	expectStatus(t, resp, http.StatusOK)
	var th api.Thread
	decodeJSON(t, resp, &th)
	return th
}

type sseEvent struct {
	name string
	data string
}

func readSSE(t *testing.T, resp *http.Response) []sseEvent {
	t.Helper()
	body := readBody(t, resp)
	var events []sseEvent
	for _, block := range strings.Split(strings.TrimSpace(body), "\n\n") {
		var ev sseEvent
		for _, line := range strings.Split(block, "\n") {
			if v, ok := strings.CutPrefix(line, "event: "); ok {
				ev.name = v
			} else if v, ok := strings.CutPrefix(line, "data: "); ok {
				ev.data = v
			}
		}
		events = append(events, ev)
	}
	return events
}

// --- Fake vendor ---
//
// Replies depend on the last user message: "fail" breaks the stream after
// "Hel" and "lo", "length" stops with the vendor's length reason, anything
// else answers "Hello" in two tokens. Keys containing "invalid" get 401.

func (env *TestEnvironment) vendorMux() *http.ServeMux {
	mux := http.NewServeMux()
	count := func(h http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			env.vendorHits.Add(1)
			h(w, r)
		}
	}
	mux.HandleFunc("POST /v1/chat/completions", count(handleOpenAIChat))
	mux.HandleFunc("POST /v1/messages", count(handleAnthropicMessages))
	mux.HandleFunc("GET /v1/models", count(handleModels))
	return mux
}

type vendorRequest struct {
	Model    string `json:"model"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
	Stream bool `json:"stream"`
}

func (r vendorRequest) lastUser() string {
	for i := len(r.Messages) - 1; i >= 0; i-- {
		if r.Messages[i].Role == "user" {
			return strings.ToLower(r.Messages[i].Content)
		}
	}
	return ""
}

func writeVendorJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func sse(w http.ResponseWriter, event string, v any) {
	data, _ := json.Marshal(v)
	if event != "" {
		fmt.Fprintf(w, "event: %s\n", event)
	}
	fmt.Fprintf(w, "data: %s\n\n", data)
	w.(http.Flusher).Flush()
}

func handleModels(w http.ResponseWriter, r *http.Request) {
	if key := r.Header.Get("x-api-key"); key != "" {
		if strings.Contains(key, "invalid") {
			writeVendorJSON(w, http.StatusUnauthorized, map[string]any{"type": "error", "error": map[string]any{"type": "authentication_error", "message": "invalid x-api-key"}})
			return
		}
		writeVendorJSON(w, http.StatusOK, map[string]any{
			"data":     []map[string]any{{"type": "model", "id": "claude-3-5-haiku-20241022", "display_name": "Claude 3.5 Haiku"}},
			"has_more": false,
		})
		return
	}
	if strings.Contains(r.Header.Get("Authorization"), "invalid") {
		writeVendorJSON(w, http.StatusUnauthorized, map[string]any{"error": map[string]any{"type": "invalid_request_error", "message": "Incorrect API key provided."}})
		return
	}
	writeVendorJSON(w, http.StatusOK, map[string]any{
		"object": "list",
		"data":   []map[string]any{{"id": "gpt-4o", "object": "model"}, {"id": "gpt-4o-mini", "object": "model"}},
	})
}

func handleOpenAIChat(w http.ResponseWriter, r *http.Request) {
	if strings.Contains(r.Header.Get("Authorization"), "invalid") {
		writeVendorJSON(w, http.StatusUnauthorized, map[string]any{"error": map[string]any{"type": "invalid_request_error", "message": "Incorrect API key provided."}})
		return
	}
	var req vendorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeVendorJSON(w, http.StatusBadRequest, map[string]any{"error": map[string]any{"message": "bad body"}})
		return
	}
	prompt := req.lastUser()
	finish := "stop"
	if strings.Contains(prompt, "length") {
		finish = "length"
	}
	turns := len(req.Messages)

	if !req.Stream {
		writeVendorJSON(w, http.StatusOK, map[string]any{
			"id":    "chatcmpl-test",
			"model": req.Model,
			"choices": []any{map[string]any{
				"index":         0,
				"message":       map[string]any{"role": "assistant", "content": "Hello"},
				"finish_reason": finish,
			}},
			"usage": map[string]any{"prompt_tokens": turns, "completion_tokens": 2, "total_tokens": turns + 2},
		})
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	chunk := func(delta map[string]any, reason any) map[string]any {
		return map[string]any{"id": "chatcmpl-test", "model": req.Model, "choices": []any{map[string]any{"index": 0, "delta": delta, "finish_reason": reason}}}
	}
	sse(w, "", chunk(map[string]any{"role": "assistant"}, nil))
	sse(w, "", chunk(map[string]any{"content": "Hel"}, nil))
	sse(w, "", chunk(map[string]any{"content": "lo"}, nil))
	if strings.Contains(prompt, "fail") {
		sse(w, "", map[string]any{"error": map[string]any{"type": "server_error", "message": "upstream exploded"}})
		return
	}
	sse(w, "", chunk(map[string]any{}, finish))
	sse(w, "", map[string]any{"id": "chatcmpl-test", "model": req.Model, "choices": []any{}, "usage": map[string]any{"prompt_tokens": turns, "completion_tokens": 2, "total_tokens": turns + 2}})
	fmt.Fprint(w, "data: [DONE]\n\n")
}

func handleAnthropicMessages(w http.ResponseWriter, r *http.Request) {
	if strings.Contains(r.Header.Get("x-api-key"), "invalid") {
		writeVendorJSON(w, http.StatusUnauthorized, map[string]any{"type": "error", "error": map[string]any{"type": "authentication_error", "message": "invalid x-api-key"}})
		return
	}
	var req vendorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeVendorJSON(w, http.StatusBadRequest, map[string]any{"type": "error", "error": map[string]any{"type": "invalid_request_error", "message": "bad body"}})
		return
	}
	prompt := req.lastUser()
	stop := "end_turn"
	if strings.Contains(prompt, "length") {
		stop = "max_tokens"
	}

	if !req.Stream {
		writeVendorJSON(w, http.StatusOK, map[string]any{
			"id": "msg_test", "type": "message", "role": "assistant", "model": req.Model,
			"content":     []any{map[string]any{"type": "text", "text": "Hello"}},
			"stop_reason": stop,
			"usage":       map[string]any{"input_tokens": len(req.Messages), "output_tokens": 2},
		})
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	sse(w, "message_start", map[string]any{"type": "message_start", "message": map[string]any{"model": req.Model, "usage": map[string]any{"input_tokens": len(req.Messages)}}})
	sse(w, "content_block_delta", map[string]any{"type": "content_block_delta", "delta": map[string]any{"type": "text_delta", "text": "Hel"}})
	sse(w, "content_block_delta", map[string]any{"type": "content_block_delta", "delta": map[string]any{"type": "text_delta", "text": "lo"}})
	if strings.Contains(prompt, "fail") {
		sse(w, "error", map[string]any{"type": "error", "error": map[string]any{"type": "api_error", "message": "upstream exploded"}})
		return
	}
	sse(w, "message_delta", map[string]any{"type": "message_delta", "delta": map[string]any{"stop_reason": stop}, "usage": map[string]any{"output_tokens": 2}})
	sse(w, "message_stop", map[string]any{"type": "message_stop"})
}
