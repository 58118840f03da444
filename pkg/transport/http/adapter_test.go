package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rhuss/byok/pkg/api"
	"github.com/rhuss/byok/pkg/credentials"
	"github.com/rhuss/byok/pkg/engine"
	"github.com/rhuss/byok/pkg/storage/memory"
	"github.com/rhuss/byok/pkg/transport"
)

// fakeCompletions is a configurable CompletionService.
type fakeCompletions struct {
	summary *api.CompletionSummary
	chunks  []api.StreamChunk
	models  []api.ModelInfo
	err     error
	// streamErr is returned after all chunks were delivered.
	streamErr error
	// block waits for cancellation after the first chunk.
	block bool

	lastUser string
	lastReq  *api.CompletionRequest
}

func (f *fakeCompletions) CompleteChatPrompt(_ context.Context, userID string, req *api.CompletionRequest) (*api.CompletionSummary, error) {
	f.lastUser, f.lastReq = userID, req
	if f.err != nil {
		return nil, f.err
	}
	return f.summary, nil
}

func (f *fakeCompletions) StreamChatCompletion(ctx context.Context, userID string, req *api.CompletionRequest, onChunk engine.ChunkHandler) error {
	f.lastUser, f.lastReq = userID, req
	if f.err != nil {
		return f.err
	}
	for i, c := range f.chunks {
		if err := onChunk(c); err != nil {
			return err
		}
		if f.block && i == 0 {
			<-ctx.Done()
			return api.NewCancelledError("the completion was cancelled")
		}
	}
	return f.streamErr
}

func (f *fakeCompletions) GetAvailableModels(_ context.Context, userID string, p api.ProviderID) ([]api.ModelInfo, error) {
	f.lastUser = userID
	if f.err != nil {
		return nil, f.err
	}
	return f.models, nil
}

// fakeCatalog supports anthropic and openai and accepts keys starting
// with "sk-".
type fakeCatalog struct {
	validated int
}

func (c *fakeCatalog) SupportedProviders() []api.ProviderID {
	return []api.ProviderID{api.ProviderAnthropic, api.ProviderOpenAI}
}

func (c *fakeCatalog) Supports(id api.ProviderID) bool {
	return id == api.ProviderAnthropic || id == api.ProviderOpenAI
}

func (c *fakeCatalog) DefaultModel(id api.ProviderID) (string, error) {
	switch id {
	case api.ProviderAnthropic:
		return "claude-3-7-sonnet-20250219", nil
	case api.ProviderOpenAI:
		return "gpt-4o", nil
	}
	return "", api.NewUnsupportedProviderError(id)
}

func (c *fakeCatalog) ValidateAPIKey(_ context.Context, _ api.ProviderID, key string) (bool, error) {
	c.validated++
	return strings.HasPrefix(key, "sk-"), nil
}

type fakeHealth struct{ err error }

func (h fakeHealth) HealthCheck(context.Context) error { return h.err }

type testEnv struct {
	adapter     *Adapter
	handler     http.Handler
	completions *fakeCompletions
	catalog     *fakeCatalog
	store       *memory.Store
	creds       *credentials.Manager
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := memory.New(100)
	cipher, err := credentials.NewCipher("0123456789abcdef-master", "test-salt")
	if err != nil {
		t.Fatalf("NewCipher: %v", err)
	}
	env := &testEnv{
		completions: &fakeCompletions{},
		catalog:     &fakeCatalog{},
		store:       store,
		creds:       credentials.NewManager(store, cipher),
	}
	cfg := DefaultConfig()
	cfg.MaxBodySize = 1024
	env.adapter = NewAdapter(Services{
		Completions: env.completions,
		Threads:     store,
		Credentials: env.creds,
		Providers:   env.catalog,
	}, cfg)
	env.handler = env.adapter.Handler()
	return env
}

func (e *testEnv) do(method, path string, body any) *httptest.ResponseRecorder {
	var r *http.Request
	if body != nil {
		data, _ := json.Marshal(body)
		r = httptest.NewRequest(method, path, bytes.NewReader(data))
		r.Header.Set("Content-Type", "application/json")
	} else {
		r = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, r)
	return rec
}

func (e *testEnv) createThread(t *testing.T) string {
	t.Helper()
	rec := e.do(http.MethodPost, "/v1/threads", map[string]any{"title": "test"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create thread: status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var th api.Thread
	if err := json.NewDecoder(rec.Body).Decode(&th); err != nil {
		t.Fatalf("decode thread: %v", err)
	}
	return th.ID
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) *api.APIError {
	t.Helper()
	var resp api.ErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode error body %q: %v", rec.Body.String(), err)
	}
	if resp.Error == nil {
		t.Fatal("error body has no error")
	}
	return resp.Error
}

func TestHealthEndpoints(t *testing.T) {
	env := newTestEnv(t)

	if rec := env.do(http.MethodGet, "/healthz", nil); rec.Code != http.StatusOK {
		t.Errorf("healthz status = %d", rec.Code)
	}
	if rec := env.do(http.MethodGet, "/readyz", nil); rec.Code != http.StatusOK {
		t.Errorf("readyz status = %d", rec.Code)
	}

	env.adapter.svc.Health = []transport.HealthChecker{fakeHealth{}, fakeHealth{err: errors.New("db down")}}
	rec := env.do(http.MethodGet, "/readyz", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("readyz status = %d, want 503", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "db down") {
		t.Errorf("readyz body = %s", rec.Body.String())
	}
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.do(http.MethodGet, "/healthz", nil)

	rec := env.do(http.MethodGet, "/metrics", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "byok_requests_total") {
		t.Error("metrics output misses byok_requests_total")
	}
}

func TestUnknownRoute(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodGet, "/v1/nope", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	if code := decodeError(t, rec).Code; code != api.ErrorCodeNotFound {
		t.Errorf("code = %q", code)
	}

	rec = env.do(http.MethodPatch, "/v1/threads", nil)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rec.Code)
	}
}

func TestRequestIDHeader(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(http.MethodGet, "/healthz", nil)
	if rec.Header().Get(transport.RequestIDHeader) == "" {
		t.Error("response lacks X-Request-ID")
	}
}

func TestListProviders(t *testing.T) {
	env := newTestEnv(t)
	if err := env.creds.SetAPIKey(context.Background(), "anonymous", api.ProviderOpenAI, "sk-openai-1234", nil); err != nil {
		t.Fatalf("SetAPIKey: %v", err)
	}

	rec := env.do(http.MethodGet, "/v1/providers", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var got providerList
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got.Data) != 2 {
		t.Fatalf("providers = %d, want 2", len(got.Data))
	}
	for _, p := range got.Data {
		wantKey := p.ID == api.ProviderOpenAI
		if p.HasKey != wantKey {
			t.Errorf("%s has_key = %v, want %v", p.ID, p.HasKey, wantKey)
		}
		if p.DefaultModel == "" {
			t.Errorf("%s has no default model", p.ID)
		}
	}
}

func TestListModels(t *testing.T) {
	env := newTestEnv(t)
	env.completions.models = []api.ModelInfo{{ID: "gpt-4o", Provider: api.ProviderOpenAI}}

	rec := env.do(http.MethodGet, "/v1/providers/openai/models", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var got modelList
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got.Data) != 1 || got.Data[0].ID != "gpt-4o" {
		t.Errorf("models = %+v", got.Data)
	}
	if env.completions.lastUser != "anonymous" {
		t.Errorf("user = %q, want anonymous", env.completions.lastUser)
	}
}

func TestListModelsErrors(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodGet, "/v1/providers/mistral/models", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("unsupported provider status = %d, want 400", rec.Code)
	}
	if code := decodeError(t, rec).Code; code != api.ErrorCodeUnsupportedProvider {
		t.Errorf("code = %q", code)
	}

	env.completions.err = api.NewInvalidAPIKeyError("no anthropic key")
	rec = env.do(http.MethodGet, "/v1/providers/anthropic/models", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("missing key status = %d, want 401", rec.Code)
	}
}

func TestCredentialLifecycle(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodPut, "/v1/credentials/anthropic", map[string]any{"api_key": "sk-ant-secret-9876"})
	if rec.Code != http.StatusOK {
		t.Fatalf("put status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var summary credentials.Summary
	if err := json.NewDecoder(rec.Body).Decode(&summary); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if strings.Contains(rec.Body.String(), "secret") {
		t.Error("response leaks the key")
	}
	if summary.Hint != credentials.Hint("sk-ant-secret-9876") {
		t.Errorf("hint = %q", summary.Hint)
	}
	if env.catalog.validated != 0 {
		t.Error("key validated although validation is off by default")
	}

	rec = env.do(http.MethodGet, "/v1/credentials", nil)
	var list credentialList
	if err := json.NewDecoder(rec.Body).Decode(&list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(list.Data) != 1 || list.Data[0].Provider != api.ProviderAnthropic {
		t.Errorf("credentials = %+v", list.Data)
	}

	rec = env.do(http.MethodDelete, "/v1/credentials/anthropic", nil)
	if rec.Code != http.StatusNoContent {
		t.Errorf("delete status = %d", rec.Code)
	}
	has, err := env.creds.HasAPIKey(context.Background(), "anonymous", api.ProviderAnthropic)
	if err != nil || has {
		t.Errorf("HasAPIKey after delete = %v, %v", has, err)
	}
}

func TestSetCredentialValidation(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodPut, "/v1/credentials/openai", map[string]any{"api_key": "bad-key", "validate": true})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if code := decodeError(t, rec).Code; code != api.ErrorCodeInvalidAPIKey {
		t.Errorf("code = %q", code)
	}
	if env.catalog.validated != 1 {
		t.Errorf("validated = %d, want 1", env.catalog.validated)
	}
	has, _ := env.creds.HasAPIKey(context.Background(), "anonymous", api.ProviderOpenAI)
	if has {
		t.Error("rejected key was stored")
	}
}

func TestSetCredentialBadInput(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name       string
		path       string
		body       string
		wantStatus int
	}{
		{"unsupported provider", "/v1/credentials/mistral", `{"api_key":"k"}`, http.StatusBadRequest},
		{"empty key", "/v1/credentials/openai", `{"api_key":"  "}`, http.StatusBadRequest},
		{"malformed json", "/v1/credentials/openai", `{"api_key":`, http.StatusBadRequest},
		{"unknown field", "/v1/credentials/openai", `{"key":"sk-1"}`, http.StatusBadRequest},
		{"too large", "/v1/credentials/openai", `{"api_key":"` + strings.Repeat("a", 2048) + `"}`, http.StatusRequestEntityTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPut, tt.path, strings.NewReader(tt.body))
			r.Header.Set("Content-Type", "application/json")
			rec := httptest.NewRecorder()
			env.handler.ServeHTTP(rec, r)
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d (body %s)", rec.Code, tt.wantStatus, rec.Body.String())
			}
		})
	}
}

func TestWrongContentType(t *testing.T) {
	env := newTestEnv(t)

	r := httptest.NewRequest(http.MethodPut, "/v1/credentials/openai", strings.NewReader(`api_key=x`))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, r)

	if rec.Code != http.StatusUnsupportedMediaType {
		t.Errorf("status = %d, want 415", rec.Code)
	}
}

func TestValidateCredential(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodPost, "/v1/credentials/openai/validate", map[string]any{"api_key": "sk-good"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var got validateCredentialResponse
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !got.Valid {
		t.Error("valid = false, want true")
	}
	has, _ := env.creds.HasAPIKey(context.Background(), "anonymous", api.ProviderOpenAI)
	if has {
		t.Error("validate must not store the key")
	}
}

func TestThreadLifecycle(t *testing.T) {
	env := newTestEnv(t)
	id := env.createThread(t)

	rec := env.do(http.MethodGet, "/v1/threads/"+id, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}
	var th api.Thread
	if err := json.NewDecoder(rec.Body).Decode(&th); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if th.Title != "test" || th.OwnerID != "anonymous" {
		t.Errorf("thread = %+v", th)
	}

	rec = env.do(http.MethodGet, "/v1/threads?limit=10", nil)
	var list threadList
	if err := json.NewDecoder(rec.Body).Decode(&list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(list.Data) != 1 || list.Data[0].ID != id {
		t.Errorf("threads = %+v", list.Data)
	}

	if rec := env.do(http.MethodDelete, "/v1/threads/"+id, nil); rec.Code != http.StatusNoContent {
		t.Errorf("delete status = %d", rec.Code)
	}
	if rec := env.do(http.MethodGet, "/v1/threads/"+id, nil); rec.Code != http.StatusNotFound {
		t.Errorf("get after delete status = %d, want 404", rec.Code)
	}
}

func TestCreateThreadEmptyBody(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(http.MethodPost, "/v1/threads", nil)
	if rec.Code != http.StatusCreated {
		t.Errorf("status = %d, want 201", rec.Code)
	}
}

func TestThreadBadInput(t *testing.T) {
	env := newTestEnv(t)

	if rec := env.do(http.MethodGet, "/v1/threads/not-an-id", nil); rec.Code != http.StatusBadRequest {
		t.Errorf("malformed id status = %d, want 400", rec.Code)
	}
	if rec := env.do(http.MethodGet, "/v1/threads?limit=0", nil); rec.Code != http.StatusBadRequest {
		t.Errorf("bad limit status = %d, want 400", rec.Code)
	}
	if rec := env.do(http.MethodGet, "/v1/threads/"+api.NewThreadID(), nil); rec.Code != http.StatusNotFound {
		t.Errorf("missing thread status = %d, want 404", rec.Code)
	}
}

func TestCompletionJSON(t *testing.T) {
	env := newTestEnv(t)
	id := env.createThread(t)
	env.completions.summary = &api.CompletionSummary{
		ThreadID:     id,
		MessageID:    api.NewMessageID(),
		Content:      "Hello",
		Model:        "gpt-4o",
		Provider:     api.ProviderOpenAI,
		FinishReason: api.FinishReasonStop,
	}

	rec := env.do(http.MethodPost, "/v1/threads/"+id+"/completions", map[string]any{
		"prompt":   "Hi",
		"provider": "openai",
		"options":  map[string]any{"temperature": 0.5},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var got api.CompletionSummary
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Content != "Hello" {
		t.Errorf("content = %q", got.Content)
	}

	req := env.completions.lastReq
	if req.ThreadID != id || req.Prompt != "Hi" || req.Provider != api.ProviderOpenAI {
		t.Errorf("request = %+v", req)
	}
	if req.Options == nil || req.Options.Temperature == nil || *req.Options.Temperature != 0.5 {
		t.Errorf("options not forwarded: %+v", req.Options)
	}
}

func TestCompletionErrorStatus(t *testing.T) {
	tests := []struct {
		err        error
		wantStatus int
	}{
		{api.NewInvalidRequestError("prompt", "empty"), http.StatusBadRequest},
		{api.NewInvalidAPIKeyError("missing"), http.StatusUnauthorized},
		{api.NewVendorError(api.ErrorCodeRateLimitExceeded, "slow down", ""), http.StatusTooManyRequests},
		{api.NewVendorError(api.ErrorCodeModelNotFound, "no such model", ""), http.StatusNotFound},
		{api.NewServerError("vendor down"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(string(api.CodeOf(tt.err)), func(t *testing.T) {
			env := newTestEnv(t)
			id := env.createThread(t)
			env.completions.err = tt.err

			rec := env.do(http.MethodPost, "/v1/threads/"+id+"/completions", map[string]any{"prompt": "Hi", "provider": "openai"})
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}
}

func TestCompletionStream(t *testing.T) {
	env := newTestEnv(t)
	id := env.createThread(t)
	msgID := api.NewMessageID()
	env.completions.chunks = []api.StreamChunk{
		{ThreadID: id, MessageID: msgID, Content: "Hel"},
		{ThreadID: id, MessageID: msgID, Content: "lo", FinishReason: api.FinishReasonStop, Done: true, Usage: api.NewUsage(3, 2)},
	}

	rec := env.do(http.MethodPost, "/v1/threads/"+id+"/completions", map[string]any{"prompt": "Hi", "provider": "openai", "stream": true})

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q", ct)
	}

	events := parseSSE(t, rec.Body.String())
	if len(events) != 3 {
		t.Fatalf("events = %d, want 3: %+v", len(events), events)
	}
	if events[0].name != eventChunk || events[1].name != eventChunk {
		t.Errorf("event names = %q %q", events[0].name, events[1].name)
	}
	var last api.StreamChunk
	if err := json.Unmarshal([]byte(events[1].data), &last); err != nil {
		t.Fatalf("decode chunk: %v", err)
	}
	if !last.Done || last.FinishReason != api.FinishReasonStop || last.Usage == nil {
		t.Errorf("last chunk = %+v", last)
	}
	if events[2].data != "[DONE]" {
		t.Errorf("final data = %q, want [DONE]", events[2].data)
	}
	if env.adapter.InFlight().Len() != 0 {
		t.Error("stream still registered after it ended")
	}
}

func TestCompletionStreamMidStreamError(t *testing.T) {
	env := newTestEnv(t)
	id := env.createThread(t)
	msgID := api.NewMessageID()
	env.completions.chunks = []api.StreamChunk{{ThreadID: id, MessageID: msgID, Content: "Hel"}}
	env.completions.streamErr = api.NewServerError("vendor failed")

	rec := env.do(http.MethodPost, "/v1/threads/"+id+"/completions", map[string]any{"prompt": "Hi", "provider": "openai", "stream": true})

	events := parseSSE(t, rec.Body.String())
	if len(events) != 3 {
		t.Fatalf("events = %d, want 3: %+v", len(events), events)
	}
	if events[1].name != eventError {
		t.Fatalf("event = %q, want error", events[1].name)
	}
	var resp api.ErrorResponse
	if err := json.Unmarshal([]byte(events[1].data), &resp); err != nil {
		t.Fatalf("decode error event: %v", err)
	}
	if resp.Error.Code != api.ErrorCodeServerError {
		t.Errorf("code = %q", resp.Error.Code)
	}
	if events[2].data != "[DONE]" {
		t.Errorf("final data = %q", events[2].data)
	}
}

func TestCompletionStreamFailsBeforeFirstChunk(t *testing.T) {
	env := newTestEnv(t)
	id := env.createThread(t)
	env.completions.err = api.NewInvalidAPIKeyError("no key")

	rec := env.do(http.MethodPost, "/v1/threads/"+id+"/completions", map[string]any{"prompt": "Hi", "provider": "openai", "stream": true})

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want JSON error", ct)
	}
}

func TestCompletionStreamAcceptHeader(t *testing.T) {
	env := newTestEnv(t)
	id := env.createThread(t)
	env.completions.chunks = []api.StreamChunk{{ThreadID: id, MessageID: api.NewMessageID(), Content: "x", FinishReason: api.FinishReasonStop, Done: true}}

	r := httptest.NewRequest(http.MethodPost, "/v1/threads/"+id+"/completions", strings.NewReader(`{"prompt":"Hi","provider":"openai"}`))
	r.Header.Set("Content-Type", "application/json")
	r.Header.Set("Accept", "text/event-stream")
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, r)

	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q, want text/event-stream", ct)
	}
}

func TestCancelCompletion(t *testing.T) {
	env := newTestEnv(t)
	id := env.createThread(t)
	msgID := api.NewMessageID()
	env.completions.chunks = []api.StreamChunk{{ThreadID: id, MessageID: msgID, Content: "Hel"}}
	env.completions.block = true

	srv := httptest.NewServer(env.handler)
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/v1/threads/"+id+"/completions", "application/json",
		strings.NewReader(`{"prompt":"Hi","provider":"openai","stream":true}`))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()

	deadline := time.Now().Add(2 * time.Second)
	for env.adapter.InFlight().Len() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("stream never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	// A malformed message id is rejected before the registry is consulted.
	if rec := env.do(http.MethodDelete, "/v1/threads/"+id+"/completions/bogus", nil); rec.Code != http.StatusBadRequest {
		t.Errorf("malformed id status = %d, want 400", rec.Code)
	}

	rec := env.do(http.MethodDelete, "/v1/threads/"+id+"/completions/"+msgID, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("cancel status = %d, body = %s", rec.Code, rec.Body.String())
	}

	body := new(bytes.Buffer)
	if _, err := body.ReadFrom(resp.Body); err != nil {
		t.Fatalf("read stream: %v", err)
	}
	events := parseSSE(t, body.String())
	if len(events) != 3 || events[1].name != eventError {
		t.Fatalf("events = %+v", events)
	}
	if !strings.Contains(events[1].data, string(api.ErrorCodeCancelled)) {
		t.Errorf("error event = %s, want cancelled", events[1].data)
	}

	if rec := env.do(http.MethodDelete, "/v1/threads/"+id+"/completions/"+msgID, nil); rec.Code != http.StatusNotFound {
		t.Errorf("second cancel status = %d, want 404", rec.Code)
	}
}

type sseEvent struct {
	name string
	data string
}

func parseSSE(t *testing.T, body string) []sseEvent {
	t.Helper()
	var events []sseEvent
	for _, block := range strings.Split(strings.TrimSpace(body), "\n\n") {
		var ev sseEvent
		for _, line := range strings.Split(block, "\n") {
			switch {
			case strings.HasPrefix(line, "event: "):
				ev.name = strings.TrimPrefix(line, "event: ")
			case strings.HasPrefix(line, "data: "):
				ev.data = strings.TrimPrefix(line, "data: ")
			}
		}
		events = append(events, ev)
	}
	return events
}
