package integration

import (
	"net/http"
	"testing"

	"github.com/rhuss/byok/pkg/api"
)

func withKeys(t *testing.T) {
	t.Helper()
	storeKey(t, aliceKey, api.ProviderOpenAI, "sk-openai-alice-1234")
	storeKey(t, aliceKey, api.ProviderAnthropic, "sk-ant-alice-5678")
	t.Cleanup(func() {
		do(t, aliceKey, http.MethodDelete, "/v1/credentials/openai", nil).Body.Close()
		do(t, aliceKey, http.MethodDelete, "/v1/credentials/anthropic", nil).Body.Close()
	})
}

func complete(t *testing.T, threadID string, body map[string]any) *http.Response {
	t.Helper()
	return do(t, aliceKey, http.MethodPost, "/v1/threads/"+threadID+"/completions", body)
}

func TestCompletionBothProviders(t *testing.T) {
	withKeys(t)

	for _, p := range []api.ProviderID{api.ProviderOpenAI, api.ProviderAnthropic} {
		t.Run(string(p), func(t *testing.T) {
			id := createThread(t, aliceKey)

			resp := complete(t, id, map[string]any{"prompt": "Hi", "provider": p})
			expectStatus(t, resp, http.StatusOK)
			var sum api.CompletionSummary
			decodeJSON(t, resp, &sum)

			if sum.Content != "Hello" || sum.FinishReason != api.FinishReasonStop {
				t.Errorf("summary = %+v", sum)
			}
			if sum.Provider != p || sum.ThreadID != id {
				t.Errorf("summary ids = %+v", sum)
			}

			th := getThread(t, aliceKey, id)
			if len(th.Messages) != 2 {
				t.Fatalf("messages = %d, want 2", len(th.Messages))
			}
			user, asst := th.Messages[0], th.Messages[1]
			if user.Role != api.RoleUser || user.Content != "Hi" || user.Status != api.MessageStatusComplete {
				t.Errorf("user turn = %+v", user)
			}
			if asst.Role != api.RoleAssistant || asst.Content != "Hello" || asst.Status != api.MessageStatusComplete {
				t.Errorf("assistant turn = %+v", asst)
			}
			if asst.ID != sum.MessageID {
				t.Errorf("assistant id = %q, summary says %q", asst.ID, sum.MessageID)
			}
		})
	}
}

func TestCompletionLengthFinishReason(t *testing.T) {
	withKeys(t)

	for _, p := range []api.ProviderID{api.ProviderOpenAI, api.ProviderAnthropic} {
		t.Run(string(p), func(t *testing.T) {
			id := createThread(t, aliceKey)
			resp := complete(t, id, map[string]any{"prompt": "hit the length limit", "provider": p})
			expectStatus(t, resp, http.StatusOK)
			var sum api.CompletionSummary
			decodeJSON(t, resp, &sum)
			if sum.FinishReason != api.FinishReasonLength {
				t.Errorf("finish reason = %q, want length", sum.FinishReason)
			}
		})
	}
}

func TestCompletionCarriesHistory(t *testing.T) {
	withKeys(t)
	id := createThread(t, aliceKey)

	complete(t, id, map[string]any{"prompt": "first", "provider": "openai"}).Body.Close()
	resp := complete(t, id, map[string]any{"prompt": "second", "provider": "openai"})
	expectStatus(t, resp, http.StatusOK)
	var sum api.CompletionSummary
	decodeJSON(t, resp, &sum)

	// The fake vendor reports the number of turns it received as prompt tokens.
	if sum.Usage == nil || sum.Usage.PromptTokens != 3 {
		t.Errorf("usage = %+v, want 3 turns sent", sum.Usage)
	}
}

func TestCompletionValidation(t *testing.T) {
	withKeys(t)
	id := createThread(t, aliceKey)
	before := testEnv.VendorHits()

	tests := []struct {
		name   string
		body   map[string]any
		status int
		code   api.ErrorCode
	}{
		{"empty prompt", map[string]any{"prompt": "", "provider": "openai"}, http.StatusBadRequest, api.ErrorCodeInvalidRequest},
		{"unsupported provider", map[string]any{"prompt": "Hi", "provider": "mistral"}, http.StatusBadRequest, api.ErrorCodeUnsupportedProvider},
		{"negative max tokens", map[string]any{"prompt": "Hi", "provider": "openai", "options": map[string]any{"max_tokens": -1}}, http.StatusBadRequest, api.ErrorCodeInvalidRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			expectError(t, complete(t, id, tt.body), tt.status, tt.code)
		})
	}

	if testEnv.VendorHits() != before {
		t.Errorf("invalid requests reached the vendor %d times", testEnv.VendorHits()-before)
	}
	if th := getThread(t, aliceKey, id); len(th.Messages) != 0 {
		t.Errorf("rejected requests left %d messages", len(th.Messages))
	}
}

func TestCompletionWithoutKeyLeavesThreadUntouched(t *testing.T) {
	id := createThread(t, bobKey)
	before := testEnv.VendorHits()

	resp := do(t, bobKey, http.MethodPost, "/v1/threads/"+id+"/completions", map[string]any{"prompt": "Hi", "provider": "openai"})
	expectError(t, resp, http.StatusUnauthorized, api.ErrorCodeInvalidAPIKey)

	if testEnv.VendorHits() != before {
		t.Error("vendor was called without a stored key")
	}
	if th := getThread(t, bobKey, id); len(th.Messages) != 0 {
		t.Errorf("messages = %d, want 0", len(th.Messages))
	}
}

func TestThreadsAreScopedPerUser(t *testing.T) {
	id := createThread(t, aliceKey)

	resp := do(t, bobKey, http.MethodGet, "/v1/threads/"+id, nil)
	expectError(t, resp, http.StatusNotFound, api.ErrorCodeNotFound)

	resp = do(t, bobKey, http.MethodDelete, "/v1/threads/"+id, nil)
	expectError(t, resp, http.StatusNotFound, api.ErrorCodeNotFound)

	resp = do(t, bobKey, http.MethodPost, "/v1/threads/"+id+"/completions", map[string]any{"prompt": "Hi", "provider": "openai"})
	if resp.StatusCode == http.StatusOK {
		t.Error("bob completed on alice's thread")
	}
	resp.Body.Close()

	var list struct {
		Data []api.Thread `json:"data"`
	}
	decodeJSON(t, do(t, bobKey, http.MethodGet, "/v1/threads", nil), &list)
	for _, th := range list.Data {
		if th.ID == id {
			t.Error("bob lists alice's thread")
		}
	}

	resp = do(t, aliceKey, http.MethodDelete, "/v1/threads/"+id, nil)
	expectStatus(t, resp, http.StatusNoContent)
	resp.Body.Close()
}

func TestInvalidJSON(t *testing.T) {
	id := createThread(t, aliceKey)
	req, _ := http.NewRequest(http.MethodPost, testEnv.BaseURL()+"/v1/threads/"+id+"/completions", nil)
	req.Header.Set("Authorization", "Bearer "+aliceKey)
	req.Header.Set("Content-Type", "application/json")
	req.Body = http.NoBody
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	expectError(t, resp, http.StatusBadRequest, api.ErrorCodeInvalidRequest)

	expectError(t, complete(t, id, map[string]any{"prompt": 42}), http.StatusBadRequest, api.ErrorCodeInvalidRequest)
	expectError(t, complete(t, id, map[string]any{"prompt": "Hi", "provider": "openai", "temprature": 1}), http.StatusBadRequest, api.ErrorCodeInvalidRequest)
}
