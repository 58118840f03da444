package integration

import (
	"net/http"
	"strings"
	"testing"

	"github.com/rhuss/byok/pkg/api"
)

func TestCredentialsAreScopedPerUser(t *testing.T) {
	storeKey(t, aliceKey, api.ProviderOpenAI, "sk-openai-alice-1234")
	t.Cleanup(func() { do(t, aliceKey, http.MethodDelete, "/v1/credentials/openai", nil).Body.Close() })

	var alice struct {
		Data []struct {
			Provider api.ProviderID `json:"provider"`
			Hint     string         `json:"hint"`
		} `json:"data"`
	}
	decodeJSON(t, do(t, aliceKey, http.MethodGet, "/v1/credentials", nil), &alice)
	if len(alice.Data) != 1 || alice.Data[0].Provider != api.ProviderOpenAI || alice.Data[0].Hint != "1234" {
		t.Errorf("alice credentials = %+v", alice.Data)
	}

	resp := do(t, bobKey, http.MethodGet, "/v1/credentials", nil)
	if body := readBody(t, resp); strings.Contains(body, "openai") {
		t.Errorf("bob sees alice's credential: %s", body)
	}
}

func TestCredentialValidationOnSet(t *testing.T) {
	before := testEnv.VendorHits()
	resp := do(t, bobKey, http.MethodPut, "/v1/credentials/anthropic", map[string]any{"api_key": "sk-ant-invalid-0000", "validate": true})
	expectError(t, resp, http.StatusUnauthorized, api.ErrorCodeInvalidAPIKey)
	if testEnv.VendorHits() != before+1 {
		t.Errorf("vendor hits = %d, want one validation call", testEnv.VendorHits()-before)
	}

	resp = do(t, bobKey, http.MethodPut, "/v1/credentials/anthropic", map[string]any{"api_key": "sk-ant-good-0000", "validate": true})
	expectStatus(t, resp, http.StatusOK)
	resp.Body.Close()

	resp = do(t, bobKey, http.MethodDelete, "/v1/credentials/anthropic", nil)
	expectStatus(t, resp, http.StatusNoContent)
	resp.Body.Close()
}

func TestValidateEndpoint(t *testing.T) {
	for key, want := range map[string]bool{"sk-good-key": true, "sk-invalid-key": false} {
		var got struct {
			Valid bool `json:"valid"`
		}
		resp := do(t, aliceKey, http.MethodPost, "/v1/credentials/openai/validate", map[string]any{"api_key": key})
		expectStatus(t, resp, http.StatusOK)
		decodeJSON(t, resp, &got)
		if got.Valid != want {
			t.Errorf("%s valid = %v, want %v", key, got.Valid, want)
		}
	}
}

func TestProvidersListing(t *testing.T) {
	storeKey(t, aliceKey, api.ProviderAnthropic, "sk-ant-alice-5678")
	t.Cleanup(func() { do(t, aliceKey, http.MethodDelete, "/v1/credentials/anthropic", nil).Body.Close() })

	var got struct {
		Data []struct {
			ID     api.ProviderID `json:"id"`
			HasKey bool           `json:"has_key"`
		} `json:"data"`
	}
	decodeJSON(t, do(t, aliceKey, http.MethodGet, "/v1/providers", nil), &got)
	if len(got.Data) != 2 {
		t.Fatalf("providers = %+v", got.Data)
	}
	for _, p := range got.Data {
		if p.HasKey != (p.ID == api.ProviderAnthropic) {
			t.Errorf("%s has_key = %v", p.ID, p.HasKey)
		}
	}

	var models struct {
		Data []api.ModelInfo `json:"data"`
	}
	resp := do(t, aliceKey, http.MethodGet, "/v1/providers/anthropic/models", nil)
	expectStatus(t, resp, http.StatusOK)
	decodeJSON(t, resp, &models)
	if len(models.Data) != 1 || models.Data[0].ID != "claude-3-5-haiku-20241022" {
		t.Errorf("models = %+v", models.Data)
	}
}

func TestModelsWithoutKeyMakeNoVendorCall(t *testing.T) {
	before := testEnv.VendorHits()
	resp := do(t, bobKey, http.MethodGet, "/v1/providers/openai/models", nil)
	expectError(t, resp, http.StatusUnauthorized, api.ErrorCodeInvalidAPIKey)
	if testEnv.VendorHits() != before {
		t.Error("vendor was called without a stored key")
	}
}
