package credentials

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rhuss/byok/pkg/api"
	"github.com/rhuss/byok/pkg/debug"
	"github.com/rhuss/byok/pkg/storage"
)

// Validator checks a key against the vendor before it is stored.
type Validator interface {
	ValidateAPIKey(ctx context.Context, provider api.ProviderID, key string) (bool, error)
}

// Summary describes a stored key without revealing it.
type Summary struct {
	Provider api.ProviderID `json:"provider"`
	Hint     string         `json:"hint"`
}

// Manager resolves and stores per-user vendor keys.
type Manager struct {
	store  storage.CredentialStore
	cipher *Cipher
}

// NewManager creates a Manager over store using cipher for encryption.
func NewManager(store storage.CredentialStore, cipher *Cipher) *Manager {
	return &Manager{store: store, cipher: cipher}
}

// SetAPIKey encrypts and stores key for (userID, provider). When v is
// non-nil the key is validated first; a rejected key is an
// invalid_api_key error and nothing is stored.
func (m *Manager) SetAPIKey(ctx context.Context, userID string, provider api.ProviderID, key string, v Validator) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return api.NewInvalidRequestError("api_key", "api_key must not be empty")
	}

	if v != nil {
		ok, err := v.ValidateAPIKey(ctx, provider, key)
		if err != nil {
			return err
		}
		if !ok {
			return api.NewInvalidAPIKeyError(fmt.Sprintf("the %s API key was rejected by the provider", provider))
		}
	}

	sealed, err := m.cipher.Encrypt(key)
	if err != nil {
		return err
	}

	if err := m.store.PutCredential(ctx, storage.Credential{
		UserID:     userID,
		Provider:   provider,
		Ciphertext: sealed,
		Hint:       Hint(key),
	}); err != nil {
		return fmt.Errorf("storing %s credential: %w", provider, err)
	}

	debug.Log("credentials", "api key stored", "user", userID, "provider", provider, "key", debug.MaskKey(key))
	return nil
}

// HasAPIKey reports whether the user stored a key for provider.
func (m *Manager) HasAPIKey(ctx context.Context, userID string, provider api.ProviderID) (bool, error) {
	_, err := m.store.GetCredential(ctx, userID, provider)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// GetAPIKey returns the decrypted key. A missing key wraps
// storage.ErrNotFound.
func (m *Manager) GetAPIKey(ctx context.Context, userID string, provider api.ProviderID) (string, error) {
	c, err := m.store.GetCredential(ctx, userID, provider)
	if err != nil {
		return "", fmt.Errorf("%s credential: %w", provider, err)
	}
	key, err := m.cipher.Decrypt(c.Ciphertext)
	if err != nil {
		return "", fmt.Errorf("%s credential: %w", provider, err)
	}
	return key, nil
}

// DeleteAPIKey removes the user's key for provider.
func (m *Manager) DeleteAPIKey(ctx context.Context, userID string, provider api.ProviderID) error {
	if err := m.store.DeleteCredential(ctx, userID, provider); err != nil {
		return fmt.Errorf("%s credential: %w", provider, err)
	}
	debug.Log("credentials", "api key deleted", "user", userID, "provider", provider)
	return nil
}

// ListProviders returns the providers the user has keys for.
func (m *Manager) ListProviders(ctx context.Context, userID string) ([]Summary, error) {
	creds, err := m.store.ListCredentials(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]Summary, 0, len(creds))
	for _, c := range creds {
		out = append(out, Summary{Provider: c.Provider, Hint: c.Hint})
	}
	return out, nil
}

// Hint returns the last four characters of key for display, or "" for
// keys too short to reveal anything safely.
func Hint(key string) string {
	r := []rune(key)
	if len(r) < 12 {
		return ""
	}
	return string(r[len(r)-4:])
}
