// Package apikey authenticates callers of the byok API with static service
// keys. Keys are kept only as SHA-256 hashes and compared in constant time.
//
// The key is read from the Bearer Authorization header or, for clients
// that already use Authorization for something else, from X-BYOK-Key.
package apikey

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/rhuss/byok/pkg/auth"
	"github.com/rhuss/byok/pkg/debug"
)

// HeaderName is the alternative header carrying the service key.
const HeaderName = "X-BYOK-Key"

// RawKeyEntry is the configuration format for API keys.
type RawKeyEntry struct {
	Key      string
	Identity auth.Identity
}

type keyEntry struct {
	hash     [32]byte
	identity auth.Identity
}

// Authenticator validates service keys against a static key set.
type Authenticator struct {
	keys []keyEntry
}

// New hashes the given keys. Plaintext keys are not retained.
func New(entries []RawKeyEntry) *Authenticator {
	a := &Authenticator{keys: make([]keyEntry, 0, len(entries))}
	for _, e := range entries {
		a.keys = append(a.keys, keyEntry{
			hash:     sha256.Sum256([]byte(e.Key)),
			identity: e.Identity,
		})
	}
	return a
}

// Authenticate returns Yes for a known key, No for a presented but unknown
// key, and Abstain when no key is presented.
func (a *Authenticator) Authenticate(_ context.Context, r *http.Request) auth.AuthResult {
	token, ok := presentedKey(r)
	if !ok {
		return auth.AuthResult{Decision: auth.Abstain}
	}
	if token == "" {
		return auth.AuthResult{Decision: auth.No, Err: auth.ErrUnauthenticated}
	}

	tokenHash := sha256.Sum256([]byte(token))

	// Every entry is compared so the scan time does not reveal a match position.
	match := -1
	for i := range a.keys {
		if subtle.ConstantTimeCompare(tokenHash[:], a.keys[i].hash[:]) == 1 && match < 0 {
			match = i
		}
	}
	if match < 0 {
		debug.Log("auth", "unknown service key", "key", debug.MaskKey(token))
		return auth.AuthResult{Decision: auth.No, Err: auth.ErrUnauthenticated}
	}

	id := a.keys[match].identity
	if id.Metadata != nil {
		md := make(map[string]string, len(id.Metadata))
		for k, v := range id.Metadata {
			md[k] = v
		}
		id.Metadata = md
	}
	return auth.AuthResult{Decision: auth.Yes, Identity: &id}
}

func presentedKey(r *http.Request) (string, bool) {
	if token, ok := auth.BearerToken(r); ok {
		return token, true
	}
	if v, ok := r.Header[http.CanonicalHeaderKey(HeaderName)]; ok && len(v) > 0 {
		return strings.TrimSpace(v[0]), true
	}
	return "", false
}
