package jwt

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"sync"
	"time"

	"github.com/rhuss/byok/pkg/debug"
)

// minRefreshInterval bounds JWKS refetches caused by unknown kids.
const minRefreshInterval = 30 * time.Second

// jwksCache caches RSA public keys fetched from a JWKS endpoint.
type jwksCache struct {
	url    string
	client *http.Client
	ttl    time.Duration

	mu        sync.RWMutex
	keys      map[string]*rsa.PublicKey
	fetchedAt time.Time
}

func newJWKSCache(url string, client *http.Client, ttl time.Duration) *jwksCache {
	return &jwksCache{url: url, client: client, ttl: ttl, keys: map[string]*rsa.PublicKey{}}
}

// getKey returns the key for kid, refetching the set when it is stale or
// the kid is unknown. Unknown kids refetch at most every minRefreshInterval.
func (c *jwksCache) getKey(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	c.mu.RLock()
	key, ok := c.keys[kid]
	age := time.Since(c.fetchedAt)
	c.mu.RUnlock()
	if ok && age < c.ttl {
		return key, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	age = time.Since(c.fetchedAt)
	if key, ok := c.keys[kid]; ok && age < c.ttl {
		return key, nil
	}
	if _, known := c.keys[kid]; !known && age < minRefreshInterval {
		return nil, fmt.Errorf("key %q not found in JWKS", kid)
	}

	if err := c.refresh(ctx); err != nil {
		// A stale key is better than none while the endpoint is down.
		if key, ok := c.keys[kid]; ok {
			slog.Warn("JWKS refresh failed, using cached key", "kid", kid, "error", err)
			return key, nil
		}
		return nil, err
	}

	key, ok = c.keys[kid]
	if !ok {
		return nil, fmt.Errorf("key %q not found in JWKS", kid)
	}
	return key, nil
}

// refresh replaces the key set. Must be called with the write lock held.
func (c *jwksCache) refresh(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return fmt.Errorf("creating JWKS request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetching JWKS: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("JWKS endpoint returned status %d", resp.StatusCode)
	}

	var doc struct {
		Keys []jwk `json:"keys"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&doc); err != nil {
		return fmt.Errorf("parsing JWKS: %w", err)
	}

	keys := make(map[string]*rsa.PublicKey, len(doc.Keys))
	for _, k := range doc.Keys {
		if k.Kty != "RSA" || (k.Use != "" && k.Use != "sig") {
			continue
		}
		pub, err := k.rsaPublicKey()
		if err != nil {
			slog.Warn("skipping JWKS key", "kid", k.Kid, "error", err)
			continue
		}
		keys[k.Kid] = pub
	}

	c.keys = keys
	c.fetchedAt = time.Now()
	debug.Log("auth", "JWKS refreshed", "keys", len(keys), "url", c.url)
	return nil
}

// jwk is a single JSON Web Key.
type jwk struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	Use string `json:"use"`
	N   string `json:"n"`
	E   string `json:"e"`
}

func (k jwk) rsaPublicKey() (*rsa.PublicKey, error) {
	n, err := base64.RawURLEncoding.DecodeString(k.N)
	if err != nil {
		return nil, fmt.Errorf("decoding modulus: %w", err)
	}
	e, err := base64.RawURLEncoding.DecodeString(k.E)
	if err != nil {
		return nil, fmt.Errorf("decoding exponent: %w", err)
	}

	exp := new(big.Int).SetBytes(e)
	if !exp.IsInt64() || exp.Int64() > 1<<31-1 {
		return nil, errors.New("RSA exponent too large")
	}
	return &rsa.PublicKey{N: new(big.Int).SetBytes(n), E: int(exp.Int64())}, nil
}
