// Package jwt authenticates byok callers with signed bearer tokens.
//
// Tokens are verified either against the RSA keys of a JWKS endpoint or
// against a shared HMAC secret. The subject claim becomes the user id that
// owns threads and stored vendor keys; an optional tier claim selects the
// rate limit bucket.
package jwt

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"github.com/rhuss/byok/pkg/auth"
	"github.com/rhuss/byok/pkg/debug"
)

// Config holds the JWT authenticator configuration.
type Config struct {
	// Issuer is the expected iss claim. Not checked when empty.
	Issuer string

	// Audience is the expected aud claim. Not checked when empty.
	Audience string

	// JWKSURL serves the RSA verification keys.
	JWKSURL string

	// Secret verifies HS256/384/512 tokens. Either Secret or JWKSURL must be set.
	Secret []byte

	// UserClaim is the claim used as the identity subject. Default: "sub".
	UserClaim string

	// TierClaim names the claim holding the service tier. Optional.
	TierClaim string

	// ScopesClaim holds the authorization scopes as a space separated
	// string or an array. Default: "scope".
	ScopesClaim string

	// CacheTTL controls how long JWKS keys are cached. Default: 1 hour.
	CacheTTL time.Duration

	// Leeway tolerates clock skew on exp and nbf. Default: 30s.
	Leeway time.Duration

	// HTTPClient fetches the JWKS. Defaults to a client with a 10s timeout.
	HTTPClient *http.Client
}

func (c *Config) applyDefaults() {
	if c.UserClaim == "" {
		c.UserClaim = "sub"
	}
	if c.ScopesClaim == "" {
		c.ScopesClaim = "scope"
	}
	if c.CacheTTL == 0 {
		c.CacheTTL = time.Hour
	}
	if c.Leeway == 0 {
		c.Leeway = 30 * time.Second
	}
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
}

var (
	rsaMethods  = []string{"RS256", "RS384", "RS512"}
	hmacMethods = []string{"HS256", "HS384", "HS512"}
)

// Authenticator validates JWT bearer tokens.
type Authenticator struct {
	config Config
	keys   *jwksCache
	parser *jwtlib.Parser
}

// New creates a JWT authenticator. It fails when no verification key
// source is configured.
func New(cfg Config) (*Authenticator, error) {
	cfg.applyDefaults()
	if cfg.JWKSURL == "" && len(cfg.Secret) == 0 {
		return nil, errors.New("jwt: a JWKS URL or a shared secret is required")
	}

	var methods []string
	if cfg.JWKSURL != "" {
		methods = append(methods, rsaMethods...)
	}
	if len(cfg.Secret) > 0 {
		methods = append(methods, hmacMethods...)
	}

	opts := []jwtlib.ParserOption{
		jwtlib.WithValidMethods(methods),
		jwtlib.WithLeeway(cfg.Leeway),
		jwtlib.WithExpirationRequired(),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwtlib.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwtlib.WithAudience(cfg.Audience))
	}

	a := &Authenticator{config: cfg, parser: jwtlib.NewParser(opts...)}
	if cfg.JWKSURL != "" {
		a.keys = newJWKSCache(cfg.JWKSURL, cfg.HTTPClient, cfg.CacheTTL)
	}
	return a, nil
}

// Authenticate verifies the bearer token and maps its claims to an
// identity. It abstains when no bearer token is presented, so a chain can
// fall through to another scheme.
func (a *Authenticator) Authenticate(ctx context.Context, r *http.Request) auth.AuthResult {
	tokenStr, ok := auth.BearerToken(r)
	if !ok {
		return auth.AuthResult{Decision: auth.Abstain}
	}
	if tokenStr == "" {
		return auth.AuthResult{Decision: auth.No, Err: errors.New("empty bearer token")}
	}

	claims := jwtlib.MapClaims{}
	token, err := a.parser.ParseWithClaims(tokenStr, claims, func(t *jwtlib.Token) (any, error) {
		return a.verificationKey(ctx, t)
	})
	if err != nil || !token.Valid {
		debug.Log("auth", "JWT rejected", "error", err)
		return auth.AuthResult{Decision: auth.No, Err: fmt.Errorf("invalid JWT: %w", err)}
	}

	subject := claimString(claims, a.config.UserClaim)
	if subject == "" {
		return auth.AuthResult{
			Decision: auth.No,
			Err:      fmt.Errorf("JWT missing %q claim", a.config.UserClaim),
		}
	}

	id := &auth.Identity{
		Subject: subject,
		Scopes:  extractScopes(claims, a.config.ScopesClaim),
	}
	if a.config.TierClaim != "" {
		id.ServiceTier = claimString(claims, a.config.TierClaim)
	}
	if iss := claimString(claims, "iss"); iss != "" {
		id.Metadata = map[string]string{"issuer": iss}
	}

	return auth.AuthResult{Decision: auth.Yes, Identity: id}
}

// verificationKey picks the key for the token's signing method. The
// parser has already restricted the method to the configured families.
func (a *Authenticator) verificationKey(ctx context.Context, t *jwtlib.Token) (any, error) {
	switch t.Method.(type) {
	case *jwtlib.SigningMethodHMAC:
		return a.config.Secret, nil
	case *jwtlib.SigningMethodRSA:
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, errors.New("token missing kid header")
		}
		key, err := a.keys.getKey(ctx, kid)
		if err != nil {
			return nil, fmt.Errorf("resolving key %q: %w", kid, err)
		}
		return key, nil
	}
	return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
}

// claimString returns a string claim, or "" when missing or not a string.
func claimString(claims jwtlib.MapClaims, key string) string {
	s, _ := claims[key].(string)
	return s
}

// extractScopes accepts a space separated string or an array of strings.
func extractScopes(claims jwtlib.MapClaims, key string) []string {
	switch v := claims[key].(type) {
	case string:
		if parts := strings.Fields(v); len(parts) > 0 {
			return parts
		}
	case []any:
		var scopes []string
		for _, item := range v {
			if s, ok := item.(string); ok {
				scopes = append(scopes, s)
			}
		}
		return scopes
	}
	return nil
}
