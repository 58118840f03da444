package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/rhuss/byok/pkg/debug"
)

// AuthDecision represents the three possible outcomes of authentication.
type AuthDecision int

const (
	// Yes means credentials are valid. The chain stops and the identity is used.
	Yes AuthDecision = iota

	// No means credentials are present but invalid. The chain stops and the
	// request is rejected.
	No

	// Abstain means this authenticator cannot handle the credentials type.
	// The chain continues to the next authenticator.
	Abstain
)

func (d AuthDecision) String() string {
	switch d {
	case Yes:
		return "yes"
	case No:
		return "no"
	case Abstain:
		return "abstain"
	}
	return "invalid"
}

// AnonymousSubject is the user id of callers when authentication is off.
const AnonymousSubject = "anonymous"

// DefaultTier is the service tier of identities that do not carry one.
const DefaultTier = "default"

// AuthResult carries the outcome of an authentication attempt.
type AuthResult struct {
	Decision AuthDecision
	Identity *Identity // populated only when Decision == Yes
	Err      error     // populated only when Decision == No
}

// Identity represents an authenticated caller.
type Identity struct {
	// Subject is the caller's user id. Threads and stored vendor keys are
	// owned by it.
	Subject string

	// ServiceTier selects the rate limit bucket.
	ServiceTier string

	// Scopes lists the authorization scopes granted.
	Scopes []string

	// Metadata carries authenticator specific claims.
	Metadata map[string]string
}

// Tier returns the service tier, or DefaultTier when unset.
func (id *Identity) Tier() string {
	if id == nil || id.ServiceTier == "" {
		return DefaultTier
	}
	return id.ServiceTier
}

// Anonymous returns the identity used when every authenticator abstains
// and the chain defaults to Yes.
func Anonymous() *Identity {
	return &Identity{Subject: AnonymousSubject, ServiceTier: DefaultTier}
}

// Authenticator examines request credentials and returns a three-outcome vote.
type Authenticator interface {
	Authenticate(ctx context.Context, r *http.Request) AuthResult
}

// Sentinel errors.
var (
	ErrUnauthenticated = errors.New("authentication required")
	ErrTooManyRequests = errors.New("rate limit exceeded")
)

// AuthChain evaluates authenticators in order using three-outcome voting.
type AuthChain struct {
	// Authenticators are evaluated left to right.
	Authenticators []Authenticator

	// DefaultDecision is used when all authenticators abstain. Yes admits
	// the caller as the anonymous user.
	DefaultDecision AuthDecision
}

// Authenticate runs the chain. Stops on the first Yes or No.
// If all abstain, returns the default decision.
func (c *AuthChain) Authenticate(ctx context.Context, r *http.Request) AuthResult {
	for i, authn := range c.Authenticators {
		result := authn.Authenticate(ctx, r)
		if result.Decision != Abstain {
			debug.Log("auth", "authenticator decided", "index", i, "decision", result.Decision)
			return result
		}
	}

	if c.DefaultDecision == Yes {
		return AuthResult{Decision: Yes, Identity: Anonymous()}
	}
	return AuthResult{Decision: No, Err: ErrUnauthenticated}
}

// BearerToken returns the token of a Bearer Authorization header. ok is
// false when the header is absent or uses another scheme.
func BearerToken(r *http.Request) (token string, ok bool) {
	scheme, token, found := strings.Cut(r.Header.Get("Authorization"), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	return strings.TrimSpace(token), true
}
