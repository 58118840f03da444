// Package noop provides an authenticator that admits every request as the
// anonymous user. Used when auth.type is "none".
package noop

import (
	"context"
	"net/http"

	"github.com/rhuss/byok/pkg/auth"
)

// Authenticator always votes Yes with the anonymous identity.
type Authenticator struct{}

func (Authenticator) Authenticate(_ context.Context, _ *http.Request) auth.AuthResult {
	return auth.AuthResult{Decision: auth.Yes, Identity: auth.Anonymous()}
}
