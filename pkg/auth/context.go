package auth

import "context"

type identityKey struct{}

// SetIdentity stores the authenticated identity in the context.
func SetIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFromContext retrieves the authenticated identity, or nil.
func IdentityFromContext(ctx context.Context) *Identity {
	if v, ok := ctx.Value(identityKey{}).(*Identity); ok {
		return v
	}
	return nil
}

// UserID returns the subject of the identity in ctx, falling back to
// AnonymousSubject.
func UserID(ctx context.Context) string {
	if id := IdentityFromContext(ctx); id != nil && id.Subject != "" {
		return id.Subject
	}
	return AnonymousSubject
}
