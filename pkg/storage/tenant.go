package storage

import "context"

// ownerKey is a private type for the owner context key.
type ownerKey struct{}

// SetOwner scopes storage calls made with ctx to threads owned by userID.
func SetOwner(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, ownerKey{}, userID)
}

// GetOwner returns the owner set on ctx, or "" when calls are unscoped.
func GetOwner(ctx context.Context) string {
	if v, ok := ctx.Value(ownerKey{}).(string); ok {
		return v
	}
	return ""
}

// Visible reports whether a thread owned by ownerID may be seen through ctx.
func Visible(ctx context.Context, ownerID string) bool {
	scope := GetOwner(ctx)
	return scope == "" || scope == ownerID
}
