// Package auth identifies the caller of the byok HTTP API.
//
// Authenticators vote Yes (identity found), No (credentials invalid) or
// Abstain (not their scheme). An AuthChain runs them in order and falls back
// to a default decision when every one abstains. The identity subject is
// the user id that owns threads and stored vendor keys, so the middleware
// also scopes storage to it and applies per-subject rate limits.
package auth
