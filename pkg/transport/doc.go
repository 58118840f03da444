// Package transport holds the pieces of the byok HTTP surface that do not
// depend on a router: the service interfaces the handlers call, the
// middleware chain (panic recovery, request ids, structured request logs),
// mapping of canonical error codes to HTTP statuses, and the registry of
// in-flight streams that a DELETE can cancel.
//
// The routes themselves live in the http subpackage.
package transport
