// Package http serves the byok API on a chi router: providers, credentials,
// threads and completions (JSON or server-sent events), plus health and
// metrics endpoints. Server adds graceful shutdown.
package http
