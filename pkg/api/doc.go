// Package api defines the canonical data model shared by every layer of byok.
//
// Vendor adapters translate into these types, the engine persists them and
// the transport serializes them. The package performs no I/O.
//
// Core types:
//   - [Thread] and [Message]: the persisted conversation
//   - [CompletionRequest], [CompletionSummary], [StreamChunk]: the caller contract
//   - [FinishReason]: the normalized stop vocabulary
//   - [APIError]: structured error carrying a canonical [ErrorCode]
package api
