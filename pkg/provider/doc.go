// Package provider defines the vendor-neutral adapter contract and the
// normalization helpers shared by the concrete adapters.
//
// Each adapter (anthropic, openai) speaks its vendor's wire protocol
// internally and exposes only the types in this package and in api:
// [Message] in, [Result] or a channel of [Chunk] out. Vendor stop reasons
// go through a [FinishReasonTable] and vendor failures through
// [ClassifyHTTPError], so the engine never sees vendor vocabulary.
package provider
