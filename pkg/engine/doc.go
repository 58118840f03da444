// Package engine implements the completion orchestrator. It resolves the
// caller's vendor credential, builds the vendor context from the stored
// thread, runs a single-shot or streamed completion through a provider
// adapter, and drives the assistant message through its lifecycle
// (pending, streaming, complete or error) while persisting progress.
//
// Collaborators are consumed through small interfaces so the engine never
// depends on a concrete store, credential manager or adapter.
package engine
