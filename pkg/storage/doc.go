// Package storage defines the persistence contracts used by byok and the
// helpers shared by every backend: sentinel errors, owner scoping and
// message update rules.
//
// Backends live in subpackages: memory (tests and single-process use),
// postgres (pgx) and sqlite (embedded, single node).
package storage
