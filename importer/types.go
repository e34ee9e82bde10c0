/*
Package importer implements the Import/Embedding Pipeline (C8):
importFromOopMdf's atomic catalog replace plus item embedding population.

Grounded on store/sqlite/sqlite.go's schema/migration pattern (DELETE in
referential order, reset identity sequences) and C2's SHA-256 reuse rule
(spec §4.8 mandates the exact hash, so crypto/sha256 is used directly
rather than substituted with a third-party hash library).
*/
package importer

import "context"

// SourceCompany is the inbound document shape importFromOopMdf consumes
// (spec §4.8). Field names mirror the source format's own identifiers,
// which importFromOopMdf remaps to storage identifiers as it inserts.
type SourceCompany struct {
	SourceID string
	Name     string
	Branches []SourceBranch
}

type SourceBranch struct {
	SourceID   string
	Name       string
	POSDevices []SourcePOSDevice
}

type SourcePOSDevice struct {
	SourceID   string
	Name       string
	Categories []SourceCategory
}

type SourceCategory struct {
	SourceID     string
	DisplayName  map[string]string
	CategoryType string
	Items        []SourceItem
}

type SourceItem struct {
	SourceID      string
	DisplayName   map[string]string
	PriceCents    string
	Description   string
	EmbeddingHash string // SHA-256 of the semantic string, if already computed
}

// ItemError records a per-item failure without aborting the rest of the
// import (spec §4.8 step 4).
type ItemError struct {
	ItemSourceID string
	Err          error
}

// Result summarizes one importFromOopMdf call.
type Result struct {
	CompaniesImported int
	ItemsImported     int
	EmbeddingsReused  int
	EmbeddingsCreated int
	Errors            []ItemError
}

// EmbeddingProvider computes a 768-dim embedding for arbitrary text (shared
// contract with search.Embedder, kept as a separate interface here since the
// two packages must not import each other).
type EmbeddingProvider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}
