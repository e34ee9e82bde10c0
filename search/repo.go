package search

import "context"

// Candidate is an item row as read back from storage, before any stage's
// scoring has been applied. Exported so concrete Index implementations
// outside this package (store/sqlite) can construct it.
type Candidate struct {
	ItemID string
	Name   string
	Price  string
}

// Index is the storage-side surface search.Service drives. Stage 1 hits the
// FTS5 virtual table; stage 2 hits the vector side-table; stage 3 scans the
// same candidate set stage 1 would have searched.
type Index interface {
	SearchFTS(ctx context.Context, query string, limit int) ([]Candidate, error)
	SearchVectors(ctx context.Context, vector []float32, limit int) ([]VectorCandidate, error)
	AllCandidates(ctx context.Context) ([]Candidate, error)
}

type VectorCandidate struct {
	Candidate
	Vector []float32
}
