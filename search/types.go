/*
Package search implements Hybrid Search (C7): a three-stage
short-circuiting algorithm (full-text -> vector -> fuzzy) over the catalog.

Grounded on: no full-text/vector/fuzzy library appears in any complete
retrieval-pack repo, so this package leans on what the teacher's own
dependency (mattn/go-sqlite3) already provides (FTS5, via the fts5 build
tag) for stage 1, and promotes the indirect sahilm/fuzzy dependency (pulled
in transitively by msto63-mDW) to direct use for stage 3. Stage 2's cosine
similarity is ~10 lines of arithmetic with no library home anywhere in the
pack; implemented directly as a documented stdlib exception.
*/
package search

import (
	"context"
	"time"
)

// Method is the stage that produced a result, surfaced as
// metadata.searchMethod (spec §4.7).
type Method string

const (
	MethodFTS    Method = "fts"
	MethodVector Method = "vector"
	MethodFuzzy  Method = "fuzzy"
	MethodNone   Method = "none"
)

// Options configures which stages run (spec §4.7's searchProducts).
type Options struct {
	FTSOnly                 bool
	VectorOnly              bool
	LevenshteinThreshold    int     // default 2
	VectorDistanceThreshold float64 // default 0.6 (cosine distance, lower is closer)
}

// Result is one matched item (spec §4.7's returned tuple).
type Result struct {
	ItemID             string
	ProductName        string
	Price              string
	Similarity         *float64 // set for vector-stage results
	LevenshteinDistance *int    // set for fuzzy-stage results
	SearchType          Method
}

// Response wraps Results with the search metadata spec §4.7 requires.
type Response struct {
	Results       []Result
	SearchMethod  Method
	ExecutionTime time.Duration
}

// Embedder computes a 768-dim embedding vector for arbitrary text, backed by
// the external embedding provider (spec §4.7 step 2).
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}
