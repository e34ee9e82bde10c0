/*
vector.go - stage 2 of spec §4.7: 768-dim embedding cosine similarity.

No repo in the retrieval pack implements or imports a vector-similarity
library; this is the one hand-rolled piece of the search pipeline,
documented per the stdlib-justification rule. Query embeddings are cached
by a hash of the query text via hashicorp/golang-lru/v2 so repeated queries
don't re-hit the embedding provider.
*/
package search

import (
	"crypto/sha256"
	"encoding/hex"
	"math"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultVectorDistanceThreshold is spec §4.7's default acceptance
// threshold for cosine distance (lower is closer).
const DefaultVectorDistanceThreshold = 0.6

// embeddingCache memoizes query -> embedding so identical repeated queries
// never re-hit the external embedding provider.
type embeddingCache struct {
	cache *lru.Cache[string, []float32]
}

func newEmbeddingCache(size int) *embeddingCache {
	c, _ := lru.New[string, []float32](size)
	return &embeddingCache{cache: c}
}

func (e *embeddingCache) get(query string) ([]float32, bool) {
	return e.cache.Get(cacheKey(query))
}

func (e *embeddingCache) put(query string, vec []float32) {
	e.cache.Add(cacheKey(query), vec)
}

func cacheKey(query string) string {
	sum := sha256.Sum256([]byte(query))
	return hex.EncodeToString(sum[:])
}

// cosineDistance returns 1 - cosine_similarity(a, b), so 0 means identical
// direction and larger values mean less similar.
func cosineDistance(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 1
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 1
	}
	similarity := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	return 1 - similarity
}
