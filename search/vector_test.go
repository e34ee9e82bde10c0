package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCosineDistance_IdenticalVectors(t *testing.T) {
	v := []float32{1, 2, 3}
	assert.InDelta(t, 0, cosineDistance(v, v), 1e-9)
}

func TestCosineDistance_OrthogonalVectors(t *testing.T) {
	a := []float32{1, 0}
	b := []float32{0, 1}
	assert.InDelta(t, 1, cosineDistance(a, b), 1e-9)
}

func TestCosineDistance_MismatchedLength(t *testing.T) {
	assert.Equal(t, 1.0, cosineDistance([]float32{1, 2}, []float32{1, 2, 3}))
}

func TestEmbeddingCache_PutGet(t *testing.T) {
	c := newEmbeddingCache(4)
	_, ok := c.get("coffee")
	assert.False(t, ok)

	c.put("coffee", []float32{1, 2, 3})
	got, ok := c.get("coffee")
	assert.True(t, ok)
	assert.Equal(t, []float32{1, 2, 3}, got)
}
