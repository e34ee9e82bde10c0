/*
service.go - searchProducts (spec §4.7): runs the three stages in order,
short-circuiting as soon as a stage yields results.
*/
package search

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/fiskpoint/posengine/ferrors"
)

type Service struct {
	Index    Index
	Embedder Embedder
	Log      zerolog.Logger

	cache *embeddingCache
}

func NewService(index Index, embedder Embedder, log zerolog.Logger) *Service {
	return &Service{Index: index, Embedder: embedder, Log: log, cache: newEmbeddingCache(256)}
}

// SearchProducts implements spec §4.7.
func (s *Service) SearchProducts(ctx context.Context, query string, opts Options) (*Response, error) {
	start := time.Now()
	threshold := opts.LevenshteinThreshold
	if threshold == 0 {
		threshold = DefaultLevenshteinThreshold
	}
	distanceThreshold := opts.VectorDistanceThreshold
	if distanceThreshold == 0 {
		distanceThreshold = DefaultVectorDistanceThreshold
	}

	if !opts.VectorOnly {
		ftsCandidates, err := s.Index.SearchFTS(ctx, query, 50)
		if err != nil {
			return nil, err
		}
		if len(ftsCandidates) > 0 {
			results := make([]Result, len(ftsCandidates))
			for i, c := range ftsCandidates {
				results[i] = Result{ItemID: c.ItemID, ProductName: c.Name, Price: c.Price, SearchType: MethodFTS}
			}
			return &Response{Results: results, SearchMethod: MethodFTS, ExecutionTime: time.Since(start)}, nil
		}
	}

	if !opts.FTSOnly && s.Embedder != nil {
		vec, err := s.embedWithRetry(ctx, query)
		if err != nil {
			s.Log.Warn().Err(err).Str("query", query).Msg("search: embedding request failed, falling through to fuzzy stage")
		} else {
			vecCandidates, err := s.Index.SearchVectors(ctx, vec, 50)
			if err != nil {
				return nil, err
			}
			var results []Result
			for _, c := range vecCandidates {
				dist := cosineDistance(vec, c.Vector)
				if dist > distanceThreshold {
					continue
				}
				similarity := 1 - dist
				results = append(results, Result{ItemID: c.ItemID, ProductName: c.Name, Price: c.Price, Similarity: &similarity, SearchType: MethodVector})
			}
			if len(results) > 0 {
				return &Response{Results: results, SearchMethod: MethodVector, ExecutionTime: time.Since(start)}, nil
			}
		}
	}

	if !opts.FTSOnly && !opts.VectorOnly && len(query) >= 3 {
		all, err := s.Index.AllCandidates(ctx)
		if err != nil {
			return nil, err
		}
		results := fuzzyMatch(query, all, threshold)
		if len(results) > 0 {
			return &Response{Results: results, SearchMethod: MethodFuzzy, ExecutionTime: time.Since(start)}, nil
		}
	}

	return &Response{Results: nil, SearchMethod: MethodNone, ExecutionTime: time.Since(start)}, nil
}

// embedWithRetry wraps the embedding provider call with the same
// backoff/ExternalTimeout policy as the fiscal signer (spec §4.8).
func (s *Service) embedWithRetry(ctx context.Context, query string) ([]float32, error) {
	if v, ok := s.cache.get(query); ok {
		return v, nil
	}

	b := backoff.WithMaxElapsedTime(backoff.NewExponentialBackOff(), 5*time.Second)
	var vec []float32
	operation := func() error {
		v, err := s.Embedder.Embed(ctx, query)
		if err != nil {
			return err
		}
		vec = v
		return nil
	}
	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		return nil, ferrors.New(ferrors.ExternalTimeout, "embedding provider unavailable: %v", err)
	}
	s.cache.put(query, vec)
	return vec, nil
}
