package search

import (
	"context"

	"github.com/cenkalti/backoff/v4"

	"github.com/fiskpoint/posengine/ferrors"
)

// NullEmbedder stands in for the out-of-scope embedding provider (spec
// §4.7 step 2/§4.8): every call fails with ExternalTimeout, which pushes
// searchProducts straight past the vector stage to fuzzy matching, and
// importFromOopMdf's per-item embedding step into its non-aborting error
// list (spec §4.8 step 4). Also satisfies importer.EmbeddingProvider,
// which shares this method signature.
//
// The failure is wrapped in backoff.Permanent: a provider that is simply
// unconfigured is not a transient fault, and embedWithRetry's caller should
// fall through to the next search/import stage immediately rather than
// burning its 5s retry budget on a call that can never succeed.
type NullEmbedder struct{}

func (NullEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return nil, backoff.Permanent(ferrors.New(ferrors.ExternalTimeout, "no embedding provider configured"))
}
