/*
signer.go - the external fiscal-signer collaborator interface (spec §6).

The signer is authoritative for signature counter values - this system
never generates them locally. Calls are wrapped with a bounded retry
(cenkalti/backoff/v4, grounded on AKJUS-bsc-erigon) before surfacing
ExternalTimeout (spec §7).
*/
package fiscal

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/fiskpoint/posengine/ferrors"
)

// SignResult is what a successful sign call returns.
type SignResult struct {
	Signature string
	Counter   int64
	TSETimestamp time.Time
}

// Signer is the TSE/fiscal-authority client contract.
type Signer interface {
	Sign(ctx context.Context, payload map[string]any) (SignResult, error)
}

// RetryingSigner wraps a Signer with bounded exponential backoff, converting
// a persistent failure into ferrors.ExternalTimeout.
type RetryingSigner struct {
	Inner   Signer
	MaxWait time.Duration
}

func NewRetryingSigner(inner Signer, maxWait time.Duration) *RetryingSigner {
	if maxWait <= 0 {
		maxWait = 5 * time.Second
	}
	return &RetryingSigner{Inner: inner, MaxWait: maxWait}
}

func (r *RetryingSigner) Sign(ctx context.Context, payload map[string]any) (SignResult, error) {
	bo := backoff.WithContext(backoff.NewExponentialBackOff(
		backoff.WithMaxElapsedTime(r.MaxWait),
	), ctx)

	var result SignResult
	err := backoff.Retry(func() error {
		res, err := r.Inner.Sign(ctx, payload)
		if err != nil {
			return err
		}
		result = res
		return nil
	}, bo)

	if err != nil {
		return SignResult{}, ferrors.New(ferrors.ExternalTimeout, "signer call failed after retries: %v", err)
	}
	return result, nil
}

// NullSigner is a signer test double that always succeeds with a
// monotonically incrementing counter, grounded on the teacher's
// generic/store/memory.go in-memory-double pattern.
type NullSigner struct {
	counter int64
}

func (s *NullSigner) Sign(ctx context.Context, payload map[string]any) (SignResult, error) {
	s.counter++
	return SignResult{
		Signature:    "test-signature",
		Counter:      s.counter,
		TSETimestamp: time.Now().UTC(),
	}, nil
}
