package dispatcher_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fiskpoint/posengine/dispatcher"
)

func TestInMemoryDedupStore_FirstSeenThenDuplicate(t *testing.T) {
	store := dispatcher.NewInMemoryDedupStore(4)
	ctx := context.Background()

	seen, err := store.Seen(ctx, "op-1")
	require.NoError(t, err)
	assert.False(t, seen, "first observation of an operation ID must not be flagged as seen")

	seen, err = store.Seen(ctx, "op-1")
	require.NoError(t, err)
	assert.True(t, seen, "a repeated operation ID within the TTL window must be flagged as seen")
}

func TestInMemoryDedupStore_DistinctIDsIndependent(t *testing.T) {
	store := dispatcher.NewInMemoryDedupStore(4)
	ctx := context.Background()

	seen, err := store.Seen(ctx, "op-a")
	require.NoError(t, err)
	assert.False(t, seen)

	seen, err = store.Seen(ctx, "op-b")
	require.NoError(t, err)
	assert.False(t, seen, "a different operation ID must not be shadowed by another shard's entry")
}

// TestDedupGatedHandler_S5_DuplicateOperationRunsOnce covers spec §8 S5: a
// client retries the same operationId after a dropped ack. The handler
// behind it (e.g. "add item to cart") must execute exactly once across both
// deliveries, exactly as Hub.dispatch gates real command handling.
func TestDedupGatedHandler_S5_DuplicateOperationRunsOnce(t *testing.T) {
	store := dispatcher.NewInMemoryDedupStore(4)
	ctx := context.Background()

	invocations := 0
	handle := func(operationID string) {
		alreadySeen, err := store.Seen(ctx, operationID)
		require.NoError(t, err)
		if alreadySeen {
			return
		}
		invocations++
	}

	handle("op-duplicate")
	handle("op-duplicate")
	handle("op-duplicate")

	assert.Equal(t, 1, invocations, "a retried operationId must only reach the handler once")
}
