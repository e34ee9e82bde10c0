package fiscal_test

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fiskpoint/posengine/fiscal"
	"github.com/fiskpoint/posengine/store/sqlite"
)

func newTestService(t *testing.T, signer fiscal.Signer) (*fiscal.Service, *sqlite.Store) {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	svc := fiscal.NewService(sqlite.NewFiscalRepo(store), signer, zerolog.Nop(), nil)
	return svc, store
}

// alwaysFailSigner is a test double for the sign-failure path, grounded on
// the teacher's generic/store/memory.go in-memory-double pattern.
type alwaysFailSigner struct{ err error }

func (s alwaysFailSigner) Sign(ctx context.Context, payload map[string]any) (fiscal.SignResult, error) {
	return fiscal.SignResult{}, s.err
}

func TestLogFiscalEvent_Success_AppendsLogAndCommits(t *testing.T) {
	svc, _ := newTestService(t, &fiscal.NullSigner{})
	ctx := context.Background()

	res := svc.LogFiscalEvent(ctx, "tx-uuid-1", fiscal.EventStartTransaction, nil, map[string]any{"foo": "bar"})
	require.True(t, res.Success)
	require.NotNil(t, res.Log)
	assert.Equal(t, fiscal.EventStartTransaction, res.Log.EventType)
	assert.NotNil(t, res.Log.Signature)

	entries, err := svc.ListOperationalEvents(ctx, "tx-uuid-1")
	require.NoError(t, err)
	assert.Empty(t, entries, "fiscal events are not operational events")
}

func TestLogFiscalEvent_SignerFails_NoLogAppended(t *testing.T) {
	svc, store := newTestService(t, alwaysFailSigner{err: assertErr})
	ctx := context.Background()

	res := svc.LogFiscalEvent(ctx, "tx-uuid-2", fiscal.EventStartTransaction, nil, map[string]any{})
	assert.False(t, res.Success)
	assert.Nil(t, res.Log)

	repo := sqlite.NewFiscalRepo(store)
	entries, err := repo.ListFiscalLogForTransaction(ctx, nil, "tx-uuid-2")
	require.NoError(t, err)
	assert.Empty(t, entries, "a failed sign must never produce a fiscal_log row")
}

func TestLogOperationalEvent_ListedInOrder(t *testing.T) {
	svc, _ := newTestService(t, &fiscal.NullSigner{})
	ctx := context.Background()

	require.NoError(t, svc.LogOperationalEvent(ctx, "tx-uuid-3", fiscal.EventPartialStorno, nil, map[string]any{"seq": 1}))
	require.NoError(t, svc.LogOperationalEvent(ctx, "tx-uuid-3", fiscal.EventPriceOverride, nil, map[string]any{"seq": 2}))

	events, err := svc.ListOperationalEvents(ctx, "tx-uuid-3")
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, fiscal.EventPartialStorno, events[0].EventType)
	assert.Equal(t, fiscal.EventPriceOverride, events[1].EventType)
}

func TestRecoverPendingOperations_CommitsTSESuccessAndFlagsRest(t *testing.T) {
	// GIVEN: one TSE_SUCCESS pending op and one PENDING pending op
	// WHEN: RecoverPendingOperations runs (spec §4.2 Recovery contract / §8 S6)
	// THEN: the TSE_SUCCESS row is committed into fiscal_log with
	// event_type=recovered_transaction; the PENDING row is left for review
	svc, store := newTestService(t, &fiscal.NullSigner{})
	ctx := context.Background()
	repo := sqlite.NewFiscalRepo(store)

	signedOp, err := repo.InsertPendingOperation(ctx, nil, fiscal.PendingFiscalOperation{
		TransactionUUID: "tx-recover-1",
		RequestPayload:  map[string]any{"a": 1},
	})
	require.NoError(t, err)
	require.NoError(t, repo.MarkPendingSigned(ctx, nil, signedOp.ID, map[string]any{"signature": "sig-1", "counter": int64(1)}))

	_, err = repo.InsertPendingOperation(ctx, nil, fiscal.PendingFiscalOperation{
		TransactionUUID: "tx-recover-2",
		RequestPayload:  map[string]any{"b": 2},
	})
	require.NoError(t, err)

	committed, needsReview, err := svc.RecoverPendingOperations(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, committed)
	assert.Equal(t, 1, needsReview)

	logEntries, err := repo.ListFiscalLogForTransaction(ctx, nil, "tx-recover-1")
	require.NoError(t, err)
	require.Len(t, logEntries, 1)
	assert.Equal(t, fiscal.EventRecoveredTransaction, logEntries[0].EventType)

	remaining, err := repo.ListPendingByStatus(ctx, nil, fiscal.PendingStatusTSESuccess)
	require.NoError(t, err)
	assert.Empty(t, remaining, "MarkPendingCommitted deletes the staging row once the log is durable")

	stillPending, err := repo.ListPendingByStatus(ctx, nil, fiscal.PendingStatusPending)
	require.NoError(t, err)
	assert.Len(t, stillPending, 1)
}

var assertErr = &stubErr{"signer unavailable"}

type stubErr struct{ msg string }

func (e *stubErr) Error() string { return e.msg }
