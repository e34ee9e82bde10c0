package recovery_test

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fiskpoint/posengine/fiscal"
	"github.com/fiskpoint/posengine/recovery"
	"github.com/fiskpoint/posengine/store/sqlite"
	"github.com/fiskpoint/posengine/txn"
)

func newTestBootstrap(t *testing.T) (*recovery.Bootstrap, *sqlite.Store) {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	log := zerolog.Nop()
	boot := &recovery.Bootstrap{
		Schema:  store,
		Catalog: sqlite.NewCatalogRepo(store),
		Txn:     sqlite.NewTxnRepo(store),
		Fiscal:  fiscal.NewService(sqlite.NewFiscalRepo(store), &fiscal.NullSigner{}, log, nil),
		Log:     log,
	}
	return boot, store
}

// TestBootstrapRun_EmptyDatabase_CreatesDefaultAdmin covers spec §4.5 step 2:
// a fresh database gets exactly one administrator role and one default admin
// user, forced to change their password.
func TestBootstrapRun_EmptyDatabase_CreatesDefaultAdmin(t *testing.T) {
	boot, store := newTestBootstrap(t)
	ctx := context.Background()

	result, err := boot.Run(ctx)
	require.NoError(t, err)
	assert.True(t, result.AdminCreated)
	assert.Equal(t, recovery.DefaultAdminUsername, result.AdminUsername)

	cat := sqlite.NewCatalogRepo(store)
	roles, err := cat.ListAdminRoles(ctx, nil)
	require.NoError(t, err)
	require.Len(t, roles, 1)

	users, err := cat.ListUsersByRole(ctx, nil, roles[0].ID)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, recovery.DefaultAdminUsername, users[0].Username)
	assert.True(t, users[0].ForcePasswordChange)
}

// TestBootstrapRun_AdminAlreadyExists_DoesNotDuplicate covers idempotency:
// running Bootstrap.Run twice must not create a second admin.
func TestBootstrapRun_AdminAlreadyExists_DoesNotDuplicate(t *testing.T) {
	boot, store := newTestBootstrap(t)
	ctx := context.Background()

	first, err := boot.Run(ctx)
	require.NoError(t, err)
	assert.True(t, first.AdminCreated)

	second, err := boot.Run(ctx)
	require.NoError(t, err)
	assert.False(t, second.AdminCreated)

	cat := sqlite.NewCatalogRepo(store)
	roles, err := cat.ListAdminRoles(ctx, nil)
	require.NoError(t, err)
	users, err := cat.ListUsersByRole(ctx, nil, roles[0].ID)
	require.NoError(t, err)
	require.Len(t, users, 1)
}

// TestBootstrapRun_S6_RecoversStaleActiveAndPendingFiscalOp covers spec §8
// S6: after an unclean shutdown, one transaction was left status=active/
// resolution=none and one fiscal operation was left at TSE_SUCCESS without
// ever being committed to the durable log. Bootstrap.Run must mark the
// transaction active/pending and commit the fiscal operation into
// fiscal_log as a recovered_transaction event.
func TestBootstrapRun_S6_RecoversStaleActiveAndPendingFiscalOp(t *testing.T) {
	boot, store := newTestBootstrap(t)
	ctx := context.Background()
	txRepo := sqlite.NewTxnRepo(store)
	fiscalRepo := sqlite.NewFiscalRepo(store)

	now := time.Now().UTC()
	created, err := txRepo.CreateTransaction(ctx, nil, txn.ActiveTransaction{
		UUID:             "tx-stale-1",
		Status:           txn.StatusActive,
		ResolutionStatus: txn.ResolutionNone,
		UserID:           "cashier-1",
		BusinessDate:     now,
		CreatedAt:        now,
		UpdatedAt:        now,
	})
	require.NoError(t, err)

	signedOp, err := fiscalRepo.InsertPendingOperation(ctx, nil, fiscal.PendingFiscalOperation{
		TransactionUUID: "tx-stale-2",
		RequestPayload:  map[string]any{"op": "finish"},
	})
	require.NoError(t, err)
	require.NoError(t, fiscalRepo.MarkPendingSigned(ctx, nil, signedOp.ID, map[string]any{"signature": "sig", "counter": int64(1)}))

	result, err := boot.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.FiscalCommitted)
	assert.Equal(t, 0, result.FiscalNeedsReview)
	assert.Equal(t, 1, result.StaleMarkedPending)

	recovered, err := txRepo.FindTransaction(ctx, nil, created.ID)
	require.NoError(t, err)
	assert.Equal(t, txn.StatusActive, recovered.Status)
	assert.Equal(t, txn.ResolutionPending, recovered.ResolutionStatus)

	entries, err := fiscalRepo.ListFiscalLogForTransaction(ctx, nil, "tx-stale-2")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, fiscal.EventRecoveredTransaction, entries[0].EventType)
}
