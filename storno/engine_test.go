package storno_test

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/fiskpoint/posengine/catalog"
	"github.com/fiskpoint/posengine/fiscal"
	"github.com/fiskpoint/posengine/money"
	"github.com/fiskpoint/posengine/store/sqlite"
	"github.com/fiskpoint/posengine/storno"
	"github.com/fiskpoint/posengine/txn"
)

type testRig struct {
	engine  *storno.Engine
	store   *sqlite.Store
	catalog *sqlite.CatalogRepo
	fiscal  *fiscal.Service
}

func newTestEngine(t *testing.T) *testRig {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	log := zerolog.Nop()
	catRepo := sqlite.NewCatalogRepo(store)
	txnRepo := sqlite.NewTxnRepo(store)
	fiscalSvc := fiscal.NewService(sqlite.NewFiscalRepo(store), &fiscal.NullSigner{}, log, nil)
	engine := storno.NewEngine(sqlite.NewStornoRepo(store), catRepo, txnRepo, fiscalSvc, log)
	return &testRig{engine: engine, store: store, catalog: catRepo, fiscal: fiscalSvc}
}

// seedUser creates a role/user pair with the given storno policy and trust
// score, returning the user ID.
func (rig *testRig) seedUser(t *testing.T, dailyLimit, emergencyLimit, usedToday string, trust float64, canApprove bool) catalog.UserID {
	ctx := context.Background()
	now := time.Now().UTC()

	role, err := rig.catalog.CreateRole(ctx, nil, catalog.Role{
		Name:              "cashier",
		CanApproveChanges: canApprove,
	})
	require.NoError(t, err)

	user, err := rig.catalog.CreateUser(ctx, nil, catalog.User{
		Username:             "u" + string(role.ID),
		RoleID:               role.ID,
		StornoDailyLimit:     dailyLimit,
		StornoEmergencyLimit: emergencyLimit,
		StornoUsedToday:      usedToday,
		TrustScore:           trust,
		IsActive:             true,
		AuditRecord:          catalog.AuditRecord{CreatedAt: now, UpdatedAt: now},
	})
	require.NoError(t, err)
	return user.ID
}

func (rig *testRig) newTransaction(t *testing.T, userID catalog.UserID) txn.TransactionID {
	ctx := context.Background()
	txEngine := txn.NewEngine(sqlite.NewTxnRepo(rig.store), rig.catalog, rig.fiscal, txn.DefaultTaxTable(zerolog.Nop()), zerolog.Nop(), nil)
	tx, err := txEngine.FindOrCreateActiveTransaction(ctx, txn.FindOrCreateCriteria{}, string(userID))
	require.NoError(t, err)
	return tx.ID
}

// TestPerformStorno_S4_ExceedsDailyLimit_GoesPending covers spec §8 S4:
// daily_limit=50, used=40, trust=50; a 20.00 storno exceeds the 10.00
// available credit and must queue for manager review rather than auto-apply.
func TestPerformStorno_S4_ExceedsDailyLimit_GoesPending(t *testing.T) {
	rig := newTestEngine(t)
	ctx := context.Background()
	userID := rig.seedUser(t, "50.00", "25.00", "40.00", 50, false)
	txID := rig.newTransaction(t, userID)

	log, err := rig.engine.PerformStorno(ctx, userID, txID, money.New(20.00), "customer complaint", false)
	require.NoError(t, err)
	require.Equal(t, storno.StatusPending, log.Status)
	require.True(t, log.CreditUsed.IsZero())

	pending, err := rig.engine.ListPendingStornos(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, log.ID, pending[0].ID)

	changes, err := rig.engine.ListPendingChanges(ctx)
	require.NoError(t, err)
	require.Len(t, changes, 1)
	require.Equal(t, storno.PriorityHigh, changes[0].Priority)
	require.Equal(t, storno.ChangeStorno, changes[0].Kind)

	user, err := rig.catalog.FindUser(ctx, nil, userID)
	require.NoError(t, err)
	require.Equal(t, "40.00", user.StornoUsedToday, "used_today must be untouched while the storno is pending")
	require.Equal(t, float64(50), user.TrustScore)
}

// TestPerformStorno_S4_ApproveStorno_UpdatesTrustAndCredit continues S4:
// once a manager approves the pending storno, used_today and trust update
// and a storno_approved fiscal event is appended.
func TestPerformStorno_S4_ApproveStorno_UpdatesTrustAndCredit(t *testing.T) {
	rig := newTestEngine(t)
	ctx := context.Background()
	userID := rig.seedUser(t, "50.00", "25.00", "40.00", 50, false)
	managerID := rig.seedUser(t, "50.00", "25.00", "0.00", 50, true)
	txID := rig.newTransaction(t, userID)

	log, err := rig.engine.PerformStorno(ctx, userID, txID, money.New(20.00), "customer complaint", false)
	require.NoError(t, err)
	require.Equal(t, storno.StatusPending, log.Status)

	approved, err := rig.engine.ApproveStorno(ctx, managerID, log.ID, "ok, verified")
	require.NoError(t, err)
	require.Equal(t, storno.StatusApproved, approved.Status)
	require.Equal(t, "20.00", approved.CreditUsed.StringFixed2())

	user, err := rig.catalog.FindUser(ctx, nil, userID)
	require.NoError(t, err)
	require.Equal(t, "60", user.StornoUsedToday)
	require.Equal(t, 50.5, user.TrustScore)

	changes, err := rig.engine.ListPendingChanges(ctx)
	require.NoError(t, err)
	require.Empty(t, changes, "ListPendingChanges only returns rows still awaiting review")

	tx, err := sqlite.NewTxnRepo(rig.store).FindTransaction(ctx, nil, txID)
	require.NoError(t, err)
	entries, err := sqlite.NewFiscalRepo(rig.store).ListFiscalLogForTransaction(ctx, nil, tx.UUID)
	require.NoError(t, err)
	var sawApproved bool
	for _, e := range entries {
		if e.EventType == fiscal.EventStornoApproved {
			sawApproved = true
		}
	}
	require.True(t, sawApproved)
}

// TestPerformStorno_WithinLimit_AutomaticallyApplied covers the automatic
// path: amount within the available daily credit applies immediately with
// no manager review.
func TestPerformStorno_WithinLimit_AutomaticallyApplied(t *testing.T) {
	rig := newTestEngine(t)
	ctx := context.Background()
	userID := rig.seedUser(t, "50.00", "25.00", "40.00", 50, false)
	txID := rig.newTransaction(t, userID)

	log, err := rig.engine.PerformStorno(ctx, userID, txID, money.New(5.00), "price mistake", false)
	require.NoError(t, err)
	require.Equal(t, storno.StatusAutomatic, log.Status)
	require.Equal(t, "5.00", log.CreditUsed.StringFixed2())

	pending, err := rig.engine.ListPendingStornos(ctx)
	require.NoError(t, err)
	require.Empty(t, pending)

	user, err := rig.catalog.FindUser(ctx, nil, userID)
	require.NoError(t, err)
	require.Equal(t, "45", user.StornoUsedToday)
	require.Equal(t, float64(51), user.TrustScore)
}

// TestApproveStorno_RequiresApproverRole covers the approval-gate invariant:
// a manager lacking CanApproveChanges must be rejected outright.
func TestApproveStorno_RequiresApproverRole(t *testing.T) {
	rig := newTestEngine(t)
	ctx := context.Background()
	userID := rig.seedUser(t, "50.00", "25.00", "40.00", 50, false)
	nonManagerID := rig.seedUser(t, "50.00", "25.00", "0.00", 50, false)
	txID := rig.newTransaction(t, userID)

	log, err := rig.engine.PerformStorno(ctx, userID, txID, money.New(20.00), "test", false)
	require.NoError(t, err)

	_, err = rig.engine.ApproveStorno(ctx, nonManagerID, log.ID, "")
	require.Error(t, err)
}
