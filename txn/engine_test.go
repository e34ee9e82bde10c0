package txn_test

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
	"github.com/fiskpoint/posengine/txn"
)

// =============================================================================
// TEST SETUP
// =============================================================================

type testRig struct {
	engine *txn.Engine
	store  *sqlite.Store
}

func newTestEngine(t *testing.T) *testRig {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	log := zerolog.Nop()
	fiscalSvc := fiscal.NewService(sqlite.NewFiscalRepo(store), &fiscal.NullSigner{}, log, nil)
	taxTable := txn.DefaultTaxTable(log)
	engine := txn.NewEngine(sqlite.NewTxnRepo(store), sqlite.NewCatalogRepo(store), fiscalSvc, taxTable, log, nil)
	return &testRig{engine: engine, store: store}
}

// seedItem creates a full company->branch->device->category->item chain and
// returns the item ID, priced as given in the named category type.
func (rig *testRig) seedItem(t *testing.T, name string, priceCents string, categoryType catalog.CategoryType) catalog.ItemID {
	ctx := context.Background()
	cat := sqlite.NewCatalogRepo(rig.store)
	now := time.Now().UTC()

	company, err := cat.CreateCompany(ctx, nil, catalog.Company{Name: "Test Co", AuditRecord: catalog.AuditRecord{CreatedAt: now, UpdatedAt: now}})
	require.NoError(t, err)
	branch, err := cat.CreateBranch(ctx, nil, catalog.Branch{CompanyID: company.ID, Name: "Main", AuditRecord: catalog.AuditRecord{CreatedAt: now, UpdatedAt: now}})
	require.NoError(t, err)
	device, err := cat.CreatePOSDevice(ctx, nil, catalog.POSDevice{BranchID: branch.ID, Name: "Till 1", AuditRecord: catalog.AuditRecord{CreatedAt: now, UpdatedAt: now}})
	require.NoError(t, err)
	category, err := cat.CreateCategory(ctx, nil, catalog.Category{
		POSDeviceID: device.ID, DisplayName: catalog.DisplayNames{"en": string(categoryType)}, CategoryType: categoryType,
		AuditRecord: catalog.AuditRecord{CreatedAt: now, UpdatedAt: now},
	})
	require.NoError(t, err)
	item, err := cat.CreateItem(ctx, nil, catalog.Item{
		POSDeviceID: device.ID, CategoryID: category.ID, DisplayName: catalog.DisplayNames{"en": name}, PriceCents: priceCents,
		AuditRecord: catalog.AuditRecord{CreatedAt: now, UpdatedAt: now},
	})
	require.NoError(t, err)
	return item.ID
}

func (rig *testRig) newActiveTransaction(t *testing.T) *txn.ActiveTransaction {
	tx, err := rig.engine.FindOrCreateActiveTransaction(context.Background(), txn.FindOrCreateCriteria{}, "cashier-1")
	require.NoError(t, err)
	return tx
}

func TestFindOrCreateActiveTransaction_CreatesWithStartEvent(t *testing.T) {
	rig := newTestEngine(t)
	tx := rig.newActiveTransaction(t)

	require.Equal(t, txn.StatusActive, tx.Status)
	require.True(t, tx.TotalAmount.IsZero())

	entries, err := sqlite.NewFiscalRepo(rig.store).ListFiscalLogForTransaction(context.Background(), nil, tx.UUID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, fiscal.EventStartTransaction, entries[0].EventType)
}

func TestFindOrCreateActiveTransaction_ReturnsExistingActive(t *testing.T) {
	rig := newTestEngine(t)
	first := rig.newActiveTransaction(t)

	second, err := rig.engine.FindOrCreateActiveTransaction(context.Background(), txn.FindOrCreateCriteria{TransactionID: &first.ID}, "cashier-1")
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)
}

func TestAddItemToTransaction_UpdatesTotals(t *testing.T) {
	rig := newTestEngine(t)
	tx := rig.newActiveTransaction(t)
	itemID := rig.seedItem(t, "Coffee", "3.00", catalog.CategoryDrink)

	line, err := rig.engine.AddItemToTransaction(context.Background(), tx.ID, string(itemID), money.NewFromInt(2), "cashier-1", "")
	require.NoError(t, err)
	require.Equal(t, "6.00", line.TotalPrice.StringFixed2())

	updated, err := sqlite.NewTxnRepo(rig.store).FindTransaction(context.Background(), nil, tx.ID)
	require.NoError(t, err)
	require.Equal(t, "6.00", updated.TotalAmount.StringFixed2())
}

func TestParkAndActivateTransaction(t *testing.T) {
	rig := newTestEngine(t)
	tx := rig.newActiveTransaction(t)

	parked, err := rig.engine.ParkTransaction(context.Background(), tx.ID, "table-7", "cashier-1", true)
	require.NoError(t, err)
	require.Equal(t, txn.StatusParked, parked.Status)
	require.Equal(t, "table-7", parked.Metadata["table"])

	inUse, err := sqlite.NewTxnRepo(rig.store).IsTableInUse(context.Background(), nil, "table-7", nil)
	require.NoError(t, err)
	require.True(t, inUse)

	activated, err := rig.engine.ActivateTransaction(context.Background(), tx.ID, "cashier-1", true)
	require.NoError(t, err)
	require.Equal(t, txn.StatusActive, activated.Status)
}
