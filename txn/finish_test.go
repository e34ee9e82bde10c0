package txn_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fiskpoint/posengine/catalog"
	"github.com/fiskpoint/posengine/money"
	"github.com/fiskpoint/posengine/store/sqlite"
	"github.com/fiskpoint/posengine/txn"
)

// TestFinishTransaction_S1_HappyPath covers spec §8 S1: 2x Coffee (3.00,
// drink -> 19%), finished with an exact cash payment.
func TestFinishTransaction_S1_HappyPath(t *testing.T) {
	rig := newTestEngine(t)
	ctx := context.Background()
	tx := rig.newActiveTransaction(t)
	coffee := rig.seedItem(t, "Coffee", "3.00", catalog.CategoryDrink)

	_, err := rig.engine.AddItemToTransaction(ctx, tx.ID, string(coffee), money.NewFromInt(2), "cashier-1", "")
	require.NoError(t, err)

	result, err := rig.engine.FinishTransaction(ctx, tx.ID, txn.PaymentData{Type: "CASH", Amount: money.New(6.00)}, "cashier-1")
	require.NoError(t, err)
	require.Empty(t, result.Warning)

	expectedTax, err := money.NewFromString("0.957983")
	require.NoError(t, err)

	require.Equal(t, "6.00", result.Transaction.TotalAmount.StringFixed2())
	require.Equal(t, "0.96", result.Transaction.TaxAmount.StringFixed2())
	require.True(t, result.Transaction.TaxAmount.Decimal.Round(6).Equal(expectedTax.Decimal))

	require.Len(t, result.Items, 1)
	require.Equal(t, "2", result.Items[0].Quantity.String())

	fiscalRepo := sqlite.NewFiscalRepo(rig.store)
	entries, err := fiscalRepo.ListFiscalLogForTransaction(ctx, nil, tx.UUID)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	require.Equal(t, "startTransaction", string(entries[0].EventType))
	require.Equal(t, "updateTransaction", string(entries[1].EventType))
	require.Equal(t, "finishTransaction", string(entries[2].EventType))

	processData, _ := entries[2].Payload["process_data"].(string)
	require.Equal(t, "Beleg^6.00_0.00_0.00_0.00_0.00^6.00:CASH", processData)
}

// TestFinishTransaction_S2_PartialStornoReconstruction covers spec §8 S2:
// 3x Coffee reduced to 1x live, finish must restore the original line and
// append a signed STORNO child.
func TestFinishTransaction_S2_PartialStornoReconstruction(t *testing.T) {
	rig := newTestEngine(t)
	ctx := context.Background()
	tx := rig.newActiveTransaction(t)
	coffee := rig.seedItem(t, "Coffee", "3.00", catalog.CategoryDrink)

	line, err := rig.engine.AddItemToTransaction(ctx, tx.ID, string(coffee), money.NewFromInt(3), "cashier-1", "")
	require.NoError(t, err)
	require.Equal(t, "9.00", line.TotalPrice.StringFixed2())

	updated, err := rig.engine.UpdateItemQuantityInTransaction(ctx, tx.ID, line.ID, money.NewFromInt(1), "cashier-1")
	require.NoError(t, err)
	require.Equal(t, "3.00", updated.TotalPrice.StringFixed2())

	result, err := rig.engine.FinishTransaction(ctx, tx.ID, txn.PaymentData{Type: "CASH", Amount: money.New(3.00)}, "cashier-1")
	require.NoError(t, err)

	require.Equal(t, "3.00", result.Transaction.TotalAmount.StringFixed2())
	require.Len(t, result.Items, 2)

	original := result.Items[0]
	require.Equal(t, line.ID, original.ID)
	require.Equal(t, "3", original.Quantity.String())
	require.Equal(t, "3.00", original.UnitPrice.StringFixed2())
	require.Equal(t, "9.00", original.TotalPrice.StringFixed2())

	child := result.Items[1]
	require.NotNil(t, child.ParentTransactionItemID)
	require.Equal(t, original.ID, *child.ParentTransactionItemID)
	require.Equal(t, "-2", child.Quantity.String())
	require.Equal(t, "3.00", child.UnitPrice.StringFixed2())
	require.Equal(t, "-6.00", child.TotalPrice.StringFixed2())
	require.Equal(t, txn.NoteStorno, child.Notes)
}

// TestFinishTransaction_S3_PriceOverrideDiscount covers spec §8 S3: 1x
// Widget (10.00, food -> 7%) discounted to 8.00, reconstructed as a signed
// DISCOUNT child against the catalog-original price.
func TestFinishTransaction_S3_PriceOverrideDiscount(t *testing.T) {
	rig := newTestEngine(t)
	ctx := context.Background()
	tx := rig.newActiveTransaction(t)
	widget := rig.seedItem(t, "Widget", "10.00", catalog.CategoryFood)

	line, err := rig.engine.AddItemToTransaction(ctx, tx.ID, string(widget), money.NewFromInt(1), "cashier-1", "")
	require.NoError(t, err)

	_, err = rig.engine.UpdateItemPriceInTransaction(ctx, tx.ID, line.ID, money.New(8.00), "cashier-1", false)
	require.NoError(t, err)

	result, err := rig.engine.FinishTransaction(ctx, tx.ID, txn.PaymentData{Type: "CASH", Amount: money.New(8.00)}, "cashier-1")
	require.NoError(t, err)

	require.Equal(t, "8.00", result.Transaction.TotalAmount.StringFixed2())
	require.Len(t, result.Items, 2)

	original := result.Items[0]
	require.Equal(t, "10.00", original.UnitPrice.StringFixed2())

	child := result.Items[1]
	require.NotNil(t, child.ParentTransactionItemID)
	require.Equal(t, "1", child.Quantity.String())
	require.Equal(t, "-2.00", child.UnitPrice.StringFixed2())
	require.Equal(t, "-2.00", child.TotalPrice.StringFixed2())
	require.Equal(t, txn.NoteDiscount, child.Notes)
}

// TestFinishTransaction_PaymentOutsideTolerance_Rejected covers the
// payment-to-total tolerance check finish enforces before reconstructing
// any fiscal lines.
func TestFinishTransaction_PaymentOutsideTolerance_Rejected(t *testing.T) {
	rig := newTestEngine(t)
	ctx := context.Background()
	tx := rig.newActiveTransaction(t)
	coffee := rig.seedItem(t, "Coffee", "3.00", catalog.CategoryDrink)

	_, err := rig.engine.AddItemToTransaction(ctx, tx.ID, string(coffee), money.NewFromInt(2), "cashier-1", "")
	require.NoError(t, err)

	_, err = rig.engine.FinishTransaction(ctx, tx.ID, txn.PaymentData{Type: "CASH", Amount: money.New(5.00)}, "cashier-1")
	require.Error(t, err)
}
