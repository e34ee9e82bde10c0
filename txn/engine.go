/*
engine.go - the Transaction Engine operations of spec §4.3.

Every mutation follows the locking discipline of spec §5: acquire the
serializable write envelope (Repository.WithTx) -> read -> mutate ->
commit -> release, THEN emit fiscal side-effects outside the envelope.
Never hold the envelope across a fiscal.Service call.
*/
package txn

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/fiskpoint/posengine/catalog"
	"github.com/fiskpoint/posengine/ferrors"
	"github.com/fiskpoint/posengine/fiscal"
	"github.com/fiskpoint/posengine/money"
	"github.com/fiskpoint/posengine/store/dbtx"
)

type Engine struct {
	Repo     Repository
	Catalog  catalog.Repository
	Fiscal   *fiscal.Service
	TaxTable *TaxTable
	Log      zerolog.Logger

	// Printer is the external receipt-rendering collaborator. Print
	// failures are always non-fatal (spec §7); nil disables printing
	// (used in tests).
	Printer Printer
}

// Printer is the narrow external interface to the (out-of-scope) printer
// subsystem (spec §1).
type Printer interface {
	Print(ctx context.Context, t ActiveTransaction, items []ActiveTransactionItem) error
}

func NewEngine(repo Repository, cat catalog.Repository, fs *fiscal.Service, tt *TaxTable, log zerolog.Logger, printer Printer) *Engine {
	return &Engine{Repo: repo, Catalog: cat, Fiscal: fs, TaxTable: tt, Log: log, Printer: printer}
}

// FindOrCreateActiveTransaction implements spec §4.3.
func (e *Engine) FindOrCreateActiveTransaction(ctx context.Context, criteria FindOrCreateCriteria, userID string) (*ActiveTransaction, error) {
	if criteria.TransactionID != nil {
		t, err := e.Repo.FindTransaction(ctx, nil, *criteria.TransactionID)
		if err != nil {
			return nil, err
		}
		if t != nil && t.Status == StatusActive {
			return t, nil
		}
	}

	now := time.Now().UTC()
	newTx := ActiveTransaction{
		UUID:             uuid.NewString(),
		Status:           StatusActive,
		ResolutionStatus: ResolutionNone,
		UserID:           userID,
		BusinessDate:     businessDateOf(now),
		TotalAmount:      money.Zero,
		TaxAmount:        money.Zero,
		Metadata:         cloneMeta(criteria.Metadata),
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	created, err := e.Repo.CreateTransaction(ctx, nil, newTx)
	if err != nil {
		return nil, err
	}

	res := e.Fiscal.LogFiscalEvent(ctx, created.UUID, fiscal.EventStartTransaction, &userID, map[string]any{
		"transaction_id": created.ID,
		"metadata":       created.Metadata,
	})
	if !res.Success {
		// Fiscal emit failed before any further business state depended on
		// it: roll back the just-inserted row (spec §4.3 FindOrCreate).
		_ = e.Repo.DeleteTransaction(ctx, nil, created.ID)
		return nil, ferrors.New(ferrors.FiscalCommitFailed, "startTransaction fiscal emit failed: %v", res.Err)
	}

	return &created, nil
}

// AddItemToTransaction implements spec §4.3.
func (e *Engine) AddItemToTransaction(ctx context.Context, txID TransactionID, itemID string, quantity money.Amount, userID string, notes string) (*ActiveTransactionItem, error) {
	var line ActiveTransactionItem
	var txUUID string

	err := e.Repo.WithTx(ctx, func(h *dbtx.Handle) error {
		t, err := e.Repo.FindTransaction(ctx, h, txID)
		if err != nil {
			return err
		}
		if t == nil {
			return ferrors.New(ferrors.NotFound, "transaction %d not found", txID)
		}
		if t.Status != StatusActive {
			return ferrors.New(ferrors.InvalidState, "transaction %d is %s, not active", txID, t.Status)
		}

		item, err := e.Catalog.FindItem(ctx, h, catalog.ItemID(itemID))
		if err != nil || item == nil {
			return ferrors.New(ferrors.NotFound, "item %s not found", itemID)
		}
		cat, err := e.Catalog.FindCategory(ctx, h, item.CategoryID)
		if err != nil || cat == nil {
			return ferrors.New(ferrors.NotFound, "category %s not found", item.CategoryID)
		}

		unitPrice, err := money.NewFromString(item.PriceCents)
		if err != nil {
			return ferrors.New(ferrors.ValidationError, "item %s has invalid price: %v", itemID, err)
		}

		rate := e.TaxTable.RateFor(cat.CategoryType)
		totalPrice := unitPrice.Mul(quantity)
		taxAmount := money.GrossFromNetRate(totalPrice, rate)

		now := time.Now().UTC()
		newLine := ActiveTransactionItem{
			ActiveTransactionID: txID,
			ItemID:              itemID,
			Quantity:            quantity,
			UnitPrice:           unitPrice,
			TotalPrice:          totalPrice,
			TaxRate:             money.Amount{Decimal: rate},
			TaxAmount:           taxAmount,
			Notes:               notes,
			CreatedAt:           now,
			UpdatedAt:           now,
		}
		created, err := e.Repo.CreateItem(ctx, h, newLine)
		if err != nil {
			return err
		}
		line = created
		txUUID = t.UUID

		t.TotalAmount = t.TotalAmount.Add(totalPrice)
		t.TaxAmount = t.TaxAmount.Add(taxAmount)
		t.UpdatedAt = now
		return e.Repo.UpdateTransaction(ctx, h, *t)
	})
	if err != nil {
		return nil, err
	}

	res := e.Fiscal.LogFiscalEvent(ctx, txUUID, fiscal.EventUpdateTransaction, &userID, map[string]any{
		"item_line_id": line.ID,
		"item_id":      itemID,
		"quantity":     line.Quantity.String(),
		"total_price":  line.TotalPrice.String(),
	})
	if !res.Success {
		e.Log.Warn().Str("transaction_uuid", txUUID).Err(res.Err).Msg("addItemToTransaction: fiscal emit failed post-commit, business state stands")
	}

	return &line, nil
}

// AddCustomPriceItemToTransaction implements spec §4.3: as AddItem but uses
// the caller-supplied price and annotates notes with "Custom price: X".
func (e *Engine) AddCustomPriceItemToTransaction(ctx context.Context, txID TransactionID, itemID string, quantity, customUnitPrice money.Amount, userID string) (*ActiveTransactionItem, error) {
	notes := "Custom price: " + customUnitPrice.StringFixed2()
	return e.addItemWithPrice(ctx, txID, itemID, quantity, &customUnitPrice, userID, notes)
}

func (e *Engine) addItemWithPrice(ctx context.Context, txID TransactionID, itemID string, quantity money.Amount, overridePrice *money.Amount, userID string, notes string) (*ActiveTransactionItem, error) {
	var line ActiveTransactionItem
	var txUUID string

	err := e.Repo.WithTx(ctx, func(h *dbtx.Handle) error {
		t, err := e.Repo.FindTransaction(ctx, h, txID)
		if err != nil {
			return err
		}
		if t == nil {
			return ferrors.New(ferrors.NotFound, "transaction %d not found", txID)
		}
		if t.Status != StatusActive {
			return ferrors.New(ferrors.InvalidState, "transaction %d is %s, not active", txID, t.Status)
		}

		item, err := e.Catalog.FindItem(ctx, h, catalog.ItemID(itemID))
		if err != nil || item == nil {
			return ferrors.New(ferrors.NotFound, "item %s not found", itemID)
		}
		cat, err := e.Catalog.FindCategory(ctx, h, item.CategoryID)
		if err != nil || cat == nil {
			return ferrors.New(ferrors.NotFound, "category %s not found", item.CategoryID)
		}

		unitPrice := *overridePrice
		rate := e.TaxTable.RateFor(cat.CategoryType)
		totalPrice := unitPrice.Mul(quantity)
		taxAmount := money.GrossFromNetRate(totalPrice, rate)

		now := time.Now().UTC()
		created, err := e.Repo.CreateItem(ctx, h, ActiveTransactionItem{
			ActiveTransactionID: txID,
			ItemID:              itemID,
			Quantity:            quantity,
			UnitPrice:           unitPrice,
			TotalPrice:          totalPrice,
			TaxRate:             money.Amount{Decimal: rate},
			TaxAmount:           taxAmount,
			Notes:               notes,
			CreatedAt:           now,
			UpdatedAt:           now,
		})
		if err != nil {
			return err
		}
		line = created
		txUUID = t.UUID

		t.TotalAmount = t.TotalAmount.Add(totalPrice)
		t.TaxAmount = t.TaxAmount.Add(taxAmount)
		t.UpdatedAt = now
		return e.Repo.UpdateTransaction(ctx, h, *t)
	})
	if err != nil {
		return nil, err
	}

	res := e.Fiscal.LogFiscalEvent(ctx, txUUID, fiscal.EventUpdateTransaction, &userID, map[string]any{
		"item_line_id": line.ID, "item_id": itemID, "custom_price": true,
	})
	if !res.Success {
		e.Log.Warn().Str("transaction_uuid", txUUID).Err(res.Err).Msg("addCustomPriceItemToTransaction: fiscal emit failed post-commit")
	}
	return &line, nil
}

func businessDateOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func cloneMeta(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
