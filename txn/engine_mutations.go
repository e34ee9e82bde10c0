package txn

import (
	"context"
	"time"

	"github.com/fiskpoint/posengine/ferrors"
	"github.com/fiskpoint/posengine/fiscal"
	"github.com/fiskpoint/posengine/money"
	"github.com/fiskpoint/posengine/store/dbtx"
)

// UpdateItemQuantityInTransaction implements spec §4.3.
func (e *Engine) UpdateItemQuantityInTransaction(ctx context.Context, txID TransactionID, lineID ItemLineID, newQuantity money.Amount, userID string) (*ActiveTransactionItem, error) {
	var updated ActiveTransactionItem
	var txUUID string
	var reducedFrom *money.Amount

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
		line, err := e.Repo.FindItem(ctx, h, lineID)
		if err != nil || line == nil {
			return ferrors.New(ferrors.NotFound, "item line %d not found", lineID)
		}

		oldTotal := line.TotalPrice
		oldTax := line.TaxAmount

		if newQuantity.LessThan(line.Quantity) {
			orig := line.Quantity
			reducedFrom = &orig
		}

		unitPrice := line.UnitPrice
		newTotal := unitPrice.Mul(newQuantity)
		newTax := money.GrossFromNetRate(newTotal, line.TaxRate.Decimal)

		now := time.Now().UTC()
		line.Quantity = newQuantity
		line.TotalPrice = newTotal
		line.TaxAmount = newTax
		line.UpdatedAt = now
		if err := e.Repo.UpdateItem(ctx, h, *line); err != nil {
			return err
		}
		updated = *line
		txUUID = t.UUID

		t.TotalAmount = t.TotalAmount.Sub(oldTotal).Add(newTotal)
		t.TaxAmount = t.TaxAmount.Sub(oldTax).Add(newTax)
		t.UpdatedAt = now
		return e.Repo.UpdateTransaction(ctx, h, *t)
	})
	if err != nil {
		return nil, err
	}

	if reducedFrom != nil {
		if opErr := e.Fiscal.LogOperationalEvent(ctx, txUUID, fiscal.EventPartialStorno, &userID, PartialStornoPayload{
			ItemLineID:       lineID,
			OriginalQuantity: reducedFrom.String(),
			NewQuantity:      newQuantity.String(),
			ItemID:           updated.ItemID,
		}.toMap()); opErr != nil {
			e.Log.Warn().Err(opErr).Msg("updateItemQuantity: failed to record partial_storno operational event")
		}
	}

	res := e.Fiscal.LogFiscalEvent(ctx, txUUID, fiscal.EventUpdateTransaction, &userID, map[string]any{
		"item_line_id": lineID, "new_quantity": newQuantity.String(),
	})
	if !res.Success {
		e.Log.Warn().Str("transaction_uuid", txUUID).Err(res.Err).Msg("updateItemQuantity: fiscal emit failed post-commit")
	}
	return &updated, nil
}

// UpdateItemPriceInTransaction implements spec §4.3.
func (e *Engine) UpdateItemPriceInTransaction(ctx context.Context, txID TransactionID, lineID ItemLineID, newPrice money.Amount, userID string, isTotalPrice bool) (*ActiveTransactionItem, error) {
	var updated ActiveTransactionItem
	var txUUID string
	var originalUnitPrice money.Amount
	var quantityAtChange money.Amount

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
		line, err := e.Repo.FindItem(ctx, h, lineID)
		if err != nil || line == nil {
			return ferrors.New(ferrors.NotFound, "item line %d not found", lineID)
		}

		oldTotal := line.TotalPrice
		oldTax := line.TaxAmount
		originalUnitPrice = line.UnitPrice
		quantityAtChange = line.Quantity

		newUnitPrice := newPrice
		if isTotalPrice {
			newUnitPrice = newPrice.Div(line.Quantity)
		}
		newTotal := newUnitPrice.Mul(line.Quantity)
		newTax := money.GrossFromNetRate(newTotal, line.TaxRate.Decimal)

		now := time.Now().UTC()
		line.UnitPrice = newUnitPrice
		line.TotalPrice = newTotal
		line.TaxAmount = newTax
		line.UpdatedAt = now
		if err := e.Repo.UpdateItem(ctx, h, *line); err != nil {
			return err
		}
		updated = *line
		txUUID = t.UUID

		t.TotalAmount = t.TotalAmount.Sub(oldTotal).Add(newTotal)
		t.TaxAmount = t.TaxAmount.Sub(oldTax).Add(newTax)
		t.UpdatedAt = now
		return e.Repo.UpdateTransaction(ctx, h, *t)
	})
	if err != nil {
		return nil, err
	}

	if opErr := e.Fiscal.LogOperationalEvent(ctx, txUUID, fiscal.EventPriceOverride, &userID, PriceOverridePayload{
		ItemLineID:        lineID,
		OriginalUnitPrice: originalUnitPrice.String(),
		NewUnitPrice:      updated.UnitPrice.String(),
		Quantity:          quantityAtChange.String(),
		ItemID:            updated.ItemID,
	}.toMap()); opErr != nil {
		e.Log.Warn().Err(opErr).Msg("updateItemPrice: failed to record price_override operational event")
	}

	res := e.Fiscal.LogFiscalEvent(ctx, txUUID, fiscal.EventUpdateTransaction, &userID, map[string]any{
		"item_line_id": lineID, "new_unit_price": updated.UnitPrice.String(),
	})
	if !res.Success {
		e.Log.Warn().Str("transaction_uuid", txUUID).Err(res.Err).Msg("updateItemPrice: fiscal emit failed post-commit")
	}
	return &updated, nil
}

// ParkTransaction implements spec §4.3. updateTimestamp controls whether
// updated_at is touched, preserving arrival order in parked lists when the
// caller is only moving UI focus.
func (e *Engine) ParkTransaction(ctx context.Context, txID TransactionID, table string, userID string, updateTimestamp bool) (*ActiveTransaction, error) {
	var result ActiveTransaction
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
		if t.Metadata == nil {
			t.Metadata = map[string]string{}
		}
		t.Metadata["table"] = table
		t.Status = StatusParked
		if updateTimestamp {
			t.UpdatedAt = time.Now().UTC()
		}
		if err := e.Repo.UpdateTransaction(ctx, h, *t); err != nil {
			return err
		}
		result = *t
		return nil
	})
	if err != nil {
		return nil, err
	}

	res := e.Fiscal.LogFiscalEvent(ctx, result.UUID, fiscal.EventParkTransaction, &userID, map[string]any{"table": table})
	if !res.Success {
		e.Log.Warn().Str("transaction_uuid", result.UUID).Err(res.Err).Msg("parkTransaction: fiscal emit failed post-commit")
	}
	return &result, nil
}

// ActivateTransaction implements spec §4.3.
func (e *Engine) ActivateTransaction(ctx context.Context, txID TransactionID, userID string, updateTimestamp bool) (*ActiveTransaction, error) {
	var result ActiveTransaction
	err := e.Repo.WithTx(ctx, func(h *dbtx.Handle) error {
		t, err := e.Repo.FindTransaction(ctx, h, txID)
		if err != nil {
			return err
		}
		if t == nil {
			return ferrors.New(ferrors.NotFound, "transaction %d not found", txID)
		}
		if t.Status != StatusParked {
			return ferrors.New(ferrors.InvalidState, "transaction %d is %s, not parked", txID, t.Status)
		}
		t.Status = StatusActive
		if updateTimestamp {
			t.UpdatedAt = time.Now().UTC()
		}
		if err := e.Repo.UpdateTransaction(ctx, h, *t); err != nil {
			return err
		}
		result = *t
		return nil
	})
	if err != nil {
		return nil, err
	}

	res := e.Fiscal.LogFiscalEvent(ctx, result.UUID, fiscal.EventActivateTransaction, &userID, map[string]any{})
	if !res.Success {
		e.Log.Warn().Str("transaction_uuid", result.UUID).Err(res.Err).Msg("activateTransaction: fiscal emit failed post-commit")
	}
	return &result, nil
}

// UpdateTransactionMetadata implements spec §4.3: merges (never replaces)
// the provided metadata into the existing metadata.
func (e *Engine) UpdateTransactionMetadata(ctx context.Context, txID TransactionID, patch map[string]string, userID string, updateTimestamp bool) (*ActiveTransaction, error) {
	var result ActiveTransaction
	err := e.Repo.WithTx(ctx, func(h *dbtx.Handle) error {
		t, err := e.Repo.FindTransaction(ctx, h, txID)
		if err != nil {
			return err
		}
		if t == nil {
			return ferrors.New(ferrors.NotFound, "transaction %d not found", txID)
		}
		if t.Metadata == nil {
			t.Metadata = map[string]string{}
		}
		for k, v := range patch {
			t.Metadata[k] = v
		}
		if updateTimestamp {
			t.UpdatedAt = time.Now().UTC()
		}
		if err := e.Repo.UpdateTransaction(ctx, h, *t); err != nil {
			return err
		}
		result = *t
		return nil
	})
	return &result, err
}

// CheckTableNumberInUse implements spec §4.3.
func (e *Engine) CheckTableNumberInUse(ctx context.Context, table string, exclude *TransactionID) (bool, error) {
	return e.Repo.IsTableInUse(ctx, nil, table, exclude)
}

// GetPendingTransactions implements spec §4.3.
func (e *Engine) GetPendingTransactions(ctx context.Context) ([]ActiveTransaction, error) {
	return e.Repo.GetPendingTransactions(ctx, nil)
}

// ResolvePendingTransaction implements spec §4.3.
func (e *Engine) ResolvePendingTransaction(ctx context.Context, txID TransactionID, resolution Resolution, userID string) (*ActiveTransaction, error) {
	switch resolution {
	case ResolveCancel, ResolveFiscalize:
		return nil, ferrors.New(ferrors.NotImplemented, "resolvePendingTransaction(%s) is a reserved extension point", resolution)
	case ResolvePostpone:
		var result ActiveTransaction
		err := e.Repo.WithTx(ctx, func(h *dbtx.Handle) error {
			t, err := e.Repo.FindTransaction(ctx, h, txID)
			if err != nil {
				return err
			}
			if t == nil {
				return ferrors.New(ferrors.NotFound, "transaction %d not found", txID)
			}
			t.ResolutionStatus = ResolutionPostponed
			t.UpdatedAt = time.Now().UTC()
			if err := e.Repo.UpdateTransaction(ctx, h, *t); err != nil {
				return err
			}
			result = *t
			return nil
		})
		if err != nil {
			return nil, err
		}
		res := e.Fiscal.LogFiscalEvent(ctx, result.UUID, fiscal.EventPostponeTransaction, &userID, map[string]any{})
		if !res.Success {
			e.Log.Warn().Str("transaction_uuid", result.UUID).Err(res.Err).Msg("resolvePendingTransaction(postpone): fiscal emit failed post-commit")
		}
		return &result, nil
	default:
		return nil, ferrors.New(ferrors.ValidationError, "unknown resolution %q", resolution)
	}
}
