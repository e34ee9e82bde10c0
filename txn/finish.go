/*
finish.go - finishTransaction (spec §4.3), the most intricate operation:
fiscal reconstruction of the operational log into append-only compliance
lines before finalizing the receipt.
*/
package txn

import (
	"context"
	"sort"
	"time"

	"github.com/fiskpoint/posengine/catalog"
	"github.com/fiskpoint/posengine/ferrors"
	"github.com/fiskpoint/posengine/fiscal"
	"github.com/fiskpoint/posengine/money"
	"github.com/fiskpoint/posengine/store/dbtx"
)

// FinishResult is finishTransaction's {Ok(finished), WithWarning(divergence)}
// result, replacing the source's exceptions per the spec's Design Notes.
type FinishResult struct {
	Transaction ActiveTransaction
	Items       []ActiveTransactionItem
	PrintFailed bool
	Warning     string
}

// FinishTransaction implements spec §4.3's finish operation.
func (e *Engine) FinishTransaction(ctx context.Context, txID TransactionID, payment PaymentData, userID string) (*FinishResult, error) {
	var result FinishResult
	var processData string

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

		items, err := e.Repo.ListItems(ctx, h, txID)
		if err != nil {
			return err
		}
		displayIndex := make(map[ItemLineID]int, len(items))
		byID := make(map[ItemLineID]*ActiveTransactionItem, len(items))
		for i := range items {
			displayIndex[items[i].ID] = i
			byID[items[i].ID] = &items[i]
		}

		events, err := e.Fiscal.Store.ListOperationalLogForTransaction(ctx, h, t.UUID)
		if err != nil {
			return err
		}

		var children []ActiveTransactionItem
		now := time.Now().UTC()

		for _, ev := range events {
			switch ev.EventType {
			case fiscal.EventPartialStorno:
				p, ok := parsePartialStorno(ev)
				if !ok {
					continue
				}
				line, ok := byID[p.ItemLineID]
				if !ok {
					continue
				}
				item, err := e.Catalog.FindItem(ctx, h, catalog.ItemID(p.ItemID))
				if err != nil || item == nil {
					continue
				}
				cat, err := e.Catalog.FindCategory(ctx, h, item.CategoryID)
				if err != nil || cat == nil {
					continue
				}
				origUnitPrice, _ := money.NewFromString(item.PriceCents)
				rate := e.TaxTable.RateFor(cat.CategoryType)

				origQty := mustAmount(p.OriginalQuantity)
				newQty := mustAmount(p.NewQuantity)
				if !origQty.GreaterThan(newQty) {
					continue
				}

				// Revert the live line back to its original quantity/price.
				origTotal := origUnitPrice.Mul(origQty)
				origTax := money.GrossFromNetRate(origTotal, rate)
				line.Quantity = origQty
				line.UnitPrice = origUnitPrice
				line.TotalPrice = origTotal
				line.TaxAmount = origTax
				line.TaxRate = money.Amount{Decimal: rate}
				line.UpdatedAt = now

				// Insert the STORNO compliance child.
				delta := origQty.Sub(newQty).Neg()
				childTotal := origUnitPrice.Mul(delta)
				childTax := money.GrossFromNetRate(childTotal, rate)
				parent := line.ID
				children = append(children, ActiveTransactionItem{
					ActiveTransactionID:     txID,
					ItemID:                  p.ItemID,
					Quantity:                delta,
					UnitPrice:               origUnitPrice,
					TotalPrice:              childTotal,
					TaxRate:                 money.Amount{Decimal: rate},
					TaxAmount:               childTax,
					ParentTransactionItemID: &parent,
					Notes:                   NoteStorno,
					CreatedAt:               now,
					UpdatedAt:               now,
				})

			case fiscal.EventPriceOverride:
				p, ok := parsePriceOverride(ev)
				if !ok {
					continue
				}
				line, ok := byID[p.ItemLineID]
				if !ok {
					continue
				}
				item, err := e.Catalog.FindItem(ctx, h, catalog.ItemID(p.ItemID))
				if err != nil || item == nil {
					continue
				}
				cat, err := e.Catalog.FindCategory(ctx, h, item.CategoryID)
				if err != nil || cat == nil {
					continue
				}
				origUnitPrice, _ := money.NewFromString(item.PriceCents)
				rate := e.TaxTable.RateFor(cat.CategoryType)

				newUnitPrice := mustAmount(p.NewUnitPrice)
				qty := mustAmount(p.Quantity)
				unitDiff := newUnitPrice.Sub(origUnitPrice)
				totalDiff := unitDiff.Mul(qty)

				// Revert the live line to the catalog's original price.
				origTotal := origUnitPrice.Mul(qty)
				origTax := money.GrossFromNetRate(origTotal, rate)
				line.Quantity = qty
				line.UnitPrice = origUnitPrice
				line.TotalPrice = origTotal
				line.TaxAmount = origTax
				line.TaxRate = money.Amount{Decimal: rate}
				line.UpdatedAt = now

				note := NoteDiscount
				if totalDiff.IsPositive() {
					note = NoteSurcharge
				}
				childTax := money.GrossFromNetRate(totalDiff, rate)
				parent := line.ID
				children = append(children, ActiveTransactionItem{
					ActiveTransactionID:     txID,
					ItemID:                  p.ItemID,
					Quantity:                money.NewFromInt(1),
					UnitPrice:               totalDiff,
					TotalPrice:              totalDiff,
					TaxRate:                 money.Amount{Decimal: rate},
					TaxAmount:               childTax,
					ParentTransactionItemID: &parent,
					Notes:                   note,
					CreatedAt:               now,
					UpdatedAt:               now,
				})
			}
		}

		allLines := make([]ActiveTransactionItem, 0, len(items)+len(children))
		allLines = append(allLines, items...)
		allLines = append(allLines, children...)

		total := money.Zero
		tax := money.Zero
		buckets := map[string]money.Amount{}
		for _, l := range allLines {
			total = total.Add(l.TotalPrice)
			tax = tax.Add(l.TaxAmount)
			key := fiscal.RateKey(l.TaxRate.Decimal)
			buckets[key] = buckets[key].Add(l.TotalPrice)
		}

		if !payment.Amount.WithinTolerance(total) {
			return ferrors.New(ferrors.ValidationError, "payment amount %s is not within tolerance of reconstructed total %s", payment.Amount.StringFixed2(), total.StringFixed2())
		}

		processData = fiscal.FormatProcessData(buckets, total, payment.Type)

		// Group children beside their parent by the parent's display index.
		// Within one group, SliceStable keeps allLines' original order
		// (parent from items, then its children appended afterward) - a
		// second, ID-based tie-break would wrongly sort a not-yet-persisted
		// child (ID still zero) ahead of its parent. Original lines are then
		// updated in place and keep their ids, so each child's
		// ParentTransactionItemID still names its parent row; children are
		// inserted as new rows.
		sorted := make([]ActiveTransactionItem, len(allLines))
		copy(sorted, allLines)
		sort.SliceStable(sorted, func(i, j int) bool {
			a, b := sorted[i], sorted[j]
			aParent := a.ID
			if a.ParentTransactionItemID != nil {
				aParent = *a.ParentTransactionItemID
			}
			bParent := b.ID
			if b.ParentTransactionItemID != nil {
				bParent = *b.ParentTransactionItemID
			}
			ai, aok := displayIndex[aParent]
			bi, bok := displayIndex[bParent]
			if !aok {
				ai = len(displayIndex)
			}
			if !bok {
				bi = len(displayIndex)
			}
			return ai < bi
		})

		for i := range sorted {
			if sorted[i].ID != 0 {
				if err := e.Repo.UpdateItem(ctx, h, sorted[i]); err != nil {
					return err
				}
				continue
			}
			created, err := e.Repo.CreateItem(ctx, h, sorted[i])
			if err != nil {
				return err
			}
			sorted[i] = created
		}

		t.TotalAmount = total
		t.TaxAmount = tax
		t.Status = StatusFinished
		t.PaymentType = &payment.Type
		paymentAmount := total
		t.PaymentAmount = &paymentAmount
		t.UpdatedAt = now
		if err := e.Repo.UpdateTransaction(ctx, h, *t); err != nil {
			return err
		}

		result = FinishResult{Transaction: *t, Items: sorted}
		return nil
	})
	if err != nil {
		return nil, err
	}

	res := e.Fiscal.LogFiscalEvent(ctx, result.Transaction.UUID, fiscal.EventFinishTransaction, &userID, map[string]any{
		"process_data": processData,
		"total_amount": result.Transaction.TotalAmount.String(),
		"tax_amount":   result.Transaction.TaxAmount.String(),
	})
	if !res.Success {
		e.Log.Warn().Str("transaction_uuid", result.Transaction.UUID).Err(res.Err).Msg("finishTransaction: fiscal emit failed post-commit, business state stands")
		result.Warning = "fiscal commit diverged: " + res.Err.Error()
	}

	if e.Printer != nil {
		if err := e.Printer.Print(ctx, result.Transaction, result.Items); err != nil {
			e.Log.Warn().Str("transaction_uuid", result.Transaction.UUID).Err(err).Msg("finishTransaction: print failed")
			if opErr := e.Fiscal.LogOperationalEvent(ctx, result.Transaction.UUID, fiscal.EventPrintFailed, &userID, map[string]any{"error": err.Error()}); opErr != nil {
				e.Log.Warn().Err(opErr).Msg("finishTransaction: failed to record print_failed operational event")
			}
			result.PrintFailed = true
		}
	}

	return &result, nil
}
