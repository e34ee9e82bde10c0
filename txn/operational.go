/*
operational.go - payload shapes for the two operational-log event types
that drive finish's fiscal-line reconstruction (spec §4.3).
*/
package txn

import (
	"github.com/fiskpoint/posengine/fiscal"
	"github.com/fiskpoint/posengine/money"
)

// PartialStornoPayload is recorded whenever updateItemQuantityInTransaction
// reduces a line's quantity.
type PartialStornoPayload struct {
	ItemLineID       ItemLineID `json:"item_line_id"`
	OriginalQuantity string     `json:"original_quantity"`
	NewQuantity      string     `json:"new_quantity"`
	ItemID           string     `json:"item_id"`
}

func (p PartialStornoPayload) toMap() map[string]any {
	return map[string]any{
		"item_line_id":      int64(p.ItemLineID),
		"original_quantity": p.OriginalQuantity,
		"new_quantity":      p.NewQuantity,
		"item_id":           p.ItemID,
	}
}

// PriceOverridePayload is recorded whenever updateItemPriceInTransaction
// changes a line's unit price.
type PriceOverridePayload struct {
	ItemLineID       ItemLineID `json:"item_line_id"`
	OriginalUnitPrice string    `json:"original_unit_price"`
	NewUnitPrice      string    `json:"new_unit_price"`
	Quantity          string    `json:"quantity"`
	ItemID            string    `json:"item_id"`
}

func (p PriceOverridePayload) toMap() map[string]any {
	return map[string]any{
		"item_line_id":       int64(p.ItemLineID),
		"original_unit_price": p.OriginalUnitPrice,
		"new_unit_price":      p.NewUnitPrice,
		"quantity":            p.Quantity,
		"item_id":             p.ItemID,
	}
}

// parsePartialStorno decodes a fiscal.FiscalLogEntry payload map back into
// a PartialStornoPayload, used when replaying the operational log at
// finish time.
func parsePartialStorno(entry fiscal.FiscalLogEntry) (PartialStornoPayload, bool) {
	p := PartialStornoPayload{}
	idF, ok1 := numField(entry.Payload, "item_line_id")
	orig, ok2 := strField(entry.Payload, "original_quantity")
	newQ, ok3 := strField(entry.Payload, "new_quantity")
	itemID, ok4 := strField(entry.Payload, "item_id")
	if !(ok1 && ok2 && ok3 && ok4) {
		return p, false
	}
	p.ItemLineID = ItemLineID(idF)
	p.OriginalQuantity = orig
	p.NewQuantity = newQ
	p.ItemID = itemID
	return p, true
}

func parsePriceOverride(entry fiscal.FiscalLogEntry) (PriceOverridePayload, bool) {
	p := PriceOverridePayload{}
	idF, ok1 := numField(entry.Payload, "item_line_id")
	orig, ok2 := strField(entry.Payload, "original_unit_price")
	newP, ok3 := strField(entry.Payload, "new_unit_price")
	qty, ok4 := strField(entry.Payload, "quantity")
	itemID, ok5 := strField(entry.Payload, "item_id")
	if !(ok1 && ok2 && ok3 && ok4 && ok5) {
		return p, false
	}
	p.ItemLineID = ItemLineID(idF)
	p.OriginalUnitPrice = orig
	p.NewUnitPrice = newP
	p.Quantity = qty
	p.ItemID = itemID
	return p, true
}

func numField(m map[string]any, key string) (int64, bool) {
	v, ok := m[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case float64:
		return int64(n), true
	}
	return 0, false
}

func strField(m map[string]any, key string) (string, bool) {
	v, ok := m[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func mustAmount(s string) money.Amount {
	a, err := money.NewFromString(s)
	if err != nil {
		return money.Zero
	}
	return a
}
