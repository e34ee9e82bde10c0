/*
txn.go adapts *Store to txn.Repository: active transactions and their
line items.
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/fiskpoint/posengine/money"
	"github.com/fiskpoint/posengine/store/dbtx"
	"github.com/fiskpoint/posengine/txn"
)

type TxnRepo struct{ *Store }

func NewTxnRepo(s *Store) *TxnRepo { return &TxnRepo{s} }

func (r *TxnRepo) q(tx *dbtx.Handle) dbtx.Querier { return tx.Or(r.pool()) }

const txnSelectCols = `SELECT id, uuid, status, resolution_status, user_id, business_date, total_amount, tax_amount,
	payment_type, payment_amount, metadata, created_at, updated_at `

func (r *TxnRepo) CreateTransaction(ctx context.Context, tx *dbtx.Handle, t txn.ActiveTransaction) (txn.ActiveTransaction, error) {
	metaJSON, err := json.Marshal(t.Metadata)
	if err != nil {
		return txn.ActiveTransaction{}, err
	}
	res, err := r.q(tx).ExecContext(ctx,
		`INSERT INTO active_transactions (uuid, status, resolution_status, user_id, business_date, total_amount, tax_amount, payment_type, payment_amount, metadata, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.UUID, string(t.Status), string(t.ResolutionStatus), t.UserID, t.BusinessDate.UTC().Format(time.RFC3339),
		t.TotalAmount.String(), t.TaxAmount.String(), t.PaymentType, optionalAmountStr(t.PaymentAmount), string(metaJSON),
		t.CreatedAt.UTC().Format(time.RFC3339), t.UpdatedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return txn.ActiveTransaction{}, err
	}
	id, _ := res.LastInsertId()
	t.ID = txn.TransactionID(id)
	return t, nil
}

func (r *TxnRepo) FindTransaction(ctx context.Context, tx *dbtx.Handle, id txn.TransactionID) (*txn.ActiveTransaction, error) {
	row := r.q(tx).QueryRowContext(ctx, txnSelectCols+`FROM active_transactions WHERE id = ?`, id)
	return scanTxn(row)
}

func (r *TxnRepo) FindTransactionByUUID(ctx context.Context, tx *dbtx.Handle, uuid string) (*txn.ActiveTransaction, error) {
	row := r.q(tx).QueryRowContext(ctx, txnSelectCols+`FROM active_transactions WHERE uuid = ?`, uuid)
	return scanTxn(row)
}

func (r *TxnRepo) UpdateTransaction(ctx context.Context, tx *dbtx.Handle, t txn.ActiveTransaction) error {
	metaJSON, err := json.Marshal(t.Metadata)
	if err != nil {
		return err
	}
	_, err = r.q(tx).ExecContext(ctx,
		`UPDATE active_transactions SET status=?, resolution_status=?, user_id=?, business_date=?, total_amount=?, tax_amount=?,
		 payment_type=?, payment_amount=?, metadata=?, updated_at=? WHERE id=?`,
		string(t.Status), string(t.ResolutionStatus), t.UserID, t.BusinessDate.UTC().Format(time.RFC3339),
		t.TotalAmount.String(), t.TaxAmount.String(), t.PaymentType, optionalAmountStr(t.PaymentAmount), string(metaJSON),
		t.UpdatedAt.UTC().Format(time.RFC3339), t.ID)
	return err
}

func (r *TxnRepo) DeleteTransaction(ctx context.Context, tx *dbtx.Handle, id txn.TransactionID) error {
	_, err := r.q(tx).ExecContext(ctx, `DELETE FROM active_transaction_items WHERE active_transaction_id = ?`, id)
	if err != nil {
		return err
	}
	_, err = r.q(tx).ExecContext(ctx, `DELETE FROM active_transactions WHERE id = ?`, id)
	return err
}

func (r *TxnRepo) GetParkedTransactions(ctx context.Context, tx *dbtx.Handle) ([]txn.ActiveTransaction, error) {
	return r.listTxnByStatus(ctx, tx, string(txn.StatusParked))
}

func (r *TxnRepo) GetPendingTransactions(ctx context.Context, tx *dbtx.Handle) ([]txn.ActiveTransaction, error) {
	rows, err := r.q(tx).QueryContext(ctx, txnSelectCols+`FROM active_transactions WHERE resolution_status = ? ORDER BY id`, string(txn.ResolutionPending))
	if err != nil {
		return nil, err
	}
	return scanTxnRowsAll(rows)
}

func (r *TxnRepo) ListRecentFinished(ctx context.Context, tx *dbtx.Handle, limit int) ([]txn.ActiveTransaction, error) {
	rows, err := r.q(tx).QueryContext(ctx, txnSelectCols+`FROM active_transactions WHERE status = ? ORDER BY id DESC LIMIT ?`, string(txn.StatusFinished), limit)
	if err != nil {
		return nil, err
	}
	return scanTxnRowsAll(rows)
}

func (r *TxnRepo) listTxnByStatus(ctx context.Context, tx *dbtx.Handle, status string) ([]txn.ActiveTransaction, error) {
	rows, err := r.q(tx).QueryContext(ctx, txnSelectCols+`FROM active_transactions WHERE status = ? ORDER BY id`, status)
	if err != nil {
		return nil, err
	}
	return scanTxnRowsAll(rows)
}

// MarkStaleActiveAsPending implements recovery step 4: every status=active
// AND resolution_status=none transaction becomes resolution_status=pending
// (spec §4.5).
func (r *TxnRepo) MarkStaleActiveAsPending(ctx context.Context, tx *dbtx.Handle) (int, error) {
	res, err := r.q(tx).ExecContext(ctx,
		`UPDATE active_transactions SET resolution_status = ? WHERE status = ? AND resolution_status = ?`,
		string(txn.ResolutionPending), string(txn.StatusActive), string(txn.ResolutionNone))
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func scanTxn(row *sql.Row) (*txn.ActiveTransaction, error) {
	var t txn.ActiveTransaction
	var statusStr, resStr, businessDate, totalStr, taxStr, metaJSON, created, updated string
	var paymentAmount sql.NullString
	if err := row.Scan(&t.ID, &t.UUID, &statusStr, &resStr, &t.UserID, &businessDate, &totalStr, &taxStr,
		&t.PaymentType, &paymentAmount, &metaJSON, &created, &updated); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	fillTxn(&t, statusStr, resStr, businessDate, totalStr, taxStr, paymentAmount, metaJSON, created, updated)
	return &t, nil
}

func scanTxnRowsAll(rows *sql.Rows) ([]txn.ActiveTransaction, error) {
	defer rows.Close()
	var out []txn.ActiveTransaction
	for rows.Next() {
		var t txn.ActiveTransaction
		var statusStr, resStr, businessDate, totalStr, taxStr, metaJSON, created, updated string
		var paymentAmount sql.NullString
		if err := rows.Scan(&t.ID, &t.UUID, &statusStr, &resStr, &t.UserID, &businessDate, &totalStr, &taxStr,
			&t.PaymentType, &paymentAmount, &metaJSON, &created, &updated); err != nil {
			return nil, err
		}
		fillTxn(&t, statusStr, resStr, businessDate, totalStr, taxStr, paymentAmount, metaJSON, created, updated)
		out = append(out, t)
	}
	return out, rows.Err()
}

func fillTxn(t *txn.ActiveTransaction, statusStr, resStr, businessDate, totalStr, taxStr string, paymentAmount sql.NullString, metaJSON, created, updated string) {
	t.Status = txn.Status(statusStr)
	t.ResolutionStatus = txn.ResolutionStatus(resStr)
	t.BusinessDate, _ = time.Parse(time.RFC3339, businessDate)
	t.TotalAmount, _ = money.NewFromString(totalStr)
	t.TaxAmount, _ = money.NewFromString(taxStr)
	if paymentAmount.Valid {
		amt, _ := money.NewFromString(paymentAmount.String)
		t.PaymentAmount = &amt
	}
	_ = json.Unmarshal([]byte(metaJSON), &t.Metadata)
	t.CreatedAt, _ = time.Parse(time.RFC3339, created)
	t.UpdatedAt, _ = time.Parse(time.RFC3339, updated)
}

func optionalAmountStr(a *money.Amount) *string {
	if a == nil {
		return nil
	}
	s := a.String()
	return &s
}

const itemSelectCols = `SELECT id, active_transaction_id, item_id, quantity, unit_price, total_price, tax_rate, tax_amount,
	parent_transaction_item_id, notes, created_at, updated_at `

func (r *TxnRepo) CreateItem(ctx context.Context, tx *dbtx.Handle, it txn.ActiveTransactionItem) (txn.ActiveTransactionItem, error) {
	res, err := r.q(tx).ExecContext(ctx,
		`INSERT INTO active_transaction_items (active_transaction_id, item_id, quantity, unit_price, total_price, tax_rate, tax_amount, parent_transaction_item_id, notes, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		it.ActiveTransactionID, it.ItemID, it.Quantity.String(), it.UnitPrice.String(), it.TotalPrice.String(),
		it.TaxRate.String(), it.TaxAmount.String(), optionalLineID(it.ParentTransactionItemID), it.Notes,
		it.CreatedAt.UTC().Format(time.RFC3339), it.UpdatedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return txn.ActiveTransactionItem{}, err
	}
	id, _ := res.LastInsertId()
	it.ID = txn.ItemLineID(id)
	return it, nil
}

func (r *TxnRepo) UpdateItem(ctx context.Context, tx *dbtx.Handle, it txn.ActiveTransactionItem) error {
	_, err := r.q(tx).ExecContext(ctx,
		`UPDATE active_transaction_items SET item_id=?, quantity=?, unit_price=?, total_price=?, tax_rate=?, tax_amount=?,
		 parent_transaction_item_id=?, notes=?, updated_at=? WHERE id=?`,
		it.ItemID, it.Quantity.String(), it.UnitPrice.String(), it.TotalPrice.String(), it.TaxRate.String(), it.TaxAmount.String(),
		optionalLineID(it.ParentTransactionItemID), it.Notes, it.UpdatedAt.UTC().Format(time.RFC3339), it.ID)
	return err
}

func (r *TxnRepo) FindItem(ctx context.Context, tx *dbtx.Handle, id txn.ItemLineID) (*txn.ActiveTransactionItem, error) {
	row := r.q(tx).QueryRowContext(ctx, itemSelectCols+`FROM active_transaction_items WHERE id = ?`, id)
	return scanItemLine(row)
}

func (r *TxnRepo) ListItems(ctx context.Context, tx *dbtx.Handle, txID txn.TransactionID) ([]txn.ActiveTransactionItem, error) {
	rows, err := r.q(tx).QueryContext(ctx, itemSelectCols+`FROM active_transaction_items WHERE active_transaction_id = ? ORDER BY id`, txID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []txn.ActiveTransactionItem
	for rows.Next() {
		it, err := scanItemLineRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *it)
	}
	return out, rows.Err()
}

// ReplaceItems deletes every existing line for txID and reinserts items
// inside the caller's envelope. Each row's autoincrement id
// is reassigned on reinsert, so a remap from the caller's pre-delete
// in-memory ids to the freshly minted ones is carried along and applied to
// ParentTransactionItemID before a child is inserted - otherwise a
// compliance child's parent pointer would dangle against a deleted row.
// Callers must list parents before their children, which this relies on.
func (r *TxnRepo) ReplaceItems(ctx context.Context, tx *dbtx.Handle, txID txn.TransactionID, items []txn.ActiveTransactionItem) error {
	if _, err := r.q(tx).ExecContext(ctx, `DELETE FROM active_transaction_items WHERE active_transaction_id = ?`, txID); err != nil {
		return err
	}
	idMap := make(map[txn.ItemLineID]txn.ItemLineID, len(items))
	for i := range items {
		it := items[i]
		oldID := it.ID
		it.ActiveTransactionID = txID
		it.ID = 0
		if it.ParentTransactionItemID != nil {
			if newParent, ok := idMap[*it.ParentTransactionItemID]; ok {
				it.ParentTransactionItemID = &newParent
			}
		}
		created, err := r.CreateItem(ctx, tx, it)
		if err != nil {
			return err
		}
		idMap[oldID] = created.ID
		items[i] = created
	}
	return nil
}

func (r *TxnRepo) GetTaxBreakdown(ctx context.Context, tx *dbtx.Handle, txID txn.TransactionID) ([]txn.TaxBucket, error) {
	rows, err := r.q(tx).QueryContext(ctx,
		`SELECT tax_rate, SUM(CAST(total_price AS REAL)) FROM active_transaction_items WHERE active_transaction_id = ? GROUP BY tax_rate`, txID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []txn.TaxBucket
	for rows.Next() {
		var rateStr string
		var sum float64
		if err := rows.Scan(&rateStr, &sum); err != nil {
			return nil, err
		}
		rate, _ := money.NewFromString(rateStr)
		out = append(out, txn.TaxBucket{TaxRate: rate, SumTotal: money.New(sum)})
	}
	return out, rows.Err()
}

func (r *TxnRepo) IsTableInUse(ctx context.Context, tx *dbtx.Handle, table string, exclude *txn.TransactionID) (bool, error) {
	query := `SELECT COUNT(*) FROM active_transactions WHERE json_extract(metadata, '$.table') = ? AND status != ?`
	args := []any{table, string(txn.StatusFinished)}
	if exclude != nil {
		query += ` AND id != ?`
		args = append(args, *exclude)
	}
	var count int
	if err := r.q(tx).QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}

func scanItemLine(row *sql.Row) (*txn.ActiveTransactionItem, error) {
	var it txn.ActiveTransactionItem
	var qtyStr, unitStr, totalStr, rateStr, taxStr, created, updated string
	var parentID sql.NullInt64
	if err := row.Scan(&it.ID, &it.ActiveTransactionID, &it.ItemID, &qtyStr, &unitStr, &totalStr, &rateStr, &taxStr,
		&parentID, &it.Notes, &created, &updated); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	fillItemLine(&it, qtyStr, unitStr, totalStr, rateStr, taxStr, parentID, created, updated)
	return &it, nil
}

func scanItemLineRows(rows *sql.Rows) (*txn.ActiveTransactionItem, error) {
	var it txn.ActiveTransactionItem
	var qtyStr, unitStr, totalStr, rateStr, taxStr, created, updated string
	var parentID sql.NullInt64
	if err := rows.Scan(&it.ID, &it.ActiveTransactionID, &it.ItemID, &qtyStr, &unitStr, &totalStr, &rateStr, &taxStr,
		&parentID, &it.Notes, &created, &updated); err != nil {
		return nil, err
	}
	fillItemLine(&it, qtyStr, unitStr, totalStr, rateStr, taxStr, parentID, created, updated)
	return &it, nil
}

func fillItemLine(it *txn.ActiveTransactionItem, qtyStr, unitStr, totalStr, rateStr, taxStr string, parentID sql.NullInt64, created, updated string) {
	it.Quantity, _ = money.NewFromString(qtyStr)
	it.UnitPrice, _ = money.NewFromString(unitStr)
	it.TotalPrice, _ = money.NewFromString(totalStr)
	it.TaxRate, _ = money.NewFromString(rateStr)
	it.TaxAmount, _ = money.NewFromString(taxStr)
	if parentID.Valid {
		pid := txn.ItemLineID(parentID.Int64)
		it.ParentTransactionItemID = &pid
	}
	it.CreatedAt, _ = time.Parse(time.RFC3339, created)
	it.UpdatedAt, _ = time.Parse(time.RFC3339, updated)
}

func optionalLineID(id *txn.ItemLineID) *int64 {
	if id == nil {
		return nil
	}
	v := int64(*id)
	return &v
}
