/*
storno.go adapts *Store to storno.Repository: the storno_log and
pending_changes tables.

StornoLog.ApproverID is a *catalog.UserID - a pointer to a custom string
type - which sql.Rows.Scan cannot target directly (Scan only unwraps one
level of pointer indirection into a Scanner or a convertible kind); it's
scanned through a sql.NullString intermediate instead.
*/
package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/fiskpoint/posengine/catalog"
	"github.com/fiskpoint/posengine/money"
	"github.com/fiskpoint/posengine/storno"
	"github.com/fiskpoint/posengine/store/dbtx"
)

type StornoRepo struct{ *Store }

func NewStornoRepo(s *Store) *StornoRepo { return &StornoRepo{s} }

func (r *StornoRepo) q(tx *dbtx.Handle) dbtx.Querier { return tx.Or(r.pool()) }

const stornoSelectCols = `SELECT id, transaction_id, user_id, amount, reason, is_emergency, status, credit_used, approver_id, notes, created_at, updated_at `

func (r *StornoRepo) CreateStornoLog(ctx context.Context, tx *dbtx.Handle, s storno.StornoLog) (storno.StornoLog, error) {
	now := s.CreatedAt
	res, err := r.q(tx).ExecContext(ctx,
		`INSERT INTO storno_log (transaction_id, user_id, amount, reason, is_emergency, status, credit_used, approver_id, notes, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.TransactionID, s.UserID, s.Amount.String(), s.Reason, boolToInt(s.IsEmergency), string(s.Status),
		s.CreditUsed.String(), optionalUserID(s.ApproverID), s.Notes,
		now.UTC().Format(time.RFC3339), s.UpdatedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return storno.StornoLog{}, err
	}
	id, _ := res.LastInsertId()
	s.ID = storno.StornoID(id)
	return s, nil
}

func (r *StornoRepo) FindStornoLog(ctx context.Context, tx *dbtx.Handle, id storno.StornoID) (*storno.StornoLog, error) {
	row := r.q(tx).QueryRowContext(ctx, stornoSelectCols+`FROM storno_log WHERE id = ?`, id)
	return scanStornoLog(row)
}

func (r *StornoRepo) UpdateStornoLog(ctx context.Context, tx *dbtx.Handle, s storno.StornoLog) error {
	_, err := r.q(tx).ExecContext(ctx,
		`UPDATE storno_log SET status=?, credit_used=?, approver_id=?, notes=?, updated_at=? WHERE id=?`,
		string(s.Status), s.CreditUsed.String(), optionalUserID(s.ApproverID), s.Notes, s.UpdatedAt.UTC().Format(time.RFC3339), s.ID)
	return err
}

func (r *StornoRepo) ListPendingStornos(ctx context.Context, tx *dbtx.Handle) ([]storno.StornoLog, error) {
	rows, err := r.q(tx).QueryContext(ctx, stornoSelectCols+`FROM storno_log WHERE status = ? ORDER BY id`, string(storno.StatusPending))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []storno.StornoLog
	for rows.Next() {
		s, err := scanStornoLogRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

func scanStornoLog(row *sql.Row) (*storno.StornoLog, error) {
	var s storno.StornoLog
	var statusStr, amountStr, creditStr, created, updated string
	var isEmergency int
	var approverID sql.NullString
	if err := row.Scan(&s.ID, &s.TransactionID, &s.UserID, &amountStr, &s.Reason, &isEmergency, &statusStr,
		&creditStr, &approverID, &s.Notes, &created, &updated); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	fillStornoLog(&s, statusStr, amountStr, creditStr, isEmergency, approverID, created, updated)
	return &s, nil
}

func scanStornoLogRows(rows *sql.Rows) (*storno.StornoLog, error) {
	var s storno.StornoLog
	var statusStr, amountStr, creditStr, created, updated string
	var isEmergency int
	var approverID sql.NullString
	if err := rows.Scan(&s.ID, &s.TransactionID, &s.UserID, &amountStr, &s.Reason, &isEmergency, &statusStr,
		&creditStr, &approverID, &s.Notes, &created, &updated); err != nil {
		return nil, err
	}
	fillStornoLog(&s, statusStr, amountStr, creditStr, isEmergency, approverID, created, updated)
	return &s, nil
}

func fillStornoLog(s *storno.StornoLog, statusStr, amountStr, creditStr string, isEmergency int, approverID sql.NullString, created, updated string) {
	s.Status = storno.ApprovalStatus(statusStr)
	s.Amount, _ = money.NewFromString(amountStr)
	s.CreditUsed, _ = money.NewFromString(creditStr)
	s.IsEmergency = isEmergency != 0
	if approverID.Valid {
		uid := catalog.UserID(approverID.String)
		s.ApproverID = &uid
	}
	s.CreatedAt, _ = time.Parse(time.RFC3339, created)
	s.UpdatedAt, _ = time.Parse(time.RFC3339, updated)
}

func optionalUserID(id *catalog.UserID) *string {
	if id == nil {
		return nil
	}
	s := string(*id)
	return &s
}

const changeSelectCols = `SELECT id, kind, ref_id, priority, status, requested_by, created_at, updated_at `

func (r *StornoRepo) CreatePendingChange(ctx context.Context, tx *dbtx.Handle, c storno.PendingChange) (storno.PendingChange, error) {
	res, err := r.q(tx).ExecContext(ctx,
		`INSERT INTO pending_changes (kind, ref_id, priority, status, requested_by, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		string(c.Kind), c.RefID, string(c.Priority), string(c.Status), c.RequestedBy,
		c.CreatedAt.UTC().Format(time.RFC3339), c.UpdatedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return storno.PendingChange{}, err
	}
	id, _ := res.LastInsertId()
	c.ID = storno.ChangeID(id)
	return c, nil
}

func (r *StornoRepo) FindPendingChangeByRef(ctx context.Context, tx *dbtx.Handle, kind storno.ChangeKind, refID storno.StornoID) (*storno.PendingChange, error) {
	row := r.q(tx).QueryRowContext(ctx, changeSelectCols+`FROM pending_changes WHERE kind = ? AND ref_id = ?`, string(kind), refID)
	return scanPendingChange(row)
}

func (r *StornoRepo) UpdatePendingChange(ctx context.Context, tx *dbtx.Handle, c storno.PendingChange) error {
	_, err := r.q(tx).ExecContext(ctx,
		`UPDATE pending_changes SET status=?, priority=?, updated_at=? WHERE id=?`,
		string(c.Status), string(c.Priority), c.UpdatedAt.UTC().Format(time.RFC3339), c.ID)
	return err
}

func (r *StornoRepo) ListPendingChanges(ctx context.Context, tx *dbtx.Handle) ([]storno.PendingChange, error) {
	rows, err := r.q(tx).QueryContext(ctx, changeSelectCols+`FROM pending_changes WHERE status = ? ORDER BY CASE priority WHEN 'urgent' THEN 0 ELSE 1 END, id`, string(storno.StatusPending))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []storno.PendingChange
	for rows.Next() {
		c, err := scanPendingChangeRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func scanPendingChange(row *sql.Row) (*storno.PendingChange, error) {
	var c storno.PendingChange
	var kindStr, priorityStr, statusStr, created, updated string
	if err := row.Scan(&c.ID, &kindStr, &c.RefID, &priorityStr, &statusStr, &c.RequestedBy, &created, &updated); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	fillPendingChange(&c, kindStr, priorityStr, statusStr, created, updated)
	return &c, nil
}

func scanPendingChangeRows(rows *sql.Rows) (*storno.PendingChange, error) {
	var c storno.PendingChange
	var kindStr, priorityStr, statusStr, created, updated string
	if err := rows.Scan(&c.ID, &kindStr, &c.RefID, &priorityStr, &statusStr, &c.RequestedBy, &created, &updated); err != nil {
		return nil, err
	}
	fillPendingChange(&c, kindStr, priorityStr, statusStr, created, updated)
	return &c, nil
}

func fillPendingChange(c *storno.PendingChange, kindStr, priorityStr, statusStr, created, updated string) {
	c.Kind = storno.ChangeKind(kindStr)
	c.Priority = storno.Priority(priorityStr)
	c.Status = storno.ApprovalStatus(statusStr)
	c.CreatedAt, _ = time.Parse(time.RFC3339, created)
	c.UpdatedAt, _ = time.Parse(time.RFC3339, updated)
}
