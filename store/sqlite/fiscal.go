/*
fiscal.go adapts *Store to fiscal.Store: the append-only fiscal_log /
operational_log tables, plus the pending_fiscal_operations table backing
the two-phase write-ahead protocol.

OperationID is generated here, not by callers: fiscal.Service passes a
PendingFiscalOperation literal with OperationID left zero-valued, so
InsertPendingOperation is the one place responsible for minting it
(google/uuid, matching the dispatcher's connection-ID fallback).
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/fiskpoint/posengine/fiscal"
	"github.com/fiskpoint/posengine/store/dbtx"
)

type FiscalRepo struct{ *Store }

func NewFiscalRepo(s *Store) *FiscalRepo { return &FiscalRepo{s} }

func (r *FiscalRepo) q(tx *dbtx.Handle) dbtx.Querier { return tx.Or(r.pool()) }

func (r *FiscalRepo) InsertPendingOperation(ctx context.Context, tx *dbtx.Handle, op fiscal.PendingFiscalOperation) (fiscal.PendingFiscalOperation, error) {
	if op.OperationID == "" {
		op.OperationID = uuid.NewString()
	}
	if op.Status == "" {
		op.Status = fiscal.PendingStatusPending
	}
	reqJSON, err := json.Marshal(op.RequestPayload)
	if err != nil {
		return fiscal.PendingFiscalOperation{}, err
	}
	now := time.Now().UTC()
	res, err := r.q(tx).ExecContext(ctx,
		`INSERT INTO pending_fiscal_operations (operation_id, status, transaction_uuid, request_payload, signed_payload, created_at)
		 VALUES (?, ?, ?, ?, '{}', ?)`,
		op.OperationID, string(op.Status), op.TransactionUUID, string(reqJSON), now.Format(time.RFC3339))
	if err != nil {
		return fiscal.PendingFiscalOperation{}, err
	}
	id, _ := res.LastInsertId()
	op.ID = fiscal.PendingOpID(id)
	op.CreatedAt = now
	return op, nil
}

func (r *FiscalRepo) MarkPendingSigned(ctx context.Context, tx *dbtx.Handle, id fiscal.PendingOpID, signed map[string]any) error {
	signedJSON, err := json.Marshal(signed)
	if err != nil {
		return err
	}
	_, err = r.q(tx).ExecContext(ctx,
		`UPDATE pending_fiscal_operations SET status = ?, signed_payload = ? WHERE id = ?`,
		string(fiscal.PendingStatusTSESuccess), string(signedJSON), id)
	return err
}

func (r *FiscalRepo) MarkPendingFailed(ctx context.Context, tx *dbtx.Handle, id fiscal.PendingOpID) error {
	_, err := r.q(tx).ExecContext(ctx,
		`UPDATE pending_fiscal_operations SET status = ? WHERE id = ?`, string(fiscal.PendingStatusTSEFailed), id)
	return err
}

func (r *FiscalRepo) MarkPendingCommitted(ctx context.Context, tx *dbtx.Handle, id fiscal.PendingOpID) error {
	_, err := r.q(tx).ExecContext(ctx,
		`DELETE FROM pending_fiscal_operations WHERE id = ?`, id)
	return err
}

func (r *FiscalRepo) AppendFiscalLog(ctx context.Context, tx *dbtx.Handle, entry fiscal.FiscalLogEntry) (fiscal.FiscalLogEntry, error) {
	payloadJSON, err := json.Marshal(entry.Payload)
	if err != nil {
		return fiscal.FiscalLogEntry{}, err
	}
	if entry.TimestampUTC.IsZero() {
		entry.TimestampUTC = time.Now().UTC()
	}
	res, err := r.q(tx).ExecContext(ctx,
		`INSERT INTO fiscal_log (transaction_uuid, event_type, user_id, payload, signature, signature_counter, timestamp_utc)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.TransactionUUID, string(entry.EventType), entry.UserID, string(payloadJSON),
		entry.Signature, entry.SignatureCounter, entry.TimestampUTC.Format(time.RFC3339))
	if err != nil {
		return fiscal.FiscalLogEntry{}, err
	}
	id, _ := res.LastInsertId()
	entry.ID = fiscal.LogID(id)
	return entry, nil
}

func (r *FiscalRepo) AppendOperationalLog(ctx context.Context, tx *dbtx.Handle, entry fiscal.FiscalLogEntry) error {
	payloadJSON, err := json.Marshal(entry.Payload)
	if err != nil {
		return err
	}
	if entry.TimestampUTC.IsZero() {
		entry.TimestampUTC = time.Now().UTC()
	}
	_, err = r.q(tx).ExecContext(ctx,
		`INSERT INTO operational_log (transaction_uuid, event_type, user_id, payload, timestamp_utc)
		 VALUES (?, ?, ?, ?, ?)`,
		entry.TransactionUUID, string(entry.EventType), entry.UserID, string(payloadJSON), entry.TimestampUTC.Format(time.RFC3339))
	return err
}

func (r *FiscalRepo) ListPendingByStatus(ctx context.Context, tx *dbtx.Handle, status fiscal.PendingStatus) ([]fiscal.PendingFiscalOperation, error) {
	rows, err := r.q(tx).QueryContext(ctx,
		`SELECT id, operation_id, status, transaction_uuid, request_payload, signed_payload, created_at
		 FROM pending_fiscal_operations WHERE status = ? ORDER BY id`, string(status))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []fiscal.PendingFiscalOperation
	for rows.Next() {
		op, err := scanPendingOpRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *op)
	}
	return out, rows.Err()
}

func (r *FiscalRepo) FindPendingByOperationID(ctx context.Context, tx *dbtx.Handle, operationID string) (*fiscal.PendingFiscalOperation, error) {
	row := r.q(tx).QueryRowContext(ctx,
		`SELECT id, operation_id, status, transaction_uuid, request_payload, signed_payload, created_at
		 FROM pending_fiscal_operations WHERE operation_id = ?`, operationID)
	return scanPendingOpRow(row)
}

func (r *FiscalRepo) ListFiscalLogForTransaction(ctx context.Context, tx *dbtx.Handle, transactionUUID string) ([]fiscal.FiscalLogEntry, error) {
	rows, err := r.q(tx).QueryContext(ctx,
		`SELECT id, transaction_uuid, event_type, user_id, payload, signature, signature_counter, timestamp_utc
		 FROM fiscal_log WHERE transaction_uuid = ? ORDER BY id`, transactionUUID)
	if err != nil {
		return nil, err
	}
	return scanLogEntries(rows)
}

func (r *FiscalRepo) ListOperationalLogForTransaction(ctx context.Context, tx *dbtx.Handle, transactionUUID string) ([]fiscal.FiscalLogEntry, error) {
	rows, err := r.q(tx).QueryContext(ctx,
		`SELECT id, transaction_uuid, event_type, user_id, payload, NULL, NULL, timestamp_utc
		 FROM operational_log WHERE transaction_uuid = ? ORDER BY id`, transactionUUID)
	if err != nil {
		return nil, err
	}
	return scanLogEntries(rows)
}

func scanPendingOpRow(row *sql.Row) (*fiscal.PendingFiscalOperation, error) {
	var op fiscal.PendingFiscalOperation
	var statusStr, reqJSON, signedJSON, created string
	if err := row.Scan(&op.ID, &op.OperationID, &statusStr, &op.TransactionUUID, &reqJSON, &signedJSON, &created); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	fillPendingOp(&op, statusStr, reqJSON, signedJSON, created)
	return &op, nil
}

func scanPendingOpRows(rows *sql.Rows) (*fiscal.PendingFiscalOperation, error) {
	var op fiscal.PendingFiscalOperation
	var statusStr, reqJSON, signedJSON, created string
	if err := rows.Scan(&op.ID, &op.OperationID, &statusStr, &op.TransactionUUID, &reqJSON, &signedJSON, &created); err != nil {
		return nil, err
	}
	fillPendingOp(&op, statusStr, reqJSON, signedJSON, created)
	return &op, nil
}

func fillPendingOp(op *fiscal.PendingFiscalOperation, statusStr, reqJSON, signedJSON, created string) {
	op.Status = fiscal.PendingStatus(statusStr)
	_ = json.Unmarshal([]byte(reqJSON), &op.RequestPayload)
	_ = json.Unmarshal([]byte(signedJSON), &op.SignedPayload)
	op.CreatedAt, _ = time.Parse(time.RFC3339, created)
}

func scanLogEntries(rows *sql.Rows) ([]fiscal.FiscalLogEntry, error) {
	defer rows.Close()
	var out []fiscal.FiscalLogEntry
	for rows.Next() {
		var e fiscal.FiscalLogEntry
		var eventType, payloadJSON, ts string
		var userID sql.NullString
		var sig sql.NullString
		var counter sql.NullInt64
		if err := rows.Scan(&e.ID, &e.TransactionUUID, &eventType, &userID, &payloadJSON, &sig, &counter, &ts); err != nil {
			return nil, err
		}
		e.EventType = fiscal.EventType(eventType)
		if userID.Valid {
			u := userID.String
			e.UserID = &u
		}
		_ = json.Unmarshal([]byte(payloadJSON), &e.Payload)
		if sig.Valid {
			s := sig.String
			e.Signature = &s
		}
		if counter.Valid {
			c := counter.Int64
			e.SignatureCounter = &c
		}
		e.TimestampUTC, _ = time.Parse(time.RFC3339, ts)
		out = append(out, e)
	}
	return out, rows.Err()
}
