package fiscal

import (
	"context"

	"github.com/fiskpoint/posengine/store/dbtx"
)

// Store is the persistence contract for the two-phase fiscal pipeline.
// fiscal_log is append-only: there is deliberately no Update/Delete for it.
type Store interface {
	InsertPendingOperation(ctx context.Context, tx *dbtx.Handle, op PendingFiscalOperation) (PendingFiscalOperation, error)
	MarkPendingSigned(ctx context.Context, tx *dbtx.Handle, id PendingOpID, signed map[string]any) error
	MarkPendingFailed(ctx context.Context, tx *dbtx.Handle, id PendingOpID) error
	MarkPendingCommitted(ctx context.Context, tx *dbtx.Handle, id PendingOpID) error

	AppendFiscalLog(ctx context.Context, tx *dbtx.Handle, entry FiscalLogEntry) (FiscalLogEntry, error)
	AppendOperationalLog(ctx context.Context, tx *dbtx.Handle, entry FiscalLogEntry) error

	ListPendingByStatus(ctx context.Context, tx *dbtx.Handle, status PendingStatus) ([]PendingFiscalOperation, error)
	FindPendingByOperationID(ctx context.Context, tx *dbtx.Handle, operationID string) (*PendingFiscalOperation, error)

	ListFiscalLogForTransaction(ctx context.Context, tx *dbtx.Handle, transactionUUID string) ([]FiscalLogEntry, error)
	ListOperationalLogForTransaction(ctx context.Context, tx *dbtx.Handle, transactionUUID string) ([]FiscalLogEntry, error)
}
