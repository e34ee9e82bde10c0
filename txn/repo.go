package txn

import (
	"context"

	"github.com/fiskpoint/posengine/money"
	"github.com/fiskpoint/posengine/store/dbtx"
)

// TaxBucket is a (tax_rate, sum_total_price) pair, as returned by
// getTaxBreakdown (spec §4.1).
type TaxBucket struct {
	TaxRate  money.Amount
	SumTotal money.Amount
}

// Repository is the C1 typed-CRUD surface over active transactions and
// their items, plus the domain-specific queries spec §4.1 names.
type Repository interface {
	CreateTransaction(ctx context.Context, tx *dbtx.Handle, t ActiveTransaction) (ActiveTransaction, error)
	FindTransaction(ctx context.Context, tx *dbtx.Handle, id TransactionID) (*ActiveTransaction, error)
	FindTransactionByUUID(ctx context.Context, tx *dbtx.Handle, uuid string) (*ActiveTransaction, error)
	UpdateTransaction(ctx context.Context, tx *dbtx.Handle, t ActiveTransaction) error
	DeleteTransaction(ctx context.Context, tx *dbtx.Handle, id TransactionID) error

	GetParkedTransactions(ctx context.Context, tx *dbtx.Handle) ([]ActiveTransaction, error)
	GetPendingTransactions(ctx context.Context, tx *dbtx.Handle) ([]ActiveTransaction, error)
	// ListRecentFinished returns the most recently finished transactions,
	// newest first, for getRecentReceipts (spec §4.6 command set).
	ListRecentFinished(ctx context.Context, tx *dbtx.Handle, limit int) ([]ActiveTransaction, error)
	// MarkStaleActiveAsPending implements recovery step 4: every
	// status=active AND resolution_status=none transaction becomes
	// resolution_status=pending (spec §4.5).
	MarkStaleActiveAsPending(ctx context.Context, tx *dbtx.Handle) (int, error)

	CreateItem(ctx context.Context, tx *dbtx.Handle, it ActiveTransactionItem) (ActiveTransactionItem, error)
	UpdateItem(ctx context.Context, tx *dbtx.Handle, it ActiveTransactionItem) error
	FindItem(ctx context.Context, tx *dbtx.Handle, id ItemLineID) (*ActiveTransactionItem, error)
	ListItems(ctx context.Context, tx *dbtx.Handle, txID TransactionID) ([]ActiveTransactionItem, error)
	ReplaceItems(ctx context.Context, tx *dbtx.Handle, txID TransactionID, items []ActiveTransactionItem) error

	GetTaxBreakdown(ctx context.Context, tx *dbtx.Handle, txID TransactionID) ([]TaxBucket, error)
	IsTableInUse(ctx context.Context, tx *dbtx.Handle, table string, exclude *TransactionID) (bool, error)

	// WithTx runs fn inside a serializable write envelope, retrying once on
	// a serialization Conflict (spec §4.1 failure semantics).
	WithTx(ctx context.Context, fn func(h *dbtx.Handle) error) error
}
