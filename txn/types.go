/*
Package txn implements the Transaction Engine (C3): the state machine for
active receipts - create, add item, update quantity/price, park/reactivate,
finish with fiscal-compliant line reconstruction.

Grounded on the teacher's timeoff/ledger.go (a domain wrapper enforcing an
invariant - day uniqueness - over a generic ledger) and generic/request.go
(pending -> approved/rejected lifecycle shape), reworked into a single
receipt lifecycle instead of a multi-period accrual ledger.

SEE ALSO:
  - taxtable.go: externalized category_type -> tax-rate mapping
  - engine.go: the operations of spec §4.3
  - finish.go: finish's fiscal-line reconstruction algorithm
*/
package txn

import (
	"time"

	"github.com/fiskpoint/posengine/money"
)

type TransactionID int64
type ItemLineID int64

type Status string

const (
	StatusActive    Status = "active"
	StatusParked    Status = "parked"
	StatusFinished  Status = "finished"
	StatusCancelled Status = "cancelled"
)

type ResolutionStatus string

const (
	ResolutionNone      ResolutionStatus = "none"
	ResolutionPending   ResolutionStatus = "pending"
	ResolutionPostponed ResolutionStatus = "postponed"
)

// ActiveTransaction is the central entity of spec §3.
type ActiveTransaction struct {
	ID               TransactionID
	UUID             string
	Status           Status
	ResolutionStatus ResolutionStatus
	UserID           string
	BusinessDate     time.Time
	TotalAmount      money.Amount
	TaxAmount        money.Amount
	PaymentType      *string
	PaymentAmount    *money.Amount
	Metadata         map[string]string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Note tokens reserved for compliance child lines (spec §3).
const (
	NoteStorno    = "STORNO"
	NoteDiscount  = "DISCOUNT"
	NoteSurcharge = "SURCHARGE"
)

// ActiveTransactionItem is a receipt line (spec §3). ParentTransactionItemID
// is set only on compliance child lines inserted during finish.
type ActiveTransactionItem struct {
	ID                    ItemLineID
	ActiveTransactionID   TransactionID
	ItemID                string
	Quantity              money.Amount
	UnitPrice             money.Amount
	TotalPrice            money.Amount
	TaxRate               money.Amount
	TaxAmount             money.Amount
	ParentTransactionItemID *ItemLineID
	Notes                 string
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// FindOrCreateCriteria parameterizes findOrCreateActiveTransaction.
type FindOrCreateCriteria struct {
	TransactionID *TransactionID
	Metadata      map[string]string
}

// PaymentData is the payload of finishTransaction.
type PaymentData struct {
	Type   string
	Amount money.Amount
}

// Resolution values for resolvePendingTransaction.
type Resolution string

const (
	ResolvePostpone  Resolution = "postpone"
	ResolveCancel    Resolution = "cancel"
	ResolveFiscalize Resolution = "fiscalize"
)
