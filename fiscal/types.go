/*
Package fiscal implements the Fiscal Log Service (C2): a two-phase
write-ahead log that hands payloads to an external signer and, on success,
commits them to an append-only fiscal_log, per spec §4.2.

Grounded on the teacher's store/sqlite/sqlite.go append-only transactions
table ("no UPDATE, no DELETE, ever") and generic/store.go's AuditLog
interface, generalized into pending -> signed -> committed.
*/
package fiscal

import (
	"time"
)

type LogID int64
type PendingOpID int64

// EventType enumerates the fiscal/operational event types named in spec §3.
type EventType string

const (
	EventStartTransaction   EventType = "startTransaction"
	EventUpdateTransaction  EventType = "updateTransaction"
	EventFinishTransaction  EventType = "finishTransaction"
	EventStornoAutomatic    EventType = "storno_automatic"
	EventStornoApproved     EventType = "storno_approved"
	EventStornoRejected     EventType = "storno_rejected"
	EventParkTransaction    EventType = "parkTransaction"
	EventActivateTransaction EventType = "activateTransaction"
	EventPostponeTransaction EventType = "postponeTransaction"
	EventPrintFailed        EventType = "print_failed"
	EventPriceOverride      EventType = "price_override"
	EventPartialStorno      EventType = "partial_storno"
	EventRecoveredTransaction EventType = "recovered_transaction"
)

// FiscalLogEntry is an immutable row of the append-only fiscal log.
type FiscalLogEntry struct {
	ID               LogID
	TransactionUUID  string
	EventType        EventType
	UserID           *string
	Payload          map[string]any
	Signature        *string
	SignatureCounter *int64
	TimestampUTC     time.Time
}

type PendingStatus string

const (
	PendingStatusPending   PendingStatus = "PENDING"
	PendingStatusTSESuccess PendingStatus = "TSE_SUCCESS"
	PendingStatusTSEFailed PendingStatus = "TSE_FAILED"
)

// PendingFiscalOperation is the row backing the two-phase protocol.
type PendingFiscalOperation struct {
	ID             PendingOpID
	OperationID    string
	Status         PendingStatus
	TransactionUUID string
	RequestPayload map[string]any
	SignedPayload  map[string]any
	CreatedAt      time.Time
}

// LogResult is returned by LogFiscalEvent/commitFiscalOperation - the
// {success, log?, error?, warning?} result enum of spec §4.2, replacing
// exceptions per the spec's Design Notes.
type LogResult struct {
	Success bool
	Log     *FiscalLogEntry
	Warning string
	Err     error
}
