/*
Package storno implements the Storno/Approval Engine (C4): per-user storno
credit limits, trust-score accounting, and a manager-approval queue.

Grounded on the teacher's generic/request.go pending->approved/rejected
lifecycle shape, repurposed from time-off requests to storno credit and
(generalized) arbitrary pending changes.
*/
package storno

import (
	"time"

	"github.com/fiskpoint/posengine/catalog"
	"github.com/fiskpoint/posengine/money"
	"github.com/fiskpoint/posengine/txn"
)

type StornoID int64
type ChangeID int64

// ApprovalStatus is the lifecycle of a StornoLog row (spec §3).
type ApprovalStatus string

const (
	StatusAutomatic ApprovalStatus = "automatic"
	StatusPending   ApprovalStatus = "pending"
	StatusApproved  ApprovalStatus = "approved"
	StatusRejected  ApprovalStatus = "rejected"
)

// Priority is assigned to a PendingChange at creation time.
type Priority string

const (
	PriorityUrgent Priority = "urgent"
	PriorityHigh   Priority = "high"
)

// StornoLog is the request record of spec §3.
type StornoLog struct {
	ID              StornoID
	TransactionID   txn.TransactionID
	UserID          catalog.UserID
	Amount          money.Amount
	Reason          string
	IsEmergency     bool
	Status          ApprovalStatus
	CreditUsed      money.Amount
	ApproverID      *catalog.UserID
	Notes           string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// ChangeKind distinguishes what a PendingChange references, so the queue
// can generalize beyond storno to any future manager-approval record (spec
// §4.4 "Supplemented").
type ChangeKind string

const (
	ChangeStorno ChangeKind = "storno"
)

// PendingChange is the manager-review queue row (spec §3/§4.4).
type PendingChange struct {
	ID         ChangeID
	Kind       ChangeKind
	RefID      StornoID
	Priority   Priority
	Status     ApprovalStatus
	RequestedBy catalog.UserID
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
