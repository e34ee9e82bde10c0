/*
engine.go - performStorno/approveStorno/rejectStorno/resetDailyStornoCredits
(spec §4.4), plus the generalized pending-change queue (spec §4.4
"Supplemented").

Follows the same locking discipline as txn.Engine: mutate catalog.User and
storno rows inside one serializable envelope, then emit the fiscal event
outside it.
*/
package storno

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/fiskpoint/posengine/catalog"
	"github.com/fiskpoint/posengine/ferrors"
	"github.com/fiskpoint/posengine/fiscal"
	"github.com/fiskpoint/posengine/money"
	"github.com/fiskpoint/posengine/store/dbtx"
	"github.com/fiskpoint/posengine/txn"
)

type Engine struct {
	Repo    Repository
	Catalog catalog.Repository
	Txn     txn.Repository
	Fiscal  *fiscal.Service
	Log     zerolog.Logger
}

func NewEngine(repo Repository, cat catalog.Repository, txnRepo txn.Repository, fs *fiscal.Service, log zerolog.Logger) *Engine {
	return &Engine{Repo: repo, Catalog: cat, Txn: txnRepo, Fiscal: fs, Log: log}
}

// PerformStorno implements spec §4.4.
func (e *Engine) PerformStorno(ctx context.Context, userID catalog.UserID, originalTxID txn.TransactionID, amount money.Amount, reason string, isEmergency bool) (*StornoLog, error) {
	t, err := e.Txn.FindTransaction(ctx, nil, originalTxID)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, ferrors.New(ferrors.NotFound, "transaction %d not found", originalTxID)
	}

	var result StornoLog
	var automatic bool

	err = e.Repo.WithTx(ctx, func(h *dbtx.Handle) error {
		user, err := e.Catalog.FindUser(ctx, h, userID)
		if err != nil {
			return err
		}
		if user == nil {
			return ferrors.New(ferrors.NotFound, "user %s not found", userID)
		}

		daily, _ := money.NewFromString(user.StornoDailyLimit)
		emergency, _ := money.NewFromString(user.StornoEmergencyLimit)
		used, _ := money.NewFromString(user.StornoUsedToday)

		limit := daily
		if isEmergency {
			limit = emergency
		}
		available := limit.Sub(used)
		now := time.Now().UTC()

		if amount.LessThanOrEqual(available) {
			automatic = true
			newUsed := used.Add(amount)
			newTrust, newDaily, newEmergency := AdjustTrust(user.TrustScore, 1)
			user.StornoUsedToday = newUsed.String()
			user.TrustScore = newTrust
			if newDaily != nil {
				user.StornoDailyLimit = newDaily.String()
			}
			if newEmergency != nil {
				user.StornoEmergencyLimit = newEmergency.String()
			}
			if err := e.Catalog.UpdateUser(ctx, h, *user); err != nil {
				return err
			}

			created, err := e.Repo.CreateStornoLog(ctx, h, StornoLog{
				TransactionID: originalTxID,
				UserID:        userID,
				Amount:        amount,
				Reason:        reason,
				IsEmergency:   isEmergency,
				Status:        StatusAutomatic,
				CreditUsed:    amount,
				CreatedAt:     now,
				UpdatedAt:     now,
			})
			if err != nil {
				return err
			}
			result = created
			return nil
		}

		created, err := e.Repo.CreateStornoLog(ctx, h, StornoLog{
			TransactionID: originalTxID,
			UserID:        userID,
			Amount:        amount,
			Reason:        reason,
			IsEmergency:   isEmergency,
			Status:        StatusPending,
			CreditUsed:    money.Zero,
			CreatedAt:     now,
			UpdatedAt:     now,
		})
		if err != nil {
			return err
		}

		priority := PriorityHigh
		if isEmergency {
			priority = PriorityUrgent
		}
		if _, err := e.Repo.CreatePendingChange(ctx, h, PendingChange{
			Kind:        ChangeStorno,
			RefID:       created.ID,
			Priority:    priority,
			Status:      StatusPending,
			RequestedBy: userID,
			CreatedAt:   now,
			UpdatedAt:   now,
		}); err != nil {
			return err
		}
		result = created
		return nil
	})
	if err != nil {
		return nil, err
	}

	if automatic {
		res := e.Fiscal.LogFiscalEvent(ctx, t.UUID, fiscal.EventStornoAutomatic, strPtr(string(userID)), map[string]any{
			"storno_id": result.ID, "amount": amount.String(), "reason": reason,
		})
		if !res.Success {
			e.Log.Warn().Str("transaction_uuid", t.UUID).Err(res.Err).Msg("performStorno: fiscal emit failed post-commit")
		}
	}

	return &result, nil
}

// ApproveStorno implements spec §4.4.
func (e *Engine) ApproveStorno(ctx context.Context, managerUserID catalog.UserID, stornoID StornoID, notes string) (*StornoLog, error) {
	if err := e.requireApprover(ctx, managerUserID); err != nil {
		return nil, err
	}

	var result StornoLog
	err := e.Repo.WithTx(ctx, func(h *dbtx.Handle) error {
		s, err := e.Repo.FindStornoLog(ctx, h, stornoID)
		if err != nil {
			return err
		}
		if s == nil {
			return ferrors.New(ferrors.NotFound, "storno %d not found", stornoID)
		}
		if s.Status != StatusPending {
			return ferrors.New(ferrors.InvalidState, "storno %d is %s, not pending", stornoID, s.Status)
		}

		user, err := e.Catalog.FindUser(ctx, h, s.UserID)
		if err != nil || user == nil {
			return ferrors.New(ferrors.NotFound, "user %s not found", s.UserID)
		}
		used, _ := money.NewFromString(user.StornoUsedToday)
		newTrust, newDaily, newEmergency := AdjustTrust(user.TrustScore, 0.5)
		user.StornoUsedToday = used.Add(s.Amount).String()
		user.TrustScore = newTrust
		if newDaily != nil {
			user.StornoDailyLimit = newDaily.String()
		}
		if newEmergency != nil {
			user.StornoEmergencyLimit = newEmergency.String()
		}
		if err := e.Catalog.UpdateUser(ctx, h, *user); err != nil {
			return err
		}

		now := time.Now().UTC()
		approver := managerUserID
		s.Status = StatusApproved
		s.CreditUsed = s.Amount
		s.ApproverID = &approver
		s.Notes = notes
		s.UpdatedAt = now
		if err := e.Repo.UpdateStornoLog(ctx, h, *s); err != nil {
			return err
		}

		if change, err := e.Repo.FindPendingChangeByRef(ctx, h, ChangeStorno, stornoID); err == nil && change != nil {
			change.Status = StatusApproved
			change.UpdatedAt = now
			if err := e.Repo.UpdatePendingChange(ctx, h, *change); err != nil {
				return err
			}
		}

		result = *s
		return nil
	})
	if err != nil {
		return nil, err
	}

	t, _ := e.Txn.FindTransaction(ctx, nil, result.TransactionID)
	if t != nil {
		res := e.Fiscal.LogFiscalEvent(ctx, t.UUID, fiscal.EventStornoApproved, strPtr(string(managerUserID)), map[string]any{
			"storno_id": result.ID, "amount": result.Amount.String(), "notes": notes,
		})
		if !res.Success {
			e.Log.Warn().Str("transaction_uuid", t.UUID).Err(res.Err).Msg("approveStorno: fiscal emit failed post-commit")
		}
	}
	return &result, nil
}

// RejectStorno implements spec §4.4.
func (e *Engine) RejectStorno(ctx context.Context, managerUserID catalog.UserID, stornoID StornoID, notes string) (*StornoLog, error) {
	if err := e.requireApprover(ctx, managerUserID); err != nil {
		return nil, err
	}

	var result StornoLog
	err := e.Repo.WithTx(ctx, func(h *dbtx.Handle) error {
		s, err := e.Repo.FindStornoLog(ctx, h, stornoID)
		if err != nil {
			return err
		}
		if s == nil {
			return ferrors.New(ferrors.NotFound, "storno %d not found", stornoID)
		}
		if s.Status != StatusPending {
			return ferrors.New(ferrors.InvalidState, "storno %d is %s, not pending", stornoID, s.Status)
		}

		user, err := e.Catalog.FindUser(ctx, h, s.UserID)
		if err != nil || user == nil {
			return ferrors.New(ferrors.NotFound, "user %s not found", s.UserID)
		}
		newTrust, newDaily, newEmergency := AdjustTrust(user.TrustScore, -1)
		user.TrustScore = newTrust
		if newDaily != nil {
			user.StornoDailyLimit = newDaily.String()
		}
		if newEmergency != nil {
			user.StornoEmergencyLimit = newEmergency.String()
		}
		if err := e.Catalog.UpdateUser(ctx, h, *user); err != nil {
			return err
		}

		now := time.Now().UTC()
		approver := managerUserID
		s.Status = StatusRejected
		s.ApproverID = &approver
		s.Notes = notes
		s.UpdatedAt = now
		if err := e.Repo.UpdateStornoLog(ctx, h, *s); err != nil {
			return err
		}

		if change, err := e.Repo.FindPendingChangeByRef(ctx, h, ChangeStorno, stornoID); err == nil && change != nil {
			change.Status = StatusRejected
			change.UpdatedAt = now
			if err := e.Repo.UpdatePendingChange(ctx, h, *change); err != nil {
				return err
			}
		}

		result = *s
		return nil
	})
	if err != nil {
		return nil, err
	}

	t, _ := e.Txn.FindTransaction(ctx, nil, result.TransactionID)
	if t != nil {
		res := e.Fiscal.LogFiscalEvent(ctx, t.UUID, fiscal.EventStornoRejected, strPtr(string(managerUserID)), map[string]any{
			"storno_id": result.ID, "notes": notes,
		})
		if !res.Success {
			e.Log.Warn().Str("transaction_uuid", t.UUID).Err(res.Err).Msg("rejectStorno: fiscal emit failed post-commit")
		}
	}
	return &result, nil
}

// ResetDailyStornoCredits implements spec §4.4: run once per business day,
// idempotent.
func (e *Engine) ResetDailyStornoCredits(ctx context.Context) error {
	return e.Catalog.ResetAllStornoUsedToday(ctx, nil)
}

// ListPendingStornos returns every storno still awaiting manager review.
func (e *Engine) ListPendingStornos(ctx context.Context) ([]StornoLog, error) {
	return e.Repo.ListPendingStornos(ctx, nil)
}

// ListPendingChanges implements the generalized approval-queue surface
// (spec §4.4 "Supplemented").
func (e *Engine) ListPendingChanges(ctx context.Context) ([]PendingChange, error) {
	return e.Repo.ListPendingChanges(ctx, nil)
}

// ApproveChange dispatches a pending change to its kind-specific approval
// handler. Today the only kind is storno; the queue is shaped to carry
// future change kinds without widening this switch's callers.
func (e *Engine) ApproveChange(ctx context.Context, managerUserID catalog.UserID, changeID ChangeID, notes string) (*PendingChange, error) {
	changes, err := e.Repo.ListPendingChanges(ctx, nil)
	if err != nil {
		return nil, err
	}
	change := findChange(changes, changeID)
	if change == nil {
		return nil, ferrors.New(ferrors.NotFound, "pending change %d not found", changeID)
	}
	switch change.Kind {
	case ChangeStorno:
		if _, err := e.ApproveStorno(ctx, managerUserID, change.RefID, notes); err != nil {
			return nil, err
		}
	default:
		return nil, ferrors.New(ferrors.NotImplemented, "pending change kind %q has no approval handler", change.Kind)
	}
	updated, err := e.Repo.FindPendingChangeByRef(ctx, nil, change.Kind, change.RefID)
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// RejectChange is ApproveChange's rejection counterpart.
func (e *Engine) RejectChange(ctx context.Context, managerUserID catalog.UserID, changeID ChangeID, notes string) (*PendingChange, error) {
	changes, err := e.Repo.ListPendingChanges(ctx, nil)
	if err != nil {
		return nil, err
	}
	change := findChange(changes, changeID)
	if change == nil {
		return nil, ferrors.New(ferrors.NotFound, "pending change %d not found", changeID)
	}
	switch change.Kind {
	case ChangeStorno:
		if _, err := e.RejectStorno(ctx, managerUserID, change.RefID, notes); err != nil {
			return nil, err
		}
	default:
		return nil, ferrors.New(ferrors.NotImplemented, "pending change kind %q has no rejection handler", change.Kind)
	}
	updated, err := e.Repo.FindPendingChangeByRef(ctx, nil, change.Kind, change.RefID)
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// BatchChangeOutcome is one row of BatchProcessChanges' per-item result,
// recording failures without aborting the rest of the batch.
type BatchChangeOutcome struct {
	ChangeID ChangeID
	Change   *PendingChange
	Err      error
}

// BatchProcessChanges applies approve or reject to every listed change,
// continuing past individual failures (spec §6 batchProcessChanges).
func (e *Engine) BatchProcessChanges(ctx context.Context, managerUserID catalog.UserID, changeIDs []ChangeID, approve bool, notes string) []BatchChangeOutcome {
	outcomes := make([]BatchChangeOutcome, 0, len(changeIDs))
	for _, id := range changeIDs {
		var change *PendingChange
		var err error
		if approve {
			change, err = e.ApproveChange(ctx, managerUserID, id, notes)
		} else {
			change, err = e.RejectChange(ctx, managerUserID, id, notes)
		}
		if err != nil {
			e.Log.Warn().Int64("change_id", int64(id)).Err(err).Msg("batchProcessChanges: item failed")
		}
		outcomes = append(outcomes, BatchChangeOutcome{ChangeID: id, Change: change, Err: err})
	}
	return outcomes
}

func (e *Engine) requireApprover(ctx context.Context, managerUserID catalog.UserID) error {
	manager, err := e.Catalog.FindUser(ctx, nil, managerUserID)
	if err != nil {
		return err
	}
	if manager == nil {
		return ferrors.New(ferrors.NotFound, "user %s not found", managerUserID)
	}
	role, err := e.Catalog.FindRole(ctx, nil, manager.RoleID)
	if err != nil {
		return err
	}
	if role == nil || !role.CanApproveChanges {
		return ferrors.New(ferrors.PermissionDenied, "user %s cannot approve changes", managerUserID)
	}
	return nil
}

func findChange(changes []PendingChange, id ChangeID) *PendingChange {
	for i := range changes {
		if changes[i].ID == id {
			return &changes[i]
		}
	}
	return nil
}

func strPtr(s string) *string { return &s }
