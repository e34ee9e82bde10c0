/*
service.go - the two-phase write-ahead protocol of spec §4.2.

ISOLATION: fiscal logging runs OUTSIDE the business-data write envelope
(spec §4.2, §5). Callers in txn/storno invoke Service methods after their
serializable envelope has already committed; Service never takes a *dbtx.Handle
tied to the caller's transaction for this reason - it manages its own.

METRICS: one prometheus counter of signer calls by outcome (success/failed),
grounded on AKJUS-bsc-erigon's prometheus/client_golang usage.
*/
package fiscal

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/fiskpoint/posengine/ferrors"
)

type Service struct {
	Store  Store
	Signer Signer
	Log    zerolog.Logger

	signAttempts *prometheus.CounterVec
}

func NewService(store Store, signer Signer, log zerolog.Logger, reg prometheus.Registerer) *Service {
	s := &Service{Store: store, Signer: signer, Log: log}
	s.signAttempts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "posengine_fiscal_sign_attempts_total",
		Help: "Fiscal signer call attempts by outcome.",
	}, []string{"outcome"})
	if reg != nil {
		reg.MustRegister(s.signAttempts)
	}
	return s
}

// LogFiscalEvent runs the full pending -> sign -> commit pipeline and
// returns the {success, log?, error?} result spec §4.2 describes.
func (s *Service) LogFiscalEvent(ctx context.Context, transactionUUID string, eventType EventType, userID *string, payload map[string]any) LogResult {
	op, err := s.Store.InsertPendingOperation(ctx, nil, PendingFiscalOperation{
		TransactionUUID: transactionUUID,
		Status:          PendingStatusPending,
		RequestPayload:  payload,
	})
	if err != nil {
		return LogResult{Success: false, Err: ferrors.New(ferrors.FiscalCommitFailed, "insert pending op: %v", err)}
	}

	signed, err := s.Signer.Sign(ctx, payload)
	if err != nil {
		s.signAttempts.WithLabelValues("failed").Inc()
		_ = s.Store.MarkPendingFailed(ctx, nil, op.ID)
		return LogResult{Success: false, Err: err}
	}
	s.signAttempts.WithLabelValues("success").Inc()

	signedPayload := map[string]any{
		"signature":     signed.Signature,
		"counter":       signed.Counter,
		"tse_timestamp": signed.TSETimestamp,
	}
	if err := s.Store.MarkPendingSigned(ctx, nil, op.ID, signedPayload); err != nil {
		return LogResult{Success: false, Err: ferrors.New(ferrors.FiscalCommitFailed, "mark signed: %v", err)}
	}

	entry, err := s.Store.AppendFiscalLog(ctx, nil, FiscalLogEntry{
		TransactionUUID:  transactionUUID,
		EventType:        eventType,
		UserID:           userID,
		Payload:          payload,
		Signature:        &signed.Signature,
		SignatureCounter: &signed.Counter,
		TimestampUTC:     time.Now().UTC(),
	})
	if err != nil {
		return LogResult{Success: false, Err: ferrors.New(ferrors.FiscalCommitFailed, "append fiscal log: %v", err)}
	}
	if err := s.Store.MarkPendingCommitted(ctx, nil, op.ID); err != nil {
		s.Log.Warn().Err(err).Msg("fiscal: failed to mark pending op committed after successful append")
	}

	return LogResult{Success: true, Log: &entry}
}

// LogOperationalEvent records a non-fiscal but durable event (spec §4.2),
// used by partial_storno/price_override reconstruction bookkeeping.
func (s *Service) LogOperationalEvent(ctx context.Context, transactionUUID string, eventType EventType, userID *string, payload map[string]any) error {
	return s.Store.AppendOperationalLog(ctx, nil, FiscalLogEntry{
		TransactionUUID: transactionUUID,
		EventType:       eventType,
		UserID:          userID,
		Payload:         payload,
		TimestampUTC:    time.Now().UTC(),
	})
}

// ListOperationalEvents returns the operational log for a transaction in
// ascending time order, the input to finish's fiscal-line reconstruction
// (spec §4.3 step 2).
func (s *Service) ListOperationalEvents(ctx context.Context, transactionUUID string) ([]FiscalLogEntry, error) {
	return s.Store.ListOperationalLogForTransaction(ctx, nil, transactionUUID)
}

// CommitFiscalOperation completes a previously-signed-but-uncommitted
// record, used both by normal recovery and (with event_type=recovered_transaction)
// by the Recovery Subsystem (spec §4.2 Recovery contract, §4.5).
func (s *Service) CommitFiscalOperation(ctx context.Context, operationID string, eventType EventType, userID *string) LogResult {
	op, err := s.Store.FindPendingByOperationID(ctx, nil, operationID)
	if err != nil || op == nil {
		return LogResult{Success: false, Err: ferrors.New(ferrors.NotFound, "pending operation %s not found", operationID)}
	}
	if op.Status != PendingStatusTSESuccess {
		return LogResult{Success: false, Err: ferrors.New(ferrors.InvalidState, "pending operation %s is %s, not TSE_SUCCESS", operationID, op.Status)}
	}

	var sig *string
	var counter *int64
	if s, ok := op.SignedPayload["signature"].(string); ok {
		sig = &s
	}
	if c, ok := op.SignedPayload["counter"].(int64); ok {
		counter = &c
	}

	entry, err := s.Store.AppendFiscalLog(ctx, nil, FiscalLogEntry{
		TransactionUUID:  op.TransactionUUID,
		EventType:        eventType,
		UserID:           userID,
		Payload:          op.RequestPayload,
		Signature:        sig,
		SignatureCounter: counter,
		TimestampUTC:     time.Now().UTC(),
	})
	if err != nil {
		return LogResult{Success: false, Err: ferrors.New(ferrors.FiscalCommitFailed, "append fiscal log on commit: %v", err)}
	}
	if err := s.Store.MarkPendingCommitted(ctx, nil, op.ID); err != nil {
		s.Log.Warn().Err(err).Msg("fiscal: failed to mark recovered pending op committed")
	}
	return LogResult{Success: true, Log: &entry}
}

// RecoverPendingOperations commits every TSE_SUCCESS row with the generic
// recovered_transaction event type, and logs PENDING/TSE_FAILED rows for
// manual review, per spec §4.2 Recovery contract / §4.5 step 3.
func (s *Service) RecoverPendingOperations(ctx context.Context) (committed int, needsReview int, err error) {
	successRows, err := s.Store.ListPendingByStatus(ctx, nil, PendingStatusTSESuccess)
	if err != nil {
		return 0, 0, err
	}
	for _, op := range successRows {
		res := s.CommitFiscalOperation(ctx, op.OperationID, EventRecoveredTransaction, nil)
		if res.Success {
			committed++
		} else {
			s.Log.Warn().Str("operation_id", op.OperationID).Err(res.Err).Msg("fiscal: failed to recover pending operation")
		}
	}

	for _, status := range []PendingStatus{PendingStatusPending, PendingStatusTSEFailed} {
		rows, err := s.Store.ListPendingByStatus(ctx, nil, status)
		if err != nil {
			continue
		}
		for _, op := range rows {
			needsReview++
			s.Log.Warn().
				Str("operation_id", op.OperationID).
				Str("status", string(status)).
				Str("transaction_uuid", op.TransactionUUID).
				Msg("fiscal: pending operation left for manual review")
		}
	}
	return committed, needsReview, nil
}
