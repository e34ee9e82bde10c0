package storno

import (
	"context"

	"github.com/fiskpoint/posengine/store/dbtx"
)

// Repository is the C1 typed-CRUD surface over storno logs and the pending
// change queue (spec §4.1/§4.4).
type Repository interface {
	CreateStornoLog(ctx context.Context, tx *dbtx.Handle, s StornoLog) (StornoLog, error)
	FindStornoLog(ctx context.Context, tx *dbtx.Handle, id StornoID) (*StornoLog, error)
	UpdateStornoLog(ctx context.Context, tx *dbtx.Handle, s StornoLog) error
	ListPendingStornos(ctx context.Context, tx *dbtx.Handle) ([]StornoLog, error)

	CreatePendingChange(ctx context.Context, tx *dbtx.Handle, c PendingChange) (PendingChange, error)
	FindPendingChangeByRef(ctx context.Context, tx *dbtx.Handle, kind ChangeKind, refID StornoID) (*PendingChange, error)
	UpdatePendingChange(ctx context.Context, tx *dbtx.Handle, c PendingChange) error
	ListPendingChanges(ctx context.Context, tx *dbtx.Handle) ([]PendingChange, error)

	WithTx(ctx context.Context, fn func(h *dbtx.Handle) error) error
}
