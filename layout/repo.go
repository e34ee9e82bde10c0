package layout

import (
	"context"

	"github.com/fiskpoint/posengine/store/dbtx"
)

// Repository is the C1 typed-CRUD surface over saved layouts.
type Repository interface {
	CreateLayout(ctx context.Context, tx *dbtx.Handle, l Layout) (Layout, error)
	FindLayout(ctx context.Context, tx *dbtx.Handle, id LayoutID) (*Layout, error)
	ListLayouts(ctx context.Context, tx *dbtx.Handle) ([]Layout, error)
	DeactivateAllLayouts(ctx context.Context, tx *dbtx.Handle) error
	SetLayoutActive(ctx context.Context, tx *dbtx.Handle, id LayoutID, active bool) error
	FindActiveLayout(ctx context.Context, tx *dbtx.Handle) (*Layout, error)
	FindMostRecentLayout(ctx context.Context, tx *dbtx.Handle) (*Layout, error)

	WithTx(ctx context.Context, fn func(h *dbtx.Handle) error) error
}
