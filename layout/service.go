package layout

import (
	"context"
	"time"

	"github.com/fiskpoint/posengine/ferrors"
	"github.com/fiskpoint/posengine/store/dbtx"
)

type Service struct {
	Repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{Repo: repo}
}

// SaveLayout implements spec §4.10: always inserts a new, inactive
// snapshot - activation is a separate, explicit step.
func (s *Service) SaveLayout(ctx context.Context, name string, categoriesSnapshot []byte, sourceType string) (*Layout, error) {
	now := time.Now().UTC()
	created, err := s.Repo.CreateLayout(ctx, nil, Layout{
		Name:               name,
		CategoriesSnapshot: categoriesSnapshot,
		SourceType:         sourceType,
		IsActive:           false,
		CreatedAt:          now,
		UpdatedAt:          now,
	})
	if err != nil {
		return nil, err
	}
	return &created, nil
}

// ActivateLayout implements spec §4.10's single-active-row invariant: inside
// one envelope, deactivate every layout, then activate the requested one.
func (s *Service) ActivateLayout(ctx context.Context, id LayoutID) (*Layout, error) {
	var result Layout
	err := s.Repo.WithTx(ctx, func(h *dbtx.Handle) error {
		existing, err := s.Repo.FindLayout(ctx, h, id)
		if err != nil {
			return err
		}
		if existing == nil {
			return ferrors.New(ferrors.NotFound, "layout %d not found", id)
		}
		if err := s.Repo.DeactivateAllLayouts(ctx, h); err != nil {
			return err
		}
		if err := s.Repo.SetLayoutActive(ctx, h, id, true); err != nil {
			return err
		}
		existing.IsActive = true
		existing.UpdatedAt = time.Now().UTC()
		result = *existing
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// GetActiveLayout implements spec §4.10: the active layout, or (if none is
// marked active) the most recently created one.
func (s *Service) GetActiveLayout(ctx context.Context) (*Layout, error) {
	active, err := s.Repo.FindActiveLayout(ctx, nil)
	if err != nil {
		return nil, err
	}
	if active != nil {
		return active, nil
	}
	return s.Repo.FindMostRecentLayout(ctx, nil)
}

// ListLayouts returns every saved layout.
func (s *Service) ListLayouts(ctx context.Context) ([]Layout, error) {
	return s.Repo.ListLayouts(ctx, nil)
}
