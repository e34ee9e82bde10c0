/*
layout.go adapts *Store to layout.Repository: the layouts table.
*/
package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/fiskpoint/posengine/layout"
	"github.com/fiskpoint/posengine/store/dbtx"
)

type LayoutRepo struct{ *Store }

func NewLayoutRepo(s *Store) *LayoutRepo { return &LayoutRepo{s} }

func (r *LayoutRepo) q(tx *dbtx.Handle) dbtx.Querier { return tx.Or(r.pool()) }

const layoutSelectCols = `SELECT id, name, categories_snapshot, source_type, is_active, created_at, updated_at `

func (r *LayoutRepo) CreateLayout(ctx context.Context, tx *dbtx.Handle, l layout.Layout) (layout.Layout, error) {
	res, err := r.q(tx).ExecContext(ctx,
		`INSERT INTO layouts (name, categories_snapshot, source_type, is_active, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		l.Name, l.CategoriesSnapshot, l.SourceType, boolToInt(l.IsActive),
		l.CreatedAt.UTC().Format(time.RFC3339), l.UpdatedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return layout.Layout{}, err
	}
	id, _ := res.LastInsertId()
	l.ID = layout.LayoutID(id)
	return l, nil
}

func (r *LayoutRepo) FindLayout(ctx context.Context, tx *dbtx.Handle, id layout.LayoutID) (*layout.Layout, error) {
	row := r.q(tx).QueryRowContext(ctx, layoutSelectCols+`FROM layouts WHERE id = ?`, id)
	return scanLayout(row)
}

func (r *LayoutRepo) ListLayouts(ctx context.Context, tx *dbtx.Handle) ([]layout.Layout, error) {
	rows, err := r.q(tx).QueryContext(ctx, layoutSelectCols+`FROM layouts ORDER BY id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []layout.Layout
	for rows.Next() {
		l, err := scanLayoutRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *l)
	}
	return out, rows.Err()
}

func (r *LayoutRepo) DeactivateAllLayouts(ctx context.Context, tx *dbtx.Handle) error {
	_, err := r.q(tx).ExecContext(ctx, `UPDATE layouts SET is_active = 0 WHERE is_active = 1`)
	return err
}

func (r *LayoutRepo) SetLayoutActive(ctx context.Context, tx *dbtx.Handle, id layout.LayoutID, active bool) error {
	_, err := r.q(tx).ExecContext(ctx, `UPDATE layouts SET is_active = ?, updated_at = ? WHERE id = ?`,
		boolToInt(active), time.Now().UTC().Format(time.RFC3339), id)
	return err
}

func (r *LayoutRepo) FindActiveLayout(ctx context.Context, tx *dbtx.Handle) (*layout.Layout, error) {
	row := r.q(tx).QueryRowContext(ctx, layoutSelectCols+`FROM layouts WHERE is_active = 1 LIMIT 1`)
	return scanLayout(row)
}

func (r *LayoutRepo) FindMostRecentLayout(ctx context.Context, tx *dbtx.Handle) (*layout.Layout, error) {
	row := r.q(tx).QueryRowContext(ctx, layoutSelectCols+`FROM layouts ORDER BY id DESC LIMIT 1`)
	return scanLayout(row)
}

func scanLayout(row *sql.Row) (*layout.Layout, error) {
	var l layout.Layout
	var isActive int
	var created, updated string
	if err := row.Scan(&l.ID, &l.Name, &l.CategoriesSnapshot, &l.SourceType, &isActive, &created, &updated); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	l.IsActive = isActive != 0
	l.CreatedAt, _ = time.Parse(time.RFC3339, created)
	l.UpdatedAt, _ = time.Parse(time.RFC3339, updated)
	return &l, nil
}

func scanLayoutRows(rows *sql.Rows) (*layout.Layout, error) {
	var l layout.Layout
	var isActive int
	var created, updated string
	if err := rows.Scan(&l.ID, &l.Name, &l.CategoriesSnapshot, &l.SourceType, &isActive, &created, &updated); err != nil {
		return nil, err
	}
	l.IsActive = isActive != 0
	l.CreatedAt, _ = time.Parse(time.RFC3339, created)
	l.UpdatedAt, _ = time.Parse(time.RFC3339, updated)
	return &l, nil
}
