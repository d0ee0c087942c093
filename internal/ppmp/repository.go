package ppmp

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository provides PostgreSQL backed persistence for plan items.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ListItems returns the plan for one owner and year.
func (r *Repository) ListItems(ctx context.Context, ownerID int64, year int) ([]PlanItem, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, owner_id, year, description, unit, planned_qty, remaining_qty, unit_cost, created_at
FROM ppmp_items WHERE owner_id = $1 AND year = $2 ORDER BY id`, ownerID, year)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []PlanItem
	for rows.Next() {
		var item PlanItem
		if err := rows.Scan(&item.ID, &item.OwnerID, &item.Year, &item.Description, &item.Unit,
			&item.PlannedQty, &item.RemainingQty, &item.UnitCost, &item.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// InsertItems stores imported plan items in one transaction.
func (r *Repository) InsertItems(ctx context.Context, items []PlanItem) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()
	for _, item := range items {
		_, err := tx.Exec(ctx, `INSERT INTO ppmp_items
(owner_id, year, description, unit, planned_qty, remaining_qty, unit_cost, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
			item.OwnerID, item.Year, item.Description, item.Unit,
			item.PlannedQty, item.RemainingQty, item.UnitCost, item.CreatedAt)
		if err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

// Decrement draws qty down from the matching plan line, flooring at
// zero. Matching is case-insensitive on description.
func (r *Repository) Decrement(ctx context.Context, ownerID int64, description string, qty float64) error {
	_, err := r.pool.Exec(ctx, `UPDATE ppmp_items
SET remaining_qty = GREATEST(remaining_qty - $3, 0)
WHERE owner_id = $1 AND LOWER(description) = LOWER($2)`, ownerID, description, qty)
	return err
}
