package bidding

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/procura-erp/procura-erp/internal/platform/db"
)

// Repository provides PostgreSQL backed persistence for quotations and
// abstracts of bids.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// CreateQuotation stores the quotation and its items in one transaction.
func (r *Repository) CreateQuotation(ctx context.Context, q Quotation) (int64, error) {
	var id int64
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `INSERT INTO quotations (prno, supplier, total, date)
VALUES ($1, $2, $3, $4) RETURNING id`, q.PRNo, q.Supplier, q.Total, q.Date).Scan(&id)
		if err != nil {
			return err
		}
		for _, item := range q.Items {
			_, err = tx.Exec(ctx, `INSERT INTO quotation_items
(quotation_id, item_no, description, unit, qty, unit_cost, total_cost)
VALUES ($1,$2,$3,$4,$5,$6,$7)`,
				id, item.ItemNo, item.Description, item.Unit, item.Qty, item.UnitCost, item.TotalCost)
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// GetQuotation fetches one quotation with its items.
func (r *Repository) GetQuotation(ctx context.Context, id int64) (Quotation, error) {
	row := r.pool.QueryRow(ctx, `SELECT id, prno, supplier, total, date FROM quotations WHERE id = $1`, id)
	var q Quotation
	if err := row.Scan(&q.ID, &q.PRNo, &q.Supplier, &q.Total, &q.Date); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Quotation{}, ErrNotFound
		}
		return Quotation{}, err
	}
	items, err := r.queryItems(ctx, q.ID)
	if err != nil {
		return Quotation{}, err
	}
	q.Items = items
	return q, nil
}

// ListQuotations returns all quotations for a requisition number in
// submission order.
func (r *Repository) ListQuotations(ctx context.Context, prno string) ([]Quotation, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, prno, supplier, total, date FROM quotations
WHERE prno = $1 ORDER BY id`, prno)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var quotations []Quotation
	for rows.Next() {
		var q Quotation
		if err := rows.Scan(&q.ID, &q.PRNo, &q.Supplier, &q.Total, &q.Date); err != nil {
			return nil, err
		}
		quotations = append(quotations, q)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range quotations {
		items, err := r.queryItems(ctx, quotations[i].ID)
		if err != nil {
			return nil, err
		}
		quotations[i].Items = items
	}
	return quotations, nil
}

func (r *Repository) queryItems(ctx context.Context, quotationID int64) ([]QuotationItem, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, quotation_id, item_no, description, unit, qty, unit_cost, total_cost
FROM quotation_items WHERE quotation_id = $1 ORDER BY item_no`, quotationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []QuotationItem
	for rows.Next() {
		var item QuotationItem
		if err := rows.Scan(&item.ID, &item.QuotationID, &item.ItemNo, &item.Description, &item.Unit,
			&item.Qty, &item.UnitCost, &item.TotalCost); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// SaveAbstract inserts the snapshot; a second snapshot for the same
// requisition is a conflict, never an overwrite.
func (r *Repository) SaveAbstract(ctx context.Context, a Abstract) (int64, error) {
	matrixJSON, err := json.Marshal(a.Matrix)
	if err != nil {
		return 0, err
	}
	var id int64
	err = r.pool.QueryRow(ctx, `INSERT INTO abstracts (prno, winning_bidder, budget_ceiling, matrix, saved_by, saved_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (prno) DO NOTHING
RETURNING id`, a.PRNo, a.WinningBidder, a.BudgetCeiling, matrixJSON, a.SavedBy, a.SavedAt).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrConflict
		}
		return 0, err
	}
	return id, nil
}

// GetAbstract loads the saved snapshot for a requisition.
func (r *Repository) GetAbstract(ctx context.Context, prno string) (Abstract, error) {
	row := r.pool.QueryRow(ctx, `SELECT id, prno, winning_bidder, budget_ceiling, matrix, saved_by, saved_at FROM abstracts WHERE prno = $1`, prno)
	var a Abstract
	var matrixJSON []byte
	if err := row.Scan(&a.ID, &a.PRNo, &a.WinningBidder, &a.BudgetCeiling, &matrixJSON, &a.SavedBy, &a.SavedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Abstract{}, ErrNotFound
		}
		return Abstract{}, err
	}
	if err := json.Unmarshal(matrixJSON, &a.Matrix); err != nil {
		return Abstract{}, err
	}
	return a, nil
}
