package sequence

import (
	"context"

	"github.com/jackc/pgx/v5"
)

// Querier is satisfied by *pgxpool.Pool and pgx.Tx, so the counter can
// be advanced inside the caller's transaction. Requisition creation
// relies on this: a failed insert rolls the consumed number back.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// SQLStore advances counters in Postgres.
type SQLStore struct {
	q Querier
}

// NewSQLStore constructs a SQLStore over a pool or transaction.
func NewSQLStore(q Querier) *SQLStore {
	return &SQLStore{q: q}
}

// NextValue performs the fetch-or-create and increment as one
// statement. The ON CONFLICT arm makes the read-modify-write atomic at
// the row level; two concurrent callers serialize on the row lock.
func (s *SQLStore) NextValue(ctx context.Context, scope string, year int) (int, error) {
	const query = `INSERT INTO document_counters (scope, year, last_number)
VALUES ($1, $2, 1)
ON CONFLICT (scope, year)
DO UPDATE SET last_number = document_counters.last_number + 1
RETURNING last_number`
	var n int
	if err := s.q.QueryRow(ctx, query, scope, year).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}
