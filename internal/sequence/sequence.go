// Package sequence issues yearly-scoped document numbers such as
// "001-24". Counters live in the document_counters table, one row per
// (scope, year), and are advanced with a single upsert-increment so
// concurrent callers can never observe the same value.
package sequence

import (
	"context"
	"fmt"
)

// Scopes used across the application.
const (
	ScopeRequisition   = "PR"
	ScopePurchaseOrder = "PO"
)

// Store advances the counter for (scope, year) and returns the new
// value. Implementations must make the advance atomic.
type Store interface {
	NextValue(ctx context.Context, scope string, year int) (int, error)
}

// Generator formats counter values as document numbers.
type Generator struct {
	store Store
}

// NewGenerator constructs a Generator.
func NewGenerator(store Store) *Generator {
	return &Generator{store: store}
}

// Next returns the next number for scope in the given year, formatted
// as a 3-digit zero-padded sequence with a 2-digit year suffix.
func (g *Generator) Next(ctx context.Context, scope string, year int) (string, error) {
	n, err := g.store.NextValue(ctx, scope, year)
	if err != nil {
		return "", fmt.Errorf("sequence: failed to generate number: %w", err)
	}
	return Format(n, year), nil
}

// Format renders a counter value as "NNN-YY".
func Format(n, year int) string {
	return fmt.Sprintf("%03d-%02d", n, year%100)
}
