package sequence

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

type memoryStore struct {
	mu       sync.Mutex
	counters map[string]int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{counters: make(map[string]int)}
}

func (s *memoryStore) NextValue(ctx context.Context, scope string, year int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := fmt.Sprintf("%s:%d", scope, year)
	s.counters[key]++
	return s.counters[key], nil
}

func TestNextFormat(t *testing.T) {
	gen := NewGenerator(newMemoryStore())
	ctx := context.Background()

	first, err := gen.Next(ctx, ScopeRequisition, 2024)
	require.NoError(t, err)
	require.Equal(t, "001-24", first)

	second, err := gen.Next(ctx, ScopeRequisition, 2024)
	require.NoError(t, err)
	require.Equal(t, "002-24", second)
}

func TestScopesAndYearsAreIndependent(t *testing.T) {
	gen := NewGenerator(newMemoryStore())
	ctx := context.Background()

	pr, err := gen.Next(ctx, ScopeRequisition, 2025)
	require.NoError(t, err)
	po, err := gen.Next(ctx, ScopePurchaseOrder, 2025)
	require.NoError(t, err)
	require.Equal(t, "001-25", pr)
	require.Equal(t, "001-25", po)

	next, err := gen.Next(ctx, ScopeRequisition, 2026)
	require.NoError(t, err)
	require.Equal(t, "001-26", next)
}

func TestConcurrentCallersGetDistinctContiguousNumbers(t *testing.T) {
	store := newMemoryStore()
	const callers = 64

	values := make([]int, callers)
	var wg sync.WaitGroup
	wg.Add(callers)
	for i := 0; i < callers; i++ {
		go func(i int) {
			defer wg.Done()
			n, err := store.NextValue(context.Background(), ScopeRequisition, 2024)
			require.NoError(t, err)
			values[i] = n
		}(i)
	}
	wg.Wait()

	sort.Ints(values)
	for i, v := range values {
		require.Equal(t, i+1, v, "numbers must be contiguous with no gaps or duplicates")
	}
}
