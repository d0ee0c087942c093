package bidding

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

type memoryBidRepo struct {
	mu         sync.Mutex
	quotations map[int64]Quotation
	abstracts  map[string]Abstract
	nextID     int64
}

func newMemoryBidRepo() *memoryBidRepo {
	return &memoryBidRepo{quotations: make(map[int64]Quotation), abstracts: make(map[string]Abstract)}
}

func (m *memoryBidRepo) CreateQuotation(_ context.Context, q Quotation) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	q.ID = m.nextID
	m.quotations[q.ID] = q
	return q.ID, nil
}

func (m *memoryBidRepo) GetQuotation(_ context.Context, id int64) (Quotation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.quotations[id]
	if !ok {
		return Quotation{}, ErrNotFound
	}
	return q, nil
}

func (m *memoryBidRepo) ListQuotations(_ context.Context, prno string) ([]Quotation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var list []Quotation
	for id := int64(1); id <= m.nextID; id++ {
		if q, ok := m.quotations[id]; ok && q.PRNo == prno {
			list = append(list, q)
		}
	}
	return list, nil
}

func (m *memoryBidRepo) SaveAbstract(_ context.Context, a Abstract) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.abstracts[a.PRNo]; exists {
		return 0, ErrConflict
	}
	m.nextID++
	a.ID = m.nextID
	m.abstracts[a.PRNo] = a
	return a.ID, nil
}

func (m *memoryBidRepo) GetAbstract(_ context.Context, prno string) (Abstract, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.abstracts[prno]
	if !ok {
		return Abstract{}, ErrNotFound
	}
	return a, nil
}

type openGate map[string]bool

func (g openGate) QuotationOpen(_ context.Context, prno string) (bool, error) {
	open, ok := g[prno]
	if !ok {
		return false, ErrNotFound
	}
	return open, nil
}

func (g openGate) RequisitionTotal(_ context.Context, prno string) (float64, error) {
	if _, ok := g[prno]; !ok {
		return 0, ErrNotFound
	}
	return 10000, nil
}

func newBidService(repo *memoryBidRepo, gate RequisitionGate) *Service {
	return NewService(repo, gate, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestSubmitQuotationComputesTotals(t *testing.T) {
	svc := newBidService(newMemoryBidRepo(), openGate{"001-26": true})

	q, err := svc.SubmitQuotation(context.Background(), SubmitQuotationInput{
		PRNo:     "001-26",
		Supplier: "Acme Trading",
		Items: []QuotationItemInput{
			{Description: "Bond paper", Unit: "ream", Qty: 10, UnitCost: 240},
			{Description: "Toner", Unit: "pc", Qty: 2, UnitCost: 3400},
		},
	})
	require.NoError(t, err)
	require.Equal(t, float64(10*240+2*3400), q.Total)
	require.Equal(t, 1, q.Items[0].ItemNo)
	require.Equal(t, float64(2400), q.Items[0].TotalCost)
}

func TestSubmitQuotationRequiresOpenRequisition(t *testing.T) {
	svc := newBidService(newMemoryBidRepo(), openGate{"001-26": false})

	_, err := svc.SubmitQuotation(context.Background(), SubmitQuotationInput{
		PRNo:     "001-26",
		Supplier: "Acme",
		Items:    []QuotationItemInput{{Description: "A", Qty: 1, UnitCost: 1}},
	})
	require.ErrorIs(t, err, ErrClosed)
}

func submit(t *testing.T, svc *Service, supplier string, items ...QuotationItemInput) Quotation {
	t.Helper()
	q, err := svc.SubmitQuotation(context.Background(), SubmitQuotationInput{PRNo: "001-26", Supplier: supplier, Items: items})
	require.NoError(t, err)
	return q
}

func TestBuildComparisonUnionsItems(t *testing.T) {
	svc := newBidService(newMemoryBidRepo(), openGate{"001-26": true})

	submit(t, svc, "Acme",
		QuotationItemInput{ItemNo: 1, Description: "Bond paper", Unit: "ream", Qty: 10, UnitCost: 240},
		QuotationItemInput{ItemNo: 2, Description: "Toner", Unit: "pc", Qty: 2, UnitCost: 3400},
	)
	submit(t, svc, "Budget Supplies",
		QuotationItemInput{ItemNo: 1, Description: "Bond paper", Unit: "ream", Qty: 10, UnitCost: 235},
		QuotationItemInput{ItemNo: 3, Description: "Stapler", Unit: "pc", Qty: 5, UnitCost: 120},
	)

	cmp, err := svc.BuildComparison(context.Background(), "001-26")
	require.NoError(t, err)
	require.Equal(t, []string{"Acme", "Budget Supplies"}, cmp.Bidders)
	require.Len(t, cmp.Rows, 3)

	// Row order follows item numbers; cells align with the bidder list.
	require.Equal(t, "Bond paper", cmp.Rows[0].Description)
	require.Equal(t, []string{"240.00", "235.00"}, cmp.Rows[0].Cells)
	require.Equal(t, "Toner", cmp.Rows[1].Description)
	require.Equal(t, []string{"3400.00", "-"}, cmp.Rows[1].Cells)
	require.Equal(t, "Stapler", cmp.Rows[2].Description)
	require.Equal(t, []string{"-", "120.00"}, cmp.Rows[2].Cells)

	require.Equal(t, "9200.00", cmp.Totals["Acme"])
	require.Equal(t, "2950.00", cmp.Totals["Budget Supplies"])
}

func TestBuildComparisonKeysRowsByItemNumber(t *testing.T) {
	svc := newBidService(newMemoryBidRepo(), openGate{"001-26": true})

	submit(t, svc, "Acme",
		QuotationItemInput{ItemNo: 1, Description: "Bond paper", Unit: "ream", Qty: 10, UnitCost: 240},
	)
	// Same line, different wording: still one row, both cells priced.
	submit(t, svc, "Budget Supplies",
		QuotationItemInput{ItemNo: 1, Description: "Bond paper A4 70gsm", Unit: "ream", Qty: 10, UnitCost: 235},
	)

	cmp, err := svc.BuildComparison(context.Background(), "001-26")
	require.NoError(t, err)
	require.Len(t, cmp.Rows, 1)
	require.Equal(t, 1, cmp.Rows[0].ItemNo)
	require.Equal(t, "Bond paper", cmp.Rows[0].Description)
	require.Equal(t, []string{"240.00", "235.00"}, cmp.Rows[0].Cells)
}

func TestBuildComparisonWithoutQuotations(t *testing.T) {
	svc := newBidService(newMemoryBidRepo(), openGate{"001-26": true})
	_, err := svc.BuildComparison(context.Background(), "001-26")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSaveAbstractIsImmutable(t *testing.T) {
	repo := newMemoryBidRepo()
	svc := newBidService(repo, openGate{"001-26": true})

	submit(t, svc, "Acme", QuotationItemInput{Description: "Bond paper", Unit: "ream", Qty: 10, UnitCost: 240})

	abstract, err := svc.SaveAbstract(context.Background(), "001-26", "Acme", 7)
	require.NoError(t, err)
	require.Equal(t, int64(7), abstract.SavedBy)
	require.Equal(t, "Acme", abstract.WinningBidder)
	require.Equal(t, float64(10000), abstract.BudgetCeiling)
	require.Len(t, abstract.Matrix.Rows, 1)

	// A later quotation does not change the saved snapshot.
	submit(t, svc, "Latecomer", QuotationItemInput{Description: "Bond paper", Unit: "ream", Qty: 10, UnitCost: 200})
	stored, err := svc.GetAbstract(context.Background(), "001-26")
	require.NoError(t, err)
	require.Equal(t, []string{"Acme"}, stored.Matrix.Bidders)
	require.Equal(t, "Acme", stored.WinningBidder)

	_, err = svc.SaveAbstract(context.Background(), "001-26", "Latecomer", 7)
	require.ErrorIs(t, err, ErrConflict)
}

func TestSaveAbstractRequiresParticipatingWinner(t *testing.T) {
	svc := newBidService(newMemoryBidRepo(), openGate{"001-26": true})
	submit(t, svc, "Acme", QuotationItemInput{Description: "Bond paper", Unit: "ream", Qty: 10, UnitCost: 240})

	_, err := svc.SaveAbstract(context.Background(), "001-26", "", 7)
	require.ErrorIs(t, err, ErrValidation)

	_, err = svc.SaveAbstract(context.Background(), "001-26", "Ghost Corp", 7)
	require.ErrorIs(t, err, ErrValidation)
}
