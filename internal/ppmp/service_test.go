package ppmp

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

type memoryPlanRepo struct {
	mu     sync.Mutex
	items  []PlanItem
	nextID int64
}

func (m *memoryPlanRepo) ListItems(_ context.Context, ownerID int64, year int) ([]PlanItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var list []PlanItem
	for _, item := range m.items {
		if item.OwnerID == ownerID && item.Year == year {
			list = append(list, item)
		}
	}
	return list, nil
}

func (m *memoryPlanRepo) InsertItems(_ context.Context, items []PlanItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, item := range items {
		m.nextID++
		item.ID = m.nextID
		m.items = append(m.items, item)
	}
	return nil
}

func (m *memoryPlanRepo) Decrement(_ context.Context, ownerID int64, description string, qty float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.items {
		if m.items[i].OwnerID == ownerID && strings.EqualFold(m.items[i].Description, description) {
			m.items[i].RemainingQty -= qty
			if m.items[i].RemainingQty < 0 {
				m.items[i].RemainingQty = 0
			}
		}
	}
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func workbookBytes(t *testing.T, rows [][]any) []byte {
	t.Helper()
	wb := excelize.NewFile()
	sheet := wb.GetSheetName(0)
	for i, row := range rows {
		addr, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, wb.SetSheetRow(sheet, addr, &row))
	}
	var buf bytes.Buffer
	require.NoError(t, wb.Write(&buf))
	return buf.Bytes()
}

func TestImportWorkbook(t *testing.T) {
	repo := &memoryPlanRepo{}
	svc := NewService(repo, testLogger())

	data := workbookBytes(t, [][]any{
		{"Description", "Unit", "Qty", "Unit Cost"},
		{"Bond paper", "ream", 120, 250},
		{"Toner", "pc", 12, 3500.50},
	})

	imported, skipped, err := svc.ImportWorkbook(context.Background(), 1, 2026, bytes.NewReader(data))
	require.NoError(t, err)
	require.Equal(t, 2, imported)
	require.Zero(t, skipped)

	items, err := svc.ListItems(context.Background(), 1, 2026)
	require.NoError(t, err)
	require.Len(t, items, 2)
	require.Equal(t, "Bond paper", items[0].Description)
	require.Equal(t, float64(120), items[0].PlannedQty)
	require.Equal(t, float64(120), items[0].RemainingQty)
	require.Equal(t, 3500.50, items[1].UnitCost)
}

func TestImportWorkbookSkipsMalformedRows(t *testing.T) {
	repo := &memoryPlanRepo{}
	svc := NewService(repo, testLogger())

	data := workbookBytes(t, [][]any{
		{"Description", "Unit", "Qty", "Unit Cost"},
		{"Bond paper", "ream", "not-a-number", 250},
		{"Toner", "pc", 12, 3500},
		{"Stapler", "pc", 5, -1},
	})
	imported, skipped, err := svc.ImportWorkbook(context.Background(), 1, 2026, bytes.NewReader(data))
	require.NoError(t, err)
	require.Equal(t, 1, imported)
	require.Equal(t, 2, skipped)

	items, err := svc.ListItems(context.Background(), 1, 2026)
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, "Toner", items[0].Description)

	// All rows malformed is still not an error; nothing lands.
	data = workbookBytes(t, [][]any{
		{"Description", "Unit", "Qty", "Unit Cost"},
		{"Bond paper", "ream", 0, 250},
	})
	imported, skipped, err = svc.ImportWorkbook(context.Background(), 2, 2026, bytes.NewReader(data))
	require.NoError(t, err)
	require.Zero(t, imported)
	require.Equal(t, 1, skipped)
}

func TestImportWorkbookRejectsEmptyInput(t *testing.T) {
	svc := NewService(&memoryPlanRepo{}, testLogger())

	data := workbookBytes(t, [][]any{{"Description", "Unit", "Qty", "Unit Cost"}})
	_, _, err := svc.ImportWorkbook(context.Background(), 1, 2026, bytes.NewReader(data))
	require.ErrorIs(t, err, ErrEmptyWorkbook)

	_, _, err = svc.ImportWorkbook(context.Background(), 1, 2026, strings.NewReader("not an xlsx"))
	require.ErrorIs(t, err, ErrValidation)
}

func TestCreateItemValidates(t *testing.T) {
	repo := &memoryPlanRepo{}
	svc := NewService(repo, testLogger())

	item, err := svc.CreateItem(context.Background(), 1, CreateItemInput{
		Year: 2026, Description: "  Bond paper ", Unit: "ream", Qty: 50, UnitCost: 250,
	})
	require.NoError(t, err)
	require.Equal(t, "Bond paper", item.Description)
	require.Equal(t, float64(50), item.RemainingQty)

	_, err = svc.CreateItem(context.Background(), 1, CreateItemInput{Description: "", Qty: 1})
	require.ErrorIs(t, err, ErrValidation)

	_, err = svc.CreateItem(context.Background(), 1, CreateItemInput{Description: "Toner", Qty: 0})
	require.ErrorIs(t, err, ErrValidation)

	_, err = svc.CreateItem(context.Background(), 1, CreateItemInput{Description: "Toner", Qty: 1, UnitCost: -5})
	require.ErrorIs(t, err, ErrValidation)
}

func TestConsumeQuantitiesFloorsAtZero(t *testing.T) {
	repo := &memoryPlanRepo{}
	svc := NewService(repo, testLogger())

	require.NoError(t, repo.InsertItems(context.Background(), []PlanItem{
		{OwnerID: 1, Year: 2026, Description: "Bond paper", PlannedQty: 10, RemainingQty: 10},
	}))

	err := svc.ConsumeQuantities(context.Background(), 1, []Demand{
		{Description: "bond paper", Qty: 4},
		{Description: "Unplanned thing", Qty: 99},
	})
	require.NoError(t, err)

	items, err := svc.ListItems(context.Background(), 1, 2026)
	require.NoError(t, err)
	require.Equal(t, float64(6), items[0].RemainingQty)

	require.NoError(t, svc.ConsumeQuantities(context.Background(), 1, []Demand{{Description: "Bond paper", Qty: 100}}))
	items, _ = svc.ListItems(context.Background(), 1, 2026)
	require.Equal(t, float64(0), items[0].RemainingQty)
}
