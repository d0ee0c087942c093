package ppmp

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

// RepositoryPort defines data access for plan items.
type RepositoryPort interface {
	ListItems(ctx context.Context, ownerID int64, year int) ([]PlanItem, error)
	InsertItems(ctx context.Context, items []PlanItem) error
	Decrement(ctx context.Context, ownerID int64, description string, qty float64) error
}

// Service manages the procurement plan catalog.
type Service struct {
	repo   RepositoryPort
	logger *slog.Logger
	now    func() time.Time
}

// NewService constructs the catalog service.
func NewService(repo RepositoryPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, logger: logger, now: time.Now}
}

// ListItems returns the owner's plan for the given year; a zero year
// means the current one.
func (s *Service) ListItems(ctx context.Context, ownerID int64, year int) ([]PlanItem, error) {
	if year == 0 {
		year = s.now().Year()
	}
	return s.repo.ListItems(ctx, ownerID, year)
}

// CreateItemInput carries one manually added plan line.
type CreateItemInput struct {
	Year        int     `json:"year"`
	Description string  `json:"description"`
	Unit        string  `json:"unit"`
	Qty         float64 `json:"qty"`
	UnitCost    float64 `json:"unit_cost"`
}

// CreateItem adds a single line to the owner's plan.
func (s *Service) CreateItem(ctx context.Context, ownerID int64, input CreateItemInput) (PlanItem, error) {
	if strings.TrimSpace(input.Description) == "" {
		return PlanItem{}, fmt.Errorf("%w: description is required", ErrValidation)
	}
	if input.Qty <= 0 {
		return PlanItem{}, fmt.Errorf("%w: quantity must be positive", ErrValidation)
	}
	if input.UnitCost < 0 {
		return PlanItem{}, fmt.Errorf("%w: unit cost cannot be negative", ErrValidation)
	}
	year := input.Year
	if year == 0 {
		year = s.now().Year()
	}
	item := PlanItem{
		OwnerID:      ownerID,
		Year:         year,
		Description:  strings.TrimSpace(input.Description),
		Unit:         strings.TrimSpace(input.Unit),
		PlannedQty:   input.Qty,
		RemainingQty: input.Qty,
		UnitCost:     input.UnitCost,
		CreatedAt:    s.now(),
	}
	if err := s.repo.InsertItems(ctx, []PlanItem{item}); err != nil {
		return PlanItem{}, err
	}
	return item, nil
}

// ImportWorkbook loads plan items from the first sheet of an Excel
// workbook. The sheet must have a header row followed by rows of
// description, unit, quantity and unit cost. Rows with a bad quantity
// or unit cost are skipped, not fatal; the skipped count comes back
// alongside the imported one.
func (s *Service) ImportWorkbook(ctx context.Context, ownerID int64, year int, r io.Reader) (imported, skipped int, err error) {
	if year == 0 {
		year = s.now().Year()
	}
	wb, err := excelize.OpenReader(r)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: cannot open workbook: %v", ErrValidation, err)
	}
	defer wb.Close()

	sheet := wb.GetSheetName(0)
	if sheet == "" {
		return 0, 0, ErrEmptyWorkbook
	}
	rows, err := wb.GetRows(sheet)
	if err != nil {
		return 0, 0, fmt.Errorf("ppmp: read sheet %q: %w", sheet, err)
	}
	if len(rows) <= 1 {
		return 0, 0, ErrEmptyWorkbook
	}

	now := s.now()
	var items []PlanItem
	for i, row := range rows[1:] {
		if len(row) == 0 || strings.TrimSpace(cell(row, 0)) == "" {
			continue
		}
		qty, qtyErr := parseNumber(cell(row, 2))
		unitCost, costErr := parseNumber(cell(row, 3))
		if qtyErr != nil || qty <= 0 || costErr != nil || unitCost < 0 {
			skipped++
			s.logger.Warn("ppmp import row skipped", slog.Int("row", i+2))
			continue
		}
		items = append(items, PlanItem{
			OwnerID:      ownerID,
			Year:         year,
			Description:  strings.TrimSpace(cell(row, 0)),
			Unit:         strings.TrimSpace(cell(row, 1)),
			PlannedQty:   qty,
			RemainingQty: qty,
			UnitCost:     unitCost,
			CreatedAt:    now,
		})
	}
	if len(items) == 0 && skipped == 0 {
		return 0, 0, ErrEmptyWorkbook
	}
	if len(items) > 0 {
		if err := s.repo.InsertItems(ctx, items); err != nil {
			return 0, skipped, err
		}
	}
	return len(items), skipped, nil
}

// ConsumeQuantities draws requested quantities down from the owner's
// plan, matching on description. Items not on the plan are skipped and
// remaining quantities floor at zero; the caller treats this as
// advisory bookkeeping, not a hard reservation.
func (s *Service) ConsumeQuantities(ctx context.Context, ownerID int64, demands []Demand) error {
	for _, d := range demands {
		if d.Qty <= 0 {
			continue
		}
		if err := s.repo.Decrement(ctx, ownerID, d.Description, d.Qty); err != nil {
			s.logger.Warn("ppmp decrement",
				slog.String("description", d.Description),
				slog.Any("error", err))
		}
	}
	return nil
}

func cell(row []string, i int) string {
	if i >= len(row) {
		return ""
	}
	return row[i]
}

func parseNumber(raw string) (float64, error) {
	cleaned := strings.ReplaceAll(strings.TrimSpace(raw), ",", "")
	if cleaned == "" {
		return 0, fmt.Errorf("empty")
	}
	return strconv.ParseFloat(cleaned, 64)
}
