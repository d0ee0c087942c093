package bidding

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"github.com/procura-erp/procura-erp/internal/shared"
)

// RepositoryPort defines data access for quotations and abstracts.
type RepositoryPort interface {
	CreateQuotation(ctx context.Context, q Quotation) (int64, error)
	GetQuotation(ctx context.Context, id int64) (Quotation, error)
	ListQuotations(ctx context.Context, prno string) ([]Quotation, error)
	SaveAbstract(ctx context.Context, a Abstract) (int64, error)
	GetAbstract(ctx context.Context, prno string) (Abstract, error)
}

// RequisitionGate answers whether a requisition number is approved and
// open for quotations, and exposes its approved total as the budget
// ceiling recorded on the abstract.
type RequisitionGate interface {
	QuotationOpen(ctx context.Context, prno string) (bool, error)
	RequisitionTotal(ctx context.Context, prno string) (float64, error)
}

// HistoryPort records the tracking timeline.
type HistoryPort interface {
	Record(ctx context.Context, entry shared.HistoryEntry) error
}

// Service implements quotation intake and the abstract of bids.
type Service struct {
	repo    RepositoryPort
	gate    RequisitionGate
	history HistoryPort
	logger  *slog.Logger
	now     func() time.Time
}

// NewService constructs the bidding service.
func NewService(repo RepositoryPort, gate RequisitionGate, history HistoryPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, gate: gate, history: history, logger: logger, now: time.Now}
}

// QuotationItemInput is one quoted line as submitted.
type QuotationItemInput struct {
	ItemNo      int     `json:"item_no"`
	Description string  `json:"description" validate:"required"`
	Unit        string  `json:"unit"`
	Qty         float64 `json:"qty" validate:"gt=0"`
	UnitCost    float64 `json:"unit_cost" validate:"gte=0"`
}

// SubmitQuotationInput is the quotation intake payload.
type SubmitQuotationInput struct {
	PRNo     string               `json:"prno" validate:"required"`
	Supplier string               `json:"supplier" validate:"required"`
	Items    []QuotationItemInput `json:"items" validate:"min=1,dive"`
}

// SubmitQuotation records a supplier quotation against an open
// requisition. Line totals are computed server-side.
func (s *Service) SubmitQuotation(ctx context.Context, input SubmitQuotationInput) (Quotation, error) {
	if input.PRNo == "" || input.Supplier == "" {
		return Quotation{}, fmt.Errorf("%w: prno and supplier are required", ErrValidation)
	}
	if len(input.Items) == 0 {
		return Quotation{}, fmt.Errorf("%w: at least one quoted item is required", ErrValidation)
	}
	open, err := s.gate.QuotationOpen(ctx, input.PRNo)
	if err != nil {
		return Quotation{}, err
	}
	if !open {
		return Quotation{}, fmt.Errorf("%w: %s", ErrClosed, input.PRNo)
	}

	q := Quotation{
		PRNo:     input.PRNo,
		Supplier: input.Supplier,
		Date:     s.now(),
	}
	for i, item := range input.Items {
		if item.Description == "" {
			return Quotation{}, fmt.Errorf("%w: item %d is missing a description", ErrValidation, i+1)
		}
		if item.Qty <= 0 {
			return Quotation{}, fmt.Errorf("%w: item %d quantity must be positive", ErrValidation, i+1)
		}
		itemNo := item.ItemNo
		if itemNo == 0 {
			itemNo = i + 1
		}
		lineTotal := item.Qty * item.UnitCost
		q.Total += lineTotal
		q.Items = append(q.Items, QuotationItem{
			ItemNo:      itemNo,
			Description: item.Description,
			Unit:        item.Unit,
			Qty:         item.Qty,
			UnitCost:    item.UnitCost,
			TotalCost:   lineTotal,
		})
	}

	id, err := s.repo.CreateQuotation(ctx, q)
	if err != nil {
		return Quotation{}, err
	}
	q.ID = id
	if s.history != nil {
		if err := s.history.Record(ctx, shared.HistoryEntry{
			Module: "REQUISITION",
			DocNo:  q.PRNo,
			Action: shared.HistoryConvert,
			Note:   fmt.Sprintf("quotation received from %s", q.Supplier),
		}); err != nil {
			s.logger.Warn("record history", slog.Any("error", err))
		}
	}
	return q, nil
}

// GetQuotation returns one quotation with items.
func (s *Service) GetQuotation(ctx context.Context, id int64) (Quotation, error) {
	return s.repo.GetQuotation(ctx, id)
}

// ListQuotations returns all quotations submitted for a requisition.
func (s *Service) ListQuotations(ctx context.Context, prno string) ([]Quotation, error) {
	return s.repo.ListQuotations(ctx, prno)
}

// BuildComparison assembles the abstract-of-bids matrix from every
// quotation on record for the requisition. Rows are the union of all
// quoted items; a bidder that skipped an item gets a "-" cell.
func (s *Service) BuildComparison(ctx context.Context, prno string) (Comparison, error) {
	quotations, err := s.repo.ListQuotations(ctx, prno)
	if err != nil {
		return Comparison{}, err
	}
	if len(quotations) == 0 {
		return Comparison{}, fmt.Errorf("%w: no quotations for %s", ErrNotFound, prno)
	}
	return buildComparison(prno, quotations), nil
}

func buildComparison(prno string, quotations []Quotation) Comparison {
	cmp := Comparison{
		PRNo:   prno,
		Totals: make(map[string]string, len(quotations)),
	}

	type rowAgg struct {
		row    ComparisonRow
		prices map[string]float64
	}
	// Rows are keyed by item number; the descriptive columns come from
	// the first quotation that carried the line, so bidders whose
	// wording differs still land in the same row.
	index := make(map[int]*rowAgg)
	var order []*rowAgg

	for _, q := range quotations {
		cmp.Bidders = append(cmp.Bidders, q.Supplier)
		cmp.Totals[q.Supplier] = formatAmount(q.Total)
		for _, item := range q.Items {
			agg, ok := index[item.ItemNo]
			if !ok {
				agg = &rowAgg{
					row: ComparisonRow{
						ItemNo:      item.ItemNo,
						Description: item.Description,
						Unit:        item.Unit,
						Qty:         item.Qty,
					},
					prices: make(map[string]float64),
				}
				index[item.ItemNo] = agg
				order = append(order, agg)
			}
			agg.prices[q.Supplier] = item.UnitCost
		}
	}

	sort.SliceStable(order, func(i, j int) bool { return order[i].row.ItemNo < order[j].row.ItemNo })

	for _, agg := range order {
		row := agg.row
		row.Cells = make([]string, len(cmp.Bidders))
		for j, bidder := range cmp.Bidders {
			if price, ok := agg.prices[bidder]; ok {
				row.Cells[j] = formatAmount(price)
			} else {
				row.Cells[j] = "-"
			}
		}
		cmp.Rows = append(cmp.Rows, row)
	}
	return cmp
}

// SaveAbstract freezes the current comparison for the requisition with
// the committee's chosen winner. Exactly one abstract may exist per
// requisition number.
func (s *Service) SaveAbstract(ctx context.Context, prno, winningBidder string, actorID int64) (Abstract, error) {
	if winningBidder == "" {
		return Abstract{}, fmt.Errorf("%w: winning bidder is required", ErrValidation)
	}
	cmp, err := s.BuildComparison(ctx, prno)
	if err != nil {
		return Abstract{}, err
	}
	found := false
	for _, bidder := range cmp.Bidders {
		if bidder == winningBidder {
			found = true
			break
		}
	}
	if !found {
		return Abstract{}, fmt.Errorf("%w: %s did not submit a quotation for %s", ErrValidation, winningBidder, prno)
	}
	ceiling, err := s.gate.RequisitionTotal(ctx, prno)
	if err != nil {
		return Abstract{}, err
	}
	abstract := Abstract{
		PRNo:          prno,
		WinningBidder: winningBidder,
		BudgetCeiling: ceiling,
		Matrix:        cmp,
		SavedBy:       actorID,
		SavedAt:       s.now(),
	}
	id, err := s.repo.SaveAbstract(ctx, abstract)
	if err != nil {
		return Abstract{}, err
	}
	abstract.ID = id
	if s.history != nil {
		if err := s.history.Record(ctx, shared.HistoryEntry{
			Module:  "REQUISITION",
			DocNo:   prno,
			ActorID: actorID,
			Action:  shared.HistoryConvert,
			Note:    fmt.Sprintf("abstract of bids saved, award to %s", winningBidder),
		}); err != nil {
			s.logger.Warn("record history", slog.Any("error", err))
		}
	}
	return abstract, nil
}

// GetAbstract returns the saved snapshot, not a fresh rebuild.
func (s *Service) GetAbstract(ctx context.Context, prno string) (Abstract, error) {
	return s.repo.GetAbstract(ctx, prno)
}

func formatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
