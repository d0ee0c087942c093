package bidding

import (
	"errors"
	"time"
)

// Quotation is one supplier's priced response to an open requisition.
type Quotation struct {
	ID       int64           `json:"id"`
	PRNo     string          `json:"prno"`
	Supplier string          `json:"supplier"`
	Total    float64         `json:"total"`
	Date     time.Time       `json:"date"`
	Items    []QuotationItem `json:"items"`
}

// QuotationItem is one quoted line.
type QuotationItem struct {
	ID          int64   `json:"-"`
	QuotationID int64   `json:"-"`
	ItemNo      int     `json:"item_no"`
	Description string  `json:"description"`
	Unit        string  `json:"unit"`
	Qty         float64 `json:"qty"`
	UnitCost    float64 `json:"unit_cost"`
	TotalCost   float64 `json:"total_cost"`
}

// Comparison is the abstract-of-bids matrix: the union of all quoted
// items as rows, one price column per bidder, with "-" marking items a
// bidder did not quote.
type Comparison struct {
	PRNo    string            `json:"prno"`
	Bidders []string          `json:"bidders"`
	Rows    []ComparisonRow   `json:"rows"`
	Totals  map[string]string `json:"totals"`
}

// ComparisonRow is one item row of the matrix. Cells align with the
// Bidders slice.
type ComparisonRow struct {
	ItemNo      int      `json:"item_no"`
	Description string   `json:"description"`
	Unit        string   `json:"unit"`
	Qty         float64  `json:"qty"`
	Cells       []string `json:"cells"`
}

// Abstract is a saved, immutable snapshot of the comparison at the
// moment the committee chose a winner. The winner is a human choice;
// no lowest-bid computation happens here. BudgetCeiling carries the
// requisition's approved total for reference.
type Abstract struct {
	ID            int64      `json:"id"`
	PRNo          string     `json:"prno"`
	WinningBidder string     `json:"winning_bidder"`
	BudgetCeiling float64    `json:"budget_ceiling"`
	Matrix        Comparison `json:"matrix"`
	SavedBy       int64      `json:"saved_by"`
	SavedAt       time.Time  `json:"saved_at"`
}

var (
	// ErrNotFound indicates record missing.
	ErrNotFound = errors.New("bidding: not found")
	// ErrValidation indicates invalid input.
	ErrValidation = errors.New("bidding: invalid input")
	// ErrClosed occurs when quoting against a requisition that is not open.
	ErrClosed = errors.New("bidding: requisition not open for quotations")
	// ErrConflict occurs when saving an abstract that already exists.
	ErrConflict = errors.New("bidding: conflict")
)
