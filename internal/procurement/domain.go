package procurement

import (
	"errors"
	"time"

	"github.com/procura-erp/procura-erp/internal/approval"
)

// Status is the aggregate lifecycle state of a requisition or purchase
// order, derived from its approval record.
type Status string

const (
	StatusPending  Status = "PENDING"
	StatusApproved Status = "APPROVED"
	StatusRejected Status = "REJECTED"
)

// Mode classifies a requisition by total value against fixed
// monetary thresholds.
type Mode string

const (
	ModeShopping   Mode = "Shopping"
	ModeSmallValue Mode = "Small Value Procurement"
	ModeBidding    Mode = "Competitive Bidding"
)

// Procurement mode thresholds in pesos.
const (
	shoppingCeiling   = 50_000
	smallValueCeiling = 1_000_000
)

// ModeFor derives the procurement mode from a requisition total.
func ModeFor(total float64) Mode {
	switch {
	case total < shoppingCeiling:
		return ModeShopping
	case total < smallValueCeiling:
		return ModeSmallValue
	default:
		return ModeBidding
	}
}

// Approver roles required on both requisitions and purchase orders.
const (
	RoleAccountant = "ACCOUNTANT"
	RolePresident  = "PRESIDENT"
)

// Requisition is a purchase request submitted by an office.
type Requisition struct {
	ID                 int64
	PRNo               string
	RequesterID        int64
	RequesterName      string
	Department         string
	Section            string
	Purpose            string
	Mode               Mode
	OverallTotal       float64
	Approvals          approval.Record
	Status             Status
	QuotationRequested bool
	LetterURL          string
	CertificationURL   string
	ProposalURL        string
	Date               time.Time
}

// LineItem belongs to exactly one requisition. TotalCost is computed
// once at creation and never re-derived.
type LineItem struct {
	ID            int64
	RequisitionID int64
	ItemNo        int
	Description   string
	Unit          string
	Qty           float64
	UnitCost      float64
	TotalCost     float64
}

// PurchaseOrder is issued to the winning supplier. It carries its own
// copy of items and a fresh approval record independent of the
// requisition's.
type PurchaseOrder struct {
	ID            int64
	PONo          string
	PRNo          string
	RequisitionID int64
	QuotationID   int64
	Supplier      string
	Total         float64
	Approvals     approval.Record
	Status        Status
	Date          time.Time
}

// POItem is one purchase order line.
type POItem struct {
	ID              int64
	PurchaseOrderID int64
	ItemNo          int
	Description     string
	Unit            string
	Qty             float64
	UnitCost        float64
	TotalCost       float64
}

// RequisitionSummary is the list view shape, ordered by date descending.
type RequisitionSummary struct {
	ID         int64     `json:"id"`
	PRNo       string    `json:"prno"`
	Department string    `json:"department"`
	Section    string    `json:"section"`
	Date       time.Time `json:"date"`
	Mode       Mode      `json:"procurement_mode"`
	Status     Status    `json:"status"`
}

// PurchaseOrderSummary is the PO list view shape.
type PurchaseOrderSummary struct {
	ID       int64     `json:"id"`
	PONo     string    `json:"pono"`
	PRNo     string    `json:"prno"`
	Supplier string    `json:"supplier"`
	Total    float64   `json:"total"`
	Date     time.Time `json:"date"`
	Status   Status    `json:"status"`
}

var (
	// ErrNotFound indicates record missing.
	ErrNotFound = errors.New("procurement: not found")
	// ErrValidation indicates invalid input.
	ErrValidation = errors.New("procurement: invalid input")
	// ErrInvalidState occurs when an action violates the status workflow.
	ErrInvalidState = errors.New("procurement: invalid state transition")
	// ErrConflict occurs on re-approval or duplicate conversion attempts.
	ErrConflict = errors.New("procurement: conflict")
	// ErrForbidden occurs when the caller's role does not match the approver slot.
	ErrForbidden = errors.New("procurement: role not allowed")
)
