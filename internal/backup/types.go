// Package backup serializes every managed collection into one dated
// document and restores such a document by replacing the whole data
// set inside a single transaction.
package backup

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"
)

// Number is a float64 that also accepts numeric strings on input.
// Older export tools stringified every value.
type Number float64

// UnmarshalJSON implements json.Unmarshaler.
func (n *Number) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*n = 0
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s == "" {
			*n = 0
			return nil
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("numeric string %q: %w", s, err)
		}
		*n = Number(v)
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*n = Number(v)
	return nil
}

// Timestamp accepts RFC3339 or plain date strings on input and writes
// RFC3339 on output.
type Timestamp time.Time

var timestampLayouts = []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"}

// UnmarshalJSON implements json.Unmarshaler.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*t = Timestamp{}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*t = Timestamp{}
		return nil
	}
	for _, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			*t = Timestamp(parsed)
			return nil
		}
	}
	return fmt.Errorf("unrecognized timestamp %q", s)
}

// MarshalJSON implements json.Marshaler.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	if time.Time(t).IsZero() {
		return []byte(`null`), nil
	}
	return json.Marshal(time.Time(t).Format(time.RFC3339))
}

// Time converts back to time.Time.
func (t Timestamp) Time() time.Time { return time.Time(t) }

// IsZero reports whether the timestamp is unset.
func (t Timestamp) IsZero() bool { return time.Time(t).IsZero() }

// Document is the full backup envelope. Field names follow the export
// format, not Go conventions.
type Document struct {
	BackupDate         Timestamp            `json:"backupDate" validate:"required"`
	PPMPItems          []PlanItemRow        `json:"ppmpItems"`
	Requisitions       []RequisitionRow     `json:"requisitions"`
	RequisitionItems   []RequisitionItemRow `json:"requisitionItems"`
	Quotations         []QuotationRow       `json:"quotations"`
	QuotationItems     []QuotationItemRow   `json:"quotationItems"`
	Abstracts          []AbstractRow        `json:"abstracts"`
	PurchaseOrders     []PurchaseOrderRow   `json:"purchaseOrders"`
	PurchaseOrderItems []POItemRow          `json:"purchaseOrderItems"`
}

// PlanItemRow mirrors ppmp_items.
type PlanItemRow struct {
	ID           Number    `json:"id"`
	OwnerID      Number    `json:"ownerId"`
	Year         Number    `json:"year"`
	Description  string    `json:"description"`
	Unit         string    `json:"unit"`
	PlannedQty   Number    `json:"plannedQty"`
	RemainingQty Number    `json:"remainingQty"`
	UnitCost     Number    `json:"unitCost"`
	CreatedAt    Timestamp `json:"createdAt"`
}

// RequisitionRow mirrors requisitions, approval columns included.
type RequisitionRow struct {
	ID                 Number     `json:"id"`
	PRNo               string     `json:"prno"`
	RequesterID        Number     `json:"requesterId"`
	RequesterName      string     `json:"requesterName"`
	Department         string     `json:"department"`
	Section            string     `json:"section"`
	Purpose            string     `json:"purpose"`
	Mode               string     `json:"procurementMode"`
	OverallTotal       Number     `json:"overallTotal"`
	Status             string     `json:"status"`
	QuotationRequested bool       `json:"quotationRequested"`
	LetterURL          string     `json:"letterUrl"`
	CertificationURL   string     `json:"certificationUrl"`
	ProposalURL        string     `json:"proposalUrl"`
	AccountantApproved bool       `json:"accountantApproved"`
	AccountantName     *string    `json:"accountantName"`
	AccountantAt       *Timestamp `json:"accountantAt"`
	PresidentApproved  bool       `json:"presidentApproved"`
	PresidentName      *string    `json:"presidentName"`
	PresidentAt        *Timestamp `json:"presidentAt"`
	Rejected           bool       `json:"rejected"`
	RejectedBy         *string    `json:"rejectedBy"`
	RejectedReason     *string    `json:"rejectedReason"`
	RejectedAt         *Timestamp `json:"rejectedAt"`
	Date               Timestamp  `json:"date"`
}

// RequisitionItemRow mirrors requisition_items.
type RequisitionItemRow struct {
	ID            Number `json:"id"`
	RequisitionID Number `json:"requisitionId"`
	ItemNo        Number `json:"itemNo"`
	Description   string `json:"description"`
	Unit          string `json:"unit"`
	Qty           Number `json:"qty"`
	UnitCost      Number `json:"unitCost"`
	TotalCost     Number `json:"totalCost"`
}

// QuotationRow mirrors quotations.
type QuotationRow struct {
	ID       Number    `json:"id"`
	PRNo     string    `json:"prno"`
	Supplier string    `json:"supplier"`
	Total    Number    `json:"total"`
	Date     Timestamp `json:"date"`
}

// QuotationItemRow mirrors quotation_items.
type QuotationItemRow struct {
	ID          Number `json:"id"`
	QuotationID Number `json:"quotationId"`
	ItemNo      Number `json:"itemNo"`
	Description string `json:"description"`
	Unit        string `json:"unit"`
	Qty         Number `json:"qty"`
	UnitCost    Number `json:"unitCost"`
	TotalCost   Number `json:"totalCost"`
}

// AbstractRow mirrors abstracts; the matrix snapshot travels as-is.
type AbstractRow struct {
	ID            Number          `json:"id"`
	PRNo          string          `json:"prno"`
	WinningBidder string          `json:"winningBidder"`
	BudgetCeiling Number          `json:"budgetCeiling"`
	Matrix        json.RawMessage `json:"matrix"`
	SavedBy       Number          `json:"savedBy"`
	SavedAt       Timestamp       `json:"savedAt"`
}

// PurchaseOrderRow mirrors purchase_orders.
type PurchaseOrderRow struct {
	ID                 Number     `json:"id"`
	PONo               string     `json:"pono"`
	PRNo               string     `json:"prno"`
	RequisitionID      Number     `json:"requisitionId"`
	QuotationID        Number     `json:"quotationId"`
	Supplier           string     `json:"supplier"`
	Total              Number     `json:"total"`
	Status             string     `json:"status"`
	AccountantApproved bool       `json:"accountantApproved"`
	AccountantName     *string    `json:"accountantName"`
	AccountantAt       *Timestamp `json:"accountantAt"`
	PresidentApproved  bool       `json:"presidentApproved"`
	PresidentName      *string    `json:"presidentName"`
	PresidentAt        *Timestamp `json:"presidentAt"`
	Rejected           bool       `json:"rejected"`
	RejectedBy         *string    `json:"rejectedBy"`
	RejectedReason     *string    `json:"rejectedReason"`
	RejectedAt         *Timestamp `json:"rejectedAt"`
	Date               Timestamp  `json:"date"`
}

// POItemRow mirrors purchase_order_items.
type POItemRow struct {
	ID              Number `json:"id"`
	PurchaseOrderID Number `json:"purchaseOrderId"`
	ItemNo          Number `json:"itemNo"`
	Description     string `json:"description"`
	Unit            string `json:"unit"`
	Qty             Number `json:"qty"`
	UnitCost        Number `json:"unitCost"`
	TotalCost       Number `json:"totalCost"`
}

var (
	// ErrMalformed indicates the document is not parseable JSON or fails
	// envelope validation.
	ErrMalformed = errors.New("backup: malformed document")
	// ErrStale indicates the document's backupDate is outside the
	// freshness window.
	ErrStale = errors.New("backup: document older than freshness window")
)
