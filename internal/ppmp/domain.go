// Package ppmp maintains the Project Procurement Management Plan: the
// yearly catalog of planned purchases per office, with remaining
// quantities drawn down as requisitions are filed.
package ppmp

import (
	"errors"
	"time"
)

// PlanItem is one planned purchase line for an office.
type PlanItem struct {
	ID           int64     `json:"id"`
	OwnerID      int64     `json:"owner_id"`
	Year         int       `json:"year"`
	Description  string    `json:"description"`
	Unit         string    `json:"unit"`
	PlannedQty   float64   `json:"planned_qty"`
	RemainingQty float64   `json:"remaining_qty"`
	UnitCost     float64   `json:"unit_cost"`
	CreatedAt    time.Time `json:"created_at"`
}

// Demand is a requested quantity to draw down from the plan.
type Demand struct {
	Description string
	Qty         float64
}

var (
	// ErrNotFound indicates record missing.
	ErrNotFound = errors.New("ppmp: not found")
	// ErrValidation indicates invalid input.
	ErrValidation = errors.New("ppmp: invalid input")
	// ErrEmptyWorkbook occurs when an imported sheet has no data rows.
	ErrEmptyWorkbook = errors.New("ppmp: workbook has no data rows")
)
