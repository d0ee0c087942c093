// Package approval implements the two-party approval record shared by
// requisitions and purchase orders. A record tracks one set-once flag
// per required approver role and derives an aggregate decision from
// them; approved and rejected are both terminal.
package approval

import (
	"errors"
	"time"
)

// Decision is the aggregate state of a record.
type Decision string

const (
	DecisionPending  Decision = "PENDING"
	DecisionApproved Decision = "APPROVED"
	DecisionRejected Decision = "REJECTED"
)

var (
	// ErrAlreadyApproved occurs when an approver slot is set twice.
	ErrAlreadyApproved = errors.New("approval: slot already approved")
	// ErrFinalized occurs when acting on an approved or rejected record.
	ErrFinalized = errors.New("approval: record finalized")
	// ErrUnknownRole occurs when the role has no slot on this record.
	ErrUnknownRole = errors.New("approval: role has no approver slot")
	// ErrReasonRequired occurs when a rejection carries no reason.
	ErrReasonRequired = errors.New("approval: rejection reason required")
)

// Slot records one approver's decision.
type Slot struct {
	Role       string     `json:"role"`
	Approved   bool       `json:"approved"`
	ApprovedBy string     `json:"approved_by,omitempty"`
	ApprovedAt *time.Time `json:"approved_at,omitempty"`
}

// Record aggregates the required approver slots of one document.
type Record struct {
	Slots          []Slot     `json:"slots"`
	Rejected       bool       `json:"rejected"`
	RejectedBy     string     `json:"rejected_by,omitempty"`
	RejectedReason string     `json:"rejected_reason,omitempty"`
	RejectedAt     *time.Time `json:"rejected_at,omitempty"`
}

// NewRecord builds a pending record with one slot per required role.
func NewRecord(roles ...string) Record {
	slots := make([]Slot, 0, len(roles))
	for _, role := range roles {
		slots = append(slots, Slot{Role: role})
	}
	return Record{Slots: slots}
}

// Status derives the aggregate decision. Approved only when every slot
// is set; rejected wins over everything once recorded.
func (r *Record) Status() Decision {
	if r.Rejected {
		return DecisionRejected
	}
	if len(r.Slots) == 0 {
		return DecisionPending
	}
	for _, slot := range r.Slots {
		if !slot.Approved {
			return DecisionPending
		}
	}
	return DecisionApproved
}

// Approve sets the slot for role. Setting a slot twice or acting on a
// finalized record is a conflict, not a silent overwrite.
func (r *Record) Approve(role, actor string, at time.Time) error {
	if r.Status() != DecisionPending {
		return ErrFinalized
	}
	for i := range r.Slots {
		if r.Slots[i].Role != role {
			continue
		}
		if r.Slots[i].Approved {
			return ErrAlreadyApproved
		}
		r.Slots[i].Approved = true
		r.Slots[i].ApprovedBy = actor
		t := at
		r.Slots[i].ApprovedAt = &t
		return nil
	}
	return ErrUnknownRole
}

// Reject finalizes the record with a mandatory reason. Any approver
// slot holder may reject while the record is still pending.
func (r *Record) Reject(role, actor, reason string, at time.Time) error {
	if reason == "" {
		return ErrReasonRequired
	}
	if r.Status() != DecisionPending {
		return ErrFinalized
	}
	known := false
	for _, slot := range r.Slots {
		if slot.Role == role {
			known = true
			break
		}
	}
	if !known {
		return ErrUnknownRole
	}
	r.Rejected = true
	r.RejectedBy = actor
	r.RejectedReason = reason
	t := at
	r.RejectedAt = &t
	return nil
}

// SlotFor returns the slot for role, if present.
func (r *Record) SlotFor(role string) (Slot, bool) {
	for _, slot := range r.Slots {
		if slot.Role == role {
			return slot, true
		}
	}
	return Slot{}, false
}
