package procurement

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/procura-erp/procura-erp/internal/approval"
	"github.com/procura-erp/procura-erp/internal/platform/db"
	"github.com/procura-erp/procura-erp/internal/sequence"
)

// Repository provides PostgreSQL backed persistence for requisitions
// and purchase orders.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// WithTx runs fn inside a single transaction; fn's repository view and
// the document counters share that transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

type txRepository struct {
	tx pgx.Tx
}

func (t *txRepository) NextNumber(ctx context.Context, scope string, year int) (string, error) {
	gen := sequence.NewGenerator(sequence.NewSQLStore(t.tx))
	return gen.Next(ctx, scope, year)
}

const requisitionColumns = `id, prno, requester_id, requester_name, department, section, purpose,
procurement_mode, overall_total, status, quotation_requested,
letter_url, certification_url, proposal_url,
accountant_approved, accountant_name, accountant_at,
president_approved, president_name, president_at,
rejected, rejected_by, rejected_reason, rejected_at, date`

func (t *txRepository) CreateRequisition(ctx context.Context, pr Requisition) (int64, error) {
	cols := approvalColumns(pr.Approvals)
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO requisitions
(prno, requester_id, requester_name, department, section, purpose,
 procurement_mode, overall_total, status, quotation_requested,
 letter_url, certification_url, proposal_url,
 accountant_approved, accountant_name, accountant_at,
 president_approved, president_name, president_at,
 rejected, rejected_by, rejected_reason, rejected_at, date)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24)
RETURNING id`,
		pr.PRNo, pr.RequesterID, pr.RequesterName, pr.Department, pr.Section, pr.Purpose,
		string(pr.Mode), pr.OverallTotal, string(pr.Status), pr.QuotationRequested,
		pr.LetterURL, pr.CertificationURL, pr.ProposalURL,
		cols.accountantApproved, cols.accountantName, cols.accountantAt,
		cols.presidentApproved, cols.presidentName, cols.presidentAt,
		cols.rejected, cols.rejectedBy, cols.rejectedReason, cols.rejectedAt, pr.Date).Scan(&id)
	return id, err
}

func (t *txRepository) InsertLineItem(ctx context.Context, line LineItem) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO requisition_items
(requisition_id, item_no, description, unit, qty, unit_cost, total_cost)
VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		line.RequisitionID, line.ItemNo, line.Description, line.Unit, line.Qty, line.UnitCost, line.TotalCost)
	return err
}

func (t *txRepository) GetRequisition(ctx context.Context, id int64) (Requisition, []LineItem, error) {
	// FOR UPDATE serializes concurrent approvals of the same document.
	row := t.tx.QueryRow(ctx, `SELECT `+requisitionColumns+` FROM requisitions WHERE id = $1 FOR UPDATE`, id)
	pr, err := scanRequisition(row)
	if err != nil {
		return Requisition{}, nil, err
	}
	items, err := queryLineItems(ctx, t.tx, id)
	if err != nil {
		return Requisition{}, nil, err
	}
	return pr, items, nil
}

func (t *txRepository) UpdateRequisitionApprovals(ctx context.Context, id int64, rec approval.Record, status Status) error {
	cols := approvalColumns(rec)
	tag, err := t.tx.Exec(ctx, `UPDATE requisitions SET
accountant_approved=$2, accountant_name=$3, accountant_at=$4,
president_approved=$5, president_name=$6, president_at=$7,
rejected=$8, rejected_by=$9, rejected_reason=$10, rejected_at=$11, status=$12
WHERE id = $1`,
		id,
		cols.accountantApproved, cols.accountantName, cols.accountantAt,
		cols.presidentApproved, cols.presidentName, cols.presidentAt,
		cols.rejected, cols.rejectedBy, cols.rejectedReason, cols.rejectedAt, string(status))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *txRepository) MarkQuotationRequested(ctx context.Context, id int64) (bool, error) {
	tag, err := t.tx.Exec(ctx, `UPDATE requisitions SET quotation_requested = TRUE
WHERE id = $1 AND quotation_requested = FALSE`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

const purchaseOrderColumns = `id, pono, prno, requisition_id, quotation_id, supplier, total, status,
accountant_approved, accountant_name, accountant_at,
president_approved, president_name, president_at,
rejected, rejected_by, rejected_reason, rejected_at, date`

func (t *txRepository) CreatePurchaseOrder(ctx context.Context, po PurchaseOrder) (int64, error) {
	cols := approvalColumns(po.Approvals)
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO purchase_orders
(pono, prno, requisition_id, quotation_id, supplier, total, status,
 accountant_approved, accountant_name, accountant_at,
 president_approved, president_name, president_at,
 rejected, rejected_by, rejected_reason, rejected_at, date)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)
RETURNING id`,
		po.PONo, po.PRNo, po.RequisitionID, po.QuotationID, po.Supplier, po.Total, string(po.Status),
		cols.accountantApproved, cols.accountantName, cols.accountantAt,
		cols.presidentApproved, cols.presidentName, cols.presidentAt,
		cols.rejected, cols.rejectedBy, cols.rejectedReason, cols.rejectedAt, po.Date).Scan(&id)
	return id, err
}

func (t *txRepository) InsertPOItem(ctx context.Context, item POItem) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO purchase_order_items
(purchase_order_id, item_no, description, unit, qty, unit_cost, total_cost)
VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		item.PurchaseOrderID, item.ItemNo, item.Description, item.Unit, item.Qty, item.UnitCost, item.TotalCost)
	return err
}

func (t *txRepository) GetPurchaseOrder(ctx context.Context, id int64) (PurchaseOrder, []POItem, error) {
	row := t.tx.QueryRow(ctx, `SELECT `+purchaseOrderColumns+` FROM purchase_orders WHERE id = $1 FOR UPDATE`, id)
	po, err := scanPurchaseOrder(row)
	if err != nil {
		return PurchaseOrder{}, nil, err
	}
	items, err := queryPOItems(ctx, t.tx, id)
	if err != nil {
		return PurchaseOrder{}, nil, err
	}
	return po, items, nil
}

func (t *txRepository) UpdatePurchaseOrderApprovals(ctx context.Context, id int64, rec approval.Record, status Status) error {
	cols := approvalColumns(rec)
	tag, err := t.tx.Exec(ctx, `UPDATE purchase_orders SET
accountant_approved=$2, accountant_name=$3, accountant_at=$4,
president_approved=$5, president_name=$6, president_at=$7,
rejected=$8, rejected_by=$9, rejected_reason=$10, rejected_at=$11, status=$12
WHERE id = $1`,
		id,
		cols.accountantApproved, cols.accountantName, cols.accountantAt,
		cols.presidentApproved, cols.presidentName, cols.presidentAt,
		cols.rejected, cols.rejectedBy, cols.rejectedReason, cols.rejectedAt, string(status))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// GetRequisition fetches one requisition with its line items.
func (r *Repository) GetRequisition(ctx context.Context, id int64) (Requisition, []LineItem, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+requisitionColumns+` FROM requisitions WHERE id = $1`, id)
	pr, err := scanRequisition(row)
	if err != nil {
		return Requisition{}, nil, err
	}
	items, err := queryLineItems(ctx, r.pool, id)
	if err != nil {
		return Requisition{}, nil, err
	}
	return pr, items, nil
}

// ListRequisitions returns summaries ordered newest first.
func (r *Repository) ListRequisitions(ctx context.Context) ([]RequisitionSummary, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, prno, department, section, date, procurement_mode, status
FROM requisitions ORDER BY date DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []RequisitionSummary
	for rows.Next() {
		var s RequisitionSummary
		var mode, status string
		if err := rows.Scan(&s.ID, &s.PRNo, &s.Department, &s.Section, &s.Date, &mode, &status); err != nil {
			return nil, err
		}
		s.Mode = Mode(mode)
		s.Status = Status(status)
		list = append(list, s)
	}
	return list, rows.Err()
}

// GetPurchaseOrder fetches one purchase order with its items.
func (r *Repository) GetPurchaseOrder(ctx context.Context, id int64) (PurchaseOrder, []POItem, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+purchaseOrderColumns+` FROM purchase_orders WHERE id = $1`, id)
	po, err := scanPurchaseOrder(row)
	if err != nil {
		return PurchaseOrder{}, nil, err
	}
	items, err := queryPOItems(ctx, r.pool, id)
	if err != nil {
		return PurchaseOrder{}, nil, err
	}
	return po, items, nil
}

// ListPurchaseOrders returns summaries ordered newest first.
func (r *Repository) ListPurchaseOrders(ctx context.Context) ([]PurchaseOrderSummary, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, pono, prno, supplier, total, date, status
FROM purchase_orders ORDER BY date DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []PurchaseOrderSummary
	for rows.Next() {
		var s PurchaseOrderSummary
		var status string
		if err := rows.Scan(&s.ID, &s.PONo, &s.PRNo, &s.Supplier, &s.Total, &s.Date, &status); err != nil {
			return nil, err
		}
		s.Status = Status(status)
		list = append(list, s)
	}
	return list, rows.Err()
}

// QuotationOpen reports whether a requisition number is approved and
// open for supplier quotations.
func (r *Repository) QuotationOpen(ctx context.Context, prno string) (bool, error) {
	var open bool
	err := r.pool.QueryRow(ctx, `SELECT quotation_requested AND status = 'APPROVED'
FROM requisitions WHERE prno = $1`, prno).Scan(&open)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, ErrNotFound
		}
		return false, err
	}
	return open, nil
}

// RequisitionTotal returns the overall total recorded on a requisition.
func (r *Repository) RequisitionTotal(ctx context.Context, prno string) (float64, error) {
	var total float64
	err := r.pool.QueryRow(ctx, `SELECT overall_total FROM requisitions WHERE prno = $1`, prno).Scan(&total)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, err
	}
	return total, nil
}

// PurchaseOrderExistsForPR reports whether a purchase order was already
// issued against a requisition number.
func (r *Repository) PurchaseOrderExistsForPR(ctx context.Context, prno string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM purchase_orders WHERE prno = $1)`, prno).Scan(&exists)
	return exists, err
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func queryLineItems(ctx context.Context, q querier, requisitionID int64) ([]LineItem, error) {
	rows, err := q.Query(ctx, `SELECT id, requisition_id, item_no, description, unit, qty, unit_cost, total_cost
FROM requisition_items WHERE requisition_id = $1 ORDER BY item_no`, requisitionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []LineItem
	for rows.Next() {
		var item LineItem
		if err := rows.Scan(&item.ID, &item.RequisitionID, &item.ItemNo, &item.Description, &item.Unit,
			&item.Qty, &item.UnitCost, &item.TotalCost); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func queryPOItems(ctx context.Context, q querier, purchaseOrderID int64) ([]POItem, error) {
	rows, err := q.Query(ctx, `SELECT id, purchase_order_id, item_no, description, unit, qty, unit_cost, total_cost
FROM purchase_order_items WHERE purchase_order_id = $1 ORDER BY item_no`, purchaseOrderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []POItem
	for rows.Next() {
		var item POItem
		if err := rows.Scan(&item.ID, &item.PurchaseOrderID, &item.ItemNo, &item.Description, &item.Unit,
			&item.Qty, &item.UnitCost, &item.TotalCost); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// approvalCols is the flattened column form of an approval record.
type approvalCols struct {
	accountantApproved bool
	accountantName     *string
	accountantAt       *time.Time
	presidentApproved  bool
	presidentName      *string
	presidentAt        *time.Time
	rejected           bool
	rejectedBy         *string
	rejectedReason     *string
	rejectedAt         *time.Time
}

func approvalColumns(rec approval.Record) approvalCols {
	var cols approvalCols
	if slot, ok := rec.SlotFor(RoleAccountant); ok && slot.Approved {
		cols.accountantApproved = true
		cols.accountantName = &slot.ApprovedBy
		cols.accountantAt = slot.ApprovedAt
	}
	if slot, ok := rec.SlotFor(RolePresident); ok && slot.Approved {
		cols.presidentApproved = true
		cols.presidentName = &slot.ApprovedBy
		cols.presidentAt = slot.ApprovedAt
	}
	if rec.Rejected {
		cols.rejected = true
		cols.rejectedBy = &rec.RejectedBy
		cols.rejectedReason = &rec.RejectedReason
		cols.rejectedAt = rec.RejectedAt
	}
	return cols
}

func recordFromColumns(cols approvalCols) approval.Record {
	rec := approval.NewRecord(RoleAccountant, RolePresident)
	if cols.accountantApproved {
		rec.Slots[0].Approved = true
		rec.Slots[0].ApprovedBy = deref(cols.accountantName)
		rec.Slots[0].ApprovedAt = cols.accountantAt
	}
	if cols.presidentApproved {
		rec.Slots[1].Approved = true
		rec.Slots[1].ApprovedBy = deref(cols.presidentName)
		rec.Slots[1].ApprovedAt = cols.presidentAt
	}
	if cols.rejected {
		rec.Rejected = true
		rec.RejectedBy = deref(cols.rejectedBy)
		rec.RejectedReason = deref(cols.rejectedReason)
		rec.RejectedAt = cols.rejectedAt
	}
	return rec
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func scanRequisition(row pgx.Row) (Requisition, error) {
	var pr Requisition
	var mode, status string
	var cols approvalCols
	err := row.Scan(&pr.ID, &pr.PRNo, &pr.RequesterID, &pr.RequesterName, &pr.Department, &pr.Section, &pr.Purpose,
		&mode, &pr.OverallTotal, &status, &pr.QuotationRequested,
		&pr.LetterURL, &pr.CertificationURL, &pr.ProposalURL,
		&cols.accountantApproved, &cols.accountantName, &cols.accountantAt,
		&cols.presidentApproved, &cols.presidentName, &cols.presidentAt,
		&cols.rejected, &cols.rejectedBy, &cols.rejectedReason, &cols.rejectedAt, &pr.Date)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Requisition{}, ErrNotFound
		}
		return Requisition{}, err
	}
	pr.Mode = Mode(mode)
	pr.Status = Status(status)
	pr.Approvals = recordFromColumns(cols)
	return pr, nil
}

func scanPurchaseOrder(row pgx.Row) (PurchaseOrder, error) {
	var po PurchaseOrder
	var status string
	var cols approvalCols
	err := row.Scan(&po.ID, &po.PONo, &po.PRNo, &po.RequisitionID, &po.QuotationID, &po.Supplier, &po.Total, &status,
		&cols.accountantApproved, &cols.accountantName, &cols.accountantAt,
		&cols.presidentApproved, &cols.presidentName, &cols.presidentAt,
		&cols.rejected, &cols.rejectedBy, &cols.rejectedReason, &cols.rejectedAt, &po.Date)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PurchaseOrder{}, ErrNotFound
		}
		return PurchaseOrder{}, err
	}
	po.Status = Status(status)
	po.Approvals = recordFromColumns(cols)
	return po, nil
}
