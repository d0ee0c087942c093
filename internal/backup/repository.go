package backup

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/procura-erp/procura-erp/internal/platform/db"
)

// Repository reads and replaces the managed tables.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Tables in parent-before-child order. Deletes run in reverse.
var managedTables = []string{
	"ppmp_items",
	"requisitions",
	"requisition_items",
	"quotations",
	"quotation_items",
	"abstracts",
	"purchase_orders",
	"purchase_order_items",
}

// ReadAll loads every managed collection. The caller stamps the date.
func (r *Repository) ReadAll(ctx context.Context) (Document, error) {
	var doc Document
	var err error
	if doc.PPMPItems, err = readPlanItems(ctx, r.pool); err != nil {
		return Document{}, err
	}
	if doc.Requisitions, err = readRequisitions(ctx, r.pool); err != nil {
		return Document{}, err
	}
	if doc.RequisitionItems, err = readRequisitionItems(ctx, r.pool); err != nil {
		return Document{}, err
	}
	if doc.Quotations, err = readQuotations(ctx, r.pool); err != nil {
		return Document{}, err
	}
	if doc.QuotationItems, err = readQuotationItems(ctx, r.pool); err != nil {
		return Document{}, err
	}
	if doc.Abstracts, err = readAbstracts(ctx, r.pool); err != nil {
		return Document{}, err
	}
	if doc.PurchaseOrders, err = readPurchaseOrders(ctx, r.pool); err != nil {
		return Document{}, err
	}
	if doc.PurchaseOrderItems, err = readPOItems(ctx, r.pool); err != nil {
		return Document{}, err
	}
	return doc, nil
}

// Replace deletes every managed row and bulk-inserts the document's
// rows inside one transaction. Any failure rolls the whole thing back.
func (r *Repository) Replace(ctx context.Context, doc Document) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return replaceAll(ctx, tx, doc)
	})
}

func replaceAll(ctx context.Context, tx pgx.Tx, doc Document) error {
	for i := len(managedTables) - 1; i >= 0; i-- {
		if _, err := tx.Exec(ctx, "DELETE FROM "+managedTables[i]); err != nil {
			return err
		}
	}

	for _, row := range doc.PPMPItems {
		_, err := tx.Exec(ctx, `INSERT INTO ppmp_items
(id, owner_id, year, description, unit, planned_qty, remaining_qty, unit_cost, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
			int64(row.ID), int64(row.OwnerID), int(row.Year), row.Description, row.Unit,
			float64(row.PlannedQty), float64(row.RemainingQty), float64(row.UnitCost), orNow(row.CreatedAt))
		if err != nil {
			return err
		}
	}
	for _, row := range doc.Requisitions {
		_, err := tx.Exec(ctx, `INSERT INTO requisitions
(id, prno, requester_id, requester_name, department, section, purpose,
 procurement_mode, overall_total, status, quotation_requested,
 letter_url, certification_url, proposal_url,
 accountant_approved, accountant_name, accountant_at,
 president_approved, president_name, president_at,
 rejected, rejected_by, rejected_reason, rejected_at, date)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25)`,
			int64(row.ID), row.PRNo, int64(row.RequesterID), row.RequesterName, row.Department, row.Section, row.Purpose,
			row.Mode, float64(row.OverallTotal), row.Status, row.QuotationRequested,
			row.LetterURL, row.CertificationURL, row.ProposalURL,
			row.AccountantApproved, row.AccountantName, timePtr(row.AccountantAt),
			row.PresidentApproved, row.PresidentName, timePtr(row.PresidentAt),
			row.Rejected, row.RejectedBy, row.RejectedReason, timePtr(row.RejectedAt), orNow(row.Date))
		if err != nil {
			return err
		}
	}
	for _, row := range doc.RequisitionItems {
		_, err := tx.Exec(ctx, `INSERT INTO requisition_items
(id, requisition_id, item_no, description, unit, qty, unit_cost, total_cost)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
			int64(row.ID), int64(row.RequisitionID), int(row.ItemNo), row.Description, row.Unit,
			float64(row.Qty), float64(row.UnitCost), float64(row.TotalCost))
		if err != nil {
			return err
		}
	}
	for _, row := range doc.Quotations {
		_, err := tx.Exec(ctx, `INSERT INTO quotations (id, prno, supplier, total, date)
VALUES ($1,$2,$3,$4,$5)`,
			int64(row.ID), row.PRNo, row.Supplier, float64(row.Total), orNow(row.Date))
		if err != nil {
			return err
		}
	}
	for _, row := range doc.QuotationItems {
		_, err := tx.Exec(ctx, `INSERT INTO quotation_items
(id, quotation_id, item_no, description, unit, qty, unit_cost, total_cost)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
			int64(row.ID), int64(row.QuotationID), int(row.ItemNo), row.Description, row.Unit,
			float64(row.Qty), float64(row.UnitCost), float64(row.TotalCost))
		if err != nil {
			return err
		}
	}
	for _, row := range doc.Abstracts {
		_, err := tx.Exec(ctx, `INSERT INTO abstracts (id, prno, winning_bidder, budget_ceiling, matrix, saved_by, saved_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)`,
			int64(row.ID), row.PRNo, row.WinningBidder, float64(row.BudgetCeiling), []byte(row.Matrix), int64(row.SavedBy), orNow(row.SavedAt))
		if err != nil {
			return err
		}
	}
	for _, row := range doc.PurchaseOrders {
		_, err := tx.Exec(ctx, `INSERT INTO purchase_orders
(id, pono, prno, requisition_id, quotation_id, supplier, total, status,
 accountant_approved, accountant_name, accountant_at,
 president_approved, president_name, president_at,
 rejected, rejected_by, rejected_reason, rejected_at, date)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)`,
			int64(row.ID), row.PONo, row.PRNo, int64(row.RequisitionID), int64(row.QuotationID),
			row.Supplier, float64(row.Total), row.Status,
			row.AccountantApproved, row.AccountantName, timePtr(row.AccountantAt),
			row.PresidentApproved, row.PresidentName, timePtr(row.PresidentAt),
			row.Rejected, row.RejectedBy, row.RejectedReason, timePtr(row.RejectedAt), orNow(row.Date))
		if err != nil {
			return err
		}
	}
	for _, row := range doc.PurchaseOrderItems {
		_, err := tx.Exec(ctx, `INSERT INTO purchase_order_items
(id, purchase_order_id, item_no, description, unit, qty, unit_cost, total_cost)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
			int64(row.ID), int64(row.PurchaseOrderID), int(row.ItemNo), row.Description, row.Unit,
			float64(row.Qty), float64(row.UnitCost), float64(row.TotalCost))
		if err != nil {
			return err
		}
	}

	// Bump each table's id sequence past the restored rows.
	for _, table := range managedTables {
		_, err := tx.Exec(ctx, `SELECT setval(pg_get_serial_sequence($1, 'id'),
(SELECT COALESCE(MAX(id), 1) FROM `+table+`))`, table)
		if err != nil {
			return err
		}
	}

	return nil
}

func orNow(t Timestamp) time.Time {
	if t.IsZero() {
		return time.Now()
	}
	return t.Time()
}

func timePtr(t *Timestamp) *time.Time {
	if t == nil || t.IsZero() {
		return nil
	}
	v := t.Time()
	return &v
}

func tsPtr(t *time.Time) *Timestamp {
	if t == nil {
		return nil
	}
	v := Timestamp(*t)
	return &v
}

func readPlanItems(ctx context.Context, pool *pgxpool.Pool) ([]PlanItemRow, error) {
	rows, err := pool.Query(ctx, `SELECT id, owner_id, year, description, unit, planned_qty, remaining_qty, unit_cost, created_at FROM ppmp_items ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []PlanItemRow
	for rows.Next() {
		var row PlanItemRow
		var id, ownerID int64
		var year int
		var planned, remaining, cost float64
		var createdAt time.Time
		if err := rows.Scan(&id, &ownerID, &year, &row.Description, &row.Unit, &planned, &remaining, &cost, &createdAt); err != nil {
			return nil, err
		}
		row.ID, row.OwnerID, row.Year = Number(id), Number(ownerID), Number(year)
		row.PlannedQty, row.RemainingQty, row.UnitCost = Number(planned), Number(remaining), Number(cost)
		row.CreatedAt = Timestamp(createdAt)
		out = append(out, row)
	}
	return out, rows.Err()
}

func readRequisitions(ctx context.Context, pool *pgxpool.Pool) ([]RequisitionRow, error) {
	rows, err := pool.Query(ctx, `SELECT id, prno, requester_id, requester_name, department, section, purpose,
procurement_mode, overall_total, status, quotation_requested,
letter_url, certification_url, proposal_url,
accountant_approved, accountant_name, accountant_at,
president_approved, president_name, president_at,
rejected, rejected_by, rejected_reason, rejected_at, date
FROM requisitions ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []RequisitionRow
	for rows.Next() {
		var row RequisitionRow
		var id, requesterID int64
		var total float64
		var accountantAt, presidentAt, rejectedAt *time.Time
		var date time.Time
		if err := rows.Scan(&id, &row.PRNo, &requesterID, &row.RequesterName, &row.Department, &row.Section, &row.Purpose,
			&row.Mode, &total, &row.Status, &row.QuotationRequested,
			&row.LetterURL, &row.CertificationURL, &row.ProposalURL,
			&row.AccountantApproved, &row.AccountantName, &accountantAt,
			&row.PresidentApproved, &row.PresidentName, &presidentAt,
			&row.Rejected, &row.RejectedBy, &row.RejectedReason, &rejectedAt, &date); err != nil {
			return nil, err
		}
		row.ID, row.RequesterID, row.OverallTotal = Number(id), Number(requesterID), Number(total)
		row.AccountantAt = tsPtr(accountantAt)
		row.PresidentAt = tsPtr(presidentAt)
		row.RejectedAt = tsPtr(rejectedAt)
		row.Date = Timestamp(date)
		out = append(out, row)
	}
	return out, rows.Err()
}

func readRequisitionItems(ctx context.Context, pool *pgxpool.Pool) ([]RequisitionItemRow, error) {
	rows, err := pool.Query(ctx, `SELECT id, requisition_id, item_no, description, unit, qty, unit_cost, total_cost FROM requisition_items ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []RequisitionItemRow
	for rows.Next() {
		var row RequisitionItemRow
		var id, prID int64
		var itemNo int
		var qty, cost, total float64
		if err := rows.Scan(&id, &prID, &itemNo, &row.Description, &row.Unit, &qty, &cost, &total); err != nil {
			return nil, err
		}
		row.ID, row.RequisitionID, row.ItemNo = Number(id), Number(prID), Number(itemNo)
		row.Qty, row.UnitCost, row.TotalCost = Number(qty), Number(cost), Number(total)
		out = append(out, row)
	}
	return out, rows.Err()
}

func readQuotations(ctx context.Context, pool *pgxpool.Pool) ([]QuotationRow, error) {
	rows, err := pool.Query(ctx, `SELECT id, prno, supplier, total, date FROM quotations ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []QuotationRow
	for rows.Next() {
		var row QuotationRow
		var id int64
		var total float64
		var date time.Time
		if err := rows.Scan(&id, &row.PRNo, &row.Supplier, &total, &date); err != nil {
			return nil, err
		}
		row.ID, row.Total, row.Date = Number(id), Number(total), Timestamp(date)
		out = append(out, row)
	}
	return out, rows.Err()
}

func readQuotationItems(ctx context.Context, pool *pgxpool.Pool) ([]QuotationItemRow, error) {
	rows, err := pool.Query(ctx, `SELECT id, quotation_id, item_no, description, unit, qty, unit_cost, total_cost FROM quotation_items ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []QuotationItemRow
	for rows.Next() {
		var row QuotationItemRow
		var id, qID int64
		var itemNo int
		var qty, cost, total float64
		if err := rows.Scan(&id, &qID, &itemNo, &row.Description, &row.Unit, &qty, &cost, &total); err != nil {
			return nil, err
		}
		row.ID, row.QuotationID, row.ItemNo = Number(id), Number(qID), Number(itemNo)
		row.Qty, row.UnitCost, row.TotalCost = Number(qty), Number(cost), Number(total)
		out = append(out, row)
	}
	return out, rows.Err()
}

func readAbstracts(ctx context.Context, pool *pgxpool.Pool) ([]AbstractRow, error) {
	rows, err := pool.Query(ctx, `SELECT id, prno, winning_bidder, budget_ceiling, matrix, saved_by, saved_at FROM abstracts ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []AbstractRow
	for rows.Next() {
		var row AbstractRow
		var id, savedBy int64
		var ceiling float64
		var matrix []byte
		var savedAt time.Time
		if err := rows.Scan(&id, &row.PRNo, &row.WinningBidder, &ceiling, &matrix, &savedBy, &savedAt); err != nil {
			return nil, err
		}
		row.ID, row.BudgetCeiling, row.SavedBy, row.SavedAt = Number(id), Number(ceiling), Number(savedBy), Timestamp(savedAt)
		row.Matrix = matrix
		out = append(out, row)
	}
	return out, rows.Err()
}

func readPurchaseOrders(ctx context.Context, pool *pgxpool.Pool) ([]PurchaseOrderRow, error) {
	rows, err := pool.Query(ctx, `SELECT id, pono, prno, requisition_id, quotation_id, supplier, total, status,
accountant_approved, accountant_name, accountant_at,
president_approved, president_name, president_at,
rejected, rejected_by, rejected_reason, rejected_at, date
FROM purchase_orders ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []PurchaseOrderRow
	for rows.Next() {
		var row PurchaseOrderRow
		var id, prID, qID int64
		var total float64
		var accountantAt, presidentAt, rejectedAt *time.Time
		var date time.Time
		if err := rows.Scan(&id, &row.PONo, &row.PRNo, &prID, &qID, &row.Supplier, &total, &row.Status,
			&row.AccountantApproved, &row.AccountantName, &accountantAt,
			&row.PresidentApproved, &row.PresidentName, &presidentAt,
			&row.Rejected, &row.RejectedBy, &row.RejectedReason, &rejectedAt, &date); err != nil {
			return nil, err
		}
		row.ID, row.RequisitionID, row.QuotationID, row.Total = Number(id), Number(prID), Number(qID), Number(total)
		row.AccountantAt = tsPtr(accountantAt)
		row.PresidentAt = tsPtr(presidentAt)
		row.RejectedAt = tsPtr(rejectedAt)
		row.Date = Timestamp(date)
		out = append(out, row)
	}
	return out, rows.Err()
}

func readPOItems(ctx context.Context, pool *pgxpool.Pool) ([]POItemRow, error) {
	rows, err := pool.Query(ctx, `SELECT id, purchase_order_id, item_no, description, unit, qty, unit_cost, total_cost FROM purchase_order_items ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []POItemRow
	for rows.Next() {
		var row POItemRow
		var id, poID int64
		var itemNo int
		var qty, cost, total float64
		if err := rows.Scan(&id, &poID, &itemNo, &row.Description, &row.Unit, &qty, &cost, &total); err != nil {
			return nil, err
		}
		row.ID, row.PurchaseOrderID, row.ItemNo = Number(id), Number(poID), Number(itemNo)
		row.Qty, row.UnitCost, row.TotalCost = Number(qty), Number(cost), Number(total)
		out = append(out, row)
	}
	return out, rows.Err()
}
