package procurement

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/procura-erp/procura-erp/internal/approval"
	"github.com/procura-erp/procura-erp/internal/sequence"
	"github.com/procura-erp/procura-erp/internal/users"
)

type memoryRepo struct {
	mu       sync.Mutex
	counters map[string]int
	prs      map[int64]Requisition
	prItems  map[int64][]LineItem
	pos      map[int64]PurchaseOrder
	poItems  map[int64][]POItem
	nextID   int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		counters: make(map[string]int),
		prs:      make(map[int64]Requisition),
		prItems:  make(map[int64][]LineItem),
		pos:      make(map[int64]PurchaseOrder),
		poItems:  make(map[int64][]POItem),
	}
}

func (m *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(ctx, (*memoryTx)(m))
}

func (m *memoryRepo) GetRequisition(_ context.Context, id int64) (Requisition, []LineItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pr, ok := m.prs[id]
	if !ok {
		return Requisition{}, nil, ErrNotFound
	}
	return pr, m.prItems[id], nil
}

func (m *memoryRepo) ListRequisitions(context.Context) ([]RequisitionSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var list []RequisitionSummary
	for _, pr := range m.prs {
		list = append(list, RequisitionSummary{ID: pr.ID, PRNo: pr.PRNo, Department: pr.Department, Section: pr.Section, Date: pr.Date, Mode: pr.Mode, Status: pr.Status})
	}
	return list, nil
}

func (m *memoryRepo) GetPurchaseOrder(_ context.Context, id int64) (PurchaseOrder, []POItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	po, ok := m.pos[id]
	if !ok {
		return PurchaseOrder{}, nil, ErrNotFound
	}
	return po, m.poItems[id], nil
}

func (m *memoryRepo) ListPurchaseOrders(context.Context) ([]PurchaseOrderSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var list []PurchaseOrderSummary
	for _, po := range m.pos {
		list = append(list, PurchaseOrderSummary{ID: po.ID, PONo: po.PONo, PRNo: po.PRNo, Supplier: po.Supplier, Total: po.Total, Date: po.Date, Status: po.Status})
	}
	return list, nil
}

func (m *memoryRepo) PurchaseOrderExistsForPR(_ context.Context, prno string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, po := range m.pos {
		if po.PRNo == prno {
			return true, nil
		}
	}
	return false, nil
}

// memoryTx shares memoryRepo state; the lock is held by WithTx.
type memoryTx memoryRepo

func (t *memoryTx) NextNumber(_ context.Context, scope string, year int) (string, error) {
	key := fmt.Sprintf("%s:%d", scope, year)
	t.counters[key]++
	return sequence.Format(t.counters[key], year), nil
}

func (t *memoryTx) CreateRequisition(_ context.Context, pr Requisition) (int64, error) {
	t.nextID++
	pr.ID = t.nextID
	t.prs[pr.ID] = pr
	return pr.ID, nil
}

func (t *memoryTx) InsertLineItem(_ context.Context, line LineItem) error {
	t.prItems[line.RequisitionID] = append(t.prItems[line.RequisitionID], line)
	return nil
}

func (t *memoryTx) GetRequisition(_ context.Context, id int64) (Requisition, []LineItem, error) {
	pr, ok := t.prs[id]
	if !ok {
		return Requisition{}, nil, ErrNotFound
	}
	return pr, t.prItems[id], nil
}

func (t *memoryTx) UpdateRequisitionApprovals(_ context.Context, id int64, rec approval.Record, status Status) error {
	pr, ok := t.prs[id]
	if !ok {
		return ErrNotFound
	}
	pr.Approvals = rec
	pr.Status = status
	t.prs[id] = pr
	return nil
}

func (t *memoryTx) MarkQuotationRequested(_ context.Context, id int64) (bool, error) {
	pr, ok := t.prs[id]
	if !ok {
		return false, ErrNotFound
	}
	if pr.QuotationRequested {
		return false, nil
	}
	pr.QuotationRequested = true
	t.prs[id] = pr
	return true, nil
}

func (t *memoryTx) CreatePurchaseOrder(_ context.Context, po PurchaseOrder) (int64, error) {
	t.nextID++
	po.ID = t.nextID
	t.pos[po.ID] = po
	return po.ID, nil
}

func (t *memoryTx) InsertPOItem(_ context.Context, item POItem) error {
	t.poItems[item.PurchaseOrderID] = append(t.poItems[item.PurchaseOrderID], item)
	return nil
}

func (t *memoryTx) GetPurchaseOrder(_ context.Context, id int64) (PurchaseOrder, []POItem, error) {
	po, ok := t.pos[id]
	if !ok {
		return PurchaseOrder{}, nil, ErrNotFound
	}
	return po, t.poItems[id], nil
}

func (t *memoryTx) UpdatePurchaseOrderApprovals(_ context.Context, id int64, rec approval.Record, status Status) error {
	po, ok := t.pos[id]
	if !ok {
		return ErrNotFound
	}
	po.Approvals = rec
	po.Status = status
	t.pos[id] = po
	return nil
}

type memoryDirectory struct {
	users map[int64]users.User
}

func (d *memoryDirectory) GetUser(_ context.Context, id int64) (users.User, error) {
	user, ok := d.users[id]
	if !ok {
		return users.User{}, fmt.Errorf("user %d not found", id)
	}
	return user, nil
}

type memoryStore struct {
	mu    sync.Mutex
	saved []string
}

func (s *memoryStore) Save(_ context.Context, filename, _ string, content io.Reader) (string, error) {
	if _, err := io.Copy(io.Discard, content); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved = append(s.saved, filename)
	return "/uploads/" + filename, nil
}

type memoryQuotations struct {
	quotations map[int64]WinningQuotation
}

func (q *memoryQuotations) GetQuotationForAward(_ context.Context, id int64) (WinningQuotation, error) {
	quotation, ok := q.quotations[id]
	if !ok {
		return WinningQuotation{}, ErrNotFound
	}
	return quotation, nil
}

const (
	officeHeadID int64 = 1
	accountantID int64 = 2
	presidentID  int64 = 3
)

func newTestService(repo *memoryRepo, quotations QuotationPort) *Service {
	directory := &memoryDirectory{users: map[int64]users.User{
		officeHeadID: {ID: officeHeadID, Name: "Grace Lim", Role: "OFFICE_HEAD", Department: "Registrar", Section: "Records"},
		accountantID: {ID: accountantID, Name: "Ben Cruz", Role: RoleAccountant},
		presidentID:  {ID: presidentID, Name: "Dr. Reyes", Role: RolePresident},
	}}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(repo, &memoryStore{}, quotations, directory, nil, nil, nil, nil, logger)
}

func createInput(items ...LineItemInput) CreateRequisitionInput {
	return CreateRequisitionInput{
		RequesterID: officeHeadID,
		Purpose:     "Office supplies for the records section",
		Items:       items,
		Attachments: AttachmentInput{
			Letter: &FileInput{Filename: "letter.pdf", ContentType: "application/pdf", Content: bytes.NewReader([]byte("letter"))},
		},
	}
}

func TestCreateRequisitionDerivesTotalsAndMode(t *testing.T) {
	svc := newTestService(newMemoryRepo(), nil)

	pr, items, err := svc.CreateRequisition(context.Background(), createInput(
		LineItemInput{Description: "Bond paper", Unit: "ream", Qty: 100, UnitCost: 250},
		LineItemInput{Description: "Toner", Unit: "pc", Qty: 10, UnitCost: 3500},
	))
	require.NoError(t, err)
	require.Equal(t, float64(100*250+10*3500), pr.OverallTotal)
	require.Equal(t, ModeSmallValue, pr.Mode)
	require.Equal(t, StatusPending, pr.Status)
	require.Equal(t, "Grace Lim", pr.RequesterName)
	require.Equal(t, "Registrar", pr.Department)
	require.Len(t, items, 2)
	require.Equal(t, 1, items[0].ItemNo)
	require.Equal(t, float64(25000), items[0].TotalCost)
	require.Equal(t, fmt.Sprintf("001-%02d", time.Now().Year()%100), pr.PRNo)
	require.NotEmpty(t, pr.LetterURL)
}

func TestCreateRequisitionModeThresholds(t *testing.T) {
	svc := newTestService(newMemoryRepo(), nil)

	pr, _, err := svc.CreateRequisition(context.Background(), createInput(
		LineItemInput{Description: "Staplers", Unit: "pc", Qty: 10, UnitCost: 100},
	))
	require.NoError(t, err)
	require.Equal(t, ModeShopping, pr.Mode)

	pr, _, err = svc.CreateRequisition(context.Background(), createInput(
		LineItemInput{Description: "Server rack", Unit: "unit", Qty: 2, UnitCost: 600000},
	))
	require.NoError(t, err)
	require.Equal(t, ModeBidding, pr.Mode)
}

func TestCreateRequisitionValidation(t *testing.T) {
	svc := newTestService(newMemoryRepo(), nil)
	ctx := context.Background()

	_, _, err := svc.CreateRequisition(ctx, CreateRequisitionInput{RequesterID: officeHeadID, Purpose: "x"})
	require.ErrorIs(t, err, ErrValidation)

	input := createInput(LineItemInput{Description: "Paper", Qty: 0, UnitCost: 10})
	_, _, err = svc.CreateRequisition(ctx, input)
	require.ErrorIs(t, err, ErrValidation)

	input = createInput(LineItemInput{Description: "Paper", Qty: 1, UnitCost: 10})
	input.Attachments.Letter = nil
	_, _, err = svc.CreateRequisition(ctx, input)
	require.ErrorIs(t, err, ErrValidation)
	require.True(t, strings.Contains(err.Error(), "letter"))
}

func TestSequentialNumbersPerYear(t *testing.T) {
	svc := newTestService(newMemoryRepo(), nil)
	ctx := context.Background()

	first, _, err := svc.CreateRequisition(ctx, createInput(LineItemInput{Description: "A", Qty: 1, UnitCost: 1}))
	require.NoError(t, err)
	second, _, err := svc.CreateRequisition(ctx, createInput(LineItemInput{Description: "B", Qty: 1, UnitCost: 1}))
	require.NoError(t, err)

	yy := time.Now().Year() % 100
	require.Equal(t, fmt.Sprintf("001-%02d", yy), first.PRNo)
	require.Equal(t, fmt.Sprintf("002-%02d", yy), second.PRNo)
}

func approveBoth(t *testing.T, svc *Service, id int64) Requisition {
	t.Helper()
	_, err := svc.ApproveRequisition(context.Background(), id, RoleAccountant, accountantID)
	require.NoError(t, err)
	pr, err := svc.ApproveRequisition(context.Background(), id, RolePresident, presidentID)
	require.NoError(t, err)
	return pr
}

func TestApprovalAggregation(t *testing.T) {
	svc := newTestService(newMemoryRepo(), nil)
	pr, _, err := svc.CreateRequisition(context.Background(), createInput(LineItemInput{Description: "A", Qty: 1, UnitCost: 1}))
	require.NoError(t, err)

	mid, err := svc.ApproveRequisition(context.Background(), pr.ID, RoleAccountant, accountantID)
	require.NoError(t, err)
	require.Equal(t, StatusPending, mid.Status)

	final, err := svc.ApproveRequisition(context.Background(), pr.ID, RolePresident, presidentID)
	require.NoError(t, err)
	require.Equal(t, StatusApproved, final.Status)

	slot, ok := final.Approvals.SlotFor(RoleAccountant)
	require.True(t, ok)
	require.Equal(t, "Ben Cruz", slot.ApprovedBy)
}

func TestReApprovalIsConflict(t *testing.T) {
	svc := newTestService(newMemoryRepo(), nil)
	pr, _, err := svc.CreateRequisition(context.Background(), createInput(LineItemInput{Description: "A", Qty: 1, UnitCost: 1}))
	require.NoError(t, err)

	_, err = svc.ApproveRequisition(context.Background(), pr.ID, RoleAccountant, accountantID)
	require.NoError(t, err)
	_, err = svc.ApproveRequisition(context.Background(), pr.ID, RoleAccountant, accountantID)
	require.ErrorIs(t, err, ErrConflict)
}

func TestApproverRoleMustMatchSlot(t *testing.T) {
	svc := newTestService(newMemoryRepo(), nil)
	pr, _, err := svc.CreateRequisition(context.Background(), createInput(LineItemInput{Description: "A", Qty: 1, UnitCost: 1}))
	require.NoError(t, err)

	// Accountant cannot fill the president slot even via the right URL.
	_, err = svc.ApproveRequisition(context.Background(), pr.ID, RolePresident, accountantID)
	require.ErrorIs(t, err, ErrForbidden)
}

func TestRejectionRequiresReasonAndFinalizes(t *testing.T) {
	svc := newTestService(newMemoryRepo(), nil)
	pr, _, err := svc.CreateRequisition(context.Background(), createInput(LineItemInput{Description: "A", Qty: 1, UnitCost: 1}))
	require.NoError(t, err)

	_, err = svc.RejectRequisition(context.Background(), pr.ID, RoleAccountant, "", accountantID)
	require.ErrorIs(t, err, ErrValidation)

	rejected, err := svc.RejectRequisition(context.Background(), pr.ID, RoleAccountant, "budget exhausted", accountantID)
	require.NoError(t, err)
	require.Equal(t, StatusRejected, rejected.Status)
	require.Equal(t, "budget exhausted", rejected.Approvals.RejectedReason)

	// The record is terminal in both directions.
	_, err = svc.ApproveRequisition(context.Background(), pr.ID, RolePresident, presidentID)
	require.ErrorIs(t, err, ErrConflict)
	_, err = svc.RejectRequisition(context.Background(), pr.ID, RolePresident, "again", presidentID)
	require.ErrorIs(t, err, ErrConflict)
}

func TestQuotationRequestLifecycle(t *testing.T) {
	svc := newTestService(newMemoryRepo(), nil)
	ctx := context.Background()
	pr, _, err := svc.CreateRequisition(ctx, createInput(LineItemInput{Description: "A", Qty: 1, UnitCost: 1}))
	require.NoError(t, err)

	err = svc.ConvertToQuotationRequest(ctx, pr.ID, officeHeadID)
	require.ErrorIs(t, err, ErrInvalidState)

	approveBoth(t, svc, pr.ID)

	require.NoError(t, svc.ConvertToQuotationRequest(ctx, pr.ID, officeHeadID))
	err = svc.ConvertToQuotationRequest(ctx, pr.ID, officeHeadID)
	require.ErrorIs(t, err, ErrConflict)
}

func TestConvertToPurchaseOrder(t *testing.T) {
	repo := newMemoryRepo()
	quotations := &memoryQuotations{quotations: make(map[int64]WinningQuotation)}
	svc := newTestService(repo, quotations)
	ctx := context.Background()

	pr, _, err := svc.CreateRequisition(ctx, createInput(
		LineItemInput{Description: "Bond paper", Unit: "ream", Qty: 100, UnitCost: 250},
	))
	require.NoError(t, err)
	approveBoth(t, svc, pr.ID)

	quotations.quotations[77] = WinningQuotation{
		ID:       77,
		PRNo:     pr.PRNo,
		Supplier: "Acme Trading",
		Items: []QuotedItem{
			{ItemNo: 1, Description: "Bond paper", Unit: "ream", Qty: 100, UnitCost: 240},
		},
	}

	po, err := svc.ConvertToPurchaseOrder(ctx, pr.ID, 77, officeHeadID)
	require.NoError(t, err)
	require.Equal(t, "Acme Trading", po.Supplier)
	require.Equal(t, pr.PRNo, po.PRNo)
	require.Equal(t, float64(24000), po.Total)
	require.Equal(t, StatusPending, po.Status)
	yy := time.Now().Year() % 100
	require.Equal(t, fmt.Sprintf("001-%02d", yy), po.PONo)

	stored, items, err := svc.GetPurchaseOrder(ctx, po.ID)
	require.NoError(t, err)
	require.Equal(t, StatusPending, stored.Status)
	require.Len(t, items, 1)
	require.Equal(t, float64(240), items[0].UnitCost)

	// One purchase order per requisition.
	_, err = svc.ConvertToPurchaseOrder(ctx, pr.ID, 77, officeHeadID)
	require.ErrorIs(t, err, ErrConflict)
}

func TestConvertToPurchaseOrderGuards(t *testing.T) {
	repo := newMemoryRepo()
	quotations := &memoryQuotations{quotations: make(map[int64]WinningQuotation)}
	svc := newTestService(repo, quotations)
	ctx := context.Background()

	pr, _, err := svc.CreateRequisition(ctx, createInput(LineItemInput{Description: "A", Qty: 1, UnitCost: 1}))
	require.NoError(t, err)

	quotations.quotations[5] = WinningQuotation{ID: 5, PRNo: "999-99", Supplier: "Other"}

	_, err = svc.ConvertToPurchaseOrder(ctx, pr.ID, 5, officeHeadID)
	require.ErrorIs(t, err, ErrInvalidState)

	approveBoth(t, svc, pr.ID)

	_, err = svc.ConvertToPurchaseOrder(ctx, pr.ID, 5, officeHeadID)
	require.ErrorIs(t, err, ErrValidation)
}

func TestPurchaseOrderApprovalFlow(t *testing.T) {
	repo := newMemoryRepo()
	quotations := &memoryQuotations{quotations: make(map[int64]WinningQuotation)}
	svc := newTestService(repo, quotations)
	ctx := context.Background()

	pr, _, err := svc.CreateRequisition(ctx, createInput(LineItemInput{Description: "A", Qty: 2, UnitCost: 10}))
	require.NoError(t, err)
	approveBoth(t, svc, pr.ID)
	quotations.quotations[1] = WinningQuotation{ID: 1, PRNo: pr.PRNo, Supplier: "Acme", Items: []QuotedItem{{ItemNo: 1, Description: "A", Qty: 2, UnitCost: 9}}}
	po, err := svc.ConvertToPurchaseOrder(ctx, pr.ID, 1, officeHeadID)
	require.NoError(t, err)

	_, err = svc.ApprovePurchaseOrder(ctx, po.ID, RoleAccountant, accountantID)
	require.NoError(t, err)
	final, err := svc.ApprovePurchaseOrder(ctx, po.ID, RolePresident, presidentID)
	require.NoError(t, err)
	require.Equal(t, StatusApproved, final.Status)

	_, err = svc.ApprovePurchaseOrder(ctx, po.ID, RoleAccountant, accountantID)
	require.ErrorIs(t, err, ErrConflict)

	_, err = svc.RejectPurchaseOrder(ctx, po.ID, RolePresident, "too late", presidentID)
	require.ErrorIs(t, err, ErrConflict)
}
