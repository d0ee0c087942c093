package procurement

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/procura-erp/procura-erp/internal/approval"
	"github.com/procura-erp/procura-erp/internal/sequence"
	"github.com/procura-erp/procura-erp/internal/shared"
	"github.com/procura-erp/procura-erp/internal/storage"
	"github.com/procura-erp/procura-erp/internal/users"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetRequisition(ctx context.Context, id int64) (Requisition, []LineItem, error)
	ListRequisitions(ctx context.Context) ([]RequisitionSummary, error)
	GetPurchaseOrder(ctx context.Context, id int64) (PurchaseOrder, []POItem, error)
	ListPurchaseOrders(ctx context.Context) ([]PurchaseOrderSummary, error)
	PurchaseOrderExistsForPR(ctx context.Context, prno string) (bool, error)
}

// TxRepository exposes transactional operations. NextNumber advances
// the document counter inside the same transaction as the insert, so a
// failed insert cannot leak a consumed sequence number.
type TxRepository interface {
	NextNumber(ctx context.Context, scope string, year int) (string, error)
	CreateRequisition(ctx context.Context, pr Requisition) (int64, error)
	InsertLineItem(ctx context.Context, line LineItem) error
	GetRequisition(ctx context.Context, id int64) (Requisition, []LineItem, error)
	UpdateRequisitionApprovals(ctx context.Context, id int64, rec approval.Record, status Status) error
	MarkQuotationRequested(ctx context.Context, id int64) (bool, error)
	CreatePurchaseOrder(ctx context.Context, po PurchaseOrder) (int64, error)
	InsertPOItem(ctx context.Context, item POItem) error
	GetPurchaseOrder(ctx context.Context, id int64) (PurchaseOrder, []POItem, error)
	UpdatePurchaseOrderApprovals(ctx context.Context, id int64, rec approval.Record, status Status) error
}

// QuotedItem is one line of a supplier quotation as seen by the
// purchase order conversion.
type QuotedItem struct {
	ItemNo      int
	Description string
	Unit        string
	Qty         float64
	UnitCost    float64
}

// WinningQuotation is the slice of a supplier quotation needed to
// materialize a purchase order.
type WinningQuotation struct {
	ID       int64
	PRNo     string
	Supplier string
	Items    []QuotedItem
}

// QuotationPort exposes the bidding module's quotations.
type QuotationPort interface {
	GetQuotationForAward(ctx context.Context, id int64) (WinningQuotation, error)
}

// ActorDirectory resolves the caller's identity and role before any
// approval mutation.
type ActorDirectory interface {
	GetUser(ctx context.Context, id int64) (users.User, error)
}

// HistoryPort records the per-document tracking timeline.
type HistoryPort interface {
	Record(ctx context.Context, entry shared.HistoryEntry) error
	List(ctx context.Context, module, docNo string) ([]shared.HistoryEntry, error)
}

// AuditPort reused from shared.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// CatalogPort lets requisition usage draw down PPMP quantities. The
// draw-down runs after commit and is best-effort, matching the source
// system; it is not transactional with requisition creation.
type CatalogPort interface {
	ConsumeQuantities(ctx context.Context, ownerID int64, items []LineItem) error
}

// Notifier enqueues a notification when a document reaches a terminal
// decision. Implementations must tolerate being nil-checked.
type Notifier interface {
	NotifyDecision(ctx context.Context, module, docNo string, decision string) error
}

// History module tags.
const (
	ModuleRequisition   = "REQUISITION"
	ModulePurchaseOrder = "PURCHASE_ORDER"
)

// Service orchestrates the requisition and purchase order lifecycle.
type Service struct {
	repo        RepositoryPort
	attachments storage.AttachmentStore
	quotations  QuotationPort
	actors      ActorDirectory
	history     HistoryPort
	audit       AuditPort
	catalog     CatalogPort
	notifier    Notifier
	logger      *slog.Logger
	now         func() time.Time
}

// NewService constructs the procurement service.
func NewService(repo RepositoryPort, attachments storage.AttachmentStore, quotations QuotationPort, actors ActorDirectory, history HistoryPort, audit AuditPort, catalog CatalogPort, notifier Notifier, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:        repo,
		attachments: attachments,
		quotations:  quotations,
		actors:      actors,
		history:     history,
		audit:       audit,
		catalog:     catalog,
		notifier:    notifier,
		logger:      logger,
		now:         time.Now,
	}
}

// FileInput is one uploaded attachment.
type FileInput struct {
	Filename    string
	ContentType string
	Content     io.Reader
}

// AttachmentInput carries the three named attachment slots. Letter is
// mandatory.
type AttachmentInput struct {
	Letter        *FileInput
	Certification *FileInput
	Proposal      *FileInput
}

// LineItemInput describes one requested item.
type LineItemInput struct {
	ItemNo      int
	Description string
	Unit        string
	Qty         float64
	UnitCost    float64
}

// CreateRequisitionInput describes the creation payload.
type CreateRequisitionInput struct {
	RequesterID int64
	Purpose     string
	Items       []LineItemInput
	Attachments AttachmentInput
}

// CreateRequisition validates input, uploads attachments, derives the
// total and procurement mode, assigns a document number and persists
// the requisition with a pending approval record.
func (s *Service) CreateRequisition(ctx context.Context, input CreateRequisitionInput) (Requisition, []LineItem, error) {
	if input.Purpose == "" {
		return Requisition{}, nil, fmt.Errorf("%w: purpose is required", ErrValidation)
	}
	if len(input.Items) == 0 {
		return Requisition{}, nil, fmt.Errorf("%w: at least one item is required", ErrValidation)
	}
	for i, item := range input.Items {
		if item.Description == "" {
			return Requisition{}, nil, fmt.Errorf("%w: item %d is missing a description", ErrValidation, i+1)
		}
		if item.Qty <= 0 {
			return Requisition{}, nil, fmt.Errorf("%w: item %d quantity must be positive", ErrValidation, i+1)
		}
		if item.UnitCost < 0 {
			return Requisition{}, nil, fmt.Errorf("%w: item %d unit cost must not be negative", ErrValidation, i+1)
		}
	}
	if input.Attachments.Letter == nil {
		return Requisition{}, nil, fmt.Errorf("%w: letter attachment is required", ErrValidation)
	}

	requester, err := s.actors.GetUser(ctx, input.RequesterID)
	if err != nil {
		return Requisition{}, nil, fmt.Errorf("procurement: resolve requester: %w", err)
	}

	urls, err := s.uploadAttachments(ctx, input.Attachments)
	if err != nil {
		return Requisition{}, nil, err
	}

	now := s.now()
	var total float64
	lines := make([]LineItem, 0, len(input.Items))
	for i, item := range input.Items {
		itemNo := item.ItemNo
		if itemNo == 0 {
			itemNo = i + 1
		}
		lineTotal := item.Qty * item.UnitCost
		total += lineTotal
		lines = append(lines, LineItem{
			ItemNo:      itemNo,
			Description: item.Description,
			Unit:        item.Unit,
			Qty:         item.Qty,
			UnitCost:    item.UnitCost,
			TotalCost:   lineTotal,
		})
	}

	pr := Requisition{
		RequesterID:      requester.ID,
		RequesterName:    requester.Name,
		Department:       requester.Department,
		Section:          requester.Section,
		Purpose:          input.Purpose,
		Mode:             ModeFor(total),
		OverallTotal:     total,
		Approvals:        approval.NewRecord(RoleAccountant, RolePresident),
		Status:           StatusPending,
		LetterURL:        urls.letter,
		CertificationURL: urls.certification,
		ProposalURL:      urls.proposal,
		Date:             now,
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		number, err := tx.NextNumber(ctx, sequence.ScopeRequisition, now.Year())
		if err != nil {
			return err
		}
		pr.PRNo = number
		id, err := tx.CreateRequisition(ctx, pr)
		if err != nil {
			return err
		}
		pr.ID = id
		for i := range lines {
			lines[i].RequisitionID = id
			if err := tx.InsertLineItem(ctx, lines[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return Requisition{}, nil, err
	}

	s.recordHistory(ctx, ModuleRequisition, pr.PRNo, requester.ID, shared.HistorySubmit, "requisition submitted")
	s.recordAudit(ctx, requester.ID, "PR_CREATE", pr.ID, map[string]any{"prno": pr.PRNo, "total": pr.OverallTotal})

	// PPMP draw-down is best-effort after commit; see DESIGN.md.
	if s.catalog != nil {
		if err := s.catalog.ConsumeQuantities(ctx, requester.ID, lines); err != nil {
			s.logger.Warn("ppmp draw-down", slog.Any("error", err), slog.String("prno", pr.PRNo))
		}
	}
	return pr, lines, nil
}

type attachmentURLs struct {
	letter        string
	certification string
	proposal      string
}

// uploadAttachments pushes all provided files concurrently and waits
// for every upload before persisting anything.
func (s *Service) uploadAttachments(ctx context.Context, input AttachmentInput) (attachmentURLs, error) {
	var urls attachmentURLs
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		url, err := s.attachments.Save(gctx, input.Letter.Filename, input.Letter.ContentType, input.Letter.Content)
		if err != nil {
			return fmt.Errorf("procurement: upload letter: %w", err)
		}
		urls.letter = url
		return nil
	})
	if input.Certification != nil {
		g.Go(func() error {
			url, err := s.attachments.Save(gctx, input.Certification.Filename, input.Certification.ContentType, input.Certification.Content)
			if err != nil {
				return fmt.Errorf("procurement: upload certification: %w", err)
			}
			urls.certification = url
			return nil
		})
	}
	if input.Proposal != nil {
		g.Go(func() error {
			url, err := s.attachments.Save(gctx, input.Proposal.Filename, input.Proposal.ContentType, input.Proposal.Content)
			if err != nil {
				return fmt.Errorf("procurement: upload proposal: %w", err)
			}
			urls.proposal = url
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return attachmentURLs{}, err
	}
	return urls, nil
}

// ApproveRequisition sets one approver slot. The caller's persisted
// role must match the slot; repeating a decision is a conflict.
func (s *Service) ApproveRequisition(ctx context.Context, id int64, slotRole string, actorID int64) (Requisition, error) {
	actor, err := s.resolveApprover(ctx, actorID, slotRole)
	if err != nil {
		return Requisition{}, err
	}
	var updated Requisition
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		// Re-fetch inside the transaction so a concurrent approval by
		// the other slot is not clobbered.
		pr, _, err := tx.GetRequisition(ctx, id)
		if err != nil {
			return err
		}
		if err := pr.Approvals.Approve(slotRole, actor.Name, s.now()); err != nil {
			return mapApprovalError(err)
		}
		pr.Status = Status(pr.Approvals.Status())
		if err := tx.UpdateRequisitionApprovals(ctx, id, pr.Approvals, pr.Status); err != nil {
			return err
		}
		updated = pr
		return nil
	})
	if err != nil {
		return Requisition{}, err
	}
	s.recordHistory(ctx, ModuleRequisition, updated.PRNo, actorID, shared.HistoryApprove, fmt.Sprintf("approved by %s", slotRole))
	s.recordAudit(ctx, actorID, "PR_APPROVE", id, map[string]any{"prno": updated.PRNo, "slot": slotRole})
	s.notifyIfDecided(ctx, ModuleRequisition, updated.PRNo, updated.Status)
	return updated, nil
}

// RejectRequisition finalizes the requisition with a mandatory reason.
func (s *Service) RejectRequisition(ctx context.Context, id int64, slotRole, reason string, actorID int64) (Requisition, error) {
	if reason == "" {
		return Requisition{}, fmt.Errorf("%w: rejection reason is required", ErrValidation)
	}
	actor, err := s.resolveApprover(ctx, actorID, slotRole)
	if err != nil {
		return Requisition{}, err
	}
	var updated Requisition
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		pr, _, err := tx.GetRequisition(ctx, id)
		if err != nil {
			return err
		}
		if err := pr.Approvals.Reject(slotRole, actor.Name, reason, s.now()); err != nil {
			return mapApprovalError(err)
		}
		pr.Status = Status(pr.Approvals.Status())
		if err := tx.UpdateRequisitionApprovals(ctx, id, pr.Approvals, pr.Status); err != nil {
			return err
		}
		updated = pr
		return nil
	})
	if err != nil {
		return Requisition{}, err
	}
	s.recordHistory(ctx, ModuleRequisition, updated.PRNo, actorID, shared.HistoryReject, reason)
	s.recordAudit(ctx, actorID, "PR_REJECT", id, map[string]any{"prno": updated.PRNo, "reason": reason})
	s.notifyIfDecided(ctx, ModuleRequisition, updated.PRNo, updated.Status)
	return updated, nil
}

// ConvertToQuotationRequest opens the requisition for supplier
// quotations. Only a fully approved requisition qualifies, and a
// second call is a conflict rather than a duplicate.
func (s *Service) ConvertToQuotationRequest(ctx context.Context, id int64, actorID int64) error {
	var prno string
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		pr, _, err := tx.GetRequisition(ctx, id)
		if err != nil {
			return err
		}
		if pr.Status != StatusApproved {
			return fmt.Errorf("%w: requisition must be approved before requesting quotations", ErrInvalidState)
		}
		marked, err := tx.MarkQuotationRequested(ctx, id)
		if err != nil {
			return err
		}
		if !marked {
			return fmt.Errorf("%w: quotation request already exists", ErrConflict)
		}
		prno = pr.PRNo
		return nil
	})
	if err != nil {
		return err
	}
	s.recordHistory(ctx, ModuleRequisition, prno, actorID, shared.HistoryConvert, "opened for supplier quotations")
	s.recordAudit(ctx, actorID, "PR_QUOTATION_REQUEST", id, map[string]any{"prno": prno})
	return nil
}

// ConvertToPurchaseOrder copies the winning quotation's items into a
// new purchase order with its own fresh approval record.
func (s *Service) ConvertToPurchaseOrder(ctx context.Context, requisitionID, quotationID int64, actorID int64) (PurchaseOrder, error) {
	pr, _, err := s.repo.GetRequisition(ctx, requisitionID)
	if err != nil {
		return PurchaseOrder{}, err
	}
	if pr.Status != StatusApproved {
		return PurchaseOrder{}, fmt.Errorf("%w: requisition must be approved before issuing a purchase order", ErrInvalidState)
	}
	quotation, err := s.quotations.GetQuotationForAward(ctx, quotationID)
	if err != nil {
		return PurchaseOrder{}, err
	}
	if quotation.PRNo != pr.PRNo {
		return PurchaseOrder{}, fmt.Errorf("%w: quotation does not belong to requisition %s", ErrValidation, pr.PRNo)
	}
	exists, err := s.repo.PurchaseOrderExistsForPR(ctx, pr.PRNo)
	if err != nil {
		return PurchaseOrder{}, err
	}
	if exists {
		return PurchaseOrder{}, fmt.Errorf("%w: purchase order already issued for %s", ErrConflict, pr.PRNo)
	}

	now := s.now()
	po := PurchaseOrder{
		PRNo:          pr.PRNo,
		RequisitionID: pr.ID,
		QuotationID:   quotation.ID,
		Supplier:      quotation.Supplier,
		Approvals:     approval.NewRecord(RoleAccountant, RolePresident),
		Status:        StatusPending,
		Date:          now,
	}
	items := make([]POItem, 0, len(quotation.Items))
	for _, q := range quotation.Items {
		lineTotal := q.Qty * q.UnitCost
		po.Total += lineTotal
		items = append(items, POItem{
			ItemNo:      q.ItemNo,
			Description: q.Description,
			Unit:        q.Unit,
			Qty:         q.Qty,
			UnitCost:    q.UnitCost,
			TotalCost:   lineTotal,
		})
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		number, err := tx.NextNumber(ctx, sequence.ScopePurchaseOrder, now.Year())
		if err != nil {
			return err
		}
		po.PONo = number
		id, err := tx.CreatePurchaseOrder(ctx, po)
		if err != nil {
			return err
		}
		po.ID = id
		for i := range items {
			items[i].PurchaseOrderID = id
			if err := tx.InsertPOItem(ctx, items[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return PurchaseOrder{}, err
	}
	s.recordHistory(ctx, ModulePurchaseOrder, po.PONo, actorID, shared.HistorySubmit, fmt.Sprintf("purchase order issued to %s", po.Supplier))
	s.recordAudit(ctx, actorID, "PO_CREATE", po.ID, map[string]any{"pono": po.PONo, "prno": po.PRNo, "supplier": po.Supplier})
	return po, nil
}

// ApprovePurchaseOrder mirrors ApproveRequisition for purchase orders.
func (s *Service) ApprovePurchaseOrder(ctx context.Context, id int64, slotRole string, actorID int64) (PurchaseOrder, error) {
	actor, err := s.resolveApprover(ctx, actorID, slotRole)
	if err != nil {
		return PurchaseOrder{}, err
	}
	var updated PurchaseOrder
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		po, _, err := tx.GetPurchaseOrder(ctx, id)
		if err != nil {
			return err
		}
		if err := po.Approvals.Approve(slotRole, actor.Name, s.now()); err != nil {
			return mapApprovalError(err)
		}
		po.Status = Status(po.Approvals.Status())
		if err := tx.UpdatePurchaseOrderApprovals(ctx, id, po.Approvals, po.Status); err != nil {
			return err
		}
		updated = po
		return nil
	})
	if err != nil {
		return PurchaseOrder{}, err
	}
	s.recordHistory(ctx, ModulePurchaseOrder, updated.PONo, actorID, shared.HistoryApprove, fmt.Sprintf("approved by %s", slotRole))
	s.recordAudit(ctx, actorID, "PO_APPROVE", id, map[string]any{"pono": updated.PONo, "slot": slotRole})
	s.notifyIfDecided(ctx, ModulePurchaseOrder, updated.PONo, updated.Status)
	return updated, nil
}

// RejectPurchaseOrder finalizes the purchase order with a reason.
func (s *Service) RejectPurchaseOrder(ctx context.Context, id int64, slotRole, reason string, actorID int64) (PurchaseOrder, error) {
	if reason == "" {
		return PurchaseOrder{}, fmt.Errorf("%w: rejection reason is required", ErrValidation)
	}
	actor, err := s.resolveApprover(ctx, actorID, slotRole)
	if err != nil {
		return PurchaseOrder{}, err
	}
	var updated PurchaseOrder
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		po, _, err := tx.GetPurchaseOrder(ctx, id)
		if err != nil {
			return err
		}
		if err := po.Approvals.Reject(slotRole, actor.Name, reason, s.now()); err != nil {
			return mapApprovalError(err)
		}
		po.Status = Status(po.Approvals.Status())
		if err := tx.UpdatePurchaseOrderApprovals(ctx, id, po.Approvals, po.Status); err != nil {
			return err
		}
		updated = po
		return nil
	})
	if err != nil {
		return PurchaseOrder{}, err
	}
	s.recordHistory(ctx, ModulePurchaseOrder, updated.PONo, actorID, shared.HistoryReject, reason)
	s.recordAudit(ctx, actorID, "PO_REJECT", id, map[string]any{"pono": updated.PONo, "reason": reason})
	s.notifyIfDecided(ctx, ModulePurchaseOrder, updated.PONo, updated.Status)
	return updated, nil
}

// GetRequisition returns a requisition with its line items.
func (s *Service) GetRequisition(ctx context.Context, id int64) (Requisition, []LineItem, error) {
	return s.repo.GetRequisition(ctx, id)
}

// ListRequisitions returns requisition summaries, newest first.
func (s *Service) ListRequisitions(ctx context.Context) ([]RequisitionSummary, error) {
	return s.repo.ListRequisitions(ctx)
}

// GetPurchaseOrder returns a purchase order with its items.
func (s *Service) GetPurchaseOrder(ctx context.Context, id int64) (PurchaseOrder, []POItem, error) {
	return s.repo.GetPurchaseOrder(ctx, id)
}

// ListPurchaseOrders returns purchase order summaries.
func (s *Service) ListPurchaseOrders(ctx context.Context) ([]PurchaseOrderSummary, error) {
	return s.repo.ListPurchaseOrders(ctx)
}

// Tracking returns the document timeline for a requisition.
func (s *Service) Tracking(ctx context.Context, id int64) ([]shared.HistoryEntry, error) {
	pr, _, err := s.repo.GetRequisition(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.history == nil {
		return nil, nil
	}
	return s.history.List(ctx, ModuleRequisition, pr.PRNo)
}

func (s *Service) resolveApprover(ctx context.Context, actorID int64, slotRole string) (users.User, error) {
	actor, err := s.actors.GetUser(ctx, actorID)
	if err != nil {
		return users.User{}, fmt.Errorf("procurement: resolve approver: %w", err)
	}
	if actor.Role != slotRole {
		return users.User{}, fmt.Errorf("%w: %s required", ErrForbidden, slotRole)
	}
	return actor, nil
}

func (s *Service) recordHistory(ctx context.Context, module, docNo string, actorID int64, action shared.HistoryAction, note string) {
	if s.history == nil {
		return
	}
	if err := s.history.Record(ctx, shared.HistoryEntry{Module: module, DocNo: docNo, ActorID: actorID, Action: action, Note: note}); err != nil {
		s.logger.Warn("record history", slog.Any("error", err))
	}
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{ActorID: actorID, Action: action, Entity: "procurement", EntityID: fmt.Sprintf("%d", entityID), Meta: meta})
}

func (s *Service) notifyIfDecided(ctx context.Context, module, docNo string, status Status) {
	if s.notifier == nil || status == StatusPending {
		return
	}
	if err := s.notifier.NotifyDecision(ctx, module, docNo, string(status)); err != nil {
		s.logger.Warn("notify decision", slog.Any("error", err))
	}
}

func mapApprovalError(err error) error {
	switch {
	case errors.Is(err, approval.ErrAlreadyApproved), errors.Is(err, approval.ErrFinalized):
		return fmt.Errorf("%w: %v", ErrConflict, err)
	case errors.Is(err, approval.ErrReasonRequired):
		return fmt.Errorf("%w: %v", ErrValidation, err)
	case errors.Is(err, approval.ErrUnknownRole):
		return fmt.Errorf("%w: %v", ErrForbidden, err)
	default:
		return err
	}
}
