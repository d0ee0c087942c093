package backup

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
)

// MaxAge is the restore freshness window. Documents older than this are
// rejected before anything is touched.
const MaxAge = 30 * 24 * time.Hour

// RepositoryPort defines the full-read and full-replace operations.
type RepositoryPort interface {
	ReadAll(ctx context.Context) (Document, error)
	Replace(ctx context.Context, doc Document) error
}

// Service produces and consumes backup documents.
type Service struct {
	repo      RepositoryPort
	validator *validator.Validate
	logger    *slog.Logger
	now       func() time.Time
}

// NewService constructs the backup service.
func NewService(repo RepositoryPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, validator: validator.New(), logger: logger, now: time.Now}
}

// Backup reads every managed collection into one dated document.
func (s *Service) Backup(ctx context.Context) (Document, error) {
	doc, err := s.repo.ReadAll(ctx)
	if err != nil {
		return Document{}, fmt.Errorf("backup: read collections: %w", err)
	}
	doc.BackupDate = Timestamp(s.now())
	return doc, nil
}

// Restore parses and validates raw, enforces the freshness window, and
// then replaces the entire data set in one transaction. Rows missing
// required values are dropped rather than failing the whole document.
func (s *Service) Restore(ctx context.Context, raw []byte) error {
	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if err := s.validator.Struct(doc); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if doc.BackupDate.IsZero() {
		return fmt.Errorf("%w: backupDate is required", ErrMalformed)
	}
	if age := s.now().Sub(doc.BackupDate.Time()); age > MaxAge {
		return fmt.Errorf("%w: document is %s old", ErrStale, age.Round(time.Hour))
	}

	dropped := s.filterRows(&doc)
	if dropped > 0 {
		s.logger.Warn("restore dropped incomplete rows", slog.Int("count", dropped))
	}

	if err := s.repo.Replace(ctx, doc); err != nil {
		return fmt.Errorf("backup: replace data set: %w", err)
	}
	s.logger.Info("restore completed",
		slog.Time("backup_date", doc.BackupDate.Time()),
		slog.Int("requisitions", len(doc.Requisitions)),
		slog.Int("purchase_orders", len(doc.PurchaseOrders)))
	return nil
}

// filterRows drops rows missing required values and returns how many
// were removed.
func (s *Service) filterRows(doc *Document) int {
	dropped := 0

	keepPlans := doc.PPMPItems[:0]
	for _, row := range doc.PPMPItems {
		if row.Description == "" || row.OwnerID == 0 {
			dropped++
			continue
		}
		keepPlans = append(keepPlans, row)
	}
	doc.PPMPItems = keepPlans

	keepPRs := doc.Requisitions[:0]
	for _, row := range doc.Requisitions {
		if row.PRNo == "" || row.ID == 0 {
			dropped++
			continue
		}
		keepPRs = append(keepPRs, row)
	}
	doc.Requisitions = keepPRs

	keepPRItems := doc.RequisitionItems[:0]
	for _, row := range doc.RequisitionItems {
		if row.RequisitionID == 0 || row.Description == "" {
			dropped++
			continue
		}
		keepPRItems = append(keepPRItems, row)
	}
	doc.RequisitionItems = keepPRItems

	keepQuotes := doc.Quotations[:0]
	for _, row := range doc.Quotations {
		if row.ID == 0 || row.PRNo == "" || row.Supplier == "" {
			dropped++
			continue
		}
		keepQuotes = append(keepQuotes, row)
	}
	doc.Quotations = keepQuotes

	keepQuoteItems := doc.QuotationItems[:0]
	for _, row := range doc.QuotationItems {
		if row.QuotationID == 0 || row.Description == "" {
			dropped++
			continue
		}
		keepQuoteItems = append(keepQuoteItems, row)
	}
	doc.QuotationItems = keepQuoteItems

	keepAbstracts := doc.Abstracts[:0]
	for _, row := range doc.Abstracts {
		if row.PRNo == "" || len(row.Matrix) == 0 {
			dropped++
			continue
		}
		keepAbstracts = append(keepAbstracts, row)
	}
	doc.Abstracts = keepAbstracts

	keepPOs := doc.PurchaseOrders[:0]
	for _, row := range doc.PurchaseOrders {
		if row.ID == 0 || row.PONo == "" || row.PRNo == "" {
			dropped++
			continue
		}
		keepPOs = append(keepPOs, row)
	}
	doc.PurchaseOrders = keepPOs

	keepPOItems := doc.PurchaseOrderItems[:0]
	for _, row := range doc.PurchaseOrderItems {
		if row.PurchaseOrderID == 0 || row.Description == "" {
			dropped++
			continue
		}
		keepPOItems = append(keepPOItems, row)
	}
	doc.PurchaseOrderItems = keepPOItems

	return dropped
}
