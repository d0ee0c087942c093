package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/procura-erp/procura-erp/internal/bidding"
	"github.com/procura-erp/procura-erp/internal/ppmp"
	"github.com/procura-erp/procura-erp/internal/procurement"
	"github.com/procura-erp/procura-erp/jobs"
)

// The domain packages do not import each other; these adapters connect
// their ports at composition time.

// quotationAdapter exposes bidding quotations to the purchase order
// conversion flow.
type quotationAdapter struct {
	bids *bidding.Service
}

// NewQuotationAdapter implements procurement.QuotationPort over the
// bidding service.
func NewQuotationAdapter(bids *bidding.Service) procurement.QuotationPort {
	return &quotationAdapter{bids: bids}
}

func (a *quotationAdapter) GetQuotationForAward(ctx context.Context, id int64) (procurement.WinningQuotation, error) {
	q, err := a.bids.GetQuotation(ctx, id)
	if err != nil {
		if errors.Is(err, bidding.ErrNotFound) {
			return procurement.WinningQuotation{}, fmt.Errorf("%w: quotation %d", procurement.ErrNotFound, id)
		}
		return procurement.WinningQuotation{}, err
	}
	win := procurement.WinningQuotation{
		ID:       q.ID,
		PRNo:     q.PRNo,
		Supplier: q.Supplier,
	}
	for _, item := range q.Items {
		win.Items = append(win.Items, procurement.QuotedItem{
			ItemNo:      item.ItemNo,
			Description: item.Description,
			Unit:        item.Unit,
			Qty:         item.Qty,
			UnitCost:    item.UnitCost,
		})
	}
	return win, nil
}

// requisitionGateAdapter answers the bidding module's "is this PR open
// for quotations" question, translating the procurement sentinel so an
// unknown PR number surfaces as a bidding not-found.
type requisitionGateAdapter struct {
	repo *procurement.Repository
}

// NewRequisitionGate implements bidding.RequisitionGate over the
// procurement repository.
func NewRequisitionGate(repo *procurement.Repository) bidding.RequisitionGate {
	return &requisitionGateAdapter{repo: repo}
}

func (a *requisitionGateAdapter) QuotationOpen(ctx context.Context, prno string) (bool, error) {
	open, err := a.repo.QuotationOpen(ctx, prno)
	if err != nil {
		if errors.Is(err, procurement.ErrNotFound) {
			return false, fmt.Errorf("%w: requisition %s", bidding.ErrNotFound, prno)
		}
		return false, err
	}
	return open, nil
}

func (a *requisitionGateAdapter) RequisitionTotal(ctx context.Context, prno string) (float64, error) {
	total, err := a.repo.RequisitionTotal(ctx, prno)
	if err != nil {
		if errors.Is(err, procurement.ErrNotFound) {
			return 0, fmt.Errorf("%w: requisition %s", bidding.ErrNotFound, prno)
		}
		return 0, err
	}
	return total, nil
}

// catalogAdapter lets requisition line items draw down the requester's
// procurement plan.
type catalogAdapter struct {
	plans *ppmp.Service
}

// NewCatalogAdapter implements procurement.CatalogPort over the PPMP
// service.
func NewCatalogAdapter(plans *ppmp.Service) procurement.CatalogPort {
	return &catalogAdapter{plans: plans}
}

func (a *catalogAdapter) ConsumeQuantities(ctx context.Context, ownerID int64, items []procurement.LineItem) error {
	demands := make([]ppmp.Demand, 0, len(items))
	for _, item := range items {
		demands = append(demands, ppmp.Demand{
			Description: item.Description,
			Qty:         item.Qty,
		})
	}
	return a.plans.ConsumeQuantities(ctx, ownerID, demands)
}

// decisionNotifier enqueues an approval decision mail for every
// finalized document.
type decisionNotifier struct {
	client *jobs.Client
}

// NewDecisionNotifier implements procurement.Notifier over the job
// queue client.
func NewDecisionNotifier(client *jobs.Client) procurement.Notifier {
	return &decisionNotifier{client: client}
}

func (n *decisionNotifier) NotifyDecision(ctx context.Context, module, docNo, decision string) error {
	if n.client == nil {
		return nil
	}
	_, err := n.client.EnqueueApprovalMail(ctx, jobs.ApprovalMailPayload{
		Module:   module,
		DocNo:    docNo,
		Decision: decision,
	})
	return err
}
