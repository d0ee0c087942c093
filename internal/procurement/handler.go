package procurement

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/procura-erp/procura-erp/internal/platform/httpx"
	"github.com/procura-erp/procura-erp/internal/shared"
)

// Upload size cap for the multipart requisition form.
const maxUploadBytes = 32 << 20

// Handler exposes the requisition and purchase order endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	authz   shared.Authz
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, authz shared.Authz) *Handler {
	return &Handler{logger: logger, service: service, authz: authz}
}

// MountRequisitionRoutes registers routes under /requisitions.
func (h *Handler) MountRequisitionRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.authz.RequireAuth)
		r.Get("/", h.handleListRequisitions)
		r.Get("/{id}", h.handleGetRequisition)
		r.Get("/{id}/tracking", h.handleTracking)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.authz.RequireRole(shared.RoleOfficeHead))
		r.Post("/", h.handleCreateRequisition)
		r.Post("/{id}/quotation-request", h.handleQuotationRequest)
		r.Post("/{id}/purchase-order", h.handleConvertToPO)
	})
	r.With(h.authz.RequireRole(shared.RoleAccountant)).
		Post("/{id}/accountant-approval", h.approveRequisition(RoleAccountant))
	r.With(h.authz.RequireRole(shared.RolePresident)).
		Post("/{id}/president-approval", h.approveRequisition(RolePresident))
	r.With(h.authz.RequireRole(shared.RoleAccountant, shared.RolePresident)).
		Post("/{id}/rejection", h.handleRejectRequisition)
}

// MountPurchaseOrderRoutes registers routes under /purchase-orders.
func (h *Handler) MountPurchaseOrderRoutes(r chi.Router) {
	r.With(h.authz.RequireAuth).Get("/", h.handleListPurchaseOrders)
	r.With(h.authz.RequireAuth).Get("/{id}", h.handleGetPurchaseOrder)
	r.With(h.authz.RequireRole(shared.RoleAccountant)).
		Post("/{id}/accountant-approval", h.approvePurchaseOrder(RoleAccountant))
	r.With(h.authz.RequireRole(shared.RolePresident)).
		Post("/{id}/president-approval", h.approvePurchaseOrder(RolePresident))
	r.With(h.authz.RequireRole(shared.RoleAccountant, shared.RolePresident)).
		Post("/{id}/rejection", h.handleRejectPurchaseOrder)
}

type lineItemRequest struct {
	ItemNo      int     `json:"item_no"`
	Description string  `json:"description"`
	Unit        string  `json:"unit"`
	Qty         float64 `json:"qty"`
	UnitCost    float64 `json:"unit_cost"`
}

type requisitionResponse struct {
	ID                 int64              `json:"id"`
	PRNo               string             `json:"prno"`
	RequesterName      string             `json:"requester_name"`
	Department         string             `json:"department"`
	Section            string             `json:"section"`
	Purpose            string             `json:"purpose"`
	Mode               Mode               `json:"procurement_mode"`
	OverallTotal       float64            `json:"overall_total"`
	Status             Status             `json:"status"`
	QuotationRequested bool               `json:"quotation_requested"`
	LetterURL          string             `json:"letter_url,omitempty"`
	CertificationURL   string             `json:"certification_url,omitempty"`
	ProposalURL        string             `json:"proposal_url,omitempty"`
	Date               string             `json:"date"`
	Approvals          any                `json:"approvals"`
	Items              []lineItemResponse `json:"items"`
}

type lineItemResponse struct {
	ItemNo      int     `json:"item_no"`
	Description string  `json:"description"`
	Unit        string  `json:"unit"`
	Qty         float64 `json:"qty"`
	UnitCost    float64 `json:"unit_cost"`
	TotalCost   float64 `json:"total_cost"`
}

func requisitionToResponse(pr Requisition, items []LineItem) requisitionResponse {
	resp := requisitionResponse{
		ID:                 pr.ID,
		PRNo:               pr.PRNo,
		RequesterName:      pr.RequesterName,
		Department:         pr.Department,
		Section:            pr.Section,
		Purpose:            pr.Purpose,
		Mode:               pr.Mode,
		OverallTotal:       pr.OverallTotal,
		Status:             pr.Status,
		QuotationRequested: pr.QuotationRequested,
		LetterURL:          pr.LetterURL,
		CertificationURL:   pr.CertificationURL,
		ProposalURL:        pr.ProposalURL,
		Date:               pr.Date.Format("2006-01-02"),
		Approvals:          pr.Approvals,
		Items:              make([]lineItemResponse, 0, len(items)),
	}
	for _, item := range items {
		resp.Items = append(resp.Items, lineItemResponse{
			ItemNo:      item.ItemNo,
			Description: item.Description,
			Unit:        item.Unit,
			Qty:         item.Qty,
			UnitCost:    item.UnitCost,
			TotalCost:   item.TotalCost,
		})
	}
	return resp
}

func (h *Handler) handleCreateRequisition(w http.ResponseWriter, r *http.Request) {
	actorID, ok := actorFromSession(w, r)
	if !ok {
		return
	}
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "multipart form expected")
		return
	}

	var items []lineItemRequest
	if raw := r.FormValue("items"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &items); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "items must be a JSON array")
			return
		}
	}

	input := CreateRequisitionInput{
		RequesterID: actorID,
		Purpose:     r.FormValue("purpose"),
	}
	for _, item := range items {
		input.Items = append(input.Items, LineItemInput(item))
	}

	for _, slot := range []struct {
		field  string
		target **FileInput
	}{
		{"letter", &input.Attachments.Letter},
		{"certification", &input.Attachments.Certification},
		{"proposal", &input.Attachments.Proposal},
	} {
		file, header, err := r.FormFile(slot.field)
		if err != nil {
			if errors.Is(err, http.ErrMissingFile) {
				continue
			}
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed upload: "+slot.field)
			return
		}
		defer file.Close()
		*slot.target = &FileInput{
			Filename:    header.Filename,
			ContentType: header.Header.Get("Content-Type"),
			Content:     file,
		}
	}

	pr, lines, err := h.service.CreateRequisition(r.Context(), input)
	if err != nil {
		h.respondError(w, "create requisition", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, requisitionToResponse(pr, lines))
}

func (h *Handler) handleListRequisitions(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.ListRequisitions(r.Context())
	if err != nil {
		h.respondError(w, "list requisitions", err)
		return
	}
	if list == nil {
		list = []RequisitionSummary{}
	}
	httpx.JSON(w, http.StatusOK, list)
}

func (h *Handler) handleGetRequisition(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	pr, items, err := h.service.GetRequisition(r.Context(), id)
	if err != nil {
		h.respondError(w, "get requisition", err)
		return
	}
	httpx.JSON(w, http.StatusOK, requisitionToResponse(pr, items))
}

func (h *Handler) handleTracking(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	entries, err := h.service.Tracking(r.Context(), id)
	if err != nil {
		h.respondError(w, "requisition tracking", err)
		return
	}
	if entries == nil {
		entries = []shared.HistoryEntry{}
	}
	httpx.JSON(w, http.StatusOK, entries)
}

func (h *Handler) approveRequisition(slotRole string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := idParam(w, r)
		if !ok {
			return
		}
		actorID, ok := actorFromSession(w, r)
		if !ok {
			return
		}
		pr, err := h.service.ApproveRequisition(r.Context(), id, slotRole, actorID)
		if err != nil {
			h.respondError(w, "approve requisition", err)
			return
		}
		httpx.JSON(w, http.StatusOK, requisitionToResponse(pr, nil))
	}
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) handleRejectRequisition(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	actorID, ok := actorFromSession(w, r)
	if !ok {
		return
	}
	var req rejectRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	sess := shared.SessionFromContext(r.Context())
	pr, err := h.service.RejectRequisition(r.Context(), id, sess.Role(), req.Reason, actorID)
	if err != nil {
		h.respondError(w, "reject requisition", err)
		return
	}
	httpx.JSON(w, http.StatusOK, requisitionToResponse(pr, nil))
}

func (h *Handler) handleQuotationRequest(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	actorID, ok := actorFromSession(w, r)
	if !ok {
		return
	}
	if err := h.service.ConvertToQuotationRequest(r.Context(), id, actorID); err != nil {
		h.respondError(w, "quotation request", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "quotation request opened"})
}

type convertToPORequest struct {
	QuotationID int64 `json:"quotation_id"`
}

func (h *Handler) handleConvertToPO(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	actorID, ok := actorFromSession(w, r)
	if !ok {
		return
	}
	var req convertToPORequest
	if err := httpx.DecodeJSON(r, &req); err != nil || req.QuotationID == 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "quotation_id is required")
		return
	}
	po, err := h.service.ConvertToPurchaseOrder(r.Context(), id, req.QuotationID, actorID)
	if err != nil {
		h.respondError(w, "convert to purchase order", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, purchaseOrderToResponse(po, nil))
}

type purchaseOrderResponse struct {
	ID          int64              `json:"id"`
	PONo        string             `json:"pono"`
	PRNo        string             `json:"prno"`
	QuotationID int64              `json:"quotation_id"`
	Supplier    string             `json:"supplier"`
	Total       float64            `json:"total"`
	Status      Status             `json:"status"`
	Date        string             `json:"date"`
	Approvals   any                `json:"approvals"`
	Items       []lineItemResponse `json:"items"`
}

func purchaseOrderToResponse(po PurchaseOrder, items []POItem) purchaseOrderResponse {
	resp := purchaseOrderResponse{
		ID:          po.ID,
		PONo:        po.PONo,
		PRNo:        po.PRNo,
		QuotationID: po.QuotationID,
		Supplier:    po.Supplier,
		Total:       po.Total,
		Status:      po.Status,
		Date:        po.Date.Format("2006-01-02"),
		Approvals:   po.Approvals,
		Items:       make([]lineItemResponse, 0, len(items)),
	}
	for _, item := range items {
		resp.Items = append(resp.Items, lineItemResponse{
			ItemNo:      item.ItemNo,
			Description: item.Description,
			Unit:        item.Unit,
			Qty:         item.Qty,
			UnitCost:    item.UnitCost,
			TotalCost:   item.TotalCost,
		})
	}
	return resp
}

func (h *Handler) handleListPurchaseOrders(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.ListPurchaseOrders(r.Context())
	if err != nil {
		h.respondError(w, "list purchase orders", err)
		return
	}
	if list == nil {
		list = []PurchaseOrderSummary{}
	}
	httpx.JSON(w, http.StatusOK, list)
}

func (h *Handler) handleGetPurchaseOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	po, items, err := h.service.GetPurchaseOrder(r.Context(), id)
	if err != nil {
		h.respondError(w, "get purchase order", err)
		return
	}
	httpx.JSON(w, http.StatusOK, purchaseOrderToResponse(po, items))
}

func (h *Handler) approvePurchaseOrder(slotRole string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := idParam(w, r)
		if !ok {
			return
		}
		actorID, ok := actorFromSession(w, r)
		if !ok {
			return
		}
		po, err := h.service.ApprovePurchaseOrder(r.Context(), id, slotRole, actorID)
		if err != nil {
			h.respondError(w, "approve purchase order", err)
			return
		}
		httpx.JSON(w, http.StatusOK, purchaseOrderToResponse(po, nil))
	}
}

func (h *Handler) handleRejectPurchaseOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	actorID, ok := actorFromSession(w, r)
	if !ok {
		return
	}
	var req rejectRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	sess := shared.SessionFromContext(r.Context())
	po, err := h.service.RejectPurchaseOrder(r.Context(), id, sess.Role(), req.Reason, actorID)
	if err != nil {
		h.respondError(w, "reject purchase order", err)
		return
	}
	httpx.JSON(w, http.StatusOK, purchaseOrderToResponse(po, nil))
}

func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrValidation):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrInvalidState):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, ErrConflict):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, ErrForbidden):
		httpx.Problem(w, http.StatusForbidden, "Forbidden", err.Error())
	case errors.Is(err, shared.ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	default:
		h.logger.Error(op, slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

func idParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid id")
		return 0, false
	}
	return id, true
}

func actorFromSession(w http.ResponseWriter, r *http.Request) (int64, bool) {
	sess := shared.SessionFromContext(r.Context())
	if sess == nil || sess.User() == "" {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "login required")
		return 0, false
	}
	id, err := strconv.ParseInt(sess.User(), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "invalid session")
		return 0, false
	}
	return id, true
}
