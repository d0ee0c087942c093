package bidding

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/procura-erp/procura-erp/internal/platform/httpx"
	"github.com/procura-erp/procura-erp/internal/shared"
)

// Handler exposes quotation and abstract-of-bids endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	authz     shared.Authz
	validator *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, authz shared.Authz) *Handler {
	return &Handler{logger: logger, service: service, authz: authz, validator: validator.New()}
}

// MountQuotationRoutes registers routes under /quotations.
func (h *Handler) MountQuotationRoutes(r chi.Router) {
	r.With(h.authz.RequireAuth).Get("/", h.handleList)
	r.With(h.authz.RequireAuth).Get("/{id}", h.handleGet)
	r.With(h.authz.RequireRole(shared.RoleOfficeHead)).Post("/", h.handleSubmit)
}

// MountAbstractRoutes registers routes under /abstracts.
func (h *Handler) MountAbstractRoutes(r chi.Router) {
	r.With(h.authz.RequireAuth).Get("/{prno}", h.handleGetAbstract)
	r.With(h.authz.RequireAuth).Get("/{prno}/comparison", h.handleComparison)
	r.With(h.authz.RequireRole(shared.RoleOfficeHead)).Post("/{prno}", h.handleSaveAbstract)
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var input SubmitQuotationInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed request body")
		return
	}
	if err := h.validator.Struct(input); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	q, err := h.service.SubmitQuotation(r.Context(), input)
	if err != nil {
		h.respondError(w, "submit quotation", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, q)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	prno := r.URL.Query().Get("prno")
	if prno == "" {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "prno query parameter is required")
		return
	}
	list, err := h.service.ListQuotations(r.Context(), prno)
	if err != nil {
		h.respondError(w, "list quotations", err)
		return
	}
	if list == nil {
		list = []Quotation{}
	}
	httpx.JSON(w, http.StatusOK, list)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid id")
		return
	}
	q, err := h.service.GetQuotation(r.Context(), id)
	if err != nil {
		h.respondError(w, "get quotation", err)
		return
	}
	httpx.JSON(w, http.StatusOK, q)
}

func (h *Handler) handleComparison(w http.ResponseWriter, r *http.Request) {
	cmp, err := h.service.BuildComparison(r.Context(), chi.URLParam(r, "prno"))
	if err != nil {
		h.respondError(w, "build comparison", err)
		return
	}
	httpx.JSON(w, http.StatusOK, cmp)
}

type saveAbstractRequest struct {
	WinningBidder string `json:"winning_bidder" validate:"required"`
}

func (h *Handler) handleSaveAbstract(w http.ResponseWriter, r *http.Request) {
	var input saveAbstractRequest
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed request body")
		return
	}
	if err := h.validator.Struct(input); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	sess := shared.SessionFromContext(r.Context())
	actorID, _ := strconv.ParseInt(sess.User(), 10, 64)
	abstract, err := h.service.SaveAbstract(r.Context(), chi.URLParam(r, "prno"), input.WinningBidder, actorID)
	if err != nil {
		h.respondError(w, "save abstract", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, abstract)
}

func (h *Handler) handleGetAbstract(w http.ResponseWriter, r *http.Request) {
	abstract, err := h.service.GetAbstract(r.Context(), chi.URLParam(r, "prno"))
	if err != nil {
		h.respondError(w, "get abstract", err)
		return
	}
	httpx.JSON(w, http.StatusOK, abstract)
}

func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrValidation):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrClosed):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, ErrConflict):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	default:
		h.logger.Error(op, slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
