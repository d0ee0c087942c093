package ppmp

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/procura-erp/procura-erp/internal/platform/httpx"
	"github.com/procura-erp/procura-erp/internal/shared"
)

const maxWorkbookBytes = 16 << 20

// Handler exposes the procurement plan endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	authz   shared.Authz
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, authz shared.Authz) *Handler {
	return &Handler{logger: logger, service: service, authz: authz}
}

// MountRoutes registers routes under /ppmp.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(h.authz.RequireAuth).Get("/", h.handleList)
	r.With(h.authz.RequireRole(shared.RoleOfficeHead)).Post("/", h.handleCreate)
	r.With(h.authz.RequireRole(shared.RoleOfficeHead)).Post("/import", h.handleImport)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	ownerID, err := strconv.ParseInt(sess.User(), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "invalid session")
		return
	}
	year, _ := strconv.Atoi(r.URL.Query().Get("year"))
	items, err := h.service.ListItems(r.Context(), ownerID, year)
	if err != nil {
		h.logger.Error("list plan items", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	if items == nil {
		items = []PlanItem{}
	}
	httpx.JSON(w, http.StatusOK, items)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	ownerID, err := strconv.ParseInt(sess.User(), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "invalid session")
		return
	}
	var input CreateItemInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed request body")
		return
	}
	item, err := h.service.CreateItem(r.Context(), ownerID, input)
	if err != nil {
		if errors.Is(err, ErrValidation) {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
			return
		}
		h.logger.Error("create plan item", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	httpx.JSON(w, http.StatusCreated, item)
}

func (h *Handler) handleImport(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	ownerID, err := strconv.ParseInt(sess.User(), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "invalid session")
		return
	}
	if err := r.ParseMultipartForm(maxWorkbookBytes); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "multipart form expected")
		return
	}
	file, _, err := r.FormFile("workbook")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "workbook file is required")
		return
	}
	defer file.Close()

	year, _ := strconv.Atoi(r.FormValue("year"))
	imported, skipped, err := h.service.ImportWorkbook(r.Context(), ownerID, year, file)
	if err != nil {
		switch {
		case errors.Is(err, ErrValidation), errors.Is(err, ErrEmptyWorkbook):
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		default:
			h.logger.Error("import workbook", slog.Any("error", err))
			httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		}
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]int{"imported": imported, "skipped": skipped})
}
