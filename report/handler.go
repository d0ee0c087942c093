package report

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/procura-erp/procura-erp/internal/platform/httpx"
	"github.com/procura-erp/procura-erp/internal/shared"
)

// Handler serves the report endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	authz   shared.Authz
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, authz shared.Authz) *Handler {
	return &Handler{logger: logger, service: service, authz: authz}
}

// MountRoutes registers report routes. All routes require a logged-in
// user.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.authz.RequireAuth)
		r.Get("/requisitions", h.handleRequisitionSummary)
		r.Get("/requisitions/pdf", h.handleRequisitionSummaryPDF)
	})
}

func (h *Handler) handleRequisitionSummary(w http.ResponseWriter, r *http.Request) {
	from, to, ok := h.dateRange(w, r)
	if !ok {
		return
	}
	summary, err := h.service.BuildSummary(r.Context(), from, to)
	if err != nil {
		h.logger.Error("requisition summary failed", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "report generation failed")
		return
	}
	httpx.JSON(w, http.StatusOK, summary)
}

func (h *Handler) handleRequisitionSummaryPDF(w http.ResponseWriter, r *http.Request) {
	from, to, ok := h.dateRange(w, r)
	if !ok {
		return
	}
	summary, err := h.service.BuildSummary(r.Context(), from, to)
	if err != nil {
		h.logger.Error("requisition summary failed", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "report generation failed")
		return
	}
	pdf, err := h.service.RenderPDF(r.Context(), summary)
	if err != nil {
		h.logger.Error("pdf render failed", slog.Any("error", err))
		httpx.Problem(w, http.StatusBadGateway, "Bad Gateway", "pdf rendering unavailable")
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="requisition-summary.pdf"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(pdf)
}

// dateRange parses from/to query parameters, defaulting to the last 30
// days ending today. Writes the error response itself when parsing
// fails.
func (h *Handler) dateRange(w http.ResponseWriter, r *http.Request) (time.Time, time.Time, bool) {
	now := time.Now()
	from := now.AddDate(0, 0, -30)
	to := now
	if raw := r.URL.Query().Get("from"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid from date, expected YYYY-MM-DD")
			return time.Time{}, time.Time{}, false
		}
		from = parsed
	}
	if raw := r.URL.Query().Get("to"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid to date, expected YYYY-MM-DD")
			return time.Time{}, time.Time{}, false
		}
		to = parsed
	}
	if to.Before(from) {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "to must not precede from")
		return time.Time{}, time.Time{}, false
	}
	return from, to, true
}
