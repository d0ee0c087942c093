package backup

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/procura-erp/procura-erp/internal/platform/httpx"
	"github.com/procura-erp/procura-erp/internal/shared"
)

// Restore documents can be large; cap reads well above any realistic
// dump to still bound memory.
const maxDocumentBytes = 256 << 20

// Handler exposes the admin backup/restore endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	authz   shared.Authz
	audit   *shared.AuditLogger
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, authz shared.Authz, audit *shared.AuditLogger) *Handler {
	return &Handler{logger: logger, service: service, authz: authz, audit: audit}
}

// MountRoutes registers routes under /admin.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.authz.RequireRole(shared.RoleAdmin))
		r.Get("/backup", h.handleBackup)
		r.Post("/restore", h.handleRestore)
	})
}

func (h *Handler) handleBackup(w http.ResponseWriter, r *http.Request) {
	doc, err := h.service.Backup(r.Context())
	if err != nil {
		h.logger.Error("backup", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	httpx.JSON(w, http.StatusOK, doc)
}

func (h *Handler) handleRestore(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxDocumentBytes))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "cannot read request body")
		return
	}
	if err := h.service.Restore(r.Context(), raw); err != nil {
		switch {
		case errors.Is(err, ErrMalformed), errors.Is(err, ErrStale):
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		default:
			h.logger.Error("restore", slog.Any("error", err))
			httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		}
		return
	}
	if h.audit != nil {
		if err := h.audit.Record(r.Context(), shared.AuditLog{
			Action:   "BACKUP_RESTORE",
			Entity:   "database",
			EntityID: "all",
		}); err != nil {
			h.logger.Warn("audit restore", slog.Any("error", err))
		}
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"message": "restore completed"})
}
