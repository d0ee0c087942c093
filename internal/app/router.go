package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/procura-erp/procura-erp/internal/auth"
	"github.com/procura-erp/procura-erp/internal/backup"
	"github.com/procura-erp/procura-erp/internal/bidding"
	"github.com/procura-erp/procura-erp/internal/observability"
	"github.com/procura-erp/procura-erp/internal/ppmp"
	"github.com/procura-erp/procura-erp/internal/procurement"
	"github.com/procura-erp/procura-erp/internal/shared"
	"github.com/procura-erp/procura-erp/internal/users"
	"github.com/procura-erp/procura-erp/jobs"
	"github.com/procura-erp/procura-erp/report"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	SessionManager *shared.SessionManager
	CSRFManager    *shared.CSRFManager

	AuthHandler        *auth.Handler
	UsersHandler       *users.Handler
	ProcurementHandler *procurement.Handler
	BiddingHandler     *bidding.Handler
	PPMPHandler        *ppmp.Handler
	BackupHandler      *backup.Handler
	ReportHandler      *report.Handler
	JobHandler         *jobs.Handler
	Metrics            *observability.Metrics

	// UploadDir is served at /uploads when the filesystem attachment
	// backend is active. Empty disables the route.
	UploadDir string
}

// NewRouter constructs the chi.Router with application defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		CSRFManager:    params.CSRFManager,
		Metrics:        params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/auth", params.AuthHandler.MountRoutes)
	if params.UsersHandler != nil {
		r.Route("/users", params.UsersHandler.MountRoutes)
	}
	r.Route("/requisitions", params.ProcurementHandler.MountRequisitionRoutes)
	r.Route("/purchase-orders", params.ProcurementHandler.MountPurchaseOrderRoutes)
	r.Route("/quotations", params.BiddingHandler.MountQuotationRoutes)
	r.Route("/abstracts", params.BiddingHandler.MountAbstractRoutes)
	r.Route("/ppmp", params.PPMPHandler.MountRoutes)
	if params.BackupHandler != nil {
		r.Route("/admin", params.BackupHandler.MountRoutes)
	}
	if params.ReportHandler != nil {
		r.Route("/report", params.ReportHandler.MountRoutes)
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	if params.UploadDir != "" {
		// Attachment downloads from the filesystem backend. Served
		// with short-lived caching; filenames are content-unique.
		fileServer := http.StripPrefix("/uploads/", http.FileServer(http.Dir(params.UploadDir)))
		r.Handle("/uploads/*", uploadCacheHandler(fileServer))
	}

	return r
}

// uploadCacheHandler wraps the attachment file server with a
// Cache-Control header. Attachments never change once written.
func uploadCacheHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "public, max-age=3600")
		next.ServeHTTP(w, r)
	})
}
