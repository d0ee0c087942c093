package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/procura-erp/procura-erp/internal/app"
	"github.com/procura-erp/procura-erp/internal/auth"
	"github.com/procura-erp/procura-erp/internal/backup"
	"github.com/procura-erp/procura-erp/internal/bidding"
	"github.com/procura-erp/procura-erp/internal/observability"
	"github.com/procura-erp/procura-erp/internal/platform/cache"
	"github.com/procura-erp/procura-erp/internal/platform/db"
	"github.com/procura-erp/procura-erp/internal/ppmp"
	"github.com/procura-erp/procura-erp/internal/procurement"
	"github.com/procura-erp/procura-erp/internal/shared"
	"github.com/procura-erp/procura-erp/internal/storage"
	"github.com/procura-erp/procura-erp/internal/users"
	"github.com/procura-erp/procura-erp/jobs"
	"github.com/procura-erp/procura-erp/report"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	sessionManager := shared.NewSessionManager(redisClient, "procura_session", cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)
	authz := shared.Authz{Logger: logger}

	auditLogger := shared.NewAuditLogger(dbpool)
	historyRecorder := shared.NewHistoryRecorder(dbpool, logger)

	authRepo := auth.NewRepository(dbpool)
	authService := auth.NewService(authRepo)
	authHandler := auth.NewHandler(logger, authService, sessionManager, csrfManager)

	usersRepo := users.NewRepository(dbpool)
	usersService := users.NewService(usersRepo)
	usersHandler := users.NewHandler(logger, usersService, authz)

	attachments, err := newAttachmentStore(cfg)
	if err != nil {
		logger.Error("init attachment store", slog.Any("error", err))
		os.Exit(1)
	}

	jobClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()

	ppmpRepo := ppmp.NewRepository(dbpool)
	ppmpService := ppmp.NewService(ppmpRepo, logger)
	ppmpHandler := ppmp.NewHandler(logger, ppmpService, authz)

	procurementRepo := procurement.NewRepository(dbpool)

	biddingRepo := bidding.NewRepository(dbpool)
	biddingService := bidding.NewService(biddingRepo, app.NewRequisitionGate(procurementRepo), historyRecorder, logger)
	biddingHandler := bidding.NewHandler(logger, biddingService, authz)

	procurementService := procurement.NewService(
		procurementRepo,
		attachments,
		app.NewQuotationAdapter(biddingService),
		usersService,
		historyRecorder,
		auditLogger,
		app.NewCatalogAdapter(ppmpService),
		app.NewDecisionNotifier(jobClient),
		logger,
	)
	procurementHandler := procurement.NewHandler(logger, procurementService, authz)

	backupRepo := backup.NewRepository(dbpool)
	backupService := backup.NewService(backupRepo, logger)
	backupHandler := backup.NewHandler(logger, backupService, authz, auditLogger)

	reportRepo := report.NewRepository(dbpool)
	reportService := report.NewService(reportRepo, report.NewPDFClient(cfg.PDFServiceURL))
	reportHandler := report.NewHandler(logger, reportService, authz)

	metrics := observability.NewMetrics()

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	uploadDir := ""
	if cfg.AttachmentBackend == storage.BackendFilesystem {
		uploadDir = cfg.UploadDir
	}

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		SessionManager:     sessionManager,
		CSRFManager:        csrfManager,
		AuthHandler:        authHandler,
		UsersHandler:       usersHandler,
		ProcurementHandler: procurementHandler,
		BiddingHandler:     biddingHandler,
		PPMPHandler:        ppmpHandler,
		BackupHandler:      backupHandler,
		ReportHandler:      reportHandler,
		JobHandler:         jobHandler,
		Metrics:            metrics,
		UploadDir:          uploadDir,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}

func newAttachmentStore(cfg *app.Config) (storage.AttachmentStore, error) {
	switch cfg.AttachmentBackend {
	case storage.BackendObject:
		return storage.NewObjectStore(cfg.ObjectStoreURL), nil
	case storage.BackendFilesystem:
		return storage.NewFilesystemStore(cfg.UploadDir, "/uploads")
	default:
		return nil, fmt.Errorf("%w: %q", storage.ErrUnknownBackend, cfg.AttachmentBackend)
	}
}
