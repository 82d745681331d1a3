package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"trade-confirmation-backend/internal/config"
	"trade-confirmation-backend/internal/events"
	handler "trade-confirmation-backend/internal/handlers"
	"trade-confirmation-backend/internal/metrics"
	"trade-confirmation-backend/internal/services/matching"
	service "trade-confirmation-backend/internal/services/reconciliation"
	"trade-confirmation-backend/internal/services/settlement"
	"trade-confirmation-backend/internal/services/status"
)

// Services is the wired core, shared by the HTTP server and the CLI.
type Services struct {
	Reconciliation *service.ReconciliationService
	Resolver       *settlement.Resolver
	Machine        *status.Machine
	Mailback       *status.Mailback
}

func NewServices(db *gorm.DB, cfg *config.Config, publisher events.Publisher, m *metrics.Metrics, logger zerolog.Logger) *Services {
	tolerances := matching.Tolerances{
		Price:    decimal.NewFromFloat(cfg.Matching.PriceTolerance),
		Quantity: decimal.NewFromFloat(cfg.Matching.QuantityTolerance),
	}
	opts := service.Options{
		MinConfidence: cfg.Matching.MinConfidence,
		MaxPairs:      cfg.Matching.MaxBatchPairs,
		Timeout:       cfg.Matching.BatchTimeout,
		Workers:       cfg.Matching.ScoringWorkers,
		AutoReconcile: cfg.Matching.AutoReconcile,
	}

	return &Services{
		Reconciliation: service.NewReconciliationService(db, matching.DefaultFieldSpecs(tolerances), publisher, m, logger, opts),
		Resolver:       settlement.NewResolver(db, publisher, m, logger),
		Machine:        status.NewMachine(db, status.NewCacheUndoStore(cfg.UndoTTL), m, logger),
		Mailback:       status.NewMailback(db, cfg.OpsEmail),
	}
}

func RegisterRoutes(r *gin.Engine, s *Services, gatherer prometheus.Gatherer, logger zerolog.Logger) {
	reconHandler := handler.NewReconciliationHandler(s.Reconciliation, s.Resolver, s.Mailback, logger)
	confHandler := handler.NewConfirmationHandler(s.Machine, logger)

	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	api := r.Group("/api")

	// Health check
	api.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Tenant-scoped ingestion and reconciliation
	tenants := api.Group("/tenants/:tenantId")
	tenants.POST("/trades", reconHandler.UploadTrades)
	tenants.POST("/confirmations", reconHandler.UploadConfirmations)
	tenants.POST("/reconciliation/run", reconHandler.Run)
	tenants.GET("/matches", reconHandler.ListMatches)
	tenants.GET("/matches/:matchId/settlement", reconHandler.Settlement)
	tenants.GET("/matches/:matchId/mailback", reconHandler.Mailback)

	// Confirmation status routes
	tenants.POST("/confirmations/:confirmationId/status", confHandler.SetStatus)
	tenants.POST("/confirmations/:confirmationId/undo", confHandler.Undo)
	tenants.GET("/confirmations/:confirmationId/history", confHandler.History)

	recon := api.Group("/reconciliation")
	recon.GET("/batches/:batchId", reconHandler.GetBatchProgress)
}
