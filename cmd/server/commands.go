package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"trade-confirmation-backend/internal/config"
	"trade-confirmation-backend/internal/events"
	"trade-confirmation-backend/internal/logging"
	"trade-confirmation-backend/internal/metrics"
	"trade-confirmation-backend/internal/routes"
	service "trade-confirmation-backend/internal/services/reconciliation"
)

// app holds what every command needs once the database is open.
type app struct {
	cfg       *config.Config
	logger    zerolog.Logger
	db        *gorm.DB
	registry  *prometheus.Registry
	publisher events.Publisher
	services  *routes.Services
	closers   []func() error
}

func newRootCmd(cfg *config.Config, logger zerolog.Logger) *cobra.Command {
	a := &app{cfg: cfg, logger: logger}

	rootCmd := &cobra.Command{
		Use:   "trade-confirmation-backend",
		Short: "Reconciles client FX trades against bank confirmations",
		Long: `Matches client-reported FX trades against confirmations extracted from
bank emails, resolves settlement instructions and drives the confirmation
status lifecycle.

Run without a subcommand to start the HTTP API.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if debug, _ := cmd.Flags().GetBool("debug"); debug {
				a.logger = a.logger.Level(zerolog.DebugLevel)
			}
			return a.open()
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return a.close()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.serve()
		},
	}
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")

	rootCmd.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Start the HTTP API",
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.serve()
			},
		},
		newReconcileCmd(a),
		&cobra.Command{
			Use:   "migrate",
			Short: "Create or update the database schema and exit",
			RunE: func(cmd *cobra.Command, args []string) error {
				a.logger.Info().Msg("Schema is up to date")
				return nil
			},
		},
	)
	return rootCmd
}

func newReconcileCmd(a *app) *cobra.Command {
	var tenant string
	cmd := &cobra.Command{
		Use:     "reconcile",
		Short:   "Run one reconciliation batch for a tenant",
		Example: `  trade-confirmation-backend reconcile --tenant 6f1c2d3e-0000-4000-8000-000000000001`,
		RunE: func(cmd *cobra.Command, args []string) error {
			tenantID, err := uuid.Parse(tenant)
			if err != nil {
				return errors.New("--tenant must be a UUID")
			}
			result, err := a.services.Reconciliation.RunBatch(cmd.Context(), tenantID, service.TriggerCLI)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		},
	}
	cmd.Flags().StringVar(&tenant, "tenant", "", "tenant id")
	_ = cmd.MarkFlagRequired("tenant")
	return cmd
}

func (a *app) open() error {
	db, err := config.InitDB(a.cfg, logging.NewGormLogger(a.logger))
	if err != nil {
		return err
	}
	if err := config.Migrate(db); err != nil {
		return err
	}
	a.db = db

	a.registry = prometheus.NewRegistry()
	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(a.registry)

	if a.cfg.NATSURL != "" {
		pub, err := events.NewNATSPublisher(a.cfg.NATSURL, a.cfg.NATSSubjectPrefix, a.logger)
		if err != nil {
			return err
		}
		a.publisher = pub
		a.closers = append(a.closers, pub.Close)
		a.logger.Info().Str("url", a.cfg.NATSURL).Msg("Publishing events to NATS")
	} else {
		a.publisher = events.NewLogPublisher(a.logger)
	}

	a.services = routes.NewServices(db, a.cfg, a.publisher, m, a.logger)
	return nil
}

func (a *app) close() error {
	if a.services != nil {
		a.services.Reconciliation.Wait()
	}
	var errs []error
	for _, c := range a.closers {
		errs = append(errs, c())
	}
	if a.db != nil {
		if sqlDB, err := a.db.DB(); err == nil {
			errs = append(errs, sqlDB.Close())
		}
	}
	return errors.Join(errs...)
}

func (a *app) serve() error {
	if a.logger.GetLevel() > zerolog.DebugLevel {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(a.logger))
	r.Use(cors.New(cors.Config{
		AllowOrigins:     a.cfg.CORSOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE"},
		AllowHeaders:     []string{"Origin", "Content-Type"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	routes.RegisterRoutes(r, a.services, a.registry, a.logger)

	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info().Str("addr", a.cfg.HTTPAddr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	a.logger.Info().Msg("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func requestLogger(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug().
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Msg("Request handled")
	}
}
