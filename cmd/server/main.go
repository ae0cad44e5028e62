package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"station-insights/internal/config"
	"station-insights/internal/handlers"
	"station-insights/internal/repository"
	"station-insights/internal/services"
	"station-insights/pkg/database"
	"station-insights/pkg/logging"
	"station-insights/pkg/metrics"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger := logging.NewStructuredLogger("station-insights-api", "1.0.0", logging.ParseLevel(cfg.Logging.Level))

	ctx := context.Background()
	logger.Info(ctx, "[STARTUP] Starting station insights API server", logging.Fields{
		"version":     "1.0.0",
		"server_host": cfg.Server.Host,
		"server_port": cfg.Server.Port,
		"db_host":     cfg.Database.Host,
		"db_name":     cfg.Database.Database,
		"reference":   cfg.Reference.Name,
	})

	// Initialize metrics collector
	metricsCollector := metrics.NewCollector("station_insights")

	// Initialize database
	dbConfig := &database.Config{
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		User:            cfg.Database.User,
		Password:        cfg.Database.Password,
		Database:        cfg.Database.Database,
		SSLMode:         cfg.Database.SSLMode,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
	}

	db, err := database.NewPostgresDB(dbConfig, logger, metricsCollector)
	if err != nil {
		logger.Fatal(ctx, "[STARTUP_ERROR] Failed to connect to database", logging.Fields{}, err)
	}
	defer db.Close()

	// Initialize repository
	snapshotRepo := repository.NewSnapshotRepository(db, logger, metricsCollector)

	// Initialize services
	client := services.NewCWAClient(cfg.CWA.BaseURL, cfg.CWA.APIKey, cfg.CWA.Timeout, logger, metricsCollector)
	normalizer := services.NewStationNormalizer(logger, metricsCollector)
	ranker := services.NewDistanceRanker(cfg.Reference.Point(), cfg.Reference.Name, logger, metricsCollector)
	stats := services.NewStatisticsService(logger, metricsCollector)
	exporter := services.NewExporter(cfg.Output.Dir, logger, metricsCollector)
	renderer := services.NewMapRenderer(cfg.Output.Dir, cfg.Reference.Name, logger, metricsCollector)
	pipeline := services.NewPipelineService(client, normalizer, ranker, stats, exporter, renderer, snapshotRepo, logger, metricsCollector)
	stationService := services.NewStationService(snapshotRepo, logger, metricsCollector)

	// Initialize handlers
	stationHandler := handlers.NewStationHandler(stationService, pipeline, logger, metricsCollector)

	// Setup router. The rate limiter guards only the API subtree so
	// /health and /metrics stay reachable for probes.
	router := mux.NewRouter()
	router.Use(handlers.RequestLoggingMiddleware(logger, metricsCollector))

	api := router.PathPrefix("/api/v1").Subrouter()
	api.Use(handlers.RateLimitMiddleware(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst, metricsCollector))
	stationHandler.RegisterAPIRoutes(api)

	stationHandler.RegisterSiteRoutes(router)

	// Prometheus metrics endpoint
	router.Handle("/metrics", promhttp.Handler())

	// Create HTTP server
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Optional background refresh: runs the full pipeline on a ticker so
	// the archive keeps up with the ten-minute CWA feed without manual
	// POST /refresh calls.
	refreshCtx, stopRefresh := context.WithCancel(ctx)
	defer stopRefresh()

	if cfg.Refresh.Interval > 0 {
		go func() {
			ticker := time.NewTicker(cfg.Refresh.Interval)
			defer ticker.Stop()

			logger.Info(refreshCtx, "[REFRESH_START] Background refresh enabled", logging.Fields{
				"interval": cfg.Refresh.Interval.String(),
			})

			for {
				select {
				case <-refreshCtx.Done():
					return
				case <-ticker.C:
					if _, err := pipeline.Run(refreshCtx, services.RunOptions{ArchiveSnapshot: true}); err != nil {
						logger.Error(refreshCtx, "[REFRESH_ERROR] Background refresh failed", logging.Fields{}, err)
					}
				}
			}
		}()
	}

	// Start server in goroutine
	go func() {
		logger.Info(ctx, "[SERVER_START] HTTP server listening", logging.Fields{
			"address": server.Addr,
		})

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal(ctx, "[SERVER_ERROR] Server failed", logging.Fields{}, err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info(ctx, "[SHUTDOWN] Shutting down server...", logging.Fields{})
	stopRefresh()

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error(ctx, "[SHUTDOWN_ERROR] Server forced to shutdown", logging.Fields{}, err)
	}

	logger.Info(ctx, "[SHUTDOWN_COMPLETE] Server stopped", logging.Fields{})
}
