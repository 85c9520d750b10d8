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

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"

	"github.com/credio/credio-alerts/internal/api"
	"github.com/credio/credio-alerts/internal/auth"
	"github.com/credio/credio-alerts/internal/catalog"
	"github.com/credio/credio-alerts/internal/config"
	"github.com/credio/credio-alerts/internal/dispatch"
	"github.com/credio/credio-alerts/internal/gateway"
	"github.com/credio/credio-alerts/internal/ingestion"
	"github.com/credio/credio-alerts/internal/kafka"
	"github.com/credio/credio-alerts/internal/logging"
	"github.com/credio/credio-alerts/internal/metrics"
	"github.com/credio/credio-alerts/internal/repository"
	"github.com/credio/credio-alerts/internal/risk"
	"github.com/credio/credio-alerts/internal/session"
	"github.com/credio/credio-alerts/internal/subscription"
)

const (
	housekeepingInterval = time.Minute
	userAgent            = "credio-alerts/1.0 (+https://github.com/credio/credio-alerts)"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logging.Fatalf("Fatal while loading config: %v", err)
	}
	logger := logging.Setup(cfg.Logging.Level)

	logger.Info("Server starting", "host", cfg.Server.Host, "port", cfg.Server.Port)

	db, err := repository.NewSQLiteDB(cfg.DB.Path)
	if err != nil {
		logging.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	clock := clockwork.NewRealClock()
	m := metrics.NewMetrics()

	cat := catalog.New()
	active, err := db.LoadActiveDisasters(ctx)
	if err != nil {
		logging.Fatalf("Failed to load active disasters: %v", err)
	}
	cat.Load(active)
	logger.Info("catalog loaded", "disasters", len(active))

	authn := newAuthenticator(cfg.Auth, logger)
	gw := gateway.New(authn, gateway.Config{
		SendBuffer:     cfg.Gateway.SendBuffer,
		AllowedOrigins: cfg.Server.AllowedOrigins,
	}, logger, m)

	registry := subscription.NewRegistry()
	dispatcher := dispatch.New(registry, gw, dispatch.Config{
		Workers:    cfg.Worker.Count,
		BufferSize: cfg.Worker.BufferSize,
	}, clock, logger, m)
	dispatcher.Start(ctx)

	engine := risk.NewEngine(clock)
	sessions := session.NewHandler(gw, cat, registry, dispatcher, engine, db, clock, logger, m)

	publishers := []ingestion.Publisher{dispatcher}
	var exporter *kafka.Publisher
	if len(cfg.Kafka.Brokers) > 0 {
		exporter = kafka.NewPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic, logger)
		publishers = append(publishers, exporter)
		logger.Info("kafka export enabled", "brokers", cfg.Kafka.Brokers, "topic", cfg.Kafka.Topic)
	}

	// Start ingestion manager
	retrier := ingestion.NewRetrier(cfg.Retry.MaxAttempts, cfg.Retry.InitialDelay, clock, logger)
	mgr := ingestion.NewManager(cat, db, retrier, clock, logger, m, ingestion.Options{
		StaleAfter:           cfg.Catalog.StaleAfter,
		ResolvedRetention:    cfg.Catalog.ResolvedRetention,
		HousekeepingInterval: housekeepingInterval,
	}, publishers...)
	registerSources(mgr, cfg.Sources, clock, logger)
	mgr.Start(ctx)

	// Gin router
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(corsConfig(cfg.Server.AllowedOrigins)))
	router.Use(api.RateLimitMiddleware(cfg.Server.RPS))

	handler := api.NewHandler(db, cat, engine, mgr, clock, logger, m, api.Options{
		DebugEndpoints: cfg.Server.DebugEndpoints,
	})
	handler.RegisterRoutes(router)
	router.GET("/ws", gw.ServeWS(sessions))

	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: router,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	// stop producers before consumers so queued alerts still go out
	mgr.Stop()
	dispatcher.Stop()
	gw.Close() // Close all connections gracefully
	cancel()

	if exporter != nil {
		if err := exporter.Close(); err != nil {
			logger.Error("kafka exporter close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}

func newAuthenticator(cfg config.AuthConfig, logger *slog.Logger) auth.Authenticator {
	if cfg.JWTSecret == "" {
		logger.Warn("AUTH_JWT_SECRET not set, accepting anonymous websocket connections")
		return auth.AnonymousAuthenticator{}
	}
	authn, err := auth.NewJWTAuthenticator(cfg.JWTSecret, cfg.JWTIssuer)
	if err != nil {
		logging.Fatalf("Failed to configure authentication: %v", err)
	}
	return authn
}

func registerSources(mgr *ingestion.Manager, cfg config.SourcesConfig, clock clockwork.Clock, logger *slog.Logger) {
	fetcher := ingestion.NewHTTPFetcher(cfg.UpstreamRPS, userAgent)

	if cfg.USGSEnabled {
		mgr.AddSource(ingestion.NewUSGSSource(cfg.USGSURL, fetcher, logger), cfg.USGSPollInterval)
	}
	if cfg.GDACSEnabled {
		mgr.AddSource(ingestion.NewGDACSSource(cfg.GDACSURL, fetcher, logger), cfg.GDACSPollInterval)
	}
	if cfg.NOAAEnabled {
		mgr.AddSource(ingestion.NewNOAASource(cfg.NOAAURL, fetcher, clock, logger), cfg.NOAAPollInterval)
	}
	if cfg.FIRMSEnabled {
		mgr.AddSource(ingestion.NewFIRMSSource(cfg.FIRMSURL, cfg.FIRMSMapKey, fetcher, logger), cfg.FIRMSPollInterval)
	}
	if cfg.CSVEnabled {
		src := ingestion.NewCSVFileSource(cfg.CSVPath, logger)
		mgr.AddSource(src, cfg.CSVPollInterval)
		if cfg.CSVWatch {
			if err := mgr.WatchSource(src.Name(), src.Path()); err != nil {
				logger.Error("csv watch disabled", "error", err)
			}
		}
	}
	if cfg.SimulatedEnabled {
		mgr.AddSource(ingestion.NewSimulatedSource(cfg.SimulatedFailureRate), cfg.SimulatedPollInterval)
	}
}

func corsConfig(origins []string) cors.Config {
	c := cors.Config{
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders: []string{"Content-Length"},
	}
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		c.AllowAllOrigins = true
		c.AllowCredentials = false // Set to false when using wildcard origins
	} else {
		c.AllowOrigins = origins
	}
	return c
}
