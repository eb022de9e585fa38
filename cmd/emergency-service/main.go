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

	"github.com/medrex/zeronet/internal/audit"
	"github.com/medrex/zeronet/internal/emergency"
	"github.com/medrex/zeronet/internal/zeronet"
	"github.com/medrex/zeronet/pkg/config"
	"github.com/medrex/zeronet/pkg/database"
	"github.com/medrex/zeronet/pkg/fabric"
	"github.com/medrex/zeronet/pkg/logger"
	"github.com/medrex/zeronet/pkg/monitoring"
	"github.com/medrex/zeronet/pkg/repository"
)

const serviceName = "emergency-service"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.LogLevel)
	if err := run(cfg, log); err != nil {
		log.WithError(err).Error("Emergency Service failed")
		os.Exit(1)
	}
}

// run wires the service and blocks until a shutdown signal. Resources opened
// here are closed by deferred calls before it returns.
func run(cfg *config.Config, log *logger.Logger) error {
	log.WithField("service", serviceName).Info("Starting Emergency Service")

	metrics := monitoring.NewMetricsCollector(serviceName)
	health := monitoring.NewHealthManager(serviceName, cfg.Monitoring.ServiceVersion)
	health.RegisterChecker("host", monitoring.NewHostHealthChecker(cfg.Monitoring.CPUDegradedPct), monitoring.ImpactDegrading)

	tracing := monitoring.NewNoopTracingManager()
	if cfg.Monitoring.TracingEnabled {
		var err error
		tracing, err = monitoring.NewTracingManager(&monitoring.TracingConfig{
			ServiceName:    serviceName,
			ServiceVersion: cfg.Monitoring.ServiceVersion,
			JaegerEndpoint: cfg.Monitoring.JaegerEndpoint,
			Environment:    cfg.Monitoring.Environment,
			SamplingRate:   cfg.Monitoring.SamplingRate,
		})
		if err != nil {
			return fmt.Errorf("failed to initialize tracing: %w", err)
		}
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := tracing.Shutdown(ctx); err != nil {
			log.WithError(err).Error("Failed to flush traces")
		}
	}()

	// Legacy profile sources, in configured order
	var sources []emergency.ProfileSource
	for _, name := range cfg.Resolver.Sources {
		switch name {
		case "api":
			sources = append(sources, emergency.NewAPISource(cfg.Resolver.ProfileAPIURL, cfg.Resolver.Timeout()))

		case "database":
			if !cfg.Database.Enabled {
				log.Warn("Resolver source \"database\" configured but database is disabled")
				continue
			}
			db, err := database.NewConnection(&cfg.Database, log)
			if err != nil {
				return fmt.Errorf("failed to connect to database: %w", err)
			}
			defer db.Close()
			if err := db.CreateSchema(context.Background()); err != nil {
				return fmt.Errorf("failed to create database schema: %w", err)
			}
			sources = append(sources, emergency.NewRepositorySource(repository.NewProfileRepository(db.DB, log)))
			health.RegisterChecker("database", monitoring.PingChecker(db.Health, "Database reachable"), monitoring.ImpactDegrading)

		case "fabric":
			if !cfg.Fabric.Enabled {
				log.Warn("Resolver source \"fabric\" configured but fabric is disabled")
				continue
			}
			gw, err := fabric.Connect(&cfg.Fabric, cfg.Resolver.Timeout(), log)
			if err != nil {
				return fmt.Errorf("failed to connect to Fabric gateway: %w", err)
			}
			defer gw.Close()
			sources = append(sources, emergency.NewChainSource(gw.Contract()))
		}
	}
	for _, source := range sources {
		health.RegisterChecker("source_"+source.Name(), emergency.NewSourceHealthChecker(source), monitoring.ImpactDegrading)
	}
	if len(sources) == 0 {
		log.Warn("No legacy profile sources available; legacy links will show unavailable")
	}

	var scans *audit.Store
	if cfg.Audit.Enabled {
		var err error
		scans, err = audit.Open(cfg.Audit.Path)
		if err != nil {
			return fmt.Errorf("failed to open scan audit store: %w", err)
		}
		defer scans.Close()
		health.RegisterChecker("audit_store", monitoring.PingChecker(func(ctx context.Context) error {
			_, err := scans.Recent(1)
			return err
		}, "Audit store readable"), monitoring.ImpactDegrading)
	}

	codec := zeronet.NewCodec(zeronet.OptionsFromConfig(cfg.Codec))
	health.RegisterChecker("codec", emergency.NewCodecHealthChecker(codec), monitoring.ImpactCritical)
	resolver := emergency.NewChainedResolver(sources, cfg.Resolver.Timeout(), metrics, tracing, log)

	var profiles emergency.ProfileSource
	if len(sources) > 0 {
		profiles = sources[0]
	}
	service := emergency.NewService(cfg, codec, profiles, metrics, tracing, log)

	var (
		recorder emergency.ScanRecorder
		lister   emergency.ScanLister
	)
	if scans != nil {
		recorder, lister = scans, scans
	}
	access := emergency.NewAccessFlow(codec, resolver, recorder, metrics, tracing, log)

	handlers, err := emergency.NewHandlers(service, access, lister,
		emergency.NewTokenValidator(cfg.JWT.SecretKey, cfg.JWT.Issuer), log)
	if err != nil {
		return fmt.Errorf("failed to initialize handlers: %w", err)
	}

	stopPruning := make(chan struct{})
	defer close(stopPruning)
	if cfg.Server.RateLimitPerMinute > 0 {
		limiter := emergency.NewRateLimiter(cfg.Server.RateLimitPerMinute, time.Minute)
		limiter.StartPruning(10*time.Minute, stopPruning)
		handlers.WithRateLimiter(limiter)
	}

	router := mux.NewRouter()
	router.Use(monitoring.NewMonitoringMiddleware(metrics, tracing, log).HTTPMiddleware)
	router.Use(corsMiddleware)
	handlers.RegisterRoutes(router)
	if cfg.Monitoring.Enabled {
		router.Handle(cfg.Monitoring.MetricsPath, metrics.Handler()).Methods(http.MethodGet)
		router.HandleFunc(cfg.Monitoring.HealthPath, health.HTTPHandler()).Methods(http.MethodGet)
	}

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.WithField("addr", server.Addr).Info("Starting HTTP server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err := <-serveErr:
		return fmt.Errorf("HTTP server failed: %w", err)
	case <-quit:
	}

	log.Info("Shutting down Emergency Service")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.WithError(err).Error("Failed to shutdown server gracefully")
	}

	log.Info("Emergency Service stopped")
	return nil
}

// corsMiddleware lets the patient web app call the API from another origin
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
