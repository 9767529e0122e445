package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/playbook-media/be-cms-governance/internal/client"
	"github.com/playbook-media/be-cms-governance/internal/config"
	"github.com/playbook-media/be-cms-governance/internal/database"
	"github.com/playbook-media/be-cms-governance/internal/handler"
	"github.com/playbook-media/be-cms-governance/internal/logger"
	"github.com/playbook-media/be-cms-governance/internal/middleware"
	"github.com/playbook-media/be-cms-governance/internal/natsclient"
	"github.com/playbook-media/be-cms-governance/internal/repository"
	"github.com/playbook-media/be-cms-governance/internal/service"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New(logger.Config{
		Level:       cfg.Service.LogLevel,
		Environment: cfg.Service.Environment,
		ServiceName: cfg.Service.Name,
		Version:     cfg.Service.Version,
	})

	log.Info().
		Str("environment", cfg.Service.Environment).
		Msg("Starting Content Governance Service")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize database
	db, err := database.New(ctx, database.Config{
		Host:        cfg.Database.Host,
		Port:        cfg.Database.Port,
		User:        cfg.Database.User,
		Password:    cfg.Database.Password,
		Database:    cfg.Database.Database,
		SSLMode:     cfg.Database.SSLMode,
		MaxConns:    cfg.Database.MaxConns,
		MinConns:    cfg.Database.MinConns,
		MaxConnTime: cfg.Database.MaxConnTime,
		MaxIdleTime: cfg.Database.MaxIdleTime,
		HealthCheck: cfg.Database.HealthCheck,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()
	log.Info().Msg("Database connection established")

	// Initialize NATS event publisher (optional)
	var nats *natsclient.Client
	if cfg.NATS.URL != "" {
		nats, err = natsclient.Connect(cfg.NATS.URL, cfg.NATS.Name)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to NATS")
		}
		defer nats.Close()
		log.Info().Str("url", cfg.NATS.URL).Msg("NATS connection established")
	} else {
		log.Warn().Msg("NATS URL not configured; transition events disabled")
	}
	publisher := client.NewNotificationPublisher(nats, log.Logger)

	// Initialize repositories and services
	contentRepo := repository.NewContentRepository(db)
	logRepo := repository.NewApprovalLogRepository(db)
	policyRepo := repository.NewPolicyRepository(db)

	governance := service.NewGovernanceService(
		contentRepo,
		logRepo,
		policyRepo,
		publisher,
		cfg.Governance.PremiumVerticals,
		log,
	)

	// Setup HTTP routes
	httpHandler := handler.NewHTTPHandler(governance, log)
	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := db.Ping(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"unhealthy"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	})

	// Content item routes
	mux.HandleFunc("/api/v1/items", httpHandler.CreateItem)
	mux.HandleFunc("/api/v1/items/get", httpHandler.GetItem)
	mux.HandleFunc("/api/v1/items/queue", httpHandler.Queue)
	mux.HandleFunc("/api/v1/items/request-review", httpHandler.RequestReview)
	mux.HandleFunc("/api/v1/items/decide", httpHandler.Decide)
	mux.HandleFunc("/api/v1/items/asset-decision", httpHandler.AssetDecision)
	mux.HandleFunc("/api/v1/items/delegate", httpHandler.SetItemDelegate)
	mux.HandleFunc("/api/v1/items/history", httpHandler.History)
	mux.HandleFunc("/api/v1/items/asset-history", httpHandler.AssetHistory)

	// Policy routes
	mux.HandleFunc("/api/v1/policies/get", httpHandler.GetPolicy)
	mux.HandleFunc("/api/v1/policies/delegate", httpHandler.DelegatePolicy)

	// Apply middleware
	var h http.Handler = mux
	h = middleware.RequestID(h)
	h = middleware.Logger(&log.Logger)(h)
	h = middleware.Recovery(&log.Logger)(h)
	h = middleware.CORS([]string{"*"})(h)
	h = middleware.Timeout(30 * time.Second)(h)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      h,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// gRPC health/reflection listener for platform probes
	grpcServer := grpc.NewServer()
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	reflection.Register(grpcServer)

	grpcListener, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Server.GRPCPort))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create gRPC listener")
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info().Int("port", cfg.Server.Port).Msg("Starting HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	g.Go(func() error {
		log.Info().Int("port", cfg.Server.GRPCPort).Msg("Starting gRPC server")
		return grpcServer.Serve(grpcListener)
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down server...")

		healthServer.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("HTTP server shutdown failed")
		}
		grpcServer.GracefulStop()
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("Server exited with error")
	}
	log.Info().Msg("Server stopped")
}
