package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/FACorreiaa/loci-routes/internal/app/domain/reconcile"
	"github.com/FACorreiaa/loci-routes/internal/pkg/config"
	"github.com/FACorreiaa/loci-routes/internal/pkg/logger"
	"github.com/FACorreiaa/loci-routes/internal/routes"
	"github.com/FACorreiaa/loci-routes/internal/server"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: Error loading .env file, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	appLogger, err := logger.Init(cfg.Log, zap.String("service", cfg.Observability.ServiceName))
	if err != nil {
		return err
	}
	defer func() { _ = appLogger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	otelShutdown, err := server.InitObservability(cfg.Observability, appLogger)
	if err != nil {
		return err
	}
	defer func() {
		if err := otelShutdown(context.Background()); err != nil {
			appLogger.Error("Failed to shutdown OpenTelemetry", zap.Error(err))
		}
	}()

	srv, err := server.New(ctx, cfg, appLogger)
	if err != nil {
		return err
	}
	defer srv.Close()

	deps := routes.Dependencies{
		Pool:      srv.GetDBPool(),
		Config:    cfg,
		Publisher: srv.GetPublisher(),
		Logger:    appLogger,
	}
	router, limiter := server.SetupRouter(deps)
	defer limiter.Stop()
	srv.SetRouter(router)

	// Start pprof server (on separate port, not exposed publicly)
	pprofServer := server.StartPprofServer(cfg.Observability.PprofAddr, appLogger)
	defer func() { _ = pprofServer.Close() }()

	reconciler := reconcile.NewService(reconcile.NewRepository(srv.GetDBPool(), appLogger), srv.GetPublisher(), appLogger)
	go reconciler.Start(ctx, cfg.ReconcileInterval)

	httpServer := srv.HTTPServer()
	done := make(chan struct{})
	go server.GracefulShutdown(ctx, httpServer, appLogger, done)

	appLogger.Info("Server starting", zap.String("port", cfg.ServerPort))
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		appLogger.Error("Server error", zap.Error(err))
		stop()
	}

	<-done
	appLogger.Info("Graceful shutdown complete")
	return nil
}
