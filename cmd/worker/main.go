package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/establishment-api/internal/app"
	"github.com/jwalitptl/establishment-api/internal/config"
	"github.com/jwalitptl/establishment-api/internal/handler"
	promhandler "github.com/jwalitptl/establishment-api/internal/handler/prometheus"
	"github.com/jwalitptl/establishment-api/internal/worker"
	"github.com/jwalitptl/establishment-api/pkg/logger"
	outbox "github.com/jwalitptl/establishment-api/pkg/worker"
)

const healthPort = 8081

func setupHealthCheck(a *app.App, log *logger.Logger) *http.Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	handler.NewHealthHandler(a.HealthCheckers()).RegisterRoutes(&engine.RouterGroup)

	metrics := promhandler.New("establishments_worker", a.Registry)
	engine.GET("/metrics", metrics.Handler())

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", healthPort),
		Handler: engine,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error(err, "Health check server failed")
		}
	}()
	return srv
}

func main() {
	// Load config
	cfg, err := config.LoadConfig(os.Getenv("PORTAL_CONFIG_FILE"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logCfg := cfg.Log.ToLoggerConfig()
	log := logger.NewLogger(&logCfg).WithFields(map[string]interface{}{"component": "worker"})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal(err, "Failed to initialize application")
	}
	defer a.Close()

	if a.Broker == nil {
		log.Fatal(errors.New("redis disabled"), "The outbox processor needs Redis")
	}

	processor, err := outbox.NewOutboxProcessor(a.Outbox, a.Broker, cfg.Outbox.ToWorkerConfig(), log, a.Metrics)
	if err != nil {
		log.Fatal(err, "Invalid outbox configuration")
	}

	scheduler := worker.NewScheduler(log)
	jobs := []struct {
		spec string
		job  worker.Job
	}{
		{cfg.Claim.ReconcileSchedule, worker.NewReconcileJob(a.Claims, log)},
		{cfg.Audit.CleanupSchedule, worker.NewCleanupJob(a.Audit, a.Outbox, cfg.Audit.Retention, cfg.Outbox.Retention, log)},
	}
	for _, j := range jobs {
		if err := scheduler.Add(j.spec, j.job); err != nil {
			log.Fatal(err, "Failed to schedule job")
		}
	}
	scheduler.Start(ctx)

	// Setup health check endpoints
	srv := setupHealthCheck(a, log)

	processor.Start(ctx)

	log.Info("Shutting down...")
	scheduler.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}
