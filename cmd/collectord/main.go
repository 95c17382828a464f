package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dreschagin/views-collector/internal/application/usecase"
	"github.com/dreschagin/views-collector/internal/bootstrap"
	"github.com/dreschagin/views-collector/internal/infrastructure/observability/prometheus"
	"github.com/dreschagin/views-collector/internal/scheduler"
	"github.com/dreschagin/views-collector/pkg/config"
	"github.com/dreschagin/views-collector/pkg/logger"
)

func main() {
	// 1. Загружаем конфигурацию
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 2. Инициализируем logger
	log := logger.New(cfg.LogLevel)
	log.Info("Starting views collector daemon",
		"schedule", cfg.Daemon.Schedule,
		"port", cfg.Daemon.Port,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 3. Prometheus
	registry := prom.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := prometheus.New(registry)

	// 4. Dependency Injection
	collector, err := bootstrap.Build(ctx, cfg, log, metrics)
	if err != nil {
		log.Error("Failed to initialize collector", err)
		os.Exit(1)
	}

	runner, err := scheduler.NewRunner(collector.Collect, cfg.Daemon.Schedule, cfg.Daemon.RunTimeout, log)
	if err != nil {
		log.Error("Failed to create scheduler", err)
		os.Exit(1)
	}

	status := usecase.NewGetRunStatusUseCase(collector.StatusCache, runner.LastSummary, log)
	handler := scheduler.NewHandler(
		runner,
		status,
		collector.ListRuns,
		promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
	)

	var routes http.Handler = handler.Routes()
	limiter := scheduler.NewTriggerLimiter(cfg.Security.RunTriggersPerMinute)
	go limiter.Run(ctx)

	routes = scheduler.RateLimitTriggers(limiter)(routes)
	routes = metrics.Middleware(routes)
	routes = scheduler.Auth(scheduler.AuthConfig{
		Enabled:     cfg.Security.AuthEnabled,
		BearerToken: cfg.Security.AuthToken,
		OnFailure:   metrics.AuthFailures.Inc,
	}, log)(routes)
	routes = scheduler.Logger(log)(routes)
	routes = scheduler.RequestID(routes)

	// 5. Фоновые процессы
	go func() {
		if _, err := runner.RunOnce(ctx); err != nil {
			log.Error("Initial collector run failed", err)
		}
	}()
	go runner.Start(ctx)

	// POST /run is synchronous and may last as long as a run.
	writeTimeout := cfg.Daemon.WriteTimeout
	if minimum := cfg.Daemon.RunTimeout + cfg.Daemon.WriteTimeout; cfg.Daemon.RunTimeout > 0 && writeTimeout < minimum {
		writeTimeout = minimum
	}

	server := &http.Server{
		Addr:         ":" + cfg.Daemon.Port,
		Handler:      routes,
		ReadTimeout:  cfg.Daemon.ReadTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  cfg.Daemon.IdleTimeout,
	}

	go func() {
		log.Info("HTTP server starting", "port", cfg.Daemon.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("HTTP server failed", err)
			os.Exit(1)
		}
	}()

	// 6. Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Info("Shutdown signal received, starting graceful shutdown...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Daemon.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server shutdown error", err)
	}
	collector.Close(shutdownCtx)

	log.Info("Collector daemon stopped")
}
