package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"jobtrack_server/config"
	"jobtrack_server/internal/bootstrap"
	"jobtrack_server/pkg/logger"

	"github.com/joho/godotenv"
)

const (
	shutdownTimeout = 30 * time.Second // Maximum time to wait for graceful shutdown
)

func main() {
	// Load .env file if exists (for local development)
	envErr := godotenv.Load()

	mode := flag.String("mode", "all", "Run mode: api, worker, all, sweep")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load config: %v", err)
	}

	logger.Init(logger.Config{
		Level:   logger.ParseLevel(cfg.LogLevel),
		Service: "jobtrack-" + *mode,
		Console: cfg.IsDevelopment(),
	})
	if envErr != nil {
		logger.Debug("No .env file found, using environment variables")
	}

	switch *mode {
	case "api", "all":
		err = cfg.ValidateAPI()
	case "worker", "sweep":
		err = cfg.Validate()
	default:
		logger.Fatal("Unknown mode: %s", *mode)
	}
	if err != nil {
		logger.Fatal("Invalid config: %v", err)
	}

	deps, cleanup, err := bootstrap.NewDependencies(cfg)
	if err != nil {
		logger.Fatal("Failed to initialize dependencies: %v", err)
	}
	defer cleanup()

	switch *mode {
	case "api":
		runAPI(cfg, deps)
	case "worker":
		runWorker(cfg, deps)
	case "all":
		w := startWorker(cfg, deps)
		runAPI(cfg, deps)
		stopWorker(w)
	case "sweep":
		if err := runSweep(deps); err != nil {
			logger.Error("Sweep failed: %v", err)
			cleanup()
			os.Exit(1)
		}
	}
}

func runAPI(cfg *config.Config, deps *bootstrap.Dependencies) {
	app, stop := bootstrap.NewAPI(cfg, deps)
	defer stop()

	// Graceful shutdown with timeout
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		logger.Info("Shutting down API server (timeout: %v)...", shutdownTimeout)
		if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
			logger.Error("Error shutting down: %v", err)
		} else {
			logger.Info("API server shut down gracefully")
		}
	}()

	addr := ":" + cfg.Port
	logger.Info("Starting API server on %s", addr)
	if err := app.Listen(addr); err != nil {
		logger.Fatal("Failed to start server: %v", err)
	}
}

func startWorker(cfg *config.Config, deps *bootstrap.Dependencies) *bootstrap.Worker {
	w := bootstrap.NewWorker(cfg, deps)
	logger.Info("Starting worker...")
	if err := w.Start(); err != nil {
		logger.Fatal("Failed to start worker: %v", err)
	}
	return w
}

func stopWorker(w *bootstrap.Worker) {
	logger.Info("Shutting down worker (timeout: %v)...", shutdownTimeout)

	done := make(chan struct{})
	go func() {
		w.Stop()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("Worker shut down gracefully")
	case <-time.After(shutdownTimeout):
		logger.Warn("Worker shutdown timed out, forcing exit")
	}
}

func runWorker(cfg *config.Config, deps *bootstrap.Dependencies) {
	w := startWorker(cfg, deps)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	stopWorker(w)
}

func runSweep(deps *bootstrap.Dependencies) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return bootstrap.RunSweep(ctx, deps)
}
