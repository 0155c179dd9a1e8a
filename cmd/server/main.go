package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"alcyxob/storage-gateway/internal/api"
	"alcyxob/storage-gateway/internal/config"
	"alcyxob/storage-gateway/internal/metrics"
	"alcyxob/storage-gateway/internal/service"
	"alcyxob/storage-gateway/internal/storage"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

// @title Storage Gateway API
// @version 1.0
// @description REST facade over S3-compatible object storage: upload, inspect and delete files in allow-listed buckets.
// @license.name Apache 2.0
// @license.url http://www.apache.org/licenses/LICENSE-2.0.html
// @host localhost:8080
// @BasePath /
func main() {
	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		Prefix:          "storage-gateway",
	})
	logger.Info("Starting Storage Gateway...")

	// --- Configuration ---
	cfg, err := config.LoadConfig(".")
	if err != nil {
		logger.Fatal("Could not load config", "err", err)
	}
	if level, err := log.ParseLevel(cfg.Log.Level); err == nil {
		logger.SetLevel(level)
	}
	if cfg.Log.Format == "json" {
		logger.SetFormatter(log.JSONFormatter)
	}
	logger.Info("Configuration loaded.", "driver", cfg.Storage.Driver, "buckets", cfg.Storage.Buckets)

	// --- Initialize Storage ---
	logger.Info("Initializing storage backend...")
	initCtx, cancelInit := context.WithTimeout(context.Background(), 30*time.Second)
	backend, err := storage.New(initCtx, cfg.Storage, logger.WithPrefix("storage"))
	cancelInit()
	if err != nil {
		logger.Fatal("Failed to initialize storage backend", "err", err)
	}

	// --- Metrics ---
	registry := prometheus.NewRegistry()
	observer, err := metrics.NewObserver("storage_gateway", registry)
	if err != nil {
		logger.Fatal("Failed to register metrics", "err", err)
	}

	// --- Initialize Services ---
	storageService := service.NewStorageService(backend, service.Options{
		Buckets:           cfg.Storage.Buckets,
		DefaultBucket:     cfg.Storage.DefaultBucket,
		MaxFileSize:       cfg.Storage.MaxFileSize,
		MaxFiles:          cfg.Storage.MaxFiles,
		UploadConcurrency: cfg.Storage.UploadConcurrency,
	}, observer, logger.WithPrefix("gateway"))

	// --- Initialize Gin Engine ---
	gin.SetMode(gin.ReleaseMode)
	router := api.NewRouter(storageService, logger.WithPrefix("http"), api.RouterOptions{
		CORSOrigins:        cfg.Server.CORSOrigins,
		Gatherer:           registry,
		MaxMultipartMemory: cfg.Storage.MaxFileSize,
	})

	// --- Start HTTP Server ---
	server := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	logger.Info("Server starting", "address", cfg.Server.Address)

	// --- Graceful Shutdown ---
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("ListenAndServe error", "err", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	// In-flight uploads get 5 seconds to finish.
	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()

	if err := server.Shutdown(ctxShutdown); err != nil {
		logger.Fatal("Server forced to shutdown", "err", err)
	}

	logger.Info("Server exiting.")
}
