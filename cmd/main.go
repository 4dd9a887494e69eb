package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"dd-copilot/internal/config"
	"dd-copilot/internal/logger"
	"dd-copilot/internal/queue"
	"dd-copilot/internal/telemetry"
	"dd-copilot/middleware"
	"dd-copilot/routes"
	"dd-copilot/services"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}
	logger.InitLogger(cfg)

	if _, err := config.EnsureRuntimeDirectories(cfg); err != nil {
		log.Fatal("Failed to create runtime directories:", err)
	}

	shutdownTracer, err := telemetry.InitTracer(context.Background(), cfg.OTELEndpoint)
	if err != nil {
		log.Fatal("Failed to initialize tracing:", err)
	}
	defer shutdownTracer()

	metrics, err := telemetry.InitMetrics()
	if err != nil {
		log.Fatal("Failed to initialize metrics:", err)
	}

	store, closeStore, err := services.OpenDocumentStore(cfg, metrics)
	if err != nil {
		log.Fatal("Failed to open document store:", err)
	}
	defer closeStore()

	extractor := services.NewExtractionClient(cfg, metrics)
	ingest := services.NewIngestService(cfg.DataRoomDir, extractor, store)

	if cfg.GinMode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.TracingMiddleware())
	router.Use(middleware.EnrichTrace())
	router.Use(middleware.MetricsMiddleware(metrics))
	router.Use(middleware.CORSMiddlewareWithOrigins(cfg.CORSOrigins))
	router.Use(middleware.RequestSizeLimit(cfg.MaxFileSize))

	var enqueuer routes.TaskEnqueuer
	if cfg.RedisURL != "" {
		rdb, err := config.NewRedisClient(cfg)
		if err != nil {
			log.Fatal("Failed to connect to Redis:", err)
		}
		defer rdb.Close()
		router.Use(middleware.RateLimitMiddleware(rdb, cfg))

		redisOpt, err := queue.RedisConnOpt(cfg)
		if err != nil {
			log.Fatal("Invalid Redis configuration:", err)
		}
		queueClient := asynq.NewClient(redisOpt)
		defer queueClient.Close()
		enqueuer = queueClient
	} else {
		router.Use(middleware.NewLocalRateLimiter(cfg).Middleware())
	}

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "timestamp": time.Now()})
	})

	routes.SetupIngestRoutes(router, ingest, enqueuer)
	routes.SetupDocumentRoutes(router, store)
	routes.SetupCopilotRoutes(router)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		logger.Info("Server starting", "port", cfg.Port, "store", store.Backend(), "extraction_key_set", cfg.LandingAIAPIKey != "")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
	}

	logger.Info("Server exited")
}

