package main

import (
	"context"
	"log"

	"dd-copilot/internal/config"
	"dd-copilot/internal/logger"
	"dd-copilot/internal/queue"
	"dd-copilot/internal/telemetry"
	"dd-copilot/services"

	"github.com/hibiken/asynq"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}
	logger.InitLogger(cfg)

	if cfg.RedisURL == "" {
		log.Fatal("DDC_REDIS_URL is required to run the ingest worker")
	}
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

	redisOpt, err := queue.RedisConnOpt(cfg)
	if err != nil {
		log.Fatal("Invalid Redis configuration:", err)
	}

	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: 4,
			Queues: map[string]int{
				"default": 1,
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				logger.Error("Task failed", "type", task.Type(), "error", err)
			}),
		},
	)

	processor := queue.NewTaskProcessor(ingest)

	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.TaskIngestDocument, processor.ProcessIngest)

	logger.Info("Starting ingest worker", "concurrency", 4, "store", store.Backend())

	if err := server.Run(mux); err != nil {
		log.Fatal("Failed to start worker:", err)
	}
}
