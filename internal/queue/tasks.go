package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"dd-copilot/internal/config"
	"dd-copilot/internal/logger"
	"dd-copilot/services"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

const TaskIngestDocument = "ingest:document"

type IngestPayload struct {
	Doc       string `json:"doc"`
	FilePath  string `json:"file_path"`
	RequestID string `json:"request_id,omitempty"`
}

// NewIngestTask builds a task for a file already saved in the data room
func NewIngestTask(doc, filePath, requestID string) (*asynq.Task, error) {
	payload, err := json.Marshal(IngestPayload{
		Doc:       doc,
		FilePath:  filePath,
		RequestID: requestID,
	})
	if err != nil {
		return nil, err
	}

	return asynq.NewTask(
		TaskIngestDocument,
		payload,
		asynq.TaskID(uuid.NewString()),
		asynq.MaxRetry(3),
		asynq.Timeout(5*time.Minute),
		asynq.Queue("default"),
	), nil
}

// RedisConnOpt accepts either a redis:// URL or a host:port address
func RedisConnOpt(cfg *config.Config) (asynq.RedisConnOpt, error) {
	if strings.HasPrefix(cfg.RedisURL, "redis://") || strings.HasPrefix(cfg.RedisURL, "rediss://") {
		opt, err := asynq.ParseRedisURI(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
		}
		return opt, nil
	}
	return asynq.RedisClientOpt{
		Addr:     cfg.RedisURL,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}, nil
}

// DocumentProcessor runs the ingestion pipeline on a saved file
type DocumentProcessor interface {
	Process(ctx context.Context, savedPath, docName string) (*services.IngestResult, error)
}

type TaskProcessor struct {
	ingest DocumentProcessor
}

func NewTaskProcessor(ingest DocumentProcessor) *TaskProcessor {
	return &TaskProcessor{ingest: ingest}
}

func (p *TaskProcessor) ProcessIngest(ctx context.Context, t *asynq.Task) error {
	var payload IngestPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal failed: %v: %w", err, asynq.SkipRetry)
	}
	if payload.FilePath == "" || payload.Doc == "" {
		return fmt.Errorf("payload missing doc or file_path: %w", asynq.SkipRetry)
	}

	logger.Info("Processing queued document", "doc", payload.Doc, "request_id", payload.RequestID)

	result, err := p.ingest.Process(ctx, payload.FilePath, payload.Doc)
	if err != nil {
		return err
	}

	logger.Info("Queued document processed",
		"doc", result.Document.Doc,
		"status", result.Document.Status,
		"location", result.Location,
	)
	return nil
}
