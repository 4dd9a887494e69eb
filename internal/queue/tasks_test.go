package queue

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"dd-copilot/internal/config"
	"dd-copilot/models"
	"dd-copilot/services"

	"github.com/hibiken/asynq"
)

type recordingProcessor struct {
	path, doc string
	err       error
}

func (r *recordingProcessor) Process(ctx context.Context, savedPath, docName string) (*services.IngestResult, error) {
	r.path, r.doc = savedPath, docName
	if r.err != nil {
		return nil, r.err
	}
	return &services.IngestResult{
		Document: &models.NormalizedDocument{Doc: docName, Status: models.StatusOK},
		Location: "ade_json/x.json",
	}, nil
}

func TestNewIngestTask(t *testing.T) {
	task, err := NewIngestTask("deck.pdf", "/data/deck.pdf", "req-1")
	if err != nil {
		t.Fatalf("NewIngestTask: %v", err)
	}
	if task.Type() != TaskIngestDocument {
		t.Fatalf("type = %q", task.Type())
	}

	var payload IngestPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		t.Fatal(err)
	}
	if payload.Doc != "deck.pdf" || payload.FilePath != "/data/deck.pdf" || payload.RequestID != "req-1" {
		t.Fatalf("unexpected payload %+v", payload)
	}
}

func TestProcessIngestRunsPipeline(t *testing.T) {
	proc := &recordingProcessor{}
	task, _ := NewIngestTask("deck.pdf", "/data/deck.pdf", "")

	if err := NewTaskProcessor(proc).ProcessIngest(context.Background(), task); err != nil {
		t.Fatalf("ProcessIngest: %v", err)
	}
	if proc.path != "/data/deck.pdf" || proc.doc != "deck.pdf" {
		t.Fatalf("processor got path=%q doc=%q", proc.path, proc.doc)
	}
}

func TestProcessIngestSkipsRetryOnBadPayload(t *testing.T) {
	task := asynq.NewTask(TaskIngestDocument, []byte("{not json"))

	err := NewTaskProcessor(&recordingProcessor{}).ProcessIngest(context.Background(), task)
	if !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("expected SkipRetry, got %v", err)
	}
}

func TestProcessIngestPropagatesStoreErrors(t *testing.T) {
	boom := errors.New("disk full")
	task, _ := NewIngestTask("deck.pdf", "/data/deck.pdf", "")

	err := NewTaskProcessor(&recordingProcessor{err: boom}).ProcessIngest(context.Background(), task)
	if !errors.Is(err, boom) {
		t.Fatalf("expected retryable store error, got %v", err)
	}
}

func TestRedisConnOpt(t *testing.T) {
	opt, err := RedisConnOpt(&config.Config{RedisURL: "localhost:6379", RedisDB: 2})
	if err != nil {
		t.Fatal(err)
	}
	client, ok := opt.(asynq.RedisClientOpt)
	if !ok || client.Addr != "localhost:6379" || client.DB != 2 {
		t.Fatalf("unexpected opt %#v", opt)
	}

	if _, err := RedisConnOpt(&config.Config{RedisURL: "redis://:pw@cache:6380/1"}); err != nil {
		t.Fatalf("url form: %v", err)
	}
}
