package routes

import (
	"bytes"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"dd-copilot/internal/config"
	"dd-copilot/internal/queue"
	"dd-copilot/middleware"
	"dd-copilot/services"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
)

type fakeEnqueuer struct {
	tasks []*asynq.Task
	err   error
}

func (f *fakeEnqueuer) Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.tasks = append(f.tasks, task)
	return &asynq.TaskInfo{ID: "task-1", Type: task.Type(), Queue: "default"}, nil
}

type testEnv struct {
	router   *gin.Engine
	dataRoom string
	adeDir   string
}

func setupTestRouter(t *testing.T, enqueuer TaskEnqueuer) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	root := t.TempDir()
	cfg := &config.Config{
		ADEURL:      "http://127.0.0.1:1/unused",
		ADETimeout:  time.Second,
		DataRoomDir: filepath.Join(root, "data_room"),
		ADEJSONDir:  filepath.Join(root, "ade_json"),
		MaxFileSize: 1 << 20,
	}

	store := services.NewFileDocumentStore(cfg.ADEJSONDir, nil)
	ingest := services.NewIngestService(cfg.DataRoomDir, services.NewExtractionClient(cfg, nil), store)

	router := gin.New()
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.RequestSizeLimit(cfg.MaxFileSize))
	SetupIngestRoutes(router, ingest, enqueuer)
	SetupDocumentRoutes(router, store)
	SetupCopilotRoutes(router)

	return &testEnv{router: router, dataRoom: cfg.DataRoomDir, adeDir: cfg.ADEJSONDir}
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func uploadRequest(t *testing.T, target, field, filename string, content []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile(field, filename)
	if err != nil {
		t.Fatal(err)
	}
	part.Write(content)
	writer.Close()

	req := httptest.NewRequest(http.MethodPost, target, &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func jsonRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("response is not a JSON object: %v\n%s", err, w.Body.String())
	}
	return out
}

func TestIngestWithoutExtractionKey(t *testing.T) {
	env := setupTestRouter(t, nil)

	w := env.do(uploadRequest(t, "/ingest", "file", "deck.pdf", []byte("%PDF-1.4")))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	want := map[string]any{
		"status":       "needs_review",
		"doc":          "deck.pdf",
		"tables_count": float64(0),
		"ade_json":     "deck.json",
	}
	if got := decodeBody(t, w); !reflect.DeepEqual(got, want) {
		t.Errorf("body = %v, want %v", got, want)
	}
	if w.Header().Get(middleware.RequestIDHeader) == "" {
		t.Error("missing request ID header")
	}

	if _, err := os.Stat(filepath.Join(env.dataRoom, "deck.pdf")); err != nil {
		t.Errorf("upload not in data room: %v", err)
	}
	if _, err := os.Stat(filepath.Join(env.adeDir, "deck.json")); err != nil {
		t.Errorf("artifact not written: %v", err)
	}
}

func TestIngestMissingFile(t *testing.T) {
	env := setupTestRouter(t, nil)

	for _, req := range []*http.Request{
		uploadRequest(t, "/ingest", "document", "deck.pdf", []byte("x")),
		jsonRequest(http.MethodPost, "/ingest", `{}`),
	} {
		w := env.do(req)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("status = %d, want 400", w.Code)
		}
		if code := decodeBody(t, w)["error_code"]; code != "no_file" {
			t.Errorf("error_code = %v", code)
		}
	}
}

func TestIngestTooLarge(t *testing.T) {
	env := setupTestRouter(t, nil)

	w := env.do(uploadRequest(t, "/ingest", "file", "big.pdf", bytes.Repeat([]byte("x"), 2<<20)))
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d, want 413", w.Code)
	}
	if _, err := os.Stat(filepath.Join(env.dataRoom, "big.pdf")); err == nil {
		t.Error("oversized upload was saved")
	}
}

func TestIngestThenReadDocuments(t *testing.T) {
	env := setupTestRouter(t, nil)

	for _, name := range []string{"memo.docx", "deck.pdf"} {
		if w := env.do(uploadRequest(t, "/ingest", "file", name, []byte("x"))); w.Code != http.StatusOK {
			t.Fatalf("ingest %s: %d %s", name, w.Code, w.Body.String())
		}
	}

	w := env.do(httptest.NewRequest(http.MethodGet, "/documents", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if got := decodeBody(t, w)["documents"]; !reflect.DeepEqual(got, []any{"deck", "memo"}) {
		t.Errorf("documents = %v", got)
	}

	w = env.do(httptest.NewRequest(http.MethodGet, "/documents/deck.pdf", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	body := decodeBody(t, w)
	if body["doc"] != "deck.pdf" || body["status"] != "needs_review" {
		t.Errorf("document = %v", body)
	}

	w = env.do(httptest.NewRequest(http.MethodGet, "/documents/missing", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
}

func TestListDocumentsEmpty(t *testing.T) {
	env := setupTestRouter(t, nil)

	w := env.do(httptest.NewRequest(http.MethodGet, "/documents", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if got := decodeBody(t, w)["documents"]; !reflect.DeepEqual(got, []any{}) {
		t.Errorf("documents = %#v, want []", got)
	}
}

func TestAsyncIngestWithoutQueue(t *testing.T) {
	env := setupTestRouter(t, nil)

	w := env.do(uploadRequest(t, "/ingest/async", "file", "deck.pdf", []byte("x")))
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", w.Code)
	}
}

func TestAsyncIngestQueuesTask(t *testing.T) {
	enqueuer := &fakeEnqueuer{}
	env := setupTestRouter(t, enqueuer)

	req := uploadRequest(t, "/ingest/async", "file", "deck.pdf", []byte("%PDF"))
	req.Header.Set(middleware.RequestIDHeader, "req-42")
	w := env.do(req)
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	want := map[string]any{"status": "queued", "doc": "deck.pdf", "task_id": "task-1"}
	if got := decodeBody(t, w); !reflect.DeepEqual(got, want) {
		t.Errorf("body = %v, want %v", got, want)
	}

	if len(enqueuer.tasks) != 1 || enqueuer.tasks[0].Type() != queue.TaskIngestDocument {
		t.Fatalf("enqueued %v", enqueuer.tasks)
	}
	var payload queue.IngestPayload
	if err := json.Unmarshal(enqueuer.tasks[0].Payload(), &payload); err != nil {
		t.Fatal(err)
	}
	if payload.Doc != "deck.pdf" || payload.FilePath != filepath.Join(env.dataRoom, "deck.pdf") || payload.RequestID != "req-42" {
		t.Errorf("payload = %+v", payload)
	}

	if _, err := os.Stat(filepath.Join(env.adeDir, "deck.json")); err == nil {
		t.Error("artifact written before the worker ran")
	}
}

func TestAsyncIngestEnqueueFailure(t *testing.T) {
	env := setupTestRouter(t, &fakeEnqueuer{err: errors.New("redis down")})

	w := env.do(uploadRequest(t, "/ingest/async", "file", "deck.pdf", []byte("x")))
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
	if code := decodeBody(t, w)["error_code"]; code != "queue_error" {
		t.Errorf("error_code = %v", code)
	}
}

func TestAsk(t *testing.T) {
	env := setupTestRouter(t, nil)

	for _, body := range []string{`{}`, `{"question": ""}`, `not json`} {
		if w := env.do(jsonRequest(http.MethodPost, "/ask", body)); w.Code != http.StatusBadRequest {
			t.Errorf("POST /ask %s: status = %d, want 400", body, w.Code)
		}
	}

	w := env.do(jsonRequest(http.MethodPost, "/ask", `{"question": "What is the ARR?"}`))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	want := map[string]any{
		"answer":    "This is a placeholder answer.",
		"evidence":  []any{},
		"metrics":   map[string]any{},
		"red_flags": []any{},
	}
	if got := decodeBody(t, w); !reflect.DeepEqual(got, want) {
		t.Errorf("body = %v, want %v", got, want)
	}
}

func TestKPIsAndFlags(t *testing.T) {
	env := setupTestRouter(t, nil)

	w := env.do(httptest.NewRequest(http.MethodGet, "/kpis", nil))
	if got := decodeBody(t, w); w.Code != http.StatusOK || !reflect.DeepEqual(got, map[string]any{"kpis": map[string]any{}}) {
		t.Errorf("GET /kpis = %d %v", w.Code, got)
	}

	w = env.do(httptest.NewRequest(http.MethodGet, "/flags", nil))
	if got := decodeBody(t, w); w.Code != http.StatusOK || !reflect.DeepEqual(got, map[string]any{"flags": []any{}}) {
		t.Errorf("GET /flags = %d %v", w.Code, got)
	}
}

func TestExport(t *testing.T) {
	env := setupTestRouter(t, nil)

	for _, kind := range []string{"memo", "csv", "xlsx"} {
		w := env.do(jsonRequest(http.MethodPost, "/export", `{"type": "`+kind+`"}`))
		want := map[string]any{"status": "queued", "type": kind}
		if got := decodeBody(t, w); w.Code != http.StatusOK || !reflect.DeepEqual(got, want) {
			t.Errorf("POST /export %s = %d %v", kind, w.Code, got)
		}
	}

	for _, body := range []string{`{"type": "pdf"}`, `{}`, `{"type": "CSV"}`} {
		if w := env.do(jsonRequest(http.MethodPost, "/export", body)); w.Code != http.StatusBadRequest {
			t.Errorf("POST /export %s: status = %d, want 400", body, w.Code)
		}
	}
}
