package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"dd-copilot/internal/config"
	"dd-copilot/internal/logger"
	"dd-copilot/internal/telemetry"
	"dd-copilot/models"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// ErrMissingAPIKey means no extraction credential is configured. It is a
// degraded mode, not a failure: the caller still gets a needs_review stub.
var ErrMissingAPIKey = errors.New("missing_api_key")

// FailureKind classifies why an extraction call did not produce a result
type FailureKind string

const (
	FailureRead        FailureKind = "read"
	FailureRequest     FailureKind = "request"
	FailureTransport   FailureKind = "transport"
	FailureHTTPStatus  FailureKind = "http_status"
	FailureDecode      FailureKind = "decode"
	FailureCircuitOpen FailureKind = "circuit_open"
)

// ExtractionError is a failed call to the extraction service
type ExtractionError struct {
	Kind       FailureKind
	StatusCode int
	Err        error
}

func (e *ExtractionError) Error() string {
	if e.Kind == FailureHTTPStatus {
		return fmt.Sprintf("extraction service returned status %d: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("extraction %s error: %v", e.Kind, e.Err)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// ExtractionRequest is one file to send to the extraction service
type ExtractionRequest struct {
	Filename string
	Content  io.Reader
}

// ExtractionResult is the internal outcome of an extraction attempt. Exactly
// one of Raw and Err is set.
type ExtractionResult struct {
	Raw models.RawExtraction
	Err error
}

// ExtractionClient wraps the LandingAI ADE extract endpoint
type ExtractionClient struct {
	apiKey     string
	endpoint   string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
	metrics    *telemetry.Metrics
}

// NewExtractionClient creates a client from configuration. metrics may be nil.
func NewExtractionClient(cfg *config.Config, metrics *telemetry.Metrics) *ExtractionClient {
	timeout := cfg.ADETimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "LandingAIADE",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("Circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
			metrics.RecordCircuitBreakerState(name, to.String())
		},
	})

	return &ExtractionClient{
		apiKey:   cfg.LandingAIAPIKey,
		endpoint: cfg.ADEURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		breaker: breaker,
		metrics: metrics,
	}
}

// Extract sends the file to the extraction service and always returns a raw
// result. Every failure is logged and turned into a needs_review stub.
func (c *ExtractionClient) Extract(ctx context.Context, req ExtractionRequest) models.RawExtraction {
	doc := filepath.Base(req.Filename)
	result := c.Attempt(ctx, req)

	var extractionErr *ExtractionError
	switch {
	case result.Err == nil:
		return result.Raw
	case errors.Is(result.Err, ErrMissingAPIKey):
		logger.Warn("ADE key missing. Returning needs_review stub.", "doc", doc)
		return stubExtraction(doc, map[string]any{"reason": ErrMissingAPIKey.Error()})
	case errors.As(result.Err, &extractionErr):
		logger.Error("ADE extract failed", "doc", doc, "kind", string(extractionErr.Kind), "error", result.Err)
	default:
		logger.Error("ADE extract failed", "doc", doc, "error", result.Err)
	}
	return stubExtraction(doc, map[string]any{"error": result.Err.Error()})
}

// ExtractFile is Extract for a file already saved on disk
func (c *ExtractionClient) ExtractFile(ctx context.Context, path string) models.RawExtraction {
	f, err := os.Open(path)
	if err != nil {
		doc := filepath.Base(path)
		logger.Error("ADE extract failed", "doc", doc, "kind", string(FailureRead), "error", err)
		return stubExtraction(doc, map[string]any{"error": (&ExtractionError{Kind: FailureRead, Err: err}).Error()})
	}
	defer f.Close()

	return c.Extract(ctx, ExtractionRequest{Filename: filepath.Base(path), Content: f})
}

// Attempt performs the extraction call and reports the typed outcome
func (c *ExtractionClient) Attempt(ctx context.Context, req ExtractionRequest) ExtractionResult {
	if c.apiKey == "" {
		c.metrics.RecordExtraction(ErrMissingAPIKey.Error(), 0)
		return ExtractionResult{Err: ErrMissingAPIKey}
	}

	// The call outlives a disconnected caller; only the client timeout bounds it.
	ctx, span := otel.Tracer("ade-client").Start(context.WithoutCancel(ctx), "ade.extract")
	defer span.End()
	span.SetAttributes(attribute.String("ade.doc", filepath.Base(req.Filename)))

	start := time.Now()
	out, err := c.breaker.Execute(func() (interface{}, error) {
		return c.post(ctx, req)
	})
	elapsed := time.Since(start).Seconds()

	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			err = &ExtractionError{Kind: FailureCircuitOpen, Err: err}
		}
		outcome := "error"
		var extractionErr *ExtractionError
		if errors.As(err, &extractionErr) {
			outcome = string(extractionErr.Kind)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
		c.metrics.RecordExtraction(outcome, elapsed)
		return ExtractionResult{Err: err}
	}

	raw := out.(models.RawExtraction)
	if _, ok := raw["status"]; !ok {
		raw["status"] = models.StatusOK
	}
	c.metrics.RecordExtraction(models.StatusOK, elapsed)
	return ExtractionResult{Raw: raw}
}

func (c *ExtractionClient) post(ctx context.Context, req ExtractionRequest) (models.RawExtraction, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	fileWriter, err := writer.CreateFormFile("file", filepath.Base(req.Filename))
	if err != nil {
		return nil, &ExtractionError{Kind: FailureRequest, Err: err}
	}
	if req.Content != nil {
		if _, err := io.Copy(fileWriter, req.Content); err != nil {
			return nil, &ExtractionError{Kind: FailureRead, Err: err}
		}
	}
	if err := writer.Close(); err != nil {
		return nil, &ExtractionError{Kind: FailureRequest, Err: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, &buf)
	if err != nil {
		return nil, &ExtractionError{Kind: FailureRequest, Err: err}
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", writer.FormDataContentType())
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &ExtractionError{Kind: FailureTransport, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		msg := string(bytes.TrimSpace(body))
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return nil, &ExtractionError{
			Kind:       FailureHTTPStatus,
			StatusCode: resp.StatusCode,
			Err:        errors.New(msg),
		}
	}

	var raw models.RawExtraction
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, &ExtractionError{Kind: FailureDecode, Err: err}
	}
	if raw == nil {
		return nil, &ExtractionError{Kind: FailureDecode, Err: errors.New("response body is not a JSON object")}
	}
	return raw, nil
}

func stubExtraction(doc string, metadata map[string]any) models.RawExtraction {
	return models.RawExtraction{
		"status":   models.StatusNeedsReview,
		"doc":      doc,
		"tables":   []any{},
		"metadata": metadata,
	}
}
