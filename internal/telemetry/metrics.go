package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds all application metrics
type Metrics struct {
	RequestCounter      metric.Int64Counter
	RequestDuration     metric.Float64Histogram
	Extractions         metric.Int64Counter
	ExtractionDuration  metric.Float64Histogram
	CircuitBreakerState metric.Int64Counter
	DocumentsStored     metric.Int64Counter
}

// InitMetrics registers the instruments on the global meter provider
func InitMetrics() (*Metrics, error) {
	meter := otel.Meter(ServiceName)

	requestCounter, err := meter.Int64Counter(
		"http.requests.total",
		metric.WithDescription("Total HTTP requests"),
	)
	if err != nil {
		return nil, err
	}

	requestDuration, err := meter.Float64Histogram(
		"http.request.duration",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	extractions, err := meter.Int64Counter(
		"ade.extractions.total",
		metric.WithDescription("Extraction attempts by outcome"),
	)
	if err != nil {
		return nil, err
	}

	extractionDuration, err := meter.Float64Histogram(
		"ade.extraction.duration",
		metric.WithDescription("Extraction call duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	circuitBreakerState, err := meter.Int64Counter(
		"circuit_breaker.state_changes",
		metric.WithDescription("Circuit breaker state changes"),
	)
	if err != nil {
		return nil, err
	}

	documentsStored, err := meter.Int64Counter(
		"documents.stored.total",
		metric.WithDescription("Normalized documents written to the document store"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		RequestCounter:      requestCounter,
		RequestDuration:     requestDuration,
		Extractions:         extractions,
		ExtractionDuration:  extractionDuration,
		CircuitBreakerState: circuitBreakerState,
		DocumentsStored:     documentsStored,
	}, nil
}

// RecordRequest records HTTP request metrics
func (m *Metrics) RecordRequest(method, path, status string, duration float64) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("http.method", method),
		attribute.String("http.path", path),
		attribute.String("http.status", status),
	)

	m.RequestCounter.Add(context.Background(), 1, attrs)
	m.RequestDuration.Record(context.Background(), duration, attrs)
}

// RecordExtraction records one gateway call. outcome is "ok", "missing_api_key" or a failure kind.
func (m *Metrics) RecordExtraction(outcome string, duration float64) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("ade.outcome", outcome))

	m.Extractions.Add(context.Background(), 1, attrs)
	m.ExtractionDuration.Record(context.Background(), duration, attrs)
}

// RecordCircuitBreakerState records circuit breaker state changes
func (m *Metrics) RecordCircuitBreakerState(service, state string) {
	if m == nil {
		return
	}
	m.CircuitBreakerState.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("service", service),
		attribute.String("state", state),
	))
}

// RecordDocumentStored records a persisted artifact
func (m *Metrics) RecordDocumentStored(backend, status string) {
	if m == nil {
		return
	}
	m.DocumentsStored.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("store.backend", backend),
		attribute.String("document.status", status),
	))
}
