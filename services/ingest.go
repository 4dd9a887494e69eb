package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"dd-copilot/internal/logger"
	"dd-copilot/models"
)

var ErrInvalidFilename = errors.New("invalid file name")

// Extractor produces a raw extraction for a saved file and never fails
type Extractor interface {
	ExtractFile(ctx context.Context, path string) models.RawExtraction
}

// IngestResult is what one ingestion produced
type IngestResult struct {
	Document *models.NormalizedDocument
	Location string
}

// IngestService runs upload -> extraction -> normalization -> persistence
type IngestService struct {
	dataRoomDir string
	extractor   Extractor
	store       DocumentStore
}

func NewIngestService(dataRoomDir string, extractor Extractor, store DocumentStore) *IngestService {
	return &IngestService{
		dataRoomDir: dataRoomDir,
		extractor:   extractor,
		store:       store,
	}
}

// Ingest saves the upload into the data room and processes it
func (s *IngestService) Ingest(ctx context.Context, filename string, src io.Reader) (*IngestResult, error) {
	savedPath, err := s.SaveUpload(filename, src)
	if err != nil {
		return nil, err
	}
	return s.Process(ctx, savedPath, filepath.Base(savedPath))
}

// SaveUpload copies src to the data room under the base of filename,
// replacing an earlier upload with the same name.
func (s *IngestService) SaveUpload(filename string, src io.Reader) (string, error) {
	name := path.Base(strings.ReplaceAll(filename, "\\", "/"))
	if name == "" || name == "." || name == "/" || name == ".." {
		return "", fmt.Errorf("%w: %q", ErrInvalidFilename, filename)
	}

	if err := os.MkdirAll(s.dataRoomDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create data room: %w", err)
	}

	dstPath := filepath.Join(s.dataRoomDir, name)
	dst, err := os.OpenFile(dstPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return "", fmt.Errorf("failed to open destination: %w", err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return "", fmt.Errorf("failed to save upload: %w", err)
	}
	if err := dst.Close(); err != nil {
		return "", fmt.Errorf("failed to save upload: %w", err)
	}
	return dstPath, nil
}

// Process extracts, normalizes and stores a file already in the data room.
// Only local persistence can fail; extraction problems surface as status.
func (s *IngestService) Process(ctx context.Context, savedPath, docName string) (*IngestResult, error) {
	raw := s.extractor.ExtractFile(ctx, savedPath)
	doc := Normalize(raw, docName)

	location, err := s.store.Save(ctx, doc)
	if err != nil {
		return nil, fmt.Errorf("failed to store normalized document: %w", err)
	}

	logger.Info("Document ingested",
		"doc", doc.Doc,
		"status", doc.Status,
		"tables", len(doc.Tables),
		"store", s.store.Backend(),
		"location", location,
	)

	return &IngestResult{Document: doc, Location: location}, nil
}

// Store exposes the document store backing this service
func (s *IngestService) Store() DocumentStore {
	return s.store
}
