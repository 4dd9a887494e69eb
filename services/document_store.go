package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"dd-copilot/internal/telemetry"
	"dd-copilot/models"
)

var ErrDocumentNotFound = errors.New("document not found")

// DocumentStore keeps one normalized artifact per document name
type DocumentStore interface {
	// Save writes doc, replacing any artifact with the same key, and returns its location
	Save(ctx context.Context, doc *models.NormalizedDocument) (string, error)
	Load(ctx context.Context, name string) (*models.NormalizedDocument, error)
	List(ctx context.Context) ([]string, error)
	Backend() string
}

// ArtifactKey derives the storage key of a document: its base name without
// the last extension. "deals/report.v2.pdf" becomes "report.v2".
func ArtifactKey(docName string) string {
	base := path.Base(strings.ReplaceAll(docName, "\\", "/"))
	if base == "." || base == "/" {
		return ""
	}
	if stem := strings.TrimSuffix(base, path.Ext(base)); stem != "" {
		return stem
	}
	return base
}

// MarshalNormalized renders the artifact as indented UTF-8 JSON
func MarshalNormalized(doc *models.NormalizedDocument) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// FileDocumentStore writes <dir>/<key>.json
type FileDocumentStore struct {
	dir     string
	metrics *telemetry.Metrics
}

func NewFileDocumentStore(dir string, metrics *telemetry.Metrics) *FileDocumentStore {
	return &FileDocumentStore{dir: dir, metrics: metrics}
}

func (s *FileDocumentStore) Backend() string { return "file" }

func (s *FileDocumentStore) Save(ctx context.Context, doc *models.NormalizedDocument) (string, error) {
	key := ArtifactKey(doc.Doc)
	if key == "" {
		return "", fmt.Errorf("invalid document name %q", doc.Doc)
	}

	data, err := MarshalNormalized(doc)
	if err != nil {
		return "", fmt.Errorf("failed to marshal %s: %w", doc.Doc, err)
	}
	if err := ValidateNormalized(data); err != nil {
		return "", fmt.Errorf("refusing to store %s: %w", doc.Doc, err)
	}

	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create %s: %w", s.dir, err)
	}

	tmp, err := os.CreateTemp(s.dir, "."+key+"-*.tmp")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("failed to write %s: %w", tmp.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("failed to close %s: %w", tmp.Name(), err)
	}

	outPath := s.path(key)
	if err := os.Rename(tmp.Name(), outPath); err != nil {
		return "", fmt.Errorf("failed to move artifact into place: %w", err)
	}

	s.metrics.RecordDocumentStored(s.Backend(), doc.Status)
	return outPath, nil
}

func (s *FileDocumentStore) Load(ctx context.Context, name string) (*models.NormalizedDocument, error) {
	for _, key := range lookupKeys(name) {
		data, err := os.ReadFile(s.path(key))
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", key, err)
		}
		return decodeArtifact(key, data)
	}
	return nil, ErrDocumentNotFound
}

func (s *FileDocumentStore) List(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, os.ErrNotExist) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", s.dir, err)
	}

	names := []string{}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || filepath.Ext(name) != ".json" {
			continue
		}
		names = append(names, strings.TrimSuffix(name, ".json"))
	}
	sort.Strings(names)
	return names, nil
}

func (s *FileDocumentStore) path(key string) string {
	return filepath.Join(s.dir, key+".json")
}

// lookupKeys accepts either a key as returned by List or a full document name
func lookupKeys(name string) []string {
	base := path.Base(strings.ReplaceAll(name, "\\", "/"))
	if base == "." || base == "/" {
		return nil
	}
	keys := []string{base}
	if key := ArtifactKey(name); key != base {
		keys = append(keys, key)
	}
	return keys
}

func decodeArtifact(key string, data []byte) (*models.NormalizedDocument, error) {
	if err := ValidateNormalized(data); err != nil {
		return nil, fmt.Errorf("artifact %s is invalid: %w", key, err)
	}
	var doc models.NormalizedDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return &doc, nil
}
