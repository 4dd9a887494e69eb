package services

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"dd-copilot/models"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// NormalizedDocumentSchema describes the persisted artifact
func NormalizedDocumentSchema() map[string]any {
	table := map[string]any{
		"type":     "object",
		"required": []string{"index", "page", "rows"},
		"properties": map[string]any{
			"index": map[string]any{"type": "integer", "minimum": 0},
			"page":  map[string]any{"type": []string{"integer", "null"}},
			"rows":  map[string]any{"type": "array"},
		},
	}

	return map[string]any{
		"type":     "object",
		"required": []string{"doc", "status", "tables", "extracted_fields"},
		"properties": map[string]any{
			"doc":              map[string]any{"type": "string", "minLength": 1},
			"status":           map[string]any{"enum": []string{models.StatusOK, models.StatusNeedsReview}},
			"tables":           map[string]any{"type": "array", "items": table},
			"extracted_fields": map[string]any{"type": "object"},
		},
	}
}

var (
	compiledSchema    *jsonschema.Schema
	compiledSchemaErr error
	compileSchemaOnce sync.Once
)

func normalizedSchema() (*jsonschema.Schema, error) {
	compileSchemaOnce.Do(func() {
		b, err := json.Marshal(NormalizedDocumentSchema())
		if err != nil {
			compiledSchemaErr = fmt.Errorf("marshal schema: %w", err)
			return
		}
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("normalized_document.json", bytes.NewReader(b)); err != nil {
			compiledSchemaErr = fmt.Errorf("add schema: %w", err)
			return
		}
		compiledSchema, compiledSchemaErr = compiler.Compile("normalized_document.json")
	})
	return compiledSchema, compiledSchemaErr
}

// ValidateNormalized checks serialized artifact bytes against the canonical
// schema and the contiguous table index rule.
func ValidateNormalized(data []byte) error {
	schema, err := normalizedSchema()
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}

	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("unmarshal data: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("json does not match schema: %w", err)
	}

	var doc models.NormalizedDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("unmarshal document: %w", err)
	}
	for i, t := range doc.Tables {
		if t.Index != i {
			return fmt.Errorf("table %d has index %d", i, t.Index)
		}
	}
	return nil
}
