package services

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"dd-copilot/models"
)

// Normalize maps a raw extraction result onto the canonical document schema.
// It never fails: missing or wrong-shaped fields degrade to empty values.
func Normalize(raw models.RawExtraction, docName string) *models.NormalizedDocument {
	rawTables := asList(raw["tables"])
	tables := make([]models.NormalizedTable, len(rawTables))
	for i, t := range rawTables {
		tables[i] = normalizeTable(asObject(t), i)
	}

	return &models.NormalizedDocument{
		Doc:             docName,
		Status:          canonicalStatus(raw["status"]),
		Tables:          tables,
		ExtractedFields: extractedFields(raw),
	}
}

func normalizeTable(raw map[string]any, index int) models.NormalizedTable {
	rows := asList(raw["rows"])
	if len(rows) == 0 {
		rows = asList(raw["data"])
	}
	if rows == nil {
		rows = []any{}
	}

	page := raw["page"]
	if page == nil {
		page = raw["page_index"]
	}

	return models.NormalizedTable{
		Index: index,
		Page:  coerceInt(page),
		Rows:  rows,
	}
}

func extractedFields(raw models.RawExtraction) map[string]any {
	if fields := asObject(raw["fields"]); len(fields) > 0 {
		return fields
	}
	if fields := asObject(raw["extracted_fields"]); fields != nil {
		return fields
	}
	return map[string]any{}
}

// canonicalStatus keeps the two known values, defaults a missing or falsy
// status to ok and sends any other value to review.
func canonicalStatus(v any) string {
	if isFalsy(v) {
		return models.StatusOK
	}
	if s, ok := v.(string); ok {
		switch strings.TrimSpace(s) {
		case "", models.StatusOK:
			return models.StatusOK
		case models.StatusNeedsReview:
			return models.StatusNeedsReview
		}
	}
	return models.StatusNeedsReview
}

// isFalsy reports whether a decoded JSON value is null, false, zero or empty
func isFalsy(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case bool:
		return !x
	case string:
		return x == ""
	case float64:
		return x == 0
	case int:
		return x == 0
	case int64:
		return x == 0
	case json.Number:
		f, err := x.Float64()
		return err == nil && f == 0
	case []any:
		return len(x) == 0
	case map[string]any:
		return len(x) == 0
	case models.RawExtraction:
		return len(x) == 0
	}
	return false
}

func asList(v any) []any {
	list, _ := v.([]any)
	return list
}

func asObject(v any) map[string]any {
	switch m := v.(type) {
	case map[string]any:
		return m
	case models.RawExtraction:
		return m
	}
	return nil
}

// coerceInt truncates finite numbers and parses integer strings. Anything
// else yields nil, so a bad page value only loses that table's page.
func coerceInt(v any) *int {
	var n int
	switch x := v.(type) {
	case int:
		n = x
	case int64:
		n = int(x)
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return nil
		}
		x = math.Trunc(x)
		// float64(math.MaxInt) rounds up, so the upper bound is exclusive
		if x < float64(math.MinInt) || x >= float64(math.MaxInt) {
			return nil
		}
		n = int(x)
	case json.Number:
		i, err := x.Int64()
		if err != nil {
			return nil
		}
		n = int(i)
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(x))
		if err != nil {
			return nil
		}
		n = i
	case bool:
		if x {
			n = 1
		}
	default:
		return nil
	}
	return &n
}
