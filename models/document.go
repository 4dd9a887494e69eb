package models

// Document status values. Every normalized document carries exactly one of them.
const (
	StatusOK          = "ok"
	StatusNeedsReview = "needs_review"
)

// RawExtraction is the loosely-typed object returned by the extraction service
// (or synthesized when the service could not be consulted). Values are whatever
// encoding/json produces for an arbitrary JSON object.
type RawExtraction map[string]any

// NormalizedDocument is the canonical artifact persisted per document name
type NormalizedDocument struct {
	Doc             string            `json:"doc"`
	Status          string            `json:"status"`
	Tables          []NormalizedTable `json:"tables"`
	ExtractedFields map[string]any    `json:"extracted_fields"`
}

// NormalizedTable is one table of a document. Index is assigned by position,
// Page is nil when the source did not say.
type NormalizedTable struct {
	Index int   `json:"index"`
	Page  *int  `json:"page"`
	Rows  []any `json:"rows"`
}

// NeedsReview reports whether the document was flagged for manual review
func (d *NormalizedDocument) NeedsReview() bool {
	return d.Status == StatusNeedsReview
}
