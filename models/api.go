package models

// AskRequest is the body of POST /ask
type AskRequest struct {
	Question string `json:"question" binding:"required,min=1"`
}

// Citation points at the evidence behind an answer
type Citation struct {
	Doc   string  `json:"doc"`
	Page  *int    `json:"page"`
	Table *int    `json:"table"`
	Cell  *string `json:"cell"`
}

// AskResponse is returned by POST /ask
type AskResponse struct {
	Answer   string         `json:"answer"`
	Evidence []Citation     `json:"evidence"`
	Metrics  map[string]any `json:"metrics"`
	RedFlags []string       `json:"red_flags"`
}

// ExportRequest is the body of POST /export
type ExportRequest struct {
	Type string `json:"type" binding:"required,oneof=memo csv xlsx"`
}

// IngestResponse summarizes a synchronous ingestion
type IngestResponse struct {
	Status      string `json:"status"`
	Doc         string `json:"doc"`
	TablesCount int    `json:"tables_count"`
	ADEJSON     string `json:"ade_json"`
}
