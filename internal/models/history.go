package models

// HistoryTurn is one recorded question/answer exchange.
type HistoryTurn struct {
	Question    string `json:"question"`
	Answer      string `json:"answer"`
	ModelLabel  string `json:"model"`
	Timestamp   string `json:"timestamp"`
	SourceLabel string `json:"pdf_names"`
}

// PromptResponse is what a question returns to its caller.
type PromptResponse struct {
	SessionID   string             `json:"session_id"`
	Query       string             `json:"-"`
	Answer      string             `json:"answer"`
	BBoxes      []SourceBBox       `json:"bboxes"`
	Timestamp   string             `json:"timestamp"`
	Performance map[string]float64 `json:"performance_metrics,omitempty"`
	WebFallback bool               `json:"web_fallback"`
}

// SourceBBox pairs an image source with a chunk bbox for highlighting.
type SourceBBox struct {
	Source string `json:"source"`
	BBox   BBox   `json:"bbox"`
}

// UploadResult summarizes an upload.
type UploadResult struct {
	SessionID   string             `json:"session_id"`
	PDFNames    []string           `json:"pdf_names"`
	ChunkCount  int                `json:"chunks"`
	FullOCRText string             `json:"OCR"`
	Performance map[string]float64 `json:"performance_metrics,omitempty"`
}
