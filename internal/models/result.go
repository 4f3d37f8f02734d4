package models

import "time"

// Label-analysis status values reported in SessionMetadata.
const (
	LabelStatusComplete     = "complete"
	LabelStatusPartialError = "partial_error"
	LabelStatusError        = "error"
	LabelStatusUnavailable  = "unavailable"
	LabelStatusNone         = "none"
)

// SessionMetadata summarizes an analysis session for API responses.
type SessionMetadata struct {
	SessionID      string    `json:"session_id"`
	Topic          string    `json:"topic"`
	AnalyzedAt     time.Time `json:"analyzed_at"`
	ParagraphCount int       `json:"paragraph_count"`
	AvgComplexity  *float64  `json:"avg_complexity"`
	AvgRelevance   *float64  `json:"avg_relevance"`
	LabelStatus    string    `json:"label_status"`
}

// AnalysisResult is the merged per-paragraph view returned by the API.
type AnalysisResult struct {
	Metadata   SessionMetadata `json:"metadata"`
	Paragraphs []Paragraph     `json:"paragraphs"`
}

// AnalyzeRequest starts or replaces a full document analysis.
type AnalyzeRequest struct {
	Text      string `json:"text"`
	Topic     string `json:"topic"`
	SessionID string `json:"session_id,omitempty"`
}

// ParagraphTextRequest carries candidate or committed paragraph text for
// preview and commit operations.
type ParagraphTextRequest struct {
	Text string `json:"text"`
}

// MergeRequest merges two paragraphs of a session.
type MergeRequest struct {
	First  int `json:"first"`
	Second int `json:"second"`
}

// SplitRequest splits one paragraph at a rune position.
type SplitRequest struct {
	Position int `json:"position"`
}

// ReorderRequest rearranges the session's paragraphs. Order must be a
// permutation of the current paragraph ids.
type ReorderRequest struct {
	Order []int `json:"order"`
}

// TopicRequest changes the session topic.
type TopicRequest struct {
	Topic string `json:"topic"`
}
