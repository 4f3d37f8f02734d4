// Package models defines the shared data types for paragraph analysis.
package models

import "time"

// Label method values recorded in Metrics.LabelMethod.
const (
	MethodStream = "stream"
	MethodBatch  = "batch"
	MethodFailed = "failed"
)

// Metrics holds the per-paragraph results of the three analysis dimensions.
// A nil pointer means the dimension has not produced a value (not run, failed,
// or invalidated); dimensions never block each other.
type Metrics struct {
	LIX         *float64 `json:"lix"`
	SMOG        *float64 `json:"smog"`
	Complexity  *float64 `json:"complexity"`
	Relevance   *float64 `json:"relevance"`
	Label       *string  `json:"label"`
	LabelMethod string   `json:"label_method,omitempty"`
	LabelError  string   `json:"label_error,omitempty"`
}

// ClearLabel drops the discourse-label dimension, used when a structural edit
// or topic change invalidates classification context.
func (m *Metrics) ClearLabel() {
	m.Label = nil
	m.LabelMethod = ""
	m.LabelError = ""
}

// ClearRelevance drops the topical-relevance dimension.
func (m *Metrics) ClearRelevance() {
	m.Relevance = nil
}

// Paragraph is one unit of the analyzed document. ID is positional and is
// re-assigned whenever the paragraph list is restructured.
type Paragraph struct {
	ID      int     `json:"id"`
	Text    string  `json:"text"`
	Metrics Metrics `json:"metrics"`
}

// Snapshot is the persisted state of an analysis session. It is the
// structurally lossless form written to the session store (field-tagged,
// not positional).
type Snapshot struct {
	SessionID  string      `json:"session_id"`
	Topic      string      `json:"topic"`
	Paragraphs []Paragraph `json:"paragraphs"`
	UpdatedAt  time.Time   `json:"updated_at"`
}

// Clone returns a deep copy of the snapshot so callers can hand it out
// without exposing the orchestrator's working state.
func (s *Snapshot) Clone() *Snapshot {
	if s == nil {
		return nil
	}
	out := &Snapshot{
		SessionID: s.SessionID,
		Topic:     s.Topic,
		UpdatedAt: s.UpdatedAt,
	}
	out.Paragraphs = make([]Paragraph, len(s.Paragraphs))
	for i, p := range s.Paragraphs {
		out.Paragraphs[i] = p.clone()
	}
	return out
}

func (p Paragraph) clone() Paragraph {
	c := p
	c.Metrics.LIX = cloneFloat(p.Metrics.LIX)
	c.Metrics.SMOG = cloneFloat(p.Metrics.SMOG)
	c.Metrics.Complexity = cloneFloat(p.Metrics.Complexity)
	c.Metrics.Relevance = cloneFloat(p.Metrics.Relevance)
	if p.Metrics.Label != nil {
		label := *p.Metrics.Label
		c.Metrics.Label = &label
	}
	return c
}

func cloneFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	f := *v
	return &f
}
