package orchestrator

import (
	"github.com/hyperjump/kaiseki/internal/classify"
	"github.com/hyperjump/kaiseki/internal/models"
	"github.com/hyperjump/kaiseki/pkg/utils"
)

// buildResult assembles the merged API view: the paragraph table plus
// session metadata with dimension averages and an aggregate label status.
func buildResult(snapshot *models.Snapshot) *models.AnalysisResult {
	return &models.AnalysisResult{
		Metadata: models.SessionMetadata{
			SessionID:      snapshot.SessionID,
			Topic:          snapshot.Topic,
			AnalyzedAt:     snapshot.UpdatedAt,
			ParagraphCount: len(snapshot.Paragraphs),
			AvgComplexity:  average(snapshot.Paragraphs, func(m models.Metrics) *float64 { return m.Complexity }),
			AvgRelevance:   average(snapshot.Paragraphs, func(m models.Metrics) *float64 { return m.Relevance }),
			LabelStatus:    labelStatus(snapshot.Paragraphs),
		},
		Paragraphs: snapshot.Clone().Paragraphs,
	}
}

// average takes the mean of the non-null values of one metric, or nil when
// no paragraph has it.
func average(paragraphs []models.Paragraph, pick func(models.Metrics) *float64) *float64 {
	var sum float64
	var n int
	for _, p := range paragraphs {
		if v := pick(p.Metrics); v != nil {
			sum += *v
			n++
		}
	}
	if n == 0 {
		return nil
	}
	avg := utils.Round3(sum / float64(n))
	return &avg
}

// labelStatus summarizes the classification dimension across the session:
// complete when every paragraph has a vocabulary label, none when no
// paragraph was labeled at all, unavailable when the gateway was down for
// all of them, error when every attempt failed, partial_error otherwise.
func labelStatus(paragraphs []models.Paragraph) string {
	var labeled, ok, unavailable, failed int
	for _, p := range paragraphs {
		if p.Metrics.Label == nil {
			continue
		}
		labeled++
		label := *p.Metrics.Label
		switch {
		case !classify.IsSentinel(label):
			ok++
		case label == classify.SentinelUnavailableAPI:
			unavailable++
		default:
			failed++
		}
	}
	switch {
	case labeled == 0:
		return models.LabelStatusNone
	case ok == labeled:
		return models.LabelStatusComplete
	case unavailable == labeled:
		return models.LabelStatusUnavailable
	case ok == 0:
		return models.LabelStatusError
	}
	return models.LabelStatusPartialError
}
