// Package classify builds classification prompts for discourse-role
// analysis, parses model responses, and plans how paragraph batches are
// split into token-bounded groups.
package classify

import "strings"

// Discourse-role vocabulary. The first five roles are interpreted relative
// to the document topic; the rest are topic-independent.
const (
	LabelTopicDevelopment = "topic development"
	LabelExample          = "example"
	LabelDigression       = "digression"
	LabelKeyThesis        = "key thesis"
	LabelNoise            = "noise"
	LabelMetaphor         = "metaphor or analogy"
	LabelHumor            = "humor or irony"
	LabelTransition       = "transition"
	LabelTopicShift       = "topic shift"
	LabelContrast         = "contrast"
)

// Sentinel labels recorded in place of a role when classification could not
// produce one. They are never sent to the model.
const (
	SentinelParsingError   = "parsing_error"
	SentinelTimeout        = "error_timeout"
	SentinelAPICall        = "error_api_call"
	SentinelUnavailableAPI = "unavailable_api"
)

// Labels lists the full vocabulary in prompt order.
var Labels = []string{
	LabelTopicDevelopment,
	LabelExample,
	LabelDigression,
	LabelKeyThesis,
	LabelNoise,
	LabelMetaphor,
	LabelHumor,
	LabelTransition,
	LabelTopicShift,
	LabelContrast,
}

// TopicLabels are the roles whose prompt descriptions embed the topic.
var TopicLabels = []string{
	LabelTopicDevelopment,
	LabelExample,
	LabelDigression,
	LabelKeyThesis,
	LabelNoise,
}

// IsSentinel reports whether label is one of the sentinel values.
func IsSentinel(label string) bool {
	switch label {
	case SentinelParsingError, SentinelTimeout, SentinelAPICall, SentinelUnavailableAPI:
		return true
	}
	return false
}

// canonical maps a lowercased label to its vocabulary spelling.
var canonical = func() map[string]string {
	m := make(map[string]string, len(Labels))
	for _, l := range Labels {
		m[strings.ToLower(l)] = l
	}
	return m
}()

// MatchLabel resolves a model-produced label candidate to its canonical
// vocabulary form. Matching is exact after trimming and lowercasing; labels
// outside the vocabulary are rejected.
func MatchLabel(candidate string) (string, bool) {
	l, ok := canonical[strings.ToLower(strings.TrimSpace(candidate))]
	return l, ok
}

// NormalizeLabels resolves each candidate against the vocabulary, drops
// duplicates and unknowns, caps the result at two roles, and joins them
// with " / ". Returns "" when nothing valid remains.
func NormalizeLabels(candidates []string) string {
	var kept []string
	seen := make(map[string]bool, 2)
	for _, c := range candidates {
		label, ok := MatchLabel(c)
		if !ok || seen[label] {
			continue
		}
		seen[label] = true
		kept = append(kept, label)
		if len(kept) == 2 {
			break
		}
	}
	return strings.Join(kept, " / ")
}
