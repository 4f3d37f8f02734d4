package classify

import (
	"strings"
	"testing"
)

func TestNormalizeLabels(t *testing.T) {
	tests := []struct {
		name       string
		candidates []string
		want       string
	}{
		{"single", []string{"noise"}, "noise"},
		{"case insensitive", []string{"Key Thesis"}, "key thesis"},
		{"two labels", []string{"example", "digression"}, "example / digression"},
		{"dedupe", []string{"noise", "noise"}, "noise"},
		{"cap at two", []string{"noise", "example", "contrast"}, "noise / example"},
		{"unknown dropped", []string{"banana", "transition"}, "transition"},
		{"all unknown", []string{"banana", "apple"}, ""},
		{"whitespace", []string{"  topic shift  "}, "topic shift"},
		{"empty", nil, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeLabels(tt.candidates); got != tt.want {
				t.Errorf("NormalizeLabels(%v) = %q, want %q", tt.candidates, got, tt.want)
			}
		})
	}
}

func TestMatchLabelRejectsSubstrings(t *testing.T) {
	if _, ok := MatchLabel("topic"); ok {
		t.Error("partial label must not match")
	}
	if _, ok := MatchLabel("This is an example"); ok {
		t.Error("label embedded in a sentence must not match")
	}
}

func TestParseGroupResponse(t *testing.T) {
	response := "1. topic development\n2. example / digression\n3. noise"
	got := ParseGroupResponse(response, 3)
	want := []string{"topic development", "example / digression", "noise"}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("paragraph %d: got %q, want %q", i+1, got[i], want[i])
		}
	}
}

func TestParseGroupResponseOutOfOrder(t *testing.T) {
	got := ParseGroupResponse("2. noise\n1. contrast", 2)
	if got[0] != "contrast" || got[1] != "noise" {
		t.Errorf("got %v", got)
	}
}

func TestParseGroupResponseMissingAndInvalid(t *testing.T) {
	response := "1. topic development\n3. not a real role\nsome chatter"
	got := ParseGroupResponse(response, 3)
	if got[0] != "topic development" {
		t.Errorf("paragraph 1: got %q", got[0])
	}
	if got[1] != SentinelParsingError {
		t.Errorf("missing paragraph 2 should be parsing_error, got %q", got[1])
	}
	if got[2] != SentinelParsingError {
		t.Errorf("invalid role should be parsing_error, got %q", got[2])
	}
}

func TestParseGroupResponseOutOfRangeNumber(t *testing.T) {
	got := ParseGroupResponse("1. noise\n7. example", 2)
	if got[1] != SentinelParsingError {
		t.Errorf("out-of-range line must not fill paragraph 2, got %q", got[1])
	}
}

func TestParseChunkResponse(t *testing.T) {
	tests := []struct {
		response string
		want     string
	}{
		{"noise", "noise"},
		{"Key Thesis", "key thesis"},
		{"example / humor or irony", "example / humor or irony"},
		{"1. transition", "transition"},
		{"The paragraph develops the topic.", SentinelParsingError},
		{"", SentinelParsingError},
	}
	for _, tt := range tests {
		if got := ParseChunkResponse(tt.response); got != tt.want {
			t.Errorf("ParseChunkResponse(%q) = %q, want %q", tt.response, got, tt.want)
		}
	}
}

func TestBuildPromptContainsAllParts(t *testing.T) {
	prompt := BuildPrompt([]string{"First paragraph.", "Second paragraph."}, "city gardening")
	for _, label := range Labels {
		if !strings.Contains(prompt, label) {
			t.Errorf("prompt missing role %q", label)
		}
	}
	if !strings.Contains(prompt, "'city gardening'") {
		t.Error("prompt missing topic")
	}
	if !strings.Contains(prompt, "1. First paragraph.") || !strings.Contains(prompt, "2. Second paragraph.") {
		t.Error("prompt missing numbered paragraphs")
	}
	for _, s := range []string{SentinelParsingError, SentinelTimeout, SentinelAPICall, SentinelUnavailableAPI} {
		if strings.Contains(prompt, s) {
			t.Errorf("sentinel %q leaked into prompt", s)
		}
	}
}

func TestBuildChunkPrompt(t *testing.T) {
	prompt := BuildChunkPrompt("A lone paragraph.", "sailing")
	if !strings.Contains(prompt, "A lone paragraph.") {
		t.Error("prompt missing paragraph text")
	}
	if !strings.Contains(prompt, "'sailing'") {
		t.Error("prompt missing topic")
	}
}

func TestPlanCoversAllIndicesInOrder(t *testing.T) {
	texts := make([]string, 25)
	groups := Plan(texts, PlannerConfig{})
	var flat []int
	for _, g := range groups {
		if len(g.Indices) == 0 {
			t.Fatal("empty group")
		}
		flat = append(flat, g.Indices...)
	}
	if len(flat) != len(texts) {
		t.Fatalf("planned %d indices, want %d", len(flat), len(texts))
	}
	for i, idx := range flat {
		if idx != i {
			t.Fatalf("index %d out of order at position %d", idx, i)
		}
	}
}

func TestPlanRespectsBudget(t *testing.T) {
	cfg := PlannerConfig{
		TokenBudget:        1000,
		PromptOverhead:     300,
		TokensPerParagraph: 100,
		TokensPerResponse:  0,
		MaxGroupSize:       50,
	}
	groups := Plan(make([]string, 20), cfg)
	for _, g := range groups {
		if len(g.Indices) > 7 {
			t.Errorf("group of %d exceeds (1000-300)/100 paragraphs", len(g.Indices))
		}
		if g.EstimatedTokens > cfg.TokenBudget {
			t.Errorf("estimated %d tokens over budget", g.EstimatedTokens)
		}
	}
}

func TestPlanTinyBudgetStillProgresses(t *testing.T) {
	cfg := PlannerConfig{TokenBudget: 100, PromptOverhead: 500, TokensPerParagraph: 200}
	groups := Plan(make([]string, 3), cfg)
	if len(groups) != 3 {
		t.Fatalf("want one group per paragraph, got %d groups", len(groups))
	}
}

func TestPlanEmpty(t *testing.T) {
	if got := Plan(nil, PlannerConfig{}); got != nil {
		t.Errorf("Plan(nil) = %v, want nil", got)
	}
}

func TestIsSentinel(t *testing.T) {
	for _, s := range []string{SentinelParsingError, SentinelTimeout, SentinelAPICall, SentinelUnavailableAPI} {
		if !IsSentinel(s) {
			t.Errorf("IsSentinel(%q) = false", s)
		}
	}
	if IsSentinel("noise") {
		t.Error("vocabulary label flagged as sentinel")
	}
}
