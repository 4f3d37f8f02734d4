package readability

import "testing"

func TestSplitSentences(t *testing.T) {
	tests := []struct {
		text string
		want int
	}{
		{"", 0},
		{"One sentence.", 1},
		{"First. Second! Third?", 3},
		{"Trailing ellipsis... then more.", 2},
		{"no terminator", 1},
	}
	for _, tt := range tests {
		got := SplitSentences(tt.text)
		if len(got) != tt.want {
			t.Errorf("SplitSentences(%q): got %d sentences %v, want %d", tt.text, len(got), got, tt.want)
		}
	}
}

func TestCountSyllables(t *testing.T) {
	tests := []struct {
		word string
		want int
	}{
		{"cat", 1},
		{"loudly", 2},
		{"mammals", 2},
		{"independent", 4},
		{"xyz", 1}, // y counts as a vowel
		{"hmm", 1}, // no vowels still counts one
	}
	for _, tt := range tests {
		if got := CountSyllables(tt.word); got != tt.want {
			t.Errorf("CountSyllables(%q) = %d, want %d", tt.word, got, tt.want)
		}
	}
}

func TestLIX(t *testing.T) {
	if got := LIX(""); got != nil {
		t.Errorf("empty text: got %v, want nil", *got)
	}
	got := LIX("Cats are mammals. Dogs bark loudly.")
	if got == nil {
		t.Fatal("got nil for valid text")
	}
	// 6 words, 2 sentences, 1 long word (mammals): 3 + 100/6 = 19.667
	if *got != 19.667 {
		t.Errorf("got %v, want 19.667", *got)
	}
}

func TestSMOGValidity(t *testing.T) {
	_, valid := SMOG("One sentence only.")
	if valid {
		t.Error("one sentence should not be a valid SMOG sample")
	}
	v, valid := SMOG("First sentence here. Second sentence here. Third sentence here.")
	if !valid {
		t.Error("three sentences should be valid")
	}
	if v == nil {
		t.Fatal("expected a SMOG value")
	}
	if *v < 3 {
		t.Errorf("SMOG floor is 3.1291, got %v", *v)
	}
}

func TestNormalizeClipping(t *testing.T) {
	if got := Normalize(-5, 0, 80); got != 0 {
		t.Errorf("below scale: got %v", got)
	}
	if got := Normalize(200, 0, 80); got != 1 {
		t.Errorf("above scale: got %v", got)
	}
	if got := Normalize(40, 0, 80); got != 0.5 {
		t.Errorf("midpoint: got %v", got)
	}
	if got := Normalize(7, 7, 7); got != 0 {
		t.Errorf("degenerate scale: got %v", got)
	}
}

func TestComplexity(t *testing.T) {
	if got := Complexity(nil, nil, false); got != nil {
		t.Errorf("no inputs: got %v, want nil", *got)
	}

	lix := 40.0
	if got := Complexity(&lix, nil, false); got == nil || *got != 0.5 {
		t.Errorf("lix only: got %v, want 0.5", got)
	}

	// Invalid SMOG must not participate.
	smog := 20.0
	withInvalid := Complexity(&lix, &smog, false)
	if withInvalid == nil || *withInvalid != 0.5 {
		t.Errorf("invalid smog leaked into complexity: got %v", withInvalid)
	}

	withValid := Complexity(&lix, &smog, true)
	if withValid == nil || *withValid != 0.75 {
		t.Errorf("lix+smog: got %v, want 0.75", withValid)
	}
}

func TestAnalyzePopulatesAllFields(t *testing.T) {
	s := Analyze("First sentence here. Second sentence here. Third sentence here.")
	if s.LIX == nil || s.SMOG == nil || s.Complexity == nil {
		t.Fatalf("expected all metrics non-nil: %+v", s)
	}
	if *s.Complexity < 0 || *s.Complexity > 1 {
		t.Errorf("complexity out of range: %v", *s.Complexity)
	}
}

func TestAnalyzeEmpty(t *testing.T) {
	s := Analyze("")
	if s.LIX != nil || s.SMOG != nil || s.Complexity != nil {
		t.Errorf("empty text should produce nil metrics: %+v", s)
	}
}
