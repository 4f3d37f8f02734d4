package utils

import "testing"

func TestSplitParagraphs(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{"empty", "", nil},
		{"single", "Cats are mammals.", []string{"Cats are mammals."}},
		{"two", "Cats are mammals.\n\nDogs bark loudly.", []string{"Cats are mammals.", "Dogs bark loudly."}},
		{"crlf", "First.\r\n\r\nSecond.", []string{"First.", "Second."}},
		{"blank runs", "A\n\n\n\nB", []string{"A", "B"}},
		{"whitespace only", "  \n\n\t\n\n", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SplitParagraphs(tt.text)
			if len(got) != len(tt.want) {
				t.Fatalf("got %d paragraphs %v, want %d", len(got), got, len(tt.want))
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("paragraph %d: got %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestTruncate(t *testing.T) {
	if got := Truncate("hello", 3); got != "hel..." {
		t.Errorf("got %q", got)
	}
	if got := Truncate("hi", 10); got != "hi" {
		t.Errorf("got %q", got)
	}
	if got := Truncate("hi", 0); got != "hi" {
		t.Errorf("got %q", got)
	}
}
