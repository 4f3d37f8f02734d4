// Package readability computes per-paragraph readability metrics.
// All functions are pure text-to-float scorers; a nil result means the
// metric could not be computed for the input.
package readability

import (
	"math"
	"regexp"
	"strings"
	"unicode"

	"github.com/hyperjump/kaiseki/pkg/utils"
)

// Normalization scales used to fold LIX and SMOG into one complexity score.
var (
	scaleLIX  = [2]float64{0, 80}
	scaleSMOG = [2]float64{3, 20}
)

const (
	longWordLetters    = 6 // LIX: words longer than this count as long
	polysyllableCount  = 3 // SMOG: words with at least this many syllables
	minValidSentences  = 3 // SMOG is marked invalid below this
	smogSentenceFactor = 30.0
)

var wordPattern = regexp.MustCompile(`\p{L}{2,}`)

// Scores holds the readability dimension for one paragraph.
type Scores struct {
	LIX        *float64
	SMOG       *float64
	Complexity *float64
}

// Analyze computes LIX, SMOG, and the normalized complexity for text.
// Metrics that cannot be computed stay nil; complexity is the mean of the
// normalized metrics that are available.
func Analyze(text string) Scores {
	var s Scores
	s.LIX = LIX(text)
	smog, smogValid := SMOG(text)
	s.SMOG = smog
	s.Complexity = Complexity(s.LIX, smog, smogValid)
	return s
}

// SplitSentences splits text into sentences on terminal punctuation runs.
func SplitSentences(text string) []string {
	var sentences []string
	var b strings.Builder
	flush := func() {
		s := strings.TrimSpace(b.String())
		if s != "" {
			sentences = append(sentences, s)
		}
		b.Reset()
	}
	inTerminator := false
	for _, r := range text {
		switch r {
		case '.', '!', '?':
			b.WriteRune(r)
			inTerminator = true
		default:
			if inTerminator {
				flush()
				inTerminator = false
			}
			b.WriteRune(r)
		}
	}
	flush()
	return sentences
}

// CountSyllables counts syllables in a word as the number of vowel groups.
// Words without vowels count as one syllable (abbreviations and similar).
func CountSyllables(word string) int {
	count := 0
	prevVowel := false
	for _, r := range strings.ToLower(word) {
		v := isVowel(r)
		if v && !prevVowel {
			count++
		}
		prevVowel = v
	}
	if count == 0 {
		return 1
	}
	return count
}

func isVowel(r rune) bool {
	switch r {
	case 'a', 'e', 'i', 'o', 'u', 'y',
		'а', 'е', 'ё', 'и', 'о', 'у', 'ы', 'э', 'ю', 'я':
		return true
	}
	return unicode.Is(unicode.Latin, r) && strings.ContainsRune("àáâäèéêëìíîïòóôöùúûü", r)
}

// LIX computes the LIX readability index:
// words/sentences + 100 * longWords/words. Returns nil when the text has no
// sentences or no words.
func LIX(text string) *float64 {
	if text == "" {
		return nil
	}
	sentences := SplitSentences(text)
	if len(sentences) == 0 {
		return nil
	}
	words := wordPattern.FindAllString(text, -1)
	if len(words) == 0 {
		return nil
	}
	longWords := 0
	for _, w := range words {
		if len([]rune(w)) > longWordLetters {
			longWords++
		}
	}
	lix := float64(len(words))/float64(len(sentences)) + 100*float64(longWords)/float64(len(words))
	v := utils.Round3(lix)
	return &v
}

// SMOG computes the SMOG grade for text, adapted for short passages by
// scaling the polysyllable count to a 30-sentence window. The second return
// reports whether the text had enough sentences for the value to be
// considered valid.
func SMOG(text string) (*float64, bool) {
	if text == "" {
		return nil, false
	}
	sentences := SplitSentences(text)
	numSentences := len(sentences)
	valid := numSentences >= minValidSentences
	if numSentences == 0 {
		return nil, false
	}
	words := wordPattern.FindAllString(text, -1)
	if len(words) == 0 {
		return nil, valid
	}
	polysyllables := 0
	for _, w := range words {
		if CountSyllables(w) >= polysyllableCount {
			polysyllables++
		}
	}
	raw := float64(polysyllables) * (smogSentenceFactor / float64(numSentences))
	smog := 1.043*math.Sqrt(raw) + 3.1291
	v := utils.Round3(smog)
	return &v, valid
}

// Normalize maps value onto [0, 1] for the given scale, clipping out-of-range
// inputs.
func Normalize(value, min, max float64) float64 {
	clipped := math.Min(math.Max(value, min), max)
	if max == min {
		return 0
	}
	return utils.Round3((clipped - min) / (max - min))
}

// Complexity folds LIX and SMOG into one [0, 1] score as the mean of their
// normalized values. SMOG participates only when it was valid. Returns nil
// when neither metric is available.
func Complexity(lix, smog *float64, smogValid bool) *float64 {
	var sum float64
	var n int
	if lix != nil {
		sum += Normalize(*lix, scaleLIX[0], scaleLIX[1])
		n++
	}
	if smog != nil && smogValid {
		sum += Normalize(*smog, scaleSMOG[0], scaleSMOG[1])
		n++
	}
	if n == 0 {
		return nil
	}
	v := utils.Round3(sum / float64(n))
	return &v
}
