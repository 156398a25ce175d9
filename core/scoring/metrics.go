package scoring

import (
	"math"
	"strings"
	"unicode/utf8"
)

// FallbackElapsedSeconds is used as elapsed time when it cannot be estimated from the WPM.
const FallbackElapsedSeconds = 60.0

// Mistake is a word level divergence between the reference and the typed text.
type Mistake struct {
	Expected string `json:"expected"`
	Actual   string `json:"actual"`
	Position int    `json:"position"`
}

func percent(part, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(100 * float64(part) / float64(total)))
}

// CharAccuracy is the percentage of correct statuses among the reached (non pending) ones.
func CharAccuracy(statuses []CharStatus) int {
	correct, wrong, _ := Count(statuses)
	return percent(correct, correct+wrong)
}

// WordAccuracy compares the whitespace separated words of both texts position by position.
func WordAccuracy(correct, typed string) int {
	correctWords, typedWords := strings.Fields(correct), strings.Fields(typed)
	if len(typedWords) == 0 {
		return 0
	}
	var matches int
	for i, w := range typedWords {
		if i < len(correctWords) && w == correctWords[i] {
			matches++
		}
	}
	return percent(matches, max(len(correctWords), len(typedWords)))
}

// Progress is the share of the reference already covered by the typed text, capped at 100.
func Progress(original, typed string) int {
	n := utf8.RuneCountInString(original)
	if n == 0 {
		return 0
	}
	return percent(min(utf8.RuneCountInString(typed), n), n)
}

// WordCount returns the number of whitespace separated words in s.
func WordCount(s string) int {
	return len(strings.Fields(s))
}

// WPM returns the typing speed in words per minute, 0 when it cannot be computed.
func WPM(typed string, elapsedSeconds float64) int {
	if elapsedSeconds <= 0 {
		return 0
	}
	wpm := float64(WordCount(typed)) / (elapsedSeconds / 60)
	if math.IsNaN(wpm) || math.IsInf(wpm, 0) {
		return 0
	}
	return int(math.Round(wpm))
}

// WordMistakes lists every typed word that differs from the reference word at the same position.
func WordMistakes(correct, typed string) []Mistake {
	correctWords, typedWords := strings.Fields(correct), strings.Fields(typed)
	mistakes := make([]Mistake, 0)
	for i, actual := range typedWords {
		var expected string
		if i < len(correctWords) {
			expected = correctWords[i]
		}
		if actual != expected {
			mistakes = append(mistakes, Mistake{Expected: expected, Actual: actual, Position: i})
		}
	}
	return mistakes
}

// EstimateElapsed returns the seconds needed to type wordCount words at wpm.
func EstimateElapsed(wordCount, wpm int) float64 {
	if wpm <= 0 {
		return FallbackElapsedSeconds
	}
	return float64(wordCount) / float64(wpm) * 60
}
