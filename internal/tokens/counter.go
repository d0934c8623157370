// Package tokens approximates token counts for stored messages and for
// the input-length gate. Counts are advisory; exact tokenization lives
// with the model provider.
package tokens

import (
	"strings"
	"unicode/utf8"
)

const DefaultLimit = 5500

type Counter interface {
	Count(text string) int
	WithinLimit(text string) bool
}

type Estimator struct {
	limit int
}

func NewEstimator(limit int) *Estimator {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Estimator{limit: limit}
}

// Count estimates tokens as the larger of word count and runes/4, which
// tracks common BPE tokenizers closely enough for a limit gate.
func (e *Estimator) Count(text string) int {
	if text == "" {
		return 0
	}
	words := len(strings.Fields(text))
	chars := utf8.RuneCountInString(text) / 4
	if chars > words {
		return chars
	}
	return words
}

func (e *Estimator) WithinLimit(text string) bool {
	return e.Count(text) <= e.limit
}

func (e *Estimator) Limit() int { return e.limit }
