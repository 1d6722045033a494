// Package textstats scores a body by lexical diversity and line-length volatility.
// Neither value is a language-model perplexity; they are cheap readability proxies.
package textstats

import (
	"math"
	"strings"
	"unicode/utf8"

	"github.com/mikey/llm-phish-detector/internal/core"
)

// Scorer implements core.TextScorer
type Scorer struct{}

// NewScorer creates a new text statistics scorer
func NewScorer() *Scorer {
	return &Scorer{}
}

// Score computes the perplexity-like and burstiness scores of text
func (s *Scorer) Score(text string) core.TextScore {
	if strings.TrimSpace(text) == "" {
		return core.TextScore{}
	}
	return core.TextScore{
		PerplexityLike: PerplexityLike(text),
		Burstiness:     Burstiness(text),
	}
}

// PerplexityLike is the share of repeated words, scaled to [0,100]
func PerplexityLike(text string) float64 {
	words := strings.Fields(text)
	if len(words) == 0 {
		return 0
	}
	unique := make(map[string]struct{}, len(words))
	for _, w := range words {
		unique[w] = struct{}{}
	}
	ratio := float64(len(unique)) / float64(len(words))
	return core.ClampFloat((1-ratio)*100, 0, 100)
}

// Burstiness is the population standard deviation of non-blank line lengths, capped at 100
func Burstiness(text string) float64 {
	var lengths []float64
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		lengths = append(lengths, float64(utf8.RuneCountInString(line)))
	}
	if len(lengths) == 0 {
		return 0
	}

	var sum float64
	for _, l := range lengths {
		sum += l
	}
	mean := sum / float64(len(lengths))

	var variance float64
	for _, l := range lengths {
		variance += (l - mean) * (l - mean)
	}
	variance /= float64(len(lengths))

	return core.ClampFloat(math.Sqrt(variance), 0, 100)
}
