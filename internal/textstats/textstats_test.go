package textstats

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mikey/llm-phish-detector/internal/core"
)

func TestScoreEmptyText(t *testing.T) {
	s := NewScorer()
	assert.Equal(t, core.TextScore{}, s.Score(""))
	assert.Equal(t, core.TextScore{}, s.Score(" \n\t\n"))
}

func TestPerplexityLike(t *testing.T) {
	assert.Equal(t, 0.0, PerplexityLike("every word here is different"))
	assert.InDelta(t, 50.0, PerplexityLike("spam spam eggs eggs"), 1e-9)
	assert.InDelta(t, 75.0, PerplexityLike("a a a a"), 1e-9)
}

func TestBurstiness(t *testing.T) {
	assert.Equal(t, 0.0, Burstiness("same\nsame\nsame"))

	// lengths 2 and 6: mean 4, population std-dev 2
	assert.InDelta(t, 2.0, Burstiness("ab\n\n   \nabcdef"), 1e-9)

	// rune counts, not bytes
	assert.InDelta(t, 1.0, Burstiness("紧急\n紧急通知"), 1e-9)
}

func TestBurstinessIsCapped(t *testing.T) {
	text := "a\n" + strings.Repeat("x", 500)
	assert.Equal(t, 100.0, Burstiness(text))
}

func TestScoreIsPure(t *testing.T) {
	s := NewScorer()
	text := "Dear user,\nyour account is locked.\nClick here to verify your account now."
	first := s.Score(text)
	second := s.Score(text)
	assert.Equal(t, first, second)
	assert.GreaterOrEqual(t, first.PerplexityLike, 0.0)
	assert.LessOrEqual(t, first.PerplexityLike, 100.0)
}
