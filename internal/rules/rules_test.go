package rules

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mikey/llm-phish-detector/internal/core"
)

func TestAttachmentScore(t *testing.T) {
	tests := []struct {
		name        string
		attachments []string
		want        int
	}{
		{"none", nil, 0},
		{"mixed buckets", []string{"x.exe", "y.docm", "z.zip", "w.txt"}, 85},
		{"uppercase extension", []string{"INVOICE.EXE"}, 40},
		{"no dot", []string{"README"}, 5},
		{"last dot wins", []string{"report.pdf.js"}, 40},
		{"capped", []string{"a.exe", "b.exe", "c.exe"}, 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, AttachmentScore(tt.attachments))
		})
	}
}

func TestURLScore(t *testing.T) {
	assert.Equal(t, 0, URLScore(nil))
	assert.Equal(t, 8, URLScore([]string{"http://a.example"}))
	assert.Equal(t, 8, URLScore([]string{"http://a.example", "http://a.example"}), "duplicates count once")

	urls := make([]string, 13)
	for i := range urls {
		urls[i] = fmt.Sprintf("https://host%d.example/", i)
	}
	assert.Equal(t, 100, URLScore(urls))
}

func TestKeywordScore(t *testing.T) {
	assert.Equal(t, 0, KeywordScore(""))
	assert.Equal(t, 0, KeywordScore("lunch on friday?"))
	assert.Equal(t, 20, KeywordScore("URGENT: please VERIFY your details"))
	assert.Equal(t, 10, KeywordScore("verify verify verify"), "a phrase counts once")
	assert.Equal(t, 30, KeywordScore("紧急通知：请点击链接完成验证"))
}

func TestScorerIsPure(t *testing.T) {
	s := NewScorer()
	email := &core.ParsedEmail{
		Text:        "Urgent: your account locked, click here to confirm your password",
		URLs:        []string{"http://paypa1.com/login"},
		Attachments: []string{"invoice.zip"},
	}

	first := s.Score(email)
	second := s.Score(email)

	assert.Equal(t, first, second)
	assert.Equal(t, core.RuleScore{Keyword: 50, URL: 8, Attachment: 15}, first)
}

func TestScorerNilEmail(t *testing.T) {
	assert.Equal(t, core.RuleScore{}, NewScorer().Score(nil))
}
