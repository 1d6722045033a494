package utils

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/jaytaylor/html2text"
	"go.uber.org/zap"
)

var markupPattern = regexp.MustCompile(`(?i)<(?:[a-z][a-z0-9]*|/[a-z][a-z0-9]*|!--)[^>]*>`)

// TextProcessor prepares email text before it leaves the process
type TextProcessor struct {
	logger *zap.Logger
}

// NewTextProcessor creates a new TextProcessor
func NewTextProcessor(logger *zap.Logger) *TextProcessor {
	return &TextProcessor{
		logger: logger,
	}
}

// StripHTML converts HTML to plain text. Text without markup is returned as is.
func (tp *TextProcessor) StripHTML(text string) string {
	if !markupPattern.MatchString(text) {
		return text
	}

	plain, err := html2text.FromString(text, html2text.Options{OmitLinks: true})
	if err != nil {
		tp.logger.Debug("HTML conversion failed, removing tags instead", zap.Error(err))
		return markupPattern.ReplaceAllString(text, "")
	}
	return plain
}

// TruncateText cuts text to at most maxChars runes. A non-positive maxChars disables the limit.
func (tp *TextProcessor) TruncateText(text string, maxChars int) string {
	if maxChars <= 0 || utf8.RuneCountInString(text) <= maxChars {
		return text
	}

	runes := []rune(text)
	truncated := string(runes[:maxChars])

	tp.logger.Debug("Text truncated",
		zap.Int("original_chars", len(runes)),
		zap.Int("max_chars", maxChars))

	return truncated
}

// SanitizeUTF8 drops invalid UTF-8 sequences
func (tp *TextProcessor) SanitizeUTF8(text string) string {
	if utf8.ValidString(text) {
		return text
	}

	sanitized := strings.ToValidUTF8(text, "")
	tp.logger.Debug("Text sanitized",
		zap.Int("original_size", len(text)),
		zap.Int("sanitized_size", len(sanitized)))

	return sanitized
}

// ProcessText strips markup, sanitizes and truncates in one operation
func (tp *TextProcessor) ProcessText(text string, maxChars int) string {
	return tp.TruncateText(tp.SanitizeUTF8(tp.StripHTML(text)), maxChars)
}
