// Package parser turns email files into core.ParsedEmail values.
package parser

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/jhillyerd/enmime"
	"go.uber.org/zap"

	"github.com/mikey/llm-phish-detector/internal/core"
	"github.com/mikey/llm-phish-detector/internal/utils"
)

// MaxInputBytes bounds how much of one message is read
const MaxInputBytes = 25 << 20

// Headers are the header fields copied into EmailMeta when present
var Headers = []string{
	"From", "To", "Subject", "Message-ID", "Date", "Return-Path",
	"DKIM-Signature", "Received-SPF", "Authentication-Results",
}

var (
	urlPattern  = regexp.MustCompile(`(?i)https?://[\p{L}\p{N}_\-.:/?#%&=+]+`)
	hrefPattern = regexp.MustCompile(`(?i)href\s*=\s*["']?(https?://[^"'\s>]+)`)
)

// Parser extracts text, links, attachment names and headers from messages
type Parser struct {
	text   *utils.TextProcessor
	logger *zap.Logger
}

// NewParser creates a new parser
func NewParser(text *utils.TextProcessor, logger *zap.Logger) *Parser {
	return &Parser{
		text:   text,
		logger: logger,
	}
}

// ParseFile parses the file at path
func (p *Parser) ParseFile(path string) (*core.ParsedEmail, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open email file: %w", err)
	}
	defer f.Close()

	return p.Parse(f, filepath.Base(path))
}

// Parse reads one message. Files named *.eml are parsed as MIME; anything
// else is treated as plain text. A message that cannot be parsed as MIME
// degrades to plain text rather than failing.
func (p *Parser) Parse(r io.Reader, name string) (*core.ParsedEmail, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxInputBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read email: %w", err)
	}

	if strings.EqualFold(filepath.Ext(name), ".eml") {
		email, err := p.parseMIME(data)
		if err == nil {
			return email, nil
		}
		p.logger.Warn("MIME parsing failed, treating message as plain text",
			zap.String("name", name),
			zap.Error(err))
	}
	return p.parsePlain(data), nil
}

func (p *Parser) parsePlain(data []byte) *core.ParsedEmail {
	text := p.text.SanitizeUTF8(string(data))
	return &core.ParsedEmail{
		Text:        text,
		URLs:        ExtractURLs(text),
		Attachments: []string{},
		Meta:        core.EmailMeta{Headers: map[string]string{}},
	}
}

func (p *Parser) parseMIME(data []byte) (*core.ParsedEmail, error) {
	env, err := enmime.ReadEnvelope(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to read envelope: %w", err)
	}
	for _, perr := range env.Errors {
		p.logger.Debug("MIME part problem", zap.String("error", perr.String()))
	}

	// enmime synthesizes Text from HTML when no text/plain part exists
	parts := []string{}
	if env.Text != "" {
		parts = append(parts, env.Text)
	}
	if env.HTML != "" && hasPart(env.Root, "text/plain") {
		parts = append(parts, p.text.StripHTML(env.HTML))
	}
	text := p.text.SanitizeUTF8(strings.Join(parts, "\n"))

	urls := ExtractURLs(text)
	if env.HTML != "" {
		urls = appendDistinct(urls, extractHrefs(env.HTML)...)
	}

	headers := make(map[string]string, len(Headers))
	for _, h := range Headers {
		if v := strings.TrimSpace(env.GetHeader(h)); v != "" {
			headers[h] = v
		}
	}

	return &core.ParsedEmail{
		Text:        text,
		URLs:        urls,
		Attachments: attachmentNames(env),
		Meta:        core.EmailMeta{Headers: headers},
	}, nil
}

// ExtractURLs returns the distinct http(s) URLs of text in order of first appearance
func ExtractURLs(text string) []string {
	return appendDistinct([]string{}, urlPattern.FindAllString(text, -1)...)
}

func extractHrefs(html string) []string {
	var out []string
	for _, m := range hrefPattern.FindAllStringSubmatch(html, -1) {
		out = append(out, m[1])
	}
	return out
}

func appendDistinct(list []string, values ...string) []string {
	seen := make(map[string]struct{}, len(list)+len(values))
	for _, v := range list {
		seen[v] = struct{}{}
	}
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		list = append(list, v)
	}
	return list
}

func attachmentNames(env *enmime.Envelope) []string {
	names := []string{}
	for _, group := range [][]*enmime.Part{env.Attachments, env.Inlines, env.OtherParts} {
		for _, part := range group {
			if part.FileName != "" {
				names = append(names, part.FileName)
			}
		}
	}
	return names
}

func hasPart(root *enmime.Part, contentType string) bool {
	if root == nil {
		return false
	}
	if strings.EqualFold(root.ContentType, contentType) && root.Disposition != "attachment" {
		return true
	}
	for child := root.FirstChild; child != nil; child = child.NextSibling {
		if hasPart(child, contentType) {
			return true
		}
	}
	return false
}
