package filter

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/mikey/llm-phish-detector/internal/config"
	"github.com/mikey/llm-phish-detector/internal/core"
	"github.com/mikey/llm-phish-detector/internal/whitelist"
)

// errAnalysisUnavailable means the message could not be scored and should be retried by the MTA
var errAnalysisUnavailable = errors.New("phishing analysis unavailable")

// messageScorer is the whitelist, parse and analysis step shared by the MTA filters
type messageScorer struct {
	service   RiskAnalyzer
	parser    MessageParser
	whitelist *whitelist.Checker
	cfg       config.ServerConfig
	logger    *zap.Logger
}

// score analyzes a raw message with the default provider. A whitelisted
// sender yields a nil report and no error.
func (s *messageScorer) score(sender string, raw []byte) (*core.RiskReport, error) {
	if s.whitelist != nil && s.whitelist.IsWhitelisted(sender) {
		s.logger.Info("Sender whitelisted, skipping analysis", zap.String("sender", sender))
		return nil, nil
	}

	email, err := s.parser.Parse(bytes.NewReader(raw), "message.eml")
	if err != nil {
		s.logger.Error("Failed to parse message", zap.String("sender", sender), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", errAnalysisUnavailable, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.AnalysisTimeout)
	defer cancel()

	report, err := s.service.ComputeRisk(ctx, email, core.ProviderSelector{})
	if err != nil {
		var perr *core.ProviderError
		if errors.As(err, &perr) {
			s.logger.Error("Semantic provider failed, deferring message",
				zap.String("sender", sender),
				zap.String("provider", perr.Provider),
				zap.Int("attempts", perr.Attempts),
				zap.Error(err))
		} else {
			s.logger.Error("Failed to analyze message", zap.String("sender", sender), zap.Error(err))
		}
		return nil, fmt.Errorf("%w: %v", errAnalysisUnavailable, err)
	}

	s.logger.Info("Processed message",
		zap.String("sender", sender),
		zap.String("report_id", report.ID),
		zap.Int("score", report.Score),
		zap.String("level", string(report.Level)),
		zap.Strings("threats", report.ThreatNames()))
	return report, nil
}

// subjectPrefix returns the configured prefix for 高 and 危急 reports, else ""
func (s *messageScorer) subjectPrefix(report *core.RiskReport) string {
	if report.Level == core.SeverityHigh || report.Level == core.SeverityCritical {
		return s.cfg.SubjectPrefix
	}
	return ""
}

func (s *messageScorer) reportHeaders(report *core.RiskReport) [][2]string {
	return [][2]string{
		{s.cfg.ScoreHeader, strconv.Itoa(report.Score)},
		{s.cfg.LevelHeader, string(report.Level)},
		{s.cfg.ConfidenceHeader, strconv.FormatFloat(report.Confidence, 'f', 3, 64)},
		{s.cfg.ThreatsHeader, strings.Join(report.ThreatNames(), ", ")},
	}
}

// reportHeaderName returns the configured spelling of name when it is one of the headers the filters write
func (s *messageScorer) reportHeaderName(name string) (string, bool) {
	for _, h := range []string{s.cfg.ScoreHeader, s.cfg.LevelHeader, s.cfg.ConfidenceHeader, s.cfg.ThreatsHeader} {
		if strings.EqualFold(h, name) {
			return h, true
		}
	}
	return "", false
}
