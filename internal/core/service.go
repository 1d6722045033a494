package core

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mikey/llm-phish-detector/internal/metrics"
)

// Fusion weights
const (
	weightKeyword      = 0.45
	weightURL          = 0.25
	weightAttachment   = 0.15
	weightPerplexity   = 0.15
	weightBurstiness   = 0.10
	weightStyle        = 0.20
	weightSocialEng    = 0.20
	weightLLMGenerated = 0.15
)

// ProviderSelector picks the semantic provider for one analysis
type ProviderSelector struct {
	Name      string
	Overrides ProviderOverrides
}

// RiskService is the core service that fuses every signal into a RiskReport
type RiskService struct {
	rules     RuleScorer
	text      TextScorer
	providers ProviderRegistry
	detector  ImpersonationDetector
	enricher  Enricher
	metrics   *metrics.Metrics
	logger    *zap.Logger
	now       func() time.Time
}

// NewRiskService creates a new risk fusion service.
// enricher may be nil, in which case every intel record is unavailable.
func NewRiskService(
	rules RuleScorer,
	text TextScorer,
	providers ProviderRegistry,
	detector ImpersonationDetector,
	enricher Enricher,
	m *metrics.Metrics,
	logger *zap.Logger,
	now func() time.Time,
) *RiskService {
	if now == nil {
		now = time.Now
	}
	return &RiskService{
		rules:     rules,
		text:      text,
		providers: providers,
		detector:  detector,
		enricher:  enricher,
		metrics:   m,
		logger:    logger,
		now:       now,
	}
}

// ComputeRisk analyzes one parsed email. A semantic provider failure aborts
// the analysis with a *ProviderError; enrichment failures only thin the evidence.
func (s *RiskService) ComputeRisk(ctx context.Context, email *ParsedEmail, sel ProviderSelector) (*RiskReport, error) {
	start := s.now()
	if email == nil {
		email = &ParsedEmail{}
	}

	name := sel.Name
	if name == "" {
		name = s.providers.DefaultProvider()
	}
	provider, err := s.providers.Provider(name, sel.Overrides)
	if err != nil {
		s.metrics.ProviderFailure(name)
		return nil, NewProviderError(name, 0, err)
	}

	ruleScore := s.rules.Score(email)
	textScore := s.text.Score(email.Text)

	var domain string
	if ruleScore.URL > 0 && len(email.URLs) > 0 {
		domain = s.detector.ExtractDomain(email.URLs[0])
	}

	var (
		llm   *SemanticScore
		intel Intel
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		res, err := provider.AnalyzeSemantics(gctx, email.Text)
		if err != nil {
			return NewProviderError(name, 0, err)
		}
		if res == nil {
			return NewProviderError(name, 0, errors.New("provider returned no score"))
		}
		llm = res
		return nil
	})
	if domain != "" && s.enricher != nil {
		g.Go(func() error {
			intel = s.enricher.Enrich(gctx, domain)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		s.metrics.ProviderFailure(name)
		s.logger.Error("Semantic analysis failed",
			zap.String("provider", name),
			zap.Error(err))
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	semantic := *llm
	semantic.Clamp()

	score := fuse(ruleScore, textScore, semantic)
	level := LevelFromScore(score)
	summary := buildSummary(ruleScore, textScore, semantic)

	var (
		brand     *BrandFinding
		homoglyph *HomoglyphFinding
	)
	if domain != "" {
		textAll := email.Text + " " + email.Subject()
		brand, homoglyph = s.detector.Detect(domain, textAll, &intel)
	}

	report := &RiskReport{
		ID:         uuid.NewString(),
		Score:      score,
		Confidence: confidenceFromScore(score),
		Level:      level,
		Features: Features{
			Rules: ruleScore,
			Text:  textScore,
			LLM:   semantic,
		},
		Summary: summary,
		Threats: buildThreats(threatInput{
			email:     email,
			rules:     ruleScore,
			llm:       semantic,
			summary:   summary,
			brand:     brand,
			homoglyph: homoglyph,
			intel:     &intel,
		}),
		Chain:      inferChain(ruleScore),
		Provider:   name,
		AnalyzedAt: start,
	}

	s.metrics.ObserveAnalysis(name, string(level), score, report.ThreatNames(), s.now().Sub(start))
	s.logger.Info("Analysis complete",
		zap.String("id", report.ID),
		zap.String("provider", name),
		zap.Int("score", score),
		zap.String("level", string(level)),
		zap.Int("threats", len(report.Threats)))

	return report, nil
}

// fuse computes the weighted sum, rounding once at the end
func fuse(r RuleScore, t TextScore, l SemanticScore) int {
	raw := weightKeyword*float64(r.Keyword) +
		weightURL*float64(r.URL) +
		weightAttachment*float64(r.Attachment) +
		weightPerplexity*t.PerplexityLike +
		weightBurstiness*t.Burstiness +
		weightStyle*float64(l.StyleAnomaly) +
		weightSocialEng*float64(l.SocialEngineering) +
		weightLLMGenerated*float64(l.LLMGeneratedProbability)
	return ClampInt(int(math.Round(raw)), 0, 100)
}

func confidenceFromScore(score int) float64 {
	return ClampFloat(0.5+float64(score)/200.0, 0, 1)
}

var (
	chainLink       = []string{"诱导内容", "点击链接", "凭据输入", "账号被控"}
	chainAttachment = []string{"诱导内容", "下载附件", "执行宏/程序", "系统受控"}
	chainInfo       = []string{"诱导内容", "信息索取", "数据泄露"}
)

func inferChain(r RuleScore) []string {
	var tpl []string
	switch {
	case r.URL > 0:
		tpl = chainLink
	case r.Attachment > 0:
		tpl = chainAttachment
	default:
		tpl = chainInfo
	}
	return append([]string(nil), tpl...)
}
