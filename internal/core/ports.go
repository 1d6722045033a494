package core

import (
	"context"
)

// RuleScorer computes the lexical rule scores of an email
type RuleScorer interface {
	Score(email *ParsedEmail) RuleScore
}

// TextScorer computes the text-statistics scores of a body
type TextScorer interface {
	Score(text string) TextScore
}

// SemanticProvider defines the interface for LLM semantic scoring backends
type SemanticProvider interface {
	// AnalyzeSemantics scores the text. A failure is a *ProviderError, never a zeroed score.
	AnalyzeSemantics(ctx context.Context, text string) (*SemanticScore, error)
}

// ProviderOverrides carries per-request model and credential overrides
type ProviderOverrides struct {
	Model   string
	APIKey  string
	BaseURL string
}

// IsZero reports whether no override is set
func (o ProviderOverrides) IsZero() bool {
	return o.Model == "" && o.APIKey == "" && o.BaseURL == ""
}

// ProviderRegistry resolves a provider tag to a SemanticProvider
type ProviderRegistry interface {
	// Provider returns the provider for name; an empty name selects the configured default
	Provider(name string, overrides ProviderOverrides) (SemanticProvider, error)

	// DefaultProvider returns the configured default provider tag
	DefaultProvider() string
}

// WhoisCache defines the interface for caching WHOIS records
type WhoisCache interface {
	// Get retrieves a live entry for a domain
	Get(ctx context.Context, domain string) (*WhoisCacheEntry, error)

	// Set stores an entry, overwriting any previous one
	Set(ctx context.Context, entry *WhoisCacheEntry) error

	// Delete removes an entry
	Delete(ctx context.Context, domain string) error

	// Cleanup removes expired entries
	Cleanup(ctx context.Context) error
}

// Enricher gathers threat intelligence for a domain. It never fails;
// unavailable sources come back with OK=false.
type Enricher interface {
	Enrich(ctx context.Context, domain string) Intel
}

// ImpersonationDetector inspects the first URL of an email for brand and homoglyph abuse
type ImpersonationDetector interface {
	Detect(domain, text string, intel *Intel) (*BrandFinding, *HomoglyphFinding)
	ExtractDomain(url string) string
}

// BrandFinding is an accepted brand-impersonation candidate
type BrandFinding struct {
	Brand          string
	OfficialDomain string
	Domain         string
	Similarity     float64
	EditDistance   int
	Boost          int
	Severity       int
	Excerpt        string
}

// HomoglyphFinding reports a domain whose normalized form reads like another
type HomoglyphFinding struct {
	Domain     string
	Normalized string
	Similarity float64
	Severity   int
}
