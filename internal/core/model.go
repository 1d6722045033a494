package core

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// ParsedEmail is the parser's view of an email. The engine only reads it.
type ParsedEmail struct {
	Text        string    `json:"text"`
	URLs        []string  `json:"urls"`
	Attachments []string  `json:"attachments"`
	Meta        EmailMeta `json:"meta"`
}

// EmailMeta carries the headers the parser extracted
type EmailMeta struct {
	Headers map[string]string `json:"headers"`
}

// Header looks a header up case-insensitively
func (m EmailMeta) Header(name string) string {
	if v, ok := m.Headers[name]; ok {
		return v
	}
	for k, v := range m.Headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

// Subject returns the Subject header
func (e *ParsedEmail) Subject() string {
	return e.Meta.Header("Subject")
}

// RuleScore holds the lexical rule scores, each in [0,100]
type RuleScore struct {
	Keyword    int `json:"keyword"`
	URL        int `json:"url"`
	Attachment int `json:"attachment"`
}

// TextScore holds the text-statistics scores, each in [0,100]
type TextScore struct {
	PerplexityLike float64 `json:"perplexity"`
	Burstiness     float64 `json:"burstiness"`
}

// SemanticScore is the normalized result of an LLM semantic analysis
type SemanticScore struct {
	SemanticConsistency     int    `json:"semantic_consistency"`
	StyleAnomaly            int    `json:"style_anomaly"`
	SocialEngineering       int    `json:"social_engineering"`
	LLMGeneratedProbability int    `json:"llm_generated_probability"`
	Evidence                string `json:"evidence"`
}

// Clamp forces every numeric field into [0,100]
func (s *SemanticScore) Clamp() {
	s.SemanticConsistency = ClampInt(s.SemanticConsistency, 0, 100)
	s.StyleAnomaly = ClampInt(s.StyleAnomaly, 0, 100)
	s.SocialEngineering = ClampInt(s.SocialEngineering, 0, 100)
	s.LLMGeneratedProbability = ClampInt(s.LLMGeneratedProbability, 0, 100)
}

// BrandRecord is one entry of the brand registry
type BrandRecord struct {
	Name    string   `json:"name"`
	Domains []string `json:"domains"`
}

// WhoisRecord is a normalized WHOIS lookup result
type WhoisRecord struct {
	OK             bool     `json:"ok"`
	Domain         string   `json:"domain,omitempty"`
	Registrar      string   `json:"registrar,omitempty"`
	CreationDate   string   `json:"creation_date,omitempty"`
	ExpirationDate string   `json:"expiration_date,omitempty"`
	Emails         []string `json:"emails,omitempty"`
	NameServers    []string `json:"name_servers,omitempty"`
	Country        string   `json:"country,omitempty"`
}

// SSLRecord is a normalized view of a server's leaf certificate
type SSLRecord struct {
	OK        bool      `json:"ok"`
	SubjectCN string    `json:"subject_cn,omitempty"`
	IssuerCN  string    `json:"issuer_cn,omitempty"`
	NotBefore time.Time `json:"not_before,omitempty"`
	NotAfter  time.Time `json:"not_after,omitempty"`
	SANs      []string  `json:"sans,omitempty"`
}

// CTEntry is one certificate-transparency log entry
type CTEntry struct {
	Issuer    string `json:"issuer"`
	NameValue string `json:"name_value"`
	NotBefore string `json:"not_before"`
	NotAfter  string `json:"not_after"`
}

// CTLogSet is the result of a certificate-transparency search.
// OK=false means no transparency data, not zero certificates.
type CTLogSet struct {
	OK      bool      `json:"ok"`
	Entries []CTEntry `json:"entries"`
}

// Intel bundles the enrichment records gathered for one domain
type Intel struct {
	Whois WhoisRecord `json:"whois"`
	SSL   SSLRecord   `json:"ssl"`
	CT    CTLogSet    `json:"ct"`
}

// WhoisCacheEntry is a cached WHOIS record
type WhoisCacheEntry struct {
	Domain    string
	Record    WhoisRecord
	FetchedAt time.Time
	ExpiresAt time.Time
}

// Severity is the discrete severity bucket of a finding
type Severity string

const (
	SeverityLow      Severity = "低"
	SeverityMedium   Severity = "中"
	SeverityHigh     Severity = "高"
	SeverityCritical Severity = "危急"
)

// SeverityFromScore buckets a 0-100 value
func SeverityFromScore(v int) Severity {
	switch {
	case v >= 85:
		return SeverityCritical
	case v >= 60:
		return SeverityHigh
	case v >= 30:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// LevelFromScore maps the fused score to the report level
func LevelFromScore(score int) Severity {
	switch {
	case score < 30:
		return SeverityLow
	case score < 60:
		return SeverityMedium
	case score < 85:
		return SeverityHigh
	default:
		return SeverityCritical
	}
}

// ThreatFinding is one named threat with its evidence
type ThreatFinding struct {
	Name           string   `json:"name"`
	Severity       Severity `json:"severity"`
	Vector         string   `json:"vector"`
	Affected       []string `json:"affected"`
	Impact         string   `json:"impact"`
	Sample         string   `json:"sample"`
	Recommendation string   `json:"recommendation"`
	Evidence       []string `json:"evidence"`
}

// Features groups the raw signal values behind a report
type Features struct {
	Rules RuleScore     `json:"rules"`
	Text  TextScore     `json:"text"`
	LLM   SemanticScore `json:"llm"`
}

// RiskReport is the result of one analysis
type RiskReport struct {
	ID         string          `json:"id"`
	Score      int             `json:"score"`
	Confidence float64         `json:"confidence"`
	Level      Severity        `json:"level"`
	Features   Features        `json:"features"`
	Summary    string          `json:"summary"`
	Threats    []ThreatFinding `json:"threats"`
	Chain      []string        `json:"chain"`
	Provider   string          `json:"provider"`
	AnalyzedAt time.Time       `json:"analyzed_at"`
}

// Signature is the hex SHA-256 of the summary line
func (r *RiskReport) Signature() string {
	sum := sha256.Sum256([]byte(r.Summary))
	return hex.EncodeToString(sum[:])
}

// ThreatNames lists the names of the report's findings in order
func (r *RiskReport) ThreatNames() []string {
	names := make([]string, 0, len(r.Threats))
	for _, t := range r.Threats {
		names = append(names, t.Name)
	}
	return names
}
