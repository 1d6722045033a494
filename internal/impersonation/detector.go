package impersonation

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/lithammer/fuzzysearch/fuzzy"
	"go.uber.org/zap"

	"github.com/mikey/llm-phish-detector/internal/core"
)

const (
	acceptThreshold    = 0.6
	homoglyphThreshold = 0.6
	excerptRunes       = 200

	boostNewDomain  = 10
	boostSANMissing = 10
	boostNoCT       = 5

	// DefaultNewDomainWindow is how recent a registration must be to count as new
	DefaultNewDomainWindow = 3 * 365 * 24 * time.Hour
)

var hostPattern = regexp.MustCompile(`(?i)^https?://([^/]+)`)

var creationLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05Z",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05 MST",
	"2006-01-02",
	"02-Jan-2006",
	"2006.01.02",
	"2006/01/02",
}

// Detector implements core.ImpersonationDetector over a fixed brand registry
type Detector struct {
	brands []core.BrandRecord
	window time.Duration
	now    func() time.Time
	logger *zap.Logger
}

// NewDetector creates a new impersonation detector. The registry is read-only after construction.
func NewDetector(brands []core.BrandRecord, newDomainWindow time.Duration, now func() time.Time, logger *zap.Logger) *Detector {
	if newDomainWindow <= 0 {
		newDomainWindow = DefaultNewDomainWindow
	}
	if now == nil {
		now = time.Now
	}
	return &Detector{
		brands: append([]core.BrandRecord(nil), brands...),
		window: newDomainWindow,
		now:    now,
		logger: logger,
	}
}

// ExtractDomain returns the lower-cased host of an http(s) URL, or ""
func (d *Detector) ExtractDomain(url string) string {
	m := hostPattern.FindStringSubmatch(strings.TrimSpace(url))
	if m == nil {
		return ""
	}
	return strings.ToLower(m[1])
}

// Detect matches domain against the brand registry and checks it for homoglyphs.
// text is the email body and subject; intel may be nil.
func (d *Detector) Detect(domain, text string, intel *core.Intel) (*core.BrandFinding, *core.HomoglyphFinding) {
	if domain == "" {
		return nil, nil
	}
	if intel == nil {
		intel = &core.Intel{}
	}
	return d.matchBrand(domain, text, intel), d.homoglyph(domain)
}

func (d *Detector) matchBrand(domain, text string, intel *core.Intel) *core.BrandFinding {
	lowerText := strings.ToLower(text)

	var (
		best     float64
		hit      *core.BrandRecord
		official string
	)
	for i := range d.brands {
		b := &d.brands[i]
		name := strings.ToLower(b.Name)
		named := strings.Contains(lowerText, name) || strings.Contains(domain, name)
		for _, bd := range b.Domains {
			sim := EmbeddingSimilarity(domain, bd)
			// strict > keeps the first brand that reaches a tied maximum
			if sim > best && (named || sim >= acceptThreshold) {
				best = sim
				hit = b
				official = bd
			}
		}
	}
	if hit == nil {
		return nil
	}

	boost := d.boost(domain, intel)
	finding := &core.BrandFinding{
		Brand:          hit.Name,
		OfficialDomain: official,
		Domain:         domain,
		Similarity:     best,
		EditDistance:   fuzzy.LevenshteinDistance(domain, official),
		Boost:          boost,
		Severity:       core.ClampInt(int(math.Round(best*100))+boost, 0, 100),
		Excerpt:        excerpt(text),
	}

	d.logger.Debug("Brand impersonation candidate",
		zap.String("domain", domain),
		zap.String("brand", hit.Name),
		zap.String("official_domain", official),
		zap.Float64("similarity", best),
		zap.Int("boost", boost))
	return finding
}

func (d *Detector) boost(domain string, intel *core.Intel) int {
	boost := 0
	if intel.Whois.OK && d.newlyRegistered(intel.Whois.CreationDate) {
		boost += boostNewDomain
	}
	if intel.SSL.OK && len(intel.SSL.SANs) > 0 && !containsFold(intel.SSL.SANs, domain) {
		boost += boostSANMissing
	}
	if intel.CT.OK && len(intel.CT.Entries) == 0 {
		boost += boostNoCT
	}
	return boost
}

// newlyRegistered reports whether a WHOIS creation date falls inside the
// configured window. Unparseable dates fall back to matching a recent year.
func (d *Detector) newlyRegistered(creation string) bool {
	creation = strings.TrimSpace(creation)
	if creation == "" {
		return false
	}
	now := d.now()
	for _, layout := range creationLayouts {
		t, err := time.Parse(layout, creation)
		if err != nil {
			continue
		}
		age := now.Sub(t)
		return age >= -24*time.Hour && age <= d.window
	}

	years := max(int(d.window/(365*24*time.Hour)), 1)
	for y := now.Year() - years + 1; y <= now.Year(); y++ {
		if strings.Contains(creation, strconv.Itoa(y)) {
			return true
		}
	}
	return false
}

func (d *Detector) homoglyph(domain string) *core.HomoglyphFinding {
	norm := Normalize(domain)
	sim := VisualSimilarity(domain, norm)
	if sim < homoglyphThreshold {
		return nil
	}
	return &core.HomoglyphFinding{
		Domain:     domain,
		Normalized: norm,
		Similarity: sim,
		Severity:   core.ClampInt(int(math.Round(sim*100)), 0, 100),
	}
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}

func excerpt(s string) string {
	r := []rune(s)
	if len(r) > excerptRunes {
		r = r[:excerptRunes]
	}
	return string(r)
}
