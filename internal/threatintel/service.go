// Package threatintel gathers passive intelligence about a domain: WHOIS
// registration data, the served TLS certificate and certificate-transparency
// history. Lookups never fail the caller; an unavailable source comes back
// with OK=false.
package threatintel

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mikey/llm-phish-detector/internal/adapters/cache"
	"github.com/mikey/llm-phish-detector/internal/core"
	"github.com/mikey/llm-phish-detector/internal/metrics"
)

// ErrEnrichmentUnavailable wraps every recovered lookup failure
var ErrEnrichmentUnavailable = errors.New("enrichment unavailable")

var errNoCertificate = errors.New("server presented no certificate")

// Defaults
const (
	DefaultCacheTTL     = 24 * time.Hour
	DefaultWhoisTimeout = 10 * time.Second
	DefaultSSLTimeout   = 5 * time.Second
	DefaultCTTimeout    = 5 * time.Second
	DefaultCTLimit      = 20
	DefaultCTBaseURL    = "https://crt.sh/"
	DefaultSSLPort      = 443
)

// Config holds the enrichment settings
type Config struct {
	CacheTTL     time.Duration
	WhoisTimeout time.Duration
	SSLTimeout   time.Duration
	SSLPort      int
	CTTimeout    time.Duration
	CTLimit      int
	CTBaseURL    string
	// TLSConfig overrides the certificate verification settings, e.g. RootCAs
	TLSConfig *tls.Config
}

func (c Config) withDefaults() Config {
	if c.CacheTTL <= 0 {
		c.CacheTTL = DefaultCacheTTL
	}
	if c.WhoisTimeout <= 0 {
		c.WhoisTimeout = DefaultWhoisTimeout
	}
	if c.SSLTimeout <= 0 {
		c.SSLTimeout = DefaultSSLTimeout
	}
	if c.SSLPort <= 0 {
		c.SSLPort = DefaultSSLPort
	}
	if c.CTTimeout <= 0 {
		c.CTTimeout = DefaultCTTimeout
	}
	if c.CTLimit <= 0 {
		c.CTLimit = DefaultCTLimit
	}
	if c.CTBaseURL == "" {
		c.CTBaseURL = DefaultCTBaseURL
	}
	return c
}

// Service implements core.Enricher
type Service struct {
	cfg        Config
	cache      core.WhoisCache
	whois      WhoisFetcher
	httpClient *http.Client
	metrics    *metrics.Metrics
	logger     *zap.Logger
	now        func() time.Time
}

// NewService creates a new enrichment service. The WHOIS cache is shared by
// every analysis; concurrent misses for one domain each query the network.
func NewService(
	cfg Config,
	whoisCache core.WhoisCache,
	fetcher WhoisFetcher,
	httpClient *http.Client,
	m *metrics.Metrics,
	logger *zap.Logger,
	now func() time.Time,
) *Service {
	cfg = cfg.withDefaults()
	if fetcher == nil {
		fetcher = NewLikexianFetcher(cfg.WhoisTimeout)
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if now == nil {
		now = time.Now
	}
	return &Service{
		cfg:        cfg,
		cache:      whoisCache,
		whois:      fetcher,
		httpClient: httpClient,
		metrics:    m,
		logger:     logger,
		now:        now,
	}
}

// Enrich runs the three lookups concurrently. Results of lookups still in
// flight when ctx ends are discarded.
func (s *Service) Enrich(ctx context.Context, domain string) core.Intel {
	var (
		wg    sync.WaitGroup
		intel core.Intel
	)
	wg.Add(3)
	go func() {
		defer wg.Done()
		intel.Whois = s.Whois(ctx, domain)
	}()
	go func() {
		defer wg.Done()
		intel.SSL = s.SSLCert(ctx, domain)
	}()
	go func() {
		defer wg.Done()
		intel.CT = s.CTLogs(ctx, domain)
	}()
	wg.Wait()

	if ctx.Err() != nil {
		return core.Intel{}
	}
	return intel
}

// Whois returns the domain's registration record, served from the cache when fresh.
// Only completed lookups are cached: a record, or a confirmed unregistered domain.
func (s *Service) Whois(ctx context.Context, domain string) core.WhoisRecord {
	d := NormalizeDomain(domain)
	if d == "" {
		return core.WhoisRecord{OK: false}
	}

	if s.cache != nil {
		entry, err := s.cache.Get(ctx, d)
		switch {
		case err == nil:
			s.metrics.WhoisCache("hit")
			return entry.Record
		case errors.Is(err, cache.ErrExpired):
			s.metrics.WhoisCache("expired")
		case errors.Is(err, cache.ErrNotFound):
			s.metrics.WhoisCache("miss")
		default:
			s.metrics.WhoisCache("error")
			s.logger.Warn("WHOIS cache lookup failed", zap.String("domain", d), zap.Error(err))
		}
	}

	lookupCtx, cancel := context.WithTimeout(ctx, s.cfg.WhoisTimeout)
	defer cancel()

	rec, err := s.whois.Fetch(lookupCtx, d)
	switch {
	case err == nil:
		rec.OK = true
		if rec.Domain == "" {
			rec.Domain = d
		}
	case errors.Is(err, ErrDomainNotRegistered):
		rec = core.WhoisRecord{OK: false, Domain: d}
	default:
		s.unavailable("whois", d, err)
		return core.WhoisRecord{OK: false}
	}
	s.metrics.Enrichment("whois", rec.OK)

	if s.cache != nil && ctx.Err() == nil {
		now := s.now()
		entry := &core.WhoisCacheEntry{
			Domain:    d,
			Record:    rec,
			FetchedAt: now,
			ExpiresAt: now.Add(s.cfg.CacheTTL),
		}
		if err := s.cache.Set(ctx, entry); err != nil {
			s.logger.Error("Failed to update WHOIS cache", zap.String("domain", d), zap.Error(err))
		}
	}
	return rec
}

// SSLCert dials the domain over TLS and reports its leaf certificate. Never cached.
func (s *Service) SSLCert(ctx context.Context, domain string) core.SSLRecord {
	d := NormalizeDomain(domain)
	if d == "" {
		return core.SSLRecord{OK: false}
	}

	rec, err := s.fetchCert(ctx, d)
	if err != nil {
		s.unavailable("ssl", d, err)
		return core.SSLRecord{OK: false}
	}
	s.metrics.Enrichment("ssl", true)
	return rec
}

// CTLogs searches certificate-transparency logs for the domain.
// OK=false means the search failed, not that no certificate exists.
func (s *Service) CTLogs(ctx context.Context, domain string) core.CTLogSet {
	d := NormalizeDomain(domain)
	if d == "" {
		return core.CTLogSet{OK: false, Entries: []core.CTEntry{}}
	}

	entries, err := s.fetchCT(ctx, d)
	if err != nil {
		s.unavailable("ct", d, err)
		return core.CTLogSet{OK: false, Entries: []core.CTEntry{}}
	}
	s.metrics.Enrichment("ct", true)
	return core.CTLogSet{OK: true, Entries: entries}
}

func (s *Service) unavailable(source, domain string, err error) {
	s.metrics.Enrichment(source, false)
	s.logger.Warn("Threat intel lookup failed",
		zap.String("source", source),
		zap.String("domain", domain),
		zap.Error(fmt.Errorf("%w: %v", ErrEnrichmentUnavailable, err)))
}
