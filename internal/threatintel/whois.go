package threatintel

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/likexian/whois"
	whoisparser "github.com/likexian/whois-parser"

	"github.com/mikey/llm-phish-detector/internal/core"
)

// ErrDomainNotRegistered marks a WHOIS answer confirming the domain does not exist.
// Such an answer is a completed lookup and is cached like a success.
var ErrDomainNotRegistered = errors.New("domain not registered")

// WhoisFetcher performs one WHOIS lookup
type WhoisFetcher interface {
	Fetch(ctx context.Context, domain string) (core.WhoisRecord, error)
}

// LikexianFetcher queries WHOIS servers with github.com/likexian/whois and
// parses the answer with whois-parser
type LikexianFetcher struct {
	client *whois.Client
}

// NewLikexianFetcher creates a fetcher whose network operations give up after timeout
func NewLikexianFetcher(timeout time.Duration) *LikexianFetcher {
	return &LikexianFetcher{client: whois.NewClient().SetTimeout(timeout)}
}

type whoisResult struct {
	raw string
	err error
}

// Fetch looks the domain up. The client has no context support, so the query
// runs in its own goroutine and is abandoned if ctx ends first.
func (f *LikexianFetcher) Fetch(ctx context.Context, domain string) (core.WhoisRecord, error) {
	done := make(chan whoisResult, 1)
	go func() {
		raw, err := f.client.Whois(domain)
		done <- whoisResult{raw: raw, err: err}
	}()

	var res whoisResult
	select {
	case <-ctx.Done():
		return core.WhoisRecord{OK: false}, ctx.Err()
	case res = <-done:
	}
	if res.err != nil {
		return core.WhoisRecord{OK: false}, fmt.Errorf("whois query: %w", res.err)
	}

	info, err := whoisparser.Parse(res.raw)
	if err != nil {
		if errors.Is(err, whoisparser.ErrNotFoundDomain) {
			return core.WhoisRecord{OK: false, Domain: domain}, ErrDomainNotRegistered
		}
		return core.WhoisRecord{OK: false}, fmt.Errorf("whois parse: %w", err)
	}
	return recordFromInfo(domain, info), nil
}

func recordFromInfo(domain string, info whoisparser.WhoisInfo) core.WhoisRecord {
	rec := core.WhoisRecord{OK: true, Domain: domain}
	if d := info.Domain; d != nil {
		rec.CreationDate = d.CreatedDate
		rec.ExpirationDate = d.ExpirationDate
		rec.NameServers = append(rec.NameServers, d.NameServers...)
	}
	if r := info.Registrar; r != nil {
		rec.Registrar = r.Name
		if rec.Registrar == "" {
			rec.Registrar = r.Organization
		}
	}
	if r := info.Registrant; r != nil {
		rec.Country = r.Country
	}

	seen := make(map[string]struct{})
	for _, c := range []*whoisparser.Contact{info.Registrar, info.Registrant, info.Administrative, info.Technical} {
		if c == nil || c.Email == "" {
			continue
		}
		email := strings.ToLower(c.Email)
		if _, ok := seen[email]; ok {
			continue
		}
		seen[email] = struct{}{}
		rec.Emails = append(rec.Emails, email)
	}
	return rec
}
