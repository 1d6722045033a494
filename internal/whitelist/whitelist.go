package whitelist

import (
	"net/mail"
	"strings"

	"go.uber.org/zap"
)

// Checker decides whether a sender bypasses analysis
type Checker struct {
	domains map[string]struct{}
	logger  *zap.Logger
}

// NewChecker creates a new whitelist checker. Entries are domains; a
// whitelisted domain also covers its subdomains.
func NewChecker(domains []string, logger *zap.Logger) *Checker {
	normalized := make(map[string]struct{}, len(domains))
	for _, domain := range domains {
		d := normalizeDomain(domain)
		if d != "" {
			normalized[d] = struct{}{}
		}
	}

	if len(normalized) > 0 && logger != nil {
		logger.Info("Initialized whitelist checker", zap.Int("domains", len(normalized)))
	}

	return &Checker{
		domains: normalized,
		logger:  logger,
	}
}

// Len returns the number of whitelisted domains
func (c *Checker) Len() int {
	return len(c.domains)
}

// IsWhitelisted checks if the sender's domain, or a parent of it, is whitelisted.
// from may be a bare address, an angle-bracketed path or a full From header.
func (c *Checker) IsWhitelisted(from string) bool {
	if len(c.domains) == 0 {
		return false
	}

	domain := SenderDomain(from)
	if domain == "" {
		return false
	}

	for d := domain; d != ""; d = parentDomain(d) {
		if _, ok := c.domains[d]; ok {
			if c.logger != nil {
				c.logger.Debug("Domain is whitelisted",
					zap.String("domain", domain),
					zap.String("matched", d))
			}
			return true
		}
	}
	return false
}

// SenderDomain extracts the lower-cased domain of an address
func SenderDomain(from string) string {
	addr := strings.TrimSpace(from)
	if parsed, err := mail.ParseAddress(addr); err == nil {
		addr = parsed.Address
	}
	addr = strings.Trim(addr, "<>")

	at := strings.LastIndex(addr, "@")
	if at < 0 || at == len(addr)-1 {
		return ""
	}
	return normalizeDomain(addr[at+1:])
}

func normalizeDomain(d string) string {
	return strings.TrimSuffix(strings.ToLower(strings.TrimSpace(d)), ".")
}

func parentDomain(d string) string {
	i := strings.Index(d, ".")
	if i < 0 {
		return ""
	}
	parent := d[i+1:]
	// never climb to a bare TLD
	if !strings.Contains(parent, ".") {
		return ""
	}
	return parent
}
