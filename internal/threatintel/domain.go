package threatintel

import (
	"net"
	"strings"

	"golang.org/x/net/idna"
)

// NormalizeDomain lower-cases a host, drops any userinfo, port or trailing
// dot, and IDNA-encodes it. When encoding fails the cleaned string is used.
func NormalizeDomain(domain string) string {
	d := strings.TrimSpace(domain)
	if i := strings.LastIndex(d, "@"); i >= 0 {
		d = d[i+1:]
	}
	if host, _, err := net.SplitHostPort(d); err == nil {
		d = host
	}
	d = strings.TrimSuffix(strings.ToLower(d), ".")
	if d == "" {
		return ""
	}

	ascii, err := idna.Lookup.ToASCII(d)
	if err != nil || ascii == "" {
		return d
	}
	return strings.ToLower(ascii)
}
