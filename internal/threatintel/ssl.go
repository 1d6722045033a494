package threatintel

import (
	"context"
	"crypto/tls"
	"net"
	"strconv"

	"github.com/mikey/llm-phish-detector/internal/core"
)

func (s *Service) fetchCert(ctx context.Context, domain string) (core.SSLRecord, error) {
	cfg := &tls.Config{ServerName: domain}
	if s.cfg.TLSConfig != nil {
		cfg = s.cfg.TLSConfig.Clone()
		cfg.ServerName = domain
	}

	dialer := &tls.Dialer{
		NetDialer: &net.Dialer{Timeout: s.cfg.SSLTimeout},
		Config:    cfg,
	}

	dialCtx, cancel := context.WithTimeout(ctx, s.cfg.SSLTimeout)
	defer cancel()

	conn, err := dialer.DialContext(dialCtx, "tcp", net.JoinHostPort(domain, strconv.Itoa(s.cfg.SSLPort)))
	if err != nil {
		return core.SSLRecord{}, err
	}
	defer conn.Close()

	state := conn.(*tls.Conn).ConnectionState()
	if len(state.PeerCertificates) == 0 {
		return core.SSLRecord{}, errNoCertificate
	}
	leaf := state.PeerCertificates[0]

	sans := append([]string(nil), leaf.DNSNames...)
	for _, ip := range leaf.IPAddresses {
		sans = append(sans, ip.String())
	}

	return core.SSLRecord{
		OK:        true,
		SubjectCN: leaf.Subject.CommonName,
		IssuerCN:  leaf.Issuer.CommonName,
		NotBefore: leaf.NotBefore,
		NotAfter:  leaf.NotAfter,
		SANs:      sans,
	}, nil
}
