package filter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"time"

	"github.com/emersion/go-smtp"
	"go.uber.org/zap"

	"github.com/mikey/llm-phish-detector/internal/config"
	"github.com/mikey/llm-phish-detector/internal/core"
	"github.com/mikey/llm-phish-detector/internal/whitelist"
)

// MessageParser turns raw message bytes into a ParsedEmail
type MessageParser interface {
	Parse(r io.Reader, name string) (*core.ParsedEmail, error)
}

// Relay re-injects a message into the MTA
type Relay interface {
	Send(sender string, recipients []string, data []byte) error
}

var (
	errTempAnalysis = &smtp.SMTPError{
		Code:         451,
		EnhancedCode: smtp.EnhancedCode{4, 3, 0},
		Message:      "Phishing analysis temporarily unavailable, try again later",
	}
	errTempRelay = &smtp.SMTPError{
		Code:         451,
		EnhancedCode: smtp.EnhancedCode{4, 4, 1},
		Message:      "Unable to re-inject message, try again later",
	}
)

// PostfixFilter is an SMTP content filter that annotates every message with
// its risk report and hands it back to Postfix. It never rejects mail; when
// the semantic stage fails it answers 451 so Postfix retries later.
type PostfixFilter struct {
	scorer *messageScorer
	relay  Relay
	cfg    config.ServerConfig
	logger *zap.Logger

	mu       sync.Mutex
	server   *smtp.Server
	listener net.Listener
}

// NewPostfixFilter creates a new Postfix content filter
func NewPostfixFilter(
	service RiskAnalyzer,
	parser MessageParser,
	checker *whitelist.Checker,
	relay Relay,
	cfg config.ServerConfig,
	logger *zap.Logger,
) *PostfixFilter {
	cfg = withServerDefaults(cfg)
	return &PostfixFilter{
		scorer: &messageScorer{
			service:   service,
			parser:    parser,
			whitelist: checker,
			cfg:       cfg,
			logger:    logger,
		},
		relay:  relay,
		cfg:    cfg,
		logger: logger,
	}
}

func withServerDefaults(cfg config.ServerConfig) config.ServerConfig {
	if cfg.AnalysisTimeout <= 0 {
		cfg.AnalysisTimeout = 180 * time.Second
	}
	return cfg
}

// Start listens on the configured address and serves in the background
func (f *PostfixFilter) Start() error {
	ln, err := net.Listen("tcp", f.cfg.ListenAddress)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", f.cfg.ListenAddress, err)
	}

	server := smtp.NewServer(&smtpBackend{filter: f})
	server.Addr = f.cfg.ListenAddress
	server.Domain = f.cfg.Domain
	server.ReadTimeout = 30 * time.Second
	server.WriteTimeout = 30 * time.Second
	server.MaxMessageBytes = f.cfg.MaxMessageBytes
	server.MaxRecipients = 50

	f.mu.Lock()
	f.server = server
	f.listener = ln
	f.mu.Unlock()

	f.logger.Info("Postfix filter starting",
		zap.String("address", ln.Addr().String()),
		zap.String("relay", f.cfg.RelayAddress))

	go func() {
		if err := server.Serve(ln); err != nil && !errors.Is(err, smtp.ErrServerClosed) {
			f.logger.Error("SMTP server error", zap.Error(err))
		}
	}()
	return nil
}

// Addr returns the bound listen address once started
func (f *PostfixFilter) Addr() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listener == nil {
		return ""
	}
	return f.listener.Addr().String()
}

// Stop stops the Postfix filter service
func (f *PostfixFilter) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.server != nil {
		return f.server.Close()
	}
	return nil
}

// ProcessEmail scores a parsed email with the default provider
func (f *PostfixFilter) ProcessEmail(ctx context.Context, email *core.ParsedEmail) (*core.RiskReport, error) {
	return f.scorer.service.ComputeRisk(ctx, email, core.ProviderSelector{})
}

// handle scores one message and returns the bytes to re-inject
func (f *PostfixFilter) handle(sender string, raw []byte) ([]byte, error) {
	report, err := f.scorer.score(sender, raw)
	if err != nil {
		return nil, errTempAnalysis
	}
	if report == nil {
		return raw, nil
	}
	return annotateMessage(raw, f.scorer.reportHeaders(report), f.scorer.subjectPrefix(report)), nil
}

// SMTPRelay sends messages to the MTA's re-injection listener
type SMTPRelay struct {
	addr    string
	timeout time.Duration
	logger  *zap.Logger
}

// NewSMTPRelay creates a relay to addr (host:port)
func NewSMTPRelay(addr string, logger *zap.Logger) *SMTPRelay {
	return &SMTPRelay{
		addr:    addr,
		timeout: 30 * time.Second,
		logger:  logger,
	}
}

// Send delivers data to every recipient the relay accepts
func (r *SMTPRelay) Send(sender string, recipients []string, data []byte) error {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "localhost"
	}

	conn, err := net.DialTimeout("tcp", r.addr, 10*time.Second)
	if err != nil {
		return fmt.Errorf("failed to connect to relay: %w", err)
	}
	if err := conn.SetDeadline(time.Now().Add(r.timeout)); err != nil {
		conn.Close()
		return fmt.Errorf("failed to set connection deadline: %w", err)
	}

	c := smtp.NewClient(conn)
	defer c.Close()

	if err := c.Hello(hostname); err != nil {
		return fmt.Errorf("EHLO failed: %w", err)
	}
	if err := c.Mail(sender, nil); err != nil {
		return fmt.Errorf("MAIL FROM failed: %w", err)
	}

	accepted := 0
	for _, rcpt := range recipients {
		if err := c.Rcpt(rcpt, nil); err != nil {
			r.logger.Warn("RCPT TO failed for recipient",
				zap.String("recipient", rcpt),
				zap.Error(err))
			continue
		}
		accepted++
	}
	if accepted == 0 {
		return errors.New("all recipients were rejected")
	}

	wc, err := c.Data()
	if err != nil {
		return fmt.Errorf("DATA command failed: %w", err)
	}
	if _, err := wc.Write(data); err != nil {
		wc.Close()
		return fmt.Errorf("failed to send message data: %w", err)
	}
	if err := wc.Close(); err != nil {
		return fmt.Errorf("failed to close data writer: %w", err)
	}

	if err := c.Quit(); err != nil {
		r.logger.Warn("QUIT command failed", zap.Error(err))
	}
	return nil
}

// smtpBackend implements the go-smtp Backend interface
type smtpBackend struct {
	filter *PostfixFilter
}

// NewSession creates a new SMTP session
func (b *smtpBackend) NewSession(_ *smtp.Conn) (smtp.Session, error) {
	return &smtpSession{filter: b.filter}, nil
}

// smtpSession implements the go-smtp Session interface
type smtpSession struct {
	filter     *PostfixFilter
	sender     string
	recipients []string
}

func (s *smtpSession) Reset() {
	s.sender = ""
	s.recipients = nil
}

func (s *smtpSession) Mail(from string, _ *smtp.MailOptions) error {
	s.sender = from
	return nil
}

func (s *smtpSession) Rcpt(to string, _ *smtp.RcptOptions) error {
	s.recipients = append(s.recipients, to)
	return nil
}

func (s *smtpSession) Data(r io.Reader) error {
	raw, err := io.ReadAll(r)
	if err != nil {
		s.filter.logger.Error("Failed to read message data", zap.Error(err))
		return err
	}

	out, err := s.filter.handle(s.sender, raw)
	if err != nil {
		return err
	}

	if err := s.filter.relay.Send(s.sender, s.recipients, out); err != nil {
		s.filter.logger.Error("Failed to re-inject message",
			zap.String("sender", s.sender),
			zap.Error(err))
		return errTempRelay
	}
	return nil
}

func (s *smtpSession) Logout() error {
	return nil
}
