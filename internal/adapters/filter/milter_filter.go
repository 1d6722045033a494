package filter

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/emersion/go-milter"
	"go.uber.org/zap"

	"github.com/mikey/llm-phish-detector/internal/config"
	"github.com/mikey/llm-phish-detector/internal/core"
	"github.com/mikey/llm-phish-detector/internal/whitelist"
)

// headerModifier is the part of *milter.Modifier used to annotate a message
type headerModifier interface {
	AddHeader(name, value string) error
	ChangeHeader(index int, name, value string) error
}

// MilterFilter annotates messages in place over the milter protocol. Like
// the Postfix filter it never rejects mail: a failed analysis answers with a
// temporary failure so the MTA retries.
type MilterFilter struct {
	scorer *messageScorer
	cfg    config.ServerConfig
	logger *zap.Logger

	mu       sync.Mutex
	server   *milter.Server
	listener net.Listener
	closed   atomic.Bool
}

// NewMilterFilter creates a new milter filter
func NewMilterFilter(
	service RiskAnalyzer,
	parser MessageParser,
	checker *whitelist.Checker,
	cfg config.ServerConfig,
	logger *zap.Logger,
) *MilterFilter {
	cfg = withServerDefaults(cfg)
	return &MilterFilter{
		scorer: &messageScorer{
			service:   service,
			parser:    parser,
			whitelist: checker,
			cfg:       cfg,
			logger:    logger,
		},
		cfg:    cfg,
		logger: logger,
	}
}

// Start listens on the configured address and serves in the background
func (f *MilterFilter) Start() error {
	ln, err := net.Listen("tcp", f.cfg.ListenAddress)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", f.cfg.ListenAddress, err)
	}

	server := &milter.Server{
		NewMilter: func() milter.Milter { return f.newSession() },
		Actions:   milter.OptAddHeader | milter.OptChangeHeader,
		Protocol:  milter.OptNoConnect | milter.OptNoHelo | milter.OptNoRcptTo,
	}

	f.mu.Lock()
	f.server = server
	f.listener = ln
	f.mu.Unlock()

	f.logger.Info("Milter filter started", zap.String("address", ln.Addr().String()))

	go func() {
		if err := server.Serve(ln); err != nil && !f.closed.Load() {
			f.logger.Error("Milter server error", zap.Error(err))
		}
	}()
	return nil
}

// Addr returns the bound listen address once started
func (f *MilterFilter) Addr() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listener == nil {
		return ""
	}
	return f.listener.Addr().String()
}

// Stop stops the milter service
func (f *MilterFilter) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.server == nil {
		return nil
	}
	f.closed.Store(true)
	return f.server.Close()
}

// ProcessEmail scores a parsed email with the default provider
func (f *MilterFilter) ProcessEmail(ctx context.Context, email *core.ParsedEmail) (*core.RiskReport, error) {
	return f.scorer.service.ComputeRisk(ctx, email, core.ProviderSelector{})
}

func (f *MilterFilter) newSession() *milterSession {
	s := &milterSession{filter: f}
	s.reset()
	return s
}

// milterSession collects one message at a time for a single MTA connection
type milterSession struct {
	milter.NoOpMilter

	filter    *MilterFilter
	sender    string
	header    bytes.Buffer
	body      bytes.Buffer
	subject   string
	seen      bool
	stale     map[string]int
	truncated bool
}

func (s *milterSession) reset() {
	s.sender = ""
	s.header.Reset()
	s.body.Reset()
	s.subject = ""
	s.seen = false
	s.stale = make(map[string]int)
	s.truncated = false
}

func (s *milterSession) MailFrom(from string, _ *milter.Modifier) (milter.Response, error) {
	s.reset()
	s.sender = strings.Trim(from, "<>")
	return milter.RespContinue, nil
}

func (s *milterSession) Header(name, value string, _ *milter.Modifier) (milter.Response, error) {
	s.header.WriteString(name + ": " + value + "\r\n")

	// incoming copies of the report headers are removed before annotating
	if canonical, ok := s.filter.scorer.reportHeaderName(name); ok {
		s.stale[canonical]++
	}
	if strings.EqualFold(name, "Subject") && !s.seen {
		s.subject = value
		s.seen = true
	}
	return milter.RespContinue, nil
}

func (s *milterSession) BodyChunk(chunk []byte, _ *milter.Modifier) (milter.Response, error) {
	limit := s.filter.cfg.MaxMessageBytes
	if limit > 0 && int64(s.header.Len()+s.body.Len()+len(chunk)) > limit {
		room := int(limit) - s.header.Len() - s.body.Len()
		if room > 0 {
			s.body.Write(chunk[:room])
		}
		s.truncated = true
		return milter.RespContinue, nil
	}
	s.body.Write(chunk)
	return milter.RespContinue, nil
}

func (s *milterSession) Body(m *milter.Modifier) (milter.Response, error) {
	return s.end(m)
}

func (s *milterSession) Abort(_ *milter.Modifier) error {
	s.reset()
	return nil
}

// end scores the collected message and applies the report through m
func (s *milterSession) end(m headerModifier) (milter.Response, error) {
	defer s.reset()

	if s.truncated {
		s.filter.logger.Warn("Message exceeds size limit, analyzing the leading part",
			zap.String("sender", s.sender),
			zap.Int64("limit", s.filter.cfg.MaxMessageBytes))
	}

	raw := make([]byte, 0, s.header.Len()+2+s.body.Len())
	raw = append(raw, s.header.Bytes()...)
	raw = append(raw, "\r\n"...)
	raw = append(raw, s.body.Bytes()...)

	scorer := s.filter.scorer
	report, err := scorer.score(s.sender, raw)
	if err != nil {
		return milter.RespTempFail, nil
	}
	if report == nil {
		return milter.RespAccept, nil
	}

	if err := s.annotate(m, report); err != nil {
		s.filter.logger.Error("Failed to annotate message", zap.String("sender", s.sender), zap.Error(err))
		return milter.RespTempFail, nil
	}
	return milter.RespAccept, nil
}

func (s *milterSession) annotate(m headerModifier, report *core.RiskReport) error {
	scorer := s.filter.scorer

	// header indexes are 1-based per name; deleting from the end keeps earlier indexes valid
	for name, count := range s.stale {
		for i := count; i >= 1; i-- {
			if err := m.ChangeHeader(i, name, ""); err != nil {
				return err
			}
		}
	}
	for _, h := range scorer.reportHeaders(report) {
		if err := m.AddHeader(h[0], encodeHeaderValue(h[1])); err != nil {
			return err
		}
	}

	prefix := scorer.subjectPrefix(report)
	if prefix == "" {
		return nil
	}
	if !s.seen {
		return m.AddHeader("Subject", encodeHeaderValue(prefix))
	}
	if value, changed := prefixedSubject(s.subject, prefix); changed {
		return m.ChangeHeader(1, "Subject", value)
	}
	return nil
}

var _ milter.Milter = (*milterSession)(nil)
