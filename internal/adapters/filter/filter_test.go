package filter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/emersion/go-smtp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mikey/llm-phish-detector/internal/adapters/parser"
	"github.com/mikey/llm-phish-detector/internal/config"
	"github.com/mikey/llm-phish-detector/internal/core"
	"github.com/mikey/llm-phish-detector/internal/utils"
	"github.com/mikey/llm-phish-detector/internal/whitelist"
)

type MockAnalyzer struct {
	mock.Mock
}

func (m *MockAnalyzer) ComputeRisk(ctx context.Context, email *core.ParsedEmail, sel core.ProviderSelector) (*core.RiskReport, error) {
	args := m.Called(ctx, email, sel)
	if r := args.Get(0); r != nil {
		return r.(*core.RiskReport), args.Error(1)
	}
	return nil, args.Error(1)
}

type recordingRelay struct {
	mu         sync.Mutex
	sender     string
	recipients []string
	data       []byte
	err        error
}

func (r *recordingRelay) Send(sender string, recipients []string, data []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sender, r.recipients, r.data = sender, recipients, data
	return r.err
}

func testServerConfig() config.ServerConfig {
	return config.ServerConfig{
		ListenAddress:    "127.0.0.1:0",
		Domain:           "localhost",
		MaxMessageBytes:  1 << 20,
		AnalysisTimeout:  5 * time.Second,
		SubjectPrefix:    "[PHISH]",
		ScoreHeader:      "X-Phish-Score",
		LevelHeader:      "X-Phish-Level",
		ConfidenceHeader: "X-Phish-Confidence",
		ThreatsHeader:    "X-Phish-Threats",
	}
}

func testReport(score int, level core.Severity) *core.RiskReport {
	return &core.RiskReport{
		ID:         "report-1",
		Score:      score,
		Confidence: 0.755,
		Level:      level,
		Summary:    "关键词:2 URL:8 附件:0",
		Threats: []core.ThreatFinding{
			{Name: "社会工程学", Severity: core.SeverityHigh, Vector: "email", Impact: "credential theft", Recommendation: "verify", Evidence: []string{"urgent tone"}},
			{Name: "恶意链接", Severity: core.SeverityLow, Vector: "link"},
		},
		Chain:    []string{"链接投递", "钓鱼页面"},
		Provider: "gemini",
	}
}

func newTestFilter(analyzer RiskAnalyzer, relay Relay, checker *whitelist.Checker) *PostfixFilter {
	logger := zap.NewNop()
	return NewPostfixFilter(analyzer, parser.NewParser(utils.NewTextProcessor(logger), logger), checker, relay, testServerConfig(), logger)
}

const rawMessage = "From: Service <service@paypa1.com>\r\n" +
	"To: victim@example.org\r\n" +
	"X-Phish-Score: 0\r\n" +
	"Subject: Verify your\r\n account\r\n" +
	"\r\n" +
	"Click http://paypa1.com/login\r\n"

func TestPostfixAnnotatesMessage(t *testing.T) {
	analyzer := new(MockAnalyzer)
	analyzer.On("ComputeRisk", mock.Anything, mock.MatchedBy(func(e *core.ParsedEmail) bool {
		return len(e.URLs) == 1 && e.URLs[0] == "http://paypa1.com/login"
	}), core.ProviderSelector{}).Return(testReport(72, core.SeverityHigh), nil)

	f := newTestFilter(analyzer, &recordingRelay{}, nil)
	out, err := f.handle("service@paypa1.com", []byte(rawMessage))
	require.NoError(t, err)

	text := string(out)
	assert.True(t, strings.HasPrefix(text, "X-Phish-Score: 72\r\n"))
	assert.Equal(t, 1, strings.Count(text, "X-Phish-Score:"), "incoming copies are dropped")
	assert.Contains(t, text, "X-Phish-Level: =?utf-8?b?")
	assert.Contains(t, text, "X-Phish-Confidence: 0.755\r\n")
	assert.Contains(t, text, "Subject: [PHISH] Verify your\r\n account\r\n")
	assert.True(t, strings.HasSuffix(text, "\r\n\r\nClick http://paypa1.com/login\r\n"), "body untouched")

	msgHeaders := text[:strings.Index(text, "\r\n\r\n")]
	for _, line := range strings.Split(msgHeaders, "\r\n") {
		if strings.HasPrefix(line, "X-Phish-Threats:") {
			assert.Equal(t, "社会工程学, 恶意链接", decodeEncodedHeader(strings.TrimSpace(strings.TrimPrefix(line, "X-Phish-Threats:"))))
		}
	}
	analyzer.AssertExpectations(t)
}

func TestPostfixNoSubjectPrefixBelowHigh(t *testing.T) {
	analyzer := new(MockAnalyzer)
	analyzer.On("ComputeRisk", mock.Anything, mock.Anything, mock.Anything).Return(testReport(51, core.SeverityMedium), nil)

	out, err := newTestFilter(analyzer, &recordingRelay{}, nil).handle("a@b.example", []byte(rawMessage))
	require.NoError(t, err)
	assert.Contains(t, string(out), "Subject: Verify your\r\n")
	assert.NotContains(t, string(out), "[PHISH]")
}

func TestPostfixWhitelistBypass(t *testing.T) {
	analyzer := new(MockAnalyzer)
	f := newTestFilter(analyzer, &recordingRelay{}, whitelist.NewChecker([]string{"paypa1.com"}, nil))

	out, err := f.handle("service@paypa1.com", []byte(rawMessage))
	require.NoError(t, err)
	assert.Equal(t, rawMessage, string(out))
	analyzer.AssertNotCalled(t, "ComputeRisk", mock.Anything, mock.Anything, mock.Anything)
}

func TestPostfixProviderFailureDefers(t *testing.T) {
	analyzer := new(MockAnalyzer)
	analyzer.On("ComputeRisk", mock.Anything, mock.Anything, mock.Anything).
		Return(nil, core.NewProviderError("gemini", 3, errors.New("timeout")))

	_, err := newTestFilter(analyzer, &recordingRelay{}, nil).handle("a@b.example", []byte(rawMessage))
	var smtpErr *smtp.SMTPError
	require.ErrorAs(t, err, &smtpErr)
	assert.Equal(t, 451, smtpErr.Code)
	assert.Equal(t, smtp.EnhancedCode{4, 3, 0}, smtpErr.EnhancedCode)
}

func TestPostfixRelayFailureDefers(t *testing.T) {
	analyzer := new(MockAnalyzer)
	analyzer.On("ComputeRisk", mock.Anything, mock.Anything, mock.Anything).Return(testReport(10, core.SeverityLow), nil)
	f := newTestFilter(analyzer, &recordingRelay{err: errors.New("connection refused")}, nil)

	s, err := (&smtpBackend{filter: f}).NewSession(nil)
	require.NoError(t, err)
	require.NoError(t, s.Mail("a@b.example", nil))
	require.NoError(t, s.Rcpt("c@d.example", nil))

	err = s.Data(strings.NewReader(rawMessage))
	var smtpErr *smtp.SMTPError
	require.ErrorAs(t, err, &smtpErr)
	assert.Equal(t, 451, smtpErr.Code)
}

func TestAnnotateMessageLF(t *testing.T) {
	out := annotateMessage([]byte("Subject: hi\n\nbody\n"), [][2]string{{"X-Test", "1"}}, "[P]")
	assert.Equal(t, "X-Test: 1\nSubject: [P] hi\n\nbody\n", string(out))
}

func TestAnnotateMessageAddsMissingSubject(t *testing.T) {
	out := annotateMessage([]byte("From: a@b\r\n\r\nbody"), nil, "[P]")
	assert.Equal(t, "From: a@b\r\nSubject: [P]\r\n\r\nbody", string(out))
}

func TestAnnotateMessageKeepsExistingPrefix(t *testing.T) {
	raw := "Subject: =?utf-8?q?=5BP=5D_already?=\r\n\r\nbody"
	assert.Equal(t, raw, string(annotateMessage([]byte(raw), nil, "[P]")))
}

// relayBackend records messages delivered over SMTP
type relayBackend struct {
	mu       sync.Mutex
	messages [][]byte
	rcpts    [][]string
}

func (b *relayBackend) NewSession(_ *smtp.Conn) (smtp.Session, error) {
	return &relaySession{backend: b}, nil
}

type relaySession struct {
	backend *relayBackend
	rcpts   []string
}

func (s *relaySession) Reset()                                    { s.rcpts = nil }
func (s *relaySession) Logout() error                             { return nil }
func (s *relaySession) Mail(string, *smtp.MailOptions) error      { return nil }
func (s *relaySession) Rcpt(to string, _ *smtp.RcptOptions) error { s.rcpts = append(s.rcpts, to); return nil }
func (s *relaySession) Data(r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	s.backend.mu.Lock()
	defer s.backend.mu.Unlock()
	s.backend.messages = append(s.backend.messages, data)
	s.backend.rcpts = append(s.backend.rcpts, s.rcpts)
	return nil
}

func startRelayServer(t *testing.T) (*relayBackend, string) {
	t.Helper()
	backend := &relayBackend{}
	server := smtp.NewServer(backend)
	server.Domain = "localhost"

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = server.Serve(ln) }()
	t.Cleanup(func() { _ = server.Close() })
	return backend, ln.Addr().String()
}

func TestPostfixEndToEnd(t *testing.T) {
	backend, relayAddr := startRelayServer(t)

	analyzer := new(MockAnalyzer)
	analyzer.On("ComputeRisk", mock.Anything, mock.Anything, mock.Anything).Return(testReport(90, core.SeverityCritical), nil).Once()
	analyzer.On("ComputeRisk", mock.Anything, mock.Anything, mock.Anything).
		Return(nil, core.NewProviderError("gemini", 3, errors.New("down"))).Once()

	logger := zap.NewNop()
	f := newTestFilter(analyzer, NewSMTPRelay(relayAddr, logger), nil)
	require.NoError(t, f.Start())
	defer f.Stop()
	require.NotEmpty(t, f.Addr())

	client := NewSMTPRelay(f.Addr(), logger)
	require.NoError(t, client.Send("service@paypa1.com", []string{"victim@example.org"}, []byte(rawMessage)))

	backend.mu.Lock()
	require.Len(t, backend.messages, 1)
	delivered := string(backend.messages[0])
	assert.Equal(t, []string{"victim@example.org"}, backend.rcpts[0])
	backend.mu.Unlock()
	assert.Contains(t, delivered, "X-Phish-Score: 90")
	assert.Contains(t, delivered, "Subject: [PHISH] Verify your")

	err := client.Send("service@paypa1.com", []string{"victim@example.org"}, []byte(rawMessage))
	var smtpErr *smtp.SMTPError
	require.ErrorAs(t, err, &smtpErr)
	assert.Equal(t, 451, smtpErr.Code)

	backend.mu.Lock()
	assert.Len(t, backend.messages, 1, "deferred message is not relayed")
	backend.mu.Unlock()
}

func TestCliFilterText(t *testing.T) {
	analyzer := new(MockAnalyzer)
	sel := core.ProviderSelector{Name: "glm46", Overrides: core.ProviderOverrides{Model: "glm-4.6"}}
	analyzer.On("ComputeRisk", mock.Anything, mock.Anything, sel).Return(testReport(72, core.SeverityHigh), nil)

	var out bytes.Buffer
	f, err := NewCliFilter(analyzer, sel, &out, false, true, zap.NewNop())
	require.NoError(t, err)

	email := &core.ParsedEmail{
		Text:        "Click http://paypa1.com/login",
		URLs:        []string{"http://paypa1.com/login"},
		Attachments: []string{"a.zip"},
		Meta:        core.EmailMeta{Headers: map[string]string{"Subject": "Verify", "From": "x@paypa1.com"}},
	}
	report, err := f.ProcessEmail(context.Background(), email)
	require.NoError(t, err)
	assert.Equal(t, 72, report.Score)

	text := out.String()
	assert.Contains(t, text, "Subject: Verify")
	assert.Contains(t, text, "  url: http://paypa1.com/login")
	assert.Contains(t, text, "Score: 72/100 (高)")
	assert.Contains(t, text, "Confidence: 0.755")
	assert.Contains(t, text, "1. [高] 社会工程学")
	assert.Contains(t, text, "   - urgent tone")
	assert.Contains(t, text, "链接投递 -> 钓鱼页面")
	assert.Contains(t, text, "Signature: "+report.Signature())
}

func TestCliFilterJSON(t *testing.T) {
	analyzer := new(MockAnalyzer)
	analyzer.On("ComputeRisk", mock.Anything, mock.Anything, mock.Anything).Return(testReport(72, core.SeverityHigh), nil)

	var out bytes.Buffer
	f, err := NewCliFilter(analyzer, core.ProviderSelector{}, &out, true, false, zap.NewNop())
	require.NoError(t, err)

	report, err := f.ProcessEmail(context.Background(), &core.ParsedEmail{})
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &decoded))
	assert.EqualValues(t, 72, decoded["score"])
	assert.Equal(t, "高", decoded["level"])
	assert.Equal(t, report.Signature(), decoded["signature"])
	assert.Len(t, decoded["threats"], 2)
}

func TestCliFilterPropagatesProviderError(t *testing.T) {
	analyzer := new(MockAnalyzer)
	analyzer.On("ComputeRisk", mock.Anything, mock.Anything, mock.Anything).
		Return(nil, core.NewProviderError("custom", 0, core.ErrProviderNotConfigured))

	var out bytes.Buffer
	f, err := NewCliFilter(analyzer, core.ProviderSelector{}, &out, false, false, zap.NewNop())
	require.NoError(t, err)

	_, err = f.ProcessEmail(context.Background(), &core.ParsedEmail{})
	assert.ErrorIs(t, err, core.ErrProviderFailed)
	assert.ErrorIs(t, err, core.ErrProviderNotConfigured)
	assert.Empty(t, out.String())
}
