package filter

import (
	"errors"
	"strings"
	"testing"

	"github.com/emersion/go-milter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mikey/llm-phish-detector/internal/adapters/parser"
	"github.com/mikey/llm-phish-detector/internal/core"
	"github.com/mikey/llm-phish-detector/internal/utils"
	"github.com/mikey/llm-phish-detector/internal/whitelist"
)

type headerOp struct {
	op    string
	index int
	name  string
	value string
}

type recordingModifier struct {
	ops []headerOp
}

func (m *recordingModifier) AddHeader(name, value string) error {
	m.ops = append(m.ops, headerOp{op: "add", name: name, value: value})
	return nil
}

func (m *recordingModifier) ChangeHeader(index int, name, value string) error {
	m.ops = append(m.ops, headerOp{op: "change", index: index, name: name, value: value})
	return nil
}

func newTestMilter(analyzer RiskAnalyzer, checker *whitelist.Checker) *MilterFilter {
	logger := zap.NewNop()
	return NewMilterFilter(analyzer, parser.NewParser(utils.NewTextProcessor(logger), logger), checker, testServerConfig(), logger)
}

// feed replays one message through the session callbacks
func feed(t *testing.T, s *milterSession, sender string, headers [][2]string, body string) {
	t.Helper()
	_, err := s.MailFrom(sender, nil)
	require.NoError(t, err)
	for _, h := range headers {
		_, err := s.Header(h[0], h[1], nil)
		require.NoError(t, err)
	}
	_, err = s.BodyChunk([]byte(body), nil)
	require.NoError(t, err)
}

var milterHeaders = [][2]string{
	{"From", "Service <service@paypa1.com>"},
	{"To", "victim@example.org"},
	{"X-Phish-Score", "0"},
	{"Subject", "Verify your account"},
	{"x-phish-score", "1"},
}

func TestMilterAnnotatesMessage(t *testing.T) {
	analyzer := new(MockAnalyzer)
	analyzer.On("ComputeRisk", mock.Anything, mock.MatchedBy(func(e *core.ParsedEmail) bool {
		return e.Subject() == "Verify your account" &&
			len(e.URLs) == 1 && e.URLs[0] == "http://paypa1.com/login"
	}), core.ProviderSelector{}).Return(testReport(72, core.SeverityHigh), nil)

	s := newTestMilter(analyzer, nil).newSession()
	feed(t, s, "<service@paypa1.com>", milterHeaders, "Click http://paypa1.com/login\r\n")

	mod := &recordingModifier{}
	resp, err := s.end(mod)
	require.NoError(t, err)
	assert.Equal(t, milter.RespAccept, resp)

	assert.Equal(t, []headerOp{
		{op: "change", index: 2, name: "X-Phish-Score"},
		{op: "change", index: 1, name: "X-Phish-Score"},
		{op: "add", name: "X-Phish-Score", value: "72"},
		{op: "add", name: "X-Phish-Level", value: encodeHeaderValue(string(core.SeverityHigh))},
		{op: "add", name: "X-Phish-Confidence", value: "0.755"},
		{op: "add", name: "X-Phish-Threats", value: encodeHeaderValue("社会工程学, 恶意链接")},
		{op: "change", index: 1, name: "Subject", value: "[PHISH] Verify your account"},
	}, mod.ops)
	analyzer.AssertExpectations(t)
}

func TestMilterRemovesEveryCopyFromTheEnd(t *testing.T) {
	analyzer := new(MockAnalyzer)
	analyzer.On("ComputeRisk", mock.Anything, mock.Anything, mock.Anything).Return(testReport(10, core.SeverityLow), nil)

	s := newTestMilter(analyzer, nil).newSession()
	feed(t, s, "a@b.example", [][2]string{
		{"X-Phish-Threats", "forged"},
		{"X-Phish-Threats", "forged again"},
		{"Subject", "hello"},
	}, "hi\r\n")

	mod := &recordingModifier{}
	_, err := s.end(mod)
	require.NoError(t, err)

	assert.Equal(t, []headerOp{
		{op: "change", index: 2, name: "X-Phish-Threats"},
		{op: "change", index: 1, name: "X-Phish-Threats"},
	}, mod.ops[:2])
	for _, op := range mod.ops {
		assert.NotEqual(t, "Subject", op.name, "no prefix below 高")
	}
}

func TestMilterAddsMissingSubject(t *testing.T) {
	analyzer := new(MockAnalyzer)
	analyzer.On("ComputeRisk", mock.Anything, mock.Anything, mock.Anything).Return(testReport(90, core.SeverityCritical), nil)

	s := newTestMilter(analyzer, nil).newSession()
	feed(t, s, "a@b.example", [][2]string{{"From", "a@b.example"}}, "hi\r\n")

	mod := &recordingModifier{}
	_, err := s.end(mod)
	require.NoError(t, err)
	assert.Equal(t, headerOp{op: "add", name: "Subject", value: "[PHISH]"}, mod.ops[len(mod.ops)-1])
}

func TestMilterKeepsExistingPrefix(t *testing.T) {
	analyzer := new(MockAnalyzer)
	analyzer.On("ComputeRisk", mock.Anything, mock.Anything, mock.Anything).Return(testReport(90, core.SeverityCritical), nil)

	s := newTestMilter(analyzer, nil).newSession()
	feed(t, s, "a@b.example", [][2]string{{"Subject", "[PHISH] already flagged"}}, "hi\r\n")

	mod := &recordingModifier{}
	_, err := s.end(mod)
	require.NoError(t, err)
	assert.Len(t, mod.ops, 4, "only the report headers are added")
}

func TestMilterWhitelistBypass(t *testing.T) {
	analyzer := new(MockAnalyzer)
	s := newTestMilter(analyzer, whitelist.NewChecker([]string{"paypa1.com"}, zap.NewNop())).newSession()
	feed(t, s, "<service@paypa1.com>", milterHeaders, "Click http://paypa1.com/login\r\n")

	mod := &recordingModifier{}
	resp, err := s.end(mod)
	require.NoError(t, err)
	assert.Equal(t, milter.RespAccept, resp)
	assert.Empty(t, mod.ops)
	analyzer.AssertNotCalled(t, "ComputeRisk", mock.Anything, mock.Anything, mock.Anything)
}

func TestMilterProviderFailureTempFails(t *testing.T) {
	analyzer := new(MockAnalyzer)
	analyzer.On("ComputeRisk", mock.Anything, mock.Anything, mock.Anything).
		Return(nil, core.NewProviderError("gemini", 3, errors.New("quota exceeded")))

	s := newTestMilter(analyzer, nil).newSession()
	feed(t, s, "a@b.example", milterHeaders, "hi\r\n")

	mod := &recordingModifier{}
	resp, err := s.end(mod)
	require.NoError(t, err)
	assert.Equal(t, milter.RespTempFail, resp)
	assert.Empty(t, mod.ops, "an unscored message is never annotated")
}

func TestMilterSessionResetsBetweenMessages(t *testing.T) {
	analyzer := new(MockAnalyzer)
	analyzer.On("ComputeRisk", mock.Anything, mock.MatchedBy(func(e *core.ParsedEmail) bool {
		return e.Subject() == "second" && !strings.Contains(e.Text, "first body")
	}), mock.Anything).Return(testReport(10, core.SeverityLow), nil)

	s := newTestMilter(analyzer, nil).newSession()
	feed(t, s, "a@b.example", [][2]string{{"Subject", "first"}, {"X-Phish-Score", "5"}}, "first body\r\n")
	require.NoError(t, s.Abort(nil))

	feed(t, s, "a@b.example", [][2]string{{"Subject", "second"}}, "second body\r\n")
	mod := &recordingModifier{}
	_, err := s.end(mod)
	require.NoError(t, err)

	assert.Len(t, mod.ops, 4, "aborted message headers are forgotten")
	analyzer.AssertExpectations(t)
}

func TestMilterTruncatesOversizedBody(t *testing.T) {
	f := newTestMilter(new(MockAnalyzer), nil)
	f.cfg.MaxMessageBytes = 64
	s := f.newSession()
	feed(t, s, "a@b.example", [][2]string{{"Subject", "big"}}, strings.Repeat("x", 200))

	assert.True(t, s.truncated)
	assert.Equal(t, int64(64), int64(s.header.Len()+s.body.Len()))
}

func TestMilterStartStop(t *testing.T) {
	f := newTestMilter(new(MockAnalyzer), nil)
	require.NoError(t, f.Start())
	assert.NotEmpty(t, f.Addr())
	assert.NoError(t, f.Stop())
}
