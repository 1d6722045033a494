package filter

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mikey/llm-phish-detector/internal/core"
)

// RiskAnalyzer computes risk reports; satisfied by *core.RiskService
type RiskAnalyzer interface {
	ComputeRisk(ctx context.Context, email *core.ParsedEmail, sel core.ProviderSelector) (*core.RiskReport, error)
}

// CliFilter prints a risk report for one email
type CliFilter struct {
	service    RiskAnalyzer
	selector   core.ProviderSelector
	out        io.Writer
	jsonOutput bool
	verbose    bool
	logger     *zap.Logger
}

// NewCliFilter creates a new CLI filter
func NewCliFilter(
	service RiskAnalyzer,
	selector core.ProviderSelector,
	out io.Writer,
	jsonOutput bool,
	verbose bool,
	logger *zap.Logger,
) (*CliFilter, error) {
	return &CliFilter{
		service:    service,
		selector:   selector,
		out:        out,
		jsonOutput: jsonOutput,
		verbose:    verbose,
		logger:     logger,
	}, nil
}

// ProcessEmail analyzes an email and writes the report
func (f *CliFilter) ProcessEmail(ctx context.Context, email *core.ParsedEmail) (*core.RiskReport, error) {
	f.logger.Debug("Processing email",
		zap.String("subject", email.Subject()),
		zap.Int("urls", len(email.URLs)),
		zap.Int("attachments", len(email.Attachments)))

	start := time.Now()
	report, err := f.service.ComputeRisk(ctx, email, f.selector)
	if err != nil {
		f.logger.Error("Failed to analyze email", zap.Error(err))
		return nil, err
	}

	if f.jsonOutput {
		err = f.writeJSON(report)
	} else {
		err = f.writeText(email, report, time.Since(start))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to write report: %w", err)
	}
	return report, nil
}

func (f *CliFilter) writeJSON(report *core.RiskReport) error {
	enc := json.NewEncoder(f.out)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(struct {
		*core.RiskReport
		Signature string `json:"signature"`
	}{report, report.Signature()})
}

func (f *CliFilter) writeText(email *core.ParsedEmail, report *core.RiskReport, elapsed time.Duration) error {
	var b strings.Builder

	fmt.Fprintf(&b, "\n=== Email Summary ===\n")
	fmt.Fprintf(&b, "From: %s\n", email.Meta.Header("From"))
	fmt.Fprintf(&b, "To: %s\n", email.Meta.Header("To"))
	fmt.Fprintf(&b, "Subject: %s\n", email.Subject())
	fmt.Fprintf(&b, "URLs: %d  Attachments: %d  Text length: %d\n",
		len(email.URLs), len(email.Attachments), len([]rune(email.Text)))

	if f.verbose {
		for _, u := range email.URLs {
			fmt.Fprintf(&b, "  url: %s\n", u)
		}
		for _, a := range email.Attachments {
			fmt.Fprintf(&b, "  attachment: %s\n", a)
		}
		preview := []rune(email.Text)
		if len(preview) > 500 {
			preview = append(preview[:500], []rune("...")...)
		}
		fmt.Fprintf(&b, "\nBody preview:\n%s\n", string(preview))
	}

	fmt.Fprintf(&b, "\n=== Risk Report ===\n")
	fmt.Fprintf(&b, "ID: %s\n", report.ID)
	fmt.Fprintf(&b, "Provider: %s\n", report.Provider)
	fmt.Fprintf(&b, "Score: %d/100 (%s)\n", report.Score, report.Level)
	fmt.Fprintf(&b, "Confidence: %.3f\n", report.Confidence)
	fmt.Fprintf(&b, "Summary: %s\n", report.Summary)
	fmt.Fprintf(&b, "Signature: %s\n", report.Signature())
	fmt.Fprintf(&b, "Processing time: %v\n", elapsed.Round(time.Millisecond))

	fmt.Fprintf(&b, "\n=== Threats ===\n")
	if len(report.Threats) == 0 {
		fmt.Fprintf(&b, "None\n")
	}
	for i, t := range report.Threats {
		fmt.Fprintf(&b, "%d. [%s] %s\n", i+1, t.Severity, t.Name)
		fmt.Fprintf(&b, "   Vector: %s\n", t.Vector)
		if len(t.Affected) > 0 {
			fmt.Fprintf(&b, "   Affected: %s\n", strings.Join(t.Affected, ", "))
		}
		fmt.Fprintf(&b, "   Impact: %s\n", t.Impact)
		if t.Sample != "" {
			fmt.Fprintf(&b, "   Sample: %s\n", t.Sample)
		}
		fmt.Fprintf(&b, "   Recommendation: %s\n", t.Recommendation)
		for _, e := range t.Evidence {
			fmt.Fprintf(&b, "   - %s\n", e)
		}
	}

	fmt.Fprintf(&b, "\n=== Attack Chain ===\n%s\n", strings.Join(report.Chain, " -> "))

	_, err := io.WriteString(f.out, b.String())
	return err
}

// Start is a no-op for the CLI filter
func (f *CliFilter) Start() error {
	return nil
}

// Stop is a no-op for the CLI filter
func (f *CliFilter) Stop() error {
	return nil
}
