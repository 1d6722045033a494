package ports

import (
	"context"

	"github.com/mikey/llm-phish-detector/internal/core"
)

// EmailFilter defines the interface for the front ends that score mail
type EmailFilter interface {
	// ProcessEmail scores a parsed email and returns its risk report
	ProcessEmail(ctx context.Context, email *core.ParsedEmail) (*core.RiskReport, error)

	// Start starts the email filter service
	Start() error

	// Stop stops the email filter service
	Stop() error
}
