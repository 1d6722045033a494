// Package semantic holds the provider-independent half of LLM semantic
// scoring: text preparation, the retry policy and response parsing. Provider
// adapters only implement Completer.
package semantic

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/mikey/llm-phish-detector/internal/core"
	"github.com/mikey/llm-phish-detector/internal/metrics"
	"github.com/mikey/llm-phish-detector/internal/utils"
)

// Defaults
const (
	DefaultMaxChars       = 50000
	DefaultRetries        = 2
	DefaultInitialBackoff = 500 * time.Millisecond
	DefaultTimeout        = 60 * time.Second
)

// Completer sends one prompt to a model and returns its raw reply
type Completer interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Config controls text preparation and retries
type Config struct {
	MaxChars       int
	Retries        int
	InitialBackoff time.Duration
	Timeout        time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxChars <= 0 {
		c.MaxChars = DefaultMaxChars
	}
	if c.Retries < 0 {
		c.Retries = DefaultRetries
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = DefaultInitialBackoff
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	return c
}

// Client implements core.SemanticProvider on top of a Completer
type Client struct {
	name      string
	completer Completer
	cfg       Config
	text      *utils.TextProcessor
	metrics   *metrics.Metrics
	logger    *zap.Logger
}

// NewClient creates a new semantic client for the named provider
func NewClient(name string, completer Completer, cfg Config, text *utils.TextProcessor, m *metrics.Metrics, logger *zap.Logger) *Client {
	return &Client{
		name:      name,
		completer: completer,
		cfg:       cfg.withDefaults(),
		text:      text,
		metrics:   m,
		logger:    logger,
	}
}

// Name returns the provider tag
func (c *Client) Name() string {
	return c.name
}

// Close releases the completer when it holds connections
func (c *Client) Close() error {
	if closer, ok := c.completer.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

// AnalyzeSemantics strips and truncates the text, then asks the model for a
// score. Each attempt has its own timeout; transport and parse failures are
// retried with exponential backoff. Exhaustion returns a *core.ProviderError
// joining every attempt's cause.
func (c *Client) AnalyzeSemantics(ctx context.Context, text string) (*core.SemanticScore, error) {
	prepared := c.text.ProcessText(text, c.cfg.MaxChars)

	var (
		score    *core.SemanticScore
		causes   []error
		attempts int
	)

	operation := func() error {
		attempts++
		attemptCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()

		reply, err := c.completer.Complete(attemptCtx, SystemPrompt, prepared)
		if err == nil {
			score, err = ParseResponse(reply)
		}
		c.metrics.ProviderAttempt(c.name, err)
		if err == nil {
			return nil
		}

		causes = append(causes, fmt.Errorf("attempt %d: %w", attempts, err))
		if errors.Is(err, core.ErrProviderNotConfigured) {
			return backoff.Permanent(err)
		}
		return err
	}

	notify := func(err error, wait time.Duration) {
		c.logger.Warn("Semantic analysis attempt failed, retrying",
			zap.String("provider", c.name),
			zap.Int("attempt", attempts),
			zap.Duration("backoff", wait),
			zap.Error(err))
	}

	if err := backoff.RetryNotify(operation, c.retryPolicy(ctx), notify); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(errors.Join(causes...), ctxErr) {
			causes = append(causes, ctxErr)
		}
		return nil, &core.ProviderError{
			Provider: c.name,
			Attempts: attempts,
			Err:      errors.Join(causes...),
		}
	}

	c.logger.Debug("Semantic analysis complete",
		zap.String("provider", c.name),
		zap.Int("attempts", attempts),
		zap.Int("social_engineering", score.SocialEngineering),
		zap.Int("style_anomaly", score.StyleAnomaly))
	return score, nil
}

// retryPolicy waits InitialBackoff, then doubles, for at most Retries extra attempts
func (c *Client) retryPolicy(ctx context.Context) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = c.cfg.InitialBackoff
	exp.Multiplier = 2
	exp.RandomizationFactor = 0
	exp.MaxInterval = c.cfg.InitialBackoff << 10
	exp.MaxElapsedTime = 0
	exp.Reset()

	return backoff.WithContext(backoff.WithMaxRetries(exp, uint64(c.cfg.Retries)), ctx)
}
