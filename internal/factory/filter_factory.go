package factory

import (
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/mikey/llm-phish-detector/internal/adapters/filter"
	"github.com/mikey/llm-phish-detector/internal/adapters/parser"
	"github.com/mikey/llm-phish-detector/internal/config"
	"github.com/mikey/llm-phish-detector/internal/core"
	"github.com/mikey/llm-phish-detector/internal/ports"
	"github.com/mikey/llm-phish-detector/internal/whitelist"
)

// FilterFactory creates email filters based on configuration
type FilterFactory struct {
	cfg      *config.Config
	logger   *zap.Logger
	service  *core.RiskService
	parser   *parser.Parser
	selector core.ProviderSelector
	out      io.Writer
}

// NewFilterFactory creates a new filter factory
func NewFilterFactory(
	cfg *config.Config,
	logger *zap.Logger,
	service *core.RiskService,
	p *parser.Parser,
	selector core.ProviderSelector,
	out io.Writer,
) *FilterFactory {
	return &FilterFactory{
		cfg:      cfg,
		logger:   logger,
		service:  service,
		parser:   p,
		selector: selector,
		out:      out,
	}
}

// CreateEmailFilter creates an email filter based on the configuration
func (f *FilterFactory) CreateEmailFilter() (ports.EmailFilter, error) {
	serverCfg := f.cfg.GetServer()

	switch serverCfg.FilterType {
	case "postfix":
		checker := whitelist.NewChecker(serverCfg.WhitelistedDomains, f.logger)
		return filter.NewPostfixFilter(
			f.service,
			f.parser,
			checker,
			filter.NewSMTPRelay(serverCfg.RelayAddress, f.logger),
			serverCfg,
			f.logger,
		), nil
	case "milter":
		checker := whitelist.NewChecker(serverCfg.WhitelistedDomains, f.logger)
		return filter.NewMilterFilter(
			f.service,
			f.parser,
			checker,
			serverCfg,
			f.logger,
		), nil
	case "cli":
		return filter.NewCliFilter(
			f.service,
			f.selector,
			f.out,
			f.cfg.GetBool("cli.json"),
			f.cfg.GetBool("cli.verbose"),
			f.logger,
		)
	default:
		return nil, fmt.Errorf("unsupported filter type: %s", serverCfg.FilterType)
	}
}
