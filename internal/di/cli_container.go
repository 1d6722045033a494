package di

import (
	"flag"
	"io"
	"os"
	"strings"

	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/mikey/llm-phish-detector/internal/config"
	"github.com/mikey/llm-phish-detector/internal/core"
	"github.com/mikey/llm-phish-detector/internal/logging"
)

// CLIFlags contains all command line flags for the CLI application
type CLIFlags struct {
	// Semantic provider flags
	Provider string
	Model    string
	APIKey   string
	BaseURL  string

	// Analysis flags
	NoIntel    bool
	BrandsFile string
	CacheType  string

	// Input and output flags
	InputFile  string
	JSON       bool
	Verbose    bool
	JSONLog    bool
	ConfigFile string
}

// ParseFlags parses command line flags and returns a CLIFlags struct
func ParseFlags() *CLIFlags {
	return ParseFlagSet(flag.CommandLine, os.Args[1:])
}

// ParseFlagSet registers the CLI flags on fs and parses args
func ParseFlagSet(fs *flag.FlagSet, args []string) *CLIFlags {
	flags := &CLIFlags{}

	fs.StringVar(&flags.Provider, "provider", "", "Semantic provider (gemini, glm46, custom, openai, bedrock); empty uses llm.provider")
	fs.StringVar(&flags.Model, "model", "", "Model override for this analysis")
	fs.StringVar(&flags.APIKey, "api-key", "", "API key override for this analysis")
	fs.StringVar(&flags.BaseURL, "base-url", "", "Endpoint override for OpenAI-compatible providers")

	fs.BoolVar(&flags.NoIntel, "no-intel", false, "Skip WHOIS, TLS and certificate-transparency lookups")
	fs.StringVar(&flags.BrandsFile, "brands", "", "Path to the brand registry JSON file")
	fs.StringVar(&flags.CacheType, "cache", "", "WHOIS cache backend (memory, sqlite, mysql, redis)")

	fs.StringVar(&flags.InputFile, "file", "", "Input email file (.eml parsed as MIME, anything else as text); stdin if empty")
	fs.BoolVar(&flags.JSON, "json", false, "Print the report as JSON")
	fs.BoolVar(&flags.Verbose, "verbose", false, "Enable verbose output and debug logging")
	fs.BoolVar(&flags.JSONLog, "json-log", false, "Output logs in JSON format")
	fs.StringVar(&flags.ConfigFile, "config", "", "Path to config file")

	_ = fs.Parse(args)
	return flags
}

// Selector returns the provider selection the flags describe
func (f *CLIFlags) Selector() core.ProviderSelector {
	return core.ProviderSelector{
		Name: strings.TrimSpace(f.Provider),
		Overrides: core.ProviderOverrides{
			Model:   f.Model,
			APIKey:  f.APIKey,
			BaseURL: f.BaseURL,
		},
	}
}

// BuildCLIContainer creates and configures a dependency injection container for the CLI application
func BuildCLIContainer(flags *CLIFlags) (*dig.Container, error) {
	container := dig.New()

	// Register flags
	if err := container.Provide(func() *CLIFlags { return flags }); err != nil {
		return nil, err
	}

	// Register logger
	if err := container.Provide(func(flags *CLIFlags) (*zap.Logger, error) {
		return logging.InitConsoleLogger(flags.Verbose, flags.JSONLog)
	}); err != nil {
		return nil, err
	}

	// Register configuration
	if err := container.Provide(func(flags *CLIFlags, logger *zap.Logger) (*config.Config, error) {
		cfg, err := config.NewWithFile(flags.ConfigFile)
		if err != nil {
			return nil, err
		}
		if used := cfg.GetViper().ConfigFileUsed(); used != "" {
			logger.Info("Loaded configuration from file", zap.String("file", used))
		}
		applyFlags(cfg, flags)
		return cfg, nil
	}); err != nil {
		return nil, err
	}

	if err := container.Provide(func(flags *CLIFlags) core.ProviderSelector { return flags.Selector() }); err != nil {
		return nil, err
	}

	if err := container.Provide(func() io.Writer { return os.Stdout }); err != nil {
		return nil, err
	}

	if err := provideEngine(container); err != nil {
		return nil, err
	}
	return container, nil
}

// applyFlags overlays command line flags on the loaded configuration
func applyFlags(cfg *config.Config, flags *CLIFlags) {
	cfg.Set("server.filter_type", "cli")
	cfg.Set("cli.json", flags.JSON)
	cfg.Set("cli.verbose", flags.Verbose)

	if flags.NoIntel {
		cfg.Set("intel.enabled", false)
	}
	if flags.BrandsFile != "" {
		cfg.Set("brands.path", flags.BrandsFile)
	}
	if flags.CacheType != "" {
		cfg.Set("cache.type", flags.CacheType)
	}
}
