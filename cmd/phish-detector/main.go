package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/mikey/llm-phish-detector/internal/adapters/parser"
	"github.com/mikey/llm-phish-detector/internal/core"
	"github.com/mikey/llm-phish-detector/internal/di"
	"github.com/mikey/llm-phish-detector/internal/factory"
	"github.com/mikey/llm-phish-detector/internal/ports"
)

// Exit codes
const (
	exitOK            = 0
	exitError         = 1
	exitProviderError = 2
)

func main() {
	// Environment files are optional
	_ = godotenv.Load()

	flags := di.ParseFlags()

	// Build the dependency injection container
	container, err := di.BuildCLIContainer(flags)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build dependency container: %v\n", err)
		os.Exit(exitError)
	}

	code := exitOK
	if err := container.Invoke(func(
		logger *zap.Logger,
		p *parser.Parser,
		emailFilter ports.EmailFilter,
		llmFactory *factory.LLMFactory,
		whoisCache factory.WhoisCache,
	) {
		code = run(flags, logger, p, emailFilter, llmFactory, whoisCache)
	}); err != nil {
		fmt.Fprintf(os.Stderr, "Application error: %v\n", err)
		os.Exit(exitError)
	}
	os.Exit(code)
}

// run analyzes one email and returns the process exit code
func run(
	flags *di.CLIFlags,
	logger *zap.Logger,
	p *parser.Parser,
	emailFilter ports.EmailFilter,
	llmFactory *factory.LLMFactory,
	whoisCache factory.WhoisCache,
) int {
	defer logger.Sync()
	defer whoisCache.Stop()
	defer func() {
		if err := llmFactory.Close(); err != nil {
			logger.Error("Failed to close LLM clients", zap.Error(err))
		}
	}()

	var (
		email *core.ParsedEmail
		err   error
	)
	if flags.InputFile != "" {
		logger.Info("Reading email from file", zap.String("file", flags.InputFile))
		email, err = p.ParseFile(flags.InputFile)
	} else {
		logger.Info("Reading email from stdin")
		email, err = p.Parse(os.Stdin, "stdin")
	}
	if err != nil {
		logger.Error("Failed to parse email", zap.Error(err))
		return exitError
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if _, err := emailFilter.ProcessEmail(ctx, email); err != nil {
		var pe *core.ProviderError
		if errors.As(err, &pe) {
			fmt.Fprintf(os.Stderr, "Semantic analysis failed: %v\n", err)
			return exitProviderError
		}
		fmt.Fprintf(os.Stderr, "Analysis failed: %v\n", err)
		return exitError
	}
	return exitOK
}
