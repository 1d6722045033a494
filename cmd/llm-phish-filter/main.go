package main

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/mikey/llm-phish-detector/internal/config"
	"github.com/mikey/llm-phish-detector/internal/di"
	"github.com/mikey/llm-phish-detector/internal/factory"
	"github.com/mikey/llm-phish-detector/internal/metrics"
	"github.com/mikey/llm-phish-detector/internal/ports"
)

func main() {
	// Environment files are optional
	_ = godotenv.Load()

	// Build the dependency injection container
	container, err := di.BuildContainer()
	if err != nil {
		fmt.Printf("Failed to build dependency container: %v\n", err)
		os.Exit(1)
	}

	// Run the application
	if err := container.Invoke(run); err != nil {
		fmt.Printf("Application error: %v\n", err)
		os.Exit(1)
	}
}

// run is the main application function that gets all dependencies injected
func run(
	cfg *config.Config,
	logger *zap.Logger,
	emailFilter ports.EmailFilter,
	llmFactory *factory.LLMFactory,
	whoisCache factory.WhoisCache,
	m *metrics.Metrics,
) error {
	defer logger.Sync()

	logger.Info("Semantic providers available",
		zap.String("default", llmFactory.DefaultProvider()),
		zap.Strings("providers", llmFactory.Providers()))

	// Start the filter
	if err := emailFilter.Start(); err != nil {
		logger.Error("Failed to start filter", zap.Error(err))
		return err
	}

	// Expose metrics when configured
	var metricsServer *http.Server
	if addr := cfg.GetString("metrics.listen_address"); addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", m.Handler())
		metricsServer = &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("Metrics server failed", zap.Error(err))
			}
		}()
		logger.Info("Serving metrics", zap.String("address", addr))
	}

	// Handle graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	<-sigCh
	logger.Info("Shutting down...")

	// Stop the filter
	if err := emailFilter.Stop(); err != nil {
		logger.Error("Failed to stop filter", zap.Error(err))
	}

	if metricsServer != nil {
		if err := metricsServer.Close(); err != nil {
			logger.Error("Failed to stop metrics server", zap.Error(err))
		}
	}

	// Close any provider clients that hold connections
	if err := llmFactory.Close(); err != nil {
		logger.Error("Failed to close LLM clients", zap.Error(err))
	}

	// Stop the cache cleanup task
	whoisCache.Stop()

	logger.Info("Shutdown complete")
	return nil
}
