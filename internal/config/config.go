package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	v *viper.Viper
}

// New creates a new configuration instance
func New() (*Config, error) {
	return NewWithFile("")
}

// NewWithFile loads configuration from an explicit file, or from the usual
// search path when path is empty
func NewWithFile(path string) (*Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("/etc/llm-phish-detector/")
		v.AddConfigPath("$HOME/.llm-phish-detector")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	setDefaults(v)
	bindEnv(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found, using defaults
	}

	return &Config{v: v}, nil
}

// NewFromViper creates a new configuration instance from an existing Viper instance
func NewFromViper(v *viper.Viper) *Config {
	return &Config{v: v}
}

// NewEmptyViper creates a new Viper instance with defaults
func NewEmptyViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	return v
}

func bindEnv(v *viper.Viper) {
	v.AutomaticEnv()
	v.SetEnvPrefix("PHISH_DETECTOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Conventional provider variables, usually supplied through a .env file
	_ = v.BindEnv("gemini.api_key", "PHISH_DETECTOR_GEMINI_API_KEY", "GEMINI_API_KEY")
	_ = v.BindEnv("gemini.model_name", "PHISH_DETECTOR_GEMINI_MODEL_NAME", "GEMINI_MODEL")
	_ = v.BindEnv("glm.api_key", "PHISH_DETECTOR_GLM_API_KEY", "GLM_API_KEY")
	_ = v.BindEnv("glm.model_name", "PHISH_DETECTOR_GLM_MODEL_NAME", "GLM_MODEL")
	_ = v.BindEnv("custom.api_key", "PHISH_DETECTOR_CUSTOM_API_KEY", "CUSTOM_API_KEY")
	_ = v.BindEnv("custom.base_url", "PHISH_DETECTOR_CUSTOM_BASE_URL", "CUSTOM_BASE_URL")
	_ = v.BindEnv("custom.model_name", "PHISH_DETECTOR_CUSTOM_MODEL_NAME", "CUSTOM_MODEL")
	_ = v.BindEnv("openai.api_key", "PHISH_DETECTOR_OPENAI_API_KEY", "OPENAI_API_KEY")
}

// setDefaults sets the default configuration values
func setDefaults(v *viper.Viper) {
	// Semantic analysis defaults
	v.SetDefault("llm.provider", "gemini")
	v.SetDefault("llm.max_chars", 50000)
	v.SetDefault("llm.retries", 2)
	v.SetDefault("llm.backoff", "500ms")
	v.SetDefault("llm.timeout", "60s")

	// Server defaults
	v.SetDefault("server.filter_type", "postfix")
	v.SetDefault("server.listen_address", "0.0.0.0:10025")
	v.SetDefault("server.relay_address", "127.0.0.1:10026")
	v.SetDefault("server.domain", "localhost")
	v.SetDefault("server.max_message_bytes", 10*1024*1024)
	v.SetDefault("server.analysis_timeout", "180s")
	v.SetDefault("server.subject_prefix", "[PHISH]")
	v.SetDefault("server.headers.score", "X-Phish-Score")
	v.SetDefault("server.headers.level", "X-Phish-Level")
	v.SetDefault("server.headers.confidence", "X-Phish-Confidence")
	v.SetDefault("server.headers.threats", "X-Phish-Threats")
	v.SetDefault("server.whitelisted_domains", []string{})

	// Gemini defaults
	v.SetDefault("gemini.api_key", "")
	v.SetDefault("gemini.model_name", "gemini-2.5-flash")
	v.SetDefault("gemini.max_tokens", 1024)
	v.SetDefault("gemini.temperature", 0.1)
	v.SetDefault("gemini.top_p", 0.9)

	// GLM defaults, served through the OpenAI-compatible endpoint
	v.SetDefault("glm.api_key", "")
	v.SetDefault("glm.model_name", "glm-4.6")
	v.SetDefault("glm.base_url", "https://open.bigmodel.cn/api/paas/v4/")
	v.SetDefault("glm.max_tokens", 1024)
	v.SetDefault("glm.temperature", 0.1)
	v.SetDefault("glm.top_p", 0.9)

	// Custom OpenAI-compatible endpoint defaults
	v.SetDefault("custom.api_key", "")
	v.SetDefault("custom.model_name", "gpt-4o-mini")
	v.SetDefault("custom.base_url", "")
	v.SetDefault("custom.max_tokens", 1024)
	v.SetDefault("custom.temperature", 0.1)
	v.SetDefault("custom.top_p", 0.9)

	// OpenAI defaults
	v.SetDefault("openai.api_key", "")
	v.SetDefault("openai.model_name", "gpt-4o-mini")
	v.SetDefault("openai.base_url", "")
	v.SetDefault("openai.max_tokens", 1024)
	v.SetDefault("openai.temperature", 0.1)
	v.SetDefault("openai.top_p", 0.9)

	// Bedrock defaults
	v.SetDefault("bedrock.region", "us-east-1")
	v.SetDefault("bedrock.model_id", "anthropic.claude-3-haiku-20240307-v1:0")
	v.SetDefault("bedrock.max_tokens", 1024)
	v.SetDefault("bedrock.temperature", 0.1)
	v.SetDefault("bedrock.top_p", 0.9)

	// Brand registry
	v.SetDefault("brands.path", "./configs/brands.json")

	// Threat intelligence defaults
	v.SetDefault("intel.enabled", true)
	v.SetDefault("intel.whois_timeout", "10s")
	v.SetDefault("intel.ssl_timeout", "5s")
	v.SetDefault("intel.ssl_port", 443)
	v.SetDefault("intel.ct_timeout", "5s")
	v.SetDefault("intel.ct_limit", 20)
	v.SetDefault("intel.ct_base_url", "https://crt.sh/")
	v.SetDefault("intel.new_domain_window", "26280h")

	// WHOIS cache defaults
	v.SetDefault("cache.type", "sqlite")
	v.SetDefault("cache.ttl", "24h")
	v.SetDefault("cache.cleanup_frequency", "1h")
	v.SetDefault("cache.sqlite_path", "./data/whois_cache.db")
	v.SetDefault("cache.mysql_dsn", "user:password@tcp(localhost:3306)/phish_detector")
	v.SetDefault("cache.redis_addr", "localhost:6379")
	v.SetDefault("cache.redis_password", "")
	v.SetDefault("cache.redis_db", 0)

	// Metrics defaults
	v.SetDefault("metrics.listen_address", "")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
}

// GetString gets a string value from the configuration
func (c *Config) GetString(key string) string {
	return c.v.GetString(key)
}

// GetInt gets an integer value from the configuration
func (c *Config) GetInt(key string) int {
	return c.v.GetInt(key)
}

// GetFloat64 gets a float64 value from the configuration
func (c *Config) GetFloat64(key string) float64 {
	return c.v.GetFloat64(key)
}

// GetBool gets a boolean value from the configuration
func (c *Config) GetBool(key string) bool {
	return c.v.GetBool(key)
}

// GetStringSlice gets a string slice value from the configuration
func (c *Config) GetStringSlice(key string) []string {
	return c.v.GetStringSlice(key)
}

// GetDuration gets a duration value from the configuration
func (c *Config) GetDuration(key string) (time.Duration, error) {
	return time.ParseDuration(c.GetString(key))
}

// GetDurationOr parses a duration, falling back to def when the value is missing or invalid
func (c *Config) GetDurationOr(key string, def time.Duration) time.Duration {
	d, err := c.GetDuration(key)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

// Set overrides a value, typically from a command-line flag
func (c *Config) Set(key string, value interface{}) {
	c.v.Set(key, value)
}

// GetViper returns the underlying Viper instance
func (c *Config) GetViper() *viper.Viper {
	return c.v
}
