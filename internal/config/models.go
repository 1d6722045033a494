package config

import "time"

// LLMConfig represents the provider-independent semantic analysis settings
type LLMConfig struct {
	Provider string
	MaxChars int
	Retries  int
	Backoff  time.Duration
	Timeout  time.Duration
}

// ProviderConfig represents the settings shared by every chat-style provider
type ProviderConfig struct {
	APIKey      string
	ModelName   string
	BaseURL     string
	MaxTokens   int
	Temperature float32
	TopP        float32
}

// BedrockConfig represents the configuration for Amazon Bedrock
type BedrockConfig struct {
	Region      string
	ModelID     string
	MaxTokens   int
	Temperature float32
	TopP        float32
}

// IntelConfig represents the threat intelligence settings
type IntelConfig struct {
	Enabled         bool
	WhoisTimeout    time.Duration
	SSLTimeout      time.Duration
	SSLPort         int
	CTTimeout       time.Duration
	CTLimit         int
	CTBaseURL       string
	NewDomainWindow time.Duration
}

// CacheConfig represents the WHOIS cache settings
type CacheConfig struct {
	Type             string
	TTL              time.Duration
	CleanupFrequency time.Duration
	SQLitePath       string
	MySQLDSN         string
	RedisAddr        string
	RedisPassword    string
	RedisDB          int
}

// ServerConfig represents the content filter daemon settings
type ServerConfig struct {
	FilterType         string
	ListenAddress      string
	RelayAddress       string
	Domain             string
	MaxMessageBytes    int64
	AnalysisTimeout    time.Duration
	SubjectPrefix      string
	ScoreHeader        string
	LevelHeader        string
	ConfidenceHeader   string
	ThreatsHeader      string
	WhitelistedDomains []string
}

// BrandsConfig locates the brand registry
type BrandsConfig struct {
	Path string
}

// GetLLM returns the LLM configuration
func (c *Config) GetLLM() LLMConfig {
	return LLMConfig{
		Provider: c.GetString("llm.provider"),
		MaxChars: c.GetInt("llm.max_chars"),
		Retries:  c.GetInt("llm.retries"),
		Backoff:  c.GetDurationOr("llm.backoff", 500*time.Millisecond),
		Timeout:  c.GetDurationOr("llm.timeout", 60*time.Second),
	}
}

func (c *Config) provider(section string) ProviderConfig {
	return ProviderConfig{
		APIKey:      c.GetString(section + ".api_key"),
		ModelName:   c.GetString(section + ".model_name"),
		BaseURL:     c.GetString(section + ".base_url"),
		MaxTokens:   c.GetInt(section + ".max_tokens"),
		Temperature: float32(c.GetFloat64(section + ".temperature")),
		TopP:        float32(c.GetFloat64(section + ".top_p")),
	}
}

// GetGemini returns the Gemini configuration
func (c *Config) GetGemini() ProviderConfig {
	return c.provider("gemini")
}

// GetGLM returns the GLM configuration
func (c *Config) GetGLM() ProviderConfig {
	return c.provider("glm")
}

// GetCustom returns the custom OpenAI-compatible endpoint configuration
func (c *Config) GetCustom() ProviderConfig {
	return c.provider("custom")
}

// GetOpenAI returns the OpenAI configuration
func (c *Config) GetOpenAI() ProviderConfig {
	return c.provider("openai")
}

// GetBedrock returns the Bedrock configuration
func (c *Config) GetBedrock() BedrockConfig {
	return BedrockConfig{
		Region:      c.GetString("bedrock.region"),
		ModelID:     c.GetString("bedrock.model_id"),
		MaxTokens:   c.GetInt("bedrock.max_tokens"),
		Temperature: float32(c.GetFloat64("bedrock.temperature")),
		TopP:        float32(c.GetFloat64("bedrock.top_p")),
	}
}

// GetIntel returns the threat intelligence configuration
func (c *Config) GetIntel() IntelConfig {
	return IntelConfig{
		Enabled:         c.GetBool("intel.enabled"),
		WhoisTimeout:    c.GetDurationOr("intel.whois_timeout", 10*time.Second),
		SSLTimeout:      c.GetDurationOr("intel.ssl_timeout", 5*time.Second),
		SSLPort:         c.GetInt("intel.ssl_port"),
		CTTimeout:       c.GetDurationOr("intel.ct_timeout", 5*time.Second),
		CTLimit:         c.GetInt("intel.ct_limit"),
		CTBaseURL:       c.GetString("intel.ct_base_url"),
		NewDomainWindow: c.GetDurationOr("intel.new_domain_window", 3*365*24*time.Hour),
	}
}

// GetCache returns the WHOIS cache configuration
func (c *Config) GetCache() CacheConfig {
	return CacheConfig{
		Type:             c.GetString("cache.type"),
		TTL:              c.GetDurationOr("cache.ttl", 24*time.Hour),
		CleanupFrequency: c.GetDurationOr("cache.cleanup_frequency", time.Hour),
		SQLitePath:       c.GetString("cache.sqlite_path"),
		MySQLDSN:         c.GetString("cache.mysql_dsn"),
		RedisAddr:        c.GetString("cache.redis_addr"),
		RedisPassword:    c.GetString("cache.redis_password"),
		RedisDB:          c.GetInt("cache.redis_db"),
	}
}

// GetServer returns the filter daemon configuration
func (c *Config) GetServer() ServerConfig {
	return ServerConfig{
		FilterType:         c.GetString("server.filter_type"),
		ListenAddress:      c.GetString("server.listen_address"),
		RelayAddress:       c.GetString("server.relay_address"),
		Domain:             c.GetString("server.domain"),
		MaxMessageBytes:    int64(c.GetInt("server.max_message_bytes")),
		AnalysisTimeout:    c.GetDurationOr("server.analysis_timeout", 180*time.Second),
		SubjectPrefix:      c.GetString("server.subject_prefix"),
		ScoreHeader:        c.GetString("server.headers.score"),
		LevelHeader:        c.GetString("server.headers.level"),
		ConfidenceHeader:   c.GetString("server.headers.confidence"),
		ThreatsHeader:      c.GetString("server.headers.threats"),
		WhitelistedDomains: c.GetStringSlice("server.whitelisted_domains"),
	}
}

// GetBrands returns the brand registry location
func (c *Config) GetBrands() BrandsConfig {
	return BrandsConfig{Path: c.GetString("brands.path")}
}
