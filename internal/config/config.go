// Package config loads IdeaForge settings from defaults, an optional YAML
// file and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/joelkehle/ideaforge/internal/llm"
	"github.com/joelkehle/ideaforge/internal/marketdata"
	"github.com/joelkehle/ideaforge/internal/store"
)

const EnvPrefix = "IDEAFORGE"

type Config struct {
	Server  ServerConfig  `mapstructure:"server" yaml:"server"`
	Log     LogConfig     `mapstructure:"log" yaml:"log"`
	LLM     LLMConfig     `mapstructure:"llm" yaml:"llm"`
	Data    DataConfig    `mapstructure:"data" yaml:"data"`
	Store   StoreConfig   `mapstructure:"store" yaml:"store"`
	Tracing TracingConfig `mapstructure:"tracing" yaml:"tracing"`
	Sentry  SentryConfig  `mapstructure:"sentry" yaml:"sentry"`
}

type ServerConfig struct {
	Addr       string `mapstructure:"addr" yaml:"addr"`
	WebDir     string `mapstructure:"web_dir" yaml:"web_dir"`
	ChromePath string `mapstructure:"chrome_path" yaml:"chrome_path"`
}

type LogConfig struct {
	Level string `mapstructure:"level" yaml:"level"`
}

type ProviderConfig struct {
	APIKey  string `mapstructure:"api_key" yaml:"api_key"`
	Model   string `mapstructure:"model" yaml:"model"`
	BaseURL string `mapstructure:"base_url" yaml:"base_url,omitempty"`
}

type LLMConfig struct {
	Gemini    ProviderConfig `mapstructure:"gemini" yaml:"gemini"`
	OpenAI    ProviderConfig `mapstructure:"openai" yaml:"openai"`
	Anthropic ProviderConfig `mapstructure:"anthropic" yaml:"anthropic"`
	Gateway   ProviderConfig `mapstructure:"gateway" yaml:"gateway"`
	// Timeout bounds a single provider call.
	Timeout     time.Duration `mapstructure:"timeout" yaml:"timeout"`
	Temperature float64       `mapstructure:"temperature" yaml:"temperature"`
}

type DataConfig struct {
	Timeout       time.Duration `mapstructure:"timeout" yaml:"timeout"`
	CacheTTL      time.Duration `mapstructure:"cache_ttl" yaml:"cache_ttl"`
	RatePerSecond float64       `mapstructure:"rate_per_second" yaml:"rate_per_second"`
	NewsAPIKey    string        `mapstructure:"news_api_key" yaml:"news_api_key"`
}

type StoreConfig struct {
	Backend  string `mapstructure:"backend" yaml:"backend"`
	Path     string `mapstructure:"path" yaml:"path"`
	Capacity int    `mapstructure:"capacity" yaml:"capacity"`
}

type TracingConfig struct {
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`
}

type SentryConfig struct {
	DSN         string `mapstructure:"dsn" yaml:"dsn"`
	Environment string `mapstructure:"environment" yaml:"environment"`
}

// Conventional provider variables, read without the IDEAFORGE_ prefix.
var unprefixedEnv = map[string]string{
	"llm.gemini.api_key":    "GOOGLE_GENERATIVE_AI_API_KEY",
	"llm.openai.api_key":    "OPENAI_API_KEY",
	"llm.anthropic.api_key": "ANTHROPIC_API_KEY",
	"llm.gateway.api_key":   "AI_GATEWAY_API_KEY",
	"data.news_api_key":     "NEWS_API_KEY",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8090")
	v.SetDefault("server.web_dir", "")
	v.SetDefault("server.chrome_path", "")
	v.SetDefault("log.level", "info")

	v.SetDefault("llm.gemini.api_key", "")
	v.SetDefault("llm.gemini.model", llm.DefaultGeminiModel)
	v.SetDefault("llm.gemini.base_url", "")
	v.SetDefault("llm.openai.api_key", "")
	v.SetDefault("llm.openai.model", llm.DefaultOpenAIModel)
	v.SetDefault("llm.openai.base_url", "")
	v.SetDefault("llm.anthropic.api_key", "")
	v.SetDefault("llm.anthropic.model", llm.DefaultAnthropicModel)
	v.SetDefault("llm.anthropic.base_url", "")
	v.SetDefault("llm.gateway.api_key", "")
	v.SetDefault("llm.gateway.model", llm.DefaultGatewayModel)
	v.SetDefault("llm.gateway.base_url", llm.DefaultGatewayBaseURL)
	v.SetDefault("llm.timeout", 60*time.Second)
	v.SetDefault("llm.temperature", 0.9)

	v.SetDefault("data.timeout", marketdata.DefaultTimeout)
	v.SetDefault("data.cache_ttl", marketdata.DefaultCacheTTL)
	v.SetDefault("data.rate_per_second", marketdata.DefaultRatePerSecond)
	v.SetDefault("data.news_api_key", "")

	v.SetDefault("store.backend", "memory")
	v.SetDefault("store.path", "")
	v.SetDefault("store.capacity", store.DefaultCapacity)

	v.SetDefault("tracing.endpoint", "")
	v.SetDefault("sentry.dsn", "")
	v.SetDefault("sentry.environment", "development")
}

// New returns a viper instance with defaults and environment bindings. When
// path is empty, $HOME/.ideaforge/config.yaml is used if it exists.
func New(path string) *viper.Viper {
	v := viper.New()
	setDefaults(v)
	if path != "" {
		v.SetConfigFile(path)
	} else if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".ideaforge"))
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range unprefixedEnv {
		// Prefixed variables still win through AutomaticEnv.
		_ = v.BindEnv(key, EnvPrefix+"_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_")), env)
	}
	return v
}

// Load reads the config file if present and decodes the result. A missing
// default file is not an error; a missing explicit file is.
func Load(v *viper.Viper) (*Config, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) || v.ConfigFileUsed() != "" {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.Store.Backend {
	case "memory", "file", "sqlite":
	default:
		return fmt.Errorf("store.backend must be memory, file or sqlite, got %q", c.Store.Backend)
	}
	if c.Store.Backend != "memory" && strings.TrimSpace(c.Store.Path) == "" {
		return fmt.Errorf("store.path is required for the %s backend", c.Store.Backend)
	}
	if c.Store.Capacity <= 0 {
		return fmt.Errorf("store.capacity must be positive, got %d", c.Store.Capacity)
	}
	if c.LLM.Timeout <= 0 {
		return fmt.Errorf("llm.timeout must be positive")
	}
	return nil
}

func (c *Config) LLMClientConfig() llm.Config {
	conv := func(p ProviderConfig) llm.ProviderConfig {
		return llm.ProviderConfig{
			APIKey:      strings.TrimSpace(p.APIKey),
			Model:       p.Model,
			BaseURL:     p.BaseURL,
			Temperature: c.LLM.Temperature,
		}
	}
	return llm.Config{
		Gemini:    conv(c.LLM.Gemini),
		OpenAI:    conv(c.LLM.OpenAI),
		Anthropic: conv(c.LLM.Anthropic),
		Gateway:   conv(c.LLM.Gateway),
		Timeout:   c.LLM.Timeout,
	}
}

func (c *Config) MarketDataConfig() marketdata.Config {
	return marketdata.Config{
		NewsAPIKey:    c.Data.NewsAPIKey,
		Timeout:       c.Data.Timeout,
		CacheTTL:      c.Data.CacheTTL,
		RatePerSecond: c.Data.RatePerSecond,
	}
}

func (c *Config) StoreOptions() store.Options {
	return store.Options{Capacity: c.Store.Capacity}
}

// Masked returns a copy safe to print: secrets keep only their last four
// characters.
func (c Config) Masked() Config {
	c.LLM.Gemini.APIKey = mask(c.LLM.Gemini.APIKey)
	c.LLM.OpenAI.APIKey = mask(c.LLM.OpenAI.APIKey)
	c.LLM.Anthropic.APIKey = mask(c.LLM.Anthropic.APIKey)
	c.LLM.Gateway.APIKey = mask(c.LLM.Gateway.APIKey)
	c.Data.NewsAPIKey = mask(c.Data.NewsAPIKey)
	c.Sentry.DSN = mask(c.Sentry.DSN)
	return c
}

func mask(s string) string {
	s = strings.TrimSpace(s)
	switch {
	case s == "":
		return ""
	case len(s) <= 8:
		return "****"
	default:
		return "****" + s[len(s)-4:]
	}
}
