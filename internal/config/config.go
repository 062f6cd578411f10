package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Knowledge KnowledgeConfig `yaml:"knowledge" mapstructure:"knowledge"`
	AdminAPI  AdminAPIConfig  `yaml:"admin_api" mapstructure:"admin_api"`
	Pipeline  PipelineConfig  `yaml:"pipeline" mapstructure:"pipeline"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string     `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string     `yaml:"database_url" mapstructure:"database_url"`
	Pool        PoolConfig `yaml:"pool" mapstructure:"pool"`
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key               string  `yaml:"key" mapstructure:"key"`
	Model             string  `yaml:"model" mapstructure:"model"`
	MaxTokens         int64   `yaml:"max_tokens" mapstructure:"max_tokens"`
	Temperature       float64 `yaml:"temperature" mapstructure:"temperature"`
	TimeoutSecs       int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	StreamTimeoutSecs int     `yaml:"stream_timeout_secs" mapstructure:"stream_timeout_secs"`
}

// KnowledgeConfig holds knowledge base search service settings.
type KnowledgeConfig struct {
	BaseURL        string  `yaml:"base_url" mapstructure:"base_url"`
	InternalSecret string  `yaml:"internal_secret" mapstructure:"internal_secret"`
	TimeoutSecs    int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	TopK           int     `yaml:"top_k" mapstructure:"top_k"`
	RateLimitRPS   float64 `yaml:"rate_limit_rps" mapstructure:"rate_limit_rps"`
}

// AdminAPIConfig holds the tenant administration API settings.
type AdminAPIConfig struct {
	BaseURL        string `yaml:"base_url" mapstructure:"base_url"`
	InternalSecret string `yaml:"internal_secret" mapstructure:"internal_secret"`
	TimeoutSecs    int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// PipelineConfig configures pipeline-wide behavior.
type PipelineConfig struct {
	ConfigCacheTTLSecs int    `yaml:"config_cache_ttl_secs" mapstructure:"config_cache_ttl_secs"`
	SuperTenantID      string `yaml:"super_tenant_id" mapstructure:"super_tenant_id"`
	MaxSearchConc      int    `yaml:"max_search_concurrency" mapstructure:"max_search_concurrency"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("PROPOSAL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.pool.max_conns", 10)
	v.SetDefault("store.pool.min_conns", 2)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("anthropic.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.max_tokens", 8192)
	v.SetDefault("anthropic.temperature", 0.3)
	v.SetDefault("anthropic.timeout_secs", 120)
	v.SetDefault("anthropic.stream_timeout_secs", 300)
	v.SetDefault("knowledge.timeout_secs", 15)
	v.SetDefault("knowledge.top_k", 10)
	v.SetDefault("knowledge.rate_limit_rps", 10)
	v.SetDefault("admin_api.timeout_secs", 10)
	v.SetDefault("pipeline.config_cache_ttl_secs", 300)
	v.SetDefault("pipeline.super_tenant_id", "00000000-0000-0000-0000-000000000000")
	v.SetDefault("pipeline.max_search_concurrency", 5)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks that the configuration is usable for the given command
// mode ("serve", "run", or "migrate").
func (c *Config) Validate(mode string) error {
	var problems []string

	switch mode {
	case "serve", "run":
		if c.Store.DatabaseURL == "" && c.Store.Driver == "postgres" {
			problems = append(problems, "store.database_url is required")
		}
		if c.Anthropic.Key == "" {
			problems = append(problems, "anthropic.key is required")
		}
		if c.Knowledge.BaseURL == "" {
			problems = append(problems, "knowledge.base_url is required")
		}
		if mode == "serve" && c.Server.Port <= 0 {
			problems = append(problems, "server.port must be > 0")
		}
	case "migrate":
		if c.Store.DatabaseURL == "" && c.Store.Driver == "postgres" {
			problems = append(problems, "store.database_url is required")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if c.Pipeline.ConfigCacheTTLSecs < 0 {
		problems = append(problems, "pipeline.config_cache_ttl_secs must be >= 0")
	}
	if c.Pipeline.MaxSearchConc < 1 || c.Pipeline.MaxSearchConc > 20 {
		problems = append(problems, "pipeline.max_search_concurrency must be between 1 and 20")
	}
	if c.Anthropic.Temperature < 0 || c.Anthropic.Temperature > 1 {
		problems = append(problems, "anthropic.temperature must be between 0 and 1")
	}

	if len(problems) > 0 {
		return eris.Errorf("config: invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
