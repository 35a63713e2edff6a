package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"github.com/Xianghbb/au-email-marketing-saas/internal/email"
	"github.com/Xianghbb/au-email-marketing-saas/internal/generator"
	"github.com/Xianghbb/au-email-marketing-saas/internal/repository/postgres"
	"github.com/Xianghbb/au-email-marketing-saas/internal/workflow"
)

// Config is the full application configuration. The YAML file supplies the
// base; environment variables prefixed with APP_ override individual values
// so deployments never need to template the file.
type Config struct {
	Server    ServerConfig     `yaml:"server"`
	Database  postgres.Config  `yaml:"database"`
	Broker    BrokerConfig     `yaml:"broker"`
	OpenAI    generator.Config `yaml:"openai"`
	SMTP      email.SMTPConfig `yaml:"smtp"`
	Workflow  WorkflowConfig   `yaml:"workflow"`
	Logging   LoggingConfig    `yaml:"logging"`
	RateLimit RateLimitConfig  `yaml:"rate_limit"`
}

type ServerConfig struct {
	Port            int           `yaml:"port"`
	BaseURL         string        `yaml:"base_url"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type BrokerConfig struct {
	// Kind selects the backing broker: "redis" or "amqp".
	Kind     string `yaml:"kind"`
	RedisURL string `yaml:"redis_url"`
	AMQPURL  string `yaml:"amqp_url"`
}

type WorkflowConfig struct {
	GenerateBatchSize int           `yaml:"generate_batch_size"`
	SendBatchSize     int           `yaml:"send_batch_size"`
	SendIntervalMS    int           `yaml:"send_interval_ms"`
	MaxRetries        int           `yaml:"max_retries"`
	RetryBackoff      time.Duration `yaml:"retry_backoff"`
	UnsubscribeSecret string        `yaml:"unsubscribe_secret"`
	UnsubscribeTTL    time.Duration `yaml:"unsubscribe_ttl"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

type RateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

// envOverrides holds the values operators most often override per
// environment. Anything set here wins over the YAML file.
type envOverrides struct {
	Port           int    `envconfig:"PORT"`
	DatabaseHost   string `envconfig:"DB_HOST"`
	DatabasePass   string `envconfig:"DB_PASSWORD"`
	RedisURL       string `envconfig:"REDIS_URL"`
	AMQPURL        string `envconfig:"AMQP_URL"`
	OpenAIKey      string `envconfig:"OPENAI_API_KEY"`
	SMTPPassword   string `envconfig:"SMTP_PASSWORD"`
	UnsubSecret    string `envconfig:"UNSUBSCRIBE_SECRET"`
	ServerBaseURL  string `envconfig:"BASE_URL"`
	LogLevel       string `envconfig:"LOG_LEVEL"`
}

// Load reads the configuration file and applies environment overrides.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !strings.Contains(err.Error(), "no such file") {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "yaml"
	}); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	var env envOverrides
	if err := envconfig.Process("APP", &env); err != nil {
		return nil, fmt.Errorf("process environment overrides: %w", err)
	}
	applyOverrides(&cfg, env)

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.base_url", "http://localhost:8080")
	v.SetDefault("server.shutdown_timeout", "15s")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.name", "email_marketing")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("broker.kind", "redis")
	v.SetDefault("broker.redis_url", "redis://localhost:6379/0")
	v.SetDefault("openai.model", "gpt-4o-mini")
	v.SetDefault("openai.temperature", 0.7)
	v.SetDefault("openai.timeout", "30s")
	v.SetDefault("smtp.port", 587)
	v.SetDefault("workflow.generate_batch_size", 20)
	v.SetDefault("workflow.send_batch_size", 10)
	v.SetDefault("workflow.send_interval_ms", 1000)
	v.SetDefault("workflow.max_retries", 3)
	v.SetDefault("workflow.retry_backoff", "2s")
	v.SetDefault("workflow.unsubscribe_ttl", "8760h")
	v.SetDefault("logging.level", "info")
	v.SetDefault("rate_limit.rps", 50)
	v.SetDefault("rate_limit.burst", 100)
}

func applyOverrides(cfg *Config, env envOverrides) {
	if env.Port != 0 {
		cfg.Server.Port = env.Port
	}
	if env.DatabaseHost != "" {
		cfg.Database.Host = env.DatabaseHost
	}
	if env.DatabasePass != "" {
		cfg.Database.Password = env.DatabasePass
	}
	if env.RedisURL != "" {
		cfg.Broker.RedisURL = env.RedisURL
	}
	if env.AMQPURL != "" {
		cfg.Broker.AMQPURL = env.AMQPURL
	}
	if env.OpenAIKey != "" {
		cfg.OpenAI.APIKey = env.OpenAIKey
	}
	if env.SMTPPassword != "" {
		cfg.SMTP.Password = env.SMTPPassword
	}
	if env.UnsubSecret != "" {
		cfg.Workflow.UnsubscribeSecret = env.UnsubSecret
	}
	if env.ServerBaseURL != "" {
		cfg.Server.BaseURL = env.ServerBaseURL
	}
	if env.LogLevel != "" {
		cfg.Logging.Level = env.LogLevel
	}
}

// WorkflowSettings maps the file shape onto the workflow package's config.
func (c *Config) WorkflowSettings() workflow.Config {
	return workflow.Config{
		GenerateBatchSize: c.Workflow.GenerateBatchSize,
		SendBatchSize:     c.Workflow.SendBatchSize,
		SendInterval:      time.Duration(c.Workflow.SendIntervalMS) * time.Millisecond,
		AppBaseURL:        c.Server.BaseURL,
	}
}
