package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Redis      RedisConfig      `yaml:"redis" mapstructure:"redis"`
	Queue      QueueConfig      `yaml:"queue" mapstructure:"queue"`
	Upstream   UpstreamConfig   `yaml:"upstream" mapstructure:"upstream"`
	Retry      RetryConfig      `yaml:"retry" mapstructure:"retry"`
	Circuit    CircuitConfig    `yaml:"circuit" mapstructure:"circuit"`
	Assessment AssessmentConfig `yaml:"assessment" mapstructure:"assessment"`
	Batch      BatchConfig      `yaml:"batch" mapstructure:"batch"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
	Telemetry  TelemetryConfig  `yaml:"telemetry" mapstructure:"telemetry"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// RedisConfig configures the Redis connection used for streams.
type RedisConfig struct {
	Addr     string `yaml:"addr" mapstructure:"addr"`
	Password string `yaml:"password" mapstructure:"password"`
	DB       int    `yaml:"db" mapstructure:"db"`
}

// QueueConfig configures trigger consumption and change notification.
type QueueConfig struct {
	Stream          string `yaml:"stream" mapstructure:"stream"`
	Group           string `yaml:"group" mapstructure:"group"`
	Consumer        string `yaml:"consumer" mapstructure:"consumer"`
	DLQStream       string `yaml:"dlq_stream" mapstructure:"dlq_stream"`
	NotifyStream    string `yaml:"notify_stream" mapstructure:"notify_stream"`
	MaxLen          int64  `yaml:"max_len" mapstructure:"max_len"`
	BatchSize       int64  `yaml:"batch_size" mapstructure:"batch_size"`
	Concurrency     int    `yaml:"concurrency" mapstructure:"concurrency"`
	BlockMs         int    `yaml:"block_ms" mapstructure:"block_ms"`
	MaxDeliveries   int64  `yaml:"max_deliveries" mapstructure:"max_deliveries"`
	ReclaimIdleSecs int    `yaml:"reclaim_idle_secs" mapstructure:"reclaim_idle_secs"`
}

// UpstreamConfig holds one section per upstream service.
type UpstreamConfig struct {
	Delius     ServiceConfig `yaml:"delius" mapstructure:"delius"`
	Assessment ServiceConfig `yaml:"assessment" mapstructure:"assessment"`
}

// ServiceConfig configures a single upstream HTTP API.
type ServiceConfig struct {
	BaseURL          string  `yaml:"base_url" mapstructure:"base_url"`
	Token            string  `yaml:"token" mapstructure:"token"`
	ConnectTimeoutMs int     `yaml:"connect_timeout_ms" mapstructure:"connect_timeout_ms"`
	ReadTimeoutMs    int     `yaml:"read_timeout_ms" mapstructure:"read_timeout_ms"`
	RatePerSec       float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
}

// ConnectTimeout returns the connect timeout as a duration.
func (s ServiceConfig) ConnectTimeout() time.Duration {
	return time.Duration(s.ConnectTimeoutMs) * time.Millisecond
}

// ReadTimeout returns the read timeout as a duration.
func (s ServiceConfig) ReadTimeout() time.Duration {
	return time.Duration(s.ReadTimeoutMs) * time.Millisecond
}

// RetryConfig configures retries of upstream calls.
type RetryConfig struct {
	MaxAttempts      int    `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int    `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int    `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	Strategy         string `yaml:"strategy" mapstructure:"strategy"`
}

// CircuitConfig configures the per-upstream circuit breakers.
type CircuitConfig struct {
	FailureThreshold int `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	ResetTimeoutSecs int `yaml:"reset_timeout_secs" mapstructure:"reset_timeout_secs"`
}

// AssessmentConfig configures assessment validity.
type AssessmentConfig struct {
	ValidityWeeks int `yaml:"validity_weeks" mapstructure:"validity_weeks"`
}

// Validity returns how long a completed assessment stays valid.
func (a AssessmentConfig) Validity() time.Duration {
	return time.Duration(a.ValidityWeeks) * 7 * 24 * time.Hour
}

// BatchConfig configures in-process batch recalculation.
type BatchConfig struct {
	Concurrency int `yaml:"concurrency" mapstructure:"concurrency"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	Token       string   `yaml:"token" mapstructure:"token"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// MonitoringConfig configures periodic health checks and alerting.
type MonitoringConfig struct {
	Enabled             bool   `yaml:"enabled" mapstructure:"enabled"`
	WebhookURL          string `yaml:"webhook_url" mapstructure:"webhook_url"`
	CheckIntervalSecs   int    `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	LookbackWindowHours int    `yaml:"lookback_window_hours" mapstructure:"lookback_window_hours"`
	DLQDepthThreshold   int64  `yaml:"dlq_depth_threshold" mapstructure:"dlq_depth_threshold"`
	MinCalculations     int    `yaml:"min_calculations" mapstructure:"min_calculations"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// TelemetryConfig toggles OpenTelemetry instruments.
type TelemetryConfig struct {
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`
}

// Load reads config.yaml from the working directory and the environment.
func Load() (*Config, error) {
	return LoadFrom("")
}

// LoadFrom reads configuration from path, or from config.yaml in the
// working directory when path is empty. An explicit path must exist.
func LoadFrom(path string) (*Config, error) {
	v := viper.New()

	// Config file
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	// Environment
	v.SetEnvPrefix("TIER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.database_url", "")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("queue.stream", "tier:triggers")
	v.SetDefault("queue.group", "tier-engine")
	v.SetDefault("queue.consumer", "tier-engine-1")
	v.SetDefault("queue.dlq_stream", "tier:triggers:dlq")
	v.SetDefault("queue.notify_stream", "tier:changes")
	v.SetDefault("queue.max_len", 100000)
	v.SetDefault("queue.batch_size", 10)
	v.SetDefault("queue.concurrency", 4)
	v.SetDefault("queue.block_ms", 2000)
	v.SetDefault("queue.max_deliveries", 5)
	v.SetDefault("queue.reclaim_idle_secs", 60)
	v.SetDefault("upstream.delius.base_url", "")
	v.SetDefault("upstream.delius.token", "")
	v.SetDefault("upstream.delius.connect_timeout_ms", 1000)
	v.SetDefault("upstream.delius.read_timeout_ms", 5000)
	v.SetDefault("upstream.delius.rate_per_sec", 0)
	v.SetDefault("upstream.assessment.base_url", "")
	v.SetDefault("upstream.assessment.token", "")
	v.SetDefault("upstream.assessment.connect_timeout_ms", 1000)
	v.SetDefault("upstream.assessment.read_timeout_ms", 5000)
	v.SetDefault("upstream.assessment.rate_per_sec", 0)
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.initial_backoff_ms", 200)
	v.SetDefault("retry.max_backoff_ms", 10000)
	v.SetDefault("retry.strategy", "quadratic")
	v.SetDefault("circuit.failure_threshold", 5)
	v.SetDefault("circuit.reset_timeout_secs", 30)
	v.SetDefault("assessment.validity_weeks", 55)
	v.SetDefault("batch.concurrency", 8)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.token", "")
	v.SetDefault("server.cors_origins", []string{})
	v.SetDefault("monitoring.enabled", false)
	v.SetDefault("monitoring.webhook_url", "")
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("monitoring.lookback_window_hours", 24)
	v.SetDefault("monitoring.dlq_depth_threshold", 10)
	v.SetDefault("monitoring.min_calculations", 0)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("telemetry.enabled", true)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || path != "" {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the settings a command mode needs. Modes: store,
// recalculate, consume, serve.
func (c *Config) Validate(mode string) error {
	var errs []string

	switch c.Store.Driver {
	case "postgres":
		if c.Store.DatabaseURL == "" {
			errs = append(errs, "store.database_url is required")
		}
	case "sqlite":
	default:
		errs = append(errs, "store.driver must be postgres or sqlite")
	}

	needsUpstream := false
	switch mode {
	case "store":
	case "recalculate":
		needsUpstream = true
	case "consume":
		needsUpstream = true
		if c.Redis.Addr == "" {
			errs = append(errs, "redis.addr is required")
		}
		if c.Queue.MaxDeliveries < 1 {
			errs = append(errs, "queue.max_deliveries must be >= 1")
		}
	case "serve":
		needsUpstream = true
		if c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if needsUpstream {
		if c.Upstream.Delius.BaseURL == "" {
			errs = append(errs, "upstream.delius.base_url is required")
		}
		if c.Upstream.Assessment.BaseURL == "" {
			errs = append(errs, "upstream.assessment.base_url is required")
		}
		switch strings.ToLower(c.Retry.Strategy) {
		case "quadratic", "exponential":
		default:
			errs = append(errs, "retry.strategy must be quadratic or exponential")
		}
		if c.Retry.MaxAttempts < 1 {
			errs = append(errs, "retry.max_attempts must be >= 1")
		}
		if c.Assessment.ValidityWeeks < 1 {
			errs = append(errs, "assessment.validity_weeks must be >= 1")
		}
	}

	if c.Batch.Concurrency < 1 || c.Batch.Concurrency > 64 {
		errs = append(errs, "batch.concurrency must be between 1 and 64")
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
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
