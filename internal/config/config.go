package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/viper"

	"github.com/jwalitptl/card-notifier/internal/channel"
	"github.com/jwalitptl/card-notifier/internal/model"
	"github.com/jwalitptl/card-notifier/pkg/circuitbreaker"
	"github.com/jwalitptl/card-notifier/pkg/lock"
	"github.com/jwalitptl/card-notifier/pkg/logger"
)

type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Log         LogConfig         `mapstructure:"log"`
	Storage     StorageConfig     `mapstructure:"storage"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Redis       RedisConfig       `mapstructure:"redis"`
	SMTP        SMTPConfig        `mapstructure:"smtp"`
	SMS         SMSConfig         `mapstructure:"sms"`
	Jobs        JobsConfig        `mapstructure:"jobs"`
	Dispatcher  DispatcherConfig  `mapstructure:"dispatcher"`
	Summary     SummaryConfig     `mapstructure:"summary"`
	Undelivered UndeliveredConfig `mapstructure:"undelivered"`
	Lock        LockConfig        `mapstructure:"lock"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type StorageConfig struct {
	Driver string `mapstructure:"driver"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	SSLMode  string `mapstructure:"sslmode"`
	MaxConns int    `mapstructure:"max_conns"`
}

// DSN renders the lib/pq connection string.
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

type RedisConfig struct {
	URL          string `mapstructure:"url"`
	MaxRetries   int    `mapstructure:"max_retries"`
	PoolSize     int    `mapstructure:"pool_size"`
	MinIdleConns int    `mapstructure:"min_idle_conns"`
}

type SMTPConfig struct {
	// Mock logs emails instead of delivering them.
	Mock     bool   `mapstructure:"mock"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	// Retries bounds in-call retries of a single send.
	Retries    uint          `mapstructure:"retries"`
	RetryDelay time.Duration `mapstructure:"retry_delay"`
}

type SMSConfig struct {
	Mock       bool          `mapstructure:"mock"`
	GatewayURL string        `mapstructure:"gateway_url"`
	APIKey     string        `mapstructure:"api_key"`
	Sender     string        `mapstructure:"sender"`
	Timeout    time.Duration `mapstructure:"timeout"`
	RatePerSec float64       `mapstructure:"rate_per_sec"`
	Burst      int           `mapstructure:"burst"`
	Retries    uint          `mapstructure:"retries"`
	RetryDelay time.Duration `mapstructure:"retry_delay"`
}

type BreakerConfig struct {
	MaxFailures int           `mapstructure:"max_failures"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

type JobConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Interval time.Duration `mapstructure:"interval"`
}

type JobsConfig struct {
	DelayedMessages JobConfig     `mapstructure:"delayed_messages"`
	DailySummary    JobConfig     `mapstructure:"daily_summary"`
	Undelivered     JobConfig     `mapstructure:"undelivered"`
	Breaker         BreakerConfig `mapstructure:"breaker"`
}

type DispatcherConfig struct {
	// MaxAttempts caps failed sends per message; 0 means unlimited.
	MaxAttempts int `mapstructure:"max_attempts"`
}

type SummaryConfig struct {
	// Window is how long after local midnight users missing today's summary are retried.
	Window  time.Duration `mapstructure:"window"`
	From    string        `mapstructure:"from"`
	Subject string        `mapstructure:"subject"`
}

type UndeliveredConfig struct {
	IdleMinutes       int           `mapstructure:"idle_minutes"`
	WatchedTypes      []string      `mapstructure:"watched_types"`
	From              string        `mapstructure:"from"`
	FallbackRecipient string        `mapstructure:"fallback_recipient"`
	CacheTTL          time.Duration `mapstructure:"cache_ttl"`
}

// Watched converts the configured names to SMS message types.
func (c UndeliveredConfig) Watched() []model.SmsMessageType {
	out := make([]model.SmsMessageType, 0, len(c.WatchedTypes))
	for _, t := range c.WatchedTypes {
		out = append(out, model.SmsMessageType(strings.ToUpper(strings.TrimSpace(t))))
	}
	return out
}

type LockConfig struct {
	Driver string        `mapstructure:"driver"`
	TTL    time.Duration `mapstructure:"ttl"`
	Prefix string        `mapstructure:"prefix"`
}

// secrets are read from NOTIFIER_* variables after the file is loaded.
type secrets struct {
	DBPassword   string `envconfig:"DB_PASSWORD"`
	SMTPPassword string `envconfig:"SMTP_PASSWORD"`
	SMSAPIKey    string `envconfig:"SMS_API_KEY"`
	RedisURL     string `envconfig:"REDIS_URL"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8081)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	v.SetDefault("storage.driver", "memory")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.name", "cards")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 10)

	v.SetDefault("redis.url", "redis://localhost:6379/0")
	v.SetDefault("redis.max_retries", 3)
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.min_idle_conns", 2)

	v.SetDefault("smtp.mock", true)
	v.SetDefault("smtp.port", 587)
	v.SetDefault("smtp.retries", 3)
	v.SetDefault("smtp.retry_delay", 500*time.Millisecond)

	v.SetDefault("sms.mock", true)
	v.SetDefault("sms.timeout", 10*time.Second)
	v.SetDefault("sms.rate_per_sec", 5.0)
	v.SetDefault("sms.burst", 5)
	v.SetDefault("sms.retries", 3)
	v.SetDefault("sms.retry_delay", 500*time.Millisecond)

	v.SetDefault("jobs.delayed_messages.enabled", true)
	v.SetDefault("jobs.delayed_messages.interval", time.Minute)
	v.SetDefault("jobs.daily_summary.enabled", true)
	v.SetDefault("jobs.daily_summary.interval", time.Minute)
	v.SetDefault("jobs.undelivered.enabled", true)
	v.SetDefault("jobs.undelivered.interval", time.Minute)
	v.SetDefault("jobs.breaker.max_failures", 5)
	v.SetDefault("jobs.breaker.timeout", 30*time.Second)

	v.SetDefault("dispatcher.max_attempts", 5)

	v.SetDefault("summary.window", time.Hour)
	v.SetDefault("summary.from", "no-reply@cards.local")
	v.SetDefault("summary.subject", "Your daily card summary")

	v.SetDefault("undelivered.idle_minutes", 15)
	v.SetDefault("undelivered.watched_types", []string{
		string(model.SmsMessageTypeSendProfile),
		string(model.SmsMessageTypeResendProfile),
	})
	v.SetDefault("undelivered.from", "no-reply@cards.local")
	v.SetDefault("undelivered.fallback_recipient", "support@cards.local")
	v.SetDefault("undelivered.cache_ttl", 5*time.Minute)

	v.SetDefault("lock.driver", "local")
	v.SetDefault("lock.ttl", 5*time.Minute)
	v.SetDefault("lock.prefix", "card-notifier:lock:")
}

// LoadConfig reads config.yml from CONFIG_FILE or the usual search paths.
// A missing file is not an error: defaults and the environment still apply.
func LoadConfig() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/app")
		v.AddConfigPath("/app/config")
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	var s secrets
	if err := envconfig.Process("notifier", &s); err != nil {
		return nil, fmt.Errorf("failed to read secrets from environment: %w", err)
	}
	cfg.applySecrets(s)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applySecrets(s secrets) {
	if s.DBPassword != "" {
		c.Database.Password = s.DBPassword
	}
	if s.SMTPPassword != "" {
		c.SMTP.Password = s.SMTPPassword
	}
	if s.SMSAPIKey != "" {
		c.SMS.APIKey = s.SMSAPIKey
	}
	if s.RedisURL != "" {
		c.Redis.URL = s.RedisURL
	}
}

// Validate rejects combinations the worker cannot start with.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case "memory", "postgres":
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	switch c.Lock.Driver {
	case "local", "redis":
	default:
		return fmt.Errorf("unknown lock driver %q", c.Lock.Driver)
	}
	if c.Dispatcher.MaxAttempts < 0 {
		return fmt.Errorf("dispatcher.max_attempts must not be negative")
	}
	if c.Undelivered.IdleMinutes < 0 {
		return fmt.Errorf("undelivered.idle_minutes must not be negative")
	}
	if !c.SMS.Mock && c.SMS.GatewayURL == "" {
		return fmt.Errorf("sms.gateway_url is required unless sms.mock is set")
	}
	if !c.SMTP.Mock && c.SMTP.Host == "" {
		return fmt.Errorf("smtp.host is required unless smtp.mock is set")
	}
	if c.Jobs.DailySummary.Enabled && c.Summary.Window < 2*c.Jobs.DailySummary.Interval {
		return fmt.Errorf("summary.window (%s) must cover at least two jobs.daily_summary.interval ticks (%s)",
			c.Summary.Window, c.Jobs.DailySummary.Interval)
	}
	if c.Jobs.Undelivered.Enabled && c.Undelivered.FallbackRecipient == "" {
		return fmt.Errorf("undelivered.fallback_recipient is required while jobs.undelivered is enabled")
	}
	return nil
}

func (c LogConfig) ToLoggerConfig() *logger.Config {
	return &logger.Config{
		Level:      logger.ParseLevel(c.Level),
		TimeFormat: time.RFC3339,
		Output:     os.Stdout,
		JSON:       strings.EqualFold(c.Format, "json"),
	}
}

func (c SMTPConfig) ToChannelConfig() channel.SMTPConfig {
	return channel.SMTPConfig{
		Host:       c.Host,
		Port:       c.Port,
		Username:   c.Username,
		Password:   c.Password,
		Retries:    c.Retries,
		RetryDelay: c.RetryDelay,
	}
}

func (c SMSConfig) ToGatewayConfig() channel.GatewayConfig {
	return channel.GatewayConfig{
		URL:        c.GatewayURL,
		APIKey:     c.APIKey,
		Sender:     c.Sender,
		Timeout:    c.Timeout,
		Retries:    c.Retries,
		RetryDelay: c.RetryDelay,
	}
}

// ToBreakerSettings gives each channel its own breaker built from the shared limits.
func (c BreakerConfig) ToBreakerSettings(name string) circuitbreaker.Settings {
	return circuitbreaker.Settings{
		Name:        name,
		MaxFailures: c.MaxFailures,
		Timeout:     c.Timeout,
	}
}

func (c *Config) ToLockConfig() lock.Config {
	return lock.Config{
		URL:          c.Redis.URL,
		Prefix:       c.Lock.Prefix,
		PoolSize:     c.Redis.PoolSize,
		MinIdleConns: c.Redis.MinIdleConns,
		MaxRetries:   c.Redis.MaxRetries,
	}
}
