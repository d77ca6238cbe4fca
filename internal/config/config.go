package config

import (
	"bytes"
	_ "embed"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

//go:embed defaults.yaml
var defaults []byte

// ---- Root ----

type Config struct {
	HTTP       HTTPConfig      `mapstructure:"http"`
	Log        LogConfig       `mapstructure:"log"`
	Store      StoreConfig     `mapstructure:"store"`
	ClickHouse DatabaseConfig  `mapstructure:"clickhouse"`
	Redis      RedisConfig     `mapstructure:"redis"`
	Kafka      KafkaConfig     `mapstructure:"kafka"`
	RateLimit  RateLimitConfig `mapstructure:"rate_limit"`
	Provider   ProviderConfig  `mapstructure:"provider"`
	Quota      QuotaConfig     `mapstructure:"quota"`
	Search     SearchConfig    `mapstructure:"search"`
	Retry      RetryConfig     `mapstructure:"retry"`
	Events     EventsConfig    `mapstructure:"events"`
	Importer   ImporterConfig  `mapstructure:"importer"`
}

// ---- Leaf structs ----

type HTTPConfig struct {
	Addr            string        `mapstructure:"addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idletime"`
	PingTimeout     time.Duration `mapstructure:"ping_timeout"`
}

// StoreConfig selects the relational store: "mysql" or "sqlite".
type StoreConfig struct {
	Driver         string `mapstructure:"driver"`
	DatabaseConfig `mapstructure:",squash"`
}

type RedisConfig struct {
	Addr        string        `mapstructure:"addr"`
	Password    string        `mapstructure:"password"`
	DB          int           `mapstructure:"db"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
	PoolSize    int           `mapstructure:"pool_size"`
}

type KafkaConfig struct {
	Brokers        []string `mapstructure:"brokers"`
	GroupID        string   `mapstructure:"group_id"`
	ImportTopic    string   `mapstructure:"import_topic"`
	MinBytes       int      `mapstructure:"min_bytes"`
	MaxBytes       int      `mapstructure:"max_bytes"`
	CommitInterval int      `mapstructure:"commit_interval_ms"`
}

type RateLimitConfig struct {
	RPS   int `mapstructure:"rps"`
	Burst int `mapstructure:"burst"`
}

type BreakerConfig struct {
	FailThreshold int `mapstructure:"fail_threshold" yaml:"fail_threshold"`
	OpenForMs     int `mapstructure:"open_for_ms"    yaml:"open_for_ms"`
}

type ProviderConfig struct {
	BaseURL       string        `mapstructure:"base_url"`
	APIKey        string        `mapstructure:"api_key"`
	TimeoutMs     int           `mapstructure:"timeout_ms"`
	QPS           float64       `mapstructure:"qps"`
	Burst         int           `mapstructure:"burst"`
	MaxConcurrent int64         `mapstructure:"max_concurrent"`
	PhotoMaxWidth int           `mapstructure:"photo_max_width"`
	Breaker       BreakerConfig `mapstructure:"breaker"`
}

// QuotaConfig selects the ledger backend: "sql", "redis" or "file".
type QuotaConfig struct {
	Backend  string        `mapstructure:"backend"`
	Ceiling  int64         `mapstructure:"ceiling"`
	Window   time.Duration `mapstructure:"window"`
	FilePath string        `mapstructure:"file_path"`
	RedisKey string        `mapstructure:"redis_key"`
}

type SearchConfig struct {
	MaxInputRunes int `mapstructure:"max_input_runes"`
	LocalLimit    int `mapstructure:"local_limit"`
}

type RetryConfig struct {
	MaxAttempts    int           `mapstructure:"max_attempts"`
	InitialBackoff time.Duration `mapstructure:"initial_backoff"`
	MaxBackoff     time.Duration `mapstructure:"max_backoff"`
	Multiplier     float64       `mapstructure:"multiplier"`
}

type EventsConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	Buffer    int           `mapstructure:"buffer"`
	BatchSize int           `mapstructure:"batch_size"`
	BatchWait time.Duration `mapstructure:"batch_wait"`
}

type ImporterConfig struct {
	Workers int `mapstructure:"workers"`
}

// Load reads embedded defaults, merges user YAML (if provided), and applies
// env overrides (DISCOVERY_*, dots become underscores).
func Load(path string) (Config, error) {
	v := viper.New()

	// embedded defaults
	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewReader(defaults)); err != nil {
		return Config{}, err
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.MergeInConfig(); err != nil {
			return Config{}, fmt.Errorf("merge %s: %w", path, err)
		}
	}

	// env override (DISCOVERY_*)
	v.SetEnvPrefix("DISCOVERY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.Store.Driver {
	case "mysql", "sqlite":
	default:
		return fmt.Errorf("store.driver must be mysql or sqlite, got %q", c.Store.Driver)
	}
	switch c.Quota.Backend {
	case "sql", "redis", "file":
	default:
		return fmt.Errorf("quota.backend must be sql, redis or file, got %q", c.Quota.Backend)
	}
	if c.Quota.Ceiling <= 0 {
		return fmt.Errorf("quota.ceiling must be positive, got %d", c.Quota.Ceiling)
	}
	return nil
}
