package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig
	SQLite     SQLiteConfig
	Redis      RedisConfig
	Procedures ProceduresConfig
	Cache      CacheConfig
	Scoring    ScoringConfig
	Feedback   FeedbackConfig
	RateLimit  RateLimitConfig
	Logging    LoggingConfig
}

type ServerConfig struct {
	Host           string
	Port           int
	ReadTimeout    int
	WriteTimeout   int
	BodyLimit      int
	AllowedOrigins []string
	Development    bool
}

type SQLiteConfig struct {
	Path string
}

type RedisConfig struct {
	Enabled        bool
	Host           string
	Port           int
	Password       string
	DB             int
	SnapshotTTLSec int
}

type ProceduresConfig struct {
	Dir            string
	Watch          bool
	DebounceMillis int
}

// CacheConfig sizes the shared dashboard cache.
type CacheConfig struct {
	MaxSize int
	TTLSec  int
}

type ScoringConfig struct {
	Baseline             int
	StrictTimeManagement bool
}

type FeedbackConfig struct {
	Locale        string
	MaxReferences int
}

type RateLimitConfig struct {
	RequestsPerMinute int
}

type LoggingConfig struct {
	Level      string
	Format     string
	OutputPath string
}

func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLSec) * time.Second
}

func (c RedisConfig) SnapshotTTL() time.Duration {
	return time.Duration(c.SnapshotTTLSec) * time.Second
}

func (c ProceduresConfig) Debounce() time.Duration {
	return time.Duration(c.DebounceMillis) * time.Millisecond
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/vetlab")

	return load(v)
}

// LoadFile reads configuration from an explicit path instead of the search paths.
func LoadFile(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	return load(v)
}

func load(v *viper.Viper) (*Config, error) {
	v.SetEnvPrefix("VETLAB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func (c *Config) validate() error {
	if c.Cache.MaxSize <= 0 {
		return fmt.Errorf("cache.maxSize must be positive, got %d", c.Cache.MaxSize)
	}
	if c.Cache.TTLSec <= 0 {
		return fmt.Errorf("cache.ttlSec must be positive, got %d", c.Cache.TTLSec)
	}
	if c.Scoring.Baseline < 0 || c.Scoring.Baseline > 100 {
		return fmt.Errorf("scoring.baseline must be within [0,100], got %d", c.Scoring.Baseline)
	}
	switch c.Feedback.Locale {
	case "fa", "en":
	default:
		return fmt.Errorf("unsupported feedback.locale %q", c.Feedback.Locale)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.readTimeout", 30)
	v.SetDefault("server.writeTimeout", 30)
	v.SetDefault("server.bodyLimit", 1048576)
	v.SetDefault("server.allowedOrigins", []string{"*"})
	v.SetDefault("server.development", false)

	v.SetDefault("sqlite.path", "./data/vetlab.db")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.snapshotTTLSec", 7200)

	v.SetDefault("procedures.dir", "./procedures")
	v.SetDefault("procedures.watch", true)
	v.SetDefault("procedures.debounceMillis", 250)

	v.SetDefault("cache.maxSize", 100)
	v.SetDefault("cache.ttlSec", 300)

	v.SetDefault("scoring.baseline", 0)
	v.SetDefault("scoring.strictTimeManagement", false)

	v.SetDefault("feedback.locale", "fa")
	v.SetDefault("feedback.maxReferences", 2)

	v.SetDefault("ratelimit.requestsPerMinute", 120)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.outputPath", "stdout")
}
