package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds every runtime setting of the relay
type Config struct {
	Port          string `mapstructure:"PORT"`
	MongoURI      string `mapstructure:"MONGO_URI"`
	MongoDatabase string `mapstructure:"MONGO_DATABASE"`
	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`

	JWTSecret        string `mapstructure:"JWT_SECRET"`
	OperatorUsername string `mapstructure:"OPERATOR_USERNAME"`
	OperatorPassword string `mapstructure:"OPERATOR_PASSWORD"`

	LogLevel  string `mapstructure:"LOG_LEVEL"`
	LogFormat string `mapstructure:"LOG_FORMAT"`

	// Hot-path store calls fail after this budget and are never retried
	LiveStoreTimeout time.Duration `mapstructure:"LIVE_STORE_TIMEOUT"`
	// Administrative writes (status transitions, index setup) are retried
	AdminRetryAttempts  int           `mapstructure:"ADMIN_RETRY_ATTEMPTS"`
	AdminRetryBaseDelay time.Duration `mapstructure:"ADMIN_RETRY_BASE_DELAY"`

	DisconnectGrace   time.Duration `mapstructure:"DISCONNECT_GRACE"`
	StaleAfter        time.Duration `mapstructure:"STALE_AFTER"`
	StaleScanInterval time.Duration `mapstructure:"STALE_SCAN_INTERVAL"`

	PingRatePerSec float64 `mapstructure:"PING_RATE_PER_SEC"`
	PingBurst      int     `mapstructure:"PING_BURST"`

	ListCacheTTL       time.Duration `mapstructure:"LIST_CACHE_TTL"`
	CORSAllowedOrigins string        `mapstructure:"CORS_ALLOWED_ORIGINS"`
}

// Load reads configuration from the environment, falling back to development defaults.
// Values that do not decode, and durations that must be positive but are not, are errors.
func Load() (Config, error) {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("PORT", "8080")
	v.SetDefault("MONGO_URI", "mongodb://localhost:27017")
	v.SetDefault("MONGO_DATABASE", "crimepatrol")
	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("JWT_SECRET", "dev-secret-change-me")
	v.SetDefault("OPERATOR_USERNAME", "dispatch")
	v.SetDefault("OPERATOR_PASSWORD", "dispatch123")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
	v.SetDefault("LIVE_STORE_TIMEOUT", 2*time.Second)
	v.SetDefault("ADMIN_RETRY_ATTEMPTS", 3)
	v.SetDefault("ADMIN_RETRY_BASE_DELAY", 200*time.Millisecond)
	v.SetDefault("DISCONNECT_GRACE", 30*time.Second)
	v.SetDefault("STALE_AFTER", 30*time.Second)
	v.SetDefault("STALE_SCAN_INTERVAL", 10*time.Second)
	v.SetDefault("PING_RATE_PER_SEC", 5.0)
	v.SetDefault("PING_BURST", 10)
	v.SetDefault("LIST_CACHE_TTL", 2*time.Second)
	v.SetDefault("CORS_ALLOWED_ORIGINS", "*")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	// Accept the redis:// form used by hosted providers
	cfg.RedisAddr = strings.TrimPrefix(cfg.RedisAddr, "redis://")
	if cfg.Port != "" && !strings.HasPrefix(cfg.Port, ":") {
		cfg.Port = ":" + cfg.Port
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	positive := []struct {
		key string
		d   time.Duration
	}{
		{"LIVE_STORE_TIMEOUT", c.LiveStoreTimeout},
		{"ADMIN_RETRY_BASE_DELAY", c.AdminRetryBaseDelay},
		{"DISCONNECT_GRACE", c.DisconnectGrace},
		{"STALE_AFTER", c.StaleAfter},
		{"STALE_SCAN_INTERVAL", c.StaleScanInterval},
	}
	for _, p := range positive {
		if p.d <= 0 {
			return fmt.Errorf("invalid %s: must be a positive duration, got %v", p.key, p.d)
		}
	}
	if c.ListCacheTTL < 0 {
		return fmt.Errorf("invalid LIST_CACHE_TTL: must not be negative, got %v", c.ListCacheTTL)
	}
	if c.AdminRetryAttempts < 0 {
		return fmt.Errorf("invalid ADMIN_RETRY_ATTEMPTS: must not be negative, got %d", c.AdminRetryAttempts)
	}
	if c.PingRatePerSec < 0 || c.PingBurst < 0 {
		return fmt.Errorf("invalid ping throttle: rate %v burst %d", c.PingRatePerSec, c.PingBurst)
	}
	return nil
}
