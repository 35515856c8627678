package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the overall application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Backend    BackendConfig    `yaml:"backend"`
	Realtime   RealtimeConfig   `yaml:"realtime"`
	Refresh    RefreshConfig    `yaml:"refresh"`
	Checkout   CheckoutConfig   `yaml:"checkout"`
	Database   DatabaseConfig   `yaml:"database"`
	Push       PushConfig       `yaml:"push"`
	WorkerPool WorkerPoolConfig `yaml:"worker_pool"`
	Session    SessionConfig    `yaml:"session"`
	Log        LogConfig        `yaml:"log"`

	// Defaulted lists the keys ApplyDefaults filled in.
	Defaulted []string `yaml:"-"`
}

// ServerConfig holds the server-related configuration.
type ServerConfig struct {
	Port            int     `yaml:"port"`
	RateLimitPerSec float64 `yaml:"rate_limit_per_sec"`
	RateLimitBurst  int     `yaml:"rate_limit_burst"`
	CacheTTLSeconds int     `yaml:"cache_ttl_seconds"`
}

// BackendConfig points at the booking REST API.
type BackendConfig struct {
	BaseURL              string        `yaml:"base_url"`
	TimeoutSeconds       int           `yaml:"timeout_seconds"`
	Timeout              time.Duration `yaml:"-"`
	VenueCacheTTLSeconds int           `yaml:"venue_cache_ttl_seconds"`
	VenueCacheTTL        time.Duration `yaml:"-"`
}

// RealtimeConfig selects the event channel carrying hold changes.
type RealtimeConfig struct {
	Driver        string `yaml:"driver"` // memory or redis
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
	TopicPrefix   string `yaml:"topic_prefix"`
}

// RefreshConfig controls the per venue+date watchers.
type RefreshConfig struct {
	PollIntervalSeconds int           `yaml:"poll_interval_seconds"`
	PollInterval        time.Duration `yaml:"-"`
	IdleTTLSeconds      int           `yaml:"idle_ttl_seconds"`
	IdleTTL             time.Duration `yaml:"-"`
}

// CheckoutConfig controls the hold countdown.
type CheckoutConfig struct {
	HoldWindowMinutes int           `yaml:"hold_window_minutes"`
	HoldWindow        time.Duration `yaml:"-"`
	TickMillis        int           `yaml:"tick_millis"`
	Tick              time.Duration `yaml:"-"`
}

// DatabaseConfig holds the database connection configuration.
type DatabaseConfig struct {
	DSN                    string `yaml:"dsn"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
}

// PushConfig holds the VAPID keys for web push notifications.
type PushConfig struct {
	PublicKey  string `yaml:"vapid_public_key"`
	PrivateKey string `yaml:"vapid_private_key"`
	Subject    string `yaml:"subject"`
	TTL        int    `yaml:"ttl"`
}

// WorkerPoolConfig holds the configuration for the notification worker pool.
type WorkerPoolConfig struct {
	Size int `yaml:"size"`
}

// SessionConfig holds the secret used to verify bearer tokens.
type SessionConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
}

// LogConfig selects the logger flavour.
type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// Load reads the configuration from the given path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}

	cfg.ApplyDefaults()
	return &cfg, nil
}

// ApplyDefaults fills unset or invalid values and derives the durations. The keys it
// fills are recorded in Defaulted.
func (cfg *Config) ApplyDefaults() {
	cfg.Defaulted = nil
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 8080
		cfg.defaulted("server.port")
	}
	if cfg.Server.RateLimitPerSec <= 0 {
		cfg.Server.RateLimitPerSec = 10
		cfg.defaulted("server.rate_limit_per_sec")
	}
	if cfg.Server.RateLimitBurst <= 0 {
		cfg.Server.RateLimitBurst = 5
		cfg.defaulted("server.rate_limit_burst")
	}
	if cfg.Server.CacheTTLSeconds <= 0 {
		cfg.Server.CacheTTLSeconds = 300
		cfg.defaulted("server.cache_ttl_seconds")
	}

	if cfg.Backend.TimeoutSeconds <= 0 {
		cfg.Backend.TimeoutSeconds = 15
		cfg.defaulted("backend.timeout_seconds")
	}
	cfg.Backend.Timeout = time.Duration(cfg.Backend.TimeoutSeconds) * time.Second
	if cfg.Backend.VenueCacheTTLSeconds <= 0 {
		cfg.Backend.VenueCacheTTLSeconds = 60
		cfg.defaulted("backend.venue_cache_ttl_seconds")
	}
	cfg.Backend.VenueCacheTTL = time.Duration(cfg.Backend.VenueCacheTTLSeconds) * time.Second

	if cfg.Realtime.Driver == "" {
		cfg.Realtime.Driver = "memory"
		cfg.defaulted("realtime.driver")
	}
	if cfg.Realtime.TopicPrefix == "" {
		cfg.Realtime.TopicPrefix = "courtbook"
		cfg.defaulted("realtime.topic_prefix")
	}

	// A zero poll interval is valid and means event-driven refresh only.
	if cfg.Refresh.PollIntervalSeconds < 0 {
		cfg.Refresh.PollIntervalSeconds = 0
		cfg.defaulted("refresh.poll_interval_seconds")
	}
	cfg.Refresh.PollInterval = time.Duration(cfg.Refresh.PollIntervalSeconds) * time.Second
	if cfg.Refresh.IdleTTLSeconds <= 0 {
		cfg.Refresh.IdleTTLSeconds = 300
		cfg.defaulted("refresh.idle_ttl_seconds")
	}
	cfg.Refresh.IdleTTL = time.Duration(cfg.Refresh.IdleTTLSeconds) * time.Second

	if cfg.Checkout.HoldWindowMinutes <= 0 {
		cfg.Checkout.HoldWindowMinutes = 10
		cfg.defaulted("checkout.hold_window_minutes")
	}
	cfg.Checkout.HoldWindow = time.Duration(cfg.Checkout.HoldWindowMinutes) * time.Minute
	if cfg.Checkout.TickMillis <= 0 {
		cfg.Checkout.TickMillis = 1000
		cfg.defaulted("checkout.tick_millis")
	}
	cfg.Checkout.Tick = time.Duration(cfg.Checkout.TickMillis) * time.Millisecond

	if cfg.Push.TTL <= 0 {
		cfg.Push.TTL = 3600
		cfg.defaulted("push.ttl")
	}

	if cfg.WorkerPool.Size <= 0 {
		cfg.WorkerPool.Size = 1
		cfg.defaulted("worker_pool.size")
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
		cfg.defaulted("log.level")
	}
}

func (cfg *Config) defaulted(key string) {
	cfg.Defaulted = append(cfg.Defaulted, key)
}
