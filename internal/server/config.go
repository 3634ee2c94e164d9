package server

import (
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Interval is a duration read from the environment either as whole seconds
// ("5") or as a Go duration ("1500ms").
type Interval time.Duration

// Decode implements envconfig.Decoder.
func (i *Interval) Decode(value string) error {
	value = strings.TrimSpace(value)
	if seconds, err := strconv.Atoi(value); err == nil {
		*i = Interval(time.Duration(seconds) * time.Second)
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("invalid interval %q: %w", value, err)
	}
	*i = Interval(d)
	return nil
}

// RateLimitConfig defines the parameters for per-connection message rate limiting.
type RateLimitConfig struct {
	Burst          int      `envconfig:"BURST" default:"5"`
	RefillInterval Interval `envconfig:"REFILL_INTERVAL" default:"1"`
}

// ConfessionConfig selects the confession store and its submission limit.
type ConfessionConfig struct {
	Store       string   `envconfig:"CONFESSION_STORE" default:"memory"`
	DatabaseURL string   `envconfig:"DATABASE_URL"`
	SQLitePath  string   `envconfig:"SQLITE_PATH" default:"confessions.db"`
	RedisURL    string   `envconfig:"REDIS_URL"`
	RateLimit   int      `envconfig:"CONFESSION_RATE_LIMIT" default:"5"`
	RateWindow  Interval `envconfig:"CONFESSION_RATE_WINDOW" default:"1m"`
}

// Config holds the server configuration settings including security controls.
type Config struct {
	Port            string          `envconfig:"SERVER_PORT" default:":8080"`
	AllowedOrigins  []string        `envconfig:"ALLOWED_ORIGINS" default:"http://localhost:3000"`
	MaxMessageSize  int64           `envconfig:"MAX_MESSAGE_SIZE" default:"65536"`
	RateLimit       RateLimitConfig `envconfig:"RATE_LIMIT"`
	SendBufferSize  int             `envconfig:"SEND_BUFFER_SIZE" default:"256"`
	RequireClientID bool            `envconfig:"REQUIRE_CLIENT_ID" default:"false"`
	StrictRooms     bool            `envconfig:"STRICT_ROOM_MEMBERSHIP" default:"false"`
	LogLevel        string          `envconfig:"LOG_LEVEL" default:"INFO"`
	ShutdownTimeout Interval        `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
	Confessions     ConfessionConfig
}

const (
	defaultPort           = ":8080"
	defaultMaxMessageSize = 64 << 10
	defaultSendBuffer     = 256
	defaultBurst          = 5
)

var (
	configMu        sync.RWMutex
	activeConfig    Config
	allowedOrigins  map[string]struct{}
	allowAllOrigins bool
)

func init() {
	SetConfig(nil)
}

func defaultConfig() Config {
	return Config{
		Port: defaultPort,
		AllowedOrigins: []string{
			"http://localhost:3000",
		},
		MaxMessageSize: defaultMaxMessageSize,
		RateLimit: RateLimitConfig{
			Burst:          defaultBurst,
			RefillInterval: Interval(time.Second),
		},
		SendBufferSize:  defaultSendBuffer,
		LogLevel:        "INFO",
		ShutdownTimeout: Interval(10 * time.Second),
		Confessions: ConfessionConfig{
			Store:      "memory",
			SQLitePath: "confessions.db",
			RateLimit:  5,
			RateWindow: Interval(time.Minute),
		},
	}
}

func sanitizeConfig(cfg Config) Config {
	if cfg.Port == "" {
		cfg.Port = defaultPort
	}
	if !strings.Contains(cfg.Port, ":") {
		cfg.Port = ":" + cfg.Port
	}

	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = defaultMaxMessageSize
	}

	if cfg.RateLimit.Burst <= 0 {
		cfg.RateLimit.Burst = defaultBurst
	}

	if cfg.RateLimit.RefillInterval <= 0 {
		cfg.RateLimit.RefillInterval = Interval(time.Second)
	}

	if cfg.SendBufferSize <= 0 {
		cfg.SendBufferSize = defaultSendBuffer
	}

	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = Interval(10 * time.Second)
	}

	cfg.Confessions.Store = strings.ToLower(strings.TrimSpace(cfg.Confessions.Store))
	if cfg.Confessions.Store == "" {
		cfg.Confessions.Store = "memory"
	}

	normalizedOrigins, allowAll := normalizeOrigins(cfg.AllowedOrigins)
	cfg.AllowedOrigins = normalizedOrigins

	configMu.Lock()
	defer configMu.Unlock()

	activeConfig = cfg
	allowAllOrigins = allowAll
	allowedOrigins = make(map[string]struct{}, len(normalizedOrigins))
	for _, origin := range normalizedOrigins {
		allowedOrigins[origin] = struct{}{}
	}

	return cfg
}

// SetConfig applies the provided configuration and returns the sanitized
// copy now in effect. Passing nil resets to defaults.
func SetConfig(cfg *Config) Config {
	if cfg == nil {
		return sanitizeConfig(defaultConfig())
	}

	sanitized := *cfg
	sanitized.AllowedOrigins = append([]string(nil), cfg.AllowedOrigins...)
	return sanitizeConfig(sanitized)
}

func currentConfig() Config {
	configMu.RLock()
	defer configMu.RUnlock()

	cfg := activeConfig
	cfg.AllowedOrigins = append([]string(nil), cfg.AllowedOrigins...)
	return cfg
}

// CurrentConfig returns a copy of the configuration in effect.
func CurrentConfig() Config {
	return currentConfig()
}

// NewConfig creates a Config instance populated with default values for all settings.
func NewConfig() *Config {
	cfg := defaultConfig()
	return &cfg
}

// NewConfigFromEnv loads an optional .env file and then reads the process
// environment. Unset variables keep their defaults.
func NewConfigFromEnv(envFiles ...string) (*Config, error) {
	if err := godotenv.Load(envFiles...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load env file: %w", err)
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("read environment: %w", err)
	}
	return &cfg, nil
}
