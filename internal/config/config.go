package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultAppName         = "SoFiCo Wallet"
	defaultAppEnv          = "development"
	defaultPort            = "8080"
	defaultRealtimePort    = "8081"
	defaultLogLevel        = "info"
	defaultCurrency        = "INR"
	defaultShutdownDelay   = 10 * time.Second
	defaultIdempotencyTTL  = 24 * time.Hour
	defaultGatewayBaseURL  = "https://api.razorpay.com"
	defaultGatewayTimeout  = 15 * time.Second
	defaultGatewayRPS      = 20.0
	defaultSettleAttempts  = 5
	defaultSettleBackoff   = 10 * time.Millisecond
	defaultKafkaTopic      = "wallet.balance_changed"
	defaultEventsChannel   = "wallet:events"
	defaultCallbackPerMin  = 30
	idemTTLSecondsEnvVar   = "IDEMPOTENCY_TTL_SECONDS"
	idemTTLDurEnvVar       = "IDEMPOTENCY_TTL"
	shutdownSecondsEnvVar  = "SHUTDOWN_TIMEOUT_SECONDS"
	shutdownDurationEnvVar = "SHUTDOWN_TIMEOUT"
	devJWTSecret           = "dev-only-jwt-secret"
	devGatewaySecret       = "dev-only-gateway-secret"
)

// Config captures application runtime configuration loaded from environment variables.
type Config struct {
	AppName        string
	AppEnv         string
	Port           string
	RealtimePort   string
	LogLevel       string
	DatabaseURL    string
	AutoMigrate    bool
	RedisURL       string
	ShutdownPeriod time.Duration
	IdempotencyTTL time.Duration
	JWTSecret      string
	Currency       string

	Gateway GatewayConfig

	SettleMaxAttempts int
	SettleBaseBackoff time.Duration

	KafkaBrokers  []string
	KafkaTopic    string
	EventsChannel string

	RequireKYCForWithdrawal bool
	CallbackRateLimit       int
}

// GatewayConfig holds payment processor credentials and client tuning.
type GatewayConfig struct {
	BaseURL   string
	KeyID     string
	KeySecret string
	Timeout   time.Duration
	RPS       float64
}

// Simulated reports whether the static in-process gateway should be used instead of the
// real processor. Only development without a key id qualifies.
func (g GatewayConfig) Simulated() bool {
	return g.KeyID == ""
}

// Load reads configuration values from the environment and populates a Config instance.
// A .env file in the working directory is honoured when present.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	cfg := Config{
		AppName:        getEnv("APP_NAME", defaultAppName),
		AppEnv:         strings.ToLower(getEnv("APP_ENV", defaultAppEnv)),
		Port:           getEnv("PORT", defaultPort),
		RealtimePort:   getEnv("REALTIME_PORT", defaultRealtimePort),
		LogLevel:       strings.ToLower(getEnv("LOG_LEVEL", defaultLogLevel)),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		RedisURL:       os.Getenv("REDIS_URL"),
		ShutdownPeriod: defaultShutdownDelay,
		IdempotencyTTL: defaultIdempotencyTTL,
		JWTSecret:      os.Getenv("JWT_SECRET"),
		Currency:       strings.ToUpper(getEnv("CURRENCY", defaultCurrency)),
		Gateway: GatewayConfig{
			BaseURL:   strings.TrimRight(getEnv("GATEWAY_BASE_URL", defaultGatewayBaseURL), "/"),
			KeyID:     os.Getenv("GATEWAY_KEY_ID"),
			KeySecret: os.Getenv("GATEWAY_KEY_SECRET"),
			Timeout:   defaultGatewayTimeout,
			RPS:       defaultGatewayRPS,
		},
		SettleMaxAttempts: defaultSettleAttempts,
		SettleBaseBackoff: defaultSettleBackoff,
		KafkaTopic:        getEnv("KAFKA_TOPIC", defaultKafkaTopic),
		EventsChannel:     getEnv("EVENTS_CHANNEL", defaultEventsChannel),
		CallbackRateLimit: defaultCallbackPerMin,
	}

	var err error
	if cfg.ShutdownPeriod, err = durationFromEnv(shutdownSecondsEnvVar, shutdownDurationEnvVar, cfg.ShutdownPeriod); err != nil {
		return Config{}, err
	}
	if cfg.IdempotencyTTL, err = durationFromEnv(idemTTLSecondsEnvVar, idemTTLDurEnvVar, cfg.IdempotencyTTL); err != nil {
		return Config{}, err
	}
	if cfg.Gateway.Timeout, err = durationFromEnv("", "GATEWAY_TIMEOUT", cfg.Gateway.Timeout); err != nil {
		return Config{}, err
	}
	if cfg.SettleBaseBackoff, err = durationFromEnv("", "SETTLE_BASE_BACKOFF", cfg.SettleBaseBackoff); err != nil {
		return Config{}, err
	}

	if v := os.Getenv("GATEWAY_RPS"); v != "" {
		rps, err := strconv.ParseFloat(v, 64)
		if err != nil || rps <= 0 {
			return Config{}, fmt.Errorf("invalid GATEWAY_RPS: %q", v)
		}
		cfg.Gateway.RPS = rps
	}
	if cfg.SettleMaxAttempts, err = intFromEnv("SETTLE_MAX_ATTEMPTS", cfg.SettleMaxAttempts); err != nil {
		return Config{}, err
	}
	if cfg.CallbackRateLimit, err = intFromEnv("CALLBACK_RATE_LIMIT", cfg.CallbackRateLimit); err != nil {
		return Config{}, err
	}
	if cfg.AutoMigrate, err = boolFromEnv("DB_AUTOMIGRATE", true); err != nil {
		return Config{}, err
	}
	if cfg.RequireKYCForWithdrawal, err = boolFromEnv("REQUIRE_KYC_FOR_WITHDRAWAL", false); err != nil {
		return Config{}, err
	}

	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		for _, broker := range strings.Split(v, ",") {
			if broker = strings.TrimSpace(broker); broker != "" {
				cfg.KafkaBrokers = append(cfg.KafkaBrokers, broker)
			}
		}
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.SettleMaxAttempts < 1 {
		return fmt.Errorf("SETTLE_MAX_ATTEMPTS must be at least 1")
	}
	if c.IsDevelopment() {
		if c.JWTSecret == "" {
			c.JWTSecret = devJWTSecret
		}
		if c.Gateway.KeySecret == "" {
			c.Gateway.KeySecret = devGatewaySecret
		}
		return nil
	}

	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL must be set when APP_ENV=%s", c.AppEnv)
	}
	if c.RedisURL == "" {
		return fmt.Errorf("REDIS_URL must be set when APP_ENV=%s", c.AppEnv)
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET must be set when APP_ENV=%s", c.AppEnv)
	}
	if c.Gateway.KeyID == "" || c.Gateway.KeySecret == "" {
		return fmt.Errorf("GATEWAY_KEY_ID and GATEWAY_KEY_SECRET must be set when APP_ENV=%s", c.AppEnv)
	}
	return nil
}

// IsDevelopment reports whether the service runs in a local/dev environment.
func (c Config) IsDevelopment() bool {
	switch c.AppEnv {
	case "dev", "development", "local", "test":
		return true
	default:
		return false
	}
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	return listenAddr(c.Port)
}

// RealtimeAddress returns the listen address of the websocket server.
func (c Config) RealtimeAddress() string {
	return listenAddr(c.RealtimePort)
}

func listenAddr(port string) string {
	if strings.HasPrefix(port, ":") {
		return port
	}
	return fmt.Sprintf(":%s", port)
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// durationFromEnv prefers the whole-seconds variable, then the Go duration variable.
func durationFromEnv(secondsKey, durationKey string, fallback time.Duration) (time.Duration, error) {
	if secondsKey != "" {
		if v := os.Getenv(secondsKey); v != "" {
			seconds, err := strconv.Atoi(v)
			if err != nil {
				return 0, fmt.Errorf("invalid %s: %w", secondsKey, err)
			}
			return time.Duration(seconds) * time.Second, nil
		}
	}
	if v := os.Getenv(durationKey); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %w", durationKey, err)
		}
		return d, nil
	}
	return fallback, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}
