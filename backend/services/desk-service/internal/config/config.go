package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	libconfig "cyberdesk/backend/libs/config"
)

const (
	defaultPort           = "8085"
	defaultHourlyRate     = "100.00"
	defaultTotalMachines  = 30
	defaultRecentSessions = 10
	defaultRecentPayments = 5
	defaultTimezone       = "Africa/Nairobi"
)

// Config defines desk-service configuration.
type Config struct {
	HTTP struct {
		Port string `yaml:"port" env:"DESK_HTTP_PORT"`
	} `yaml:"http"`
	Database struct {
		DSN     string `yaml:"dsn" env:"DESK_POSTGRES_DSN"`
		Migrate bool   `yaml:"migrate" env:"DESK_POSTGRES_MIGRATE"`
	} `yaml:"database"`
	Redis struct {
		Addr     string `yaml:"addr" env:"DESK_REDIS_ADDR"`
		Password string `yaml:"password" env:"DESK_REDIS_PASSWORD"`
		DB       int    `yaml:"db" env:"DESK_REDIS_DB"`
		TTL      int    `yaml:"ttlSeconds" env:"DESK_REDIS_TTL"`
	} `yaml:"redis"`
	JWT struct {
		Secret           string `yaml:"secret" env:"DESK_JWT_SECRET"`
		ExpiresInMinutes int    `yaml:"expiresInMinutes" env:"DESK_JWT_EXPIRES_MINUTES"`
	} `yaml:"jwt"`
	Billing struct {
		HourlyRate     string `yaml:"hourlyRate" env:"DESK_HOURLY_RATE"`
		TotalMachines  int    `yaml:"totalMachines" env:"DESK_TOTAL_MACHINES"`
		RecentSessions int    `yaml:"recentSessions" env:"DESK_RECENT_SESSIONS"`
		RecentPayments int    `yaml:"recentPayments" env:"DESK_RECENT_PAYMENTS"`
		Timezone       string `yaml:"timezone" env:"DESK_TIMEZONE"`
	} `yaml:"billing"`
	Mpesa struct {
		Environment    string `yaml:"environment" env:"MPESA_ENVIRONMENT"`
		BaseURL        string `yaml:"baseUrl" env:"MPESA_BASE_URL"`
		ConsumerKey    string `yaml:"consumerKey" env:"MPESA_CONSUMER_KEY"`
		ConsumerSecret string `yaml:"consumerSecret" env:"MPESA_CONSUMER_SECRET"`
		ShortCode      string `yaml:"shortCode" env:"MPESA_SHORTCODE"`
		PassKey        string `yaml:"passKey" env:"MPESA_PASSKEY"`
		CallbackURL    string `yaml:"callbackUrl" env:"MPESA_CALLBACK_URL"`
		TimeoutSeconds int    `yaml:"timeoutSeconds" env:"MPESA_TIMEOUT"`
		PushTTLSeconds int    `yaml:"pushTtlSeconds" env:"MPESA_PUSH_TTL"`
	} `yaml:"mpesa"`
}

// Load reads configuration via shared helper.
func Load() (*Config, error) {
	cfg := &Config{}
	cfg.HTTP.Port = defaultPort
	cfg.Database.Migrate = true
	cfg.Redis.TTL = 86400
	cfg.JWT.ExpiresInMinutes = 12 * 60
	cfg.Billing.HourlyRate = defaultHourlyRate
	cfg.Billing.TotalMachines = defaultTotalMachines
	cfg.Billing.RecentSessions = defaultRecentSessions
	cfg.Billing.RecentPayments = defaultRecentPayments
	cfg.Billing.Timezone = defaultTimezone
	cfg.Mpesa.Environment = "sandbox"
	cfg.Mpesa.TimeoutSeconds = 30
	cfg.Mpesa.PushTTLSeconds = 60

	if err := libconfig.LoadConfig(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks required fields and value ranges.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Database.DSN) == "" {
		return errors.New("config: database dsn required")
	}
	if strings.TrimSpace(c.JWT.Secret) == "" {
		return errors.New("config: jwt secret required")
	}
	rate, err := c.HourlyRate()
	if err != nil {
		return err
	}
	if !rate.IsPositive() {
		return errors.New("config: hourly rate must be positive")
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	switch strings.ToLower(strings.TrimSpace(c.Mpesa.Environment)) {
	case "sandbox", "production":
	default:
		return fmt.Errorf("config: unknown mpesa environment %q", c.Mpesa.Environment)
	}
	return nil
}

// HTTPAddress returns :port style.
func (c *Config) HTTPAddress() string {
	port := strings.TrimSpace(c.HTTP.Port)
	if port == "" {
		port = defaultPort
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return fmt.Sprintf(":%s", port)
}

// RedisEnabled reports whether a redis address was configured.
func (c *Config) RedisEnabled() bool {
	return strings.TrimSpace(c.Redis.Addr) != ""
}

// CallbackTTL is how long processed callback markers are kept.
func (c *Config) CallbackTTL() time.Duration {
	if c.Redis.TTL <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(c.Redis.TTL) * time.Second
}

// PushTTL is how long a target stays locked after a push was sent.
func (c *Config) PushTTL() time.Duration {
	if c.Mpesa.PushTTLSeconds <= 0 {
		return time.Minute
	}
	return time.Duration(c.Mpesa.PushTTLSeconds) * time.Second
}

// JWTExpiration converts configured expiry to duration.
func (c *Config) JWTExpiration() time.Duration {
	if c.JWT.ExpiresInMinutes <= 0 {
		return time.Hour
	}
	return time.Duration(c.JWT.ExpiresInMinutes) * time.Minute
}

// HourlyRate parses the configured billing rate.
func (c *Config) HourlyRate() (decimal.Decimal, error) {
	raw := strings.TrimSpace(c.Billing.HourlyRate)
	if raw == "" {
		raw = defaultHourlyRate
	}
	rate, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("config: parse hourly rate: %w", err)
	}
	return rate, nil
}

// Location resolves the timezone used for "today" boundaries.
func (c *Config) Location() (*time.Location, error) {
	name := strings.TrimSpace(c.Billing.Timezone)
	if name == "" {
		name = defaultTimezone
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("config: load timezone: %w", err)
	}
	return loc, nil
}

// MpesaTimeout returns the payment network client timeout.
func (c *Config) MpesaTimeout() time.Duration {
	if c.Mpesa.TimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.Mpesa.TimeoutSeconds) * time.Second
}

// MpesaBaseURL returns the explicit base URL or the one implied by the environment.
func (c *Config) MpesaBaseURL() string {
	if base := strings.TrimSpace(c.Mpesa.BaseURL); base != "" {
		return strings.TrimRight(base, "/")
	}
	if strings.EqualFold(strings.TrimSpace(c.Mpesa.Environment), "production") {
		return "https://api.safaricom.co.ke"
	}
	return "https://sandbox.safaricom.co.ke"
}
