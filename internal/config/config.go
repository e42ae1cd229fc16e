package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type Config struct {
	Port              string        `mapstructure:"PORT"`
	Env               string        `mapstructure:"ENV"`
	DatabaseURL       string        `mapstructure:"DATABASE_URL"`
	DBMaxConns        int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns        int32         `mapstructure:"DB_MIN_CONNS"`
	DefaultTenant     string        `mapstructure:"DEFAULT_TENANT"`
	CORSOrigins       []string      `mapstructure:"CORS_ORIGINS"`
	AuthIssuer        string        `mapstructure:"AUTH_ISSUER"`
	AuthAudience      string        `mapstructure:"AUTH_AUDIENCE"`
	AuthJWKSURL       string        `mapstructure:"AUTH_JWKS_URL"`
	AuthSigningKey    string        `mapstructure:"AUTH_SIGNING_KEY"`
	RateLimitRPS      float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst    int           `mapstructure:"RATE_LIMIT_BURST"`
	RequestTimeout    time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	BodyLimit         string        `mapstructure:"BODY_LIMIT"`
	RedisURL          string        `mapstructure:"REDIS_URL"`
	IdempotencyTTL    time.Duration `mapstructure:"IDEMPOTENCY_TTL"`
	KafkaBrokers      []string      `mapstructure:"KAFKA_BROKERS"`
	KafkaEventsTopic  string        `mapstructure:"KAFKA_EVENTS_TOPIC"`
	PaymentAPIURL     string        `mapstructure:"PAYMENT_API_URL"`
	PaymentAPIKey     string        `mapstructure:"PAYMENT_API_KEY"`
	LLMAPIURL         string        `mapstructure:"LLM_API_URL"`
	LLMAPIKey         string        `mapstructure:"LLM_API_KEY"`
	LLMModel          string        `mapstructure:"LLM_MODEL"`
	LowStockThreshold int           `mapstructure:"LOW_STOCK_THRESHOLD"`
}

var boundKeys = []string{
	"PORT", "ENV", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
	"DEFAULT_TENANT", "CORS_ORIGINS",
	"AUTH_ISSUER", "AUTH_AUDIENCE", "AUTH_JWKS_URL", "AUTH_SIGNING_KEY",
	"RATE_LIMIT_RPS", "RATE_LIMIT_BURST", "REQUEST_TIMEOUT", "BODY_LIMIT",
	"REDIS_URL", "IDEMPOTENCY_TTL", "KAFKA_BROKERS", "KAFKA_EVENTS_TOPIC",
	"PAYMENT_API_URL", "PAYMENT_API_KEY",
	"LLM_API_URL", "LLM_API_KEY", "LLM_MODEL",
	"LOW_STOCK_THRESHOLD",
}

func Load() (*Config, error) {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("DEFAULT_TENANT", "default")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("RATE_LIMIT_RPS", 50)
	v.SetDefault("RATE_LIMIT_BURST", 100)
	v.SetDefault("REQUEST_TIMEOUT", "30s")
	v.SetDefault("BODY_LIMIT", "10M")
	v.SetDefault("IDEMPOTENCY_TTL", "24h")
	v.SetDefault("KAFKA_EVENTS_TOPIC", "dentdesk.events")
	v.SetDefault("LLM_API_URL", "https://api.openai.com/v1/chat/completions")
	v.SetDefault("LLM_MODEL", "gpt-4o-mini")
	v.SetDefault("LOW_STOCK_THRESHOLD", 5)

	// Bind env vars explicitly so Unmarshal picks them up
	for _, key := range boundKeys {
		_ = v.BindEnv(key)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.CORSOrigins = splitList(v.GetString("CORS_ORIGINS"))
	cfg.KafkaBrokers = splitList(v.GetString("KAFKA_BROKERS"))

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.IsDev() {
		log.Warn().Msg("running in development mode: every unauthenticated request is treated as admin")
	}

	return cfg, nil
}

func splitList(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Validate checks that the configuration is safe to run. Outside development
// a token verifier must be configured: an issuer with JWKS discovery or a
// shared signing key.
func (c *Config) Validate() error {
	if !c.IsDev() && c.AuthIssuer == "" && c.AuthSigningKey == "" {
		return fmt.Errorf("AUTH_ISSUER or AUTH_SIGNING_KEY must be set when ENV=%q", c.Env)
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS (%d) exceeds DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	if c.LowStockThreshold < 0 {
		return fmt.Errorf("LOW_STOCK_THRESHOLD must not be negative")
	}
	if c.PaymentAPIURL != "" && !strings.HasPrefix(c.PaymentAPIURL, "http") {
		return fmt.Errorf("PAYMENT_API_URL must be an http(s) URL")
	}
	return nil
}

// PaymentLinksEnabled reports whether completion can request payment links.
func (c *Config) PaymentLinksEnabled() bool {
	return c.PaymentAPIURL != ""
}
