package config

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port                  string        `mapstructure:"PORT"`
	Env                   string        `mapstructure:"ENV"`
	DatabaseURL           string        `mapstructure:"DATABASE_URL"`
	DBMaxConns            int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns            int32         `mapstructure:"DB_MIN_CONNS"`
	CORSOrigins           []string      `mapstructure:"CORS_ORIGINS"`
	PHIEncryptionKey      string        `mapstructure:"PHI_ENCRYPTION_KEY"`
	AuthSigningKey        string        `mapstructure:"AUTH_SIGNING_KEY"`
	AuthIssuer            string        `mapstructure:"AUTH_ISSUER"`
	AuthAudience          string        `mapstructure:"AUTH_AUDIENCE"`
	RateLimitRPS          float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst        int           `mapstructure:"RATE_LIMIT_BURST"`
	ServiceAreaPrefixes   []string      `mapstructure:"SERVICE_AREA_PREFIXES"`
	VocabularyFile        string        `mapstructure:"VOCABULARY_FILE"`
	KafkaBrokers          []string      `mapstructure:"KAFKA_BROKERS"`
	KafkaScoredTopic      string        `mapstructure:"KAFKA_SCORED_TOPIC"`
	KafkaSubmissionsTopic string        `mapstructure:"KAFKA_SUBMISSIONS_TOPIC"`
	KafkaGroupID          string        `mapstructure:"KAFKA_GROUP_ID"`
	DedupWindow           time.Duration `mapstructure:"DEDUP_WINDOW"`
}

var keys = []string{
	"PORT", "ENV", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS", "CORS_ORIGINS",
	"PHI_ENCRYPTION_KEY", "AUTH_SIGNING_KEY", "AUTH_ISSUER", "AUTH_AUDIENCE",
	"RATE_LIMIT_RPS", "RATE_LIMIT_BURST", "SERVICE_AREA_PREFIXES", "VOCABULARY_FILE",
	"KAFKA_BROKERS", "KAFKA_SCORED_TOPIC", "KAFKA_SUBMISSIONS_TOPIC", "KAFKA_GROUP_ID",
	"DEDUP_WINDOW",
}

// Load reads configuration from the environment and an optional .env file.
// It does not require a database so that offline commands can use it.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("AUTH_ISSUER", "intake")
	v.SetDefault("RATE_LIMIT_RPS", 5)
	v.SetDefault("RATE_LIMIT_BURST", 20)
	v.SetDefault("SERVICE_AREA_PREFIXES", "85,86")
	v.SetDefault("KAFKA_SCORED_TOPIC", "lead.scored")
	v.SetDefault("KAFKA_SUBMISSIONS_TOPIC", "lead.submissions")
	v.SetDefault("KAFKA_GROUP_ID", "intake-server")
	v.SetDefault("DEDUP_WINDOW", "24h")

	// Bind env vars explicitly so Unmarshal picks them up
	for _, key := range keys {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("bind %s: %w", key, err)
		}
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// Comma separated lists arrive as a single string from the environment.
	cfg.CORSOrigins = splitList(v.GetString("CORS_ORIGINS"))
	cfg.ServiceAreaPrefixes = splitList(v.GetString("SERVICE_AREA_PREFIXES"))
	cfg.KafkaBrokers = splitList(v.GetString("KAFKA_BROKERS"))

	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
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

// KafkaEnabled reports whether brokers are configured.
func (c *Config) KafkaEnabled() bool {
	return len(c.KafkaBrokers) > 0
}

// RequireDatabase fails when DATABASE_URL is missing.
func (c *Config) RequireDatabase() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	return nil
}

// Validate checks that the configuration is safe to run. Outside development
// the dashboard signing key must be set, and in production the PHI key is
// required and must be a 64-character hex string (32 bytes when decoded).
func (c *Config) Validate() error {
	if !c.IsDev() && len(c.AuthSigningKey) < 32 {
		return fmt.Errorf("AUTH_SIGNING_KEY must be at least 32 characters outside development (current ENV=%q)", c.Env)
	}

	if c.IsProduction() && c.PHIEncryptionKey == "" {
		return fmt.Errorf("PHI_ENCRYPTION_KEY is required in production")
	}
	if c.PHIEncryptionKey != "" {
		keyBytes, err := hex.DecodeString(c.PHIEncryptionKey)
		if err != nil {
			return fmt.Errorf("PHI_ENCRYPTION_KEY is not valid hex: %w", err)
		}
		if len(keyBytes) != 32 {
			return fmt.Errorf("PHI_ENCRYPTION_KEY must be 32 bytes (64 hex chars), got %d bytes", len(keyBytes))
		}
	}

	if c.RateLimitRPS <= 0 || c.RateLimitBurst <= 0 {
		return fmt.Errorf("RATE_LIMIT_RPS and RATE_LIMIT_BURST must be positive")
	}
	for _, p := range c.ServiceAreaPrefixes {
		if strings.Trim(p, "0123456789") != "" || len(p) > 5 {
			return fmt.Errorf("SERVICE_AREA_PREFIXES entry %q is not a zip prefix", p)
		}
	}
	if c.DedupWindow < 0 {
		return fmt.Errorf("DEDUP_WINDOW must not be negative")
	}
	if c.KafkaEnabled() && (c.KafkaScoredTopic == "" || c.KafkaSubmissionsTopic == "") {
		return fmt.Errorf("KAFKA_SCORED_TOPIC and KAFKA_SUBMISSIONS_TOPIC are required when KAFKA_BROKERS is set")
	}
	return nil
}
