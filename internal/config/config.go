// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Storage drivers accepted in STORAGE_DRIVER.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// minTokenSecretLen is the minimum PREFERENCE_TOKEN_SECRET length in bytes.
const minTokenSecretLen = 32

// Config holds application configuration loaded from the environment.
type Config struct {
	// HTTPAddr is the address the HTTP API listens on (e.g. :8080).
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// GRPCAddr is the address the gRPC health/reflection server listens on (e.g. :9090).
	GRPCAddr string `mapstructure:"GRPC_ADDR"`
	// Env is the application environment (e.g. "development", "production").
	Env string `mapstructure:"APP_ENV"`
	// LogLevel is the zap level name (debug, info, warn, error).
	LogLevel string `mapstructure:"LOG_LEVEL"`

	// StorageDriver selects the consent store backend: "postgres" or "sqlite".
	StorageDriver string `mapstructure:"STORAGE_DRIVER"`
	// DatabaseURL is the Postgres DSN; required when StorageDriver is postgres.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// SQLitePath is the database file used when StorageDriver is sqlite.
	SQLitePath string `mapstructure:"SQLITE_PATH"`

	// JWTPublicKey is the PEM-encoded public key (or path) that verifies merchant access tokens.
	JWTPublicKey string `mapstructure:"JWT_PUBLIC_KEY"`
	// JWTPrivateKey is only read by cmd/seed to mint a development merchant token.
	JWTPrivateKey string `mapstructure:"JWT_PRIVATE_KEY"`
	// JWTIssuer is the expected iss claim of merchant access tokens.
	JWTIssuer string `mapstructure:"JWT_ISSUER"`
	// JWTAudience is the expected aud claim of merchant access tokens.
	JWTAudience string `mapstructure:"JWT_AUDIENCE"`

	// PreferenceTokenSecret signs preference-center links. At least 32 bytes.
	PreferenceTokenSecret string `mapstructure:"PREFERENCE_TOKEN_SECRET"`
	// PreferenceTokenPreviousSecrets is a comma-separated list of retired secrets still accepted on verify.
	PreferenceTokenPreviousSecrets string `mapstructure:"PREFERENCE_TOKEN_PREVIOUS_SECRETS"`
	// PreferenceTokenTTL is the default link lifetime (e.g. "720h").
	PreferenceTokenTTL string `mapstructure:"PREFERENCE_TOKEN_TTL"`
	// PreferenceBaseURL is the preference page URL the token is appended to as ?token=.
	PreferenceBaseURL string `mapstructure:"PREFERENCE_BASE_URL"`

	// DefaultCountry is the ISO country used when a request carries no country hint.
	DefaultCountry string `mapstructure:"DEFAULT_COUNTRY"`
	// InboundWebhookSecret authenticates the messaging provider on POST /v1/inbound/messages.
	// When empty the webhook rejects every request.
	InboundWebhookSecret string `mapstructure:"INBOUND_WEBHOOK_SECRET"`
	// CORSAllowedOrigins is a comma-separated list of origins allowed to call the preference API.
	CORSAllowedOrigins string `mapstructure:"CORS_ALLOWED_ORIGINS"`

	// KafkaBrokers is a comma-separated list of Kafka broker addresses. Empty disables Kafka.
	KafkaBrokers string `mapstructure:"KAFKA_BROKERS"`
	// ComplianceKafkaTopic receives committed compliance events.
	ComplianceKafkaTopic string `mapstructure:"COMPLIANCE_KAFKA_TOPIC"`
	// InboundKafkaTopic carries inbound customer messages consumed by cmd/worker.
	InboundKafkaTopic string `mapstructure:"INBOUND_KAFKA_TOPIC"`
	// KafkaGroupID is the consumer group ID for the inbound worker.
	KafkaGroupID string `mapstructure:"KAFKA_GROUP_ID"`

	// RedisAddr enables inbound message de-duplication when set.
	RedisAddr string `mapstructure:"REDIS_ADDR"`
	// RedisPassword is the optional Redis password.
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	// InboundDedupeTTL is how long a provider message id is remembered (e.g. "24h").
	InboundDedupeTTL string `mapstructure:"INBOUND_DEDUPE_TTL"`

	// OTLPEndpoint is the OTLP gRPC collector endpoint. Empty uses no-op providers.
	OTLPEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	// OTLPInsecure forces plaintext to the collector even for https endpoints.
	OTLPInsecure bool `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`
	// ServiceName is the OTel service.name resource attribute.
	ServiceName string `mapstructure:"OTEL_SERVICE_NAME"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env. Returns an error if required fields are invalid.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("GRPC_ADDR", ":9090")
	v.SetDefault("APP_ENV", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("STORAGE_DRIVER", DriverPostgres)
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("SQLITE_PATH", "data/consent.db")
	v.SetDefault("JWT_PUBLIC_KEY", "")
	v.SetDefault("JWT_PRIVATE_KEY", "")
	v.SetDefault("JWT_ISSUER", "platform-auth")
	v.SetDefault("JWT_AUDIENCE", "consent-api")
	v.SetDefault("PREFERENCE_TOKEN_SECRET", "")
	v.SetDefault("PREFERENCE_TOKEN_PREVIOUS_SECRETS", "")
	v.SetDefault("PREFERENCE_TOKEN_TTL", "720h") // 30d
	v.SetDefault("PREFERENCE_BASE_URL", "http://localhost:3000/preferences")
	v.SetDefault("DEFAULT_COUNTRY", "NG")
	v.SetDefault("INBOUND_WEBHOOK_SECRET", "")
	v.SetDefault("CORS_ALLOWED_ORIGINS", "")
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("COMPLIANCE_KAFKA_TOPIC", "consent-compliance-events")
	v.SetDefault("INBOUND_KAFKA_TOPIC", "consent-inbound-messages")
	v.SetDefault("KAFKA_GROUP_ID", "consent-inbound-worker")
	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("INBOUND_DEDUPE_TTL", "24h")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", false)
	v.SetDefault("OTEL_SERVICE_NAME", "consent-engine")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.HTTPAddr == "" {
		return nil, errors.New("config: HTTP_ADDR must be set")
	}
	cfg.StorageDriver = strings.ToLower(strings.TrimSpace(cfg.StorageDriver))
	switch cfg.StorageDriver {
	case DriverPostgres:
		if cfg.DatabaseURL == "" {
			return nil, errors.New("config: DATABASE_URL is required when STORAGE_DRIVER=postgres")
		}
	case DriverSQLite:
		if strings.TrimSpace(cfg.SQLitePath) == "" {
			return nil, errors.New("config: SQLITE_PATH is required when STORAGE_DRIVER=sqlite")
		}
	default:
		return nil, errors.New("config: STORAGE_DRIVER must be postgres or sqlite")
	}
	if len(cfg.PreferenceTokenSecret) < minTokenSecretLen {
		return nil, errors.New("config: PREFERENCE_TOKEN_SECRET must be at least 32 bytes")
	}
	if cfg.Env == "production" && cfg.InboundWebhookSecret == "" {
		return nil, errors.New("config: INBOUND_WEBHOOK_SECRET must be set when APP_ENV=production")
	}
	cfg.DefaultCountry = strings.ToUpper(strings.TrimSpace(cfg.DefaultCountry))

	return &cfg, nil
}

// TokenTTL parses PreferenceTokenTTL as a time.Duration. Returns 720h if unset or invalid.
func (c *Config) TokenTTL() time.Duration {
	d, err := time.ParseDuration(c.PreferenceTokenTTL)
	if err != nil || d <= 0 {
		return 720 * time.Hour
	}
	return d
}

// DedupeTTL parses InboundDedupeTTL as a time.Duration. Returns 24h if unset or invalid.
func (c *Config) DedupeTTL() time.Duration {
	d, err := time.ParseDuration(c.InboundDedupeTTL)
	if err != nil || d <= 0 {
		return 24 * time.Hour
	}
	return d
}

// KafkaBrokersList returns Kafka broker addresses from the comma-separated config.
// An empty list means Kafka publishing and the inbound worker are disabled.
func (c *Config) KafkaBrokersList() []string {
	if c == nil {
		return nil
	}
	return splitList(c.KafkaBrokers)
}

// PreviousTokenSecrets returns retired preference-token secrets that are still accepted on verify.
func (c *Config) PreviousTokenSecrets() []string {
	if c == nil {
		return nil
	}
	return splitList(c.PreferenceTokenPreviousSecrets)
}

// CORSOrigins returns the allowed CORS origins.
func (c *Config) CORSOrigins() []string {
	if c == nil {
		return nil
	}
	return splitList(c.CORSAllowedOrigins)
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
