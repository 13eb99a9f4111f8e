// Package config provides configuration loading and validation for the API
// server and the billing runner. It uses koanf to merge environment variables
// with optional file overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config holds all configuration values for the platform services.
type Config struct {
	// Server settings
	Port int    `koanf:"port"`
	Env  string `koanf:"env"`

	// Database
	DatabaseURL string `koanf:"database_url"`

	// JWT Authentication (admin endpoints)
	JWTSecret string `koanf:"jwt_secret"`

	// Payment gateway
	GatewayBaseURL       string        `koanf:"gateway_base_url"`
	GatewayAPIKey        string        `koanf:"gateway_api_key"`
	GatewayWebhookSecret string        `koanf:"gateway_webhook_secret"`
	GatewayTimeout       time.Duration `koanf:"gateway_timeout"` // Default: 15s

	// Redis (rate limiting)
	RedisURL string `koanf:"redis_url"`

	// Archive (S3-compatible object storage for webhook payloads)
	ArchiveBucketName      string `koanf:"archive_bucket_name"`
	ArchiveAccessKeyID     string `koanf:"archive_access_key_id"`
	ArchiveSecretAccessKey string `koanf:"archive_secret_access_key"`
	ArchiveEndpoint        string `koanf:"archive_endpoint"`
	ArchiveKeyPrefix       string `koanf:"archive_key_prefix"` // Default: "webhooks"

	// Billing runner
	BillingInterval  time.Duration `koanf:"billing_interval"`   // Default: 1h
	BillingBatchSize int           `koanf:"billing_batch_size"` // Default: 100

	// Webhook ledger retention. Records older than this are purged; the
	// gateway never redelivers events this old, so idempotency is preserved.
	LedgerRetention time.Duration `koanf:"ledger_retention"` // Default: 2160h (90 days)
}

// Configuration validation errors.
var (
	ErrMissingDatabaseURL          = errors.New("DATABASE_URL is required")
	ErrMissingJWTSecret            = errors.New("JWT_SECRET is required")
	ErrMissingGatewayBaseURL       = errors.New("GATEWAY_BASE_URL is required")
	ErrMissingGatewayAPIKey        = errors.New("GATEWAY_API_KEY is required")
	ErrMissingGatewayWebhookSecret = errors.New("GATEWAY_WEBHOOK_SECRET is required")
	ErrMissingArchiveBucketName    = errors.New("ARCHIVE_BUCKET_NAME is required")
	ErrMissingArchiveAccessKeyID   = errors.New("ARCHIVE_ACCESS_KEY_ID is required")
	ErrMissingArchiveSecretKey     = errors.New("ARCHIVE_SECRET_ACCESS_KEY is required")
	ErrMissingArchiveEndpoint      = errors.New("ARCHIVE_ENDPOINT is required")
	ErrInvalidPort                 = errors.New("PORT must be a valid integer")
	ErrInvalidDuration             = errors.New("duration values must be parseable by time.ParseDuration")
)

// Default values for non-secret configuration.
const (
	DefaultPort             = 8080
	DefaultEnv              = "development"
	DefaultGatewayTimeout   = 15 * time.Second
	DefaultArchiveKeyPrefix = "webhooks"
	DefaultBillingInterval  = time.Hour
	DefaultBillingBatchSize = 100
	DefaultLedgerRetention  = 90 * 24 * time.Hour
)

// Load reads configuration from environment variables and an optional config file.
// Environment variables take precedence over file values.
// Returns the loaded config and a slice of validation errors (empty if valid).
// If a config file path is provided and the file cannot be loaded, an error is returned.
func Load(configFilePath string) (*Config, []error) {
	k := koanf.New(".")
	var loadErrs []error

	// Load from YAML file first if provided (lower precedence)
	if configFilePath != "" {
		if err := k.Load(file.Provider(configFilePath), yaml.Parser()); err != nil {
			return nil, []error{fmt.Errorf("failed to load config file %s: %w", configFilePath, err)}
		}
	}

	// Try LUMEN_PORT first, then PORT for backward compatibility
	port, portErr := getEnvIntOrDefaultMulti([]string{"LUMEN_PORT", "PORT"}, k.Int("port"), DefaultPort)
	if portErr != nil {
		loadErrs = append(loadErrs, portErr)
	}

	gatewayTimeout, timeoutErr := getEnvDurationOrDefault("GATEWAY_TIMEOUT", k.Duration("gateway_timeout"), DefaultGatewayTimeout)
	if timeoutErr != nil {
		loadErrs = append(loadErrs, timeoutErr)
	}

	billingInterval, intervalErr := getEnvDurationOrDefault("BILLING_INTERVAL", k.Duration("billing_interval"), DefaultBillingInterval)
	if intervalErr != nil {
		loadErrs = append(loadErrs, intervalErr)
	}

	batchSize, batchErr := getEnvIntOrDefault("BILLING_BATCH_SIZE", k.Int("billing_batch_size"), DefaultBillingBatchSize)
	if batchErr != nil {
		loadErrs = append(loadErrs, batchErr)
	}

	ledgerRetention, retentionErr := getEnvDurationOrDefault("LEDGER_RETENTION", k.Duration("ledger_retention"), DefaultLedgerRetention)
	if retentionErr != nil {
		loadErrs = append(loadErrs, retentionErr)
	}

	// Build config struct, with env vars taking precedence over file values
	cfg := &Config{
		Port:                   port,
		Env:                    getEnvOrDefaultMulti([]string{"LUMEN_ENV", "ENV", "GO_ENV"}, k.String("env"), DefaultEnv),
		DatabaseURL:            getEnvOrKoanf("DATABASE_URL", k, "database_url"),
		JWTSecret:              getEnvOrKoanf("JWT_SECRET", k, "jwt_secret"),
		GatewayBaseURL:         getEnvOrKoanf("GATEWAY_BASE_URL", k, "gateway_base_url"),
		GatewayAPIKey:          getEnvOrKoanf("GATEWAY_API_KEY", k, "gateway_api_key"),
		GatewayWebhookSecret:   getEnvOrKoanf("GATEWAY_WEBHOOK_SECRET", k, "gateway_webhook_secret"),
		GatewayTimeout:         gatewayTimeout,
		RedisURL:               getEnvOrKoanf("REDIS_URL", k, "redis_url"),
		ArchiveBucketName:      getEnvOrKoanf("ARCHIVE_BUCKET_NAME", k, "archive_bucket_name"),
		ArchiveAccessKeyID:     getEnvOrKoanf("ARCHIVE_ACCESS_KEY_ID", k, "archive_access_key_id"),
		ArchiveSecretAccessKey: getEnvOrKoanf("ARCHIVE_SECRET_ACCESS_KEY", k, "archive_secret_access_key"),
		ArchiveEndpoint:        getEnvOrKoanf("ARCHIVE_ENDPOINT", k, "archive_endpoint"),
		ArchiveKeyPrefix:       getEnvOrDefault("ARCHIVE_KEY_PREFIX", k.String("archive_key_prefix"), DefaultArchiveKeyPrefix),
		BillingInterval:        billingInterval,
		BillingBatchSize:       batchSize,
		LedgerRetention:        ledgerRetention,
	}

	// Validate and collect errors
	errs := cfg.Validate()
	errs = append(loadErrs, errs...)

	return cfg, errs
}

// getEnvOrKoanf returns the environment variable value if set, otherwise the koanf value.
func getEnvOrKoanf(envKey string, k *koanf.Koanf, koanfKey string) string {
	if val := os.Getenv(envKey); val != "" {
		return val
	}
	return k.String(koanfKey)
}

// getEnvOrDefault returns the environment variable value if set, otherwise the koanf value, or default.
func getEnvOrDefault(envKey string, koanfVal string, defaultVal string) string {
	if val := os.Getenv(envKey); val != "" {
		return val
	}
	if koanfVal != "" {
		return koanfVal
	}
	return defaultVal
}

// getEnvOrDefaultMulti tries multiple environment variable keys in order.
// Returns the first non-empty value found, otherwise the koanf value, or default.
func getEnvOrDefaultMulti(envKeys []string, koanfVal string, defaultVal string) string {
	for _, key := range envKeys {
		if val := os.Getenv(key); val != "" {
			return val
		}
	}
	if koanfVal != "" {
		return koanfVal
	}
	return defaultVal
}

// getEnvIntOrDefault returns the environment variable as int if set, otherwise the koanf value, or default.
// Returns an error if the environment variable is set but cannot be parsed as an integer.
func getEnvIntOrDefault(envKey string, koanfVal int, defaultVal int) (int, error) {
	if val := os.Getenv(envKey); val != "" {
		i, err := strconv.Atoi(val)
		if err != nil {
			return 0, fmt.Errorf("%s must be a valid integer: %w", envKey, ErrInvalidPort)
		}
		return i, nil
	}
	if koanfVal != 0 {
		return koanfVal, nil
	}
	return defaultVal, nil
}

// getEnvIntOrDefaultMulti tries multiple environment variable keys in order.
// Returns the first valid integer value found, otherwise the koanf value, or default.
// Returns an error if any environment variable is set but cannot be parsed as an integer.
func getEnvIntOrDefaultMulti(envKeys []string, koanfVal int, defaultVal int) (int, error) {
	for _, key := range envKeys {
		if val := os.Getenv(key); val != "" {
			i, err := strconv.Atoi(val)
			if err != nil {
				return 0, fmt.Errorf("%s must be a valid integer: %w", key, ErrInvalidPort)
			}
			return i, nil
		}
	}
	if koanfVal != 0 {
		return koanfVal, nil
	}
	return defaultVal, nil
}

// getEnvDurationOrDefault returns the environment variable as a duration if set,
// otherwise the koanf value, or default. Returns an error if the environment
// variable is set but cannot be parsed (e.g. "15s", "2h").
func getEnvDurationOrDefault(envKey string, koanfVal time.Duration, defaultVal time.Duration) (time.Duration, error) {
	if val := os.Getenv(envKey); val != "" {
		d, err := time.ParseDuration(val)
		if err != nil {
			return 0, fmt.Errorf("%s: %w", envKey, ErrInvalidDuration)
		}
		return d, nil
	}
	if koanfVal != 0 {
		return koanfVal, nil
	}
	return defaultVal, nil
}

// Validate checks that all required configuration values are present.
// Returns a slice of validation errors (empty if valid).
func (c *Config) Validate() []error {
	var errs []error

	if c.DatabaseURL == "" {
		errs = append(errs, ErrMissingDatabaseURL)
	}
	if c.JWTSecret == "" {
		errs = append(errs, ErrMissingJWTSecret)
	}
	if c.GatewayBaseURL == "" {
		errs = append(errs, ErrMissingGatewayBaseURL)
	}
	if c.GatewayAPIKey == "" {
		errs = append(errs, ErrMissingGatewayAPIKey)
	}
	if c.GatewayWebhookSecret == "" {
		errs = append(errs, ErrMissingGatewayWebhookSecret)
	}

	// Archive configuration is optional. Only validate fields if any archive value is set.
	if c.ArchiveBucketName != "" || c.ArchiveAccessKeyID != "" || c.ArchiveSecretAccessKey != "" || c.ArchiveEndpoint != "" {
		if c.ArchiveBucketName == "" {
			errs = append(errs, ErrMissingArchiveBucketName)
		}
		if c.ArchiveAccessKeyID == "" {
			errs = append(errs, ErrMissingArchiveAccessKeyID)
		}
		if c.ArchiveSecretAccessKey == "" {
			errs = append(errs, ErrMissingArchiveSecretKey)
		}
		if c.ArchiveEndpoint == "" {
			errs = append(errs, ErrMissingArchiveEndpoint)
		}
	}

	return errs
}

// ArchiveEnabled reports whether webhook payload archival is configured.
func (c *Config) ArchiveEnabled() bool {
	return c.ArchiveBucketName != ""
}

// LogSummary returns a summary of the configuration suitable for logging.
// All secrets are masked to prevent accidental exposure.
func (c *Config) LogSummary() map[string]string {
	return map[string]string{
		"port":                      fmt.Sprintf("%d", c.Port),
		"env":                       c.Env,
		"database_url":              maskDatabaseURL(c.DatabaseURL),
		"jwt_secret":                maskSecret(c.JWTSecret),
		"gateway_base_url":          c.GatewayBaseURL,
		"gateway_api_key":           maskAPIKey(c.GatewayAPIKey),
		"gateway_webhook_secret":    maskSecret(c.GatewayWebhookSecret),
		"gateway_timeout":           c.GatewayTimeout.String(),
		"redis_url":                 maskDatabaseURL(c.RedisURL),
		"archive_bucket_name":       c.ArchiveBucketName,
		"archive_access_key_id":     maskSecret(c.ArchiveAccessKeyID),
		"archive_secret_access_key": maskSecret(c.ArchiveSecretAccessKey),
		"archive_endpoint":          c.ArchiveEndpoint,
		"archive_key_prefix":        c.ArchiveKeyPrefix,
		"billing_interval":          c.BillingInterval.String(),
		"billing_batch_size":        fmt.Sprintf("%d", c.BillingBatchSize),
		"ledger_retention":          c.LedgerRetention.String(),
	}
}

// maskSecret masks a secret value, showing only the first 4 characters followed by ****
// If the secret is shorter than 8 characters, it's fully masked.
func maskSecret(s string) string {
	if s == "" {
		return "<not set>"
	}
	if len(s) < 8 {
		return "****"
	}
	return s[:4] + "****"
}

// maskAPIKey masks a gateway API key, preserving the prefix (sk_live_, sk_test_, etc.)
func maskAPIKey(s string) string {
	if s == "" {
		return "<not set>"
	}

	parts := strings.SplitN(s, "_", 3)
	if len(parts) == 3 {
		return parts[0] + "_" + parts[1] + "_****"
	}

	// Fallback to generic masking
	return maskSecret(s)
}

// maskDatabaseURL masks the password in a connection URL.
// Supports postgres://, postgresql://, and redis:// schemes.
func maskDatabaseURL(s string) string {
	if s == "" {
		return "<not set>"
	}

	// Look for password pattern: user:password@host
	schemeEnd := strings.Index(s, "://")
	if schemeEnd == -1 {
		return maskSecret(s)
	}

	rest := s[schemeEnd+3:]
	atIndex := strings.Index(rest, "@")
	if atIndex == -1 {
		return s // No credentials in URL
	}

	colonIndex := strings.Index(rest[:atIndex], ":")
	if colonIndex == -1 {
		return s // No password (only username)
	}

	// Reconstruct URL with masked password
	scheme := s[:schemeEnd+3]
	user := rest[:colonIndex]
	hostAndPath := rest[atIndex:]

	return scheme + user + ":****" + hostAndPath
}
