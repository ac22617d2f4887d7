// Package config loads process configuration from the environment, reading
// a .env file first when one is present.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/yourorg/payment-gateway/internal/adapter"
)

const (
	LedgerMemory   = "memory"
	LedgerPostgres = "postgres"
	LedgerDynamo   = "dynamodb"
	LedgerNone     = "none"
)

type Config struct {
	AppEnv  string
	AppPort string

	Gateway adapter.Config

	StateSecret string
	StateTTL    time.Duration

	LedgerBackend  string
	DBDSN          string
	DynamoTable    string
	DynamoEndpoint string
	AWSRegion      string

	PolicyRules string
	SchemaPath  string

	RateLimitRPS   float64
	RateLimitBurst int

	TrustForwardedHeaders bool
}

// Load reads the environment. Malformed numeric, boolean or duration values
// are errors rather than silently defaulted.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		AppEnv:  getenv("APP_ENV", "development"),
		AppPort: getenv("APP_PORT", "8080"),
		Gateway: adapter.Config{
			Backend: os.Getenv("GATEWAY_BACKEND"),
			Credentials: adapter.Credentials{
				Login:     os.Getenv("GATEWAY_LOGIN"),
				Password:  os.Getenv("GATEWAY_PASSWORD"),
				Signature: os.Getenv("GATEWAY_SIGNATURE"),
				APIKey:    os.Getenv("GATEWAY_API_KEY"),
			},
			ReturnURL: os.Getenv("GATEWAY_RETURN_URL"),
			CancelURL: os.Getenv("GATEWAY_CANCEL_URL"),
			Endpoint:  os.Getenv("GATEWAY_ENDPOINT"),
		},
		StateSecret:    os.Getenv("RESUME_STATE_SECRET"),
		LedgerBackend:  strings.ToLower(getenv("LEDGER_BACKEND", LedgerMemory)),
		DBDSN:          os.Getenv("DB_DSN"),
		DynamoTable:    os.Getenv("DYNAMODB_TABLE"),
		DynamoEndpoint: os.Getenv("DYNAMODB_ENDPOINT"),
		AWSRegion:      getenv("AWS_REGION", "us-east-1"),
		PolicyRules:    os.Getenv("POLICY_RULES"),
		SchemaPath:     os.Getenv("SCHEMA_PATH"),
	}

	var err error
	if cfg.Gateway.TestMode, err = boolEnv("GATEWAY_TEST_MODE", true); err != nil {
		return nil, err
	}
	if cfg.Gateway.HTTPTimeout, err = durationEnv("GATEWAY_HTTP_TIMEOUT", 0); err != nil {
		return nil, err
	}
	if cfg.StateTTL, err = durationEnv("RESUME_STATE_TTL", 0); err != nil {
		return nil, err
	}
	if cfg.TrustForwardedHeaders, err = boolEnv("TRUST_FORWARDED_HEADERS", false); err != nil {
		return nil, err
	}
	if cfg.RateLimitRPS, err = floatEnv("RATE_LIMIT_RPS", 10); err != nil {
		return nil, err
	}
	if cfg.RateLimitBurst, err = intEnv("RATE_LIMIT_BURST", 20); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.Gateway.Backend == "" {
		errs = append(errs, errors.New("GATEWAY_BACKEND is required"))
	}
	switch c.LedgerBackend {
	case LedgerMemory, LedgerNone:
	case LedgerPostgres:
		if c.DBDSN == "" {
			errs = append(errs, errors.New("DB_DSN is required for the postgres ledger"))
		}
	case LedgerDynamo:
		if c.DynamoTable == "" {
			errs = append(errs, errors.New("DYNAMODB_TABLE is required for the dynamodb ledger"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown LEDGER_BACKEND %q", c.LedgerBackend))
	}
	return errors.Join(errs...)
}

func (c *Config) Addr() string {
	return ":" + c.AppPort
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func boolEnv(key string, def bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s: %w", key, err)
	}
	return b, nil
}

func intEnv(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func floatEnv(key string, def float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return f, nil
}

func durationEnv(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}
