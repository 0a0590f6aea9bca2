// Package config loads the export job configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// ClavisConfig holds the Clavis API connection settings.
type ClavisConfig struct {
	BaseURL  string
	Username string
	Password string
	Method   string
	Timeout  time.Duration
}

// S3Config holds the object store settings.
type S3Config struct {
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	Region          string
	UseSSL          bool
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string
	Pretty bool
}

// AppConfig holds the whole job configuration.
type AppConfig struct {
	Clavis ClavisConfig
	S3     S3Config
	Log    LogConfig

	// RedisURL enables the run ledger when set.
	RedisURL string

	// PushgatewayURL enables pushing metrics when set.
	PushgatewayURL string
}

// Load reads an optional .env file and then the environment. An explicit
// envPath must exist; the default ./.env may be missing.
func Load(envPath ...string) (*AppConfig, error) {
	if len(envPath) > 0 && envPath[0] != "" {
		if err := godotenv.Load(envPath[0]); err != nil {
			return nil, fmt.Errorf("could not load env file %s: %w", envPath[0], err)
		}
	} else if err := godotenv.Load(); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("could not load .env file: %w", err)
		}
		log.Debug().Msg("No .env file found, using environment only")
	}

	cfg := &AppConfig{
		Clavis: ClavisConfig{
			BaseURL:  os.Getenv("CLAVIS_BASE_URL"),
			Username: os.Getenv("CLAVIS_USERNAME"),
			Password: os.Getenv("CLAVIS_PASSWORD"),
			Method:   strings.ToUpper(getEnvAsString("CLAVIS_HTTP_METHOD", "GET")),
			Timeout:  getEnvAsDuration("CLAVIS_TIMEOUT", 30*time.Second),
		},
		S3: S3Config{
			Endpoint:        getEnvAsString("S3_ENDPOINT", "s3.amazonaws.com"),
			AccessKeyID:     os.Getenv("S3_ACCESS_KEY_ID"),
			SecretAccessKey: os.Getenv("S3_SECRET_ACCESS_KEY"),
			Region:          getEnvAsString("S3_REGION", "us-east-1"),
			UseSSL:          getEnvAsBool("S3_USE_SSL", true),
		},
		Log: LogConfig{
			Level:  getEnvAsString("LOG_LEVEL", "info"),
			Pretty: getEnvAsBool("LOG_PRETTY", false),
		},
		RedisURL:       os.Getenv("REDIS_URL"),
		PushgatewayURL: os.Getenv("PUSHGATEWAY_URL"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks required settings.
func (c *AppConfig) Validate() error {
	if c.Clavis.BaseURL == "" {
		return fmt.Errorf("CLAVIS_BASE_URL environment variable is required")
	}
	if (c.Clavis.Username == "") != (c.Clavis.Password == "") {
		return fmt.Errorf("CLAVIS_USERNAME and CLAVIS_PASSWORD must be set together")
	}
	if c.Clavis.Method != "GET" && c.Clavis.Method != "POST" {
		return fmt.Errorf("CLAVIS_HTTP_METHOD must be GET or POST (got %s)", c.Clavis.Method)
	}
	if c.S3.AccessKeyID == "" || c.S3.SecretAccessKey == "" {
		return fmt.Errorf("S3_ACCESS_KEY_ID and S3_SECRET_ACCESS_KEY environment variables are required")
	}
	return nil
}

// HasStaticCredentials reports whether connection-level credentials are set.
func (c *AppConfig) HasStaticCredentials() bool {
	return c.Clavis.Username != ""
}

func getEnvAsString(key string, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valStr, exists := os.LookupEnv(key)
	if !exists || valStr == "" {
		return defaultValue
	}
	valBool, err := strconv.ParseBool(valStr)
	if err != nil {
		log.Warn().Str("key", key).Str("value", valStr).Bool("default", defaultValue).Msg("Invalid bool in environment, using default")
		return defaultValue
	}
	return valBool
}

// getEnvAsDuration accepts Go durations ("45s") and plain seconds ("45").
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valStr, exists := os.LookupEnv(key)
	if !exists || valStr == "" {
		return defaultValue
	}
	if secs, err := strconv.Atoi(valStr); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	d, err := time.ParseDuration(valStr)
	if err != nil || d <= 0 {
		log.Warn().Str("key", key).Str("value", valStr).Dur("default", defaultValue).Msg("Invalid duration in environment, using default")
		return defaultValue
	}
	return d
}
