// Package config loads service configuration from the environment, with
// optional .env support for local development.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the full service configuration
type Config struct {
	Server ServerConfig
	DB     DBConfig
	OTC    OTCConfig
	SMS    SMSConfig
	Docs   DocsConfig
}

// ServerConfig holds HTTP listener settings
type ServerConfig struct {
	Host string
	Port string
}

// DBConfig holds SQLite settings
type DBConfig struct {
	Path string
}

// OTCConfig controls one-time-code generation and expiry
type OTCConfig struct {
	Length   int
	Expiry   time.Duration
	DebugLog bool
}

// SMSConfig holds the SMS gateway settings for customer code delivery
type SMSConfig struct {
	GatewayURL string
	Username   string
	Password   string
	SenderID   string
	Enabled    bool
}

// DocsConfig holds object storage settings for checklist documents
type DocsConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Enabled   bool
}

// Load reads configuration from the environment. A .env file in the working
// directory is merged in when present but is never required.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Host: envOr("HOST", "0.0.0.0"),
			Port: envOr("PORT", "8080"),
		},
		DB: DBConfig{
			Path: envOr("DB_PATH", "dispatch.db"),
		},
		OTC: OTCConfig{
			DebugLog: envBool("OTC_DEBUG_LOG_ENABLED"),
		},
		SMS: SMSConfig{
			GatewayURL: os.Getenv("SMS_GATEWAY_URL"),
			Username:   os.Getenv("SMS_USERNAME"),
			Password:   os.Getenv("SMS_PASSWORD"),
			SenderID:   os.Getenv("SMS_SENDER_ID"),
		},
		Docs: DocsConfig{
			Endpoint:  os.Getenv("DOCS_ENDPOINT"),
			AccessKey: os.Getenv("DOCS_ACCESS_KEY"),
			SecretKey: os.Getenv("DOCS_SECRET_KEY"),
			Bucket:    envOr("DOCS_BUCKET", "job-documents"),
		},
	}

	length, err := envIntOr("OTC_LENGTH", 6)
	if err != nil {
		return nil, err
	}
	if length < 4 || length > 10 {
		return nil, fmt.Errorf("OTC_LENGTH must be between 4 and 10, got %d", length)
	}
	cfg.OTC.Length = length

	expiryMinutes, err := envIntOr("OTC_EXPIRY_MINUTES", 10)
	if err != nil {
		return nil, err
	}
	cfg.OTC.Expiry = time.Duration(expiryMinutes) * time.Minute

	cfg.SMS.Enabled = cfg.SMS.GatewayURL != ""
	cfg.Docs.Enabled = cfg.Docs.Endpoint != ""

	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string) bool {
	v, _ := strconv.ParseBool(os.Getenv(key))
	return v
}

func envIntOr(key string, fallback int) (int, error) {
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
