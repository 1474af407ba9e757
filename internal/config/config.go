// Package config provides configuration loading from environment variables.
package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/sethvargo/go-envconfig"
)

// Static errors for configuration validation.
var (
	// ErrIMSClientIDRequired is returned when IMS_CLIENT_ID is not set.
	ErrIMSClientIDRequired = errors.New("config: IMS_CLIENT_ID is required")
	// ErrIMSClientSecretRequired is returned when IMS_CLIENT_SECRET is not set.
	ErrIMSClientSecretRequired = errors.New("config: IMS_CLIENT_SECRET is required")
	// ErrIncompleteCredentials is returned when a family override sets only
	// one of client ID and secret.
	ErrIncompleteCredentials = errors.New("config: family credentials need both CLIENT_ID and CLIENT_SECRET")
	// ErrInvalidPolling is returned when POLL_INTERVAL or JOB_TIMEOUT is not positive.
	ErrInvalidPolling = errors.New("config: POLL_INTERVAL and JOB_TIMEOUT must be positive")
)

// Credentials is an optional per-family IMS credential override.
type Credentials struct {
	ClientID     string `env:"CLIENT_ID" json:"client_id,omitempty"`
	ClientSecret string `env:"CLIENT_SECRET" json:"-"` // Masked in JSON
}

// Set reports whether the override is in use.
func (c Credentials) Set() bool {
	return c.ClientID != "" || c.ClientSecret != ""
}

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	Port           int      `env:"PORT, default=8080" json:"port"`
	AllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS, default=*" json:"allowed_origins"`

	// IMS settings
	IMSClientID     string        `env:"IMS_CLIENT_ID, required" json:"ims_client_id"`
	IMSClientSecret string        `env:"IMS_CLIENT_SECRET, required" json:"-"` // Masked in JSON
	IMSScope        string        `env:"IMS_SCOPE" json:"ims_scope,omitempty"`
	IMSTokenURL     string        `env:"IMS_TOKEN_URL" json:"ims_token_url,omitempty"`
	IMSSafetyMargin time.Duration `env:"IMS_SAFETY_MARGIN, default=60s" json:"ims_safety_margin"`

	// Per-family credential overrides, e.g. PHOTOSHOP_CLIENT_ID.
	FireflyCredentials    Credentials `env:", prefix=FIREFLY_" json:"firefly_credentials"`
	PhotoshopCredentials  Credentials `env:", prefix=PHOTOSHOP_" json:"photoshop_credentials"`
	AudioVideoCredentials Credentials `env:", prefix=AUDIO_VIDEO_" json:"audio_video_credentials"`
	SubstanceCredentials  Credentials `env:", prefix=SUBSTANCE_" json:"substance_credentials"`

	// Family endpoints
	FireflyBaseURL    string `env:"FIREFLY_BASE_URL, default=https://firefly-api.adobe.io" json:"firefly_base_url"`
	PhotoshopBaseURL  string `env:"PHOTOSHOP_BASE_URL, default=https://image.adobe.io" json:"photoshop_base_url"`
	AudioVideoBaseURL string `env:"AUDIO_VIDEO_BASE_URL, default=https://audio-video-api.adobe.io/v1" json:"audio_video_base_url"`
	SubstanceBaseURL  string `env:"SUBSTANCE_BASE_URL, default=https://s3d.adobe.io" json:"substance_base_url"`

	// Job settings
	HTTPTimeout  time.Duration `env:"HTTP_TIMEOUT, default=30s" json:"http_timeout"`
	PollInterval time.Duration `env:"POLL_INTERVAL, default=3s" json:"poll_interval"`
	JobTimeout   time.Duration `env:"JOB_TIMEOUT, default=5m" json:"job_timeout"`
	JobRetention time.Duration `env:"JOB_RETENTION, default=1h" json:"job_retention"`

	// Optional S3 settings
	S3Bucket           string        `env:"S3_BUCKET" json:"s3_bucket,omitempty"`
	S3Region           string        `env:"S3_REGION" json:"s3_region,omitempty"`
	S3Endpoint         string        `env:"S3_ENDPOINT" json:"s3_endpoint,omitempty"`
	AWSAccessKeyID     string        `env:"AWS_ACCESS_KEY_ID" json:"-"`     // Masked in JSON
	AWSSecretAccessKey string        `env:"AWS_SECRET_ACCESS_KEY" json:"-"` // Masked in JSON
	PresignTTL         time.Duration `env:"PRESIGN_TTL, default=1h" json:"presign_ttl"`

	// Logging settings
	LogFormat string `env:"LOG_FORMAT, default=text" json:"log_format"` // "json" or "text"
	LogLevel  string `env:"LOG_LEVEL, default=info" json:"log_level"`   // "debug", "info", "warn", "error"
}

// S3Enabled returns true if S3 configuration is provided.
func (c *Config) S3Enabled() bool {
	return c.S3Bucket != "" && c.S3Region != ""
}

// Load reads configuration from environment variables using go-envconfig.
// It returns an error if required variables are not set.
func Load() (*Config, error) {
	return load(context.Background(), nil)
}

func load(ctx context.Context, lookuper envconfig.Lookuper) (*Config, error) {
	cfg := &Config{}

	ec := &envconfig.Config{Target: cfg, Lookuper: lookuper}
	if err := envconfig.ProcessWith(ctx, ec); err != nil {
		// Map envconfig errors to our domain errors for required fields
		if strings.Contains(err.Error(), "IMS_CLIENT_ID") {
			return nil, ErrIMSClientIDRequired
		}
		if strings.Contains(err.Error(), "IMS_CLIENT_SECRET") {
			return nil, ErrIMSClientSecretRequired
		}
		return nil, fmt.Errorf("config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that all required configuration is present.
func (c *Config) Validate() error {
	if c.IMSClientID == "" {
		return ErrIMSClientIDRequired
	}
	if c.IMSClientSecret == "" {
		return ErrIMSClientSecretRequired
	}
	for _, fc := range []Credentials{c.FireflyCredentials, c.PhotoshopCredentials, c.AudioVideoCredentials, c.SubstanceCredentials} {
		if fc.Set() && (fc.ClientID == "" || fc.ClientSecret == "") {
			return ErrIncompleteCredentials
		}
	}
	if c.PollInterval <= 0 || c.JobTimeout <= 0 {
		return ErrInvalidPolling
	}
	return nil
}

// NewLogger creates a structured logger based on the configuration.
// When LogFormat is "json", it outputs JSON logs suitable for production.
// Otherwise, it outputs human-readable text logs.
func (c *Config) NewLogger() *slog.Logger {
	level := parseLogLevel(c.LogLevel)

	var handler slog.Handler
	if strings.ToLower(c.LogFormat) == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	}

	return slog.New(handler)
}

// String returns a string representation of the config with sensitive values masked.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Port: %d, IMSClientID: %s, IMSClientSecret: %s, FireflyBaseURL: %s, PhotoshopBaseURL: %s, AudioVideoBaseURL: %s, SubstanceBaseURL: %s, PollInterval: %s, JobTimeout: %s, S3Bucket: %s, S3Region: %s, LogFormat: %s, LogLevel: %s}",
		c.Port,
		c.IMSClientID,
		mask(c.IMSClientSecret),
		c.FireflyBaseURL,
		c.PhotoshopBaseURL,
		c.AudioVideoBaseURL,
		c.SubstanceBaseURL,
		c.PollInterval,
		c.JobTimeout,
		c.S3Bucket,
		c.S3Region,
		c.LogFormat,
		c.LogLevel,
	)
}

func mask(secret string) string {
	if secret == "" {
		return ""
	}
	return "****"
}

// parseLogLevel converts a string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
