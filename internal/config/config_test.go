package config

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/sethvargo/go-envconfig"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requiredEnv() map[string]string {
	return map[string]string{
		"IMS_CLIENT_ID":     "test-client-id",
		"IMS_CLIENT_SECRET": "test-client-secret",
	}
}

func loadMap(t *testing.T, env map[string]string) (*Config, error) {
	t.Helper()
	return load(context.Background(), envconfig.MapLookuper(env))
}

func TestLoad_RequiredVariables(t *testing.T) {
	t.Run("missing IMS_CLIENT_ID returns error", func(t *testing.T) {
		_, err := loadMap(t, map[string]string{"IMS_CLIENT_SECRET": "secret"})
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrIMSClientIDRequired)
	})

	t.Run("missing IMS_CLIENT_SECRET returns error", func(t *testing.T) {
		_, err := loadMap(t, map[string]string{"IMS_CLIENT_ID": "id"})
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrIMSClientSecretRequired)
	})

	t.Run("all required variables present succeeds", func(t *testing.T) {
		cfg, err := loadMap(t, requiredEnv())
		require.NoError(t, err)
		assert.Equal(t, "test-client-id", cfg.IMSClientID)
		assert.Equal(t, "test-client-secret", cfg.IMSClientSecret)
	})
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("IMS_CLIENT_ID", "env-id")
	t.Setenv("IMS_CLIENT_SECRET", "env-secret")
	t.Setenv("PORT", "9090")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "env-id", cfg.IMSClientID)
	assert.Equal(t, 9090, cfg.Port)
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := loadMap(t, requiredEnv())
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, []string{"*"}, cfg.AllowedOrigins)
	assert.Empty(t, cfg.IMSScope)
	assert.Equal(t, 60*time.Second, cfg.IMSSafetyMargin)
	assert.Equal(t, "https://firefly-api.adobe.io", cfg.FireflyBaseURL)
	assert.Equal(t, "https://image.adobe.io", cfg.PhotoshopBaseURL)
	assert.Equal(t, "https://audio-video-api.adobe.io/v1", cfg.AudioVideoBaseURL)
	assert.Equal(t, "https://s3d.adobe.io", cfg.SubstanceBaseURL)
	assert.Equal(t, 30*time.Second, cfg.HTTPTimeout)
	assert.Equal(t, 3*time.Second, cfg.PollInterval)
	assert.Equal(t, 5*time.Minute, cfg.JobTimeout)
	assert.Equal(t, time.Hour, cfg.JobRetention)
	assert.Equal(t, time.Hour, cfg.PresignTTL)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.False(t, cfg.PhotoshopCredentials.Set())
}

func TestLoad_CustomValues(t *testing.T) {
	env := requiredEnv()
	env["PORT"] = "3000"
	env["CORS_ALLOWED_ORIGINS"] = "https://a.example,https://b.example"
	env["IMS_SCOPE"] = "openid,AdobeID"
	env["IMS_TOKEN_URL"] = "https://ims.example/token"
	env["IMS_SAFETY_MARGIN"] = "90s"
	env["FIREFLY_BASE_URL"] = "https://ff.example"
	env["POLL_INTERVAL"] = "500ms"
	env["JOB_TIMEOUT"] = "10m"
	env["S3_BUCKET"] = "my-bucket"
	env["S3_REGION"] = "us-east-1"
	env["S3_ENDPOINT"] = "http://localhost:4566"
	env["AWS_ACCESS_KEY_ID"] = "access-key"
	env["AWS_SECRET_ACCESS_KEY"] = "secret-key"
	env["PRESIGN_TTL"] = "15m"
	env["LOG_FORMAT"] = "json"
	env["LOG_LEVEL"] = "debug"

	cfg, err := loadMap(t, env)
	require.NoError(t, err)

	assert.Equal(t, 3000, cfg.Port)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
	assert.Equal(t, "openid,AdobeID", cfg.IMSScope)
	assert.Equal(t, "https://ims.example/token", cfg.IMSTokenURL)
	assert.Equal(t, 90*time.Second, cfg.IMSSafetyMargin)
	assert.Equal(t, "https://ff.example", cfg.FireflyBaseURL)
	assert.Equal(t, 500*time.Millisecond, cfg.PollInterval)
	assert.Equal(t, 10*time.Minute, cfg.JobTimeout)
	assert.Equal(t, "my-bucket", cfg.S3Bucket)
	assert.Equal(t, "us-east-1", cfg.S3Region)
	assert.Equal(t, "http://localhost:4566", cfg.S3Endpoint)
	assert.Equal(t, "access-key", cfg.AWSAccessKeyID)
	assert.Equal(t, "secret-key", cfg.AWSSecretAccessKey)
	assert.Equal(t, 15*time.Minute, cfg.PresignTTL)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoad_FamilyCredentials(t *testing.T) {
	env := requiredEnv()
	env["PHOTOSHOP_CLIENT_ID"] = "ps-id"
	env["PHOTOSHOP_CLIENT_SECRET"] = "ps-secret"

	cfg, err := loadMap(t, env)
	require.NoError(t, err)
	assert.True(t, cfg.PhotoshopCredentials.Set())
	assert.Equal(t, "ps-id", cfg.PhotoshopCredentials.ClientID)
	assert.Equal(t, "ps-secret", cfg.PhotoshopCredentials.ClientSecret)
	assert.False(t, cfg.FireflyCredentials.Set())
}

func TestLoad_IncompleteFamilyCredentials(t *testing.T) {
	env := requiredEnv()
	env["SUBSTANCE_CLIENT_ID"] = "s3d-id"

	_, err := loadMap(t, env)
	assert.ErrorIs(t, err, ErrIncompleteCredentials)
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"port", "PORT", "not-a-number"},
		{"poll interval", "POLL_INTERVAL", "soon"},
		{"timeout", "JOB_TIMEOUT", "5 minutes"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := requiredEnv()
			env[tt.key] = tt.val
			_, err := loadMap(t, env)
			require.Error(t, err)
		})
	}
}

func TestLoad_NonPositivePolling(t *testing.T) {
	env := requiredEnv()
	env["POLL_INTERVAL"] = "0s"

	_, err := loadMap(t, env)
	assert.ErrorIs(t, err, ErrInvalidPolling)
}

func TestConfig_S3Enabled(t *testing.T) {
	tests := []struct {
		name     string
		bucket   string
		region   string
		expected bool
	}{
		{"both set", "bucket", "region", true},
		{"only bucket", "bucket", "", false},
		{"only region", "", "region", false},
		{"neither set", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{
				S3Bucket: tt.bucket,
				S3Region: tt.region,
			}
			assert.Equal(t, tt.expected, cfg.S3Enabled())
		})
	}
}

func TestConfig_String(t *testing.T) {
	cfg := &Config{
		Port:            8080,
		IMSClientID:     "client-123",
		IMSClientSecret: "super-secret",
		S3Bucket:        "bucket",
		LogFormat:       "json",
		LogLevel:        "info",
	}

	str := cfg.String()
	assert.Contains(t, str, "client-123")
	assert.Contains(t, str, "bucket")
	assert.NotContains(t, str, "super-secret")
}

func TestConfig_NewLogger(t *testing.T) {
	for _, format := range []string{"json", "text"} {
		t.Run(format, func(t *testing.T) {
			cfg := &Config{LogFormat: format, LogLevel: "warn"}
			logger := cfg.NewLogger()
			require.NotNil(t, logger)
			assert.False(t, logger.Enabled(context.Background(), slog.LevelInfo))
			assert.True(t, logger.Enabled(context.Background(), slog.LevelWarn))
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"unknown", slog.LevelInfo},
		{"", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, parseLogLevel(tt.input))
		})
	}
}

func TestLoggerWritesStructuredOutput(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: parseLogLevel("info")}))
	logger.Info("job submitted", slog.String("job_id", "job-1"))
	assert.Contains(t, buf.String(), `"job_id":"job-1"`)
}
