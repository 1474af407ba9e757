// Package bootstrap provides dependency initialization for the job gateway.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/maauso/firefly-jobs/internal/audiovideo"
	"github.com/maauso/firefly-jobs/internal/config"
	"github.com/maauso/firefly-jobs/internal/firefly"
	"github.com/maauso/firefly-jobs/internal/ims"
	"github.com/maauso/firefly-jobs/internal/job"
	"github.com/maauso/firefly-jobs/internal/jobs"
	"github.com/maauso/firefly-jobs/internal/metrics"
	"github.com/maauso/firefly-jobs/internal/photoshop"
	"github.com/maauso/firefly-jobs/internal/provider"
	"github.com/maauso/firefly-jobs/internal/storage"
	"github.com/maauso/firefly-jobs/internal/substance"
)

// Dependencies holds all initialized dependencies for the HTTP server.
type Dependencies struct {
	Jobs       *job.Service
	Providers  *provider.Registry
	Firefly    *firefly.Provider
	Photoshop  *photoshop.Provider
	AudioVideo *audiovideo.Provider
	Substance  *substance.Provider

	// Storage is nil when S3 is not configured.
	Storage storage.Storage

	Metrics        *metrics.Metrics
	MetricsHandler http.Handler

	clients map[credentialKey]*jobs.Client
}

type credentialKey struct {
	clientID     string
	clientSecret string
}

// NewDependencies creates and initializes all dependencies for the application.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	m, metricsHandler, err := metrics.New()
	if err != nil {
		return nil, fmt.Errorf("create metrics: %w", err)
	}

	deps := &Dependencies{
		Metrics:        m,
		MetricsHandler: metricsHandler,
		clients:        make(map[credentialKey]*jobs.Client),
	}

	// One credential cache per distinct credential set.
	clientFor := func(family provider.Family, override config.Credentials) (*jobs.Client, error) {
		key := credentialKey{clientID: cfg.IMSClientID, clientSecret: cfg.IMSClientSecret}
		if override.Set() {
			key = credentialKey{clientID: override.ClientID, clientSecret: override.ClientSecret}
		}
		if c, ok := deps.clients[key]; ok {
			return c, nil
		}
		c, err := newJobsClient(cfg, key, m, logger)
		if err != nil {
			return nil, fmt.Errorf("create %s client: %w", family, err)
		}
		deps.clients[key] = c
		return c, nil
	}

	fireflyClient, err := clientFor(provider.FamilyFirefly, cfg.FireflyCredentials)
	if err != nil {
		return nil, err
	}
	if deps.Firefly, err = firefly.New(cfg.FireflyBaseURL, fireflyClient); err != nil {
		return nil, fmt.Errorf("create Firefly provider: %w", err)
	}

	photoshopClient, err := clientFor(provider.FamilyPhotoshop, cfg.PhotoshopCredentials)
	if err != nil {
		return nil, err
	}
	if deps.Photoshop, err = photoshop.New(cfg.PhotoshopBaseURL, photoshopClient); err != nil {
		return nil, fmt.Errorf("create Photoshop provider: %w", err)
	}

	audioVideoClient, err := clientFor(provider.FamilyAudioVideo, cfg.AudioVideoCredentials)
	if err != nil {
		return nil, err
	}
	if deps.AudioVideo, err = audiovideo.New(cfg.AudioVideoBaseURL, audioVideoClient); err != nil {
		return nil, fmt.Errorf("create Audio/Video provider: %w", err)
	}

	substanceClient, err := clientFor(provider.FamilySubstance, cfg.SubstanceCredentials)
	if err != nil {
		return nil, err
	}
	if deps.Substance, err = substance.New(cfg.SubstanceBaseURL, substanceClient); err != nil {
		return nil, fmt.Errorf("create Substance provider: %w", err)
	}

	deps.Providers = provider.NewRegistry(deps.Firefly, deps.Photoshop, deps.AudioVideo, deps.Substance)
	logger.Info("providers configured",
		slog.Int("families", len(deps.Providers.Families())),
		slog.Int("credential_sets", len(deps.clients)),
	)

	deps.Jobs, err = job.NewService(job.NewMemoryRepository(), deps.Providers, logger,
		job.WithPollDefaults(cfg.PollInterval, cfg.JobTimeout),
		job.WithRetention(cfg.JobRetention),
		job.WithRecorder(m),
	)
	if err != nil {
		return nil, fmt.Errorf("create job service: %w", err)
	}

	store, err := initStorage(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	if store != nil {
		deps.Storage = store
	}

	return deps, nil
}

// Shutdown stops background job watches and flushes metrics.
func (d *Dependencies) Shutdown(ctx context.Context) error {
	return errors.Join(
		d.Jobs.Shutdown(ctx),
		d.Metrics.Shutdown(ctx),
	)
}

// newJobsClient builds the credential cache for key and the job client on top of it.
func newJobsClient(cfg *config.Config, key credentialKey, m *metrics.Metrics, logger *slog.Logger) (*jobs.Client, error) {
	// Outbound calls to IMS and the family APIs share one instrumented transport.
	httpClient := &http.Client{
		Timeout:   cfg.HTTPTimeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport, otelhttp.WithMeterProvider(m.MeterProvider())),
	}

	tokens, err := ims.NewClient(ims.Credentials{
		ClientID:     key.clientID,
		ClientSecret: key.clientSecret,
		Scope:        cfg.IMSScope,
		TokenURL:     cfg.IMSTokenURL,
	},
		ims.WithHTTPClient(httpClient),
		ims.WithSafetyMargin(cfg.IMSSafetyMargin),
		ims.WithRefreshHook(func(d time.Duration, err error) {
			m.TokenRefreshed(d, err)
			if err != nil {
				logger.Error("IMS token refresh failed",
					slog.String("client_id", key.clientID),
					slog.String("error", err.Error()),
				)
				return
			}
			logger.Debug("IMS token refreshed",
				slog.String("client_id", key.clientID),
				slog.Duration("duration", d),
			)
		}),
	)
	if err != nil {
		return nil, err
	}

	return jobs.NewClient(tokens, jobs.WithHTTPClient(httpClient))
}

// initStorage creates the S3 store when configured. It returns nil otherwise.
func initStorage(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*storage.S3Storage, error) {
	if !cfg.S3Enabled() {
		logger.Info("S3 storage not configured; presign and object routes disabled")
		return nil, nil
	}

	s3Store, err := storage.NewS3Storage(ctx, storage.S3Config{
		Bucket:          cfg.S3Bucket,
		Region:          cfg.S3Region,
		Endpoint:        cfg.S3Endpoint,
		AccessKeyID:     cfg.AWSAccessKeyID,
		SecretAccessKey: cfg.AWSSecretAccessKey,
		PresignTTL:      cfg.PresignTTL,
	})
	if err != nil {
		return nil, fmt.Errorf("create S3 storage: %w", err)
	}
	logger.Info("S3 storage configured",
		slog.String("bucket", cfg.S3Bucket),
		slog.String("region", cfg.S3Region),
	)
	return s3Store, nil
}
