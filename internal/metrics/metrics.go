// Package metrics exposes gateway metrics through an OpenTelemetry meter
// backed by a Prometheus exporter.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/maauso/firefly-jobs/internal/job"
	"github.com/maauso/firefly-jobs/internal/jobs"
	"github.com/maauso/firefly-jobs/internal/provider"
)

// Compile-time check that Metrics can record job lifecycle events.
var _ job.Recorder = (*Metrics)(nil)

// Metrics holds the gateway instruments.
type Metrics struct {
	provider *sdkmetric.MeterProvider

	// Credential cache
	TokenRefreshes       metric.Int64Counter
	TokenRefreshDuration metric.Float64Histogram

	// Jobs
	JobsSubmitted   metric.Int64Counter
	JobPollAttempts metric.Int64Counter
	JobsCompleted   metric.Int64Counter
	JobDuration     metric.Float64Histogram
	JobsActive      metric.Int64UpDownCounter

	// HTTP
	HTTPRequestDuration metric.Float64Histogram
	HTTPRequestsTotal   metric.Int64Counter
}

// New creates the instruments on a dedicated Prometheus registry and returns
// the handler serving it.
func New() (*Metrics, http.Handler, error) {
	registry := prometheus.NewRegistry()
	exporter, err := otelprom.New(otelprom.WithRegisterer(registry))
	if err != nil {
		return nil, nil, err
	}

	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	meter := mp.Meter("firefly-jobs")
	m := &Metrics{provider: mp}

	m.TokenRefreshes, err = meter.Int64Counter(
		"ims_token_refreshes_total",
		metric.WithDescription("Total number of IMS token refreshes"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.TokenRefreshDuration, err = meter.Float64Histogram(
		"ims_token_refresh_duration_seconds",
		metric.WithDescription("IMS token refresh latency in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10),
	)
	if err != nil {
		return nil, nil, err
	}

	m.JobsSubmitted, err = meter.Int64Counter(
		"jobs_submitted_total",
		metric.WithDescription("Total number of job submissions"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.JobPollAttempts, err = meter.Int64Counter(
		"jobs_poll_attempts_total",
		metric.WithDescription("Total number of classified status fetches"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.JobsCompleted, err = meter.Int64Counter(
		"jobs_completed_total",
		metric.WithDescription("Total number of jobs that reached a terminal state"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.JobDuration, err = meter.Float64Histogram(
		"job_duration_seconds",
		metric.WithDescription("Time from submission to terminal state in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(1, 5, 10, 30, 60, 120, 300, 600, 900, 1800),
	)
	if err != nil {
		return nil, nil, err
	}

	m.JobsActive, err = meter.Int64UpDownCounter(
		"jobs_active",
		metric.WithDescription("Number of submitted jobs not yet finished"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.HTTPRequestDuration, err = meter.Float64Histogram(
		"http_request_duration_seconds",
		metric.WithDescription("HTTP request latency in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10),
	)
	if err != nil {
		return nil, nil, err
	}

	m.HTTPRequestsTotal, err = meter.Int64Counter(
		"http_requests_total",
		metric.WithDescription("Total number of HTTP requests"),
	)
	if err != nil {
		return nil, nil, err
	}

	return m, promhttp.HandlerFor(registry, promhttp.HandlerOpts{}), nil
}

// MeterProvider returns the provider backing the Prometheus registry, for
// instrumentation libraries that take one.
func (m *Metrics) MeterProvider() metric.MeterProvider {
	return m.provider
}

// Shutdown flushes and stops the meter provider.
func (m *Metrics) Shutdown(ctx context.Context) error {
	return m.provider.Shutdown(ctx)
}

// TokenRefreshed records one credential refresh. Its signature matches
// ims.WithRefreshHook.
func (m *Metrics) TokenRefreshed(d time.Duration, err error) {
	ctx := context.Background()
	attrs := metric.WithAttributes(resultAttr(err))
	m.TokenRefreshes.Add(ctx, 1, attrs)
	m.TokenRefreshDuration.Record(ctx, d.Seconds(), attrs)
}

// JobSubmitted records a submission attempt.
func (m *Metrics) JobSubmitted(ctx context.Context, family provider.Family, err error) {
	m.JobsSubmitted.Add(ctx, 1, metric.WithAttributes(familyAttr(family), resultAttr(err)))
	if err == nil {
		m.JobsActive.Add(ctx, 1, metric.WithAttributes(familyAttr(family)))
	}
}

// PollAttempt records one classified status fetch.
func (m *Metrics) PollAttempt(ctx context.Context, family provider.Family, status jobs.Status) {
	m.JobPollAttempts.Add(ctx, 1, metric.WithAttributes(familyAttr(family), statusAttr(string(status))))
}

// JobCompleted records a job reaching a terminal state.
func (m *Metrics) JobCompleted(ctx context.Context, family provider.Family, status job.Status, elapsed time.Duration) {
	attrs := metric.WithAttributes(familyAttr(family), statusAttr(string(status)))
	m.JobsCompleted.Add(ctx, 1, attrs)
	m.JobDuration.Record(ctx, elapsed.Seconds(), attrs)
	m.JobsActive.Add(ctx, -1, metric.WithAttributes(familyAttr(family)))
}

// RecordHTTPRequest records HTTP request metrics. route should be the
// matched mux pattern to keep cardinality low.
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, route string, statusCode int, duration time.Duration) {
	attrs := metric.WithAttributes(
		methodAttr(method),
		routeAttr(route),
		codeAttr(statusCode),
	)
	m.HTTPRequestDuration.Record(ctx, duration.Seconds(), attrs)
	m.HTTPRequestsTotal.Add(ctx, 1, attrs)
}
