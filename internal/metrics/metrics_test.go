package metrics

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maauso/firefly-jobs/internal/job"
	"github.com/maauso/firefly-jobs/internal/jobs"
	"github.com/maauso/firefly-jobs/internal/provider"
)

func scrape(t *testing.T, h http.Handler) string {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	return string(body)
}

func TestNew(t *testing.T) {
	t.Parallel()
	m, h, err := New()
	require.NoError(t, err)
	require.NotNil(t, m)
	require.NotNil(t, h)
	t.Cleanup(func() { _ = m.Shutdown(context.Background()) })
}

func TestRecordJobLifecycle(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m, h, err := New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Shutdown(ctx) })

	m.JobSubmitted(ctx, provider.FamilyFirefly, nil)
	m.JobSubmitted(ctx, provider.FamilyPhotoshop, errors.New("rejected"))
	m.PollAttempt(ctx, provider.FamilyFirefly, jobs.StatusRunning)
	m.PollAttempt(ctx, provider.FamilyFirefly, jobs.StatusSucceeded)
	m.JobCompleted(ctx, provider.FamilyFirefly, job.StatusSucceeded, 12*time.Second)

	out := scrape(t, h)
	assert.Contains(t, out, "jobs_submitted_total")
	assert.Contains(t, out, `family="firefly"`)
	assert.Contains(t, out, `result="error"`)
	assert.Contains(t, out, "jobs_poll_attempts_total")
	assert.Contains(t, out, "jobs_completed_total")
	assert.Contains(t, out, `status="succeeded"`)
	assert.Contains(t, out, "job_duration_seconds")
}

func TestTokenRefreshed(t *testing.T) {
	t.Parallel()
	m, h, err := New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Shutdown(context.Background()) })

	m.TokenRefreshed(80*time.Millisecond, nil)
	m.TokenRefreshed(10*time.Millisecond, errors.New("401"))

	out := scrape(t, h)
	assert.Contains(t, out, "ims_token_refreshes_total")
	assert.Contains(t, out, `result="success"`)
	assert.Contains(t, out, `result="error"`)
}

func TestRecordHTTPRequest(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m, h, err := New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Shutdown(ctx) })

	m.RecordHTTPRequest(ctx, "GET", "GET /v1/jobs/{id}", 200, time.Millisecond)
	m.RecordHTTPRequest(ctx, "POST", "", 404, time.Millisecond)

	out := scrape(t, h)
	assert.Contains(t, out, "http_requests_total")
	assert.Contains(t, out, `route="unmatched"`)
	assert.Contains(t, out, `code="4xx"`)
}

func TestRegistriesAreIndependent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	a, ha, err := New()
	require.NoError(t, err)
	b, hb, err := New()
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = a.Shutdown(ctx)
		_ = b.Shutdown(ctx)
	})

	a.JobSubmitted(ctx, provider.FamilySubstance, nil)

	assert.Contains(t, scrape(t, ha), `family="substance"`)
	assert.NotContains(t, scrape(t, hb), `family="substance"`)
}

func TestCodeAttr(t *testing.T) {
	t.Parallel()
	tests := []struct {
		code int
		want string
	}{
		{200, "2xx"},
		{202, "2xx"},
		{404, "4xx"},
		{504, "5xx"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, codeAttr(tt.code).Value.AsString())
	}
}
