package photoshop

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maauso/firefly-jobs/internal/jobs"
	"github.com/maauso/firefly-jobs/internal/provider"
)

type stubTokens struct{}

func (stubTokens) AuthHeaders(context.Context) (http.Header, error) {
	return http.Header{"Authorization": []string{"Bearer tok"}, "X-Api-Key": []string{"cid"}}, nil
}

func newProvider(t *testing.T, baseURL string) *Provider {
	t.Helper()
	client, err := jobs.NewClient(stubTokens{})
	require.NoError(t, err)
	p, err := New(baseURL, client)
	require.NoError(t, err)
	return p
}

func TestDecodeHandle(t *testing.T) {
	tests := []struct {
		name string
		body string
		want jobs.Handle
	}{
		{
			name: "links self href",
			body: `{"_links":{"self":{"href":"https://image.adobe.io/v2/status/abc-123"}}}`,
			want: jobs.Handle{JobID: "abc-123", StatusURL: "https://image.adobe.io/v2/status/abc-123"},
		},
		{
			name: "job id and status url",
			body: `{"jobId":"j9","statusUrl":"https://image.adobe.io/v2/status/j9"}`,
			want: jobs.Handle{JobID: "j9", StatusURL: "https://image.adobe.io/v2/status/j9"},
		},
		{
			name: "job id wins over href segment",
			body: `{"jobId":"explicit","_links":{"self":{"href":"https://image.adobe.io/pie/psdService/status/other"}}}`,
			want: jobs.Handle{JobID: "explicit", StatusURL: "https://image.adobe.io/pie/psdService/status/other"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, err := DecodeHandle([]byte(tt.body))
			require.NoError(t, err)
			assert.Equal(t, tt.want, h)
		})
	}
}

func TestDecodeHandle_Malformed(t *testing.T) {
	for _, body := range []string{`{}`, `{"_links":{}}`, `nope`} {
		_, err := DecodeHandle([]byte(body))
		var malformed *jobs.MalformedResponseError
		assert.ErrorAs(t, err, &malformed, "body=%s", body)
	}
}

func TestNormalizeStatus(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"top-level kept", `{"status":"running","outputs":[{"status":"failed"}]}`, "running"},
		{"all succeeded", `{"outputs":[{"status":"succeeded"},{"status":"succeeded"}]}`, "succeeded"},
		{"one failed", `{"outputs":[{"status":"succeeded"},{"status":"failed"}]}`, "failed"},
		{"one running", `{"outputs":[{"status":"succeeded"},{"status":"running"}]}`, "running"},
		{"pending", `{"outputs":[{"status":"pending"}]}`, "pending"},
		{"cancelled", `{"outputs":[{"status":"cancelled"},{"status":"succeeded"}]}`, "canceled"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := NormalizeStatus(json.RawMessage(tt.body))
			require.NoError(t, err)

			var got struct {
				Status string `json:"status"`
			}
			require.NoError(t, json.Unmarshal(out, &got))
			assert.Equal(t, tt.want, got.Status)
		})
	}
}

func TestNormalizeStatus_UnknownOutputStatus(t *testing.T) {
	_, err := NormalizeStatus(json.RawMessage(`{"outputs":[{"status":"exploded"}]}`))
	var clsErr *jobs.ClassificationError
	assert.ErrorAs(t, err, &clsErr)
}

func TestDocumentOperations_Lifecycle(t *testing.T) {
	var polls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("POST /pie/psdService/documentOperations", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(`{"_links":{"self":{"href":"http://` + r.Host + `/pie/psdService/status/psd-1"}}}`))
	})
	mux.HandleFunc("GET /pie/psdService/status/psd-1", func(w http.ResponseWriter, r *http.Request) {
		if polls.Add(1) == 1 {
			_, _ = w.Write([]byte(`{"jobId":"psd-1","outputs":[{"input":"in.psd","status":"running"}]}`))
			return
		}
		_, _ = w.Write([]byte(`{"jobId":"psd-1","outputs":[{"input":"in.psd","status":"failed","errors":{"code":"400","title":"layer not found"}}]}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	p := newProvider(t, srv.URL)
	h, err := p.Submit(context.Background(), OpDocumentOperations, json.RawMessage(`{"inputs":[]}`), provider.SubmitOptions{})
	require.NoError(t, err)
	assert.Equal(t, "psd-1", h.JobID)

	_, err = jobs.WaitForCompletion(context.Background(), provider.Fetcher(p, h), 5*time.Millisecond, time.Second)
	var failed *jobs.JobFailedError
	require.ErrorAs(t, err, &failed)
	assert.Equal(t, "layer not found", failed.Message)
	assert.Equal(t, int32(2), polls.Load())
}

func TestRemoveBackground_Cancelled(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v2/remove-background", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"jobId":"rb-1","statusUrl":"http://` + r.Host + `/v2/status/rb-1"}`))
	})
	mux.HandleFunc("GET /v2/status/rb-1", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"jobId":"rb-1","status":"cancelled"}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	p := newProvider(t, srv.URL)
	h, err := p.Submit(context.Background(), OpRemoveBackground, json.RawMessage(`{"image":{"source":{"url":"https://x"}}}`), provider.SubmitOptions{})
	require.NoError(t, err)

	res, err := jobs.WaitForCompletion(context.Background(), provider.Fetcher(p, h), 5*time.Millisecond, time.Second)
	require.NoError(t, err)
	assert.Equal(t, jobs.StatusCanceled, res.Status)
}

func TestSubmit_StatusFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"jobId":"bare-1"}`))
	}))
	defer srv.Close()

	p := newProvider(t, srv.URL)

	h, err := p.Submit(context.Background(), OpRenditionCreate, json.RawMessage(`{}`), provider.SubmitOptions{})
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/pie/psdService/status/bare-1", h.StatusURL)

	for _, op := range []string{OpRemoveBackground, OpMaskObjects, OpCreateMask} {
		_, err := p.Submit(context.Background(), op, json.RawMessage(`{}`), provider.SubmitOptions{})
		assert.ErrorIs(t, err, provider.ErrStatusURLUnknown, op)
	}
}

func TestCancel_Unsupported(t *testing.T) {
	p := newProvider(t, "")
	err := p.Cancel(context.Background(), jobs.Handle{JobID: "j1", StatusURL: "https://image.adobe.io/v2/status/j1"})
	assert.ErrorIs(t, err, provider.ErrCancelUnsupported)
}

func TestSubmit_ModelVersionUnsupported(t *testing.T) {
	p := newProvider(t, "")
	_, err := p.Submit(context.Background(), OpRemoveBackground, nil, provider.SubmitOptions{ModelVersion: "image4"})
	assert.ErrorIs(t, err, provider.ErrModelVersionUnsupported)
}
