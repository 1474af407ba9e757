// Package firefly implements the Firefly image and video generation family.
//
// Submissions return {jobId|jobID, statusUrl, cancelUrl}; when the URLs are
// absent they are derived from /v3/status/{jobId} and /v3/cancel/{jobId}.
package firefly

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/maauso/firefly-jobs/internal/jobs"
	"github.com/maauso/firefly-jobs/internal/provider"
)

// DefaultBaseURL is the Firefly API endpoint.
const DefaultBaseURL = "https://firefly-api.adobe.io"

// Operation names.
const (
	OpGenerateImages          = "generate-images"
	OpGenerateVideo           = "generate-video"
	OpExpandImage             = "expand-image"
	OpFillImage               = "fill-image"
	OpGenerateSimilar         = "generate-similar"
	OpGenerateObjectComposite = "generate-object-composite"
)

// Upload content types accepted by the storage endpoint.
var uploadContentTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/webp": true,
}

// Static errors for Firefly operations.
var (
	// ErrEmptyImage is returned when an upload has no bytes.
	ErrEmptyImage = errors.New("firefly: image data is empty")
	// ErrUnsupportedContentType is returned for upload types other than JPEG, PNG or WebP.
	ErrUnsupportedContentType = errors.New("firefly: unsupported image content type")
	// ErrNoUploadedImage is returned when the storage response lists no image.
	ErrNoUploadedImage = errors.New("firefly: upload response contains no image")
)

// Provider is the Firefly family provider.
type Provider struct {
	*provider.HTTP
}

// New creates a Firefly provider against baseURL.
func New(baseURL string, client *jobs.Client) (*Provider, error) {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	p, err := provider.NewHTTP(provider.Definition{
		Family:  provider.FamilyFirefly,
		BaseURL: baseURL,
		Operations: []provider.Operation{
			{Name: OpGenerateImages, Path: "/v3/images/generate-async"},
			{Name: OpGenerateVideo, Path: "/v3/videos/generate"},
			{Name: OpExpandImage, Path: "/v3/images/expand-async"},
			{Name: OpFillImage, Path: "/v3/images/fill-async"},
			{Name: OpGenerateSimilar, Path: "/v3/images/generate-similar-async"},
			{Name: OpGenerateObjectComposite, Path: "/v3/images/generate-object-composite-async"},
		},
		Decode:             jobs.DecodeHandle(jobs.DefaultHandleFields),
		StatusPath:         func(id string) string { return "/v3/status/" + id },
		CancelPath:         func(id string) string { return "/v3/cancel/" + id },
		CancelMethod:       http.MethodPut,
		ModelVersionHeader: "x-model-version",
	}, client)
	if err != nil {
		return nil, err
	}
	return &Provider{HTTP: p}, nil
}

// UploadedImage references an image stored for later generation requests.
type UploadedImage struct {
	ID string `json:"id"`
}

type uploadResponse struct {
	Images []UploadedImage `json:"images"`
}

// UploadImage stores raw image bytes and returns the uploaded image IDs.
// The body is sent unmodified with contentType.
func (p *Provider) UploadImage(ctx context.Context, data []byte, contentType string) ([]UploadedImage, error) {
	if len(data) == 0 {
		return nil, ErrEmptyImage
	}
	contentType = strings.ToLower(strings.TrimSpace(contentType))
	if !uploadContentTypes[contentType] {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedContentType, contentType)
	}

	body, err := p.Client().Do(ctx, jobs.Request{
		Method:      http.MethodPost,
		URL:         p.URL("/v2/storage/image"),
		Body:        data,
		ContentType: contentType,
	})
	if err != nil {
		return nil, fmt.Errorf("firefly upload: %w", err)
	}

	var resp uploadResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &jobs.MalformedResponseError{Reason: fmt.Sprintf("decode upload response: %v", err), Body: string(body)}
	}
	if len(resp.Images) == 0 || resp.Images[0].ID == "" {
		return nil, ErrNoUploadedImage
	}
	return resp.Images, nil
}
