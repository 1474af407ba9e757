// Package substance implements the Substance 3D family: scene composition,
// assembly, conversion, description and rendering, plus space uploads.
package substance

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"

	"github.com/maauso/firefly-jobs/internal/jobs"
	"github.com/maauso/firefly-jobs/internal/provider"
)

// DefaultBaseURL is the Substance 3D API endpoint.
const DefaultBaseURL = "https://s3d.adobe.io"

// Operation names.
const (
	OpComposeScene  = "compose-scene"
	OpAssembleScene = "assemble-scene"
	OpConvertModel  = "convert-model"
	OpDescribeScene = "describe-scene"
	OpRenderScene   = "render-scene"
	OpRenderModel   = "render-model"
)

// Static errors for Substance operations.
var (
	// ErrFilenameRequired is returned when a space upload has no file name.
	ErrFilenameRequired = errors.New("substance: filename is required")
	// ErrEmptyFile is returned when a space upload has no bytes.
	ErrEmptyFile = errors.New("substance: file data is empty")
	// ErrMissingSpaceID is returned when the space response has no id.
	ErrMissingSpaceID = errors.New("substance: space response missing id")
)

// Provider is the Substance family provider.
type Provider struct {
	*provider.HTTP
}

// New creates a Substance provider against baseURL.
func New(baseURL string, client *jobs.Client) (*Provider, error) {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	p, err := provider.NewHTTP(provider.Definition{
		Family:  provider.FamilySubstance,
		BaseURL: baseURL,
		Operations: []provider.Operation{
			{Name: OpComposeScene, Path: "/v1/composites/compose"},
			{Name: OpAssembleScene, Path: "/v1/scenes/assemble"},
			{Name: OpConvertModel, Path: "/v1/scenes/convert"},
			{Name: OpDescribeScene, Path: "/v1/scenes/describe"},
			{Name: OpRenderScene, Path: "/v1/scenes/render"},
			{Name: OpRenderModel, Path: "/v1/scenes/render-basic"},
		},
		Decode: jobs.DecodeHandle(jobs.HandleFields{
			ID:        []string{"id"},
			StatusURL: []string{"url"},
		}),
		StatusPath: func(id string) string { return "/v1/jobs/" + id },
	}, client)
	if err != nil {
		return nil, err
	}
	return &Provider{HTTP: p}, nil
}

// SpaceFile is a file stored in a space.
type SpaceFile struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
	URL  string `json:"url"`
}

// Space is an uploaded asset bundle that scene jobs can mount.
type Space struct {
	ID         string      `json:"id"`
	URL        string      `json:"url"`
	ArchiveURL string      `json:"archiveUrl"`
	Files      []SpaceFile `json:"files"`
}

// CreateSpace uploads one file as a new space. name is optional.
func (p *Provider) CreateSpace(ctx context.Context, filename string, data []byte, name string) (*Space, error) {
	if filename == "" {
		return nil, ErrFilenameRequired
	}
	if len(data) == 0 {
		return nil, ErrEmptyFile
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("filename", filename)
	if err != nil {
		return nil, fmt.Errorf("substance: create form file: %w", err)
	}
	if _, err := fw.Write(data); err != nil {
		return nil, fmt.Errorf("substance: write form file: %w", err)
	}
	if name != "" {
		if err := mw.WriteField("name", name); err != nil {
			return nil, fmt.Errorf("substance: write name field: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("substance: close multipart: %w", err)
	}

	body, err := p.Client().Do(ctx, jobs.Request{
		Method:      http.MethodPost,
		URL:         p.URL("/v1/spaces"),
		Body:        buf.Bytes(),
		ContentType: mw.FormDataContentType(),
	})
	if err != nil {
		return nil, fmt.Errorf("substance create space: %w", err)
	}

	var space Space
	if err := json.Unmarshal(body, &space); err != nil {
		return nil, &jobs.MalformedResponseError{Reason: fmt.Sprintf("decode space: %v", err), Body: string(body)}
	}
	if space.ID == "" {
		return nil, ErrMissingSpaceID
	}
	return &space, nil
}
