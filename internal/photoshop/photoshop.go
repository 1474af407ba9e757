// Package photoshop implements the Photoshop API family: background removal,
// masking, and PSD document operations.
//
// Submissions answer with a self-describing status link in _links.self.href;
// the job ID is its last path segment. The family has no cancellation endpoint.
package photoshop

import (
	"encoding/json"
	"fmt"
	"net/url"
	"path"

	"github.com/maauso/firefly-jobs/internal/jobs"
	"github.com/maauso/firefly-jobs/internal/provider"
)

// DefaultBaseURL is the Photoshop API endpoint.
const DefaultBaseURL = "https://image.adobe.io"

// Operation names.
const (
	OpRemoveBackground   = "remove-background"
	OpMaskObjects        = "mask-objects"
	OpMaskBodyParts      = "mask-body-parts"
	OpRefineMask         = "refine-mask"
	OpFillMaskedAreas    = "fill-masked-areas"
	OpCreateMask         = "create-mask"
	OpDocumentManifest   = "document-manifest"
	OpDocumentCreate     = "document-create"
	OpDocumentOperations = "document-operations"
	OpRenditionCreate    = "rendition-create"
	OpSmartObject        = "smart-object"
	OpText               = "text"
	OpArtboardCreate     = "artboard-create"
	OpPhotoshopActions   = "photoshop-actions"
	OpActionJSON         = "action-json"
	OpActionJSONCreate   = "action-json-create"
	OpDepthBlur          = "depth-blur"
	OpProductCrop        = "product-crop"
)

// psdStatusPath locates PSD document jobs that answer without a status link.
// The other operations always return _links.self.href or statusUrl.
func psdStatusPath(id string) string { return "/pie/psdService/status/" + id }

var operations = []provider.Operation{
	{Name: OpRemoveBackground, Path: "/v2/remove-background"},
	{Name: OpMaskObjects, Path: "/v1/mask-objects"},
	{Name: OpMaskBodyParts, Path: "/v1/mask-body-parts"},
	{Name: OpRefineMask, Path: "/v1/refine-mask"},
	{Name: OpFillMaskedAreas, Path: "/v1/fill-masked-areas"},
	{Name: OpCreateMask, Path: "/sensei/mask"},
	{Name: OpDocumentManifest, Path: "/pie/psdService/documentManifest", StatusPath: psdStatusPath},
	{Name: OpDocumentCreate, Path: "/pie/psdService/documentCreate", StatusPath: psdStatusPath},
	{Name: OpDocumentOperations, Path: "/pie/psdService/documentOperations", StatusPath: psdStatusPath},
	{Name: OpRenditionCreate, Path: "/pie/psdService/renditionCreate", StatusPath: psdStatusPath},
	{Name: OpSmartObject, Path: "/pie/psdService/smartObject", StatusPath: psdStatusPath},
	{Name: OpText, Path: "/pie/psdService/text", StatusPath: psdStatusPath},
	{Name: OpArtboardCreate, Path: "/pie/psdService/artboardCreate", StatusPath: psdStatusPath},
	{Name: OpPhotoshopActions, Path: "/pie/psdService/photoshopActions", StatusPath: psdStatusPath},
	{Name: OpActionJSON, Path: "/pie/psdService/actionJSON", StatusPath: psdStatusPath},
	{Name: OpActionJSONCreate, Path: "/pie/psdService/actionJsonCreate", StatusPath: psdStatusPath},
	{Name: OpDepthBlur, Path: "/pie/psdService/depthBlur", StatusPath: psdStatusPath},
	{Name: OpProductCrop, Path: "/pie/psdService/productCrop", StatusPath: psdStatusPath},
}

// Provider is the Photoshop family provider.
type Provider struct {
	*provider.HTTP
}

// New creates a Photoshop provider against baseURL.
func New(baseURL string, client *jobs.Client) (*Provider, error) {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	p, err := provider.NewHTTP(provider.Definition{
		Family:          provider.FamilyPhotoshop,
		BaseURL:         baseURL,
		Operations:      operations,
		Decode:          DecodeHandle,
		NormalizeStatus: NormalizeStatus,
	}, client)
	if err != nil {
		return nil, err
	}
	return &Provider{HTTP: p}, nil
}

type submitResponse struct {
	JobID     string `json:"jobId"`
	StatusURL string `json:"statusUrl"`
	Links     struct {
		Self struct {
			Href string `json:"href"`
		} `json:"self"`
	} `json:"_links"`
}

// DecodeHandle reads _links.self.href, falling back to jobId/statusUrl.
func DecodeHandle(body []byte) (jobs.Handle, error) {
	var resp submitResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return jobs.Handle{}, &jobs.MalformedResponseError{
			Reason: fmt.Sprintf("decode submission response: %v", err),
			Body:   string(body),
		}
	}

	h := jobs.Handle{JobID: resp.JobID, StatusURL: resp.Links.Self.Href}
	if h.StatusURL == "" {
		h.StatusURL = resp.StatusURL
	}
	if h.JobID == "" && h.StatusURL != "" {
		if u, err := url.Parse(h.StatusURL); err == nil {
			if id := path.Base(u.Path); id != "/" && id != "." {
				h.JobID = id
			}
		}
	}
	if h.JobID == "" {
		return jobs.Handle{}, &jobs.MalformedResponseError{
			Reason: "missing job identifier (_links.self.href, jobId)",
			Body:   string(body),
		}
	}
	return h, nil
}

// NormalizeStatus lifts the status of PSD document jobs, which is only
// reported per output, to the top level. Reports that already carry a
// status are returned unchanged.
func NormalizeStatus(body json.RawMessage) (json.RawMessage, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return body, nil
	}
	if _, ok := fields["status"]; ok {
		return body, nil
	}

	var outputs []struct {
		Status string `json:"status"`
	}
	if raw, ok := fields["outputs"]; !ok || json.Unmarshal(raw, &outputs) != nil || len(outputs) == 0 {
		return body, nil
	}

	statuses := make([]jobs.Status, 0, len(outputs))
	for _, o := range outputs {
		st, err := jobs.Classify(o.Status)
		if err != nil {
			return nil, err
		}
		statuses = append(statuses, st)
	}

	status, err := json.Marshal(aggregate(statuses))
	if err != nil {
		return nil, fmt.Errorf("photoshop: encode status: %w", err)
	}
	fields["status"] = status
	out, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("photoshop: encode report: %w", err)
	}
	return out, nil
}

// aggregate folds per-output states. A failed output fails the job; otherwise
// unfinished outputs keep it open, then a cancelled output cancels it.
func aggregate(statuses []jobs.Status) jobs.Status {
	var running, pending, canceled bool
	for _, st := range statuses {
		switch st {
		case jobs.StatusFailed:
			return jobs.StatusFailed
		case jobs.StatusRunning:
			running = true
		case jobs.StatusPending:
			pending = true
		case jobs.StatusCanceled:
			canceled = true
		}
	}
	switch {
	case running:
		return jobs.StatusRunning
	case pending:
		return jobs.StatusPending
	case canceled:
		return jobs.StatusCanceled
	default:
		return jobs.StatusSucceeded
	}
}
