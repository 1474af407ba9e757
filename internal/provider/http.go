package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/maauso/firefly-jobs/internal/jobs"
)

// Operation maps an operation name onto a submission endpoint.
type Operation struct {
	Name   string
	Path   string // relative to the family base URL
	Method string // defaults to POST

	// StatusPath overrides Definition.StatusPath for this operation.
	StatusPath func(jobID string) string
}

// Definition describes how one family submits, polls and cancels jobs.
type Definition struct {
	Family     Family
	BaseURL    string
	Operations []Operation

	// Decode extracts the handle from a submission response. Nil means
	// jobs.DefaultHandleFields.
	Decode jobs.HandleDecoder

	// StatusPath builds the status path from a job ID when the handle carries
	// no status URL. Nil means the handle must be self-describing.
	StatusPath func(jobID string) string

	// CancelPath builds the cancel path from a job ID when the handle carries
	// no cancel URL. Nil with an empty cancel URL means unsupported.
	CancelPath   func(jobID string) string
	CancelMethod string

	// ModelVersionHeader is the header carrying SubmitOptions.ModelVersion.
	ModelVersionHeader string

	// NormalizeStatus rewrites a raw status report before it is returned,
	// for families whose reports lack a top-level status field.
	NormalizeStatus func(json.RawMessage) (json.RawMessage, error)
}

// HTTP is a Provider driven by a Definition.
type HTTP struct {
	def    Definition
	client *jobs.Client
	ops    map[string]Operation
}

// NewHTTP creates an HTTP provider. Operation names must be unique.
func NewHTTP(def Definition, client *jobs.Client) (*HTTP, error) {
	if def.Family == "" {
		return nil, fmt.Errorf("provider: family is required")
	}
	if u, err := url.Parse(def.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("provider: %s: invalid base URL %q", def.Family, def.BaseURL)
	}
	if client == nil {
		return nil, ErrClientRequired
	}

	def.BaseURL = strings.TrimRight(def.BaseURL, "/")
	ops := make(map[string]Operation, len(def.Operations))
	for _, op := range def.Operations {
		if _, dup := ops[op.Name]; dup {
			return nil, fmt.Errorf("provider: %s: duplicate operation %q", def.Family, op.Name)
		}
		ops[op.Name] = op
	}

	return &HTTP{def: def, client: client, ops: ops}, nil
}

// Family returns the family identifier.
func (p *HTTP) Family() Family {
	return p.def.Family
}

// Operations lists operation names in sorted order.
func (p *HTTP) Operations() []string {
	names := make([]string, 0, len(p.ops))
	for name := range p.ops {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Client returns the underlying jobs client for family-specific calls.
func (p *HTTP) Client() *jobs.Client {
	return p.client
}

// URL joins path onto the family base URL.
func (p *HTTP) URL(path string) string {
	return p.def.BaseURL + path
}

// Submit sends payload to the endpoint of operation.
func (p *HTTP) Submit(ctx context.Context, operation string, payload json.RawMessage, opts SubmitOptions) (jobs.Handle, error) {
	op, ok := p.ops[operation]
	if !ok {
		return jobs.Handle{}, fmt.Errorf("%w: %s/%s", ErrUnknownOperation, p.def.Family, operation)
	}

	req := jobs.Request{
		Method: op.Method,
		URL:    p.URL(op.Path),
		JSON:   payload,
	}
	if len(payload) == 0 {
		req.JSON = json.RawMessage(`{}`)
	}
	if opts.ModelVersion != "" {
		if p.def.ModelVersionHeader == "" {
			return jobs.Handle{}, fmt.Errorf("%w: %s", ErrModelVersionUnsupported, p.def.Family)
		}
		req.Header = http.Header{}
		req.Header.Set(p.def.ModelVersionHeader, opts.ModelVersion)
	}

	h, err := p.client.Submit(ctx, req, p.def.Decode)
	if err != nil {
		return jobs.Handle{}, err
	}
	if h.StatusURL == "" {
		statusPath := op.StatusPath
		if statusPath == nil {
			statusPath = p.def.StatusPath
		}
		if statusPath == nil {
			return jobs.Handle{}, fmt.Errorf("%w: %s/%s job %q", ErrStatusURLUnknown, p.def.Family, operation, h.JobID)
		}
		h.StatusURL = p.URL(statusPath(url.PathEscape(h.JobID)))
	}
	if h.CancelURL == "" && p.def.CancelPath != nil {
		h.CancelURL = p.URL(p.def.CancelPath(url.PathEscape(h.JobID)))
	}
	return h, nil
}

// Status fetches the job report, normalizing it when the family requires it.
func (p *HTTP) Status(ctx context.Context, h jobs.Handle) (json.RawMessage, error) {
	statusURL := h.StatusURL
	if statusURL == "" {
		if p.def.StatusPath == nil || h.JobID == "" {
			return nil, fmt.Errorf("%w: %s job %q", ErrStatusURLUnknown, p.def.Family, h.JobID)
		}
		statusURL = p.URL(p.def.StatusPath(url.PathEscape(h.JobID)))
	}

	body, err := p.client.FetchStatus(ctx, statusURL)
	if err != nil {
		return nil, err
	}
	if p.def.NormalizeStatus != nil {
		return p.def.NormalizeStatus(body)
	}
	return body, nil
}

// Cancel requests cancellation through the cancel URL or the family's cancel path.
func (p *HTTP) Cancel(ctx context.Context, h jobs.Handle) error {
	cancelURL := h.CancelURL
	if cancelURL == "" {
		if p.def.CancelPath == nil || h.JobID == "" {
			return fmt.Errorf("%w: %s", ErrCancelUnsupported, p.def.Family)
		}
		cancelURL = p.URL(p.def.CancelPath(url.PathEscape(h.JobID)))
	}
	return p.client.Cancel(ctx, p.def.CancelMethod, cancelURL)
}
