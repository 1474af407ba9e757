package jobs

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Handle identifies a submitted job. StatusURL and CancelURL are set only by
// families whose submission response is self-describing.
type Handle struct {
	JobID     string `json:"job_id"`
	StatusURL string `json:"status_url,omitempty"`
	CancelURL string `json:"cancel_url,omitempty"`
}

// HandleDecoder extracts a Handle from a 2xx submission response body.
type HandleDecoder func(body []byte) (Handle, error)

// HandleFields lists candidate top-level field names, tried in order.
type HandleFields struct {
	ID        []string
	StatusURL []string
	CancelURL []string
}

// DefaultHandleFields covers the jobId/jobID spellings seen across families.
var DefaultHandleFields = HandleFields{
	ID:        []string{"jobId", "jobID"},
	StatusURL: []string{"statusUrl"},
	CancelURL: []string{"cancelUrl"},
}

// DecodeHandle returns a HandleDecoder reading top-level string fields.
// A response without any of the ID fields is a *MalformedResponseError.
func DecodeHandle(f HandleFields) HandleDecoder {
	return func(body []byte) (Handle, error) {
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(body, &fields); err != nil {
			return Handle{}, &MalformedResponseError{
				Reason: fmt.Sprintf("decode submission response: %v", err),
				Body:   string(body),
			}
		}

		h := Handle{
			JobID:     firstString(fields, f.ID),
			StatusURL: firstString(fields, f.StatusURL),
			CancelURL: firstString(fields, f.CancelURL),
		}
		if h.JobID == "" {
			return Handle{}, &MalformedResponseError{
				Reason: fmt.Sprintf("missing job identifier (%s)", strings.Join(f.ID, ", ")),
				Body:   string(body),
			}
		}
		return h, nil
	}
}

// firstString returns the first non-empty string value among names.
func firstString(fields map[string]json.RawMessage, names []string) string {
	for _, name := range names {
		raw, ok := fields[name]
		if !ok {
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil && s != "" {
			return s
		}
	}
	return ""
}
