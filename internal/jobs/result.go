package jobs

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// defaultFailureMessage is used when a failed report carries no details.
const defaultFailureMessage = "job failed without error details"

// Result is the outcome of a completed wait. Payload is the last status
// report verbatim; Failure is only set for StatusFailed.
type Result struct {
	Status   Status          `json:"status"`
	Payload  json.RawMessage `json:"payload,omitempty"`
	Failure  *Failure        `json:"failure,omitempty"`
	Attempts int             `json:"attempts"`
	Elapsed  time.Duration   `json:"elapsed"`
}

// Failure is the provider-reported reason for a failed job.
type Failure struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

// Report is a decoded status report.
type Report struct {
	Status  Status
	Raw     string
	Failure *Failure
}

// errorDetail covers the error object shapes used by the families:
// {code, message} and {code, title}.
type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Title   string `json:"title"`
}

func (d errorDetail) failure() *Failure {
	msg := d.Message
	if msg == "" {
		msg = d.Title
	}
	if d.Code == "" && msg == "" {
		return nil
	}
	return &Failure{Code: d.Code, Message: msg}
}

// ParseReport decodes a status report, classifies its status field and, for
// failed jobs, extracts the failure reason. A report without a string status
// is a *MalformedResponseError.
func ParseReport(body []byte) (Report, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return Report{}, &MalformedResponseError{
			Reason: fmt.Sprintf("decode status report: %v", err),
			Body:   string(body),
		}
	}

	var raw string
	if v, ok := fields["status"]; !ok || json.Unmarshal(v, &raw) != nil {
		return Report{}, &MalformedResponseError{Reason: "missing status field", Body: string(body)}
	}

	st, err := Classify(raw)
	if err != nil {
		return Report{}, err
	}

	r := Report{Status: st, Raw: raw}
	if st == StatusFailed {
		r.Failure = extractFailure(fields)
	}
	return r, nil
}

// extractFailure walks the known failure shapes in order and always returns
// a Failure with a non-empty message.
func extractFailure(fields map[string]json.RawMessage) *Failure {
	if f := decodeErrorValue(fields["error"]); f != nil {
		if f.Message == "" {
			f.Message = stringField(fields, "message")
		}
		if f.Message != "" {
			return f
		}
	}
	if f := decodeErrorValue(fields["errors"]); f != nil && f.Message != "" {
		return f
	}
	if code := stringField(fields, "error_code"); code != "" {
		msg := stringField(fields, "message")
		if msg == "" {
			msg = code
		}
		return &Failure{Code: code, Message: msg}
	}
	if f := outputsFailure(fields["outputs"]); f != nil {
		return f
	}
	if msg := stringField(fields, "message"); msg != "" {
		return &Failure{Message: msg}
	}
	return &Failure{Message: defaultFailureMessage}
}

// decodeErrorValue accepts a string, an error object or an array of error
// objects, in which case the first usable entry wins.
func decodeErrorValue(raw json.RawMessage) *Failure {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if s = strings.TrimSpace(s); s == "" {
			return nil
		}
		return &Failure{Message: s}
	}

	var d errorDetail
	if err := json.Unmarshal(raw, &d); err == nil {
		return d.failure()
	}

	var list []errorDetail
	if err := json.Unmarshal(raw, &list); err == nil {
		for _, d := range list {
			if f := d.failure(); f != nil {
				return f
			}
		}
	}
	return nil
}

// outputsFailure reads per-output errors from document operation reports.
func outputsFailure(raw json.RawMessage) *Failure {
	if len(raw) == 0 {
		return nil
	}
	var outputs []struct {
		Errors json.RawMessage `json:"errors"`
	}
	if err := json.Unmarshal(raw, &outputs); err != nil {
		return nil
	}
	for _, o := range outputs {
		if f := decodeErrorValue(o.Errors); f != nil {
			if f.Message == "" {
				f.Message = f.Code
			}
			return f
		}
	}
	return nil
}

func stringField(fields map[string]json.RawMessage, name string) string {
	raw, ok := fields[name]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}
