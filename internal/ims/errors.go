package ims

import (
	"fmt"
	"strings"
)

// AuthenticationError reports a failed token request. StatusCode is zero when
// the request never produced an HTTP response.
type AuthenticationError struct {
	StatusCode int
	Status     string
	Body       string
	Err        error
}

func (e *AuthenticationError) Error() string {
	var b strings.Builder
	b.WriteString("ims: token request failed")
	if e.Status != "" {
		fmt.Fprintf(&b, ": %s", e.Status)
	} else if e.StatusCode != 0 {
		fmt.Fprintf(&b, ": %d", e.StatusCode)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	if e.Body != "" {
		fmt.Fprintf(&b, " - %s", e.Body)
	}
	return b.String()
}

func (e *AuthenticationError) Unwrap() error {
	return e.Err
}
