// Package storage provides object storage for job inputs and outputs.
// Media APIs read inputs from and write outputs to pre-signed URLs, so the
// Storage interface (port) hands those out alongside plain uploads.
package storage

import (
	"context"
	"errors"
	"net/http"
	"time"
)

// Static errors for storage operations.
var (
	// ErrBucketRequired is returned when no bucket is configured.
	ErrBucketRequired = errors.New("storage: bucket is required")
	// ErrRegionRequired is returned when no region is configured.
	ErrRegionRequired = errors.New("storage: region is required")
	// ErrKeyRequired is returned when an object key is empty.
	ErrKeyRequired = errors.New("storage: object key is required")
	// ErrEmptyObject is returned when an upload has no bytes.
	ErrEmptyObject = errors.New("storage: object data is empty")
	// ErrInvalidTTL is returned when a presign lifetime exceeds MaxPresignTTL.
	ErrInvalidTTL = errors.New("storage: presign lifetime out of range")
)

// MaxPresignTTL is the longest lifetime SigV4 accepts for a presigned URL.
const MaxPresignTTL = 7 * 24 * time.Hour

// PresignedURL is a time-limited URL for one object operation.
type PresignedURL struct {
	URL     string      `json:"url"`
	Method  string      `json:"method"`
	Expires time.Time   `json:"expires_at"`
	Header  http.Header `json:"headers,omitempty"`
}

// Storage defines the interface for job object storage.
type Storage interface {
	// Upload stores data under key and returns the object URL.
	Upload(ctx context.Context, key string, data []byte, contentType string) (url string, err error)

	// PresignGet returns a URL a provider can read the object from.
	// A zero ttl uses the implementation default.
	PresignGet(ctx context.Context, key string, ttl time.Duration) (*PresignedURL, error)

	// PresignPut returns a URL a provider can write the object to.
	// A zero ttl uses the implementation default.
	PresignPut(ctx context.Context, key, contentType string, ttl time.Duration) (*PresignedURL, error)
}
