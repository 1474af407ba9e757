// Package id generates gateway job identifiers.
package id

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync/atomic"
	"time"
)

const randomBytes = 6

var fallback atomic.Uint64

// Generate returns a new job ID of the form job-<unix>-<hex>, for example
// job-1701432000-a1b2c3d4e5f6.
func Generate() string {
	return generate(time.Now())
}

func generate(now time.Time) string {
	random := make([]byte, randomBytes)
	if _, err := rand.Read(random); err != nil {
		// Process-local counter keeps IDs unique when crypto/rand is unavailable.
		return fmt.Sprintf("job-%d-%0*x", now.Unix(), randomBytes*2, fallback.Add(1))
	}
	return fmt.Sprintf("job-%d-%s", now.Unix(), hex.EncodeToString(random))
}
