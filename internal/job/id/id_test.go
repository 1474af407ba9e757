package id

import (
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var idPattern = regexp.MustCompile(`^job-\d+-[0-9a-f]{12}$`)

func TestGenerate(t *testing.T) {
	got := Generate()
	assert.Regexp(t, idPattern, got)
	assert.NotEqual(t, got, Generate())
}

func TestGenerate_EmbedsTimestamp(t *testing.T) {
	now := time.Unix(1701432000, 0)
	assert.Regexp(t, `^job-1701432000-[0-9a-f]{12}$`, generate(now))
}

func TestGenerate_ConcurrentUniqueness(t *testing.T) {
	const workers, perWorker = 8, 250

	var (
		mu   sync.Mutex
		seen = make(map[string]struct{}, workers*perWorker)
		wg   sync.WaitGroup
	)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range perWorker {
				id := Generate()
				mu.Lock()
				seen[id] = struct{}{}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, workers*perWorker)
}
