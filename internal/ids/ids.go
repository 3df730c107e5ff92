// Package ids generates identifiers attached to outbound API traffic.
package ids

import (
	mathrand "math/rand"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

const requestPrefix = "req_"

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(mathrand.New(mathrand.NewSource(time.Now().UnixNano())), 0)
)

// New returns a lexicographically sortable ULID string.
func New() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

// RequestID returns a ULID tagged for use in the X-Request-ID header.
func RequestID() string {
	return requestPrefix + strings.ToLower(New())
}

// RequestTime extracts the creation time embedded in a request id produced by
// RequestID. ok is false for foreign ids.
func RequestTime(id string) (t time.Time, ok bool) {
	raw, found := strings.CutPrefix(id, requestPrefix)
	if !found {
		return time.Time{}, false
	}
	parsed, err := ulid.ParseStrict(strings.ToUpper(raw))
	if err != nil {
		return time.Time{}, false
	}
	return ulid.Time(parsed.Time()), true
}
