// Package ids generates identifiers for entries, tasks and sessions.
package ids

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// NewULID returns a time-ordered identifier used for entries and tasks.
// IDs created within the same millisecond still sort in creation order.
func NewULID(now time.Time) (string, error) {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	id, err := ulid.New(ulid.Timestamp(now), entropy)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// NewSessionID returns a random session identifier.
func NewSessionID() string {
	return uuid.NewString()
}

// ValidSessionID reports whether s parses as a UUID.
func ValidSessionID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
