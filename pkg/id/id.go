// Package id issues ULID run identifiers. IDs sort by creation time, so
// listing runs by id is listing them in the order they were recorded.
package id

import (
	"crypto/rand"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	mu      sync.Mutex
	entropy = ulid.Monotonic(rand.Reader, 0)
)

// New returns a ULID for the current time.
func New() string {
	return At(time.Now())
}

// At returns a ULID stamped with t. IDs issued for the same millisecond are
// still strictly increasing.
func At(t time.Time) string {
	mu.Lock()
	defer mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(t.UTC()), entropy).String()
}

// Time reports the millisecond timestamp encoded in id.
func Time(id string) (time.Time, error) {
	u, err := ulid.ParseStrict(id)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse run id %q: %w", id, err)
	}
	return ulid.Time(u.Time()).UTC(), nil
}
