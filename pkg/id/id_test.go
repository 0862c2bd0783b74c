package id

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewIsSortable(t *testing.T) {
	t.Parallel()

	prev := New()
	for i := 0; i < 100; i++ {
		next := New()
		assert.Len(t, next, 26)
		assert.Less(t, prev, next)
		prev = next
	}
}

func TestTimeRoundTrip(t *testing.T) {
	t.Parallel()

	ts := time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)
	got, err := Time(At(ts))
	require.NoError(t, err)
	assert.Equal(t, ts, got)

	_, err = Time("not-a-ulid")
	assert.Error(t, err)
}
