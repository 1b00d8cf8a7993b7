package ids

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewULID_MonotonicWithinMillisecond(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	prev := ""
	for i := 0; i < 50; i++ {
		id, err := NewULID(now)
		require.NoError(t, err)
		require.Len(t, id, 26)
		require.Greater(t, id, prev)
		prev = id
	}
}

func TestSessionID(t *testing.T) {
	id := NewSessionID()
	require.True(t, ValidSessionID(id))
	require.NotEqual(t, id, NewSessionID())
	require.False(t, ValidSessionID("not-a-session"))
}
