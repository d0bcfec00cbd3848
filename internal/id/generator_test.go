package id

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestPrefixes(t *testing.T) {
	require.True(t, strings.HasPrefix(NewTaskID(), "task_"))
	require.True(t, strings.HasPrefix(NewSubscriptionID(), "sub_"))
	require.True(t, strings.HasPrefix(NewRequestID(), "req_"))
}

func TestIDsAreUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		taskID := NewTaskID()
		require.False(t, seen[taskID], "duplicate id %s", taskID)
		seen[taskID] = true
	}
}

func TestUUIDv7Strategy(t *testing.T) {
	SetStrategy(StrategyUUIDv7)
	defer SetStrategy(StrategyKSUID)

	taskID := NewTaskID()
	require.True(t, strings.HasPrefix(taskID, "task_"))

	parsed, err := uuid.Parse(strings.TrimPrefix(taskID, "task_"))
	require.NoError(t, err)
	require.Equal(t, uuid.Version(7), parsed.Version())
}

func TestKSUIDShape(t *testing.T) {
	raw := strings.TrimPrefix(NewTaskID(), "task_")
	// KSUIDs are 27 base62 characters.
	require.Len(t, raw, 27)
	for _, r := range raw {
		isBase62 := (r >= '0' && r <= '9') || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
		require.True(t, isBase62, "unexpected character %q", r)
	}
}
