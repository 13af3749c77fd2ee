package session

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"docchat/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exchange(i int) models.ChatExchange {
	return models.NewChatExchange(fmt.Sprintf("q%d", i), fmt.Sprintf("a%d", i), time.Unix(int64(1_700_000_000+i), 0))
}

func stores(t *testing.T, limit int) map[string]HistoryStore {
	t.Helper()
	bolt, err := NewBoltStore(filepath.Join(t.TempDir(), "data", "sessions.db"), limit)
	require.NoError(t, err)
	t.Cleanup(func() { bolt.Close() })

	return map[string]HistoryStore{
		"memory": NewMemoryStore(limit),
		"bolt":   bolt,
	}
}

func TestHistoryStore_BoundedAppend(t *testing.T) {
	for name, s := range stores(t, 3) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for i := 1; i <= 5; i++ {
				n, err := s.Append(ctx, "s1", exchange(i))
				require.NoError(t, err)
				assert.Equal(t, min(i, 3), n)
			}

			history, err := s.History(ctx, "s1")
			require.NoError(t, err)
			require.Len(t, history, 3)
			assert.Equal(t, "q3", history[0].User)
			assert.Equal(t, "a5", history[2].Bot)
			assert.Equal(t, time.Unix(1_700_000_005, 0).Format(time.RFC3339), history[2].Timestamp)
		})
	}
}

func TestHistoryStore_SessionsAreIsolated(t *testing.T) {
	for name, s := range stores(t, 10) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			_, err := s.Append(ctx, "a", exchange(1))
			require.NoError(t, err)
			_, err = s.Append(ctx, "b", exchange(2))
			require.NoError(t, err)

			require.NoError(t, s.Clear(ctx, "a"))

			history, err := s.History(ctx, "a")
			require.NoError(t, err)
			assert.Empty(t, history)

			history, err = s.History(ctx, "b")
			require.NoError(t, err)
			assert.Len(t, history, 1)
		})
	}
}

func TestBoltStore_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.db")
	ctx := context.Background()

	s, err := NewBoltStore(path, 10)
	require.NoError(t, err)
	_, err = s.Append(ctx, "persist", exchange(1))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = NewBoltStore(path, 10)
	require.NoError(t, err)
	defer s.Close()

	history, err := s.History(ctx, "persist")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "q1", history[0].User)
}
