// internal/chat/store_test.go
package chat

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luyichou/webtech-autopost/internal/llm"
)

func TestHistoryStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conversations.json")
	store := NewHistoryStore(path, 20)

	history, err := store.History("U1")
	require.NoError(t, err)
	assert.Empty(t, history, "unknown user starts empty")

	require.NoError(t, store.Append("U1",
		llm.Turn{Role: "user", Text: "hi"},
		llm.Turn{Role: "model", Text: "hello"},
	))
	require.NoError(t, store.Append("U2", llm.Turn{Role: "user", Text: "其他人"}))

	// A second store over the same file sees the persisted state.
	reopened := NewHistoryStore(path, 20)
	history, err = reopened.History("U1")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "hi", history[0].Text)

	other, err := reopened.History("U2")
	require.NoError(t, err)
	assert.Len(t, other, 1)
}

func TestHistoryStoreClear(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conversations.json")
	store := NewHistoryStore(path, 20)

	require.NoError(t, store.Append("U1", llm.Turn{Role: "user", Text: "hi"}))
	require.NoError(t, store.Clear("U1"))

	history, err := store.History("U1")
	require.NoError(t, err)
	assert.Empty(t, history)

	// Clearing an absent user is a no-op, not an error.
	assert.NoError(t, store.Clear("nobody"))
}

func TestHistoryStoreTrimsToMaxTurns(t *testing.T) {
	store := NewHistoryStore(filepath.Join(t.TempDir(), "c.json"), 4)

	for i := 0; i < 4; i++ {
		require.NoError(t, store.Append("U1",
			llm.Turn{Role: "user", Text: "q"},
			llm.Turn{Role: "model", Text: "a"},
		))
	}

	history, err := store.History("U1")
	require.NoError(t, err)
	assert.Len(t, history, 4, "oldest turns are dropped")
}

func TestHistoryStoreToleratesCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conversations.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	store := NewHistoryStore(path, 20)
	history, err := store.History("U1")
	require.NoError(t, err)
	assert.Empty(t, history)

	// Writes recover the file.
	require.NoError(t, store.Append("U1", llm.Turn{Role: "user", Text: "hi"}))
	history, err = store.History("U1")
	require.NoError(t, err)
	assert.Len(t, history, 1)
}
