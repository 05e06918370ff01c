// internal/llm/drafter_test.go
package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDraft(t *testing.T) {
	t.Run("plain chat reply", func(t *testing.T) {
		draft, err := parseDraft(`{"action":"chat","reply":"再多給我一點細節","title":"","content":""}`)
		require.NoError(t, err)
		assert.Equal(t, "chat", draft.Action)
		assert.Equal(t, "再多給我一點細節", draft.Reply)
		assert.False(t, draft.ReadyToPublish())
	})

	t.Run("publish reply", func(t *testing.T) {
		draft, err := parseDraft(`{"action":"publish","reply":"好的","title":"年度公告","content":"<p>內容</p>"}`)
		require.NoError(t, err)
		assert.True(t, draft.ReadyToPublish())
		assert.Equal(t, "年度公告", draft.Title)
	})

	t.Run("strips markdown fences", func(t *testing.T) {
		raw := "```json\n{\"action\":\"chat\",\"reply\":\"ok\",\"title\":\"\",\"content\":\"\"}\n```"
		draft, err := parseDraft(raw)
		require.NoError(t, err)
		assert.Equal(t, "ok", draft.Reply)
	})

	t.Run("rejects unknown action", func(t *testing.T) {
		_, err := parseDraft(`{"action":"delete","reply":"","title":"","content":""}`)
		assert.Error(t, err)
	})

	t.Run("rejects non-json", func(t *testing.T) {
		_, err := parseDraft("sure, here is your article")
		assert.Error(t, err)
	})

	t.Run("publish without title is not ready", func(t *testing.T) {
		draft, err := parseDraft(`{"action":"publish","reply":"","title":"","content":"<p>x</p>"}`)
		require.NoError(t, err)
		assert.False(t, draft.ReadyToPublish())
	})
}
