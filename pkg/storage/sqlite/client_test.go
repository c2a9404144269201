package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warmheart-ai/companion-go/pkg/storage"
	sqliteStore "github.com/warmheart-ai/companion-go/pkg/storage/sqlite"
)

func setupStore(t *testing.T) storage.Store {
	t.Helper()

	store, err := sqliteStore.NewClient(&sqliteStore.Config{
		DBPath: filepath.Join(t.TempDir(), "companion.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestClient_AppendAndGetRecentMessages(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	for _, content := range []string{"第一条", "第二条", "第三条"} {
		msg := &storage.Message{UserID: "u1", Role: "user", Content: content}
		require.NoError(t, store.AppendMessage(ctx, msg))
		assert.NotEmpty(t, msg.ID)
		assert.False(t, msg.CreatedAt.IsZero())
	}

	msgs, err := store.GetRecentMessages(ctx, "u1", 2)
	require.NoError(t, err)
	require.Len(t, msgs, 2)

	// Newest first.
	assert.Equal(t, "第三条", msgs[0].Content)
	assert.Equal(t, "第二条", msgs[1].Content)

	// Other users see nothing.
	others, err := store.GetRecentMessages(ctx, "u2", 10)
	require.NoError(t, err)
	assert.Empty(t, others)
}

func TestClient_SearchMessagesByKeyword(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	require.NoError(t, store.AppendMessage(ctx, &storage.Message{
		UserID: "u1", Role: "user", Content: "昨天 爬山 好累，但是风景很好",
	}))
	require.NoError(t, store.AppendMessage(ctx, &storage.Message{
		UserID: "u1", Role: "user", Content: "今天 做饭 失败了",
	}))
	require.NoError(t, store.AppendMessage(ctx, &storage.Message{
		UserID: "u2", Role: "user", Content: "我也去 爬山 了",
	}))

	results, err := store.SearchMessagesByKeyword(ctx, "u1", "爬山", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Contains(t, results[0].Content, "爬山")
	assert.Equal(t, "u1", results[0].UserID)
}

func TestClient_SearchMessages_OperatorCharactersCleaned(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	require.NoError(t, store.AppendMessage(ctx, &storage.Message{
		UserID: "u1", Role: "user", Content: "昨天 爬山 记录 了一下",
	}))

	// Quotes, stars, and dashes in user text must not break the query.
	results, err := store.SearchMessagesByKeyword(ctx, "u1", `"爬山"-记录*`, 10)
	require.NoError(t, err)
	require.Len(t, results, 1)

	// A query that cleans down to nothing returns nothing.
	results, err = store.SearchMessagesByKeyword(ctx, "u1", `"*"`, 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestClient_SearchMessages_FallbackToSubstring(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	require.NoError(t, store.AppendMessage(ctx, &storage.Message{
		UserID: "u1", Role: "user", Content: "今天学了NOT运算符",
	}))

	// A bare NOT is a syntax error in the indexed path; the substring scan
	// still finds the message.
	results, err := store.SearchMessagesByKeyword(ctx, "u1", "NOT", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Contains(t, results[0].Content, "NOT")
}

func TestClient_LifeEvents(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	event := &storage.LifeEvent{
		UserID:      "u1",
		EventType:   "life",
		Title:       "爬梧桐山",
		Description: "和朋友一起，走了五个小时",
		Embedding:   []float64{0.25, -0.5, 0.125},
	}
	require.NoError(t, store.AppendLifeEvent(ctx, event))
	assert.NotEmpty(t, event.ID)

	// Importance defaults when unset.
	assert.Equal(t, 3, event.Importance)

	events, err := store.GetLifeEvents(ctx, "u1", 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "爬梧桐山", events[0].Title)
	assert.Equal(t, []float64{0.25, -0.5, 0.125}, events[0].Embedding)

	// Search matches title or description substrings.
	byTitle, err := store.SearchLifeEventsByKeyword(ctx, "u1", "梧桐", 10)
	require.NoError(t, err)
	assert.Len(t, byTitle, 1)

	byDescription, err := store.SearchLifeEventsByKeyword(ctx, "u1", "朋友", 10)
	require.NoError(t, err)
	assert.Len(t, byDescription, 1)

	none, err := store.SearchLifeEventsByKeyword(ctx, "u1", "做饭", 10)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestClient_EmotionRecords(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	require.NoError(t, store.AppendEmotionRecord(ctx, &storage.EmotionRecord{
		UserID: "u1", EmotionType: "喜悦", Intensity: 0.8, Trigger: "爬山很开心",
	}))
	require.NoError(t, store.AppendEmotionRecord(ctx, &storage.EmotionRecord{
		UserID: "u1", EmotionType: "悲伤", Intensity: 0.4,
	}))

	history, err := store.GetEmotionHistory(ctx, "u1", 10)
	require.NoError(t, err)
	require.Len(t, history, 2)

	byType, err := store.SearchEmotionsByKeyword(ctx, "u1", "喜悦", 10)
	require.NoError(t, err)
	require.Len(t, byType, 1)
	assert.Equal(t, 0.8, byType[0].Intensity)

	byTrigger, err := store.SearchEmotionsByKeyword(ctx, "u1", "爬山", 10)
	require.NoError(t, err)
	assert.Len(t, byTrigger, 1)
}

func TestClient_WorkingSummaryUpsert(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	data, err := store.GetWorkingSummary(ctx, "u1")
	require.NoError(t, err)
	assert.Nil(t, data)

	require.NoError(t, store.PutWorkingSummary(ctx, "u1", []byte(`{"trust_level":0.5}`)))
	data, err = store.GetWorkingSummary(ctx, "u1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"trust_level":0.5}`, string(data))

	// Second write updates in place.
	require.NoError(t, store.PutWorkingSummary(ctx, "u1", []byte(`{"trust_level":0.6}`)))
	data, err = store.GetWorkingSummary(ctx, "u1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"trust_level":0.6}`, string(data))
}

func TestClient_Sessions(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	sessionID, err := store.CreateSession(ctx, "u1")
	require.NoError(t, err)
	assert.NotEmpty(t, sessionID)

	require.NoError(t, store.AppendMessage(ctx, &storage.Message{
		UserID: "u1", SessionID: sessionID, Role: "user", Content: "你好",
	}))

	require.NoError(t, store.EndSession(ctx, sessionID, "打了个招呼"))

	// A second session for the same user gets a distinct id.
	other, err := store.CreateSession(ctx, "u1")
	require.NoError(t, err)
	assert.NotEqual(t, sessionID, other)
}
