package postgres_test

import (
	"context"
	"os"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warmheart-ai/companion-go/pkg/storage"
	postgresStore "github.com/warmheart-ai/companion-go/pkg/storage/postgres"
)

// setupStore connects to the PostgreSQL instance named by the POSTGRES_*
// environment variables, skipping when none is configured.
func setupStore(t *testing.T) storage.Store {
	t.Helper()

	password := os.Getenv("POSTGRES_PASSWORD")
	if password == "" {
		t.Skip("Skipping PostgreSQL test: POSTGRES_PASSWORD not set")
	}

	port := 5432
	if portStr := os.Getenv("POSTGRES_PORT"); portStr != "" {
		parsed, err := strconv.Atoi(portStr)
		require.NoError(t, err)
		port = parsed
	}

	cfg := &postgresStore.Config{
		Host:     os.Getenv("POSTGRES_HOST"),
		Port:     port,
		User:     os.Getenv("POSTGRES_USER"),
		Password: password,
		DBName:   os.Getenv("POSTGRES_DATABASE"),
	}
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.User == "" {
		cfg.User = "postgres"
	}
	if cfg.DBName == "" {
		cfg.DBName = "companion_test"
	}

	store, err := postgresStore.NewClient(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestClient_MessageRoundTrip(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	msg := &storage.Message{UserID: "pg_test_user", Role: "user", Content: "昨天去爬山了，风景很好"}
	require.NoError(t, store.AppendMessage(ctx, msg))
	assert.NotEmpty(t, msg.ID)

	recent, err := store.GetRecentMessages(ctx, "pg_test_user", 5)
	require.NoError(t, err)
	require.NotEmpty(t, recent)
	assert.Equal(t, msg.Content, recent[0].Content)

	results, err := store.SearchMessagesByKeyword(ctx, "pg_test_user", "爬山", 5)
	require.NoError(t, err)
	assert.NotEmpty(t, results)
}

func TestClient_WorkingSummaryUpsert(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	require.NoError(t, store.PutWorkingSummary(ctx, "pg_test_user", []byte(`{"trust_level":0.5}`)))
	require.NoError(t, store.PutWorkingSummary(ctx, "pg_test_user", []byte(`{"trust_level":0.7}`)))

	data, err := store.GetWorkingSummary(ctx, "pg_test_user")
	require.NoError(t, err)
	assert.JSONEq(t, `{"trust_level":0.7}`, string(data))
}

func TestClient_Sessions(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	sessionID, err := store.CreateSession(ctx, "pg_test_user")
	require.NoError(t, err)
	assert.NotEmpty(t, sessionID)

	require.NoError(t, store.EndSession(ctx, sessionID, "测试会话"))
}
