package core

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPoolConfig(t *testing.T) *Config {
	t.Helper()
	return &Config{
		LLM: LLMConfig{
			Provider: "openai",
			APIKey:   "test-key",
			Model:    "gpt-4o-mini",
		},
		Store: StoreConfig{
			Provider: "sqlite",
			Config: map[string]interface{}{
				"db_path": filepath.Join(t.TempDir(), "companion.db"),
			},
		},
	}
}

func TestNewPool_InvalidConfig(t *testing.T) {
	_, err := NewPool(nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewPool(&Config{})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewPool(&Config{
		LLM:   LLMConfig{Provider: "openai", APIKey: "k"},
		Store: StoreConfig{Provider: "cassandra"},
	})
	assert.Error(t, err)
}

func TestPool_GetConstructsOnce(t *testing.T) {
	pool, err := NewPool(testPoolConfig(t))
	require.NoError(t, err)
	defer pool.CloseAll(context.Background())

	userID := UserIDFromName("小明")

	const workers = 20
	sessions := make([]*Session, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			session, err := pool.Get(context.Background(), userID)
			assert.NoError(t, err)
			sessions[i] = session
		}(i)
	}
	wg.Wait()

	for i := 1; i < workers; i++ {
		assert.Same(t, sessions[0], sessions[i])
	}

	pool.mu.Lock()
	assert.Len(t, pool.sessions, 1)
	pool.mu.Unlock()
}

func TestPool_GetSeparateUsers(t *testing.T) {
	pool, err := NewPool(testPoolConfig(t))
	require.NoError(t, err)
	defer pool.CloseAll(context.Background())

	first, err := pool.Get(context.Background(), "u1")
	require.NoError(t, err)
	second, err := pool.Get(context.Background(), "u2")
	require.NoError(t, err)

	assert.NotSame(t, first, second)
	assert.Equal(t, "u1", first.UserID())
	assert.Equal(t, "u2", second.UserID())
}

func TestPool_GetAppliesDefaults(t *testing.T) {
	pool, err := NewPool(testPoolConfig(t))
	require.NoError(t, err)
	defer pool.CloseAll(context.Background())

	session, err := pool.Get(context.Background(), "u1")
	require.NoError(t, err)

	assert.Equal(t, defaultMaxRewrites, session.maxRewrites)
	assert.Equal(t, defaultWindowSize, session.manager.Window.Size())
}

func TestPool_RemoveEvicts(t *testing.T) {
	pool, err := NewPool(testPoolConfig(t))
	require.NoError(t, err)
	defer pool.CloseAll(context.Background())

	ctx := context.Background()
	first, err := pool.Get(ctx, "u1")
	require.NoError(t, err)

	require.NoError(t, pool.Remove(ctx, "u1"))
	// Removing an unknown user is a no-op.
	require.NoError(t, pool.Remove(ctx, "ghost"))

	// The evicted session is closed; a fresh Get builds a new one.
	_, err = first.Chat(ctx, "在吗")
	assert.ErrorIs(t, err, ErrSessionClosed)

	second, err := pool.Get(ctx, "u1")
	require.NoError(t, err)
	assert.NotSame(t, first, second)
}

func TestPool_GetEmptyUserID(t *testing.T) {
	pool, err := NewPool(testPoolConfig(t))
	require.NoError(t, err)
	defer pool.CloseAll(context.Background())

	_, err = pool.Get(context.Background(), "")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestUserIDFromName(t *testing.T) {
	id := UserIDFromName("小明")

	assert.Len(t, id, 16)
	assert.Equal(t, id, UserIDFromName("  小明  "))
	assert.Equal(t, UserIDFromName("Bob"), UserIDFromName("bob"))
	assert.NotEqual(t, id, UserIDFromName("小红"))
}

func TestPool_CloseAll(t *testing.T) {
	pool, err := NewPool(testPoolConfig(t))
	require.NoError(t, err)

	ctx := context.Background()
	session, err := pool.Get(ctx, "u1")
	require.NoError(t, err)

	require.NoError(t, pool.CloseAll(ctx))

	_, err = session.Chat(ctx, "在吗")
	assert.ErrorIs(t, err, ErrSessionClosed)
}
