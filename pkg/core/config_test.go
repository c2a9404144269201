package core

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigFromEnv_Defaults(t *testing.T) {
	for _, key := range []string{
		"DATABASE_PROVIDER", "SQLITE_PATH", "LLM_PROVIDER", "LLM_API_KEY",
		"LLM_MODEL", "EMBEDDING_PROVIDER", "MAX_REWRITES", "WINDOW_SIZE",
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}

	config, err := LoadConfigFromEnv()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", config.Store.Provider)
	assert.Equal(t, "./companion.db", config.Store.Config["db_path"])
	assert.Equal(t, "openai", config.LLM.Provider)
	assert.Equal(t, "gpt-4o-mini", config.LLM.Model)
	assert.Empty(t, config.Embedder.Provider)
	assert.Equal(t, 2, config.MaxRewrites)
	assert.Equal(t, 10, config.WindowSize)
}

func TestLoadConfigFromEnv_Postgres(t *testing.T) {
	t.Setenv("DATABASE_PROVIDER", "postgres")
	t.Setenv("POSTGRES_HOST", "db.internal")
	t.Setenv("POSTGRES_PORT", "5433")
	t.Setenv("POSTGRES_USER", "companion")
	t.Setenv("POSTGRES_PASSWORD", "secret")
	t.Setenv("POSTGRES_DATABASE", "memories")
	t.Setenv("LLM_API_KEY", "k")

	config, err := LoadConfigFromEnv()
	require.NoError(t, err)

	assert.Equal(t, "postgres", config.Store.Provider)
	assert.Equal(t, "db.internal", config.Store.Config["host"])
	assert.Equal(t, 5433, config.Store.Config["port"])
	assert.Equal(t, "memories", config.Store.Config["db_name"])
	assert.Equal(t, "disable", config.Store.Config["ssl_mode"])
}

func TestLoadConfigFromEnv_TurnSettings(t *testing.T) {
	t.Setenv("MAX_REWRITES", "1")
	t.Setenv("WINDOW_SIZE", "20")
	t.Setenv("EMBEDDING_PROVIDER", "openai")
	t.Setenv("EMBEDDING_DIMS", "512")

	config, err := LoadConfigFromEnv()
	require.NoError(t, err)

	assert.Equal(t, 1, config.MaxRewrites)
	assert.Equal(t, 20, config.WindowSize)
	assert.Equal(t, "openai", config.Embedder.Provider)
	assert.Equal(t, 512, config.Embedder.Dimensions)
}

func TestConfig_Validate(t *testing.T) {
	valid := &Config{
		LLM:   LLMConfig{Provider: "openai", APIKey: "k"},
		Store: StoreConfig{Provider: "sqlite"},
	}
	assert.NoError(t, valid.Validate())

	missingLLM := &Config{Store: StoreConfig{Provider: "sqlite"}}
	assert.ErrorIs(t, missingLLM.Validate(), ErrInvalidConfig)

	missingStore := &Config{LLM: LLMConfig{Provider: "openai"}}
	assert.ErrorIs(t, missingStore.Validate(), ErrInvalidConfig)
}

func TestLoadConfigFromJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	payload := `{
		"llm": {"provider": "openai", "api_key": "k", "model": "gpt-4o-mini"},
		"store": {"provider": "sqlite", "config": {"db_path": "./x.db"}},
		"max_rewrites": 1
	}`
	require.NoError(t, os.WriteFile(path, []byte(payload), 0o644))

	config, err := LoadConfigFromJSON(path)
	require.NoError(t, err)

	assert.Equal(t, "openai", config.LLM.Provider)
	assert.Equal(t, "./x.db", config.Store.Config["db_path"])
	assert.Equal(t, 1, config.MaxRewrites)

	_, err = LoadConfigFromJSON(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestAgentError(t *testing.T) {
	err := NewAgentError("Chat", ErrInvalidInput)
	require.Error(t, err)

	assert.Equal(t, "companion: Chat: invalid input", err.Error())
	assert.ErrorIs(t, err, ErrInvalidInput)

	assert.Nil(t, NewAgentError("Chat", nil))
}
