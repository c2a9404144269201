package core

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"

	"github.com/warmheart-ai/companion-go/pkg/embedder"
	embedderOpenai "github.com/warmheart-ai/companion-go/pkg/embedder/openai"
	"github.com/warmheart-ai/companion-go/pkg/emotion"
	"github.com/warmheart-ai/companion-go/pkg/llm"
	llmOpenai "github.com/warmheart-ai/companion-go/pkg/llm/openai"
	"github.com/warmheart-ai/companion-go/pkg/memory"
	"github.com/warmheart-ai/companion-go/pkg/storage"
	"github.com/warmheart-ai/companion-go/pkg/storage/postgres"
	"github.com/warmheart-ai/companion-go/pkg/storage/sqlite"
)

// Turn behavior defaults applied when the config leaves them zero.
const (
	defaultMaxRewrites = 2
	defaultWindowSize  = 10
)

// Pool manages per-user sessions over shared providers and a shared store.
//
// Sessions are created lazily on first Get and cached; concurrent Get calls
// for the same user observe exactly one construction. The pool owns the
// store and the providers, so closing an individual session leaves them
// usable by the remaining sessions.
type Pool struct {
	config *Config

	store storage.Store
	llm   llm.Provider
	embed embedder.Provider

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewPool creates a session pool from the given configuration.
//
// The store, LLM provider, and optional embedding provider are constructed
// eagerly so configuration problems surface here rather than on the first
// turn.
//
// Parameters:
//   - config: Pool configuration (LLM, store, optional embedder)
//
// Returns:
//   - *Pool: The pool instance
//   - error: An error if the configuration is invalid or a provider
//     could not be constructed
func NewPool(config *Config) (*Pool, error) {
	if config == nil {
		return nil, NewAgentError("NewPool", ErrInvalidConfig)
	}
	if err := config.Validate(); err != nil {
		return nil, NewAgentError("NewPool", err)
	}

	store, err := newStore(&config.Store)
	if err != nil {
		return nil, NewAgentError("NewPool", err)
	}

	provider, err := newLLMProvider(&config.LLM)
	if err != nil {
		store.Close()
		return nil, NewAgentError("NewPool", err)
	}

	embed, err := newEmbedderProvider(&config.Embedder)
	if err != nil {
		provider.Close()
		store.Close()
		return nil, NewAgentError("NewPool", err)
	}

	return &Pool{
		config:   config,
		store:    store,
		llm:      provider,
		embed:    embed,
		sessions: make(map[string]*Session),
	}, nil
}

// Get returns the session for the given user, constructing it on first use.
//
// Construction loads the user's working summary, rehydrates the short-term
// window, and starts a store session; it runs at most once per user id even
// under concurrent callers.
func (p *Pool) Get(ctx context.Context, userID string) (*Session, error) {
	if userID == "" {
		return nil, NewAgentError("Get", ErrInvalidInput)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if session, ok := p.sessions[userID]; ok {
		return session, nil
	}

	session, err := p.buildSession(ctx, userID)
	if err != nil {
		return nil, NewAgentError("Get", err)
	}
	p.sessions[userID] = session
	return session, nil
}

// buildSession wires one user's runtime. Caller holds p.mu.
func (p *Pool) buildSession(ctx context.Context, userID string) (*Session, error) {
	windowSize := p.config.WindowSize
	if windowSize <= 0 {
		windowSize = defaultWindowSize
	}
	maxRewrites := p.config.MaxRewrites
	if maxRewrites <= 0 {
		maxRewrites = defaultMaxRewrites
	}

	manager := memory.NewManager(p.store, userID, windowSize)
	if err := manager.Init(ctx); err != nil {
		return nil, fmt.Errorf("session init failed for user %s: %w", userID, err)
	}

	return &Session{
		userID:      userID,
		manager:     manager,
		assembler:   memory.NewAssembler(p.store, p.llm, p.embed, userID),
		analyzer:    emotion.NewAnalyzer(p.llm),
		drafter:     newDrafter(p.llm),
		reviewer:    newReviewer(p.llm),
		saver:       newSaver(p.llm, p.embed),
		maxRewrites: maxRewrites,
	}, nil
}

// Remove closes the session for the given user and evicts it from the
// pool. A user with no cached session is a no-op.
func (p *Pool) Remove(ctx context.Context, userID string) error {
	p.mu.Lock()
	session, ok := p.sessions[userID]
	delete(p.sessions, userID)
	p.mu.Unlock()

	if !ok {
		return nil
	}
	return session.Close(ctx)
}

// Wait blocks until every cached session's background persistence tasks
// have finished.
func (p *Pool) Wait() {
	p.mu.Lock()
	sessions := make([]*Session, 0, len(p.sessions))
	for _, session := range p.sessions {
		sessions = append(sessions, session)
	}
	p.mu.Unlock()

	for _, session := range sessions {
		session.Wait()
	}
}

// CloseAll closes every cached session, then the shared store and
// providers. The pool is unusable afterwards.
//
// The first error encountered is returned; close continues past failures
// so all resources get a close attempt.
func (p *Pool) CloseAll(ctx context.Context) error {
	p.mu.Lock()
	sessions := make([]*Session, 0, len(p.sessions))
	for _, session := range p.sessions {
		sessions = append(sessions, session)
	}
	p.sessions = make(map[string]*Session)
	p.mu.Unlock()

	var firstErr error
	for _, session := range sessions {
		if err := session.Close(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if p.embed != nil {
		if err := p.embed.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := p.llm.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := p.store.Close(); err != nil && firstErr == nil {
		firstErr = err
	}

	return NewAgentError("CloseAll", firstErr)
}

// UserIDFromName derives a stable user id from a display name. The same
// name, ignoring case and surrounding whitespace, always maps to the same
// id.
func UserIDFromName(name string) string {
	normalized := strings.ToLower(strings.TrimSpace(name))
	sum := md5.Sum([]byte(normalized))
	return hex.EncodeToString(sum[:])[:16]
}

// newStore constructs the durable store named by the config.
func newStore(cfg *StoreConfig) (storage.Store, error) {
	switch cfg.Provider {
	case "sqlite":
		return sqlite.NewClient(&sqlite.Config{
			DBPath: configString(cfg.Config, "db_path"),
		})

	case "postgres":
		return postgres.NewClient(&postgres.Config{
			Host:     configString(cfg.Config, "host"),
			Port:     configInt(cfg.Config, "port"),
			User:     configString(cfg.Config, "user"),
			Password: configString(cfg.Config, "password"),
			DBName:   configString(cfg.Config, "db_name"),
			SSLMode:  configString(cfg.Config, "ssl_mode"),
		})

	default:
		return nil, fmt.Errorf("unsupported store provider: %s", cfg.Provider)
	}
}

// newLLMProvider constructs the LLM provider named by the config. Any
// OpenAI-compatible endpoint works through the openai provider with a
// custom base URL.
func newLLMProvider(cfg *LLMConfig) (llm.Provider, error) {
	switch cfg.Provider {
	case "openai", "":
		return llmOpenai.NewClient(&llmOpenai.Config{
			APIKey:  cfg.APIKey,
			Model:   cfg.Model,
			BaseURL: cfg.BaseURL,
		})

	default:
		return nil, fmt.Errorf("unsupported llm provider: %s", cfg.Provider)
	}
}

// newEmbedderProvider constructs the embedding provider, or returns nil
// when none is configured. A nil provider disables the semantic retrieval
// fallback; keyword retrieval still works.
func newEmbedderProvider(cfg *EmbedderConfig) (embedder.Provider, error) {
	switch cfg.Provider {
	case "":
		return nil, nil

	case "openai":
		return embedderOpenai.NewClient(&embedderOpenai.Config{
			APIKey:     cfg.APIKey,
			Model:      cfg.Model,
			BaseURL:    cfg.BaseURL,
			Dimensions: cfg.Dimensions,
		})

	default:
		return nil, fmt.Errorf("unsupported embedder provider: %s", cfg.Provider)
	}
}

func configString(m map[string]interface{}, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

func configInt(m map[string]interface{}, key string) int {
	switch v := m[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	default:
		return 0
	}
}
