package memory

import (
	"context"
	"fmt"
	"log"

	"github.com/warmheart-ai/companion-go/pkg/storage"
)

// Manager ties together one user's three memory tiers: the working summary,
// the short-term window, and the durable store.
//
// A Manager is owned by exactly one session and is not safe for concurrent
// use; the store it wraps is shared across sessions and must be.
type Manager struct {
	store     storage.Store
	userID    string
	sessionID string

	Summary *WorkingSummary
	Window  *ShortTermWindow
}

// NewManager creates a Manager for one user. windowSize controls the
// short-term window capacity; non-positive values use the default.
func NewManager(store storage.Store, userID string, windowSize int) *Manager {
	return &Manager{
		store:   store,
		userID:  userID,
		Summary: NewWorkingSummary(),
		Window:  NewShortTermWindow(windowSize),
	}
}

// Init opens a session, restores the persisted working summary, and
// rehydrates the short-term window from the most recent stored messages so
// continuity survives restarts.
func (m *Manager) Init(ctx context.Context) error {
	sessionID, err := m.store.CreateSession(ctx, m.userID)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	m.sessionID = sessionID

	data, err := m.store.GetWorkingSummary(ctx, m.userID)
	if err != nil {
		return fmt.Errorf("failed to load working summary: %w", err)
	}
	if data != nil {
		summary, err := UnmarshalWorkingSummary(data)
		if err != nil {
			// A corrupt summary row starts the user over rather than
			// blocking session creation.
			log.Printf("discarding unreadable working summary for user %s: %v", m.userID, err)
		} else {
			m.Summary = summary
		}
	}

	msgs, err := m.store.GetRecentMessages(ctx, m.userID, m.Window.Size())
	if err != nil {
		return fmt.Errorf("failed to load recent messages: %w", err)
	}

	// The store returns newest first; the window wants oldest first.
	turns := make([]Turn, 0, len(msgs))
	for i := len(msgs) - 1; i >= 0; i-- {
		turns = append(turns, Turn{Role: msgs[i].Role, Content: msgs[i].Content})
	}
	m.Window.Rehydrate(turns)

	return nil
}

// SessionID returns the id of the open session, or "" before Init.
func (m *Manager) SessionID() string {
	return m.sessionID
}

// UserID returns the owning user id.
func (m *Manager) UserID() string {
	return m.userID
}

// Store exposes the underlying durable store.
func (m *Manager) Store() storage.Store {
	return m.store
}

// StageMessage pushes a message onto the short-term window and returns the
// storage row for the caller to persist. The in-memory effect lands
// immediately; the durable write is the caller's to schedule.
func (m *Manager) StageMessage(role, content, emotionType string, emotionIntensity float64) *storage.Message {
	m.Window.Push(role, content)

	return &storage.Message{
		UserID:           m.userID,
		SessionID:        m.sessionID,
		Role:             role,
		Content:          content,
		EmotionType:      emotionType,
		EmotionIntensity: emotionIntensity,
	}
}

// SaveMessage persists a message and pushes it onto the short-term window.
func (m *Manager) SaveMessage(ctx context.Context, role, content, emotionType string, emotionIntensity float64) error {
	return m.store.AppendMessage(ctx, m.StageMessage(role, content, emotionType, emotionIntensity))
}

// Flush persists the current working summary.
func (m *Manager) Flush(ctx context.Context) error {
	data, err := m.Summary.Marshal()
	if err != nil {
		return fmt.Errorf("failed to serialize working summary: %w", err)
	}
	if err := m.store.PutWorkingSummary(ctx, m.userID, data); err != nil {
		return fmt.Errorf("failed to persist working summary: %w", err)
	}
	return nil
}

// Close flushes the working summary and ends the session. The shared store
// is left open; closing it is the pool's responsibility.
func (m *Manager) Close(ctx context.Context) error {
	if err := m.Flush(ctx); err != nil {
		log.Printf("working summary flush failed on close for user %s: %v", m.userID, err)
	}
	if m.sessionID != "" {
		if err := m.store.EndSession(ctx, m.sessionID, ""); err != nil {
			return fmt.Errorf("failed to end session: %w", err)
		}
		m.sessionID = ""
	}
	return nil
}
