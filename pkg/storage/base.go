// Package storage defines the durable memory store contract.
//
// A Store owns persistence of all long-term facts (messages, emotion records,
// life events, sessions) plus the single upsertable working summary row per
// user. The store assigns ids and timestamps; callers only request reads and
// writes. All fact writes are append-only.
package storage

import (
	"context"
	"time"
)

// Entity names a searchable fact collection.
type Entity string

const (
	// EntityMessages is the conversation message collection.
	EntityMessages Entity = "messages"

	// EntityEvents is the life event collection.
	EntityEvents Entity = "events"

	// EntityEmotions is the emotion record collection.
	EntityEmotions Entity = "emotions"
)

// Message is one durable conversation message.
type Message struct {
	ID               string    `json:"id"`
	UserID           string    `json:"user_id"`
	SessionID        string    `json:"session_id"`
	Role             string    `json:"role"`
	Content          string    `json:"content"`
	EmotionType      string    `json:"emotion_type,omitempty"`
	EmotionIntensity float64   `json:"emotion_intensity,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

// EmotionRecord is one durable emotion observation.
type EmotionRecord struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	EmotionType string    `json:"emotion_type"`
	Intensity   float64   `json:"intensity"`
	Trigger     string    `json:"trigger,omitempty"`
	Context     string    `json:"context,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// LifeEvent is one durable life event.
//
// Embedding optionally carries a pre-computed vector of the title, used by
// the semantic retrieval fallback.
type LifeEvent struct {
	ID            string    `json:"id"`
	UserID        string    `json:"user_id"`
	EventType     string    `json:"event_type"`
	Title         string    `json:"title"`
	Description   string    `json:"description,omitempty"`
	Importance    int       `json:"importance"`
	EmotionImpact string    `json:"emotion_impact,omitempty"`
	EventDate     string    `json:"event_date,omitempty"`
	Embedding     []float64 `json:"embedding,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// SessionRecord is one conversation session.
type SessionRecord struct {
	ID           string     `json:"id"`
	UserID       string     `json:"user_id"`
	StartedAt    time.Time  `json:"started_at"`
	EndedAt      *time.Time `json:"ended_at,omitempty"`
	Summary      string     `json:"summary,omitempty"`
	MessageCount int        `json:"message_count"`
}

// Store is the durable memory store contract.
//
// Implementations must be safe for concurrent use from independent user
// sessions. Keyword search must tokenize unicode text and degrade to
// substring matching when the indexed backend rejects a malformed query.
type Store interface {
	// AppendMessage persists a message. The store assigns ID and CreatedAt
	// and increments the owning session's message count.
	AppendMessage(ctx context.Context, msg *Message) error

	// AppendEmotionRecord persists an emotion record. The store assigns ID
	// and CreatedAt.
	AppendEmotionRecord(ctx context.Context, rec *EmotionRecord) error

	// AppendLifeEvent persists a life event. The store assigns ID and
	// CreatedAt.
	AppendLifeEvent(ctx context.Context, event *LifeEvent) error

	// GetRecentMessages returns the user's most recent messages, newest
	// first.
	GetRecentMessages(ctx context.Context, userID string, limit int) ([]*Message, error)

	// SearchMessagesByKeyword runs a full-text search over the user's
	// messages.
	SearchMessagesByKeyword(ctx context.Context, userID, query string, limit int) ([]*Message, error)

	// SearchLifeEventsByKeyword searches life events by title and
	// description.
	SearchLifeEventsByKeyword(ctx context.Context, userID, query string, limit int) ([]*LifeEvent, error)

	// SearchEmotionsByKeyword searches emotion records by type and trigger.
	SearchEmotionsByKeyword(ctx context.Context, userID, query string, limit int) ([]*EmotionRecord, error)

	// GetLifeEvents returns the user's life events, newest first.
	GetLifeEvents(ctx context.Context, userID string, limit int) ([]*LifeEvent, error)

	// GetEmotionHistory returns the user's emotion records, newest first.
	GetEmotionHistory(ctx context.Context, userID string, limit int) ([]*EmotionRecord, error)

	// GetWorkingSummary returns the user's working summary JSON, or nil
	// when none has been stored.
	GetWorkingSummary(ctx context.Context, userID string) ([]byte, error)

	// PutWorkingSummary upserts the user's working summary JSON. This is
	// the only non-append write in the store.
	PutWorkingSummary(ctx context.Context, userID string, content []byte) error

	// CreateSession opens a new session for the user and returns its id.
	CreateSession(ctx context.Context, userID string) (string, error)

	// EndSession marks a session as ended with an optional summary.
	EndSession(ctx context.Context, sessionID, summary string) error

	// Close releases the underlying database resources.
	Close() error
}
