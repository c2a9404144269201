// Package postgres provides the PostgreSQL implementation of the memory store.
//
// Full-text message search uses tsvector matching with the simple
// configuration, degrading to an ILIKE substring scan when the query cannot
// be parsed. Working summaries are upserted with ON CONFLICT.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"github.com/warmheart-ai/companion-go/pkg/storage"
)

// Client implements storage.Store using PostgreSQL as the backend.
type Client struct {
	db    *sql.DB
	idGen *snowflake.Node
}

// Config contains PostgreSQL configuration.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// NewClient creates a new PostgreSQL store and initializes the schema.
func NewClient(cfg *Config) (*Client, error) {
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}

	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, sslMode)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("NewPostgresClient: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("NewPostgresClient: %w", err)
	}

	idGen, err := snowflake.NewNode(1)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("NewPostgresClient: %w", err)
	}

	client := &Client{db: db, idGen: idGen}

	if err := client.initTables(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return client, nil
}

// initTables initializes the tables and indexes.
func (c *Client) initTables(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS messages (
			id VARCHAR(64) PRIMARY KEY,
			user_id VARCHAR(255) NOT NULL,
			session_id VARCHAR(64) NOT NULL,
			role VARCHAR(32) NOT NULL,
			content TEXT NOT NULL,
			emotion_type VARCHAR(64),
			emotion_intensity DOUBLE PRECISION,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS emotion_records (
			id VARCHAR(64) PRIMARY KEY,
			user_id VARCHAR(255) NOT NULL,
			emotion_type VARCHAR(64) NOT NULL,
			intensity DOUBLE PRECISION NOT NULL,
			"trigger" TEXT,
			context TEXT,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS life_events (
			id VARCHAR(64) PRIMARY KEY,
			user_id VARCHAR(255) NOT NULL,
			event_type VARCHAR(64) NOT NULL,
			title TEXT NOT NULL,
			description TEXT,
			importance INTEGER DEFAULT 3,
			emotion_impact TEXT,
			event_date VARCHAR(32),
			embedding JSONB,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS working_summaries (
			id VARCHAR(64) PRIMARY KEY,
			user_id VARCHAR(255) UNIQUE NOT NULL,
			content JSONB NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS sessions (
			id VARCHAR(64) PRIMARY KEY,
			user_id VARCHAR(255) NOT NULL,
			started_at TIMESTAMP NOT NULL,
			ended_at TIMESTAMP,
			summary TEXT,
			message_count INTEGER DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_user_time ON messages(user_id, created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_content_fts ON messages USING GIN (to_tsvector('simple', content))`,
		`CREATE INDEX IF NOT EXISTS idx_emotion_user_time ON emotion_records(user_id, created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_events_user_time ON life_events(user_id, created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_user_time ON sessions(user_id, started_at DESC)`,
	}

	for _, stmt := range statements {
		if _, err := c.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("initTables: %w", err)
		}
	}
	return nil
}

// AppendMessage persists a message and bumps the session message count.
func (c *Client) AppendMessage(ctx context.Context, msg *storage.Message) error {
	msg.ID = c.idGen.Generate().String()
	msg.CreatedAt = time.Now()

	_, err := c.db.ExecContext(ctx,
		`INSERT INTO messages (id, user_id, session_id, role, content, emotion_type, emotion_intensity, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		msg.ID, msg.UserID, msg.SessionID, msg.Role, msg.Content,
		msg.EmotionType, msg.EmotionIntensity, msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert message: %w", err)
	}

	if msg.SessionID != "" {
		_, err = c.db.ExecContext(ctx,
			"UPDATE sessions SET message_count = message_count + 1 WHERE id = $1",
			msg.SessionID)
		if err != nil {
			return fmt.Errorf("failed to update session message count: %w", err)
		}
	}
	return nil
}

// AppendEmotionRecord persists an emotion record.
func (c *Client) AppendEmotionRecord(ctx context.Context, rec *storage.EmotionRecord) error {
	rec.ID = c.idGen.Generate().String()
	rec.CreatedAt = time.Now()

	_, err := c.db.ExecContext(ctx,
		`INSERT INTO emotion_records (id, user_id, emotion_type, intensity, "trigger", context, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		rec.ID, rec.UserID, rec.EmotionType, rec.Intensity, rec.Trigger, rec.Context, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert emotion record: %w", err)
	}
	return nil
}

// AppendLifeEvent persists a life event.
func (c *Client) AppendLifeEvent(ctx context.Context, event *storage.LifeEvent) error {
	event.ID = c.idGen.Generate().String()
	event.CreatedAt = time.Now()
	if event.Importance == 0 {
		event.Importance = 3
	}

	var embeddingJSON sql.NullString
	if len(event.Embedding) > 0 {
		data, err := json.Marshal(event.Embedding)
		if err != nil {
			return fmt.Errorf("failed to marshal embedding: %w", err)
		}
		embeddingJSON = sql.NullString{String: string(data), Valid: true}
	}

	_, err := c.db.ExecContext(ctx,
		`INSERT INTO life_events (id, user_id, event_type, title, description, importance, emotion_impact, event_date, embedding, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		event.ID, event.UserID, event.EventType, event.Title, event.Description,
		event.Importance, event.EmotionImpact, event.EventDate, embeddingJSON, event.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert life event: %w", err)
	}
	return nil
}

// GetRecentMessages returns the user's most recent messages, newest first.
func (c *Client) GetRecentMessages(ctx context.Context, userID string, limit int) ([]*storage.Message, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT id, user_id, session_id, role, content, emotion_type, emotion_intensity, created_at
		FROM messages WHERE user_id = $1
		ORDER BY created_at DESC, id DESC LIMIT $2`,
		userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent messages: %w", err)
	}
	defer rows.Close()

	return scanMessages(rows)
}

// SearchMessagesByKeyword runs a tsvector full-text search over the user's
// messages, degrading to ILIKE on query failure.
func (c *Client) SearchMessagesByKeyword(ctx context.Context, userID, query string, limit int) ([]*storage.Message, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT id, user_id, session_id, role, content, emotion_type, emotion_intensity, created_at
		FROM messages
		WHERE user_id = $1 AND to_tsvector('simple', content) @@ plainto_tsquery('simple', $2)
		ORDER BY ts_rank(to_tsvector('simple', content), plainto_tsquery('simple', $2)) DESC
		LIMIT $3`,
		userID, query, limit)
	if err != nil {
		return c.searchMessagesLike(ctx, userID, query, limit)
	}
	defer rows.Close()

	results, err := scanMessages(rows)
	if err != nil {
		return c.searchMessagesLike(ctx, userID, query, limit)
	}
	return results, nil
}

func (c *Client) searchMessagesLike(ctx context.Context, userID, query string, limit int) ([]*storage.Message, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT id, user_id, session_id, role, content, emotion_type, emotion_intensity, created_at
		FROM messages WHERE user_id = $1 AND content ILIKE $2
		ORDER BY created_at DESC LIMIT $3`,
		userID, "%"+query+"%", limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search messages: %w", err)
	}
	defer rows.Close()

	return scanMessages(rows)
}

// SearchLifeEventsByKeyword searches life events by title and description.
func (c *Client) SearchLifeEventsByKeyword(ctx context.Context, userID, query string, limit int) ([]*storage.LifeEvent, error) {
	pattern := "%" + query + "%"
	rows, err := c.db.QueryContext(ctx,
		`SELECT id, user_id, event_type, title, description, importance, emotion_impact, event_date, embedding, created_at
		FROM life_events WHERE user_id = $1 AND (title ILIKE $2 OR description ILIKE $2)
		ORDER BY created_at DESC LIMIT $3`,
		userID, pattern, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search life events: %w", err)
	}
	defer rows.Close()

	return scanLifeEvents(rows)
}

// SearchEmotionsByKeyword searches emotion records by type and trigger.
func (c *Client) SearchEmotionsByKeyword(ctx context.Context, userID, query string, limit int) ([]*storage.EmotionRecord, error) {
	pattern := "%" + query + "%"
	rows, err := c.db.QueryContext(ctx,
		`SELECT id, user_id, emotion_type, intensity, "trigger", context, created_at
		FROM emotion_records WHERE user_id = $1 AND (emotion_type ILIKE $2 OR "trigger" ILIKE $2)
		ORDER BY created_at DESC LIMIT $3`,
		userID, pattern, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search emotion records: %w", err)
	}
	defer rows.Close()

	return scanEmotionRecords(rows)
}

// GetLifeEvents returns the user's life events, newest first.
func (c *Client) GetLifeEvents(ctx context.Context, userID string, limit int) ([]*storage.LifeEvent, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT id, user_id, event_type, title, description, importance, emotion_impact, event_date, embedding, created_at
		FROM life_events WHERE user_id = $1
		ORDER BY created_at DESC LIMIT $2`,
		userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query life events: %w", err)
	}
	defer rows.Close()

	return scanLifeEvents(rows)
}

// GetEmotionHistory returns the user's emotion records, newest first.
func (c *Client) GetEmotionHistory(ctx context.Context, userID string, limit int) ([]*storage.EmotionRecord, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT id, user_id, emotion_type, intensity, "trigger", context, created_at
		FROM emotion_records WHERE user_id = $1
		ORDER BY created_at DESC LIMIT $2`,
		userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query emotion history: %w", err)
	}
	defer rows.Close()

	return scanEmotionRecords(rows)
}

// GetWorkingSummary returns the user's working summary JSON, or nil when no
// summary has been stored yet.
func (c *Client) GetWorkingSummary(ctx context.Context, userID string) ([]byte, error) {
	var content []byte
	err := c.db.QueryRowContext(ctx,
		"SELECT content FROM working_summaries WHERE user_id = $1", userID).Scan(&content)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query working summary: %w", err)
	}
	return content, nil
}

// PutWorkingSummary upserts the user's working summary JSON.
func (c *Client) PutWorkingSummary(ctx context.Context, userID string, content []byte) error {
	_, err := c.db.ExecContext(ctx,
		`INSERT INTO working_summaries (id, user_id, content, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id) DO UPDATE SET content = EXCLUDED.content, updated_at = EXCLUDED.updated_at`,
		c.idGen.Generate().String(), userID, string(content), time.Now())
	if err != nil {
		return fmt.Errorf("failed to upsert working summary: %w", err)
	}
	return nil
}

// CreateSession opens a new session for the user.
func (c *Client) CreateSession(ctx context.Context, userID string) (string, error) {
	sessionID := uuid.NewString()
	_, err := c.db.ExecContext(ctx,
		"INSERT INTO sessions (id, user_id, started_at) VALUES ($1, $2, $3)",
		sessionID, userID, time.Now())
	if err != nil {
		return "", fmt.Errorf("failed to create session: %w", err)
	}
	return sessionID, nil
}

// EndSession marks a session as ended.
func (c *Client) EndSession(ctx context.Context, sessionID, summary string) error {
	_, err := c.db.ExecContext(ctx,
		"UPDATE sessions SET ended_at = $1, summary = $2 WHERE id = $3",
		time.Now(), summary, sessionID)
	if err != nil {
		return fmt.Errorf("failed to end session: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (c *Client) Close() error {
	return c.db.Close()
}

func scanMessages(rows *sql.Rows) ([]*storage.Message, error) {
	var results []*storage.Message
	for rows.Next() {
		var msg storage.Message
		var emotionType sql.NullString
		var intensity sql.NullFloat64
		if err := rows.Scan(&msg.ID, &msg.UserID, &msg.SessionID, &msg.Role, &msg.Content,
			&emotionType, &intensity, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		msg.EmotionType = emotionType.String
		msg.EmotionIntensity = intensity.Float64
		results = append(results, &msg)
	}
	return results, rows.Err()
}

func scanLifeEvents(rows *sql.Rows) ([]*storage.LifeEvent, error) {
	var results []*storage.LifeEvent
	for rows.Next() {
		var event storage.LifeEvent
		var description, impact, eventDate, embedding sql.NullString
		if err := rows.Scan(&event.ID, &event.UserID, &event.EventType, &event.Title,
			&description, &event.Importance, &impact, &eventDate, &embedding, &event.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan life event: %w", err)
		}
		event.Description = description.String
		event.EmotionImpact = impact.String
		event.EventDate = eventDate.String
		if embedding.Valid && embedding.String != "" {
			if err := json.Unmarshal([]byte(embedding.String), &event.Embedding); err != nil {
				return nil, fmt.Errorf("failed to parse embedding: %w", err)
			}
		}
		results = append(results, &event)
	}
	return results, rows.Err()
}

func scanEmotionRecords(rows *sql.Rows) ([]*storage.EmotionRecord, error) {
	var results []*storage.EmotionRecord
	for rows.Next() {
		var rec storage.EmotionRecord
		var trigger, recContext sql.NullString
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.EmotionType, &rec.Intensity,
			&trigger, &recContext, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan emotion record: %w", err)
		}
		rec.Trigger = trigger.String
		rec.Context = recContext.String
		results = append(results, &rec)
	}
	return results, rows.Err()
}
