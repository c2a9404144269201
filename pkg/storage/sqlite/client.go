// Package sqlite provides the SQLite implementation of the memory store.
//
// Full-text message search is backed by an FTS5 virtual table with unicode61
// tokenization, kept in sync with the messages table through triggers. A
// malformed FTS query degrades to a LIKE substring scan. Life event
// embeddings are stored as JSON text columns.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/warmheart-ai/companion-go/pkg/storage"
)

// Client implements storage.Store using SQLite as the backend.
type Client struct {
	// db is the SQLite database connection.
	db *sql.DB

	// idGen generates unique ids for fact rows.
	idGen *snowflake.Node
}

// Config contains configuration for creating a SQLite store.
type Config struct {
	// DBPath is the path to the SQLite database file. Parent directories
	// are created if missing.
	DBPath string
}

// NewClient creates a new SQLite store and initializes the schema.
//
// Parameters:
//   - cfg: Configuration containing the database file path
//
// Returns:
//   - *Client: The store instance
//   - error: Error if the database cannot be opened or schema creation fails
func NewClient(cfg *Config) (*Client, error) {
	if dir := filepath.Dir(cfg.DBPath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	idGen, err := snowflake.NewNode(1)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create id generator: %w", err)
	}

	client := &Client{db: db, idGen: idGen}

	if err := client.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return client, nil
}

// initSchema creates the tables, the FTS index with its sync triggers, and
// the query indexes.
func (c *Client) initSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			session_id TEXT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			emotion_type TEXT,
			emotion_intensity REAL,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS emotion_records (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			emotion_type TEXT NOT NULL,
			intensity REAL NOT NULL,
			"trigger" TEXT,
			context TEXT,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS life_events (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			event_type TEXT NOT NULL,
			title TEXT NOT NULL,
			description TEXT,
			importance INTEGER DEFAULT 3,
			emotion_impact TEXT,
			event_date TEXT,
			embedding TEXT,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS working_summaries (
			id TEXT PRIMARY KEY,
			user_id TEXT UNIQUE NOT NULL,
			content TEXT NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			started_at TIMESTAMP NOT NULL,
			ended_at TIMESTAMP,
			summary TEXT,
			message_count INTEGER DEFAULT 0
		)`,
		`CREATE VIRTUAL TABLE IF NOT EXISTS messages_fts USING fts5(
			content,
			emotion_type,
			content=messages,
			content_rowid=rowid,
			tokenize='unicode61'
		)`,
		`CREATE TRIGGER IF NOT EXISTS messages_ai AFTER INSERT ON messages BEGIN
			INSERT INTO messages_fts(rowid, content, emotion_type)
			VALUES (NEW.rowid, NEW.content, NEW.emotion_type);
		END`,
		`CREATE TRIGGER IF NOT EXISTS messages_ad AFTER DELETE ON messages BEGIN
			INSERT INTO messages_fts(messages_fts, rowid, content, emotion_type)
			VALUES ('delete', OLD.rowid, OLD.content, OLD.emotion_type);
		END`,
		`CREATE TRIGGER IF NOT EXISTS messages_au AFTER UPDATE ON messages BEGIN
			INSERT INTO messages_fts(messages_fts, rowid, content, emotion_type)
			VALUES ('delete', OLD.rowid, OLD.content, OLD.emotion_type);
			INSERT INTO messages_fts(rowid, content, emotion_type)
			VALUES (NEW.rowid, NEW.content, NEW.emotion_type);
		END`,
		`CREATE INDEX IF NOT EXISTS idx_messages_user_time ON messages(user_id, created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id)`,
		`CREATE INDEX IF NOT EXISTS idx_emotion_user_time ON emotion_records(user_id, created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_events_user_time ON life_events(user_id, created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_user_time ON sessions(user_id, started_at DESC)`,
	}

	for _, stmt := range statements {
		if _, err := c.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to initialize schema: %w", err)
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
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		msg.ID, msg.UserID, msg.SessionID, msg.Role, msg.Content,
		msg.EmotionType, msg.EmotionIntensity, msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert message: %w", err)
	}

	if msg.SessionID != "" {
		_, err = c.db.ExecContext(ctx,
			"UPDATE sessions SET message_count = message_count + 1 WHERE id = ?",
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
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.UserID, rec.EmotionType, rec.Intensity, rec.Trigger, rec.Context, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert emotion record: %w", err)
	}
	return nil
}

// AppendLifeEvent persists a life event. The embedding, when present, is
// serialized as a JSON array.
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
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
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
		FROM messages WHERE user_id = ?
		ORDER BY created_at DESC, rowid DESC LIMIT ?`,
		userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent messages: %w", err)
	}
	defer rows.Close()

	return scanMessages(rows)
}

// SearchMessagesByKeyword runs an FTS5 search over the user's messages.
//
// FTS5 operator characters are stripped from the query first. If the FTS
// query still fails, the search degrades to a LIKE substring scan ordered by
// recency.
func (c *Client) SearchMessagesByKeyword(ctx context.Context, userID, query string, limit int) ([]*storage.Message, error) {
	cleaned := cleanFTSQuery(query)
	if cleaned == "" {
		return nil, nil
	}

	rows, err := c.db.QueryContext(ctx,
		`SELECT m.id, m.user_id, m.session_id, m.role, m.content, m.emotion_type, m.emotion_intensity, m.created_at
		FROM messages m
		JOIN messages_fts fts ON m.rowid = fts.rowid
		WHERE messages_fts MATCH ? AND m.user_id = ?
		ORDER BY rank LIMIT ?`,
		cleaned, userID, limit)
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
		FROM messages WHERE user_id = ? AND content LIKE ?
		ORDER BY created_at DESC LIMIT ?`,
		userID, "%"+query+"%", limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search messages: %w", err)
	}
	defer rows.Close()

	return scanMessages(rows)
}

// SearchLifeEventsByKeyword searches life events by title and description
// substring.
func (c *Client) SearchLifeEventsByKeyword(ctx context.Context, userID, query string, limit int) ([]*storage.LifeEvent, error) {
	pattern := "%" + query + "%"
	rows, err := c.db.QueryContext(ctx,
		`SELECT id, user_id, event_type, title, description, importance, emotion_impact, event_date, embedding, created_at
		FROM life_events WHERE user_id = ? AND (title LIKE ? OR description LIKE ?)
		ORDER BY created_at DESC LIMIT ?`,
		userID, pattern, pattern, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search life events: %w", err)
	}
	defer rows.Close()

	return scanLifeEvents(rows)
}

// SearchEmotionsByKeyword searches emotion records by type and trigger
// substring.
func (c *Client) SearchEmotionsByKeyword(ctx context.Context, userID, query string, limit int) ([]*storage.EmotionRecord, error) {
	pattern := "%" + query + "%"
	rows, err := c.db.QueryContext(ctx,
		`SELECT id, user_id, emotion_type, intensity, "trigger", context, created_at
		FROM emotion_records WHERE user_id = ? AND (emotion_type LIKE ? OR "trigger" LIKE ?)
		ORDER BY created_at DESC LIMIT ?`,
		userID, pattern, pattern, limit)
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
		FROM life_events WHERE user_id = ?
		ORDER BY created_at DESC LIMIT ?`,
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
		FROM emotion_records WHERE user_id = ?
		ORDER BY created_at DESC LIMIT ?`,
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
	var content string
	err := c.db.QueryRowContext(ctx,
		"SELECT content FROM working_summaries WHERE user_id = ?", userID).Scan(&content)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query working summary: %w", err)
	}
	return []byte(content), nil
}

// PutWorkingSummary upserts the user's working summary JSON.
func (c *Client) PutWorkingSummary(ctx context.Context, userID string, content []byte) error {
	result, err := c.db.ExecContext(ctx,
		"UPDATE working_summaries SET content = ?, updated_at = ? WHERE user_id = ?",
		string(content), time.Now(), userID)
	if err != nil {
		return fmt.Errorf("failed to update working summary: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check working summary update: %w", err)
	}
	if affected == 0 {
		_, err = c.db.ExecContext(ctx,
			"INSERT INTO working_summaries (id, user_id, content, updated_at) VALUES (?, ?, ?, ?)",
			c.idGen.Generate().String(), userID, string(content), time.Now())
		if err != nil {
			return fmt.Errorf("failed to insert working summary: %w", err)
		}
	}
	return nil
}

// CreateSession opens a new session for the user.
func (c *Client) CreateSession(ctx context.Context, userID string) (string, error) {
	sessionID := uuid.NewString()
	_, err := c.db.ExecContext(ctx,
		"INSERT INTO sessions (id, user_id, started_at) VALUES (?, ?, ?)",
		sessionID, userID, time.Now())
	if err != nil {
		return "", fmt.Errorf("failed to create session: %w", err)
	}
	return sessionID, nil
}

// EndSession marks a session as ended.
func (c *Client) EndSession(ctx context.Context, sessionID, summary string) error {
	_, err := c.db.ExecContext(ctx,
		"UPDATE sessions SET ended_at = ?, summary = ? WHERE id = ?",
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

// cleanFTSQuery strips FTS5 operator characters so user text cannot form a
// syntax error in the MATCH expression.
func cleanFTSQuery(query string) string {
	replacer := strings.NewReplacer(`"`, "", "'", "", "*", "", "-", " ")
	return strings.TrimSpace(replacer.Replace(query))
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
