// Package storage provides SQLite chat and user storage.
//
// Information Hiding:
// - SQLite connection management hidden behind interface
// - Schema and migration details encapsulated
// - Thread-safe via sql.DB's built-in connection pooling

package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/richinex/geoassist/llm"
)

// SqliteStorage implements ChatStore and UserDirectory using SQLite.
type SqliteStorage struct {
	db *sql.DB
}

// OpenSqlite opens or creates a SQLite database at the given path.
// Creates parent directories if they don't exist.
func OpenSqlite(path string) (*SqliteStorage, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	storage := &SqliteStorage{db: db}
	if err := storage.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return storage, nil
}

// NewSqliteInMemory creates an in-memory database (useful for testing).
func NewSqliteInMemory() (*SqliteStorage, error) {
	db, err := sql.Open("sqlite3", ":memory:?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory SQLite: %w", err)
	}
	// Every connection to :memory: is a separate database.
	db.SetMaxOpenConns(1)

	storage := &SqliteStorage{db: db}
	if err := storage.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return storage, nil
}

// Close closes the database connection.
func (s *SqliteStorage) Close() error {
	return s.db.Close()
}

func (s *SqliteStorage) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			role TEXT NOT NULL,
			tier TEXT NOT NULL,
			created_at INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS api_tokens (
			token_hash TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
		);

		CREATE TABLE IF NOT EXISTS usage (
			user_id TEXT NOT NULL,
			period TEXT NOT NULL,
			count INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (user_id, period)
		);

		CREATE TABLE IF NOT EXISTS chats (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			title TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_chats_user
		ON chats(user_id, updated_at DESC);

		CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			chat_id TEXT NOT NULL,
			position INTEGER NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			tool_calls TEXT,
			tool_call_id TEXT,
			name TEXT,
			created_at INTEGER NOT NULL,
			FOREIGN KEY (chat_id) REFERENCES chats(id) ON DELETE CASCADE,
			UNIQUE(chat_id, position)
		);

		CREATE INDEX IF NOT EXISTS idx_messages_chat
		ON messages(chat_id, position);
	`

	_, err := s.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// GetChat returns a chat by id.
func (s *SqliteStorage) GetChat(ctx context.Context, chatID string) (Chat, error) {
	var (
		chat             Chat
		created, updated int64
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT id, user_id, title, created_at, updated_at FROM chats WHERE id = ?",
		chatID,
	).Scan(&chat.ID, &chat.UserID, &chat.Title, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return Chat{}, fmt.Errorf("chat %s: %w", chatID, ErrNotFound)
	}
	if err != nil {
		return Chat{}, fmt.Errorf("failed to get chat: %w", err)
	}
	chat.CreatedAt = time.UnixMilli(created)
	chat.UpdatedAt = time.UnixMilli(updated)
	return chat, nil
}

// CreateChat inserts a new chat.
func (s *SqliteStorage) CreateChat(ctx context.Context, chat Chat) error {
	now := time.Now()
	if chat.CreatedAt.IsZero() {
		chat.CreatedAt = now
	}
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO chats (id, user_id, title, created_at, updated_at) VALUES (?, ?, ?, ?, ?)",
		chat.ID, chat.UserID, chat.Title, chat.CreatedAt.UnixMilli(), now.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to create chat: %w", err)
	}
	return nil
}

// AppendMessages appends messages to a chat in one transaction.
func (s *SqliteStorage) AppendMessages(ctx context.Context, chatID string, messages []StoredMessage) error {
	if len(messages) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	// defer tx.Rollback() is safe even after Commit() - it becomes a no-op
	defer func() { _ = tx.Rollback() }()

	var next int
	err = tx.QueryRowContext(ctx,
		"SELECT COALESCE(MAX(position), -1) + 1 FROM messages WHERE chat_id = ?", chatID,
	).Scan(&next)
	if err != nil {
		return fmt.Errorf("failed to read message position: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO messages (id, chat_id, position, role, content, tool_calls, tool_call_id, name, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert statement: %w", err)
	}
	defer stmt.Close()

	for i, msg := range messages {
		var toolCalls sql.NullString
		if len(msg.ToolCalls) > 0 {
			b, err := json.Marshal(msg.ToolCalls)
			if err != nil {
				return fmt.Errorf("failed to encode tool calls: %w", err)
			}
			toolCalls = sql.NullString{String: string(b), Valid: true}
		}
		_, err = stmt.ExecContext(ctx,
			msg.ID, chatID, next+i, msg.Role, msg.Content, toolCalls,
			nullIfEmpty(msg.ToolCallID), nullIfEmpty(msg.Name), msg.CreatedAt.UnixMilli(),
		)
		if err != nil {
			return fmt.Errorf("failed to insert message: %w", err)
		}
	}

	res, err := tx.ExecContext(ctx,
		"UPDATE chats SET updated_at = ? WHERE id = ?", time.Now().UnixMilli(), chatID)
	if err != nil {
		return fmt.Errorf("failed to update chat timestamp: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("chat %s: %w", chatID, ErrNotFound)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// LoadMessages returns all messages of a chat in order.
// Returns an empty slice (not nil) when the chat has none.
func (s *SqliteStorage) LoadMessages(ctx context.Context, chatID string) ([]StoredMessage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, role, content, tool_calls, tool_call_id, name, created_at
		FROM messages WHERE chat_id = ? ORDER BY position`, chatID)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	messages := []StoredMessage{}
	for rows.Next() {
		var (
			msg                     StoredMessage
			toolCalls, callID, name sql.NullString
			created                 int64
		)
		if err := rows.Scan(&msg.ID, &msg.Role, &msg.Content, &toolCalls, &callID, &name, &created); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		if toolCalls.Valid {
			var calls []llm.ToolCall
			if err := json.Unmarshal([]byte(toolCalls.String), &calls); err != nil {
				return nil, fmt.Errorf("failed to decode tool calls: %w", err)
			}
			msg.ToolCalls = calls
		}
		msg.ToolCallID = callID.String
		msg.Name = name.String
		msg.CreatedAt = time.UnixMilli(created)
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate messages: %w", err)
	}
	return messages, nil
}

// ResolveRoleAndTier returns the role and tier of a user.
func (s *SqliteStorage) ResolveRoleAndTier(ctx context.Context, userID string) (string, string, error) {
	var role, tier string
	err := s.db.QueryRowContext(ctx, "SELECT role, tier FROM users WHERE id = ?", userID).Scan(&role, &tier)
	if errors.Is(err, sql.ErrNoRows) {
		return "", "", fmt.Errorf("user %s: %w", userID, ErrNotFound)
	}
	if err != nil {
		return "", "", fmt.Errorf("failed to resolve user: %w", err)
	}
	return role, tier, nil
}

// GetUsage returns the request count of a user in a period.
func (s *SqliteStorage) GetUsage(ctx context.Context, userID, period string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT count FROM usage WHERE user_id = ? AND period = ?", userID, period,
	).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get usage: %w", err)
	}
	return count, nil
}

// IncrementUsage counts one more request and returns the new total.
func (s *SqliteStorage) IncrementUsage(ctx context.Context, userID, period string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO usage (user_id, period, count) VALUES (?, ?, 1)
		ON CONFLICT(user_id, period) DO UPDATE SET count = count + 1
		RETURNING count`, userID, period,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to increment usage: %w", err)
	}
	return count, nil
}

// UpsertUser creates a user or updates its role and tier.
func (s *SqliteStorage) UpsertUser(ctx context.Context, user User) error {
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, role, tier, created_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET role = excluded.role, tier = excluded.tier`,
		user.ID, user.Role, user.Tier, user.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert user: %w", err)
	}
	return nil
}

// IssueToken stores the hash of token for a user.
func (s *SqliteStorage) IssueToken(ctx context.Context, userID, token string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO api_tokens (token_hash, user_id, created_at) VALUES (?, ?, ?)",
		HashToken(token), userID, time.Now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to issue token: %w", err)
	}
	return nil
}

// LookupToken resolves an API token to its user.
func (s *SqliteStorage) LookupToken(ctx context.Context, token string) (string, error) {
	var userID string
	err := s.db.QueryRowContext(ctx,
		"SELECT user_id FROM api_tokens WHERE token_hash = ?", HashToken(token),
	).Scan(&userID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to look up token: %w", err)
	}
	return userID, nil
}

func nullIfEmpty(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// Verify SqliteStorage implements both interfaces
var (
	_ ChatStore     = (*SqliteStorage)(nil)
	_ UserDirectory = (*SqliteStorage)(nil)
)
