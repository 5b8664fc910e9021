// Package storage provides chat transcript storage and the user directory
// (roles, tiers, API tokens, request usage).
//
// Information Hiding:
// - Storage backend implementation details hidden behind interfaces
// - Allows swapping between memory and SQLite without API changes
// - Each implementation encapsulates its own data structures

package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/richinex/geoassist/llm"
)

// ErrNotFound is returned when a chat, user or token does not exist.
var ErrNotFound = errors.New("not found")

// Chat is a stored conversation owned by one user.
type Chat struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// StoredMessage is a chat message with its persistence identity.
type StoredMessage struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	llm.ChatMessage
}

// User is a directory entry.
type User struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"`
	Tier      string    `json:"tier"`
	CreatedAt time.Time `json:"createdAt"`
}

// ChatStore stores chats and their messages.
type ChatStore interface {
	// GetChat returns ErrNotFound when the chat does not exist.
	GetChat(ctx context.Context, chatID string) (Chat, error)

	// CreateChat creates a chat. Creating an existing chat is an error.
	CreateChat(ctx context.Context, chat Chat) error

	// AppendMessages appends messages in order after any existing ones.
	// All messages are written or none are.
	AppendMessages(ctx context.Context, chatID string, messages []StoredMessage) error

	// LoadMessages returns the chat's messages in order.
	LoadMessages(ctx context.Context, chatID string) ([]StoredMessage, error)
}

// UserDirectory resolves identities, roles and usage counters.
type UserDirectory interface {
	// ResolveRoleAndTier returns ErrNotFound for unknown users.
	ResolveRoleAndTier(ctx context.Context, userID string) (role, tier string, err error)

	// GetUsage returns the number of requests counted in period.
	GetUsage(ctx context.Context, userID, period string) (int, error)

	// IncrementUsage adds one request to period and returns the new count.
	IncrementUsage(ctx context.Context, userID, period string) (int, error)

	// UpsertUser creates or updates a user.
	UpsertUser(ctx context.Context, user User) error

	// IssueToken records an API token for the user.
	IssueToken(ctx context.Context, userID, token string) error

	// LookupToken returns the user owning token, or ErrNotFound.
	LookupToken(ctx context.Context, token string) (string, error)
}

// HashToken returns the form in which API tokens are stored.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
