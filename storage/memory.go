// Package storage provides in-memory chat and user storage.
//
// Information Hiding:
// - Map storage structure hidden from users
// - Thread-safe access via RWMutex hidden behind interface
// - Suitable for testing and ephemeral deployments

package storage

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// InMemoryStorage implements ChatStore and UserDirectory using maps.
// Data is lost when process terminates.
type InMemoryStorage struct {
	mu       sync.RWMutex
	chats    map[string]Chat
	messages map[string][]StoredMessage
	users    map[string]User
	tokens   map[string]string
	usage    map[string]int
}

// NewInMemoryStorage creates a new in-memory storage.
func NewInMemoryStorage() *InMemoryStorage {
	return &InMemoryStorage{
		chats:    make(map[string]Chat),
		messages: make(map[string][]StoredMessage),
		users:    make(map[string]User),
		tokens:   make(map[string]string),
		usage:    make(map[string]int),
	}
}

// GetChat returns a chat by id.
func (s *InMemoryStorage) GetChat(ctx context.Context, chatID string) (Chat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	chat, ok := s.chats[chatID]
	if !ok {
		return Chat{}, fmt.Errorf("chat %s: %w", chatID, ErrNotFound)
	}
	return chat, nil
}

// CreateChat stores a new chat.
func (s *InMemoryStorage) CreateChat(ctx context.Context, chat Chat) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.chats[chat.ID]; exists {
		return fmt.Errorf("chat %s already exists", chat.ID)
	}
	now := time.Now()
	if chat.CreatedAt.IsZero() {
		chat.CreatedAt = now
	}
	chat.UpdatedAt = now
	s.chats[chat.ID] = chat
	return nil
}

// AppendMessages appends messages to a chat.
func (s *InMemoryStorage) AppendMessages(ctx context.Context, chatID string, messages []StoredMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	chat, ok := s.chats[chatID]
	if !ok {
		return fmt.Errorf("chat %s: %w", chatID, ErrNotFound)
	}
	// Copy to avoid external mutations
	s.messages[chatID] = append(s.messages[chatID], append([]StoredMessage(nil), messages...)...)
	chat.UpdatedAt = time.Now()
	s.chats[chatID] = chat
	return nil
}

// LoadMessages returns a copy of a chat's messages.
func (s *InMemoryStorage) LoadMessages(ctx context.Context, chatID string) ([]StoredMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	copied := make([]StoredMessage, len(s.messages[chatID]))
	copy(copied, s.messages[chatID])
	return copied, nil
}

// ResolveRoleAndTier returns the role and tier of a user.
func (s *InMemoryStorage) ResolveRoleAndTier(ctx context.Context, userID string) (string, string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[userID]
	if !ok {
		return "", "", fmt.Errorf("user %s: %w", userID, ErrNotFound)
	}
	return user.Role, user.Tier, nil
}

// GetUsage returns the request count of a user in a period.
func (s *InMemoryStorage) GetUsage(ctx context.Context, userID, period string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.usage[userID+"/"+period], nil
}

// IncrementUsage counts one more request and returns the new total.
func (s *InMemoryStorage) IncrementUsage(ctx context.Context, userID, period string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := userID + "/" + period
	s.usage[key]++
	return s.usage[key], nil
}

// SetUsage overwrites a usage counter.
func (s *InMemoryStorage) SetUsage(userID, period string, count int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.usage[userID+"/"+period] = count
}

// UpsertUser creates or updates a user.
func (s *InMemoryStorage) UpsertUser(ctx context.Context, user User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.users[user.ID]; ok {
		user.CreatedAt = existing.CreatedAt
	} else if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now()
	}
	s.users[user.ID] = user
	return nil
}

// IssueToken records an API token for a user.
func (s *InMemoryStorage) IssueToken(ctx context.Context, userID, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tokens[HashToken(token)] = userID
	return nil
}

// LookupToken resolves an API token to its user.
func (s *InMemoryStorage) LookupToken(ctx context.Context, token string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	userID, ok := s.tokens[HashToken(token)]
	if !ok {
		return "", ErrNotFound
	}
	return userID, nil
}

// Verify InMemoryStorage implements both interfaces
var (
	_ ChatStore     = (*InMemoryStorage)(nil)
	_ UserDirectory = (*InMemoryStorage)(nil)
)
