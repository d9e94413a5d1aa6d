// Package session stores conversational sessions in Redis as keyed
// records with a sliding TTL and a bounded message history.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/kravishan/neuroclimabot-docker-sub000/internal/config"
)

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Conversation types. The first turn in a session is a start; later
// turns are continues.
const (
	ConversationStart    = "start"
	ConversationContinue = "continue"
)

// Message is one turn in a session.
type Message struct {
	Role      string         `json:"role"`
	Content   string         `json:"content"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Session is a conversational session record.
type Session struct {
	ID           string         `json:"id"`
	UserID       string         `json:"user_id"`
	Language     string         `json:"language"`
	Title        string         `json:"title"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	LastActivity time.Time      `json:"last_activity"`
	Messages     []Message      `json:"messages"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// ConversationType derives start/continue from the history. A session
// whose only messages are from the current turn is still a start.
func (s *Session) ConversationType() string {
	for _, m := range s.Messages {
		if m.Role == RoleAssistant {
			return ConversationContinue
		}
	}
	return ConversationStart
}

// Recent returns the last k messages in chronological order.
func (s *Session) Recent(k int) []Message {
	if k <= 0 || len(s.Messages) == 0 {
		return nil
	}
	if len(s.Messages) <= k {
		return s.Messages
	}
	return s.Messages[len(s.Messages)-k:]
}

// ErrNotFound reports a missing or expired session.
var ErrNotFound = fmt.Errorf("session not found")

// Store persists sessions in Redis.
type Store struct {
	rdb         *redis.Client
	ttl         time.Duration
	maxMessages int
	logger      *slog.Logger
}

// New creates a session store from the shared Redis configuration.
func New(redisCfg config.RedisConfig, cfg config.SessionConfig, logger *slog.Logger) *Store {
	rdb := redis.NewClient(&redis.Options{
		Addr:     redisCfg.Addr,
		DB:       redisCfg.DB,
		Password: redisCfg.ResolvePassword(),
	})
	return NewWithClient(rdb, cfg, logger)
}

// NewWithClient wraps an existing Redis client.
func NewWithClient(rdb *redis.Client, cfg config.SessionConfig, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	ttlMinutes := cfg.TTLMinutes
	if ttlMinutes <= 0 {
		ttlMinutes = config.DefaultSessionTTLMinutes
	}
	maxMessages := cfg.MaxMessages
	if maxMessages <= 0 {
		maxMessages = config.DefaultSessionMaxMessages
	}
	return &Store{
		rdb:         rdb,
		ttl:         time.Duration(ttlMinutes) * time.Minute,
		maxMessages: maxMessages,
		logger:      logger,
	}
}

// Close releases the Redis connection.
func (s *Store) Close() error {
	return s.rdb.Close()
}

func sessionKey(id string) string {
	return "neuroclimabot:session:" + id
}

// Create starts a new session for a user.
func (s *Store) Create(ctx context.Context, userID, language string) (*Session, error) {
	now := time.Now().UTC()
	sess := &Session{
		ID:           uuid.NewString(),
		UserID:       userID,
		Language:     language,
		CreatedAt:    now,
		UpdatedAt:    now,
		LastActivity: now,
	}
	if err := s.save(ctx, sess); err != nil {
		return nil, err
	}
	s.logger.Debug("session created", "session_id", sess.ID, "user_id", userID)
	return sess, nil
}

// Get loads a session; missing or expired sessions yield ErrNotFound.
func (s *Store) Get(ctx context.Context, id string) (*Session, error) {
	raw, err := s.rdb.Get(ctx, sessionKey(id)).Result()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session %s; %w", id, err)
	}

	var sess Session
	if err := json.Unmarshal([]byte(raw), &sess); err != nil {
		return nil, fmt.Errorf("failed to decode session %s; %w", id, err)
	}
	return &sess, nil
}

// GetOrCreate loads the session or starts a fresh one when the ID is
// empty or unknown.
func (s *Store) GetOrCreate(ctx context.Context, id, userID, language string) (*Session, error) {
	if id != "" {
		sess, err := s.Get(ctx, id)
		if err == nil {
			return sess, nil
		}
		if err != ErrNotFound {
			return nil, err
		}
	}
	return s.Create(ctx, userID, language)
}

// Append adds a message, trims history to the bound, and refreshes the
// TTL.
func (s *Store) Append(ctx context.Context, id string, msg Message) (*Session, error) {
	sess, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}
	sess.Messages = append(sess.Messages, msg)
	if len(sess.Messages) > s.maxMessages {
		sess.Messages = sess.Messages[len(sess.Messages)-s.maxMessages:]
	}
	sess.UpdatedAt = time.Now().UTC()
	sess.LastActivity = sess.UpdatedAt

	if err := s.save(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// SetTitle records the generated session title.
func (s *Store) SetTitle(ctx context.Context, id, title string) error {
	sess, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	sess.Title = title
	sess.UpdatedAt = time.Now().UTC()
	return s.save(ctx, sess)
}

// Delete removes a session.
func (s *Store) Delete(ctx context.Context, id string) error {
	if err := s.rdb.Del(ctx, sessionKey(id)).Err(); err != nil {
		return fmt.Errorf("failed to delete session %s; %w", id, err)
	}
	return nil
}

func (s *Store) save(ctx context.Context, sess *Session) error {
	raw, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("failed to encode session %s; %w", sess.ID, err)
	}
	if err := s.rdb.Set(ctx, sessionKey(sess.ID), raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save session %s; %w", sess.ID, err)
	}
	return nil
}
