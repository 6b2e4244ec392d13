// Package store is the durable conversation store: users, conversations and
// their append-only message logs.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/zulandar/bruno/internal/core"
	"github.com/zulandar/bruno/internal/keylock"
	"github.com/zulandar/bruno/internal/models"
	"gorm.io/gorm"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("store: not found")

// PersistenceError wraps a database failure. It is propagated to callers
// rather than swallowed, since persistence sits outside the dispatcher.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("store: %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

func persistErr(op string, err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return &PersistenceError{Op: op, Err: err}
}

// Store provides synchronous create/read operations over users,
// conversations and messages. Appends to a single conversation are
// serialized so sequence numbers never interleave.
type Store struct {
	db *gorm.DB

	convLocks keylock.Map[uint]
}

// Opts holds parameters for creating a Store.
type Opts struct {
	DB *gorm.DB
}

// New creates a Store.
func New(opts Opts) (*Store, error) {
	if opts.DB == nil {
		return nil, fmt.Errorf("store: db is required")
	}
	return &Store{db: opts.DB}, nil
}

// DB returns the underlying connection for components that keep their own
// tables (ability stores).
func (s *Store) DB() *gorm.DB { return s.db }

// CreateUser inserts a new user.
func (s *Store) CreateUser(ctx context.Context, name, username string) (*models.User, error) {
	user := models.User{Name: name, Username: username}
	if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
		return nil, persistErr("create user", err)
	}
	return &user, nil
}

// GetUser fetches a user by id.
func (s *Store) GetUser(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, id).Error; err != nil {
		return nil, persistErr("get user", err)
	}
	return &user, nil
}

// GetUserByUsername fetches a user by username.
func (s *Store) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).Where("username = ?", username).First(&user).Error; err != nil {
		return nil, persistErr("get user by username", err)
	}
	return &user, nil
}

// CreateOrGetUser returns the user with the given username, creating it
// when absent. An empty name defaults to the username.
func (s *Store) CreateOrGetUser(ctx context.Context, username, name string) (*models.User, error) {
	user, err := s.GetUserByUsername(ctx, username)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	if name == "" {
		name = username
	}
	user, err = s.CreateUser(ctx, name, username)
	if err != nil {
		// Another process may have created it first.
		if existing, gerr := s.GetUserByUsername(ctx, username); gerr == nil {
			return existing, nil
		}
		return nil, err
	}
	return user, nil
}

// CreateConversation starts a new conversation for a user.
func (s *Store) CreateConversation(ctx context.Context, userID uint, title, channelID string) (*models.Conversation, error) {
	conv := models.Conversation{
		UserID:    userID,
		Title:     titleFrom(title),
		ChannelID: channelID,
	}
	if err := s.db.WithContext(ctx).Create(&conv).Error; err != nil {
		return nil, persistErr("create conversation", err)
	}
	return &conv, nil
}

// GetConversation fetches a conversation by id.
func (s *Store) GetConversation(ctx context.Context, id uint) (*models.Conversation, error) {
	var conv models.Conversation
	if err := s.db.WithContext(ctx).First(&conv, id).Error; err != nil {
		return nil, persistErr("get conversation", err)
	}
	return &conv, nil
}

// LatestConversation returns the user's most recently created conversation
// in a channel. An empty channelID matches any channel.
func (s *Store) LatestConversation(ctx context.Context, userID uint, channelID string) (*models.Conversation, error) {
	q := s.db.WithContext(ctx).Where("user_id = ?", userID)
	if channelID != "" {
		q = q.Where("channel_id = ?", channelID)
	}
	var conv models.Conversation
	if err := q.Order("id DESC").First(&conv).Error; err != nil {
		return nil, persistErr("latest conversation", err)
	}
	return &conv, nil
}

// ConversationsForUser lists a user's conversations, newest first.
func (s *Store) ConversationsForUser(ctx context.Context, userID uint) ([]models.Conversation, error) {
	var convs []models.Conversation
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).
		Order("id DESC").Find(&convs).Error; err != nil {
		return nil, persistErr("list conversations", err)
	}
	return convs, nil
}

// AddMessage appends msg to a conversation, assigning the next sequence
// number. The timestamp defaults to now when unset.
func (s *Store) AddMessage(ctx context.Context, conversationID uint, msg core.Message) (*models.Message, error) {
	row, err := toRow(conversationID, msg)
	if err != nil {
		return nil, err
	}

	defer s.convLocks.Lock(conversationID)()

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var maxSeq int64
		if err := tx.Model(&models.Message{}).
			Where("conversation_id = ?", conversationID).
			Select("COALESCE(MAX(sequence_number), 0)").Scan(&maxSeq).Error; err != nil {
			return fmt.Errorf("next sequence: %w", err)
		}
		row.SequenceNumber = maxSeq + 1
		if err := tx.Create(row).Error; err != nil {
			return fmt.Errorf("insert: %w", err)
		}
		return tx.Model(&models.Conversation{}).
			Where("id = ?", conversationID).
			Update("updated_at", time.Now()).Error
	})
	if err != nil {
		return nil, persistErr("add message", err)
	}
	return row, nil
}

// Messages returns the most recent limit messages of a conversation,
// oldest first. limit <= 0 returns the whole log.
func (s *Store) Messages(ctx context.Context, conversationID uint, limit int) ([]models.Message, error) {
	q := s.db.WithContext(ctx).Where("conversation_id = ?", conversationID)
	var rows []models.Message
	if limit > 0 {
		if err := q.Order("sequence_number DESC").Limit(limit).Find(&rows).Error; err != nil {
			return nil, persistErr("list messages", err)
		}
		for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
			rows[i], rows[j] = rows[j], rows[i]
		}
		return rows, nil
	}
	if err := q.Order("sequence_number ASC").Find(&rows).Error; err != nil {
		return nil, persistErr("list messages", err)
	}
	return rows, nil
}

// ClearConversation deletes a conversation's messages. With keepSystem,
// system messages survive.
func (s *Store) ClearConversation(ctx context.Context, conversationID uint, keepSystem bool) error {
	defer s.convLocks.Lock(conversationID)()

	q := s.db.WithContext(ctx).Where("conversation_id = ?", conversationID)
	if keepSystem {
		q = q.Where("role <> ?", string(core.RoleSystem))
	}
	if err := q.Delete(&models.Message{}).Error; err != nil {
		return persistErr("clear conversation", err)
	}
	return nil
}

// titleFrom derives a conversation title from its first message.
func titleFrom(text string) string {
	text = strings.TrimSpace(strings.ReplaceAll(text, "\n", " "))
	if text == "" {
		return "New conversation"
	}
	if r := []rune(text); len(r) > 80 {
		return string(r[:77]) + "..."
	}
	return text
}
