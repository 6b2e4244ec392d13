package store

import (
	"context"

	"github.com/zulandar/bruno/internal/core"
)

// ConversationLog exposes a Store's message log keyed by string
// conversation ids. It satisfies memory.Backend.
type ConversationLog struct {
	s *Store
}

// Log returns the string-keyed view of the message log.
func (s *Store) Log() *ConversationLog {
	return &ConversationLog{s: s}
}

// SaveMessage appends msg and returns it with its assigned sequence.
func (l *ConversationLog) SaveMessage(ctx context.Context, conversationID string, msg core.Message) (core.Message, error) {
	id, err := ParseID(conversationID)
	if err != nil {
		return core.Message{}, err
	}
	row, err := l.s.AddMessage(ctx, id, msg)
	if err != nil {
		return core.Message{}, err
	}
	return toCore(*row), nil
}

// GetMessages returns the last limit messages, oldest first.
func (l *ConversationLog) GetMessages(ctx context.Context, conversationID string, limit int) ([]core.Message, error) {
	id, err := ParseID(conversationID)
	if err != nil {
		return nil, err
	}
	rows, err := l.s.Messages(ctx, id, limit)
	if err != nil {
		return nil, err
	}
	out := make([]core.Message, 0, len(rows))
	for _, r := range rows {
		out = append(out, toCore(r))
	}
	return out, nil
}

// ClearConversation deletes a conversation's messages.
func (l *ConversationLog) ClearConversation(ctx context.Context, conversationID string, keepSystem bool) error {
	id, err := ParseID(conversationID)
	if err != nil {
		return err
	}
	return l.s.ClearConversation(ctx, id, keepSystem)
}
