// Package core defines the values that flow between the chat front ends,
// the dispatcher, the memory manager and the model backend.
package core

import (
	"time"
)

// Role tags who authored a message.
type Role string

// Message roles.
const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	}
	return false
}

// ParseRole maps a stored role string to a Role, defaulting to RoleUser for
// anything unrecognised.
func ParseRole(s string) Role {
	if r := Role(s); r.Valid() {
		return r
	}
	return RoleUser
}

// Metadata keys understood by the dispatcher and the stores.
const (
	MetaTaskCommand = "is_task_command"
	MetaIntent      = "intent"
	MetaEntities    = "entities"
)

// Message is one immutable entry of a conversation. Sequence is assigned by
// the conversation log when the message is stored and is the ordering key.
type Message struct {
	Role           Role
	Content        string
	Timestamp      time.Time
	ConversationID string
	Sequence       int64
	Metadata       map[string]any
}

// NewMessage returns a message stamped with the current UTC time.
func NewMessage(role Role, content string) Message {
	return Message{
		Role:      role,
		Content:   content,
		Timestamp: time.Now().UTC(),
	}
}

// Bool returns a boolean metadata flag, false when absent.
func (m Message) Bool(key string) bool {
	v, ok := m.Metadata[key].(bool)
	return ok && v
}

// IsTaskCommand reports whether the caller marked the message as a task
// command (timer, reminder, note).
func (m Message) IsTaskCommand() bool {
	return m.Bool(MetaTaskCommand)
}

// UserContext identifies the person on the other side of a conversation.
type UserContext struct {
	UserID   string
	UserName string
}

// SessionContext is a short-lived token associating a user with transient
// metadata. It is owned by the memory manager.
type SessionContext struct {
	SessionID  string
	UserID     string
	Metadata   map[string]any
	CreatedAt  time.Time
	LastActive time.Time
}

// ConversationContext is built per interaction and primes the model with
// the most recent messages of a conversation.
type ConversationContext struct {
	ConversationID string
	User           *UserContext
	Session        *SessionContext
	Messages       []Message
	MaxMessages    int
}

// UserID returns the user id of the context, or "" when there is none.
func (c *ConversationContext) UserID() string {
	if c == nil || c.User == nil {
		return ""
	}
	return c.User.UserID
}

// Recent returns the last MaxMessages messages (all when MaxMessages <= 0).
func (c *ConversationContext) Recent() []Message {
	if c == nil {
		return nil
	}
	return Tail(c.Messages, c.MaxMessages)
}

// Tail returns the last n messages of msgs, oldest first. n <= 0 returns
// msgs unchanged.
func Tail(msgs []Message, n int) []Message {
	if n <= 0 || len(msgs) <= n {
		return msgs
	}
	return msgs[len(msgs)-n:]
}

// ActionStatus is the outcome of an action performed while answering.
type ActionStatus string

// Action statuses.
const (
	ActionSuccess ActionStatus = "success"
	ActionFailed  ActionStatus = "failed"
)

// ActionResult records one action taken on behalf of the user.
type ActionResult struct {
	ActionType string
	Status     ActionStatus
	Message    string
}

// AssistantResponse is the terminal artifact of one dispatcher call.
type AssistantResponse struct {
	Text     string
	Actions  []ActionResult
	Success  bool
	Error    string
	Metadata map[string]any
}
