// Package chat connects Bruno to chat platforms (Discord, Slack). It decides
// which inbound messages the bot answers, persists each turn through the
// conversation service and delivers replies in platform-sized chunks.
package chat

import (
	"context"
	"time"
)

// Adapter is the interface that platform-specific implementations must satisfy.
type Adapter interface {
	// Connect establishes a connection to the chat platform.
	Connect(ctx context.Context) error

	// Listen returns a channel of inbound messages from the platform. The
	// channel is closed when the adapter is closed. Listen must only be
	// called after Connect.
	Listen(ctx context.Context) (<-chan InboundMessage, error)

	// Send delivers an outbound message to the platform.
	Send(ctx context.Context, msg OutboundMessage) error

	// Close gracefully shuts down the adapter connection.
	Close() error
}

// InboundMessage represents a message received from the chat platform.
type InboundMessage struct {
	Platform  string    // e.g. "slack", "discord"
	ChannelID string    // platform-specific channel identifier
	ThreadID  string    // thread identifier (empty if top-level)
	MessageID string    // platform message id
	UserID    string    // platform-specific user identifier
	UserName  string    // human-readable username
	Text      string    // raw message text
	IsDirect  bool      // sent in a direct-message channel
	IsBot     bool      // author is a bot account
	Mentions  []string  // user ids mentioned in the message
	Timestamp time.Time // when the message was sent
}

// Mentioned reports whether userID appears in the message's mentions.
func (m InboundMessage) Mentioned(userID string) bool {
	if userID == "" {
		return false
	}
	for _, id := range m.Mentions {
		if id == userID {
			return true
		}
	}
	return false
}

// OutboundMessage represents a message to be sent to the chat platform.
type OutboundMessage struct {
	ChannelID string // target channel
	ThreadID  string // thread to reply in (empty for a top-level message)
	Text      string
}

// BotUserIDer is an optional interface that adapters can implement to
// expose the bot's own user ID. This enables self-message filtering and
// mention detection.
type BotUserIDer interface {
	BotUserID() string
}

// Typer is an optional interface for adapters that can show a typing
// indicator while a reply is being generated.
type Typer interface {
	Typing(ctx context.Context, channelID string) error
}
