package chat

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MockAdapter implements Adapter, BotUserIDer and Typer for testing. It
// records sent messages and allows simulating inbound messages via
// SimulateInbound.
type MockAdapter struct {
	mu        sync.Mutex
	connected bool
	listening bool
	closed    bool
	inbound   chan InboundMessage
	sent      []OutboundMessage
	typing    []string
	botUserID string
	sendErr   error
}

// NewMockAdapter creates a MockAdapter with a buffered inbound channel.
func NewMockAdapter() *MockAdapter {
	return &MockAdapter{inbound: make(chan InboundMessage, 100)}
}

// BotUserID returns the configured bot user ID.
func (m *MockAdapter) BotUserID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.botUserID
}

// SetBotUserID sets the bot user ID for testing.
func (m *MockAdapter) SetBotUserID(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.botUserID = id
}

// SetSendError makes every subsequent Send fail with err.
func (m *MockAdapter) SetSendError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sendErr = err
}

// Connect marks the adapter as connected.
func (m *MockAdapter) Connect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return fmt.Errorf("mock adapter: already closed")
	}
	m.connected = true
	return nil
}

// Listen returns the inbound message channel. Must be called after Connect.
func (m *MockAdapter) Listen(ctx context.Context) (<-chan InboundMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.connected {
		return nil, fmt.Errorf("mock adapter: not connected")
	}
	m.listening = true
	return m.inbound, nil
}

// Send records the outbound message.
func (m *MockAdapter) Send(ctx context.Context, msg OutboundMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.connected {
		return fmt.Errorf("mock adapter: not connected")
	}
	if m.sendErr != nil {
		return m.sendErr
	}
	m.sent = append(m.sent, msg)
	return nil
}

// Typing records the typing indicator request.
func (m *MockAdapter) Typing(ctx context.Context, channelID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.typing = append(m.typing, channelID)
	return nil
}

// Close shuts down the mock adapter and closes the inbound channel.
func (m *MockAdapter) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	m.connected = false
	close(m.inbound)
	return nil
}

// --- Test helpers ---

// SimulateInbound sends a message into the inbound channel as if it came
// from the chat platform. Safe to call from any goroutine.
func (m *MockAdapter) SimulateInbound(msg InboundMessage) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	m.inbound <- msg
}

// LastSent returns the most recently sent outbound message.
func (m *MockAdapter) LastSent() (OutboundMessage, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		return OutboundMessage{}, false
	}
	return m.sent[len(m.sent)-1], true
}

// SentCount returns the number of outbound messages sent.
func (m *MockAdapter) SentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

// AllSent returns a copy of all sent outbound messages.
func (m *MockAdapter) AllSent() []OutboundMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]OutboundMessage, len(m.sent))
	copy(out, m.sent)
	return out
}

// Listening reports whether Listen has been called.
func (m *MockAdapter) Listening() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listening
}

// TypingCount returns how many typing indicators were requested.
func (m *MockAdapter) TypingCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.typing)
}
