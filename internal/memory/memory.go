// Package memory owns sessions and the per-conversation message log used to
// prime the model. Messages are written through to a durable Backend when
// one is configured and mirrored in an in-process cache that serves reads
// when the backend is empty or failing.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/zulandar/bruno/internal/core"
	"github.com/zulandar/bruno/internal/logging"
	"go.uber.org/zap"
)

// Defaults applied when Opts leaves a field zero.
const (
	DefaultSessionTTL  = 30 * time.Minute
	DefaultContextSize = 20
)

// Backend is durable storage for conversation logs. Implementations assign
// the sequence number and return the stored message.
type Backend interface {
	SaveMessage(ctx context.Context, conversationID string, msg core.Message) (core.Message, error)
	GetMessages(ctx context.Context, conversationID string, limit int) ([]core.Message, error)
	ClearConversation(ctx context.Context, conversationID string, keepSystem bool) error
}

// Opts holds parameters for creating a Manager.
type Opts struct {
	Backend     Backend       // optional; nil keeps everything in process
	SessionTTL  time.Duration // idle expiry; 0 means DefaultSessionTTL
	ContextSize int           // messages per context window; 0 means DefaultContextSize
	Logger      *zap.Logger
	Now         func() time.Time
}

// Manager is the session and memory manager. It is safe for concurrent use.
type Manager struct {
	backend     Backend
	ttl         time.Duration
	contextSize int
	logger      *zap.Logger
	now         func() time.Time

	mu       sync.RWMutex
	logs     map[string][]core.Message
	seq      map[string]int64
	sessions map[string]*core.SessionContext
}

// Stats summarizes the cached conversation logs.
type Stats struct {
	TotalMessages  int `json:"total_messages"`
	Conversations  int `json:"conversations"`
	ActiveSessions int `json:"active_sessions"`
}

// New creates a Manager.
func New(opts Opts) *Manager {
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = DefaultSessionTTL
	}
	if opts.ContextSize <= 0 {
		opts.ContextSize = DefaultContextSize
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Manager{
		backend:     opts.Backend,
		ttl:         opts.SessionTTL,
		contextSize: opts.ContextSize,
		logger:      logging.OrNop(opts.Logger),
		now:         opts.Now,
		logs:        make(map[string][]core.Message),
		seq:         make(map[string]int64),
		sessions:    make(map[string]*core.SessionContext),
	}
}

// Durable reports whether a backend is configured.
func (m *Manager) Durable() bool { return m.backend != nil }

// ---- Conversation log ----

// StoreMessage appends msg to the conversation log and returns it with its
// sequence number. A backend failure is returned and nothing is cached, so
// the cache never holds what durable storage would not return.
func (m *Manager) StoreMessage(ctx context.Context, conversationID string, msg core.Message) (core.Message, error) {
	if conversationID == "" {
		return core.Message{}, fmt.Errorf("memory: conversation id is required")
	}
	msg.ConversationID = conversationID
	if msg.Timestamp.IsZero() {
		msg.Timestamp = m.now().UTC()
	}
	if msg.Role == "" {
		msg.Role = core.RoleUser
	}

	if m.backend != nil {
		stored, err := m.backend.SaveMessage(ctx, conversationID, msg)
		if err != nil {
			return core.Message{}, fmt.Errorf("memory: store message: %w", err)
		}
		m.mu.Lock()
		m.insertLocked(conversationID, stored)
		m.mu.Unlock()
		return stored, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq[conversationID]++
	msg.Sequence = m.seq[conversationID]
	m.insertLocked(conversationID, msg)
	return msg, nil
}

// insertLocked places msg in sequence order. Concurrent backend writes can
// return out of order; the caller must hold m.mu. With a backend the cache
// only keeps the most recent contextSize messages, since the backend holds
// the full log.
func (m *Manager) insertLocked(conversationID string, msg core.Message) {
	log := m.logs[conversationID]
	i := len(log)
	for i > 0 && log[i-1].Sequence > msg.Sequence {
		i--
	}
	log = append(log, core.Message{})
	copy(log[i+1:], log[i:])
	log[i] = msg
	if m.backend != nil && len(log) > m.contextSize {
		log = append([]core.Message(nil), log[len(log)-m.contextSize:]...)
	}
	m.logs[conversationID] = log
}

// RetrieveMessages returns at most limit messages of a conversation, oldest
// first, truncated to the most recent. limit <= 0 returns the whole log.
// The backend is consulted first; the cache answers when it fails or has
// nothing.
func (m *Manager) RetrieveMessages(ctx context.Context, conversationID string, limit int) []core.Message {
	if m.backend != nil {
		msgs, err := m.backend.GetMessages(ctx, conversationID, limit)
		if err != nil {
			m.logger.Warn("memory: backend read failed, using cache",
				zap.String("conversation_id", conversationID), zap.Error(err))
		} else if len(msgs) > 0 {
			return core.Tail(msgs, limit)
		}
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	tail := core.Tail(m.logs[conversationID], limit)
	out := make([]core.Message, len(tail))
	copy(out, tail)
	return out
}

// ClearHistory removes a conversation's messages, or only its non-system
// messages when keepSystem is set. Sequence numbering continues after the
// last kept message, or restarts at 1 when nothing is kept, matching the
// durable store.
func (m *Manager) ClearHistory(ctx context.Context, conversationID string, keepSystem bool) error {
	m.mu.Lock()
	var kept []core.Message
	if keepSystem {
		for _, msg := range m.logs[conversationID] {
			if msg.Role == core.RoleSystem {
				kept = append(kept, msg)
			}
		}
	}
	if len(kept) > 0 {
		m.logs[conversationID] = kept
		if m.backend == nil {
			m.seq[conversationID] = kept[len(kept)-1].Sequence
		}
	} else {
		delete(m.logs, conversationID)
		delete(m.seq, conversationID)
	}
	m.mu.Unlock()

	if m.backend != nil {
		if err := m.backend.ClearConversation(ctx, conversationID, keepSystem); err != nil {
			return fmt.Errorf("memory: clear history: %w", err)
		}
	}
	m.logger.Info("cleared history",
		zap.String("conversation_id", conversationID), zap.Bool("keep_system", keepSystem))
	return nil
}

// SearchMessages returns up to limit cached messages whose content contains
// query, case-insensitively. Conversations are scanned in id order.
func (m *Manager) SearchMessages(query string, limit int) []core.Message {
	if limit <= 0 {
		limit = 10
	}
	q := strings.ToLower(query)

	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.logs))
	for id := range m.logs {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var out []core.Message
	for _, id := range ids {
		for _, msg := range m.logs[id] {
			if strings.Contains(strings.ToLower(msg.Content), q) {
				out = append(out, msg)
				if len(out) >= limit {
					return out
				}
			}
		}
	}
	return out
}

// Statistics reports cache totals.
func (m *Manager) Statistics() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st := Stats{Conversations: len(m.logs)}
	for _, log := range m.logs {
		st.TotalMessages += len(log)
	}
	now := m.now()
	for _, s := range m.sessions {
		if !m.expired(s, now) {
			st.ActiveSessions++
		}
	}
	return st
}

// ---- Sessions ----

// CreateSession always creates a new session for userID.
func (m *Manager) CreateSession(userID string, metadata map[string]any) core.SessionContext {
	if metadata == nil {
		metadata = map[string]any{}
	}
	now := m.now()
	s := &core.SessionContext{
		SessionID:  uuid.NewString(),
		UserID:     userID,
		Metadata:   metadata,
		CreatedAt:  now,
		LastActive: now,
	}
	m.mu.Lock()
	m.sessions[s.SessionID] = s
	m.mu.Unlock()
	m.logger.Info("created session", zap.String("session_id", s.SessionID), zap.String("user_id", userID))
	return *s
}

// GetSession looks up a live session. Expired sessions are removed and
// reported as absent.
func (m *Manager) GetSession(sessionID string) (core.SessionContext, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return core.SessionContext{}, false
	}
	if m.expired(s, m.now()) {
		delete(m.sessions, sessionID)
		return core.SessionContext{}, false
	}
	return *s, true
}

// TouchSession marks a session active now. It reports false when the
// session is unknown or expired.
func (m *Manager) TouchSession(sessionID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	now := m.now()
	if !ok || m.expired(s, now) {
		delete(m.sessions, sessionID)
		return false
	}
	s.LastActive = now
	return true
}

// EndSession removes a session. Unknown ids are ignored.
func (m *Manager) EndSession(sessionID string) {
	m.mu.Lock()
	_, ok := m.sessions[sessionID]
	delete(m.sessions, sessionID)
	m.mu.Unlock()
	if ok {
		m.logger.Info("ended session", zap.String("session_id", sessionID))
	}
}

// ActiveSession returns the user's most recently active live session,
// touching it, or creates one when the user has none.
func (m *Manager) ActiveSession(userID string, metadata map[string]any) core.SessionContext {
	m.mu.Lock()
	now := m.now()
	var best *core.SessionContext
	for _, s := range m.sessions {
		if s.UserID != userID || m.expired(s, now) {
			continue
		}
		if best == nil || s.LastActive.After(best.LastActive) {
			best = s
		}
	}
	if best != nil {
		best.LastActive = now
		out := *best
		m.mu.Unlock()
		return out
	}
	m.mu.Unlock()
	return m.CreateSession(userID, metadata)
}

// PruneExpired drops every expired session and returns how many were
// removed.
func (m *Manager) PruneExpired() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	n := 0
	for id, s := range m.sessions {
		if m.expired(s, now) {
			delete(m.sessions, id)
			n++
		}
	}
	if n > 0 {
		m.logger.Debug("pruned expired sessions", zap.Int("count", n))
	}
	return n
}

func (m *Manager) expired(s *core.SessionContext, now time.Time) bool {
	return now.Sub(s.LastActive) >= m.ttl
}

// ---- Context ----

// GetContext returns a fresh context for userID. The given session is used
// when it is live; otherwise a new session is created. The conversation id
// is newly generated and the message window starts empty.
func (m *Manager) GetContext(userID, sessionID string) *core.ConversationContext {
	return &core.ConversationContext{
		ConversationID: uuid.NewString(),
		User:           &core.UserContext{UserID: userID},
		Session:        m.resolveSession(userID, sessionID),
		MaxMessages:    m.contextSize,
	}
}

// ContextFor builds the context for an existing conversation, loading its
// most recent messages as the window.
func (m *Manager) ContextFor(ctx context.Context, conversationID string, user core.UserContext, sessionID string) *core.ConversationContext {
	return &core.ConversationContext{
		ConversationID: conversationID,
		User:           &user,
		Session:        m.resolveSession(user.UserID, sessionID),
		Messages:       m.RetrieveMessages(ctx, conversationID, m.contextSize),
		MaxMessages:    m.contextSize,
	}
}

func (m *Manager) resolveSession(userID, sessionID string) *core.SessionContext {
	if sessionID != "" {
		if s, ok := m.GetSession(sessionID); ok {
			m.TouchSession(sessionID)
			return &s
		}
	}
	s := m.CreateSession(userID, nil)
	return &s
}
