package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/zulandar/bruno/internal/core"
	"github.com/zulandar/bruno/internal/keylock"
	"github.com/zulandar/bruno/internal/logging"
	"github.com/zulandar/bruno/internal/memory"
	"github.com/zulandar/bruno/internal/models"
	"github.com/zulandar/bruno/internal/store"
	"go.uber.org/zap"
)

// defaultPlatform is assumed for requests that do not name one.
const defaultPlatform = "api"

// ErrEmptyMessage is returned for requests with no text.
var ErrEmptyMessage = errors.New("chat: message is empty")

// ErrForbidden is returned when a request names a conversation owned by
// another user.
var ErrForbidden = errors.New("chat: conversation belongs to another user")

// Dispatcher answers one message. *agent.Agent satisfies it.
type Dispatcher interface {
	ProcessMessage(ctx context.Context, msg core.Message, cc *core.ConversationContext) core.AssistantResponse
	ProcessMessageStream(ctx context.Context, msg core.Message, cc *core.ConversationContext, emit func(string) error) core.AssistantResponse
}

// Request is one user turn as seen by the conversation service.
type Request struct {
	Platform       string // "discord", "slack", "api", "cli"
	UserID         string // platform user id
	UserName       string
	ChannelID      string // where replies and timer notifications go
	ConversationID string // optional; continue this stored conversation
	Text           string
}

// Reply is the outcome of one turn.
type Reply struct {
	ConversationID string
	UserID         string // stored user id
	SessionID      string
	Response       core.AssistantResponse
}

// ServiceOpts holds parameters for creating a Service.
type ServiceOpts struct {
	Store      *store.Store
	Memory     *memory.Manager
	Dispatcher Dispatcher
	Logger     *zap.Logger
}

// Service runs a turn end to end: it resolves the user and conversation,
// persists the user message, asks the dispatcher and persists the reply.
// Turns of one conversation are serialized so the log keeps arrival order.
type Service struct {
	store      *store.Store
	memory     *memory.Manager
	dispatcher Dispatcher
	logger     *zap.Logger

	locks keylock.Map[string]
}

// NewService creates a Service.
func NewService(opts ServiceOpts) (*Service, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("chat: store is required")
	}
	if opts.Memory == nil {
		return nil, fmt.Errorf("chat: memory manager is required")
	}
	if opts.Dispatcher == nil {
		return nil, fmt.Errorf("chat: dispatcher is required")
	}
	return &Service{
		store:      opts.Store,
		memory:     opts.Memory,
		dispatcher: opts.Dispatcher,
		logger:     logging.OrNop(opts.Logger),
	}, nil
}

// turn is a prepared request: the stored user message and its context.
type turn struct {
	msg     core.Message
	cc      *core.ConversationContext
	reply   Reply
	release func()
}

// Reply answers req. Persistence failures are returned; model and ability
// failures come back inside Reply.Response.
func (s *Service) Reply(ctx context.Context, req Request) (Reply, error) {
	t, err := s.prepare(ctx, req)
	if err != nil {
		return Reply{}, err
	}
	defer t.release()

	t.reply.Response = s.dispatcher.ProcessMessage(ctx, t.msg, t.cc)
	if err := s.persistReply(ctx, t); err != nil {
		return t.reply, err
	}
	return t.reply, nil
}

// ReplyStream is Reply with incremental delivery through emit. The reply is
// persisted only when the stream completes.
func (s *Service) ReplyStream(ctx context.Context, req Request, emit func(string) error) (Reply, error) {
	t, err := s.prepare(ctx, req)
	if err != nil {
		return Reply{}, err
	}
	defer t.release()

	t.reply.Response = s.dispatcher.ProcessMessageStream(ctx, t.msg, t.cc, emit)
	if err := s.persistReply(ctx, t); err != nil {
		return t.reply, err
	}
	return t.reply, nil
}

func (s *Service) prepare(ctx context.Context, req Request) (*turn, error) {
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return nil, ErrEmptyMessage
	}
	platform := req.Platform
	if platform == "" {
		platform = defaultPlatform
	}
	name := req.UserName
	if name == "" {
		name = req.UserID
	}

	username := platformUser(platform, req.UserID)
	releaseUser := s.locks.Lock("user:" + username)
	user, err := s.store.CreateOrGetUser(ctx, username, name)
	releaseUser()
	if err != nil {
		return nil, err
	}
	conv, err := s.conversation(ctx, user, req, text)
	if err != nil {
		return nil, err
	}

	convID := store.FormatID(conv.ID)
	userID := store.FormatID(user.ID)
	release := s.locks.Lock("conversation:" + convID)

	sess := s.memory.ActiveSession(userID, map[string]any{"platform": platform, "channel_id": req.ChannelID})

	msg := core.NewMessage(core.RoleUser, text)
	if IsTaskCommand(text) {
		msg.Metadata = map[string]any{core.MetaTaskCommand: true}
	}
	stored, err := s.memory.StoreMessage(ctx, convID, msg)
	if err != nil {
		release()
		return nil, err
	}

	cc := s.memory.ContextFor(ctx, convID, core.UserContext{UserID: userID, UserName: name}, sess.SessionID)
	return &turn{
		msg: stored,
		cc:  cc,
		reply: Reply{
			ConversationID: convID,
			UserID:         userID,
			SessionID:      cc.Session.SessionID,
		},
		release: release,
	}, nil
}

// conversation returns the requested conversation, or the user's latest
// one in the channel, creating it when there is none. Resolution is
// serialized per user and channel so concurrent first messages share one
// conversation.
func (s *Service) conversation(ctx context.Context, user *models.User, req Request, text string) (*models.Conversation, error) {
	if req.ConversationID != "" {
		id, err := store.ParseID(req.ConversationID)
		if err != nil {
			return nil, err
		}
		conv, err := s.store.GetConversation(ctx, id)
		if err != nil {
			return nil, err
		}
		if conv.UserID != user.ID {
			return nil, ErrForbidden
		}
		return conv, nil
	}

	defer s.locks.Lock(fmt.Sprintf("resolve:%d:%s", user.ID, req.ChannelID))()

	conv, err := s.store.LatestConversation(ctx, user.ID, req.ChannelID)
	if err == nil {
		return conv, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	return s.store.CreateConversation(ctx, user.ID, text, req.ChannelID)
}

// History returns up to limit messages of a conversation, oldest first.
// limit <= 0 returns the whole log. The conversation must belong to the
// platform user; otherwise ErrForbidden is returned.
func (s *Service) History(ctx context.Context, platform, userID, conversationID string, limit int) ([]core.Message, error) {
	conv, err := s.owned(ctx, platform, userID, conversationID)
	if err != nil {
		return nil, err
	}
	return s.memory.RetrieveMessages(ctx, store.FormatID(conv.ID), limit), nil
}

// ClearHistory removes a conversation's messages, keeping system messages
// when keepSystem is set. Ownership is checked as in History.
func (s *Service) ClearHistory(ctx context.Context, platform, userID, conversationID string, keepSystem bool) error {
	conv, err := s.owned(ctx, platform, userID, conversationID)
	if err != nil {
		return err
	}
	convID := store.FormatID(conv.ID)
	defer s.locks.Lock("conversation:" + convID)()
	return s.memory.ClearHistory(ctx, convID, keepSystem)
}

// owned loads a conversation and checks that the platform user owns it. A
// user that was never seen owns nothing.
func (s *Service) owned(ctx context.Context, platform, userID, conversationID string) (*models.Conversation, error) {
	id, err := store.ParseID(conversationID)
	if err != nil {
		return nil, err
	}
	conv, err := s.store.GetConversation(ctx, id)
	if err != nil {
		return nil, err
	}
	if platform == "" {
		platform = defaultPlatform
	}
	user, err := s.store.GetUserByUsername(ctx, platformUser(platform, userID))
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrForbidden
	}
	if err != nil {
		return nil, err
	}
	if conv.UserID != user.ID {
		return nil, ErrForbidden
	}
	return conv, nil
}

// platformUser is the stored username of a platform user.
func platformUser(platform, userID string) string {
	return platform + ":" + userID
}

func (s *Service) persistReply(ctx context.Context, t *turn) error {
	resp := t.reply.Response
	if !resp.Success || resp.Text == "" {
		return nil
	}
	msg := core.NewMessage(core.RoleAssistant, resp.Text)
	if len(resp.Actions) > 0 {
		msg.Metadata = map[string]any{core.MetaIntent: resp.Actions[0].ActionType}
	}
	if _, err := s.memory.StoreMessage(ctx, t.reply.ConversationID, msg); err != nil {
		s.logger.Error("persist reply failed",
			zap.String("conversation_id", t.reply.ConversationID),
			zap.Error(err),
		)
		return err
	}
	return nil
}
