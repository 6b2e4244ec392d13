// Package discord implements the chat Adapter for Discord using the Gateway WebSocket.
package discord

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/zulandar/bruno/internal/chat"
	"github.com/zulandar/bruno/internal/logging"
	"go.uber.org/zap"
)

const (
	// maxRetries is the max number of retries for rate-limited API calls.
	maxRetries = 3
	// baseBackoff is the initial backoff for rate-limit retries.
	baseBackoff = 2 * time.Second
	// maxBackoff caps the exponential backoff.
	maxBackoff = 2 * time.Minute
)

// session abstracts the discordgo.Session methods we use, enabling test mocks.
type session interface {
	Open() error
	Close() error
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelTyping(channelID string, options ...discordgo.RequestOption) error
	AddHandler(handler interface{}) func()
}

// Adapter implements chat.Adapter for Discord via the Gateway WebSocket.
type Adapter struct {
	sess          session
	botToken      string
	guildID       string // when set, guild messages from other servers are ignored
	logger        *zap.Logger
	mu            sync.Mutex
	botUserID     string
	connected     bool
	closed        bool
	inbound       chan chat.InboundMessage
	removeHandler func()
	baseBackoff   time.Duration
	maxBackoff    time.Duration
}

// AdapterOpts holds parameters for creating a Discord Adapter.
type AdapterOpts struct {
	BotToken string // Discord bot token
	GuildID  string // optional server restriction
	Logger   *zap.Logger
	// For testing: inject a mock session instead of the real Discord API.
	Session session
}

// New creates a Discord Adapter.
func New(opts AdapterOpts) (*Adapter, error) {
	if opts.Session == nil && opts.BotToken == "" {
		return nil, fmt.Errorf("discord: bot token is required")
	}
	return &Adapter{
		sess:        opts.Session,
		botToken:    opts.BotToken,
		guildID:     opts.GuildID,
		logger:      logging.OrNop(opts.Logger),
		inbound:     make(chan chat.InboundMessage, 100),
		baseBackoff: baseBackoff,
		maxBackoff:  maxBackoff,
	}, nil
}

// Connect establishes the Discord Gateway WebSocket connection.
func (a *Adapter) Connect(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return fmt.Errorf("discord: adapter already closed")
	}
	if a.connected {
		return nil
	}

	if a.sess == nil {
		dg, err := discordgo.New("Bot " + a.botToken)
		if err != nil {
			return fmt.Errorf("discord: create session: %w", err)
		}
		dg.Identify.Intents = discordgo.IntentsGuildMessages |
			discordgo.IntentsDirectMessages |
			discordgo.IntentsMessageContent
		a.sess = dg
	}

	// Ready carries the bot's own user id on connect and reconnect.
	a.sess.AddHandler(func(_ *discordgo.Session, r *discordgo.Ready) {
		a.mu.Lock()
		a.botUserID = r.User.ID
		a.mu.Unlock()
		a.logger.Info("discord: connected", zap.String("user", r.User.Username), zap.String("id", r.User.ID))
	})
	a.sess.AddHandler(func(_ *discordgo.Session, _ *discordgo.Disconnect) {
		a.logger.Warn("discord: gateway disconnected, discordgo will auto-reconnect")
	})

	if err := a.sess.Open(); err != nil {
		return fmt.Errorf("discord: open gateway: %w", err)
	}
	a.connected = true
	return nil
}

// Listen returns a channel of inbound messages from Discord. Must be called
// after Connect.
func (a *Adapter) Listen(ctx context.Context) (<-chan chat.InboundMessage, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.connected {
		return nil, fmt.Errorf("discord: not connected")
	}
	a.removeHandler = a.sess.AddHandler(func(_ *discordgo.Session, m *discordgo.MessageCreate) {
		a.handleMessage(m)
	})
	return a.inbound, nil
}

// Send delivers a message to Discord.
func (a *Adapter) Send(ctx context.Context, msg chat.OutboundMessage) error {
	if err := a.ready(); err != nil {
		return err
	}
	// In Discord, threads are channels.
	channelID := msg.ThreadID
	if channelID == "" {
		channelID = msg.ChannelID
	}
	if channelID == "" {
		return fmt.Errorf("discord: no channel specified")
	}

	err := a.retryOnRateLimit(ctx, func() error {
		_, sendErr := a.sess.ChannelMessageSendComplex(channelID, &discordgo.MessageSend{Content: msg.Text})
		return sendErr
	})
	if err != nil {
		return fmt.Errorf("discord: send message: %w", err)
	}
	return nil
}

// Typing shows the typing indicator in channelID for about ten seconds.
func (a *Adapter) Typing(ctx context.Context, channelID string) error {
	if err := a.ready(); err != nil {
		return err
	}
	if err := a.sess.ChannelTyping(channelID); err != nil {
		return fmt.Errorf("discord: typing: %w", err)
	}
	return nil
}

// Close gracefully shuts down the adapter connection.
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil
	}
	a.closed = true
	a.connected = false
	if a.removeHandler != nil {
		a.removeHandler()
	}
	close(a.inbound)
	if a.sess != nil {
		return a.sess.Close()
	}
	return nil
}

// BotUserID returns the bot's Discord user ID (available after Ready).
func (a *Adapter) BotUserID() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.botUserID
}

// SetBotUserID sets the bot user ID.
func (a *Adapter) SetBotUserID(id string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.botUserID = id
}

func (a *Adapter) ready() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.connected {
		return fmt.Errorf("discord: not connected")
	}
	return nil
}

// handleMessage converts a Discord message event to an InboundMessage.
func (a *Adapter) handleMessage(m *discordgo.MessageCreate) {
	if m.Author == nil {
		return
	}

	a.mu.Lock()
	botID := a.botUserID
	closed := a.closed
	a.mu.Unlock()
	if closed || m.Author.ID == botID || m.Author.Bot {
		return
	}
	if a.guildID != "" && m.GuildID != "" && m.GuildID != a.guildID {
		return
	}

	mentions := make([]string, 0, len(m.Mentions))
	for _, u := range m.Mentions {
		mentions = append(mentions, u.ID)
	}
	ts, _ := discordgo.SnowflakeTimestamp(m.ID)

	a.inbound <- chat.InboundMessage{
		Platform:  "discord",
		ChannelID: m.ChannelID,
		MessageID: m.ID,
		UserID:    m.Author.ID,
		UserName:  m.Author.Username,
		Text:      m.Content,
		IsDirect:  m.GuildID == "",
		Mentions:  mentions,
		Timestamp: ts,
	}
}

// retryOnRateLimit calls fn and retries with exponential backoff on Discord
// rate limit errors. It respects context cancellation.
func (a *Adapter) retryOnRateLimit(ctx context.Context, fn func() error) error {
	for attempt := 0; ; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}

		var restErr *discordgo.RESTError
		if !errors.As(err, &restErr) || restErr.Response == nil || restErr.Response.StatusCode != http.StatusTooManyRequests {
			return err
		}
		if attempt == maxRetries {
			return err
		}

		wait := time.Duration(math.Pow(2, float64(attempt))) * a.baseBackoff
		if wait > a.maxBackoff {
			wait = a.maxBackoff
		}
		a.logger.Warn("discord: rate limited",
			zap.Int("attempt", attempt+1), zap.Int("max", maxRetries), zap.Duration("retry_in", wait))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}
