package chat

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/zulandar/bruno/internal/logging"
	"go.uber.org/zap"
)

// typingInterval is how often the typing indicator is refreshed; Discord
// clears it after about ten seconds.
const typingInterval = 8 * time.Second

// Replier answers one turn. *Service satisfies it.
type Replier interface {
	Reply(ctx context.Context, req Request) (Reply, error)
}

// BotOpts holds parameters for creating a Bot.
type BotOpts struct {
	Adapter       Adapter
	Replier       Replier
	TriggerWord   string
	Cooldown      time.Duration // per-user; 0 disables
	MaxMessageLen int           // 0 means MaxMessageLen
	Logger        *zap.Logger
	Now           func() time.Time
}

// Bot pumps inbound platform messages to the conversation service and
// sends the replies back. Each message is handled in its own goroutine.
type Bot struct {
	adapter  Adapter
	replier  Replier
	word     string
	cooldown *Cooldown
	maxLen   int
	logger   *zap.Logger

	wg sync.WaitGroup
}

// NewBot creates a Bot.
func NewBot(opts BotOpts) (*Bot, error) {
	if opts.Adapter == nil {
		return nil, fmt.Errorf("chat: adapter is required")
	}
	if opts.Replier == nil {
		return nil, fmt.Errorf("chat: replier is required")
	}
	if opts.MaxMessageLen <= 0 || opts.MaxMessageLen > MaxMessageLen {
		opts.MaxMessageLen = MaxMessageLen
	}
	return &Bot{
		adapter:  opts.Adapter,
		replier:  opts.Replier,
		word:     opts.TriggerWord,
		cooldown: NewCooldown(opts.Cooldown, opts.Now),
		maxLen:   opts.MaxMessageLen,
		logger:   logging.OrNop(opts.Logger),
	}, nil
}

// Run connects the adapter and handles inbound messages until ctx is
// cancelled or the adapter closes its channel. In-flight messages are
// finished before Run returns.
func (b *Bot) Run(ctx context.Context) error {
	if err := b.adapter.Connect(ctx); err != nil {
		return fmt.Errorf("chat: connect: %w", err)
	}
	inbound, err := b.adapter.Listen(ctx)
	if err != nil {
		b.adapter.Close()
		return fmt.Errorf("chat: listen: %w", err)
	}
	b.logger.Info("bot online")

	defer func() {
		b.wg.Wait()
		if err := b.adapter.Close(); err != nil {
			b.logger.Warn("close adapter", zap.Error(err))
		}
		b.logger.Info("bot stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-inbound:
			if !ok {
				b.logger.Info("inbound channel closed")
				return nil
			}
			b.wg.Add(1)
			go func() {
				defer b.wg.Done()
				b.Handle(ctx, msg)
			}()
		}
	}
}

// Handle processes a single inbound message.
func (b *Bot) Handle(ctx context.Context, msg InboundMessage) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("panic handling message",
				zap.Any("panic", r),
				zap.String("channel_id", msg.ChannelID),
				zap.Stack("stack"),
			)
		}
	}()

	trig := Trigger{Word: b.word, BotUserID: b.botUserID()}
	if !trig.ShouldRespond(msg) {
		return
	}
	if !b.cooldown.Allow(msg.UserID) {
		b.logger.Debug("cooldown", zap.String("user_id", msg.UserID))
		return
	}
	text := trig.Clean(msg.Text)
	if text == "" {
		return
	}

	log := b.logger.With(
		zap.String("platform", msg.Platform),
		zap.String("channel_id", msg.ChannelID),
		zap.String("user", msg.UserName),
	)
	log.Debug("message received", zap.String("text", truncate(text, 80)))

	reply, err := b.reply(ctx, msg.ChannelID, Request{
		Platform:  msg.Platform,
		UserID:    msg.UserID,
		UserName:  msg.UserName,
		ChannelID: msg.ChannelID,
		Text:      text,
	})
	if err != nil {
		log.Error("reply failed", zap.Error(err))
		reply.Response.Text = "Sorry, I couldn't save that conversation. Please try again."
	}

	for _, chunk := range SplitMessage(reply.Response.Text, b.maxLen) {
		if err := b.adapter.Send(ctx, OutboundMessage{
			ChannelID: msg.ChannelID,
			ThreadID:  msg.ThreadID,
			Text:      chunk,
		}); err != nil {
			log.Error("send reply", zap.Error(err))
			return
		}
	}
}

// reply asks the replier for an answer while the typing indicator is shown.
func (b *Bot) reply(ctx context.Context, channelID string, req Request) (Reply, error) {
	stopTyping := b.startTyping(ctx, channelID)
	defer stopTyping()
	return b.replier.Reply(ctx, req)
}

func (b *Bot) botUserID() string {
	if bui, ok := b.adapter.(BotUserIDer); ok {
		return bui.BotUserID()
	}
	return ""
}

// startTyping shows the typing indicator until the returned func is called.
func (b *Bot) startTyping(ctx context.Context, channelID string) func() {
	typer, ok := b.adapter.(Typer)
	if !ok {
		return func() {}
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(typingInterval)
		defer ticker.Stop()
		for {
			if err := typer.Typing(ctx, channelID); err != nil && ctx.Err() == nil {
				b.logger.Debug("typing indicator", zap.Error(err))
			}
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
	return func() {
		cancel()
		<-done
	}
}

// truncate returns s truncated to at most maxLen bytes on a rune boundary,
// with "..." appended if needed.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:runeCut(s, maxLen)] + "..."
}
