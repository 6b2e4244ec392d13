// Package slack implements the chat Adapter for Slack using Socket Mode.
package slack

import (
	"context"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	slackapi "github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"
	"github.com/zulandar/bruno/internal/chat"
	"github.com/zulandar/bruno/internal/logging"
	"go.uber.org/zap"
)

const (
	// maxRetries is the max number of retries for rate-limited API calls.
	maxRetries = 3
	// baseBackoff is the initial backoff duration for reconnection.
	baseBackoff = 2 * time.Second
	// maxBackoff caps the exponential backoff for reconnection.
	maxBackoff = 2 * time.Minute
	// maxReconnectAttempts limits reconnection retries before giving up.
	maxReconnectAttempts = 10
)

// mentionRe captures user ids from Slack mentions such as <@U123> or
// <@U123|name>.
var mentionRe = regexp.MustCompile(`<@([A-Za-z0-9_]+)(?:\|[^>]*)?>`)

// slackClient abstracts the Slack API methods we use, enabling test mocks.
type slackClient interface {
	AuthTest() (*slackapi.AuthTestResponse, error)
	PostMessage(channelID string, options ...slackapi.MsgOption) (string, string, error)
	GetUserInfo(userID string) (*slackapi.User, error)
}

// socketClient abstracts the Socket Mode client methods we use.
type socketClient interface {
	RunContext(ctx context.Context) error
	EventsChan() chan socketmode.Event
	Ack(req socketmode.Request, payload ...interface{})
}

// realSocketClient wraps *socketmode.Client to implement socketClient.
type realSocketClient struct {
	client *socketmode.Client
}

func (r *realSocketClient) RunContext(ctx context.Context) error { return r.client.RunContext(ctx) }
func (r *realSocketClient) EventsChan() chan socketmode.Event { return r.client.Events }
func (r *realSocketClient) Ack(req socketmode.Request, payload ...interface{}) {
	r.client.Ack(req, payload...)
}

// Adapter implements chat.Adapter for Slack Socket Mode.
type Adapter struct {
	client       slackClient
	socket       socketClient
	appToken     string
	botToken     string
	channelID    string // default channel for messages without explicit channel
	logger       *zap.Logger
	mu           sync.Mutex
	botUserID    string
	connected    bool
	closed       bool
	inbound      chan chat.InboundMessage
	cancelFunc   context.CancelFunc
	wg           sync.WaitGroup
	names        map[string]string // user id -> display name
	baseBackoff  time.Duration
	maxBackoff   time.Duration
	maxReconnect int
}

// AdapterOpts holds parameters for creating a Slack Adapter.
type AdapterOpts struct {
	AppToken  string // xapp-... Slack app-level token for Socket Mode
	BotToken  string // xoxb-... Slack bot token
	ChannelID string // default channel to post to
	Logger    *zap.Logger
	// For testing: inject mock clients instead of the real Slack API.
	Client slackClient
	Socket socketClient
}

// New creates a Slack Adapter.
func New(opts AdapterOpts) (*Adapter, error) {
	if opts.Client == nil && opts.BotToken == "" {
		return nil, fmt.Errorf("slack: bot token is required")
	}
	if opts.Socket == nil && opts.AppToken == "" {
		return nil, fmt.Errorf("slack: app token is required for socket mode")
	}
	return &Adapter{
		client:       opts.Client,
		socket:       opts.Socket,
		appToken:     opts.AppToken,
		botToken:     opts.BotToken,
		channelID:    opts.ChannelID,
		logger:       logging.OrNop(opts.Logger),
		inbound:      make(chan chat.InboundMessage, 100),
		names:        make(map[string]string),
		baseBackoff:  baseBackoff,
		maxBackoff:   maxBackoff,
		maxReconnect: maxReconnectAttempts,
	}, nil
}

// Connect authenticates and prepares the Socket Mode client.
func (a *Adapter) Connect(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return fmt.Errorf("slack: adapter already closed")
	}
	if a.connected {
		return nil
	}

	if a.client == nil {
		api := slackapi.New(a.botToken, slackapi.OptionAppLevelToken(a.appToken))
		a.client = api
		a.socket = &realSocketClient{client: socketmode.New(api)}
	}

	auth, err := a.client.AuthTest()
	if err != nil {
		return fmt.Errorf("slack: auth test: %w", err)
	}
	a.botUserID = auth.UserID
	a.connected = true
	return nil
}

// Listen starts the Socket Mode event pump and returns the inbound
// channel. Must be called after Connect.
func (a *Adapter) Listen(ctx context.Context) (<-chan chat.InboundMessage, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.connected {
		return nil, fmt.Errorf("slack: not connected")
	}

	listenCtx, cancel := context.WithCancel(ctx)
	a.cancelFunc = cancel

	a.wg.Add(2)
	go func() {
		defer a.wg.Done()
		a.runWithReconnect(listenCtx)
	}()
	go func() {
		defer a.wg.Done()
		a.pumpEvents(listenCtx)
	}()

	return a.inbound, nil
}

// Send delivers a message to Slack.
func (a *Adapter) Send(ctx context.Context, msg chat.OutboundMessage) error {
	a.mu.Lock()
	connected := a.connected
	a.mu.Unlock()
	if !connected {
		return fmt.Errorf("slack: not connected")
	}

	channelID := msg.ChannelID
	if channelID == "" {
		channelID = a.channelID
	}
	if channelID == "" {
		return fmt.Errorf("slack: no channel specified")
	}

	options := buildMessageOptions(msg)
	err := retryOnRateLimit(ctx, func() error {
		_, _, postErr := a.client.PostMessage(channelID, options...)
		return postErr
	})
	if err != nil {
		return fmt.Errorf("slack: post message: %w", err)
	}
	return nil
}

// Close stops the event pump and closes the inbound channel.
func (a *Adapter) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	a.connected = false
	if a.cancelFunc != nil {
		a.cancelFunc()
	}
	a.mu.Unlock()

	a.wg.Wait()
	close(a.inbound)
	return nil
}

// BotUserID returns the bot's Slack user ID (available after Connect).
func (a *Adapter) BotUserID() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.botUserID
}

// runWithReconnect runs the Socket Mode client and retries with exponential
// backoff when it fails.
func (a *Adapter) runWithReconnect(ctx context.Context) {
	for attempt := 0; attempt < a.maxReconnect; attempt++ {
		err := a.socket.RunContext(ctx)
		if err == nil || ctx.Err() != nil {
			return
		}

		wait := time.Duration(math.Pow(2, float64(attempt))) * a.baseBackoff
		if wait > a.maxBackoff {
			wait = a.maxBackoff
		}
		a.logger.Warn("slack: socket mode disconnected",
			zap.Int("attempt", attempt+1), zap.Error(err), zap.Duration("retry_in", wait))

		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
	a.logger.Error("slack: socket mode exhausted reconnection attempts", zap.Int("attempts", a.maxReconnect))
}

// pumpEvents reads Socket Mode events and converts them to InboundMessages.
func (a *Adapter) pumpEvents(ctx context.Context) {
	events := a.socket.EventsChan()
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-events:
			if !ok {
				return
			}
			if msg, ok := a.convertEvent(evt); ok {
				select {
				case a.inbound <- msg:
				case <-ctx.Done():
					return
				}
			}
		}
	}
}

// convertEvent acknowledges Events API envelopes and converts message
// events. Other event types are logged.
func (a *Adapter) convertEvent(evt socketmode.Event) (chat.InboundMessage, bool) {
	switch evt.Type {
	case socketmode.EventTypeEventsAPI:
		eventsAPIEvent, ok := evt.Data.(slackevents.EventsAPIEvent)
		if !ok {
			return chat.InboundMessage{}, false
		}
		if evt.Request != nil {
			a.socket.Ack(*evt.Request)
		}
		if eventsAPIEvent.Type != slackevents.CallbackEvent {
			return chat.InboundMessage{}, false
		}
		if ev, ok := eventsAPIEvent.InnerEvent.Data.(*slackevents.MessageEvent); ok {
			return a.convertMessage(ev)
		}
	case socketmode.EventTypeConnected:
		a.logger.Info("slack: connected to Socket Mode")
	case socketmode.EventTypeConnectionError:
		a.logger.Warn("slack: connection error", zap.Any("data", evt.Data))
	}
	return chat.InboundMessage{}, false
}

// convertMessage converts a Slack message event. App mentions also arrive
// as message events in subscribed channels, so they are not handled
// separately.
func (a *Adapter) convertMessage(ev *slackevents.MessageEvent) (chat.InboundMessage, bool) {
	if ev.User == "" || ev.User == a.BotUserID() {
		return chat.InboundMessage{}, false
	}
	// Bot messages and subtypes (edits, deletes, joins).
	if ev.BotID != "" || ev.SubType != "" {
		return chat.InboundMessage{}, false
	}

	return chat.InboundMessage{
		Platform:  "slack",
		ChannelID: ev.Channel,
		ThreadID:  ev.ThreadTimeStamp,
		MessageID: ev.TimeStamp,
		UserID:    ev.User,
		UserName:  a.resolveUserName(ev.User),
		Text:      ev.Text,
		IsDirect:  ev.ChannelType == "im",
		Mentions:  parseMentions(ev.Text),
		Timestamp: parseSlackTimestamp(ev.TimeStamp),
	}, true
}

// resolveUserName looks up and caches a user's display name. Falls back to
// the user ID.
func (a *Adapter) resolveUserName(userID string) string {
	a.mu.Lock()
	name, ok := a.names[userID]
	a.mu.Unlock()
	if ok {
		return name
	}

	name = userID
	if user, err := a.client.GetUserInfo(userID); err == nil {
		switch {
		case user.Profile.DisplayName != "":
			name = user.Profile.DisplayName
		case user.RealName != "":
			name = user.RealName
		}
	}

	a.mu.Lock()
	a.names[userID] = name
	a.mu.Unlock()
	return name
}

// buildMessageOptions converts an OutboundMessage to Slack message options.
func buildMessageOptions(msg chat.OutboundMessage) []slackapi.MsgOption {
	options := []slackapi.MsgOption{slackapi.MsgOptionText(msg.Text, false)}
	if msg.ThreadID != "" {
		options = append(options, slackapi.MsgOptionTS(msg.ThreadID))
	}
	return options
}

func parseMentions(text string) []string {
	var ids []string
	for _, m := range mentionRe.FindAllStringSubmatch(text, -1) {
		ids = append(ids, m[1])
	}
	return ids
}

// retryOnRateLimit calls fn and retries with backoff on Slack rate limit errors.
// It respects context cancellation and the RetryAfter duration from Slack.
func retryOnRateLimit(ctx context.Context, fn func() error) error {
	for attempt := 0; ; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}

		var rle *slackapi.RateLimitedError
		if !errors.As(err, &rle) || attempt == maxRetries {
			return err
		}

		wait := rle.RetryAfter
		if wait <= 0 {
			wait = time.Duration(math.Pow(2, float64(attempt))) * time.Second
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// parseSlackTimestamp converts a Slack timestamp (e.g., "1234567890.123456")
// to a time.Time.
func parseSlackTimestamp(ts string) time.Time {
	sec, err := strconv.ParseInt(strings.SplitN(ts, ".", 2)[0], 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.Unix(sec, 0)
}
