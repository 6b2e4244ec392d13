package chat

import (
	"regexp"
	"strings"
	"sync"
	"time"
)

// mentionRe matches Discord (<@ID>, <@!ID>) and Slack (<@U123>) mentions.
var mentionRe = regexp.MustCompile(`<@!?[A-Za-z0-9_]+(?:\|[^>]*)?>`)

// taskRe flags messages that ask for a timer, reminder or note.
var taskRe = regexp.MustCompile(`(?i)\b(timer|remind(er)?|note)s?\b`)

// IsTaskCommand reports whether text reads like a timer, reminder or note
// command.
func IsTaskCommand(text string) bool {
	return taskRe.MatchString(text)
}

// Trigger decides whether the bot answers a message.
type Trigger struct {
	Word      string // case-insensitive trigger word, e.g. "bruno"
	BotUserID string
}

// ShouldRespond reports whether msg is addressed to the bot: a direct
// message, a message containing the trigger word, or one mentioning the
// bot. Messages from bots, including the bot itself, are ignored.
func (t Trigger) ShouldRespond(msg InboundMessage) bool {
	if msg.IsBot || (t.BotUserID != "" && msg.UserID == t.BotUserID) {
		return false
	}
	if msg.IsDirect || msg.Mentioned(t.BotUserID) {
		return true
	}
	if t.BotUserID != "" && strings.Contains(msg.Text, "<@"+t.BotUserID+">") {
		return true
	}
	return t.Word != "" && t.wordRe().MatchString(msg.Text)
}

// wordRe matches the trigger word case-insensitively. Matching on the
// original text keeps byte offsets valid for strings whose lowercase form
// has a different length.
func (t Trigger) wordRe() *regexp.Regexp {
	return regexp.MustCompile("(?i)" + regexp.QuoteMeta(t.Word))
}

// Clean strips mentions and the first occurrence of the trigger word, then
// tidies the punctuation left behind ("Bruno, what..." becomes "what...").
func (t Trigger) Clean(text string) string {
	text = mentionRe.ReplaceAllString(text, "")
	if t.Word != "" {
		if loc := t.wordRe().FindStringIndex(text); loc != nil {
			text = text[:loc[0]] + text[loc[1]:]
		}
	}
	text = strings.Join(strings.Fields(text), " ")
	return strings.TrimLeft(text, ",:;!. ")
}

// Cooldown is a per-user rate limiter: a user may trigger the bot at most
// once per interval. Entries older than the interval are swept at most once
// per interval, so the map holds only recently active users.
type Cooldown struct {
	interval time.Duration
	now      func() time.Time

	mu        sync.Mutex
	last      map[string]time.Time
	lastSweep time.Time
}

// NewCooldown creates a Cooldown. A zero interval allows everything.
func NewCooldown(interval time.Duration, now func() time.Time) *Cooldown {
	if now == nil {
		now = time.Now
	}
	return &Cooldown{interval: interval, now: now, last: make(map[string]time.Time)}
}

// Allow records an attempt by userID and reports whether it is outside the
// cooldown window.
func (c *Cooldown) Allow(userID string) bool {
	if c.interval <= 0 {
		return true
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	if now.Sub(c.lastSweep) >= c.interval {
		c.sweepLocked(now)
	}
	if last, ok := c.last[userID]; ok && now.Sub(last) < c.interval {
		return false
	}
	c.last[userID] = now
	return true
}

func (c *Cooldown) sweepLocked(now time.Time) {
	for id, last := range c.last {
		if now.Sub(last) >= c.interval {
			delete(c.last, id)
		}
	}
	c.lastSweep = now
}

// Len reports how many users are currently tracked.
func (c *Cooldown) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.last)
}
