package chat

import (
	"context"
	"fmt"

	"github.com/zulandar/bruno/internal/ability"
	"github.com/zulandar/bruno/internal/store"
)

// TimerNotifier delivers timer notifications to the channel of the
// conversation the timer was set in.
type TimerNotifier struct {
	store   *store.Store
	adapter Adapter
}

// NewTimerNotifier creates a TimerNotifier.
func NewTimerNotifier(st *store.Store, adapter Adapter) (*TimerNotifier, error) {
	if st == nil {
		return nil, fmt.Errorf("chat: store is required")
	}
	if adapter == nil {
		return nil, fmt.Errorf("chat: adapter is required")
	}
	return &TimerNotifier{store: st, adapter: adapter}, nil
}

// NotifyTimer implements ability.Notifier.
func (n *TimerNotifier) NotifyTimer(ctx context.Context, note ability.TimerNotification) error {
	id, err := store.ParseID(note.Timer.ConversationID)
	if err != nil {
		return fmt.Errorf("chat: notify timer %d: %w", note.Timer.ID, err)
	}
	conv, err := n.store.GetConversation(ctx, id)
	if err != nil {
		return fmt.Errorf("chat: notify timer %d: %w", note.Timer.ID, err)
	}
	if conv.ChannelID == "" {
		return fmt.Errorf("chat: notify timer %d: conversation %d has no channel", note.Timer.ID, conv.ID)
	}
	for _, chunk := range SplitMessage(note.Text, MaxMessageLen) {
		if err := n.adapter.Send(ctx, OutboundMessage{ChannelID: conv.ChannelID, Text: chunk}); err != nil {
			return fmt.Errorf("chat: notify timer %d: %w", note.Timer.ID, err)
		}
	}
	return nil
}
