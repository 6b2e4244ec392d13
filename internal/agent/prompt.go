package agent

import (
	"context"

	"github.com/zulandar/bruno/internal/core"
)

// buildPrompt assembles the model input: the system prompt, prior history
// and the current message last. History entries that repeat the current
// user message are dropped, since callers usually persist the message
// before dispatching it.
func (a *Agent) buildPrompt(ctx context.Context, msg core.Message, cc *core.ConversationContext, convID string) []core.Message {
	system := a.cfg.SystemPrompt
	if msg.IsTaskCommand() {
		system = TaskInstruction + system
	}

	history := a.history(ctx, cc, convID)
	prompt := make([]core.Message, 0, len(history)+2)
	prompt = append(prompt, core.Message{Role: core.RoleSystem, Content: system})
	for _, h := range history {
		if h.Role == core.RoleSystem {
			continue
		}
		if h.Role == core.RoleUser && h.Content == msg.Content {
			continue
		}
		prompt = append(prompt, core.Message{Role: h.Role, Content: h.Content})
	}
	prompt = append(prompt, core.Message{Role: core.RoleUser, Content: msg.Content})
	return prompt
}

// history returns the caller's context window when it has one, otherwise
// the most recent stored messages of the conversation.
func (a *Agent) history(ctx context.Context, cc *core.ConversationContext, convID string) []core.Message {
	if cc != nil && len(cc.Messages) > 0 {
		return core.Tail(cc.Recent(), a.cfg.HistoryLimit)
	}
	if a.memory == nil {
		return nil
	}
	return a.memory.RetrieveMessages(ctx, convID, a.cfg.HistoryLimit)
}
