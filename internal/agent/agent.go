// Package agent is the dispatcher at the center of Bruno: it offers each
// incoming message to the registered abilities in priority order and falls
// back to the model backend when none of them claims it.
package agent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/zulandar/bruno/internal/ability"
	"github.com/zulandar/bruno/internal/config"
	"github.com/zulandar/bruno/internal/core"
	"github.com/zulandar/bruno/internal/llm"
	"github.com/zulandar/bruno/internal/logging"
	"github.com/zulandar/bruno/internal/memory"
	"go.uber.org/zap"
)

// Version is reported by Metadata.
const Version = "1.0.0"

// DefaultConversationID is used when a message carries no conversation id.
const DefaultConversationID = "default"

// Apology is the text returned when a turn fails.
const Apology = "I apologize, but I encountered an error processing your message. Please try again."

// TaskInstruction is prepended to the system prompt for messages flagged as
// task commands.
const TaskInstruction = "**CRITICAL INSTRUCTION: This is a TASK COMMAND (timer/reminder/note). " +
	"You MUST respond with EXACTLY ONE SHORT sentence confirming the task. " +
	"Example: 'Timer set for 4 minutes.' or '4-minute timer started.' " +
	"DO NOT add any conversational text, questions, or additional commentary. " +
	"JUST confirm the task action in 5-10 words maximum.**\n\n"

// Response metadata keys.
const (
	MetaModel      = "model"
	MetaTokensUsed = "tokens_used"
)

// Opts holds parameters for creating an Agent.
type Opts struct {
	Config config.AgentConfig
	LLM    llm.Client
	Memory *memory.Manager // optional; supplies history when the caller passes none
	// Abilities are registered on Initialize, in priority order.
	Abilities []ability.Ability
	Logger    *zap.Logger
}

// Agent dispatches messages to abilities or the model. It is safe for
// concurrent use.
type Agent struct {
	cfg        config.AgentConfig
	llm        llm.Client
	memory     *memory.Manager
	configured []ability.Ability
	logger     *zap.Logger

	mu          sync.RWMutex
	initialized bool
	order       []string
	abilities   map[string]ability.Ability
}

// New creates an Agent. Abilities are not registered until Initialize or
// the first ProcessMessage call.
func New(opts Opts) (*Agent, error) {
	if opts.LLM == nil {
		return nil, fmt.Errorf("agent: llm client is required")
	}
	for i, a := range opts.Abilities {
		if a == nil {
			return nil, fmt.Errorf("agent: ability %d is nil", i)
		}
	}
	if opts.Config.SystemPrompt == "" {
		opts.Config.SystemPrompt = config.DefaultSystemPrompt
	}
	return &Agent{
		cfg:        opts.Config,
		llm:        opts.LLM,
		memory:     opts.Memory,
		configured: opts.Abilities,
		logger:     logging.OrNop(opts.Logger),
		abilities:  make(map[string]ability.Ability),
	}, nil
}

// ---- Lifecycle ----

// Initialize registers the configured abilities. Calling it again is a
// no-op.
func (a *Agent) Initialize() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.initialized {
		return
	}
	for _, ab := range a.configured {
		if _, ok := a.abilities[ab.Name()]; !ok {
			a.registerLocked(ab)
		}
	}
	a.initialized = true
	a.logger.Info("agent initialized", zap.String("agent", a.cfg.Name), zap.Strings("abilities", a.order))
}

// Initialized reports whether Initialize has run since the last Shutdown.
func (a *Agent) Initialized() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.initialized
}

// Shutdown clears the ability registry and returns the agent to the
// uninitialized state.
func (a *Agent) Shutdown() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.order = nil
	a.abilities = make(map[string]ability.Ability)
	a.initialized = false
}

// RegisterAbility adds ab at the lowest priority. An ability with the same
// name is replaced in place.
func (a *Agent) RegisterAbility(ab ability.Ability) error {
	if ab == nil {
		return errors.New("agent: ability is nil")
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.registerLocked(ab)
	return nil
}

func (a *Agent) registerLocked(ab ability.Ability) {
	name := ab.Name()
	if _, ok := a.abilities[name]; !ok {
		a.order = append(a.order, name)
	}
	a.abilities[name] = ab
}

// UnregisterAbility removes the named ability and reports whether it was
// registered.
func (a *Agent) UnregisterAbility(name string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.abilities[name]; !ok {
		return false
	}
	delete(a.abilities, name)
	for i, n := range a.order {
		if n == name {
			a.order = append(a.order[:i:i], a.order[i+1:]...)
			break
		}
	}
	return true
}

// Abilities returns the registered ability names in priority order.
func (a *Agent) Abilities() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return append([]string(nil), a.order...)
}

func (a *Agent) snapshot() []ability.Ability {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]ability.Ability, 0, len(a.order))
	for _, n := range a.order {
		out = append(out, a.abilities[n])
	}
	return out
}

// ---- Dispatch ----

// ProcessMessage answers msg. cc is optional; it supplies the user id that
// enables abilities and, when it carries messages, the history for the
// prompt. ProcessMessage never returns an error: failures become a
// response with Success false and the apology text.
func (a *Agent) ProcessMessage(ctx context.Context, msg core.Message, cc *core.ConversationContext) (resp core.AssistantResponse) {
	a.Initialize()
	convID := conversationID(msg, cc)
	userID := cc.UserID()

	defer func() {
		if r := recover(); r != nil {
			resp = a.failure(convID, userID, fmt.Errorf("agent: panic: %v", r))
		}
	}()

	if res, name, ok := a.runAbilities(ctx, msg.Content, userID, convID); ok {
		return abilityResponse(name, res)
	}

	prompt := a.buildPrompt(ctx, msg, cc, convID)
	text, err := a.llm.Generate(ctx, prompt, a.options())
	if err != nil {
		return a.failure(convID, userID, err)
	}
	return core.AssistantResponse{
		Text:     text,
		Success:  true,
		Metadata: a.modelMetadata(text),
	}
}

// ProcessMessageStream is ProcessMessage with incremental delivery: emit is
// called with each fragment as it arrives. An ability reply is emitted as a
// single fragment. If emit returns an error the stream is closed and the
// turn fails with that error; nothing is retried.
func (a *Agent) ProcessMessageStream(ctx context.Context, msg core.Message, cc *core.ConversationContext, emit func(string) error) (resp core.AssistantResponse) {
	a.Initialize()
	convID := conversationID(msg, cc)
	userID := cc.UserID()

	defer func() {
		if r := recover(); r != nil {
			resp = a.failure(convID, userID, fmt.Errorf("agent: panic: %v", r))
		}
	}()

	if res, name, ok := a.runAbilities(ctx, msg.Content, userID, convID); ok {
		if err := emit(res.Message); err != nil {
			return a.failure(convID, userID, err)
		}
		return abilityResponse(name, res)
	}

	prompt := a.buildPrompt(ctx, msg, cc, convID)
	stream, err := a.llm.Stream(ctx, prompt, a.options())
	if err != nil {
		return a.failure(convID, userID, err)
	}
	defer stream.Close()

	text, err := drain(stream, emit)
	if err != nil {
		return a.failure(convID, userID, err)
	}
	return core.AssistantResponse{
		Text:     text,
		Success:  true,
		Metadata: a.modelMetadata(text),
	}
}

// runAbilities offers text to each ability in priority order. Abilities
// only run for identified users. An ability error is logged and treated as
// a decline.
func (a *Agent) runAbilities(ctx context.Context, text, userID, convID string) (ability.Result, string, bool) {
	if userID == "" {
		return ability.Declined, "", false
	}
	req := ability.Request{Command: text, UserID: userID, ConversationID: convID}
	for _, ab := range a.snapshot() {
		res, err := ab.Handle(ctx, req)
		if err != nil {
			a.logger.Warn("ability failed",
				zap.String("ability", ab.Name()),
				zap.String("conversation_id", convID),
				zap.String("user_id", userID),
				zap.Error(err),
			)
			continue
		}
		if res.Claimed() {
			return res, ab.Name(), true
		}
	}
	return ability.Declined, "", false
}

func abilityResponse(name string, res ability.Result) core.AssistantResponse {
	return core.AssistantResponse{
		Text:    res.Message,
		Success: true,
		Actions: []core.ActionResult{{
			ActionType: name,
			Status:     core.ActionSuccess,
			Message:    res.Message,
		}},
		Metadata: map[string]any{
			"is_" + name + "_response": true,
			"ability_success":          res.Success,
		},
	}
}

func (a *Agent) failure(convID, userID string, err error) core.AssistantResponse {
	a.logger.Error("message processing failed",
		zap.String("conversation_id", convID),
		zap.String("user_id", userID),
		zap.Error(err),
	)
	return core.AssistantResponse{
		Text:     Apology,
		Success:  false,
		Error:    err.Error(),
		Metadata: map[string]any{"error": err.Error()},
	}
}

func (a *Agent) options() llm.Options {
	return llm.Options{Temperature: a.cfg.Temperature, MaxTokens: a.cfg.MaxTokens}
}

func (a *Agent) modelMetadata(text string) map[string]any {
	return map[string]any{
		MetaModel:      a.llm.ModelInfo().Model,
		MetaTokensUsed: llm.TokenCount(text),
	}
}

func conversationID(msg core.Message, cc *core.ConversationContext) string {
	if msg.ConversationID != "" {
		return msg.ConversationID
	}
	if cc != nil && cc.ConversationID != "" {
		return cc.ConversationID
	}
	return DefaultConversationID
}

func drain(stream llm.Stream, emit func(string) error) (string, error) {
	var text strings.Builder
	for {
		frag, err := stream.Next()
		if errors.Is(err, io.EOF) {
			return text.String(), nil
		}
		if err != nil {
			return "", err
		}
		text.WriteString(frag)
		if err := emit(frag); err != nil {
			return "", fmt.Errorf("agent: emit: %w", err)
		}
	}
}
