package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/zulandar/bruno/internal/agent"
	"github.com/zulandar/bruno/internal/chat"
	"github.com/zulandar/bruno/internal/core"
	"github.com/zulandar/bruno/internal/db"
	"github.com/zulandar/bruno/internal/memory"
	"github.com/zulandar/bruno/internal/store"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// ---- Helpers ----

type fakeDispatcher struct {
	mu        sync.Mutex
	reply     string
	fragments []string
	actions   []core.ActionResult
}

func (d *fakeDispatcher) ProcessMessage(ctx context.Context, msg core.Message, cc *core.ConversationContext) core.AssistantResponse {
	d.mu.Lock()
	defer d.mu.Unlock()
	return core.AssistantResponse{Text: d.reply, Success: true, Actions: d.actions}
}

func (d *fakeDispatcher) ProcessMessageStream(ctx context.Context, msg core.Message, cc *core.ConversationContext, emit func(string) error) core.AssistantResponse {
	d.mu.Lock()
	frags := d.fragments
	d.mu.Unlock()
	for _, f := range frags {
		if err := emit(f); err != nil {
			return core.AssistantResponse{Text: agent.Apology, Error: err.Error()}
		}
	}
	return core.AssistantResponse{Text: strings.Join(frags, ""), Success: true}
}

type fakeHealth struct {
	health agent.Health
}

func (p *fakeHealth) HealthCheck(ctx context.Context) agent.Health { return p.health }
func (p *fakeHealth) Metadata() agent.Info {
	return agent.Info{Name: "bruno", Model: "fake:1b", Provider: "ollama", Version: agent.Version}
}

type testEnv struct {
	server *Server
	memory *memory.Manager
	disp   *fakeDispatcher
	health *fakeHealth
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gormDB, err := db.OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := gormDB.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	t.Cleanup(func() { sqlDB.Close() })
	if err := db.AutoMigrate(gormDB); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	st, err := store.New(store.Opts{DB: gormDB})
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}

	mem := memory.New(memory.Opts{Backend: st.Log()})
	disp := &fakeDispatcher{reply: "Hello there!"}
	svc, err := chat.NewService(chat.ServiceOpts{Store: st, Memory: mem, Dispatcher: disp})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	health := &fakeHealth{health: agent.Health{Status: "initialized", LLM: "connected", Memory: "ready"}}

	srv, err := New(ServerOpts{Conversations: svc, Memory: mem, Agent: health})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return &testEnv{server: srv, memory: mem, disp: disp, health: health}
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
}

// --- New tests ---

func TestNew_Validation(t *testing.T) {
	if _, err := New(ServerOpts{}); err == nil {
		t.Fatal("expected error without conversations")
	}
}

// --- /api/chat tests ---

func TestChat_ReturnsReply(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodPost, "/api/chat", `{"message":"hi","user_id":"42","username":"ana"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var resp chatResponse
	decode(t, rec, &resp)
	if resp.Response != "Hello there!" || !resp.Success {
		t.Errorf("resp = %+v", resp)
	}
	if resp.ConversationID == "" || resp.SessionID == "" {
		t.Errorf("resp = %+v, want conversation and session ids", resp)
	}
}

func TestChat_IncludesActions(t *testing.T) {
	env := newTestEnv(t)
	env.disp.actions = []core.ActionResult{{ActionType: "timer", Status: core.ActionSuccess, Message: "Timer set for 5 minutes."}}

	rec := env.do(t, http.MethodPost, "/api/chat", `{"message":"set a timer for 5 minutes","user_id":"42"}`)
	var resp chatResponse
	decode(t, rec, &resp)
	if len(resp.Actions) != 1 || resp.Actions[0].Type != "timer" || resp.Actions[0].Status != "success" {
		t.Errorf("actions = %+v", resp.Actions)
	}
}

func TestChat_Errors(t *testing.T) {
	env := newTestEnv(t)
	tests := []struct {
		name string
		body string
		want int
	}{
		{"missing user", `{"message":"hi"}`, http.StatusBadRequest},
		{"malformed json", `{"message":`, http.StatusBadRequest},
		{"blank message", `{"message":"   ","user_id":"42"}`, http.StatusBadRequest},
		{"malformed conversation id", `{"message":"hi","user_id":"42","conversation_id":"abc"}`, http.StatusBadRequest},
		{"unknown conversation", `{"message":"hi","user_id":"42","conversation_id":"999"}`, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, "/api/chat", tt.body)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d (body %s)", rec.Code, tt.want, rec.Body.String())
			}
		})
	}
}

func TestChat_ForeignConversation(t *testing.T) {
	env := newTestEnv(t)
	var first chatResponse
	decode(t, env.do(t, http.MethodPost, "/api/chat", `{"message":"hi","user_id":"owner"}`), &first)

	rec := env.do(t, http.MethodPost, "/api/chat",
		`{"message":"hi","user_id":"intruder","conversation_id":"`+first.ConversationID+`"}`)
	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", rec.Code)
	}
}

// --- /api/chat/stream tests ---

func TestChatStream_EmitsFragmentsThenDone(t *testing.T) {
	env := newTestEnv(t)
	env.disp.fragments = []string{"Hel", "lo"}

	rec := env.do(t, http.MethodPost, "/api/chat/stream", `{"message":"hi","user_id":"42"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(rec.Header().Get("Content-Type"), "text/event-stream") {
		t.Errorf("Content-Type = %q", rec.Header().Get("Content-Type"))
	}
	first := strings.Index(body, "data:Hel")
	second := strings.Index(body, "data:lo")
	done := strings.Index(body, "event:done")
	if first < 0 || second < first || done < second {
		t.Errorf("unexpected event order in %q", body)
	}
	if !strings.Contains(body, `"response":"Hello"`) {
		t.Errorf("done event missing full response: %q", body)
	}
}

func TestChatStream_ErrorBeforeStreaming(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodPost, "/api/chat/stream", `{"message":"hi","user_id":"42","conversation_id":"999"}`)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

// --- history tests ---

func TestMessages_ListAndClear(t *testing.T) {
	env := newTestEnv(t)
	var chatResp chatResponse
	decode(t, env.do(t, http.MethodPost, "/api/chat", `{"message":"hi","user_id":"42"}`), &chatResp)
	path := "/api/conversations/" + chatResp.ConversationID + "/messages?user_id=42"

	var list struct {
		Messages []messageView `json:"messages"`
	}
	decode(t, env.do(t, http.MethodGet, path, ""), &list)
	if len(list.Messages) != 2 {
		t.Fatalf("messages = %d, want 2", len(list.Messages))
	}
	if list.Messages[0].Role != "user" || list.Messages[1].Role != "assistant" {
		t.Errorf("roles = %s/%s", list.Messages[0].Role, list.Messages[1].Role)
	}

	decode(t, env.do(t, http.MethodGet, path+"&limit=1", ""), &list)
	if len(list.Messages) != 1 || list.Messages[0].Content != "Hello there!" {
		t.Errorf("limited = %+v, want the latest message", list.Messages)
	}

	rec := env.do(t, http.MethodDelete, path+"&keep_system=true", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("clear status = %d, body %s", rec.Code, rec.Body.String())
	}
	decode(t, env.do(t, http.MethodGet, path, ""), &list)
	if len(list.Messages) != 0 {
		t.Errorf("messages after clear = %d, want 0", len(list.Messages))
	}
}

func TestMessages_BadQuery(t *testing.T) {
	env := newTestEnv(t)
	tests := []struct {
		name   string
		method string
		path   string
	}{
		{"negative limit", http.MethodGet, "/api/conversations/1/messages?user_id=42&limit=-1"},
		{"bad keep_system", http.MethodDelete, "/api/conversations/1/messages?user_id=42&keep_system=maybe"},
		{"malformed id", http.MethodDelete, "/api/conversations/abc/messages?user_id=42"},
		{"list without user", http.MethodGet, "/api/conversations/1/messages"},
		{"clear without user", http.MethodDelete, "/api/conversations/1/messages"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rec := env.do(t, tt.method, tt.path, ""); rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400 (body %s)", rec.Code, rec.Body.String())
			}
		})
	}
}

func TestMessages_Ownership(t *testing.T) {
	env := newTestEnv(t)
	var owned chatResponse
	decode(t, env.do(t, http.MethodPost, "/api/chat", `{"message":"my secret","user_id":"owner"}`), &owned)
	// The intruder exists as a user with a conversation of their own.
	env.do(t, http.MethodPost, "/api/chat", `{"message":"hello","user_id":"intruder"}`)
	base := "/api/conversations/" + owned.ConversationID + "/messages"

	tests := []struct {
		name   string
		method string
		path   string
		want   int
	}{
		{"list as other user", http.MethodGet, base + "?user_id=intruder", http.StatusForbidden},
		{"clear as other user", http.MethodDelete, base + "?user_id=intruder", http.StatusForbidden},
		{"list as unknown user", http.MethodGet, base + "?user_id=ghost", http.StatusForbidden},
		{"unknown conversation", http.MethodGet, "/api/conversations/999/messages?user_id=owner", http.StatusNotFound},
		{"clear unknown conversation", http.MethodDelete, "/api/conversations/999/messages?user_id=owner", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rec := env.do(t, tt.method, tt.path, ""); rec.Code != tt.want {
				t.Errorf("status = %d, want %d (body %s)", rec.Code, tt.want, rec.Body.String())
			}
		})
	}

	var list struct {
		Messages []messageView `json:"messages"`
	}
	decode(t, env.do(t, http.MethodGet, base+"?user_id=owner", ""), &list)
	if len(list.Messages) != 2 || list.Messages[0].Content != "my secret" {
		t.Errorf("owner's messages = %+v, want both kept", list.Messages)
	}
}

// --- /api/health tests ---

func TestHealth(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body struct {
		Health agent.Health `json:"health"`
		Agent  agent.Info   `json:"agent"`
		Memory memory.Stats `json:"memory"`
	}
	decode(t, rec, &body)
	if body.Agent.Model != "fake:1b" || body.Health.LLM != "connected" {
		t.Errorf("body = %+v", body)
	}

	env.health.health.LLM = "unreachable"
	if rec := env.do(t, http.MethodGet, "/api/health", ""); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("unhealthy status = %d, want 503", rec.Code)
	}
}
