package chat

import (
	"context"
	"database/sql"
	"sync"
	"testing"

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

// testStore opens an in-memory database that is closed when the test ends.
func testStore(t *testing.T) (*store.Store, *sql.DB) {
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
	s, err := store.New(store.Opts{DB: gormDB})
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	return s, sqlDB
}

// fakeDispatcher echoes the message and records what it was given.
type fakeDispatcher struct {
	mu        sync.Mutex
	reply     string
	fragments []string
	fail      bool
	hook      func()
	msgs      []core.Message
	contexts  []*core.ConversationContext
}

func (d *fakeDispatcher) record(msg core.Message, cc *core.ConversationContext) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.msgs = append(d.msgs, msg)
	d.contexts = append(d.contexts, cc)
}

func (d *fakeDispatcher) response() core.AssistantResponse {
	if d.hook != nil {
		d.hook()
	}
	if d.fail {
		return core.AssistantResponse{Text: "sorry", Success: false, Error: "backend down"}
	}
	return core.AssistantResponse{Text: d.reply, Success: true}
}

func (d *fakeDispatcher) ProcessMessage(ctx context.Context, msg core.Message, cc *core.ConversationContext) core.AssistantResponse {
	d.record(msg, cc)
	return d.response()
}

func (d *fakeDispatcher) ProcessMessageStream(ctx context.Context, msg core.Message, cc *core.ConversationContext, emit func(string) error) core.AssistantResponse {
	d.record(msg, cc)
	for _, f := range d.fragments {
		if err := emit(f); err != nil {
			return core.AssistantResponse{Text: "sorry", Error: err.Error()}
		}
	}
	return d.response()
}

func (d *fakeDispatcher) calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.msgs)
}

func newService(t *testing.T, d *fakeDispatcher) (*Service, *store.Store, *memory.Manager, *sql.DB) {
	t.Helper()
	st, sqlDB := testStore(t)
	mem := memory.New(memory.Opts{Backend: st.Log()})
	svc, err := NewService(ServiceOpts{Store: st, Memory: mem, Dispatcher: d})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc, st, mem, sqlDB
}
