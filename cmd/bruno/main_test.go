package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// ---- Helpers ----

// fakeOllama serves the Ollama endpoints the client uses.
func fakeOllama(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/tags", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"models": []map[string]string{{"name": "llama3:8b"}, {"name": "mistral:7b"}},
		})
	})
	mux.HandleFunc("/api/chat", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"message": map[string]string{"role": "assistant", "content": "Hi from the model"},
			"done":    true,
		})
	})
	mux.HandleFunc("/api/generate", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, `{"response":"Streamed ","done":false}`)
		fmt.Fprintln(w, `{"response":"reply","done":true}`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

// writeConfig writes a config using a temporary SQLite file and returns its
// path.
func writeConfig(t *testing.T, llmURL string) string {
	t.Helper()
	for _, k := range []string{"DATABASE_URL", "LLM_PROVIDER", "LLM_MODEL", "LLM_API_URL", "DISCORD_TOKEN", "SLACK_APP_TOKEN", "SLACK_BOT_TOKEN"} {
		t.Setenv(k, "")
	}
	dir := t.TempDir()
	yaml := fmt.Sprintf(`llm:
  model: mistral:7b
  base_url: %s
  timeout_sec: 5
database:
  driver: sqlite
  dsn: %s
log:
  level: error
`, llmURL, filepath.Join(dir, "bruno.db"))
	path := filepath.Join(dir, "bruno.yaml")
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

// run executes the root command with args and stdin, returning its output.
func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

// --- root / version tests ---

func TestVersionCmd(t *testing.T) {
	out, err := run(t, "", "version")
	if err != nil {
		t.Fatalf("version command failed: %v", err)
	}
	if !strings.Contains(out, "bruno dev") || !strings.Contains(out, "commit: none") {
		t.Errorf("unexpected version output: %s", out)
	}
}

func TestVersionCmdWithCustomValues(t *testing.T) {
	origVersion, origCommit, origDate := Version, Commit, Date
	Version, Commit, Date = "1.0.0", "abc123", "2026-01-01"
	defer func() { Version, Commit, Date = origVersion, origCommit, origDate }()

	out, err := run(t, "", "version")
	if err != nil {
		t.Fatalf("version command failed: %v", err)
	}
	if !strings.Contains(out, "bruno 1.0.0") || !strings.Contains(out, "built: 2026-01-01") {
		t.Errorf("unexpected version output: %s", out)
	}
}

func TestRootCmdHelp(t *testing.T) {
	out, err := run(t, "", "--help")
	if err != nil {
		t.Fatalf("help failed: %v", err)
	}
	for _, sub := range []string{"bot", "serve", "chat", "db", "llm", "version"} {
		if !strings.Contains(out, sub) {
			t.Errorf("help missing %q subcommand: %s", sub, out)
		}
	}
}

// --- db tests ---

func TestDBInit(t *testing.T) {
	cfg := writeConfig(t, "http://127.0.0.1:1")
	out, err := run(t, "", "db", "init", "--config", cfg)
	if err != nil {
		t.Fatalf("db init: %v", err)
	}
	if !strings.Contains(out, "Migrated") || !strings.Contains(out, "sqlite") {
		t.Errorf("unexpected output: %s", out)
	}
}

func TestDBReset_RequiresConfirmation(t *testing.T) {
	cfg := writeConfig(t, "http://127.0.0.1:1")
	_, err := run(t, "", "db", "reset", "--config", cfg)
	if err == nil || !strings.Contains(err.Error(), "--yes") {
		t.Fatalf("err = %v, want confirmation error", err)
	}

	out, err := run(t, "", "db", "reset", "--yes", "--config", cfg)
	if err != nil {
		t.Fatalf("db reset --yes: %v", err)
	}
	if !strings.Contains(out, "Reset") {
		t.Errorf("unexpected output: %s", out)
	}
}

// --- llm tests ---

func TestLLMModels_MarksConfiguredModel(t *testing.T) {
	srv := fakeOllama(t)
	out, err := run(t, "", "llm", "models", "--config", writeConfig(t, srv.URL))
	if err != nil {
		t.Fatalf("llm models: %v", err)
	}
	if !strings.Contains(out, "* mistral:7b") || !strings.Contains(out, "  llama3:8b") {
		t.Errorf("unexpected output: %s", out)
	}
}

func TestLLMPing(t *testing.T) {
	srv := fakeOllama(t)
	out, err := run(t, "", "llm", "ping", "--config", writeConfig(t, srv.URL))
	if err != nil {
		t.Fatalf("llm ping: %v", err)
	}
	if !strings.Contains(out, "reachable") {
		t.Errorf("unexpected output: %s", out)
	}
}

func TestLLMPing_Unreachable(t *testing.T) {
	srv := fakeOllama(t)
	url := srv.URL
	srv.Close()
	if _, err := run(t, "", "llm", "ping", "--config", writeConfig(t, url)); err == nil {
		t.Fatal("expected error for unreachable backend")
	}
}

// --- chat tests ---

func TestChat_OneShot(t *testing.T) {
	srv := fakeOllama(t)
	out, err := run(t, "", "chat", "--config", writeConfig(t, srv.URL), "--user", "ana", "hello", "bruno")
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if strings.TrimSpace(out) != "Hi from the model" {
		t.Errorf("output = %q", out)
	}
}

func TestChat_REPLStopsAtExit(t *testing.T) {
	srv := fakeOllama(t)
	stdin := "hello\n\nset a timer for 5 minutes\nexit\nnever sent\n"
	out, err := run(t, stdin, "chat", "--config", writeConfig(t, srv.URL), "--user", "ana")
	if err != nil {
		t.Fatalf("chat: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 2 {
		t.Fatalf("lines = %q, want 2 replies", lines)
	}
	if lines[0] != "Hi from the model" {
		t.Errorf("first reply = %q", lines[0])
	}
	if lines[1] != "Timer set for 5 minutes." {
		t.Errorf("second reply = %q, want timer confirmation", lines[1])
	}
	if strings.Contains(out, "you>") {
		t.Error("prompt should not be shown when stdin is not a terminal")
	}
}

func TestChat_Stream(t *testing.T) {
	srv := fakeOllama(t)
	out, err := run(t, "", "chat", "--stream", "--config", writeConfig(t, srv.URL), "tell me something")
	if err != nil {
		t.Fatalf("chat --stream: %v", err)
	}
	if strings.TrimSpace(out) != "Streamed reply" {
		t.Errorf("output = %q", out)
	}
}

// --- bot tests ---

func TestBot_RequiresCredentials(t *testing.T) {
	_, err := run(t, "", "bot", "--config", writeConfig(t, "http://127.0.0.1:1"))
	if err == nil || !strings.Contains(err.Error(), "bot_token") {
		t.Fatalf("err = %v, want missing token error", err)
	}
}

func TestIsTerminal_NonFile(t *testing.T) {
	if isTerminal(strings.NewReader("x")) {
		t.Error("strings.Reader is not a terminal")
	}
}
