package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/zulandar/bruno/internal/config"
	"github.com/zulandar/bruno/internal/core"
)

// ---- Helpers ----

func testClient(t *testing.T, handler http.HandlerFunc) *OllamaClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewOllamaClient(OllamaOpts{BaseURL: srv.URL + "/", Model: "test-model"})
}

func msgs(pairs ...string) []core.Message {
	var out []core.Message
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, core.NewMessage(core.Role(pairs[i]), pairs[i+1]))
	}
	return out
}

// ---- Generate ----

func TestGenerate_SendsChatRequest(t *testing.T) {
	var got chatRequest
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/chat" {
			t.Errorf("request = %s %s, want POST /api/chat", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		fmt.Fprint(w, `{"model":"test-model","message":{"role":"assistant","content":"Brasília"},"done":true}`)
	})

	text, err := c.Generate(context.Background(),
		msgs("system", "You are Bruno.", "user", "What is the capital of Brazil?"),
		Options{Temperature: Temperature(0.3), MaxTokens: 64})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if text != "Brasília" {
		t.Errorf("text = %q, want Brasília", text)
	}
	if got.Model != "test-model" || got.Stream {
		t.Errorf("request = %+v", got)
	}
	if got.Options.Temperature != 0.3 || got.Options.NumPredict != 64 {
		t.Errorf("options = %+v", got.Options)
	}
	if len(got.Messages) != 2 || got.Messages[1].Role != "user" {
		t.Errorf("messages = %+v", got.Messages)
	}
}

func TestGenerate_AppliesDefaults(t *testing.T) {
	var got chatRequest
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		fmt.Fprint(w, `{"message":{"role":"assistant","content":"ok"}}`)
	})
	if _, err := c.Generate(context.Background(), msgs("user", "hi"), Options{}); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if got.Options.Temperature != DefaultTemperature || got.Options.NumPredict != DefaultMaxTokens {
		t.Errorf("options = %+v, want defaults", got.Options)
	}
}

func TestGenerate_ZeroTemperature(t *testing.T) {
	var raw map[string]any
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&raw)
		fmt.Fprint(w, `{"message":{"role":"assistant","content":"ok"}}`)
	})
	if _, err := c.Generate(context.Background(), msgs("user", "hi"), Options{Temperature: Temperature(0)}); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	opts, _ := raw["options"].(map[string]any)
	if temp, ok := opts["temperature"]; !ok || temp != float64(0) {
		t.Errorf("options = %v, want temperature 0", opts)
	}
}

func TestGenerate_ResponseFieldFallback(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"response":"from generate","done":true}`)
	})
	text, err := c.Generate(context.Background(), msgs("user", "hi"), Options{})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if text != "from generate" {
		t.Errorf("text = %q", text)
	}
}

func TestGenerate_Errors(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		transport bool
	}{
		{"server error", http.StatusInternalServerError, "model exploded", true},
		{"not found", http.StatusNotFound, `{"error":"model not found"}`, true},
		{"malformed body", http.StatusOK, `{"message":`, false},
		{"no content", http.StatusOK, `{"done":true}`, false},
		{"error field", http.StatusOK, `{"error":"out of memory"}`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			})
			_, err := c.Generate(context.Background(), msgs("user", "hi"), Options{})
			if err == nil {
				t.Fatal("expected error")
			}
			var te *TransportError
			var pe *ProtocolError
			if tt.transport {
				if !errors.As(err, &te) {
					t.Fatalf("error = %T %v, want *TransportError", err, err)
				}
				if te.StatusCode != tt.status {
					t.Errorf("StatusCode = %d, want %d", te.StatusCode, tt.status)
				}
			} else if !errors.As(err, &pe) {
				t.Fatalf("error = %T %v, want *ProtocolError", err, err)
			}
			if !IsBackendError(err) {
				t.Error("IsBackendError = false")
			}
		})
	}
}

func TestGenerate_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := NewOllamaClient(OllamaOpts{BaseURL: url, Timeout: time.Second})
	_, err := c.Generate(context.Background(), msgs("user", "hi"), Options{})
	var te *TransportError
	if !errors.As(err, &te) {
		t.Fatalf("error = %T %v, want *TransportError", err, err)
	}
	if te.StatusCode != 0 {
		t.Errorf("StatusCode = %d, want 0", te.StatusCode)
	}
}

// ---- Stream ----

func TestStream_YieldsFragments(t *testing.T) {
	var got generateRequest
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			t.Errorf("path = %s, want /api/generate", r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&got)
		fmt.Fprintln(w, `{"response":"Bra","done":false}`)
		fmt.Fprintln(w, `{"response":"","done":false}`)
		fmt.Fprintln(w, `{"response":"sília","done":false}`)
		fmt.Fprintln(w, `{"response":"","done":true}`)
	})

	s, err := c.Stream(context.Background(), msgs("system", "sys", "user", "capital?"), Options{})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	defer s.Close()

	var parts []string
	for {
		frag, err := s.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		parts = append(parts, frag)
	}
	if strings.Join(parts, "") != "Brasília" || len(parts) != 2 {
		t.Errorf("fragments = %q", parts)
	}
	if !got.Stream {
		t.Error("stream flag not set")
	}
	if !strings.HasSuffix(got.Prompt, "User: capital?\n\nAssistant:") {
		t.Errorf("prompt = %q", got.Prompt)
	}
	if _, err := s.Next(); err != io.EOF {
		t.Errorf("Next after done = %v, want io.EOF", err)
	}
}

func TestStream_MalformedChunk(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, `{"response":"ok"}`)
		fmt.Fprintln(w, `{not json`)
	})
	s, err := c.Stream(context.Background(), msgs("user", "hi"), Options{})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	defer s.Close()
	if frag, err := s.Next(); err != nil || frag != "ok" {
		t.Fatalf("first Next = %q, %v", frag, err)
	}
	_, err = s.Next()
	var pe *ProtocolError
	if !errors.As(err, &pe) {
		t.Fatalf("error = %T %v, want *ProtocolError", err, err)
	}
}

func TestStream_StatusError(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "busy", http.StatusServiceUnavailable)
	})
	_, err := c.Stream(context.Background(), msgs("user", "hi"), Options{})
	var te *TransportError
	if !errors.As(err, &te) || te.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("error = %v, want 503 TransportError", err)
	}
}

func TestStream_CloseEarly(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		for i := 0; i < 3; i++ {
			fmt.Fprintf(w, "{\"response\":\"%d\"}\n", i)
		}
	})
	s, err := c.Stream(context.Background(), msgs("user", "hi"), Options{})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	if _, err := s.Next(); err != nil {
		t.Fatalf("Next: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
	if _, err := s.Next(); err != io.EOF {
		t.Errorf("Next after Close = %v, want io.EOF", err)
	}
}

// ---- Connection and models ----

func TestCheckConnection(t *testing.T) {
	ok := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tags" {
			t.Errorf("path = %s", r.URL.Path)
		}
		fmt.Fprint(w, `{"models":[]}`)
	})
	if !ok.CheckConnection(context.Background()) {
		t.Error("CheckConnection = false, want true")
	}

	failing := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	if failing.CheckConnection(context.Background()) {
		t.Error("CheckConnection = true on 500")
	}

	unreachable := NewOllamaClient(OllamaOpts{BaseURL: "http://127.0.0.1:1"})
	if unreachable.CheckConnection(context.Background()) {
		t.Error("CheckConnection = true for unreachable backend")
	}
}

func TestListModels(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"models":[{"name":"mistral:7b"},{"name":"llama3:8b"}]}`)
	})
	models, err := c.ListModels(context.Background())
	if err != nil {
		t.Fatalf("ListModels: %v", err)
	}
	if len(models) != 2 || models[0] != "mistral:7b" {
		t.Errorf("models = %v", models)
	}
}

func TestModelInfo(t *testing.T) {
	c := NewOllamaClient(OllamaOpts{BaseURL: "http://ollama:11434/"})
	info := c.ModelInfo()
	if info.Model != "mistral:7b" || info.Provider != "ollama" || info.BaseURL != "http://ollama:11434" {
		t.Errorf("ModelInfo = %+v", info)
	}
}

// ---- Helpers under test ----

func TestMessagesToPrompt(t *testing.T) {
	got := MessagesToPrompt(msgs("system", "S", "user", "U", "assistant", "A"))
	want := "System: S\n\nUser: U\n\nAssistant: A\n\nAssistant:"
	if got != want {
		t.Errorf("prompt = %q, want %q", got, want)
	}
}

func TestTokenCount(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"", 0},
		{"abc", 0},
		{"abcd", 1},
		{strings.Repeat("x", 41), 10},
	}
	for _, tt := range tests {
		if got := TokenCount(tt.in); got != tt.want {
			t.Errorf("TokenCount(%d chars) = %d, want %d", len(tt.in), got, tt.want)
		}
	}
}

func TestNewClient(t *testing.T) {
	c, err := NewClient(config.LLMConfig{Provider: "ollama", Model: "m", BaseURL: "http://x", TimeoutSec: 10})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if c.ModelInfo().Model != "m" {
		t.Errorf("model = %q", c.ModelInfo().Model)
	}

	_, err = NewClient(config.LLMConfig{Provider: "openai"})
	var cfgErr *config.ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("error = %T %v, want *ConfigurationError", err, err)
	}
}
