package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/zulandar/bruno/internal/core"
)

const (
	defaultBaseURL = "http://localhost:11434"
	defaultModel   = "mistral:7b"
	pingTimeout    = 5 * time.Second
	maxErrorBody   = 512
)

// OllamaOpts holds parameters for creating an OllamaClient.
type OllamaOpts struct {
	BaseURL    string
	Model      string
	Timeout    time.Duration // per request; 0 means 5 minutes
	HTTPClient *http.Client  // optional, overrides Timeout
}

// OllamaClient is a Client for the Ollama HTTP API.
type OllamaClient struct {
	baseURL    string
	model      string
	httpClient *http.Client
}

// NewOllamaClient creates a new Ollama client.
func NewOllamaClient(opts OllamaOpts) *OllamaClient {
	if opts.BaseURL == "" {
		opts.BaseURL = defaultBaseURL
	}
	if opts.Model == "" {
		opts.Model = defaultModel
	}
	if opts.HTTPClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 5 * time.Minute
		}
		opts.HTTPClient = &http.Client{Timeout: timeout}
	}
	return &OllamaClient{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		model:      opts.Model,
		httpClient: opts.HTTPClient,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type requestOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type chatRequest struct {
	Model    string         `json:"model"`
	Messages []chatMessage  `json:"messages"`
	Stream   bool           `json:"stream"`
	Options  requestOptions `json:"options"`
}

type generateRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	Stream  bool           `json:"stream"`
	Options requestOptions `json:"options"`
}

// chatResponse covers both /api/chat and /api/generate bodies.
type chatResponse struct {
	Model    string       `json:"model"`
	Message  *chatMessage `json:"message"`
	Response *string      `json:"response"`
	Done     bool         `json:"done"`
	Error    string       `json:"error"`
}

// Generate sends a non-streaming chat request.
func (c *OllamaClient) Generate(ctx context.Context, messages []core.Message, opts Options) (string, error) {
	opts = opts.withDefaults()
	req := chatRequest{
		Model:    c.model,
		Messages: toChatMessages(messages),
		Stream:   false,
		Options:  requestOptions{Temperature: *opts.Temperature, NumPredict: opts.MaxTokens},
	}

	resp, err := c.post(ctx, "/api/chat", req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var body chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", &ProtocolError{Err: fmt.Errorf("decode response: %w", err)}
	}
	switch {
	case body.Error != "":
		return "", &ProtocolError{Err: errors.New(body.Error)}
	case body.Message != nil:
		return body.Message.Content, nil
	case body.Response != nil:
		return *body.Response, nil
	default:
		return "", &ProtocolError{Err: errors.New("response has no content")}
	}
}

// Stream sends a streaming generate request. The backend answers with
// newline-delimited JSON objects, each carrying a `response` fragment.
func (c *OllamaClient) Stream(ctx context.Context, messages []core.Message, opts Options) (Stream, error) {
	opts = opts.withDefaults()
	req := generateRequest{
		Model:   c.model,
		Prompt:  MessagesToPrompt(messages),
		Stream:  true,
		Options: requestOptions{Temperature: *opts.Temperature, NumPredict: opts.MaxTokens},
	}

	resp, err := c.post(ctx, "/api/generate", req)
	if err != nil {
		return nil, err
	}
	return &ndjsonStream{body: resp.Body, dec: json.NewDecoder(resp.Body)}, nil
}

// CheckConnection pings /api/tags with a short timeout.
func (c *OllamaClient) CheckConnection(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// ListModels returns the names of the models the backend has pulled.
func (c *OllamaClient) ListModels(ctx context.Context) ([]string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return nil, fmt.Errorf("llm: create request: %w", err)
	}
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp)
	}

	var result struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, &ProtocolError{Err: fmt.Errorf("decode response: %w", err)}
	}
	names := make([]string, len(result.Models))
	for i, m := range result.Models {
		names[i] = m.Name
	}
	return names, nil
}

// ModelInfo describes the bound model.
func (c *OllamaClient) ModelInfo() ModelInfo {
	return ModelInfo{Model: c.model, Provider: "ollama", BaseURL: c.baseURL}
}

func (c *OllamaClient) post(ctx context.Context, path string, payload any) (*http.Response, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("llm: marshal request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("llm: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, statusError(resp)
	}
	return resp, nil
}

func statusError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &TransportError{
		StatusCode: resp.StatusCode,
		Body:       strings.TrimSpace(string(body)),
	}
}

// ndjsonStream yields the `response` field of each streamed object.
type ndjsonStream struct {
	body io.ReadCloser
	dec  *json.Decoder
	done bool
}

func (s *ndjsonStream) Next() (string, error) {
	for !s.done {
		var chunk chatResponse
		if err := s.dec.Decode(&chunk); err != nil {
			s.done = true
			if errors.Is(err, io.EOF) {
				return "", io.EOF
			}
			var syntaxErr *json.SyntaxError
			if errors.As(err, &syntaxErr) || errors.Is(err, io.ErrUnexpectedEOF) {
				return "", &ProtocolError{Err: fmt.Errorf("decode stream chunk: %w", err)}
			}
			return "", &TransportError{Err: err}
		}
		if chunk.Error != "" {
			s.done = true
			return "", &ProtocolError{Err: errors.New(chunk.Error)}
		}
		if chunk.Done {
			s.done = true
		}
		if chunk.Response != nil && *chunk.Response != "" {
			return *chunk.Response, nil
		}
	}
	return "", io.EOF
}

func (s *ndjsonStream) Close() error {
	s.done = true
	return s.body.Close()
}

func toChatMessages(messages []core.Message) []chatMessage {
	out := make([]chatMessage, len(messages))
	for i, m := range messages {
		out[i] = chatMessage{Role: string(m.Role), Content: m.Content}
	}
	return out
}

// MessagesToPrompt flattens a role-tagged message list into a single
// completion prompt ending with an open assistant turn.
func MessagesToPrompt(messages []core.Message) string {
	var b strings.Builder
	for _, m := range messages {
		switch m.Role {
		case core.RoleSystem:
			b.WriteString("System: ")
		case core.RoleAssistant:
			b.WriteString("Assistant: ")
		default:
			b.WriteString("User: ")
		}
		b.WriteString(m.Content)
		b.WriteString("\n\n")
	}
	b.WriteString("Assistant:")
	return b.String()
}

func secondsOrZero(sec int) time.Duration {
	if sec <= 0 {
		return 0
	}
	return time.Duration(sec) * time.Second
}
