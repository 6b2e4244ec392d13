// Package llm talks to the language-model backend.
package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/zulandar/bruno/internal/config"
	"github.com/zulandar/bruno/internal/core"
)

// Generation defaults used when Options leaves a field zero.
const (
	DefaultTemperature = 0.7
	DefaultMaxTokens   = 2000
)

// Options are per-call generation parameters.
type Options struct {
	// Temperature is nil for DefaultTemperature. An explicit zero is sent
	// as zero.
	Temperature *float64
	MaxTokens   int
}

// Temperature returns v as an Options.Temperature value.
func Temperature(v float64) *float64 { return &v }

func (o Options) withDefaults() Options {
	if o.Temperature == nil {
		o.Temperature = Temperature(DefaultTemperature)
	}
	if o.MaxTokens == 0 {
		o.MaxTokens = DefaultMaxTokens
	}
	return o
}

// ModelInfo describes the model a client is bound to.
type ModelInfo struct {
	Model    string `json:"model"`
	Provider string `json:"provider"`
	BaseURL  string `json:"base_url"`
}

// Stream is a lazy sequence of generated text fragments. Next returns
// io.EOF once the backend closes the response. A Stream is not
// restartable; Close releases the underlying connection and may be called
// before the sequence is exhausted.
type Stream interface {
	Next() (string, error)
	Close() error
}

// Client is a model backend.
type Client interface {
	// Generate returns the complete reply to messages.
	Generate(ctx context.Context, messages []core.Message, opts Options) (string, error)
	// Stream opens a fresh streaming request.
	Stream(ctx context.Context, messages []core.Message, opts Options) (Stream, error)
	// CheckConnection reports whether the backend is reachable. It never
	// returns an error.
	CheckConnection(ctx context.Context) bool
	ListModels(ctx context.Context) ([]string, error)
	ModelInfo() ModelInfo
}

// TransportError reports an unreachable backend, a timeout, or a
// non-success HTTP status.
type TransportError struct {
	StatusCode int    // 0 when no response was received
	Body       string // excerpt of the error body
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("llm: backend returned status %d: %s", e.StatusCode, e.Body)
	}
	return fmt.Sprintf("llm: transport: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ProtocolError reports a response body that could not be understood.
type ProtocolError struct {
	Err error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("llm: protocol: %v", e.Err)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// IsBackendError reports whether err came from the model backend.
func IsBackendError(err error) bool {
	var te *TransportError
	var pe *ProtocolError
	return errors.As(err, &te) || errors.As(err, &pe)
}

// TokenCount estimates the number of tokens in text at four characters per
// token.
func TokenCount(text string) int {
	return len(text) / 4
}

// NewClient builds the client for the configured provider.
func NewClient(cfg config.LLMConfig) (Client, error) {
	switch cfg.Provider {
	case "ollama", "":
		return NewOllamaClient(OllamaOpts{
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
			Timeout: secondsOrZero(cfg.TimeoutSec),
		}), nil
	default:
		return nil, &config.ConfigurationError{
			Problems: []string{fmt.Sprintf("llm.provider %q is not supported", cfg.Provider)},
		}
	}
}
