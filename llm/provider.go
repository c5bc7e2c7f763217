package llm

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrRequestFailed is wrapped by every failed completion or embedding
// request that reached the backend.
var ErrRequestFailed = errors.New("kgsynth: LLM request failed")

// Provider is the completion backend every agent role, the query translator
// and the evaluation judge talk to.
type Provider interface {
	// Chat sends a chat completion request and returns the completion text.
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)

	// Embed generates embeddings for a batch of texts.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// ChatRequest is a chat completion request.
type ChatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	// ResponseFormat can be set to "json_object" for JSON mode.
	ResponseFormat string `json:"response_format,omitempty"`
}

// Message represents a chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatResponse is the response from a chat completion.
type ChatResponse struct {
	Content          string `json:"content"`
	Model            string `json:"model"`
	FinishReason     string `json:"finish_reason"`
	PromptTokens     int    `json:"prompt_tokens"`
	CompletionTokens int    `json:"completion_tokens"`
	TotalTokens      int    `json:"total_tokens"`
}

// Config configures an LLM provider.
type Config struct {
	Provider string `json:"provider"` // ollama, lmstudio, openrouter, openai, groq, xai, gemini, custom
	Model    string `json:"model"`
	BaseURL  string `json:"base_url"`
	APIKey   string `json:"api_key"`

	// Timeout bounds a single HTTP attempt. Zero means DefaultTimeout.
	Timeout time.Duration `json:"timeout"`
	// MaxRetries bounds retries of transient failures. Negative disables
	// retrying; zero means DefaultMaxRetries.
	MaxRetries int `json:"max_retries"`
}

const (
	DefaultTimeout    = 120 * time.Second
	DefaultMaxRetries = 6
)

// NewProvider creates an LLM provider from configuration.
func NewProvider(cfg Config) (Provider, error) {
	if cfg.Provider == "" {
		return nil, fmt.Errorf("llm provider not specified")
	}
	p, ok := presets[cfg.Provider]
	if !ok {
		return nil, fmt.Errorf("unknown llm provider: %s", cfg.Provider)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = p.baseURL
	}
	if cfg.Model == "" {
		cfg.Model = p.defaultModel
	}
	return newClient(cfg, p), nil
}
