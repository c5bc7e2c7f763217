package agent

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/brunobiangulo/kgsynth/llm"
)

// SenderUser is the sender designation of caller-supplied messages.
const SenderUser = "user"

// Message is one caller-supplied conversation message.
type Message struct {
	Sender  string
	Content string
}

// User builds a message sent by the user.
func User(content string) Message {
	return Message{Sender: SenderUser, Content: content}
}

// Runner invokes roles against one shared completion backend.
type Runner struct {
	chat        llm.Provider
	model       string
	temperature float64
}

// NewRunner binds roles to a backend. An empty model uses the provider's
// configured model.
func NewRunner(chat llm.Provider, model string, temperature float64) *Runner {
	return &Runner{chat: chat, model: model, temperature: temperature}
}

// Invoke performs a single request/response exchange: the role instructions
// as the system message followed by msgs in order. It returns the text of the
// response message with any reasoning blocks removed.
func (r *Runner) Invoke(ctx context.Context, role Role, msgs ...Message) (string, error) {
	req := llm.ChatRequest{
		Model:       r.model,
		Temperature: r.temperature,
		Messages:    make([]llm.Message, 0, len(msgs)+1),
	}
	req.Messages = append(req.Messages, llm.Message{Role: "system", Content: role.Instructions})
	for _, m := range msgs {
		sender := m.Sender
		if sender == "" {
			sender = SenderUser
		}
		req.Messages = append(req.Messages, llm.Message{Role: sender, Content: m.Content})
	}

	start := time.Now()
	resp, err := r.chat.Chat(ctx, req)
	if err != nil {
		return "", fmt.Errorf("%s: %w", role.Name, err)
	}
	slog.Debug("agent: role answered",
		"role", role.Name,
		"messages", len(msgs),
		"tokens", resp.TotalTokens,
		"elapsed", time.Since(start).Round(time.Millisecond))

	return llm.StripThinking(resp.Content), nil
}
