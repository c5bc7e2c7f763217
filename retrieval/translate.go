package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/brunobiangulo/kgsynth/llm"
)

// DefaultLanguage is the translation target when none is configured.
const DefaultLanguage = "English"

// Translator rewrites queries into a target language with as few words as
// possible before retrieval. Translations are cached in memory for the
// lifetime of the Translator.
type Translator struct {
	chat     llm.Provider
	model    string
	language string

	mu    sync.RWMutex
	cache map[string]string
}

// NewTranslator creates a Translator. An empty language uses DefaultLanguage.
func NewTranslator(chat llm.Provider, model, language string) *Translator {
	if language == "" {
		language = DefaultLanguage
	}
	return &Translator{
		chat:     chat,
		model:    model,
		language: language,
		cache:    make(map[string]string),
	}
}

// Language returns the target language.
func (t *Translator) Language() string { return t.language }

// Expansion is the instruction appended to a translated query before it is
// sent to the backend. It starts with no separator, matching the original
// query format of the GraphRAG command.
func (t *Translator) Expansion() string {
	return fmt.Sprintf("Please analyze, expand and supplement the information of this sentence step by step in %s.", t.language)
}

// Translate returns query in the target language.
func (t *Translator) Translate(ctx context.Context, query string) (string, error) {
	t.mu.RLock()
	cached, ok := t.cache[query]
	t.mu.RUnlock()
	if ok {
		return cached, nil
	}

	resp, err := t.chat.Chat(ctx, llm.ChatRequest{
		Model: t.model,
		Messages: []llm.Message{
			{Role: "user", Content: fmt.Sprintf("Translate it into %s with as few words as possible.: %s", t.language, query)},
		},
	})
	if err != nil {
		return "", fmt.Errorf("translating query: %w", err)
	}

	out := strings.TrimSpace(llm.StripThinking(resp.Content))
	if out == "" {
		return "", fmt.Errorf("translating query: empty translation")
	}

	t.mu.Lock()
	t.cache[query] = out
	t.mu.Unlock()

	slog.Debug("retrieval: query translated", "language", t.language, "query", truncate(query, 80), "translated", out)
	return out, nil
}
