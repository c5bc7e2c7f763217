package retrieval

import (
	"context"
	"errors"
	"testing"

	"github.com/brunobiangulo/kgsynth/llm"
	"github.com/brunobiangulo/kgsynth/llm/llmtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubBackend struct {
	text string
	err  error
	reqs []Request
}

func (s *stubBackend) Name() string { return "stub" }

func (s *stubBackend) Search(_ context.Context, req Request) (string, error) {
	s.reqs = append(s.reqs, req)
	return s.text, s.err
}

func TestServiceTranslatesAndExpands(t *testing.T) {
	chat := llmtest.Texts("<think>hmm</think>syngas production")
	backend := &stubBackend{text: "  retrieved facts \n"}
	svc := NewService(backend, NewTranslator(chat, "m", ""))

	res, err := svc.Retrieve(context.Background(), "合成气生产")
	require.NoError(t, err)
	assert.Equal(t, "syngas production", res.Query)
	assert.Equal(t, "retrieved facts", res.Text)
	assert.Equal(t, "stub", res.Source)
	assert.Equal(t,
		"syngas productionPlease analyze, expand and supplement the information of this sentence step by step in English.",
		res.Prompt)

	require.Len(t, backend.reqs, 1)
	assert.Equal(t, "syngas production", backend.reqs[0].Query)

	require.Equal(t, 1, chat.Calls())
	msg := chat.Requests[0].Messages[0]
	assert.Equal(t, "user", msg.Role)
	assert.Equal(t, "Translate it into English with as few words as possible.: 合成气生产", msg.Content)
}

func TestServiceWithoutTranslator(t *testing.T) {
	svc := NewService(Passthrough{}, nil)
	res, err := svc.Retrieve(context.Background(), "Partial oxidation facilitates oxygen use.")
	require.NoError(t, err)
	assert.Equal(t, "Partial oxidation facilitates oxygen use.", res.Query)
	assert.Equal(t, res.Query, res.Prompt)
	assert.Equal(t, res.Query, res.Text)
	assert.Equal(t, "passthrough", res.Source)
}

func TestServiceFailures(t *testing.T) {
	tests := []struct {
		name    string
		chat    *llmtest.Scripted
		backend *stubBackend
		stage   string
	}{
		{"translation error", func() *llmtest.Scripted {
			s := &llmtest.Scripted{}
			s.Push(llmtest.Reply{Err: errors.New("timeout")})
			return s
		}(), &stubBackend{text: "x"}, "translate"},
		{"empty translation", llmtest.Texts("<think>only thinking</think>"), &stubBackend{text: "x"}, "translate"},
		{"backend error", llmtest.Texts("q"), &stubBackend{err: errors.New("exit 1")}, "search"},
		{"blank output", llmtest.Texts("q"), &stubBackend{text: " \n"}, "empty"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewService(tt.backend, NewTranslator(tt.chat, "", ""))
			res, err := svc.Retrieve(context.Background(), "row")
			require.Error(t, err)
			assert.Nil(t, res)
			assert.ErrorIs(t, err, ErrRetrieval)
			var re *RetrievalError
			require.ErrorAs(t, err, &re)
			assert.Equal(t, tt.stage, re.Stage)
		})
	}
}

func TestTranslatorCachesAndTargetsLanguage(t *testing.T) {
	chat := &llmtest.Scripted{Route: func(req llm.ChatRequest) (string, error) { return "Synthesegas", nil }}
	tr := NewTranslator(chat, "", "German")

	for range 3 {
		out, err := tr.Translate(context.Background(), "syngas")
		require.NoError(t, err)
		assert.Equal(t, "Synthesegas", out)
	}
	assert.Equal(t, 1, chat.Calls())
	assert.Contains(t, chat.Requests[0].Messages[0].Content, "into German")
	assert.Contains(t, tr.Expansion(), "step by step in German.")
}
