package graph

import (
	"context"
	"errors"
	"testing"

	"github.com/brunobiangulo/kgsynth/agent"
	"github.com/brunobiangulo/kgsynth/llm"
	"github.com/brunobiangulo/kgsynth/llm/llmtest"
	"github.com/brunobiangulo/kgsynth/triple"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const oxidation = "Partial oxidation facilitates oxygen use in the reformer."

// roleScript answers synthesizer and validator requests from separate queues.
type roleScript struct {
	synth    []string
	verdicts []string
	synthReq []llm.ChatRequest
	valReq   []llm.ChatRequest
}

func (r *roleScript) provider() *llmtest.Scripted {
	return &llmtest.Scripted{Route: func(req llm.ChatRequest) (string, error) {
		switch req.Messages[0].Content {
		case agent.TripleSynthesizer.Instructions:
			r.synthReq = append(r.synthReq, req)
			if len(r.synth) == 0 {
				return "", errors.New("synth script empty")
			}
			out := r.synth[0]
			r.synth = r.synth[1:]
			return out, nil
		case agent.TripleValidator.Instructions:
			r.valReq = append(r.valReq, req)
			if len(r.verdicts) == 0 {
				return "", errors.New("verdict script empty")
			}
			out := r.verdicts[0]
			r.verdicts = r.verdicts[1:]
			return out, nil
		}
		return "", errors.New("unexpected role")
	}}
}

func TestRunAcceptsOnFirstAttempt(t *testing.T) {
	rs := &roleScript{
		synth:    []string{"(Partial oxidation, facilitates, Oxygen)"},
		verdicts: []string{"Looks right. This is a loyal fact."},
	}
	s := NewSynthesizer(agent.NewRunner(rs.provider(), "", 0), LoopConfig{})

	res, err := s.Run(context.Background(), oxidation)
	require.NoError(t, err)
	assert.Equal(t, triple.Set{{"Partial oxidation", "facilitates", "Oxygen"}}, res.Triples)
	require.Len(t, res.Attempts, 1)
	assert.True(t, res.Attempts[0].Accepted)

	require.Len(t, rs.synthReq, 1)
	msgs := rs.synthReq[0].Messages
	require.Len(t, msgs, 2)
	assert.Equal(t, oxidation, msgs[1].Content)

	require.Len(t, rs.valReq, 1)
	vm := rs.valReq[0].Messages
	require.Len(t, vm, 3)
	assert.Equal(t, labelInput+oxidation, vm[1].Content)
	assert.Equal(t, labelTriples+"(Partial oxidation, facilitates, Oxygen)", vm[2].Content)
}

func TestRunRegeneratesUntilAccepted(t *testing.T) {
	rs := &roleScript{
		synth:    []string{"(A, B)", "(A, b, C)", "(A, B, C)"},
		verdicts: []string{"needs fixing", "needs fixing", "This is a loyal fact."},
	}
	s := NewSynthesizer(agent.NewRunner(rs.provider(), "", 0), LoopConfig{})

	res, err := s.Run(context.Background(), "ctx")
	require.NoError(t, err)
	assert.Len(t, res.Attempts, 3)
	assert.Len(t, rs.synthReq, 3)
	assert.Len(t, rs.valReq, 3)
	assert.Equal(t, triple.Set{{"A", "B", "C"}}, res.Triples)
	assert.Equal(t, "This is a loyal fact.", res.Verdict)

	// first attempt parsed nothing, but validation still ran on the empty set
	assert.Empty(t, res.Attempts[0].Triples)
	assert.Equal(t, labelTriples, rs.valReq[0].Messages[2].Content)

	regen := rs.synthReq[2].Messages
	require.Len(t, regen, 4)
	assert.Equal(t, labelInput+"ctx", regen[1].Content)
	assert.Equal(t, labelVerdict+"needs fixing", regen[2].Content)
	assert.Equal(t, labelPrevious+"(A, b, C)", regen[3].Content)
}

func TestRunEmptyPreviousMode(t *testing.T) {
	rs := &roleScript{
		synth:    []string{"(A, b, C)", "(A, B, C)"},
		verdicts: []string{"wrong relation", "This is a loyal fact."},
	}
	s := NewSynthesizer(agent.NewRunner(rs.provider(), "", 0), LoopConfig{PreviousTriples: EmptyPrevious})

	_, err := s.Run(context.Background(), "ctx")
	require.NoError(t, err)
	require.Len(t, rs.synthReq, 2)
	assert.Equal(t, labelPrevious, rs.synthReq[1].Messages[3].Content)
}

func TestRunExhaustsAttempts(t *testing.T) {
	rs := &roleScript{
		synth:    []string{"(A, B, C)", "(A, B, C)", "(A, B, C)"},
		verdicts: []string{"no", "still no", "never"},
	}
	s := NewSynthesizer(agent.NewRunner(rs.provider(), "", 0), LoopConfig{MaxAttempts: 3})

	res, err := s.Run(context.Background(), "ctx")
	require.Error(t, err)
	assert.Nil(t, res)
	assert.True(t, errors.Is(err, ErrExhaustedRetries))

	var ex *ExhaustedRetriesError
	require.True(t, errors.As(err, &ex))
	require.Len(t, ex.Attempts, 3)
	assert.Equal(t, "never", ex.Attempts[2].Verdict)
	assert.Len(t, rs.synthReq, 3)
	assert.Len(t, rs.valReq, 3)
}

func TestRunStopsOnBackendError(t *testing.T) {
	rs := &roleScript{synth: []string{"(A, B, C)"}}
	s := NewSynthesizer(agent.NewRunner(rs.provider(), "", 0), LoopConfig{})

	_, err := s.Run(context.Background(), "ctx")
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrExhaustedRetries))
	assert.Contains(t, err.Error(), "validation attempt 1")
}

func TestRunHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rs := &roleScript{}
	_, err := NewSynthesizer(agent.NewRunner(rs.provider(), "", 0), LoopConfig{}).Run(ctx, "ctx")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestValidateIsRepeatable(t *testing.T) {
	fake := &llmtest.Scripted{Route: func(req llm.ChatRequest) (string, error) {
		return "This is a loyal fact.", nil
	}}
	s := NewSynthesizer(agent.NewRunner(fake, "", 0), LoopConfig{})
	set := triple.Set{{"A", "B", "C"}}

	v1, ok1, err := s.Validate(context.Background(), "ctx", set)
	require.NoError(t, err)
	v2, ok2, err := s.Validate(context.Background(), "ctx", set)
	require.NoError(t, err)
	assert.Equal(t, v1, v2)
	assert.True(t, ok1)
	assert.Equal(t, ok1, ok2)
	assert.Equal(t, fake.Requests[0].Messages, fake.Requests[1].Messages)
}

func TestNewSynthesizerDefaults(t *testing.T) {
	cfg := NewSynthesizer(nil, LoopConfig{}).Config()
	assert.Equal(t, DefaultMaxAttempts, cfg.MaxAttempts)
	assert.Equal(t, DefaultAcceptPhrase, cfg.AcceptPhrase)
	assert.Equal(t, CarryPrevious, cfg.PreviousTriples)
	assert.Equal(t, "VALIDATING", Validating.String())
}
