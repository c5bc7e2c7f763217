package kgsynth

import (
	"errors"

	"github.com/brunobiangulo/kgsynth/batch"
	"github.com/brunobiangulo/kgsynth/dataset"
	"github.com/brunobiangulo/kgsynth/graph"
	"github.com/brunobiangulo/kgsynth/llm"
	"github.com/brunobiangulo/kgsynth/output"
	"github.com/brunobiangulo/kgsynth/retrieval"
	"github.com/brunobiangulo/kgsynth/triple"
)

// The sentinels below are the ones the packages wrap, so errors.Is works
// against either name.
var (
	// ErrInvalidConfig is returned for invalid configuration values.
	ErrInvalidConfig = errors.New("kgsynth: invalid configuration")

	// ErrRetrievalFailed is returned when the retrieval service fails or
	// returns unusable output for a row.
	ErrRetrievalFailed = retrieval.ErrRetrieval

	// ErrMalformedTriple is returned when a line of model output is not a
	// (subject, relation, object) triple.
	ErrMalformedTriple = triple.ErrMalformed

	// ErrExhaustedRetries is returned when the validator never accepts a
	// triple set within the configured number of synthesis attempts.
	ErrExhaustedRetries = graph.ErrExhaustedRetries

	// ErrQAGenerationFailed is returned when a question/answer pair cannot
	// be built for a triple.
	ErrQAGenerationFailed = dataset.ErrQAGeneration

	// ErrOutputUnavailable is returned when an output destination cannot be
	// initialised or written. It aborts the batch.
	ErrOutputUnavailable = output.ErrUnavailable

	// ErrRowFailed is wrapped by every per-row failure.
	ErrRowFailed = batch.ErrRow

	// ErrLLMRequestFailed is returned when a completion request fails.
	ErrLLMRequestFailed = llm.ErrRequestFailed
)
