package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/brunobiangulo/kgsynth/llm"
	"github.com/brunobiangulo/kgsynth/store"
)

// CorpusConfig tunes hybrid search over the local corpus index.
type CorpusConfig struct {
	MaxResults   int     `json:"max_results" yaml:"max_results"`
	WeightVector float64 `json:"weight_vector" yaml:"weight_vector"`
	WeightFTS    float64 `json:"weight_fts" yaml:"weight_fts"`
}

// CorpusBackend searches the store with FTS5 and sqlite-vec in parallel and
// fuses both rankings with RRF.
type CorpusBackend struct {
	store    *store.Store
	embedder llm.Provider
	cfg      CorpusConfig
}

// NewCorpusBackend creates a CorpusBackend. A nil embedder limits search
// to FTS5.
func NewCorpusBackend(s *store.Store, embedder llm.Provider, cfg CorpusConfig) *CorpusBackend {
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = 5
	}
	if cfg.WeightVector == 0 {
		cfg.WeightVector = 1.0
	}
	if cfg.WeightFTS == 0 {
		cfg.WeightFTS = 1.0
	}
	return &CorpusBackend{store: s, embedder: embedder, cfg: cfg}
}

func (b *CorpusBackend) Name() string { return "corpus" }

// Search returns the fused top chunks, each preceded by its source.
func (b *CorpusBackend) Search(ctx context.Context, req Request) (string, error) {
	results, err := b.search(ctx, req.Query)
	if err != nil {
		return "", err
	}
	var buf strings.Builder
	for i, r := range results {
		if i > 0 {
			buf.WriteString("\n\n")
		}
		fmt.Fprintf(&buf, "[%s", r.Filename)
		if r.Heading != "" {
			fmt.Fprintf(&buf, " | %s", r.Heading)
		}
		buf.WriteString("]\n")
		buf.WriteString(r.Content)
	}
	return buf.String(), nil
}

func (b *CorpusBackend) search(ctx context.Context, query string) ([]store.SearchResult, error) {
	weightVec, weightFTS := b.cfg.WeightVector, b.cfg.WeightFTS
	if detectIdentifiers(query) {
		weightFTS *= 2.0
		weightVec *= 0.5
	}

	type result struct {
		results []store.SearchResult
		err     error
	}
	vecCh := make(chan result, 1)
	ftsCh := make(chan result, 1)
	start := time.Now()

	go func() {
		if b.embedder == nil {
			vecCh <- result{}
			return
		}
		r, err := b.vectorSearch(ctx, query, b.cfg.MaxResults)
		vecCh <- result{r, err}
	}()

	go func() {
		q := ftsQuery(query)
		if q == "" {
			ftsCh <- result{}
			return
		}
		r, err := b.store.FTSSearch(ctx, q, b.cfg.MaxResults)
		ftsCh <- result{r, err}
	}()

	vecRes, ftsRes := <-vecCh, <-ftsCh
	if vecRes.err != nil {
		slog.Warn("retrieval: vector search failed", "error", vecRes.err)
	}
	if ftsRes.err != nil {
		slog.Warn("retrieval: fts search failed", "error", ftsRes.err)
	}

	fused := fuseRRF(vecRes.results, ftsRes.results, weightVec, weightFTS, b.cfg.MaxResults)
	slog.Debug("retrieval: corpus search complete",
		"vec_results", len(vecRes.results),
		"fts_results", len(ftsRes.results),
		"fused", len(fused),
		"elapsed", time.Since(start).Round(time.Millisecond))

	if len(fused) == 0 {
		if err := errors.Join(vecRes.err, ftsRes.err); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("no corpus matches")
	}
	return fused, nil
}

func (b *CorpusBackend) vectorSearch(ctx context.Context, query string, k int) ([]store.SearchResult, error) {
	embeddings, err := b.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, err
	}
	if len(embeddings) == 0 || len(embeddings[0]) == 0 {
		return nil, fmt.Errorf("empty embedding returned")
	}
	return b.store.VectorSearch(ctx, embeddings[0], k)
}
