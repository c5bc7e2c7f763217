//go:build cgo

package kgsynth

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPipelineCorpusListing(t *testing.T) {
	cfg := testConfig(t)
	dir := t.TempDir()
	cfg.Retrieval.Mode = RetrievalCorpus
	cfg.Retrieval.Corpus.DBPath = filepath.Join(dir, "corpus.db")
	cfg.Retrieval.Corpus.Root = filepath.Join(dir, "docs")
	cfg.Embedding = LLMConfig{}

	require.NoError(t, os.MkdirAll(cfg.Retrieval.Corpus.Root, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(cfg.Retrieval.Corpus.Root, "reformer.txt"),
		[]byte(reformerText), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(cfg.Retrieval.Corpus.Root, "utility.md"),
		[]byte("# Utilities\n\nThe compressor supplies instrument air."), 0o644))

	p := newPipeline(t, cfg)
	ctx := context.Background()

	docs, err := p.Documents(ctx)
	require.NoError(t, err)
	assert.Empty(t, docs)

	stats, err := p.Ingest(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Indexed)

	docs, err = p.Documents(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "reformer.txt", docs[0].Filename)
	assert.Equal(t, "utility.md", docs[1].Filename)

	chunks, err := p.Chunks(ctx, docs[0].ID)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, docs[0].ID, chunks[0].DocumentID)
	assert.Contains(t, chunks[0].Content, "steam reformer")

	chunks, err = p.Chunks(ctx, docs[1].ID+100)
	require.NoError(t, err)
	assert.Empty(t, chunks)
}
