package retrieval

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/brunobiangulo/kgsynth/chunker"
	"github.com/brunobiangulo/kgsynth/llm"
	"github.com/brunobiangulo/kgsynth/parser"
	"github.com/brunobiangulo/kgsynth/store"
)

// IngestStats summarises one ingestion pass.
type IngestStats struct {
	Seen      int `json:"seen"`
	Indexed   int `json:"indexed"`
	Unchanged int `json:"unchanged"`
	Failed    int `json:"failed"`
	Chunks    int `json:"chunks"`
}

// Ingester builds the corpus index used by CorpusBackend.
type Ingester struct {
	store     *store.Store
	parsers   *parser.Registry
	chunker   *chunker.Chunker
	embedder  llm.Provider
	batchSize int
}

// NewIngester creates an Ingester. A nil embedder indexes chunks for FTS only.
func NewIngester(s *store.Store, parsers *parser.Registry, c *chunker.Chunker, embedder llm.Provider) *Ingester {
	return &Ingester{store: s, parsers: parsers, chunker: c, embedder: embedder, batchSize: 32}
}

// IngestDir ingests every supported file under root. Per-file failures are
// logged and counted; only walk and store errors abort.
func (in *Ingester) IngestDir(ctx context.Context, root string) (*IngestStats, error) {
	stats := &IngestStats{}
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !in.parsers.Supports(path) {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		stats.Seen++
		n, changed, err := in.IngestFile(ctx, path)
		switch {
		case err != nil:
			stats.Failed++
			slog.Warn("ingest: file failed", "path", path, "error", err)
		case !changed:
			stats.Unchanged++
		default:
			stats.Indexed++
			stats.Chunks += n
		}
		return nil
	})
	if err != nil {
		return stats, fmt.Errorf("walking corpus %s: %w", root, err)
	}
	slog.Info("ingest: corpus pass complete",
		"root", root, "seen", stats.Seen, "indexed", stats.Indexed,
		"unchanged", stats.Unchanged, "failed", stats.Failed, "chunks", stats.Chunks)
	return stats, nil
}

// IngestFile indexes one file unless its content hash is unchanged since the
// last successful pass. It returns the number of chunks written and whether
// the file was (re)indexed.
func (in *Ingester) IngestFile(ctx context.Context, path string) (int, bool, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return 0, false, fmt.Errorf("resolving path: %w", err)
	}
	hash, err := fileHash(absPath)
	if err != nil {
		return 0, false, fmt.Errorf("hashing file: %w", err)
	}

	existing, err := in.store.GetDocumentByPath(ctx, absPath)
	if err != nil {
		return 0, false, fmt.Errorf("looking up document: %w", err)
	}
	if existing != nil && existing.ContentHash == hash && existing.Status == store.StatusReady {
		return 0, false, nil
	}

	format := parser.Format(absPath)
	p, err := in.parsers.Get(format)
	if err != nil {
		return 0, false, err
	}

	docID, err := in.store.UpsertDocument(ctx, store.Document{
		Path:        absPath,
		Filename:    filepath.Base(absPath),
		Format:      format,
		ContentHash: hash,
		Status:      store.StatusPending,
	})
	if err != nil {
		return 0, false, fmt.Errorf("upserting document: %w", err)
	}

	fail := func(err error) (int, bool, error) {
		if uerr := in.store.UpdateDocumentStatus(ctx, docID, store.StatusFailed); uerr != nil {
			slog.Warn("ingest: marking document failed", "doc_id", docID, "error", uerr)
		}
		return 0, false, err
	}

	start := time.Now()
	parsed, err := p.Parse(ctx, absPath)
	if err != nil {
		return fail(fmt.Errorf("parsing: %w", err))
	}
	chunks := in.chunker.Chunk(parsed.Sections)
	for i := range chunks {
		chunks[i].DocumentID = docID
	}

	if err := in.store.DeleteDocumentData(ctx, docID); err != nil {
		return fail(fmt.Errorf("cleaning old data: %w", err))
	}
	ids, err := in.store.InsertChunks(ctx, chunks)
	if err != nil {
		return fail(fmt.Errorf("inserting chunks: %w", err))
	}
	if err := in.embed(ctx, chunks, ids); err != nil {
		return fail(fmt.Errorf("embedding chunks: %w", err))
	}
	if err := in.store.UpdateDocumentStatus(ctx, docID, store.StatusReady); err != nil {
		return 0, false, err
	}

	slog.Info("ingest: document indexed",
		"file", filepath.Base(absPath), "sections", len(parsed.Sections), "chunks", len(chunks),
		"elapsed", time.Since(start).Round(time.Millisecond))
	return len(chunks), true, nil
}

func (in *Ingester) embed(ctx context.Context, chunks []store.Chunk, ids []int64) error {
	if in.embedder == nil {
		return nil
	}
	for startIdx := 0; startIdx < len(chunks); startIdx += in.batchSize {
		end := min(startIdx+in.batchSize, len(chunks))
		texts := make([]string, 0, end-startIdx)
		for _, c := range chunks[startIdx:end] {
			texts = append(texts, c.Content)
		}
		vecs, err := in.embedder.Embed(ctx, texts)
		if err != nil {
			return err
		}
		if len(vecs) != len(texts) {
			return fmt.Errorf("embedder returned %d vectors for %d texts", len(vecs), len(texts))
		}
		for i, v := range vecs {
			if err := in.store.InsertEmbedding(ctx, ids[startIdx+i], v); err != nil {
				return err
			}
		}
	}
	return nil
}

func fileHash(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
