// Command ingest indexes a document directory into the corpus database used
// by the corpus retrieval mode. Unchanged files are skipped.
//
// Usage:
//
//	go run -tags sqlite_fts5 ./cmd/ingest --config kgsynth.json --root ./docs
//	go run -tags sqlite_fts5 ./cmd/ingest --config kgsynth.json --list
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/brunobiangulo/kgsynth"
	"github.com/joho/godotenv"
)

func main() {
	var (
		configPath = flag.String("config", "", "Path to config file (JSON)")
		root       = flag.String("root", "", "Document directory (default: retrieval.corpus.root)")
		dbPath     = flag.String("db", "", "Corpus database (default: retrieval.corpus.db_path)")
		noEmbed    = flag.Bool("fts-only", false, "Index for full-text search only, without embeddings")
		list       = flag.Bool("list", false, "List indexed documents and their chunk counts instead of indexing")
	)
	flag.Parse()

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("loading .env", "error", err)
	}

	cfg, err := kgsynth.LoadConfig(*configPath)
	if err != nil {
		slog.Error("loading config", "error", err)
		os.Exit(1)
	}
	cfg.Retrieval.Mode = kgsynth.RetrievalCorpus
	if *dbPath != "" {
		cfg.Retrieval.Corpus.DBPath = *dbPath
	}
	if *noEmbed {
		cfg.Embedding = kgsynth.LLMConfig{}
	}

	pipeline, err := kgsynth.New(cfg)
	if err != nil {
		slog.Error("creating pipeline", "error", err)
		os.Exit(1)
	}
	defer pipeline.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *list {
		if err := listDocuments(ctx, pipeline); err != nil {
			slog.Error("listing documents failed", "error", err)
			pipeline.Close()
			os.Exit(1)
		}
		return
	}

	stats, err := pipeline.Ingest(ctx, *root)
	if err != nil {
		slog.Error("ingest failed", "error", err)
		pipeline.Close()
		os.Exit(1)
	}
	fmt.Printf("%d files seen, %d indexed, %d unchanged, %d failed, %d chunks\n",
		stats.Seen, stats.Indexed, stats.Unchanged, stats.Failed, stats.Chunks)
}

func listDocuments(ctx context.Context, p kgsynth.Pipeline) error {
	docs, err := p.Documents(ctx)
	if err != nil {
		return err
	}
	for _, d := range docs {
		chunks, err := p.Chunks(ctx, d.ID)
		if err != nil {
			return fmt.Errorf("chunks of %s: %w", d.Path, err)
		}
		fmt.Printf("%d\t%s\t%s\t%d chunks\t%s\n", d.ID, d.Status, d.Format, len(chunks), d.Path)
	}
	fmt.Printf("%d documents\n", len(docs))
	return nil
}
