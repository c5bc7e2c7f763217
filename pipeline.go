// Package kgsynth turns industrial text into knowledge graph triples and the
// QA, RTE and KGC dataset records derived from them. A Pipeline wires the
// retrieval step, the agent roles, the synthesize/validate loop, the record
// builder and the output destinations behind one entry point.
package kgsynth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/brunobiangulo/kgsynth/agent"
	"github.com/brunobiangulo/kgsynth/batch"
	"github.com/brunobiangulo/kgsynth/chunker"
	"github.com/brunobiangulo/kgsynth/dataset"
	"github.com/brunobiangulo/kgsynth/graph"
	"github.com/brunobiangulo/kgsynth/llm"
	"github.com/brunobiangulo/kgsynth/output"
	"github.com/brunobiangulo/kgsynth/parser"
	"github.com/brunobiangulo/kgsynth/retrieval"
	"github.com/brunobiangulo/kgsynth/store"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Pipeline is the main entry point of kgsynth. Calls that write records are
// serialised, since all of them share the same output destinations.
type Pipeline interface {
	// Run processes rows in order and writes every record to the outputs.
	// source names the input for checkpoints and the run ledger.
	Run(ctx context.Context, source string, rows []batch.InputRow) (*batch.Summary, error)

	// RunFile reads the context column of the workbook at path and runs it.
	// An empty path uses the configured batch input.
	RunFile(ctx context.Context, path string) (*batch.Summary, error)

	// Generate processes a single context and reports what was produced,
	// with a supporting passage from the retrieved text for each record.
	Generate(ctx context.Context, text string) (*Generation, error)

	// Ingest indexes the documents under root for corpus retrieval. An
	// empty root uses the configured corpus root.
	Ingest(ctx context.Context, root string) (*retrieval.IngestStats, error)

	// Documents lists the indexed corpus documents ordered by path.
	Documents(ctx context.Context) ([]store.Document, error)

	// Chunks returns the chunks of one corpus document in document order.
	Chunks(ctx context.Context, documentID int64) ([]store.Chunk, error)

	// Config returns the configuration the pipeline was built with.
	Config() Config

	// Close releases every output and connection.
	Close() error
}

// Generation is the outcome of Generate.
type Generation struct {
	RunID          string            `json:"run_id"`
	Context        string            `json:"context"`
	Query          string            `json:"query,omitempty"`
	Status         string            `json:"status"`
	Error          string            `json:"error,omitempty"`
	ExtractionRole string            `json:"extraction_role,omitempty"`
	Extraction     []string          `json:"extraction,omitempty"`
	Attempts       int               `json:"attempts"`
	Verdict        string            `json:"verdict,omitempty"`
	Triples        []string          `json:"triples"`
	Records        []GeneratedRecord `json:"records"`
	SkippedTriples int               `json:"skipped_triples"`
	ElapsedMs      int64             `json:"elapsed_ms"`
}

// GeneratedRecord is one record of a Generation.
type GeneratedRecord struct {
	Triple   string            `json:"triple"`
	Question string            `json:"question"`
	Answer   string            `json:"answer"`
	Evidence string            `json:"evidence,omitempty"`
	RTE      dataset.RTERecord `json:"rte"`
	KGC      dataset.KGCRecord `json:"kgc"`
}

// Option overrides a collaborator New would otherwise build from Config.
type Option func(*options)

type options struct {
	chat        llm.Provider
	translation llm.Provider
	embedding   llm.Provider
	retriever   retrieval.Retriever
	sinks       []output.Sink
	picker      graph.Picker
	checkpoint  batch.Checkpointer
	redis       redis.Cmdable
}

// WithChatProvider sets the backend shared by every agent role.
func WithChatProvider(p llm.Provider) Option {
	return func(o *options) { o.chat = p }
}

// WithTranslationProvider sets the backend of the query translator.
func WithTranslationProvider(p llm.Provider) Option {
	return func(o *options) { o.translation = p }
}

// WithEmbeddingProvider sets the backend used for corpus embeddings.
func WithEmbeddingProvider(p llm.Provider) Option {
	return func(o *options) { o.embedding = p }
}

// WithRetriever replaces the configured retrieval step.
func WithRetriever(r retrieval.Retriever) Option {
	return func(o *options) { o.retriever = r }
}

// WithSink adds an output destination next to the configured ones.
func WithSink(s output.Sink) Option {
	return func(o *options) { o.sinks = append(o.sinks, s) }
}

// WithPicker sets the source of the extraction role choice.
func WithPicker(p graph.Picker) Option {
	return func(o *options) { o.picker = p }
}

// WithCheckpointer replaces the configured checkpoint store.
func WithCheckpointer(c batch.Checkpointer) Option {
	return func(o *options) { o.checkpoint = c }
}

// WithRedis sets the Redis client used by the retrieval cache and the
// redis checkpoint mode instead of dialling Config.Redis.Addr.
func WithRedis(c redis.Cmdable) Option {
	return func(o *options) { o.redis = c }
}

// pipeline is the concrete implementation of Pipeline.
type pipeline struct {
	cfg      Config
	driver   *batch.Driver
	sink     output.Sink
	corpus   *store.Store
	embedder llm.Provider
	closers  []io.Closer

	mu sync.Mutex
}

// New validates cfg and builds a Pipeline from it.
func New(cfg Config, opts ...Option) (Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	p := &pipeline{cfg: cfg}
	if err := p.build(o); err != nil {
		p.Close()
		return nil, err
	}
	return p, nil
}

func (p *pipeline) build(o *options) error {
	cfg := p.cfg

	chat := o.chat
	if chat == nil {
		var err error
		if chat, err = llm.NewProvider(cfg.Chat.provider()); err != nil {
			return fmt.Errorf("creating chat provider: %w", err)
		}
	}

	rdb := o.redis
	if rdb == nil && cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		p.closers = append(p.closers, client)
		rdb = client
	}

	var ledger *store.Store
	if path := cfg.Output.LedgerDBPath; path != "" {
		s, err := store.New(path, cfg.Retrieval.Corpus.EmbeddingDim)
		if err != nil {
			return fmt.Errorf("opening ledger: %w", err)
		}
		p.closers = append(p.closers, s)
		ledger = s
	}

	retriever := o.retriever
	if retriever == nil {
		r, err := p.buildRetriever(o, chat, ledger)
		if err != nil {
			return err
		}
		retriever = r
		if rdb != nil && cfg.Retrieval.CacheTTLSeconds != 0 {
			var ttl time.Duration
			if cfg.Retrieval.CacheTTLSeconds > 0 {
				ttl = time.Duration(cfg.Retrieval.CacheTTLSeconds) * time.Second
			}
			retriever = retrieval.NewCachedRetriever(retriever, rdb, retrieval.CacheOptions{
				Prefix: prefixed(cfg.Redis.Prefix, "retrieval:"),
				TTL:    ttl,
			})
		}
	}

	sinks, err := p.buildSinks(ledger)
	if err != nil {
		return err
	}
	sinks = append(sinks, o.sinks...)
	multi := output.Multi(sinks)
	p.closers = append(p.closers, multi)
	p.sink = multi

	checkpoint := o.checkpoint
	if checkpoint == nil {
		switch cfg.Batch.CheckpointMode {
		case CheckpointRedis:
			if rdb == nil {
				return fmt.Errorf("%w: redis checkpoints need a redis client", ErrInvalidConfig)
			}
			checkpoint = batch.NewRedisCheckpointer(rdb, prefixed(cfg.Redis.Prefix, "checkpoint:"), 0)
		case CheckpointSQLite:
			checkpoint = batch.NewStoreCheckpointer(ledger)
		}
	}

	roles := agent.NewRunner(chat, cfg.Chat.Model, cfg.Temperature)
	bo := batch.Options{Ledger: ledger, Checkpoint: checkpoint}
	if cfg.Batch.Extraction {
		bo.Extractor = graph.NewExtractor(roles, o.picker)
	}
	p.driver = batch.NewDriver(
		retriever,
		graph.NewSynthesizer(roles, cfg.Loop),
		dataset.NewBuilder(roles, cfg.EntityType),
		multi,
		bo,
	)

	slog.Info("kgsynth: pipeline ready",
		"retrieval", cfg.Retrieval.Mode,
		"translate", cfg.Retrieval.Translate,
		"max_attempts", cfg.Loop.MaxAttempts,
		"outputs", len(sinks),
		"checkpoint", cfg.Batch.CheckpointMode)
	return nil
}

func (p *pipeline) buildRetriever(o *options, chat llm.Provider, ledger *store.Store) (retrieval.Retriever, error) {
	cfg := p.cfg.Retrieval

	var backend retrieval.Backend
	switch cfg.Mode {
	case RetrievalCommand:
		backend = retrieval.NewCommandBackend(cfg.Command)
	case RetrievalCorpus:
		s := ledger
		if s == nil || cfg.Corpus.DBPath != p.cfg.Output.LedgerDBPath {
			var err error
			if s, err = store.New(cfg.Corpus.DBPath, cfg.Corpus.EmbeddingDim); err != nil {
				return nil, fmt.Errorf("opening corpus: %w", err)
			}
			p.closers = append(p.closers, s)
		}
		embedder := o.embedding
		if embedder == nil && p.cfg.Embedding.Provider != "" {
			var err error
			if embedder, err = llm.NewProvider(p.cfg.Embedding.provider()); err != nil {
				return nil, fmt.Errorf("creating embedding provider: %w", err)
			}
		}
		p.corpus, p.embedder = s, embedder
		backend = retrieval.NewCorpusBackend(s, embedder, retrieval.CorpusConfig{
			MaxResults:   cfg.Corpus.MaxResults,
			WeightVector: cfg.Corpus.WeightVector,
			WeightFTS:    cfg.Corpus.WeightFTS,
		})
	default:
		backend = retrieval.Passthrough{}
	}

	var translator *retrieval.Translator
	if cfg.Translate {
		tc := p.cfg.Translation.orElse(p.cfg.Chat)
		tp := o.translation
		switch {
		case tp != nil:
		case p.cfg.Translation.Provider == "":
			tp = chat
		default:
			var err error
			if tp, err = llm.NewProvider(tc.provider()); err != nil {
				return nil, fmt.Errorf("creating translation provider: %w", err)
			}
		}
		translator = retrieval.NewTranslator(tp, tc.Model, cfg.TargetLanguage)
	}
	return retrieval.NewService(backend, translator), nil
}

func (p *pipeline) buildSinks(ledger *store.Store) ([]output.Sink, error) {
	cfg := p.cfg.Output
	sinks := []output.Sink{
		output.NewTableSink(cfg.TablePath),
		output.NewRTESink(cfg.RTEPath),
		output.NewKGCSink(cfg.KGCPath),
	}
	if cfg.Neo4j != nil {
		g, err := output.NewGraphSink(*cfg.Neo4j)
		if err != nil {
			return nil, fmt.Errorf("creating neo4j output: %w", err)
		}
		sinks = append(sinks, g)
	}
	if cfg.AMQP != nil {
		sinks = append(sinks, output.NewQueueSink(*cfg.AMQP))
	}
	if ledger != nil {
		sinks = append(sinks, output.NewLedgerSink(ledger))
	}
	return sinks, nil
}

func (p *pipeline) Run(ctx context.Context, source string, rows []batch.InputRow) (*batch.Summary, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.driver.Run(ctx, source, rows)
}

func (p *pipeline) RunFile(ctx context.Context, path string) (*batch.Summary, error) {
	if path == "" {
		path = p.cfg.Batch.InputPath
	}
	if path == "" {
		return nil, fmt.Errorf("%w: batch.input_path: required", ErrInvalidConfig)
	}
	rows, err := batch.ReadRows(path, p.cfg.Batch.ContextColumn)
	if err != nil {
		return nil, err
	}
	slog.Info("kgsynth: input loaded", "path", path, "rows", len(rows))
	return p.Run(ctx, path, rows)
}

func (p *pipeline) Generate(ctx context.Context, text string) (*Generation, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.sink.Init(ctx); err != nil {
		return nil, err
	}
	runID := uuid.NewString()
	if b, ok := p.sink.(output.RunBinder); ok {
		b.BindRun(runID)
	}

	res, err := p.driver.ProcessRow(ctx, batch.InputRow{Context: text})
	if err != nil {
		return nil, err
	}

	gen := &Generation{
		RunID:          runID,
		Context:        text,
		Status:         res.Status,
		ExtractionRole: res.ExtractionRole,
		Extraction:     res.Extraction,
		Attempts:       len(res.Attempts),
		Triples:        make([]string, 0, len(res.Triples)),
		Records:        make([]GeneratedRecord, 0, len(res.Records)),
		SkippedTriples: res.SkippedTriples,
		ElapsedMs:      res.Elapsed.Milliseconds(),
	}
	if res.Err != nil {
		gen.Error = res.Err.Error()
	}
	if n := len(res.Attempts); n > 0 {
		gen.Verdict = res.Attempts[n-1].Verdict
	}
	for _, t := range res.Triples {
		gen.Triples = append(gen.Triples, t.String())
	}
	var retrieved string
	if res.Retrieved != nil {
		gen.Query = res.Retrieved.Query
		retrieved = res.Retrieved.Text
	}
	for _, rec := range res.Records {
		gen.Records = append(gen.Records, GeneratedRecord{
			Triple:   rec.Triple.String(),
			Question: rec.QA.Question,
			Answer:   rec.QA.Answer,
			Evidence: Evidence(retrieved, rec.Triple),
			RTE:      rec.RTE,
			KGC:      rec.KGC,
		})
	}
	return gen, nil
}

func (p *pipeline) Ingest(ctx context.Context, root string) (*retrieval.IngestStats, error) {
	if p.corpus == nil {
		return nil, fmt.Errorf("%w: ingest needs retrieval.mode %q", ErrInvalidConfig, RetrievalCorpus)
	}
	if root == "" {
		root = p.cfg.Retrieval.Corpus.Root
	}
	if root == "" {
		return nil, fmt.Errorf("%w: retrieval.corpus.root: required", ErrInvalidConfig)
	}
	in := retrieval.NewIngester(p.corpus, parser.NewRegistry(), chunker.New(chunker.Config{
		MaxTokens: p.cfg.Retrieval.Corpus.MaxChunkTokens,
		Overlap:   p.cfg.Retrieval.Corpus.ChunkOverlap,
	}), p.embedder)
	return in.IngestDir(ctx, root)
}

func (p *pipeline) Documents(ctx context.Context) ([]store.Document, error) {
	if p.corpus == nil {
		return nil, fmt.Errorf("%w: listing documents needs retrieval.mode %q", ErrInvalidConfig, RetrievalCorpus)
	}
	return p.corpus.ListDocuments(ctx)
}

func (p *pipeline) Chunks(ctx context.Context, documentID int64) ([]store.Chunk, error) {
	if p.corpus == nil {
		return nil, fmt.Errorf("%w: listing chunks needs retrieval.mode %q", ErrInvalidConfig, RetrievalCorpus)
	}
	return p.corpus.GetChunksByDocument(ctx, documentID)
}

func (p *pipeline) Config() Config { return p.cfg }

// Close releases resources in reverse order of creation.
func (p *pipeline) Close() error {
	var errs []error
	for i := len(p.closers) - 1; i >= 0; i-- {
		if err := p.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	p.closers = nil
	return errors.Join(errs...)
}

func prefixed(prefix, suffix string) string {
	if prefix == "" {
		return ""
	}
	return prefix + suffix
}
