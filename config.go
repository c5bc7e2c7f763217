package kgsynth

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/brunobiangulo/kgsynth/batch"
	"github.com/brunobiangulo/kgsynth/dataset"
	"github.com/brunobiangulo/kgsynth/graph"
	"github.com/brunobiangulo/kgsynth/llm"
	"github.com/brunobiangulo/kgsynth/output"
	"github.com/brunobiangulo/kgsynth/retrieval"
	"github.com/brunobiangulo/kgsynth/store"
)

// Retrieval modes.
const (
	RetrievalCommand     = "command"
	RetrievalCorpus      = "corpus"
	RetrievalPassthrough = "passthrough"
)

// Checkpoint modes.
const (
	CheckpointNone   = "none"
	CheckpointRedis  = "redis"
	CheckpointSQLite = "sqlite"
)

// Config holds all configuration for a kgsynth pipeline.
type Config struct {
	// LLM providers
	Chat        LLMConfig `json:"chat" yaml:"chat"`
	Translation LLMConfig `json:"translation" yaml:"translation"` // optional: model for query translation (defaults to Chat)
	Embedding   LLMConfig `json:"embedding" yaml:"embedding"`     // corpus retrieval only
	Judge       LLMConfig `json:"judge" yaml:"judge"`             // offline evaluation (defaults to Chat)

	// Temperature applies to every agent role.
	Temperature float64 `json:"temperature" yaml:"temperature"`

	Loop      graph.LoopConfig `json:"loop" yaml:"loop"`
	Retrieval RetrievalConfig  `json:"retrieval" yaml:"retrieval"`
	Output    OutputConfig     `json:"output" yaml:"output"`
	Batch     BatchConfig      `json:"batch" yaml:"batch"`
	Redis     RedisConfig      `json:"redis" yaml:"redis"`

	// EntityType is stamped on every RTE and KGC record.
	EntityType string `json:"entity_type" yaml:"entity_type"`
}

// LLMConfig configures a single LLM provider endpoint.
type LLMConfig struct {
	Provider       string `json:"provider" yaml:"provider"` // ollama, lmstudio, openrouter, openai, groq, xai, gemini, custom
	Model          string `json:"model" yaml:"model"`
	BaseURL        string `json:"base_url" yaml:"base_url"`
	APIKey         string `json:"api_key" yaml:"api_key"`
	TimeoutSeconds int    `json:"timeout_seconds" yaml:"timeout_seconds"`
	MaxRetries     int    `json:"max_retries" yaml:"max_retries"`
}

func (c LLMConfig) provider() llm.Config {
	return llm.Config{
		Provider:   c.Provider,
		Model:      c.Model,
		BaseURL:    c.BaseURL,
		APIKey:     c.APIKey,
		Timeout:    time.Duration(c.TimeoutSeconds) * time.Second,
		MaxRetries: c.MaxRetries,
	}
}

// orElse returns c, or fallback when c names no provider.
func (c LLMConfig) orElse(fallback LLMConfig) LLMConfig {
	if c.Provider == "" {
		return fallback
	}
	return c
}

// RetrievalConfig configures how an input row becomes context text.
type RetrievalConfig struct {
	Mode           string                  `json:"mode" yaml:"mode"`
	Translate      bool                    `json:"translate" yaml:"translate"`
	TargetLanguage string                  `json:"target_language" yaml:"target_language"`
	Command        retrieval.CommandConfig `json:"command" yaml:"command"`
	Corpus         CorpusConfig            `json:"corpus" yaml:"corpus"`
	// CacheTTLSeconds enables the Redis retrieval cache when Redis.Addr is
	// set. Zero disables caching; negative caches without expiry.
	CacheTTLSeconds int `json:"cache_ttl_seconds" yaml:"cache_ttl_seconds"`
}

// CorpusConfig configures the local corpus index.
type CorpusConfig struct {
	DBPath         string  `json:"db_path" yaml:"db_path"`
	Root           string  `json:"root" yaml:"root"`
	EmbeddingDim   int     `json:"embedding_dim" yaml:"embedding_dim"`
	MaxResults     int     `json:"max_results" yaml:"max_results"`
	WeightVector   float64 `json:"weight_vector" yaml:"weight_vector"`
	WeightFTS      float64 `json:"weight_fts" yaml:"weight_fts"`
	MaxChunkTokens int     `json:"max_chunk_tokens" yaml:"max_chunk_tokens"`
	ChunkOverlap   int     `json:"chunk_overlap" yaml:"chunk_overlap"`
}

// OutputConfig lists the output destinations. The three file outputs are
// required; the others are enabled by setting them.
type OutputConfig struct {
	TablePath    string              `json:"table_path" yaml:"table_path"`
	RTEPath      string              `json:"rte_path" yaml:"rte_path"`
	KGCPath      string              `json:"kgc_path" yaml:"kgc_path"`
	Neo4j        *output.Neo4jConfig `json:"neo4j,omitempty" yaml:"neo4j,omitempty"`
	AMQP         *output.AMQPConfig  `json:"amqp,omitempty" yaml:"amqp,omitempty"`
	LedgerDBPath string              `json:"ledger_db_path" yaml:"ledger_db_path"`
}

// BatchConfig configures the batch input.
type BatchConfig struct {
	InputPath      string `json:"input_path" yaml:"input_path"`
	ContextColumn  string `json:"context_column" yaml:"context_column"`
	CheckpointMode string `json:"checkpoint_mode" yaml:"checkpoint_mode"`
	// Extraction runs the informational extraction pass on every row.
	Extraction bool `json:"extraction" yaml:"extraction"`
}

// RedisConfig addresses the Redis server shared by the retrieval cache and
// the checkpoint store.
type RedisConfig struct {
	Addr     string `json:"addr" yaml:"addr"`
	Password string `json:"password" yaml:"password"`
	DB       int    `json:"db" yaml:"db"`
	Prefix   string `json:"prefix" yaml:"prefix"`
}

// DefaultConfig returns a Config with sensible defaults for local inference
// and the external GraphRAG command.
func DefaultConfig() Config {
	return Config{
		Chat: LLMConfig{
			Provider: "ollama",
			Model:    "llama3.1:8b",
			BaseURL:  "http://localhost:11434",
		},
		Embedding: LLMConfig{
			Provider: "ollama",
			Model:    "nomic-embed-text",
			BaseURL:  "http://localhost:11434",
		},
		Loop: graph.LoopConfig{
			MaxAttempts:     graph.DefaultMaxAttempts,
			AcceptPhrase:    graph.DefaultAcceptPhrase,
			PreviousTriples: graph.CarryPrevious,
		},
		Retrieval: RetrievalConfig{
			Mode:           RetrievalCommand,
			Translate:      true,
			TargetLanguage: retrieval.DefaultLanguage,
			Command:        retrieval.DefaultCommandConfig(),
			Corpus: CorpusConfig{
				DBPath:         "corpus.db",
				EmbeddingDim:   store.DefaultEmbeddingDim,
				MaxResults:     5,
				WeightVector:   1.0,
				WeightFTS:      1.0,
				MaxChunkTokens: 512,
				ChunkOverlap:   64,
			},
		},
		Output: OutputConfig{
			TablePath: "output/output.xlsx",
			RTEPath:   "output/rte_output.json",
			KGCPath:   "output/kgc_output.json",
		},
		Batch: BatchConfig{
			ContextColumn:  batch.DefaultContextColumn,
			CheckpointMode: CheckpointNone,
			Extraction:     true,
		},
		EntityType: dataset.DefaultEntityType,
	}
}

// Validate reports the first invalid field as an error wrapping
// ErrInvalidConfig.
func (c *Config) Validate() error {
	invalid := func(field, format string, args ...any) error {
		return fmt.Errorf("%w: %s: %s", ErrInvalidConfig, field, fmt.Sprintf(format, args...))
	}

	if c.Chat.Provider == "" {
		return invalid("chat.provider", "required")
	}
	if c.Loop.MaxAttempts < 1 {
		return invalid("loop.max_attempts", "must be at least 1, got %d", c.Loop.MaxAttempts)
	}
	if strings.TrimSpace(c.Loop.AcceptPhrase) == "" {
		return invalid("loop.accept_phrase", "required")
	}
	switch c.Loop.PreviousTriples {
	case graph.CarryPrevious, graph.EmptyPrevious:
	default:
		return invalid("loop.previous_triples", "must be %q or %q, got %q",
			graph.CarryPrevious, graph.EmptyPrevious, c.Loop.PreviousTriples)
	}

	switch c.Retrieval.Mode {
	case RetrievalCommand:
		if c.Retrieval.Command.Executable == "" {
			return invalid("retrieval.command.executable", "required in command mode")
		}
	case RetrievalCorpus:
		if c.Retrieval.Corpus.DBPath == "" {
			return invalid("retrieval.corpus.db_path", "required in corpus mode")
		}
		if c.Retrieval.Corpus.EmbeddingDim < 1 {
			return invalid("retrieval.corpus.embedding_dim", "must be positive")
		}
	case RetrievalPassthrough:
	default:
		return invalid("retrieval.mode", "unknown mode %q", c.Retrieval.Mode)
	}

	if c.Output.TablePath == "" {
		return invalid("output.table_path", "required")
	}
	if c.Output.RTEPath == "" {
		return invalid("output.rte_path", "required")
	}
	if c.Output.KGCPath == "" {
		return invalid("output.kgc_path", "required")
	}
	if n := c.Output.Neo4j; n != nil && n.URI == "" {
		return invalid("output.neo4j.uri", "required when neo4j output is enabled")
	}
	if a := c.Output.AMQP; a != nil && (a.URL == "" || a.Queue == "") {
		return invalid("output.amqp", "url and queue are required when amqp output is enabled")
	}

	switch c.Batch.CheckpointMode {
	case "", CheckpointNone:
	case CheckpointRedis:
		if c.Redis.Addr == "" {
			return invalid("redis.addr", "required for redis checkpoints")
		}
	case CheckpointSQLite:
		if c.Output.LedgerDBPath == "" {
			return invalid("output.ledger_db_path", "required for sqlite checkpoints")
		}
	default:
		return invalid("batch.checkpoint_mode", "unknown mode %q", c.Batch.CheckpointMode)
	}
	return nil
}

// LoadConfig starts from DefaultConfig, overlays the JSON file at path when
// path is not empty, then applies KGSYNTH_* environment overrides.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("reading config: %w", err)
		}
		if err := json.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("%w: parsing %s: %v", ErrInvalidConfig, path, err)
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from KGSYNTH_* variables found by lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup("KGSYNTH_" + name); ok {
			*dst = v
		}
	}
	integer := func(name string, dst *int) error {
		v, ok := lookup("KGSYNTH_" + name)
		if !ok {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: KGSYNTH_%s: %v", ErrInvalidConfig, name, err)
		}
		*dst = n
		return nil
	}

	str("CHAT_PROVIDER", &c.Chat.Provider)
	str("CHAT_MODEL", &c.Chat.Model)
	str("CHAT_BASE_URL", &c.Chat.BaseURL)
	str("CHAT_API_KEY", &c.Chat.APIKey)
	str("TRANSLATION_PROVIDER", &c.Translation.Provider)
	str("TRANSLATION_MODEL", &c.Translation.Model)
	str("TRANSLATION_API_KEY", &c.Translation.APIKey)
	str("EMBEDDING_PROVIDER", &c.Embedding.Provider)
	str("EMBEDDING_MODEL", &c.Embedding.Model)
	str("EMBEDDING_API_KEY", &c.Embedding.APIKey)
	str("JUDGE_PROVIDER", &c.Judge.Provider)
	str("JUDGE_MODEL", &c.Judge.Model)
	str("JUDGE_API_KEY", &c.Judge.APIKey)
	str("RETRIEVAL_MODE", &c.Retrieval.Mode)
	str("GRAPHRAG_ROOT", &c.Retrieval.Command.Root)
	str("CORPUS_DB", &c.Retrieval.Corpus.DBPath)
	str("REDIS_ADDR", &c.Redis.Addr)
	str("REDIS_PASSWORD", &c.Redis.Password)
	str("CHECKPOINT_MODE", &c.Batch.CheckpointMode)
	str("LEDGER_DB", &c.Output.LedgerDBPath)

	if v, ok := lookup("KGSYNTH_NEO4J_URI"); ok && v != "" {
		if c.Output.Neo4j == nil {
			c.Output.Neo4j = &output.Neo4jConfig{}
		}
		c.Output.Neo4j.URI = v
		str("NEO4J_USER", &c.Output.Neo4j.User)
		str("NEO4J_PASSWORD", &c.Output.Neo4j.Password)
	}
	if v, ok := lookup("KGSYNTH_AMQP_URL"); ok && v != "" {
		if c.Output.AMQP == nil {
			c.Output.AMQP = &output.AMQPConfig{Queue: "kgsynth.records"}
		}
		c.Output.AMQP.URL = v
		str("AMQP_QUEUE", &c.Output.AMQP.Queue)
	}

	if v, ok := lookup("KGSYNTH_TRANSLATE"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%w: KGSYNTH_TRANSLATE: %v", ErrInvalidConfig, err)
		}
		c.Retrieval.Translate = b
	}
	if err := integer("MAX_ATTEMPTS", &c.Loop.MaxAttempts); err != nil {
		return err
	}
	return integer("CACHE_TTL_SECONDS", &c.Retrieval.CacheTTLSeconds)
}

// NewJudge creates the evaluation judge backend, falling back to the chat
// endpoint when no judge is configured. It returns the model to request.
func (c *Config) NewJudge() (llm.Provider, string, error) {
	jc := c.Judge.orElse(c.Chat)
	p, err := llm.NewProvider(jc.provider())
	if err != nil {
		return nil, "", fmt.Errorf("creating judge provider: %w", err)
	}
	return p, jc.Model, nil
}
