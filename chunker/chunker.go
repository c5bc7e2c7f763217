// Package chunker splits parsed sections into retrieval-sized chunks.
package chunker

import (
	"math"
	"strings"

	"github.com/brunobiangulo/kgsynth/parser"
	"github.com/brunobiangulo/kgsynth/store"
)

// Config controls the chunking behaviour.
type Config struct {
	MaxTokens int `json:"max_tokens" yaml:"max_tokens"` // Maximum estimated tokens per chunk.
	Overlap   int `json:"overlap" yaml:"overlap"`       // Token overlap between consecutive chunks of one section.
}

// Chunker converts parsed document sections into store-ready chunks.
type Chunker struct {
	cfg Config
}

// New returns a Chunker with the given configuration.
// Zero-value fields are replaced with defaults.
func New(cfg Config) *Chunker {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 512
	}
	if cfg.Overlap < 0 || cfg.Overlap >= cfg.MaxTokens {
		cfg.Overlap = 0
	} else if cfg.Overlap == 0 {
		cfg.Overlap = 64
	}
	return &Chunker{cfg: cfg}
}

// Chunk converts sections into a flat, document-ordered slice of chunks.
// DocumentID is left for the caller to set.
func (c *Chunker) Chunk(sections []parser.Section) []store.Chunk {
	var chunks []store.Chunk
	for _, sec := range sections {
		content := strings.TrimSpace(sec.Content)
		if content == "" {
			continue
		}
		var fragments []string
		if sec.Type == "table" {
			fragments = c.splitTable(content)
		} else {
			fragments = c.splitContent(content)
		}
		for _, frag := range fragments {
			chunks = append(chunks, store.Chunk{
				Content:       frag,
				Heading:       sec.Heading,
				PageNumber:    sec.PageNumber,
				PositionInDoc: len(chunks),
				TokenCount:    estimateTokens(frag),
			})
		}
	}
	return chunks
}

// splitContent breaks a long text into fragments that each fit within
// MaxTokens, splitting at paragraph and then sentence boundaries.
// Consecutive fragments share Overlap tokens of trailing text. A single
// sentence longer than MaxTokens becomes its own oversized fragment.
func (c *Chunker) splitContent(text string) []string {
	if estimateTokens(text) <= c.cfg.MaxTokens {
		return []string{text}
	}

	type unit struct{ text, sep string }
	var units []unit
	for _, para := range splitParagraphs(text) {
		if estimateTokens(para) <= c.cfg.MaxTokens {
			units = append(units, unit{para, "\n\n"})
			continue
		}
		for i, s := range splitSentences(para) {
			sep := " "
			if i == 0 {
				sep = "\n\n"
			}
			units = append(units, unit{s, sep})
		}
	}

	var (
		fragments []string
		b         strings.Builder
		tokens    int
		added     int
	)
	for _, u := range units {
		n := estimateTokens(u.text)
		if added > 0 && tokens+n > c.cfg.MaxTokens {
			frag := strings.TrimSpace(b.String())
			fragments = append(fragments, frag)
			b.Reset()
			tokens, added = 0, 0
			if ov := extractOverlap(frag, c.cfg.Overlap); ov != "" {
				b.WriteString(ov)
				tokens = estimateTokens(ov)
			}
		}
		if b.Len() > 0 {
			b.WriteString(u.sep)
		}
		b.WriteString(u.text)
		tokens += n
		added++
	}
	if added > 0 {
		fragments = append(fragments, strings.TrimSpace(b.String()))
	}
	return fragments
}

// splitTable keeps whole rows together and repeats the header row in every
// fragment.
func (c *Chunker) splitTable(text string) []string {
	if estimateTokens(text) <= c.cfg.MaxTokens {
		return []string{text}
	}
	rows := strings.Split(text, "\n")
	header := rows[0]
	var (
		fragments []string
		current   []string
	)
	tokens := estimateTokens(header)
	for _, row := range rows[1:] {
		if strings.TrimSpace(row) == "" {
			continue
		}
		n := estimateTokens(row)
		if len(current) > 0 && tokens+n > c.cfg.MaxTokens {
			fragments = append(fragments, header+"\n"+strings.Join(current, "\n"))
			current = current[:0]
			tokens = estimateTokens(header)
		}
		current = append(current, row)
		tokens += n
	}
	if len(current) > 0 {
		fragments = append(fragments, header+"\n"+strings.Join(current, "\n"))
	}
	return fragments
}

// estimateTokens approximates the token count of text using a simple
// word-based heuristic: tokens ~ words * 1.3.
func estimateTokens(text string) int {
	words := len(strings.Fields(text))
	return int(math.Ceil(float64(words) * 1.3))
}

// splitParagraphs splits text on blank-line boundaries.
func splitParagraphs(text string) []string {
	raw := strings.Split(text, "\n\n")
	out := make([]string, 0, len(raw))
	for _, p := range raw {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// splitSentences splits on terminal punctuation followed by whitespace or
// end of text.
func splitSentences(text string) []string {
	var (
		sentences []string
		cur       strings.Builder
	)
	runes := []rune(text)
	for i, r := range runes {
		cur.WriteRune(r)
		if r != '.' && r != '?' && r != '!' {
			continue
		}
		if i+1 >= len(runes) || runes[i+1] == ' ' || runes[i+1] == '\n' || runes[i+1] == '\t' {
			if s := strings.TrimSpace(cur.String()); s != "" {
				sentences = append(sentences, s)
			}
			cur.Reset()
		}
	}
	if s := strings.TrimSpace(cur.String()); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}

// extractOverlap returns the trailing words of text whose estimated token
// count is at most maxTokens.
func extractOverlap(text string, maxTokens int) string {
	words := strings.Fields(text)
	maxWords := min(int(float64(maxTokens)/1.3), len(words))
	if maxWords <= 0 {
		return ""
	}
	return strings.Join(words[len(words)-maxWords:], " ")
}
