package kgsynth

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/brunobiangulo/kgsynth/triple"
)

// evidenceMaxLen caps the length of an evidence passage.
const evidenceMaxLen = 300

// Evidence returns the sentence of text that best supports t, joined with
// its strongest neighbour when both fit in evidenceMaxLen. Sentences are
// scored by the significant words they share with the triple; when none
// shares a word, as in unsegmented CJK text, they are scored by containing
// the subject or object. It returns "" when neither finds a sentence.
func Evidence(text string, t triple.Triple) string {
	if strings.TrimSpace(text) == "" {
		return ""
	}

	sentences := splitSentences(text)
	scores := wordScores(sentences, significantWords(t.Subject+" "+t.Relation+" "+t.Object))
	best := bestScore(scores)
	if best < 0 {
		scores = phraseScores(sentences, t.Subject, t.Object)
		best = bestScore(scores)
	}
	if best < 0 {
		return ""
	}

	out := sentences[best]
	if utf8.RuneCountInString(out) >= evidenceMaxLen {
		return out
	}
	neighbour := -1
	for _, j := range []int{best + 1, best - 1} {
		if j < 0 || j >= len(sentences) || scores[j] == 0 {
			continue
		}
		if neighbour < 0 || scores[j] > scores[neighbour] {
			neighbour = j
		}
	}
	if neighbour < 0 {
		return out
	}
	first, second := out, sentences[neighbour]
	if neighbour < best {
		first, second = second, first
	}
	joined := first + " " + second
	if r, _ := utf8.DecodeLastRuneInString(first); r > unicode.MaxLatin1 {
		joined = first + second
	}
	if utf8.RuneCountInString(joined) <= evidenceMaxLen {
		out = joined
	}
	return out
}

func wordScores(sentences []string, terms map[string]bool) []int {
	scores := make([]int, len(sentences))
	if len(terms) == 0 {
		return scores
	}
	for i, s := range sentences {
		for w := range significantWords(s) {
			if terms[w] {
				scores[i]++
			}
		}
	}
	return scores
}

// phraseScores counts the phrases each sentence contains, ignoring case.
// Single-rune phrases are too ambiguous to count.
func phraseScores(sentences []string, phrases ...string) []int {
	var needles []string
	for _, p := range phrases {
		p = strings.ToLower(strings.TrimSpace(p))
		if utf8.RuneCountInString(p) >= 2 {
			needles = append(needles, p)
		}
	}
	scores := make([]int, len(sentences))
	for i, s := range sentences {
		lower := strings.ToLower(s)
		for _, n := range needles {
			if strings.Contains(lower, n) {
				scores[i]++
			}
		}
	}
	return scores
}

// bestScore returns the index of the first highest positive score, or -1.
func bestScore(scores []int) int {
	best := -1
	for i, sc := range scores {
		if sc > 0 && (best < 0 || sc > scores[best]) {
			best = i
		}
	}
	return best
}

// significantWords returns the lowercased words of at least four letters
// or digits that are not stop words.
func significantWords(text string) map[string]bool {
	words := make(map[string]bool)
	for _, w := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		if utf8.RuneCountInString(w) >= 4 && !stopWords[w] {
			words[w] = true
		}
	}
	return words
}

// splitSentences breaks text after '.', '?' or '!' when followed by
// whitespace or the end of text, and after the full-width '。', '？', '！'
// and '；' unconditionally. Newlines also end a sentence.
func splitSentences(text string) []string {
	var (
		out []string
		cur strings.Builder
	)
	flush := func() {
		if s := strings.TrimSpace(cur.String()); s != "" {
			out = append(out, s)
		}
		cur.Reset()
	}

	runes := []rune(text)
	for i, r := range runes {
		if r == '\n' {
			flush()
			continue
		}
		cur.WriteRune(r)
		switch r {
		case '.', '?', '!':
			if i+1 == len(runes) || unicode.IsSpace(runes[i+1]) {
				flush()
			}
		case '。', '？', '！', '；':
			flush()
		}
	}
	flush()
	return out
}

var stopWords = map[string]bool{
	"that": true, "this": true, "with": true, "from": true,
	"have": true, "been": true, "were": true, "they": true,
	"their": true, "will": true, "would": true, "could": true,
	"should": true, "about": true, "which": true, "there": true,
	"these": true, "those": true, "then": true, "than": true,
	"them": true, "what": true, "when": true, "where": true,
	"your": true, "more": true, "some": true, "such": true,
	"only": true, "also": true, "very": true, "just": true,
	"into": true, "over": true, "each": true, "does": true,
	"most": true, "after": true, "before": true, "other": true,
	"being": true, "same": true, "both": true, "between": true,
}
