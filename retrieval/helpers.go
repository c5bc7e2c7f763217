package retrieval

import (
	"regexp"
	"strings"
)

// Structured identifiers in industrial text (tags, standards, ratings)
// are better served by exact FTS matches than by semantic similarity.
var identifierPatterns = []*regexp.Regexp{
	// equipment tags and part numbers: P-101, K201, PN: 4471
	regexp.MustCompile(`(?i)(?:PN[:\s]*|P/N[:\s]*)?\b[A-Z]{1,3}-?\d{3,6}\b`),
	// standards: ISO 9001, IEC 61511, API 610, ASME B31.3
	regexp.MustCompile(`(?i)\b(?:ISO|EN|IEC|API|ASME|ASTM|IEEE|DIN|NFPA)\s*-?\s*[A-Z]?\d[\w.-]*`),
	// electrical ratings: 24VDC, 400 VAC
	regexp.MustCompile(`(?i)\d+(?:\.\d+)?\s*V(?:AC|DC)\b`),
}

// detectIdentifiers reports whether query contains at least one
// structured identifier.
func detectIdentifiers(query string) bool {
	for _, p := range identifierPatterns {
		if p.MatchString(query) {
			return true
		}
	}
	return false
}

var ftsReplacer = strings.NewReplacer(
	"\"", " ", "*", " ", "(", " ", ")", " ",
	"+", " ", "-", " ", "^", " ", ":", " ",
	"?", " ", "[", " ", "]", " ", "{", " ",
	"}", " ", "!", " ", ".", " ", ",", " ",
	";", " ", "'", " ", "/", " ",
)

// significantTerms returns the distinct lower-cased words of query that
// are longer than two characters and not stop words.
func significantTerms(query string) []string {
	seen := make(map[string]bool)
	var terms []string
	for _, w := range strings.Fields(ftsReplacer.Replace(query)) {
		lower := strings.ToLower(w)
		if len(lower) > 2 && !stopWords[lower] && !seen[lower] {
			seen[lower] = true
			terms = append(terms, lower)
		}
	}
	return terms
}

// ftsQuery builds an FTS5 OR query: the quoted phrase plus every
// significant term. It returns "" when nothing searchable is left.
func ftsQuery(query string) string {
	words := strings.Fields(ftsReplacer.Replace(query))
	if len(words) == 0 {
		return ""
	}
	var parts []string
	if len(words) > 1 {
		parts = append(parts, "\""+strings.Join(words, " ")+"\"")
	}
	for _, t := range significantTerms(query) {
		parts = append(parts, "\""+t+"\"")
	}
	if len(parts) == 0 {
		return "\"" + strings.Join(words, " ") + "\""
	}
	return strings.Join(parts, " OR ")
}

var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true,
	"but": true, "in": true, "on": true, "at": true, "to": true,
	"for": true, "of": true, "with": true, "by": true, "from": true,
	"is": true, "are": true, "was": true, "were": true, "be": true,
	"been": true, "being": true, "have": true, "has": true, "had": true,
	"do": true, "does": true, "did": true, "will": true, "would": true,
	"could": true, "should": true, "may": true, "might": true, "must": true,
	"shall": true, "can": true, "this": true, "that": true, "these": true,
	"those": true, "what": true, "which": true, "who": true, "whom": true,
	"where": true, "when": true, "how": true, "why": true, "not": true,
	"no": true, "nor": true, "if": true, "then": true, "than": true,
	"so": true, "as": true, "about": true, "into": true, "between": true,
	"its": true, "their": true, "there": true, "also": true, "all": true,
}
