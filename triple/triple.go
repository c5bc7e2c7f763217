// Package triple parses and renders (subject, relation, object) facts in the
// line format the synthesizer role is instructed to produce.
package triple

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// Separator splits the three fields of a rendered triple.
const Separator = ", "

// ErrMalformed is the sentinel wrapped by every MalformedTripleError.
var ErrMalformed = errors.New("kgsynth: malformed triple")

// Triple is a single (subject, relation, object) fact.
type Triple struct {
	Subject  string `json:"subject"`
	Relation string `json:"relation"`
	Object   string `json:"object"`
}

// String renders the triple as "(subject, relation, object)".
func (t Triple) String() string {
	return "(" + t.Subject + Separator + t.Relation + Separator + t.Object + ")"
}

// Set is the ordered output of one synthesis round.
type Set []Triple

// Render returns one rendered triple per line.
func (s Set) Render() string {
	lines := make([]string, len(s))
	for i, t := range s {
		lines[i] = t.String()
	}
	return strings.Join(lines, "\n")
}

// MalformedTripleError reports a line that is not a three-field triple.
type MalformedTripleError struct {
	Line   string
	Fields int
}

func (e *MalformedTripleError) Error() string {
	return fmt.Sprintf("malformed triple %q: want 3 fields, got %d", e.Line, e.Fields)
}

func (e *MalformedTripleError) Unwrap() error { return ErrMalformed }

// ParseLine parses one line of model output. Surrounding whitespace and one
// pair of enclosing parentheses are tolerated; the remainder must split on
// ", " into exactly three non-empty fields.
func ParseLine(line string) (Triple, error) {
	s := strings.TrimSpace(line)
	if strings.HasSuffix(s, ")") {
		s = strings.TrimSpace(s[:len(s)-1])
	}
	s = strings.TrimPrefix(s, "(")
	s = strings.TrimSuffix(s, ")")

	parts := strings.Split(s, Separator)
	if len(parts) != 3 {
		return Triple{}, &MalformedTripleError{Line: line, Fields: len(parts)}
	}
	t := Triple{
		Subject:  strings.TrimSpace(parts[0]),
		Relation: strings.TrimSpace(parts[1]),
		Object:   strings.TrimSpace(parts[2]),
	}
	if t.Subject == "" || t.Relation == "" || t.Object == "" {
		return Triple{}, &MalformedTripleError{Line: line, Fields: nonEmpty(parts)}
	}
	return t, nil
}

func nonEmpty(parts []string) int {
	n := 0
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			n++
		}
	}
	return n
}

// Parse parses each line and keeps the ones that are well formed, in input
// order. Malformed lines are logged and dropped.
func Parse(lines []string) Set {
	set := make(Set, 0, len(lines))
	for _, line := range lines {
		t, err := ParseLine(line)
		if err != nil {
			slog.Warn("triple: dropping line", "error", err)
			continue
		}
		set = append(set, t)
	}
	return set
}

// ParseText splits a completion into lines and parses them.
func ParseText(text string) Set {
	return Parse(SplitLines(text))
}

// SplitLines splits text on line breaks, accepting both \n and \r\n.
func SplitLines(text string) []string {
	if text == "" {
		return nil
	}
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}
