// Package parser turns retrieval corpus files into ordered sections.
package parser

import (
	"context"
	"strings"
)

// ParseResult is what a parser produces from a document file.
type ParseResult struct {
	Sections []Section
	Metadata map[string]string
}

// Section is a logical section of a parsed document.
type Section struct {
	Heading    string
	Content    string
	Level      int // 1=top, 2=sub, ...
	PageNumber int
	Type       string // "section", "table", "specification", "paragraph"
	Metadata   map[string]string
}

// Parser can parse a specific document format.
type Parser interface {
	Parse(ctx context.Context, path string) (*ParseResult, error)
	SupportedFormats() []string
}

// Text joins all section contents, separated by blank lines.
func (r *ParseResult) Text() string {
	parts := make([]string, len(r.Sections))
	for i, s := range r.Sections {
		parts[i] = s.Content
	}
	return strings.Join(parts, "\n\n")
}
