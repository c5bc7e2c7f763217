package parser

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// TextParser handles plain text and markdown files. Blank-line separated
// blocks become sections; markdown headings label the blocks that follow.
type TextParser struct{}

func (p *TextParser) SupportedFormats() []string { return []string{"txt", "md"} }

func (p *TextParser) Parse(ctx context.Context, path string) (*ParseResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading text file: %w", err)
	}

	heading := filepath.Base(path)
	level := 1
	var sections []Section
	for _, block := range strings.Split(strings.ReplaceAll(string(data), "\r\n", "\n"), "\n\n") {
		block = strings.TrimSpace(block)
		if block == "" {
			continue
		}
		if strings.HasPrefix(block, "#") {
			first, rest, _ := strings.Cut(block, "\n")
			level = len(first) - len(strings.TrimLeft(first, "#"))
			heading = strings.TrimSpace(strings.TrimLeft(first, "#"))
			block = strings.TrimSpace(rest)
			if block == "" {
				continue
			}
		}
		sections = append(sections, Section{
			Heading: heading,
			Content: block,
			Level:   level,
			Type:    "paragraph",
		})
	}

	return &ParseResult{Sections: sections}, nil
}
