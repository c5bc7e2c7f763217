package parser

import (
	"context"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// PDFParser extracts plain text per page and splits it on likely headings.
type PDFParser struct{}

func (p *PDFParser) SupportedFormats() []string { return []string{"pdf"} }

func (p *PDFParser) Parse(ctx context.Context, path string) (*ParseResult, error) {
	f, reader, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening PDF: %w", err)
	}
	defer f.Close()

	var sections []Section
	for i := 1; i <= reader.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		sections = append(sections, splitPageIntoSections(text, i)...)
	}

	if len(sections) == 0 {
		return nil, fmt.Errorf("no extractable text in PDF")
	}
	return &ParseResult{
		Sections: sections,
		Metadata: map[string]string{"pages": fmt.Sprint(reader.NumPage())},
	}, nil
}

// splitPageIntoSections breaks page text into logical sections.
func splitPageIntoSections(text string, pageNum int) []Section {
	var (
		sections []Section
		content  strings.Builder
		heading  string
		level    int
	)
	flush := func() {
		if content.Len() == 0 {
			return
		}
		body := strings.TrimSpace(content.String())
		sections = append(sections, Section{
			Heading:    heading,
			Content:    body,
			Level:      level,
			PageNumber: pageNum,
			Type:       classifySectionType(heading, body),
		})
		content.Reset()
	}

	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if isLikelyHeading(trimmed) {
			flush()
			heading = trimmed
			level = detectHeadingLevel(trimmed)
			continue
		}
		if content.Len() > 0 {
			content.WriteString("\n")
		}
		content.WriteString(trimmed)
	}
	flush()

	if len(sections) == 0 && strings.TrimSpace(text) != "" {
		sections = append(sections, Section{Content: text, PageNumber: pageNum, Type: "paragraph"})
	}
	return sections
}

func isLikelyHeading(line string) bool {
	if len(line) > 2 && len(line) < 100 && line == strings.ToUpper(line) && strings.ContainsFunc(line, isLetter) {
		return true
	}
	if len(line) >= 120 {
		return false
	}
	// "1.", "3.2", "7.3.1 Scope"
	if line[0] >= '0' && line[0] <= '9' && strings.Contains(line[:min(10, len(line))], ".") {
		return true
	}
	lower := strings.ToLower(line)
	for _, p := range []string{"section ", "chapter ", "part ", "appendix ", "annex "} {
		if strings.HasPrefix(lower, p) {
			return true
		}
	}
	// "Table 3 ..." but not "table below shows ..."
	for _, p := range []string{"table ", "figure "} {
		if strings.HasPrefix(lower, p) && len(lower) > len(p) && lower[len(p)] >= '0' && lower[len(p)] <= '9' {
			return true
		}
	}
	return false
}

func isLetter(r rune) bool {
	return (r >= 'A' && r <= 'Z') || (r >= 'a' && r <= 'z')
}

func detectHeadingLevel(heading string) int {
	first, _, _ := strings.Cut(heading, " ")
	if dots := strings.Count(strings.TrimSuffix(first, "."), "."); first != "" && first[0] >= '0' && first[0] <= '9' {
		return dots + 1
	}
	if heading == strings.ToUpper(heading) {
		return 1
	}
	return 2
}

func classifySectionType(heading, content string) string {
	h := strings.ToLower(heading)
	c := strings.ToLower(content)
	switch {
	case strings.Contains(h, "specification") || strings.Contains(h, "parameters") ||
		strings.Contains(c, "rated ") || strings.Contains(c, "tolerance"):
		return "specification"
	case strings.Contains(h, "table") || strings.Count(content, "\t") > 3 || strings.Count(content, "|") > 3:
		return "table"
	}
	return "section"
}
