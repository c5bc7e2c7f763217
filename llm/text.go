package llm

import "strings"

// StripThinking removes <think>...</think> blocks from model output.
// Some models (e.g. Qwen3) wrap reasoning in these tags. A closing tag with
// no opening tag before it is left as text.
func StripThinking(s string) string {
	const open, closing = "<think>", "</think>"
	for {
		start := strings.Index(s, open)
		if start == -1 {
			break
		}
		end := strings.Index(s[start:], closing)
		if end == -1 {
			// Unclosed tag: strip from <think> onward.
			s = s[:start]
			break
		}
		s = s[:start] + s[start+end+len(closing):]
	}
	return strings.TrimSpace(s)
}
