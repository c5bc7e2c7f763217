package eval

import (
	"encoding/json"
	"errors"
	"log/slog"
	"strconv"
	"strings"
)

// Verdict answers recorded when the judge gives no usable verdict.
const (
	AnswerInvalid = "Invalid"
	AnswerError   = "Error"
)

// Verdict is the judge's answer about one record. Confidence keeps whatever
// JSON value the judge sent.
type Verdict struct {
	Answer      string `json:"Answer"`
	Suggestions string `json:"Suggestions"`
	Confidence  any    `json:"Confidence,omitempty"`
}

// ParseVerdict decodes a judge response. Responses that are not a JSON
// object carrying all three fields become an Invalid verdict holding the
// raw response as suggestions.
func ParseVerdict(resp string) Verdict {
	invalid := Verdict{Answer: AnswerInvalid, Suggestions: resp}

	raw, err := extractJSON(resp)
	if err != nil {
		slog.Warn("eval: invalid response format", "response", truncate(resp, 200))
		return invalid
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		slog.Warn("eval: invalid response format", "response", truncate(resp, 200))
		return invalid
	}
	for _, k := range []string{"Answer", "Suggestions", "Confidence"} {
		if _, ok := fields[k]; !ok {
			slog.Warn("eval: missing fields in response", "field", k, "response", truncate(resp, 200))
			return invalid
		}
	}

	var v Verdict
	if err := json.Unmarshal(fields["Answer"], &v.Answer); err != nil {
		return invalid
	}
	if err := json.Unmarshal(fields["Suggestions"], &v.Suggestions); err != nil {
		// suggestions sometimes arrive as a list or object
		v.Suggestions = string(fields["Suggestions"])
	}
	if err := json.Unmarshal(fields["Confidence"], &v.Confidence); err != nil {
		return invalid
	}
	return v
}

// extractJSON returns the outermost {...} span of s.
func extractJSON(s string) (string, error) {
	start := strings.Index(s, "{")
	if start == -1 {
		return "", errors.New("no '{' in response")
	}
	end := strings.LastIndex(s, "}")
	if end < start {
		return "", errors.New("no closing '}' in response")
	}
	return s[start : end+1], nil
}

// Metrics aggregates the verdicts of one dataset.
type Metrics struct {
	Total          int     `json:"total"`
	Correct        int     `json:"correct"`
	Incorrect      int     `json:"incorrect"`
	Invalid        int     `json:"invalid"`
	Errors         int     `json:"errors"`
	Scored         int     `json:"scored"`
	Accuracy       float64 `json:"accuracy"`
	MeanConfidence float64 `json:"mean_confidence"`
}

// ComputeMetrics counts yes/no answers and averages every confidence score
// within [0, 5]. Accuracy is the share of yes answers over all verdicts.
func ComputeMetrics(verdicts []Verdict) Metrics {
	m := Metrics{Total: len(verdicts)}
	var sum float64
	for _, v := range verdicts {
		switch strings.ToLower(v.Answer) {
		case "yes":
			m.Correct++
		case "no":
			m.Incorrect++
		case strings.ToLower(AnswerInvalid):
			m.Invalid++
		case strings.ToLower(AnswerError):
			m.Errors++
		}

		score, ok := confidence(v.Confidence)
		if !ok {
			continue
		}
		if score < 0 || score > 5 {
			slog.Debug("eval: confidence score out of range", "score", score)
			continue
		}
		sum += score
		m.Scored++
	}
	if m.Total > 0 {
		m.Accuracy = float64(m.Correct) / float64(m.Total)
	}
	if m.Scored > 0 {
		m.MeanConfidence = sum / float64(m.Scored)
	}
	return m
}

// confidence converts a JSON number or numeric string to a score.
func confidence(v any) (float64, bool) {
	switch c := v.(type) {
	case float64:
		return c, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(c), 64)
		if err != nil {
			slog.Debug("eval: failed to parse confidence score", "confidence", c)
			return 0, false
		}
		return f, true
	}
	return 0, false
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
