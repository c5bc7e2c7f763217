// Package eval re-scores generated KGC and RTE records with an LLM judge and
// reports accuracy and mean confidence per dataset.
package eval

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/brunobiangulo/kgsynth/llm"
)

// Evaluator sends one judge request per record.
type Evaluator struct {
	judge llm.Provider
	model string
}

// NewEvaluator creates an evaluator. An empty model uses the provider's
// configured model.
func NewEvaluator(judge llm.Provider, model string) *Evaluator {
	return &Evaluator{judge: judge, model: model}
}

// TokenUsage aggregates judge token consumption.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// DatasetReport is the outcome for one dataset file.
type DatasetReport struct {
	Kind       Kind          `json:"kind"`
	Path       string        `json:"path"`
	Metrics    Metrics       `json:"metrics"`
	Results    []Verdict     `json:"results"`
	RunTime    time.Duration `json:"run_time"`
	TokenUsage TokenUsage    `json:"token_usage"`
}

// Report holds both datasets.
type Report struct {
	KGC *DatasetReport `json:"kgc"`
	RTE *DatasetReport `json:"rte"`
}

// Run scores the KGC and RTE files. Both must exist.
func (e *Evaluator) Run(ctx context.Context, kgcPath, rtePath string) (*Report, error) {
	kgc, err := e.RunFile(ctx, kgcPath, KGC)
	if err != nil {
		return nil, err
	}
	rte, err := e.RunFile(ctx, rtePath, RTE)
	if err != nil {
		return nil, err
	}
	return &Report{KGC: kgc, RTE: rte}, nil
}

// RunFile scores one dataset file.
func (e *Evaluator) RunFile(ctx context.Context, path string, kind Kind) (*DatasetReport, error) {
	items, err := LoadDataset(path, kind)
	if err != nil {
		return nil, err
	}
	report, err := e.Evaluate(ctx, kind, items)
	if err != nil {
		return nil, err
	}
	report.Path = path
	return report, nil
}

// Evaluate judges every item in order. A failed judge call is recorded as
// an Error verdict; only cancellation stops the run.
func (e *Evaluator) Evaluate(ctx context.Context, kind Kind, items []Item) (*DatasetReport, error) {
	start := time.Now()
	report := &DatasetReport{Kind: kind, Results: make([]Verdict, 0, len(items))}

	for i, item := range items {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		v := e.judgeItem(ctx, item, &report.TokenUsage)
		report.Results = append(report.Results, v)

		slog.Info("eval: entry judged",
			"kind", kind,
			"progress", fmt.Sprintf("%d/%d", i+1, len(items)),
			"answer", v.Answer,
			"confidence", v.Confidence)
	}

	report.Metrics = ComputeMetrics(report.Results)
	report.RunTime = time.Since(start)
	slog.Info("eval: dataset scored",
		"kind", kind,
		"total", report.Metrics.Total,
		"correct", report.Metrics.Correct,
		"incorrect", report.Metrics.Incorrect,
		"accuracy", fmt.Sprintf("%.2f", report.Metrics.Accuracy),
		"mean_confidence", fmt.Sprintf("%.2f", report.Metrics.MeanConfidence))
	return report, nil
}

func (e *Evaluator) judgeItem(ctx context.Context, item Item, usage *TokenUsage) Verdict {
	resp, err := e.judge.Chat(ctx, llm.ChatRequest{
		Model:          e.model,
		Messages:       []llm.Message{{Role: "user", Content: item.Prompt}},
		ResponseFormat: "json_object",
	})
	if err != nil {
		slog.Warn("eval: judge call failed", "entry", item.Index, "error", err)
		return Verdict{Answer: AnswerError, Suggestions: "API call failed."}
	}
	usage.PromptTokens += resp.PromptTokens
	usage.CompletionTokens += resp.CompletionTokens
	usage.TotalTokens += resp.TotalTokens

	text := llm.StripThinking(resp.Content)
	if strings.TrimSpace(text) == "" {
		return Verdict{Answer: AnswerError, Suggestions: "API call failed."}
	}
	return ParseVerdict(text)
}

// WriteResults writes kgc_results.json and rte_results.json into dir.
func WriteResults(dir string, r *Report) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	for _, d := range []*DatasetReport{r.KGC, r.RTE} {
		if d == nil {
			continue
		}
		if err := writeVerdicts(filepath.Join(dir, string(d.Kind)+"_results.json"), d.Results); err != nil {
			return err
		}
	}
	return nil
}

func writeVerdicts(path string, verdicts []Verdict) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(f)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(verdicts); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// FormatReport produces a human-readable report string.
func FormatReport(r *Report) string {
	var b strings.Builder
	for _, d := range []*DatasetReport{r.KGC, r.RTE} {
		if d == nil {
			continue
		}
		name := strings.ToUpper(string(d.Kind))
		fmt.Fprintf(&b, "=== Evaluation Report: %s ===\n", name)
		if d.Path != "" {
			fmt.Fprintf(&b, "File: %s\n", d.Path)
		}
		fmt.Fprintf(&b, "Total Entries:      %d\n", d.Metrics.Total)
		fmt.Fprintf(&b, "Correct Answers:    %d\n", d.Metrics.Correct)
		fmt.Fprintf(&b, "Incorrect Answers:  %d\n", d.Metrics.Incorrect)
		if d.Metrics.Invalid+d.Metrics.Errors > 0 {
			fmt.Fprintf(&b, "Invalid / Errors:   %d / %d\n", d.Metrics.Invalid, d.Metrics.Errors)
		}
		fmt.Fprintf(&b, "Run time: %s\n", d.RunTime.Round(time.Millisecond))
		fmt.Fprintf(&b, "%s Dataset - Accuracy: %.2f, Average Confidence: %.2f\n\n",
			name, d.Metrics.Accuracy, d.Metrics.MeanConfidence)
	}
	return b.String()
}
